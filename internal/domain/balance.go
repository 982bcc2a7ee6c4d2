package domain

import "time"

type RiderBalance struct {
	RiderID   int64     `json:"rider_id"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OperationKind string

const (
	OperationDebit    OperationKind = "debit"
	OperationCredit   OperationKind = "credit"
	OperationReversal OperationKind = "reversal"
	// OperationVoid is a tombstone for a debit that never arrived; it blocks a late delivery.
	OperationVoid OperationKind = "void"
)

// BalanceOperation is a single idempotent change to a rider balance.
type BalanceOperation struct {
	ID         string        `json:"op_id"`
	RiderID    int64         `json:"rider_id"`
	Kind       OperationKind `json:"kind"`
	Amount     int64         `json:"amount"`
	ReversalOf string        `json:"reversal_of,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// BalanceResult is the state after an operation was processed.
type BalanceResult struct {
	Balance RiderBalance `json:"balance"`
	// Applied is false when the operation was a replay or a reversal of nothing.
	Applied bool `json:"applied"`
}
