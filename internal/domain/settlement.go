package domain

import "time"

// SettlementState is a step of the pay-with-points saga.
//
//	STARTED -> DEBITED -> RESERVED
//	STARTED -> REJECTED
//	DEBITED -> COMPENSATION_PENDING -> COMPENSATED | INCONSISTENT
type SettlementState string

const (
	SettlementStarted             SettlementState = "STARTED"
	SettlementDebited             SettlementState = "DEBITED"
	SettlementReserved            SettlementState = "RESERVED"
	SettlementRejected            SettlementState = "REJECTED"
	SettlementCompensationPending SettlementState = "COMPENSATION_PENDING"
	SettlementCompensated         SettlementState = "COMPENSATED"
	SettlementInconsistent        SettlementState = "INCONSISTENT"
)

// Terminal reports whether no further transition is expected automatically.
func (s SettlementState) Terminal() bool {
	switch s {
	case SettlementReserved, SettlementRejected, SettlementCompensated, SettlementInconsistent:
		return true
	}
	return false
}

var settlementTransitions = map[SettlementState][]SettlementState{
	SettlementStarted:             {SettlementDebited, SettlementRejected, SettlementCompensated},
	SettlementDebited:             {SettlementReserved, SettlementCompensationPending},
	SettlementCompensationPending: {SettlementCompensated, SettlementInconsistent, SettlementReserved},
}

// CanTransition reports whether the saga may move from s to next.
func (s SettlementState) CanTransition(next SettlementState) bool {
	for _, allowed := range settlementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Settlement struct {
	ID                   string          `json:"id"`
	FlightID             int64           `json:"flight_id"`
	RiderID              int64           `json:"rider_id"`
	PartySize            int             `json:"party_size"`
	Points               int64           `json:"points"`
	State                SettlementState `json:"state"`
	BookingID            *int64          `json:"booking_id,omitempty"`
	Reason               string          `json:"reason,omitempty"`
	CompensationAttempts int             `json:"compensation_attempts"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// DebitOperationID is the balance operation key of the saga's debit.
func (s Settlement) DebitOperationID() string {
	return "debit:" + s.ID
}

// RefundOperationID is the balance operation key of the saga's compensation.
func (s Settlement) RefundOperationID() string {
	return "refund:" + s.ID
}
