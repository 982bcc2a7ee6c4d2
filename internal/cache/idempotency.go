package cache

const (
	StatusInFlight = "in_flight"
	StatusDone     = "done"
)

// IdempotencyRecord is what a client-supplied Idempotency-Key resolves to.
type IdempotencyRecord struct {
	Status       string `json:"status"`
	SettlementID string `json:"settlement_id,omitempty"`
}
