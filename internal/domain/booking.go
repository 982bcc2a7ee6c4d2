package domain

import "time"

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodPoints PaymentMethod = "points"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodPoints
}

type Booking struct {
	ID            int64         `json:"id"`
	Reference     string        `json:"reference"`
	FlightID      int64         `json:"flight_id"`
	RiderID       int64         `json:"rider_id"`
	PartySize     int           `json:"party_size"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	SettlementID  string        `json:"settlement_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`

	// Award watermark: set once when miles for this booking were credited.
	AwardedAt     *time.Time `json:"awarded_at,omitempty"`
	PointsAwarded int64      `json:"points_awarded,omitempty"`
}

func (b Booking) Awarded() bool {
	return b.AwardedAt != nil
}
