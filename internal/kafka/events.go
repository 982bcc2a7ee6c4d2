package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventBookingCreated         = "booking_created"
	EventSettlementInconsistent = "settlement_inconsistent"
	EventMilesAwarded           = "miles_awarded"
)

// BookingEvent is the payload of every booking, settlement and award event.
type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     int64     `json:"booking_id,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	FlightID      int64     `json:"flight_id"`
	RiderID       int64     `json:"rider_id"`
	PartySize     int       `json:"party_size,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Points        int64     `json:"points,omitempty"`
	SettlementID  string    `json:"settlement_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Key partitions events by booking, falling back to the settlement for events without one.
func (e BookingEvent) Key() string {
	if e.BookingID != 0 {
		return strconv.FormatInt(e.BookingID, 10)
	}
	return e.SettlementID
}

func DecodeEvent(msg kafka.Message) (BookingEvent, error) {
	var event BookingEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return BookingEvent{}, fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	return event, nil
}
