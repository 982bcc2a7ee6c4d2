package notify

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/skymiles/internal/kafka"
)

// Sender turns booking events into rider notifications. Delivery is a log line; mail transport
// lives outside this repository.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	s.logger.InfoContext(ctx, "notify rider",
		"rider_id", event.RiderID,
		"message", Message(event),
		"type", event.Type,
		"booking_id", event.BookingID,
	)
	return nil
}

// Message renders the text a rider receives for an event.
func Message(event kafka.BookingEvent) string {
	switch event.Type {
	case kafka.EventBookingCreated:
		return "Your booking " + event.Reference + " is confirmed."
	case kafka.EventMilesAwarded:
		return "Miles for your completed flight were credited to your account."
	case kafka.EventSettlementInconsistent:
		return "We could not complete your points booking. Our team will restore your points."
	default:
		return "Your booking was updated."
	}
}
