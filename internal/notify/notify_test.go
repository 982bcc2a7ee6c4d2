package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender_Send(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := s.Send(context.Background(), kafka.BookingEvent{Type: kafka.EventBookingCreated, RiderID: 4, BookingID: 12, Reference: "ref-1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"rider_id":4`)
	assert.Contains(t, buf.String(), "ref-1")
}

func TestMessage(t *testing.T) {
	assert.Contains(t, Message(kafka.BookingEvent{Type: kafka.EventMilesAwarded}), "Miles")
	assert.Contains(t, Message(kafka.BookingEvent{Type: kafka.EventSettlementInconsistent}), "restore")
	assert.Equal(t, "Your booking was updated.", Message(kafka.BookingEvent{Type: "other"}))
}
