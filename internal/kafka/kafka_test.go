package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingEventKey(t *testing.T) {
	assert.Equal(t, "42", BookingEvent{BookingID: 42, SettlementID: "s"}.Key())
	assert.Equal(t, "s", BookingEvent{SettlementID: "s"}.Key())
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent(kafka.Message{Value: []byte(`{"type":"miles_awarded","booking_id":7,"flight_id":3,"rider_id":9,"points":120}`)})
	require.NoError(t, err)
	assert.Equal(t, EventMilesAwarded, event.Type)
	assert.Equal(t, int64(7), event.BookingID)
	assert.Equal(t, int64(120), event.Points)

	_, err = DecodeEvent(kafka.Message{Value: []byte(`not json`), Offset: 5})
	assert.ErrorContains(t, err, "offset 5")
}

func TestNewProducerAndConsumer(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"})
	assert.NotNil(t, p)
	assert.NoError(t, p.Close())

	c := NewConsumer([]string{"localhost:9092"}, "skymiles", "notifications")
	assert.NotNil(t, c)
	assert.NoError(t, c.Close())

	var nilConsumer *Consumer
	assert.NoError(t, nilConsumer.Close())
}

func TestPublishWithRetry_StopsWhenContextDone(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.PublishWithRetry(ctx, "notifications", "s-1", BookingEvent{Type: EventSettlementInconsistent, SettlementID: "s-1"}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
