package reservation

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/google/uuid"
)

// ReservationUseCase is the capacity reservation engine: it turns remaining seats into bookings
// and never lets a flight go below zero seats.
type ReservationUseCase interface {
	Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type ReserveInput struct {
	FlightID      int64                `json:"flight_id"`
	RiderID       int64                `json:"rider_id"`
	PartySize     int                  `json:"party_size"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	// SettlementID links a points booking to its settlement.
	SettlementID string `json:"-"`
}

type ReserveResult struct {
	Booking domain.Booking `json:"booking"`
	Flight  domain.Flight  `json:"flight"`
}

type ReservationService struct {
	bookings           repository.BookingRepository
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	metrics            *metrics.Metrics
}

type ReservationServiceOption func(*ReservationService)

func WithProducer(producer Producer, bookingTopic string) ReservationServiceOption {
	return func(s *ReservationService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) ReservationServiceOption {
	return func(s *ReservationService) {
		s.notificationsTopic = topic
	}
}

func WithMetrics(m *metrics.Metrics) ReservationServiceOption {
	return func(s *ReservationService) {
		s.metrics = m
	}
}

func NewReservationService(bookings repository.BookingRepository, opts ...ReservationServiceOption) *ReservationService {
	service := &ReservationService{bookings: bookings}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *ReservationService) Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error) {
	if input.PartySize <= 0 {
		s.count(domain.ErrInvalidPartySize)
		return nil, domain.ErrInvalidPartySize
	}
	if input.RiderID <= 0 {
		s.count(domain.ErrInvalidRider)
		return nil, domain.ErrInvalidRider
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = domain.PaymentMethodCash
	}
	if !input.PaymentMethod.Valid() {
		s.count(domain.ErrInvalidPaymentMethod)
		return nil, domain.ErrInvalidPaymentMethod
	}

	booking := &domain.Booking{
		Reference:     uuid.NewString(),
		FlightID:      input.FlightID,
		RiderID:       input.RiderID,
		PartySize:     input.PartySize,
		PaymentMethod: input.PaymentMethod,
		SettlementID:  input.SettlementID,
	}
	flight, err := s.bookings.Reserve(ctx, booking)
	if err != nil {
		s.count(err)
		return nil, err
	}
	s.count(nil)

	slog.InfoContext(ctx, "seats reserved",
		"booking_id", booking.ID,
		"flight_id", flight.ID,
		"party_size", booking.PartySize,
		"available_seats", flight.AvailableSeats,
		"payment_method", booking.PaymentMethod,
	)
	if err := s.publish(ctx, booking); err != nil {
		slog.WarnContext(ctx, "failed to publish booking_created", "booking_id", booking.ID, "error", err)
	}
	return &ReserveResult{Booking: *booking, Flight: *flight}, nil
}

func (s *ReservationService) count(err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = domain.CodeOf(err)
	}
	s.metrics.Reservations.WithLabelValues(result).Inc()
}

func (s *ReservationService) publish(ctx context.Context, booking *domain.Booking) error {
	if s.producer == nil || s.bookingTopic == "" {
		return nil
	}
	event := kafka.BookingEvent{
		Type:          kafka.EventBookingCreated,
		BookingID:     booking.ID,
		Reference:     booking.Reference,
		FlightID:      booking.FlightID,
		RiderID:       booking.RiderID,
		PartySize:     booking.PartySize,
		PaymentMethod: string(booking.PaymentMethod),
		SettlementID:  booking.SettlementID,
		OccurredAt:    booking.CreatedAt,
	}
	if err := s.producer.Publish(ctx, s.bookingTopic, event.Key(), event); err != nil {
		return err
	}
	if s.notificationsTopic != "" {
		return s.producer.Publish(ctx, s.notificationsTopic, event.Key(), event)
	}
	return nil
}

var _ ReservationUseCase = (*ReservationService)(nil)
