package reservation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Reserve(ctx context.Context, booking *domain.Booking) (*domain.Flight, error) {
	args := m.Called(ctx, booking)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockBookingRepository) GetBySettlement(ctx context.Context, settlementID string) (*domain.Booking, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListUnawardedByFlight(ctx context.Context, flightID int64) ([]domain.Booking, error) {
	args := m.Called(ctx, flightID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) MarkAwarded(ctx context.Context, bookingID int64, points int64, at time.Time) (bool, error) {
	args := m.Called(ctx, bookingID, points, at)
	return args.Bool(0), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func TestReservationService_Reserve_Success(t *testing.T) {
	repo := &MockBookingRepository{}
	producer := &MockProducer{}
	service := NewReservationService(repo, WithProducer(producer, "bookings"), WithNotificationsTopic("notifications"))

	repo.On("Reserve", mock.Anything, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.FlightID == 1 && b.PartySize == 2 && b.PaymentMethod == domain.PaymentMethodCash && b.Reference != ""
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Booking).ID = 77
	}).Return(&domain.Flight{ID: 1, TotalSeats: 10, AvailableSeats: 8}, nil)

	producer.On("Publish", mock.Anything, "bookings", "77", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCreated && e.BookingID == 77
	})).Return(nil)
	producer.On("Publish", mock.Anything, "notifications", "77", mock.Anything).Return(nil)

	res, err := service.Reserve(context.Background(), ReserveInput{FlightID: 1, RiderID: 5, PartySize: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(77), res.Booking.ID)
	assert.Equal(t, 8, res.Flight.AvailableSeats)
	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestReservationService_Reserve_PublishFailureIsNotFatal(t *testing.T) {
	repo := &MockBookingRepository{}
	producer := &MockProducer{}
	service := NewReservationService(repo, WithProducer(producer, "bookings"))

	repo.On("Reserve", mock.Anything, mock.Anything).Return(&domain.Flight{ID: 1, AvailableSeats: 0}, nil)
	producer.On("Publish", mock.Anything, "bookings", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	_, err := service.Reserve(context.Background(), ReserveInput{FlightID: 1, RiderID: 5, PartySize: 1})
	assert.NoError(t, err)
}

func TestReservationService_Reserve_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input ReserveInput
		want  error
	}{
		{"zero party", ReserveInput{FlightID: 1, RiderID: 1, PartySize: 0}, domain.ErrInvalidPartySize},
		{"negative party", ReserveInput{FlightID: 1, RiderID: 1, PartySize: -3}, domain.ErrInvalidPartySize},
		{"no rider", ReserveInput{FlightID: 1, PartySize: 1}, domain.ErrInvalidRider},
		{"bad payment", ReserveInput{FlightID: 1, RiderID: 1, PartySize: 1, PaymentMethod: "card"}, domain.ErrInvalidPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockBookingRepository{}
			service := NewReservationService(repo)

			_, err := service.Reserve(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.want)
			repo.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
		})
	}
}

func TestReservationService_Reserve_StoreErrors(t *testing.T) {
	repo := &MockBookingRepository{}
	m := metrics.New("test")
	service := NewReservationService(repo, WithMetrics(m))

	repo.On("Reserve", mock.Anything, mock.MatchedBy(func(b *domain.Booking) bool { return b.FlightID == 404 })).Return(nil, domain.ErrFlightNotFound)
	repo.On("Reserve", mock.Anything, mock.MatchedBy(func(b *domain.Booking) bool { return b.FlightID == 1 })).Return(nil, domain.ErrInsufficientCapacity)

	_, err := service.Reserve(context.Background(), ReserveInput{FlightID: 404, RiderID: 1, PartySize: 1})
	assert.ErrorIs(t, err, domain.ErrFlightNotFound)

	_, err = service.Reserve(context.Background(), ReserveInput{FlightID: 1, RiderID: 1, PartySize: 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
}

func seedFlight(t *testing.T, ledger *repository.MemoryLedger, seats int) domain.Flight {
	t.Helper()
	f := domain.Flight{FromCity: "A", ToCity: "B", FlightDate: time.Now(), FlightCode: "X1", PriceCents: 10000, TotalSeats: seats}
	require.NoError(t, ledger.Create(context.Background(), &f))
	return f
}

func TestReservationService_ParallelLastSeat(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	f := seedFlight(t, ledger, 1)
	service := NewReservationService(ledger)

	const workers = 64
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		ok       atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(rider int64) {
			defer wg.Done()
			<-start
			_, err := service.Reserve(context.Background(), ReserveInput{FlightID: f.ID, RiderID: rider, PartySize: 1})
			if err == nil {
				ok.Add(1)
			} else if errors.Is(err, domain.ErrInsufficientCapacity) {
				rejected.Add(1)
			}
		}(int64(i + 1))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(workers-1), rejected.Load())
	assert.Len(t, ledger.Bookings(f.ID), 1)

	got, err := ledger.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSeats)
}

func TestReservationService_CapacityTwoScenario(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	f := seedFlight(t, ledger, 2)
	service := NewReservationService(ledger)
	ctx := context.Background()

	res, err := service.Reserve(ctx, ReserveInput{FlightID: f.ID, RiderID: 1, PartySize: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Flight.AvailableSeats)

	_, err = service.Reserve(ctx, ReserveInput{FlightID: f.ID, RiderID: 2, PartySize: 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)

	bookings := ledger.Bookings(f.ID)
	require.Len(t, bookings, 1)
	assert.Equal(t, int64(1), bookings[0].RiderID)
}

func TestReservationService_InvalidRequestsLeaveLedgerUntouched(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	f := seedFlight(t, ledger, 3)
	service := NewReservationService(ledger)
	ctx := context.Background()

	_, err := service.Reserve(ctx, ReserveInput{FlightID: f.ID, RiderID: 1, PartySize: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPartySize)

	_, err = service.Reserve(ctx, ReserveInput{FlightID: f.ID + 100, RiderID: 1, PartySize: 1})
	assert.ErrorIs(t, err, domain.ErrFlightNotFound)

	got, err := ledger.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableSeats)
	assert.Empty(t, ledger.Bookings(f.ID))
}
