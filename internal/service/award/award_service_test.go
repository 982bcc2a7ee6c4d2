package award

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/skymiles/internal/balance"
	"github.com/Domenick1991/skymiles/internal/cache"
	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type flakyBalance struct {
	svc *balance.Service

	mu      sync.Mutex
	failFor map[int64]bool
	calls   int
}

func (f *flakyBalance) Credit(ctx context.Context, opID string, riderID, amount int64, reversalOf string) (*domain.BalanceResult, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failFor[riderID]
	f.mu.Unlock()
	if fail {
		return nil, domain.ErrBalanceUnavailable
	}
	return f.svc.Credit(ctx, opID, riderID, amount, reversalOf)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, name, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseLock(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type awardEnv struct {
	ledger   *repository.MemoryLedger
	balances *balance.Service
	flaky    *flakyBalance
	past     domain.Flight
	future   domain.Flight
}

func newAwardEnv(t *testing.T) *awardEnv {
	t.Helper()
	ctx := context.Background()
	ledger := repository.NewMemoryLedger()

	past := domain.Flight{FromCity: "A", ToCity: "B", FlightDate: time.Now().Add(-48 * time.Hour), FlightCode: "P1", PriceCents: 12345, TotalSeats: 10}
	future := domain.Flight{FromCity: "A", ToCity: "B", FlightDate: time.Now().Add(48 * time.Hour), FlightCode: "F1", PriceCents: 50000, TotalSeats: 10}
	require.NoError(t, ledger.Create(ctx, &past))
	require.NoError(t, ledger.Create(ctx, &future))

	svc := balance.NewService(repository.NewMemoryBalances(), nil)
	for _, rider := range []int64{1, 2, 3} {
		_, err := svc.OpenAccount(ctx, rider, 0)
		require.NoError(t, err)
	}
	return &awardEnv{
		ledger:   ledger,
		balances: svc,
		flaky:    &flakyBalance{svc: svc, failFor: map[int64]bool{}},
		past:     past,
		future:   future,
	}
}

func (e *awardEnv) book(t *testing.T, f domain.Flight, rider int64, party int) domain.Booking {
	t.Helper()
	b := domain.Booking{FlightID: f.ID, RiderID: rider, PartySize: party, PaymentMethod: domain.PaymentMethodCash}
	_, err := e.ledger.Reserve(context.Background(), &b)
	require.NoError(t, err)
	return b
}

func (e *awardEnv) points(t *testing.T, rider int64) int64 {
	t.Helper()
	b, err := e.balances.GetBalance(context.Background(), rider)
	require.NoError(t, err)
	return b.Points
}

func (e *awardEnv) service(opts ...AwardServiceOption) *AwardService {
	return NewAwardService(e.ledger, e.ledger, e.flaky, Config{AwardPointsPerDollar: 1, Concurrency: 3}, opts...)
}

func TestWindowEnd(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), WindowEnd(asOf))
}

func TestRunAwardCycle_CreditsOnce(t *testing.T) {
	e := newAwardEnv(t)
	e.book(t, e.past, 1, 2)
	e.book(t, e.past, 2, 1)
	e.book(t, e.future, 3, 4)
	s := e.service()
	ctx := context.Background()

	summary, err := s.RunAwardCycle(ctx, time.Now())
	require.NoError(t, err)

	// 123.45 * 2 -> 246, 123.45 * 1 -> 123
	assert.Equal(t, int64(369), summary.TotalPointsAwarded)
	assert.Equal(t, 1, summary.FlightsProcessed)
	assert.Equal(t, 2, summary.BookingsProcessed)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, int64(246), e.points(t, 1))
	assert.Equal(t, int64(123), e.points(t, 2))
	assert.Equal(t, int64(0), e.points(t, 3))

	again, err := s.RunAwardCycle(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.TotalPointsAwarded)
	assert.Equal(t, 0, again.BookingsProcessed)
	assert.Equal(t, int64(246), e.points(t, 1))

	for _, b := range e.ledger.Bookings(e.past.ID) {
		assert.True(t, b.Awarded())
	}
	for _, b := range e.ledger.Bookings(e.future.ID) {
		assert.False(t, b.Awarded())
	}
}

func TestRunAwardCycle_PartialFailureIsRetriedNextCycle(t *testing.T) {
	e := newAwardEnv(t)
	e.book(t, e.past, 1, 1)
	failed := e.book(t, e.past, 2, 1)
	e.flaky.failFor[2] = true
	s := e.service()
	ctx := context.Background()

	summary, err := s.RunAwardCycle(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{failed.ID}, summary.Failures)
	require.Len(t, summary.FailureDetails, 1)
	assert.Equal(t, "BalanceServiceUnavailable", summary.FailureDetails[0].Code)
	assert.Equal(t, 1, summary.BookingsProcessed)
	assert.Equal(t, int64(123), summary.TotalPointsAwarded)

	e.flaky.failFor[2] = false
	summary, err = s.RunAwardCycle(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 1, summary.BookingsProcessed)
	assert.Equal(t, int64(123), e.points(t, 1))
	assert.Equal(t, int64(123), e.points(t, 2))
}

func TestRunAwardCycle_CreditWithoutWatermarkIsNotRepeated(t *testing.T) {
	e := newAwardEnv(t)
	b := e.book(t, e.past, 1, 1)

	// a previous run credited the rider but stopped before setting the watermark
	_, err := e.balances.Credit(context.Background(), awardOperationID(b.ID), 1, 123, "")
	require.NoError(t, err)

	summary, err := e.service().RunAwardCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BookingsProcessed)
	assert.Equal(t, int64(123), e.points(t, 1))
}

func TestRunAwardCycle_WindowExcludesToday(t *testing.T) {
	e := newAwardEnv(t)
	e.book(t, e.past, 1, 1)

	// as of two days before now the past flight has not completed yet
	summary, err := e.service().RunAwardCycle(context.Background(), time.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.FlightsProcessed)
	assert.Equal(t, 0, e.flaky.calls)
}

func TestRunAwardCycle_PublishesEvents(t *testing.T) {
	e := newAwardEnv(t)
	b := e.book(t, e.past, 1, 1)
	producer := &MockProducer{}
	isAward := mock.MatchedBy(func(ev kafka.BookingEvent) bool {
		return ev.Type == kafka.EventMilesAwarded && ev.Points == 123
	})
	key := kafka.BookingEvent{BookingID: b.ID}.Key()
	producer.On("Publish", mock.Anything, "bookings", key, isAward).Return(errors.New("broker down")).Once()
	producer.On("Publish", mock.Anything, "notifications", key, isAward).Return(nil).Once()

	summary, err := e.service(WithProducer(producer, "bookings"), WithNotificationsTopic("notifications")).RunAwardCycle(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BookingsProcessed)
	producer.AssertExpectations(t)
}

func TestRunAwardCycle_Locked(t *testing.T) {
	e := newAwardEnv(t)
	locker := &MockLocker{}
	locker.On("AcquireLock", mock.Anything, "award-cycle", 30*time.Minute).Return(false, nil)

	_, err := e.service(WithLocker(locker)).RunAwardCycle(context.Background(), time.Now())

	assert.ErrorIs(t, err, domain.ErrCycleInProgress)
	locker.AssertNotCalled(t, "ReleaseLock", mock.Anything, mock.Anything)
}

func TestRunAwardCycle_ReleasesSharedLock(t *testing.T) {
	e := newAwardEnv(t)
	e.book(t, e.past, 1, 1)
	store := cache.NewMemoryCache()
	s := e.service(WithLocker(store))

	_, err := s.RunAwardCycle(context.Background(), time.Now())
	require.NoError(t, err)

	ok, err := store.AcquireLock(context.Background(), "award-cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
