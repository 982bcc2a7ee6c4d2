package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/skymiles/internal/cache"
	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/Domenick1991/skymiles/internal/service/reservation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SettlementUseCase books seats paid with loyalty points. The points debit lives in the balance
// service and the seats in the ledger, so the two are tied together by a persisted saga that is
// compensated when the second step fails.
type SettlementUseCase interface {
	BookWithPoints(ctx context.Context, input BookWithPointsInput) (*reservation.ReserveResult, error)
	Recover(ctx context.Context, olderThan time.Duration) (*RecoverySummary, error)
}

type BalanceClient interface {
	Debit(ctx context.Context, opID string, riderID, amount int64) (*domain.BalanceResult, error)
	Credit(ctx context.Context, opID string, riderID, amount int64, reversalOf string) (*domain.BalanceResult, error)
}

type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Complete(ctx context.Context, key string, settlementID string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
	Lookup(ctx context.Context, key string) (*cache.IdempotencyRecord, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
	PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error
}

const inconsistentPublishAttempts = 5

type BookWithPointsInput struct {
	FlightID       int64  `json:"flight_id"`
	RiderID        int64  `json:"rider_id"`
	PartySize      int    `json:"party_size"`
	IdempotencyKey string `json:"-"`
}

type Config struct {
	PointsPerDollar      int64
	DebitAttempts        int
	CompensationAttempts int
	RetryBackoff         time.Duration
	ReserveTimeout       time.Duration
	IdempotencyTTL       time.Duration
}

type RecoverySummary struct {
	Scanned      int `json:"scanned"`
	Reserved     int `json:"reserved"`
	Rejected     int `json:"rejected"`
	Compensated  int `json:"compensated"`
	Inconsistent int `json:"inconsistent"`
	Skipped      int `json:"skipped"`
}

type Coordinator struct {
	flights     repository.FlightRepository
	bookings    repository.BookingRepository
	settlements repository.SettlementRepository
	reserver    reservation.ReservationUseCase
	balance     BalanceClient
	cfg         Config

	idempotency IdempotencyStore
	producer    Producer
	topic       string
	notifyTopic string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type CoordinatorOption func(*Coordinator)

func WithIdempotency(store IdempotencyStore) CoordinatorOption {
	return func(c *Coordinator) {
		c.idempotency = store
	}
}

func WithProducer(producer Producer, topic string) CoordinatorOption {
	return func(c *Coordinator) {
		c.producer = producer
		c.topic = topic
	}
}

// WithNotificationsTopic also sends rider-facing events to topic.
func WithNotificationsTopic(topic string) CoordinatorOption {
	return func(c *Coordinator) {
		c.notifyTopic = topic
	}
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(
	flights repository.FlightRepository,
	bookings repository.BookingRepository,
	settlements repository.SettlementRepository,
	reserver reservation.ReservationUseCase,
	balance BalanceClient,
	cfg Config,
	opts ...CoordinatorOption,
) *Coordinator {
	if cfg.DebitAttempts <= 0 {
		cfg.DebitAttempts = 1
	}
	if cfg.CompensationAttempts <= 0 {
		cfg.CompensationAttempts = 1
	}
	if cfg.ReserveTimeout <= 0 {
		cfg.ReserveTimeout = 5 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = time.Hour
	}
	c := &Coordinator{
		flights:     flights,
		bookings:    bookings,
		settlements: settlements,
		reserver:    reserver,
		balance:     balance,
		cfg:         cfg,
		logger:      slog.Default(),
		tracer:      otel.Tracer("skymiles/settlement"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) BookWithPoints(ctx context.Context, input BookWithPointsInput) (*reservation.ReserveResult, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.BookWithPoints", trace.WithAttributes(
		attribute.Int64("flight.id", input.FlightID),
		attribute.Int64("rider.id", input.RiderID),
		attribute.Int("party.size", input.PartySize),
	))
	defer span.End()

	if input.PartySize <= 0 {
		return nil, domain.ErrInvalidPartySize
	}
	if input.RiderID <= 0 {
		return nil, domain.ErrInvalidRider
	}

	claimed := false
	if input.IdempotencyKey != "" && c.idempotency != nil {
		ok, err := c.idempotency.Claim(ctx, input.IdempotencyKey, c.cfg.IdempotencyTTL)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "idempotency store unavailable, continuing without it", "error", err)
		case !ok:
			return c.replay(ctx, input.IdempotencyKey)
		default:
			claimed = true
		}
	}

	res, s, err := c.settle(ctx, input)
	if s != nil {
		span.SetAttributes(attribute.String("settlement.id", s.ID), attribute.String("settlement.state", string(s.State)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.CodeOf(err))
	}

	if claimed {
		c.finishIdempotency(ctx, input.IdempotencyKey, s)
	}
	return res, err
}

func (c *Coordinator) replay(ctx context.Context, key string) (*reservation.ReserveResult, error) {
	rec, err := c.idempotency.Lookup(ctx, key)
	if err != nil || rec == nil || rec.Status != cache.StatusDone {
		return nil, domain.ErrDuplicateRequest
	}

	s, err := c.settlements.Get(ctx, rec.SettlementID)
	if err != nil {
		return nil, err
	}
	if s.State != domain.SettlementReserved {
		return nil, domain.ErrDuplicateRequest
	}
	return c.reservedResult(ctx, s)
}

func (c *Coordinator) finishIdempotency(ctx context.Context, key string, s *domain.Settlement) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if s != nil && s.State == domain.SettlementReserved {
		err = c.idempotency.Complete(ctx, key, s.ID, c.cfg.IdempotencyTTL)
	} else {
		err = c.idempotency.Forget(ctx, key)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "failed to record idempotency outcome", "error", err)
	}
}

func (c *Coordinator) settle(ctx context.Context, input BookWithPointsInput) (*reservation.ReserveResult, *domain.Settlement, error) {
	flight, err := c.flights.GetByID(ctx, input.FlightID)
	if err != nil {
		return nil, nil, err
	}
	if flight.AvailableSeats < input.PartySize {
		return nil, nil, domain.ErrInsufficientCapacity
	}

	s := &domain.Settlement{
		ID:        uuid.NewString(),
		FlightID:  flight.ID,
		RiderID:   input.RiderID,
		PartySize: input.PartySize,
		Points:    domain.PointsCost(*flight, input.PartySize, c.cfg.PointsPerDollar),
		State:     domain.SettlementStarted,
	}
	if err := c.settlements.Create(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("create settlement: %w", err)
	}
	log := c.logger.With("settlement_id", s.ID, "rider_id", s.RiderID, "flight_id", s.FlightID)

	if err := c.debit(ctx, s); err != nil {
		return nil, s, c.reject(ctx, s, err)
	}

	// From here on points have left the rider's balance, so state writes must not be cut short
	// by the caller going away.
	bg := context.WithoutCancel(ctx)
	if err := c.transition(bg, s, domain.SettlementDebited, repository.SettlementUpdate{}); err != nil {
		log.ErrorContext(ctx, "debited settlement could not be recorded, leaving it to recovery", "error", err)
		return nil, s, fmt.Errorf("record debit: %w", err)
	}

	reserveCtx, cancel := context.WithTimeout(ctx, c.cfg.ReserveTimeout)
	res, reserveErr := c.reserver.Reserve(reserveCtx, reservation.ReserveInput{
		FlightID:      s.FlightID,
		RiderID:       s.RiderID,
		PartySize:     s.PartySize,
		PaymentMethod: domain.PaymentMethodPoints,
		SettlementID:  s.ID,
	})
	cancel()

	if reserveErr == nil {
		bookingID := res.Booking.ID
		if err := c.transition(bg, s, domain.SettlementReserved, repository.SettlementUpdate{BookingID: &bookingID}); err != nil {
			log.ErrorContext(ctx, "reserved settlement could not be recorded", "booking_id", bookingID, "error", err)
		}
		log.InfoContext(ctx, "booked with points", "booking_id", bookingID, "points", s.Points)
		return res, s, nil
	}

	log.WarnContext(ctx, "reservation failed after debit, compensating", "error", reserveErr)
	if !domain.IsDeclared(reserveErr) || errors.Is(reserveErr, domain.ErrDuplicateRequest) {
		if res, ok := c.committedReservation(bg, s); ok {
			return res, s, nil
		}
	}

	if err := c.compensate(bg, s, domain.CodeOf(reserveErr)); err != nil {
		return nil, s, err
	}
	return nil, s, reserveErr
}

// debit takes the points, retrying only while the balance service is unreachable.
func (c *Coordinator) debit(ctx context.Context, s *domain.Settlement) error {
	if s.Points == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.DebitAttempts; attempt++ {
		_, err := c.balance.Debit(ctx, s.DebitOperationID(), s.RiderID, s.Points)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrBalanceUnavailable) {
			return err
		}

		c.logger.WarnContext(ctx, "debit attempt failed", "settlement_id", s.ID, "attempt", attempt, "error", err)
		if attempt < c.cfg.DebitAttempts {
			if err := sleep(ctx, time.Duration(attempt)*c.cfg.RetryBackoff); err != nil {
				break
			}
		}
	}
	return lastErr
}

// reject closes a settlement whose debit did not go through. When the debit outcome is unknown
// the debit is voided first; if the void finds that the debit did land, the points are returned
// and the settlement ends COMPENSATED instead.
func (c *Coordinator) reject(ctx context.Context, s *domain.Settlement, cause error) error {
	bg := context.WithoutCancel(ctx)
	upd := repository.SettlementUpdate{Reason: domain.CodeOf(cause)}

	if domain.IsDeclared(cause) {
		if err := c.transition(bg, s, domain.SettlementRejected, upd); err != nil {
			c.logger.ErrorContext(ctx, "failed to record rejected settlement", "settlement_id", s.ID, "error", err)
		}
		return cause
	}

	refunded, err := c.voidDebit(bg, s)
	if err != nil {
		c.logger.WarnContext(ctx, "void of unconfirmed debit failed, leaving settlement to recovery", "settlement_id", s.ID, "error", err)
		return cause
	}
	to := domain.SettlementRejected
	if refunded {
		to = domain.SettlementCompensated
	}
	if err := c.transition(bg, s, to, upd); err != nil {
		c.logger.ErrorContext(ctx, "failed to record rejected settlement", "settlement_id", s.ID, "error", err)
	}
	return cause
}

func (c *Coordinator) voidDebit(ctx context.Context, s *domain.Settlement) (bool, error) {
	res, err := c.balance.Credit(ctx, s.RefundOperationID(), s.RiderID, 0, s.DebitOperationID())
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}

// committedReservation reports a booking that exists for the settlement even though the
// reservation call failed.
func (c *Coordinator) committedReservation(ctx context.Context, s *domain.Settlement) (*reservation.ReserveResult, bool) {
	b, err := c.bookings.GetBySettlement(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrBookingNotFound) {
			c.logger.WarnContext(ctx, "could not check for committed reservation", "settlement_id", s.ID, "error", err)
		}
		return nil, false
	}
	bookingID := b.ID
	if err := c.transition(ctx, s, domain.SettlementReserved, repository.SettlementUpdate{BookingID: &bookingID}); err != nil {
		c.logger.ErrorContext(ctx, "failed to record reserved settlement", "settlement_id", s.ID, "error", err)
	}
	f, err := c.flights.GetByID(ctx, b.FlightID)
	if err != nil {
		return &reservation.ReserveResult{Booking: *b}, true
	}
	return &reservation.ReserveResult{Booking: *b, Flight: *f}, true
}

// compensate refunds the debit of s. It returns nil once the refund is confirmed and
// ErrSettlementInconsistent when every attempt failed.
func (c *Coordinator) compensate(ctx context.Context, s *domain.Settlement, reason string) error {
	if s.State == domain.SettlementDebited {
		if err := c.transition(ctx, s, domain.SettlementCompensationPending, repository.SettlementUpdate{Reason: reason}); err != nil {
			c.logger.ErrorContext(ctx, "failed to record pending compensation", "settlement_id", s.ID, "error", err)
		}
	}

	var (
		lastErr  error
		attempts int
	)
	for attempts < c.cfg.CompensationAttempts {
		attempts++
		_, lastErr = c.balance.Credit(ctx, s.RefundOperationID(), s.RiderID, s.Points, s.DebitOperationID())
		if lastErr == nil {
			break
		}
		c.logger.WarnContext(ctx, "refund attempt failed", "settlement_id", s.ID, "attempt", attempts, "error", lastErr)
		if domain.IsDeclared(lastErr) {
			break
		}
		if attempts < c.cfg.CompensationAttempts {
			_ = sleep(ctx, time.Duration(attempts)*c.cfg.RetryBackoff)
		}
	}

	if lastErr == nil {
		if err := c.transition(ctx, s, domain.SettlementCompensated, repository.SettlementUpdate{CompensationAttempts: attempts}); err != nil {
			c.logger.ErrorContext(ctx, "failed to record compensated settlement", "settlement_id", s.ID, "error", err)
		}
		c.logger.InfoContext(ctx, "points refunded", "settlement_id", s.ID, "points", s.Points)
		return nil
	}

	if err := c.transition(ctx, s, domain.SettlementInconsistent, repository.SettlementUpdate{CompensationAttempts: attempts, Reason: domain.CodeOf(lastErr)}); err != nil {
		c.logger.ErrorContext(ctx, "failed to record inconsistent settlement", "settlement_id", s.ID, "error", err)
	}
	c.logger.ErrorContext(ctx, "points debited but not refunded, reconciliation required",
		"settlement_id", s.ID, "rider_id", s.RiderID, "points", s.Points, "error", lastErr)
	c.publishInconsistent(ctx, s, lastErr)
	return fmt.Errorf("settlement %s: %w", s.ID, domain.ErrSettlementInconsistent)
}

func (c *Coordinator) transition(ctx context.Context, s *domain.Settlement, to domain.SettlementState, upd repository.SettlementUpdate) error {
	updated, err := c.settlements.Transition(ctx, s.ID, s.State, to, upd)
	if err != nil {
		return err
	}
	*s = *updated
	if c.metrics != nil && to.Terminal() {
		c.metrics.Settlements.WithLabelValues(string(to)).Inc()
	}
	return nil
}

func (c *Coordinator) reservedResult(ctx context.Context, s *domain.Settlement) (*reservation.ReserveResult, error) {
	b, err := c.bookings.GetBySettlement(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	f, err := c.flights.GetByID(ctx, b.FlightID)
	if err != nil {
		return nil, err
	}
	return &reservation.ReserveResult{Booking: *b, Flight: *f}, nil
}

func (c *Coordinator) publishInconsistent(ctx context.Context, s *domain.Settlement, cause error) {
	if c.producer == nil {
		return
	}
	event := kafka.BookingEvent{
		Type:         kafka.EventSettlementInconsistent,
		FlightID:     s.FlightID,
		RiderID:      s.RiderID,
		PartySize:    s.PartySize,
		Points:       s.Points,
		SettlementID: s.ID,
		Reason:       cause.Error(),
		OccurredAt:   c.now(),
	}
	for _, topic := range []string{c.topic, c.notifyTopic} {
		if topic == "" {
			continue
		}
		if err := c.producer.PublishWithRetry(ctx, topic, event.Key(), event, inconsistentPublishAttempts); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish settlement_inconsistent", "settlement_id", s.ID, "topic", topic, "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ SettlementUseCase = (*Coordinator)(nil)
