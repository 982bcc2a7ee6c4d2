package award

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/kafka"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const lockName = "award-cycle"

// AwardUseCase credits miles for completed flights. Each booking carries a watermark, so a
// booking is credited at most once however often the cycle runs.
type AwardUseCase interface {
	RunAwardCycle(ctx context.Context, asOf time.Time) (*Summary, error)
}

type BalanceClient interface {
	Credit(ctx context.Context, opID string, riderID, amount int64, reversalOf string) (*domain.BalanceResult, error)
}

type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type Config struct {
	AwardPointsPerDollar int64
	Concurrency          int
	LockTTL              time.Duration
}

type Failure struct {
	FlightID  int64  `json:"flight_id"`
	BookingID int64  `json:"booking_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type Summary struct {
	WindowEnd          time.Time `json:"window_end"`
	TotalPointsAwarded int64     `json:"total_points_awarded"`
	FlightsProcessed   int       `json:"flights_processed"`
	BookingsProcessed  int       `json:"bookings_processed"`
	Failures           []int64   `json:"failures"`
	FailureDetails     []Failure `json:"failure_details"`
}

type AwardService struct {
	flights  repository.FlightRepository
	bookings repository.BookingRepository
	balance  BalanceClient
	cfg      Config

	running     sync.Mutex
	locker      Locker
	producer    Producer
	topic       string
	notifyTopic string
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
}

type AwardServiceOption func(*AwardService)

// WithLocker shares the cycle lock between processes.
func WithLocker(locker Locker) AwardServiceOption {
	return func(s *AwardService) {
		s.locker = locker
	}
}

func WithProducer(producer Producer, topic string) AwardServiceOption {
	return func(s *AwardService) {
		s.producer = producer
		s.topic = topic
	}
}

// WithNotificationsTopic also sends miles_awarded events to topic.
func WithNotificationsTopic(topic string) AwardServiceOption {
	return func(s *AwardService) {
		s.notifyTopic = topic
	}
}

func WithMetrics(m *metrics.Metrics) AwardServiceOption {
	return func(s *AwardService) {
		s.metrics = m
	}
}

func NewAwardService(flights repository.FlightRepository, bookings repository.BookingRepository, balance BalanceClient, cfg Config, opts ...AwardServiceOption) *AwardService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	s := &AwardService{
		flights:  flights,
		bookings: bookings,
		balance:  balance,
		cfg:      cfg,
		tracer:   otel.Tracer("skymiles/award"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WindowEnd is the start of asOf's UTC day: flights dated before it count as completed.
func WindowEnd(asOf time.Time) time.Time {
	y, m, d := asOf.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *AwardService) RunAwardCycle(ctx context.Context, asOf time.Time) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "award.RunAwardCycle")
	defer span.End()

	if !s.running.TryLock() {
		return nil, domain.ErrCycleInProgress
	}
	defer s.running.Unlock()

	if s.locker != nil {
		ok, err := s.locker.AcquireLock(ctx, lockName, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire award lock: %w", err)
		}
		if !ok {
			return nil, domain.ErrCycleInProgress
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockName); err != nil {
				slog.WarnContext(ctx, "failed to release award lock", "error", err)
			}
		}()
	}

	summary := &Summary{WindowEnd: WindowEnd(asOf), Failures: []int64{}, FailureDetails: []Failure{}}
	span.SetAttributes(attribute.String("award.window_end", summary.WindowEnd.Format(time.RFC3339)))

	flights, err := s.flights.ListCompletedBefore(ctx, summary.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("list completed flights: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, flight := range flights {
		flight := flight
		bookings, err := s.bookings.ListUnawardedByFlight(ctx, flight.ID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list bookings for award", "flight_id", flight.ID, "error", err)
			summary.FailureDetails = append(summary.FailureDetails, Failure{FlightID: flight.ID, Code: domain.CodeOf(err), Message: err.Error()})
			continue
		}
		summary.FlightsProcessed++

		for _, b := range bookings {
			b := b
			g.Go(func() error {
				points, credited, err := s.awardBooking(ctx, flight, b)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					summary.Failures = append(summary.Failures, b.ID)
					summary.FailureDetails = append(summary.FailureDetails, Failure{FlightID: flight.ID, BookingID: b.ID, Code: domain.CodeOf(err), Message: err.Error()})
				case credited:
					summary.TotalPointsAwarded += points
					summary.BookingsProcessed++
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool { return summary.Failures[i] < summary.Failures[j] })
	sort.Slice(summary.FailureDetails, func(i, j int) bool {
		return summary.FailureDetails[i].BookingID < summary.FailureDetails[j].BookingID
	})

	span.SetAttributes(
		attribute.Int64("award.points", summary.TotalPointsAwarded),
		attribute.Int("award.bookings", summary.BookingsProcessed),
		attribute.Int("award.failures", len(summary.Failures)),
	)
	slog.InfoContext(ctx, "award cycle finished",
		"window_end", summary.WindowEnd,
		"flights", summary.FlightsProcessed,
		"bookings", summary.BookingsProcessed,
		"points", summary.TotalPointsAwarded,
		"failures", len(summary.Failures),
	)
	return summary, nil
}

// awardBooking credits one booking and sets its watermark. credited is false when another
// cycle set the watermark first.
func (s *AwardService) awardBooking(ctx context.Context, flight domain.Flight, b domain.Booking) (int64, bool, error) {
	points := domain.PointsOwed(flight, b.PartySize, s.cfg.AwardPointsPerDollar)

	if points > 0 {
		if _, err := s.balance.Credit(ctx, awardOperationID(b.ID), b.RiderID, points, ""); err != nil {
			s.count("failed")
			slog.WarnContext(ctx, "award credit failed", "booking_id", b.ID, "rider_id", b.RiderID, "error", err)
			return 0, false, err
		}
	}

	marked, err := s.bookings.MarkAwarded(ctx, b.ID, points, s.now())
	if err != nil {
		s.count("failed")
		return 0, false, fmt.Errorf("mark booking %d awarded: %w", b.ID, err)
	}
	if !marked {
		s.count("skipped")
		return 0, false, nil
	}

	s.count("awarded")
	if s.metrics != nil {
		s.metrics.AwardPoints.Add(float64(points))
	}
	s.publish(ctx, flight, b, points)
	return points, true, nil
}

func (s *AwardService) count(result string) {
	if s.metrics != nil {
		s.metrics.AwardBookings.WithLabelValues(result).Inc()
	}
}

func (s *AwardService) publish(ctx context.Context, flight domain.Flight, b domain.Booking, points int64) {
	if s.producer == nil {
		return
	}
	event := kafka.BookingEvent{
		Type:          kafka.EventMilesAwarded,
		BookingID:     b.ID,
		Reference:     b.Reference,
		FlightID:      flight.ID,
		RiderID:       b.RiderID,
		PartySize:     b.PartySize,
		PaymentMethod: string(b.PaymentMethod),
		Points:        points,
		OccurredAt:    s.now(),
	}
	for _, topic := range []string{s.topic, s.notifyTopic} {
		if topic == "" {
			continue
		}
		if err := s.producer.Publish(ctx, topic, event.Key(), event); err != nil {
			slog.WarnContext(ctx, "failed to publish miles_awarded", "booking_id", b.ID, "topic", topic, "error", err)
		}
	}
}

func awardOperationID(bookingID int64) string {
	return "award:" + strconv.FormatInt(bookingID, 10)
}

var _ AwardUseCase = (*AwardService)(nil)
