package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/cache"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"github.com/Domenick1991/skymiles/internal/service/award"
	"github.com/Domenick1991/skymiles/internal/service/flights"
	"github.com/Domenick1991/skymiles/internal/service/reservation"
	"github.com/Domenick1991/skymiles/internal/service/settlement"
)

// Cache holds idempotency keys and the award-cycle lock.
type Cache interface {
	settlement.IdempotencyStore
	award.Locker
}

// Producer publishes domain events.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
	PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error
}

// BalanceClient is the part of the balance service the booking side calls.
type BalanceClient interface {
	settlement.BalanceClient
	award.BalanceClient
}

// Deps are the connected infrastructure the services are built on.
type Deps struct {
	Ledger   *Ledger
	Balance  BalanceClient
	Cache    Cache
	Producer Producer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Services struct {
	Flights      *flights.FlightService
	Reservations *reservation.ReservationService
	Settlements  *settlement.Coordinator
	Awards       *award.AwardService
}

// OpenCache returns Redis when an address is configured and a process-local cache otherwise.
func OpenCache(cfg config.RedisConfig) (Cache, HealthCheck, func()) {
	if cfg.Addr == "" {
		slog.Warn("redis address not set; idempotency keys and award lock are process-local")
		return cache.NewMemoryCache(), func(context.Context) error { return nil }, func() {}
	}
	rc := cache.NewRedisCache(cfg)
	return rc, rc.Ping, func() { _ = rc.Close() }
}

func NewServices(cfg *config.Config, deps Deps) Services {
	topic := cfg.Kafka.BookingEventsTopic

	flightService := flights.NewFlightService(deps.Ledger.Flights)
	reservationService := reservation.NewReservationService(
		deps.Ledger.Bookings,
		reservation.WithProducer(deps.Producer, topic),
		reservation.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		reservation.WithMetrics(deps.Metrics),
	)
	coordinator := settlement.NewCoordinator(
		deps.Ledger.Flights,
		deps.Ledger.Bookings,
		deps.Ledger.Settlements,
		reservationService,
		deps.Balance,
		settlement.Config{
			PointsPerDollar:      cfg.Booking.PointsPerDollar,
			DebitAttempts:        cfg.Balance.DebitAttempts,
			CompensationAttempts: cfg.Balance.CompensationAttempts,
			RetryBackoff:         cfg.Balance.RetryBackoff(),
			ReserveTimeout:       cfg.Booking.ReserveTimeout(),
			IdempotencyTTL:       time.Duration(cfg.Booking.IdempotencyTTLMin) * time.Minute,
		},
		settlement.WithIdempotency(deps.Cache),
		settlement.WithProducer(deps.Producer, topic),
		settlement.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		settlement.WithMetrics(deps.Metrics),
		settlement.WithLogger(deps.Logger),
	)
	awardService := award.NewAwardService(
		deps.Ledger.Flights,
		deps.Ledger.Bookings,
		deps.Balance,
		award.Config{
			AwardPointsPerDollar: cfg.Booking.AwardPointsPerDollar,
			Concurrency:          cfg.Worker.AwardConcurrency,
			LockTTL:              time.Duration(cfg.Worker.AwardLockTTLMinutes) * time.Minute,
		},
		award.WithLocker(deps.Cache),
		award.WithProducer(deps.Producer, topic),
		award.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		award.WithMetrics(deps.Metrics),
	)

	return Services{
		Flights:      flightService,
		Reservations: reservationService,
		Settlements:  coordinator,
		Awards:       awardService,
	}
}
