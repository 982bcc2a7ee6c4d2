package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/skymiles/config"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the booking side of storage: flights, bookings and the settlement log.
type Ledger struct {
	Flights     repository.FlightRepository
	Bookings    repository.BookingRepository
	Settlements repository.SettlementRepository
	Ping        HealthCheck
	Close       func()
}

// OpenLedger connects the ledger store selected by cfg.Driver and applies its schema when asked to.
func OpenLedger(ctx context.Context, cfg config.DatabaseConfig) (*Ledger, error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory ledger; data is lost on restart")
		mem := repository.NewMemoryLedger()
		return &Ledger{
			Flights:     mem,
			Bookings:    mem,
			Settlements: repository.NewMemorySettlements(),
			Ping:        func(context.Context) error { return nil },
			Close:       func() {},
		}, nil
	}

	pool, err := connect(ctx, cfg, repository.SchemaLedger)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		Flights:     repository.NewFlightRepository(pool),
		Bookings:    repository.NewBookingRepository(pool),
		Settlements: repository.NewSettlementRepository(pool),
		Ping:        pool.Ping,
		Close:       pool.Close,
	}, nil
}

// OpenBalances connects the balance store selected by cfg.Driver.
func OpenBalances(ctx context.Context, cfg config.DatabaseConfig) (repository.BalanceRepository, func(), error) {
	if cfg.Driver == "memory" {
		slog.Warn("using in-memory balances; data is lost on restart")
		return repository.NewMemoryBalances(), func() {}, nil
	}

	pool, err := connect(ctx, cfg, repository.SchemaBalance)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewBalanceRepository(pool), pool.Close, nil
}

func connect(ctx context.Context, cfg config.DatabaseConfig, schema string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Migrate {
		if err := repository.Migrate(ctx, pool, schema); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}
