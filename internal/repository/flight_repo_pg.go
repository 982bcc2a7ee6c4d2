package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FlightRepository interface {
	Create(ctx context.Context, flight *domain.Flight) error
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	// ListCompletedBefore returns flights scheduled before the given time that still have un-awarded bookings.
	ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.Flight, error)
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

const flightColumns = `id, from_city, to_city, flight_date, flight_code, price_cents, duration_minutes, total_seats, available_seats, created_at, updated_at`

func scanFlight(row pgx.Row, f *domain.Flight) error {
	return row.Scan(&f.ID, &f.FromCity, &f.ToCity, &f.FlightDate, &f.FlightCode, &f.PriceCents, &f.DurationMinutes, &f.TotalSeats, &f.AvailableSeats, &f.CreatedAt, &f.UpdatedAt)
}

func (r *PGFlightRepository) Create(ctx context.Context, f *domain.Flight) error {
	if f.AvailableSeats == 0 {
		f.AvailableSeats = f.TotalSeats
	}
	err := r.db.QueryRow(ctx, `INSERT INTO flights (from_city, to_city, flight_date, flight_code, price_cents, duration_minutes, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		f.FromCity, f.ToCity, f.FlightDate, f.FlightCode, f.PriceCents, f.DurationMinutes, f.TotalSeats, f.AvailableSeats).
		Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert flight: %w", err)
	}
	return nil
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	var f domain.Flight
	if err := scanFlight(r.db.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id), &f); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, fmt.Errorf("get flight: %w", err)
	}
	return &f, nil
}

func (r *PGFlightRepository) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.Flight, error) {
	rows, err := r.db.Query(ctx, `SELECT `+flightColumns+` FROM flights f
		WHERE f.flight_date < $1
		AND EXISTS (SELECT 1 FROM bookings b WHERE b.flight_id = f.id AND b.awarded_at IS NULL)
		ORDER BY f.flight_date, f.id`, before)
	if err != nil {
		return nil, fmt.Errorf("list completed flights: %w", err)
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		var f domain.Flight
		if err := scanFlight(rows, &f); err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

var _ FlightRepository = (*PGFlightRepository)(nil)
