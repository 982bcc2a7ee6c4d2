package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	// Reserve atomically checks and decrements the flight's remaining capacity and inserts the booking.
	// It returns the flight as it is after the decrement.
	Reserve(ctx context.Context, booking *domain.Booking) (*domain.Flight, error)
	GetBySettlement(ctx context.Context, settlementID string) (*domain.Booking, error)
	ListUnawardedByFlight(ctx context.Context, flightID int64) ([]domain.Booking, error)
	// MarkAwarded sets the award watermark; false means the booking was already awarded.
	MarkAwarded(ctx context.Context, bookingID int64, points int64, at time.Time) (bool, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, reference::text, flight_id, rider_id, party_size, payment_method, COALESCE(settlement_id::text, ''), points_awarded, awarded_at, created_at`

func scanBooking(row pgx.Row, b *domain.Booking) error {
	return row.Scan(&b.ID, &b.Reference, &b.FlightID, &b.RiderID, &b.PartySize, &b.PaymentMethod, &b.SettlementID, &b.PointsAwarded, &b.AwardedAt, &b.CreatedAt)
}

func (r *PGBookingRepository) Reserve(ctx context.Context, booking *domain.Booking) (*domain.Flight, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock serialises every reservation on this flight until commit/rollback.
	var f domain.Flight
	if err := scanFlight(tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1 FOR UPDATE`, booking.FlightID), &f); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, fmt.Errorf("lock flight row: %w", err)
	}

	if f.AvailableSeats < booking.PartySize {
		return nil, domain.ErrInsufficientCapacity
	}

	if err := tx.QueryRow(ctx, `UPDATE flights SET available_seats = available_seats - $2, updated_at = now() WHERE id=$1 RETURNING available_seats, updated_at`,
		f.ID, booking.PartySize).Scan(&f.AvailableSeats, &f.UpdatedAt); err != nil {
		return nil, fmt.Errorf("decrement capacity: %w", err)
	}

	var settlementID *string
	if booking.SettlementID != "" {
		settlementID = &booking.SettlementID
	}
	if err := tx.QueryRow(ctx, `INSERT INTO bookings (reference, flight_id, rider_id, party_size, payment_method, settlement_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		booking.Reference, booking.FlightID, booking.RiderID, booking.PartySize, booking.PaymentMethod, settlementID).
		Scan(&booking.ID, &booking.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateRequest
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &f, nil
}

func (r *PGBookingRepository) GetBySettlement(ctx context.Context, settlementID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE settlement_id=$1`, settlementID), &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking by settlement: %w", err)
	}
	return &b, nil
}

func (r *PGBookingRepository) ListUnawardedByFlight(ctx context.Context, flightID int64) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE flight_id=$1 AND awarded_at IS NULL ORDER BY id`, flightID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *PGBookingRepository) MarkAwarded(ctx context.Context, bookingID int64, points int64, at time.Time) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings SET awarded_at=$3, points_awarded=$2 WHERE id=$1 AND awarded_at IS NULL`, bookingID, points, at)
	if err != nil {
		return false, fmt.Errorf("mark booking awarded: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
