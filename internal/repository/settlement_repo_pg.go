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

// SettlementUpdate carries the fields a transition may change besides the state.
type SettlementUpdate struct {
	BookingID            *int64
	Reason               string
	CompensationAttempts int
}

// SettlementRepository persists the pay-with-points saga log.
type SettlementRepository interface {
	Create(ctx context.Context, s *domain.Settlement) error
	Get(ctx context.Context, id string) (*domain.Settlement, error)
	// Transition moves a settlement from one state to the next; ErrStateConflict if it is no longer in from.
	Transition(ctx context.Context, id string, from, to domain.SettlementState, upd SettlementUpdate) (*domain.Settlement, error)
	ListStale(ctx context.Context, states []domain.SettlementState, updatedBefore time.Time) ([]domain.Settlement, error)
}

type PGSettlementRepository struct {
	db *pgxpool.Pool
}

func NewSettlementRepository(db *pgxpool.Pool) SettlementRepository {
	return &PGSettlementRepository{db: db}
}

const settlementColumns = `id::text, flight_id, rider_id, party_size, points, state, booking_id, reason, compensation_attempts, created_at, updated_at`

func scanSettlement(row pgx.Row, s *domain.Settlement) error {
	return row.Scan(&s.ID, &s.FlightID, &s.RiderID, &s.PartySize, &s.Points, &s.State, &s.BookingID, &s.Reason, &s.CompensationAttempts, &s.CreatedAt, &s.UpdatedAt)
}

func (r *PGSettlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	if s.State == "" {
		s.State = domain.SettlementStarted
	}
	err := r.db.QueryRow(ctx, `INSERT INTO settlements (id, flight_id, rider_id, party_size, points, state, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.FlightID, s.RiderID, s.PartySize, s.Points, s.State, s.Reason).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (r *PGSettlementRepository) Get(ctx context.Context, id string) (*domain.Settlement, error) {
	var s domain.Settlement
	if err := scanSettlement(r.db.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id=$1`, id), &s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return &s, nil
}

func (r *PGSettlementRepository) Transition(ctx context.Context, id string, from, to domain.SettlementState, upd SettlementUpdate) (*domain.Settlement, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("settlement %s: illegal transition %s -> %s", id, from, to)
	}

	var s domain.Settlement
	err := scanSettlement(r.db.QueryRow(ctx, `UPDATE settlements
		SET state=$3,
			booking_id=COALESCE($4, booking_id),
			reason=CASE WHEN $5 = '' THEN reason ELSE $5 END,
			compensation_attempts=compensation_attempts + $6,
			updated_at=now()
		WHERE id=$1 AND state=$2
		RETURNING `+settlementColumns,
		id, from, to, upd.BookingID, upd.Reason, upd.CompensationAttempts), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateConflict
		}
		return nil, fmt.Errorf("transition settlement: %w", err)
	}
	return &s, nil
}

func (r *PGSettlementRepository) ListStale(ctx context.Context, states []domain.SettlementState, updatedBefore time.Time) ([]domain.Settlement, error) {
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}

	rows, err := r.db.Query(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE state = ANY($1) AND updated_at < $2 ORDER BY updated_at`, names, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("list stale settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		if err := scanSettlement(rows, &s); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ SettlementRepository = (*PGSettlementRepository)(nil)
