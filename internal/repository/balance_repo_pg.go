package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BalanceRepository owns rider point balances. Every change is an operation keyed by its id,
// so replaying an operation is a no-op.
type BalanceRepository interface {
	Open(ctx context.Context, riderID int64, initialPoints int64) (*domain.RiderBalance, error)
	Get(ctx context.Context, riderID int64) (*domain.RiderBalance, error)
	Apply(ctx context.Context, op domain.BalanceOperation) (*domain.BalanceResult, error)
}

type PGBalanceRepository struct {
	db *pgxpool.Pool
}

func NewBalanceRepository(db *pgxpool.Pool) BalanceRepository {
	return &PGBalanceRepository{db: db}
}

const uniqueViolation = "23505"

func (r *PGBalanceRepository) Open(ctx context.Context, riderID int64, initialPoints int64) (*domain.RiderBalance, error) {
	var b domain.RiderBalance
	err := r.db.QueryRow(ctx, `INSERT INTO rider_balances (rider_id, points) VALUES ($1, $2)
		RETURNING rider_id, points, created_at, updated_at`, riderID, initialPoints).
		Scan(&b.RiderID, &b.Points, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return r.Get(ctx, riderID)
		}
		return nil, fmt.Errorf("open balance: %w", err)
	}
	return &b, nil
}

func (r *PGBalanceRepository) Get(ctx context.Context, riderID int64) (*domain.RiderBalance, error) {
	var b domain.RiderBalance
	err := r.db.QueryRow(ctx, `SELECT rider_id, points, created_at, updated_at FROM rider_balances WHERE rider_id=$1`, riderID).
		Scan(&b.RiderID, &b.Points, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRiderNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

func (r *PGBalanceRepository) Apply(ctx context.Context, op domain.BalanceOperation) (*domain.BalanceResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var b domain.RiderBalance
	err = tx.QueryRow(ctx, `SELECT rider_id, points, created_at, updated_at FROM rider_balances WHERE rider_id=$1 FOR UPDATE`, op.RiderID).
		Scan(&b.RiderID, &b.Points, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRiderNotFound
		}
		return nil, fmt.Errorf("lock balance row: %w", err)
	}

	existing, err := getOperation(ctx, tx, op.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Kind == domain.OperationVoid {
			return nil, domain.ErrOperationVoided
		}
		return &domain.BalanceResult{Balance: b, Applied: false}, nil
	}

	var delta int64
	switch op.Kind {
	case domain.OperationDebit:
		if b.Points < op.Amount {
			return nil, domain.ErrInsufficientPoints
		}
		delta = -op.Amount
	case domain.OperationCredit:
		delta = op.Amount
	case domain.OperationReversal:
		var reversedBy string
		err := tx.QueryRow(ctx, `SELECT op_id FROM balance_operations WHERE reversal_of=$1 AND kind=$2`, op.ReversalOf, domain.OperationReversal).Scan(&reversedBy)
		switch {
		case err == nil:
			return &domain.BalanceResult{Balance: b, Applied: false}, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("find reversal: %w", err)
		}
		original, err := getOperation(ctx, tx, op.ReversalOf)
		if err != nil {
			return nil, err
		}
		switch {
		case original == nil:
			// Nothing to reverse yet: leave a tombstone so the original can never apply later.
			if err := insertOperation(ctx, tx, domain.BalanceOperation{ID: op.ReversalOf, RiderID: op.RiderID, Kind: domain.OperationVoid}); err != nil {
				return nil, err
			}
			op.Amount = 0
		case original.Kind == domain.OperationVoid:
			op.Amount = 0
		case original.Kind != domain.OperationDebit || original.RiderID != op.RiderID:
			return nil, fmt.Errorf("operation %s cannot reverse %s: %w", op.ID, op.ReversalOf, domain.ErrInvalidAmount)
		default:
			op.Amount = original.Amount
		}
		delta = op.Amount
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	if err := insertOperation(ctx, tx, op); err != nil {
		var pgErr *pgconn.PgError
		if op.Kind == domain.OperationReversal && errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &domain.BalanceResult{Balance: b, Applied: false}, nil
		}
		return nil, err
	}
	if delta != 0 {
		if err := tx.QueryRow(ctx, `UPDATE rider_balances SET points = points + $2, updated_at = now() WHERE rider_id=$1 RETURNING points, updated_at`,
			op.RiderID, delta).Scan(&b.Points, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update balance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &domain.BalanceResult{Balance: b, Applied: delta != 0}, nil
}

func getOperation(ctx context.Context, tx pgx.Tx, id string) (*domain.BalanceOperation, error) {
	var op domain.BalanceOperation
	err := tx.QueryRow(ctx, `SELECT op_id, rider_id, kind, amount, reversal_of, created_at FROM balance_operations WHERE op_id=$1`, id).
		Scan(&op.ID, &op.RiderID, &op.Kind, &op.Amount, &op.ReversalOf, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return &op, nil
}

func insertOperation(ctx context.Context, tx pgx.Tx, op domain.BalanceOperation) error {
	if _, err := tx.Exec(ctx, `INSERT INTO balance_operations (op_id, rider_id, kind, amount, reversal_of) VALUES ($1, $2, $3, $4, $5)`,
		op.ID, op.RiderID, op.Kind, op.Amount, op.ReversalOf); err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

var _ BalanceRepository = (*PGBalanceRepository)(nil)
