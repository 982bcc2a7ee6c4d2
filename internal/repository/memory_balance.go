package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
)

// MemoryBalances mirrors PGBalanceRepository semantics in process memory.
type MemoryBalances struct {
	mu       sync.Mutex
	balances map[int64]domain.RiderBalance
	ops      map[string]domain.BalanceOperation
	// reversed maps a reversed operation id to the reversal that gave it back.
	reversed map[string]string
	now      func() time.Time
}

func NewMemoryBalances() *MemoryBalances {
	return &MemoryBalances{
		balances: make(map[int64]domain.RiderBalance),
		ops:      make(map[string]domain.BalanceOperation),
		reversed: make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryBalances) Open(ctx context.Context, riderID int64, initialPoints int64) (*domain.RiderBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[riderID]; ok {
		return &b, nil
	}
	now := m.now()
	b := domain.RiderBalance{RiderID: riderID, Points: initialPoints, CreatedAt: now, UpdatedAt: now}
	m.balances[riderID] = b
	return &b, nil
}

func (m *MemoryBalances) Get(ctx context.Context, riderID int64) (*domain.RiderBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[riderID]
	if !ok {
		return nil, domain.ErrRiderNotFound
	}
	return &b, nil
}

func (m *MemoryBalances) Apply(ctx context.Context, op domain.BalanceOperation) (*domain.BalanceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[op.RiderID]
	if !ok {
		return nil, domain.ErrRiderNotFound
	}
	if existing, ok := m.ops[op.ID]; ok {
		if existing.Kind == domain.OperationVoid {
			return nil, domain.ErrOperationVoided
		}
		return &domain.BalanceResult{Balance: b, Applied: false}, nil
	}

	now := m.now()
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
		if _, done := m.reversed[op.ReversalOf]; done {
			return &domain.BalanceResult{Balance: b, Applied: false}, nil
		}
		original, ok := m.ops[op.ReversalOf]
		switch {
		case !ok:
			m.ops[op.ReversalOf] = domain.BalanceOperation{ID: op.ReversalOf, RiderID: op.RiderID, Kind: domain.OperationVoid, CreatedAt: now}
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

	if delta != 0 {
		b.Points += delta
		b.UpdatedAt = now
		m.balances[op.RiderID] = b
	}
	op.CreatedAt = now
	m.ops[op.ID] = op
	if op.Kind == domain.OperationReversal {
		m.reversed[op.ReversalOf] = op.ID
	}
	return &domain.BalanceResult{Balance: b, Applied: delta != 0}, nil
}

var _ BalanceRepository = (*MemoryBalances)(nil)
