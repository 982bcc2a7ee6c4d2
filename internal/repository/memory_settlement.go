package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
)

type MemorySettlements struct {
	mu    sync.Mutex
	items map[string]domain.Settlement
	now   func() time.Time
}

func NewMemorySettlements() *MemorySettlements {
	return &MemorySettlements{items: make(map[string]domain.Settlement), now: time.Now}
}

func (m *MemorySettlements) Create(ctx context.Context, s *domain.Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.ID]; ok {
		return fmt.Errorf("settlement %s already exists", s.ID)
	}
	if s.State == "" {
		s.State = domain.SettlementStarted
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	m.items[s.ID] = *s
	return nil
}

func (m *MemorySettlements) Get(ctx context.Context, id string) (*domain.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, domain.ErrSettlementNotFound
	}
	return &s, nil
}

func (m *MemorySettlements) Transition(ctx context.Context, id string, from, to domain.SettlementState, upd SettlementUpdate) (*domain.Settlement, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("settlement %s: illegal transition %s -> %s", id, from, to)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok || s.State != from {
		return nil, ErrStateConflict
	}
	s.State = to
	if upd.BookingID != nil {
		id := *upd.BookingID
		s.BookingID = &id
	}
	if upd.Reason != "" {
		s.Reason = upd.Reason
	}
	s.CompensationAttempts += upd.CompensationAttempts
	s.UpdatedAt = m.now()
	m.items[s.ID] = s
	return &s, nil
}

func (m *MemorySettlements) ListStale(ctx context.Context, states []domain.SettlementState, updatedBefore time.Time) ([]domain.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[domain.SettlementState]bool, len(states))
	for _, st := range states {
		want[st] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Settlement
	for _, s := range m.items {
		if want[s.State] && s.UpdatedAt.Before(updatedBefore) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

var _ SettlementRepository = (*MemorySettlements)(nil)
