package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointsCost(t *testing.T) {
	f := Flight{PriceCents: 10000}
	assert.Equal(t, int64(2000), PointsCost(f, 2, 10))

	// 12.34 * 3 * 10 = 370.2 -> rounded up
	f = Flight{PriceCents: 1234}
	assert.Equal(t, int64(371), PointsCost(f, 3, 10))
}

func TestPointsOwed(t *testing.T) {
	f := Flight{PriceCents: 10000}
	assert.Equal(t, int64(200), PointsOwed(f, 2, 1))

	f = Flight{PriceCents: 1299}
	assert.Equal(t, int64(12), PointsOwed(f, 1, 1))
}

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("reserve: %w", ErrInsufficientCapacity)

	assert.True(t, errors.Is(wrapped, ErrInsufficientCapacity))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "InsufficientCapacity", CodeOf(wrapped))
	assert.True(t, IsDeclared(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "Internal", CodeOf(errors.New("boom")))
	assert.False(t, IsDeclared(errors.New("boom")))
	assert.False(t, IsDeclared(ErrBalanceUnavailable))
	assert.Equal(t, "Inconsistent", KindOf(ErrSettlementInconsistent).String())
}

func TestSettlementTransitions(t *testing.T) {
	assert.True(t, SettlementStarted.CanTransition(SettlementDebited))
	assert.True(t, SettlementDebited.CanTransition(SettlementCompensationPending))
	assert.True(t, SettlementCompensationPending.CanTransition(SettlementInconsistent))
	assert.False(t, SettlementReserved.CanTransition(SettlementCompensated))
	assert.False(t, SettlementInconsistent.CanTransition(SettlementCompensated))
	assert.False(t, SettlementStarted.CanTransition(SettlementReserved))

	assert.True(t, SettlementInconsistent.Terminal())
	assert.False(t, SettlementDebited.Terminal())

	s := Settlement{ID: "abc"}
	assert.Equal(t, "debit:abc", s.DebitOperationID())
	assert.Equal(t, "refund:abc", s.RefundOperationID())
}
