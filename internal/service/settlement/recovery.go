package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

var recoverableStates = []domain.SettlementState{
	domain.SettlementStarted,
	domain.SettlementDebited,
	domain.SettlementCompensationPending,
}

// Recover drives settlements that stopped mid-way, for example after a crash, to a final state.
// Only settlements untouched for olderThan are considered. INCONSISTENT ones are left for operators.
func (c *Coordinator) Recover(ctx context.Context, olderThan time.Duration) (*RecoverySummary, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.Recover")
	defer span.End()

	stale, err := c.settlements.ListStale(ctx, recoverableStates, c.now().Add(-olderThan))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summary := &RecoverySummary{Scanned: len(stale)}
	for i := range stale {
		if ctx.Err() != nil {
			summary.Skipped += len(stale) - i
			break
		}
		c.recoverOne(ctx, &stale[i], summary)
	}

	span.SetAttributes(
		attribute.Int("settlements.scanned", summary.Scanned),
		attribute.Int("settlements.inconsistent", summary.Inconsistent),
	)
	if summary.Scanned > 0 {
		c.logger.InfoContext(ctx, "settlement recovery finished",
			"scanned", summary.Scanned,
			"reserved", summary.Reserved,
			"rejected", summary.Rejected,
			"compensated", summary.Compensated,
			"inconsistent", summary.Inconsistent,
			"skipped", summary.Skipped,
		)
	}
	return summary, nil
}

func (c *Coordinator) recoverOne(ctx context.Context, s *domain.Settlement, summary *RecoverySummary) {
	log := c.logger.With("settlement_id", s.ID, "state", s.State)

	if s.State == domain.SettlementStarted {
		refunded, err := c.voidDebit(ctx, s)
		if err != nil {
			log.WarnContext(ctx, "void failed during recovery", "error", err)
			summary.Skipped++
			return
		}
		to := domain.SettlementRejected
		if refunded {
			to = domain.SettlementCompensated
		}
		if err := c.transition(ctx, s, to, repository.SettlementUpdate{Reason: "abandoned before debit was confirmed"}); err != nil {
			log.WarnContext(ctx, "recovery transition failed", "error", err)
			summary.Skipped++
			return
		}
		if refunded {
			summary.Compensated++
		} else {
			summary.Rejected++
		}
		return
	}

	b, err := c.bookings.GetBySettlement(ctx, s.ID)
	switch {
	case err == nil:
		bookingID := b.ID
		if err := c.transition(ctx, s, domain.SettlementReserved, repository.SettlementUpdate{BookingID: &bookingID}); err != nil {
			log.WarnContext(ctx, "recovery transition failed", "error", err)
			summary.Skipped++
			return
		}
		summary.Reserved++
		return
	case !errors.Is(err, domain.ErrBookingNotFound):
		log.WarnContext(ctx, "could not look up booking during recovery", "error", err)
		summary.Skipped++
		return
	}

	if err := c.compensate(ctx, s, "abandoned before reservation"); err != nil {
		summary.Inconsistent++
		return
	}
	summary.Compensated++
}
