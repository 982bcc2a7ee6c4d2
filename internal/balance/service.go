package balance

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/google/uuid"
)

// UseCase is the Balance Service: per-rider points balances changed only through idempotent operations.
type UseCase interface {
	OpenAccount(ctx context.Context, riderID, initialPoints int64) (*domain.RiderBalance, error)
	Debit(ctx context.Context, opID string, riderID, amount int64) (*domain.BalanceResult, error)
	// Credit adds amount, or, when reversalOf is set, gives back exactly what that debit took.
	Credit(ctx context.Context, opID string, riderID, amount int64, reversalOf string) (*domain.BalanceResult, error)
	GetBalance(ctx context.Context, riderID int64) (*domain.RiderBalance, error)
}

type Service struct {
	repo   repository.BalanceRepository
	logger *slog.Logger
}

func NewService(repo repository.BalanceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) OpenAccount(ctx context.Context, riderID, initialPoints int64) (*domain.RiderBalance, error) {
	if riderID <= 0 {
		return nil, domain.ErrInvalidRider
	}
	if initialPoints < 0 {
		return nil, domain.ErrInvalidAmount
	}
	return s.repo.Open(ctx, riderID, initialPoints)
}

func (s *Service) Debit(ctx context.Context, opID string, riderID, amount int64) (*domain.BalanceResult, error) {
	if riderID <= 0 {
		return nil, domain.ErrInvalidRider
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	op := domain.BalanceOperation{ID: opIDOrNew(opID, "debit"), RiderID: riderID, Kind: domain.OperationDebit, Amount: amount}
	res, err := s.repo.Apply(ctx, op)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "balance debited", "op_id", op.ID, "rider_id", riderID, "amount", amount, "applied", res.Applied)
	return res, nil
}

func (s *Service) Credit(ctx context.Context, opID string, riderID, amount int64, reversalOf string) (*domain.BalanceResult, error) {
	if riderID <= 0 {
		return nil, domain.ErrInvalidRider
	}
	op := domain.BalanceOperation{ID: opIDOrNew(opID, "credit"), RiderID: riderID, Kind: domain.OperationCredit, Amount: amount}
	if reversalOf != "" {
		op.Kind = domain.OperationReversal
		op.ReversalOf = reversalOf
		op.Amount = 0
	} else if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	res, err := s.repo.Apply(ctx, op)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "balance credited", "op_id", op.ID, "rider_id", riderID, "kind", op.Kind, "reversal_of", reversalOf, "applied", res.Applied)
	return res, nil
}

func (s *Service) GetBalance(ctx context.Context, riderID int64) (*domain.RiderBalance, error) {
	if riderID <= 0 {
		return nil, domain.ErrInvalidRider
	}
	return s.repo.Get(ctx, riderID)
}

func opIDOrNew(opID, prefix string) string {
	if opID != "" {
		return opID
	}
	return prefix + ":" + uuid.NewString()
}

var _ UseCase = (*Service)(nil)
