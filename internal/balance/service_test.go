package balance

import (
	"context"
	"strings"
	"testing"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) Open(ctx context.Context, riderID int64, initialPoints int64) (*domain.RiderBalance, error) {
	args := m.Called(ctx, riderID, initialPoints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RiderBalance), args.Error(1)
}

func (m *MockBalanceRepository) Get(ctx context.Context, riderID int64) (*domain.RiderBalance, error) {
	args := m.Called(ctx, riderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RiderBalance), args.Error(1)
}

func (m *MockBalanceRepository) Apply(ctx context.Context, op domain.BalanceOperation) (*domain.BalanceResult, error) {
	args := m.Called(ctx, op)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BalanceResult), args.Error(1)
}

func TestService_Validation(t *testing.T) {
	repo := new(MockBalanceRepository)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.OpenAccount(ctx, 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidRider)
	_, err = svc.OpenAccount(ctx, 1, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.Debit(ctx, "op", 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.Credit(ctx, "op", 1, -5, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.GetBalance(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidRider)

	repo.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestService_CreditWithReversalBuildsReversal(t *testing.T) {
	repo := new(MockBalanceRepository)
	svc := NewService(repo, nil)

	repo.On("Apply", mock.Anything, domain.BalanceOperation{ID: "refund:s", RiderID: 3, Kind: domain.OperationReversal, ReversalOf: "debit:s"}).
		Return(&domain.BalanceResult{Balance: domain.RiderBalance{RiderID: 3, Points: 500}, Applied: true}, nil)

	res, err := svc.Credit(context.Background(), "refund:s", 3, 999, "debit:s")
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Balance.Points)
	repo.AssertExpectations(t)
}

func TestService_GeneratesOperationID(t *testing.T) {
	repo := new(MockBalanceRepository)
	svc := NewService(repo, nil)

	repo.On("Apply", mock.Anything, mock.MatchedBy(func(op domain.BalanceOperation) bool {
		return strings.HasPrefix(op.ID, "credit:") && op.Kind == domain.OperationCredit && op.Amount == 40
	})).Return(&domain.BalanceResult{Applied: true}, nil)

	_, err := svc.Credit(context.Background(), "", 3, 40, "")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_AgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repository.NewMemoryBalances(), nil)

	_, err := svc.OpenAccount(ctx, 1, 100)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, "debit:x", 1, 150)
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	res, err := svc.Debit(ctx, "debit:x", 1, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Balance.Points)

	res, err = svc.Credit(ctx, "refund:x", 1, 0, "debit:x")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Balance.Points)

	b, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Points)
}
