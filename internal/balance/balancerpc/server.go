package balancerpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Domenick1991/skymiles/internal/balance"
	"github.com/Domenick1991/skymiles/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	ErrorDomain = "balance.skymiles"

	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	ReasonOperationVoided     = "OPERATION_VOIDED"
)

// Server exposes a balance.UseCase over gRPC.
type Server struct {
	svc balance.UseCase
}

func NewServer(svc balance.UseCase) *Server {
	return &Server{svc: svc}
}

func (s *Server) Debit(ctx context.Context, req *DebitRequest) (*BalanceReply, error) {
	res, err := s.svc.Debit(ctx, req.OpID, req.RiderID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return resultReply(res), nil
}

func (s *Server) Credit(ctx context.Context, req *CreditRequest) (*BalanceReply, error) {
	res, err := s.svc.Credit(ctx, req.OpID, req.RiderID, req.Amount, req.ReversalOf)
	if err != nil {
		return nil, toStatus(err)
	}
	return resultReply(res), nil
}

func (s *Server) GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceReply, error) {
	b, err := s.svc.GetBalance(ctx, req.RiderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalanceReply{RiderID: b.RiderID, Points: b.Points}, nil
}

func (s *Server) OpenAccount(ctx context.Context, req *OpenAccountRequest) (*BalanceReply, error) {
	b, err := s.svc.OpenAccount(ctx, req.RiderID, req.InitialPoints)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BalanceReply{RiderID: b.RiderID, Points: b.Points, Applied: true}, nil
}

func resultReply(res *domain.BalanceResult) *BalanceReply {
	return &BalanceReply{RiderID: res.Balance.RiderID, Points: res.Balance.Points, Applied: res.Applied}
}

// NewGRPCServer builds a gRPC server with the balance API, the health service and tracing.
func NewGRPCServer(svc balance.UseCase, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	RegisterBalanceServer(srv, NewServer(svc))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "grpc call", "method", info.FullMethod, "code", code.String(), "duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientPoints):
		return withReason(codes.FailedPrecondition, err, ReasonInsufficientBalance)
	case errors.Is(err, domain.ErrOperationVoided):
		return withReason(codes.FailedPrecondition, err, ReasonOperationVoided)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return withReason(codes.NotFound, err, domain.CodeOf(err))
	case domain.KindInvalidInput:
		return withReason(codes.InvalidArgument, err, domain.CodeOf(err))
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func withReason(code codes.Code, err error, reason string) error {
	st, detailErr := status.New(code, err.Error()).WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain})
	if detailErr != nil {
		return status.Error(code, err.Error())
	}
	return st.Err()
}

// reasonOf returns the ErrorInfo reason attached to a status, if any.
func reasonOf(st *status.Status) string {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

var _ BalanceServer = (*Server)(nil)
