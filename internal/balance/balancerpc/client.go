package balancerpc

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/skymiles/internal/domain"
	"github.com/Domenick1991/skymiles/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Client calls the balance service. Every call runs under its own timeout and failures are
// translated back into domain errors; anything that leaves the outcome unknown becomes
// domain.ErrBalanceUnavailable.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	metrics *metrics.Metrics
}

type ClientOption func(*Client)

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(address string, timeout time.Duration, dialOpts []grpc.DialOption, opts ...ClientOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(address, append(base, dialOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial balance service: %w", err)
	}

	c := &Client{conn: conn, timeout: timeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Debit(ctx context.Context, opID string, riderID, amount int64) (*domain.BalanceResult, error) {
	var reply BalanceReply
	if err := c.invoke(ctx, "Debit", &DebitRequest{OpID: opID, RiderID: riderID, Amount: amount}, &reply); err != nil {
		return nil, err
	}
	return replyResult(&reply), nil
}

func (c *Client) Credit(ctx context.Context, opID string, riderID, amount int64, reversalOf string) (*domain.BalanceResult, error) {
	var reply BalanceReply
	if err := c.invoke(ctx, "Credit", &CreditRequest{OpID: opID, RiderID: riderID, Amount: amount, ReversalOf: reversalOf}, &reply); err != nil {
		return nil, err
	}
	return replyResult(&reply), nil
}

func (c *Client) GetBalance(ctx context.Context, riderID int64) (*domain.RiderBalance, error) {
	var reply BalanceReply
	if err := c.invoke(ctx, "GetBalance", &GetBalanceRequest{RiderID: riderID}, &reply); err != nil {
		return nil, err
	}
	return &domain.RiderBalance{RiderID: reply.RiderID, Points: reply.Points}, nil
}

func (c *Client) OpenAccount(ctx context.Context, riderID, initialPoints int64) (*domain.RiderBalance, error) {
	var reply BalanceReply
	if err := c.invoke(ctx, "OpenAccount", &OpenAccountRequest{RiderID: riderID, InitialPoints: initialPoints}, &reply); err != nil {
		return nil, err
	}
	return &domain.RiderBalance{RiderID: reply.RiderID, Points: reply.Points}, nil
}

// Ping asks the health service whether the balance API is serving.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fromStatus(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", domain.ErrBalanceUnavailable, resp.GetStatus())
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.conn.Invoke(ctx, fullMethod(method), req, reply)
	if c.metrics != nil {
		c.metrics.BalanceCalls.WithLabelValues(method, status.Code(err).String()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fromStatus(err)
	}
	return nil
}

func replyResult(r *BalanceReply) *domain.BalanceResult {
	return &domain.BalanceResult{
		Balance: domain.RiderBalance{RiderID: r.RiderID, Points: r.Points},
		Applied: r.Applied,
	}
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrBalanceUnavailable, err)
	}

	switch st.Code() {
	case codes.NotFound:
		return domain.ErrRiderNotFound
	case codes.FailedPrecondition:
		switch reasonOf(st) {
		case ReasonInsufficientBalance:
			return domain.ErrInsufficientPoints
		case ReasonOperationVoided:
			return domain.ErrOperationVoided
		}
	case codes.InvalidArgument:
		switch reasonOf(st) {
		case domain.ErrInvalidRider.Code:
			return domain.ErrInvalidRider
		default:
			return domain.ErrInvalidAmount
		}
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrBalanceUnavailable, st.Code(), st.Message())
}
