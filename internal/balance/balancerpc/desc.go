package balancerpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "skymiles.balance.v1.BalanceService"

type DebitRequest struct {
	OpID    string `json:"op_id"`
	RiderID int64  `json:"rider_id"`
	Amount  int64  `json:"amount"`
}

type CreditRequest struct {
	OpID       string `json:"op_id"`
	RiderID    int64  `json:"rider_id"`
	Amount     int64  `json:"amount"`
	ReversalOf string `json:"reversal_of,omitempty"`
}

type GetBalanceRequest struct {
	RiderID int64 `json:"rider_id"`
}

type OpenAccountRequest struct {
	RiderID       int64 `json:"rider_id"`
	InitialPoints int64 `json:"initial_points"`
}

type BalanceReply struct {
	RiderID int64 `json:"rider_id"`
	Points  int64 `json:"points"`
	Applied bool  `json:"applied"`
}

type BalanceServer interface {
	Debit(context.Context, *DebitRequest) (*BalanceReply, error)
	Credit(context.Context, *CreditRequest) (*BalanceReply, error)
	GetBalance(context.Context, *GetBalanceRequest) (*BalanceReply, error)
	OpenAccount(context.Context, *OpenAccountRequest) (*BalanceReply, error)
}

func unaryHandler[Req any](method string, call func(BalanceServer, context.Context, *Req) (*BalanceReply, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BalanceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BalanceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

var BalanceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BalanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Debit", Handler: unaryHandler("Debit", BalanceServer.Debit)},
		{MethodName: "Credit", Handler: unaryHandler("Credit", BalanceServer.Credit)},
		{MethodName: "GetBalance", Handler: unaryHandler("GetBalance", BalanceServer.GetBalance)},
		{MethodName: "OpenAccount", Handler: unaryHandler("OpenAccount", BalanceServer.OpenAccount)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skymiles/balance/v1/balance",
}

func RegisterBalanceServer(s grpc.ServiceRegistrar, srv BalanceServer) {
	s.RegisterService(&BalanceServiceDesc, srv)
}
