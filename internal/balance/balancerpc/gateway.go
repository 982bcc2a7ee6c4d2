package balancerpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// creditBody is a partner credit. Reversals are internal to settlement and not accepted here.
type creditBody struct {
	OpID   string `json:"op_id"`
	Amount int64  `json:"amount"`
}

type openBody struct {
	InitialPoints int64 `json:"initial_points"`
}

// NewGateway maps the REST routes of the balance API onto srv. Errors are rendered by the
// gateway's status error handler, so HTTP codes follow runtime.HTTPStatusFromCode.
func NewGateway(srv BalanceServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	marshaler := &runtime.JSONPb{}

	fail := func(w http.ResponseWriter, r *http.Request, err error) {
		runtime.HTTPError(r.Context(), mux, marshaler, w, r, err)
	}

	routes := []struct {
		method, pattern string
		handle          func(r *http.Request, riderID int64) (*BalanceReply, int, error)
	}{
		{http.MethodGet, "/v1/riders/{rider_id}/balance", func(r *http.Request, riderID int64) (*BalanceReply, int, error) {
			reply, err := srv.GetBalance(r.Context(), &GetBalanceRequest{RiderID: riderID})
			return reply, http.StatusOK, err
		}},
		{http.MethodPost, "/v1/riders/{rider_id}", func(r *http.Request, riderID int64) (*BalanceReply, int, error) {
			var body openBody
			if err := decodeBody(r, &body); err != nil {
				return nil, 0, err
			}
			reply, err := srv.OpenAccount(r.Context(), &OpenAccountRequest{RiderID: riderID, InitialPoints: body.InitialPoints})
			return reply, http.StatusCreated, err
		}},
		{http.MethodPost, "/v1/riders/{rider_id}/credit", func(r *http.Request, riderID int64) (*BalanceReply, int, error) {
			var body creditBody
			if err := decodeBody(r, &body); err != nil {
				return nil, 0, err
			}
			reply, err := srv.Credit(r.Context(), &CreditRequest{OpID: body.OpID, RiderID: riderID, Amount: body.Amount})
			return reply, http.StatusOK, err
		}},
	}

	for _, rt := range routes {
		handle := rt.handle
		err := mux.HandlePath(rt.method, rt.pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			riderID, err := strconv.ParseInt(params["rider_id"], 10, 64)
			if err != nil {
				fail(w, r, status.Error(codes.InvalidArgument, "rider_id must be an integer"))
				return
			}
			reply, code, err := handle(r, riderID)
			if err != nil {
				fail(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(reply)
		})
		if err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request body")
	}
	return nil
}
