package domain

import "errors"

// Kind groups declared errors by how callers should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindUpstreamUnavailable
	// KindInconsistent needs operator reconciliation; it is never retried automatically.
	KindInconsistent
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvalidInput:
		return "InvalidInput"
	case KindUpstreamUnavailable:
		return "UpstreamUnavailable"
	case KindInconsistent:
		return "Inconsistent"
	default:
		return "Internal"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrFlightNotFound         = &Error{Kind: KindNotFound, Code: "FlightNotFound", Message: "flight not found"}
	ErrRiderNotFound          = &Error{Kind: KindNotFound, Code: "RiderNotFound", Message: "rider not found"}
	ErrSettlementNotFound     = &Error{Kind: KindNotFound, Code: "SettlementNotFound", Message: "settlement not found"}
	ErrBookingNotFound        = &Error{Kind: KindNotFound, Code: "BookingNotFound", Message: "booking not found"}
	ErrInsufficientCapacity   = &Error{Kind: KindConflict, Code: "InsufficientCapacity", Message: "not enough capacity on this flight"}
	ErrInsufficientPoints     = &Error{Kind: KindConflict, Code: "InsufficientPoints", Message: "not enough points"}
	ErrOperationVoided        = &Error{Kind: KindConflict, Code: "OperationVoided", Message: "operation was voided"}
	ErrDuplicateRequest       = &Error{Kind: KindConflict, Code: "DuplicateRequest", Message: "request with this idempotency key is in progress"}
	ErrCycleInProgress        = &Error{Kind: KindConflict, Code: "CycleInProgress", Message: "award cycle already running"}
	ErrInvalidPartySize       = &Error{Kind: KindInvalidInput, Code: "InvalidPartySize", Message: "party size must be positive"}
	ErrInvalidRider           = &Error{Kind: KindInvalidInput, Code: "InvalidRider", Message: "rider id must be positive"}
	ErrInvalidAmount          = &Error{Kind: KindInvalidInput, Code: "InvalidAmount", Message: "amount must be positive"}
	ErrInvalidFlight          = &Error{Kind: KindInvalidInput, Code: "InvalidFlight", Message: "invalid flight"}
	ErrInvalidPaymentMethod   = &Error{Kind: KindInvalidInput, Code: "InvalidPaymentMethod", Message: "payment method must be cash or points"}
	ErrBalanceUnavailable     = &Error{Kind: KindUpstreamUnavailable, Code: "BalanceServiceUnavailable", Message: "balance service unavailable"}
	ErrSettlementInconsistent = &Error{Kind: KindInconsistent, Code: "SettlementInconsistent", Message: "points were debited and could not be refunded; reconciliation required"}
)

// KindOf returns the kind of the first declared error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first declared error in err's chain, or "Internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}

// IsDeclared reports whether err carries a declared outcome rather than an unknown failure.
func IsDeclared(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind != KindUpstreamUnavailable && e.Kind != KindInternal
}
