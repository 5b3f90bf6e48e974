package types

import "fmt"

// Code is one of the closed set of negative-integer error codes from §6.
// Components return *Error (which satisfies the error interface) rather
// than ambient exceptions, per §7's typed result/status discipline.
type Code int32

const (
	CodeNone Code = 0

	CodePoolNotInitialised Code = -1
	CodePoolAlreadyInit    Code = -2
	CodeInvalidTickRange   Code = -3
	CodeInsufficientLiq    Code = -4
	CodePriceLimitExceeded Code = -5
	CodeInvalidCurrency    Code = -6

	CodeInsufficientBalance Code = -10
	CodeInsufficientMargin  Code = -11
	CodePositionNotFound    Code = -12
	CodeOrderNotFound       Code = -13
	CodeMarketNotFound      Code = -14
	CodeNotLiquidatable     Code = -15

	CodePriceStale        Code = -20
	CodeOracleUnavailable Code = -21

	CodeReentrancy   Code = -30
	CodeUnauthorized Code = -40
	CodeInternal     Code = -101
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodePoolNotInitialised:
		return "pool_not_initialised"
	case CodePoolAlreadyInit:
		return "pool_already_initialised"
	case CodeInvalidTickRange:
		return "invalid_tick_range"
	case CodeInsufficientLiq:
		return "insufficient_liquidity"
	case CodePriceLimitExceeded:
		return "price_limit_exceeded"
	case CodeInvalidCurrency:
		return "invalid_currency"
	case CodeInsufficientBalance:
		return "insufficient_balance"
	case CodeInsufficientMargin:
		return "insufficient_margin"
	case CodePositionNotFound:
		return "position_not_found"
	case CodeOrderNotFound:
		return "order_not_found"
	case CodeMarketNotFound:
		return "market_not_found"
	case CodeNotLiquidatable:
		return "not_liquidatable"
	case CodePriceStale:
		return "price_stale"
	case CodeOracleUnavailable:
		return "oracle_unavailable"
	case CodeReentrancy:
		return "reentrancy"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the canonical error type returned by fallible core operations.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Err builds an *Error with the given code and formatted message.
func Err(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err, or CodeInternal if err is not a
// *Error (an invariant violation in itself — every fallible path here
// should return a typed error).
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInternal
}
