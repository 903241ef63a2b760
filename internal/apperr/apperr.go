// Package apperr defines the error kinds surfaced by the checkout engine.
//
// Callers classify failures with errors.Is against the exported sentinels or
// with KindOf, never by matching message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Error is a classified engine error. Two errors match under errors.Is when
// their codes are equal, so a wrapped or re-described sentinel still matches.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

var (
	ErrValidation            = &Error{Kind: KindValidation, Code: "validation", Msg: "invalid request"}
	ErrEmptyCart             = &Error{Kind: KindValidation, Code: "empty_cart", Msg: "cart is empty"}
	ErrQuantityLimitExceeded = &Error{Kind: KindValidation, Code: "quantity_limit_exceeded", Msg: "quantity limit exceeded"}
	ErrCurrencyMismatch      = &Error{Kind: KindValidation, Code: "currency_mismatch", Msg: "currency mismatch"}
	ErrRateUnavailable       = &Error{Kind: KindValidation, Code: "rate_unavailable", Msg: "exchange rate unavailable"}
	ErrUnsupportedCurrency   = &Error{Kind: KindValidation, Code: "unsupported_currency", Msg: "unsupported currency"}
	ErrLineNotFound          = &Error{Kind: KindValidation, Code: "line_not_found", Msg: "cart line not found"}

	ErrUnauthenticated     = &Error{Kind: KindAuth, Code: "unauthenticated", Msg: "missing or invalid credential"}
	ErrNotFoundOrForbidden = &Error{Kind: KindAuth, Code: "not_found", Msg: "not found"}

	ErrConflict  = &Error{Kind: KindConflict, Code: "conflict", Msg: "conflict"}
	ErrRetryable = &Error{Kind: KindRetryable, Code: "retryable", Msg: "temporarily unavailable"}
)

// Validation returns a ValidationError with a caller-facing message.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Msg: fmt.Sprintf(format, args...)}
}

// Conflict returns a ConflictError with a caller-facing message.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Code: ErrConflict.Code, Msg: fmt.Sprintf(format, args...)}
}

// Retryable marks err as a transient infrastructure failure.
func Retryable(msg string, err error) error {
	return &Error{Kind: KindRetryable, Code: ErrRetryable.Code, Msg: msg, Err: err}
}

// Wrap attaches a sentinel's kind and code to err, keeping err in the chain.
func Wrap(sentinel *Error, err error) error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: sentinel.Msg, Err: err}
}

// Describe returns sentinel with a more specific message.
func Describe(sentinel *Error, format string, args ...any) error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the code of the outermost classified error, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

func IsRetryable(err error) bool { return KindOf(err) == KindRetryable }
