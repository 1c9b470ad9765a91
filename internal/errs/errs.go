// Package errs defines the relay's exhaustive error-kind taxonomy (spec §7).
// Components return *Error values; the HTTP surface maps Kind to a status
// code and a machine-readable reason tag.
package errs

import "fmt"

// Kind is one of the exhaustive error kinds the core may return.
type Kind string

const (
	Malformed       Kind = "malformed"
	Unauthenticated Kind = "unauthenticated"
	Forbidden       Kind = "forbidden"
	NotFound        Kind = "not-found"
	Conflict        Kind = "conflict"
	QuotaExceeded   Kind = "quota-exceeded"
	PaymentRequired Kind = "payment-required"
	PaymentInvalid  Kind = "payment-invalid"
	PayloadTooLarge Kind = "payload-too-large"
	RateLimited     Kind = "rate-limited"
	Transient       Kind = "transient"
	Backend         Kind = "backend"
	Invariant       Kind = "invariant"
	Disabled        Kind = "disabled"
)

// Error is the typed error every component boundary returns.
type Error struct {
	Kind   Kind
	Reason string // machine tag, e.g. "path-escape"
	Msg    string // human message
	Err    error  // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error with a reason tag.
func New(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Msg: msg}
}

// Wrap builds a typed error around an existing cause.
func Wrap(kind Kind, reason, msg string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Msg: msg, Err: err}
}

// Of extracts *Error from err, if any.
func Of(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// KindOf returns the Kind of err, or Backend if err is not a typed Error.
func KindOf(err error) Kind {
	if e, ok := Of(err); ok {
		return e.Kind
	}
	return Backend
}
