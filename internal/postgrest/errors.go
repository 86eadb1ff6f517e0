package postgrest

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fetch failure for retry purposes.
type ErrorKind int

const (
	// KindTransient covers network failures, timeouts, 5xx and 429
	// responses. Retried with backoff at the page level.
	KindTransient ErrorKind = iota

	// KindSchema covers unexpected response shapes and client-side
	// request errors. Never retried: no safe default exists.
	KindSchema
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// Error is a classified fetch error.
type Error struct {
	Kind  ErrorKind
	Op    string // e.g. "fetch y9c_full page 3"
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("postgrest: %s: %s error: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsTransient reports whether err is a retryable fetch error.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTransient
}

func transientErr(op string, cause error) *Error {
	return &Error{Kind: KindTransient, Op: op, Cause: cause}
}

func schemaErr(op string, cause error) *Error {
	return &Error{Kind: KindSchema, Op: op, Cause: cause}
}
