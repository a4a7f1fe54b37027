package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure so transport code can map it to a
// status code and callers can decide whether a retry makes sense.
type Kind int

const (
	KindInternal Kind = iota
	// KindForbidden: caller's role is not allowed. Never retried.
	KindForbidden
	// KindNotFound: the referenced entity does not exist.
	KindNotFound
	// KindValidation: business rejection with a human-readable reason.
	KindValidation
	// KindUpstream: a collaborator was unreachable, timed out, or rejected
	// the call. The whole operation may be retried by the caller.
	KindUpstream
	// KindInconsistency: a local commit succeeded but a remote effect could
	// not be confirmed. The system needs reconciliation, not a plain retry.
	KindInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream_unavailable"
	case KindInconsistency:
		return "inconsistency"
	default:
		return "internal"
	}
}

// StatusCode maps a kind to the RPC envelope status code.
func (k Kind) StatusCode() int {
	switch k {
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindValidation:
		return 400
	case KindUpstream:
		return 502
	case KindInconsistency:
		return 409
	default:
		return 500
	}
}

// Error is the failure type every service operation returns.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two *Error values by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Upstream(err error, format string, args ...any) *Error {
	return Wrap(KindUpstream, err, format, args...)
}

func Inconsistency(err error, format string, args ...any) *Error {
	return Wrap(KindInconsistency, err, format, args...)
}

// KindOf extracts the kind from any error chain; unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the human-readable reason, falling back to Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// FromStatusCode rebuilds a typed error from an RPC error envelope.
func FromStatusCode(code int, message string) *Error {
	switch code {
	case 403:
		return New(KindForbidden, "%s", message)
	case 404:
		return New(KindNotFound, "%s", message)
	case 400:
		return New(KindValidation, "%s", message)
	case 502:
		return New(KindUpstream, "%s", message)
	case 409:
		return New(KindInconsistency, "%s", message)
	default:
		return New(KindInternal, "%s", message)
	}
}
