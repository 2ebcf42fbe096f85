// Package apperr defines the error taxonomy shared by all server components.
// Components return *Error values; the HTTP boundary maps Kind to a status
// code and serialises Detail/Fields into the response body.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	Validation          Kind = "validation"
	Unauthenticated     Kind = "unauthenticated"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	PreconditionFailed  Kind = "precondition_failed"
	RateLimited         Kind = "rate_limited"
	Unavailable         Kind = "unavailable"
	Internal            Kind = "internal"

	// Gone marks soft-deleted resources addressed directly (e.g. a
	// heartbeat against a deleted workspace).
	Gone Kind = "gone"
)

// Error carries a taxonomy kind, a human-readable detail, and optional
// structured fields surfaced to the client.
type Error struct {
	Kind   Kind
	Detail string
	Fields map[string]any
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an error of the given kind with a formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause while keeping the kind and detail client-facing.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

// WithFields returns a copy carrying structured fields.
func (e *Error) WithFields(fields map[string]any) *Error {
	clone := *e
	clone.Fields = fields
	return &clone
}

// KindOf extracts the taxonomy kind from err, defaulting to Internal for
// untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case PreconditionFailed:
		return http.StatusPreconditionFailed
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	case Gone:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
