// Package apperr defines the error taxonomy shared by every service. Each
// failure a handler can see maps to exactly one Kind, and each Kind maps to
// exactly one HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	InvalidInput        Kind = "invalid_input"
	Unauthenticated     Kind = "unauthenticated"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	Gone                Kind = "gone"
	Conflict            Kind = "conflict"
	UpstreamUnavailable Kind = "upstream_unavailable"
	Internal            Kind = "internal"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Gone:
		return http.StatusGone
	case Conflict:
		return http.StatusConflict
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Packages declare sentinel values with New and
// compare them with errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New 创建分类错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Upstream wraps an infrastructure failure (store, blob storage, CAS) so it
// surfaces as retryable UpstreamUnavailable. Errors that are already
// classified pass through untouched.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: UpstreamUnavailable, Message: op, Err: err}
}

// Wrap attaches a cause to a sentinel while keeping errors.Is(err, sentinel)
// true.
func Wrap(sentinel *Error, cause error) error {
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// KindOf returns the kind of the first classified error in the chain, or
// Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// MessageOf returns a caller-safe message. Internal errors never leak their
// text.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == UpstreamUnavailable {
			return ae.Message + ": upstream unavailable"
		}
		return ae.Message
	}
	return "internal error"
}
