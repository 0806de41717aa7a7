// Package failure defines the error kinds every resolution step reports.
//
// Call sites convert whatever went wrong (network faults, bad status codes,
// malformed payloads, panics) into an *Error carrying one Kind, so that a
// chain can decide whether to fall through to its next tier and the caller
// always receives a human-readable message.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// Kind classifies a failure
type Kind string

const (
	Timeout              Kind = "timeout"
	ConnectionFailed     Kind = "connection_failed"
	HTTPError            Kind = "http_error"
	NoEntriesFound       Kind = "no_entries_found"
	AllBackendsExhausted Kind = "all_backends_exhausted"
	SessionExpired       Kind = "session_expired"
	SizeLimitExceeded    Kind = "size_limit_exceeded"
	UnexpectedFailure    Kind = "unexpected_failure"
)

// Transient reports whether a failure of this kind is worth retrying in place.
func (k Kind) Transient() bool {
	return k == Timeout || k == ConnectionFailed
}

// Error is the typed error carried through resolver chains
type Error struct {
	Kind       Kind
	StatusCode int    // set for HTTPError
	Message    string // human-readable
	Raw        any    // raw diagnostic payload, kept for logging
	Err        error  // underlying cause
}

func (e *Error) Error() string {
	if e.Kind == HTTPError && e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and message
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err and attaches a message. An err that already is an
// *Error keeps its kind.
func Wrap(err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	var fe *Error
	if errors.As(err, &fe) {
		return &Error{
			Kind:       fe.Kind,
			StatusCode: fe.StatusCode,
			Message:    msg + ": " + fe.Message,
			Raw:        fe.Raw,
			Err:        err,
		}
	}
	return &Error{Kind: KindOf(err), Message: msg + ": " + err.Error(), Err: err}
}

// HTTPStatus creates an HTTPError for an unexpected response status
func HTTPStatus(code int, endpoint string, body []byte) *Error {
	return &Error{
		Kind:       HTTPError,
		StatusCode: code,
		Message:    fmt.Sprintf("request to %s failed", endpoint),
		Raw:        string(body),
	}
}

// WithRaw returns a copy of e holding the raw diagnostic payload
func (e *Error) WithRaw(raw any) *Error {
	c := *e
	c.Raw = raw
	return &c
}

// KindOf maps any error onto a Kind. Errors that cannot be classified are
// UnexpectedFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	var k interface{ FailureKind() Kind }
	if errors.As(err, &k) {
		return k.FailureKind()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ConnectionFailed
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ConnectionFailed
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ConnectionFailed
	}

	return UnexpectedFailure
}

// StatusCodeOf returns the HTTP status code carried by err, or 0
func StatusCodeOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
