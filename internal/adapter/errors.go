package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a feed error for recovery purposes. Transport,
// protocol, rate-limit and shape problems are recovered locally by the
// strategies and never surface to consumers; misuse surfaces
// synchronously; cancellation is invisible.
type Kind string

const (
	KindTransport Kind = "transport"
	KindProtocol  Kind = "protocol"
	KindRateLimit Kind = "rate_limit"
	KindShape     Kind = "shape"
	KindCancelled Kind = "cancelled"
	KindMisuse    Kind = "misuse"
)

// Error is the shared error shape for everything the feed runtime and
// the exchange adapters produce.
type Error struct {
	Exchange   string
	Kind       Kind
	Message    string
	HTTPStatus int
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Exchange, e.Kind, e.Message)
	if e.HTTPStatus > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.HTTPStatus)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Temporary reports whether a strategy should keep retrying.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindTransport, KindProtocol, KindRateLimit, KindShape:
		return true
	}
	return false
}

// NewError builds a classified error.
func NewError(exchange string, kind Kind, msg string, cause error) *Error {
	return &Error{Exchange: exchange, Kind: kind, Message: msg, Cause: cause}
}

// ShapeError marks a payload that parsed as JSON but did not match the
// venue's layout.
func ShapeError(exchange, msg string) *Error {
	return &Error{Exchange: exchange, Kind: KindShape, Message: msg}
}

// MisuseError marks a caller mistake (unknown exchange, unsupported
// interval, duplicate start). Raised synchronously, never retried.
func MisuseError(format string, args ...any) *Error {
	return &Error{Kind: KindMisuse, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification, mapping context cancellation to
// KindCancelled and anything unclassified to KindTransport.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RetryAfterOf returns the server-provided backoff hint, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		return fe.RetryAfter, true
	}
	return 0, false
}
