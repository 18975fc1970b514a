package bbb

import (
	"errors"
	"fmt"
)

// ErrMissingParameter is returned for calls made without a required local parameter.
// It indicates a programming error rather than a remote failure.
var ErrMissingParameter = errors.New("bbb: missing required parameter")

// Kind classifies a remote failure.
type Kind int

const (
	// KindTimeout means the server did not answer within the connect or read timeout.
	KindTimeout Kind = iota + 1
	// KindTransport covers other network failures (refused, DNS, TLS).
	KindTransport
	// KindHTTPStatus means a non-2xx status code.
	KindHTTPStatus
	// KindMalformed means the body was not a <response> envelope with a returncode.
	KindMalformed
	// KindFailed means the envelope reported a non-SUCCESS returncode.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindMalformed:
		return "malformed"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

const malformedMessage = "The meeting server returned a malformed response."

// Error is a remote-service failure. Message is always human readable.
type Error struct {
	Call       string
	Kind       Kind
	StatusCode int
	Body       string
	MessageKey string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("bbb %s: %s (status %d)", e.Call, e.Message, e.StatusCode)
	case KindFailed:
		if e.MessageKey != "" {
			return fmt.Sprintf("bbb %s: %s: %s", e.Call, e.MessageKey, e.Message)
		}
	}
	return fmt.Sprintf("bbb %s: %s", e.Call, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a remote failure of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
