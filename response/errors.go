package response

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrReleased is returned when an unread body is requested after Release.
var ErrReleased = errors.New("response already released")

// ErrDecode matches every *DecodeError.
var ErrDecode = errors.New("decode response body")

// ErrUnexpectedContentType is wrapped by a DecodeError when the response
// Content-Type does not match what the decoder expects.
var ErrUnexpectedContentType = errors.New("unexpected content type")

// ClientError is the transport's category of expected operational failures:
// connection errors, timeouts, protocol violations, redirect limits and body
// read failures. It never reaches a handler as input; handlers only see it when
// their own body read fails.
type ClientError struct {
	Op     string // "send", "read body", "rate limit", "build request"
	Method string
	URL    string
	Err    error
}

func (e *ClientError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Method, e.URL, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was caused by a deadline.
func (e *ClientError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// IsClientError reports whether err is or wraps a *ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// DecodeError reports that the response body could not be decoded as Format
// ("text" or "json").
type DecodeError struct {
	Format      string
	ContentType string
	Err         error
}

func (e *DecodeError) Error() string {
	if e.ContentType == "" {
		return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode %s (content-type %q): %v", e.Format, e.ContentType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) true for every DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
