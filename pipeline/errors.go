package pipeline

import (
	"errors"
	"fmt"
)

// ErrRejected matches every *RejectedError.
var ErrRejected = errors.New("response rejected")

// RejectedError is returned by handlers that refuse a response after looking
// at the extracted values (Validate, httpstages.Expect and friends). Err is the
// predicate's own error, if any.
type RejectedError struct {
	Key    string
	Value  any
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if reason == "" {
		reason = "validation failed"
	}
	if e.Key == "" {
		return "rejected: " + reason
	}
	return fmt.Sprintf("rejected %s=%v: %s", e.Key, e.Value, reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRejected) true for every RejectedError.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// IsRejected reports whether err is or wraps a rejection.
func IsRejected(err error) bool { return errors.Is(err, ErrRejected) }
