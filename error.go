package stagez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error provides rich context about a pipeline execution failure. It wraps
// the underlying error with the stage it occurred in, the path of named
// middleware it passed through (outermost first), the request id, the data
// being processed, and whether the failure was a timeout or cancellation.
//
// T is the payload type at the point of failure: the request type for
// pre-processing and dispatch failures, the result type for post-processing
// failures. Callers unwrap with errors.As at the matching instantiation:
//
//	var stageErr *stagez.Error[Req]
//	if errors.As(err, &stageErr) {
//	    log.Printf("request %s failed in %s at %v",
//	        stageErr.RequestID, stageErr.Stage, stageErr.Path)
//	}
type Error[T any] struct {
	InputData T
	Err       error
	RequestID string
	Path      []Name
	Stage     Stage
	Timestamp time.Time
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface, providing a detailed error message.
func (e *Error[T]) Error() string {
	location := e.Stage.String()
	if len(e.Path) > 0 {
		location = fmt.Sprintf("%s [%s]", location, strings.Join(e.Path, " -> "))
	}
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *Error[T]) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *Error[T]) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the error was caused by cancellation.
func (e *Error[T]) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// wrapError builds an *Error[T] for a middleware failure, or prepends the
// middleware name to an existing *Error[T] from further down the chain.
func wrapError[T any](err error, stage Stage, name Name, input T, requestID string, start time.Time) *Error[T] {
	var stageErr *Error[T]
	if errors.As(err, &stageErr) {
		stageErr.Path = append([]Name{name}, stageErr.Path...)
		return stageErr
	}
	return &Error[T]{
		InputData: input,
		Err:       err,
		RequestID: requestID,
		Path:      []Name{name},
		Stage:     stage,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// isTimeoutError reports whether err is a timeout at any Error instantiation,
// without the caller needing to know the payload type.
func isTimeoutError(err error) bool {
	var t interface{ IsTimeout() bool }
	if errors.As(err, &t) {
		return t.IsTimeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// catchPanic converts a middleware panic into an error so a misbehaving
// middleware cannot unwind past Execute. Used with named error returns:
//
//	defer catchPanic(name, &err)
func catchPanic(name Name, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("middleware %q panicked: %v", name, r)
	}
}
