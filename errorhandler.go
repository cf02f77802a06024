package stagez

import "context"

// ErrorHandler is the error-handling stage's middleware shape: a best-effort
// observer invoked with the captured failure and the request Context when an
// execution takes the failure path. Typical uses are logging with request
// context, releasing reserved resources, and sending alerts.
//
// Error handlers never affect the outcome of Execute. A handler that itself
// fails (or panics) is counted and emitted as a hook event, and the remaining
// handlers still run.
type ErrorHandler[Req any] struct {
	fn   func(context.Context, error, *Context[Req]) error
	name Name
}

// NewErrorHandler creates a named ErrorHandler from fn.
//
// Example:
//
//	audit := stagez.NewErrorHandler("audit-failure",
//	    func(_ context.Context, err error, rc *stagez.Context[Request]) error {
//	        return auditLog.Write(rc.RequestID(), err)
//	    })
func NewErrorHandler[Req any](name Name, fn func(context.Context, error, *Context[Req]) error) ErrorHandler[Req] {
	return ErrorHandler[Req]{name: name, fn: fn}
}

// Name returns the handler's name for debugging and error reporting.
func (h ErrorHandler[Req]) Name() Name {
	return h.name
}

// Handle invokes the handler. A panic in fn is converted to an error.
func (h ErrorHandler[Req]) Handle(ctx context.Context, cause error, rc *Context[Req]) (err error) {
	defer catchPanic(h.name, &err)
	return h.fn(ctx, cause, rc)
}
