package stagez

import "context"

// CleanupHandler is the cleanup stage's middleware shape: best-effort
// teardown invoked with the request Context after every execution, whether it
// succeeded, failed, recovered, or timed out. Cleanup runs exactly once per
// Execute call, before the Context leaves the active-context registry.
//
// A handler that fails (or panics) is counted and emitted as a hook event,
// and the remaining handlers still run - nothing a cleanup handler does can
// change the outcome of Execute.
type CleanupHandler[Req any] struct {
	fn   func(context.Context, *Context[Req]) error
	name Name
}

// NewCleanup creates a named CleanupHandler from fn.
//
// Example:
//
//	release := stagez.NewCleanup("release-buffers",
//	    func(_ context.Context, rc *stagez.Context[Request]) error {
//	        if buf, ok := rc.GetScoped("body-reader", "buffer"); ok {
//	            bufferPool.Put(buf)
//	        }
//	        return nil
//	    })
func NewCleanup[Req any](name Name, fn func(context.Context, *Context[Req]) error) CleanupHandler[Req] {
	return CleanupHandler[Req]{name: name, fn: fn}
}

// Name returns the handler's name for debugging and error reporting.
func (h CleanupHandler[Req]) Name() Name {
	return h.name
}

// Run invokes the handler. A panic in fn is converted to an error.
func (h CleanupHandler[Req]) Run(ctx context.Context, rc *Context[Req]) (err error) {
	defer catchPanic(h.name, &err)
	return h.fn(ctx, rc)
}
