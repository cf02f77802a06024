package stagez

import "context"

// Transform is a sequential payload transform for the pre-processing and
// post-processing stages. Each transform receives the current payload and the
// request Context, and returns the payload to feed to the next transform.
//
// T is the payload type: the request type when registered under
// pre-processing, the result type under post-processing. Req is the request
// type the Context carries.
//
// When a transform fails, its effect on the payload is discarded and the
// error is appended to the Context. With error recovery enabled the stage
// continues from the payload as it was before the failing transform; with
// recovery disabled the stage aborts and the failure propagates.
//
// Transforms are immutable values; create them with NewTransform and register
// them with Pipeline.PreProcessing or Pipeline.PostProcessing.
type Transform[T, Req any] struct {
	fn   func(context.Context, T, *Context[Req]) (T, error)
	name Name
}

// NewTransform creates a named Transform from fn.
//
// Example:
//
//	validate := stagez.NewTransform("validate-method",
//	    func(_ context.Context, r Request, _ *stagez.Context[Request]) (Request, error) {
//	        if !allowedMethods[r.Method] {
//	            return r, fmt.Errorf("method %q not allowed", r.Method)
//	        }
//	        return r, nil
//	    })
func NewTransform[T, Req any](name Name, fn func(context.Context, T, *Context[Req]) (T, error)) Transform[T, Req] {
	return Transform[T, Req]{name: name, fn: fn}
}

// Name returns the transform's name for debugging and error reporting.
func (t Transform[T, Req]) Name() Name {
	return t.name
}

// Apply invokes the transform. A panic in fn is converted to an error rather
// than unwinding past the caller.
func (t Transform[T, Req]) Apply(ctx context.Context, payload T, rc *Context[Req]) (result T, err error) {
	defer catchPanic(t.name, &err)
	return t.fn(ctx, payload, rc)
}
