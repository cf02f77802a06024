package stagez

import (
	"context"
	"time"
)

// Interceptor is the request-handling stage's middleware shape. An
// interceptor receives the request and a next continuation resolving to the
// rest of the chain and, finally, the terminal handler. It may transform the
// request before calling next, inspect or replace the result after next
// returns, or short-circuit the entire chain by returning its own result
// without invoking next at all.
//
// Interceptors are immutable values; create them with NewInterceptor (or
// When for predicate-gated variants) and register them with Pipeline.Use.
// They compose into a single Handler via Chain: first registered is
// outermost.
type Interceptor[Req, Res any] struct {
	fn   func(context.Context, Req, Handler[Req, Res]) (Res, error)
	name Name
}

// NewInterceptor creates a named Interceptor from fn.
//
// Example - short-circuiting auth check:
//
//	auth := stagez.NewInterceptor("require-token",
//	    func(ctx context.Context, r Request, next stagez.Handler[Request, Response]) (Response, error) {
//	        if r.Headers["Authorization"] == "" {
//	            return Response{Status: 401}, nil
//	        }
//	        return next(ctx, r)
//	    })
func NewInterceptor[Req, Res any](name Name, fn func(context.Context, Req, Handler[Req, Res]) (Res, error)) Interceptor[Req, Res] {
	return Interceptor[Req, Res]{name: name, fn: fn}
}

// Name returns the interceptor's name for debugging and error reporting.
func (i Interceptor[Req, Res]) Name() Name {
	return i.name
}

// Handle invokes the interceptor with the given continuation. Failures from
// fn, from downstream interceptors, or from the terminal handler surface as
// an *Error[Req] whose path starts with this interceptor's name. A panic in
// fn is converted to an error.
func (i Interceptor[Req, Res]) Handle(ctx context.Context, request Req, next Handler[Req, Res]) (Res, error) {
	start := time.Now()
	result, err := i.invoke(ctx, request, next)
	if err != nil {
		var zero Res
		return zero, wrapError(err, StageRequestHandling, i.name, request, "", start)
	}
	return result, nil
}

func (i Interceptor[Req, Res]) invoke(ctx context.Context, request Req, next Handler[Req, Res]) (result Res, err error) {
	defer catchPanic(i.name, &err)
	return i.fn(ctx, request, next)
}
