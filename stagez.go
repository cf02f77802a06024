// Package stagez provides a type-safe, staged middleware execution engine for Go.
//
// # Overview
//
// stagez runs a request through five fixed stages - pre-processing, request
// handling, post-processing, error handling, and cleanup - with a guaranteed
// cleanup phase and uniform error containment. It is the in-process core a web
// layer calls once per inbound request, after a router has already selected
// the terminal handler; routing, serialization, and concrete request/response
// types stay outside the engine.
//
// # Core Concepts
//
// Each stage family has its own middleware shape, created with adapter
// functions and registered on a Pipeline:
//
//   - Transform[T, Req]: sequential payload transforms for pre- and
//     post-processing, created with NewTransform
//   - Interceptor[Req, Res]: onion-composed request middleware that receives a
//     next continuation and may short-circuit, created with NewInterceptor
//   - ErrorHandler[Req]: best-effort observers of a failed execution, created
//     with NewErrorHandler
//   - CleanupHandler[Req]: best-effort teardown that always runs, created with
//     NewCleanup
//
// Design philosophy:
//   - Middleware are immutable values (simple functions wrapped with a name)
//   - The Pipeline is a mutable pointer (configured container with state)
//
// Interceptors compose through Chain into a single handler: the first
// registered interceptor is outermost, and any interceptor can skip everything
// downstream simply by not invoking next.
//
// # Execution Model
//
// Execute creates a per-request Context, runs pre-processing transforms over
// the request, dispatches through the interceptor chain to the handler, runs
// post-processing transforms over the result, and returns. Any failure jumps
// to the error-handling stage; cleanup runs unconditionally, exactly once, and
// the Context is always removed from the active-context registry. With error
// recovery enabled, failures produce a safe recovery payload instead of
// propagating to the caller.
//
// # Usage Example
//
//	type Req struct{ Method, Path string }
//	type Res struct{ Status int }
//
//	pipe := stagez.NewPipeline[Req, Res]("api", stagez.DefaultConfig())
//	pipe.PreProcessing(stagez.NewTransform("normalize",
//	    func(_ context.Context, r Req, _ *stagez.Context[Req]) (Req, error) {
//	        r.Path = strings.ToLower(r.Path)
//	        return r, nil
//	    }))
//	pipe.Use(stagez.NewInterceptor("auth",
//	    func(ctx context.Context, r Req, next stagez.Handler[Req, Res]) (Res, error) {
//	        if r.Method == "TRACE" {
//	            return Res{Status: 405}, nil // short-circuit
//	        }
//	        return next(ctx, r)
//	    }))
//
//	res, err := pipe.Execute(ctx, req, handler)
//
// Context support provides timeout control and cancellation; the Config budget
// MaxExecutionTime bounds the whole of pre-processing, dispatch, and
// post-processing, and an expired budget still runs error handling and cleanup.
package stagez

import "context"

// Name identifies middleware and pipelines for debugging and error reporting.
// Using this type encourages storing names as constants rather than using
// inline strings throughout your code.
//
// Example:
//
//	const (
//	    ValidateRequestName Name = "validate-request"
//	    AuthInterceptorName Name = "auth"
//	)
type Name = string

// Stage identifies one of the five fixed phases a request passes through.
// Middleware registered under a stage is only ever invoked under that stage's
// execution model: transforms run sequentially, interceptors compose into a
// chain, and error/cleanup handlers run best-effort.
type Stage int

// The five pipeline stages, in execution order.
const (
	StagePreProcessing Stage = iota
	StageRequestHandling
	StagePostProcessing
	StageErrorHandling
	StageCleanup
)

// String returns the stage's name for logs and error messages.
func (s Stage) String() string {
	switch s {
	case StagePreProcessing:
		return "pre_processing"
	case StageRequestHandling:
		return "request_handling"
	case StagePostProcessing:
		return "post_processing"
	case StageErrorHandling:
		return "error_handling"
	case StageCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// Stages lists all pipeline stages in execution order, for introspection.
var Stages = []Stage{
	StagePreProcessing,
	StageRequestHandling,
	StagePostProcessing,
	StageErrorHandling,
	StageCleanup,
}

// Handler is the terminal request handler an interceptor chain resolves to,
// and also the shape of the next continuation passed to each interceptor.
// A web layer's router produces one per matched route.
type Handler[Req, Res any] func(context.Context, Req) (Res, error)
