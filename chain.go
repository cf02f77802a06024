package stagez

import "context"

// Chain composes interceptors and a terminal handler into a single Handler.
//
// The interceptors wrap the handler in registration order: invoking the
// returned Handler runs interceptors[0] first, its next continuation resolves
// to interceptors[1], and so on down to handler. An interceptor that returns
// without invoking next skips every downstream interceptor and the handler.
// With no interceptors, Chain returns handler unchanged.
//
// The composition is a right fold - built last-to-first so the first
// registered interceptor ends up outermost:
//
//	wrapped := handler
//	for i := n-1; i >= 0; i-- {
//	    wrapped = bind(interceptors[i], wrapped)
//	}
//
// Chain is what Pipeline.Execute dispatches through, but it is also usable
// standalone to compose a handler outside a pipeline.
func Chain[Req, Res any](handler Handler[Req, Res], interceptors ...Interceptor[Req, Res]) Handler[Req, Res] {
	wrapped := handler
	for i := len(interceptors) - 1; i >= 0; i-- {
		mw := interceptors[i]
		next := wrapped
		wrapped = func(ctx context.Context, request Req) (Res, error) {
			return mw.Handle(ctx, request, next)
		}
	}
	return wrapped
}
