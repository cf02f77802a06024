package stagez

import "context"

// When creates a conditional interceptor that gates inner behind a predicate
// evaluated against the request. When the predicate returns true, inner runs
// with the usual next continuation. When false, the request goes straight to
// next, bypassing inner entirely - data flows on unchanged with no error.
//
// This is plain composition, not a special case in the orchestrator: the
// returned value is an ordinary Interceptor and can itself be wrapped again.
//
// Ideal for:
//   - Feature flags (intercept only for enabled cohorts)
//   - Skipping expensive middleware for exempt routes
//   - Applying auth or quota checks to a subset of requests
//
// Example:
//
//	premiumOnly := stagez.When("premium-gate",
//	    func(_ context.Context, r Request) bool { return r.Tier == "premium" },
//	    rateLimitBypass,
//	)
func When[Req, Res any](name Name, predicate func(context.Context, Req) bool, inner Interceptor[Req, Res]) Interceptor[Req, Res] {
	return Interceptor[Req, Res]{
		name: name,
		fn: func(ctx context.Context, request Req, next Handler[Req, Res]) (Res, error) {
			if !predicate(ctx, request) {
				return next(ctx, request)
			}
			return inner.Handle(ctx, request, next)
		},
	}
}
