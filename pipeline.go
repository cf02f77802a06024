package stagez

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Pipeline.
const (
	// Metrics.
	PipelineRequestsTotal        = metricz.Key("pipeline.requests.total")
	PipelineSuccessesTotal       = metricz.Key("pipeline.successes.total")
	PipelineFailuresTotal        = metricz.Key("pipeline.failures.total")
	PipelineRecoveriesTotal      = metricz.Key("pipeline.recoveries.total")
	PipelineTimeoutsTotal        = metricz.Key("pipeline.timeouts.total")
	PipelineHandlerFailuresTotal = metricz.Key("pipeline.errorhandler.failures.total")
	PipelineCleanupFailuresTotal = metricz.Key("pipeline.cleanup.failures.total")
	PipelineActiveContexts       = metricz.Key("pipeline.contexts.active")
	PipelineDurationMs           = metricz.Key("pipeline.duration.ms")

	// Spans.
	PipelineExecuteSpan        = tracez.Key("pipeline.execute")
	PipelinePreProcessingSpan  = tracez.Key("pipeline.pre_processing")
	PipelineDispatchSpan       = tracez.Key("pipeline.dispatch")
	PipelinePostProcessingSpan = tracez.Key("pipeline.post_processing")
	PipelineErrorHandlingSpan  = tracez.Key("pipeline.error_handling")
	PipelineCleanupSpan        = tracez.Key("pipeline.cleanup")

	// Tags.
	PipelineTagRequestID = tracez.Tag("pipeline.request_id")
	PipelineTagStage     = tracez.Tag("pipeline.stage")
	PipelineTagSuccess   = tracez.Tag("pipeline.success")
	PipelineTagError     = tracez.Tag("pipeline.error")
	PipelineTagRecovered = tracez.Tag("pipeline.recovered")

	// Hook event keys.
	PipelineEventRequestComplete     = hookz.Key("pipeline.request.complete")
	PipelineEventRequestRecovered    = hookz.Key("pipeline.request.recovered")
	PipelineEventErrorHandlerFailure = hookz.Key("pipeline.errorhandler.failure")
	PipelineEventCleanupFailure      = hookz.Key("pipeline.cleanup.failure")
)

// Registration errors.
var (
	ErrStageMismatch = errors.New("middleware shape does not match stage")
	ErrUnknownStage  = errors.New("unknown stage")
)

// ErrBudgetExceeded marks a failure caused by the MaxExecutionTime budget
// expiring. It is wrapped inside the *Error returned from Execute; detect it
// with errors.Is.
var ErrBudgetExceeded = errors.New("execution budget exceeded")

// ExecutionEvent represents a pipeline lifecycle event. It is emitted via
// hookz when a request completes, recovers, or when a best-effort handler
// fails, allowing external systems to observe outcomes without the engine
// carrying a logging dependency.
type ExecutionEvent struct {
	Name        Name          // Pipeline name
	RequestID   string        // Request the event belongs to
	Stage       Stage         // Stage the event was emitted from
	HandlerName Name          // Failing handler (handler-failure events only)
	Success     bool          // Whether the request succeeded
	Recovered   bool          // Whether a failure was converted to a recovery payload
	Error       error         // The failure, if any
	Duration    time.Duration // Total processing time (completion events)
	Timestamp   time.Time     // When the event occurred
}

// Pipeline is the staged middleware execution engine for requests of type Req
// producing results of type Res. It holds the ordered middleware for each of
// the five stages, the immutable execution Config, and the registry of
// in-flight request contexts.
//
// Construct one per logical service at startup with NewPipeline, register
// middleware before serving traffic, then call Execute once per inbound
// request. Registration is guarded by a mutex so late registration does not
// corrupt in-flight requests, but middleware lists are expected to be settled
// before concurrent traffic begins.
//
// # Observability
//
// Pipeline provides comprehensive observability through metrics, tracing, and
// events:
//
// Metrics:
//   - pipeline.requests.total: Counter of Execute calls
//   - pipeline.successes.total: Counter of clean completions
//   - pipeline.failures.total: Counter of failures returned to the caller
//   - pipeline.recoveries.total: Counter of failures converted to recovery payloads
//   - pipeline.timeouts.total: Counter of budget expiries
//   - pipeline.errorhandler.failures.total / pipeline.cleanup.failures.total:
//     Counters of best-effort handlers that themselves failed
//   - pipeline.contexts.active: Gauge of in-flight requests
//   - pipeline.duration.ms: Gauge of the last execution's duration
//     (when performance monitoring is enabled)
//
// Traces:
//   - pipeline.execute: Parent span for the whole call
//   - pipeline.pre_processing, pipeline.dispatch, pipeline.post_processing,
//     pipeline.error_handling, pipeline.cleanup: Child spans per stage
//
// Events (via hooks):
//   - pipeline.request.complete: Fired on success and on propagated failure
//   - pipeline.request.recovered: Fired when a failure becomes a recovery payload
//   - pipeline.errorhandler.failure, pipeline.cleanup.failure: Fired when a
//     best-effort handler fails; the remaining handlers still run
type Pipeline[Req, Res any] struct {
	name     Name
	cfg      Config
	clock    clockz.Clock
	recovery RecoveryFunc[Req, Res]

	mu            sync.RWMutex
	pre           []Transform[Req, Req]
	interceptors  []Interceptor[Req, Res]
	post          []Transform[Res, Req]
	errorHandlers []ErrorHandler[Req]
	cleanups      []CleanupHandler[Req]

	active *contextRegistry[Req]

	// Observability
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[ExecutionEvent]
}

// NewPipeline creates a Pipeline with the given name and configuration. The
// pipeline is ready to use immediately; register middleware with the stage
// methods, then call Execute.
func NewPipeline[Req, Res any](name Name, cfg Config) *Pipeline[Req, Res] {
	// Initialize observability components
	registry := metricz.New()
	tracer := tracez.New()

	// Register metrics
	registry.Counter(PipelineRequestsTotal)
	registry.Counter(PipelineSuccessesTotal)
	registry.Counter(PipelineFailuresTotal)
	registry.Counter(PipelineRecoveriesTotal)
	registry.Counter(PipelineTimeoutsTotal)
	registry.Counter(PipelineHandlerFailuresTotal)
	registry.Counter(PipelineCleanupFailuresTotal)

	return &Pipeline[Req, Res]{
		name:    name,
		cfg:     cfg,
		active:  newContextRegistry[Req](),
		metrics: registry,
		tracer:  tracer,
		hooks:   hookz.New[ExecutionEvent](),
	}
}

// Register appends middleware to the given stage's ordered list. The
// middleware value must match the stage's shape: Transform[Req, Req] for
// pre-processing, Interceptor[Req, Res] for request handling,
// Transform[Res, Req] for post-processing, ErrorHandler[Req] for error
// handling, and CleanupHandler[Req] for cleanup. A mismatch returns
// ErrStageMismatch. There is no removal or reordering.
//
// The typed stage methods (PreProcessing, Use, PostProcessing, ErrorHandling,
// Cleanup) are sugar over Register and catch shape mismatches at compile time.
func (p *Pipeline[Req, Res]) Register(stage Stage, middleware any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch stage {
	case StagePreProcessing:
		t, ok := middleware.(Transform[Req, Req])
		if !ok {
			return fmt.Errorf("%w: %s wants Transform, got %T", ErrStageMismatch, stage, middleware)
		}
		p.pre = append(p.pre, t)
	case StageRequestHandling:
		i, ok := middleware.(Interceptor[Req, Res])
		if !ok {
			return fmt.Errorf("%w: %s wants Interceptor, got %T", ErrStageMismatch, stage, middleware)
		}
		p.interceptors = append(p.interceptors, i)
	case StagePostProcessing:
		t, ok := middleware.(Transform[Res, Req])
		if !ok {
			return fmt.Errorf("%w: %s wants Transform, got %T", ErrStageMismatch, stage, middleware)
		}
		p.post = append(p.post, t)
	case StageErrorHandling:
		h, ok := middleware.(ErrorHandler[Req])
		if !ok {
			return fmt.Errorf("%w: %s wants ErrorHandler, got %T", ErrStageMismatch, stage, middleware)
		}
		p.errorHandlers = append(p.errorHandlers, h)
	case StageCleanup:
		h, ok := middleware.(CleanupHandler[Req])
		if !ok {
			return fmt.Errorf("%w: %s wants CleanupHandler, got %T", ErrStageMismatch, stage, middleware)
		}
		p.cleanups = append(p.cleanups, h)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownStage, stage)
	}
	return nil
}

// PreProcessing appends transforms to the pre-processing stage.
func (p *Pipeline[Req, Res]) PreProcessing(transforms ...Transform[Req, Req]) *Pipeline[Req, Res] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pre = append(p.pre, transforms...)
	return p
}

// Use appends interceptors to the request-handling stage, the default stage
// for middleware.
func (p *Pipeline[Req, Res]) Use(interceptors ...Interceptor[Req, Res]) *Pipeline[Req, Res] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interceptors = append(p.interceptors, interceptors...)
	return p
}

// PostProcessing appends transforms to the post-processing stage.
func (p *Pipeline[Req, Res]) PostProcessing(transforms ...Transform[Res, Req]) *Pipeline[Req, Res] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.post = append(p.post, transforms...)
	return p
}

// ErrorHandling appends handlers to the error-handling stage.
func (p *Pipeline[Req, Res]) ErrorHandling(handlers ...ErrorHandler[Req]) *Pipeline[Req, Res] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorHandlers = append(p.errorHandlers, handlers...)
	return p
}

// Cleanup appends handlers to the cleanup stage.
func (p *Pipeline[Req, Res]) Cleanup(handlers ...CleanupHandler[Req]) *Pipeline[Req, Res] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanups = append(p.cleanups, handlers...)
	return p
}

// WithRecovery sets the recovery builder invoked when error recovery is
// enabled and an execution fails. The builder shapes the pipeline's Res from
// the failure, typically embedding NewRecovery's payload. Without a builder,
// recovery returns the zero Res.
func (p *Pipeline[Req, Res]) WithRecovery(fn RecoveryFunc[Req, Res]) *Pipeline[Req, Res] {
	p.recovery = fn
	return p
}

// WithClock sets the clock used for timestamps and budget enforcement.
// Primarily for testing with a fake clock.
func (p *Pipeline[Req, Res]) WithClock(clock clockz.Clock) *Pipeline[Req, Res] {
	p.clock = clock
	return p
}

func (p *Pipeline[Req, Res]) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}

// Execute runs one request through the pipeline: create and register the
// request Context, run pre-processing transforms over the request, dispatch
// through the interceptor chain to handler, run post-processing transforms
// over the result, and return it.
//
// Any failure jumps to the error-handling stage, where every registered
// handler observes the failure best-effort. With error recovery disabled the
// failure then propagates to the caller as an *Error; with recovery enabled
// Execute returns the recovery builder's payload and a nil error instead.
// Without a WithRecovery builder a recovered failure yields the zero Res, so
// pipelines relying on recovery should always configure one.
// Cleanup handlers run in every case, exactly once, and the Context is
// removed from the active-context registry unconditionally - even when the
// budget has expired or a middleware panicked.
//
// When Config.MaxExecutionTime is set, the whole of pre-processing, dispatch,
// and post-processing runs under that budget; expiry is treated as a timeout
// failure wrapping ErrBudgetExceeded and is observed even if a middleware
// ignores its context.
func (p *Pipeline[Req, Res]) Execute(ctx context.Context, request Req, handler Handler[Req, Res]) (result Res, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	cfg := p.cfg
	pre := make([]Transform[Req, Req], len(p.pre))
	copy(pre, p.pre)
	interceptors := make([]Interceptor[Req, Res], len(p.interceptors))
	copy(interceptors, p.interceptors)
	post := make([]Transform[Res, Req], len(p.post))
	copy(post, p.post)
	errorHandlers := make([]ErrorHandler[Req], len(p.errorHandlers))
	copy(errorHandlers, p.errorHandlers)
	cleanups := make([]CleanupHandler[Req], len(p.cleanups))
	copy(cleanups, p.cleanups)
	p.mu.RUnlock()

	clock := p.getClock()
	rc := newContext(request, clock, cfg.ContextTimeout)

	p.metrics.Counter(PipelineRequestsTotal).Inc()
	if cfg.EnableContextTracking {
		p.active.add(rc)
		p.metrics.Gauge(PipelineActiveContexts).Set(float64(p.active.count()))
	}
	start := clock.Now()

	ctx, span := p.tracer.StartSpan(ctx, PipelineExecuteSpan)
	span.SetTag(PipelineTagRequestID, rc.RequestID())

	defer func() {
		// Cleanup and deregistration are unconditional: every path through
		// Execute, including budget expiry and propagated failures, passes
		// through here exactly once.
		p.runCleanup(ctx, rc, cleanups)
		if cfg.EnableContextTracking {
			p.active.remove(rc.RequestID())
			p.metrics.Gauge(PipelineActiveContexts).Set(float64(p.active.count()))
		}
		if cfg.EnablePerformanceMonitoring {
			p.metrics.Gauge(PipelineDurationMs).Set(float64(clock.Since(start).Milliseconds()))
		}
		if err == nil {
			span.SetTag(PipelineTagSuccess, "true")
		} else {
			span.SetTag(PipelineTagSuccess, "false")
			span.SetTag(PipelineTagError, err.Error())
		}
		span.Finish()
	}()

	run := func(runCtx context.Context) (Res, error) {
		var zero Res

		// Pre-processing.
		rc.setStage(StagePreProcessing)
		preCtx, preSpan := p.tracer.StartSpan(runCtx, PipelinePreProcessingSpan)
		preSpan.SetTag(PipelineTagStage, StagePreProcessing.String())
		processed, perr := runTransforms(preCtx, p.name, StagePreProcessing, pre, request, rc, cfg.EnableErrorRecovery)
		preSpan.Finish()
		if perr != nil {
			return zero, perr
		}
		rc.setRequest(processed)

		// Dispatch through the interceptor chain to the terminal handler.
		// The handler is wrapped so its panics are contained even with an
		// empty interceptor list.
		rc.setStage(StageRequestHandling)
		dispCtx, dispSpan := p.tracer.StartSpan(runCtx, PipelineDispatchSpan)
		dispSpan.SetTag(PipelineTagStage, StageRequestHandling.String())
		terminal := func(hctx context.Context, r Req) (res Res, herr error) {
			defer catchPanic("handler", &herr)
			return handler(hctx, r)
		}
		out, derr := Chain(terminal, interceptors...)(dispCtx, processed)
		dispSpan.Finish()
		if derr != nil {
			derr = p.chainError(derr, processed, rc)
			rc.AddError(derr)
			return zero, derr
		}

		// Post-processing.
		rc.setStage(StagePostProcessing)
		postCtx, postSpan := p.tracer.StartSpan(runCtx, PipelinePostProcessingSpan)
		postSpan.SetTag(PipelineTagStage, StagePostProcessing.String())
		final, serr := runTransforms(postCtx, p.name, StagePostProcessing, post, out, rc, cfg.EnableErrorRecovery)
		postSpan.Finish()
		if serr != nil {
			return zero, serr
		}
		return final, nil
	}

	var execErr error
	if cfg.MaxExecutionTime > 0 {
		budgetCtx, cancel := clock.WithTimeout(ctx, cfg.MaxExecutionTime)
		done := make(chan struct{})
		var out Res
		var runErr error
		go func() {
			out, runErr = run(budgetCtx)
			close(done)
		}()
		select {
		case <-done:
			result, execErr = out, runErr
		case <-budgetCtx.Done():
			// Budget expired while a middleware or the handler was still
			// running. The abandoned goroutine keeps its context canceled;
			// the request proceeds to error handling and cleanup.
			timeoutErr := &Error[Req]{
				InputData: request,
				Err:       fmt.Errorf("%w: %v", ErrBudgetExceeded, budgetCtx.Err()),
				RequestID: rc.RequestID(),
				Path:      []Name{p.name},
				Stage:     rc.Stage(),
				Timestamp: time.Now(),
				Duration:  clock.Since(start),
				Timeout:   errors.Is(budgetCtx.Err(), context.DeadlineExceeded),
				Canceled:  errors.Is(budgetCtx.Err(), context.Canceled),
			}
			rc.AddError(timeoutErr)
			p.metrics.Counter(PipelineTimeoutsTotal).Inc()
			execErr = timeoutErr
		}
		cancel()
	} else {
		result, execErr = run(ctx)
	}

	if execErr != nil {
		p.runErrorHandlers(ctx, execErr, rc, errorHandlers)

		if cfg.EnableErrorRecovery {
			p.metrics.Counter(PipelineRecoveriesTotal).Inc()
			span.SetTag(PipelineTagRecovered, "true")
			_ = p.hooks.Emit(ctx, PipelineEventRequestRecovered, ExecutionEvent{ //nolint:errcheck
				Name:      p.name,
				RequestID: rc.RequestID(),
				Stage:     rc.Stage(),
				Recovered: true,
				Error:     execErr,
				Duration:  clock.Since(start),
				Timestamp: time.Now(),
			})
			if p.recovery != nil {
				result = p.recovery(ctx, rc, execErr)
			}
			return result, nil
		}

		p.metrics.Counter(PipelineFailuresTotal).Inc()
		_ = p.hooks.Emit(ctx, PipelineEventRequestComplete, ExecutionEvent{ //nolint:errcheck
			Name:      p.name,
			RequestID: rc.RequestID(),
			Stage:     rc.Stage(),
			Success:   false,
			Error:     execErr,
			Duration:  clock.Since(start),
			Timestamp: time.Now(),
		})
		err = execErr
		return result, err
	}

	p.metrics.Counter(PipelineSuccessesTotal).Inc()
	_ = p.hooks.Emit(ctx, PipelineEventRequestComplete, ExecutionEvent{ //nolint:errcheck
		Name:      p.name,
		RequestID: rc.RequestID(),
		Stage:     rc.Stage(),
		Success:   true,
		Duration:  clock.Since(start),
		Timestamp: time.Now(),
	})
	return result, nil
}

// chainError normalizes a dispatch failure: interceptor-wrapped errors get
// the request id stamped, bare handler errors get wrapped fresh.
func (p *Pipeline[Req, Res]) chainError(err error, request Req, rc *Context[Req]) error {
	var stageErr *Error[Req]
	if errors.As(err, &stageErr) {
		stageErr.RequestID = rc.RequestID()
		stageErr.Path = append([]Name{p.name}, stageErr.Path...)
		return stageErr
	}
	return &Error[Req]{
		InputData: request,
		Err:       err,
		RequestID: rc.RequestID(),
		Path:      []Name{p.name},
		Stage:     StageRequestHandling,
		Timestamp: time.Now(),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// runErrorHandlers invokes every error-handling middleware with the captured
// failure. A handler that itself fails is counted and emitted as an event,
// never aborting the remaining handlers.
func (p *Pipeline[Req, Res]) runErrorHandlers(ctx context.Context, cause error, rc *Context[Req], handlers []ErrorHandler[Req]) {
	if len(handlers) == 0 {
		return
	}
	rc.setStage(StageErrorHandling)
	hctx, span := p.tracer.StartSpan(ctx, PipelineErrorHandlingSpan)
	defer span.Finish()

	for _, h := range handlers {
		if herr := h.Handle(hctx, cause, rc); herr != nil {
			p.metrics.Counter(PipelineHandlerFailuresTotal).Inc()
			_ = p.hooks.Emit(hctx, PipelineEventErrorHandlerFailure, ExecutionEvent{ //nolint:errcheck
				Name:        p.name,
				RequestID:   rc.RequestID(),
				Stage:       StageErrorHandling,
				HandlerName: h.Name(),
				Error:       herr,
				Timestamp:   time.Now(),
			})
		}
	}
}

// runCleanup invokes every cleanup middleware, best-effort, in registration
// order. Failures are counted and emitted but never propagate.
func (p *Pipeline[Req, Res]) runCleanup(ctx context.Context, rc *Context[Req], handlers []CleanupHandler[Req]) {
	if len(handlers) == 0 {
		return
	}
	rc.setStage(StageCleanup)
	cctx, span := p.tracer.StartSpan(ctx, PipelineCleanupSpan)
	defer span.Finish()

	for _, h := range handlers {
		if cerr := h.Run(cctx, rc); cerr != nil {
			p.metrics.Counter(PipelineCleanupFailuresTotal).Inc()
			_ = p.hooks.Emit(cctx, PipelineEventCleanupFailure, ExecutionEvent{ //nolint:errcheck
				Name:        p.name,
				RequestID:   rc.RequestID(),
				Stage:       StageCleanup,
				HandlerName: h.Name(),
				Error:       cerr,
				Timestamp:   time.Now(),
			})
		}
	}
}

// Name returns the pipeline's name.
func (p *Pipeline[Req, Res]) Name() Name {
	return p.name
}

// Config returns the pipeline's immutable configuration.
func (p *Pipeline[Req, Res]) Config() Config {
	return p.cfg
}

// Metrics returns the metrics registry for this pipeline.
func (p *Pipeline[Req, Res]) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this pipeline.
func (p *Pipeline[Req, Res]) Tracer() *tracez.Tracer {
	return p.tracer
}

// OnRequestComplete registers a handler fired when a request finishes, on
// success and on propagated failure. Handlers are called asynchronously.
func (p *Pipeline[Req, Res]) OnRequestComplete(handler func(context.Context, ExecutionEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventRequestComplete, handler)
	return err
}

// OnRequestRecovered registers a handler fired when a failure is converted
// into a recovery payload.
func (p *Pipeline[Req, Res]) OnRequestRecovered(handler func(context.Context, ExecutionEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventRequestRecovered, handler)
	return err
}

// OnErrorHandlerFailure registers a handler fired when an error-handling
// middleware itself fails.
func (p *Pipeline[Req, Res]) OnErrorHandlerFailure(handler func(context.Context, ExecutionEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventErrorHandlerFailure, handler)
	return err
}

// OnCleanupFailure registers a handler fired when a cleanup middleware fails.
func (p *Pipeline[Req, Res]) OnCleanupFailure(handler func(context.Context, ExecutionEvent) error) error {
	_, err := p.hooks.Hook(PipelineEventCleanupFailure, handler)
	return err
}

// Close gracefully shuts down observability components.
func (p *Pipeline[Req, Res]) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}
