package stagez

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Context is the per-request record created for each Execute call. It carries
// the request's identity and timing, the in-flight request value, every error
// captured during the call, a general metadata map, and a middleware-scoped
// store keyed by (middleware name, key) so unrelated middleware cannot collide
// on key names.
//
// Exactly one Context exists per Execute call. Its request id is immutable
// after creation, it lives in the pipeline's active-context registry for the
// duration of the call, and it is removed unconditionally when Execute
// returns - a Context never outlives its call.
//
// Context is safe for concurrent use, so middleware that fans work out to
// goroutines may still write through it.
type Context[Req any] struct {
	requestID string
	startTime time.Time
	clock     clockz.Clock
	timeout   time.Duration

	mu       sync.RWMutex
	stage    Stage
	request  Req
	errs     []error
	metadata map[string]any
	scoped   map[Name]map[string]any
}

// NewContext creates a standalone Context for the given request, with a fresh
// request id and the real clock. Pipelines create their own contexts during
// Execute; this constructor exists for exercising middleware in isolation.
func NewContext[Req any](request Req) *Context[Req] {
	return newContext(request, clockz.RealClock, 0)
}

func newContext[Req any](request Req, clock clockz.Clock, timeout time.Duration) *Context[Req] {
	return &Context[Req]{
		requestID: uuid.NewString(),
		startTime: clock.Now(),
		clock:     clock,
		timeout:   timeout,
		request:   request,
		metadata:  make(map[string]any),
		scoped:    make(map[Name]map[string]any),
	}
}

// RequestID returns the unique identifier generated for this request.
func (c *Context[Req]) RequestID() string {
	return c.requestID
}

// StartTime returns when this context was created.
func (c *Context[Req]) StartTime() time.Time {
	return c.startTime
}

// Request returns the in-flight request value. During execution this reflects
// the output of any pre-processing transforms that have already run.
func (c *Context[Req]) Request() Req {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.request
}

// Stage returns the stage the request is currently executing. Middleware can
// read it to learn where in the pipeline they were invoked from.
func (c *Context[Req]) Stage() Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stage
}

func (c *Context[Req]) setStage(stage Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage = stage
}

func (c *Context[Req]) setRequest(request Req) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = request
}

// AddError appends a captured error to the context's ordered error list.
// Transforms that fail under error recovery land here even though the stage
// continues.
func (c *Context[Req]) AddError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns a copy of the captured errors, in capture order.
func (c *Context[Req]) Errors() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// ErrorCount returns the number of captured errors.
func (c *Context[Req]) ErrorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.errs)
}

// Set stores a value in the general metadata map.
func (c *Context[Req]) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Get retrieves a value from the general metadata map.
func (c *Context[Req]) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.metadata[key]
	return value, ok
}

// SetScoped stores a value under (middleware, key). Each middleware name gets
// its own namespace, so two middleware using the same key never collide.
func (c *Context[Req]) SetScoped(middleware Name, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.scoped[middleware]
	if !ok {
		ns = make(map[string]any)
		c.scoped[middleware] = ns
	}
	ns[key] = value
}

// GetScoped retrieves a value stored under (middleware, key).
func (c *Context[Req]) GetScoped(middleware Name, key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.scoped[middleware]
	if !ok {
		return nil, false
	}
	value, ok := ns[key]
	return value, ok
}

// Age returns how long this context has been alive.
func (c *Context[Req]) Age() time.Duration {
	return c.clock.Since(c.startTime)
}

// Expired reports whether the context has outlived its configured validity
// window. Advisory only: the engine does not abort an expired context.
func (c *Context[Req]) Expired() bool {
	return c.timeout > 0 && c.Age() > c.timeout
}
