package stagez

import "sync"

// contextRegistry tracks the contexts of in-flight requests. Every Execute
// call inserts on entry and removes on exit, concurrently with all other
// in-flight requests, so access is guarded by a single mutex; entries exist
// only between context creation and pipeline completion.
type contextRegistry[Req any] struct {
	mu     sync.RWMutex
	active map[string]*Context[Req]
}

func newContextRegistry[Req any]() *contextRegistry[Req] {
	return &contextRegistry[Req]{
		active: make(map[string]*Context[Req]),
	}
}

func (r *contextRegistry[Req]) add(rc *Context[Req]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[rc.RequestID()] = rc
}

func (r *contextRegistry[Req]) remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, requestID)
}

func (r *contextRegistry[Req]) get(requestID string) (*Context[Req], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.active[requestID]
	return rc, ok
}

func (r *contextRegistry[Req]) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
