package stagez

// Stats is a read-only snapshot of a pipeline's state, consumed by external
// metrics and observability tooling.
type Stats struct {
	Pipeline       Name          `json:"pipeline"`
	ActiveContexts int           `json:"active_contexts"`
	StageCounts    map[Stage]int `json:"stage_counts"`
	Config         Config        `json:"config"`
}

// Stats returns the current active-context count, per-stage middleware
// counts, and a snapshot of the configuration. It never mutates pipeline
// state and is safe to call concurrently with Execute.
func (p *Pipeline[Req, Res]) Stats() Stats {
	p.mu.RLock()
	counts := map[Stage]int{
		StagePreProcessing:   len(p.pre),
		StageRequestHandling: len(p.interceptors),
		StagePostProcessing:  len(p.post),
		StageErrorHandling:   len(p.errorHandlers),
		StageCleanup:         len(p.cleanups),
	}
	p.mu.RUnlock()

	return Stats{
		Pipeline:       p.name,
		ActiveContexts: p.active.count(),
		StageCounts:    counts,
		Config:         p.cfg,
	}
}

// Len returns the number of middleware registered under stage.
func (p *Pipeline[Req, Res]) Len(stage Stage) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch stage {
	case StagePreProcessing:
		return len(p.pre)
	case StageRequestHandling:
		return len(p.interceptors)
	case StagePostProcessing:
		return len(p.post)
	case StageErrorHandling:
		return len(p.errorHandlers)
	case StageCleanup:
		return len(p.cleanups)
	default:
		return 0
	}
}

// ActiveContext looks up an in-flight request's Context by id. It returns
// false once the request's Execute call has returned, or when context
// tracking is disabled.
func (p *Pipeline[Req, Res]) ActiveContext(requestID string) (*Context[Req], bool) {
	return p.active.get(requestID)
}
