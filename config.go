package stagez

import "time"

// Config holds the execution policies for one Pipeline. It is immutable for
// the lifetime of the pipeline: construct it once at setup, pass it to
// NewPipeline, and treat the value as read-only afterward.
type Config struct {
	// EnableContextTracking controls whether each request's Context is
	// registered in the pipeline's active-context registry for the duration
	// of its Execute call. Disabling it makes Stats report zero active
	// contexts; per-request lifecycle bookkeeping still runs.
	EnableContextTracking bool

	// EnableErrorRecovery selects the failure policy. When true, a failing
	// transform's effect is discarded while the rest of its stage still
	// runs, and any captured failure produces a recovery payload instead of
	// an error from Execute. When false, failures abort their stage and
	// propagate to the caller after error handling and cleanup have run.
	EnableErrorRecovery bool

	// EnablePerformanceMonitoring controls whether per-execution duration is
	// recorded into the pipeline's metrics registry.
	EnablePerformanceMonitoring bool

	// MaxExecutionTime bounds pre-processing, dispatch, and post-processing
	// for a single Execute call. Zero disables the budget. Expiry is treated
	// as a timeout failure: error handling and cleanup still run exactly once.
	MaxExecutionTime time.Duration

	// ContextTimeout is the validity window reported by Context.Expired.
	// It is advisory; the engine does not abort an expired context.
	ContextTimeout time.Duration

	// Metadata carries free-form pipeline-level annotations, exposed
	// unchanged through Stats.
	Metadata map[string]string
}

// DefaultConfig returns the configuration a freshly constructed pipeline
// should normally run with: tracking and recovery on, monitoring on, a 30
// second execution budget, and a 5 minute context validity window.
func DefaultConfig() Config {
	return Config{
		EnableContextTracking:       true,
		EnableErrorRecovery:         true,
		EnablePerformanceMonitoring: true,
		MaxExecutionTime:            30 * time.Second,
		ContextTimeout:              5 * time.Minute,
	}
}
