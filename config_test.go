package stagez

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.EnableContextTracking {
		t.Error("expected context tracking on by default")
	}
	if !cfg.EnableErrorRecovery {
		t.Error("expected error recovery on by default")
	}
	if !cfg.EnablePerformanceMonitoring {
		t.Error("expected performance monitoring on by default")
	}
	if cfg.MaxExecutionTime <= 0 {
		t.Error("expected a default execution budget")
	}
	if cfg.ContextTimeout <= 0 {
		t.Error("expected a default context validity window")
	}
}
