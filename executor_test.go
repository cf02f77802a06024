package stagez

import (
	"context"
	"errors"
	"testing"
)

func TestRunTransforms(t *testing.T) {
	appendMarker := func(name Name, marker string) Transform[string, string] {
		return NewTransform(name, func(_ context.Context, s string, _ *Context[string]) (string, error) {
			return s + marker, nil
		})
	}
	failWith := func(name Name, marker string) Transform[string, string] {
		return NewTransform(name, func(_ context.Context, s string, _ *Context[string]) (string, error) {
			return s + marker, errors.New("failed")
		})
	}

	t.Run("Sequential Payload Threading", func(t *testing.T) {
		rc := NewContext("")
		result, err := runTransforms(context.Background(), "pipe", StagePreProcessing,
			[]Transform[string, string]{appendMarker("t1", "a"), appendMarker("t2", "b")},
			"", rc, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "ab" {
			t.Errorf("expected ab, got %q", result)
		}
	})

	t.Run("Recovery Discards Failing Effect And Continues", func(t *testing.T) {
		rc := NewContext("")
		result, err := runTransforms(context.Background(), "pipe", StagePreProcessing,
			[]Transform[string, string]{failWith("t1", "poison"), appendMarker("t2", "x")},
			"", rc, true)

		// The stage finishes with only t2's marker, and the captured failure
		// is handed back for the orchestrator's failure path.
		if result != "x" {
			t.Errorf("expected x only, got %q", result)
		}
		if err == nil {
			t.Fatal("expected the captured failure to be returned")
		}
		if rc.ErrorCount() != 1 {
			t.Errorf("expected 1 captured error, got %d", rc.ErrorCount())
		}
	})

	t.Run("Recovery Captures Every Failure", func(t *testing.T) {
		rc := NewContext("")
		_, err := runTransforms(context.Background(), "pipe", StagePreProcessing,
			[]Transform[string, string]{failWith("t1", ""), failWith("t2", ""), appendMarker("t3", "ok")},
			"", rc, true)
		if err == nil {
			t.Fatal("expected error")
		}
		if rc.ErrorCount() != 2 {
			t.Errorf("expected 2 captured errors, got %d", rc.ErrorCount())
		}
		var stageErr *Error[string]
		if !errors.As(err, &stageErr) {
			t.Fatalf("expected *Error[string], got %T", err)
		}
		if stageErr.Path[len(stageErr.Path)-1] != "t1" {
			t.Errorf("expected first failure (t1) returned, got path %v", stageErr.Path)
		}
	})

	t.Run("No Recovery Stops The Stage", func(t *testing.T) {
		var t2Ran bool
		witness := NewTransform("t2", func(_ context.Context, s string, _ *Context[string]) (string, error) {
			t2Ran = true
			return s, nil
		})
		rc := NewContext("")
		result, err := runTransforms(context.Background(), "pipe", StagePreProcessing,
			[]Transform[string, string]{appendMarker("t0", "kept"), failWith("t1", "dropped"), witness},
			"", rc, false)

		if err == nil {
			t.Fatal("expected error")
		}
		if t2Ran {
			t.Error("expected stage to stop before t2")
		}
		// Failing transform's effect is discarded.
		if result != "kept" {
			t.Errorf("expected payload from before the failure, got %q", result)
		}
		if rc.ErrorCount() != 1 {
			t.Errorf("expected 1 captured error, got %d", rc.ErrorCount())
		}
	})

	t.Run("Error Identifies Stage And Middleware", func(t *testing.T) {
		rc := NewContext("")
		_, err := runTransforms(context.Background(), "pipe", StagePostProcessing,
			[]Transform[string, string]{failWith("shape", "")},
			"", rc, false)

		var stageErr *Error[string]
		if !errors.As(err, &stageErr) {
			t.Fatalf("expected *Error[string], got %T", err)
		}
		if stageErr.Stage != StagePostProcessing {
			t.Errorf("expected post_processing, got %v", stageErr.Stage)
		}
		if len(stageErr.Path) != 2 || stageErr.Path[0] != "pipe" || stageErr.Path[1] != "shape" {
			t.Errorf("expected path [pipe shape], got %v", stageErr.Path)
		}
		if stageErr.RequestID != rc.RequestID() {
			t.Errorf("expected request id %q, got %q", rc.RequestID(), stageErr.RequestID)
		}
	})

	t.Run("Canceled Context Stops Processing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran bool
		witness := NewTransform("t1", func(_ context.Context, s string, _ *Context[string]) (string, error) {
			ran = true
			return s, nil
		})
		_, err := runTransforms(ctx, "pipe", StagePreProcessing,
			[]Transform[string, string]{witness}, "", NewContext(""), false)

		if ran {
			t.Error("expected no transform to run after cancellation")
		}
		var stageErr *Error[string]
		if !errors.As(err, &stageErr) {
			t.Fatalf("expected *Error[string], got %T", err)
		}
		if !stageErr.IsCanceled() {
			t.Errorf("expected canceled error, got %v", err)
		}
	})
}
