package stagez

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestErrorHandler(t *testing.T) {
	t.Run("Observes Cause And Context", func(t *testing.T) {
		var sawCause error
		var sawID string
		h := NewErrorHandler("observe", func(_ context.Context, cause error, rc *Context[string]) error {
			sawCause = cause
			sawID = rc.RequestID()
			return nil
		})

		rc := NewContext("req")
		cause := errors.New("boom")
		if err := h.Handle(context.Background(), cause, rc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sawCause != cause || sawID != rc.RequestID() {
			t.Error("expected handler to receive the failure and the request context")
		}
	})

	t.Run("Panic Is Contained", func(t *testing.T) {
		h := NewErrorHandler("explode", func(_ context.Context, _ error, _ *Context[string]) error {
			panic("boom")
		})

		err := h.Handle(context.Background(), errors.New("cause"), NewContext(""))
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Errorf("expected contained panic, got %v", err)
		}
	})
}

func TestCleanupHandler(t *testing.T) {
	t.Run("Runs With Context", func(t *testing.T) {
		var ran bool
		h := NewCleanup("release", func(_ context.Context, rc *Context[string]) error {
			ran = true
			return nil
		})

		if err := h.Run(context.Background(), NewContext("")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ran {
			t.Error("expected cleanup to run")
		}
	})

	t.Run("Panic Is Contained", func(t *testing.T) {
		h := NewCleanup("explode", func(_ context.Context, _ *Context[string]) error {
			panic("boom")
		})

		err := h.Run(context.Background(), NewContext(""))
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Errorf("expected contained panic, got %v", err)
		}
	})
}
