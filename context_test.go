package stagez

import (
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestContext(t *testing.T) {
	t.Run("Unique Request IDs", func(t *testing.T) {
		a := NewContext("req-a")
		b := NewContext("req-b")
		if a.RequestID() == "" {
			t.Fatal("expected a generated request id")
		}
		if a.RequestID() == b.RequestID() {
			t.Errorf("expected distinct request ids, both %q", a.RequestID())
		}
	})

	t.Run("Request Reflects Pre-Processing Output", func(t *testing.T) {
		rc := NewContext("original")
		if rc.Request() != "original" {
			t.Errorf("expected original, got %q", rc.Request())
		}
		rc.setRequest("processed")
		if rc.Request() != "processed" {
			t.Errorf("expected processed, got %q", rc.Request())
		}
	})

	t.Run("Error Accumulation", func(t *testing.T) {
		rc := NewContext(0)
		rc.AddError(errors.New("first"))
		rc.AddError(nil) // ignored
		rc.AddError(errors.New("second"))

		if rc.ErrorCount() != 2 {
			t.Fatalf("expected 2 errors, got %d", rc.ErrorCount())
		}
		errs := rc.Errors()
		if errs[0].Error() != "first" || errs[1].Error() != "second" {
			t.Errorf("expected capture order preserved, got %v", errs)
		}

		// Errors returns a copy.
		errs[0] = errors.New("mutated")
		if rc.Errors()[0].Error() != "first" {
			t.Error("expected Errors to return a copy")
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		rc := NewContext(0)
		if _, ok := rc.Get("missing"); ok {
			t.Error("expected missing key to report false")
		}
		rc.Set("user", "alice")
		value, ok := rc.Get("user")
		if !ok || value != "alice" {
			t.Errorf("expected alice, got %v (ok=%t)", value, ok)
		}
	})

	t.Run("Scoped Store Isolates Middleware", func(t *testing.T) {
		rc := NewContext(0)
		rc.SetScoped("auth", "token", "abc")
		rc.SetScoped("cache", "token", "xyz")

		if value, _ := rc.GetScoped("auth", "token"); value != "abc" {
			t.Errorf("expected abc under auth, got %v", value)
		}
		if value, _ := rc.GetScoped("cache", "token"); value != "xyz" {
			t.Errorf("expected xyz under cache, got %v", value)
		}
		if _, ok := rc.GetScoped("other", "token"); ok {
			t.Error("expected unknown middleware namespace to report false")
		}
	})

	t.Run("Age And Expiry", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		rc := newContext(0, clock, 50*time.Millisecond)

		if rc.Expired() {
			t.Error("fresh context should not be expired")
		}
		clock.Advance(30 * time.Millisecond)
		if rc.Age() != 30*time.Millisecond {
			t.Errorf("expected age 30ms, got %v", rc.Age())
		}
		clock.Advance(30 * time.Millisecond)
		if !rc.Expired() {
			t.Error("context past its validity window should be expired")
		}
	})

	t.Run("Zero Timeout Never Expires", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		rc := newContext(0, clock, 0)
		clock.Advance(time.Hour)
		if rc.Expired() {
			t.Error("context with no timeout should never expire")
		}
	})

	t.Run("Stage Tracking", func(t *testing.T) {
		rc := NewContext(0)
		if rc.Stage() != StagePreProcessing {
			t.Errorf("expected initial stage pre_processing, got %v", rc.Stage())
		}
		rc.setStage(StageCleanup)
		if rc.Stage() != StageCleanup {
			t.Errorf("expected cleanup, got %v", rc.Stage())
		}
	})
}
