package stagez

import (
	"context"
	"errors"
	"time"
)

// runTransforms executes a transform stage sequentially over payload,
// carrying the request Context alongside for side-channel writes. Each
// transform's output becomes the next transform's input.
//
// Every failure is appended to the Context's error list. Under recovery the
// failing transform's effect is discarded and the stage continues from the
// payload as it stood before it, so later transforms still run; the first
// captured failure is returned alongside the finished payload for the
// orchestrator's failure path. Without recovery the stage aborts at the first
// failure. The same executor serves both pre-processing and post-processing.
func runTransforms[T, Req any](ctx context.Context, pipeline Name, stage Stage, transforms []Transform[T, Req], payload T, rc *Context[Req], recovery bool) (T, error) {
	var firstErr error
	for _, t := range transforms {
		select {
		case <-ctx.Done():
			return payload, &Error[T]{
				InputData: payload,
				Err:       ctx.Err(),
				RequestID: rc.RequestID(),
				Path:      []Name{pipeline},
				Stage:     stage,
				Timestamp: time.Now(),
				Timeout:   errors.Is(ctx.Err(), context.DeadlineExceeded),
				Canceled:  errors.Is(ctx.Err(), context.Canceled),
			}
		default:
		}

		start := time.Now()
		next, err := t.Apply(ctx, payload, rc)
		if err != nil {
			stageErr := &Error[T]{
				InputData: payload,
				Err:       err,
				RequestID: rc.RequestID(),
				Path:      []Name{pipeline, t.Name()},
				Stage:     stage,
				Timestamp: time.Now(),
				Duration:  time.Since(start),
				Timeout:   errors.Is(err, context.DeadlineExceeded),
				Canceled:  errors.Is(err, context.Canceled),
			}
			rc.AddError(stageErr)
			if recovery {
				if firstErr == nil {
					firstErr = stageErr
				}
				continue
			}
			return payload, stageErr
		}
		payload = next
	}
	return payload, firstErr
}
