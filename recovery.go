package stagez

import (
	"context"
	"time"
)

// Recovery is the generic, safe payload describing a recovered failure. It
// deliberately carries no internal detail beyond an error kind, a safe
// message, the request id, and a timestamp - the original error stays in the
// Context and in the pipeline's hooks for operators, not for callers.
type Recovery struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Recovery kinds.
const (
	RecoveryKindError   = "pipeline_error"
	RecoveryKindTimeout = "pipeline_timeout"
)

// NewRecovery shapes the standard recovery payload for a failed request.
// Timeout failures get RecoveryKindTimeout; everything else gets
// RecoveryKindError with a generic message.
func NewRecovery(requestID string, err error) Recovery {
	kind := RecoveryKindError
	message := "request processing failed"
	if isTimeoutError(err) {
		kind = RecoveryKindTimeout
		message = "request processing exceeded the time budget"
	}
	return Recovery{
		Kind:      kind,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// RecoveryFunc maps a recovered failure into the pipeline's result type. The
// engine cannot fabricate a Res on its own, so the embedding application
// supplies the response construction: typically embedding NewRecovery's
// payload into whatever Res looks like.
//
// Example:
//
//	pipe.WithRecovery(func(_ context.Context, rc *stagez.Context[Request], err error) Response {
//	    return Response{Status: 500, Body: stagez.NewRecovery(rc.RequestID(), err)}
//	})
type RecoveryFunc[Req, Res any] func(ctx context.Context, rc *Context[Req], err error) Res
