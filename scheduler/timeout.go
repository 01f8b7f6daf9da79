package scheduler

import (
	"context"
	"time"

	"codeswarm/log"
)

// DefaultTaskTimeout bounds a single provider call when none is configured.
const DefaultTaskTimeout = 2 * time.Minute

// RunWithTimeout executes work under a deadline. On expiry it cancels the
// child context and returns a *TimeoutError immediately.
//
// Cancellation-aware work observes the cancel and releases its resources. If
// the wrapped call ignores cancellation, it is left to complete silently in
// the background: the scheduler's timeout correctness takes priority over
// guaranteed reclamation of a non-cancellable call. That is an accepted
// limitation of the provider boundary, not a bug.
func RunWithTimeout(ctx context.Context, id AgentID, timeout time.Duration, work WorkFunc) (interface{}, error) {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	workCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type settled struct {
		result interface{}
		err    error
	}
	// Buffered so an orphaned call can deliver and exit after we stop waiting.
	done := make(chan settled, 1)

	go func() {
		result, err := work(workCtx)
		done <- settled{result: result, err: err}
	}()

	select {
	case s := <-done:
		return s.result, s.err
	case <-workCtx.Done():
		if ctx.Err() != nil {
			// Run-level cancellation, not a per-task deadline.
			return nil, ctx.Err()
		}
		log.WarningLog.Printf("task %s exceeded %s deadline", id, timeout)
		return nil, &TimeoutError{ID: id, Limit: timeout}
	}
}
