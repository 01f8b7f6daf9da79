package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueClosed is returned for submissions after the queue has been drained.
	ErrQueueClosed = errors.New("execution queue closed")
	// ErrTaskDropped is returned for queued tasks dropped by a run-level cancellation.
	ErrTaskDropped = errors.New("task dropped before starting")
	// ErrProviderUnavailable is returned when admission is denied and no
	// replacement provider can be named.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// AdmissionDeniedError indicates the efficiency gate refused a task and no
// replacement provider was available. The task fails; siblings are unaffected.
type AdmissionDeniedError struct {
	ID     AgentID
	Reason string
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("admission denied for %s: %s", e.ID, e.Reason)
}

func (e *AdmissionDeniedError) Unwrap() error { return ErrProviderUnavailable }

// TimeoutError indicates a task did not settle before its deadline. The
// scheduler stops waiting; whether the underlying call is aborted depends on
// the provider honoring context cancellation.
type TimeoutError struct {
	ID    AgentID
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.ID, e.Limit)
}

// ProviderError wraps a failure from the wrapped provider call itself.
type ProviderError struct {
	ID  AgentID
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call for %s failed: %v", e.ID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConfigurationError indicates an invalid coordination strategy. It is fatal
// to the run and raised at strategy-resolution time, before any task starts.
type ConfigurationError struct {
	Strategy string
	Detail   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid coordination strategy %q: %s", e.Strategy, e.Detail)
}

// IsTaskError reports whether err is a per-task failure (admission denial,
// timeout, or provider error) rather than a run-level failure.
func IsTaskError(err error) bool {
	var admission *AdmissionDeniedError
	var timeout *TimeoutError
	var provider *ProviderError
	return errors.As(err, &admission) || errors.As(err, &timeout) || errors.As(err, &provider)
}
