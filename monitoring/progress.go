package monitoring

import (
	"sync"
	"sync/atomic"
	"time"

	"codeswarm/log"
)

// Status is the reported state of a phase or task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Event is one progress transition published to a sink.
type Event struct {
	Phase     string    `json:"phase"`
	Task      string    `json:"task,omitempty"`
	Status    Status    `json:"status"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSink receives progress events for external display. Implementations
// must never block and must never fail the pipeline: the tracker swallows and
// logs anything that goes wrong in a sink.
type ProgressSink interface {
	Publish(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// ChannelSink delivers events over a bounded channel. When the consumer falls
// behind, new events are dropped and counted rather than blocking the
// pipeline.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Publish implements ProgressSink. Non-blocking.
func (s *ChannelSink) Publish(e Event) {
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the channel an external consumer drains.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// Tracker records phase and task transitions and computes overall progress.
// It is an observer only: it has no control-flow authority over the pipeline.
type Tracker struct {
	mu         sync.Mutex
	sink       ProgressSink
	phase      string
	totalTasks int
	settled    int
}

// NewTracker creates a tracker publishing to sink. A nil sink is replaced
// with NopSink.
func NewTracker(sink ProgressSink) *Tracker {
	if sink == nil {
		sink = NopSink{}
	}
	return &Tracker{sink: sink}
}

// BeginRun declares the run size for percentage computation.
func (t *Tracker) BeginRun(totalTasks int) {
	t.mu.Lock()
	t.totalTasks = totalTasks
	t.settled = 0
	t.mu.Unlock()
	t.publish(Event{Phase: "run", Status: StatusRunning, Message: "run started"})
}

// BeginPhase reports the start of a named phase (one parallel group).
func (t *Tracker) BeginPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.publish(Event{Phase: phase, Status: StatusRunning})
}

// TaskRunning reports a task entering execution.
func (t *Tracker) TaskRunning(task string) {
	t.publish(Event{Phase: t.currentPhase(), Task: task, Status: StatusRunning})
}

// TaskSettled reports a terminal task outcome and advances the percentage.
func (t *Tracker) TaskSettled(task string, status Status, message string) {
	t.mu.Lock()
	t.settled++
	t.mu.Unlock()
	t.publish(Event{
		Phase:   t.currentPhase(),
		Task:    task,
		Status:  status,
		Message: message,
	})
}

// EndRun reports run completion.
func (t *Tracker) EndRun(status Status, message string) {
	t.publish(Event{Phase: "run", Status: status, Message: message})
}

// Percent returns settled tasks over total, in [0, 100].
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.totalTasks == 0 {
		return 0
	}
	return float64(t.settled) / float64(t.totalTasks) * 100.0
}

func (t *Tracker) currentPhase() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Tracker) publish(e Event) {
	e.Percent = t.Percent()
	e.Timestamp = time.Now()

	// A sink is external code; never let it take the pipeline down.
	defer func() {
		if r := recover(); r != nil {
			log.ErrorLog.Printf("progress sink panicked: %v", r)
		}
	}()
	t.sink.Publish(e)
}
