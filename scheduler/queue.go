package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"codeswarm/log"
)

// WorkFunc is the unit of work the queue runs once a slot is free. The ctx is
// the run-level context; work should stop when it is cancelled.
type WorkFunc func(ctx context.Context) (interface{}, error)

// TaskHandle is the future returned by Submit. It settles exactly once, with
// either a result or an error.
type TaskHandle struct {
	id     AgentID
	done   chan struct{}
	result interface{}
	err    error
}

func newTaskHandle(id AgentID) *TaskHandle {
	return &TaskHandle{id: id, done: make(chan struct{})}
}

func (h *TaskHandle) resolve(result interface{}, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// ID returns the task identity this handle tracks.
func (h *TaskHandle) ID() AgentID { return h.id }

// Done returns a channel closed when the task has settled.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task settles or ctx is cancelled.
func (h *TaskHandle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type queuedTask struct {
	id       AgentID
	priority int
	seq      uint64
	work     WorkFunc
	handle   *TaskHandle
}

// QueueStatus is a point-in-time snapshot of the queue. Reading it never
// perturbs scheduling.
type QueueStatus struct {
	Running       int              `json:"running"`
	PeakRunning   int              `json:"peak_running"`
	MaxConcurrent int              `json:"max_concurrent"`
	QueueLength   int              `json:"queue_length"`
	ProviderUsage map[string]int64 `json:"provider_usage"`
}

// ExecutionQueue admits at most maxConcurrent tasks at a time and orders
// waiting work by priority, highest first, first-submitted-first-run among
// ties. It is the single serialization point for admission decisions: slot
// accounting happens only under its mutex, so two tasks can never both
// observe a free slot and be admitted past capacity.
//
// The queue has no notion of task success. A failing task's error reaches its
// own handle only; the freed slot is immediately offered to the next waiter.
type ExecutionQueue struct {
	mu            sync.Mutex
	ctx           context.Context
	maxConcurrent int
	running       map[uint64]AgentID
	waiting       []*queuedTask
	seq           uint64
	peak          int
	closed        bool
	ledger        *UsageLedger
}

// DefaultMaxConcurrent is the slot count used when none is configured.
const DefaultMaxConcurrent = 5

// NewExecutionQueue creates a queue bound to the run context. Work functions
// receive ctx and are expected to observe its cancellation.
func NewExecutionQueue(ctx context.Context, maxConcurrent int, ledger *UsageLedger) *ExecutionQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ExecutionQueue{
		ctx:           ctx,
		maxConcurrent: maxConcurrent,
		running:       make(map[uint64]AgentID),
		ledger:        ledger,
	}
}

// Submit enqueues work and returns a handle that settles when it has run.
// Submit never blocks: if the queue is at capacity the task waits in the
// priority-ordered list.
func (q *ExecutionQueue) Submit(id AgentID, priority int, work WorkFunc) *TaskHandle {
	handle := newTaskHandle(id)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		handle.resolve(nil, ErrQueueClosed)
		return handle
	}

	q.seq++
	task := &queuedTask{id: id, priority: priority, seq: q.seq, work: work, handle: handle}
	q.waiting = append(q.waiting, task)
	sort.SliceStable(q.waiting, func(i, j int) bool {
		return q.waiting[i].priority > q.waiting[j].priority
	})
	q.advanceLocked()
	q.mu.Unlock()

	return handle
}

// advanceLocked starts waiting tasks while slots are free. Caller holds q.mu.
func (q *ExecutionQueue) advanceLocked() {
	for len(q.running) < q.maxConcurrent && len(q.waiting) > 0 {
		task := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.running[task.seq] = task.id
		if len(q.running) > q.peak {
			q.peak = len(q.running)
		}
		log.DebugLog.Printf("admitted task %s (priority %d, %d/%d slots)",
			task.id, task.priority, len(q.running), q.maxConcurrent)
		go q.run(task)
	}
}

func (q *ExecutionQueue) run(task *queuedTask) {
	result, err := task.work(q.ctx)
	task.handle.resolve(result, err)

	q.mu.Lock()
	delete(q.running, task.seq)
	// A freed slot is immediately offered to the next-highest-priority waiter.
	q.advanceLocked()
	q.mu.Unlock()
}

// Drain drops all queued-but-not-started tasks without starting them and
// refuses further submissions. Their handles settle with ErrTaskDropped.
// Already-running tasks are left to finish; they observe cancellation through
// the run context.
func (q *ExecutionQueue) Drain() {
	q.mu.Lock()
	q.closed = true
	dropped := q.waiting
	q.waiting = nil
	q.mu.Unlock()

	for _, task := range dropped {
		task.handle.resolve(nil, fmt.Errorf("%s: %w", task.id, ErrTaskDropped))
	}
	if len(dropped) > 0 {
		log.InfoLog.Printf("dropped %d queued tasks on drain", len(dropped))
	}
}

// Status returns a snapshot of slot accounting and per-provider token usage.
func (q *ExecutionQueue) Status() QueueStatus {
	q.mu.Lock()
	status := QueueStatus{
		Running:       len(q.running),
		PeakRunning:   q.peak,
		MaxConcurrent: q.maxConcurrent,
		QueueLength:   len(q.waiting),
	}
	q.mu.Unlock()

	if q.ledger != nil {
		status.ProviderUsage = q.ledger.Snapshot()
	}
	return status
}
