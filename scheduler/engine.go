package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeswarm/log"
)

// InsightTargetAll addresses an insight to every subscriber.
const InsightTargetAll = "all"

// Insight is one cross-agent message published during a run.
type Insight struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// InsightFunc receives published insights.
type InsightFunc func(Insight)

// ContextSnapshot is a read-only view of the engine's run-scoped state.
type ContextSnapshot struct {
	Strategy     string            `json:"strategy"`
	CurrentGroup int               `json:"current_group"`
	GroupCount   int               `json:"group_count"`
	Active       []string          `json:"active"`
	Completed    []string          `json:"completed"`
	States       map[string]string `json:"states"`
	InsightCount int               `json:"insight_count"`
}

// CoordinationEngine walks a CoordinationStrategy, tracking which tasks are
// active and completed, and carries the cross-agent insight channel. It owns
// the run-scoped context exposed over MCP; callers read snapshots and never
// mutate state directly.
type CoordinationEngine struct {
	mu       sync.RWMutex
	strategy *CoordinationStrategy
	states   map[AgentID]AgentState
	shared   []Insight
	subs     map[string]InsightFunc
	closed   bool
}

// NewCoordinationEngine creates an engine for the given plan.
func NewCoordinationEngine(strategy *CoordinationStrategy) *CoordinationEngine {
	states := make(map[AgentID]AgentState, strategy.TaskCount())
	for _, id := range strategy.ExecutionOrder {
		states[id] = StateNotRegistered
	}
	return &CoordinationEngine{
		strategy: strategy,
		states:   states,
		subs:     make(map[string]InsightFunc),
	}
}

// Strategy returns the plan the engine is walking.
func (e *CoordinationEngine) Strategy() *CoordinationStrategy { return e.strategy }

// EligibleTasks returns every not-yet-registered task in the current group.
// The current group is the earliest group with a non-terminal task; groups
// after it expose nothing until it settles entirely. Failed and skipped tasks
// count as settled, so partial failure never deadlocks the plan.
func (e *CoordinationEngine) EligibleTasks() []AgentID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, group := range e.strategy.ParallelGroups {
		if e.groupTerminalLocked(group) {
			continue
		}
		var eligible []AgentID
		for _, id := range group {
			if e.states[id] == StateNotRegistered {
				eligible = append(eligible, id)
			}
		}
		return eligible
	}
	return nil
}

// Done reports whether every task in the plan is terminal.
func (e *CoordinationEngine) Done() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, state := range e.states {
		if !state.Terminal() {
			return false
		}
	}
	return true
}

// CurrentGroup returns the index of the earliest unsettled group, or the
// group count once the plan is done.
func (e *CoordinationEngine) CurrentGroup() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i, group := range e.strategy.ParallelGroups {
		if !e.groupTerminalLocked(group) {
			return i
		}
	}
	return len(e.strategy.ParallelGroups)
}

func (e *CoordinationEngine) groupTerminalLocked(group []AgentID) bool {
	for _, id := range group {
		if !e.states[id].Terminal() {
			return false
		}
	}
	return true
}

// Register claims a task for execution. It fails for identities the plan
// does not schedule and for tasks already past NotRegistered.
func (e *CoordinationEngine) Register(id AgentID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.states[id]
	if !ok {
		return fmt.Errorf("task %s not in strategy %q", id, e.strategy.Name)
	}
	if state != StateNotRegistered {
		return fmt.Errorf("task %s already %s", id, state)
	}
	e.states[id] = StateRegistered
	return nil
}

// MarkRunning transitions a registered task to running.
func (e *CoordinationEngine) MarkRunning(id AgentID) { e.setState(id, StateRunning) }

// MarkCompleted marks a task terminal-successful, unblocking dependents.
func (e *CoordinationEngine) MarkCompleted(id AgentID) { e.setState(id, StateCompleted) }

// MarkFailed marks a task terminal-failed. Failure still unblocks dependents.
func (e *CoordinationEngine) MarkFailed(id AgentID) { e.setState(id, StateFailed) }

// MarkSkipped marks a task terminal-skipped (e.g. identity missing from the
// declared agent set at execution time).
func (e *CoordinationEngine) MarkSkipped(id AgentID) { e.setState(id, StateSkipped) }

func (e *CoordinationEngine) setState(id AgentID, state AgentState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if current, ok := e.states[id]; !ok || current.Terminal() {
		return
	}
	e.states[id] = state
	log.DebugLog.Printf("task %s -> %s", id, state)
}

// State returns the current state of a task.
func (e *CoordinationEngine) State(id AgentID) AgentState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.states[id]
}

// Subscribe registers a callback for insights addressed to target (a task
// identity string, or InsightTargetAll to receive everything). Callers must
// Unsubscribe when their task finishes; a forgotten subscription is a leak.
func (e *CoordinationEngine) Subscribe(target string, fn InsightFunc) error {
	if fn == nil {
		return fmt.Errorf("insight callback cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("coordination engine closed")
	}
	if _, exists := e.subs[target]; exists {
		return fmt.Errorf("subscriber %q already registered", target)
	}
	e.subs[target] = fn
	return nil
}

// Unsubscribe removes the callback registered for target.
func (e *CoordinationEngine) Unsubscribe(target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, target)
}

// SubscriberCount returns the number of live subscriptions.
func (e *CoordinationEngine) SubscriberCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// AddCrossAgentInsight appends to the shared findings log and notifies the
// subscriber registered for target plus any wildcard subscriber. Callbacks
// run outside the engine lock.
func (e *CoordinationEngine) AddCrossAgentInsight(source, target string, data map[string]interface{}) Insight {
	insight := Insight{
		ID:        uuid.NewString(),
		Source:    source,
		Target:    target,
		Data:      data,
		Timestamp: time.Now(),
	}

	e.mu.Lock()
	e.shared = append(e.shared, insight)
	var callbacks []InsightFunc
	if target == InsightTargetAll {
		for _, fn := range e.subs {
			callbacks = append(callbacks, fn)
		}
	} else {
		if fn, ok := e.subs[target]; ok {
			callbacks = append(callbacks, fn)
		}
		if fn, ok := e.subs[InsightTargetAll]; ok {
			callbacks = append(callbacks, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn(insight)
	}
	return insight
}

// InsightsFor returns the published insights addressed to target or to
// everyone, oldest first. Tasks starting in later groups read what earlier
// groups shared through this.
func (e *CoordinationEngine) InsightsFor(target string) []Insight {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Insight
	for _, in := range e.shared {
		if in.Target == target || in.Target == InsightTargetAll || target == InsightTargetAll {
			out = append(out, in)
		}
	}
	return out
}

// Insights returns a copy of the shared findings log.
func (e *CoordinationEngine) Insights() []Insight {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Insight, len(e.shared))
	copy(out, e.shared)
	return out
}

// Snapshot returns a read-only view of the run context.
func (e *CoordinationEngine) Snapshot() ContextSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := ContextSnapshot{
		Strategy:     e.strategy.Name,
		GroupCount:   len(e.strategy.ParallelGroups),
		States:       make(map[string]string, len(e.states)),
		InsightCount: len(e.shared),
	}

	currentGroup := len(e.strategy.ParallelGroups)
	for i, group := range e.strategy.ParallelGroups {
		if !e.groupTerminalLocked(group) {
			currentGroup = i
			break
		}
	}
	snap.CurrentGroup = currentGroup

	for id, state := range e.states {
		snap.States[id.String()] = state.String()
		switch state {
		case StateRunning, StateRegistered:
			snap.Active = append(snap.Active, id.String())
		case StateCompleted:
			snap.Completed = append(snap.Completed, id.String())
		}
	}
	return snap
}

// Close tears down the run context, clearing all subscriptions. Further
// Subscribe calls fail; publishing becomes a no-op delivery-wise.
func (e *CoordinationEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subs) > 0 {
		log.WarningLog.Printf("coordination engine closed with %d live subscriptions", len(e.subs))
	}
	e.subs = make(map[string]InsightFunc)
	e.closed = true
}
