package scheduler

import (
	"time"

	"codeswarm/provider"
)

// AgentID identifies one scheduled agent: a provider analyzing under a role.
type AgentID struct {
	Provider string `json:"provider"`
	Role     string `json:"role"`
}

func (id AgentID) String() string {
	return id.Provider + "/" + id.Role
}

// AgentState tracks an agent through the coordination state machine.
// Completed, Failed and Skipped are terminal: a task in any of them will not
// transition further, and all three unblock dependents.
type AgentState int

const (
	StateNotRegistered AgentState = iota
	StateRegistered
	StateRunning
	StateCompleted
	StateFailed
	StateSkipped
)

func (s AgentState) String() string {
	switch s {
	case StateNotRegistered:
		return "not_registered"
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one a task cannot leave.
func (s AgentState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

// AgentConfig declares one agent for a run.
type AgentConfig struct {
	Provider        string `json:"provider" mapstructure:"provider"`
	Role            string `json:"role" mapstructure:"role"`
	Priority        int    `json:"priority" mapstructure:"priority"`
	EstimatedTokens int64  `json:"estimated_tokens" mapstructure:"estimated_tokens"`
}

// ID returns the agent identity for this config.
func (c AgentConfig) ID() AgentID {
	return AgentID{Provider: c.Provider, Role: c.Role}
}

// ExecutionResult records the outcome of one agent task, success or failure.
type ExecutionResult struct {
	ID       AgentID            `json:"id"`
	State    AgentState         `json:"state"`
	Findings []provider.Finding `json:"findings,omitempty"`
	Err      error              `json:"-"`
	ErrMsg   string             `json:"error,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	TokensUsed    int64   `json:"tokens_used"`
	EstimatedCost float64 `json:"estimated_cost"`

	UsedFallback     bool   `json:"used_fallback"`
	FallbackProvider string `json:"fallback_provider,omitempty"`
	TimedOut         bool   `json:"timed_out"`
	SkipReason       string `json:"skip_reason,omitempty"`
}

// Succeeded reports whether the task completed normally.
func (r *ExecutionResult) Succeeded() bool {
	return r.State == StateCompleted
}

// FallbackStats summarizes how many tasks ran on a replacement provider.
type FallbackStats struct {
	TasksOnFallback int            `json:"tasks_on_fallback"`
	ByProvider      map[string]int `json:"by_provider,omitempty"`
}

// ExecutionReport is the final output of a pipeline run. Success reflects
// only run-level health: individual task failures do not make a run
// unsuccessful.
type ExecutionReport struct {
	RunID      string                       `json:"run_id"`
	Results    map[AgentID]*ExecutionResult `json:"-"`
	Aggregated *AggregatedReport            `json:"aggregated"`
	Success    bool                         `json:"success"`
	Duration   time.Duration                `json:"duration"`
	Fallbacks  FallbackStats                `json:"fallbacks"`
	Errors     []string                     `json:"errors,omitempty"`
}
