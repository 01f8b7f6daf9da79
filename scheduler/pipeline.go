package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeswarm/log"
	"codeswarm/monitoring"
	"codeswarm/provider"
)

// Resource strategies. They affect only how concurrency, timeouts and token
// limits are defaulted, never scheduling correctness.
const (
	StrategyBalanced      = "balanced"
	StrategySpeed         = "speed"
	StrategyCostOptimized = "cost-optimized"
)

// PipelineConfig configures one analysis run.
type PipelineConfig struct {
	Mode             string            `mapstructure:"mode"`
	ResourceStrategy string            `mapstructure:"resource_strategy"`
	MaxConcurrent    int               `mapstructure:"max_concurrent_agents"`
	TaskTimeout      time.Duration     `mapstructure:"agent_timeout"`
	TokenLimits      map[string]int64  `mapstructure:"token_limits"`
	Replacements     map[string]string `mapstructure:"replacements"`
	Agents           []AgentConfig     `mapstructure:"agents"`

	// Strategy overrides mode resolution when set. It must still pass
	// validation; identities it names that are not declared in Agents are
	// skipped at execution time rather than failing the run.
	Strategy *CoordinationStrategy `mapstructure:"-"`
}

const defaultAgentPriority = 5

// normalized returns a copy with resource-strategy defaults applied.
func (c PipelineConfig) normalized() PipelineConfig {
	if c.Mode == "" {
		c.Mode = ModeStandard
	}
	if c.ResourceStrategy == "" {
		c.ResourceStrategy = StrategyBalanced
	}

	switch c.ResourceStrategy {
	case StrategySpeed:
		if c.MaxConcurrent == 0 {
			c.MaxConcurrent = 8
		}
		if c.TaskTimeout == 0 {
			c.TaskTimeout = DefaultTaskTimeout / 2
		}
	case StrategyCostOptimized:
		if c.MaxConcurrent == 0 {
			c.MaxConcurrent = 3
		}
		scaled := make(map[string]int64, len(c.TokenLimits))
		for name, limit := range c.TokenLimits {
			scaled[name] = limit * 3 / 4
		}
		c.TokenLimits = scaled
	default:
		if c.MaxConcurrent == 0 {
			c.MaxConcurrent = DefaultMaxConcurrent
		}
	}

	if c.TaskTimeout == 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.Mode == ModeDeep {
		c.TaskTimeout *= 2
	}

	agents := make([]AgentConfig, len(c.Agents))
	copy(agents, c.Agents)
	for i := range agents {
		if agents[i].Priority == 0 {
			agents[i].Priority = defaultAgentPriority
		}
	}
	c.Agents = agents

	return c
}

// RunSnapshot is a point-in-time view of a running pipeline, safe to take at
// any moment without perturbing scheduling.
type RunSnapshot struct {
	RunID   string          `json:"run_id"`
	Queue   QueueStatus     `json:"queue"`
	Context ContextSnapshot `json:"context"`
	Results int             `json:"results"`
}

// taskOutcome carries a successful provider call back through the queue.
type taskOutcome struct {
	res              *provider.Result
	startedAt        time.Time
	finishedAt       time.Time
	usedFallback     bool
	fallbackProvider string
}

// Pipeline drives one run: it resolves the analysis mode to a coordination
// strategy, executes the plan group by group through the queue, gate and
// timeout guard, and aggregates the collected results. A Pipeline is scoped
// to a single run; all mutable state is owned by the instance.
type Pipeline struct {
	cfg       PipelineConfig
	providers *provider.Registry
	enricher  provider.ContextEnricher
	blacklist BlacklistRegistry

	runID   string
	ledger  *UsageLedger
	gate    *EfficiencyGate
	queue   *ExecutionQueue
	engine  *CoordinationEngine
	tracker *monitoring.Tracker
	perf    *monitoring.PerformanceMonitor

	mu        sync.Mutex
	results   map[AgentID]*ExecutionResult
	fallbacks FallbackStats
}

// NewPipeline creates a pipeline for one run. sink may be nil for no progress
// reporting.
func NewPipeline(cfg PipelineConfig, registry *provider.Registry, enricher provider.ContextEnricher, sink monitoring.ProgressSink) *Pipeline {
	cfg = cfg.normalized()
	ledger := NewUsageLedger()
	blacklist := NewMemoryBlacklist(cfg.Replacements)

	return &Pipeline{
		cfg:       cfg,
		providers: registry,
		enricher:  enricher,
		blacklist: blacklist,
		runID:     uuid.NewString(),
		ledger:    ledger,
		gate:      NewEfficiencyGate(ledger, blacklist, cfg.TokenLimits),
		tracker:   monitoring.NewTracker(sink),
		perf:      monitoring.NewPerformanceMonitor(),
		results:   make(map[AgentID]*ExecutionResult),
		fallbacks: FallbackStats{ByProvider: make(map[string]int)},
	}
}

// RunID returns the unique identifier for this run.
func (p *Pipeline) RunID() string { return p.runID }

// Engine exposes the run's coordination engine. Nil before Execute starts.
// Safe to call from other goroutines while Execute runs.
func (p *Pipeline) Engine() *CoordinationEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine
}

// Snapshot returns a point-in-time view of the run. Safe to call from other
// goroutines at any moment, including before Execute has built the queue.
func (p *Pipeline) Snapshot() RunSnapshot {
	p.mu.Lock()
	queue := p.queue
	engine := p.engine
	resultCount := len(p.results)
	p.mu.Unlock()

	snap := RunSnapshot{RunID: p.runID, Results: resultCount}
	if queue != nil {
		snap.Queue = queue.Status()
	}
	if engine != nil {
		snap.Context = engine.Snapshot()
	}
	return snap
}

// Execute runs the plan to completion or cancellation. Individual task
// failures are recorded and do not abort siblings or the run; only an invalid
// strategy or a run-level cancellation is fatal. Results collected before a
// cancellation are still aggregated.
func (p *Pipeline) Execute(ctx context.Context, repo provider.RepoContext) (*ExecutionReport, error) {
	started := time.Now()

	agents := make(map[AgentID]AgentConfig, len(p.cfg.Agents))
	order := make([]AgentID, 0, len(p.cfg.Agents))
	for _, a := range p.cfg.Agents {
		agents[a.ID()] = a
		order = append(order, a.ID())
	}

	strategy := p.cfg.Strategy
	if strategy == nil {
		var err error
		strategy, err = ResolveStrategy(p.cfg.Mode, order)
		if err != nil {
			return nil, err
		}
	} else if err := strategy.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Published under the mutex: Snapshot and Engine may be reading from
	// another goroutine while the run starts.
	queue := NewExecutionQueue(runCtx, p.cfg.MaxConcurrent, p.ledger)
	engine := NewCoordinationEngine(strategy)
	p.mu.Lock()
	p.queue = queue
	p.engine = engine
	p.mu.Unlock()

	// Cleanup is not best-effort: the queue drains, the engine tears down its
	// subscriptions and the final progress event flushes on every exit path,
	// including panics from programming errors.
	var runErr error
	defer func() {
		r := recover()
		p.queue.Drain()
		p.engine.Close()
		status := monitoring.StatusCompleted
		if runErr != nil || r != nil {
			status = monitoring.StatusFailed
		}
		p.tracker.EndRun(status, p.perf.Summary())
		if r != nil {
			panic(r)
		}
	}()

	log.InfoLog.Printf("run %s: strategy %q, %d tasks in %d groups, %d slots",
		p.runID, strategy.Name, strategy.TaskCount(), len(strategy.ParallelGroups), p.cfg.MaxConcurrent)
	p.tracker.BeginRun(strategy.TaskCount())

	for !p.engine.Done() {
		eligible := p.engine.EligibleTasks()
		if len(eligible) == 0 {
			// Settle-all below guarantees the current group is terminal before
			// the next iteration, so this is unreachable unless the engine is
			// driven concurrently by someone else.
			runErr = fmt.Errorf("no eligible tasks but plan not done")
			break
		}

		phase := fmt.Sprintf("group-%d", p.engine.CurrentGroup()+1)
		p.perf.PhaseStarted(phase)
		p.tracker.BeginPhase(phase)

		handles := make([]*TaskHandle, 0, len(eligible))
		for _, id := range eligible {
			cfg, declared := agents[id]
			if !declared {
				// Plan references an identity outside the declared agent set.
				// Report it as skipped and keep the group moving.
				p.engine.MarkSkipped(id)
				p.record(&ExecutionResult{
					ID:         id,
					State:      StateSkipped,
					SkipReason: "agent not declared in run configuration",
				})
				p.tracker.TaskSettled(id.String(), monitoring.StatusSkipped, "not declared")
				continue
			}

			if err := p.engine.Register(id); err != nil {
				runErr = err
				break
			}
			handles = append(handles, p.queue.Submit(id, cfg.Priority, p.taskWork(cfg, repo)))
		}
		if runErr != nil {
			break
		}

		p.settleGroup(runCtx, handles)
		p.perf.PhaseFinished(phase)

		if runCtx.Err() != nil {
			runErr = runCtx.Err()
			break
		}
	}

	report := p.buildReport(started, runErr)
	return report, nil
}

// settleGroup waits for every handle in the group to reach a terminal state.
// On run cancellation the queue is drained so queued tasks settle immediately
// with ErrTaskDropped, then the remaining in-flight handles are awaited:
// their work observes the cancelled context and returns.
func (p *Pipeline) settleGroup(runCtx context.Context, handles []*TaskHandle) {
	drained := false
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-runCtx.Done():
			if !drained {
				p.queue.Drain()
				drained = true
			}
			<-h.Done()
		}
		p.settleTask(h)
	}
}

func (p *Pipeline) settleTask(h *TaskHandle) {
	id := h.ID()
	raw, err := h.Wait(context.Background()) // already settled

	result := &ExecutionResult{ID: id}
	if err != nil {
		result.State = StateFailed
		result.Err = err
		result.ErrMsg = err.Error()
		var timeout *TimeoutError
		if errors.As(err, &timeout) {
			result.TimedOut = true
		}
		p.engine.MarkFailed(id)
		p.tracker.TaskSettled(id.String(), monitoring.StatusFailed, err.Error())
		log.WarningLog.Printf("run %s: task %s failed: %v", p.runID, id, err)
	} else {
		outcome := raw.(*taskOutcome)
		result.State = StateCompleted
		result.Findings = outcome.res.Findings
		result.TokensUsed = outcome.res.TokensUsed
		result.EstimatedCost = outcome.res.Cost
		result.StartedAt = outcome.startedAt
		result.FinishedAt = outcome.finishedAt
		result.Duration = outcome.finishedAt.Sub(outcome.startedAt)
		result.UsedFallback = outcome.usedFallback
		if outcome.usedFallback {
			result.FallbackProvider = outcome.fallbackProvider
		}
		p.engine.MarkCompleted(id)
		p.tracker.TaskSettled(id.String(), monitoring.StatusCompleted,
			fmt.Sprintf("%d findings", len(result.Findings)))
		p.perf.RecordTask(result.Duration)

		p.engine.AddCrossAgentInsight(id.String(), InsightTargetAll, map[string]interface{}{
			"findings": len(result.Findings),
			"tokens":   outcome.res.TokensUsed,
		})
	}

	p.record(result)
}

// taskWork builds the unit of work the queue runs for one agent: efficiency
// gate check, fallback substitution, context enrichment, then the
// timeout-guarded provider call.
func (p *Pipeline) taskWork(cfg AgentConfig, repo provider.RepoContext) WorkFunc {
	id := cfg.ID()
	return func(ctx context.Context) (interface{}, error) {
		p.engine.MarkRunning(id)
		p.tracker.TaskRunning(id.String())

		// Insights published before the call are folded into the request
		// below. The provider call is single-shot, so an insight arriving
		// mid-call has nothing left to influence; the subscription logs it
		// and exists so the channel is torn down when the task settles.
		_ = p.engine.Subscribe(id.String(), func(in Insight) {
			log.DebugLog.Printf("run %s: insight %s from %s arrived while %s was in flight",
				p.runID, in.ID, in.Source, id)
		})
		defer p.engine.Unsubscribe(id.String())

		callProvider := id.Provider
		usedFallback := false

		admission := p.gate.CheckAdmission(id.Provider, id.Role, cfg.EstimatedTokens)
		if !admission.Allowed {
			if admission.Replacement == "" {
				return nil, &AdmissionDeniedError{ID: id, Reason: admission.Reason}
			}
			callProvider = admission.Replacement
			usedFallback = true
			log.InfoLog.Printf("run %s: task %s redirected to provider %s", p.runID, id, callProvider)
		}

		caller, err := p.providers.Lookup(callProvider)
		if err != nil {
			return nil, &AdmissionDeniedError{ID: id, Reason: err.Error()}
		}

		background := provider.EnrichOrEmpty(ctx, p.enricher, id.Role, repo)

		var notes []string
		for _, in := range p.engine.InsightsFor(id.String()) {
			notes = append(notes, fmt.Sprintf("%s: %v", in.Source, in.Data))
		}

		req := &provider.Request{
			Provider:        callProvider,
			Role:            id.Role,
			Repo:            repo,
			Background:      background,
			Insights:        notes,
			EstimatedTokens: cfg.EstimatedTokens,
		}

		startedAt := time.Now()
		raw, err := RunWithTimeout(ctx, id, p.cfg.TaskTimeout, func(callCtx context.Context) (interface{}, error) {
			return caller.Call(callCtx, req)
		})
		finishedAt := time.Now()
		if err != nil {
			var timeout *TimeoutError
			if errors.As(err, &timeout) || ctx.Err() != nil {
				return nil, err
			}
			return nil, &ProviderError{ID: id, Err: err}
		}

		res := raw.(*provider.Result)
		p.ledger.AddTokens(callProvider, res.TokensUsed)
		if usedFallback {
			p.noteFallback(callProvider)
		}

		return &taskOutcome{
			res:              res,
			startedAt:        startedAt,
			finishedAt:       finishedAt,
			usedFallback:     usedFallback,
			fallbackProvider: callProvider,
		}, nil
	}
}

func (p *Pipeline) record(result *ExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[result.ID] = result
}

func (p *Pipeline) noteFallback(providerName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbacks.TasksOnFallback++
	p.fallbacks.ByProvider[providerName]++
}

func (p *Pipeline) buildReport(started time.Time, runErr error) *ExecutionReport {
	p.mu.Lock()
	results := make(map[AgentID]*ExecutionResult, len(p.results))
	for id, r := range p.results {
		results[id] = r
	}
	fallbacks := FallbackStats{
		TasksOnFallback: p.fallbacks.TasksOnFallback,
		ByProvider:      make(map[string]int, len(p.fallbacks.ByProvider)),
	}
	for name, n := range p.fallbacks.ByProvider {
		fallbacks.ByProvider[name] = n
	}
	p.mu.Unlock()

	report := &ExecutionReport{
		RunID:      p.runID,
		Results:    results,
		Aggregated: aggregateSafe(results),
		Success:    runErr == nil,
		Duration:   time.Since(started),
		Fallbacks:  fallbacks,
	}
	if runErr != nil {
		report.Errors = append(report.Errors, runErr.Error())
	}
	return report
}
