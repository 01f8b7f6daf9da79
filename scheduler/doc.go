// Package scheduler coordinates concurrent analysis agents against a bounded
// pool of execution slots.
//
// # Core Components
//
// ExecutionQueue - Admission-controlled task queue with priority ordering
//
//	queue := NewExecutionQueue(ctx, 5, ledger)
//	handle := queue.Submit(id, priority, work)
//	result, err := handle.Wait(ctx)
//
// EfficiencyGate - Per-provider token budget and blacklist check
//
//	gate := NewEfficiencyGate(ledger, blacklist, limits)
//	admission := gate.CheckAdmission("openai", "security", 12000)
//
// CoordinationEngine - Dependency-ordered group execution with cross-agent insights
//
//	engine := NewCoordinationEngine(strategy)
//	eligible := engine.EligibleTasks()
//	engine.Subscribe("all", callback)
//
// Pipeline - Top-level driver: strategy resolution, group-by-group execution,
// result collection and aggregation
//
//	pipeline := NewPipeline(cfg, registry, enricher, sink)
//	report, err := pipeline.Execute(ctx, repo)
//
// The queue is the single serialization point for admission decisions: all
// slot-count mutations happen under its mutex, so observed concurrency never
// exceeds the configured maximum. Cross-task ordering is promised only at
// group boundaries; tasks within a group run in no particular order.
package scheduler
