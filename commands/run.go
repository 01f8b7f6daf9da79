// Package commands holds the executable entry points shared by the CLI
// binaries: wiring a loaded configuration into a pipeline run and rendering
// the resulting report.
package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"

	"codeswarm/config"
	"codeswarm/log"
	"codeswarm/monitoring"
	"codeswarm/provider"
	"codeswarm/scheduler"
)

// BuildRegistry constructs the provider registry for a run. Every provider
// referenced by the agent set or the replacement table gets a caller, so a
// fallback substitution never fails on a missing registration.
func BuildRegistry(cfg config.Config) *provider.Registry {
	registry := provider.NewRegistry()

	names := make(map[string]bool)
	for _, a := range cfg.Scheduler.Agents {
		names[a.Provider] = true
	}
	for from, to := range cfg.Providers.Replacements {
		names[from] = true
		names[to] = true
	}

	for name := range names {
		registry.Register(name, provider.NewStubCaller(name))
	}
	return registry
}

// RunAnalysis executes one analysis run from the loaded configuration and
// prints a human-readable report. Returns an error only for run-level
// failures; individual task failures are reported in the output.
func RunAnalysis(ctx context.Context, cfg config.Config) error {
	registry := BuildRegistry(cfg)

	sink := monitoring.NewChannelSink(256)
	pipeline := scheduler.NewPipeline(cfg.PipelineConfig(), registry, nil, sink)

	// Drains for the life of the process; the sink never blocks the run.
	go func() {
		for e := range sink.Events() {
			if e.Task != "" {
				log.InfoLog.Printf("[%5.1f%%] %s: %s %s", e.Percent, e.Phase, e.Task, e.Status)
			}
		}
	}()

	repo := provider.RepoContext{
		Repository: cfg.Repo.Repository,
		Branch:     cfg.Repo.Branch,
	}

	log.InfoLog.Printf("run %s starting: mode=%s agents=%d",
		pipeline.RunID(), cfg.Scheduler.Mode, len(cfg.Scheduler.Agents))

	report, err := pipeline.Execute(ctx, repo)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	PrintReport(report)
	return nil
}

// PrintReport renders an execution report to stdout.
func PrintReport(report *scheduler.ExecutionReport) {
	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	header.Printf("\nRun %s\n", report.RunID)
	fmt.Printf("Duration: %v\n", report.Duration.Round(1e6))
	if report.Success {
		good.Println("Status: success")
	} else {
		bad.Println("Status: failed")
	}

	ids := make([]scheduler.AgentID, 0, len(report.Results))
	for id := range report.Results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	fmt.Println("\nTasks:")
	for _, id := range ids {
		r := report.Results[id]
		line := fmt.Sprintf("  %-30s %-10s %6d tokens  %v", id, r.State, r.TokensUsed, r.Duration.Round(1e6))
		switch {
		case r.Succeeded():
			good.Println(line)
		case r.State == scheduler.StateSkipped:
			warn.Printf("%s  (%s)\n", line, r.SkipReason)
		default:
			bad.Printf("%s  (%s)\n", line, r.ErrMsg)
		}
		if r.UsedFallback {
			warn.Printf("    fallback -> %s\n", r.FallbackProvider)
		}
	}

	if agg := report.Aggregated; agg != nil {
		fmt.Printf("\nFindings: %d unique (%d collected, %d duplicates removed, %.0f%% dedup)\n",
			agg.Stats.UniqueCount, agg.Stats.OriginalCount, agg.Stats.DuplicatesRemoved,
			agg.Stats.DeduplicationRate*100)
		for _, f := range agg.Findings {
			loc := ""
			if f.File != "" {
				loc = fmt.Sprintf(" (%s:%d)", f.File, f.Line)
			}
			fmt.Printf("  [%s] %s: %s%s\n", f.Severity, f.Category, f.Message, loc)
		}
	}

	if report.Fallbacks.TasksOnFallback > 0 {
		warn.Printf("\nFallbacks: %d task(s) ran on a replacement provider\n", report.Fallbacks.TasksOnFallback)
	}
	for _, msg := range report.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
}
