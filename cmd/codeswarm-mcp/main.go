// codeswarm-mcp runs an analysis and exposes its live coordination state over
// the Model Context Protocol on stdio. MCP hosts spawn this binary directly;
// the run starts when the server does and agents query it while it executes.
package main

import (
	"context"
	"fmt"
	"os"

	"codeswarm/commands"
	"codeswarm/config"
	"codeswarm/log"
	codeswarmmcp "codeswarm/mcp"
	"codeswarm/provider"
	"codeswarm/scheduler"
)

func main() {
	log.Initialize()
	defer log.Close()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "codeswarm-mcp: %v\n", err)
		os.Exit(1)
	}
	if repo := os.Getenv("CODESWARM_REPOSITORY"); repo != "" {
		cfg.Repo.Repository = repo
	}

	registry := commands.BuildRegistry(cfg)
	pipeline := scheduler.NewPipeline(cfg.PipelineConfig(), registry, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		repo := provider.RepoContext{
			Repository: cfg.Repo.Repository,
			Branch:     cfg.Repo.Branch,
		}
		if _, err := pipeline.Execute(ctx, repo); err != nil {
			log.ErrorLog.Printf("run %s failed: %v", pipeline.RunID(), err)
		}
	}()

	srv := codeswarmmcp.NewSchedulerMCPServer(pipeline)
	if err := srv.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "codeswarm-mcp: %v\n", err)
		os.Exit(1)
	}
}
