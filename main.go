package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeswarm/commands"
	"codeswarm/config"
	"codeswarm/log"
	"codeswarm/scheduler"
)

var (
	version = "0.1.0"

	modeFlag      string
	strategyFlag  string
	maxAgentsFlag int
	repoFlag      string

	rootCmd = &cobra.Command{
		Use:   "codeswarm",
		Short: "Codeswarm - concurrency-gated multi-agent code analysis",
		Long: "Codeswarm schedules multiple analysis agents against a repository, " +
			"bounding concurrency, enforcing per-provider token budgets, and merging " +
			"the findings into one deduplicated report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize()
			defer log.Close()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(&cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return commands.RunAnalysis(ctx, cfg)
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize()
			defer log.Close()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(&cfg)

			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Printf("%s\n", data)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of codeswarm",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codeswarm version %s\n", version)
		},
	}
)

func applyFlags(cfg *config.Config) {
	if modeFlag != "" {
		cfg.Scheduler.Mode = modeFlag
	}
	if strategyFlag != "" {
		cfg.Scheduler.ResourceStrategy = strategyFlag
	}
	if maxAgentsFlag > 0 {
		cfg.Scheduler.MaxConcurrentAgents = maxAgentsFlag
	}
	if repoFlag != "" {
		cfg.Repo.Repository = repoFlag
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&modeFlag, "mode", "m", "",
		fmt.Sprintf("Analysis mode: %s, %s, %s or %s",
			scheduler.ModeQuick, scheduler.ModeStandard, scheduler.ModeComprehensive, scheduler.ModeDeep))
	rootCmd.PersistentFlags().StringVar(&strategyFlag, "strategy", "",
		fmt.Sprintf("Resource strategy: %s, %s or %s",
			scheduler.StrategyBalanced, scheduler.StrategySpeed, scheduler.StrategyCostOptimized))
	rootCmd.PersistentFlags().IntVar(&maxAgentsFlag, "max-agents", 0,
		"Maximum number of agents running at once (0 uses the configured value)")
	rootCmd.PersistentFlags().StringVarP(&repoFlag, "repo", "r", "",
		"Repository to analyze (overrides config)")

	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "codeswarm: %v\n", err)
		os.Exit(1)
	}
}
