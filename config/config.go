package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"codeswarm/scheduler"
)

// Config is the complete codeswarm configuration.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Repo      RepoConfig      `mapstructure:"repo"`
}

// SchedulerConfig controls run shape and concurrency.
type SchedulerConfig struct {
	// Mode is the analysis mode: quick, standard, comprehensive or deep.
	Mode string `mapstructure:"mode"`
	// ResourceStrategy defaults concurrency/timeouts: balanced, speed or cost-optimized.
	ResourceStrategy string `mapstructure:"resource_strategy"`
	// MaxConcurrentAgents bounds simultaneously running agents.
	MaxConcurrentAgents int `mapstructure:"max_concurrent_agents"`
	// AgentTimeoutMs is the per-agent deadline in milliseconds.
	AgentTimeoutMs int `mapstructure:"agent_timeout_ms"`
	// Agents declares the run's tasks.
	Agents []scheduler.AgentConfig `mapstructure:"agents"`
}

// ProvidersConfig holds per-provider policy.
type ProvidersConfig struct {
	// TokenLimits is the per-call token budget by provider name.
	TokenLimits map[string]int64 `mapstructure:"token_limits"`
	// Replacements names the fallback provider used when one is blacklisted.
	Replacements map[string]string `mapstructure:"replacements"`
}

// RepoConfig identifies the repository under analysis.
type RepoConfig struct {
	Repository string `mapstructure:"repository"`
	Branch     string `mapstructure:"branch"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Mode:                scheduler.ModeStandard,
			ResourceStrategy:    scheduler.StrategyBalanced,
			MaxConcurrentAgents: scheduler.DefaultMaxConcurrent,
			AgentTimeoutMs:      int(scheduler.DefaultTaskTimeout / time.Millisecond),
			Agents: []scheduler.AgentConfig{
				{Provider: "openai", Role: scheduler.RoleSecurity, Priority: 8, EstimatedTokens: 8000},
				{Provider: "anthropic", Role: scheduler.RoleQuality, Priority: 6, EstimatedTokens: 8000},
				{Provider: "openai", Role: scheduler.RoleArchitecture, Priority: 5, EstimatedTokens: 12000},
			},
		},
		Providers: ProvidersConfig{
			TokenLimits: map[string]int64{
				"openai":    30000,
				"anthropic": 30000,
				"google":    20000,
			},
			Replacements: map[string]string{
				"openai":    "anthropic",
				"anthropic": "google",
			},
		},
	}
}

// Load reads configuration from codeswarm.yaml (searched in the working
// directory and $HOME/.config/codeswarm), layered over defaults and under
// CODESWARM_* environment overrides. A missing file is not an error.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("codeswarm")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/codeswarm")

	v.SetEnvPrefix("CODESWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("scheduler.mode", defaults.Scheduler.Mode)
	v.SetDefault("scheduler.resource_strategy", defaults.Scheduler.ResourceStrategy)
	v.SetDefault("scheduler.max_concurrent_agents", defaults.Scheduler.MaxConcurrentAgents)
	v.SetDefault("scheduler.agent_timeout_ms", defaults.Scheduler.AgentTimeoutMs)
	v.SetDefault("scheduler.agents", defaults.Scheduler.Agents)

	v.SetDefault("providers.token_limits", defaults.Providers.TokenLimits)
	v.SetDefault("providers.replacements", defaults.Providers.Replacements)

	v.SetDefault("repo.repository", "")
	v.SetDefault("repo.branch", "main")
}

// PipelineConfig converts the loaded configuration to a scheduler
// PipelineConfig.
func (c Config) PipelineConfig() scheduler.PipelineConfig {
	return scheduler.PipelineConfig{
		Mode:             c.Scheduler.Mode,
		ResourceStrategy: c.Scheduler.ResourceStrategy,
		MaxConcurrent:    c.Scheduler.MaxConcurrentAgents,
		TaskTimeout:      time.Duration(c.Scheduler.AgentTimeoutMs) * time.Millisecond,
		TokenLimits:      c.Providers.TokenLimits,
		Replacements:     c.Providers.Replacements,
		Agents:           c.Scheduler.Agents,
	}
}
