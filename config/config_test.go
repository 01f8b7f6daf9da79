package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/log"
	"codeswarm/scheduler"
)

// TestMain runs before all tests to set up the test environment
func TestMain(m *testing.M) {
	// Initialize the logger before any tests run
	log.Initialize()
	defer log.Close()

	exitCode := m.Run()
	os.Exit(exitCode)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, scheduler.ModeStandard, cfg.Scheduler.Mode)
	assert.Equal(t, scheduler.DefaultMaxConcurrent, cfg.Scheduler.MaxConcurrentAgents)
	assert.NotEmpty(t, cfg.Scheduler.Agents)
	assert.Equal(t, int64(30000), cfg.Providers.TokenLimits["openai"])
	assert.Equal(t, "anthropic", cfg.Providers.Replacements["openai"])
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, scheduler.ModeStandard, cfg.Scheduler.Mode)
	assert.Equal(t, scheduler.DefaultMaxConcurrent, cfg.Scheduler.MaxConcurrentAgents)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
scheduler:
  mode: comprehensive
  max_concurrent_agents: 2
  agents:
    - provider: openai
      role: security
      priority: 9
      estimated_tokens: 4000
providers:
  token_limits:
    openai: 12000
repo:
  repository: acme/api
  branch: develop
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codeswarm.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, scheduler.ModeComprehensive, cfg.Scheduler.Mode)
	assert.Equal(t, 2, cfg.Scheduler.MaxConcurrentAgents)
	require.Len(t, cfg.Scheduler.Agents, 1)
	assert.Equal(t, "openai", cfg.Scheduler.Agents[0].Provider)
	assert.Equal(t, 9, cfg.Scheduler.Agents[0].Priority)
	assert.Equal(t, int64(12000), cfg.Providers.TokenLimits["openai"])
	assert.Equal(t, "acme/api", cfg.Repo.Repository)
	assert.Equal(t, "develop", cfg.Repo.Branch)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CODESWARM_SCHEDULER_MODE", "deep")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, scheduler.ModeDeep, cfg.Scheduler.Mode)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codeswarm.yaml"), []byte("scheduler: ["), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestPipelineConfigConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.AgentTimeoutMs = 90_000
	cfg.Scheduler.Mode = scheduler.ModeQuick

	pc := cfg.PipelineConfig()

	assert.Equal(t, scheduler.ModeQuick, pc.Mode)
	assert.Equal(t, 90*time.Second, pc.TaskTimeout)
	assert.Equal(t, cfg.Providers.TokenLimits, pc.TokenLimits)
	assert.Equal(t, cfg.Providers.Replacements, pc.Replacements)
	assert.Len(t, pc.Agents, len(cfg.Scheduler.Agents))
}
