package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentIDs(pairs ...[2]string) []AgentID {
	out := make([]AgentID, len(pairs))
	for i, p := range pairs {
		out[i] = AgentID{Provider: p[0], Role: p[1]}
	}
	return out
}

func TestResolveStrategyQuick(t *testing.T) {
	agents := agentIDs(
		[2]string{"openai", RoleSecurity},
		[2]string{"anthropic", RoleQuality},
		[2]string{"google", RoleSynthesis},
	)

	s, err := ResolveStrategy(ModeQuick, agents)
	require.NoError(t, err)

	assert.Len(t, s.ParallelGroups, 1, "quick mode runs everything in one group")
	assert.ElementsMatch(t, agents, s.ParallelGroups[0])
	assert.Equal(t, 3, s.TaskCount())
}

func TestResolveStrategyStandard(t *testing.T) {
	agents := agentIDs(
		[2]string{"openai", RoleSecurity},
		[2]string{"anthropic", RoleQuality},
		[2]string{"openai", RoleArchitecture},
		[2]string{"google", RoleSynthesis},
	)

	s, err := ResolveStrategy(ModeStandard, agents)
	require.NoError(t, err)

	require.Len(t, s.ParallelGroups, 2)
	assert.ElementsMatch(t, agentIDs(
		[2]string{"openai", RoleSecurity},
		[2]string{"anthropic", RoleQuality},
	), s.ParallelGroups[0])
	assert.ElementsMatch(t, agentIDs(
		[2]string{"openai", RoleArchitecture},
		[2]string{"google", RoleSynthesis},
	), s.ParallelGroups[1])
}

func TestResolveStrategyComprehensiveStages(t *testing.T) {
	agents := agentIDs(
		[2]string{"openai", RoleSecurity},
		[2]string{"anthropic", RoleDependencies},
		[2]string{"google", RoleSynthesis},
	)

	s, err := ResolveStrategy(ModeComprehensive, agents)
	require.NoError(t, err)

	require.Len(t, s.ParallelGroups, 3)
	assert.Equal(t, agentIDs([2]string{"openai", RoleSecurity}), s.ParallelGroups[0])
	assert.Equal(t, agentIDs([2]string{"anthropic", RoleDependencies}), s.ParallelGroups[1])
	assert.Equal(t, agentIDs([2]string{"google", RoleSynthesis}), s.ParallelGroups[2])
}

func TestResolveStrategyDropsEmptyStages(t *testing.T) {
	// Only first-stage roles declared: later stages must not appear as empty
	// groups.
	agents := agentIDs(
		[2]string{"openai", RoleSecurity},
		[2]string{"anthropic", RoleQuality},
	)

	s, err := ResolveStrategy(ModeComprehensive, agents)
	require.NoError(t, err)
	assert.Len(t, s.ParallelGroups, 1)
}

func TestResolveStrategyUnknownRoleGoesLast(t *testing.T) {
	agents := agentIDs(
		[2]string{"openai", RoleSecurity},
		[2]string{"anthropic", "licensing"},
	)

	s, err := ResolveStrategy(ModeStandard, agents)
	require.NoError(t, err)

	require.Len(t, s.ParallelGroups, 2)
	assert.Equal(t, agentIDs([2]string{"anthropic", "licensing"}), s.ParallelGroups[1])
}

func TestResolveStrategyErrors(t *testing.T) {
	agents := agentIDs([2]string{"openai", RoleSecurity})

	_, err := ResolveStrategy("turbo", agents)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "turbo", cfgErr.Strategy)

	_, err = ResolveStrategy(ModeStandard, nil)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestKnownMode(t *testing.T) {
	for _, mode := range []string{ModeQuick, ModeStandard, ModeComprehensive, ModeDeep} {
		assert.True(t, KnownMode(mode), mode)
	}
	assert.False(t, KnownMode("turbo"))
}

func TestStrategyValidate(t *testing.T) {
	a := AgentID{Provider: "openai", Role: RoleSecurity}
	b := AgentID{Provider: "anthropic", Role: RoleQuality}

	tests := []struct {
		name     string
		strategy CoordinationStrategy
		detail   string
	}{
		{
			name:     "no groups",
			strategy: CoordinationStrategy{Name: "bad"},
			detail:   "no parallel groups",
		},
		{
			name: "empty group",
			strategy: CoordinationStrategy{
				Name:           "bad",
				ExecutionOrder: []AgentID{a},
				ParallelGroups: [][]AgentID{{a}, {}},
			},
			detail: "empty parallel group",
		},
		{
			name: "duplicate across groups",
			strategy: CoordinationStrategy{
				Name:           "bad",
				ExecutionOrder: []AgentID{a, b},
				ParallelGroups: [][]AgentID{{a}, {a, b}},
			},
			detail: "more than one group",
		},
		{
			name: "missing from order",
			strategy: CoordinationStrategy{
				Name:           "bad",
				ExecutionOrder: []AgentID{a},
				ParallelGroups: [][]AgentID{{a, b}},
			},
			detail: "missing from execution order",
		},
		{
			name: "order has extra task",
			strategy: CoordinationStrategy{
				Name:           "bad",
				ExecutionOrder: []AgentID{a, b},
				ParallelGroups: [][]AgentID{{a}},
			},
			detail: "no group",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.strategy.Validate()
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Detail, tt.detail)
		})
	}
}

func TestNewStrategyDerivesOrder(t *testing.T) {
	a := AgentID{Provider: "openai", Role: RoleSecurity}
	b := AgentID{Provider: "anthropic", Role: RoleQuality}
	c := AgentID{Provider: "google", Role: RoleSynthesis}

	s, err := NewStrategy("custom", [][]AgentID{{a, b}, {c}})
	require.NoError(t, err)

	assert.Equal(t, []AgentID{a, b, c}, s.ExecutionOrder)
	assert.True(t, s.Contains(b))
	assert.False(t, s.Contains(AgentID{Provider: "x", Role: "y"}))
}
