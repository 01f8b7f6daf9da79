package scheduler

import (
	"fmt"
)

// Analysis roles understood by the built-in strategy catalog.
const (
	RoleSecurity     = "security"
	RoleQuality      = "quality"
	RolePerformance  = "performance"
	RoleArchitecture = "architecture"
	RoleDependencies = "dependencies"
	RoleSynthesis    = "synthesis"
)

// Analysis modes resolvable to a coordination strategy.
const (
	ModeQuick         = "quick"
	ModeStandard      = "standard"
	ModeComprehensive = "comprehensive"
	ModeDeep          = "deep"
)

// CoordinationStrategy is an immutable execution plan: an ordered list of
// parallel groups. Groups are processed strictly in order; a task becomes
// eligible only once every task in every earlier group is terminal. Tasks
// within a group have no ordering guarantee relative to each other.
type CoordinationStrategy struct {
	Name           string     `json:"name"`
	ExecutionOrder []AgentID  `json:"execution_order"`
	ParallelGroups [][]AgentID `json:"parallel_groups"`
}

// modeStages maps each mode to its role stages. An agent runs in the earliest
// stage naming its role; roles no stage names run in the final stage.
var modeStages = map[string][][]string{
	ModeStandard: {
		{RoleSecurity, RoleQuality, RolePerformance},
		{RoleArchitecture, RoleDependencies, RoleSynthesis},
	},
	ModeComprehensive: {
		{RoleSecurity, RoleQuality, RolePerformance},
		{RoleArchitecture, RoleDependencies},
		{RoleSynthesis},
	},
	// deep runs the comprehensive plan; the pipeline lengthens timeouts.
	ModeDeep: {
		{RoleSecurity, RoleQuality, RolePerformance},
		{RoleArchitecture, RoleDependencies},
		{RoleSynthesis},
	},
}

// KnownMode reports whether mode resolves to a built-in strategy.
func KnownMode(mode string) bool {
	if mode == ModeQuick {
		return true
	}
	_, ok := modeStages[mode]
	return ok
}

// ResolveStrategy builds the coordination strategy for an analysis mode over
// the declared agents. Unknown modes are a *ConfigurationError: the run
// cannot proceed without a valid plan.
func ResolveStrategy(mode string, agents []AgentID) (*CoordinationStrategy, error) {
	if len(agents) == 0 {
		return nil, &ConfigurationError{Strategy: mode, Detail: "no agents declared"}
	}

	if mode == ModeQuick {
		group := make([]AgentID, len(agents))
		copy(group, agents)
		return NewStrategy(ModeQuick, [][]AgentID{group})
	}

	stages, ok := modeStages[mode]
	if !ok {
		return nil, &ConfigurationError{Strategy: mode, Detail: "unknown analysis mode"}
	}

	groups := make([][]AgentID, len(stages))
	for _, agent := range agents {
		idx := len(stages) - 1
		for i, roles := range stages {
			if containsRole(roles, agent.Role) {
				idx = i
				break
			}
		}
		groups[idx] = append(groups[idx], agent)
	}

	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}

	return NewStrategy(mode, nonEmpty)
}

// NewStrategy builds a strategy from explicit parallel groups, deriving the
// flat execution order, and validates it.
func NewStrategy(name string, groups [][]AgentID) (*CoordinationStrategy, error) {
	var order []AgentID
	for _, group := range groups {
		order = append(order, group...)
	}

	s := &CoordinationStrategy{
		Name:           name,
		ExecutionOrder: order,
		ParallelGroups: groups,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the plan invariant: every identity in ParallelGroups
// appears in ExecutionOrder exactly once, and vice versa. Violations are a
// *ConfigurationError.
func (s *CoordinationStrategy) Validate() error {
	if len(s.ParallelGroups) == 0 {
		return &ConfigurationError{Strategy: s.Name, Detail: "no parallel groups"}
	}

	inGroups := make(map[AgentID]int)
	for _, group := range s.ParallelGroups {
		if len(group) == 0 {
			return &ConfigurationError{Strategy: s.Name, Detail: "empty parallel group"}
		}
		for _, id := range group {
			inGroups[id]++
			if inGroups[id] > 1 {
				return &ConfigurationError{
					Strategy: s.Name,
					Detail:   fmt.Sprintf("task %s appears in more than one group", id),
				}
			}
		}
	}

	inOrder := make(map[AgentID]int)
	for _, id := range s.ExecutionOrder {
		inOrder[id]++
		if inOrder[id] > 1 {
			return &ConfigurationError{
				Strategy: s.Name,
				Detail:   fmt.Sprintf("task %s appears in execution order more than once", id),
			}
		}
	}

	for id := range inGroups {
		if inOrder[id] == 0 {
			return &ConfigurationError{
				Strategy: s.Name,
				Detail:   fmt.Sprintf("task %s missing from execution order", id),
			}
		}
	}
	for id := range inOrder {
		if inGroups[id] == 0 {
			return &ConfigurationError{
				Strategy: s.Name,
				Detail:   fmt.Sprintf("task %s in execution order but no group", id),
			}
		}
	}

	return nil
}

// TaskCount returns the number of tasks in the plan.
func (s *CoordinationStrategy) TaskCount() int {
	return len(s.ExecutionOrder)
}

// Contains reports whether the plan schedules the given identity.
func (s *CoordinationStrategy) Contains(id AgentID) bool {
	for _, other := range s.ExecutionOrder {
		if other == id {
			return true
		}
	}
	return false
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
