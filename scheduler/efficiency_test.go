package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(limits map[string]int64, replacements map[string]string) (*EfficiencyGate, *MemoryBlacklist) {
	blacklist := NewMemoryBlacklist(replacements)
	return NewEfficiencyGate(NewUsageLedger(), blacklist, limits), blacklist
}

func TestGateAllowsWithinLimit(t *testing.T) {
	gate, _ := newTestGate(map[string]int64{"openai": 10000}, nil)

	admission := gate.CheckAdmission("openai", "security", 8000)
	assert.True(t, admission.Allowed)
	assert.Empty(t, admission.Replacement)
	assert.Zero(t, gate.Strikes(AgentID{Provider: "openai", Role: "security"}))
}

func TestGateStrikesOnModerateOverage(t *testing.T) {
	gate, blacklist := newTestGate(map[string]int64{"openai": 10000}, nil)

	// 1.5x the limit: a strike, but still admitted.
	admission := gate.CheckAdmission("openai", "security", 15000)
	assert.True(t, admission.Allowed)
	assert.Equal(t, 1, gate.Strikes(AgentID{Provider: "openai", Role: "security"}))
	assert.False(t, blacklist.IsBlacklisted("openai", "security"))

	admission = gate.CheckAdmission("openai", "security", 15000)
	assert.True(t, admission.Allowed)
	assert.Equal(t, 2, gate.Strikes(AgentID{Provider: "openai", Role: "security"}))
}

func TestGateBlacklistsOnExtremeOverage(t *testing.T) {
	gate, blacklist := newTestGate(
		map[string]int64{"openai": 10000},
		map[string]string{"openai": "anthropic"},
	)

	// Past 2x the limit the pair is blacklisted and denied immediately.
	admission := gate.CheckAdmission("openai", "security", 25000)
	assert.False(t, admission.Allowed)
	assert.Equal(t, "anthropic", admission.Replacement)
	assert.True(t, blacklist.IsBlacklisted("openai", "security"))

	reason, ok := blacklist.BlacklistReason("openai", "security")
	require.True(t, ok)
	assert.Contains(t, reason, "exceeds")

	// Subsequent admissions for the pair are denied without re-striking.
	admission = gate.CheckAdmission("openai", "security", 100)
	assert.False(t, admission.Allowed)
	assert.Equal(t, "anthropic", admission.Replacement)
}

func TestGateExactlyDoubleIsNotBlacklisted(t *testing.T) {
	gate, blacklist := newTestGate(map[string]int64{"openai": 10000}, nil)

	admission := gate.CheckAdmission("openai", "security", 20000)
	assert.True(t, admission.Allowed, "2.0x exactly is a strike, not a blacklist")
	assert.Equal(t, 1, gate.Strikes(AgentID{Provider: "openai", Role: "security"}))
	assert.False(t, blacklist.IsBlacklisted("openai", "security"))
}

func TestGateBlacklistScopedToRole(t *testing.T) {
	gate, blacklist := newTestGate(map[string]int64{"openai": 10000}, nil)

	gate.CheckAdmission("openai", "security", 50000)
	require.True(t, blacklist.IsBlacklisted("openai", "security"))

	admission := gate.CheckAdmission("openai", "quality", 8000)
	assert.True(t, admission.Allowed, "blacklist entries are per provider/role pair")
}

func TestGateDefaultLimit(t *testing.T) {
	gate, _ := newTestGate(nil, nil)

	assert.Equal(t, int64(DefaultTokenLimit), gate.Limit("unconfigured"))

	gate.SetDefaultLimit(1000)
	assert.Equal(t, int64(1000), gate.Limit("unconfigured"))

	admission := gate.CheckAdmission("unconfigured", "quality", 5000)
	assert.False(t, admission.Allowed, "5x the default limit blacklists")
}

func TestBlacklistReplacementChain(t *testing.T) {
	blacklist := NewMemoryBlacklist(map[string]string{
		"openai":    "anthropic",
		"anthropic": "google",
	})

	replacement, ok := blacklist.FindReplacement("openai", "security")
	require.True(t, ok)
	assert.Equal(t, "anthropic", replacement)

	// A replacement that is itself blacklisted for the role is not offered.
	blacklist.AddToBlacklist("anthropic", "security", "over budget")
	_, ok = blacklist.FindReplacement("openai", "security")
	assert.False(t, ok)

	// But it still serves other roles.
	replacement, ok = blacklist.FindReplacement("openai", "quality")
	require.True(t, ok)
	assert.Equal(t, "anthropic", replacement)
}

func TestLedgerConcurrentAddTokens(t *testing.T) {
	ledger := NewUsageLedger()

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ledger.AddTokens("openai", 10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker*10), ledger.Total("openai"))

	snapshot := ledger.Snapshot()
	assert.Equal(t, int64(workers*perWorker*10), snapshot["openai"])
}
