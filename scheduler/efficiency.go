package scheduler

import (
	"fmt"
	"sync"

	"codeswarm/log"
)

// blacklistRatio is the overage ratio beyond which a single estimate
// blacklists the provider/role pair.
const blacklistRatio = 2.0

// Admission is the efficiency gate's verdict. The gate is advisory: it never
// starts or stops execution itself. The caller substitutes Replacement when
// one is named, and fails the task when admission is denied without one.
type Admission struct {
	Allowed     bool
	Replacement string
	Reason      string
}

// EfficiencyGate checks per-provider token budgets and the blacklist before
// a task is admitted.
type EfficiencyGate struct {
	ledger    *UsageLedger
	blacklist BlacklistRegistry

	mu           sync.Mutex
	limits       map[string]int64 // provider -> per-call token limit
	defaultLimit int64
	strikes      map[AgentID]int
}

// DefaultTokenLimit is the per-call token budget used for providers with no
// configured limit.
const DefaultTokenLimit = 50_000

// NewEfficiencyGate creates a gate over the given ledger and blacklist.
func NewEfficiencyGate(ledger *UsageLedger, blacklist BlacklistRegistry, limits map[string]int64) *EfficiencyGate {
	if limits == nil {
		limits = make(map[string]int64)
	}
	return &EfficiencyGate{
		ledger:       ledger,
		blacklist:    blacklist,
		limits:       limits,
		defaultLimit: DefaultTokenLimit,
		strikes:      make(map[AgentID]int),
	}
}

// SetDefaultLimit overrides the fallback per-call token limit.
func (g *EfficiencyGate) SetDefaultLimit(limit int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit > 0 {
		g.defaultLimit = limit
	}
}

// Limit returns the per-call token limit for a provider.
func (g *EfficiencyGate) Limit(providerName string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit, ok := g.limits[providerName]; ok && limit > 0 {
		return limit
	}
	return g.defaultLimit
}

// Strikes returns the recorded inefficiency strikes for an identity.
func (g *EfficiencyGate) Strikes(id AgentID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strikes[id]
}

// CheckAdmission decides whether a (provider, role) task with the given token
// estimate may run.
//
// Blacklisted pairs are denied, with a replacement when the registry can name
// one. An estimate over the provider's limit records an inefficiency strike;
// past 2x the limit the pair is blacklisted and denied on the spot. Estimates
// within limits are allowed.
func (g *EfficiencyGate) CheckAdmission(providerName, role string, estimatedTokens int64) Admission {
	id := AgentID{Provider: providerName, Role: role}

	if g.blacklist.IsBlacklisted(providerName, role) {
		reason, _ := g.blacklist.BlacklistReason(providerName, role)
		replacement, _ := g.blacklist.FindReplacement(providerName, role)
		log.InfoLog.Printf("admission denied for %s: blacklisted (%s)", id, reason)
		return Admission{Allowed: false, Replacement: replacement, Reason: reason}
	}

	limit := g.Limit(providerName)
	if estimatedTokens > limit {
		g.mu.Lock()
		g.strikes[id]++
		strikes := g.strikes[id]
		g.mu.Unlock()

		ratio := float64(estimatedTokens) / float64(limit)
		log.WarningLog.Printf("inefficiency strike %d for %s: estimate %d over limit %d (%.1fx)",
			strikes, id, estimatedTokens, limit, ratio)

		if ratio > blacklistRatio {
			reason := fmt.Sprintf("token estimate %d exceeds %.1fx the %d limit", estimatedTokens, blacklistRatio, limit)
			g.blacklist.AddToBlacklist(providerName, role, reason)
			replacement, _ := g.blacklist.FindReplacement(providerName, role)
			return Admission{Allowed: false, Replacement: replacement, Reason: reason}
		}
	}

	return Admission{Allowed: true}
}
