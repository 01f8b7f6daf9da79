package scheduler

import (
	"sync"
	"sync/atomic"
)

// UsageLedger tracks cumulative token usage per provider within a run.
// Increments are atomic so concurrently-finishing tasks never lose updates;
// the map lock is only taken to install a counter for a new provider, never
// around the increment itself.
type UsageLedger struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewUsageLedger creates an empty ledger.
func NewUsageLedger() *UsageLedger {
	return &UsageLedger{counters: make(map[string]*atomic.Int64)}
}

func (l *UsageLedger) counter(providerName string) *atomic.Int64 {
	l.mu.RLock()
	c, ok := l.counters[providerName]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.counters[providerName]; ok {
		return c
	}
	c = &atomic.Int64{}
	l.counters[providerName] = c
	return c
}

// AddTokens records token usage for a provider.
func (l *UsageLedger) AddTokens(providerName string, n int64) {
	l.counter(providerName).Add(n)
}

// Total returns cumulative usage for a provider.
func (l *UsageLedger) Total(providerName string) int64 {
	return l.counter(providerName).Load()
}

// Snapshot returns per-provider cumulative usage.
func (l *UsageLedger) Snapshot() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64, len(l.counters))
	for name, c := range l.counters {
		out[name] = c.Load()
	}
	return out
}

// BlacklistRegistry records provider/role pairs that must not be scheduled
// and can suggest replacement providers.
type BlacklistRegistry interface {
	IsBlacklisted(providerName, role string) bool
	AddToBlacklist(providerName, role, reason string)
	BlacklistReason(providerName, role string) (string, bool)
	FindReplacement(providerName, role string) (string, bool)
}

// MemoryBlacklist is the in-run BlacklistRegistry. State grows monotonically
// within a run and is not persisted.
type MemoryBlacklist struct {
	mu           sync.RWMutex
	entries      map[AgentID]string // identity -> reason
	replacements map[string]string  // provider -> fallback provider
}

// NewMemoryBlacklist creates a blacklist with the given provider replacement
// table. A replacement that is itself blacklisted for the role is not offered.
func NewMemoryBlacklist(replacements map[string]string) *MemoryBlacklist {
	if replacements == nil {
		replacements = make(map[string]string)
	}
	return &MemoryBlacklist{
		entries:      make(map[AgentID]string),
		replacements: replacements,
	}
}

// IsBlacklisted implements BlacklistRegistry.
func (b *MemoryBlacklist) IsBlacklisted(providerName, role string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[AgentID{Provider: providerName, Role: role}]
	return ok
}

// AddToBlacklist implements BlacklistRegistry.
func (b *MemoryBlacklist) AddToBlacklist(providerName, role, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[AgentID{Provider: providerName, Role: role}] = reason
}

// BlacklistReason returns the recorded reason for a blacklisted pair.
func (b *MemoryBlacklist) BlacklistReason(providerName, role string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	reason, ok := b.entries[AgentID{Provider: providerName, Role: role}]
	return reason, ok
}

// FindReplacement implements BlacklistRegistry.
func (b *MemoryBlacklist) FindReplacement(providerName, role string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	replacement, ok := b.replacements[providerName]
	if !ok {
		return "", false
	}
	if _, blacklisted := b.entries[AgentID{Provider: replacement, Role: role}]; blacklisted {
		return "", false
	}
	return replacement, true
}
