package provider

import (
	"context"
	"fmt"
	"sync"

	"codeswarm/log"
)

// Severity levels for findings, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Finding is a single analysis item produced by a provider call.
type Finding struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// RepoContext identifies the repository under analysis.
type RepoContext struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch,omitempty"`
	CommitSHA  string `json:"commit_sha,omitempty"`
}

// Request describes one analysis call to a provider.
type Request struct {
	Provider        string
	Role            string
	Repo            RepoContext
	Background      string   // retrieved context, may be empty
	Insights        []string // cross-agent insights published before the call
	EstimatedTokens int64
}

// Result is the outcome of a successful provider call.
type Result struct {
	Findings   []Finding
	TokensUsed int64
	Cost       float64
	Raw        string
}

// Caller performs a single analysis call. Implementations must honor ctx
// cancellation where their transport allows it; the scheduler stops waiting
// at its deadline either way.
type Caller interface {
	Call(ctx context.Context, req *Request) (*Result, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, req *Request) (*Result, error)

func (f CallerFunc) Call(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// Registry maps provider names to callers.
type Registry struct {
	mu      sync.RWMutex
	callers map[string]Caller
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{callers: make(map[string]Caller)}
}

// Register adds or replaces the caller for a provider name.
func (r *Registry) Register(name string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[name] = c
}

// Lookup returns the caller for a provider name.
func (r *Registry) Lookup(name string) (Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.callers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return c, nil
}

// Names returns all registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.callers))
	for name := range r.callers {
		names = append(names, name)
	}
	return names
}

// ContextEnricher supplies retrieved background context for a role and
// repository. Failures degrade to an empty context rather than aborting
// the task.
type ContextEnricher interface {
	Enrich(ctx context.Context, role string, repo RepoContext) (string, error)
}

// EnrichOrEmpty calls the enricher and swallows failures, returning an empty
// context instead. A nil enricher is treated as always-empty.
func EnrichOrEmpty(ctx context.Context, e ContextEnricher, role string, repo RepoContext) string {
	if e == nil {
		return ""
	}
	background, err := e.Enrich(ctx, role, repo)
	if err != nil {
		log.WarningLog.Printf("context enrichment failed for role %s on %s: %v", role, repo.Repository, err)
		return ""
	}
	return background
}
