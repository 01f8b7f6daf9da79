package provider

import (
	"context"
)

// StubCaller is a deterministic in-process caller used by tests and the
// dry-run CLI path. It returns a fixed set of findings per role and charges
// a fixed token count. No timing is simulated; calls return immediately
// unless ctx is already cancelled.
type StubCaller struct {
	Name            string
	FindingsByRole  map[string][]Finding
	TokensPerCall   int64
	CostPerThousand float64
}

// NewStubCaller creates a stub caller with a small built-in finding set.
func NewStubCaller(name string) *StubCaller {
	return &StubCaller{
		Name: name,
		FindingsByRole: map[string][]Finding{
			"security": {
				{Severity: SeverityHigh, Category: "security", Message: "unparameterized SQL query", File: "db/query.go", Line: 42},
				{Severity: SeverityMedium, Category: "security", Message: "missing input validation", File: "api/handler.go", Line: 118},
			},
			"quality": {
				{Severity: SeverityLow, Category: "quality", Message: "function exceeds complexity threshold", File: "core/engine.go", Line: 203},
			},
			"architecture": {
				{Severity: SeverityMedium, Category: "architecture", Message: "circular package dependency", File: "internal/a/a.go"},
			},
		},
		TokensPerCall:   1500,
		CostPerThousand: 0.002,
	}
}

// Call implements Caller.
func (s *StubCaller) Call(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	findings := s.FindingsByRole[req.Role]
	out := make([]Finding, len(findings))
	copy(out, findings)

	return &Result{
		Findings:   out,
		TokensUsed: s.TokensPerCall,
		Cost:       float64(s.TokensPerCall) / 1000.0 * s.CostPerThousand,
		Raw:        "stub analysis for " + req.Role,
	}, nil
}
