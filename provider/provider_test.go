package provider

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeswarm/log"
)

// TestMain runs before all tests to set up the test environment
func TestMain(m *testing.M) {
	// Initialize the logger before any tests run
	log.Initialize()
	defer log.Close()

	exitCode := m.Run()
	os.Exit(exitCode)
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register("openai", NewStubCaller("openai"))

	caller, err := registry.Lookup("openai")
	require.NoError(t, err)
	assert.NotNil(t, caller)

	_, err = registry.Lookup("missing")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"openai"}, registry.Names())
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	registry.Register("openai", NewStubCaller("openai"))

	replacement := CallerFunc(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{Raw: "replaced"}, nil
	})
	registry.Register("openai", replacement)

	caller, err := registry.Lookup("openai")
	require.NoError(t, err)
	res, err := caller.Call(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "replaced", res.Raw)
}

func TestStubCallerDeterministic(t *testing.T) {
	stub := NewStubCaller("openai")
	req := &Request{Provider: "openai", Role: "security"}

	first, err := stub.Call(context.Background(), req)
	require.NoError(t, err)
	second, err := stub.Call(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, int64(1500), first.TokensUsed)
	assert.NotEmpty(t, first.Findings)
}

func TestStubCallerUnknownRole(t *testing.T) {
	stub := NewStubCaller("openai")

	res, err := stub.Call(context.Background(), &Request{Role: "licensing"})
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Positive(t, res.TokensUsed)
}

func TestStubCallerHonorsCancellation(t *testing.T) {
	stub := NewStubCaller("openai")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stub.Call(ctx, &Request{Role: "security"})
	assert.ErrorIs(t, err, context.Canceled)
}

type enricherFunc func(ctx context.Context, role string, repo RepoContext) (string, error)

func (f enricherFunc) Enrich(ctx context.Context, role string, repo RepoContext) (string, error) {
	return f(ctx, role, repo)
}

func TestEnrichOrEmpty(t *testing.T) {
	repo := RepoContext{Repository: "acme/api"}

	t.Run("nil enricher", func(t *testing.T) {
		assert.Empty(t, EnrichOrEmpty(context.Background(), nil, "security", repo))
	})

	t.Run("failure degrades to empty", func(t *testing.T) {
		failing := enricherFunc(func(context.Context, string, RepoContext) (string, error) {
			return "", errors.New("retrieval backend down")
		})
		assert.Empty(t, EnrichOrEmpty(context.Background(), failing, "security", repo))
	})

	t.Run("success passes through", func(t *testing.T) {
		ok := enricherFunc(func(context.Context, string, RepoContext) (string, error) {
			return "relevant history", nil
		})
		assert.Equal(t, "relevant history", EnrichOrEmpty(context.Background(), ok, "security", repo))
	})
}
