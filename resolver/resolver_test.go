package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/paraclete/types"
)

func TestResolve_PrimaryWhenUnconstrained(t *testing.T) {
	r := New(nil)

	tests := []struct {
		role    types.WorkerRole
		backend string
	}{
		{types.RolePlanner, "claude-3-5-sonnet-20241022"},
		{types.RoleReviewer, "claude-3-opus-20240229"},
		{types.RoleCoder, "gpt-4o"},
		{types.RoleResearcher, "gemini-1.5-pro"},
		{types.RoleDesigner, "gpt-4o"},
	}
	for _, tt := range tests {
		backend, degraded, err := r.Resolve(tt.role, Constraints{})
		require.NoError(t, err)
		assert.False(t, degraded)
		assert.Equal(t, tt.backend, backend, "role %s", tt.role)
	}
}

func TestResolve_FallbackOnConstraint(t *testing.T) {
	r := New(nil)

	// The reviewer's primary has no vision; the first fallback does.
	backend, degraded, err := r.Resolve(types.RoleReviewer, Constraints{NeedsVision: true})
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "claude-3-5-sonnet-20241022", backend)

	// Coder with a context requirement beyond 128k falls through to gemini.
	backend, degraded, err = r.Resolve(types.RoleCoder, Constraints{MinContext: 500_000})
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "gemini-1.5-pro", backend)
}

func TestResolve_DegradesToPrimary(t *testing.T) {
	r := New(nil)

	// Nothing in the table has a 10M context window.
	backend, degraded, err := r.Resolve(types.RoleCoder, Constraints{MinContext: 10_000_000})
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, "gpt-4o", backend)
}

func TestResolve_UnknownRole(t *testing.T) {
	r := New(nil)

	_, _, err := r.Resolve(types.WorkerRole("janitor"), Constraints{})
	require.Error(t, err)
	assert.Equal(t, types.ErrBackendUnavailable, types.GetErrorCode(err))
}

func TestEstimateCost(t *testing.T) {
	r := New(nil)

	// gpt-4o: 0.005 in, 0.015 out per 1k.
	cost := r.EstimateCost("gpt-4o", 2000, 1000)
	assert.InDelta(t, 0.025, cost, 1e-9)

	assert.Zero(t, r.EstimateCost("unknown-model", 1000, 1000))
}

func TestCheapest(t *testing.T) {
	r := New(nil)

	assert.Equal(t, "gemini-1.5-flash", r.Cheapest(Constraints{}))
	assert.Equal(t, "gpt-4o-mini", r.Cheapest(Constraints{NeedsFunctionCalling: true, MaxCostPer1K: 0.001}))

	cheapestVision := r.Cheapest(Constraints{NeedsVision: true})
	assert.Equal(t, "gemini-1.5-pro", cheapestVision)
}

func TestEstimateContext(t *testing.T) {
	empty := EstimateContext(nil)
	assert.Zero(t, empty)

	short := EstimateContext([]types.Message{types.NewUserMessage("hello")})
	long := EstimateContext([]types.Message{
		types.NewUserMessage("hello"),
		types.NewAssistantMessage("a considerably longer reply with many more words in it than the greeting"),
	})
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)

	// Determinism.
	assert.Equal(t, long, EstimateContext([]types.Message{
		types.NewUserMessage("hello"),
		types.NewAssistantMessage("a considerably longer reply with many more words in it than the greeting"),
	}))
}
