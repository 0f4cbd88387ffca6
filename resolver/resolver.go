// Package resolver selects a model backend for a worker role under
// capability, context-size, and cost constraints. Selection is table-driven:
// each role has a primary backend and an ordered fallback chain; when
// nothing satisfies the constraints the primary is returned anyway with a
// degraded flag so the caller can surface the warning.
package resolver

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/samuelarogbonlo/paraclete/types"
)

// Capability is a backend feature used for constraint matching.
type Capability string

const (
	CapReasoning       Capability = "reasoning"
	CapCodeGeneration  Capability = "code_generation"
	CapLargeContext    Capability = "large_context"
	CapFastResponse    Capability = "fast_response"
	CapVision          Capability = "vision"
	CapFunctionCalling Capability = "function_calling"
)

// Backend describes one model backend.
type Backend struct {
	ID              string
	Provider        string
	Capabilities    []Capability
	ContextWindow   int
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// Has reports whether the backend advertises the capability.
func (b Backend) Has(cap Capability) bool {
	for _, c := range b.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// AvgCostPer1K is the average of input and output cost, the figure cost
// constraints are checked against.
func (b Backend) AvgCostPer1K() float64 {
	return (b.InputCostPer1K + b.OutputCostPer1K) / 2
}

// Constraints narrows backend selection. Zero values mean unconstrained.
type Constraints struct {
	MinContext           int
	NeedsVision          bool
	NeedsFunctionCalling bool
	MaxCostPer1K         float64
}

// Resolver holds the backend table, per-role primaries, and fallback chains.
type Resolver struct {
	backends  map[string]Backend
	primaries map[types.WorkerRole]string
	fallbacks map[string][]string
	logger    *zap.Logger
}

// New creates a resolver with the default backend table.
func New(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		backends:  make(map[string]Backend),
		primaries: defaultPrimaries(),
		fallbacks: defaultFallbacks(),
		logger:    logger.With(zap.String("component", "resolver")),
	}
	for _, b := range defaultBackends() {
		r.backends[b.ID] = b
	}
	return r
}

func defaultBackends() []Backend {
	return []Backend{
		{
			ID:       "claude-3-opus-20240229",
			Provider: "anthropic",
			Capabilities: []Capability{
				CapReasoning, CapCodeGeneration, CapFunctionCalling,
			},
			ContextWindow:   200_000,
			InputCostPer1K:  0.015,
			OutputCostPer1K: 0.075,
		},
		{
			ID:       "claude-3-5-sonnet-20241022",
			Provider: "anthropic",
			Capabilities: []Capability{
				CapReasoning, CapCodeGeneration, CapFastResponse, CapFunctionCalling, CapVision,
			},
			ContextWindow:   200_000,
			InputCostPer1K:  0.003,
			OutputCostPer1K: 0.015,
		},
		{
			ID:       "claude-3-5-haiku-20241022",
			Provider: "anthropic",
			Capabilities: []Capability{
				CapFastResponse, CapCodeGeneration,
			},
			ContextWindow:   200_000,
			InputCostPer1K:  0.001,
			OutputCostPer1K: 0.005,
		},
		{
			ID:       "gpt-4-turbo-preview",
			Provider: "openai",
			Capabilities: []Capability{
				CapCodeGeneration, CapFastResponse, CapFunctionCalling, CapVision,
			},
			ContextWindow:   128_000,
			InputCostPer1K:  0.01,
			OutputCostPer1K: 0.03,
		},
		{
			ID:       "gpt-4o",
			Provider: "openai",
			Capabilities: []Capability{
				CapReasoning, CapCodeGeneration, CapFastResponse, CapFunctionCalling, CapVision,
			},
			ContextWindow:   128_000,
			InputCostPer1K:  0.005,
			OutputCostPer1K: 0.015,
		},
		{
			ID:       "gpt-4o-mini",
			Provider: "openai",
			Capabilities: []Capability{
				CapFastResponse, CapCodeGeneration,
			},
			ContextWindow:   128_000,
			InputCostPer1K:  0.00015,
			OutputCostPer1K: 0.0006,
		},
		{
			ID:       "gemini-1.5-pro",
			Provider: "google",
			Capabilities: []Capability{
				CapLargeContext, CapReasoning, CapCodeGeneration, CapVision,
			},
			ContextWindow:   2_000_000,
			InputCostPer1K:  0.00125,
			OutputCostPer1K: 0.005,
		},
		{
			ID:       "gemini-1.5-flash",
			Provider: "google",
			Capabilities: []Capability{
				CapFastResponse, CapLargeContext,
			},
			ContextWindow:   1_000_000,
			InputCostPer1K:  0.000075,
			OutputCostPer1K: 0.0003,
		},
	}
}

func defaultPrimaries() map[types.WorkerRole]string {
	return map[types.WorkerRole]string{
		types.RolePlanner:    "claude-3-5-sonnet-20241022",
		types.RoleReviewer:   "claude-3-opus-20240229",
		types.RoleCoder:      "gpt-4o",
		types.RoleResearcher: "gemini-1.5-pro",
		types.RoleDesigner:   "gpt-4o",
		types.RoleAggregator: "claude-3-5-sonnet-20241022",
	}
}

func defaultFallbacks() map[string][]string {
	return map[string][]string{
		"claude-3-5-sonnet-20241022": {"claude-3-opus-20240229", "gpt-4o", "gemini-1.5-pro"},
		"claude-3-opus-20240229":     {"claude-3-5-sonnet-20241022", "gpt-4o"},
		"gpt-4o":                     {"gpt-4-turbo-preview", "claude-3-5-sonnet-20241022", "gemini-1.5-pro"},
		"gemini-1.5-pro":             {"gemini-1.5-flash", "claude-3-5-sonnet-20241022", "gpt-4o"},
	}
}

// Resolve picks a backend for the role. It returns the primary when it
// satisfies the constraints, otherwise walks the fallback chain; when
// nothing satisfies them it returns the primary anyway with degraded=true.
func (r *Resolver) Resolve(role types.WorkerRole, c Constraints) (string, bool, error) {
	primary, ok := r.primaries[role]
	if !ok {
		return "", false, types.NewError(types.ErrBackendUnavailable, fmt.Sprintf("no backend mapping for role %s", role))
	}

	if r.meets(primary, c) {
		return primary, false, nil
	}

	for _, fb := range r.fallbacks[primary] {
		if r.meets(fb, c) {
			r.logger.Info("using fallback backend",
				zap.String("role", string(role)),
				zap.String("primary", primary),
				zap.String("fallback", fb),
			)
			return fb, false, nil
		}
	}

	r.logger.Warn("no backend meets constraints, degrading to primary",
		zap.String("role", string(role)),
		zap.String("primary", primary),
	)
	return primary, true, nil
}

func (r *Resolver) meets(id string, c Constraints) bool {
	b, ok := r.backends[id]
	if !ok {
		return false
	}
	if c.MinContext > 0 && b.ContextWindow < c.MinContext {
		return false
	}
	if c.NeedsVision && !b.Has(CapVision) {
		return false
	}
	if c.NeedsFunctionCalling && !b.Has(CapFunctionCalling) {
		return false
	}
	if c.MaxCostPer1K > 0 && b.AvgCostPer1K() > c.MaxCostPer1K {
		return false
	}
	return true
}

// Backend returns the table entry for id.
func (r *Resolver) Backend(id string) (Backend, bool) {
	b, ok := r.backends[id]
	return b, ok
}

// EstimateCost estimates the dollar cost of a call against the backend.
// Unknown backends estimate to zero.
func (r *Resolver) EstimateCost(id string, inputTokens, outputTokens int) float64 {
	b, ok := r.backends[id]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*b.InputCostPer1K + float64(outputTokens)/1000*b.OutputCostPer1K
}

// Cheapest returns the cheapest backend satisfying the constraints, or
// gpt-4o-mini when nothing does.
func (r *Resolver) Cheapest(c Constraints) string {
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	// Deterministic tie-breaking over the map.
	sort.Strings(ids)

	cheapest := ""
	minCost := -1.0
	for _, id := range ids {
		if !r.meets(id, c) {
			continue
		}
		cost := r.backends[id].AvgCostPer1K()
		if minCost < 0 || cost < minCost {
			minCost = cost
			cheapest = id
		}
	}
	if cheapest == "" {
		return "gpt-4o-mini"
	}
	return cheapest
}
