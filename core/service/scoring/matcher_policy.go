// Package scoring computes directional fit scores for candidate pairs and
// combines them reciprocally. The rule-based policy here is the v1 ranker;
// anything implementing Policy can replace it without touching the fairness
// filter or the data model.
package scoring

import (
	"time"

	"matcher_server/core/service/assemble"
)

// Weights for the four directional components. Must sum to 1.
type Weights struct {
	Intent   float64 `json:"intent"`
	Synergy  float64 `json:"synergy"`
	Momentum float64 `json:"momentum"`
	Context  float64 `json:"context"`
}

// DefaultWeights returns the published component weights.
func DefaultWeights() Weights {
	return Weights{Intent: 0.45, Synergy: 0.25, Momentum: 0.20, Context: 0.10}
}

// Thresholds are the tunable cut points of the rule policy.
type Thresholds struct {
	SemanticMatch    float64 `json:"semantic_match"`    // oracle floor for intent
	JaccardFallback  float64 `json:"jaccard_fallback"`  // lexical floor for intent
	NicheIdentical   float64 `json:"niche_identical"`   // semantic floor for "identical" niche
	NicheAdjacentLow float64 `json:"niche_adjacent_low"` // lower bound of client-adjacent band
	MomentumDecay    float64 `json:"momentum_decay"`    // per-day exponential rate
	ContextPerEvent  float64 `json:"context_per_event"` // credit per shared event
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SemanticMatch:    0.65,
		JaccardFallback:  0.30,
		NicheIdentical:   0.85,
		NicheAdjacentLow: 0.40,
		MomentumDecay:    0.02,
		ContextPerEvent:  0.25,
	}
}

// Similarity resolves text-to-text similarity in [0,1]. semantic is false when
// the value came from the lexical fallback rather than the oracle; the two use
// different thresholds.
type Similarity func(a, b string) (score float64, semantic bool)

// NicheTier labels the niche relationship for the reason string.
type NicheTier int

const (
	NicheNone NicheTier = iota
	NicheAligned
	NicheComplementary
	NicheCompetitor
)

// Directional is the A→B half of a pair evaluation.
type Directional struct {
	Score float64 // weighted sum in [0,1]

	Intent    bool
	BestNeed  string
	BestOffer string

	NicheScore float64
	NicheTier  NicheTier
	Scale      float64
	Symmetry   float64 // reach ratio r in [0,1], 0 when unknown

	Momentum float64
	Context  float64
}

// Policy scores one direction of a candidate pair. Implementations must be
// pure given (bundles, sim, now) so cycle runs stay deterministic.
type Policy interface {
	ScoreDirection(a, b *assemble.Bundle, sim Similarity, now time.Time) Directional
	Weights() Weights
	Thresholds() Thresholds
}
