package scoring

import (
	"math"
	"time"

	"matcher_server/core/domain"
	"matcher_server/core/service/assemble"
)

// RulePolicy is the weighted-sum ranker.
type RulePolicy struct {
	weights    Weights
	thresholds Thresholds
}

func NewRulePolicy(weights Weights, thresholds Thresholds) *RulePolicy {
	return &RulePolicy{weights: weights, thresholds: thresholds}
}

func (p *RulePolicy) Weights() Weights       { return p.weights }
func (p *RulePolicy) Thresholds() Thresholds { return p.thresholds }

// ScoreDirection computes S(A→B):
//
//	S = w_i·Intent(A,B) + w_s·Synergy(A,B) + w_m·Momentum(B) + w_c·Context(A,B)
//
// Intent and Synergy read A's asks against B; Momentum is the recipient's
// activity decay; Context is symmetric.
func (p *RulePolicy) ScoreDirection(a, b *assemble.Bundle, sim Similarity, now time.Time) Directional {
	d := Directional{}

	d.Intent, d.BestNeed, d.BestOffer = p.intent(a.Needs, b.Offers, sim)
	d.NicheScore, d.NicheTier = p.nicheScore(a, b, sim)
	d.Scale, d.Symmetry = p.scaleModifier(a, b)
	d.Momentum = p.momentum(b.LastActive, now)
	d.Context = p.context(a, b)

	intent := 0.0
	if d.Intent {
		intent = 1.0
	}
	synergy := clamp01(d.NicheScore * d.Scale)

	d.Score = p.weights.Intent*intent +
		p.weights.Synergy*synergy +
		p.weights.Momentum*clamp01(d.Momentum) +
		p.weights.Context*clamp01(d.Context)
	return d
}

// intent reports whether any of A's needs matches any of B's offers, and the
// strongest such pair. Empty needs or offers always miss.
func (p *RulePolicy) intent(needs, offers []string, sim Similarity) (bool, string, string) {
	if len(needs) == 0 || len(offers) == 0 {
		return false, "", ""
	}
	fired := false
	bestScore := -1.0
	bestNeed, bestOffer := "", ""
	for _, need := range needs {
		for _, offer := range offers {
			score, semantic := sim(need, offer)
			hit := (semantic && score > p.thresholds.SemanticMatch) ||
				(!semantic && score >= p.thresholds.JaccardFallback)
			if hit && score > bestScore {
				fired = true
				bestScore = score
				bestNeed, bestOffer = need, offer
			}
		}
	}
	return fired, bestNeed, bestOffer
}

// nicheScore maps A's preference against the niche relationship. Multiple
// preferences take the best outcome for A.
func (p *RulePolicy) nicheScore(a, b *assemble.Bundle, sim Similarity) (float64, NicheTier) {
	identical, adjacent := p.nicheRelation(a.Niche, b.Niche, sim)

	best := 0.0
	tier := NicheNone
	consider := func(score float64, t NicheTier) {
		if score > best {
			best, tier = score, t
		}
	}

	for _, pref := range a.Preferences {
		switch {
		case pref == domain.PreferencePeerBundle:
			if identical {
				consider(1.0, NicheAligned)
			} else {
				consider(0.2, NicheNone)
			}
		case pref.IsReferral():
			switch {
			case identical:
				consider(0.1, NicheCompetitor)
			case adjacent:
				consider(0.9, NicheComplementary)
			default:
				consider(0.3, NicheNone)
			}
		case pref == domain.PreferenceServiceProvider:
			consider(0.7, NicheNone)
		}
	}
	return best, tier
}

// nicheRelation classifies the two niches as identical, client-adjacent, or
// unrelated. Normalized equality short-circuits the oracle.
func (p *RulePolicy) nicheRelation(a, b string, sim Similarity) (identical, adjacent bool) {
	if a == "" || b == "" {
		return false, false
	}
	if a == b {
		return true, false
	}
	score, semantic := sim(a, b)
	if semantic {
		if score >= p.thresholds.NicheIdentical {
			return true, false
		}
		return false, score >= p.thresholds.NicheAdjacentLow
	}
	// lexical stand-in: heavy keyword overlap reads as identical, partial as
	// adjacent
	if score >= p.thresholds.NicheIdentical {
		return true, false
	}
	return false, score >= p.thresholds.JaccardFallback
}

// scaleModifier penalizes lopsided audience sizes. Service-provider-only
// requests ignore scale entirely.
func (p *RulePolicy) scaleModifier(a, b *assemble.Bundle) (modifier, symmetry float64) {
	if a.OnlyServiceProvider() {
		return 1.0, reachRatio(a.Reach, b.Reach)
	}
	if a.Reach == 0 || b.Reach == 0 {
		return 0.8, 0
	}
	r := reachRatio(a.Reach, b.Reach)
	switch {
	case r > 0.5:
		return 1.0, r
	case r < 0.1:
		return 0.5, r
	default:
		return 0.5 + (r-0.1)*(0.5/0.4), r
	}
}

func reachRatio(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}

// momentum decays the recipient's activity: ≈0.55 at 30 days, ≈0.17 at 90.
// Unknown activity sits at the neutral 0.5.
func (p *RulePolicy) momentum(lastActive *time.Time, now time.Time) float64 {
	if lastActive == nil {
		return 0.5
	}
	days := now.Sub(*lastActive).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-p.thresholds.MomentumDecay * days)
}

// context grants credit per shared event, capped at 1.
func (p *RulePolicy) context(a, b *assemble.Bundle) float64 {
	shared := 0
	for e := range a.Events {
		if _, ok := b.Events[e]; ok {
			shared++
		}
	}
	return math.Min(1.0, p.thresholds.ContextPerEvent*float64(shared))
}

// HarmonicMean combines two directional scores, punishing one-sided pairs.
// Zero on either side kills the pair.
func HarmonicMean(ab, ba float64) float64 {
	if ab+ba <= 0 {
		return 0
	}
	return 2 * ab * ba / (ab + ba)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
