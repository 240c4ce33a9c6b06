// Package domain contains the core types of the JV partner matching service.
package domain

// =============================================================================
// Trust Levels
// =============================================================================

// TrustLevel classifies the provenance of the data behind a profile or match.
type TrustLevel string

const (
	TrustPlatinum TrustLevel = "platinum" // verified intake confirmed within 30 days
	TrustGold     TrustLevel = "gold"     // manually maintained profile fields
	TrustBronze   TrustLevel = "bronze"   // transcript-inferred data only
	TrustLegacy   TrustLevel = "legacy"   // stale or unknown provenance
)

// Weight returns the multiplicative score modifier for a trust level.
func (t TrustLevel) Weight() float64 {
	switch t {
	case TrustPlatinum:
		return 1.0
	case TrustGold:
		return 0.5
	case TrustBronze:
		return 0.3
	default:
		return 0.1
	}
}

// Rank orders trust levels for comparison (higher is better).
func (t TrustLevel) Rank() int {
	switch t {
	case TrustPlatinum:
		return 3
	case TrustGold:
		return 2
	case TrustBronze:
		return 1
	default:
		return 0
	}
}

// MinTrust returns the lower of two trust levels.
func MinTrust(a, b TrustLevel) TrustLevel {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// =============================================================================
// Relationship Preferences
// =============================================================================

// MatchPreference is the kind of partnership a profile is looking for.
// Stored as a set; legacy single-value data becomes a singleton set.
type MatchPreference string

const (
	PreferencePeerBundle         MatchPreference = "peer_bundle"
	PreferenceReferralUpstream   MatchPreference = "referral_upstream"
	PreferenceReferralDownstream MatchPreference = "referral_downstream"
	PreferenceServiceProvider    MatchPreference = "service_provider"
)

// IsReferral reports whether the preference is either referral direction.
func (p MatchPreference) IsReferral() bool {
	return p == PreferenceReferralUpstream || p == PreferenceReferralDownstream
}

// ParsePreference maps a stored string to a MatchPreference, defaulting to
// peer_bundle for unknown values so legacy rows stay scoreable.
func ParsePreference(s string) MatchPreference {
	switch MatchPreference(s) {
	case PreferencePeerBundle, PreferenceReferralUpstream, PreferenceReferralDownstream, PreferenceServiceProvider:
		return MatchPreference(s)
	default:
		return PreferencePeerBundle
	}
}

// AntiPersona is a class of profiles a user opts out of being matched with.
type AntiPersona string

const (
	AntiNoBeginners        AntiPersona = "no_beginners"
	AntiNoServiceProviders AntiPersona = "no_service_providers"
	AntiNoCompetitors      AntiPersona = "no_competitors"
)

// =============================================================================
// Match Status
// =============================================================================

// MatchStatus tracks the lifecycle of a suggestion.
// Transitions are monotone: pending → viewed → contacted → (connected | dismissed).
type MatchStatus string

const (
	StatusPending   MatchStatus = "pending"
	StatusViewed    MatchStatus = "viewed"
	StatusContacted MatchStatus = "contacted"
	StatusConnected MatchStatus = "connected"
	StatusDismissed MatchStatus = "dismissed"
)

func (s MatchStatus) order() int {
	switch s {
	case StatusPending:
		return 0
	case StatusViewed:
		return 1
	case StatusContacted:
		return 2
	case StatusConnected, StatusDismissed:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward-only transition. Terminal states accept nothing.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if s.order() < 0 || next.order() < 0 {
		return false
	}
	if s == StatusConnected || s == StatusDismissed {
		return false
	}
	return next.order() > s.order()
}

// ValidStatus reports whether the string is a known match status.
func ValidStatus(s string) bool {
	return MatchStatus(s).order() >= 0
}

// =============================================================================
// Rank Tiers
// =============================================================================

// RankTier labels a suggestion's position within its target's candidate list.
type RankTier string

const (
	TierGold   RankTier = "gold"   // ranks 1-3
	TierSilver RankTier = "silver" // ranks 4-8
	TierBronze RankTier = "bronze" // ranks 9+
)

// TierForRank maps a 1-based rank to its tier label.
func TierForRank(rank int) RankTier {
	switch {
	case rank <= 3:
		return TierGold
	case rank <= 8:
		return TierSilver
	default:
		return TierBronze
	}
}
