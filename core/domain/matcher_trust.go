package domain

import "time"

// FreshnessWindow is how long a confirmed intake or activity timestamp
// counts as recent.
const FreshnessWindow = 30 * 24 * time.Hour

// SleepingGiantReach is the reach above which an inactive profile gets
// flagged for re-engagement.
const SleepingGiantReach = 5000

// ClassifyTrustSource derives the trust level backing a profile's features.
//
//	Platinum: confirmed intake within the freshness window
//	Gold:     manually populated profile fields, no recent intake
//	Bronze:   transcript-inferred data only
//	Legacy:   everything else
//
// Trust is monotonic in data quality; the scorer multiplies by the pair's
// minimum trust weight.
func ClassifyTrustSource(profile *Profile, intake *IntakeSubmission, now time.Time) TrustLevel {
	if intake != nil && intake.ConfirmedWithin(now, FreshnessWindow) {
		return TrustPlatinum
	}
	if profile.Source != SourceTranscript && profile.HasBusinessFields() {
		return TrustGold
	}
	if profile.Source == SourceTranscript {
		return TrustBronze
	}
	return TrustLegacy
}

// Freshness is the activity classification of a profile independent of its
// profile-field quality.
type Freshness string

const (
	FreshnessPlatinum Freshness = "platinum" // verified intake within window
	FreshnessBronze   Freshness = "bronze"   // active within window, no recent intake
	FreshnessLegacy   Freshness = "legacy"
)

// ClassifyFreshness is a pure function over the latest intake and
// last_active_at.
func ClassifyFreshness(profile *Profile, intake *IntakeSubmission, now time.Time) Freshness {
	if intake != nil && intake.ConfirmedWithin(now, FreshnessWindow) {
		return FreshnessPlatinum
	}
	if profile.ActiveWithin(now, FreshnessWindow) {
		return FreshnessBronze
	}
	return FreshnessLegacy
}

// IsSleepingGiant flags high-reach profiles that have gone quiet: reach
// above the threshold while neither Platinum-verified nor recently active.
func IsSleepingGiant(profile *Profile, intake *IntakeSubmission, now time.Time) bool {
	if profile.Reach() <= SleepingGiantReach {
		return false
	}
	return ClassifyFreshness(profile, intake, now) == FreshnessLegacy
}
