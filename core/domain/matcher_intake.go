package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxVerifiedEntries caps verified_offers and verified_needs per intake.
const MaxVerifiedEntries = 2

// IntakeSubmission is a verified per-event declaration of intent.
// At most one intake exists per (profile, event) pair; later confirmed
// intakes supersede earlier ones.
type IntakeSubmission struct {
	ID        int64     `json:"id"`
	ProfileID uuid.UUID `json:"profile_id"`
	EventID   string    `json:"event_id"`
	EventName string    `json:"event_name"`
	EventDate time.Time `json:"event_date"`

	// User-confirmed declarations (Platinum when confirmed recently)
	VerifiedOffers []string          `json:"verified_offers"` // <= 2 entries
	VerifiedNeeds  []string          `json:"verified_needs"`  // <= 2 entries
	Preferences    []MatchPreference `json:"match_preference"`
	AntiPersonas   []AntiPersona     `json:"anti_personas"`

	// AI-suggested pre-fill (Bronze, informational only, never scored)
	SuggestedOffers []string `json:"suggested_offers"`
	SuggestedNeeds  []string `json:"suggested_needs"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsConfirmed reports whether the user confirmed the submission.
func (s *IntakeSubmission) IsConfirmed() bool {
	return s.ConfirmedAt != nil
}

// ConfirmedWithin reports whether the confirmation is recent enough for the
// intake to qualify as Platinum at scoring time.
func (s *IntakeSubmission) ConfirmedWithin(now time.Time, window time.Duration) bool {
	return s.ConfirmedAt != nil && s.ConfirmedAt.After(now.Add(-window))
}

// PreferenceSet returns the preference set, defaulting to {peer_bundle}
// when the user selected nothing.
func (s *IntakeSubmission) PreferenceSet() []MatchPreference {
	if len(s.Preferences) == 0 {
		return []MatchPreference{PreferencePeerBundle}
	}
	return s.Preferences
}

// IntakeRepository is the outbound port for intake persistence.
type IntakeRepository interface {
	// GetLatestConfirmed returns the latest confirmed intake per profile.
	// Profiles without a confirmed intake are absent from the map.
	GetLatestConfirmed(ctx context.Context, profileIDs []uuid.UUID) (map[uuid.UUID]*IntakeSubmission, error)

	// GetEventHistory returns the set of event IDs each profile has attended,
	// drawn from its full intake history (confirmed or not).
	GetEventHistory(ctx context.Context, profileIDs []uuid.UUID) (map[uuid.UUID][]string, error)

	Upsert(ctx context.Context, intake *IntakeSubmission) error
}
