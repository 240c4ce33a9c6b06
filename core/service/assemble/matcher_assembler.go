// Package assemble builds the per-profile feature bundles the scorer reads.
// Bundles are constructed once per cycle and held immutable while scoring runs.
package assemble

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"matcher_server/core/domain"
	"matcher_server/pkg/apperr"
	"matcher_server/pkg/logger"
)

// Bundle is everything the scorer needs to know about one profile.
// Verified intake is the only source for Offers/Needs at Platinum; transcript
// suggestions never feed them.
type Bundle struct {
	ProfileID uuid.UUID
	Name      string

	Offers []string
	Needs  []string

	Preferences  []domain.MatchPreference
	AntiPersonas map[domain.AntiPersona]struct{}

	Niche    string
	Audience string
	Reach    int

	LastActive *time.Time
	Events     map[string]struct{}

	Trust domain.TrustLevel

	// Flags carried for the cycle report
	SleepingGiant bool
}

// HasPreference reports whether the bundle requests the given preference.
func (b *Bundle) HasPreference(p domain.MatchPreference) bool {
	for _, pref := range b.Preferences {
		if pref == p {
			return true
		}
	}
	return false
}

// OnlyServiceProvider reports whether Service_Provider is the sole selection.
func (b *Bundle) OnlyServiceProvider() bool {
	return len(b.Preferences) == 1 && b.Preferences[0] == domain.PreferenceServiceProvider
}

// Excludes reports whether other falls into one of b's anti-persona classes.
func (b *Bundle) Excludes(other *Bundle) bool {
	if len(b.AntiPersonas) == 0 {
		return false
	}
	if _, ok := b.AntiPersonas[domain.AntiNoServiceProviders]; ok {
		if other.HasPreference(domain.PreferenceServiceProvider) {
			return true
		}
	}
	if _, ok := b.AntiPersonas[domain.AntiNoBeginners]; ok {
		if other.Reach == 0 {
			return true
		}
	}
	if _, ok := b.AntiPersonas[domain.AntiNoCompetitors]; ok {
		if b.Niche != "" && b.Niche == other.Niche {
			return true
		}
	}
	return false
}

// Result carries the assembled bundles plus per-record bookkeeping.
type Result struct {
	Bundles        map[uuid.UUID]*Bundle
	Ordered        []uuid.UUID // deterministic iteration order
	DataErrors     int
	SleepingGiants int
}

type Assembler struct {
	profileRepo domain.ProfileRepository
	intakeRepo  domain.IntakeRepository
	log         zerolog.Logger
}

func NewAssembler(profileRepo domain.ProfileRepository, intakeRepo domain.IntakeRepository) *Assembler {
	return &Assembler{
		profileRepo: profileRepo,
		intakeRepo:  intakeRepo,
		log:         logger.Component("assembler"),
	}
}

// AssembleAll builds bundles for every profile in the directory. Records with
// data errors are logged, counted and skipped; they never abort the stage.
func (a *Assembler) AssembleAll(ctx context.Context, now time.Time) (*Result, error) {
	profiles, err := a.profileRepo.GetAll(ctx)
	if err != nil {
		return nil, apperr.StorageError("load profiles", err)
	}

	ids := make([]uuid.UUID, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}

	intakes, err := a.intakeRepo.GetLatestConfirmed(ctx, ids)
	if err != nil {
		return nil, apperr.StorageError("load intakes", err)
	}
	events, err := a.intakeRepo.GetEventHistory(ctx, ids)
	if err != nil {
		return nil, apperr.StorageError("load event history", err)
	}

	result := &Result{Bundles: make(map[uuid.UUID]*Bundle, len(profiles))}
	for _, p := range profiles {
		bundle, err := a.assemble(p, intakes[p.ID], events[p.ID], now)
		if err != nil {
			result.DataErrors++
			a.log.Warn().Err(err).Str("profile_id", p.ID.String()).Msg("skipping profile")
			continue
		}
		if bundle.SleepingGiant {
			result.SleepingGiants++
		}
		result.Bundles[p.ID] = bundle
		result.Ordered = append(result.Ordered, p.ID)
	}
	return result, nil
}

// AssembleOne builds the bundle for a single profile.
func (a *Assembler) AssembleOne(ctx context.Context, id uuid.UUID, now time.Time) (*Bundle, error) {
	p, err := a.profileRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	intakes, err := a.intakeRepo.GetLatestConfirmed(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, apperr.StorageError("load intake", err)
	}
	events, err := a.intakeRepo.GetEventHistory(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, apperr.StorageError("load event history", err)
	}
	return a.assemble(p, intakes[id], events[id], now)
}

func (a *Assembler) assemble(p *domain.Profile, intake *domain.IntakeSubmission, eventIDs []string, now time.Time) (*Bundle, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, apperr.DataError(p.ID.String(), "missing name")
	}
	if p.ListSize < 0 || p.SocialReach < 0 {
		return nil, apperr.DataError(p.ID.String(), "negative reach")
	}

	b := &Bundle{
		ProfileID:    p.ID,
		Name:         p.Name,
		Niche:        normalize(p.Niche),
		Audience:     normalize(p.AudienceType),
		Reach:        p.Reach(),
		LastActive:   p.LastActiveAt,
		Events:       make(map[string]struct{}, len(eventIDs)),
		AntiPersonas: make(map[domain.AntiPersona]struct{}),
		Trust:        domain.ClassifyTrustSource(p, intake, now),
	}
	for _, e := range eventIDs {
		b.Events[e] = struct{}{}
	}

	// Verified intake is the sole source for scored intent; free-text profile
	// fields are the Gold fallback; transcript suggestions stay out.
	if intake != nil && intake.ConfirmedWithin(now, domain.FreshnessWindow) {
		b.Offers = trimAll(intake.VerifiedOffers)
		b.Needs = trimAll(intake.VerifiedNeeds)
		b.Preferences = intake.PreferenceSet()
		for _, ap := range intake.AntiPersonas {
			b.AntiPersonas[ap] = struct{}{}
		}
	} else {
		b.Offers = SplitSentences(p.Offering)
		b.Needs = SplitSentences(p.Seeking)
		b.Preferences = []domain.MatchPreference{domain.PreferencePeerBundle}
	}

	b.SleepingGiant = domain.IsSleepingGiant(p, intake, now)
	return b, nil
}

// SplitSentences breaks free text into sentence-sized fragments for intent
// matching. Empty fragments are dropped.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';' || r == '\n'
	})
	var out []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
