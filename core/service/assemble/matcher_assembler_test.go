package assemble

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"matcher_server/core/domain"
)

type fakeProfileRepo struct {
	profiles []*domain.Profile
}

func (f *fakeProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	for _, p := range f.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}
func (f *fakeProfileRepo) GetAll(context.Context) ([]*domain.Profile, error) {
	return f.profiles, nil
}
func (f *fakeProfileRepo) Create(context.Context, *domain.Profile) error            { return nil }
func (f *fakeProfileRepo) Update(context.Context, *domain.Profile) error            { return nil }
func (f *fakeProfileRepo) TouchLastActive(context.Context, uuid.UUID, time.Time) error { return nil }
func (f *fakeProfileRepo) AppendFieldHistory(context.Context, *domain.FieldChange) error {
	return nil
}

type fakeIntakeRepo struct {
	intakes map[uuid.UUID]*domain.IntakeSubmission
	events  map[uuid.UUID][]string
}

func (f *fakeIntakeRepo) GetLatestConfirmed(_ context.Context, _ []uuid.UUID) (map[uuid.UUID]*domain.IntakeSubmission, error) {
	return f.intakes, nil
}
func (f *fakeIntakeRepo) GetEventHistory(_ context.Context, _ []uuid.UUID) (map[uuid.UUID][]string, error) {
	return f.events, nil
}
func (f *fakeIntakeRepo) Upsert(context.Context, *domain.IntakeSubmission) error { return nil }

func strPtr(s string) *string { return &s }

func TestAssembleAll(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recently := now.Add(-24 * time.Hour)
	longAgo := now.Add(-90 * 24 * time.Hour)

	verified := uuid.New()
	goldOnly := uuid.New()
	badReach := uuid.New()
	giant := uuid.New()

	profiles := []*domain.Profile{
		{
			ID: verified, Name: "Ada", Source: domain.SourceDirectory,
			Niche: "Health & Wellness", Offering: "Stale offering text.",
			ListSize: 1000, LastActiveAt: &recently,
		},
		{
			ID: goldOnly, Name: "Ben", Source: domain.SourceDirectory,
			Niche:   "  Business  Coaching ",
			Seeking: "Looking for podcast guests. Also seeking affiliates!",
			ListSize: 500,
		},
		{ID: badReach, Name: "Cal", ListSize: -5},
		{
			ID: giant, Name: "Dee", Source: domain.SourceDirectory,
			Niche: "finance", ListSize: 6000, LastActiveAt: &longAgo,
		},
	}

	intakes := map[uuid.UUID]*domain.IntakeSubmission{
		verified: {
			ProfileID:      verified,
			VerifiedOffers: []string{"video editing", " "},
			VerifiedNeeds:  []string{"copywriting"},
			Preferences:    []domain.MatchPreference{domain.PreferenceReferralUpstream},
			AntiPersonas:   []domain.AntiPersona{domain.AntiNoBeginners},
			ConfirmedAt:    &recently,
		},
	}
	events := map[uuid.UUID][]string{
		verified: {"ev-1", "ev-2"},
		goldOnly: {"ev-1"},
	}

	a := NewAssembler(&fakeProfileRepo{profiles: profiles}, &fakeIntakeRepo{intakes: intakes, events: events})
	result, err := a.AssembleAll(context.Background(), now)
	if err != nil {
		t.Fatalf("AssembleAll() error = %v", err)
	}

	if result.DataErrors != 1 {
		t.Errorf("DataErrors = %d, want 1 (negative reach)", result.DataErrors)
	}
	if len(result.Bundles) != 3 {
		t.Fatalf("got %d bundles, want 3", len(result.Bundles))
	}

	v := result.Bundles[verified]
	if v.Trust != domain.TrustPlatinum {
		t.Errorf("verified trust = %s, want platinum", v.Trust)
	}
	if len(v.Offers) != 1 || v.Offers[0] != "video editing" {
		t.Errorf("verified offers = %v, want intake offers with blanks trimmed", v.Offers)
	}
	if !v.HasPreference(domain.PreferenceReferralUpstream) {
		t.Errorf("verified preferences = %v, missing intake preference", v.Preferences)
	}
	if _, ok := v.AntiPersonas[domain.AntiNoBeginners]; !ok {
		t.Error("verified bundle missing anti-persona from intake")
	}
	if len(v.Events) != 2 {
		t.Errorf("verified events = %d, want 2", len(v.Events))
	}

	g := result.Bundles[goldOnly]
	if g.Trust != domain.TrustGold {
		t.Errorf("gold trust = %s, want gold", g.Trust)
	}
	if g.Niche != "business coaching" {
		t.Errorf("niche = %q, want normalized %q", g.Niche, "business coaching")
	}
	if len(g.Needs) != 2 {
		t.Errorf("gold needs = %v, want 2 sentence fragments", g.Needs)
	}
	if !g.HasPreference(domain.PreferencePeerBundle) {
		t.Errorf("gold preferences = %v, want default peer_bundle", g.Preferences)
	}

	d := result.Bundles[giant]
	if !d.SleepingGiant {
		t.Error("high-reach inactive profile should be flagged sleeping giant")
	}
	if result.SleepingGiants != 1 {
		t.Errorf("SleepingGiants = %d, want 1", result.SleepingGiants)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"periods", "One. Two. Three.", 3},
		{"mixed punctuation", "Really? Yes! Fine; ok", 4},
		{"newlines", "line one\nline two", 2},
		{"empty", "   ", 0},
		{"no terminator", "just one fragment", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.input)
			if len(got) != tt.want {
				t.Errorf("SplitSentences(%q) = %v, want %d fragments", tt.input, got, tt.want)
			}
		})
	}
}

func TestBundleExcludes(t *testing.T) {
	base := func() *Bundle {
		return &Bundle{
			Niche:        "health",
			Reach:        100,
			Preferences:  []domain.MatchPreference{domain.PreferencePeerBundle},
			AntiPersonas: map[domain.AntiPersona]struct{}{},
		}
	}

	t.Run("no service providers", func(t *testing.T) {
		a := base()
		a.AntiPersonas[domain.AntiNoServiceProviders] = struct{}{}
		b := base()
		b.Preferences = []domain.MatchPreference{domain.PreferenceServiceProvider}
		if !a.Excludes(b) {
			t.Error("service provider should be excluded")
		}
	})

	t.Run("no beginners", func(t *testing.T) {
		a := base()
		a.AntiPersonas[domain.AntiNoBeginners] = struct{}{}
		b := base()
		b.Reach = 0
		if !a.Excludes(b) {
			t.Error("zero-reach profile should be excluded")
		}
	})

	t.Run("no competitors", func(t *testing.T) {
		a := base()
		a.AntiPersonas[domain.AntiNoCompetitors] = struct{}{}
		b := base()
		if !a.Excludes(b) {
			t.Error("same-niche profile should be excluded")
		}
		b.Niche = "finance"
		if a.Excludes(b) {
			t.Error("different niche should pass")
		}
	})

	t.Run("empty anti-personas", func(t *testing.T) {
		if base().Excludes(base()) {
			t.Error("no anti-personas should exclude nothing")
		}
	})
}
