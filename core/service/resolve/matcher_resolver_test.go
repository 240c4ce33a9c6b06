package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"matcher_server/core/domain"
	"matcher_server/pkg/apperr"
)

type memProfileRepo struct {
	profiles []*domain.Profile
	history  []*domain.FieldChange
	updated  int
	created  int
}

func (m *memProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperr.NotFound("profile")
}
func (m *memProfileRepo) GetAll(context.Context) ([]*domain.Profile, error) {
	return m.profiles, nil
}
func (m *memProfileRepo) Create(_ context.Context, p *domain.Profile) error {
	m.profiles = append(m.profiles, p)
	m.created++
	return nil
}
func (m *memProfileRepo) Update(_ context.Context, p *domain.Profile) error {
	m.updated++
	return nil
}
func (m *memProfileRepo) TouchLastActive(context.Context, uuid.UUID, time.Time) error { return nil }
func (m *memProfileRepo) AppendFieldHistory(_ context.Context, c *domain.FieldChange) error {
	m.history = append(m.history, c)
	return nil
}

type memReviewRepo struct {
	reviews []*domain.ResolutionReview
}

func (m *memReviewRepo) Create(_ context.Context, r *domain.ResolutionReview) error {
	m.reviews = append(m.reviews, r)
	return nil
}
func (m *memReviewRepo) List(context.Context, int) ([]*domain.ResolutionReview, error) {
	return m.reviews, nil
}

func strPtr(s string) *string { return &s }

func seedResolver(t *testing.T, profiles []*domain.Profile) (*Resolver, *memProfileRepo, *memReviewRepo) {
	t.Helper()
	profileRepo := &memProfileRepo{profiles: profiles}
	reviewRepo := &memReviewRepo{}
	r := NewResolver(profileRepo, reviewRepo, 0)
	r.buildIndex(profiles)
	return r, profileRepo, reviewRepo
}

func TestResolveCascade(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	existing := []*domain.Profile{
		{ID: uuid.New(), Name: "Jane Doe", Email: strPtr("jane@acme.com"), Company: strPtr("Acme")},
		{ID: uuid.New(), Name: "Bob Ray", Company: strPtr("Rayco")},
		{ID: uuid.New(), Name: "Solo Smith"},
	}

	t.Run("tier 1 email match merges", func(t *testing.T) {
		r, _, _ := seedResolver(t, existing)
		res, err := r.Resolve(context.Background(), Record{
			Name:  "J. Doe",
			Email: strPtr("  JANE@ACME.COM "),
		}, now)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Action != ActionMerged || res.Tier != 1 || res.Confidence != 1.00 {
			t.Errorf("got %+v, want tier-1 merge at 1.00", res)
		}
		if res.Profile.ID != existing[0].ID {
			t.Error("merged into wrong profile")
		}
	})

	t.Run("tier 2 name plus company merges", func(t *testing.T) {
		r, _, _ := seedResolver(t, existing)
		res, err := r.Resolve(context.Background(), Record{
			Name:    "  bob   RAY ",
			Company: strPtr("rayco"),
		}, now)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Action != ActionMerged || res.Tier != 2 || res.Confidence != 0.90 {
			t.Errorf("got %+v, want tier-2 merge at 0.90", res)
		}
	})

	t.Run("tier 3 exact name with absent company merges", func(t *testing.T) {
		r, _, _ := seedResolver(t, existing)
		res, err := r.Resolve(context.Background(), Record{
			Name:    "Solo Smith",
			Company: strPtr("NewCo"),
		}, now)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Action != ActionMerged || res.Tier != 3 || res.Confidence != 0.70 {
			t.Errorf("got %+v, want tier-3 merge at 0.70", res)
		}
	})

	t.Run("tier 4 fuzzy name goes to review", func(t *testing.T) {
		r, repo, reviews := seedResolver(t, existing)
		res, err := r.Resolve(context.Background(), Record{Name: "Jane Dow"}, now)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Action != ActionReview || res.Tier != 4 {
			t.Errorf("got %+v, want tier-4 review", res)
		}
		if res.Confidence < 0.50 || res.Confidence > 0.70 {
			t.Errorf("review confidence = %.2f, want within [0.50, 0.70]", res.Confidence)
		}
		if len(reviews.reviews) != 1 {
			t.Fatalf("review queue has %d entries, want 1", len(reviews.reviews))
		}
		if reviews.reviews[0].CandidateProfileID == nil || *reviews.reviews[0].CandidateProfileID != existing[0].ID {
			t.Error("review entry should point at the fuzzy candidate")
		}
		if repo.created != 0 {
			t.Error("fuzzy match must never create a profile")
		}
	})

	t.Run("tier 5 creates new profile", func(t *testing.T) {
		r, repo, _ := seedResolver(t, existing)
		res, err := r.Resolve(context.Background(), Record{Name: "Completely Unrelated Person"}, now)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if res.Action != ActionCreated || res.Tier != 5 {
			t.Errorf("got %+v, want tier-5 create", res)
		}
		if repo.created != 1 {
			t.Errorf("created = %d, want 1", repo.created)
		}
	})

	t.Run("missing name is a data error", func(t *testing.T) {
		r, _, _ := seedResolver(t, existing)
		_, err := r.Resolve(context.Background(), Record{Name: "   "}, now)
		if err == nil {
			t.Fatal("expected error for missing name")
		}
		if apperr.AsAppError(err).Code != apperr.CodeDataError {
			t.Errorf("error code = %s, want DATA_ERROR", apperr.AsAppError(err).Code)
		}
	})
}

func TestResolveAmbiguousTier2(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	duped := []*domain.Profile{
		{ID: uuid.New(), Name: "Sam Park", Company: strPtr("Globex")},
		{ID: uuid.New(), Name: "Sam Park", Company: strPtr("Globex")},
	}
	r, _, _ := seedResolver(t, duped)

	_, err := r.Resolve(context.Background(), Record{Name: "Sam Park", Company: strPtr("Globex")}, now)
	if err == nil {
		t.Fatal("expected hard error for ambiguous tier-2 match")
	}
	if apperr.AsAppError(err).Code != apperr.CodeResolutionConflict {
		t.Errorf("error code = %s, want RESOLUTION_CONFLICT", apperr.AsAppError(err).Code)
	}
}

func TestMergeFieldSemantics(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := &domain.Profile{
		ID:      uuid.New(),
		Name:    "Jane Doe",
		Email:   strPtr("jane@acme.com"),
		Company: strPtr("Acme"),
		Source:  domain.SourceDirectory,
	}
	r, repo, _ := seedResolver(t, []*domain.Profile{p})

	res, err := r.Resolve(context.Background(), Record{
		Name:    "Jane Doe",
		Email:   strPtr("jane@acme.com"),
		Company: strPtr("Initech"), // conflicts with Acme
		Website: strPtr("https://janedoe.com"),
		Niche:   "wellness",
		Source:  domain.SourceTranscript,
	}, now)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Action != ActionMerged {
		t.Fatalf("action = %s, want merged", res.Action)
	}

	// null fields fill from the newer record
	if p.Website == nil || *p.Website != "https://janedoe.com" {
		t.Errorf("website = %v, want filled", p.Website)
	}
	if p.Niche != "wellness" {
		t.Errorf("niche = %q, want filled", p.Niche)
	}

	// conflicting non-null values are kept, with the new value in history
	if *p.Company != "Acme" {
		t.Errorf("company = %q, conflict should keep older value", *p.Company)
	}
	if len(repo.history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(repo.history))
	}
	if repo.history[0].Field != "company" || repo.history[0].NewValue != "Initech" {
		t.Errorf("history = %+v, want company conflict recorded", repo.history[0])
	}

	// cross-stream merge marks the profile as merged provenance
	if p.Source != domain.SourceMerged {
		t.Errorf("source = %s, want merged", p.Source)
	}
}

func TestResolveBatchCounts(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	existing := []*domain.Profile{
		{ID: uuid.New(), Name: "Jane Doe", Email: strPtr("jane@acme.com")},
	}
	profileRepo := &memProfileRepo{profiles: existing}
	r := NewResolver(profileRepo, &memReviewRepo{}, 0)

	result, err := r.ResolveBatch(context.Background(), []Record{
		{Name: "Jane Doe", Email: strPtr("jane@acme.com")}, // merge
		{Name: "Fresh Face"},                               // create
		{Name: "Jane Dow"},                                 // fuzzy review
		{Name: ""},                                         // data error
	}, now)
	if err != nil {
		t.Fatalf("ResolveBatch() error = %v", err)
	}
	if result.Merged != 1 || result.Created != 1 || result.ReviewsQueued != 1 || result.DataErrors != 1 {
		t.Errorf("got %+v, want 1/1/1/1", result)
	}
}
