package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/assemble"
	"matcher_server/core/service/cycle"
	"matcher_server/core/service/scoring"
	"matcher_server/pkg/apperr"
)

// ---- in-memory collaborators ----

type stubProfileRepo struct{ profiles []*domain.Profile }

func (s *stubProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	for _, p := range s.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperr.NotFound("profile")
}
func (s *stubProfileRepo) GetAll(context.Context) ([]*domain.Profile, error) { return s.profiles, nil }
func (s *stubProfileRepo) Create(context.Context, *domain.Profile) error     { return nil }
func (s *stubProfileRepo) Update(context.Context, *domain.Profile) error     { return nil }
func (s *stubProfileRepo) TouchLastActive(context.Context, uuid.UUID, time.Time) error {
	return nil
}
func (s *stubProfileRepo) AppendFieldHistory(context.Context, *domain.FieldChange) error {
	return nil
}

type stubIntakeRepo struct {
	intakes map[uuid.UUID]*domain.IntakeSubmission
	saved   []*domain.IntakeSubmission
}

func (s *stubIntakeRepo) GetLatestConfirmed(context.Context, []uuid.UUID) (map[uuid.UUID]*domain.IntakeSubmission, error) {
	return s.intakes, nil
}
func (s *stubIntakeRepo) GetEventHistory(context.Context, []uuid.UUID) (map[uuid.UUID][]string, error) {
	return nil, nil
}
func (s *stubIntakeRepo) Upsert(_ context.Context, in *domain.IntakeSubmission) error {
	s.saved = append(s.saved, in)
	return nil
}

type stubSuggestionRepo struct{ saved []*domain.MatchSuggestion }

func (s *stubSuggestionRepo) UpsertBatch(_ context.Context, list []*domain.MatchSuggestion) error {
	s.saved = append([]*domain.MatchSuggestion{}, list...)
	return nil
}
func (s *stubSuggestionRepo) GetByTarget(context.Context, uuid.UUID, int) ([]*domain.MatchSuggestion, error) {
	return s.saved, nil
}
func (s *stubSuggestionRepo) GetByID(context.Context, uuid.UUID) (*domain.MatchSuggestion, error) {
	return nil, apperr.NotFound("suggestion")
}
func (s *stubSuggestionRepo) UpdateStatus(context.Context, uuid.UUID, domain.MatchStatus) error {
	return nil
}
func (s *stubSuggestionRepo) GetDismissedCandidates(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
func (s *stubSuggestionRepo) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type stubPopularityRepo struct{}

func (s *stubPopularityRepo) SaveBatch(context.Context, []*domain.PopularityRow) error { return nil }
func (s *stubPopularityRepo) GetByCycle(context.Context, string) ([]*domain.PopularityRow, error) {
	return nil, nil
}

// ---- fixtures ----

// envelope mirrors APIResponse with the data kept raw for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func seedDirectory(n int) ([]*domain.Profile, map[uuid.UUID]*domain.IntakeSubmission) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-48 * time.Hour)

	profiles := make([]*domain.Profile, 0, n)
	intakes := make(map[uuid.UUID]*domain.IntakeSubmission)
	for i := 0; i < n; i++ {
		var b [16]byte
		b[0] = byte(i + 1)
		id, _ := uuid.FromBytes(b[:])
		profiles = append(profiles, &domain.Profile{
			ID:           id,
			Name:         "Profile " + id.String()[:4],
			Source:       domain.SourceDirectory,
			Niche:        "health & wellness",
			ListSize:     1000 + i*100,
			LastActiveAt: &recent,
		})
		intakes[id] = &domain.IntakeSubmission{
			ProfileID:      id,
			VerifiedOffers: []string{"video editing services"},
			VerifiedNeeds:  []string{"video editing help"},
			ConfirmedAt:    &recent,
		}
	}
	return profiles, intakes
}

// newTestApp wires the handler onto a bare fiber app. A nil producer and a nil
// report repo model the broker-less and archive-less degraded modes.
func newTestApp(t *testing.T, reportRepo domain.CycleReportRepository, producer out.MessageProducer) (*fiber.App, *stubSuggestionRepo) {
	t.Helper()
	profiles, intakes := seedDirectory(3)

	clock := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	assembler := assemble.NewAssembler(&stubProfileRepo{profiles: profiles}, &stubIntakeRepo{intakes: intakes})

	cfg := cycle.DefaultConfig()
	cfg.OracleEnabled = false
	scorerCfg := scoring.DefaultScorerConfig()
	scorerCfg.OracleEnabled = false
	scorer := scoring.NewScorer(scoring.NewRulePolicy(cfg.Weights, cfg.Thresholds), nil, nil, scorerCfg)

	suggestions := &stubSuggestionRepo{}
	svc := cycle.NewService(assembler, scorer, suggestions, &stubPopularityRepo{}, reportRepo, producer, nil, clock, cfg)

	h := NewMatchHandler(svc, nil, suggestions, &stubPopularityRepo{}, &stubIntakeRepo{}, reportRepo, nil, producer, clock)
	app := fiber.New()
	h.Register(app.Group("/api/v1"))
	return app, suggestions
}

func decodeEnvelope(t *testing.T, body io.Reader) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

// ---- tests ----

func TestRunCycleInlineWithoutBroker(t *testing.T) {
	app, suggestions := newTestApp(t, nil, nil)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/cycles/run", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 inline run without a broker", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp.Body)
	var report domain.CycleReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.CycleID == "" {
		t.Error("inline run returned no cycle id")
	}
	if report.PairsEmitted != len(suggestions.saved) {
		t.Errorf("PairsEmitted = %d, persisted = %d", report.PairsEmitted, len(suggestions.saved))
	}
}

func TestRunCycleHonorsRequestedID(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)

	body := strings.NewReader(`{"cycle_id": "cycle-ops-backfill"}`)
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/cycles/run", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp.Body)
	var report domain.CycleReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.CycleID != "cycle-ops-backfill" {
		t.Errorf("CycleID = %s, want the requested id", report.CycleID)
	}
}

func TestRefreshProfileInlineWithoutBroker(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	profiles, _ := seedDirectory(3)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/profiles/"+profiles[0].ID.String()+"/refresh", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 inline refresh without a broker", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp.Body)
	var list []*domain.MatchSuggestion
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode suggestions: %v", err)
	}
	if len(list) == 0 {
		t.Error("inline refresh returned no suggestions")
	}
}

func TestCycleReportsUnavailableWithoutArchive(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)

	for _, path := range []string{"/api/v1/cycles/", "/api/v1/cycles/cycle-20250601T090000Z"} {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		resp, err := app.Test(req, 5000)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503 without an archive", path, resp.StatusCode)
		}
	}
}
