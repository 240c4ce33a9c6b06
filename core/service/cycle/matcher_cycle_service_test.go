package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/assemble"
	"matcher_server/core/service/scoring"
	"matcher_server/pkg/apperr"
)

// ---- in-memory collaborators ----

type memProfileRepo struct{ profiles []*domain.Profile }

func (m *memProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	for _, p := range m.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperr.NotFound("profile")
}
func (m *memProfileRepo) GetAll(context.Context) ([]*domain.Profile, error) { return m.profiles, nil }
func (m *memProfileRepo) Create(context.Context, *domain.Profile) error     { return nil }
func (m *memProfileRepo) Update(context.Context, *domain.Profile) error     { return nil }
func (m *memProfileRepo) TouchLastActive(context.Context, uuid.UUID, time.Time) error {
	return nil
}
func (m *memProfileRepo) AppendFieldHistory(context.Context, *domain.FieldChange) error {
	return nil
}

type memIntakeRepo struct {
	intakes map[uuid.UUID]*domain.IntakeSubmission
	events  map[uuid.UUID][]string
}

func (m *memIntakeRepo) GetLatestConfirmed(context.Context, []uuid.UUID) (map[uuid.UUID]*domain.IntakeSubmission, error) {
	return m.intakes, nil
}
func (m *memIntakeRepo) GetEventHistory(context.Context, []uuid.UUID) (map[uuid.UUID][]string, error) {
	return m.events, nil
}
func (m *memIntakeRepo) Upsert(context.Context, *domain.IntakeSubmission) error { return nil }

type memSuggestionRepo struct {
	saved     []*domain.MatchSuggestion
	dismissed map[uuid.UUID][]uuid.UUID
	byID      map[uuid.UUID]*domain.MatchSuggestion
	statuses  map[uuid.UUID]domain.MatchStatus
}

func (m *memSuggestionRepo) UpsertBatch(_ context.Context, s []*domain.MatchSuggestion) error {
	m.saved = append([]*domain.MatchSuggestion{}, s...)
	return nil
}
func (m *memSuggestionRepo) GetByTarget(context.Context, uuid.UUID, int) ([]*domain.MatchSuggestion, error) {
	return m.saved, nil
}
func (m *memSuggestionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.MatchSuggestion, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("suggestion")
}
func (m *memSuggestionRepo) UpdateStatus(_ context.Context, id uuid.UUID, st domain.MatchStatus) error {
	if m.statuses == nil {
		m.statuses = map[uuid.UUID]domain.MatchStatus{}
	}
	m.statuses[id] = st
	return nil
}
func (m *memSuggestionRepo) GetDismissedCandidates(_ context.Context, target uuid.UUID) ([]uuid.UUID, error) {
	return m.dismissed[target], nil
}
func (m *memSuggestionRepo) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type memPopularityRepo struct{ rows []*domain.PopularityRow }

func (m *memPopularityRepo) SaveBatch(_ context.Context, rows []*domain.PopularityRow) error {
	m.rows = rows
	return nil
}
func (m *memPopularityRepo) GetByCycle(context.Context, string) ([]*domain.PopularityRow, error) {
	return m.rows, nil
}

type memReportRepo struct{ reports []*domain.CycleReport }

func (m *memReportRepo) Save(_ context.Context, r *domain.CycleReport) error {
	m.reports = append(m.reports, r)
	return nil
}
func (m *memReportRepo) GetByCycleID(context.Context, string) (*domain.CycleReport, error) {
	return nil, nil
}
func (m *memReportRepo) Latest(context.Context, int) ([]*domain.CycleReport, error) { return nil, nil }

type memProducer struct {
	cycleEvents   []*out.CycleCompletedEvent
	refreshEvents []*out.ProfileRefreshedEvent
}

func (m *memProducer) PublishCycleRun(context.Context, *out.CycleRunJob) error         { return nil }
func (m *memProducer) PublishProfileRefresh(context.Context, *out.ProfileRefreshJob) error {
	return nil
}
func (m *memProducer) PublishCycleCompleted(_ context.Context, e *out.CycleCompletedEvent) error {
	m.cycleEvents = append(m.cycleEvents, e)
	return nil
}
func (m *memProducer) PublishProfileRefreshed(_ context.Context, e *out.ProfileRefreshedEvent) error {
	m.refreshEvents = append(m.refreshEvents, e)
	return nil
}

// ---- fixtures ----

func frozenClock() Clock {
	ts := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

// seedPopulation builds a small directory of mutually matchable profiles.
func seedPopulation(n int) ([]*domain.Profile, map[uuid.UUID]*domain.IntakeSubmission) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-48 * time.Hour)

	profiles := make([]*domain.Profile, 0, n)
	intakes := make(map[uuid.UUID]*domain.IntakeSubmission)
	for i := 0; i < n; i++ {
		var b [16]byte
		b[0] = byte(i + 1)
		id, _ := uuid.FromBytes(b[:])
		p := &domain.Profile{
			ID:           id,
			Name:         "Profile " + id.String()[:4],
			Source:       domain.SourceDirectory,
			Niche:        "health & wellness",
			ListSize:     1000 + i*100,
			LastActiveAt: &recent,
		}
		profiles = append(profiles, p)
		intakes[id] = &domain.IntakeSubmission{
			ProfileID:      id,
			VerifiedOffers: []string{"video editing services"},
			VerifiedNeeds:  []string{"video editing help"},
			Preferences:    []domain.MatchPreference{domain.PreferencePeerBundle},
			ConfirmedAt:    &recent,
		}
	}
	return profiles, intakes
}

func newTestService(t *testing.T, profiles []*domain.Profile, intakes map[uuid.UUID]*domain.IntakeSubmission) (*Service, *memSuggestionRepo, *memPopularityRepo, *memReportRepo, *memProducer) {
	t.Helper()
	assembler := assemble.NewAssembler(&memProfileRepo{profiles: profiles}, &memIntakeRepo{intakes: intakes})

	cfg := DefaultConfig()
	cfg.OracleEnabled = false // deterministic lexical fallback only
	scorerCfg := scoring.DefaultScorerConfig()
	scorerCfg.OracleEnabled = false
	scorer := scoring.NewScorer(scoring.NewRulePolicy(cfg.Weights, cfg.Thresholds), nil, nil, scorerCfg)

	suggestions := &memSuggestionRepo{}
	popularity := &memPopularityRepo{}
	reports := &memReportRepo{}
	producer := &memProducer{}
	svc := NewService(assembler, scorer, suggestions, popularity, reports, producer, nil, frozenClock(), cfg)
	return svc, suggestions, popularity, reports, producer
}

// ---- tests ----

func TestRunCycleEndToEnd(t *testing.T) {
	profiles, intakes := seedPopulation(6)
	svc, suggestions, popularity, reports, producer := newTestService(t, profiles, intakes)

	report, err := svc.RunCycle(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if report.ProfilesScored != 6 {
		t.Errorf("ProfilesScored = %d, want 6", report.ProfilesScored)
	}
	if report.PairsConsidered != 30 {
		t.Errorf("PairsConsidered = %d, want 30 ordered pairs", report.PairsConsidered)
	}
	if report.PairsEmitted != len(suggestions.saved) {
		t.Errorf("PairsEmitted = %d, persisted = %d", report.PairsEmitted, len(suggestions.saved))
	}
	if report.Orphans != 0 {
		t.Errorf("Orphans = %d, want 0 for a mutually matchable population", report.Orphans)
	}

	for _, s := range suggestions.saved {
		if s.TargetProfileID == s.CandidateProfileID {
			t.Fatal("self-pair emitted")
		}
		if s.HarmonicMean < 0 || s.HarmonicMean > 100 {
			t.Errorf("harmonic mean %.2f out of range", s.HarmonicMean)
		}
		if s.Status != domain.StatusPending {
			t.Errorf("status = %s, want pending", s.Status)
		}
		if len(s.ConfigSnapshot) == 0 {
			t.Error("suggestion missing config snapshot")
		}
		wantExpiry := time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)
		if !s.ExpiresAt.Equal(wantExpiry) {
			t.Errorf("expires_at = %v, want cycle start + 7 days", s.ExpiresAt)
		}
	}

	if len(popularity.rows) == 0 {
		t.Error("popularity rows not persisted")
	}
	if len(reports.reports) != 1 {
		t.Errorf("archived reports = %d, want 1", len(reports.reports))
	}
	if len(producer.cycleEvents) != 1 {
		t.Errorf("cycle events = %d, want 1", len(producer.cycleEvents))
	}
}

func TestRunCycleDeterminism(t *testing.T) {
	profiles, intakes := seedPopulation(8)

	run := func() []*domain.MatchSuggestion {
		svc, suggestions, _, _, _ := newTestService(t, profiles, intakes)
		if _, err := svc.RunCycle(context.Background(), "", nil); err != nil {
			t.Fatalf("RunCycle() error = %v", err)
		}
		return suggestions.saved
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs emitted %d vs %d suggestions", len(a), len(b))
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.TargetProfileID != y.TargetProfileID ||
			x.CandidateProfileID != y.CandidateProfileID ||
			x.Rank != y.Rank || x.HarmonicMean != y.HarmonicMean ||
			x.MatchReason != y.MatchReason {
			t.Fatalf("run divergence at %d:\n%+v\n%+v", i, x, y)
		}
	}
}

func TestRunCycleExplicitIDAndOverride(t *testing.T) {
	profiles, intakes := seedPopulation(4)
	svc, suggestions, _, _, _ := newTestService(t, profiles, intakes)

	override := DefaultConfig()
	override.OracleEnabled = false
	override.TopK = 1
	override.ExpiryDays = 14

	report, err := svc.RunCycle(context.Background(), "cycle-backfill-2025w22", &override)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if report.CycleID != "cycle-backfill-2025w22" {
		t.Errorf("CycleID = %s, want the requested id", report.CycleID)
	}

	perTarget := map[uuid.UUID]int{}
	for _, s := range suggestions.saved {
		if s.CycleID != "cycle-backfill-2025w22" {
			t.Errorf("suggestion CycleID = %s, want the requested id", s.CycleID)
		}
		perTarget[s.TargetProfileID]++
		wantExpiry := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
		if !s.ExpiresAt.Equal(wantExpiry) {
			t.Errorf("expires_at = %v, want cycle start + 14 days", s.ExpiresAt)
		}
	}
	for target, n := range perTarget {
		if n > 1 {
			t.Errorf("target %s got %d suggestions, override top_k = 1", target, n)
		}
	}
}

func TestRunCycleRespectsDismissals(t *testing.T) {
	profiles, intakes := seedPopulation(4)
	svc, suggestions, _, _, _ := newTestService(t, profiles, intakes)
	suggestions.dismissed = map[uuid.UUID][]uuid.UUID{
		profiles[0].ID: {profiles[1].ID},
	}

	if _, err := svc.RunCycle(context.Background(), "", nil); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	for _, s := range suggestions.saved {
		if s.TargetProfileID == profiles[0].ID && s.CandidateProfileID == profiles[1].ID {
			t.Fatal("dismissed pair was re-suggested")
		}
	}
}

func TestRunCycleCancellation(t *testing.T) {
	profiles, intakes := seedPopulation(4)
	svc, suggestions, _, _, _ := newTestService(t, profiles, intakes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.RunCycle(ctx, "", nil); err == nil {
		t.Fatal("cancelled cycle must fail")
	}
	if len(suggestions.saved) != 0 {
		t.Error("cancelled cycle must not persist partial output")
	}
}

func TestRunForProfile(t *testing.T) {
	profiles, intakes := seedPopulation(5)
	svc, suggestions, _, _, producer := newTestService(t, profiles, intakes)

	list, err := svc.RunForProfile(context.Background(), profiles[0].ID)
	if err != nil {
		t.Fatalf("RunForProfile() error = %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("got %d suggestions, want 4", len(list))
	}
	for i, s := range list {
		if s.Rank != i+1 {
			t.Errorf("rank[%d] = %d, want %d", i, s.Rank, i+1)
		}
		if s.TargetProfileID != profiles[0].ID {
			t.Error("suggestion targeted at wrong profile")
		}
	}
	if len(suggestions.saved) != 4 {
		t.Errorf("persisted %d suggestions, want 4", len(suggestions.saved))
	}
	if len(producer.refreshEvents) != 1 {
		t.Errorf("refresh events = %d, want 1", len(producer.refreshEvents))
	}

	if _, err := svc.RunForProfile(context.Background(), uuid.New()); err == nil {
		t.Error("unknown profile should error")
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	profiles, intakes := seedPopulation(3)
	svc, suggestions, _, _, _ := newTestService(t, profiles, intakes)

	id := uuid.New()
	suggestions.byID = map[uuid.UUID]*domain.MatchSuggestion{
		id: {ID: id, Status: domain.StatusViewed},
	}

	if err := svc.UpdateStatus(context.Background(), id, domain.StatusContacted); err != nil {
		t.Errorf("viewed -> contacted should pass, got %v", err)
	}
	if err := svc.UpdateStatus(context.Background(), id, domain.StatusPending); err == nil {
		t.Error("viewed -> pending must be rejected")
	} else if apperr.AsAppError(err).Code != apperr.CodeIllegalTransition {
		t.Errorf("error code = %s, want ILLEGAL_TRANSITION", apperr.AsAppError(err).Code)
	}

	suggestions.byID[id].Status = domain.StatusDismissed
	if err := svc.UpdateStatus(context.Background(), id, domain.StatusViewed); err == nil {
		t.Error("terminal state must reject transitions")
	}
}
