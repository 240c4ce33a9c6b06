package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/assemble"
)

type fakeOracle struct {
	scores map[string]float64 // keyed by needs|offer
	calls  int
	fail   bool
}

func (f *fakeOracle) Similarity(_ context.Context, pairs []out.TextPair) (map[string]float64, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("quota exceeded")
	}
	result := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		if v, ok := f.scores[p.Needs+"|"+p.Offer]; ok {
			result[p.Key] = v
		} else {
			result[p.Key] = 0
		}
	}
	return result, nil
}

type fakeCache struct {
	floats map[string]float64
	gets   int
	sets   int
}

func (f *fakeCache) GetMultiFloat(_ context.Context, keys []string) (map[string]float64, error) {
	f.gets++
	result := make(map[string]float64)
	for _, k := range keys {
		if v, ok := f.floats[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}
func (f *fakeCache) SetMultiFloat(_ context.Context, items map[string]float64, _ time.Duration) error {
	f.sets++
	if f.floats == nil {
		f.floats = map[string]float64{}
	}
	for k, v := range items {
		f.floats[k] = v
	}
	return nil
}
func (f *fakeCache) AcquireLock(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeCache) ReleaseLock(context.Context, string, string) error { return nil }

func bundleSet(t *testing.T, n int, mutate func(i int, b *assemble.Bundle)) *assemble.Result {
	t.Helper()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result := &assemble.Result{Bundles: map[uuid.UUID]*assemble.Bundle{}}
	for i := 0; i < n; i++ {
		var raw [16]byte
		raw[0] = byte(i + 1)
		id, err := uuid.FromBytes(raw[:])
		if err != nil {
			t.Fatal(err)
		}
		b := &assemble.Bundle{
			ProfileID:    id,
			Name:         "P",
			Niche:        "health & wellness",
			Reach:        1000,
			LastActive:   &now,
			Preferences:  []domain.MatchPreference{domain.PreferencePeerBundle},
			AntiPersonas: map[domain.AntiPersona]struct{}{},
			Events:       map[string]struct{}{},
			Trust:        domain.TrustPlatinum,
			Needs:        []string{"video editing help"},
			Offers:       []string{"video editing services"},
		}
		if mutate != nil {
			mutate(i, b)
		}
		result.Bundles[id] = b
		result.Ordered = append(result.Ordered, id)
	}
	return result
}

func newTestScorer(oracle out.SemanticOracle, cache out.Cache, enabled bool) *Scorer {
	cfg := DefaultScorerConfig()
	cfg.OracleEnabled = enabled
	cfg.Shards = 3
	return NewScorer(NewRulePolicy(DefaultWeights(), DefaultThresholds()), oracle, cache, cfg)
}

func TestScoreAllBasics(t *testing.T) {
	bundles := bundleSet(t, 5, nil)
	s := newTestScorer(nil, nil, false)

	output, err := s.ScoreAll(context.Background(), bundles, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ScoreAll() error = %v", err)
	}
	if output.PairsConsidered != 20 {
		t.Errorf("PairsConsidered = %d, want 20 ordered pairs", output.PairsConsidered)
	}
	for _, p := range output.Pairs {
		if p.TargetID == p.CandidateID {
			t.Fatal("self-pair scored")
		}
		if p.Harmonic < 0 || p.Harmonic > 100 {
			t.Errorf("harmonic %.2f out of range", p.Harmonic)
		}
		if p.Final > p.Harmonic+1e-9 {
			t.Errorf("final %.2f exceeds harmonic %.2f", p.Final, p.Harmonic)
		}
	}
}

func TestScoreAllAntiPersonaExclusion(t *testing.T) {
	bundles := bundleSet(t, 3, func(i int, b *assemble.Bundle) {
		if i == 0 {
			b.AntiPersonas[domain.AntiNoCompetitors] = struct{}{}
		}
	})
	// all share a niche, so profile 0 excludes (and is excluded from) both others
	s := newTestScorer(nil, nil, false)
	output, err := s.ScoreAll(context.Background(), bundles, time.Now())
	if err != nil {
		t.Fatalf("ScoreAll() error = %v", err)
	}

	excluded := bundles.Ordered[0]
	for _, p := range output.Pairs {
		if p.TargetID == excluded || p.CandidateID == excluded {
			t.Fatalf("excluded profile appears in pair %s -> %s", p.TargetID, p.CandidateID)
		}
	}
	if output.PairsConsidered != 2 {
		t.Errorf("PairsConsidered = %d, want 2 (only the 2-cycle between the others)", output.PairsConsidered)
	}
}

func TestScoreAllDeterminism(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	run := func() []*ScoredPair {
		bundles := bundleSet(t, 7, func(i int, b *assemble.Bundle) {
			b.Reach = 500 * (i + 1)
		})
		s := newTestScorer(nil, nil, false)
		output, err := s.ScoreAll(context.Background(), bundles, now)
		if err != nil {
			t.Fatal(err)
		}
		return output.Pairs
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("pair counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].TargetID != b[i].TargetID || a[i].CandidateID != b[i].CandidateID ||
			a[i].Final != b[i].Final || a[i].Reason != b[i].Reason {
			t.Fatalf("divergence at %d", i)
		}
	}
}

func TestOracleBatchingAndMemoization(t *testing.T) {
	oracle := &fakeOracle{scores: map[string]float64{
		"video editing help|video editing services": 0.92,
	}}
	cache := &fakeCache{}
	bundles := bundleSet(t, 4, nil)

	s := newTestScorer(oracle, cache, true)
	if _, err := s.ScoreAll(context.Background(), bundles, time.Now()); err != nil {
		t.Fatalf("ScoreAll() error = %v", err)
	}
	if oracle.calls == 0 {
		t.Fatal("oracle never called")
	}
	firstCalls := oracle.calls
	if cache.sets == 0 {
		t.Error("fresh scores not memoized")
	}

	// second run over identical texts should be served from the memo cache
	if _, err := s.ScoreAll(context.Background(), bundles, time.Now()); err != nil {
		t.Fatalf("second ScoreAll() error = %v", err)
	}
	if oracle.calls != firstCalls {
		t.Errorf("oracle called %d more times despite warm cache", oracle.calls-firstCalls)
	}
}

func TestOracleFailureFallsBack(t *testing.T) {
	oracle := &fakeOracle{fail: true}
	bundles := bundleSet(t, 3, nil)

	s := newTestScorer(oracle, nil, true)
	output, err := s.ScoreAll(context.Background(), bundles, time.Now())
	if err != nil {
		t.Fatalf("oracle failure must not be fatal, got %v", err)
	}
	if output.OracleFallbacks == 0 {
		t.Error("fallback counter not incremented")
	}
	// lexical fallback still fires intent for overlapping texts
	for _, p := range output.Pairs {
		if !p.AB.Intent {
			t.Error("lexical fallback should fire intent for overlapping need/offer")
			break
		}
	}
}

func TestSortPerTargetTieBreaks(t *testing.T) {
	tA := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	tB := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	id := func(b byte) uuid.UUID {
		var raw [16]byte
		raw[0] = b
		v, _ := uuid.FromBytes(raw[:])
		return v
	}

	pairs := []*ScoredPair{
		{CandidateID: id(4), Final: 50, Trust: domain.TrustGold, ScoreAB: 60, ScoreBA: 40},
		{CandidateID: id(3), Final: 50, Trust: domain.TrustPlatinum, ScoreAB: 70, ScoreBA: 30, CandidateLastActive: &tB},
		{CandidateID: id(2), Final: 50, Trust: domain.TrustPlatinum, ScoreAB: 70, ScoreBA: 30, CandidateLastActive: &tA},
		{CandidateID: id(1), Final: 50, Trust: domain.TrustPlatinum, ScoreAB: 55, ScoreBA: 45},
		{CandidateID: id(5), Final: 80, Trust: domain.TrustBronze, ScoreAB: 90, ScoreBA: 70},
	}
	SortPerTarget(pairs)

	want := []byte{5, 1, 2, 3, 4}
	for i, w := range want {
		if pairs[i].CandidateID != id(w) {
			t.Fatalf("position %d = %s, want candidate %d", i, pairs[i].CandidateID, w)
		}
	}
}
