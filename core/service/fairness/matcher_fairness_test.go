package fairness

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"matcher_server/core/domain"
	"matcher_server/core/service/scoring"
)

// pairFor builds a minimal scored pair with a given final score.
func pairFor(target, candidate uuid.UUID, final float64) *scoring.ScoredPair {
	return &scoring.ScoredPair{
		TargetID:    target,
		CandidateID: candidate,
		Final:       final,
		Harmonic:    final,
		ScoreAB:     final,
		ScoreBA:     final,
		Trust:       domain.TrustPlatinum,
	}
}

// orderedIDs returns n UUIDs in ascending string order so score ties resolve
// predictably.
func orderedIDs(t *testing.T, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		var b [16]byte
		b[0] = byte(i + 1)
		id, err := uuid.FromBytes(b[:])
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}
	return ids
}

func TestPopularityCap(t *testing.T) {
	// Profile X would land in the Top-3 of 10 targets; with CAP=5 exactly
	// 5 slots retain X and the rest keep X below rank 3.
	ids := orderedIDs(t, 15)
	x := ids[0]
	targets := ids[1:11]
	fillers := ids[11:]

	var pairs []*scoring.ScoredPair
	for i, target := range targets {
		// X is the strongest candidate for every target
		pairs = append(pairs, pairFor(target, x, 95-float64(i)))
		for j, f := range fillers {
			pairs = append(pairs, pairFor(target, f, 80-float64(i)-float64(j)))
		}
	}

	result := NewFilter(5, 20).Apply(pairs)

	if got := result.Popularity[x]; got != 5 {
		t.Errorf("top-3 counter for X = %d, want exactly 5", got)
	}

	inTop3, displaced := 0, 0
	for _, target := range targets {
		list := result.ByTarget[target]
		foundTop3 := false
		for _, r := range list {
			if r.Pair.CandidateID != x {
				continue
			}
			if r.Rank <= 3 {
				foundTop3 = true
			} else {
				displaced++
			}
		}
		if foundTop3 {
			inTop3++
		}
	}
	if inTop3 != 5 {
		t.Errorf("X appears in %d Top-3 lists, want 5", inTop3)
	}
	if displaced != 5 {
		t.Errorf("X displaced to rank 4+ in %d lists, want 5", displaced)
	}
	if result.Dropped != 5 {
		t.Errorf("Dropped = %d, want 5", result.Dropped)
	}
}

func TestCapInvariantHolds(t *testing.T) {
	ids := orderedIDs(t, 30)
	var pairs []*scoring.ScoredPair
	for i, target := range ids {
		for j, cand := range ids {
			if i == j {
				continue
			}
			pairs = append(pairs, pairFor(target, cand, float64((i*7+j*13)%90)+1))
		}
	}

	cap := 3
	result := NewFilter(cap, 10).Apply(pairs)

	counts := make(map[uuid.UUID]int)
	for _, list := range result.ByTarget {
		for _, r := range list {
			if r.Rank <= 3 {
				counts[r.Pair.CandidateID]++
			}
		}
	}
	for id, n := range counts {
		if n > cap {
			t.Errorf("candidate %s holds %d Top-3 slots, cap is %d", id, n, cap)
		}
	}
	for id, n := range result.Popularity {
		if n != counts[id] {
			t.Errorf("popularity row for %s = %d, actual Top-3 slots = %d", id, n, counts[id])
		}
	}
}

func TestRankTiers(t *testing.T) {
	ids := orderedIDs(t, 12)
	target := ids[0]
	var pairs []*scoring.ScoredPair
	for i, cand := range ids[1:] {
		pairs = append(pairs, pairFor(target, cand, 90-float64(i)))
	}

	result := NewFilter(5, 20).Apply(pairs)
	list := result.ByTarget[target]
	if len(list) != 11 {
		t.Fatalf("got %d ranked pairs, want 11", len(list))
	}
	for _, r := range list {
		want := domain.TierBronze
		switch {
		case r.Rank <= 3:
			want = domain.TierGold
		case r.Rank <= 8:
			want = domain.TierSilver
		}
		if r.Tier != want {
			t.Errorf("rank %d tier = %s, want %s", r.Rank, r.Tier, want)
		}
	}
}

func TestTopKTruncation(t *testing.T) {
	ids := orderedIDs(t, 30)
	target := ids[0]
	var pairs []*scoring.ScoredPair
	for i, cand := range ids[1:] {
		pairs = append(pairs, pairFor(target, cand, 90-float64(i)))
	}

	result := NewFilter(5, 10).Apply(pairs)
	if got := len(result.ByTarget[target]); got != 10 {
		t.Errorf("list length = %d, want topK 10", got)
	}
}

func TestDeterministicOrdering(t *testing.T) {
	ids := orderedIDs(t, 10)
	build := func() []*scoring.ScoredPair {
		var pairs []*scoring.ScoredPair
		for i, target := range ids {
			for j, cand := range ids {
				if i == j {
					continue
				}
				pairs = append(pairs, pairFor(target, cand, float64((i*3+j*11)%50)))
			}
		}
		return pairs
	}

	a := NewFilter(4, 8).Apply(build())
	b := NewFilter(4, 8).Apply(build())

	keyOf := func(r *Result) string {
		s := ""
		for _, id := range ids {
			for _, ranked := range r.ByTarget[id] {
				s += fmt.Sprintf("%s:%d:%s;", id, ranked.Rank, ranked.Pair.CandidateID)
			}
		}
		return s
	}
	if keyOf(a) != keyOf(b) {
		t.Error("identical inputs must produce identical ranked output")
	}
}
