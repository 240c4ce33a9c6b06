// Package fairness post-processes scored pairs: it enforces the popularity
// cap on Top-3 appearances and attaches ranks and tier labels.
package fairness

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"matcher_server/core/domain"
	"matcher_server/core/service/scoring"
	"matcher_server/pkg/logger"
)

// Ranked is a surviving pair with its final position in the target's list.
type Ranked struct {
	Pair *scoring.ScoredPair
	Rank int // 1-based
	Tier domain.RankTier
}

// Result is the filter output: per-target ranked lists, the cycle's
// popularity accounting, and the drop count for the report.
type Result struct {
	ByTarget   map[uuid.UUID][]Ranked
	Popularity map[uuid.UUID]int // Top-3 appearances per candidate
	Dropped    int               // pairs displaced out of a Top-3
}

type Filter struct {
	cap  int
	topK int
	log  zerolog.Logger
}

// NewFilter builds a fairness filter. cap limits Top-3 appearances per
// candidate per cycle; topK truncates each target's list.
func NewFilter(cap, topK int) *Filter {
	if cap < 1 {
		cap = 5
	}
	if topK < 1 {
		topK = 20
	}
	return &Filter{cap: cap, topK: topK, log: logger.Component("fairness")}
}

// Apply consumes pairs in deterministic global order (decreasing final score)
// and allocates Top-3 slots greedily. A candidate whose Top-3 budget is spent
// is displaced below rank 3 in that target's list but is not removed from it.
//
// The filter is the sole writer of the popularity counters.
func (f *Filter) Apply(pairs []*scoring.ScoredPair) *Result {
	scoring.SortGlobal(pairs)

	result := &Result{
		ByTarget:   make(map[uuid.UUID][]Ranked),
		Popularity: make(map[uuid.UUID]int),
	}

	top3 := make(map[uuid.UUID][]*scoring.ScoredPair)    // filled Top-3 slots
	deferred := make(map[uuid.UUID][]*scoring.ScoredPair) // displaced + overflow

	for _, pair := range pairs {
		if len(top3[pair.TargetID]) < 3 {
			if result.Popularity[pair.CandidateID] >= f.cap {
				result.Dropped++
				deferred[pair.TargetID] = append(deferred[pair.TargetID], pair)
				continue
			}
			result.Popularity[pair.CandidateID]++
			top3[pair.TargetID] = append(top3[pair.TargetID], pair)
			continue
		}
		deferred[pair.TargetID] = append(deferred[pair.TargetID], pair)
	}

	for targetID, head := range top3 {
		list := append([]*scoring.ScoredPair{}, head...)
		list = append(list, deferred[targetID]...)
		delete(deferred, targetID)
		result.ByTarget[targetID] = f.rank(list)
	}
	// targets whose every candidate was displaced still get a (sub-Top-3) list
	for targetID, rest := range deferred {
		result.ByTarget[targetID] = f.rank(rest)
	}
	return result
}

// rank assigns 1-based positions and tier labels, truncating at topK. The
// head of the list keeps the greedy Top-3 order; the tail is already in
// global score order.
func (f *Filter) rank(list []*scoring.ScoredPair) []Ranked {
	if len(list) > f.topK {
		list = list[:f.topK]
	}
	out := make([]Ranked, 0, len(list))
	for i, pair := range list {
		rank := i + 1
		out = append(out, Ranked{
			Pair: pair,
			Rank: rank,
			Tier: domain.TierForRank(rank),
		})
	}
	return out
}
