package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/assemble"
	"matcher_server/pkg/logger"
	"matcher_server/pkg/textutil"
)

// ScoredPair is one reciprocal evaluation, target-oriented: the suggestion
// lands in Target's list, recommending Candidate.
type ScoredPair struct {
	TargetID    uuid.UUID
	CandidateID uuid.UUID

	AB Directional // target -> candidate
	BA Directional // candidate -> target

	ScoreAB  float64 // 0-100
	ScoreBA  float64 // 0-100
	Harmonic float64 // 0-100
	Final    float64 // 0-100, harmonic x trust weight

	Trust    domain.TrustLevel
	Symmetry float64
	Reason   string

	CandidateLastActive *time.Time // tie-break input
}

// Output is the scorer stage result: all surviving pairs in deterministic
// global order plus counters for the cycle report.
type Output struct {
	Pairs           []*ScoredPair
	PairsConsidered int
	OracleFallbacks int
}

// ScorerConfig tunes batching, concurrency and the memoization TTL.
type ScorerConfig struct {
	Shards        int
	OracleEnabled bool
	BatchSize     int
	CacheTTL      time.Duration
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Shards:        8,
		OracleEnabled: true,
		BatchSize:     32,
		CacheTTL:      24 * time.Hour,
	}
}

type Scorer struct {
	policy Policy
	oracle out.SemanticOracle
	cache  out.Cache
	cfg    ScorerConfig
	log    zerolog.Logger
}

func NewScorer(policy Policy, oracle out.SemanticOracle, cache out.Cache, cfg ScorerConfig) *Scorer {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	if cfg.BatchSize < 32 {
		cfg.BatchSize = 32
	}
	return &Scorer{
		policy: policy,
		oracle: oracle,
		cache:  cache,
		cfg:    cfg,
		log:    logger.Component("scorer"),
	}
}

// ScoreAll evaluates every eligible ordered pair over the bundle set.
//
// The oracle round happens up front: all distinct text pairs are resolved in
// batches (memoized in the cache), then pair scoring itself is pure CPU and
// shards cleanly. Workers read the bundle table read-only and write to
// per-shard buffers merged append-only at the end.
func (s *Scorer) ScoreAll(ctx context.Context, bundles *assemble.Result, now time.Time) (*Output, error) {
	output := &Output{}

	sim, fallbacks, err := s.resolveSimilarities(ctx, bundles)
	if err != nil {
		return nil, err
	}
	output.OracleFallbacks = fallbacks

	ids := bundles.Ordered
	shardBufs := make([][]*ScoredPair, s.cfg.Shards)
	considered := make([]int, s.cfg.Shards)

	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < s.cfg.Shards; shard++ {
		shard := shard
		g.Go(func() error {
			for i, targetID := range ids {
				if i%s.cfg.Shards != shard {
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				target := bundles.Bundles[targetID]
				for _, candID := range ids {
					if candID == targetID {
						continue // self-pair
					}
					cand := bundles.Bundles[candID]
					if target.Excludes(cand) || cand.Excludes(target) {
						continue // anti-persona exclusion, both directions
					}
					considered[shard]++
					pair := s.scorePair(target, cand, sim, now)
					shardBufs[shard] = append(shardBufs[shard], pair)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for shard := 0; shard < s.cfg.Shards; shard++ {
		output.Pairs = append(output.Pairs, shardBufs[shard]...)
		output.PairsConsidered += considered[shard]
	}

	SortGlobal(output.Pairs)
	return output, nil
}

// ScoreFor evaluates a single target against the full bundle set.
func (s *Scorer) ScoreFor(ctx context.Context, targetID uuid.UUID, bundles *assemble.Result, now time.Time) ([]*ScoredPair, error) {
	sim, _, err := s.resolveSimilarities(ctx, bundles)
	if err != nil {
		return nil, err
	}
	target, ok := bundles.Bundles[targetID]
	if !ok {
		return nil, nil
	}
	var pairs []*ScoredPair
	for _, candID := range bundles.Ordered {
		if candID == targetID {
			continue
		}
		cand := bundles.Bundles[candID]
		if target.Excludes(cand) || cand.Excludes(target) {
			continue
		}
		pairs = append(pairs, s.scorePair(target, cand, sim, now))
	}
	SortPerTarget(pairs)
	return pairs, nil
}

func (s *Scorer) scorePair(target, cand *assemble.Bundle, sim Similarity, now time.Time) *ScoredPair {
	ab := s.policy.ScoreDirection(target, cand, sim, now)
	ba := s.policy.ScoreDirection(cand, target, sim, now)

	trust := domain.MinTrust(target.Trust, cand.Trust)
	hm := HarmonicMean(ab.Score, ba.Score)

	pair := &ScoredPair{
		TargetID:            target.ProfileID,
		CandidateID:         cand.ProfileID,
		AB:                  ab,
		BA:                  ba,
		ScoreAB:             ab.Score * 100,
		ScoreBA:             ba.Score * 100,
		Harmonic:            hm * 100,
		Final:               hm * 100 * trust.Weight(),
		Trust:               trust,
		Symmetry:            ab.Symmetry,
		CandidateLastActive: cand.LastActive,
	}
	pair.Reason = BuildReason(target, cand, ab)
	return pair
}

// resolveSimilarities collects every distinct text pair the policy will ask
// about, answers from the memo cache, batches the misses to the oracle, and
// returns a pure lookup. Anything still unresolved (oracle off, error, quota)
// falls back to keyword Jaccard.
func (s *Scorer) resolveSimilarities(ctx context.Context, bundles *assemble.Result) (Similarity, int, error) {
	resolved := make(map[string]float64)
	fallbacks := 0

	if s.cfg.OracleEnabled && s.oracle != nil {
		wanted := s.collectTextPairs(bundles)

		// memo cache first
		if s.cache != nil && len(wanted) > 0 {
			keys := make([]string, 0, len(wanted))
			for k := range wanted {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			cached, err := s.cache.GetMultiFloat(ctx, keys)
			if err != nil {
				s.log.Warn().Err(err).Msg("similarity cache read failed")
			} else {
				for k, v := range cached {
					resolved[k] = v
					delete(wanted, k)
				}
			}
		}

		// batch the misses
		if len(wanted) > 0 {
			pairs := make([]out.TextPair, 0, len(wanted))
			for _, tp := range wanted {
				pairs = append(pairs, tp)
			}
			sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

			fresh := make(map[string]float64)
			for start := 0; start < len(pairs); start += s.cfg.BatchSize {
				end := start + s.cfg.BatchSize
				if end > len(pairs) {
					end = len(pairs)
				}
				scores, err := s.oracle.Similarity(ctx, pairs[start:end])
				if err != nil {
					// oracle trouble is never fatal; unresolved pairs use
					// the lexical fallback
					fallbacks += len(pairs) - start
					s.log.Warn().Err(err).Int("pairs", len(pairs)-start).Msg("oracle failed, falling back to lexical")
					break
				}
				for k, v := range scores {
					resolved[k] = v
					fresh[k] = v
				}
			}
			if s.cache != nil && len(fresh) > 0 {
				if err := s.cache.SetMultiFloat(ctx, fresh, s.cfg.CacheTTL); err != nil {
					s.log.Warn().Err(err).Msg("similarity cache write failed")
				}
			}
		}
	}

	var mu sync.Mutex
	keywordMemo := make(map[string]map[string]struct{})
	keywords := func(text string) map[string]struct{} {
		mu.Lock()
		defer mu.Unlock()
		if set, ok := keywordMemo[text]; ok {
			return set
		}
		set := textutil.Keywords(text)
		keywordMemo[text] = set
		return set
	}

	sim := func(a, b string) (float64, bool) {
		if score, ok := resolved[SimilarityKey(a, b)]; ok {
			return score, true
		}
		return textutil.Jaccard(keywords(a), keywords(b)), false
	}
	return sim, fallbacks, nil
}

// collectTextPairs enumerates the distinct (needs, offer) and (niche, niche)
// comparisons scoring will make, keyed for memoization.
func (s *Scorer) collectTextPairs(bundles *assemble.Result) map[string]out.TextPair {
	wanted := make(map[string]out.TextPair)
	add := func(a, b string) {
		if a == "" || b == "" || a == b {
			return
		}
		key := SimilarityKey(a, b)
		if _, ok := wanted[key]; !ok {
			wanted[key] = out.TextPair{Key: key, Needs: a, Offer: b}
		}
	}

	ids := bundles.Ordered
	for _, aID := range ids {
		a := bundles.Bundles[aID]
		for _, bID := range ids {
			if aID == bID {
				continue
			}
			b := bundles.Bundles[bID]
			for _, need := range a.Needs {
				for _, offer := range b.Offers {
					add(need, offer)
				}
			}
			add(a.Niche, b.Niche)
		}
	}
	return wanted
}

// SimilarityKey is the memo key for one normalized text pair.
func SimilarityKey(a, b string) string {
	h := sha256.Sum256([]byte(a + "\x1f" + b))
	return "sim:" + hex.EncodeToString(h[:16])
}

// SortGlobal orders pairs for the fairness filter: decreasing final score,
// then candidate id, then target id. Total and reproducible.
func SortGlobal(pairs []*ScoredPair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Final != b.Final {
			return a.Final > b.Final
		}
		if a.CandidateID != b.CandidateID {
			return a.CandidateID.String() < b.CandidateID.String()
		}
		return a.TargetID.String() < b.TargetID.String()
	})
}

// SortPerTarget orders one target's candidates: decreasing final score, then
// higher trust, then smaller |S_AB - S_BA|, then more recently active
// candidate, then candidate id.
func SortPerTarget(pairs []*ScoredPair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Final != b.Final {
			return a.Final > b.Final
		}
		if a.Trust != b.Trust {
			return a.Trust.Rank() > b.Trust.Rank()
		}
		da := abs(a.ScoreAB - a.ScoreBA)
		db := abs(b.ScoreAB - b.ScoreBA)
		if da != db {
			return da < db
		}
		at, bt := a.CandidateLastActive, b.CandidateLastActive
		if at != nil && bt != nil && !at.Equal(*bt) {
			return at.After(*bt)
		}
		if (at == nil) != (bt == nil) {
			return at != nil // known activity beats unknown
		}
		return a.CandidateID.String() < b.CandidateID.String()
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
