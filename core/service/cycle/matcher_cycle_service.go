// Package cycle drives the four-stage matching pipeline: resolve, assemble,
// score, fairness-filter, then persist. Stages run sequentially; scoring
// parallelizes internally.
package cycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"matcher_server/core/domain"
	"matcher_server/core/port/out"
	"matcher_server/core/service/assemble"
	"matcher_server/core/service/fairness"
	"matcher_server/core/service/scoring"
	"matcher_server/pkg/apperr"
	"matcher_server/pkg/logger"
)

// Clock supplies wall-clock time. Injected so cycle runs are reproducible
// under test.
type Clock func() time.Time

// Config is the per-run tuning snapshot. The effective values are serialized
// onto every suggestion row for reproducibility.
type Config struct {
	TopK          int                `json:"top_k"`
	PopularityCap int                `json:"popularity_cap"`
	ExpiryDays    int                `json:"expiry_days"`
	OracleEnabled bool               `json:"oracle_enabled"`
	Weights       scoring.Weights    `json:"weights"`
	Thresholds    scoring.Thresholds `json:"thresholds"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TopK:          20,
		PopularityCap: 5,
		ExpiryDays:    7,
		OracleEnabled: true,
		Weights:       scoring.DefaultWeights(),
		Thresholds:    scoring.DefaultThresholds(),
	}
}

const lockKey = "matcher:cycle:lock"

// suggestionNamespace seeds deterministic suggestion IDs so identical inputs
// produce identical rows.
var suggestionNamespace = uuid.MustParse("9b1f6e24-5b1a-4f7e-9d3a-2c8f0a6b7c4d")

type Service struct {
	assembler      *assemble.Assembler
	scorer         *scoring.Scorer
	suggestionRepo domain.SuggestionRepository
	popularityRepo domain.PopularityRepository
	reportRepo     domain.CycleReportRepository
	producer       out.MessageProducer
	cache          out.Cache
	now            Clock
	cfg            Config
	log            zerolog.Logger
}

func NewService(
	assembler *assemble.Assembler,
	scorer *scoring.Scorer,
	suggestionRepo domain.SuggestionRepository,
	popularityRepo domain.PopularityRepository,
	reportRepo domain.CycleReportRepository,
	producer out.MessageProducer,
	cache out.Cache,
	now Clock,
	cfg Config,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		assembler:      assembler,
		scorer:         scorer,
		suggestionRepo: suggestionRepo,
		popularityRepo: popularityRepo,
		reportRepo:     reportRepo,
		producer:       producer,
		cache:          cache,
		now:            now,
		cfg:            cfg,
		log:            logger.Component("cycle"),
	}
}

// RunCycle executes a full match cycle. Per-record failures are counted and
// skipped; invariant violations abort before anything is persisted. The final
// write is transactional: a failed write rolls the cycle back.
//
// An empty cycleID derives one from the clock. A nil override uses the
// service's configured snapshot; OracleEnabled reflects construction-time
// wiring and is not overridable per run.
func (s *Service) RunCycle(ctx context.Context, cycleID string, override *Config) (*domain.CycleReport, error) {
	cfg := s.cfg
	if override != nil {
		cfg = *override
		cfg.OracleEnabled = s.cfg.OracleEnabled
	}

	startedAt := s.now()
	if cycleID == "" {
		cycleID = fmt.Sprintf("cycle-%s", startedAt.UTC().Format("20060102T150405Z"))
	}
	log := logger.Cycle(cycleID)

	if s.cache != nil {
		ok, err := s.cache.AcquireLock(ctx, lockKey, cycleID, time.Hour)
		if err != nil {
			log.Warn().Err(err).Msg("cycle lock unavailable, proceeding unlocked")
		} else if !ok {
			return nil, apperr.CycleAlreadyRunning(cycleID)
		} else {
			defer func() {
				if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), lockKey, cycleID); err != nil {
					log.Warn().Err(err).Msg("failed to release cycle lock")
				}
			}()
		}
	}

	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	// Stage: assemble
	bundles, err := s.assembler.AssembleAll(ctx, startedAt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info().Int("profiles", len(bundles.Bundles)).Int("data_errors", bundles.DataErrors).Msg("bundles assembled")

	// Stage: score
	scored, err := s.scorer.ScoreAll(ctx, bundles, startedAt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info().Int("pairs", scored.PairsConsidered).Int("oracle_fallbacks", scored.OracleFallbacks).Msg("pairs scored")

	// Dismissed pairs never come back
	kept, err := s.dropDismissed(ctx, bundles, scored.Pairs)
	if err != nil {
		return nil, err
	}

	// Stage: fairness
	filtered := fairness.NewFilter(cfg.PopularityCap, cfg.TopK).Apply(kept)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.verifyInvariants(filtered, cfg.PopularityCap); err != nil {
		return nil, err
	}

	// Stage: persist
	suggestions := s.buildSuggestions(cycleID, filtered, snapshot, startedAt, cfg.ExpiryDays)
	if err := s.suggestionRepo.UpsertBatch(ctx, suggestions); err != nil {
		return nil, apperr.StorageError("persist suggestions", err)
	}
	if err := s.savePopularity(ctx, cycleID, filtered); err != nil {
		return nil, err
	}

	// purge suggestions past expiry; terminal rows stay as history
	if purged, err := s.suggestionRepo.DeleteExpired(ctx, startedAt); err != nil {
		log.Warn().Err(err).Msg("failed to purge expired suggestions")
	} else if purged > 0 {
		log.Info().Int64("purged", purged).Msg("expired suggestions purged")
	}

	report := &domain.CycleReport{
		CycleID:         cycleID,
		StartedAt:       startedAt,
		FinishedAt:      s.now(),
		ProfilesScored:  len(bundles.Bundles),
		PairsConsidered: scored.PairsConsidered,
		PairsEmitted:    len(suggestions),
		PairsDropped:    filtered.Dropped,
		Orphans:         countOrphans(bundles, filtered),
		DataErrors:      bundles.DataErrors,
		OracleFallbacks: scored.OracleFallbacks,
		SleepingGiants:  bundles.SleepingGiants,
		ConfigSnapshot:  snapshot,
	}

	// archive and event fan-out are best effort; the cycle already committed
	if s.reportRepo != nil {
		if err := s.reportRepo.Save(ctx, report); err != nil {
			log.Warn().Err(err).Msg("failed to archive cycle report")
		}
	}
	if s.producer != nil {
		event := &out.CycleCompletedEvent{
			CycleID:      cycleID,
			PairsEmitted: report.PairsEmitted,
			Orphans:      report.Orphans,
			FinishedAt:   report.FinishedAt,
		}
		if err := s.producer.PublishCycleCompleted(ctx, event); err != nil {
			log.Warn().Err(err).Msg("failed to publish cycle event")
		}
	}

	log.Info().
		Int("emitted", report.PairsEmitted).
		Int("dropped", report.PairsDropped).
		Int("orphans", report.Orphans).
		Dur("took", report.Duration()).
		Msg("cycle complete")
	return report, nil
}

// RunForProfile regenerates suggestions for one profile on demand. The
// popularity budget is cycle-scoped, so an on-demand refresh ranks without
// touching cycle counters.
func (s *Service) RunForProfile(ctx context.Context, profileID uuid.UUID) ([]*domain.MatchSuggestion, error) {
	now := s.now()
	refreshID := fmt.Sprintf("refresh-%s-%s", profileID, now.UTC().Format("20060102T150405Z"))

	bundles, err := s.assembler.AssembleAll(ctx, now)
	if err != nil {
		return nil, err
	}
	if _, ok := bundles.Bundles[profileID]; !ok {
		return nil, apperr.NotFound("profile")
	}

	pairs, err := s.scorer.ScoreFor(ctx, profileID, bundles, now)
	if err != nil {
		return nil, err
	}

	dismissed, err := s.suggestionRepo.GetDismissedCandidates(ctx, profileID)
	if err != nil {
		return nil, apperr.StorageError("load dismissed candidates", err)
	}
	dismissedSet := make(map[uuid.UUID]struct{}, len(dismissed))
	for _, id := range dismissed {
		dismissedSet[id] = struct{}{}
	}

	snapshot, err := json.Marshal(s.cfg)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	var suggestions []*domain.MatchSuggestion
	rank := 0
	for _, pair := range pairs {
		if _, skip := dismissedSet[pair.CandidateID]; skip {
			continue
		}
		rank++
		if rank > s.cfg.TopK {
			break
		}
		suggestions = append(suggestions, s.toSuggestion(refreshID, pair, rank, snapshot, now, s.cfg.ExpiryDays))
	}

	if err := s.suggestionRepo.UpsertBatch(ctx, suggestions); err != nil {
		return nil, apperr.StorageError("persist suggestions", err)
	}
	if s.producer != nil {
		event := &out.ProfileRefreshedEvent{
			ProfileID:   profileID.String(),
			Suggestions: len(suggestions),
			RefreshedAt: now,
		}
		if err := s.producer.PublishProfileRefreshed(ctx, event); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish refresh event")
		}
	}
	return suggestions, nil
}

// UpdateStatus moves a suggestion along its lifecycle. Transitions are
// forward-only; terminal states reject everything.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next domain.MatchStatus) error {
	if !domain.ValidStatus(string(next)) {
		return apperr.InvalidInput("status", "unknown value")
	}
	current, err := s.suggestionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return apperr.NotFound("suggestion")
	}
	if !current.Status.CanTransitionTo(next) {
		return apperr.IllegalTransition(string(current.Status), string(next))
	}
	return s.suggestionRepo.UpdateStatus(ctx, id, next)
}

// dropDismissed removes pairs the target has already dismissed in any prior
// cycle, before fairness so cap slots are not wasted on them.
func (s *Service) dropDismissed(ctx context.Context, bundles *assemble.Result, pairs []*scoring.ScoredPair) ([]*scoring.ScoredPair, error) {
	dismissed := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, targetID := range bundles.Ordered {
		ids, err := s.suggestionRepo.GetDismissedCandidates(ctx, targetID)
		if err != nil {
			return nil, apperr.StorageError("load dismissed candidates", err)
		}
		if len(ids) == 0 {
			continue
		}
		set := make(map[uuid.UUID]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		dismissed[targetID] = set
	}
	if len(dismissed) == 0 {
		return pairs, nil
	}

	kept := pairs[:0]
	for _, pair := range pairs {
		if set, ok := dismissed[pair.TargetID]; ok {
			if _, skip := set[pair.CandidateID]; skip {
				continue
			}
		}
		kept = append(kept, pair)
	}
	return kept, nil
}

// verifyInvariants checks the filtered output before persistence. A violation
// means a bug upstream, and the cycle aborts without writing anything.
func (s *Service) verifyInvariants(filtered *fairness.Result, popularityCap int) error {
	for targetID, list := range filtered.ByTarget {
		for _, ranked := range list {
			p := ranked.Pair
			if p.TargetID == p.CandidateID {
				return apperr.InvariantViolation("self-pair emitted: " + targetID.String())
			}
			if p.Harmonic < 0 || p.Harmonic > 100 {
				return apperr.InvariantViolation(fmt.Sprintf("harmonic mean out of range: %.4f", p.Harmonic))
			}
		}
	}
	for candidateID, n := range filtered.Popularity {
		if n > popularityCap {
			return apperr.InvariantViolation(fmt.Sprintf("popularity cap breached for %s: %d", candidateID, n))
		}
	}
	return nil
}

func (s *Service) buildSuggestions(cycleID string, filtered *fairness.Result, snapshot []byte, now time.Time, expiryDays int) []*domain.MatchSuggestion {
	var suggestions []*domain.MatchSuggestion
	for _, list := range filtered.ByTarget {
		for _, ranked := range list {
			sg := s.toSuggestion(cycleID, ranked.Pair, ranked.Rank, snapshot, now, expiryDays)
			suggestions = append(suggestions, sg)
		}
	}
	// stable write order regardless of map iteration
	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.TargetProfileID != b.TargetProfileID {
			return a.TargetProfileID.String() < b.TargetProfileID.String()
		}
		return a.Rank < b.Rank
	})
	return suggestions
}

func (s *Service) toSuggestion(cycleID string, pair *scoring.ScoredPair, rank int, snapshot []byte, now time.Time, expiryDays int) *domain.MatchSuggestion {
	// deterministic identity per (target, candidate) keeps runs reproducible
	// and the upsert idempotent
	id := uuid.NewSHA1(suggestionNamespace, []byte(pair.TargetID.String()+"|"+pair.CandidateID.String()))
	return &domain.MatchSuggestion{
		ID:                 id,
		CycleID:            cycleID,
		TargetProfileID:    pair.TargetID,
		CandidateProfileID: pair.CandidateID,
		ScoreAB:            pair.ScoreAB,
		ScoreBA:            pair.ScoreBA,
		HarmonicMean:       pair.Harmonic,
		ScaleSymmetry:      pair.Symmetry,
		TrustLevel:         pair.Trust,
		MatchReason:        pair.Reason,
		Status:             domain.StatusPending,
		Rank:               rank,
		RankTier:           domain.TierForRank(rank),
		ConfigSnapshot:     snapshot,
		SuggestedAt:        now,
		ExpiresAt:          now.AddDate(0, 0, expiryDays),
	}
}

func (s *Service) savePopularity(ctx context.Context, cycleID string, filtered *fairness.Result) error {
	var rows []*domain.PopularityRow
	for profileID, count := range filtered.Popularity {
		rows = append(rows, &domain.PopularityRow{
			ProfileID:       profileID,
			CycleID:         cycleID,
			Top3Appearances: count,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ProfileID.String() < rows[j].ProfileID.String()
	})
	if err := s.popularityRepo.SaveBatch(ctx, rows); err != nil {
		return apperr.StorageError("persist popularity rows", err)
	}
	return nil
}

func countOrphans(bundles *assemble.Result, filtered *fairness.Result) int {
	orphans := 0
	for _, id := range bundles.Ordered {
		if len(filtered.ByTarget[id]) == 0 {
			orphans++
		}
	}
	return orphans
}
