package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MatchSuggestion is a ranked, explainable partner recommendation for a
// target profile. At most one row exists per (target, candidate) pair;
// cycle runs upsert over previous rows.
type MatchSuggestion struct {
	ID                 uuid.UUID `json:"id"`
	CycleID            string    `json:"cycle_id"`
	TargetProfileID    uuid.UUID `json:"target_profile_id"`
	CandidateProfileID uuid.UUID `json:"candidate_profile_id"`

	// Directional scores 0-100 and their reciprocal combination
	ScoreAB      float64 `json:"score_ab"`
	ScoreBA      float64 `json:"score_ba"`
	HarmonicMean float64 `json:"harmonic_mean"`

	// Diagnostics
	ScaleSymmetry float64    `json:"scale_symmetry_score"` // 0-1
	TrustLevel    TrustLevel `json:"trust_level"`

	MatchReason string      `json:"match_reason"`
	Status      MatchStatus `json:"status"`
	Rank        int         `json:"rank"` // 1-based position in the target's list
	RankTier    RankTier    `json:"rank_tier"`

	// Config snapshot (weights, thresholds) captured for reproducibility
	ConfigSnapshot []byte `json:"config_snapshot,omitempty"`

	SuggestedAt time.Time `json:"suggested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SuggestionRepository is the outbound port for match suggestion persistence.
type SuggestionRepository interface {
	// UpsertBatch persists a cycle's suggestions transactionally. A failed
	// write rolls the whole batch back.
	UpsertBatch(ctx context.Context, suggestions []*MatchSuggestion) error

	GetByTarget(ctx context.Context, targetID uuid.UUID, limit int) ([]*MatchSuggestion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*MatchSuggestion, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status MatchStatus) error

	// GetDismissedCandidates returns candidate IDs the target has dismissed
	// in any prior cycle; these pairs are never re-suggested.
	GetDismissedCandidates(ctx context.Context, targetID uuid.UUID) ([]uuid.UUID, error)

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PopularityRow tracks fairness accounting for one profile in one cycle.
// Rows are scoped to a single cycle and never mutated by later cycles.
type PopularityRow struct {
	ProfileID       uuid.UUID `json:"profile_id"`
	CycleID         string    `json:"match_cycle_id"`
	Top3Appearances int       `json:"top_3_appearances"`
}

// PopularityRepository is the outbound port for popularity accounting.
type PopularityRepository interface {
	SaveBatch(ctx context.Context, rows []*PopularityRow) error
	GetByCycle(ctx context.Context, cycleID string) ([]*PopularityRow, error)
}

// ResolutionReview is a staged entity-resolution decision awaiting a human.
// Fuzzy matches and ambiguous exact matches land here instead of merging.
type ResolutionReview struct {
	ID                 int64      `json:"id"`
	RecordName         string     `json:"record_name"`
	RecordEmail        *string    `json:"record_email,omitempty"`
	RecordCompany      *string    `json:"record_company,omitempty"`
	CandidateProfileID *uuid.UUID `json:"candidate_profile_id,omitempty"`
	Similarity         float64    `json:"similarity"` // 0-1
	Reason             string     `json:"reason"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ReviewRepository is the outbound port for the resolution review queue.
type ReviewRepository interface {
	Create(ctx context.Context, review *ResolutionReview) error
	List(ctx context.Context, limit int) ([]*ResolutionReview, error)
}
