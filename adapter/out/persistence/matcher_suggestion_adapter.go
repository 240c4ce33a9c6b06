package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"matcher_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SuggestionAdapter implements domain.SuggestionRepository using PostgreSQL.
type SuggestionAdapter struct {
	db *sqlx.DB
}

// NewSuggestionAdapter creates a new SuggestionAdapter.
func NewSuggestionAdapter(db *sqlx.DB) *SuggestionAdapter {
	return &SuggestionAdapter{db: db}
}

// suggestionRow represents the database row for match suggestions.
type suggestionRow struct {
	ID                 uuid.UUID `db:"id"`
	CycleID            string    `db:"cycle_id"`
	TargetProfileID    uuid.UUID `db:"target_profile_id"`
	CandidateProfileID uuid.UUID `db:"candidate_profile_id"`
	ScoreAB            float64   `db:"score_ab"`
	ScoreBA            float64   `db:"score_ba"`
	HarmonicMean       float64   `db:"harmonic_mean"`
	ScaleSymmetry      float64   `db:"scale_symmetry_score"`
	TrustLevel         string    `db:"trust_level"`
	MatchReason        string    `db:"match_reason"`
	Status             string    `db:"status"`
	Rank               int       `db:"rank"`
	RankTier           string    `db:"rank_tier"`
	ConfigSnapshot     []byte    `db:"config_snapshot"`
	SuggestedAt        time.Time `db:"suggested_at"`
	ExpiresAt          time.Time `db:"expires_at"`
}

func (r *suggestionRow) toEntity() *domain.MatchSuggestion {
	return &domain.MatchSuggestion{
		ID:                 r.ID,
		CycleID:            r.CycleID,
		TargetProfileID:    r.TargetProfileID,
		CandidateProfileID: r.CandidateProfileID,
		ScoreAB:            r.ScoreAB,
		ScoreBA:            r.ScoreBA,
		HarmonicMean:       r.HarmonicMean,
		ScaleSymmetry:      r.ScaleSymmetry,
		TrustLevel:         domain.TrustLevel(r.TrustLevel),
		MatchReason:        r.MatchReason,
		Status:             domain.MatchStatus(r.Status),
		Rank:               r.Rank,
		RankTier:           domain.RankTier(r.RankTier),
		ConfigSnapshot:     r.ConfigSnapshot,
		SuggestedAt:        r.SuggestedAt,
		ExpiresAt:          r.ExpiresAt,
	}
}

// UpsertBatch persists a cycle's suggestions in one transaction. Re-suggested
// pairs are refreshed in place; the terminal statuses survive the refresh so
// a dismissal is never resurrected by a later cycle.
func (a *SuggestionAdapter) UpsertBatch(ctx context.Context, suggestions []*domain.MatchSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin suggestion batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO match_suggestions (
			id, cycle_id, target_profile_id, candidate_profile_id,
			score_ab, score_ba, harmonic_mean, scale_symmetry_score,
			trust_level, match_reason, status, rank, rank_tier,
			config_snapshot, suggested_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (target_profile_id, candidate_profile_id) DO UPDATE SET
			cycle_id = EXCLUDED.cycle_id,
			score_ab = EXCLUDED.score_ab,
			score_ba = EXCLUDED.score_ba,
			harmonic_mean = EXCLUDED.harmonic_mean,
			scale_symmetry_score = EXCLUDED.scale_symmetry_score,
			trust_level = EXCLUDED.trust_level,
			match_reason = EXCLUDED.match_reason,
			rank = EXCLUDED.rank,
			rank_tier = EXCLUDED.rank_tier,
			config_snapshot = EXCLUDED.config_snapshot,
			suggested_at = EXCLUDED.suggested_at,
			expires_at = EXCLUDED.expires_at,
			status = CASE
				WHEN match_suggestions.status IN ('connected', 'dismissed') THEN match_suggestions.status
				ELSE EXCLUDED.status
			END`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare suggestion upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range suggestions {
		_, err := stmt.ExecContext(
			ctx,
			s.ID,
			s.CycleID,
			s.TargetProfileID,
			s.CandidateProfileID,
			s.ScoreAB,
			s.ScoreBA,
			s.HarmonicMean,
			s.ScaleSymmetry,
			string(s.TrustLevel),
			s.MatchReason,
			string(s.Status),
			s.Rank,
			string(s.RankTier),
			s.ConfigSnapshot,
			s.SuggestedAt,
			s.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert suggestion %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit suggestion batch: %w", err)
	}

	return nil
}

// GetByTarget retrieves a target's current suggestions in rank order.
func (a *SuggestionAdapter) GetByTarget(ctx context.Context, targetID uuid.UUID, limit int) ([]*domain.MatchSuggestion, error) {
	var rows []suggestionRow
	query := `SELECT * FROM match_suggestions WHERE target_profile_id = $1 ORDER BY rank ASC LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, targetID, limit); err != nil {
		return nil, fmt.Errorf("failed to get suggestions for target: %w", err)
	}

	suggestions := make([]*domain.MatchSuggestion, len(rows))
	for i := range rows {
		suggestions[i] = rows[i].toEntity()
	}

	return suggestions, nil
}

// GetByID retrieves a suggestion by its ID.
func (a *SuggestionAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.MatchSuggestion, error) {
	var row suggestionRow
	query := `SELECT * FROM match_suggestions WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}

	return row.toEntity(), nil
}

// UpdateStatus sets a suggestion's lifecycle status.
func (a *SuggestionAdapter) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MatchStatus) error {
	query := `UPDATE match_suggestions SET status = $2 WHERE id = $1`

	result, err := a.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("suggestion not found: %s", id)
	}

	return nil
}

// GetDismissedCandidates returns candidate IDs the target has dismissed in
// any prior cycle.
func (a *SuggestionAdapter) GetDismissedCandidates(ctx context.Context, targetID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT candidate_profile_id FROM match_suggestions
		WHERE target_profile_id = $1 AND status = 'dismissed'
		ORDER BY candidate_profile_id`

	if err := a.db.SelectContext(ctx, &ids, query, targetID); err != nil {
		return nil, fmt.Errorf("failed to get dismissed candidates: %w", err)
	}

	return ids, nil
}

// DeleteExpired removes suggestions whose expiry passed. Terminal rows are
// kept as connection history and dismissal memory.
func (a *SuggestionAdapter) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM match_suggestions
		WHERE expires_at < $1 AND status NOT IN ('connected', 'dismissed')`

	result, err := a.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired suggestions: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
