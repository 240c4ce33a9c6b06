package persistence

import (
	"context"
	"fmt"

	"matcher_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PopularityAdapter implements domain.PopularityRepository using PostgreSQL.
type PopularityAdapter struct {
	db *sqlx.DB
}

// NewPopularityAdapter creates a new PopularityAdapter.
func NewPopularityAdapter(db *sqlx.DB) *PopularityAdapter {
	return &PopularityAdapter{db: db}
}

// popularityRow represents the per-cycle fairness accounting row.
type popularityRow struct {
	ProfileID       uuid.UUID `db:"profile_id"`
	CycleID         string    `db:"match_cycle_id"`
	Top3Appearances int       `db:"top_3_appearances"`
}

func (r *popularityRow) toEntity() *domain.PopularityRow {
	return &domain.PopularityRow{
		ProfileID:       r.ProfileID,
		CycleID:         r.CycleID,
		Top3Appearances: r.Top3Appearances,
	}
}

// SaveBatch persists a cycle's popularity counters in one transaction.
// Rows are cycle-scoped, so a re-run of the same cycle ID overwrites its
// own counters and never touches other cycles.
func (a *PopularityAdapter) SaveBatch(ctx context.Context, rows []*domain.PopularityRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin popularity batch: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO match_popularity (profile_id, match_cycle_id, top_3_appearances)
		VALUES ($1, $2, $3)
		ON CONFLICT (profile_id, match_cycle_id) DO UPDATE SET
			top_3_appearances = EXCLUDED.top_3_appearances`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare popularity upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.ProfileID, row.CycleID, row.Top3Appearances); err != nil {
			return fmt.Errorf("failed to save popularity row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit popularity batch: %w", err)
	}

	return nil
}

// GetByCycle retrieves the popularity counters recorded for one cycle.
func (a *PopularityAdapter) GetByCycle(ctx context.Context, cycleID string) ([]*domain.PopularityRow, error) {
	var rows []popularityRow
	query := `SELECT * FROM match_popularity WHERE match_cycle_id = $1 ORDER BY top_3_appearances DESC, profile_id ASC`

	if err := a.db.SelectContext(ctx, &rows, query, cycleID); err != nil {
		return nil, fmt.Errorf("failed to get popularity rows: %w", err)
	}

	result := make([]*domain.PopularityRow, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}

	return result, nil
}
