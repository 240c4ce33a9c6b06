package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"matcher_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// IntakeAdapter implements domain.IntakeRepository using PostgreSQL.
type IntakeAdapter struct {
	db *sqlx.DB
}

// NewIntakeAdapter creates a new IntakeAdapter.
func NewIntakeAdapter(db *sqlx.DB) *IntakeAdapter {
	return &IntakeAdapter{db: db}
}

// intakeRow represents the database row for event intake submissions.
type intakeRow struct {
	ID              int64          `db:"id"`
	ProfileID       uuid.UUID      `db:"profile_id"`
	EventID         string         `db:"event_id"`
	EventName       string         `db:"event_name"`
	EventDate       time.Time      `db:"event_date"`
	VerifiedOffers  pq.StringArray `db:"verified_offers"`
	VerifiedNeeds   pq.StringArray `db:"verified_needs"`
	Preferences     pq.StringArray `db:"match_preference"`
	AntiPersonas    pq.StringArray `db:"anti_personas"`
	SuggestedOffers pq.StringArray `db:"suggested_offers"`
	SuggestedNeeds  pq.StringArray `db:"suggested_needs"`
	ConfirmedAt     sql.NullTime   `db:"confirmed_at"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *intakeRow) toEntity() *domain.IntakeSubmission {
	intake := &domain.IntakeSubmission{
		ID:              r.ID,
		ProfileID:       r.ProfileID,
		EventID:         r.EventID,
		EventName:       r.EventName,
		EventDate:       r.EventDate,
		VerifiedOffers:  []string(r.VerifiedOffers),
		VerifiedNeeds:   []string(r.VerifiedNeeds),
		SuggestedOffers: []string(r.SuggestedOffers),
		SuggestedNeeds:  []string(r.SuggestedNeeds),
		CreatedAt:       r.CreatedAt,
	}

	for _, p := range r.Preferences {
		intake.Preferences = append(intake.Preferences, domain.ParsePreference(p))
	}
	for _, a := range r.AntiPersonas {
		intake.AntiPersonas = append(intake.AntiPersonas, domain.AntiPersona(a))
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time
		intake.ConfirmedAt = &t
	}

	return intake
}

// GetLatestConfirmed returns the newest confirmed intake per profile.
// Profiles without a confirmed intake are absent from the result.
func (a *IntakeAdapter) GetLatestConfirmed(ctx context.Context, profileIDs []uuid.UUID) (map[uuid.UUID]*domain.IntakeSubmission, error) {
	if len(profileIDs) == 0 {
		return map[uuid.UUID]*domain.IntakeSubmission{}, nil
	}

	var rows []intakeRow
	query := `
		SELECT DISTINCT ON (profile_id) *
		FROM intake_submissions
		WHERE profile_id = ANY($1) AND confirmed_at IS NOT NULL
		ORDER BY profile_id, confirmed_at DESC, id DESC`

	if err := a.db.SelectContext(ctx, &rows, query, pq.Array(profileIDs)); err != nil {
		return nil, fmt.Errorf("failed to get latest confirmed intakes: %w", err)
	}

	result := make(map[uuid.UUID]*domain.IntakeSubmission, len(rows))
	for i := range rows {
		result[rows[i].ProfileID] = rows[i].toEntity()
	}

	return result, nil
}

// GetEventHistory returns the set of event IDs each profile has attended,
// drawn from its full intake history.
func (a *IntakeAdapter) GetEventHistory(ctx context.Context, profileIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	if len(profileIDs) == 0 {
		return map[uuid.UUID][]string{}, nil
	}

	var rows []struct {
		ProfileID uuid.UUID `db:"profile_id"`
		EventID   string    `db:"event_id"`
	}
	query := `
		SELECT DISTINCT profile_id, event_id
		FROM intake_submissions
		WHERE profile_id = ANY($1)
		ORDER BY profile_id, event_id`

	if err := a.db.SelectContext(ctx, &rows, query, pq.Array(profileIDs)); err != nil {
		return nil, fmt.Errorf("failed to get event history: %w", err)
	}

	result := make(map[uuid.UUID][]string)
	for _, row := range rows {
		result[row.ProfileID] = append(result[row.ProfileID], row.EventID)
	}

	return result, nil
}

// Upsert inserts or replaces the intake for a (profile, event) pair.
func (a *IntakeAdapter) Upsert(ctx context.Context, intake *domain.IntakeSubmission) error {
	query := `
		INSERT INTO intake_submissions (
			profile_id, event_id, event_name, event_date,
			verified_offers, verified_needs, match_preference, anti_personas,
			suggested_offers, suggested_needs, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (profile_id, event_id) DO UPDATE SET
			event_name = EXCLUDED.event_name,
			event_date = EXCLUDED.event_date,
			verified_offers = EXCLUDED.verified_offers,
			verified_needs = EXCLUDED.verified_needs,
			match_preference = EXCLUDED.match_preference,
			anti_personas = EXCLUDED.anti_personas,
			suggested_offers = EXCLUDED.suggested_offers,
			suggested_needs = EXCLUDED.suggested_needs,
			confirmed_at = EXCLUDED.confirmed_at
		RETURNING id, created_at`

	prefs := make([]string, len(intake.Preferences))
	for i, p := range intake.Preferences {
		prefs[i] = string(p)
	}
	antis := make([]string, len(intake.AntiPersonas))
	for i, ap := range intake.AntiPersonas {
		antis[i] = string(ap)
	}

	err := a.db.QueryRowContext(
		ctx,
		query,
		intake.ProfileID,
		intake.EventID,
		intake.EventName,
		intake.EventDate,
		pq.Array(intake.VerifiedOffers),
		pq.Array(intake.VerifiedNeeds),
		pq.Array(prefs),
		pq.Array(antis),
		pq.Array(intake.SuggestedOffers),
		pq.Array(intake.SuggestedNeeds),
		nullTime(intake.ConfirmedAt),
	).Scan(&intake.ID, &intake.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert intake: %w", err)
	}

	return nil
}
