// Package persistence provides database adapters implementing outbound ports.
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

// ProfileAdapter implements domain.ProfileRepository using PostgreSQL.
type ProfileAdapter struct {
	db *sqlx.DB
}

// NewProfileAdapter creates a new ProfileAdapter.
func NewProfileAdapter(db *sqlx.DB) *ProfileAdapter {
	return &ProfileAdapter{db: db}
}

// profileRow represents the database row for canonical profiles.
type profileRow struct {
	ID           uuid.UUID      `db:"id"`
	Name         string         `db:"name"`
	Email        sql.NullString `db:"email"`
	Company      sql.NullString `db:"company"`
	Website      sql.NullString `db:"website"`
	LinkedIn     sql.NullString `db:"linkedin"`
	Source       string         `db:"source"`
	Niche        string         `db:"niche"`
	AudienceType string         `db:"audience_type"`
	Offering     string         `db:"offering"`
	Seeking      string         `db:"seeking"`
	WhatYouDo    string         `db:"what_you_do"`
	ListSize     int            `db:"list_size"`
	SocialReach  int            `db:"social_reach"`
	LastActiveAt sql.NullTime   `db:"last_active_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *profileRow) toEntity() *domain.Profile {
	profile := &domain.Profile{
		ID:           r.ID,
		Name:         r.Name,
		Source:       domain.ProfileSource(r.Source),
		Niche:        r.Niche,
		AudienceType: r.AudienceType,
		Offering:     r.Offering,
		Seeking:      r.Seeking,
		WhatYouDo:    r.WhatYouDo,
		ListSize:     r.ListSize,
		SocialReach:  r.SocialReach,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}

	if r.Email.Valid {
		profile.Email = &r.Email.String
	}
	if r.Company.Valid {
		profile.Company = &r.Company.String
	}
	if r.Website.Valid {
		profile.Website = &r.Website.String
	}
	if r.LinkedIn.Valid {
		profile.LinkedIn = &r.LinkedIn.String
	}
	if r.LastActiveAt.Valid {
		t := r.LastActiveAt.Time
		profile.LastActiveAt = &t
	}

	return profile
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// GetByID retrieves a profile by its ID.
func (a *ProfileAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var row profileRow
	query := `SELECT * FROM profiles WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return row.toEntity(), nil
}

// GetAll retrieves every profile in the directory, oldest first so cycle
// input order is stable across runs.
func (a *ProfileAdapter) GetAll(ctx context.Context) ([]*domain.Profile, error) {
	var rows []profileRow
	query := `SELECT * FROM profiles ORDER BY created_at ASC, id ASC`

	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	profiles := make([]*domain.Profile, len(rows))
	for i, row := range rows {
		profiles[i] = row.toEntity()
	}

	return profiles, nil
}

// Create creates a new profile.
func (a *ProfileAdapter) Create(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (
			id, name, email, company, website, linkedin, source,
			niche, audience_type, offering, seeking, what_you_do,
			list_size, social_reach, last_active_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}

	err := a.db.QueryRowContext(
		ctx,
		query,
		profile.ID,
		profile.Name,
		nullString(profile.Email),
		nullString(profile.Company),
		nullString(profile.Website),
		nullString(profile.LinkedIn),
		string(profile.Source),
		profile.Niche,
		profile.AudienceType,
		profile.Offering,
		profile.Seeking,
		profile.WhatYouDo,
		profile.ListSize,
		profile.SocialReach,
		nullTime(profile.LastActiveAt),
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// Update updates a profile in place.
func (a *ProfileAdapter) Update(ctx context.Context, profile *domain.Profile) error {
	query := `
		UPDATE profiles
		SET name = $2, email = $3, company = $4, website = $5, linkedin = $6,
		    source = $7, niche = $8, audience_type = $9, offering = $10,
		    seeking = $11, what_you_do = $12, list_size = $13, social_reach = $14,
		    last_active_at = $15, updated_at = NOW()
		WHERE id = $1`

	result, err := a.db.ExecContext(
		ctx,
		query,
		profile.ID,
		profile.Name,
		nullString(profile.Email),
		nullString(profile.Company),
		nullString(profile.Website),
		nullString(profile.LinkedIn),
		string(profile.Source),
		profile.Niche,
		profile.AudienceType,
		profile.Offering,
		profile.Seeking,
		profile.WhatYouDo,
		profile.ListSize,
		profile.SocialReach,
		nullTime(profile.LastActiveAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("profile not found: %s", profile.ID)
	}

	return nil
}

// TouchLastActive bumps the activity timestamp without rewriting the row.
func (a *ProfileAdapter) TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE profiles SET last_active_at = $2, updated_at = NOW() WHERE id = $1`

	_, err := a.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch last active: %w", err)
	}

	return nil
}

// AppendFieldHistory logs a merge conflict without mutating the profile.
func (a *ProfileAdapter) AppendFieldHistory(ctx context.Context, change *domain.FieldChange) error {
	query := `
		INSERT INTO profile_field_history (profile_id, field, old_value, new_value, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := a.db.QueryRowContext(
		ctx,
		query,
		change.ProfileID,
		change.Field,
		change.OldValue,
		change.NewValue,
		change.Source,
	).Scan(&change.ID, &change.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append field history: %w", err)
	}

	return nil
}
