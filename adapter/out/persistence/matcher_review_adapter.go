package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"matcher_server/core/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ReviewAdapter implements domain.ReviewRepository using PostgreSQL.
type ReviewAdapter struct {
	db *sqlx.DB
}

// NewReviewAdapter creates a new ReviewAdapter.
func NewReviewAdapter(db *sqlx.DB) *ReviewAdapter {
	return &ReviewAdapter{db: db}
}

// reviewRow represents a staged entity-resolution decision.
type reviewRow struct {
	ID                 int64          `db:"id"`
	RecordName         string         `db:"record_name"`
	RecordEmail        sql.NullString `db:"record_email"`
	RecordCompany      sql.NullString `db:"record_company"`
	CandidateProfileID uuid.NullUUID  `db:"candidate_profile_id"`
	Similarity         float64        `db:"similarity"`
	Reason             string         `db:"reason"`
	CreatedAt          time.Time      `db:"created_at"`
}

func (r *reviewRow) toEntity() *domain.ResolutionReview {
	review := &domain.ResolutionReview{
		ID:         r.ID,
		RecordName: r.RecordName,
		Similarity: r.Similarity,
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
	}

	if r.RecordEmail.Valid {
		review.RecordEmail = &r.RecordEmail.String
	}
	if r.RecordCompany.Valid {
		review.RecordCompany = &r.RecordCompany.String
	}
	if r.CandidateProfileID.Valid {
		id := r.CandidateProfileID.UUID
		review.CandidateProfileID = &id
	}

	return review
}

// Create stages a resolution decision for human review.
func (a *ReviewAdapter) Create(ctx context.Context, review *domain.ResolutionReview) error {
	query := `
		INSERT INTO resolution_reviews (record_name, record_email, record_company, candidate_profile_id, similarity, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	var candidateID uuid.NullUUID
	if review.CandidateProfileID != nil {
		candidateID = uuid.NullUUID{UUID: *review.CandidateProfileID, Valid: true}
	}

	err := a.db.QueryRowContext(
		ctx,
		query,
		review.RecordName,
		nullString(review.RecordEmail),
		nullString(review.RecordCompany),
		candidateID,
		review.Similarity,
		review.Reason,
	).Scan(&review.ID, &review.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create resolution review: %w", err)
	}

	return nil
}

// List retrieves pending reviews, oldest first.
func (a *ReviewAdapter) List(ctx context.Context, limit int) ([]*domain.ResolutionReview, error) {
	var rows []reviewRow
	query := `SELECT * FROM resolution_reviews ORDER BY created_at ASC, id ASC LIMIT $1`

	if err := a.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list resolution reviews: %w", err)
	}

	reviews := make([]*domain.ResolutionReview, len(rows))
	for i := range rows {
		reviews[i] = rows[i].toEntity()
	}

	return reviews, nil
}
