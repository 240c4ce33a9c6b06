package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfileSource marks where a canonical profile originated.
type ProfileSource string

const (
	SourceDirectory  ProfileSource = "directory"  // structured CSV/directory import
	SourceTranscript ProfileSource = "transcript" // transcript-derived speaker record
	SourceMerged     ProfileSource = "merged"     // fused from more than one stream
)

// Profile is the canonical person record in the community directory.
type Profile struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Email    *string       `json:"email,omitempty"`
	Company  *string       `json:"company,omitempty"`
	Website  *string       `json:"website,omitempty"`
	LinkedIn *string       `json:"linkedin,omitempty"`
	Source   ProfileSource `json:"source"`

	// Business fields
	Niche        string `json:"niche"`         // normalized free-text business category
	AudienceType string `json:"audience_type"` // normalized audience descriptor
	Offering     string `json:"offering"`      // free-text "what I offer"
	Seeking      string `json:"seeking"`       // free-text "what I'm looking for"
	WhatYouDo    string `json:"what_you_do"`

	// Reach
	ListSize    int `json:"list_size"`    // >= 0
	SocialReach int `json:"social_reach"` // >= 0

	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Reach is the profile's combined audience size.
func (p *Profile) Reach() int {
	return p.ListSize + p.SocialReach
}

// HasBusinessFields reports whether the manually maintained fields carry
// enough signal to treat the profile as Gold-grade data.
func (p *Profile) HasBusinessFields() bool {
	return p.Niche != "" || p.Offering != "" || p.Seeking != "" || p.WhatYouDo != ""
}

// ActiveWithin reports whether the profile showed activity inside the window.
func (p *Profile) ActiveWithin(now time.Time, window time.Duration) bool {
	return p.LastActiveAt != nil && p.LastActiveAt.After(now.Add(-window))
}

// FieldChange records a merge conflict: the older record kept its value and
// the incoming value was appended to the history log instead of overwriting.
type FieldChange struct {
	ID        int64     `json:"id"`
	ProfileID uuid.UUID `json:"profile_id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileRepository is the outbound port for profile persistence.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetAll(ctx context.Context) ([]*Profile, error)
	Create(ctx context.Context, profile *Profile) error
	Update(ctx context.Context, profile *Profile) error
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendFieldHistory(ctx context.Context, change *FieldChange) error
}
