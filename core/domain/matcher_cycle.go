package domain

import (
	"context"
	"time"
)

// CycleReport summarizes one match cycle run. Reports are archived for
// operator history together with the config snapshot that produced them.
type CycleReport struct {
	CycleID    string    `json:"cycle_id" bson:"cycle_id"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`

	// Counts
	ProfilesScored  int `json:"profiles_scored" bson:"profiles_scored"`
	PairsConsidered int `json:"pairs_considered" bson:"pairs_considered"`
	PairsEmitted    int `json:"pairs_emitted" bson:"pairs_emitted"`
	PairsDropped    int `json:"pairs_dropped_by_fairness" bson:"pairs_dropped_by_fairness"`
	Orphans         int `json:"orphans" bson:"orphans"` // profiles with zero emitted matches

	// Per-record problems (never fatal)
	DataErrors      int `json:"data_errors" bson:"data_errors"`
	ReviewsQueued   int `json:"reviews_queued" bson:"reviews_queued"`
	OracleFallbacks int `json:"oracle_fallbacks" bson:"oracle_fallbacks"`

	SleepingGiants int `json:"sleeping_giants" bson:"sleeping_giants"`

	// Opaque snapshot of the scoring config for reproducibility
	ConfigSnapshot []byte `json:"config_snapshot,omitempty" bson:"config_snapshot,omitempty"`
}

// Duration returns the wall-clock run time of the cycle.
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CycleReportRepository archives cycle reports.
type CycleReportRepository interface {
	Save(ctx context.Context, report *CycleReport) error
	GetByCycleID(ctx context.Context, cycleID string) (*CycleReport, error)
	Latest(ctx context.Context, limit int) ([]*CycleReport, error)
}
