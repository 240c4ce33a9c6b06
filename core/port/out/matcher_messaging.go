package out

import (
	"context"
	"time"
)

// MessageProducer is the outbound port for pipeline jobs and lifecycle events
// published to the stream broker.
type MessageProducer interface {
	// Jobs consumed by the worker pool
	PublishCycleRun(ctx context.Context, job *CycleRunJob) error
	PublishProfileRefresh(ctx context.Context, job *ProfileRefreshJob) error

	// Events emitted for downstream consumers (notifiers, analytics)
	PublishCycleCompleted(ctx context.Context, event *CycleCompletedEvent) error
	PublishProfileRefreshed(ctx context.Context, event *ProfileRefreshedEvent) error
}

// CycleRunJob requests a full match cycle over the directory. An empty
// CycleID lets the runner derive one from its clock.
type CycleRunJob struct {
	CycleID     string    `json:"cycle_id,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// ProfileRefreshJob requests on-demand regeneration for one profile,
// typically right after the user completes an intake form.
type ProfileRefreshJob struct {
	ProfileID   string    `json:"profile_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// CycleCompletedEvent announces a finished cycle.
type CycleCompletedEvent struct {
	CycleID      string    `json:"cycle_id"`
	PairsEmitted int       `json:"pairs_emitted"`
	Orphans      int       `json:"orphans"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ProfileRefreshedEvent announces fresh suggestions for one profile.
type ProfileRefreshedEvent struct {
	ProfileID   string    `json:"profile_id"`
	Suggestions int       `json:"suggestions"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
