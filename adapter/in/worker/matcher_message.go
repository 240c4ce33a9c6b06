// Package worker consumes pipeline jobs from the stream broker and runs them
// on a bounded pool.
package worker

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of a job.
type JobType = string

const (
	JobCycleRun       JobType = "cycle.run"
	JobProfileRefresh JobType = "profile.refresh"
)

// Message is one unit of work pulled off a stream. Data carries the raw job
// payload; the dispatcher unmarshals it per type.
type Message struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Retries   int       `json:"retries"`
}

func NewMessage(jobType JobType, data []byte) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Data:      data,
		CreatedAt: time.Now(),
	}
}
