// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"matcher_server/core/port/out"
)

// Stream names
const (
	StreamCycleRun       = "match:cycle"
	StreamProfileRefresh = "match:refresh"

	StreamCycleCompleted   = "match:cycle_completed"
	StreamProfileRefreshed = "match:profile_refreshed"
)

// RedisProducer implements out.MessageProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishCycleRun publishes a full cycle run job.
func (p *RedisProducer) PublishCycleRun(ctx context.Context, job *out.CycleRunJob) error {
	return p.publish(ctx, StreamCycleRun, job)
}

// PublishProfileRefresh publishes a single-profile refresh job.
func (p *RedisProducer) PublishProfileRefresh(ctx context.Context, job *out.ProfileRefreshJob) error {
	return p.publish(ctx, StreamProfileRefresh, job)
}

// PublishCycleCompleted publishes a cycle completion event.
func (p *RedisProducer) PublishCycleCompleted(ctx context.Context, event *out.CycleCompletedEvent) error {
	return p.publish(ctx, StreamCycleCompleted, event)
}

// PublishProfileRefreshed publishes a profile refresh event.
func (p *RedisProducer) PublishProfileRefreshed(ctx context.Context, event *out.ProfileRefreshedEvent) error {
	return p.publish(ctx, StreamProfileRefreshed, event)
}

// publish marshals the payload and appends it to the stream.
func (p *RedisProducer) publish(ctx context.Context, stream string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

// Ensure RedisProducer implements out.MessageProducer
var _ out.MessageProducer = (*RedisProducer)(nil)
