package stream

import (
	"context"
	"errors"

	"matcher_server/adapter/in/worker"
	"matcher_server/adapter/out/messaging"
	"matcher_server/pkg/logger"
)

// Consumer bridges the job streams into the worker pool.
type Consumer struct {
	stream *RedisStream
	pool   *worker.Pool
	name   string
}

func NewConsumer(stream *RedisStream, pool *worker.Pool, name string) *Consumer {
	return &Consumer{
		stream: stream,
		pool:   pool,
		name:   name,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	log := logger.Component("consumer")

	jobStreams := map[string]worker.JobType{
		messaging.StreamCycleRun:       worker.JobCycleRun,
		messaging.StreamProfileRefresh: worker.JobProfileRefresh,
	}

	for name := range jobStreams {
		if err := c.stream.CreateGroup(ctx, name); err != nil {
			log.Error().Err(err).Str("stream", name).Msg("failed to create consumer group")
		}
	}

	for name, jobType := range jobStreams {
		go c.consume(ctx, name, jobType)
	}
}

func (c *Consumer) consume(ctx context.Context, stream string, jobType worker.JobType) {
	c.stream.Consume(ctx, stream, c.name, func(id string, data []byte) error {
		msg := worker.NewMessage(jobType, data)
		msg.ID = id
		// leave the entry pending for redelivery when the pool is draining
		if !c.pool.Submit(msg) {
			return errors.New("pool not accepting jobs")
		}
		return nil
	})
}
