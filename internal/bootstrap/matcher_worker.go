package bootstrap

import (
	"context"
	"time"

	"matcher_server/adapter/in/worker"
	"matcher_server/adapter/out/messaging"
	"matcher_server/config"
	"matcher_server/internal/stream"
	"matcher_server/pkg/logger"
)

// consumerGroup names the shared Redis consumer group; every worker instance
// joins it so jobs are load-balanced, not broadcast.
const consumerGroup = "matcher-workers"

// Worker runs the background side of the pipeline: a bounded pool consuming
// cycle and refresh jobs off Redis Streams.
type Worker struct {
	pool     *worker.Pool
	stream   *stream.RedisStream
	consumer *stream.Consumer
	deps     *Dependencies

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	log := logger.Component("worker")

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	dispatcher := worker.NewDispatcher(deps.CycleService)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.Workers = cfg.WorkerMax
	}
	pool := worker.NewPool(dispatcher, poolConfig)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}

	if deps.Redis != nil {
		rs := stream.NewRedisStream(deps.Redis, consumerGroup)
		w.stream = rs
		w.consumer = stream.NewConsumer(rs, pool, cfg.WorkerID)
	} else {
		log.Warn().Msg("redis not available, worker will only process direct submissions")
	}

	return w, cleanup, nil
}

// Start runs the pool and the stream consumer until Stop is called.
func (w *Worker) Start() {
	w.pool.Start()

	if w.consumer != nil {
		w.consumer.Start(w.ctx)
	}

	<-w.ctx.Done()
}

// Stop drains in-flight jobs and shuts the pool down. Any backlog left
// pending on the streams is logged; the consumer group redelivers it on the
// next start.
func (w *Worker) Stop() {
	w.cancel()
	w.pool.Stop()

	if w.stream != nil {
		log := logger.Component("worker")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, name := range []string{messaging.StreamCycleRun, messaging.StreamProfileRefresh} {
			if n, err := w.stream.Pending(ctx, name); err == nil && n > 0 {
				log.Info().Str("stream", name).Int64("pending", n).Msg("backlog left for redelivery")
			}
		}
	}
}

func (w *Worker) Submit(msg *worker.Message) bool {
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
