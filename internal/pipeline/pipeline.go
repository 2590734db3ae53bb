package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/postpilot/api/internal/config"
	"github.com/postpilot/api/internal/model"
	"github.com/postpilot/api/internal/queue"
	"github.com/postpilot/api/internal/scheduler"
	"github.com/postpilot/api/internal/worker"
)

// Pipeline owns the publishing machinery lifecycle: the asynq worker
// server, the periodic promotion cycle, and queue garbage collection.
// Everything is injected so multiple isolated instances can run in tests;
// nothing lives in package-level state.
type Pipeline struct {
	cfg      *config.Config
	queue    *queue.Queue
	promoter *scheduler.Promoter
	srv      *asynq.Server
	mux      *asynq.ServeMux
	cron     *cron.Cron
	running  atomic.Bool
}

func New(cfg *config.Config, redisOpt asynq.RedisClientOpt, q *queue.Queue, promoter *scheduler.Promoter, publishWorker *worker.PublishWorker) *Pipeline {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Queue.Concurrency,
		Queues:         queue.QueueWeights,
		RetryDelayFunc: queue.RetryDelay,
		LogLevel:       asynqLogLevel(cfg.Server.LogLevel),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypePublish, publishWorker.ProcessTask)

	return &Pipeline{
		cfg:      cfg,
		queue:    q,
		promoter: promoter,
		srv:      srv,
		mux:      mux,
		cron:     cron.New(),
	}
}

// Start launches the worker pool and registers the periodic triggers. The
// promotion cycle is cooperative: cron skips no beats, but each cycle is
// idempotent so an overlap or crash only costs a no-op re-check.
func (p *Pipeline) Start() error {
	if p.running.Load() {
		return nil
	}

	if err := p.srv.Start(p.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	promoteSpec := fmt.Sprintf("@every %ds", p.cfg.Queue.PromoteIntervalSec)
	if _, err := p.cron.AddFunc(promoteSpec, func() {
		p.promoter.PromoteDue(context.Background())
	}); err != nil {
		p.srv.Shutdown()
		return fmt.Errorf("failed to register promotion trigger: %w", err)
	}
	if _, err := p.cron.AddFunc("@every 1h", func() {
		p.queue.GC(context.Background())
	}); err != nil {
		p.srv.Shutdown()
		return fmt.Errorf("failed to register queue GC: %w", err)
	}
	p.cron.Start()

	p.running.Store(true)
	log.Printf("Publishing pipeline started (concurrency=%d promote=%s)", p.cfg.Queue.Concurrency, promoteSpec)

	// Run one promotion immediately so restarts pick up backlog without
	// waiting a full period.
	go p.promoter.PromoteDue(context.Background())

	return nil
}

// Stop halts the triggers, then drains in-flight jobs before releasing the
// queue connection. asynq bounds the drain; jobs still running after that
// are re-queued for the next start.
func (p *Pipeline) Stop() {
	if !p.running.Load() {
		return
	}
	log.Println("Stopping publishing pipeline...")

	cronCtx := p.cron.Stop()
	<-cronCtx.Done()

	p.srv.Shutdown()

	if err := p.queue.Close(); err != nil {
		log.Printf("Queue close error: %v", err)
	}

	p.running.Store(false)
	log.Println("Publishing pipeline stopped")
}

// HealthCheck reports worker pool health for the observability surface.
func (p *Pipeline) HealthCheck(ctx context.Context) *model.Health {
	health := &model.Health{
		IsRunning: p.running.Load(),
	}

	if paused, err := p.queue.Paused(ctx); err == nil {
		health.IsPaused = paused
	}
	if stats, err := p.queue.Stats(ctx); err == nil {
		health.Stats = *stats
	}

	health.Healthy = health.IsRunning && !health.IsPaused
	return health
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch {
	case strings.EqualFold(level, "debug"):
		return asynq.DebugLevel
	case strings.EqualFold(level, "warn"):
		return asynq.WarnLevel
	case strings.EqualFold(level, "error"):
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
