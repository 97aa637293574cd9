package bootstrap

import (
	"context"
	"os"
	"sync"

	"mailsync_server/adapter/in/worker"
	"mailsync_server/config"
	"mailsync_server/pkg/logger"

	"github.com/rs/zerolog"
)

type Worker struct {
	pool     *worker.Pool
	consumer *worker.StreamConsumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger

	retryScheduler *worker.RetryScheduler
	watchdog       *worker.SyncWatchdog
	backgroundSync *worker.BackgroundSyncScheduler
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	// Embed processor (OpenAI 임베딩, 키 없으면 비활성)
	var embedProcessor *worker.EmbedProcessor
	if cfg.OpenAIAPIKey != "" && deps.BodyStore != nil && deps.EmbedStore != nil {
		embedProcessor = worker.NewEmbedProcessor(
			deps.MessageRepo,
			deps.BodyStore,
			deps.EmbedStore,
			cfg.OpenAIAPIKey,
		)
	} else {
		logger.Warn("Embed processor disabled (missing OpenAI key or body store)")
	}

	handler := worker.NewHandler(deps.SyncService, embedProcessor)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerCount > 0 {
		poolConfig.MaxWorkers = cfg.WorkerCount
	}
	if cfg.WorkerBatchSize > 0 {
		poolConfig.BatchSize = cfg.WorkerBatchSize
	}

	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	// Redis Stream Consumer (Redis가 있을 때만)
	if deps.Stream != nil {
		w.consumer = worker.NewStreamConsumer(deps.Stream, pool)
	} else {
		logger.Warn("Redis not available, worker will not consume stream jobs")
	}

	// Schedulers: 재시도, 멈춘 동기화 복구, 주기 동기화
	w.retryScheduler = worker.NewRetryScheduler(deps.SyncService)
	w.watchdog = worker.NewSyncWatchdog(deps.SyncService)
	if cfg.SchedulerEnabled {
		w.backgroundSync = worker.NewBackgroundSyncScheduler(deps.AccountRepo, deps.SyncService)
		w.backgroundSync.SetMinAge(cfg.BackgroundSyncMinAge)
	}

	return w, cleanup, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pool.Start()
	}()

	if w.consumer != nil {
		if err := w.consumer.Start(); err != nil {
			w.zlog.Error().Err(err).Msg("Failed to start stream consumer")
		}
	}

	w.retryScheduler.Start()
	w.zlog.Info().Msg("Started retry scheduler")

	w.watchdog.Start()
	w.zlog.Info().Msg("Started sync watchdog")

	if w.backgroundSync != nil {
		w.backgroundSync.Start()
		w.zlog.Info().Msg("Started background sync scheduler")
	}

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()

	if w.backgroundSync != nil {
		w.backgroundSync.Stop()
	}
	w.watchdog.Stop()
	w.retryScheduler.Stop()

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.pool.Stop()
	w.wg.Wait()
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
