package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ezmail/internal/enrich"
	"ezmail/internal/httpserver"
	"ezmail/internal/llm"
	"ezmail/internal/repository"
	"ezmail/internal/snooze"
	"ezmail/internal/vectorindex"
	"ezmail/pkg/db"
	"ezmail/pkg/logger"
	"ezmail/pkg/mq"
	"ezmail/pkg/outbox"
	"ezmail/pkg/redis"
	"ezmail/pkg/util"
	"ezmail/task-runner-service/internal/config"
	"ezmail/task-runner-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logger.NewLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting task-runner-service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	// 重试预算和 claim 都放在 Redis；不可用时 sweeper 不限次数，也不和 processor 互斥
	var budget enrich.RetryBudget
	var claims enrich.Claimer
	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, sweeping without retry budget", zap.Error(err))
	} else {
		defer rdb.Close()
		ttl := cfg.Enrichment.SweepGrace * 10
		if ttl <= 0 {
			ttl = 2 * time.Hour
		}
		budget = util.NewRetryCounter(rdb, ttl)
		claims = util.NewDeduper(rdb, cfg.Enrichment.ClaimWindow(), logger)
	}

	completer, err := llm.NewCompleter(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Fatal("LLM client init failed", zap.Error(err))
	}
	embedder, err := llm.NewEmbedder(ctx, cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Embedder init failed", zap.Error(err))
	}
	index, err := vectorindex.Open(ctx, cfg.Vector, dbConn, embedder.Dimensions())
	if err != nil {
		logger.Fatal("Vector index init failed", zap.Error(err))
	}

	store := repository.NewStore(dbConn, nil)
	pipeline := enrich.NewPipeline(
		store,
		llm.NewSummarizer(completer, cfg.LLM.MaxInputChars),
		llm.NewMetadataExtractor(completer, cfg.LLM.MaxInputChars),
		embedder,
		index,
		claims,
		logger,
		enrich.Options{Concurrency: cfg.Enrichment.Concurrency, ItemTimeout: cfg.Enrichment.ItemTimeout},
	)

	orchestrator := service.NewOrchestrator(logger)

	scheduler := snooze.NewScheduler(store, cfg.Scheduler.SnoozeSpec, logger)
	orchestrator.Add("snooze", scheduler.Start)

	sweeper := enrich.NewSweeper(store, pipeline, budget, logger, enrich.SweepOptions{
		Grace:       cfg.Enrichment.SweepGrace,
		Batch:       cfg.Enrichment.SweepBatch,
		MaxAttempts: cfg.Enrichment.MaxAttempts,
	})
	orchestrator.Add("enrich_sweep", func(ctx context.Context) error {
		return sweeper.Start(ctx, cfg.Enrichment.SweepInterval)
	})

	router := httpserver.NewRouter(logger)
	router.AddCheck("db", dbConn.Ping)

	// outbox 补发需要 broker
	mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Warn("MQ publisher unavailable, outbox dispatcher disabled", zap.Error(err))
	} else {
		defer mqPublisher.Close()
		dispatcher := outbox.NewDispatcher(store, mqPublisher, logger).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		orchestrator.Add("outbox", func(ctx context.Context) error {
			dispatcher.Start(ctx)
			return nil
		})
		router.AddCheck("mq", func(context.Context) error {
			if !mqPublisher.IsConnected() {
				return mq.ErrNotConnected
			}
			return nil
		})
	}

	orchestrator.Add("http", func(ctx context.Context) error {
		return router.Run(ctx, cfg.Server.Port)
	})

	if err := orchestrator.Run(ctx); err != nil {
		logger.Error("task-runner-service stopped with error", zap.Error(err))
	}
	logger.Info("task-runner-service shutdown complete")
}
