package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "ezmail/contracts/mq"
	"ezmail/email-processor-service/internal/config"
	"ezmail/internal/enrich"
	"ezmail/internal/httpserver"
	"ezmail/internal/llm"
	"ezmail/internal/notify"
	"ezmail/internal/repository"
	"ezmail/internal/vectorindex"
	"ezmail/pkg/db"
	"ezmail/pkg/logger"
	"ezmail/pkg/mq"
	"ezmail/pkg/redis"
	"ezmail/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logger.NewLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting email-processor-service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis claim 只是优化，不可用时靠 summary 唯一约束保证幂等
	var claims enrich.Claimer
	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, running without enrichment claims", zap.Error(err))
	} else {
		defer rdb.Close()
		claims = util.NewDeduper(rdb, cfg.Enrichment.ClaimWindow(), logger)
	}

	// models
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

	listener, err := notify.NewListener(pipeline, logger)
	if err != nil {
		logger.Fatal("Listener init failed", zap.Error(err))
	}

	// -------------------------
	// email.fetched Consumer
	// -------------------------
	logger.Info("Init consumer", zap.String("queue", mqcontracts.EmailFetchedQueue))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.EmailFetchedQueue, mqcontracts.EmailFetchedBinding, logger)
	if err != nil {
		logger.Fatal("Consumer init failed", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetPrefetch(cfg.MQ.Prefetch)
	consumer.SetHandler(listener.Handle)

	consumeDone := make(chan error, 1)
	go func() { consumeDone <- consumer.StartConsuming(ctx) }()

	// health / metrics
	router := httpserver.NewRouter(logger)
	router.AddCheck("db", dbConn.Ping)
	router.AddCheck("mq", func(context.Context) error {
		if !consumer.IsConnected() {
			return mq.ErrNotConnected
		}
		return nil
	})
	go func() {
		if err := router.Run(ctx, cfg.Server.Port); err != nil {
			logger.Error("health server stopped", zap.Error(err))
		}
	}()

	logger.Info("Worker running")

	select {
	case <-ctx.Done():
		logger.Info("Shutting down email-processor-service gracefully...")
		consumer.Stop()
		// 等待正在处理的消息 ack
		select {
		case <-consumeDone:
		case <-time.After(30 * time.Second):
			logger.Warn("Timed out waiting for in-flight deliveries")
		}
	case err := <-consumeDone:
		// broker 断开时退出，由编排系统重启
		logger.Error("Consumer stopped unexpectedly", zap.Error(err))
		stop()
	}

	logger.Info("email-processor-service shutdown complete")
}
