package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ezmail/api-gateway/internal/config"
	"ezmail/api-gateway/internal/handler"
	"ezmail/api-gateway/internal/httpserver"
	"ezmail/internal/llm"
	"ezmail/internal/repository"
	"ezmail/internal/search"
	"ezmail/internal/snooze"
	"ezmail/internal/vectorindex"
	"ezmail/pkg/db"
	"ezmail/pkg/logger"
	"ezmail/pkg/mq"
	"ezmail/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logger.NewLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB (search rows / snooze / outbox)
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	store := repository.NewStore(dbConn, nil)

	// 查询向量必须与写入端同一个 embedder / 维度
	embedder, err := llm.NewEmbedder(ctx, cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Embedder init failed", zap.Error(err))
	}
	index, err := vectorindex.Open(ctx, cfg.Vector, dbConn, embedder.Dimensions())
	if err != nil {
		logger.Fatal("Vector index init failed", zap.Error(err))
	}

	searchHandler := handler.NewSearchHandler(search.NewService(embedder, index, store, logger, cfg.Search), logger)
	snoozeHandler := handler.NewSnoozeHandler(snooze.NewService(store), logger)

	// Init MQ Publisher，只用于 outbox 重放
	var adminHandler *handler.AdminHandler
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Warn("MQ publisher unavailable, outbox admin disabled", zap.Error(err))
	} else {
		defer publisher.Close()
		adminHandler = handler.NewAdminHandler(outbox.NewReplayService(store, publisher, logger), logger)
	}

	router := httpserver.NewRouter(searchHandler, snoozeHandler, adminHandler, cfg.JWT.Secret, logger)
	router.AddCheck("db", dbConn.Ping)

	logger.Info("Starting API Gateway", zap.String("port", cfg.Server.Port))
	if err := router.Run(ctx, cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("API Gateway shutdown complete")
}
