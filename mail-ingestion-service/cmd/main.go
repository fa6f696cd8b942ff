package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ezmail/internal/credential"
	"ezmail/internal/fetch"
	"ezmail/internal/gmail"
	"ezmail/internal/notify"
	"ezmail/internal/repository"
	"ezmail/mail-ingestion-service/internal/config"
	"ezmail/mail-ingestion-service/internal/handler"
	"ezmail/mail-ingestion-service/internal/httpserver"
	"ezmail/pkg/db"
	"ezmail/pkg/logger"
	"ezmail/pkg/mq"
	"ezmail/pkg/outbox"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logger.NewLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, dbConn, logger); err != nil {
			logger.Fatal("Migration failed", zap.Error(err))
		}
	}

	// Init RabbitMQ Publisher；broker 不可用时事件全部走 outbox
	var publisher outbox.EventPublisher
	mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Warn("MQ publisher unavailable, notifications go to outbox", zap.Error(err))
	} else {
		defer mqPublisher.Close()
		publisher = mqPublisher
	}

	sealer, err := credential.NewSealer(cfg.OAuth.EncryptionKey)
	if err != nil {
		logger.Fatal("Invalid credential encryption key", zap.Error(err))
	}

	// Init Repositories
	emailRepo := repository.NewEmailRepository(dbConn)
	credentialRepo := repository.NewCredentialRepository(dbConn, sealer)
	outboxRepo := outbox.NewRepository(dbConn)

	// Init Services
	httpClient := &http.Client{Timeout: cfg.Gmail.RequestTimeout}
	oauthProvider := credential.NewOAuthProvider(cfg.OAuth, httpClient)
	credentials := credential.NewManager(credentialRepo, oauthProvider, logger, credential.Options{
		RefreshMargin: cfg.OAuth.RefreshMargin,
		RenewTimeout:  cfg.OAuth.RenewTimeout,
	})
	gmailClient := gmail.NewClient(cfg.Gmail, httpClient, logger)
	notifier := notify.NewNotifier(publisher, outboxRepo, logger)
	fetcher := fetch.NewService(credentials, gmailClient, emailRepo, notifier, logger, fetch.Options{
		Concurrency:     cfg.Gmail.FetchConcurrency,
		DefaultMaxItems: cfg.Gmail.DefaultMaxItems,
	})

	// Init Handlers
	ingestHandler := handler.NewIngestHandler(fetcher, logger)
	oauthHandler := handler.NewOAuthHandler(oauthProvider, credentials, cfg.JWT.Secret, logger)

	// Router
	router := httpserver.NewRouter(ingestHandler, oauthHandler, cfg.JWT.Secret, logger)
	router.AddCheck("db", dbConn.Ping)
	if mqPublisher != nil {
		router.AddCheck("mq", func(context.Context) error {
			if !mqPublisher.IsConnected() {
				return mq.ErrNotConnected
			}
			return nil
		})
	}

	// Start server
	logger.Info("Starting mail ingestion service", zap.String("port", cfg.Server.Port))
	if err := router.Run(ctx, cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
