package main

import (
	"context"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/config"
	"mailtriage/internal/graph"
	"mailtriage/internal/handler"
	"mailtriage/internal/httpserver"
	"mailtriage/internal/redact"
	"mailtriage/internal/repository"
	"mailtriage/internal/scheduler"
	"mailtriage/internal/service"
	"mailtriage/pkg/db"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/redis"
)

func main() {
	cfg := config.Load()

	logger := logger.NewLogger()
	defer logger.Sync()

	logger.Info("Starting mailtriage...",
		zap.String("mailbox", cfg.Graph.Mailbox),
		zap.String("model", cfg.LLM.Model),
		zap.String("port", cfg.Server.Port),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (token cache)
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// Repositories
	emailRepo := repository.NewEmailRepository(dbConn)
	usageRepo := repository.NewUsageRepository(dbConn)

	// Mail provider gateway
	tokens := graph.NewTokenSource(cfg.Graph, rdb, logger)
	gateway := graph.NewClient(graph.DefaultBaseURL, cfg.Graph.Mailbox, tokens, logger)

	// Classifier
	llm := classifier.NewClient(cfg.LLM, logger)

	// Pipeline
	pipeline := service.NewPipeline(
		gateway,
		llm,
		emailRepo,
		usageRepo,
		redact.DefaultMasker(),
		cfg.Webhook.ClientState,
		cfg.LLM.Model,
		logger,
	)

	// Subscription manager + daily renewal
	manager := service.NewSubscriptionManager(
		gateway,
		cfg.Webhook.ClientState,
		time.Duration(cfg.Subscription.LifetimeMinutes)*time.Minute,
		time.Duration(cfg.Subscription.RenewalWindowHours)*time.Hour,
		logger,
	)

	renewalCtx, renewalCancel := context.WithCancel(context.Background())
	defer renewalCancel()

	if cfg.Webhook.PublicURL != "" {
		webhookURL := strings.TrimRight(cfg.Webhook.PublicURL, "/") + "/webhook"
		go scheduler.NewRenewalScheduler(manager, webhookURL, logger).Start(renewalCtx)
	} else {
		logger.Warn("No public webhook URL configured, subscription renewal disabled")
	}

	// Handlers
	webhookHandler := handler.NewWebhookHandler(pipeline, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(manager, logger)
	queryHandler := handler.NewQueryHandler(emailRepo, usageRepo, logger)
	adminHandler := handler.NewAdminHandler(dbConn, logger)

	// Router
	router := httpserver.NewRouter(webhookHandler, subscriptionHandler, queryHandler, adminHandler, dbConn)

	logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatalf("server start failed: %v", err)
	}
}
