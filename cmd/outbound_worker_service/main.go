package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	channelapp "github.com/omnichat/gateway/internal/channel_service/app"
	channelpg "github.com/omnichat/gateway/internal/channel_service/repository/postgres"
	outboundapp "github.com/omnichat/gateway/internal/outbound_service/app"
	outboundpg "github.com/omnichat/gateway/internal/outbound_service/repository/postgres"
	"github.com/omnichat/gateway/internal/platform/config"
	"github.com/omnichat/gateway/internal/platform/database"
	"github.com/omnichat/gateway/internal/platform/logger"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
	"github.com/omnichat/gateway/internal/ratelimit"
	"github.com/omnichat/gateway/internal/vault"
)

const (
	serviceName = "outbound-worker-service"
	queueGroup  = "outbound_workers"
)

func main() {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Outbound worker starting...",
		"concurrency", cfg.OutboundConcurrency,
		"max_attempts", cfg.OutboundMaxAttempts,
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
	)

	credentialVault, err := vault.New(cfg.EncryptionSecret)
	if err != nil {
		appLogger.Error("Failed to initialize credential vault", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	channelRepo := channelpg.NewPgChannelRepository(dbPool)
	registry := channelapp.NewRegistry(channelRepo, credentialVault, appLogger, cfg.ProviderBaseURLs)

	jobRepo := outboundpg.NewPgOutboundJobRepository(dbPool)
	limiter := ratelimit.New()

	dispatcher := outboundapp.NewDispatcher(jobRepo, registry, limiter, natsClient, appLogger, outboundapp.DispatcherConfig{
		Concurrency:        cfg.OutboundConcurrency,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		BackoffBase:        cfg.OutboundBackoffBase,
		BackoffCap:         cfg.OutboundBackoffCap,
		PollInterval:       cfg.OutboundPollInterval,
		BatchSize:          cfg.OutboundBatchSize,
	})

	// Enqueue events cut the latency between submission and the next poll.
	err = natsClient.SubscribeToSubjectWithQueue(mainCtx, messagebroker.SubjectOutboundEnqueued, queueGroup,
		func(_ *nats.Msg) { dispatcher.Notify() })
	if err != nil {
		appLogger.Error("Failed to subscribe to enqueue events", "error", err)
		os.Exit(1)
	}

	dispatcher.Run(mainCtx)
	appLogger.Info("Outbound worker stopped")
}
