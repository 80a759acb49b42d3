package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/omnichat/gateway/internal/inbound_service/adapters/events"
	inboundapp "github.com/omnichat/gateway/internal/inbound_service/app"
	"github.com/omnichat/gateway/internal/inbound_service/domain"
	inboundpg "github.com/omnichat/gateway/internal/inbound_service/repository/postgres"
	"github.com/omnichat/gateway/internal/platform/config"
	"github.com/omnichat/gateway/internal/platform/database"
	"github.com/omnichat/gateway/internal/platform/logger"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
)

const (
	serviceName = "inbound-worker-service"
	queueGroup  = "inbound_workers"
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
	appLogger.Info("Inbound worker starting...",
		"concurrency", cfg.InboundConcurrency,
		"max_attempts", cfg.InboundMaxAttempts,
	)

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

	jobRepo := inboundpg.NewPgInboundJobRepository(dbPool)
	processedStore := inboundpg.NewPgProcessedMessageStore(dbPool)
	sinks := []domain.MessageSink{events.NewPublisher(natsClient, appLogger)}
	processor := inboundapp.NewProcessor(processedStore, sinks, appLogger)

	dispatcher := inboundapp.NewDispatcher(jobRepo, processor, appLogger, inboundapp.DispatcherConfig{
		Concurrency:  cfg.InboundConcurrency,
		BackoffBase:  cfg.InboundBackoffBase,
		BackoffCap:   cfg.InboundBackoffCap,
		PollInterval: cfg.InboundPollInterval,
		BatchSize:    cfg.InboundBatchSize,
	})

	// Enqueue events cut the latency between webhook ingestion and the next
	// poll; the durable queue carries the messages themselves.
	err = natsClient.SubscribeToSubjectWithQueue(mainCtx, messagebroker.SubjectInboundMessageWildcard, queueGroup,
		func(_ *nats.Msg) { dispatcher.Notify() })
	if err != nil {
		appLogger.Error("Failed to subscribe to enqueue events", "error", err)
		os.Exit(1)
	}

	dispatcher.Run(mainCtx)
	appLogger.Info("Inbound worker stopped")
}
