package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	channelapp "github.com/omnichat/gateway/internal/channel_service/app"
	channelpg "github.com/omnichat/gateway/internal/channel_service/repository/postgres"
	gatewayapp "github.com/omnichat/gateway/internal/gateway_service/app"
	gatewayhttp "github.com/omnichat/gateway/internal/gateway_service/transport/http"
	inboundapp "github.com/omnichat/gateway/internal/inbound_service/app"
	inboundpg "github.com/omnichat/gateway/internal/inbound_service/repository/postgres"
	outboundapp "github.com/omnichat/gateway/internal/outbound_service/app"
	outboundpg "github.com/omnichat/gateway/internal/outbound_service/repository/postgres"
	"github.com/omnichat/gateway/internal/platform/config"
	"github.com/omnichat/gateway/internal/platform/database"
	"github.com/omnichat/gateway/internal/platform/logger"
	"github.com/omnichat/gateway/internal/platform/messagebroker"
	"github.com/omnichat/gateway/internal/vault"
)

const (
	serviceName     = "gateway-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger logs each HTTP request with slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Gateway service starting...", "http_port", cfg.GatewayHTTPPort, "log_level", cfg.LogLevel)

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
	appLogger.Info("Successfully connected to PostgreSQL")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS")

	channelRepo := channelpg.NewPgChannelRepository(dbPool)
	registry := channelapp.NewRegistry(channelRepo, credentialVault, appLogger, cfg.ProviderBaseURLs)

	jobRepo := outboundpg.NewPgOutboundJobRepository(dbPool)
	submitter := outboundapp.NewSubmitter(jobRepo, registry, natsClient, appLogger, cfg.OutboundMaxAttempts)

	inboundJobRepo := inboundpg.NewPgInboundJobRepository(dbPool)
	enqueuer := inboundapp.NewEnqueuer(inboundJobRepo, natsClient, appLogger, cfg.InboundMaxAttempts)

	normalizer := gatewayapp.NewNormalizer(cfg.GroupChatSuffixes, appLogger)
	validate := validator.New()

	webhookHandler := gatewayhttp.NewWebhookHandler(normalizer, registry, enqueuer, cfg.WebhookSecrets, appLogger)
	channelHandler := gatewayhttp.NewChannelHandler(registry, submitter, validate, appLogger)
	jobHandler := gatewayhttp.NewJobHandler(jobRepo, appLogger)
	healthHandler := gatewayhttp.NewHealthHandler(dbPool, natsClient, appLogger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(httpLogger(appLogger))
	router.Use(gatewayhttp.PrometheusMetricsMiddleware)
	router.Use(chiMiddleware.Recoverer)

	healthHandler.RegisterRoutes(router)
	webhookHandler.RegisterRoutes(router)
	channelHandler.RegisterRoutes(router)
	jobHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GatewayHTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(mainCtx)
	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Gateway service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Gateway service stopped")
}
