package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/attendance-relay/internal/adapters/events"
	"github.com/zatekoja/attendance-relay/internal/adapters/memory"
	"github.com/zatekoja/attendance-relay/internal/api/handlers"
	"github.com/zatekoja/attendance-relay/internal/api/routes"
	"github.com/zatekoja/attendance-relay/internal/application/services"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/clients/compreface"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/clients/dify"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/clients/redis"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
	"github.com/zatekoja/attendance-relay/pkg/config"
	"github.com/zatekoja/attendance-relay/pkg/secrets"
)

const serviceLabel = "CompreFace-Dify Relay"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets must land in the environment before config is read.
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	if vaultErr != nil {
		log.Fatal().Err(vaultErr).Str("path", vaultResult.Path).Msg("Failed to load secrets from Vault")
	}
	if vaultResult.Enabled {
		log.Info().
			Str("path", vaultResult.Path).
			Int("loaded", vaultResult.Loaded).
			Int("skipped", vaultResult.Skipped).
			Msg("Vault secrets applied")
	}

	log.Info().
		Str("env", cfg.Server.Env).
		Str("dify_url", cfg.Dify.BaseURL).
		Str("compreface_url", cfg.CompreFace.BaseURL).
		Dur("debounce_window", cfg.Relay.DebounceWindow).
		Msg("Starting relay")

	if cfg.Dify.APIKey == "" {
		log.Warn().Msg("DIFY_API_KEY is not set; chat requests will be rejected upstream")
	}
	if cfg.CompreFace.APIKey == "" {
		log.Warn().Msg("COMPREFACE_API_KEY is not set; recognition requests will be rejected upstream")
	}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize metrics")
	}

	difyClient, err := dify.NewClient(&cfg.Dify, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Dify client")
	}
	comprefaceClient, err := compreface.NewClient(&cfg.CompreFace, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize CompreFace client")
	}

	eventBus, closeRedis := newEventBus(ctx, &cfg.Redis)
	defer closeRedis()

	gate := memory.NewDebounceGate(cfg.Relay.DebounceWindow)
	relayService := services.NewRelayService(
		gate,
		memory.NewDetectionLog(cfg.Relay.DetectionLogCapacity),
		memory.NewSessionRegistry(),
		difyClient,
	)
	relayService.SetEventBus(eventBus)
	relayService.SetMetrics(metrics)

	sweeper := services.NewDebounceSweeper(gate)
	go sweeper.StartPeriodicSweep(ctx, cfg.Relay.DebounceSweepInterval)

	sseHandler := handlers.NewSSEHandler(eventBus)
	healthHandler := handlers.NewHealthHandler(serviceLabel)
	healthHandler.SetStreamClients(sseHandler)

	router := routes.NewRouter(
		handlers.NewRelayHandler(relayService),
		handlers.NewFrameHandler(services.NewFrameProxyService(comprefaceClient), cfg.Relay.FrameMaxBytes),
		healthHandler,
		sseHandler,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := cfg.Server.Addr()
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router.SetupRoutes(),
		ReadTimeout: 15 * time.Second,
		// Detection streams stay open, so writes are not bounded here.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Relay shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}
	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event bus")
	}

	log.Info().Msg("Relay stopped")
}

// newEventBus uses Redis pub/sub when enabled and reachable, otherwise an
// in-process bus.
func newEventBus(ctx context.Context, cfg *config.RedisConfig) (providers.EventBus, func()) {
	if !cfg.Enabled {
		log.Info().Msg("Using in-memory event bus")
		return events.NewMemoryEventBus(), func() {}
	}

	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis client, falling back to in-memory event bus")
		return events.NewMemoryEventBus(), func() {}
	}

	log.Info().Str("addr", cfg.RedisAddr()).Msg("Using Redis event bus")
	return events.NewRedisEventBus(client), func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis client")
		}
	}
}
