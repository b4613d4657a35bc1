package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/internal/config"
	"qms/internal/engine"
	"qms/internal/httpapi"
	"qms/internal/hub"
	"qms/internal/models"
	"qms/internal/store"
	"qms/internal/store/file"
	"qms/internal/store/postgres"
	"qms/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "queue-engine"

func main() {
	cfg := config.Load()
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	cfg.BindFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("queue-engine stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	shutdownTelemetry := telemetry.Setup(serviceName, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	states, closeStates, err := openStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStates()

	var seed *models.Catalog
	if cfg.CatalogFile != "" {
		catalog, err := config.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}
		seed = &catalog
	}

	h := hub.New(hub.Options{Buffer: cfg.SubscriberBuffer, Logger: logger.With().Str("component", "hub").Logger()})
	var (
		publisher hub.Publisher = h
		relay     *hub.RedisRelay
	)
	if cfg.RedisURL != "" {
		var closeRelay func()
		relay, closeRelay, err = openRelay(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeRelay()
		publisher = hub.Tee{h, relay}
		go relay.Run(ctx)
	}

	queue, err := engine.New(ctx, engine.Options{
		States:    states,
		Publisher: publisher,
		Seed:      seed,
		Logger:    logger.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		return err
	}

	if cfg.Reset {
		if err := queue.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		logger.Warn().Str("backend", cfg.StateBackend).Msg("state reset to seed catalog")
		return nil
	}

	if relay != nil {
		startRemoteSync(ctx, cfg, relay, queue, h, logger)
	}

	realtime := httpapi.NewRealtimeHandler(h, queue.Snapshot, logger.With().Str("component", "realtime").Logger())
	handler := httpapi.NewHandler(queue, httpapi.Options{Realtime: realtime, Logger: logger})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		UserPerMinute: cfg.UserRateLimitPerMinute,
		UserBurst:     cfg.UserRateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(handler.Routes())), serviceName)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("backend", cfg.StateBackend).Msg("queue-engine listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

func openStateStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.StateStore, func(), error) {
	switch cfg.StateBackend {
	case config.BackendFile:
		return file.NewStore(cfg.StatePath, cfg.StateKey), func() {}, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		states := postgres.NewStore(pool, postgres.Options{Key: cfg.StateKey})
		if err := states.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db schema: %w", err)
		}
		revision, err := states.Revision(ctx)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db revision: %w", err)
		}
		logger.Info().Str("key", cfg.StateKey).Int64("revision", revision).Msg("postgres state store ready")
		return states, pool.Close, nil
	default:
		return store.NewMemoryStateStore(), func() {}, nil
	}
}

// startRemoteSync reloads the engine whenever another process relays a
// commit. The memory backend is private to this process, so there the
// relay only publishes.
func startRemoteSync(ctx context.Context, cfg config.Config, relay *hub.RedisRelay, queue *engine.Engine, local hub.Publisher, logger zerolog.Logger) {
	if cfg.StateBackend == config.BackendMemory {
		logger.Warn().Msg("memory state backend: redis relay is outbound only")
		return
	}
	go func() {
		if err := relay.Forward(ctx, queue.RemoteSync(ctx, local)); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("redis forward stopped")
		}
	}()
}

func openRelay(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*hub.RedisRelay, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	relay := hub.NewRedisRelay(client, hub.RelayOptions{
		Channel: cfg.RedisChannel,
		Logger:  logger.With().Str("component", "redis").Logger(),
	})
	return relay, func() { _ = client.Close() }, nil
}
