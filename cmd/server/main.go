package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcoot/noughts/internal/api"
	"github.com/mcoot/noughts/internal/config"
	"github.com/mcoot/noughts/internal/factory"
	"github.com/mcoot/noughts/internal/realtime"
	"github.com/mcoot/noughts/internal/services/auth"
	"github.com/mcoot/noughts/internal/services/challenge"
	redisstorage "github.com/mcoot/noughts/internal/storage/redis"
)

// sessionCleanupInterval is how often revoked session ids are pruned
const sessionCleanupInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Build factory config from environment
	factoryCfg := factory.Config{
		Logger:      logger,
		StorageType: cfg.StorageType,
		SQLitePath:  cfg.SQLitePath,
		BoltPath:    cfg.BoltPath,
		AuthConfig: auth.Config{
			Secret:          []byte(cfg.JWTSecret),
			SessionDuration: cfg.SessionDuration,
		},
		ChallengeConfig: challenge.Config{
			TTL:       cfg.ChallengeTTL,
			SendRate:  cfg.ChallengeRate(),
			SendBurst: cfg.ChallengeBurst,
		},
		RealtimeConfig: realtime.Config{
			OriginPatterns: cfg.AllowedOrigins,
		},
	}

	// Configure Redis if storage type is redis
	if cfg.StorageType == factory.StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		factoryCfg.RedisConfig = &redisCfg
	}

	// Create application factory
	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	server := api.NewServer(app.Router(cfg.SecureCookies), serverConfig, logger)
	server.OnShutdown(app.Registry.CloseAll)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Background maintenance
	go app.ChallengeCoordinator.RunExpirySweeper(ctx, cfg.SweepInterval)
	go cleanSessions(ctx, app.AuthService, logger)

	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", app.StorageType),
	)

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

func cleanSessions(ctx context.Context, authService *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authService.CleanExpiredSessions(ctx); err != nil {
				logger.Error("failed to purge revoked sessions", slog.Any("error", err))
			}
		}
	}
}
