package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"portalgate/internal/app"
	u "portalgate/internal/utils"
)

const (
	tokenRefreshInterval = time.Minute
	shutdownGrace        = 5 * time.Second
)

func main() {
	cfg := loadConfig()
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	u.SetLogLevel(cfg.Logger.Level)
	u.Info("Starting portalgate", "platform", cfg.Portal.Platform, "pool_size", cfg.Portal.ChromePoolSize)

	// Debounce state lives in its own Redis DB, apart from the limiter DB.
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.DebounceDB,
	})

	stop := make(chan struct{})
	startTokenStore(cfg, stop)

	srv := app.SetupApp(cfg, rdb)
	serve(srv, cfg)

	close(stop)
	u.Info("Server stopped cleanly")
}

// loadConfig reads the YAML config and applies environment overrides. The
// CHROME_BIN override keeps container images working without a config edit.
func loadConfig() u.Config {
	cfg := u.LoadConfig()
	if cfg.Portal.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.Portal.ChromePath = v
			u.AppConfig = cfg
		}
	}
	return cfg
}

// startTokenStore does the initial token load and keeps refreshing until
// stop closes. A failed initial load is not fatal: the server comes up and
// answers 503 to authenticated calls until the store is ready.
func startTokenStore(cfg u.Config, stop chan struct{}) {
	if err := u.LoadTokensFromPostgres(cfg.Auth.Postgres); err != nil {
		u.Error("Failed to load API tokens", "error", err)
	}
	go u.RefreshTokensPeriodicallyFromPostgres(cfg.Auth.Postgres, tokenRefreshInterval, stop)
}

// serve runs the Fiber app until SIGINT or SIGTERM, then drains in-flight
// requests within the shutdown grace period.
func serve(srv *fiber.App, cfg u.Config) {
	go func() {
		if err := srv.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}
}
