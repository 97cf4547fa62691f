package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LuG3Zz/Blog/internal/server"
	"github.com/LuG3Zz/Blog/pkg/config"
	"github.com/LuG3Zz/Blog/pkg/geo"
	"github.com/LuG3Zz/Blog/pkg/logging"
	"github.com/LuG3Zz/Blog/pkg/storage"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("Failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("Failed to migrate storage", slog.Any("error", err))
		os.Exit(1)
	}

	var resolver geo.Resolver = geo.NewHTTPResolver(logger, cfg.Geo.Endpoint, cfg.Geo.Timeout)
	resolver = geo.NewCachingResolver(logger, resolver, store, cfg.Geo.CacheTTL)
	go purgeGeoCache(ctx, logger, store, cfg.Geo.CacheTTL)

	app := server.NewApp(logger, ctx, cfg, store, resolver)
	if err := app.Run(); err != nil {
		logger.Error("Server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// purgeGeoCache drops expired geo cache rows once a day.
func purgeGeoCache(ctx context.Context, logger *slog.Logger, store *storage.Store, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.PurgeLocations(ctx, maxAge)
			if err != nil {
				logger.Warn("Geo cache purge failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("Geo cache purged", slog.Int64("removed", removed))
			}
		}
	}
}
