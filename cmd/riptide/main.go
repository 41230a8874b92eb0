package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riptide/riptide/internal/api"
	"github.com/riptide/riptide/internal/auth"
	"github.com/riptide/riptide/internal/config"
	"github.com/riptide/riptide/internal/database"
	"github.com/riptide/riptide/internal/history"
	"github.com/riptide/riptide/internal/logger"
	"github.com/riptide/riptide/internal/metadata"
	"github.com/riptide/riptide/internal/metadata/tmdb"
	"github.com/riptide/riptide/internal/plex"
	"github.com/riptide/riptide/internal/provider"
	"github.com/riptide/riptide/internal/provider/eztv"
	"github.com/riptide/riptide/internal/provider/kickass"
	"github.com/riptide/riptide/internal/provider/leetx"
	"github.com/riptide/riptide/internal/provider/rarbg"
	"github.com/riptide/riptide/internal/scheduler"
	"github.com/riptide/riptide/internal/scheduler/tasks"
	"github.com/riptide/riptide/internal/search"
	"github.com/riptide/riptide/internal/stream"
)

// Version is injected at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().
		Str("version", Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting riptide")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	authService, err := auth.NewService(db.Conn(), cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth service")
	}

	tmdbClient := tmdb.NewClient(cfg.TMDB, log.Logger)
	cache := metadata.NewCache(metadata.DefaultCacheConfig())
	metadataService := metadata.NewService(tmdbClient, cache, log.Logger)

	registry := provider.NewRegistry(buildProviders(cfg, log)...)
	searchService := search.NewService(registry, log.Logger)
	plexClient := plex.NewClient(cfg.Plex, log.Logger, Version)

	streamHandler := stream.NewHandler(authService, metadataService, searchService, plexClient, log.Logger)

	historyService := history.NewService(db.Conn(), log.Logger)
	resolver := history.NewResolver(metadataService, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterHistoryCleanupTask(sched, historyService, cfg.History.RetentionDays); err != nil {
		log.Fatal().Err(err).Msg("failed to register history cleanup task")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	server := api.NewServer(cfg, authService, historyService, resolver, streamHandler, sched, log.Capture(), Version, log.Logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func buildProviders(cfg *config.Config, log *logger.Logger) []provider.Provider {
	var providers []provider.Provider

	if cfg.Providers.Rarbg.Enabled {
		providers = append(providers, rarbg.New(rarbg.Config{
			BaseURL: cfg.Providers.Rarbg.BaseURL,
			AppID:   cfg.Providers.Rarbg.AppID,
			Timeout: time.Duration(cfg.Providers.Rarbg.Timeout) * time.Second,
		}, log.Logger))
	}
	if cfg.Providers.Kickass.Enabled {
		providers = append(providers, kickass.New(kickass.Config{
			BaseURL: cfg.Providers.Kickass.BaseURL,
			Timeout: time.Duration(cfg.Providers.Kickass.Timeout) * time.Second,
		}, log.Logger))
	}
	if cfg.Providers.Eztv.Enabled {
		providers = append(providers, eztv.New(eztv.Config{
			BaseURL: cfg.Providers.Eztv.BaseURL,
			Timeout: time.Duration(cfg.Providers.Eztv.Timeout) * time.Second,
		}, log.Logger))
	}
	if cfg.Providers.Leetx.Enabled {
		providers = append(providers, leetx.New(leetx.Config{
			BaseURL: cfg.Providers.Leetx.BaseURL,
			Timeout: time.Duration(cfg.Providers.Leetx.Timeout) * time.Second,
		}, log.Logger))
	}

	return providers
}
