package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trove/api/internal/app"
	"trove/api/internal/config"
	"trove/api/internal/events"
	"trove/api/internal/search"
	"trove/api/internal/session"
	"trove/api/internal/store"
	"trove/api/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dataStore app.DataStore
		db        *sql.DB
	)
	switch strings.ToLower(cfg.Store) {
	case "memory":
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		dataStore = store.NewMemoryStore()
	default:
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		dataStore = store.NewPostgresStore(db)
	}

	deps := app.Deps{Logger: logger}

	var primary search.Index
	var fallback search.Searcher
	var pgfts *search.PgFTS
	if db != nil {
		pgfts = search.NewPgFTS(db)
		fallback = pgfts
	}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		primary = meiliClient
	}
	deps.Search = search.NewService(primary, fallback, logger)
	if primary != nil && pgfts != nil {
		go deps.Search.ReindexFromPG(ctx, pgfts)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL, dataStore)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info().Msg("refresh sessions stored in redis")
	}

	if strings.TrimSpace(cfg.AMQPURL) != "" {
		publisher, err := events.Dial(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connection failed")
		}
		defer publisher.Close()
		deps.Events = publisher
		logger.Info().Str("exchange", events.Exchange).Msg("publishing flow events")
	}

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("trove API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(server, logger)
}

func shutdown(server *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
