package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"soundforge/internal/adapter/repo"
	"soundforge/internal/audio"
	"soundforge/internal/domain"
	"soundforge/internal/generation"
	"soundforge/internal/http/handlers"
	"soundforge/internal/http/httpapi"
	"soundforge/internal/infra"
	"soundforge/internal/queue"
	"soundforge/internal/storage"
	"soundforge/internal/synth"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without DATABASE_URL the service runs on the in-memory store and
	// loses crash recovery across restarts.
	var store domain.JobStore
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()

		pg := repo.NewJobRepository(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}
		store = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory job store")
		store = repo.NewMemoryJobStore()
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	engine := synth.NewWaveEngine(cfg.SampleRate, cfg.Channels)
	exporter := audio.NewExporter(fileStore, logger)
	queueManager := queue.NewManager(logger)

	service := generation.NewService(generation.Config{
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		WorkerCount:    cfg.WorkerCount,
		PollInterval:   cfg.PollInterval,
		RealTimeFactor: cfg.RealTimeFactor,
	}, engine, exporter, store, queueManager, logger)

	recovered, err := service.Recover(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("queue recovery failed")
	} else {
		logger.Info().Int("recovered", recovered).Msg("queue recovery complete")
	}

	app := handlers.NewApp(service, fileStore, logger)
	router := httpapi.NewRouter(app, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return service.Run(groupCtx)
	})

	group.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("service stopped")
}
