package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/db"
	"filedrop/internal/httpapi"
	"filedrop/internal/logging"
	"filedrop/internal/service"
	"filedrop/internal/storage"
	"filedrop/internal/store"
	"filedrop/internal/sweep"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected")

	if cfg.MigrateOnStart {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		for _, m := range applied {
			logger.Info("migration applied", "version", m.Version, "source", m.Source)
		}
	}

	blobs, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if blobs != nil {
		defer blobs.Close()
	}
	logger.Info("payload storage ready", "backend", cfg.Storage.Backend)

	st := store.New(pool)
	svc := service.New(st, st, blobs, service.OptionsFromConfig(cfg), logger)

	if blobs != nil && cfg.Storage.SweepInterval > 0 {
		sweeper := sweep.New(st, blobs, cfg.Storage.SweepGrace, logger)
		worker := sweep.NewWorker(sweeper, sweep.WorkerConfig{
			StartupDelay: time.Minute,
			Interval:     cfg.Storage.SweepInterval,
		}, logger)
		go worker.Run(ctx)
	}

	api := httpapi.New(cfg, svc, logger)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewEcho(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "attribute_uploads", cfg.AttributeUploads)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
