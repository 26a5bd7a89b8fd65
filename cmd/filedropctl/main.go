// Command filedropctl manages filedrop users and the database schema.
package main

import (
	"context"
	"fmt"
	"os"

	"filedrop/internal/config"
	"filedrop/internal/db"
	"filedrop/internal/logging"
	"filedrop/internal/service"
	"filedrop/internal/storage"
	"filedrop/internal/store"
	"filedrop/internal/sweep"

	"golang.org/x/term"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	root := newRootCmd(openEnv, readSecretFromTerminal)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEnv connects to the configured database and payload storage. The caller
// must call env.close.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	blobs, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		pool.Close()
		return nil, err
	}
	st := store.New(pool)
	e := &env{
		admin: service.New(st, st, blobs, service.OptionsFromConfig(cfg), logger),
		migrate: func(ctx context.Context) ([]db.MigrationResult, error) {
			return db.Migrate(ctx, pool)
		},
		close: func() {
			if blobs != nil {
				_ = blobs.Close()
			}
			pool.Close()
		},
	}
	if blobs != nil {
		e.sweep = sweep.New(st, blobs, cfg.Storage.SweepGrace, logger).Sweep
	}
	return e, nil
}

func readSecretFromTerminal() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errNotTerminal
	}
	fmt.Fprint(os.Stderr, "api key: ")
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}
