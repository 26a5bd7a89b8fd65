package sweep

import (
	"context"
	"io"
	"log/slog"
	"time"
)

type runner interface {
	Sweep(context.Context) (Summary, error)
}

type WorkerConfig struct {
	StartupDelay time.Duration
	// Interval between sweeps. Zero runs a single sweep.
	Interval time.Duration
}

// Worker runs a Sweeper on a timer until its context ends.
type Worker struct {
	runner runner
	cfg    WorkerConfig
	logger *slog.Logger
}

func NewWorker(r runner, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Worker{runner: r, cfg: cfg, logger: logger}
}

func (w *Worker) Run(ctx context.Context) {
	if w.runner == nil {
		return
	}
	if w.cfg.StartupDelay > 0 {
		timer := time.NewTimer(w.cfg.StartupDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	w.runOnce(ctx)
	if w.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	start := time.Now()
	sum, err := w.runner.Sweep(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("payload sweep failed", "elapsed", elapsed, "error", err)
		return
	}
	w.logger.Info("payload sweep finished",
		"elapsed", elapsed,
		"scanned", sum.Scanned,
		"young", sum.Young,
		"deleted", sum.Deleted,
		"failed", sum.Failed,
	)
}
