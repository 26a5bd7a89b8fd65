package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubRunner struct {
	calls atomic.Int64
	err   error
}

func (s *stubRunner) Sweep(context.Context) (Summary, error) {
	s.calls.Add(1)
	return Summary{}, s.err
}

func TestWorker_RunOnceWhenNoInterval(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	worker := NewWorker(runner, WorkerConfig{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	if runner.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", runner.calls.Load())
	}
}

func TestWorker_RunRepeatedlyWithInterval(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{err: errors.New("transient")}
	worker := NewWorker(runner, WorkerConfig{Interval: 15 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	if runner.calls.Load() < 2 {
		t.Fatalf("calls = %d, want >= 2", runner.calls.Load())
	}
}

func TestWorker_StopsDuringStartupDelay(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	worker := NewWorker(runner, WorkerConfig{StartupDelay: time.Hour, Interval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.Run(ctx)

	if runner.calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", runner.calls.Load())
	}
}
