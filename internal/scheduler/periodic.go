package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
)

// Job is one unit of periodic work. Errors are logged; the schedule continues.
type Job func(ctx context.Context) error

// Periodic runs a job immediately and then every interval until the context
// is cancelled or Stop is called. Runs never overlap.
type Periodic struct {
	name     string
	interval time.Duration
	job      Job

	started   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewPeriodic(name string, interval time.Duration, job Job) *Periodic {
	return &Periodic{
		name:      name,
		interval:  interval,
		job:       job,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called.
func (p *Periodic) Run(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	defer close(p.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "notifier.scheduler." + p.name,
	})

	slog.InfoContext(ctx, "periodic job started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			slog.InfoContext(ctx, "periodic job stopping")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs the job a single time in the caller's goroutine.
func (p *Periodic) RunOnce(ctx context.Context) {
	start := time.Now()
	if err := p.job(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "periodic job failed",
			"job", p.name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.DebugContext(ctx, "periodic job finished",
		"job", p.name,
		"duration_ms", time.Since(start).Milliseconds())
}

// Stop ends Run and waits for an in-flight job to return. It is safe to call
// more than once and before Run.
func (p *Periodic) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.started.Load() {
		<-p.stoppedCh
	}
}
