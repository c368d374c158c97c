package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
)

type Config struct {
	MaxAttempts int
	// ErrorBackoff is the pause after a failed read.
	ErrorBackoff time.Duration
}

// Worker reconciles issues named by tracker webhooks as soon as the hook
// arrives instead of waiting for the next periodic pass.
type Worker struct {
	stream     Stream
	reconciler IssueReconciler
	cfg        Config
}

func New(stream Stream, reconciler IssueReconciler, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		stream:     stream,
		reconciler: reconciler,
		cfg:        cfg,
	}
}

// Run drains the stream until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "notifier.worker"})
	slog.InfoContext(ctx, "worker started")

	for {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "worker stopping")
			return ctx.Err()
		}

		reqs, err := w.stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.ErrorContext(ctx, "failed to read reconcile requests", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}

		for _, req := range reqs {
			w.handle(ctx, req)
		}
	}
}

// Reclaim handles requests another worker took but never finished. It is
// meant to run periodically.
func (w *Worker) Reclaim(ctx context.Context) error {
	reqs, err := w.stream.Claim(ctx)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		w.handle(ctx, req)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, req queue.Request) {
	err := w.processSafe(ctx, req)
	if err == nil {
		return
	}

	ctx = requestContext(ctx, req)
	if req.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "reconcile request out of attempts, dead-lettering",
			"error", err,
			"attempts", req.Attempt)
		if dlqErr := w.stream.DeadLetter(ctx, req, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to dead-letter request", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "reconcile request failed, requeuing",
		"error", err,
		"attempt", req.Attempt)
	if retryErr := w.stream.Retry(ctx, req, err.Error()); retryErr != nil {
		slog.ErrorContext(ctx, "failed to requeue request", "error", retryErr)
	}
}

func (w *Worker) processSafe(ctx context.Context, req queue.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(requestContext(ctx, req), "panic recovered in reconcile request", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Process(ctx, req)
}

// Process reconciles the requested issue once for every entry the request
// folds and acknowledges them. Requests for issues nobody tracks are
// acknowledged and dropped. A failed reconcile is returned unacknowledged.
func (w *Worker) Process(ctx context.Context, req queue.Request) error {
	ctx = requestContext(ctx, req)

	sc := logger.StartSpanFromTraceID(ctx, req.TraceID, "worker.reconcile")
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "processing reconcile request",
		"attempt", req.Attempt,
		"entries", len(req.EntryIDs))

	start := time.Now()
	out, err := w.reconciler.ReconcileIssue(ctx, req.Key)
	switch {
	case errors.Is(err, reconcile.ErrNotTracked):
		slog.DebugContext(ctx, "issue not tracked, dropping request")
	case err != nil:
		sc.RecordError(err)
		return fmt.Errorf("reconciling issue: %w", err)
	default:
		slog.InfoContext(ctx, "reconcile request processed",
			"closed", out.Closed,
			"comments", out.Comments,
			"assignee", out.Assignee,
			"duration_ms", time.Since(start).Milliseconds())
	}

	if err := w.stream.Done(ctx, req); err != nil {
		// Left pending, the entries are claimed again later; reconciling twice is harmless.
		slog.WarnContext(ctx, "failed to ack reconcile request", "error", err)
	}
	return nil
}

func requestContext(ctx context.Context, req queue.Request) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(req.Key.ProjectID),
		IssueIID:  logger.Ptr(req.Key.IssueIID),
		MessageID: logger.Ptr(req.ID()),
		EventType: logger.Ptr(strings.Join(req.EventTypes, ",")),
	})
}
