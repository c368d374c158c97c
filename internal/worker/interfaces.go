package worker

import (
	"context"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
)

// Stream is the queue of reconcile requests the worker drains.
type Stream interface {
	Read(ctx context.Context) ([]queue.Request, error)
	Claim(ctx context.Context) ([]queue.Request, error)
	Done(ctx context.Context, req queue.Request) error
	Retry(ctx context.Context, req queue.Request, reason string) error
	DeadLetter(ctx context.Context, req queue.Request, reason string) error
}

// IssueReconciler runs one reconcile pass for a single issue.
type IssueReconciler interface {
	ReconcileIssue(ctx context.Context, key model.IssueKey) (reconcile.Outcome, error)
}
