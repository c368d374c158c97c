package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// ReconcileRequest asks the worker to reconcile one issue now instead of
// waiting for the next tick.
type ReconcileRequest struct {
	ProjectID int64
	IssueIID  int64
	EventType string
	TraceID   *string
	Attempt   int
}

type Producer interface {
	Enqueue(ctx context.Context, req ReconcileRequest) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, req ReconcileRequest) error {
	attempt := max(req.Attempt, 1)

	traceID := ""
	if req.TraceID != nil {
		traceID = *req.TraceID
	}
	fields := entryValues(model.IssueKey{ProjectID: req.ProjectID, IssueIID: req.IssueIID}, req.EventType, attempt, traceID)

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue reconcile request: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued reconcile request",
		"project_id", req.ProjectID,
		"issue_iid", req.IssueIID,
		"event_type", req.EventType,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
