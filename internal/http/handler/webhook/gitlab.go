package webhook

import (
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
)

// maxPayloadSize bounds webhook bodies; issue payloads carry the full
// description so they can be large.
const maxPayloadSize = 5 << 20

type Config struct {
	Secret string
	// ProjectID restricts accepted events to one project. Zero accepts any.
	ProjectID   int64
	TraceHeader string
}

// GitLabWebhookHandler turns issue and note hooks into reconcile requests.
// It never touches the database; the worker decides whether the issue is
// tracked.
type GitLabWebhookHandler struct {
	producer queue.Producer
	cfg      Config
}

func NewGitLabWebhookHandler(producer queue.Producer, cfg Config) *GitLabWebhookHandler {
	return &GitLabWebhookHandler{producer: producer, cfg: cfg}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Component: "notifier.http.webhook",
	})

	token := c.GetHeader("X-Gitlab-Token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing webhook token"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.Secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	eventType := gitlab.HookEventType(c.Request)
	event, err := gitlab.ParseWebhook(eventType, body)
	if err != nil {
		slog.DebugContext(ctx, "ignoring gitlab webhook", "event", eventType, "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var req queue.ReconcileRequest
	switch ev := event.(type) {
	case *gitlab.IssueEvent:
		req = queue.ReconcileRequest{
			ProjectID: int64(ev.Project.ID),
			IssueIID:  int64(ev.ObjectAttributes.IID),
			EventType: "issue." + ev.ObjectAttributes.Action,
		}
	case *gitlab.IssueCommentEvent:
		req = queue.ReconcileRequest{
			ProjectID: int64(ev.ProjectID),
			IssueIID:  int64(ev.Issue.IID),
			EventType: "note",
		}
	default:
		slog.DebugContext(ctx, "ignoring gitlab webhook", "event", eventType)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if req.IssueIID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no issue iid in payload"})
		return
	}
	if h.cfg.ProjectID != 0 && req.ProjectID != h.cfg.ProjectID {
		slog.DebugContext(ctx, "ignoring webhook for foreign project", "project_id", req.ProjectID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if traceID := h.traceID(c); traceID != "" {
		req.TraceID = &traceID
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(req.ProjectID),
		IssueIID:  logger.Ptr(req.IssueIID),
		EventType: logger.Ptr(req.EventType),
	})

	if err := h.producer.Enqueue(ctx, req); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue reconcile request", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}

	slog.InfoContext(ctx, "gitlab webhook queued")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *GitLabWebhookHandler) traceID(c *gin.Context) string {
	if h.cfg.TraceHeader != "" {
		if id := c.GetHeader(h.cfg.TraceHeader); id != "" {
			return id
		}
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}
