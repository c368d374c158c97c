package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Larin-Sergei/telegram-notify-bot/common/id"
	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

var ErrNotTracked = errors.New("issue is not tracked")

// Notifier delivers notifications produced by a reconcile pass.
type Notifier interface {
	Deliver(ctx context.Context, key model.IssueKey, authorTrackerID int64, msg notify.Message) notify.Report
	Send(ctx context.Context, chatID int64, msg notify.Message) error
}

type Config struct {
	// Concurrency bounds how many issues a tick processes at once.
	Concurrency int
	// ReviewLabel replaces the issue labels when the closed card goes out.
	ReviewLabel string
	// MaxFileSize caps each comment attachment forwarded to chat.
	MaxFileSize int64
}

// Outcome reports what one pass over an issue changed.
type Outcome struct {
	Closed   bool
	Comments int
	Assignee bool
}

// Reconciler compares tracker snapshots with the stored watermarks and
// notifies chat about the difference. Watermarks are persisted before any
// delivery so a crash never notifies twice; a failed watermark write skips
// notification so the next pass retries it.
type Reconciler struct {
	issues   store.TrackedIssueStore
	tracker  tracker.Client
	notifier Notifier
	cfg      Config
	locks    *keyLocks
	now      func() time.Time
}

func New(issues store.TrackedIssueStore, client tracker.Client, notifier Notifier, cfg Config) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Reconciler{
		issues:   issues,
		tracker:  client,
		notifier: notifier,
		cfg:      cfg,
		locks:    newKeyLocks(),
		now:      time.Now,
	}
}

// Tick reconciles every tracked issue once. Per-issue failures are logged and
// retried on the next tick; only failing to enumerate the rows is an error.
func (r *Reconciler) Tick(ctx context.Context) error {
	tickID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TickID:    &tickID,
		Component: "notifier.reconcile",
	})

	sc := logger.StartSpan(ctx, "reconcile.tick")
	defer sc.End()
	ctx = sc.Context()

	rows, err := r.issues.List(ctx)
	if err != nil {
		sc.RecordError(err)
		return fmt.Errorf("listing tracked issues: %w", err)
	}

	var g errgroup.Group
	var closed, comments, assignees, failed atomic.Int64
	g.SetLimit(r.cfg.Concurrency)

	for _, row := range rows {
		key := row.Key
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, err := r.ReconcileIssue(ctx, key)
			switch {
			case errors.Is(err, ErrNotTracked):
			case err != nil:
				failed.Add(1)
				slog.WarnContext(ctx, "skipping issue this tick",
					"error", err,
					"project_id", key.ProjectID,
					"issue_iid", key.IssueIID)
			default:
				if out.Closed {
					closed.Add(1)
				}
				if out.Assignee {
					assignees.Add(1)
				}
				comments.Add(int64(out.Comments))
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "reconcile tick finished",
		"issues", len(rows),
		"closed", closed.Load(),
		"comments", comments.Load(),
		"assignees", assignees.Load(),
		"failed", failed.Load())

	return ctx.Err()
}

// ReconcileIssue runs one pass for a single issue. Concurrent calls for the
// same issue are serialised and each re-reads the row under the lock.
func (r *Reconciler) ReconcileIssue(ctx context.Context, key model.IssueKey) (Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(key.ProjectID),
		IssueIID:  logger.Ptr(key.IssueIID),
	})

	unlock := r.locks.lock(key)
	defer unlock()

	row, err := r.issues.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{}, ErrNotTracked
		}
		return Outcome{}, fmt.Errorf("loading tracked issue: %w", err)
	}

	return r.reconcile(ctx, row)
}

func (r *Reconciler) reconcile(ctx context.Context, row *model.TrackedIssue) (Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChatID: logger.Ptr(row.ChatID)})

	issue, err := r.tracker.GetIssue(ctx, row.Key)
	if err != nil {
		return Outcome{}, err
	}
	comments, err := r.tracker.ListComments(ctx, row.Key)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if issue.IsClosed() {
		out.Closed = r.checkClosed(ctx, row, issue, comments)
	} else {
		out.Comments = r.checkComments(ctx, row, issue, comments)
	}
	out.Assignee = r.checkAssignee(ctx, row, issue)

	return out, nil
}

func (r *Reconciler) checkClosed(ctx context.Context, row *model.TrackedIssue, issue *model.Issue, comments []model.Comment) bool {
	if row.Notified {
		return false
	}

	closing := ClosingComment(issue, comments)
	var closingID *int64
	if closing != nil {
		closingID = &closing.ID
	}

	transitioned, err := r.issues.MarkNotified(ctx, row.Key, r.now(), closingID)
	if err != nil {
		slog.WarnContext(ctx, "failed to mark issue notified", "error", err)
		return false
	}
	if !transitioned {
		return false
	}

	if r.cfg.ReviewLabel != "" {
		labels := []string{r.cfg.ReviewLabel}
		if err := r.tracker.UpdateIssue(ctx, row.Key, model.IssueUpdate{Labels: &labels}); err != nil {
			slog.WarnContext(ctx, "failed to apply review label", "error", err)
		}
	}

	text, kb := notify.ClosedCard(issue, closing)
	_ = r.notifier.Send(ctx, row.ChatID, notify.Message{Text: text, Keyboard: kb})

	if closing != nil {
		slog.InfoContext(ctx, "issue closed, acceptance requested", "closing_comment_id", closing.ID)
	} else {
		slog.InfoContext(ctx, "issue closed, acceptance requested")
	}
	return true
}

func (r *Reconciler) checkComments(ctx context.Context, row *model.TrackedIssue, issue *model.Issue, comments []model.Comment) int {
	var fresh []model.Comment
	watermark := row.CommentWatermark
	for _, c := range comments {
		if c.System || c.ID <= row.CommentWatermark {
			continue
		}
		fresh = append(fresh, c)
		watermark = max(watermark, c.ID)
	}
	if len(fresh) == 0 {
		return 0
	}

	if err := r.issues.RaiseCommentWatermark(ctx, row.Key, watermark); err != nil {
		slog.WarnContext(ctx, "failed to raise comment watermark", "error", err)
		return 0
	}

	notified := 0
	for _, c := range fresh {
		if c.Author.ID == issue.Author.ID {
			continue
		}

		msg := notify.Message{
			Text:            notify.NewComment(row.Key, c, notify.StripUploads(c.Body)),
			SkipTrackerUser: c.Author.ID,
		}
		if refs := notify.ParseUploads(c.Body); len(refs) > 0 {
			msg.Media = r.fetchMedia(ctx, row.Key, refs)
		}

		report := r.notifier.Deliver(ctx, row.Key, issue.Author.ID, msg)
		slog.DebugContext(ctx, "comment notified",
			"comment_id", c.ID,
			"delivered", report.Delivered,
			"failed", report.Failed)
		notified++
	}
	return notified
}

func (r *Reconciler) fetchMedia(ctx context.Context, key model.IssueKey, refs []notify.UploadRef) []chat.MediaItem {
	items, failed := notify.FetchUploads(ctx, r.tracker, key.ProjectID, refs, r.cfg.MaxFileSize)
	if len(failed) > 0 {
		slog.WarnContext(ctx, "some comment attachments could not be fetched",
			"failed", len(failed),
			"total", len(refs))
	}
	return items
}

func (r *Reconciler) checkAssignee(ctx context.Context, row *model.TrackedIssue, issue *model.Issue) bool {
	current := issue.AssigneeID()
	change := row.Assignee.Compare(current)
	if change == model.AssigneeUnchanged {
		return false
	}

	if err := r.issues.SetAssigneeWatermark(ctx, row.Key, current); err != nil {
		slog.WarnContext(ctx, "failed to record assignee", "error", err)
		return false
	}

	var text string
	switch change {
	case model.AssigneeSet:
		text = notify.AssigneeSet(issue)
	case model.AssigneeChanged:
		text = notify.AssigneeChanged(issue)
	default:
		return false
	}

	_ = r.notifier.Send(ctx, row.ChatID, notify.Message{Text: text})
	return true
}
