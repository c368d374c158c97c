package autoack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/common/id"
	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/notify"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
)

const DefaultCutoff = 24 * time.Hour

// Sender delivers a message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) error
}

type Config struct {
	// Cutoff is how long a closed card may stay unanswered.
	Cutoff time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Monitor stops tracking issues whose acceptance card went unanswered.
type Monitor struct {
	issues store.TrackedIssueStore
	sender Sender
	cutoff time.Duration
	now    func() time.Time
}

func New(issues store.TrackedIssueStore, sender Sender, cfg Config) *Monitor {
	if cfg.Cutoff <= 0 {
		cfg.Cutoff = DefaultCutoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{
		issues: issues,
		sender: sender,
		cutoff: cfg.Cutoff,
		now:    cfg.Now,
	}
}

// Sweep deletes every row notified before now-cutoff and tells its chat.
// A row deleted concurrently (accepted by the user) gets no message.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	tickID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TickID:    &tickID,
		Component: "notifier.autoack",
	})

	cutoff := m.now().Add(-m.cutoff)
	rows, err := m.issues.ListNotifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stale issues: %w", err)
	}

	acked := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if m.ackOne(ctx, row) {
			acked++
		}
	}

	if len(rows) > 0 {
		slog.InfoContext(ctx, "auto-ack sweep finished",
			"candidates", len(rows),
			"acked", acked,
			"cutoff", cutoff)
	}
	return acked, ctx.Err()
}

func (m *Monitor) ackOne(ctx context.Context, row model.TrackedIssue) bool {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(row.Key.ProjectID),
		IssueIID:  logger.Ptr(row.Key.IssueIID),
		ChatID:    logger.Ptr(row.ChatID),
	})

	deleted, err := m.issues.Delete(ctx, row.Key)
	if err != nil {
		slog.WarnContext(ctx, "failed to delete stale issue", "error", err)
		return false
	}
	if !deleted {
		return false
	}

	if err := m.sender.Send(ctx, row.ChatID, notify.Message{Text: notify.AutoAcked(row.Key, m.cutoff)}); err != nil {
		slog.WarnContext(ctx, "issue auto-acked but chat was not told", "error", err)
	}
	return true
}
