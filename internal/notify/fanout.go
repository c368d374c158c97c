package notify

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/Larin-Sergei/telegram-notify-bot/common/logger"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
)

const maxCaptionRunes = 1024

// Message is one notification. With media, Text becomes the caption of the
// first item when it fits and is sent separately otherwise.
type Message struct {
	Text     string
	Keyboard *chat.Keyboard
	Media    []chat.MediaItem
	// SkipTrackerUser keeps the notification away from the chat of the
	// tracker user who caused it, e.g. a comment posted from that chat.
	SkipTrackerUser int64
}

type Report struct {
	Delivered int
	Failed    int
}

// Fanout delivers issue notifications to everybody following the issue.
// Delivery is best effort: one failed recipient never blocks the others.
type Fanout struct {
	subscriptions store.SubscriptionStore
	accounts      store.AccountStore
	chat          chat.Client
}

func NewFanout(subscriptions store.SubscriptionStore, accounts store.AccountStore, chatClient chat.Client) *Fanout {
	return &Fanout{
		subscriptions: subscriptions,
		accounts:      accounts,
		chat:          chatClient,
	}
}

// Recipients returns the issue's subscribers followed by the home chat of the
// issue author, without duplicates.
func (f *Fanout) Recipients(ctx context.Context, key model.IssueKey, authorTrackerID int64) []int64 {
	var recipients []int64
	seen := make(map[int64]struct{})
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}

	subscribers, err := f.subscriptions.ListSubscribers(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "failed to list subscribers", "error", err)
	}
	for _, id := range subscribers {
		add(id)
	}

	add(f.chatOf(ctx, authorTrackerID))

	return recipients
}

// chatOf returns the home chat of a tracker user, or 0 when unknown.
func (f *Fanout) chatOf(ctx context.Context, trackerUserID int64) int64 {
	if trackerUserID == 0 {
		return 0
	}
	account, err := f.accounts.GetByTrackerUser(ctx, trackerUserID)
	switch {
	case err == nil:
		return account.ChatID
	case errors.Is(err, store.ErrNotFound):
	default:
		slog.WarnContext(ctx, "failed to resolve tracker user chat",
			"error", err,
			"tracker_user_id", trackerUserID)
	}
	return 0
}

// Deliver sends msg to every recipient of the issue.
func (f *Fanout) Deliver(ctx context.Context, key model.IssueKey, authorTrackerID int64, msg Message) Report {
	var report Report
	skip := f.chatOf(ctx, msg.SkipTrackerUser)
	for _, chatID := range f.Recipients(ctx, key, authorTrackerID) {
		if chatID == skip {
			continue
		}
		if err := f.Send(ctx, chatID, msg); err != nil {
			report.Failed++
			continue
		}
		report.Delivered++
	}
	return report
}

// Send delivers msg to a single chat. Failures are logged and returned.
func (f *Fanout) Send(ctx context.Context, chatID int64, msg Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{ChatID: &chatID})

	err := f.send(ctx, chatID, msg)
	if err != nil {
		slog.WarnContext(ctx, "failed to deliver notification", "error", err)
	}
	return err
}

func (f *Fanout) send(ctx context.Context, chatID int64, msg Message) error {
	if len(msg.Media) == 0 {
		return f.chat.SendText(ctx, chatID, msg.Text, msg.Keyboard)
	}

	items := make([]chat.MediaItem, len(msg.Media))
	copy(items, msg.Media)

	if msg.Keyboard == nil && msg.Text != "" && utf8.RuneCountInString(msg.Text) <= maxCaptionRunes {
		items[0].Caption = msg.Text
	} else if msg.Text != "" {
		if err := f.chat.SendText(ctx, chatID, msg.Text, msg.Keyboard); err != nil {
			return err
		}
	}

	return f.chat.SendMedia(ctx, chatID, items)
}
