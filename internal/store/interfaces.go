package store

import (
	"context"
	"errors"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist. It is never
// used to report a failed query.
var ErrNotFound = errors.New("not found")

// TrackedIssueStore owns the watermark rows. Every mutation is a single
// statement on one row.
type TrackedIssueStore interface {
	// Create inserts the row if absent and reports whether it did.
	Create(ctx context.Context, issue *model.TrackedIssue) (bool, error)
	Get(ctx context.Context, key model.IssueKey) (*model.TrackedIssue, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, key model.IssueKey) (bool, error)
	List(ctx context.Context) ([]model.TrackedIssue, error)
	ListByChat(ctx context.Context, chatID int64) ([]model.TrackedIssue, error)

	// RaiseCommentWatermark sets the watermark to max(current, commentID).
	RaiseCommentWatermark(ctx context.Context, key model.IssueKey, commentID int64) error
	// SetAssigneeWatermark records an observation; nil means unassigned.
	SetAssigneeWatermark(ctx context.Context, key model.IssueKey, assigneeID *int64) error
	// MarkNotified flips notified false->true, stamps notified_at and raises the
	// watermark to closingCommentID when given. It reports false without
	// touching the row when the row was already notified.
	MarkNotified(ctx context.Context, key model.IssueKey, at time.Time, closingCommentID *int64) (bool, error)
	ClearNotified(ctx context.Context, key model.IssueKey) error
	// ListNotifiedBefore returns notified rows with notified_at strictly before cutoff.
	ListNotifiedBefore(ctx context.Context, cutoff time.Time) ([]model.TrackedIssue, error)
}

// SubscriptionStore owns issue subscriptions. Adding is idempotent.
type SubscriptionStore interface {
	Add(ctx context.Context, sub *model.Subscription) error
	ListSubscribers(ctx context.Context, key model.IssueKey) ([]int64, error)
}

// AccountStore maps Telegram users to GitLab users.
type AccountStore interface {
	GetByChatUser(ctx context.Context, chatUserID int64) (*model.Account, error)
	GetByTrackerUser(ctx context.Context, trackerUserID int64) (*model.Account, error)
	Upsert(ctx context.Context, account *model.Account) error
}
