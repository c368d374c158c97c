package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/store"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/tracker"
)

// ErrAccountUnavailable means the chat user has no tracker account the bot
// can act as.
var ErrAccountUnavailable = errors.New("tracker account unavailable")

// Identity is the chat user as seen on an incoming message.
type Identity struct {
	UserID   int64
	ChatID   int64
	Username string
	Name     string
}

// Resolver maps chat users to tracker users, provisioning the link on first
// use by looking the chat username up in the tracker directory.
type Resolver struct {
	accounts  store.AccountStore
	directory tracker.Directory
}

func NewResolver(accounts store.AccountStore, directory tracker.Directory) *Resolver {
	return &Resolver{accounts: accounts, directory: directory}
}

func (r *Resolver) Resolve(ctx context.Context, who Identity) (*model.Account, error) {
	existing, err := r.accounts.GetByChatUser(ctx, who.UserID)
	switch {
	case err == nil:
		if who.ChatID != 0 && existing.ChatID != who.ChatID {
			existing.ChatID = who.ChatID
			if err := r.accounts.Upsert(ctx, existing); err != nil {
				slog.WarnContext(ctx, "failed to update account chat", "error", err)
			}
		}
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("loading account: %w", err)
	}

	if who.Username == "" {
		return nil, fmt.Errorf("%w: chat user %d has no username", ErrAccountUnavailable, who.UserID)
	}

	person, err := r.directory.FindUser(ctx, who.Username)
	if err != nil {
		if errors.Is(err, tracker.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: no tracker user %q", ErrAccountUnavailable, who.Username)
		}
		return nil, fmt.Errorf("looking up tracker user: %w", err)
	}

	account := &model.Account{
		ChatUserID:      who.UserID,
		ChatID:          who.ChatID,
		TrackerUserID:   person.ID,
		TrackerUsername: person.Username,
	}
	if err := r.accounts.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("saving account: %w", err)
	}

	slog.InfoContext(ctx, "linked chat user to tracker user",
		"chat_user_id", who.UserID,
		"tracker_user_id", person.ID,
		"tracker_username", person.Username)
	return account, nil
}
