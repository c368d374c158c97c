package store

import (
	"context"
	"errors"

	"github.com/Larin-Sergei/telegram-notify-bot/core/db/sqlc"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/jackc/pgx/v5"
)

type accountStore struct {
	queries *sqlc.Queries
}

func newAccountStore(queries *sqlc.Queries) AccountStore {
	return &accountStore{queries: queries}
}

func (s *accountStore) GetByChatUser(ctx context.Context, chatUserID int64) (*model.Account, error) {
	row, err := s.queries.GetAccountByChatUser(ctx, chatUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toAccountModel(row), nil
}

func (s *accountStore) GetByTrackerUser(ctx context.Context, trackerUserID int64) (*model.Account, error) {
	row, err := s.queries.GetAccountByTrackerUser(ctx, trackerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toAccountModel(row), nil
}

func (s *accountStore) Upsert(ctx context.Context, account *model.Account) error {
	row, err := s.queries.UpsertAccount(ctx, sqlc.UpsertAccountParams{
		ChatUserID:      account.ChatUserID,
		ChatID:          account.ChatID,
		TrackerUserID:   account.TrackerUserID,
		TrackerUsername: account.TrackerUsername,
	})
	if err != nil {
		return err
	}
	*account = *toAccountModel(row)
	return nil
}

func toAccountModel(row sqlc.Account) *model.Account {
	return &model.Account{
		ChatUserID:      row.ChatUserID,
		ChatID:          row.ChatID,
		TrackerUserID:   row.TrackerUserID,
		TrackerUsername: row.TrackerUsername,
		CreatedAt:       row.CreatedAt.Time,
	}
}
