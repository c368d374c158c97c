package store

import (
	"context"

	"github.com/Larin-Sergei/telegram-notify-bot/common/id"
	"github.com/Larin-Sergei/telegram-notify-bot/core/db/sqlc"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
)

type subscriptionStore struct {
	queries *sqlc.Queries
}

func newSubscriptionStore(queries *sqlc.Queries) SubscriptionStore {
	return &subscriptionStore{queries: queries}
}

func (s *subscriptionStore) Add(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == 0 {
		sub.ID = id.New()
	}
	_, err := s.queries.AddSubscription(ctx, sqlc.AddSubscriptionParams{
		ID:           sub.ID,
		SubscriberID: sub.SubscriberID,
		ProjectID:    sub.Key.ProjectID,
		IssueIid:     sub.Key.IssueIID,
	})
	return err
}

func (s *subscriptionStore) ListSubscribers(ctx context.Context, key model.IssueKey) ([]int64, error) {
	return s.queries.ListSubscribers(ctx, sqlc.ListSubscribersParams{
		ProjectID: key.ProjectID,
		IssueIid:  key.IssueIID,
	})
}
