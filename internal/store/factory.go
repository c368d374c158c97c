package store

import (
	"github.com/Larin-Sergei/telegram-notify-bot/core/db/sqlc"
)

type Stores struct {
	queries *sqlc.Queries
}

func NewStores(queries *sqlc.Queries) *Stores {
	return &Stores{queries: queries}
}

func (s *Stores) TrackedIssues() TrackedIssueStore {
	return newTrackedIssueStore(s.queries)
}

func (s *Stores) Subscriptions() SubscriptionStore {
	return newSubscriptionStore(s.queries)
}

func (s *Stores) Accounts() AccountStore {
	return newAccountStore(s.queries)
}
