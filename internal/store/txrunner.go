package store

import (
	"context"

	"github.com/Larin-Sergei/telegram-notify-bot/core/db"
	"github.com/Larin-Sergei/telegram-notify-bot/core/db/sqlc"
)

// StoreProvider exposes the stores a transactional operation may touch.
type StoreProvider interface {
	TrackedIssues() TrackedIssueStore
	Subscriptions() SubscriptionStore
}

// TxRunner runs functions within a transaction and provides stores bound to that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

type dbTxRunner struct {
	db *db.DB
}

// NewTxRunner builds a TxRunner backed by the core DB.
func NewTxRunner(db *db.DB) TxRunner {
	return &dbTxRunner{db: db}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(stores StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q *sqlc.Queries) error {
		return fn(NewStores(q))
	})
}
