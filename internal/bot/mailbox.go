package bot

import (
	"context"
	"sync"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/conversation"
)

// mailboxes runs each chat's turns on its own goroutine in arrival order.
// A chat's goroutine exits once its queue drains.
type mailboxes struct {
	handler Handler

	mu     sync.Mutex
	queues map[int64][][]conversation.Inbound
	wg     sync.WaitGroup
}

func newMailboxes(handler Handler) *mailboxes {
	return &mailboxes{
		handler: handler,
		queues:  make(map[int64][][]conversation.Inbound),
	}
}

// post queues batch for its chat and returns without waiting for the turn.
func (m *mailboxes) post(ctx context.Context, batch []conversation.Inbound) {
	if len(batch) == 0 {
		return
	}
	chatID := batch[0].ChatID

	m.mu.Lock()
	defer m.mu.Unlock()

	q, running := m.queues[chatID]
	m.queues[chatID] = append(q, batch)
	if running {
		return
	}
	m.wg.Add(1)
	go m.drain(ctx, chatID)
}

func (m *mailboxes) drain(ctx context.Context, chatID int64) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		q := m.queues[chatID]
		if len(q) == 0 {
			delete(m.queues, chatID)
			m.mu.Unlock()
			return
		}
		next := q[0]
		m.queues[chatID] = q[1:]
		m.mu.Unlock()

		m.handler.Handle(ctx, next)
	}
}

// wait blocks until every queued turn has been handled.
func (m *mailboxes) wait() {
	m.wg.Wait()
}
