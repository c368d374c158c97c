package worker_test

import (
	"context"
	"sync"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/model"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/queue"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/reconcile"
)

// mockStream records what happened to each request by its oldest entry id.
type mockStream struct {
	mu       sync.Mutex
	batches  [][]queue.Request
	claims   [][]queue.Request
	readErr  error
	claimErr error
	doneErr  error
	done     []string
	requeued []queue.Request
	dlq      []string
}

func (m *mockStream) Read(ctx context.Context) ([]queue.Request, error) {
	m.mu.Lock()
	if m.readErr != nil {
		err := m.readErr
		m.readErr = nil
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) == 0 {
		m.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	m.mu.Unlock()
	return queue.Coalesce(batch), nil
}

func (m *mockStream) Claim(ctx context.Context) ([]queue.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if len(m.claims) == 0 {
		return nil, nil
	}
	batch := m.claims[0]
	m.claims = m.claims[1:]
	return queue.Coalesce(batch), nil
}

func (m *mockStream) Done(ctx context.Context, req queue.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, req.EntryIDs...)
	return m.doneErr
}

func (m *mockStream) Retry(ctx context.Context, req queue.Request, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, req)
	return nil
}

func (m *mockStream) DeadLetter(ctx context.Context, req queue.Request, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, req.EntryIDs...)
	return nil
}

func (m *mockStream) snapshot() (done, requeued, dlq []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requeued {
		requeued = append(requeued, r.EntryIDs...)
	}
	return append([]string(nil), m.done...),
		requeued,
		append([]string(nil), m.dlq...)
}

type mockReconciler struct {
	mu    sync.Mutex
	keys  []model.IssueKey
	runFn func(ctx context.Context, key model.IssueKey) (reconcile.Outcome, error)
}

func (m *mockReconciler) ReconcileIssue(ctx context.Context, key model.IssueKey) (reconcile.Outcome, error) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	fn := m.runFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, key)
	}
	return reconcile.Outcome{}, nil
}

func (m *mockReconciler) seen() []model.IssueKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.IssueKey(nil), m.keys...)
}
