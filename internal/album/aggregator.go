package album

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const DefaultLatency = 300 * time.Millisecond

// KeyFunc returns the batch an item belongs to and the session it came from.
// An empty batch id means the item is not batched.
type KeyFunc[T any] func(item T) (batchID, sessionID string)

// Handler receives items in arrival order, one call per batch.
type Handler[T any] func(ctx context.Context, items []T)

type batch[T any] struct {
	session  string
	seq      uint64
	items    []T
	deadline time.Time
}

// Aggregator groups items that share a batch id and arrive within latency of
// each other, such as the messages of one Telegram album.
type Aggregator[T any] struct {
	key     KeyFunc[T]
	handle  Handler[T]
	latency time.Duration

	mu      sync.Mutex
	batches map[string]*batch[T]
	seq     uint64
	wg      sync.WaitGroup
}

func New[T any](key KeyFunc[T], handle Handler[T], latency time.Duration) *Aggregator[T] {
	if latency <= 0 {
		latency = DefaultLatency
	}
	return &Aggregator[T]{
		key:     key,
		handle:  handle,
		latency: latency,
		batches: make(map[string]*batch[T]),
	}
}

// Add hands an unbatched item to the handler in the caller's goroutine after
// flushing pending batches of the same session. Batched items are buffered
// and flushed once no sibling arrived for latency.
func (a *Aggregator[T]) Add(ctx context.Context, item T) {
	batchID, session := a.key(item)
	if batchID == "" {
		for _, items := range a.takeSession(session) {
			a.handle(ctx, items)
		}
		a.handle(ctx, []T{item})
		return
	}

	deadline := time.Now().Add(a.latency)

	a.mu.Lock()
	b, ok := a.batches[batchID]
	if !ok {
		a.seq++
		b = &batch[T]{session: session, seq: a.seq}
		a.batches[batchID] = b
	}
	b.items = append(b.items, item)
	b.deadline = deadline
	a.mu.Unlock()

	a.wg.Add(1)
	go a.flushAfter(ctx, batchID, deadline)
}

// Wait blocks until every scheduled flush has finished.
func (a *Aggregator[T]) Wait() {
	a.wg.Wait()
}

func (a *Aggregator[T]) flushAfter(ctx context.Context, batchID string, deadline time.Time) {
	defer a.wg.Done()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		// Shutdown: hand the partial batch off rather than drop it.
		items := a.take(batchID, time.Time{})
		if len(items) > 0 {
			slog.WarnContext(ctx, "flushing album early on shutdown", "items", len(items))
			a.handle(context.WithoutCancel(ctx), items)
		}
		return
	}

	if items := a.take(batchID, deadline); len(items) > 0 {
		a.handle(ctx, items)
	}
}

// take removes and returns the batch unless a later arrival extended its
// deadline past notAfter. A zero notAfter takes unconditionally.
func (a *Aggregator[T]) take(batchID string, notAfter time.Time) []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.batches[batchID]
	if !ok {
		return nil
	}
	if !notAfter.IsZero() && b.deadline.After(notAfter) {
		return nil
	}
	delete(a.batches, batchID)
	return b.items
}

func (a *Aggregator[T]) takeSession(session string) [][]T {
	a.mu.Lock()
	defer a.mu.Unlock()

	var pending []*batch[T]
	for id, b := range a.batches {
		if b.session == session {
			pending = append(pending, b)
			delete(a.batches, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	out := make([][]T, len(pending))
	for i, b := range pending {
		out[i] = b.items
	}
	return out
}
