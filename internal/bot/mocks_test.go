package bot_test

import (
	"context"
	"sync"
	"time"

	"github.com/Larin-Sergei/telegram-notify-bot/internal/chat"
	"github.com/Larin-Sergei/telegram-notify-bot/internal/conversation"
)

type pollResult struct {
	updates []chat.Update
	err     error
}

// scriptedUpdates replays results, then blocks until the context ends.
type scriptedUpdates struct {
	mu      sync.Mutex
	results []pollResult
	offsets []int64
}

func (s *scriptedUpdates) GetUpdates(ctx context.Context, offset int64, pollTimeout time.Duration) ([]chat.Update, int64, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.results) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, offset, ctx.Err()
	}
	r := s.results[0]
	s.results = s.results[1:]
	s.mu.Unlock()

	next := offset
	for _, u := range r.updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return r.updates, next, r.err
}

func (s *scriptedUpdates) seenOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.offsets...)
}

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]conversation.Inbound

	// hold, when set, keeps turns of that chat waiting until closed.
	hold map[int64]chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, batch []conversation.Inbound) {
	if release, ok := h.hold[batch[0].ChatID]; ok {
		<-release
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, batch)
}

func (h *recordingHandler) get() [][]conversation.Inbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]conversation.Inbound(nil), h.batches...)
}

func (h *recordingHandler) texts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, b := range h.batches {
		for _, in := range b {
			out = append(out, in.Text)
		}
	}
	return out
}
