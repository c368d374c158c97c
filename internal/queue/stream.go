package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type StreamConfig struct {
	Stream    string        // Redis stream name
	Group     string        // Redis consumer group name
	Consumer  string        // Redis consumer name
	DLQStream string        // Dead letter stream for requests out of attempts
	BatchSize int64         // Entries per read or claim
	Block     time.Duration // How long a read waits for new entries
	// MinIdle is how long an entry must stay unacknowledged before another
	// consumer may claim it.
	MinIdle time.Duration
	// RetryDelay is the pause before a failed request is re-added.
	RetryDelay time.Duration
}

// RedisStream is the worker side of the reconcile request stream.
type RedisStream struct {
	client *redis.Client
	cfg    StreamConfig
}

func NewRedisStream(ctx context.Context, client *redis.Client, cfg StreamConfig) (*RedisStream, error) {
	s := &RedisStream{client: client, cfg: cfg}

	// Start at "0" so requests enqueued before the worker first ran are not skipped.
	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return s, nil
}

// Read waits for new entries and returns them folded per issue.
func (s *RedisStream) Read(ctx context.Context) ([]Request, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		// Only undelivered entries; stale pending ones are claimed separately.
		Streams: []string{s.cfg.Stream, ">"},
		Count:   s.cfg.BatchSize,
		Block:   s.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var entries []redis.XMessage
	for _, st := range streams {
		entries = append(entries, st.Messages...)
	}
	return s.collect(ctx, entries), nil
}

// Claim takes over entries another consumer left unacknowledged for longer
// than MinIdle and returns them folded per issue.
func (s *RedisStream) Claim(ctx context.Context) ([]Request, error) {
	entries, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		MinIdle:  s.cfg.MinIdle,
		Start:    "0-0",
		Count:    s.cfg.BatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming stale entries: %w", err)
	}

	reqs := s.collect(ctx, entries)
	if len(entries) > 0 {
		slog.InfoContext(ctx, "claimed stale reconcile requests",
			"entries", len(entries),
			"requests", len(reqs))
	}
	return reqs, nil
}

// collect parses entries and folds them per issue. Malformed entries are
// acknowledged so they are not redelivered.
func (s *RedisStream) collect(ctx context.Context, entries []redis.XMessage) []Request {
	reqs := make([]Request, 0, len(entries))
	var malformed []string
	for _, msg := range entries {
		req, err := ParseEntry(msg)
		if err != nil {
			slog.ErrorContext(ctx, "dropping malformed reconcile request",
				"error", err,
				"entry_id", msg.ID,
				"stream", s.cfg.Stream)
			malformed = append(malformed, msg.ID)
			continue
		}
		reqs = append(reqs, req)
	}
	if len(malformed) > 0 {
		if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, malformed...).Err(); err != nil {
			slog.WarnContext(ctx, "failed to ack malformed entries", "error", err)
		}
	}

	folded := Coalesce(reqs)
	if len(folded) < len(reqs) {
		slog.DebugContext(ctx, "coalesced reconcile requests",
			"entries", len(reqs),
			"requests", len(folded))
	}
	return folded
}

// Done acknowledges every entry of req.
func (s *RedisStream) Done(ctx context.Context, req Request) error {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, req.EntryIDs...).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", s.cfg.Stream, err)
	}
	return nil
}

// Retry re-adds req with the next attempt number and acknowledges its entries
// in one transaction.
func (s *RedisStream) Retry(ctx context.Context, req Request, reason string) error {
	if s.cfg.RetryDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetryDelay):
		}
	}

	values := req.values(req.Attempt + 1)
	values[fieldLastError] = reason
	if err := s.moveTo(ctx, s.cfg.Stream, req, values); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}

	slog.InfoContext(ctx, "reconcile request requeued",
		"next_attempt", req.Attempt+1,
		"reason", reason)
	return nil
}

// DeadLetter moves req to the dead letter stream.
func (s *RedisStream) DeadLetter(ctx context.Context, req Request, reason string) error {
	values := req.values(req.Attempt)
	values[fieldError] = reason
	if err := s.moveTo(ctx, s.cfg.DLQStream, req, values); err != nil {
		return fmt.Errorf("dead letter (stream=%s): %w", s.cfg.DLQStream, err)
	}

	slog.ErrorContext(ctx, "reconcile request dead-lettered",
		"final_error", reason,
		"dlq_stream", s.cfg.DLQStream)
	return nil
}

func (s *RedisStream) moveTo(ctx context.Context, stream string, req Request, values map[string]any) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values})
		pipe.XAck(ctx, s.cfg.Stream, s.cfg.Group, req.EntryIDs...)
		return nil
	})
	return err
}
