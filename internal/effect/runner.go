package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-backend/internal/observability"
)

// Handler executes one effect. Returning an error leaves the message pending
// so the runner re-delivers it; handlers must therefore be idempotent.
type Handler func(ctx context.Context, e Effect) error

// Runner is the external task runner: a consumer-group loop over the effect
// stream with bounded re-delivery. Entries that keep failing are acked away
// after maxAttempts and logged, never retried forever.
type Runner struct {
	client      redis.UniversalClient
	stream      string
	group       string
	consumer    string
	handlers    map[Kind]Handler
	logger      *slog.Logger
	maxAttempts int

	blockTimeout time.Duration
	claimMinIdle time.Duration
	batchSize    int64
}

func NewRunner(client redis.UniversalClient, stream, group, consumer string, maxAttempts int, logger *slog.Logger) *Runner {
	return &Runner{
		client:       client,
		stream:       stream,
		group:        group,
		consumer:     consumer,
		handlers:     make(map[Kind]Handler),
		logger:       logger,
		maxAttempts:  maxAttempts,
		blockTimeout: 2 * time.Second,
		claimMinIdle: 30 * time.Second,
		batchSize:    16,
	}
}

// WithTimings overrides the poll/reclaim windows. Test hook.
func (r *Runner) WithTimings(block, claimMinIdle time.Duration) *Runner {
	r.blockTimeout = block
	r.claimMinIdle = claimMinIdle
	return r
}

func (r *Runner) Handle(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.ensureGroup(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.reclaim(ctx)

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.group,
			Consumer: r.consumer,
			Streams:  []string{r.stream, ">"},
			Count:    r.batchSize,
			Block:    r.blockTimeout,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "effect stream read failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.blockTimeout):
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				r.process(ctx, msg, 1)
			}
		}
	}
}

func (r *Runner) ensureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// reclaim re-delivers entries a dead consumer left pending.
func (r *Runner) reclaim(ctx context.Context) {
	msgs, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: r.consumer,
		MinIdle:  r.claimMinIdle,
		Start:    "0",
		Count:    r.batchSize,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return
	}
	for _, msg := range msgs {
		r.process(ctx, msg, r.deliveryCount(ctx, msg.ID))
	}
}

func (r *Runner) deliveryCount(ctx context.Context, id string) int {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return int(pending[0].RetryCount)
}

func (r *Runner) process(ctx context.Context, msg redis.XMessage, attempt int) {
	raw, ok := msg.Values[streamField].(string)
	if !ok {
		r.logger.WarnContext(ctx, "effect entry without payload, discarding", "entry_id", msg.ID)
		r.ack(ctx, msg.ID)
		return
	}
	e, err := Decode(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "undecodable effect, discarding", "entry_id", msg.ID, "error", err)
		r.ack(ctx, msg.ID)
		return
	}
	h, ok := r.handlers[e.Kind]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for effect kind, discarding",
			"entry_id", msg.ID, "kind", string(e.Kind))
		r.ack(ctx, msg.ID)
		return
	}

	start := time.Now()
	if err := h(ctx, e); err != nil {
		if attempt >= r.maxAttempts {
			r.logger.ErrorContext(ctx, "effect dropped after max attempts",
				"effect_id", e.ID, "kind", string(e.Kind), "user_id", e.UserID,
				"attempts", attempt, "error", err)
			observability.RecordEffectProcess(ctx, string(e.Kind), "dropped", time.Since(start))
			r.ack(ctx, msg.ID)
			return
		}
		r.logger.WarnContext(ctx, "effect failed, will re-deliver",
			"effect_id", e.ID, "kind", string(e.Kind), "attempt", attempt, "error", err)
		observability.RecordEffectProcess(ctx, string(e.Kind), "failure", time.Since(start))
		return
	}
	observability.RecordEffectProcess(ctx, string(e.Kind), "success", time.Since(start))
	r.ack(ctx, msg.ID)
}

func (r *Runner) ack(ctx context.Context, id string) {
	if err := r.client.XAck(ctx, r.stream, r.group, id).Err(); err != nil {
		r.logger.ErrorContext(ctx, "effect ack failed", "entry_id", id, "error", err)
	}
}
