package effect

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"storefront-backend/internal/observability"
)

// Dispatcher hands an effect to the external runner. Submit returns once the
// effect is queued; callers never observe effect completion.
type Dispatcher interface {
	Submit(ctx context.Context, e Effect) error
}

const streamField = "effect"

// RedisDispatcher appends effects to a Redis stream consumed by cmd/worker.
// Retry and delivery accounting belong to the runner side.
type RedisDispatcher struct {
	client redis.UniversalClient
	stream string
}

func NewRedisDispatcher(client redis.UniversalClient, stream string) *RedisDispatcher {
	return &RedisDispatcher{client: client, stream: stream}
}

func (d *RedisDispatcher) Submit(ctx context.Context, e Effect) error {
	encoded, err := e.Encode()
	if err != nil {
		return err
	}
	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{streamField: encoded},
	}).Err()
	if err != nil {
		observability.RecordEffectDispatch(ctx, string(e.Kind), "error")
		return err
	}
	observability.RecordEffectDispatch(ctx, string(e.Kind), "queued")
	return nil
}

// LogDispatcher is the development fallback when no Redis is configured: the
// effect is logged and dropped.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Submit(ctx context.Context, e Effect) error {
	d.logger.InfoContext(ctx, "effect submitted (log dispatcher)",
		"effect_id", e.ID,
		"kind", string(e.Kind),
		"user_id", e.UserID,
	)
	return nil
}
