package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "db", Healthy: true}
	sqlDB, err := c.db.DB()
	if err != nil {
		res.Healthy = false
		res.Error = err.Error()
		return res
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

// StreamChecker verifies the effect stream is reachable. A missing stream is
// healthy: the dispatcher creates it on first XADD and the worker on startup.
type StreamChecker struct {
	client redis.UniversalClient
	stream string
}

func NewStreamChecker(client redis.UniversalClient, stream string) Checker {
	if client == nil {
		return nil
	}
	return &StreamChecker{client: client, stream: stream}
}

func (c *StreamChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "effect_stream", Healthy: true}
	if err := c.client.XLen(ctx, c.stream).Err(); err != nil && err != redis.Nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}
