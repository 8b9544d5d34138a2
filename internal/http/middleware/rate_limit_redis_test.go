package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisFixedWindowLimiter(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisFixedWindowLimiter(client, "rl:test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "1.2.3.4", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	allowed, retryAfter, err := l.Allow(ctx, "1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", retryAfter)
	}

	// Window expiry resets the counter.
	srv.FastForward(time.Minute + time.Second)
	if allowed, _, _ := l.Allow(ctx, "1.2.3.4", 2, time.Minute); !allowed {
		t.Fatal("expected request allowed after window expiry")
	}

	srv.Close()
	if _, _, err := l.Allow(ctx, "1.2.3.4", 2, time.Minute); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
