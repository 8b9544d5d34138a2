package effect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEffectEncodeDecode(t *testing.T) {
	e := New(KindCreditWalletBonus, 7)
	e.Amount = 0.99
	e.Payload["reason"] = "verification_bonus"

	raw, err := e.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != e.ID || got.Kind != KindCreditWalletBonus || got.UserID != 7 || got.Amount != 0.99 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Payload["reason"] != "verification_bonus" {
		t.Fatalf("payload lost: %+v", got.Payload)
	}
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New(KindSendVerificationEmail, 1)
	b := New(KindSendVerificationEmail, 1)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestRedisDispatcherSubmit(t *testing.T) {
	client := testRedis(t)
	d := NewRedisDispatcher(client, "effects")
	ctx := context.Background()

	e := New(KindSendResetEmail, 9)
	e.Payload["email"] = "alice@example.com"
	if err := d.Submit(ctx, e); err != nil {
		t.Fatalf("submit: %v", err)
	}

	msgs, err := client.XRange(ctx, "effects", "-", "+").Result()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected one stream entry: %v %v", err, msgs)
	}
	got, err := Decode(msgs[0].Values[streamField].(string))
	if err != nil {
		t.Fatalf("decode stream payload: %v", err)
	}
	if got.ID != e.ID || got.Kind != KindSendResetEmail || got.Payload["email"] != "alice@example.com" {
		t.Fatalf("stream payload mismatch: %+v", got)
	}
}

func TestRunnerProcessesAndAcks(t *testing.T) {
	client := testRedis(t)
	d := NewRedisDispatcher(client, "effects")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan Effect, 1)
	r := NewRunner(client, "effects", "workers", "worker-1", 3, discardLogger()).
		WithTimings(20*time.Millisecond, 0)
	r.Handle(KindCreditWalletBonus, func(ctx context.Context, e Effect) error {
		handled <- e
		return nil
	})
	go func() { _ = r.Run(ctx) }()

	e := New(KindCreditWalletBonus, 7)
	e.Amount = 0.99
	if err := d.Submit(ctx, e); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case got := <-handled:
		if got.ID != e.ID {
			t.Fatalf("handled wrong effect: %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("effect was never handled")
	}

	waitFor(t, 3*time.Second, func() bool {
		pending, err := client.XPending(context.Background(), "effects", "workers").Result()
		return err == nil && pending.Count == 0
	}, "expected handled effect to be acked")
}

func TestRunnerRedeliversFailedEffect(t *testing.T) {
	client := testRedis(t)
	d := NewRedisDispatcher(client, "effects")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	r := NewRunner(client, "effects", "workers", "worker-1", 5, discardLogger()).
		WithTimings(20*time.Millisecond, 0)
	r.Handle(KindSendVerificationEmail, func(ctx context.Context, e Effect) error {
		if calls.Add(1) == 1 {
			return errors.New("smtp unavailable")
		}
		return nil
	})
	go func() { _ = r.Run(ctx) }()

	if err := d.Submit(ctx, New(KindSendVerificationEmail, 3)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return calls.Load() >= 2 }, "expected re-delivery after failure")
	waitFor(t, 3*time.Second, func() bool {
		pending, err := client.XPending(context.Background(), "effects", "workers").Result()
		return err == nil && pending.Count == 0
	}, "expected retried effect to be acked")
}

func TestRunnerDropsEffectAfterMaxAttempts(t *testing.T) {
	client := testRedis(t)
	d := NewRedisDispatcher(client, "effects")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	r := NewRunner(client, "effects", "workers", "worker-1", 2, discardLogger()).
		WithTimings(20*time.Millisecond, 0)
	r.Handle(KindSendResetEmail, func(ctx context.Context, e Effect) error {
		calls.Add(1)
		return errors.New("permanent failure")
	})
	go func() { _ = r.Run(ctx) }()

	if err := d.Submit(ctx, New(KindSendResetEmail, 4)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return calls.Load() >= 2 }, "expected at least 2 attempts")
	waitFor(t, 3*time.Second, func() bool {
		pending, err := client.XPending(context.Background(), "effects", "workers").Result()
		return err == nil && pending.Count == 0
	}, "expected failing effect to be dropped after max attempts")
	if calls.Load() < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", calls.Load())
	}
}

func TestRunnerDiscardsUndecodableEntries(t *testing.T) {
	client := testRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(client, "effects", "workers", "worker-1", 3, discardLogger()).
		WithTimings(20*time.Millisecond, 0)
	go func() { _ = r.Run(ctx) }()

	err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: "effects",
		Values: map[string]any{streamField: "not-json"},
	}).Err()
	if err != nil {
		t.Fatalf("xadd: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		pending, err := client.XPending(context.Background(), "effects", "workers").Result()
		return err == nil && pending.Count == 0
	}, "expected garbage entry to be discarded")
}
