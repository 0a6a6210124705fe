package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newRedisTestStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewRedis(Config{
		Redis: &RedisConfig{Addr: mr.Addr()},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	return s, mr
}

func TestRedisStore_AllowRequest(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisTestStore(t)

	ok, err := s.AllowRequest(ctx, "u1", 2*time.Second)
	if err != nil {
		t.Fatalf("AllowRequest error: %v", err)
	}
	if !ok {
		t.Fatal("first request should be allowed")
	}

	ok, err = s.AllowRequest(ctx, "u1", 2*time.Second)
	if err != nil {
		t.Fatalf("AllowRequest error: %v", err)
	}
	if ok {
		t.Fatal("second request inside the interval should be paced")
	}

	mr.FastForward(3 * time.Second)

	ok, err = s.AllowRequest(ctx, "u1", 2*time.Second)
	if err != nil {
		t.Fatalf("AllowRequest error: %v", err)
	}
	if !ok {
		t.Fatal("request after the interval should be allowed again")
	}
}

func TestRedisStore_ReserveUsageCap(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisTestStore(t)

	ok, err := s.ReserveUsage(ctx, "u1", "transcription", 59.5, 60, time.Hour)
	if err != nil || !ok {
		t.Fatalf("first reservation should fit: ok=%v err=%v", ok, err)
	}

	ok, err = s.ReserveUsage(ctx, "u1", "transcription", 1, 60, time.Hour)
	if err != nil {
		t.Fatalf("ReserveUsage error: %v", err)
	}
	if ok {
		t.Fatal("reservation past the cap must be rejected")
	}

	// Fractional credits are preserved.
	used, err := s.UsedInWindow(ctx, "u1", "transcription")
	if err != nil {
		t.Fatalf("UsedInWindow error: %v", err)
	}
	if used != 59.5 {
		t.Fatalf("expected 59.5 used, got %v", used)
	}

	ok, err = s.ReserveUsage(ctx, "u1", "transcription", 0.5, 60, time.Hour)
	if err != nil {
		t.Fatalf("ReserveUsage error: %v", err)
	}
	if !ok {
		t.Fatal("reservation that exactly reaches the cap should pass")
	}
}

func TestRedisStore_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisTestStore(t)

	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 60, 60, time.Minute); !ok {
		t.Fatal("seed reservation failed")
	}
	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 1, 60, time.Minute); ok {
		t.Fatal("cap should be reached")
	}

	mr.FastForward(2 * time.Minute)

	ok, err := s.ReserveUsage(ctx, "u1", "transcription", 1, 60, time.Minute)
	if err != nil {
		t.Fatalf("ReserveUsage error: %v", err)
	}
	if !ok {
		t.Fatal("counter should reset after the window elapses")
	}
}

func TestRedisStore_AdjustUsage(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisTestStore(t)

	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 10, 0, time.Hour); !ok {
		t.Fatal("uncapped reservation failed")
	}
	if err := s.AdjustUsage(ctx, "u1", "transcription", 2.25, time.Hour); err != nil {
		t.Fatalf("AdjustUsage error: %v", err)
	}
	used, err := s.UsedInWindow(ctx, "u1", "transcription")
	if err != nil {
		t.Fatalf("UsedInWindow error: %v", err)
	}
	if used != 12.25 {
		t.Fatalf("expected 12.25 used, got %v", used)
	}
}
