package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_AllowRequest(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

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

	// Another user is unaffected.
	ok, err = s.AllowRequest(ctx, "u2", 2*time.Second)
	if err != nil {
		t.Fatalf("AllowRequest error: %v", err)
	}
	if !ok {
		t.Fatal("pacing must be per user")
	}
}

func TestMemoryStore_ReserveUsageCap(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	ok, err := s.ReserveUsage(ctx, "u1", "transcription", 50, 60, time.Hour)
	if err != nil || !ok {
		t.Fatalf("first reservation should fit: ok=%v err=%v", ok, err)
	}
	ok, err = s.ReserveUsage(ctx, "u1", "transcription", 20, 60, time.Hour)
	if err != nil {
		t.Fatalf("ReserveUsage error: %v", err)
	}
	if ok {
		t.Fatal("reservation past the cap must be rejected")
	}

	used, err := s.UsedInWindow(ctx, "u1", "transcription")
	if err != nil {
		t.Fatalf("UsedInWindow error: %v", err)
	}
	if used != 50 {
		t.Fatalf("rejected reservation must not consume quota, used=%v", used)
	}
}

func TestMemoryStore_ConcurrentReservationSingleSlot(t *testing.T) {
	// Two concurrent admissions with one remaining quota unit: exactly
	// one may win.
	ctx := context.Background()
	s := NewMemory()

	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 59, 60, time.Hour); !ok {
		t.Fatal("seed reservation failed")
	}

	const attempts = 16
	var wg sync.WaitGroup
	granted := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ReserveUsage(ctx, "u1", "transcription", 1, 60, time.Hour)
			if err != nil {
				t.Errorf("ReserveUsage error: %v", err)
				return
			}
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one reservation to win, got %d", wins)
	}
}

func TestMemoryStore_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 60, 60, 20*time.Millisecond); !ok {
		t.Fatal("seed reservation failed")
	}
	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 1, 60, 20*time.Millisecond); ok {
		t.Fatal("cap should be reached")
	}

	time.Sleep(30 * time.Millisecond)

	ok, err := s.ReserveUsage(ctx, "u1", "transcription", 1, 60, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("ReserveUsage error: %v", err)
	}
	if !ok {
		t.Fatal("counter should reset after the window elapses")
	}
}

func TestMemoryStore_AdjustUsage(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if ok, _ := s.ReserveUsage(ctx, "u1", "transcription", 10, 0, time.Hour); !ok {
		t.Fatal("uncapped reservation failed")
	}
	if err := s.AdjustUsage(ctx, "u1", "transcription", -2.5, time.Hour); err != nil {
		t.Fatalf("AdjustUsage error: %v", err)
	}
	used, err := s.UsedInWindow(ctx, "u1", "transcription")
	if err != nil {
		t.Fatalf("UsedInWindow error: %v", err)
	}
	if used != 7.5 {
		t.Fatalf("expected 7.5 after adjustment, got %v", used)
	}
}
