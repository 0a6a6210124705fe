package store

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	lastRequest time.Time
	used        float64
	windowEnd   time.Time
}

type memoryStore struct {
	counters map[string]*counter
	mutex    sync.Mutex
}

// NewMemory builds an in-memory usage store. Suitable for a single
// process; multi-instance deployments should use the redis driver.
func NewMemory() Store {
	return &memoryStore{
		counters: make(map[string]*counter),
	}
}

func (s *memoryStore) get(key string, window time.Duration) *counter {
	c, ok := s.counters[key]
	now := time.Now()
	if !ok {
		c = &counter{windowEnd: now.Add(window)}
		s.counters[key] = c
		return c
	}
	if window > 0 && now.After(c.windowEnd) {
		c.used = 0
		c.windowEnd = now.Add(window)
	}
	return c
}

func (s *memoryStore) AllowRequest(_ context.Context, userID string, interval time.Duration) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c := s.get("rate:"+userID, 0)
	now := time.Now()
	if !c.lastRequest.IsZero() && now.Sub(c.lastRequest) < interval {
		return false, nil
	}
	c.lastRequest = now
	return true, nil
}

func (s *memoryStore) ReserveUsage(_ context.Context, userID, service string, amount, cap float64, window time.Duration) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c := s.get(usageKey(userID, service), window)
	if cap > 0 && c.used+amount > cap {
		return false, nil
	}
	c.used += amount
	return true, nil
}

func (s *memoryStore) AdjustUsage(_ context.Context, userID, service string, delta float64, window time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c := s.get(usageKey(userID, service), window)
	c.used += delta
	if c.used < 0 {
		c.used = 0
	}
	return nil
}

func (s *memoryStore) UsedInWindow(_ context.Context, userID, service string) (float64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.counters[usageKey(userID, service)]
	if !ok {
		return 0, nil
	}
	if time.Now().After(c.windowEnd) {
		return 0, nil
	}
	return c.used, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func usageKey(userID, service string) string {
	return "usage:" + userID + ":" + service
}
