package store

import (
	"context"
	"time"
)

// Store tracks per-user rolling usage counters and request pacing. The
// admission path depends on ReserveUsage being an atomic
// check-and-increment: two concurrent reservations for the last quota
// slot must never both succeed.
type Store interface {
	// AllowRequest enforces the minimum inter-request interval. It
	// returns false when the user already issued a request inside the
	// interval, and atomically records the new request time otherwise.
	AllowRequest(ctx context.Context, userID string, interval time.Duration) (bool, error)

	// ReserveUsage atomically adds amount to the user's rolling counter
	// unless that would push it past cap. cap <= 0 means uncapped.
	ReserveUsage(ctx context.Context, userID, service string, amount, cap float64, window time.Duration) (bool, error)

	// AdjustUsage applies a post-hoc correction (positive or negative)
	// to the rolling counter, e.g. when the actual charge differs from
	// the admission estimate.
	AdjustUsage(ctx context.Context, userID, service string, delta float64, window time.Duration) error

	// UsedInWindow reports the current rolling counter value.
	UsedInWindow(ctx context.Context, userID, service string) (float64, error)

	Close(ctx context.Context) error
}

// Config describes the store selection parameters.
type Config struct {
	Driver string
	Prefix string
	Redis  *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
