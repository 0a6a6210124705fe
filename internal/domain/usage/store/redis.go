package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// reserveScript performs the atomic check-and-increment that admission
// depends on. The window TTL is attached on first increment only.
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
if cap > 0 and current + amount > cap then
	return 0
end
redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// NewRedis constructs a redis-backed usage store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "usage:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) rateKey(userID string) string {
	return s.prefix + "rate:" + userID
}

func (s *redisStore) usageKey(userID, service string) string {
	return s.prefix + "window:" + userID + ":" + service
}

func (s *redisStore) AllowRequest(ctx context.Context, userID string, interval time.Duration) (bool, error) {
	if interval <= 0 {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, s.rateKey(userID), "1", interval).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *redisStore) ReserveUsage(ctx context.Context, userID, service string, amount, cap float64, window time.Duration) (bool, error) {
	res, err := reserveScript.Run(ctx, s.client,
		[]string{s.usageKey(userID, service)},
		amount, cap, window.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *redisStore) AdjustUsage(ctx context.Context, userID, service string, delta float64, window time.Duration) error {
	key := s.usageKey(userID, service)
	if err := s.client.IncrByFloat(ctx, key, delta).Err(); err != nil {
		return err
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return err
	}
	if ttl < 0 {
		return s.client.PExpire(ctx, key, window).Err()
	}
	return nil
}

func (s *redisStore) UsedInWindow(ctx context.Context, userID, service string) (float64, error) {
	raw, err := s.client.Get(ctx, s.usageKey(userID, service)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
