package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

//go:embed fixed_window.lua
var fixedWindowScript string

// DefaultRedisKeyPrefix namespaces limiter counters in a shared
// deployment.
const DefaultRedisKeyPrefix = "payguard:rl:"

// redisProbeTimeout bounds the connection probe in NewRedisStore.
const redisProbeTimeout = 5 * time.Second

// RedisStore persists window counters in Redis so replicas share one
// budget per key. Counting runs as a server-side script, making each
// increment atomic across replicas; window expiry rides on key TTLs, so
// Cleanup is a no-op.
//
// The client is injected and stays owned by the caller; Close does not
// close it.
type RedisStore struct {
	client *redis.Client
	prefix string

	// sha is the counting script digest, fixed at construction. The
	// reload group re-sends the script after a server restart without a
	// stampede; the digest itself never changes.
	sha    string
	reload singleflight.Group
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the counter key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore probes the server with a short exponential backoff,
// then preloads the counting script.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	s := &RedisStore{
		client: client,
		prefix: DefaultRedisKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()

	probe := backoff.NewExponentialBackOff()
	probe.InitialInterval = 100 * time.Millisecond
	probe.MaxElapsedTime = redisProbeTimeout

	err := backoff.Retry(func() error {
		return s.client.Ping(ctx).Err()
	}, backoff.WithContext(probe, ctx))
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis unreachable: %w", err)
	}

	sha, err := s.client.ScriptLoad(ctx, fixedWindowScript).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: loading counter script: %w", err)
	}
	s.sha = sha

	return s, nil
}

// Get returns the live window for key, or (nil, nil) when the key is
// absent. WindowStart is not persisted and comes back zero.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	full := s.prefix + key

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, full)
	ttlCmd := pipe.PTTL(ctx, full)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("ratelimit: redis get: %w", err)
	}

	count, err := strconv.ParseInt(getCmd.Val(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: counter %q holds a non-integer: %w", full, err)
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return nil, nil
	}

	now := time.Now()
	return &Entry{
		Key:       key,
		Count:     count,
		WindowEnd: now.Add(ttl),
		LastSeen:  now,
	}, nil
}

// Set writes an entry with a TTL matching its remaining window. Entries
// whose window already closed are removed instead.
func (s *RedisStore) Set(ctx context.Context, e *Entry) error {
	ttl := time.Until(e.WindowEnd)
	if ttl <= 0 {
		return s.Reset(ctx, e.Key)
	}
	if err := s.client.Set(ctx, s.prefix+e.Key, e.Count, ttl).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis set: %w", err)
	}
	return nil
}

// Increment runs the counting script for key and returns the resulting
// entry. The window boundary is derived from the key's remaining TTL.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (*Entry, error) {
	full := s.prefix + key

	vals, err := s.eval(ctx, full, window.Milliseconds())
	if err != nil {
		return nil, err
	}

	count, ok1 := vals[0].(int64)
	ttlMs, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return nil, ErrBadScriptReply
	}

	now := time.Now()
	end := now.Add(time.Duration(ttlMs) * time.Millisecond)
	return &Entry{
		Key:         key,
		Count:       count,
		WindowStart: end.Add(-window),
		WindowEnd:   end,
		LastSeen:    now,
	}, nil
}

// eval runs the counting script by digest, re-sending the script body
// once per flight if the server lost its script cache.
func (s *RedisStore) eval(ctx context.Context, key string, windowMs int64) ([]interface{}, error) {
	res, err := s.client.EvalSha(ctx, s.sha, []string{key}, windowMs).Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		if _, lerr, _ := s.reload.Do("script", func() (interface{}, error) {
			return s.client.ScriptLoad(ctx, fixedWindowScript).Result()
		}); lerr != nil {
			return nil, fmt.Errorf("ratelimit: reloading counter script: %w", lerr)
		}
		res, err = s.client.EvalSha(ctx, s.sha, []string{key}, windowMs).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis incr: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, ErrBadScriptReply
	}
	return vals, nil
}

// Reset removes the live window for key. Idempotent.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis del: %w", err)
	}
	return nil
}

// Cleanup is a no-op: key TTLs collect closed windows server-side.
func (s *RedisStore) Cleanup(context.Context) error {
	return nil
}

// Close is a no-op; the injected client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
