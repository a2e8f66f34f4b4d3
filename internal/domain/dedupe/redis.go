package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "rsvp:notified:"

// RedisDeduper shares the seen set between service instances using SET NX.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisDeduper.
type RedisOption func(*RedisDeduper)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(d *RedisDeduper) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithRedisTTL sets how long a recorded id is remembered. Zero means forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(d *RedisDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// NewRedisDeduper wraps an existing client. The caller keeps ownership.
func NewRedisDeduper(client redis.UniversalClient, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord sets the key only if it does not exist yet.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) (bool, error) {
	set, err := d.client.SetNX(ctx, d.prefix+id, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx: %w", ErrBackend, err)
	}
	return !set, nil
}

// Unrecord deletes the key.
func (d *RedisDeduper) Unrecord(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrBackend, err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (d *RedisDeduper) Close() error { return nil }

var _ Deduper = (*RedisDeduper)(nil)
