package repository

import "time"

// Option applies a configuration option to the PostgresStore.
type Option func(*PostgresStore)

// WithClock overrides the time source used for latency metrics.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

// PoolConfig sizes the pgx pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnIdleTime time.Duration
}
