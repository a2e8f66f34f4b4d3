package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/metrics"
)

const (
	insertGuestSQL = `INSERT INTO guest (first_name, last_name, email, number)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

	selectGuestsSQL = `SELECT id, first_name, last_name, email, number, created_at FROM guest`

	statsSQL = `SELECT count(*),
       count(*) FILTER (WHERE coalesce(email, '') <> ''),
       count(DISTINCT lower(nullif(email, ''))),
       max(created_at)
FROM guest`
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %w", ErrConnect, err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = int32(pc.MaxConns) //nolint:gosec // bounded by config validation
	}
	if pc.MinConns >= 0 {
		cfg.MinConns = int32(pc.MinConns) //nolint:gosec // bounded by config validation
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnect, err)
	}
	return pool, nil
}

// NewPostgresStore wraps db. The store owns db and closes it on Close.
func NewPostgresStore(db DB, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert writes g inside a transaction that is rolled back on any failure.
func (s *PostgresStore) Insert(ctx context.Context, g model.Guest) (model.Guest, error) {
	defer s.observe("insert", s.now())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		metrics.RecordStoreError("begin")
		return model.Guest{}, fmt.Errorf("%w: %w", ErrBegin, err)
	}

	row := tx.QueryRow(ctx, insertGuestSQL, g.FirstName, g.LastName, g.Email, g.Number)
	if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
		_ = tx.Rollback(ctx)
		metrics.RecordStoreError("insert")
		return model.Guest{}, fmt.Errorf("%w: %w", ErrInsert, err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordStoreError("commit")
		return model.Guest{}, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return g, nil
}

// List returns guests ordered by created_at then id, newest first.
func (s *PostgresStore) List(ctx context.Context, f model.Filter) ([]model.Guest, error) {
	defer s.observe("list", s.now())

	query, args := buildList(f)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		metrics.RecordStoreError("list")
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer rows.Close()

	out := make([]model.Guest, 0)
	for rows.Next() {
		var g model.Guest
		if err := rows.Scan(&g.ID, &g.FirstName, &g.LastName, &g.Email, &g.Number, &g.CreatedAt); err != nil {
			metrics.RecordStoreError("list")
			return nil, fmt.Errorf("%w: scan: %w", ErrQuery, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError("list")
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return out, nil
}

// Stats aggregates the guest table in one round trip.
func (s *PostgresStore) Stats(ctx context.Context) (model.Stats, error) {
	defer s.observe("stats", s.now())

	var st model.Stats
	if err := s.db.QueryRow(ctx, statsSQL).Scan(&st.Total, &st.WithEmail, &st.DistinctEmails, &st.LastSubmittedAt); err != nil {
		metrics.RecordStoreError("stats")
		return model.Stats{}, fmt.Errorf("%w: stats: %w", ErrQuery, err)
	}
	return st, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		metrics.RecordStoreError("ping")
		return fmt.Errorf("%w: ping: %w", ErrConnect, err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(s.now().Sub(start).Milliseconds()))
}

// buildList renders the listing query. The search term is matched with ILIKE
// against both names and the email, with LIKE wildcards in the term escaped.
func buildList(f model.Filter) (string, []any) {
	limit, offset := ClampLimit(f.Limit), f.Offset
	if offset < 0 {
		offset = 0
	}

	var b strings.Builder
	b.WriteString(selectGuestsSQL)

	args := make([]any, 0, 3)
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		b.WriteString(" WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1")
	}
	args = append(args, limit, offset)
	b.WriteString(" ORDER BY created_at DESC, id DESC LIMIT $")
	b.WriteString(strconv.Itoa(len(args) - 1))
	b.WriteString(" OFFSET $")
	b.WriteString(strconv.Itoa(len(args)))
	return b.String(), args
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var _ Store = (*PostgresStore)(nil)
