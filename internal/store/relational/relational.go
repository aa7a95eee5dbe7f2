// Package relational adapts the structured store (employees, projects,
// tasks, ...) and its colocated pgvector semantic index (C1) on top of
// github.com/jackc/pgx/v5. The pool is lazily initialised on first use and
// every method honours the caller's context deadline.
package relational

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
)

// Store wraps a pgx connection pool. Construct with New; Close releases the
// pool when the owning process shuts down.
type Store struct {
	dsn      config.StoreDSN
	deadline time.Duration

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New returns a Store that lazily dials on first use. Passing an
// already-open pool (e.g. in tests) is done via NewWithPool instead.
func New(dsn config.StoreDSN, operationDeadline time.Duration) *Store {
	return &Store{dsn: dsn, deadline: operationDeadline}
}

// NewWithPool wraps an already-open pool, letting tests inject a pool
// pointed at a disposable test database or a pgxmock implementation.
func NewWithPool(pool *pgxpool.Pool, operationDeadline time.Duration) *Store {
	return &Store{pool: pool, deadline: operationDeadline}
}

func (s *Store) pooled(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.dsn.User, s.dsn.Password, s.dsn.Host, s.dsn.Port, s.dsn.Database, sslMode(s.dsn.TLS))
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "connect to relational store", err)
	}
	s.pool = pool
	return s.pool, nil
}

func sslMode(tls bool) string {
	if tls {
		return "require"
	}
	return "disable"
}

func (s *Store) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.deadline)
}

// Ping verifies connectivity, used by the /api/health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "ping relational store", err)
	}
	return nil
}

// Close releases the underlying pool, if one was opened.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
	}
}

// Execute runs a read query and returns the rows for the caller to scan.
// Callers are responsible for closing the returned Rows.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	pool, err := s.pooled(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withDeadline(ctx)
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, errs.Wrap(errs.UpstreamUnavailable, "execute query", err)
	}
	return &cancelingRows{Rows: rows, cancel: cancel}, nil
}

// cancelingRows wraps pgx.Rows so the deadline context is cancelled exactly
// once the caller closes the row set, rather than leaking until GC.
type cancelingRows struct {
	pgx.Rows
	cancel context.CancelFunc
}

func (r *cancelingRows) Close() {
	r.Rows.Close()
	r.cancel()
}

// Tx runs fn inside a transaction, committing on nil return and rolling
// back otherwise. This is the session-scoped transaction primitive C1
// requires for the relational store.
func (s *Store) Tx(ctx context.Context, fn func(pgx.Tx) error) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "commit transaction", err)
	}
	return nil
}

// SimilarDoc is one row of a SearchSimilar result.
type SimilarDoc struct {
	ID         string
	SourceID   string
	Title      string
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// SearchSimilar runs the vector-search contract of C1: cosine similarity
// ordered descending, optionally filtered by embedding_type, capped at k.
// k == 0 returns no rows; k greater than the corpus size returns every row.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, embeddingType string, k int) ([]SimilarDoc, error) {
	if k <= 0 {
		return nil, nil
	}
	pool, err := s.pooled(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	query := `
		SELECT id, source_id, title, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM embeddings
		WHERE ($2 = '' OR embedding_type = $2)
		ORDER BY embedding <=> $1
		LIMIT $3`
	rows, err := pool.Query(ctx, query, Vector(vector), embeddingType, k)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "search similar embeddings", err)
	}
	defer rows.Close()

	var out []SimilarDoc
	for rows.Next() {
		var d SimilarDoc
		var meta map[string]any
		if err := rows.Scan(&d.ID, &d.SourceID, &d.Title, &d.Content, &meta, &d.Similarity); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan similar embedding row", err)
		}
		d.Metadata = meta
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertEmbedding inserts or replaces the embedding row for (sourceID,
// embeddingType), enforcing invariant 2 of spec.md §8 (at most one row per
// source/type pair).
func (s *Store) UpsertEmbedding(ctx context.Context, id, embeddingType, sourceID, sourceTable, title, content string, metadata map[string]any, vector []float32) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err = pool.Exec(ctx, `
		INSERT INTO embeddings (id, embedding_type, source_id, source_table, title, content, metadata, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (source_id, embedding_type) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()`,
		id, embeddingType, sourceID, sourceTable, title, content, metadata, Vector(vector))
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "upsert embedding", err)
	}
	return nil
}
