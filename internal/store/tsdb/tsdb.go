// Package tsdb adapts the append-only time-series event log (C1) on top of
// github.com/ClickHouse/clickhouse-go/v2. The events table is partitioned
// daily and ordered by (source, event_type, timestamp) per spec.md §6.
package tsdb

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/engintel/platform/internal/config"
	"github.com/engintel/platform/internal/errs"
)

// Store wraps a lazily-dialed ClickHouse connection.
type Store struct {
	dsn      config.StoreDSN
	deadline time.Duration

	mu   sync.Mutex
	conn driver.Conn
}

// New returns a Store that dials lazily on first use.
func New(dsn config.StoreDSN, operationDeadline time.Duration) *Store {
	return &Store{dsn: dsn, deadline: operationDeadline}
}

func (s *Store) conned(ctx context.Context) (driver.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}

	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", s.dsn.Host, s.dsn.Port)},
		Auth: clickhouse.Auth{
			Database: s.dsn.Database,
			Username: s.dsn.User,
			Password: s.dsn.Password,
		},
		DialTimeout: 10 * time.Second,
	}
	if s.dsn.TLS {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "connect to time-series store", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "ping time-series store", err)
	}
	s.conn = conn
	return s.conn, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.conned(ctx)
	return err
}

// Close releases the underlying connection, if opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Store) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.deadline)
}

// Event mirrors spec.md §3's Event entity.
type Event struct {
	EventID    string
	Timestamp  time.Time
	Source     string
	EventType  string
	ProjectID  string
	ActorID    string
	EntityID   string
	EntityType string
	Metadata   string // opaque JSON, ≤64 KiB per spec.md §3
}

// InsertEvent performs the idempotent insert of C5 step (b): if event_id
// already exists the insert is skipped (invariant 1, spec.md §8). ClickHouse
// has no native upsert; dedup is enforced by checking existence first under
// the per-operation deadline, which is acceptable because the log is the
// only writer of this table (single-writer invariant, spec.md §3).
func (s *Store) InsertEvent(ctx context.Context, ev Event) (inserted bool, err error) {
	conn, err := s.conned(ctx)
	if err != nil {
		return false, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	exists, err := s.eventExists(ctx, conn, ev.EventID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO events (event_id, timestamp, source, event_type, project_id, actor_id, entity_id, entity_type, metadata)")
	if err != nil {
		return false, errs.Wrap(errs.UpstreamUnavailable, "prepare event insert batch", err)
	}
	if err := batch.Append(ev.EventID, ev.Timestamp, ev.Source, ev.EventType, ev.ProjectID, ev.ActorID, ev.EntityID, ev.EntityType, ev.Metadata); err != nil {
		return false, errs.Wrap(errs.Internal, "append event to batch", err)
	}
	if err := batch.Send(); err != nil {
		return false, errs.Wrap(errs.UpstreamUnavailable, "insert event", err)
	}
	return true, nil
}

func (s *Store) eventExists(ctx context.Context, conn driver.Conn, eventID string) (bool, error) {
	row := conn.QueryRow(ctx, "SELECT count() FROM events WHERE event_id = $1", eventID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, errs.Wrap(errs.UpstreamUnavailable, "check event dedup", err)
	}
	return count > 0, nil
}

// QueryEventsFilter parameterises QueryEvents (C7 query_events tool).
type QueryEventsFilter struct {
	EventType string
	ActorID   string
	ProjectID string
	Source    string
	DaysBack  int
	Limit     int
}

// QueryEvents returns raw event rows within the requested window, filtered
// by whichever fields are set. Used by the query_events tool and by the
// NL→query pipeline; get_deployment_metrics / get_developer_activity run
// their own aggregate queries.
func (s *Store) QueryEvents(ctx context.Context, f QueryEventsFilter) ([]Event, error) {
	conn, err := s.conned(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	if f.DaysBack <= 0 {
		f.DaysBack = 7
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}

	query := `SELECT event_id, timestamp, source, event_type, project_id, actor_id, entity_id, entity_type, metadata
		FROM events
		WHERE timestamp >= now() - INTERVAL ? DAY
		  AND (? = '' OR event_type = ?)
		  AND (? = '' OR actor_id = ?)
		  AND (? = '' OR project_id = ?)
		  AND (? = '' OR source = ?)
		ORDER BY timestamp DESC
		LIMIT ?`
	rows, err := conn.Query(ctx, query,
		f.DaysBack, f.EventType, f.EventType, f.ActorID, f.ActorID, f.ProjectID, f.ProjectID, f.Source, f.Source, f.Limit)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "query events", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Source, &e.EventType, &e.ProjectID, &e.ActorID, &e.EntityID, &e.EntityType, &e.Metadata); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan event row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
