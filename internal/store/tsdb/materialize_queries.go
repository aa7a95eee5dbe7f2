package tsdb

import (
	"context"
	"time"

	"github.com/engintel/platform/internal/errs"
)

// RawEvent is the subset of an events row the materialiser (C6) needs:
// entity/actor/project identifiers, raw metadata, and the timestamp the
// event occurred at. Mirrors the SELECT lists in
// original_source/agent/analytics_processor.py's sync_* queries.
type RawEvent struct {
	EntityID  string
	ActorID   string
	ProjectID string
	Metadata  string
	Timestamp time.Time
	EventType string
}

// QueryJiraIssueEvents returns issue_created/issue_updated/issue_completed
// events from the last sinceHours, grounded on sync_tasks_from_jira's query.
func (s *Store) QueryJiraIssueEvents(ctx context.Context, sinceHours int) ([]RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT entity_id, actor_id, project_id, metadata, timestamp, event_type
		FROM events
		WHERE source = 'jira'
		  AND event_type IN ('issue_created', 'issue_updated', 'issue_completed')
		  AND timestamp >= now() - INTERVAL ? HOUR
		ORDER BY timestamp ASC`, sinceHours)
}

// QueryJiraStatusChangeEvents returns issue_updated events carrying a
// status_from field, grounded on sync_task_events's query.
func (s *Store) QueryJiraStatusChangeEvents(ctx context.Context, sinceHours int) ([]RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT entity_id, actor_id, project_id, metadata, timestamp, event_type
		FROM events
		WHERE source = 'jira'
		  AND event_type = 'issue_updated'
		  AND JSONExtractString(metadata, 'status_from') != ''
		  AND timestamp >= now() - INTERVAL ? HOUR
		ORDER BY timestamp ASC`, sinceHours)
}

// QueryPRReviewedEvents returns GitHub pr_reviewed events, grounded on
// sync_task_participants's query.
func (s *Store) QueryPRReviewedEvents(ctx context.Context, sinceHours int) ([]RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT entity_id, actor_id, project_id, metadata, timestamp, event_type
		FROM events
		WHERE source = 'github'
		  AND event_type = 'pr_reviewed'
		  AND timestamp >= now() - INTERVAL ? HOUR
		ORDER BY timestamp ASC`, sinceHours)
}

// QueryCIEvents returns GitHub workflow_run/deployment events, grounded on
// sync_ci_pipelines's query.
func (s *Store) QueryCIEvents(ctx context.Context, sinceHours int) ([]RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT entity_id, actor_id, project_id, metadata, timestamp, event_type
		FROM events
		WHERE source = 'github'
		  AND event_type IN ('workflow_run', 'deployment')
		  AND timestamp >= now() - INTERVAL ? HOUR
		ORDER BY timestamp ASC`, sinceHours)
}

func (s *Store) queryRawEvents(ctx context.Context, query string, sinceHours int) ([]RawEvent, error) {
	conn, err := s.conned(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := conn.Query(ctx, query, sinceHours)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamUnavailable, "query raw events", err)
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		var e RawEvent
		if err := rows.Scan(&e.EntityID, &e.ActorID, &e.ProjectID, &e.Metadata, &e.Timestamp, &e.EventType); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan raw event row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActorMonthlyCounts is the countIf rollup used by compute_monthly_metrics.
type ActorMonthlyCounts struct {
	TasksCompleted int
	TasksStarted   int
	PRsMerged      int
	PRReviews      int
}

// MonthlyActorCounts aggregates event counts for the given actor identifiers
// (an employee's email plus every known external id/username) within
// [monthStart, monthEnd), grounded on compute_monthly_metrics's
// per-employee metrics_query. Returns the zero value (not an error) when
// actorIDs is empty, matching the Python reference's behaviour of skipping
// employees with no resolvable identities.
func (s *Store) MonthlyActorCounts(ctx context.Context, actorIDs []string, monthStart, monthEnd time.Time) (ActorMonthlyCounts, error) {
	if len(actorIDs) == 0 {
		return ActorMonthlyCounts{}, nil
	}
	conn, err := s.conned(ctx)
	if err != nil {
		return ActorMonthlyCounts{}, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	row := conn.QueryRow(ctx, `
		SELECT
			countIf(source = 'jira' AND event_type = 'issue_completed') AS tasks_completed,
			countIf(source = 'jira' AND event_type = 'issue_created') AS tasks_started,
			countIf(source = 'github' AND event_type = 'pr_merged') AS prs_merged,
			countIf(source = 'github' AND event_type = 'pr_reviewed') AS pr_reviews
		FROM events
		WHERE actor_id IN (?)
		  AND timestamp >= ?
		  AND timestamp < ?`,
		actorIDs, monthStart, monthEnd)

	var c ActorMonthlyCounts
	if err := row.Scan(&c.TasksCompleted, &c.TasksStarted, &c.PRsMerged, &c.PRReviews); err != nil {
		return ActorMonthlyCounts{}, errs.Wrap(errs.Internal, "scan monthly actor counts", err)
	}
	return c, nil
}
