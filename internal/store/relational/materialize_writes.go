package relational

import (
	"context"
	"time"

	"github.com/engintel/platform/internal/errs"
)

// UpsertTask implements the C6 task-upsert rule keyed by (source,
// external_key). Status text and status_category both persist; the
// materialiser pre-computes status_category from the fixed mapping table.
func (s *Store) UpsertTask(ctx context.Context, t Task) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err = pool.Exec(ctx, `
		INSERT INTO tasks (
			source, external_key, project_id, title, description, status,
			status_category, priority, reporter_employee_id, assignee_employee_id,
			created_at_source, updated_at_source, due_date, estimate_points, labels
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (source, external_key) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			status_category = EXCLUDED.status_category,
			priority = EXCLUDED.priority,
			assignee_employee_id = EXCLUDED.assignee_employee_id,
			updated_at_source = EXCLUDED.updated_at_source,
			due_date = EXCLUDED.due_date,
			estimate_points = EXCLUDED.estimate_points,
			labels = EXCLUDED.labels`,
		t.Source, t.ExternalKey, nullableStr(t.ProjectID), t.Title, t.Description, t.Status,
		t.StatusCategory, t.Priority, t.ReporterEmployeeID, t.AssigneeEmployeeID,
		t.CreatedAtSource, t.UpdatedAtSource, t.DueDate, t.EstimatePoints, t.Labels)
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "upsert task", err)
	}
	return nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// TaskIDByExternalKey resolves a task's UUID from its (source, external_key)
// natural key, or "" if no such task has been materialised yet.
func (s *Store) TaskIDByExternalKey(ctx context.Context, source, externalKey string) (string, error) {
	rows, err := s.Execute(ctx, `SELECT id FROM tasks WHERE source = $1 AND external_key = $2`, source, externalKey)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var id string
	if rows.Next() {
		_ = rows.Scan(&id)
	}
	return id, rows.Err()
}

// TaskEvent mirrors spec.md §3's append-only TaskEvent entity.
type TaskEvent struct {
	TaskID          string
	OccurredAt      time.Time
	EventType       string
	FromValue       string
	ToValue         string
	ActorEmployeeID *string
	Payload         map[string]any
}

// InsertTaskEventIfAbsent dedups on (task_id, occurred_at, event_type)
// before inserting, matching the C6 rule.
func (s *Store) InsertTaskEventIfAbsent(ctx context.Context, ev TaskEvent) (inserted bool, err error) {
	pool, err := s.pooled(ctx)
	if err != nil {
		return false, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	rows, err := pool.Query(ctx, `
		SELECT 1 FROM task_events WHERE task_id = $1 AND occurred_at = $2 AND event_type = $3`,
		ev.TaskID, ev.OccurredAt, ev.EventType)
	if err != nil {
		return false, errs.Wrap(errs.UpstreamUnavailable, "check task event dedup", err)
	}
	exists := rows.Next()
	rows.Close()
	if exists {
		return false, nil
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO task_events (task_id, occurred_at, event_type, from_value, to_value, actor_employee_id, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.TaskID, ev.OccurredAt, ev.EventType, ev.FromValue, ev.ToValue, ev.ActorEmployeeID, ev.Payload)
	if err != nil {
		return false, errs.Wrap(errs.UpstreamUnavailable, "insert task event", err)
	}
	return true, nil
}

// UpsertTaskParticipant inserts a (task_id, employee_id, role) row,
// ignoring conflicts — C6's task-participant rule.
func (s *Store) UpsertTaskParticipant(ctx context.Context, taskID, employeeID, role string) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err = pool.Exec(ctx, `
		INSERT INTO task_participants (task_id, employee_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, employee_id, role) DO NOTHING`, taskID, employeeID, role)
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "upsert task participant", err)
	}
	return nil
}

// CiPipeline mirrors spec.md §3's CiPipeline entity.
type CiPipeline struct {
	ProjectID     string
	CommitSHA     string
	Status        string
	StartedAt     time.Time
	FinishedAt    *time.Time
	ErrorLog      string
	TriggerActor  *string
}

// CiPipelineIDByCommit resolves a pipeline's UUID from its (project_id,
// commit_sha) natural key, or "" if it hasn't been materialised yet.
func (s *Store) CiPipelineIDByCommit(ctx context.Context, commitSHA, projectID string) (string, error) {
	rows, err := s.Execute(ctx, `SELECT id FROM ci_pipelines WHERE commit_sha = $1 AND project_id = $2`, commitSHA, nullableStr(projectID))
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var id string
	if rows.Next() {
		_ = rows.Scan(&id)
	}
	return id, rows.Err()
}

// UpsertCiPipeline inserts a new pipeline row or updates status/finished_at
// on an existing one, keyed by (project_id, commit_sha).
func (s *Store) UpsertCiPipeline(ctx context.Context, p CiPipeline) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err = pool.Exec(ctx, `
		INSERT INTO ci_pipelines (project_id, commit_sha, status, started_at, finished_at, error_log, trigger_actor)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (project_id, commit_sha) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			error_log = EXCLUDED.error_log`,
		nullableStr(p.ProjectID), p.CommitSHA, p.Status, p.StartedAt, p.FinishedAt, p.ErrorLog, p.TriggerActor)
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "upsert ci pipeline", err)
	}
	return nil
}

// MonthlyMetrics mirrors spec.md §3's EmployeeMonthlyMetrics entity.
type MonthlyMetrics struct {
	EmployeeID       string
	Month            time.Time
	TasksCompleted   int
	TasksStarted     int
	OverdueOpen      int
	BlockedItems     int
	PRsMergedCount   int
	PRReviewsCount   int
}

// UpsertMonthlyMetrics recomputes one employee's rollup idempotently,
// keyed by (employee_id, month).
func (s *Store) UpsertMonthlyMetrics(ctx context.Context, m MonthlyMetrics) error {
	pool, err := s.pooled(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	_, err = pool.Exec(ctx, `
		INSERT INTO employee_monthly_metrics (
			employee_id, month, tasks_completed, tasks_started, overdue_open,
			blocked_items, prs_merged_count, pr_reviews_count, generated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (employee_id, month) DO UPDATE SET
			tasks_completed = EXCLUDED.tasks_completed,
			tasks_started = EXCLUDED.tasks_started,
			overdue_open = EXCLUDED.overdue_open,
			blocked_items = EXCLUDED.blocked_items,
			prs_merged_count = EXCLUDED.prs_merged_count,
			pr_reviews_count = EXCLUDED.pr_reviews_count,
			generated_at = NOW()`,
		m.EmployeeID, m.Month, m.TasksCompleted, m.TasksStarted, m.OverdueOpen,
		m.BlockedItems, m.PRsMergedCount, m.PRReviewsCount)
	if err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "upsert monthly metrics", err)
	}
	return nil
}

// ActiveEmployeesWithIdentities returns every active employee along with
// their known identity-mapping external IDs/usernames plus email, used by
// the monthly rollup to build the actor-ID set for a ClickHouse query.
func (s *Store) ActiveEmployeesWithIdentities(ctx context.Context) (map[string][]string, error) {
	rows, err := s.Execute(ctx, `
		SELECT e.id, e.email, im.external_id, im.external_username
		FROM employees e
		LEFT JOIN identity_mappings im ON im.employee_id = e.id
		WHERE e.active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, email string
		var extID, extUser *string
		if err := rows.Scan(&id, &email, &extID, &extUser); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan identity mapping row", err)
		}
		actors := out[id]
		if len(actors) == 0 {
			actors = append(actors, email)
		}
		if extID != nil && *extID != "" {
			actors = append(actors, *extID)
		}
		if extUser != nil && *extUser != "" {
			actors = append(actors, *extUser)
		}
		out[id] = actors
	}
	return out, rows.Err()
}

// OverdueAndBlockedCounts returns the overdue-open and blocked task counts
// for one employee, used by the monthly rollup.
func (s *Store) OverdueAndBlockedCounts(ctx context.Context, employeeID string) (overdue, blocked int, err error) {
	rows, err := s.Execute(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status_category != 'done' AND due_date < CURRENT_DATE) AS overdue,
			COUNT(*) FILTER (WHERE status_category = 'blocked') AS blocked
		FROM tasks WHERE assignee_employee_id = $1`, employeeID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&overdue, &blocked); err != nil {
			return 0, 0, errs.Wrap(errs.Internal, "scan overdue/blocked counts", err)
		}
	}
	return overdue, blocked, rows.Err()
}
