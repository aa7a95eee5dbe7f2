package tsdb

import (
	"context"
	"time"

	"github.com/engintel/platform/internal/errs"
)

// DeploymentMetrics is the result shape of get_deployment_metrics (C7),
// matching scenario 3 of spec.md §8 literally.
type DeploymentMetrics struct {
	ProjectID                string
	DaysBack                 int
	TotalDeployments         int
	TotalFailedDeployments   int
	ChangeFailureRatePct     *float64 // nil when TotalDeployments == 0 (invariant 5)
	DeploymentFreqPerWeek    float64
	AvgLeadTimeHours         float64
	TotalPRsMerged           int
	TotalCommits             int
	TotalStoryPointsDone     float64
}

// GetDeploymentMetrics computes DORA metrics for a project (or every
// project when projectID is ""), over the last days window. Deployment
// events are event_type IN ('workflow_run','deployment') with
// metadata.conclusion carrying success/failure; lead time is read from
// metadata.lead_time_hours when present.
func (s *Store) GetDeploymentMetrics(ctx context.Context, projectID string, days int) (*DeploymentMetrics, error) {
	conn, err := s.conned(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	if days <= 0 {
		days = 30
	}

	row := conn.QueryRow(ctx, `
		SELECT
			countIf(event_type IN ('workflow_run','deployment')) AS total_deploys,
			countIf(event_type IN ('workflow_run','deployment') AND JSONExtractString(metadata,'conclusion') = 'failure') AS failed_deploys,
			avgIf(JSONExtractFloat(metadata,'lead_time_hours'), JSONExtractFloat(metadata,'lead_time_hours') > 0) AS avg_lead_time,
			countIf(event_type = 'pr_merged') AS prs_merged,
			countIf(event_type = 'commit') AS commits,
			sumIf(JSONExtractFloat(metadata,'story_points'), event_type = 'issue_completed') AS story_points
		FROM events
		WHERE timestamp >= now() - INTERVAL ? DAY
		  AND (? = '' OR project_id = ?)`,
		days, projectID, projectID)

	var m DeploymentMetrics
	m.ProjectID = projectID
	m.DaysBack = days
	if err := row.Scan(&m.TotalDeployments, &m.TotalFailedDeployments, &m.AvgLeadTimeHours,
		&m.TotalPRsMerged, &m.TotalCommits, &m.TotalStoryPointsDone); err != nil {
		return nil, errs.Wrap(errs.Internal, "scan deployment metrics row", err)
	}

	if m.TotalDeployments > 0 {
		pct := float64(m.TotalFailedDeployments) / float64(m.TotalDeployments) * 100
		m.ChangeFailureRatePct = &pct
	}
	weeks := float64(days) / 7
	if weeks < 1 {
		weeks = 1
	}
	m.DeploymentFreqPerWeek = float64(m.TotalDeployments) / weeks
	return &m, nil
}

// WindowCounts is one metric snapshot over an absolute [from, to) time
// range, the unit the anomaly-detection tool (detect_anomalies) compares
// between a "current" and a "baseline" window.
type WindowCounts struct {
	Deployments       int
	FailedDeployments int
	TasksCompleted    int
}

// WindowMetrics counts deployments/failed-deployments/completed-tasks for a
// project (or every project when projectID is "") over an explicit absolute
// time window, parameterizing GetDeploymentMetrics's query shape by
// timestamp bounds instead of a trailing INTERVAL so callers can slide the
// window for baseline-vs-current comparisons.
func (s *Store) WindowMetrics(ctx context.Context, projectID string, from, to time.Time) (WindowCounts, error) {
	conn, err := s.conned(ctx)
	if err != nil {
		return WindowCounts{}, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	row := conn.QueryRow(ctx, `
		SELECT
			countIf(event_type IN ('workflow_run','deployment')) AS total_deploys,
			countIf(event_type IN ('workflow_run','deployment') AND JSONExtractString(metadata,'conclusion') = 'failure') AS failed_deploys,
			countIf(event_type = 'issue_completed') AS tasks_completed
		FROM events
		WHERE timestamp >= ? AND timestamp < ?
		  AND (? = '' OR project_id = ?)`,
		from, to, projectID, projectID)

	var w WindowCounts
	if err := row.Scan(&w.Deployments, &w.FailedDeployments, &w.TasksCompleted); err != nil {
		return WindowCounts{}, errs.Wrap(errs.Internal, "scan window metrics row", err)
	}
	return w, nil
}

// DeveloperActivity is the result shape of get_developer_activity (C7).
type DeveloperActivity struct {
	ActorID      string
	Commits      int
	PRsMerged    int
	PRReviews    int
	IssuesClosed int
}

// GetDeveloperActivity aggregates per-actor event counts over the window.
func (s *Store) GetDeveloperActivity(ctx context.Context, actorID string, days int) (*DeveloperActivity, error) {
	conn, err := s.conned(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	if days <= 0 {
		days = 7
	}

	row := conn.QueryRow(ctx, `
		SELECT
			countIf(event_type = 'commit') AS commits,
			countIf(event_type = 'pr_merged') AS prs_merged,
			countIf(event_type = 'pr_reviewed') AS pr_reviews,
			countIf(event_type = 'issue_completed') AS issues_closed
		FROM events
		WHERE actor_id = ? AND timestamp >= now() - INTERVAL ? DAY`, actorID, days)

	a := DeveloperActivity{ActorID: actorID}
	if err := row.Scan(&a.Commits, &a.PRsMerged, &a.PRReviews, &a.IssuesClosed); err != nil {
		return nil, errs.Wrap(errs.Internal, "scan developer activity row", err)
	}
	return &a, nil
}
