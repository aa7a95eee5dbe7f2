package relational

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/engintel/platform/internal/errs"
)

// Employee mirrors spec.md §3's Employee entity.
type Employee struct {
	ID       string
	FullName string
	Email    string
	Title    string
	Role     string
	TeamID   string
	Level    string
	Active   bool
}

// Project mirrors spec.md §3's Project entity.
type Project struct {
	ID              string
	Name            string
	Description     string
	Status          string
	Priority        string
	TargetDate      *time.Time
	CodeRepoSlug    string
	IssueTrackerKey string
}

// Assignment mirrors ProjectAssignment.
type Assignment struct {
	EmployeeID       string
	ProjectID        string
	Role             string
	AllocatedPercent int
}

// GetEmployee resolves a developer by exactly one of id, email, or name
// (ILIKE partial match), matching original_source/agents/tools/postgres_tools.py's
// get_developer precedence.
func (s *Store) GetEmployee(ctx context.Context, id, email, name string) (*Employee, error) {
	var (
		query string
		arg   string
	)
	switch {
	case id != "":
		query = `SELECT id, full_name, email, title, role, team_id, level, active FROM employees WHERE id = $1`
		arg = id
	case email != "":
		query = `SELECT id, full_name, email, title, role, team_id, level, active FROM employees WHERE email ILIKE $1`
		arg = email
	case name != "":
		query = `SELECT id, full_name, email, title, role, team_id, level, active FROM employees WHERE full_name ILIKE $1`
		arg = "%" + name + "%"
	default:
		return nil, errs.New(errs.InvalidInput, "must provide developer_id, email, or name")
	}

	rows, err := s.Execute(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errs.New(errs.NotFound, "developer not found")
	}
	var e Employee
	if err := rows.Scan(&e.ID, &e.FullName, &e.Email, &e.Title, &e.Role, &e.TeamID, &e.Level, &e.Active); err != nil {
		return nil, errs.Wrap(errs.Internal, "scan employee row", err)
	}
	return &e, rows.Err()
}

// ListEmployees lists developers filtered by team and/or role, capped at
// limit (spec.md C7 caps list_developers at 200).
func (s *Store) ListEmployees(ctx context.Context, teamName, role string, limit int) ([]Employee, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var b strings.Builder
	b.WriteString(`SELECT e.id, e.full_name, e.email, e.title, e.role, e.team_id, e.level, e.active
		FROM employees e LEFT JOIN teams t ON e.team_id = t.id WHERE e.active = true`)
	var args []any
	if teamName != "" {
		args = append(args, "%"+teamName+"%")
		b.WriteString(" AND t.name ILIKE $" + strconv.Itoa(len(args)))
	}
	if role != "" {
		args = append(args, "%"+role+"%")
		b.WriteString(" AND e.role ILIKE $" + strconv.Itoa(len(args)))
	}
	args = append(args, limit)
	b.WriteString(" ORDER BY e.full_name LIMIT $" + strconv.Itoa(len(args)))

	rows, err := s.Execute(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.FullName, &e.Email, &e.Title, &e.Role, &e.TeamID, &e.Level, &e.Active); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan employee row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Workload is the result shape of get_developer_workload (C7).
type Workload struct {
	EmployeeID              string
	TotalAllocationPercent  int
	IsOverallocated         bool
	AvailableCapacityPct    int
}

// GetDeveloperWorkload sums allocated_percent across the employee's active
// project assignments and flags overallocation (invariant 7, spec.md §8).
func (s *Store) GetDeveloperWorkload(ctx context.Context, employeeID string) (*Workload, error) {
	rows, err := s.Execute(ctx, `
		SELECT COALESCE(SUM(pa.allocated_percent), 0)
		FROM project_assignments pa
		JOIN projects p ON p.id = pa.project_id
		WHERE pa.employee_id = $1 AND p.status = 'active'`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var total int
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan workload total", err)
		}
	}
	available := 100 - total
	if available < 0 {
		available = 0
	}
	return &Workload{
		EmployeeID:             employeeID,
		TotalAllocationPercent: total,
		IsOverallocated:        total > 100,
		AvailableCapacityPct:   available,
	}, rows.Err()
}

// Task mirrors spec.md §3's Task entity.
type Task struct {
	ID                  string
	Source              string
	ExternalKey         string
	ProjectID           string
	Title               string
	Description         string
	Status              string
	StatusCategory      string
	Priority            string
	ReporterEmployeeID  *string
	AssigneeEmployeeID  *string
	CreatedAtSource     time.Time
	UpdatedAtSource     time.Time
	DueDate             *time.Time
	EstimatePoints      *float64
	Labels              []string
}

// ListTasksByAssignee returns an employee's tasks, most recently updated
// first, optionally filtered to one status_category (e.g. "blocked"). Used
// by the 1:1 prep tool (spec.md §4.7's prep tools) to assemble blocked-item
// and recent-activity summaries.
func (s *Store) ListTasksByAssignee(ctx context.Context, employeeID, statusCategory string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.Execute(ctx, `
		SELECT id, source, external_key, project_id, title, description, status, status_category,
		       priority, reporter_employee_id, assignee_employee_id, created_at_source,
		       updated_at_source, due_date, estimate_points, labels
		FROM tasks
		WHERE assignee_employee_id = $1 AND ($2 = '' OR status_category = $2)
		ORDER BY updated_at_source DESC
		LIMIT $3`, employeeID, statusCategory, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Source, &t.ExternalKey, &t.ProjectID, &t.Title, &t.Description,
			&t.Status, &t.StatusCategory, &t.Priority, &t.ReporterEmployeeID, &t.AssigneeEmployeeID,
			&t.CreatedAtSource, &t.UpdatedAtSource, &t.DueDate, &t.EstimatePoints, &t.Labels); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan task row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	rows, err := s.Execute(ctx, `
		SELECT id, name, description, status, priority, target_date,
		       COALESCE(code_repo_slug, ''), COALESCE(issue_tracker_key, '')
		FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, errs.New(errs.NotFound, "project not found")
	}
	var p Project
	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Priority, &p.TargetDate, &p.CodeRepoSlug, &p.IssueTrackerKey); err != nil {
		return nil, errs.Wrap(errs.Internal, "scan project row", err)
	}
	return &p, rows.Err()
}

// ListProjects lists projects, optionally filtered by status/priority.
func (s *Store) ListProjects(ctx context.Context, status, priority string, limit int) ([]Project, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := `SELECT id, name, description, status, priority, target_date,
	          COALESCE(code_repo_slug, ''), COALESCE(issue_tracker_key, '')
	          FROM projects WHERE ($1 = '' OR status = $1) AND ($2 = '' OR priority = $2)
	          ORDER BY name LIMIT $3`
	rows, err := s.Execute(ctx, query, status, priority, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Priority, &p.TargetDate, &p.CodeRepoSlug, &p.IssueTrackerKey); err != nil {
			return nil, errs.Wrap(errs.Internal, "scan project row", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Team mirrors spec.md §3's Team entity.
type Team struct {
	ID       string
	Name     string
	LeadID   string
	Division string
}

// GetTeam resolves a team by id or name (ILIKE partial match), matching the
// same id-then-name precedence as GetEmployee.
func (s *Store) GetTeam(ctx context.Context, id, name string) (*Team, error) {
	var query, arg string
	switch {
	case id != "":
		query = `SELECT id, name, COALESCE(lead_employee_id, ''), COALESCE(division, '') FROM teams WHERE id = $1`
		arg = id
	case name != "":
		query = `SELECT id, name, COALESCE(lead_employee_id, ''), COALESCE(division, '') FROM teams WHERE name ILIKE $1`
		arg = "%" + name + "%"
	default:
		return nil, errs.New(errs.InvalidInput, "must provide team_id or name")
	}

	rows, err := s.Execute(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, errs.New(errs.NotFound, "team not found")
	}
	var t Team
	if err := rows.Scan(&t.ID, &t.Name, &t.LeadID, &t.Division); err != nil {
		return nil, errs.Wrap(errs.Internal, "scan team row", err)
	}
	return &t, rows.Err()
}

// ResolveEmployeeID resolves an external actor id to an employee UUID via
// identity_mappings, falling back to a case-insensitive email substring
// match. Returns "" (never an error) when both miss — invariant: never
// invent an actor (spec.md §4.3).
func (s *Store) ResolveEmployeeID(ctx context.Context, source, externalID string) (string, error) {
	if externalID == "" {
		return "", nil
	}
	rows, err := s.Execute(ctx, `
		SELECT employee_id FROM identity_mappings
		WHERE source = $1 AND (external_id = $2 OR external_username = $2) LIMIT 1`, source, externalID)
	if err != nil {
		return "", err
	}
	var id string
	if rows.Next() {
		_ = rows.Scan(&id)
	}
	rows.Close()
	if id != "" {
		return id, nil
	}

	rows, err = s.Execute(ctx, `SELECT id FROM employees WHERE email ILIKE $1 LIMIT 1`, "%"+externalID+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if rows.Next() {
		_ = rows.Scan(&id)
	}
	return id, rows.Err()
}

// ResolveProjectID resolves a project key (issue-tracker key, code-repo
// slug, or name substring) to a project UUID.
func (s *Store) ResolveProjectID(ctx context.Context, projectKey string) (string, error) {
	if projectKey == "" {
		return "", nil
	}
	rows, err := s.Execute(ctx, `
		SELECT id FROM projects
		WHERE issue_tracker_key = $1 OR code_repo_slug ILIKE $2 OR name ILIKE $2
		LIMIT 1`, projectKey, "%"+projectKey+"%")
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
