package tools

import (
	"context"
	"encoding/json"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/store/relational"
)

// RegisterRelationalTools adds the "Relational reads" group of spec.md
// §4.7: get_developer, list_developers, get_project, list_projects,
// get_team, get_developer_workload. Grounded on
// original_source/agents/tools/postgres_tools.py's StructuredTool set.
func RegisterRelationalTools(r *Registry, store *relational.Store) {
	r.MustRegister(Tool{
		Name:        "get_developer",
		Description: "Look up a single developer by exactly one of id, email, or name.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"developer_id": {"type": "string"},
				"email": {"type": "string"},
				"name": {"type": "string"}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				DeveloperID string `json:"developer_id"`
				Email       string `json:"email"`
				Name        string `json:"name"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_developer params", err)
			}
			return store.GetEmployee(ctx, in.DeveloperID, in.Email, in.Name)
		},
	})

	r.MustRegister(Tool{
		Name:        "list_developers",
		Description: "List active developers, optionally filtered by team name and/or role. Capped at 200 results.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"team": {"type": "string"},
				"role": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 200}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Team  string `json:"team"`
				Role  string `json:"role"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode list_developers params", err)
			}
			return store.ListEmployees(ctx, in.Team, in.Role, in.Limit)
		},
	})

	r.MustRegister(Tool{
		Name:        "get_project",
		Description: "Look up a single project by id.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"project_id": {"type": "string"}},
			"required": ["project_id"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				ProjectID string `json:"project_id"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_project params", err)
			}
			return store.GetProject(ctx, in.ProjectID)
		},
	})

	r.MustRegister(Tool{
		Name:        "list_projects",
		Description: "List projects, optionally filtered by status and/or priority.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {"type": "string"},
				"priority": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 200}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Status   string `json:"status"`
				Priority string `json:"priority"`
				Limit    int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode list_projects params", err)
			}
			return store.ListProjects(ctx, in.Status, in.Priority, in.Limit)
		},
	})

	r.MustRegister(Tool{
		Name:        "get_team",
		Description: "Look up a single team by id or name.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"team_id": {"type": "string"},
				"name": {"type": "string"}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				TeamID string `json:"team_id"`
				Name   string `json:"name"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_team params", err)
			}
			return store.GetTeam(ctx, in.TeamID, in.Name)
		},
	})

	r.MustRegister(Tool{
		Name:        "get_developer_workload",
		Description: "Compute a developer's total allocation across active projects, overallocation flag, and available capacity.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"developer_id": {"type": "string"}},
			"required": ["developer_id"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				DeveloperID string `json:"developer_id"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_developer_workload params", err)
			}
			return store.GetDeveloperWorkload(ctx, in.DeveloperID)
		},
	})
}
