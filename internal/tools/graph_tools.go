package tools

import (
	"context"
	"encoding/json"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/store/graph"
)

// RegisterGraphTools adds the "Graph reads" group of spec.md §4.7:
// get_collaborators, get_team_collaboration_graph, find_knowledge_experts.
// Grounded on original_source/agents/tools/neo4j_tools.py.
func RegisterGraphTools(r *Registry, store *graph.Store) {
	r.MustRegister(Tool{
		Name:        "get_collaborators",
		Description: "List a developer's collaborators ordered by collaboration weight.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"email": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 100}
			},
			"required": ["email"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Email string `json:"email"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_collaborators params", err)
			}
			return store.GetCollaborators(ctx, in.Email, in.Limit)
		},
	})

	r.MustRegister(Tool{
		Name:        "get_team_collaboration_graph",
		Description: "Return the collaboration edges within a team.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"team_id": {"type": "string"}},
			"required": ["team_id"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				TeamID string `json:"team_id"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_team_collaboration_graph params", err)
			}
			return store.GetTeamCollaborationGraph(ctx, in.TeamID)
		},
	})

	r.MustRegister(Tool{
		Name:        "find_knowledge_experts",
		Description: "Find developers with the strongest expertise signal for a topic, scored by skill/contribution/collaboration graph edges.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"topic": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["topic"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Topic string `json:"topic"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode find_knowledge_experts params", err)
			}
			return store.FindKnowledgeExperts(ctx, in.Topic, in.Limit)
		},
	})
}
