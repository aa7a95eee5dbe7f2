package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/graphrag"
	"github.com/engintel/platform/internal/pipelines"
	"github.com/engintel/platform/internal/rag"
)

// RegisterPipelineTools adds the "Pipeline invocations" group of spec.md
// §4.7: rag_search, find_expert_for_topic, quick_expert_search,
// natural_language_query, prepare_one_on_one, suggest_talking_points,
// detect_anomalies. Deferred until the C8/C9/supplemented pipelines exist,
// hence its own file separate from the other RegisterXTools functions.
func RegisterPipelineTools(r *Registry, ragPipeline *rag.Pipeline, graphRAG *graphrag.Pipeline, nlQuery *pipelines.NLQueryPipeline, prep *pipelines.PrepPipeline, anomalyStore pipelines.WindowMetricsReader) {
	r.MustRegister(Tool{
		Name:        "rag_search",
		Description: "Answer a complex question about developers, projects, or skills using self-reflective retrieval-augmented generation.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"question":{"type":"string"}},"required":["question"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Question string `json:"question"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode rag_search params", err)
			}
			return ragPipeline.Answer(ctx, in.Question)
		},
	})

	r.MustRegister(Tool{
		Name:        "find_expert_for_topic",
		Description: "Find the best expert for a topic using Graph RAG (vector similarity + knowledge graph fusion + LLM explanation).",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer","minimum":1,"maximum":50}},"required":["query"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Query string `json:"query"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode find_expert_for_topic params", err)
			}
			return graphRAG.FindExpert(ctx, in.Query, in.Limit)
		},
	})

	r.MustRegister(Tool{
		Name:        "quick_expert_search",
		Description: "Fast skill-based expert search using vector similarity only, skipping graph traversal and LLM synthesis.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"skills":{"type":"string"},"limit":{"type":"integer","minimum":1,"maximum":50}},"required":["skills"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Skills string `json:"skills"`
				Limit  int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode quick_expert_search params", err)
			}
			// Re-enter the registry so this stays a thin wrapper over the
			// already-registered find_developer_by_skills vector tool,
			// mirroring graph_rag_tools.py's quick_expert_search delegating
			// to vector_tools.find_developer_by_skills.
			args := map[string]any{"skills_description": in.Skills}
			if in.Limit > 0 {
				args["limit"] = in.Limit
			}
			payload, _ := json.Marshal(args)
			return r.Call(ctx, "find_developer_by_skills", payload)
		},
	})

	r.MustRegister(Tool{
		Name:        "natural_language_query",
		Description: "Translate a natural-language question into a time-series event query, execute it, and summarize the results.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"question":{"type":"string"}},"required":["question"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Question string `json:"question"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode natural_language_query params", err)
			}
			return nlQuery.Run(ctx, in.Question)
		},
	})

	r.MustRegister(Tool{
		Name:        "prepare_one_on_one",
		Description: "Prepare a 1:1 meeting briefing for a developer: workload, recent activity, blocked items, and talking points.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"developer_name":{"type":"string"},"manager_context":{"type":"string"}},"required":["developer_name"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				DeveloperName  string `json:"developer_name"`
				ManagerContext string `json:"manager_context"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode prepare_one_on_one params", err)
			}
			return prep.PrepareOneOnOne(ctx, in.DeveloperName, in.ManagerContext)
		},
	})

	r.MustRegister(Tool{
		Name:        "suggest_talking_points",
		Description: "Derive a short bullet list of 1:1 talking points for a developer without a full briefing synthesis.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"developer_name":{"type":"string"}},"required":["developer_name"]}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				DeveloperName string `json:"developer_name"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode suggest_talking_points params", err)
			}
			return prep.SuggestTalkingPoints(ctx, in.DeveloperName)
		},
	})

	r.MustRegister(Tool{
		Name:        "detect_anomalies",
		Description: "Compare current engineering metrics against a historical baseline and flag statistically significant deviations.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_id": {"type": "string"},
				"days_current": {"type": "integer", "minimum": 1},
				"days_baseline": {"type": "integer", "minimum": 1}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				ProjectID    string `json:"project_id"`
				DaysCurrent  int    `json:"days_current"`
				DaysBaseline int    `json:"days_baseline"`
			}
			if len(params) > 0 {
				if err := json.Unmarshal(params, &in); err != nil {
					return nil, errs.Wrap(errs.InvalidInput, "decode detect_anomalies params", err)
				}
			}
			return pipelines.DetectAnomalies(ctx, anomalyStore, in.ProjectID, in.DaysCurrent, in.DaysBaseline, time.Now())
		},
	})
}
