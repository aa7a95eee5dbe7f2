package tools

import (
	"context"
	"encoding/json"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/store/tsdb"
)

// RegisterTimeSeriesTools adds the "Time-series reads" group of spec.md
// §4.7: query_events, get_deployment_metrics, get_developer_activity.
// Grounded on original_source/agents/tools/clickhouse_tools.py.
func RegisterTimeSeriesTools(r *Registry, store *tsdb.Store) {
	r.MustRegister(Tool{
		Name:        "query_events",
		Description: "Query raw events from the time-series log, filtered by type/actor/project/source within a day window.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"event_type": {"type": "string"},
				"actor_id": {"type": "string"},
				"project_id": {"type": "string"},
				"source": {"type": "string"},
				"days_back": {"type": "integer", "minimum": 1},
				"limit": {"type": "integer", "minimum": 1, "maximum": 1000}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var f tsdb.QueryEventsFilter
			if err := json.Unmarshal(params, &f); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode query_events params", err)
			}
			return store.QueryEvents(ctx, f)
		},
	})

	r.MustRegister(Tool{
		Name:        "get_deployment_metrics",
		Description: "Compute DORA deployment metrics (deployment frequency, change failure rate, lead time) for a project or every project over a day window.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_id": {"type": "string"},
				"days": {"type": "integer", "minimum": 1}
			}
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				ProjectID string `json:"project_id"`
				Days      int    `json:"days"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_deployment_metrics params", err)
			}
			return store.GetDeploymentMetrics(ctx, in.ProjectID, in.Days)
		},
	})

	r.MustRegister(Tool{
		Name:        "get_developer_activity",
		Description: "Aggregate one developer's commit/PR/review/issue-closed counts over a day window.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"actor_id": {"type": "string"},
				"days": {"type": "integer", "minimum": 1}
			},
			"required": ["actor_id"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				ActorID string `json:"actor_id"`
				Days    int    `json:"days"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode get_developer_activity params", err)
			}
			return store.GetDeveloperActivity(ctx, in.ActorID, in.Days)
		},
	})
}
