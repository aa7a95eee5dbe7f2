package modelrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/config"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		query string
		want  TaskType
	}{
		{"sql query", "Generate a SQL query to find overdue projects", TaskCodeAnalysis},
		{"cypher query", "Write a Cypher query for the collaboration graph", TaskCodeAnalysis},
		{"ci/cd failure", "The CI/CD pipeline is failing on staging", TaskCodeAnalysis},
		{"dora metrics", "What are the DORA metrics for the API Gateway project?", TaskAnalytics},
		{"deployment frequency", "Show me deployment frequency trends for last month", TaskAnalytics},
		{"change failure rate", "Which project has the highest change failure rate?", TaskAnalytics},
		{"developer activity", "Show developer activity for last week", TaskAnalytics},
		{"anomaly detection", "Are there any anomalies in commit volume?", TaskAnalytics},
		{"overallocation", "Which developers are overallocated and need rebalancing?", TaskPlanning},
		{"resource planning", "Help me plan resource allocation for Q4", TaskPlanning},
		{"team capacity", "What's the capacity of the platform team?", TaskPlanning},
		{"staffing recommendation", "Recommend staffing changes for at-risk projects", TaskPlanning},
		{"who is x", "Who is Priya Sharma?", TaskQuickLookup},
		{"list developers", "List all developers on the backend team", TaskQuickLookup},
		{"find developer skills", "Find me a developer with Kubernetes expertise", TaskQuickLookup},
		{"collaboration query", "Who collaborates with Alex on the data pipeline?", TaskQuickLookup},
		{"greeting", "Hello, how are you?", TaskGeneral},
		{"thanks", "Thanks for the help!", TaskGeneral},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.query))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()
	q := "What are the DORA metrics for the Mobile App?"
	require.Equal(t, Classify(q), Classify(q))
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		CodeAnalysis: config.ModelProfile{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.1},
		Analytics:    config.ModelProfile{Provider: "openai", Model: "gpt-4o", Temperature: 0.2},
		Planning:     config.ModelProfile{Provider: "anthropic", Model: "claude-opus-4", Temperature: 0.3},
		QuickLookup:  config.ModelProfile{Provider: "bedrock", Model: "anthropic.claude-haiku", Temperature: 0.0},
		General:      config.ModelProfile{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.2},
	}
}

func TestRouter_Select(t *testing.T) {
	t.Parallel()
	r := New(testLLMConfig())

	sel := r.Select(TaskAnalytics)
	require.Equal(t, "openai", sel.Provider)
	require.Equal(t, "📊", sel.Emoji)
	require.NotEmpty(t, sel.Reason)
	require.InDelta(t, 0.2, sel.Temperature, 0.001)
}

func TestRouter_RouteQuery(t *testing.T) {
	t.Parallel()
	r := New(testLLMConfig())

	sel := r.RouteQuery("Generate SQL for top-performing developers")
	require.Equal(t, TaskCodeAnalysis, sel.TaskType)
	require.Equal(t, "💻", sel.Emoji)

	sel = r.RouteQuery("Who is the frontend lead?")
	require.Equal(t, TaskQuickLookup, sel.TaskType)
	require.Equal(t, "⚡", sel.Emoji)

	sel = r.RouteQuery("Plan the resource allocation for next sprint, considering deadlines and risks")
	require.Equal(t, TaskPlanning, sel.TaskType)
	require.Equal(t, "🧠", sel.Emoji)
}

func TestRouter_Select_TemperatureNeverOverridden(t *testing.T) {
	t.Parallel()
	r := New(testLLMConfig())
	sel := r.Select(TaskQuickLookup)
	require.InDelta(t, 0.0, sel.Temperature, 0.001)
}

type fakeResultCache struct {
	store map[string]string
	gets  int
	sets  int
}

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{store: make(map[string]string)}
}

func (c *fakeResultCache) GetString(ctx context.Context, key string) (string, bool, error) {
	c.gets++
	v, ok := c.store[key]
	return v, ok, nil
}

func (c *fakeResultCache) SetString(ctx context.Context, key, value string) error {
	c.sets++
	c.store[key] = value
	return nil
}

func TestCachingRouter_CachesAfterFirstCall(t *testing.T) {
	t.Parallel()
	cache := newFakeResultCache()
	cr := NewCachingRouter(New(testLLMConfig()), cache)

	first := cr.RouteQuery(context.Background(), "Who is the frontend lead?")
	require.Equal(t, TaskQuickLookup, first.TaskType)
	require.Equal(t, 1, cache.sets)

	second := cr.RouteQuery(context.Background(), "Who is the frontend lead?")
	require.Equal(t, first, second)
	require.Equal(t, 1, cache.sets, "second call should be served from cache, not recomputed")
}

func TestCachingRouter_NilCacheDegradesGracefully(t *testing.T) {
	t.Parallel()
	cr := NewCachingRouter(New(testLLMConfig()), nil)
	sel := cr.RouteQuery(context.Background(), "Generate SQL for top-performing developers")
	require.Equal(t, TaskCodeAnalysis, sel.TaskType)
}
