package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/agent/memory"
	"github.com/engintel/platform/internal/agent/memory/inmem"
	"github.com/engintel/platform/internal/agent/specialist"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/modelrouter"
	"github.com/engintel/platform/internal/pipelines"
	"github.com/engintel/platform/internal/store/tsdb"
	"github.com/engintel/platform/internal/tools"
)

type fixedRouter struct {
	selection modelrouter.ModelSelection
}

func (r fixedRouter) RouteQuery(_ context.Context, query string) modelrouter.ModelSelection {
	sel := r.selection
	sel.TaskType = modelrouter.Classify(query)
	return sel
}

type scriptedClient struct {
	responses []llm.Response
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	r := c.responses[c.calls]
	if c.calls < len(c.responses)-1 {
		c.calls++
	}
	return r, nil
}

func (c *scriptedClient) Stream(_ context.Context, _ llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

type fakeEventQuerier struct{}

func (fakeEventQuerier) QueryEvents(_ context.Context, _ tsdb.QueryEventsFilter) ([]tsdb.Event, error) {
	return []tsdb.Event{{Source: "github", EventType: "commit", ActorID: "alice"}}, nil
}

func baseDeps(t *testing.T, client *scriptedClient) (Dependencies, *inmem.Store) {
	t.Helper()
	store := inmem.New()
	reg := tools.NewRegistry()
	nlClient := &scriptedClient{responses: []llm.Response{
		{Content: []llm.Message{{Content: `{"event_type":"commit","days_back":7}`}}},
		{Content: []llm.Message{{Content: "summary text"}}},
	}}
	return Dependencies{
		Router: fixedRouter{selection: modelrouter.ModelSelection{
			Provider: "anthropic", ModelName: "claude-x", Temperature: 0.2,
		}},
		Clients: Clients{"anthropic": client},
		Tools:   reg,
		Memory:  store,
		NLQuery: pipelines.NewNLQueryPipeline(fakeEventQuerier{}, nlClient),
	}, store
}

func TestRun_RoutesAnalyticsToDORASpecialist(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{
		{Content: []llm.Message{{Role: "assistant", Content: "velocity is steady"}}},
	}}
	deps, store := baseDeps(t, client)

	out, err := Run(context.Background(), deps, Input{
		ThreadID: "t1",
		Message:  "What is our deployment frequency trend?",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, modelrouter.TaskAnalytics, out.TaskType)
	require.Equal(t, specialist.DORA, out.Specialist)
	require.Equal(t, "velocity is steady", out.FinalText)

	th, err := store.LoadThread(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, th.Messages, 2)
	require.Equal(t, memory.RoleUser, th.Messages[0].Role)
	require.Equal(t, memory.RoleAssistant, th.Messages[1].Role)
	require.Equal(t, "claude-x", th.Messages[1].ModelUsed)
}

func TestRun_RoutesPlanningToResourceSpecialist(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{
		{Content: []llm.Message{{Role: "assistant", Content: "rebalance plan ready"}}},
	}}
	deps, _ := baseDeps(t, client)

	out, err := Run(context.Background(), deps, Input{
		ThreadID: "t2",
		Message:  "Who is overallocated and how should we rebalance?",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, specialist.Resource, out.Specialist)
}

func TestRun_RoutesCodeAnalysisToNLQueryPipeline(t *testing.T) {
	t.Parallel()
	deps, _ := baseDeps(t, &scriptedClient{responses: []llm.Response{{}}})

	out, err := Run(context.Background(), deps, Input{
		ThreadID: "t3",
		Message:  "Write a SQL query to find the commit count per actor",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, modelrouter.TaskCodeAnalysis, out.TaskType)
	require.Equal(t, specialist.ID(""), out.Specialist)
	require.Equal(t, "summary text", out.FinalText)
}

func TestRun_ClassifiesBeforeMergingThreadHistory(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{
		{Content: []llm.Message{{Role: "assistant", Content: "answer"}}},
	}}
	deps, store := baseDeps(t, client)

	// Seed prior thread history containing analytics-flavored content; the
	// new message alone is a plain quick-lookup question and must route
	// accordingly regardless of what came before.
	require.NoError(t, store.AppendMessages(context.Background(), "t4", "prior",
		memory.Message{Role: memory.RoleUser, Content: "What is our deployment frequency trend?"},
		memory.Message{Role: memory.RoleAssistant, Content: "steady"},
	))

	out, err := Run(context.Background(), deps, Input{
		ThreadID: "t4",
		Message:  "Who is Alice?",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, modelrouter.TaskQuickLookup, out.TaskType)
	require.Equal(t, specialist.Insights, out.Specialist)
}

func TestRun_LeavesThreadUntouchedOnSpecialistFailure(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{{}}}
	deps, store := baseDeps(t, client)
	deps.Clients = Clients{} // no client registered for "anthropic" -> forces failure

	_, err := Run(context.Background(), deps, Input{
		ThreadID: "t5",
		Message:  "Who is overallocated?",
	}, nil)
	require.Error(t, err)

	th, loadErr := store.LoadThread(context.Background(), "t5")
	require.NoError(t, loadErr)
	require.Empty(t, th.Messages)
}

func TestRun_RejectsEmptyMessage(t *testing.T) {
	t.Parallel()
	deps, _ := baseDeps(t, &scriptedClient{responses: []llm.Response{{}}})
	_, err := Run(context.Background(), deps, Input{ThreadID: "t6", Message: "   "}, nil)
	require.Error(t, err)
}
