package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/graphrag"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/pipelines"
	"github.com/engintel/platform/internal/rag"
	"github.com/engintel/platform/internal/store/graph"
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string, kind embedding.Kind) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}

type stubSearcher struct{ docs []relational.SimilarDoc }

func (s stubSearcher) SearchSimilar(ctx context.Context, vector []float32, embeddingType string, k int) ([]relational.SimilarDoc, error) {
	return s.docs, nil
}

type stubEmployees struct{ byID map[string]*relational.Employee }

func (s stubEmployees) GetEmployee(ctx context.Context, id, email, name string) (*relational.Employee, error) {
	if emp, ok := s.byID[id]; ok {
		return emp, nil
	}
	return nil, errNoSuchEmployee{}
}

type errNoSuchEmployee struct{}

func (errNoSuchEmployee) Error() string { return "no such employee" }

type stubGraphExperts struct{ candidates []graph.ExpertCandidate }

func (s stubGraphExperts) FindKnowledgeExperts(ctx context.Context, topic string, limit int) ([]graph.ExpertCandidate, error) {
	return s.candidates, nil
}

type stubLLM struct{ reply string }

func (s stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Content: []llm.Message{{Content: s.reply}}}, nil
}

func (s stubLLM) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

type stubEventQuerier struct{ events []tsdb.Event }

func (s stubEventQuerier) QueryEvents(ctx context.Context, f tsdb.QueryEventsFilter) ([]tsdb.Event, error) {
	return s.events, nil
}

type stubPrepEmployeeFinder struct {
	emp      *relational.Employee
	workload *relational.Workload
}

func (s stubPrepEmployeeFinder) GetEmployee(ctx context.Context, id, email, name string) (*relational.Employee, error) {
	return s.emp, nil
}
func (s stubPrepEmployeeFinder) GetDeveloperWorkload(ctx context.Context, employeeID string) (*relational.Workload, error) {
	return s.workload, nil
}
func (s stubPrepEmployeeFinder) ListTasksByAssignee(ctx context.Context, employeeID, statusCategory string, limit int) ([]relational.Task, error) {
	return nil, nil
}

type stubActivityReader struct{}

func (stubActivityReader) GetDeveloperActivity(ctx context.Context, actorID string, days int) (*tsdb.DeveloperActivity, error) {
	return &tsdb.DeveloperActivity{ActorID: actorID}, nil
}

type stubWindowReader struct{}

func (stubWindowReader) WindowMetrics(ctx context.Context, projectID string, from, to time.Time) (tsdb.WindowCounts, error) {
	return tsdb.WindowCounts{}, nil
}

func TestRegisterPipelineTools_WiresAllSeven(t *testing.T) {
	t.Parallel()
	ragPipeline := rag.New(stubEmbedder{}, stubSearcher{}, stubLLM{reply: "yes"}, stubLLM{reply: "answer"}, "")
	graphRAG := graphrag.New(stubEmbedder{}, stubSearcher{}, stubEmployees{byID: map[string]*relational.Employee{}}, stubGraphExperts{}, stubLLM{reply: "explanation"})
	nlQuery := pipelines.NewNLQueryPipeline(stubEventQuerier{}, stubLLM{reply: `{"event_type":"commit"}`})
	prep := pipelines.NewPrepPipeline(stubPrepEmployeeFinder{emp: &relational.Employee{ID: "e1", FullName: "Alice"}, workload: &relational.Workload{}}, stubActivityReader{}, stubLLM{reply: "summary"})

	r := NewRegistry()
	RegisterPipelineTools(r, ragPipeline, graphRAG, nlQuery, prep, stubWindowReader{})

	// quick_expert_search re-enters the registry to call find_developer_by_skills,
	// which RegisterVectorTools would register against a real *relational.Store
	// and *embedding.Client in production wiring — not exercised here since both
	// are concrete store types unavailable without a live database.
	for _, name := range []string{"rag_search", "find_expert_for_topic", "quick_expert_search", "natural_language_query", "prepare_one_on_one", "suggest_talking_points", "detect_anomalies"} {
		require.True(t, r.Has(name), "expected tool %s to be registered", name)
	}

	_, err := r.Call(context.Background(), "detect_anomalies", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = r.Call(context.Background(), "prepare_one_on_one", json.RawMessage(`{"developer_name":"Alice"}`))
	require.NoError(t, err)
}
