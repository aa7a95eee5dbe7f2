package pipelines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/store/tsdb"
)

type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	i := s.calls
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	s.calls++
	return llm.Response{Content: []llm.Message{{Content: s.replies[i]}}}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

type fakeEventQuerier struct {
	events []tsdb.Event
}

func (f fakeEventQuerier) QueryEvents(ctx context.Context, filt tsdb.QueryEventsFilter) ([]tsdb.Event, error) {
	return f.events, nil
}

func TestNLQueryPipeline_Run(t *testing.T) {
	t.Parallel()
	events := fakeEventQuerier{events: []tsdb.Event{
		{Source: "github", EventType: "commit", ActorID: "alice", ProjectID: "proj-1"},
	}}
	model := &scriptedLLM{replies: []string{`{"event_type":"commit","days_back":7}`, "One commit was made by alice."}}
	p := NewNLQueryPipeline(events, model)

	result, err := p.Run(context.Background(), "How many commits did alice make?")
	require.NoError(t, err)
	require.Equal(t, 1, result.ResultCount)
	require.Equal(t, "commit", result.GeneratedQuery.EventType)
	require.Contains(t, result.Summary, "alice")
}

func TestNLQueryPipeline_EmptyQuestion(t *testing.T) {
	t.Parallel()
	p := NewNLQueryPipeline(fakeEventQuerier{}, &scriptedLLM{})
	_, err := p.Run(context.Background(), "")
	require.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()
	require.Equal(t, `{"a":1}`, extractJSON(`here you go: {"a":1} thanks`))
	require.Equal(t, "{}", extractJSON("no json here"))
}
