package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/events/normalize"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
	lastIn  []string
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string, _ embedding.Kind) ([][]float32, error) {
	e.calls++
	e.lastIn = texts
	if e.err != nil {
		return nil, e.err
	}
	return e.vectors, nil
}

type fakeEmbeddingStore struct {
	calls         int
	embeddingType string
	sourceID      string
	title         string
	content       string
	err           error
}

func (s *fakeEmbeddingStore) UpsertEmbedding(_ context.Context, _, embeddingType, sourceID, _, title, content string, _ map[string]any, _ []float32) error {
	s.calls++
	s.embeddingType = embeddingType
	s.sourceID = sourceID
	s.title = title
	s.content = content
	return s.err
}

func prEvent(t *testing.T, title, body string) normalize.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"pull_request": map[string]any{"title": title, "body": body},
	})
	require.NoError(t, err)
	return normalize.Event{
		EventID:    "evt-pr-1",
		Source:     normalize.SourceCodeHost,
		EntityType: "pull_request",
		EntityID:   "pr-42",
		Metadata:   payload,
	}
}

func TestEmbedFanout_NilDependencies_NoOp(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	p.embedFanout(context.Background(), prEvent(t, "Add retries", "Because flaky upstream"))
	// No embed/embedStore wired: nothing to assert beyond "did not panic".
}

func TestEmbedFanout_StructuralEventWithNoDurableText_SkipsEmbed(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	embed := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}}
	store := &fakeEmbeddingStore{}
	p.embed = embed
	p.embedStore = store

	ev := normalize.Event{
		EventID:    "evt-push-1",
		Source:     normalize.SourceCodeHost,
		EntityType: "push",
		EntityID:   "sha-1",
	}
	p.embedFanout(context.Background(), ev)

	require.Zero(t, embed.calls)
	require.Zero(t, store.calls)
}

func TestEmbedFanout_DurableText_UpsertsVector(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	embed := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	store := &fakeEmbeddingStore{}
	p.embed = embed
	p.embedStore = store

	ev := prEvent(t, "Add retries", "Because flaky upstream")
	p.embedFanout(context.Background(), ev)

	require.Equal(t, 1, embed.calls)
	require.Equal(t, []string{"Because flaky upstream"}, embed.lastIn)
	require.Equal(t, 1, store.calls)
	require.Equal(t, "code-host_pull_request", store.embeddingType)
	require.Equal(t, "pr-42", store.sourceID)
	require.Equal(t, "Add retries", store.title)
	require.Equal(t, "Because flaky upstream", store.content)
}

func TestEmbedFanout_EmbedError_SwallowedNotRetried(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	embed := &fakeEmbedder{err: context.DeadlineExceeded}
	store := &fakeEmbeddingStore{}
	p.embed = embed
	p.embedStore = store

	require.NotPanics(t, func() {
		p.embedFanout(context.Background(), prEvent(t, "t", "c"))
	})
	require.Zero(t, store.calls)
}
