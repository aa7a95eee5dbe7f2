package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/store/relational"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, kind embedding.Kind) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeSearcher struct {
	docs []relational.SimilarDoc
}

func (f *fakeSearcher) SearchSimilar(ctx context.Context, vector []float32, embeddingType string, k int) ([]relational.SimilarDoc, error) {
	return f.docs, nil
}

// scriptedLLM returns one canned reply per call, in order, then repeats the
// last reply for any further calls.
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
	return llm.Response{Content: []llm.Message{{Role: "assistant", Content: s.replies[i]}}}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func TestPipeline_Answer_RelevantFirstTry(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{docs: []relational.SimilarDoc{
		{SourceID: "dev-1", Title: "Profile", Content: "Alice works on Kubernetes infrastructure.", Similarity: 0.9},
	}}
	fast := &scriptedLLM{replies: []string{"yes", "yes"}} // grade=yes, hallucination_check(not-hallucinated)=yes
	strong := &scriptedLLM{replies: []string{"Alice is a Kubernetes expert."}}

	p := New(&fakeEmbedder{}, searcher, fast, strong, "developer_profile")
	result, err := p.Answer(context.Background(), "Who knows Kubernetes?")
	require.NoError(t, err)
	require.Equal(t, StatusDone, result.Status)
	require.Equal(t, 0, result.RetryCount)
	require.False(t, result.IsHallucinated)
	require.Len(t, result.RelevantDocs, 1)
	require.Contains(t, result.Answer, "Kubernetes")
}

func TestPipeline_Answer_NoRelevantDocsExhaustsRetries(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{docs: []relational.SimilarDoc{
		{SourceID: "dev-2", Title: "Profile", Content: "Bob works on unrelated topics.", Similarity: 0.2},
	}}
	fast := &scriptedLLM{replies: []string{"no", "no", "no"}} // grade=no every retrieve
	strong := &scriptedLLM{replies: []string{"unused"}}

	p := New(&fakeEmbedder{}, searcher, fast, strong, "developer_profile")
	result, err := p.Answer(context.Background(), "Who knows quantum computing?")
	require.NoError(t, err)
	require.Equal(t, StatusNoContext, result.Status)
	require.Equal(t, MaxRetries, result.RetryCount)
	require.Empty(t, result.RelevantDocs)
}

func TestPipeline_Answer_HallucinationDetectedThenResolved(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{docs: []relational.SimilarDoc{
		{SourceID: "dev-3", Title: "Profile", Content: "Carol contributes to the billing service.", Similarity: 0.8},
	}}
	// grade=yes, hallucination_check=no (hallucinated) -> rewrite -> grade=yes, hallucination_check=yes
	fast := &scriptedLLM{replies: []string{"yes", "no", "rewritten query", "yes", "yes"}}
	strong := &scriptedLLM{replies: []string{"Carol invented the billing service single-handedly.", "Carol contributes to the billing service."}}

	p := New(&fakeEmbedder{}, searcher, fast, strong, "developer_profile")
	result, err := p.Answer(context.Background(), "Who built the billing service?")
	require.NoError(t, err)
	require.Equal(t, StatusDone, result.Status)
	require.False(t, result.IsHallucinated)
	require.Equal(t, 1, result.RetryCount)
}

func TestPipeline_Answer_EmptyQuestion(t *testing.T) {
	t.Parallel()
	p := New(&fakeEmbedder{}, &fakeSearcher{}, &scriptedLLM{}, &scriptedLLM{}, "")
	_, err := p.Answer(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestIsYes(t *testing.T) {
	t.Parallel()
	require.True(t, isYes("yes"))
	require.True(t, isYes("Yes, it is relevant."))
	require.False(t, isYes("no"))
	require.False(t, isYes(""))
}

func TestTruncateText(t *testing.T) {
	t.Parallel()
	require.Equal(t, "hello", truncateText("hello", 10))
	require.Equal(t, "hel...", truncateText("hello", 3))
}

func TestReplyText(t *testing.T) {
	t.Parallel()
	resp := llm.Response{Content: []llm.Message{{Content: "a"}, {Content: "b"}}}
	require.Equal(t, "ab", replyText(resp))
}

func TestRelevantOnly(t *testing.T) {
	t.Parallel()
	docs := []Doc{{Title: "a", Relevant: true}, {Title: "b", Relevant: false}}
	out := relevantOnly(docs)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Title)
}

func TestGrade_FailureTreatedAsNotRelevant(t *testing.T) {
	t.Parallel()
	p := New(&fakeEmbedder{}, &fakeSearcher{}, &erroringLLM{}, &erroringLLM{}, "")
	docs := p.grade(context.Background(), "q", []Doc{{Title: "x", Content: strings.Repeat("y", 5)}})
	require.False(t, docs[0].Relevant)
}

type erroringLLM struct{}

func (e *erroringLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{}, llm.ErrRateLimited
}

func (e *erroringLLM) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}
