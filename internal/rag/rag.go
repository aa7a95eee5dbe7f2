// Package rag implements the C8 self-reflective retrieval-augmented
// generation pipeline, grounded on
// original_source/agents/pipelines/rag_pipeline.py's graph:
//
//	START → retrieve → grade → [relevant?]
//	    ├── yes → generate → hallucination_check → [grounded?]
//	    │       ├── yes → END
//	    │       └── no  → rewrite → retrieve (loop)
//	    └── no  → rewrite → retrieve (loop)
//
// The LangGraph state machine becomes a plain bounded Go loop: there is no
// need for a graph-execution library when the graph is a fixed five-node
// cycle with one loop-back edge, so Pipeline.Answer just runs the nodes in
// order and branches with ordinary control flow.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
)

// MaxRetries bounds the retrieve→rewrite loop (spec.md §4.8: MAX_RETRIES=2).
const MaxRetries = 2

// TopK is the number of documents retrieved per attempt.
const TopK = 8

// Doc is one retrieved-and-graded document, spec.md §4.8's relevant_docs
// element.
type Doc struct {
	SourceID   string  `json:"source_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Relevant   bool    `json:"relevant"`
}

// Result is the C8 pipeline output (spec.md §4.8).
type Result struct {
	Answer         string `json:"answer"`
	RelevantDocs   []Doc  `json:"relevant_docs"`
	RetryCount     int    `json:"retry_count"`
	IsHallucinated bool   `json:"is_hallucinated"`
	Status         string `json:"status"`
}

const (
	StatusDone         = "done"
	StatusNoContext    = "no_context"
	StatusHallucinated = "hallucinated"
)

// Embedder is the subset of *embedding.Client the retrieve node needs,
// narrowed for testability.
type Embedder interface {
	Embed(ctx context.Context, texts []string, kind embedding.Kind) ([][]float32, error)
}

// VectorSearcher is the subset of *relational.Store the retrieve node needs.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, embeddingType string, k int) ([]relational.SimilarDoc, error)
}

// Pipeline wires the retrieve/grade/rewrite/generate/hallucination-check
// nodes to concrete collaborators: the embedding client for retrieve, a fast
// model for grade/rewrite/hallucination_check, and a stronger model for
// generate — mirroring _get_pipeline_llm's temperature=0 fast calls versus
// the dedicated generation call in rag_pipeline.py.
type Pipeline struct {
	embed  Embedder
	store  VectorSearcher
	fast   llm.Client
	strong llm.Client

	embeddingType string
}

// New builds a Pipeline. embeddingType scopes SearchSimilar to the corpus
// this pipeline answers over (empty string searches every embedding type).
func New(embed Embedder, store VectorSearcher, fast, strong llm.Client, embeddingType string) *Pipeline {
	return &Pipeline{embed: embed, store: store, fast: fast, strong: strong, embeddingType: embeddingType}
}

// Answer runs the bounded self-reflective RAG loop for question.
func (p *Pipeline) Answer(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyQuestion
	}

	ctx, done := logging.Phase(ctx, "rag_answer")
	var err error
	defer done(&err)

	currentQuery := question
	retries := 0

	for {
		docs, retrErr := p.retrieve(ctx, currentQuery)
		if retrErr != nil {
			err = retrErr
			return Result{}, err
		}

		graded := p.grade(ctx, question, docs)
		relevant := relevantOnly(graded)

		if len(relevant) == 0 {
			if retries >= MaxRetries {
				return Result{
					RelevantDocs: relevant,
					RetryCount:   retries,
					Status:       StatusNoContext,
					Answer:       "I don't have enough relevant context to answer that confidently.",
				}, nil
			}
			currentQuery = p.rewrite(ctx, question, currentQuery, graded)
			retries++
			continue
		}

		answer := p.generate(ctx, question, relevant)
		hallucinated := p.hallucinationCheck(ctx, answer, relevant)

		if !hallucinated {
			return Result{
				Answer:       answer,
				RelevantDocs: relevant,
				RetryCount:   retries,
				Status:       StatusDone,
			}, nil
		}

		if retries >= MaxRetries {
			return Result{
				Answer:         answer,
				RelevantDocs:   relevant,
				RetryCount:     retries,
				IsHallucinated: true,
				Status:         StatusHallucinated,
			}, nil
		}

		currentQuery = p.rewrite(ctx, question, currentQuery, relevant)
		retries++
	}
}

// retrieve embeds the current query (kind=query) and runs a k-NN search
// against the vector index (spec.md §4.8's retrieve node).
func (p *Pipeline) retrieve(ctx context.Context, query string) ([]Doc, error) {
	vectors, err := p.embed.Embed(ctx, []string{query}, embedding.KindQuery)
	if err != nil {
		return nil, err
	}
	hits, err := p.store.SearchSimilar(ctx, vectors[0], p.embeddingType, TopK)
	if err != nil {
		return nil, err
	}
	docs := make([]Doc, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, Doc{SourceID: h.SourceID, Title: h.Title, Content: h.Content, Similarity: h.Similarity})
	}
	return docs, nil
}

// grade asks a fast LLM to rate each retrieved document relevant/irrelevant
// to the question (spec.md §4.8's grade node).
func (p *Pipeline) grade(ctx context.Context, question string, docs []Doc) []Doc {
	for i := range docs {
		prompt := fmt.Sprintf(
			"Question: %s\n\nDocument (%s):\n%s\n\nIs this document relevant to answering the question? Reply with exactly one word: yes or no.",
			question, docs[i].Title, docs[i].Content)
		resp, err := p.fast.Complete(ctx, llm.Request{
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Temperature: 0,
			MaxTokens:   8,
		})
		if err != nil {
			// A grading failure is treated as "not relevant" rather than
			// aborting the pipeline — the loop will rewrite and retry.
			continue
		}
		docs[i].Relevant = isYes(replyText(resp))
	}
	return docs
}

// rewrite asks the fast model to reformulate the query using the question
// plus the snippets seen so far (spec.md §4.8's rewrite node).
func (p *Pipeline) rewrite(ctx context.Context, question, currentQuery string, docs []Doc) string {
	var snippets strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&snippets, "- %s: %s\n", d.Title, truncateText(d.Content, 200))
	}
	prompt := fmt.Sprintf(
		"Original question: %s\nCurrent search query: %s\nRetrieved snippets so far:\n%s\n"+
			"The retrieved snippets did not adequately answer the question. Rewrite the search query to "+
			"find better results. Reply with only the rewritten query, no explanation.",
		question, currentQuery, snippets.String())
	resp, err := p.fast.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		return currentQuery
	}
	rewritten := strings.TrimSpace(replyText(resp))
	if rewritten == "" {
		return currentQuery
	}
	return rewritten
}

// generate composes a grounded answer using only the relevant documents
// (spec.md §4.8's generate node), via the stronger model.
func (p *Pipeline) generate(ctx context.Context, question string, docs []Doc) string {
	var context_ strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&context_, "[%d] %s\n%s\n\n", i+1, d.Title, d.Content)
	}
	prompt := fmt.Sprintf(
		"Answer the question using only the context below. If the context does not contain the answer, say so honestly.\n\n"+
			"Context:\n%s\nQuestion: %s", context_.String(), question)
	resp, err := p.strong.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err != nil {
		return "I was unable to generate an answer due to an internal error."
	}
	return replyText(resp)
}

// hallucinationCheck asks the fast model to verify every factual claim in
// answer is supported by the retrieved snippets (spec.md §4.8's
// hallucination_check node).
func (p *Pipeline) hallucinationCheck(ctx context.Context, answer string, docs []Doc) bool {
	var snippets strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&snippets, "- %s\n", d.Content)
	}
	prompt := fmt.Sprintf(
		"Context snippets:\n%s\nAnswer to verify:\n%s\n\n"+
			"Is every factual claim in the answer supported by the context snippets? "+
			"Reply with exactly one word: yes or no.",
		snippets.String(), answer)
	resp, err := p.fast.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		// Fail closed: treat an unverifiable answer as potentially
		// hallucinated rather than silently trusting it.
		return true
	}
	return !isYes(replyText(resp))
}

func relevantOnly(docs []Doc) []Doc {
	out := make([]Doc, 0, len(docs))
	for _, d := range docs {
		if d.Relevant {
			out = append(out, d)
		}
	}
	return out
}

func replyText(resp llm.Response) string {
	var b strings.Builder
	for _, m := range resp.Content {
		b.WriteString(m.Content)
	}
	return b.String()
}

func isYes(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "yes")
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ErrEmptyQuestion is returned by Answer when called with a blank question,
// which would otherwise silently embed an empty string.
var ErrEmptyQuestion = errs.New(errs.InvalidInput, "question must not be empty")
