// Package graphrag implements the C9 Graph-RAG pipeline, grounded on
// original_source/datathon-agent/agents/pipelines/graph_rag_pipeline.py's
// six-node graph:
//
//	START → vector_search ∥ graph_search → fuse_and_rank →
//	        explain_recommendations → synthesize → END
//
// vector_search and graph_search run concurrently (they query independent
// stores), matching the Python docstring's description of the two as
// parallel branches before the fuse step joins them.
package graphrag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/graph"
	"github.com/engintel/platform/internal/store/relational"
)

// SemanticWeight and GraphWeight are the fixed fusion weights of spec.md
// §4.9: combined = 0.6·semantic + 0.4·graph.
const (
	SemanticWeight = 0.6
	GraphWeight    = 0.4
)

// DefaultLimit mirrors find_expert_for_topic's default limit=5.
const DefaultLimit = 5

// Candidate is one fused, ranked expert recommendation.
type Candidate struct {
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	SemanticScore  float64 `json:"semantic_score"`
	GraphScore     float64 `json:"graph_score"`
	CombinedScore  float64 `json:"combined_score"`
	SyntheticGraph bool    `json:"synthetic_graph"`
	Explanation    string  `json:"explanation"`
}

// Result is the C9 pipeline output (spec.md §4.9).
type Result struct {
	Report       string      `json:"report"`
	FusedRanking []Candidate `json:"fused_ranking"`
	Status       string      `json:"status"`
}

const (
	StatusOK      = "ok"
	StatusNoMatch = "no_match"
)

// Embedder is the subset of *embedding.Client vector_search needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string, kind embedding.Kind) ([][]float32, error)
}

// VectorSearcher is the subset of *relational.Store vector_search needs.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, embeddingType string, k int) ([]relational.SimilarDoc, error)
}

// EmployeeResolver is the subset of *relational.Store used to join a
// vector-search hit's source_id back to a developer record.
type EmployeeResolver interface {
	GetEmployee(ctx context.Context, id, email, name string) (*relational.Employee, error)
}

// GraphExperter is the subset of *graph.Store graph_search needs.
type GraphExperter interface {
	FindKnowledgeExperts(ctx context.Context, topic string, limit int) ([]graph.ExpertCandidate, error)
}

// Pipeline wires the vector_search/graph_search/fuse_and_rank/
// explain_recommendations/synthesize nodes to concrete collaborators.
type Pipeline struct {
	embed     Embedder
	vectors   VectorSearcher
	employees EmployeeResolver
	graph     GraphExperter
	explainer llm.Client
}

// New builds a Pipeline.
func New(embed Embedder, vectors VectorSearcher, employees EmployeeResolver, g GraphExperter, explainer llm.Client) *Pipeline {
	return &Pipeline{embed: embed, vectors: vectors, employees: employees, graph: g, explainer: explainer}
}

// FindExpert runs the full Graph-RAG pipeline for query, returning up to
// limit ranked candidates (limit<=0 uses DefaultLimit).
func (p *Pipeline) FindExpert(ctx context.Context, query string, limit int) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, errs.New(errs.InvalidInput, "query must not be empty")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, done := logging.Phase(ctx, "graphrag_find_expert")
	var err error
	defer done(&err)

	var (
		semantic []relational.SimilarDoc
		semErr   error
		graphed  []graph.ExpertCandidate
		graphErr error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semErr = p.vectorSearch(ctx, query, limit*2)
	}()
	go func() {
		defer wg.Done()
		graphed, graphErr = p.graph.FindKnowledgeExperts(ctx, query, limit*2)
	}()
	wg.Wait()

	if semErr != nil {
		err = semErr
		return Result{}, err
	}
	if graphErr != nil {
		// The graph side falling over is not fatal — spec.md §4.9 already
		// treats a sparse/unreachable graph as a fallback-to-synthetic-score
		// case, so a query error is handled the same way.
		graphed = nil
	}

	candidates := p.fuseAndRank(ctx, query, semantic, graphed)
	if len(candidates) == 0 {
		return Result{Status: StatusNoMatch, Report: fmt.Sprintf("No experts found for: %s", query)}, nil
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	p.explainRecommendations(ctx, query, candidates)
	report := p.synthesize(query, candidates)

	return Result{Report: report, FusedRanking: candidates, Status: StatusOK}, nil
}

// vectorSearch embeds query and searches developer-profile embeddings,
// joining hits back to employee records (spec.md §4.9's vector_search node).
func (p *Pipeline) vectorSearch(ctx context.Context, query string, k int) ([]relational.SimilarDoc, error) {
	vectors, err := p.embed.Embed(ctx, []string{query}, embedding.KindQuery)
	if err != nil {
		return nil, err
	}
	return p.vectors.SearchSimilar(ctx, vectors[0], "developer_profile", k)
}

// candidateAccum folds a semantic hit and/or a graph hit for the same
// developer into one fusion row keyed by email.
type candidateAccum struct {
	email       string
	name        string
	semanticRaw float64
	graphRaw    float64
	hasSemantic bool
	hasGraph    bool
}

// fuseAndRank combines vector_search and graph_search results into a single
// ranked list (spec.md §4.9's fuse_and_rank node): combined = 0.6·semantic
// similarity (as returned by the vector search, not rescaled) + 0.4·graph
// score normalized by the highest graph score, falling back to a synthetic graph score
// when the graph produced no signal so the pipeline stays functional on an
// unpopulated graph (Phase 0.5 never having been run, per the Python
// docstring).
func (p *Pipeline) fuseAndRank(ctx context.Context, query string, semantic []relational.SimilarDoc, graphed []graph.ExpertCandidate) []Candidate {
	byEmail := map[string]*candidateAccum{}
	order := make([]string, 0)

	for _, hit := range semantic {
		emp, err := p.employees.GetEmployee(ctx, hit.SourceID, "", "")
		if err != nil || emp.Email == "" {
			continue
		}
		acc, ok := byEmail[emp.Email]
		if !ok {
			acc = &candidateAccum{email: emp.Email, name: emp.FullName}
			byEmail[emp.Email] = acc
			order = append(order, emp.Email)
		}
		acc.semanticRaw = hit.Similarity
		acc.hasSemantic = true
	}

	for _, g := range graphed {
		acc, ok := byEmail[g.Email]
		if !ok {
			acc = &candidateAccum{email: g.Email, name: g.Name}
			byEmail[g.Email] = acc
			order = append(order, g.Email)
		}
		if acc.name == "" {
			acc.name = g.Name
		}
		acc.graphRaw = float64(g.ContributionCount + g.ExpertiseWeight + g.CollaborationSum)
		acc.hasGraph = true
	}

	maxGraph := 0.0
	for _, email := range order {
		if byEmail[email].graphRaw > maxGraph {
			maxGraph = byEmail[email].graphRaw
		}
	}

	candidates := make([]Candidate, 0, len(order))
	for _, email := range order {
		acc := byEmail[email]
		semScore := acc.semanticRaw

		var graphScore float64
		synthetic := false
		switch {
		case acc.hasGraph && maxGraph > 0:
			graphScore = acc.graphRaw / maxGraph
		case acc.hasSemantic:
			// Sparse/empty graph: fall back to a synthetic score derived
			// from the semantic score itself so fusion still produces a
			// meaningful ranking (spec.md §4.9's fallback clause).
			graphScore = semScore * 0.5
			synthetic = true
		}

		combined := SemanticWeight*semScore + GraphWeight*graphScore
		candidates = append(candidates, Candidate{
			Email:          acc.email,
			Name:           acc.name,
			SemanticScore:  semScore,
			GraphScore:     graphScore,
			CombinedScore:  combined,
			SyntheticGraph: synthetic,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		return candidates[i].SemanticScore > candidates[j].SemanticScore // tie-break on semantic score
	})
	return candidates
}

// explainRecommendations asks the LLM for a one-paragraph rationale per
// candidate, citing the evidence sources (spec.md §4.9's
// explain_recommendations node). Failures leave Explanation empty rather
// than aborting the pipeline.
func (p *Pipeline) explainRecommendations(ctx context.Context, query string, candidates []Candidate) {
	if p.explainer == nil {
		return
	}
	for i := range candidates {
		c := &candidates[i]
		prompt := fmt.Sprintf(
			"Query: %s\nCandidate: %s\nSemantic similarity score: %.2f\nGraph signal score: %.2f%s\n\n"+
				"Write one short paragraph explaining why this person is a good match, citing the scores as evidence.",
			query, c.Name, c.SemanticScore, c.GraphScore, synthNote(c.SyntheticGraph))
		resp, err := p.explainer.Complete(ctx, llm.Request{
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Temperature: 0.4,
			MaxTokens:   200,
		})
		if err != nil {
			continue
		}
		c.Explanation = replyText(resp)
	}
}

// synthesize composes the final ranked report (spec.md §4.9's synthesize
// node).
func (p *Pipeline) synthesize(query string, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expert recommendations for: %s\n\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s (combined=%.3f, semantic=%.3f, graph=%.3f)\n", i+1, c.Name, c.CombinedScore, c.SemanticScore, c.GraphScore)
		if c.Explanation != "" {
			fmt.Fprintf(&b, "   %s\n", c.Explanation)
		}
	}
	return b.String()
}

func synthNote(synthetic bool) string {
	if synthetic {
		return " (graph score is a synthetic fallback — the knowledge graph had no direct signal)"
	}
	return ""
}

func replyText(resp llm.Response) string {
	var b strings.Builder
	for _, m := range resp.Content {
		b.WriteString(m.Content)
	}
	return b.String()
}
