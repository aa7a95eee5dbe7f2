package tools

import (
	"context"
	"encoding/json"

	"github.com/engintel/platform/internal/embedding"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/store/relational"
)

// RegisterVectorTools adds the "Vector reads" group of spec.md §4.7:
// semantic_search, find_developer_by_skills. Grounded on
// original_source/agents/tools/vector_tools.py.
func RegisterVectorTools(r *Registry, store *relational.Store, embed *embedding.Client) {
	r.MustRegister(Tool{
		Name:        "semantic_search",
		Description: "Embed a free-text query and return the top-k most similar indexed documents by cosine similarity.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"embedding_type": {"type": "string"},
				"k": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["query"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Query         string `json:"query"`
				EmbeddingType string `json:"embedding_type"`
				K             int    `json:"k"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode semantic_search params", err)
			}
			if in.K <= 0 {
				in.K = 10
			}
			vectors, err := embed.Embed(ctx, []string{in.Query}, embedding.KindQuery)
			if err != nil {
				return nil, err
			}
			return store.SearchSimilar(ctx, vectors[0], in.EmbeddingType, in.K)
		},
	})

	r.MustRegister(Tool{
		Name:        "find_developer_by_skills",
		Description: "Embed a skills description and return the developers whose skill-embedding profile best matches it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"skills_description": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"required": ["skills_description"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				SkillsDescription string `json:"skills_description"`
				Limit             int    `json:"limit"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode find_developer_by_skills params", err)
			}
			if in.Limit <= 0 {
				in.Limit = 10
			}
			vectors, err := embed.Embed(ctx, []string{in.SkillsDescription}, embedding.KindQuery)
			if err != nil {
				return nil, err
			}
			docs, err := store.SearchSimilar(ctx, vectors[0], "developer_skill", in.Limit)
			if err != nil {
				return nil, err
			}
			return joinDevelopers(ctx, store, docs)
		},
	})
}

// DeveloperMatch pairs a skill-embedding hit with the developer it resolves
// to, the "joins employees" step spec.md §4.7 calls for.
type DeveloperMatch struct {
	Developer  *relational.Employee
	Similarity float64
}

func joinDevelopers(ctx context.Context, store *relational.Store, docs []relational.SimilarDoc) ([]DeveloperMatch, error) {
	out := make([]DeveloperMatch, 0, len(docs))
	for _, d := range docs {
		emp, err := store.GetEmployee(ctx, d.SourceID, "", "")
		if err != nil {
			continue // skip embeddings whose source employee no longer exists
		}
		out = append(out, DeveloperMatch{Developer: emp, Similarity: d.Similarity})
	}
	return out, nil
}
