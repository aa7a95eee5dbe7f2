// Package pipelines implements the smaller analytical pipelines
// supplemented from original_source (spec.md §4.7 names their tools but
// not their internal shape): NL→query translation, anomaly detection, and
// 1:1 meeting prep. Grounded on
// original_source/agents/pipelines/nl_query_pipeline.py,
// datathon-agent/agents/pipelines/anomaly_pipeline.py, and
// agents/tools/prep_tools.py respectively.
//
// Unlike the original Python, which lets the LLM generate arbitrary SQL or
// Cypher against three different databases, the Go translation constrains
// the LLM to producing a tsdb.QueryEventsFilter — the NL→query pipeline's
// code_analysis route (spec.md §4.11) only ever needs to query the
// time-series event log, so there is no SQL-injection surface to defend and
// no query language to pick between.
package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/tsdb"
)

// NLQueryMaxRetries bounds the translate→execute→(self-correct)↺ loop.
const NLQueryMaxRetries = 2

// EventQuerier is the subset of *tsdb.Store the NL→query pipeline needs.
type EventQuerier interface {
	QueryEvents(ctx context.Context, f tsdb.QueryEventsFilter) ([]tsdb.Event, error)
}

// NLQueryResult is the NL→query pipeline's output.
type NLQueryResult struct {
	Summary        string                 `json:"summary"`
	GeneratedQuery tsdb.QueryEventsFilter `json:"generated_query"`
	ResultCount    int                    `json:"result_count"`
	RetryCount     int                    `json:"retry_count"`
}

// NLQueryPipeline translates a natural-language question into a
// tsdb.QueryEventsFilter, executes it, and summarizes the results.
type NLQueryPipeline struct {
	events EventQuerier
	llm    llm.Client
}

// NewNLQueryPipeline builds an NLQueryPipeline.
func NewNLQueryPipeline(events EventQuerier, model llm.Client) *NLQueryPipeline {
	return &NLQueryPipeline{events: events, llm: model}
}

// Run executes the NL→query pipeline for question.
func (p *NLQueryPipeline) Run(ctx context.Context, question string) (NLQueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return NLQueryResult{}, errs.New(errs.InvalidInput, "question must not be empty")
	}
	ctx, done := logging.Phase(ctx, "nl_query")
	var err error
	defer done(&err)

	var (
		filter  tsdb.QueryEventsFilter
		results []tsdb.Event
		hint    string
	)
	retries := 0
	for {
		filter, err = p.translate(ctx, question, hint)
		if err != nil {
			return NLQueryResult{}, err
		}
		results, err = p.events.QueryEvents(ctx, filter)
		if err == nil {
			break
		}
		if retries >= NLQueryMaxRetries {
			return NLQueryResult{}, err
		}
		hint = fmt.Sprintf("The previous attempt failed with: %v. Adjust the filter.", err)
		retries++
	}
	err = nil

	return NLQueryResult{
		Summary:        p.summarize(ctx, question, results),
		GeneratedQuery: filter,
		ResultCount:    len(results),
		RetryCount:     retries,
	}, nil
}

func (p *NLQueryPipeline) translate(ctx context.Context, question, correctionHint string) (tsdb.QueryEventsFilter, error) {
	prompt := fmt.Sprintf(
		"Translate this question about software-engineering events into a JSON filter object with "+
			"fields event_type, actor_id, project_id, source, days_back, limit (omit fields you have no "+
			"evidence for). Question: %s\n%s\nReply with only the JSON object.", question, correctionHint)
	resp, err := p.llm.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		return tsdb.QueryEventsFilter{}, err
	}
	var f tsdb.QueryEventsFilter
	if err := json.Unmarshal([]byte(extractJSON(replyText(resp))), &f); err != nil {
		return tsdb.QueryEventsFilter{}, errs.Wrap(errs.InvalidInput, "parse generated query filter", err)
	}
	return f, nil
}

func (p *NLQueryPipeline) summarize(ctx context.Context, question string, results []tsdb.Event) string {
	if len(results) == 0 {
		return "No matching events were found."
	}
	var sample strings.Builder
	for i, e := range results {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&sample, "- %s %s by %s on %s at %s\n", e.Source, e.EventType, e.ActorID, e.ProjectID, e.Timestamp.Format("2006-01-02"))
	}
	prompt := fmt.Sprintf("Question: %s\n\n%d matching events, sample:\n%s\nWrite a short natural-language summary of these results.",
		question, len(results), sample.String())
	resp, err := p.llm.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return fmt.Sprintf("Found %d matching events.", len(results))
	}
	return replyText(resp)
}

// extractJSON trims any leading/trailing prose a model adds around the JSON
// object, matching from the first '{' to the last '}'.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

func replyText(resp llm.Response) string {
	var b strings.Builder
	for _, m := range resp.Content {
		b.WriteString(m.Content)
	}
	return b.String()
}
