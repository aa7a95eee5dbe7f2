// Package modelrouter implements the C3 model-selection router: a
// deterministic keyword classifier over the incoming question plus a fixed
// TaskType → ModelSelection table, grounded on
// original_source/agents/utils/model_router.py and its test,
// scripts/test_model_router.py.
package modelrouter

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/engintel/platform/internal/config"
)

// TaskType is one of the five fixed classification buckets (spec.md §4.6).
type TaskType string

const (
	TaskCodeAnalysis TaskType = "code_analysis"
	TaskAnalytics    TaskType = "analytics"
	TaskPlanning     TaskType = "planning"
	TaskQuickLookup  TaskType = "quick_lookup"
	TaskGeneral      TaskType = "general"
)

// ModelSelection is attached to the streamed trace and recorded on the
// assistant message (spec.md §4.6). Provider names which internal/llm client
// handles this TaskType.
type ModelSelection struct {
	TaskType    TaskType
	Provider    string // "anthropic" | "openai" | "bedrock"
	ModelName   string
	DisplayName string
	Emoji       string
	Temperature float32
	Reason      string
}

var (
	codePattern = regexp.MustCompile(`(?i)\b(sql|cypher|query to|ci/cd|pipeline is failing|regex|code|script|stack trace|exception)\b`)

	analyticsPattern = regexp.MustCompile(`(?i)\b(dora|deployment frequency|change failure rate|lead time|developer activity|anomal(y|ies)|metrics?|trend|commit (volume|statistics)|velocity)\b`)

	planningPattern = regexp.MustCompile(`(?i)\b(overallocat\w*|rebalanc\w*|plan\b|planning|capacity|staffing|recommend|allocat\w* (resources|for)|at-risk)\b`)

	quickLookupPattern = regexp.MustCompile(`(?i)\b(who is|who collaborates|list (all )?developers?|find (me )?a? ?developer|expert\w* (in|with|on)|team roster)\b`)
)

// Classify maps a free-text question to a TaskType by keyword/regex
// heuristics, checked in a fixed precedence (code analysis and analytics take
// priority over planning/quick-lookup, which take priority over the general
// fallback) so the function is deterministic given the same input.
func Classify(query string) TaskType {
	q := strings.TrimSpace(query)
	switch {
	case codePattern.MatchString(q):
		return TaskCodeAnalysis
	case analyticsPattern.MatchString(q):
		return TaskAnalytics
	case planningPattern.MatchString(q):
		return TaskPlanning
	case quickLookupPattern.MatchString(q):
		return TaskQuickLookup
	default:
		return TaskGeneral
	}
}

// Router selects a ModelSelection for a classified TaskType from the
// environment-configured per-profile model identifiers (config.LLMConfig).
type Router struct {
	profiles map[TaskType]config.ModelProfile
}

// New builds a Router from the LLM configuration's five named profiles.
func New(cfg config.LLMConfig) *Router {
	return &Router{profiles: map[TaskType]config.ModelProfile{
		TaskCodeAnalysis: cfg.CodeAnalysis,
		TaskAnalytics:    cfg.Analytics,
		TaskPlanning:     cfg.Planning,
		TaskQuickLookup:  cfg.QuickLookup,
		TaskGeneral:      cfg.General,
	}}
}

// displayMeta is the fixed display_name/emoji/reason table for each TaskType,
// mirroring the specialization doc in model_router.py's module docstring
// (Qwen-class reasoning for planning/general, Llama-class for analytics,
// Hermes-class for quick lookups, DeepSeek-class for code analysis) — names
// are cosmetic trace labels independent of which provider actually serves
// the request.
var displayMeta = map[TaskType]struct {
	display string
	emoji   string
	reason  string
}{
	TaskCodeAnalysis: {"DeepSeek Coder-class", "💻", "SQL/Cypher generation and code-level diagnosis favor a code-specialized model"},
	TaskAnalytics:    {"Llama 70B-class", "📊", "long-context metrics analysis favors a large-context analytics-tuned model"},
	TaskPlanning:     {"Qwen 72B-class", "🧠", "multi-constraint planning favors the strongest general-reasoning model"},
	TaskQuickLookup:  {"Hermes 8B-class", "⚡", "simple lookups favor the fastest, cheapest model"},
	TaskGeneral:      {"Qwen 72B-class", "🧠", "no specific signal; defaults to the general-reasoning model"},
}

// Select resolves a TaskType to a ModelSelection using the configured
// per-profile provider/model/temperature. Temperature is baked into the
// profile and never chosen by the caller.
func (r *Router) Select(t TaskType) ModelSelection {
	profile := r.profiles[t]
	meta := displayMeta[t]
	return ModelSelection{
		TaskType:    t,
		Provider:    profile.Provider,
		ModelName:   profile.Model,
		DisplayName: meta.display,
		Emoji:       meta.emoji,
		Temperature: profile.Temperature,
		Reason:      meta.reason,
	}
}

// RouteQuery is the end-to-end convenience used by the supervisor (C11):
// classify the query, then select its model. Classification happens before
// any thread-history merge — see SPEC_FULL.md's classify-before-merge
// invariant.
func (r *Router) RouteQuery(query string) ModelSelection {
	return r.Select(Classify(query))
}

// ResultCache is the subset of *cache.Client the CachingRouter needs, kept
// narrow so tests don't need a live Redis instance.
type ResultCache interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
}

// CachingRouter wraps Router with a Redis-backed cache of RouteQuery
// results, keyed by the raw query text. Classification and selection are
// deterministic pure functions, so caching never risks staleness — it only
// skips recomputation when the exact same query text repeats (e.g. a user
// re-asking after a transient tool failure).
type CachingRouter struct {
	router *Router
	cache  ResultCache
}

// NewCachingRouter wraps router with cache. A nil cache degrades to plain
// Router behavior (every call recomputes).
func NewCachingRouter(router *Router, cache ResultCache) *CachingRouter {
	return &CachingRouter{router: router, cache: cache}
}

// RouteQuery returns the cached ModelSelection for query if present,
// otherwise computes and caches it. Cache errors are not fatal: a miss due
// to a Redis outage just falls through to recomputation.
func (c *CachingRouter) RouteQuery(ctx context.Context, query string) ModelSelection {
	key := "modelrouter:route:" + query
	if c.cache != nil {
		if cached, ok, err := c.cache.GetString(ctx, key); err == nil && ok {
			var sel ModelSelection
			if json.Unmarshal([]byte(cached), &sel) == nil {
				return sel
			}
		}
	}
	sel := c.router.RouteQuery(query)
	if c.cache != nil {
		if b, err := json.Marshal(sel); err == nil {
			_ = c.cache.SetString(ctx, key, string(b))
		}
	}
	return sel
}
