// Package specialist implements the C10 bounded reason-act loop: each
// iteration calls the LLM with the running message history plus a fixed
// allowed-tool subset, executes any requested tool calls (bounded,
// deadlined), appends their results, and loops until the model returns a
// final message or the step cap is hit. Grounded on the shape of
// runtime/agents/runtime/workflow.go's plan/tool loop (call planner, collect
// tool requests, execute, append results, repeat) but translated into a
// plain synchronous Go loop: this spec's loop is bounded and
// per-HTTP-request, so it needs none of the teacher's durable-workflow
// engine, interrupt controller, or policy machinery.
package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/engintel/platform/internal/agent/stream"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/tools"
)

// Hard caps from spec.md §4.10.
const (
	MaxSteps            = 8
	MaxToolCallsPerStep = 4
	ToolDeadline        = 30 * time.Second
)

// ID names one of the three fixed specialists (spec.md §4.10).
type ID string

const (
	DORA     ID = "dora"
	Resource ID = "resource"
	Insights ID = "insights"
)

// SystemPrompt is each specialist's fixed system prompt.
var SystemPrompt = map[ID]string{
	DORA: "You are the DORA metrics specialist. Answer questions about deployment " +
		"frequency, change failure rate, lead time, and anomaly detection using only " +
		"the time-series and analytics tools available to you.",
	Resource: "You are the resource-planning specialist. Answer questions about " +
		"developer workload, allocation, and 1:1 meeting prep using only the " +
		"relational and prep tools available to you.",
	Insights: "You are the insights specialist. Answer questions about developers, " +
		"projects, skills, and expertise using relational, vector, graph, RAG, and " +
		"Graph-RAG tools as needed.",
}

// AllowedTools is each specialist's fixed allowed-tool subset (spec.md
// §4.10). Kept as data rather than a registry query so the allow-list is
// reviewable independent of what happens to be registered at runtime.
var AllowedTools = map[ID][]string{
	DORA: {
		"get_deployment_metrics", "get_developer_activity", "query_events",
		"detect_anomalies",
	},
	Resource: {
		"get_developer", "get_developer_workload", "list_overallocated_developers",
		"prepare_one_on_one", "suggest_talking_points",
	},
	Insights: {
		"get_developer", "find_developer_by_skills", "quick_expert_search",
		"find_expert_for_topic", "rag_search", "natural_language_query",
	},
}

// Input is one specialist invocation's starting state.
type Input struct {
	Specialist  ID
	Messages    []llm.Message
	Model       string
	Temperature float32
}

// Result is the outcome of running the loop to completion or to MAX_STEPS.
type Result struct {
	Messages    []llm.Message
	FinalText   string
	StepsUsed   int
	HitMaxSteps bool
}

// Run executes the bounded reason-act loop, emitting thinking/tool_start/
// tool_end/final/error events on emit as it goes. emit may be nil to run
// silently (e.g. in tests).
func Run(ctx context.Context, client llm.Client, registry *tools.Registry, in Input, emit *stream.Stream) (Result, error) {
	ctx, done := logging.Phase(ctx, "specialist_loop")
	var runErr error
	defer done(&runErr)

	messages := append([]llm.Message(nil), in.Messages...)
	toolDefs := toLLMToolDefs(registry.Definitions(AllowedTools[in.Specialist]))

	for step := 0; step < MaxSteps; step++ {
		emitEvent(ctx, emit, stream.KindThinking, map[string]any{"specialist": in.Specialist, "step": step + 1})

		resp, err := client.Complete(ctx, llm.Request{
			Model:       in.Model,
			Messages:    messages,
			Temperature: in.Temperature,
			Tools:       toolDefs,
		})
		if err != nil {
			runErr = errs.Wrap(errs.UpstreamUnavailable, "specialist llm completion", err)
			emitEvent(ctx, emit, stream.KindError, map[string]any{"category": "upstream_unavailable", "message": runErr.Error()})
			return Result{Messages: messages}, runErr
		}

		if len(resp.ToolCalls) == 0 {
			final := replyText(resp)
			messages = append(messages, llm.Message{Role: "assistant", Content: final})
			emitEvent(ctx, emit, stream.KindFinal, final)
			return Result{Messages: messages, FinalText: final, StepsUsed: step + 1}, nil
		}

		calls := resp.ToolCalls
		if len(calls) > MaxToolCallsPerStep {
			calls = calls[:MaxToolCallsPerStep]
		}
		messages = append(messages, llm.Message{Role: "assistant", Content: replyText(resp)})
		messages = append(messages, runToolCalls(ctx, registry, calls, emit)...)
	}

	runErr = errs.New(errs.Internal, "specialist hit MAX_STEPS without a final message")
	partial := bestPartialAnswer(messages)
	emitEvent(ctx, emit, stream.KindError, map[string]any{"category": "max_steps_exceeded", "message": runErr.Error()})
	return Result{Messages: messages, FinalText: partial, StepsUsed: MaxSteps, HitMaxSteps: true}, runErr
}

// runToolCalls executes calls concurrently (bounded by MaxToolCallsPerStep,
// already enforced by the caller) and returns one tool-role message per
// call, in the same order as calls.
func runToolCalls(ctx context.Context, registry *tools.Registry, calls []llm.ToolCall, emit *stream.Stream) []llm.Message {
	results := make([]llm.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i] = runOneToolCall(ctx, registry, call, emit)
		}(i, call)
	}
	wg.Wait()
	return results
}

func runOneToolCall(ctx context.Context, registry *tools.Registry, call llm.ToolCall, emit *stream.Stream) llm.Message {
	start := time.Now()
	emitEvent(ctx, emit, stream.KindToolStart, map[string]any{"name": call.Name, "args": call.Payload})

	toolCtx, cancel := context.WithTimeout(ctx, ToolDeadline)
	defer cancel()

	params, marshalErr := json.Marshal(call.Payload)
	if marshalErr != nil {
		params = json.RawMessage("{}")
	}
	result, err := registry.Call(toolCtx, call.Name, params)

	duration := time.Since(start)
	if err != nil {
		emitEvent(ctx, emit, stream.KindToolEnd, map[string]any{
			"name": call.Name, "duration_ms": duration.Milliseconds(), "error": err.Error(),
		})
		return llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("error: %s", err.Error())}
	}

	b, _ := json.Marshal(result)
	emitEvent(ctx, emit, stream.KindToolEnd, map[string]any{
		"name": call.Name, "duration_ms": duration.Milliseconds(), "result_preview": truncate(string(b), 200),
	})
	return llm.Message{Role: "tool", ToolCallID: call.ID, Content: string(b)}
}

func bestPartialAnswer(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return "I wasn't able to reach a final answer within the allotted steps."
}

func replyText(resp llm.Response) string {
	for _, m := range resp.Content {
		if m.Content != "" {
			return m.Content
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func toLLMToolDefs(defs []tools.ToolDefinition) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}

func emitEvent(ctx context.Context, s *stream.Stream, kind stream.Kind, data any) {
	if s == nil {
		return
	}
	s.Emit(ctx, kind, data)
}
