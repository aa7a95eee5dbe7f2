// Package supervisor implements the C11 turn-level state machine:
// classify -> select_model -> route_to_specialist -> specialist_loop ->
// update_thread. Grounded on the shape of goa-ai's supervisor/orchestrator
// agent (classify the request, pick a downstream handler, run it, persist
// the result) but resolves the two disagreeing ordering choices found
// across the teacher pack and original_source in favor of spec.md's
// explicit rule: classification runs on the raw new user message before
// any thread history is merged in, so a long prior conversation can never
// shift which specialist or model a fresh question routes to.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/engintel/platform/internal/agent/memory"
	"github.com/engintel/platform/internal/agent/specialist"
	"github.com/engintel/platform/internal/agent/stream"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/modelrouter"
	"github.com/engintel/platform/internal/pipelines"
	"github.com/engintel/platform/internal/tools"
)

// Router is the subset of *modelrouter.CachingRouter the supervisor needs,
// kept narrow so tests can supply a plain *modelrouter.Router wrapped in
// modelrouter.NewCachingRouter(r, nil) without a live cache.
type Router interface {
	RouteQuery(ctx context.Context, query string) modelrouter.ModelSelection
}

// Clients resolves a configured provider name ("anthropic", "openai",
// "bedrock") to the llm.Client that talks to it.
type Clients map[string]llm.Client

func (c Clients) forProvider(provider string) (llm.Client, error) {
	client, ok := c[provider]
	if !ok {
		return nil, errs.New(errs.Internal, fmt.Sprintf("no llm client configured for provider %q", provider))
	}
	return client, nil
}

// Dependencies are the collaborators one supervisor turn needs. All fields
// are required except NLQuery, which may be nil only if code_analysis
// routing is never exercised (every real deployment wires it).
type Dependencies struct {
	Router  Router
	Clients Clients
	Tools   *tools.Registry
	Memory  memory.Store
	NLQuery *pipelines.NLQueryPipeline
}

// Input is one incoming chat turn.
type Input struct {
	ThreadID string
	Message  string
}

// Output is the result of running one turn to completion.
type Output struct {
	TaskType       modelrouter.TaskType
	ModelSelection modelrouter.ModelSelection
	Specialist     specialist.ID // empty when routed to the NL-query pipeline
	FinalText      string
}

// routeToSpecialist maps a classified TaskType to the specialist that
// handles it (spec.md §4.11). code_analysis has no entry here: it bypasses
// the specialist loop entirely in favor of the NL->query pipeline.
var routeToSpecialist = map[modelrouter.TaskType]specialist.ID{
	modelrouter.TaskAnalytics:   specialist.DORA,
	modelrouter.TaskPlanning:    specialist.Resource,
	modelrouter.TaskQuickLookup: specialist.Insights,
	modelrouter.TaskGeneral:     specialist.Insights,
}

// Run executes one full turn. Classification and model selection happen on
// in.Message alone, before thread history is loaded, so a long
// conversation can never change how a fresh question is routed. The thread
// is only updated on success: if ctx is cancelled or the LLM/tool path
// fails partway through, Run returns an error and leaves the stored thread
// exactly as it was (no partial assistant message ever persisted).
func Run(ctx context.Context, deps Dependencies, in Input, emit *stream.Stream) (Output, error) {
	if strings.TrimSpace(in.Message) == "" {
		err := errs.New(errs.InvalidInput, "message must not be empty")
		emitEvent(ctx, emit, stream.KindError, map[string]any{"category": string(errs.KindOf(err)), "message": err.Error()})
		return Output{}, err
	}

	ctx, done := logging.Phase(ctx, "supervisor_turn")
	var runErr error
	defer done(&runErr)

	taskType := modelrouter.Classify(in.Message)
	selection := deps.Router.RouteQuery(ctx, in.Message)

	emitEvent(ctx, emit, stream.KindRoutingDecision, map[string]any{
		"task_type": taskType,
	})
	emitEvent(ctx, emit, stream.KindModelSelection, map[string]any{
		"provider":     selection.Provider,
		"model":        selection.ModelName,
		"display_name": selection.DisplayName,
		"emoji":        selection.Emoji,
		"reason":       selection.Reason,
	})

	client, err := deps.Clients.forProvider(selection.Provider)
	if err != nil {
		runErr = err
		emitEvent(ctx, emit, stream.KindError, map[string]any{"category": string(errs.KindOf(err)), "message": err.Error()})
		return Output{}, runErr
	}

	thread, err := deps.Memory.LoadThread(ctx, in.ThreadID)
	if err != nil {
		runErr = errs.Wrap(errs.Internal, "load conversation thread", err)
		emitEvent(ctx, emit, stream.KindError, map[string]any{"category": string(errs.KindOf(runErr)), "message": runErr.Error()})
		return Output{}, runErr
	}

	history := toLLMMessages(thread.Messages)
	history = append(history, llm.Message{Role: "user", Content: in.Message})

	var finalText string
	var usedSpecialist specialist.ID

	if taskType == modelrouter.TaskCodeAnalysis {
		if deps.NLQuery == nil {
			runErr = errs.New(errs.Internal, "code_analysis routing requires an NL-query pipeline")
			emitEvent(ctx, emit, stream.KindError, map[string]any{"category": string(errs.KindOf(runErr)), "message": runErr.Error()})
			return Output{}, runErr
		}
		result, err := deps.NLQuery.Run(ctx, in.Message)
		if err != nil {
			runErr = err
			emitEvent(ctx, emit, stream.KindError, map[string]any{"category": string(errs.KindOf(err)), "message": err.Error()})
			return Output{}, runErr
		}
		finalText = result.Summary
		emitEvent(ctx, emit, stream.KindFinal, finalText)
	} else {
		usedSpecialist = routeToSpecialist[taskType]
		result, err := specialist.Run(ctx, client, deps.Tools, specialist.Input{
			Specialist:  usedSpecialist,
			Messages:    prependSystemPrompt(usedSpecialist, history),
			Model:       selection.ModelName,
			Temperature: selection.Temperature,
		}, emit)
		if err != nil && !result.HitMaxSteps {
			// A HitMaxSteps error still carries a best-effort FinalText the
			// user should see; any other specialist error aborts the turn.
			runErr = err
			return Output{}, runErr
		}
		finalText = result.FinalText
	}

	title := thread.Title
	if title == "" {
		title = truncateTitle(in.Message)
	}
	now := time.Now()
	if err := deps.Memory.AppendMessages(ctx, in.ThreadID, title,
		memory.Message{Role: memory.RoleUser, Content: in.Message, Timestamp: now},
		memory.Message{Role: memory.RoleAssistant, Content: finalText, ModelUsed: selection.ModelName, Timestamp: now},
	); err != nil {
		runErr = errs.Wrap(errs.Internal, "persist conversation turn", err)
		emitEvent(ctx, emit, stream.KindError, map[string]any{"category": string(errs.KindOf(runErr)), "message": runErr.Error()})
		return Output{}, runErr
	}

	return Output{
		TaskType:       taskType,
		ModelSelection: selection,
		Specialist:     usedSpecialist,
		FinalText:      finalText,
	}, nil
}

func prependSystemPrompt(id specialist.ID, history []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.Message{Role: "system", Content: specialist.SystemPrompt[id]})
	return append(out, history...)
}

func toLLMMessages(msgs []memory.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func truncateTitle(message string) string {
	const max = 60
	m := strings.TrimSpace(message)
	if len(m) <= max {
		return m
	}
	return m[:max] + "…"
}

func emitEvent(ctx context.Context, s *stream.Stream, kind stream.Kind, data any) {
	if s == nil {
		return
	}
	s.Emit(ctx, kind, data)
}
