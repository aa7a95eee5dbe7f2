// Package llm provides a provider-agnostic abstraction over chat completion
// APIs (Anthropic, OpenAI, Bedrock) so the specialist and supervisor agents
// (C10/C11) invoke models without coupling to a specific SDK. Adapted from
// goa-ai's runtime/agents/model package: same Client/Streamer contract,
// narrowed to what C10/C11/C3 actually need.
package llm

import (
	"context"
	"errors"
)

type (
	// Client is the contract the specialist/supervisor loops use to invoke a
	// model. Implementations wrap a provider SDK and must be safe for
	// concurrent use across specialist invocations.
	Client interface {
		Complete(ctx context.Context, req Request) (Response, error)
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer yields incremental chunks of a streaming completion. Recv
	// returns io.EOF once the stream is exhausted. Callers must Close it.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}

	// Request captures a normalized chat completion call.
	Request struct {
		Model       string
		Messages    []Message
		Temperature float32
		MaxTokens   int
		Tools       []ToolDefinition
		Thinking    *ThinkingOptions
	}

	// Response wraps a completed, non-streamed model turn.
	Response struct {
		Content    []Message
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Message mirrors one chat turn. Role is "system", "user", "assistant",
	// or "tool".
	Message struct {
		Role       string
		Content    string
		ToolCallID string // set on role "tool": which ToolCall this answers
	}

	// ToolDefinition describes one callable tool to the model, sourced from
	// the tool registry (C7).
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ToolCall is one tool invocation the model requested.
	ToolCall struct {
		ID      string
		Name    string
		Payload map[string]any
	}

	// Chunk is one streaming event. At most one of Message/ToolCall is set,
	// depending on Type; usage and stop chunks set neither.
	Chunk struct {
		Type       ChunkType
		Message    Message
		ToolCall   ToolCall
		UsageDelta TokenUsage
		StopReason string
	}

	// ChunkType identifies a Chunk's payload.
	ChunkType string

	// ThinkingOptions toggles extended-reasoning mode where the provider
	// supports it (Anthropic, Bedrock Claude).
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int
	}

	// TokenUsage records token accounting when the provider reports it.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}
)

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeThinking ChunkType = "thinking"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeStop     ChunkType = "stop"
)

// ErrStreamingUnsupported is returned by Stream when a provider adapter has
// no streaming implementation for the requested model.
var ErrStreamingUnsupported = errors.New("llm: streaming not supported")

// ErrRateLimited wraps provider rate-limit responses so callers can detect
// them with errors.Is uniformly across providers. The supervisor (C11) and
// the specialist loop do not retry on it; they end the turn with an error.
var ErrRateLimited = errors.New("llm: rate limited")
