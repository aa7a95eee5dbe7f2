// Package anthropic implements llm.Client on top of the Anthropic Claude
// Messages API, adapted from goa-ai's features/model/anthropic adapter.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/engintel/platform/internal/llm"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements llm.Client via the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// New builds an Anthropic-backed client from an API key and default model
// identifier (e.g. "claude-sonnet-4-5-20250929").
func New(apiKey, defaultModel string, maxTokens int, temperature float64) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: &c.Messages, defaultModel: defaultModel, maxTokens: maxTokens, temperature: temperature}, nil
}

// Complete issues a non-streaming Messages.New call.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return llm.Response{}, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return llm.Response{}, translateErr(err)
	}
	return translateMessage(msg), nil
}

// Stream issues a streaming Messages.New call and adapts server-sent events
// into llm.Chunks.
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateErr(err)
	}
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(req llm.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	var system []sdk.TextBlockParam
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case "tool":
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := float64(req.Temperature)
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	if req.Thinking != nil && req.Thinking.Enable && req.Thinking.BudgetTokens >= 1024 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(req.Thinking.BudgetTokens))
	}
	return &params, nil
}

func encodeTools(defs []llm.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		raw, _ := json.Marshal(d.InputSchema)
		var schema sdk.ToolInputSchemaParam
		_ = json.Unmarshal(raw, &schema)
		out = append(out, sdk.ToolUnionParamOfTool(schema, d.Name))
	}
	return out
}

func translateMessage(msg *sdk.Message) llm.Response {
	var resp llm.Response
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			text.WriteString(variant.Text)
		case sdk.ToolUseBlock:
			var payload map[string]any
			_ = json.Unmarshal(variant.Input, &payload)
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{ID: variant.ID, Name: variant.Name, Payload: payload})
		}
	}
	if text.Len() > 0 {
		resp.Content = append(resp.Content, llm.Message{Role: "assistant", Content: text.String()})
	}
	resp.Usage = llm.TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	resp.StopReason = string(msg.StopReason)
	return resp
}

func translateErr(err error) error {
	if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}

// streamer adapts the Anthropic SSE stream to llm.Streamer using the same
// goroutine-plus-buffered-channel shape as the teacher's anthropicStreamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	chunks chan llm.Chunk

	mu       sync.Mutex
	finalErr error

	toolNames map[int64]string
	toolArgs  map[int64]*strings.Builder
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:       cctx,
		cancel:    cancel,
		stream:    stream,
		chunks:    make(chan llm.Chunk, 32),
		toolNames: make(map[int64]string),
		toolArgs:  make(map[int64]*strings.Builder),
	}
	go s.run()
	return s
}

func (s *streamer) run() {
	defer close(s.chunks)
	for s.stream.Next() {
		event := s.stream.Current()
		switch variant := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if tu, ok := variant.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				s.toolNames[variant.Index] = tu.Name
				s.toolArgs[variant.Index] = &strings.Builder{}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case sdk.TextDelta:
				s.emit(llm.Chunk{Type: llm.ChunkTypeText, Message: llm.Message{Role: "assistant", Content: delta.Text}})
			case sdk.ThinkingDelta:
				s.emit(llm.Chunk{Type: llm.ChunkTypeThinking, Message: llm.Message{Role: "assistant", Content: delta.Thinking}})
			case sdk.InputJSONDelta:
				if b, ok := s.toolArgs[variant.Index]; ok {
					b.WriteString(delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			if name, ok := s.toolNames[variant.Index]; ok {
				var payload map[string]any
				_ = json.Unmarshal([]byte(s.toolArgs[variant.Index].String()), &payload)
				s.emit(llm.Chunk{Type: llm.ChunkTypeToolCall, ToolCall: llm.ToolCall{Name: name, Payload: payload}})
			}
		case sdk.MessageDeltaEvent:
			s.emit(llm.Chunk{
				Type:       llm.ChunkTypeUsage,
				UsageDelta: llm.TokenUsage{OutputTokens: int(variant.Usage.OutputTokens)},
				StopReason: string(variant.Delta.StopReason),
			})
		}
	}
	if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		s.mu.Lock()
		s.finalErr = translateErr(err)
		s.mu.Unlock()
	}
}

func (s *streamer) emit(c llm.Chunk) {
	select {
	case s.chunks <- c:
	case <-s.ctx.Done():
	}
}

func (s *streamer) Recv() (llm.Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if ok {
			return c, nil
		}
		s.mu.Lock()
		err := s.finalErr
		s.mu.Unlock()
		if err != nil {
			return llm.Chunk{}, err
		}
		return llm.Chunk{}, io.EOF
	case <-s.ctx.Done():
		return llm.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return s.stream.Close()
}
