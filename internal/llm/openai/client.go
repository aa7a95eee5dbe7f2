// Package openai implements llm.Client on top of the OpenAI Chat Completions
// API via github.com/openai/openai-go, mirroring the shape of goa-ai's
// features/model/openai adapter (request/response translation, streaming via
// a buffered-channel Streamer).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/engintel/platform/internal/llm"
)

// Client implements llm.Client via OpenAI Chat Completions.
type Client struct {
	chat         openai.Client
	defaultModel string
	temperature  float32
}

// New builds an OpenAI-backed client from an API key, default model and an
// optional base URL override (for OpenAI-compatible gateways).
func New(apiKey, defaultModel, baseURL string, temperature float32) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if defaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{chat: openai.NewClient(opts...), defaultModel: defaultModel, temperature: temperature}, nil
}

func (c *Client) params(req llm.Request) (openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "tool":
			msgs = append(msgs, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: msgs,
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(float64(temp))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, d := range req.Tools {
			tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  toParameters(d.InputSchema),
			}))
		}
		params.Tools = tools
	}
	return params, nil
}

func toParameters(schema any) openai.FunctionParameters {
	raw, _ := json.Marshal(schema)
	var params openai.FunctionParameters
	_ = json.Unmarshal(raw, &params)
	return params
}

// Complete issues a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.params(req)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := c.chat.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Response{}, translateErr(err)
	}
	return translateResponse(resp), nil
}

// Stream issues a streaming chat completion and adapts SSE chunks into
// llm.Chunks.
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.Chat.Completions.NewStreaming(ctx, params)
	return newStreamer(ctx, stream), nil
}

func translateResponse(resp *openai.ChatCompletion) llm.Response {
	var out llm.Response
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != "" {
			out.Content = append(out.Content, llm.Message{Role: "assistant", Content: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			var payload map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &payload)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Payload: payload})
		}
		out.StopReason = string(choice.FinishReason)
	}
	out.Usage = llm.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return out
}

func translateErr(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") || strings.Contains(err.Error(), "429") {
		return fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
	}
	return fmt.Errorf("openai: %w", err)
}

type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *openaiStream
	chunks chan llm.Chunk

	toolNames map[int64]string
	toolArgs  map[int64]*strings.Builder

	err error
}

// openaiStream narrows the SDK's streaming iterator to what the adapter
// needs, so the adapter can be unit tested against a fake.
type openaiStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

func newStreamer(ctx context.Context, stream openaiStream) *streamer {
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
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.emit(llm.Chunk{Type: llm.ChunkTypeText, Message: llm.Message{Role: "assistant", Content: choice.Delta.Content}})
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			if tc.Function.Name != "" {
				s.toolNames[idx] = tc.Function.Name
				s.toolArgs[idx] = &strings.Builder{}
			}
			if b, ok := s.toolArgs[idx]; ok {
				b.WriteString(tc.Function.Arguments)
			}
		}
		if choice.FinishReason != "" {
			for idx, name := range s.toolNames {
				var payload map[string]any
				_ = json.Unmarshal([]byte(s.toolArgs[idx].String()), &payload)
				s.emit(llm.Chunk{Type: llm.ChunkTypeToolCall, ToolCall: llm.ToolCall{Name: name, Payload: payload}})
			}
			s.emit(llm.Chunk{Type: llm.ChunkTypeStop, StopReason: string(choice.FinishReason)})
		}
	}
	if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		s.err = translateErr(err)
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
		if s.err != nil {
			return llm.Chunk{}, s.err
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
