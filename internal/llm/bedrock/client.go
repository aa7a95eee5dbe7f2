// Package bedrock implements llm.Client on top of the AWS Bedrock Converse
// API, adapted from goa-ai's features/model/bedrock adapter. Streaming is not
// implemented for Bedrock in this platform; the supervisor (C11) and the
// specialist loop call Complete for every provider, so Bedrock-routed
// TaskTypes are served the same way as the others.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/engintel/platform/internal/llm"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used
// here, matching *bedrockruntime.Client so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements llm.Client over AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	temperature  float32
}

// New builds a Bedrock-backed client from a Bedrock runtime client and the
// default Bedrock model identifier (e.g.
// "anthropic.claude-3-5-sonnet-20241022-v2:0").
func New(runtime RuntimeClient, defaultModel string, temperature float32) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel, temperature: temperature}, nil
}

// Complete issues a Converse call and translates the response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages, system := encodeMessages(req.Messages)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig := encodeTools(req.Tools); toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	cfg := &brtypes.InferenceConfiguration{}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	input.InferenceConfig = cfg

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return llm.Response{}, translateErr(err)
	}
	return translateResponse(out), nil
}

// Stream always returns ErrStreamingUnsupported; see package doc.
func (c *Client) Stream(context.Context, llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func encodeMessages(msgs []llm.Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	var system []brtypes.SystemContentBlock
	var out []brtypes.Message
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case "tool":
			out = append(out, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(m.ToolCallID),
						Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
					},
				}},
			})
		default:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return out, system
}

func encodeTools(defs []llm.ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, d := range defs {
		raw, _ := json.Marshal(d.InputSchema)
		var schema any
		_ = json.Unmarshal(raw, &schema)
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func translateResponse(out *bedrockruntime.ConverseOutput) llm.Response {
	var resp llm.Response
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if ok {
		var text strings.Builder
		for _, block := range msg.Value.Content {
			switch variant := block.(type) {
			case *brtypes.ContentBlockMemberText:
				text.WriteString(variant.Value)
			case *brtypes.ContentBlockMemberToolUse:
				var payload map[string]any
				raw, _ := variant.Value.Input.MarshalSmithyDocument()
				_ = json.Unmarshal(raw, &payload)
				resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
					ID:      aws.ToString(variant.Value.ToolUseId),
					Name:    aws.ToString(variant.Value.Name),
					Payload: payload,
				})
			}
		}
		if text.Len() > 0 {
			resp.Content = append(resp.Content, llm.Message{Role: "assistant", Content: text.String()})
		}
	}
	if out.Usage != nil {
		resp.Usage = llm.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	resp.StopReason = string(out.StopReason)
	return resp
}

// translateErr classifies a Converse error via the smithy.APIError code AWS
// attaches to every service error, falling back to a substring match only
// for transport-level errors that never reach the service (smithy.APIError
// is an interface, so errors.As finds whichever concrete error type in the
// chain implements it).
func translateErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
		}
		return fmt.Errorf("bedrock: %s: %w", apiErr.ErrorCode(), err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "throttl") || strings.Contains(msg, "toomanyrequests") {
		return fmt.Errorf("%w: %w", llm.ErrRateLimited, err)
	}
	return fmt.Errorf("bedrock: %w", err)
}
