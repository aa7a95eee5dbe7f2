package specialist

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/agent/stream"
	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/tools"
)

type scriptedClient struct {
	responses []llm.Response
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	r := c.responses[c.calls]
	if c.calls < len(c.responses)-1 {
		c.calls++
	}
	return r, nil
}

func (c *scriptedClient) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

type erroringClient struct{}

func (erroringClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{}, errs.New(errs.UpstreamUnavailable, "boom")
}
func (erroringClient) Stream(ctx context.Context, req llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func registryWithEcho(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Tool{
		Name:        "get_employee",
		Description: "echo tool for tests",
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	}))
	return r
}

func TestRun_FinalMessageOnFirstStep(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{
		{Content: []llm.Message{{Role: "assistant", Content: "the answer"}}},
	}}
	r := registryWithEcho(t)

	result, err := Run(context.Background(), client, r, Input{
		Specialist: Insights,
		Messages:   []llm.Message{{Role: "user", Content: "who owns billing?"}},
		Model:      "m1",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "the answer", result.FinalText)
	require.Equal(t, 1, result.StepsUsed)
	require.False(t, result.HitMaxSteps)
}

func TestRun_ExecutesToolCallThenFinishes(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "get_employee", Payload: map[string]any{"id": "e1"}}}},
		{Content: []llm.Message{{Role: "assistant", Content: "found them"}}},
	}}
	r := registryWithEcho(t)

	var events []stream.Event
	st := stream.New("turn-1", 32)
	go func() {
		for ev := range st.Events() {
			events = append(events, ev)
		}
	}()

	result, err := Run(context.Background(), client, r, Input{
		Specialist: Resource,
		Messages:   []llm.Message{{Role: "user", Content: "who is alice?"}},
		Model:      "m1",
	}, st)
	st.Close()
	require.NoError(t, err)
	require.Equal(t, "found them", result.FinalText)
	require.Equal(t, 2, result.StepsUsed)

	foundToolStart, foundToolEnd := false, false
	for _, ev := range events {
		switch ev.Type {
		case stream.KindToolStart:
			foundToolStart = true
		case stream.KindToolEnd:
			foundToolEnd = true
		}
	}
	require.True(t, foundToolStart)
	require.True(t, foundToolEnd)
}

func TestRun_HitsMaxStepsWithoutFinal(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "get_employee"}}},
	}}
	r := registryWithEcho(t)

	result, err := Run(context.Background(), client, r, Input{
		Specialist: DORA,
		Messages:   []llm.Message{{Role: "user", Content: "loop forever"}},
		Model:      "m1",
	}, nil)
	require.Error(t, err)
	require.True(t, result.HitMaxSteps)
	require.Equal(t, MaxSteps, result.StepsUsed)
	require.NotEmpty(t, result.FinalText)
}

func TestRun_LLMErrorReturnsImmediately(t *testing.T) {
	t.Parallel()
	r := registryWithEcho(t)
	_, err := Run(context.Background(), erroringClient{}, r, Input{
		Specialist: DORA,
		Messages:   []llm.Message{{Role: "user", Content: "x"}},
		Model:      "m1",
	}, nil)
	require.Error(t, err)
	require.Equal(t, errs.UpstreamUnavailable, errs.KindOf(err))
}

func TestRun_CapsToolCallsPerStep(t *testing.T) {
	t.Parallel()
	calls := make([]llm.ToolCall, MaxToolCallsPerStep+3)
	for i := range calls {
		calls[i] = llm.ToolCall{ID: "c", Name: "get_employee"}
	}
	client := &scriptedClient{responses: []llm.Response{
		{ToolCalls: calls},
		{Content: []llm.Message{{Role: "assistant", Content: "done"}}},
	}}
	r := registryWithEcho(t)

	result, err := Run(context.Background(), client, r, Input{
		Specialist: Insights,
		Messages:   []llm.Message{{Role: "user", Content: "many tools"}},
		Model:      "m1",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "done", result.FinalText)
}
