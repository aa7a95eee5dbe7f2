package stream

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (s *recordingSink) Send(_ context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close(_ context.Context) error { return nil }

func TestStream_EmitAndDrain(t *testing.T) {
	t.Parallel()
	st := New("turn-1", 8)
	sink := newRecordingSink()

	done := make(chan error, 1)
	go func() { done <- Drain(context.Background(), st, sink) }()

	st.Emit(context.Background(), KindRoutingDecision, map[string]string{"route": "analytics"})
	st.Emit(context.Background(), KindToken, "hello")
	st.Emit(context.Background(), KindFinal, "done")
	st.Close()

	require.NoError(t, <-done)
	require.Len(t, sink.events, 3)
	require.Equal(t, KindRoutingDecision, sink.events[0].Type)
	require.Equal(t, "turn-1", sink.events[0].TurnID)
	require.Equal(t, KindFinal, sink.events[2].Type)
}

func TestStream_DropsLowPriorityWhenFull(t *testing.T) {
	t.Parallel()
	st := New("turn-1", 1)

	// Fill the single buffer slot with a high-priority event nobody drains,
	// then low-priority emits must not block.
	st.Emit(context.Background(), KindToolStart, "x")
	emitted := make(chan struct{})
	go func() {
		st.Emit(context.Background(), KindToken, "dropped")
		close(emitted)
	}()
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("low-priority Emit blocked on a full buffer")
	}
}

func TestStream_HighPriorityBlocksUntilDrained(t *testing.T) {
	t.Parallel()
	st := New("turn-1", 1)
	st.Emit(context.Background(), KindToolStart, "first")

	emitted := make(chan struct{})
	go func() {
		st.Emit(context.Background(), KindToolEnd, "second")
		close(emitted)
	}()

	select {
	case <-emitted:
		t.Fatal("high-priority Emit should have blocked on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	<-st.Events() // drain the first event, making room
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("high-priority Emit never unblocked after drain")
	}
}

func TestConsoleSink_RendersTokensInline(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, Event{Type: KindToken, Data: "hel"}))
	require.NoError(t, sink.Send(ctx, Event{Type: KindToken, Data: "lo"}))
	require.Equal(t, "hello", buf.String())
}

func TestConsoleSink_RendersToolStart(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	require.NoError(t, sink.Send(context.Background(), Event{Type: KindToolStart, Data: map[string]string{"tool": "query_events"}}))
	require.Contains(t, buf.String(), "tool_start")
	require.Contains(t, buf.String(), "query_events")
}

func TestSSESink_WritesEventStreamFormat(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), Event{Type: KindFinal, Data: "done", TurnID: "t1"}))
	require.NoError(t, sink.Close(context.Background()))

	body := rec.Body.String()
	require.Contains(t, body, "event: final")
	require.Contains(t, body, `"data":"done"`)
	require.Contains(t, body, "event: done")
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
