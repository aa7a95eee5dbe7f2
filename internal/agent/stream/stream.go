// Package stream implements the C12 streaming protocol: a typed event
// channel the supervisor/specialist loops write to, and renderers
// (console, SSE) that drain it. Event shape and the Sink abstraction are
// grounded on runtime/agents/stream's Event/Sink contract, narrowed to
// spec.md §4.12's fixed kind list and wire shape
// ({type, data, timestamp, turn_id}) instead of the teacher's per-kind
// struct hierarchy.
package stream

import (
	"context"
	"time"
)

// Kind enumerates spec.md §4.12's fixed stream event kinds.
type Kind string

const (
	KindRoutingDecision Kind = "routing_decision"
	KindModelSelection  Kind = "model_selection"
	KindToken           Kind = "token"
	KindToolStart       Kind = "tool_start"
	KindToolEnd         Kind = "tool_end"
	KindThinking        Kind = "thinking"
	KindFinal           Kind = "final"
	KindError           Kind = "error"
)

// lowPriority is the set of kinds a full buffer is allowed to drop.
// tool_start/tool_end/final/error/routing_decision/model_selection are
// never dropped — they carry state transitions a client cannot reconstruct
// from a later event, unlike token/thinking which are just incremental
// text a client can live without a few fragments of.
var lowPriority = map[Kind]bool{
	KindToken:    true,
	KindThinking: true,
}

// Event is the wire shape of one streamed update.
type Event struct {
	Type      Kind      `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	TurnID    string    `json:"turn_id"`
}

// Sink delivers events to a transport (SSE, WebSocket, console). Send must
// be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, event Event) error
	Close(ctx context.Context) error
}

// Stream is a bounded, in-process fan-out point for one turn's events: the
// specialist/supervisor loop emits into it, a renderer goroutine drains it.
// A full buffer drops low-priority events (token, thinking) rather than
// stalling the agent loop. tool_start/tool_end/final/error/
// routing_decision/model_selection are never dropped for a full buffer:
// Emit blocks until there is room, and gives up only when ctx is done or
// the stream is closed.
type Stream struct {
	turnID string
	ch     chan Event
	closed chan struct{}
}

// New returns a Stream with the given buffer size (events queued before
// Emit starts dropping low-priority kinds or blocking on high-priority
// ones).
func New(turnID string, bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Stream{turnID: turnID, ch: make(chan Event, bufferSize), closed: make(chan struct{})}
}

// Events returns the channel renderers range over. Closed when Close is
// called.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Emit publishes an event of kind with the given data, stamped with
// time.Now() and the stream's turn ID.
func (s *Stream) Emit(ctx context.Context, kind Kind, data any) {
	ev := Event{Type: kind, Data: data, Timestamp: time.Now(), TurnID: s.turnID}
	if lowPriority[kind] {
		select {
		case s.ch <- ev:
		default:
			// buffer full: drop token/thinking rather than stall the loop.
		}
		return
	}
	select {
	case s.ch <- ev:
	case <-ctx.Done():
	case <-s.closed:
	}
}

// Close signals no more events will be emitted and closes the channel.
// Safe to call once; a second call panics, matching close(chan)'s
// semantics — callers own exactly one Close per Stream.
func (s *Stream) Close() {
	close(s.closed)
	close(s.ch)
}

// Drain copies every event off s into sink until the channel closes or ctx
// is cancelled, then calls sink.Close. This is the shared loop both the
// console and SSE renderers run on their own goroutine.
func Drain(ctx context.Context, s *Stream, sink Sink) error {
	defer func() { _ = sink.Close(ctx) }()
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			if err := sink.Send(ctx, ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
