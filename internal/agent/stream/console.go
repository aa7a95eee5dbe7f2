package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// ConsoleSink renders events as human-readable lines, for CLI/dev use.
// Safe for concurrent Send (guards the underlying writer with a mutex, the
// way a terminal write must be serialized to avoid interleaved lines).
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case KindToken:
		fmt.Fprint(s.w, stringData(ev.Data))
	case KindThinking:
		fmt.Fprintf(s.w, "\n[thinking] %s\n", stringData(ev.Data))
	case KindToolStart:
		fmt.Fprintf(s.w, "\n[tool_start] %s\n", jsonData(ev.Data))
	case KindToolEnd:
		fmt.Fprintf(s.w, "[tool_end] %s\n", jsonData(ev.Data))
	case KindRoutingDecision:
		fmt.Fprintf(s.w, "[routing] %s\n", jsonData(ev.Data))
	case KindModelSelection:
		fmt.Fprintf(s.w, "[model] %s\n", jsonData(ev.Data))
	case KindFinal:
		fmt.Fprintf(s.w, "\n%s\n", stringData(ev.Data))
	case KindError:
		fmt.Fprintf(s.w, "\n[error] %s\n", stringData(ev.Data))
	default:
		fmt.Fprintf(s.w, "[%s] %s\n", ev.Type, jsonData(ev.Data))
	}
	return nil
}

func (s *ConsoleSink) Close(_ context.Context) error { return nil }

func stringData(data any) string {
	if s, ok := data.(string); ok {
		return s
	}
	return jsonData(data)
}

func jsonData(data any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(b)
}
