package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/engintel/platform/internal/errs"
)

// SSESink writes events as Server-Sent Events, grounded on the streaming
// handler pattern of setting text/event-stream headers once and flushing
// after every write so the client sees incremental data. Each event is
// written as `event: <type>\ndata: <json>\n\n`, matching spec.md §6's
// /api/chat SSE transport.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink sets the SSE response headers on w and returns a Sink writing
// to it. Returns an error if w doesn't support flushing (streaming is
// unsupported on this transport).
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errs.New(errs.Internal, "response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal stream event", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "write sse event", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.w, "event: done\ndata: {}\n\n")
	s.flusher.Flush()
	return err
}
