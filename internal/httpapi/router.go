// Package httpapi exposes the C11 supervisor and C13 memory store over
// HTTP: chat turns (streamed over SSE or returned synchronously),
// thread lookup, and a health probe. Grounded on the chi middleware-chain
// style used for webhook routing in internal/events/ingest/webhook.go,
// extended with github.com/go-chi/cors for the browser-facing chat
// endpoints (ingestion's webhook routes are server-to-server and never
// needed CORS, so that dependency went unused until now).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/engintel/platform/internal/agent/memory"
	"github.com/engintel/platform/internal/agent/stream"
	"github.com/engintel/platform/internal/agent/supervisor"
	"github.com/engintel/platform/internal/errs"
)

// Server wires supervisor.Dependencies to HTTP handlers.
type Server struct {
	deps supervisor.Dependencies
}

// NewServer builds a Server over the given supervisor dependencies.
func NewServer(deps supervisor.Dependencies) *Server {
	return &Server{deps: deps}
}

// NewRouter builds a chi router with the full middleware chain and every
// route this server exposes mounted under /api. mount, if non-nil, is
// called with the router so callers can additionally mount unrelated
// route groups (e.g. the C5 webhook router) onto the same mux.
func (s *Server) NewRouter(mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		MaxAge:           300,
		AllowCredentials: false,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/chat", s.handleChatStream)
	r.Post("/api/chat/sync", s.handleChatSync)
	r.Get("/api/threads/{threadID}", s.handleGetThread)

	if mount != nil {
		mount(r)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

// handleChatStream runs one supervisor turn, streaming routing_decision,
// model_selection, tool_start/tool_end, token, and final events to the
// client over SSE as spec.md §6's example /api/chat flow describes. The
// connection closes cleanly once the turn completes or the client
// disconnects (request context cancellation propagates into the
// supervisor/specialist loop, which stops emitting further events).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, errs.New(errs.InvalidInput, "malformed request body"))
		return
	}

	sink, err := stream.NewSSESink(w)
	if err != nil {
		writeErr(w, err)
		return
	}

	st := stream.New(chimw.GetReqID(r.Context()), 64)
	drainDone := make(chan error, 1)
	go func() { drainDone <- stream.Drain(r.Context(), st, sink) }()

	_, runErr := supervisor.Run(r.Context(), s.deps, supervisor.Input{
		ThreadID: req.ThreadID,
		Message:  req.Message,
	}, st)
	st.Close()
	<-drainDone

	_ = runErr // already surfaced to the client as a stream.KindError event
}

// handleChatSync runs one supervisor turn and returns the final result as a
// single JSON response, for callers that don't want to consume SSE.
func (s *Server) handleChatSync(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, errs.New(errs.InvalidInput, "malformed request body"))
		return
	}

	out, err := supervisor.Run(r.Context(), s.deps, supervisor.Input{
		ThreadID: req.ThreadID,
		Message:  req.Message,
	}, nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_type":  out.TaskType,
		"specialist": out.Specialist,
		"model": map[string]any{
			"provider": out.ModelSelection.Provider,
			"model":    out.ModelSelection.ModelName,
		},
		"final_text": out.FinalText,
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	th, err := s.deps.Memory.LoadThread(r.Context(), threadID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threadView(th))
}

type threadViewMessage struct {
	Role      memory.Role `json:"role"`
	Content   string      `json:"content"`
	ModelUsed string      `json:"model_used,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type threadViewResponse struct {
	ThreadID   string              `json:"thread_id"`
	Title      string              `json:"title"`
	CreatedAt  time.Time           `json:"created_at"`
	LastActive time.Time           `json:"last_active"`
	Messages   []threadViewMessage `json:"messages"`
}

func threadView(th memory.Thread) threadViewResponse {
	msgs := make([]threadViewMessage, len(th.Messages))
	for i, m := range th.Messages {
		msgs[i] = threadViewMessage{Role: m.Role, Content: m.Content, ModelUsed: m.ModelUsed, Timestamp: m.Timestamp}
	}
	return threadViewResponse{
		ThreadID: th.ThreadID, Title: th.Title,
		CreatedAt: th.CreatedAt, LastActive: th.LastActive,
		Messages: msgs,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.Unauthorized:
		status = http.StatusUnauthorized
	case errs.InvalidInput:
		status = http.StatusBadRequest
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.QuotaExceeded:
		status = http.StatusTooManyRequests
	case errs.Timeout:
		status = http.StatusGatewayTimeout
	case errs.UpstreamUnavailable:
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errs.ToPayload(err))
}
