package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/agent/memory/inmem"
	"github.com/engintel/platform/internal/agent/supervisor"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/modelrouter"
	"github.com/engintel/platform/internal/tools"
)

type fixedRouter struct{ selection modelrouter.ModelSelection }

func (r fixedRouter) RouteQuery(_ context.Context, query string) modelrouter.ModelSelection {
	sel := r.selection
	sel.TaskType = modelrouter.Classify(query)
	return sel
}

type scriptedClient struct{ reply string }

func (c scriptedClient) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Content: []llm.Message{{Role: "assistant", Content: c.reply}}}, nil
}

func (c scriptedClient) Stream(_ context.Context, _ llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func testServer() *Server {
	deps := supervisor.Dependencies{
		Router: fixedRouter{selection: modelrouter.ModelSelection{Provider: "anthropic", ModelName: "claude-x"}},
		Clients: supervisor.Clients{
			"anthropic": scriptedClient{reply: "the answer"},
		},
		Tools:  tools.NewRegistry(),
		Memory: inmem.New(),
	}
	return NewServer(deps)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.NewRouter(nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleChatSync(t *testing.T) {
	t.Parallel()
	s := testServer()
	body, _ := json.Marshal(map[string]string{"message": "Who is Alice?", "thread_id": "t1"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sync", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.NewRouter(nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "the answer", resp["final_text"])
}

func TestHandleChatSync_RejectsMalformedBody(t *testing.T) {
	t.Parallel()
	s := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sync", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.NewRouter(nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStream_WritesSSE(t *testing.T) {
	t.Parallel()
	s := testServer()
	body, _ := json.Marshal(map[string]string{"message": "Who is Alice?", "thread_id": "t2"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.NewRouter(nil).ServeHTTP(rec, req)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "event: routing_decision")
	require.Contains(t, rec.Body.String(), "event: model_selection")
	require.Contains(t, rec.Body.String(), "event: final")
	require.Contains(t, rec.Body.String(), "event: done")
}

func TestHandleGetThread_AfterChatSync(t *testing.T) {
	t.Parallel()
	s := testServer()
	body, _ := json.Marshal(map[string]string{"message": "Who is Alice?", "thread_id": "t3"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sync", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.NewRouter(nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/threads/t3", nil)
	getRec := httptest.NewRecorder()
	s.NewRouter(nil).ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var th threadViewResponse
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &th))
	require.Equal(t, "t3", th.ThreadID)
	require.Len(t, th.Messages, 2)
}
