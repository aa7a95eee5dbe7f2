package ingest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/config"
)

const testWebhookSecret = "s3cr3t"

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestWebhookRouter(t *testing.T, pipeline *Pipeline) http.Handler {
	t.Helper()
	wr := NewWebhookRouter(pipeline, map[string]string{"code-host": testWebhookSecret})
	r := chi.NewRouter()
	wr.Mount(r)
	return r
}

func TestWebhook_ValidSignature_Returns200(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	r := newTestWebhookRouter(t, p)

	body := []byte(`{"action":"opened","pull_request":{"title":"t","body":"c"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/code-host", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body, testWebhookSecret))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_InvalidSignature_Returns401(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	r := newTestWebhookRouter(t, p)

	body := []byte(`{"action":"opened"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/code-host", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body, "wrong-secret"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_MissingSignature_Returns401(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	r := newTestWebhookRouter(t, p)

	body := []byte(`{"action":"opened"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/code-host", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_MalformedJSON_Returns400(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeStore{})
	r := newTestWebhookRouter(t, p)

	body := []byte(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/code-host", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body, testWebhookSecret))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_QueueFull_Returns503WithRetryAfter(t *testing.T) {
	t.Parallel()
	// No workers started: the queue never drains, so once full, Submit
	// blocks and the request context's default (no deadline) would hang —
	// instead exercise the shared-depth rejection path, which returns
	// QuotaExceeded synchronously without needing a full local channel.
	gauge := &fakeDepthGauge{depth: 100}
	p, err := NewPipeline(config.IngestConfig{
		QueueSize: 8, Workers: 1, MaxLogRetries: 1, SharedQueueLimit: 5,
	}, &fakeStore{}, gauge, nil, nil)
	require.NoError(t, err)
	r := newTestWebhookRouter(t, p)

	body := []byte(`{"action":"opened"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/code-host", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body, testWebhookSecret))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "5", rec.Header().Get("Retry-After"))
}
