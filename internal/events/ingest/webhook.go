// Package ingest implements the C5 ingestion pipeline: webhook receivers and
// a broker consumer feed a bounded queue drained by a worker pool that
// writes idempotently into the time-series log (C1). Webhook signature
// verification is grounded on
// original_source/data-extraction-api/routers/webhooks/github.py's
// verify_github_signature (HMAC-SHA256 over the raw body, "sha256=" prefix,
// constant-time compare).
package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/events/normalize"
	"github.com/engintel/platform/internal/logging"
)

// WebhookRouter registers one HTTP route per source under /webhooks/<source>
// and enqueues the normalized event onto the pipeline's Submit channel.
type WebhookRouter struct {
	pipeline *Pipeline
	secrets  map[string]string // source -> HMAC shared secret
}

// NewWebhookRouter builds a router bound to the given pipeline and per-source
// HMAC secrets (config.IngestConfig.WebhookSecrets).
func NewWebhookRouter(pipeline *Pipeline, secrets map[string]string) *WebhookRouter {
	return &WebhookRouter{pipeline: pipeline, secrets: secrets}
}

// Mount registers the webhook routes onto r.
func (wr *WebhookRouter) Mount(r chi.Router) {
	r.Post("/webhooks/code-host", wr.handle(string(normalize.SourceCodeHost)))
	r.Post("/webhooks/issue-tracker", wr.handle(string(normalize.SourceIssueTracker)))
	r.Post("/webhooks/docs", wr.handle(string(normalize.SourceDocs)))
}

func (wr *WebhookRouter) handle(source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErr(w, errs.New(errs.InvalidInput, "cannot read request body"))
			return
		}

		if secret := wr.secrets[source]; secret != "" {
			if !verifySignature(r.Header, body, secret) {
				writeErr(w, errs.New(errs.Unauthorized, "invalid webhook signature"))
				return
			}
		}

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			writeErr(w, errs.New(errs.InvalidInput, "malformed JSON payload"))
			return
		}

		ev := normalizeBySource(source, payload, r.Header)

		if err := wr.pipeline.Submit(ctx, ev); err != nil {
			_, done := logging.Phase(ctx, "webhook_submit")
			done(&err)
			writeErr(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": ev.EventID})
	}
}

func normalizeBySource(source string, payload map[string]any, headers http.Header) normalize.Event {
	switch normalize.Source(source) {
	case normalize.SourceIssueTracker:
		return normalize.NormalizeIssueTracker(payload)
	case normalize.SourceDocs:
		return normalize.NormalizeDocs(payload)
	default:
		return normalize.NormalizeGitHub(payload, headers)
	}
}

// verifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>")
// against an HMAC-SHA256 of the raw body, using a constant-time compare —
// the same shape as verify_github_signature in
// data-extraction-api/routers/webhooks/github.py, generalised to whichever
// signature header the source uses.
func verifySignature(headers http.Header, body []byte, secret string) bool {
	sig := headers.Get("X-Hub-Signature-256")
	if sig == "" {
		sig = headers.Get("X-Signature-256")
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

// writeErr maps the ingestion taxonomy onto the HTTP statuses spec.md §6
// mandates for webhook ingress: 401 on signature failure, 503 Retry-After on
// backpressure, 400 on any other malformed-request InvalidInput, 500
// otherwise.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.Unauthorized:
		status = http.StatusUnauthorized
	case errs.InvalidInput:
		status = http.StatusBadRequest
	case errs.QuotaExceeded:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "5")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errs.ToPayload(err))
}
