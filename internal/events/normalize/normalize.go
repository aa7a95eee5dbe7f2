// Package normalize implements the C4 event normaliser: one normaliser per
// source (code-host, issue-tracker, docs) that turns a raw webhook/broker
// payload into the canonical Event shape plus its deterministic idempotency
// key, grounded on
// original_source/agent/utils/{github_validator,normalize_github}.py (GitHub)
// and original_source/data-extraction-api/routers/webhooks/jira.py (Jira).
package normalize

import (
	"crypto/sha256"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source enumerates the three first-class event sources (spec.md §3).
type Source string

const (
	SourceCodeHost     Source = "code-host"
	SourceIssueTracker Source = "issue-tracker"
	SourceDocs         Source = "docs"
)

// Event is the canonical, source-agnostic event shape fed to C5's ingestion
// pipeline and, from there, into the time-series log (C1).
type Event struct {
	EventID    string
	Timestamp  time.Time
	Source     Source
	EventType  string
	ProjectID  string
	ActorID    string
	EntityID   string
	EntityType string
	Metadata   json.RawMessage
}

// DeriveEventID computes the deterministic idempotency key from the natural
// dedup key `(source, event_type, entity_id, timestamp)` (spec.md §4.3/§8):
// sha256 over the pipe-joined natural key, with the first 16 bytes
// reinterpreted as a UUID. Re-delivery of the same logical event always
// yields the same event_id.
//
// The upstream Python reference sometimes generates event_id via a random
// UUID instead; DESIGN.md's Open-Question resolution picks the
// deterministic form because it is the only one compatible with the
// at-least-once-delivery + idempotent-insert invariant (spec.md §8.1).
func DeriveEventID(source Source, eventType, entityID string, ts time.Time) string {
	key := string(source) + "|" + eventType + "|" + entityID + "|" + ts.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(key))
	id, _ := uuid.FromBytes(sum[:16])
	return id.String()
}

// DurableText extracts the free-text body a payload carries, for the
// ingestion pipeline's embedding fan-out step (spec.md §4.2(c): "event types
// whose payload carries durable text (e.g. PR body, issue description, doc
// page)"). ok is false for structural events (pushes, commits, CI status)
// that have nothing worth embedding.
func DurableText(ev Event) (title, content string, ok bool) {
	var payload map[string]any
	if len(ev.Metadata) == 0 {
		return "", "", false
	}
	if err := json.Unmarshal(ev.Metadata, &payload); err != nil {
		return "", "", false
	}

	switch ev.Source {
	case SourceCodeHost:
		switch ev.EntityType {
		case "pull_request":
			pr, _ := payload["pull_request"].(map[string]any)
			title, _ = pr["title"].(string)
			content, _ = pr["body"].(string)
		case "issue":
			issue, _ := payload["issue"].(map[string]any)
			title, _ = issue["title"].(string)
			content, _ = issue["body"].(string)
		case "issue_comment":
			if issue, ok := payload["issue"].(map[string]any); ok {
				if t, ok := issue["title"].(string); ok {
					title = "Comment on: " + t
				}
			}
			comment, _ := payload["comment"].(map[string]any)
			content, _ = comment["body"].(string)
		}
	case SourceIssueTracker:
		issue, _ := payload["issue"].(map[string]any)
		fields, _ := issue["fields"].(map[string]any)
		title, _ = fields["summary"].(string)
		content, _ = fields["description"].(string)
	case SourceDocs:
		page, _ := payload["page"].(map[string]any)
		title, _ = page["title"].(string)
		content, _ = page["content"].(string)
		if content == "" {
			content, _ = page["body"].(string)
		}
	}

	if strings.TrimSpace(content) == "" {
		return "", "", false
	}
	return title, content, true
}

func finalize(e *Event) {
	if e.EventID == "" {
		e.EventID = DeriveEventID(e.Source, e.EventType, e.EntityID, e.Timestamp)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
