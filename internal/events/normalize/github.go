package normalize

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// githubEventTypeIndicators mirrors github_validator.py's
// EVENT_TYPE_INDICATORS table: a payload that contains every listed key is
// inferred to be that event type when the header is absent.
var githubEventTypeIndicators = []struct {
	eventType string
	fields    []string
}{
	{"push", []string{"ref", "commits", "pusher"}},
	{"pull_request", []string{"pull_request", "action"}},
	{"issues", []string{"issue", "action"}},
	{"issue_comment", []string{"issue", "comment", "action"}},
	{"create", []string{"ref", "ref_type"}},
	{"delete", []string{"ref", "ref_type"}},
	{"release", []string{"release", "action"}},
	{"workflow_run", []string{"workflow_run", "action"}},
	{"check_run", []string{"check_run", "action"}},
	{"check_suite", []string{"check_suite", "action"}},
	{"deployment", []string{"deployment"}},
	{"deployment_status", []string{"deployment_status", "deployment"}},
	{"status", []string{"state", "sha", "commit"}},
}

// GitHubEventType extracts the event type, preferring the X-GitHub-Event
// header (most reliable) and falling back to structural sniffing, exactly as
// get_github_event_type does in github_validator.py.
func GitHubEventType(payload map[string]any, headers http.Header) string {
	if headers != nil {
		if v := headers.Get("X-GitHub-Event"); v != "" {
			return v
		}
	}
	for _, ind := range githubEventTypeIndicators {
		if hasAll(payload, ind.fields) {
			return ind.eventType
		}
	}
	if _, hasZen := payload["zen"]; hasZen {
		if _, hasHook := payload["hook_id"]; hasHook {
			return "ping"
		}
	}
	action, ok := payload["action"].(string)
	if !ok || action == "" {
		action = "unknown"
	}
	return "unknown_" + action
}

func hasAll(payload map[string]any, fields []string) bool {
	for _, f := range fields {
		if _, ok := payload[f]; !ok {
			return false
		}
	}
	return true
}

// NormalizeGitHub turns a GitHub webhook payload into the canonical Event,
// matching normalize_github.py's per-event-type field extraction
// (push/pull_request/issues/issue_comment), with an opaque pass-through for
// every other event type.
func NormalizeGitHub(payload map[string]any, headers http.Header) Event {
	eventType := GitHubEventType(payload, headers)
	repo, _ := payload["repository"].(map[string]any)

	var (
		entityID   string
		entityType string
		actorID    string
		ts         time.Time
	)

	switch eventType {
	case "push":
		if headCommit, ok := payload["head_commit"].(map[string]any); ok {
			entityID, _ = headCommit["id"].(string)
			ts = parseISO(headCommit["timestamp"])
			if author, ok := headCommit["author"].(map[string]any); ok {
				actorID = extractUserIdentity(author)
			}
		}
		if actorID == "" {
			if pusher, ok := payload["pusher"].(map[string]any); ok {
				actorID = extractUserIdentity(pusher)
			}
		}
		entityType = "commit"

	case "pull_request":
		pr, _ := payload["pull_request"].(map[string]any)
		if pr != nil {
			if n, ok := pr["number"]; ok {
				entityID = jsonString(n)
			}
			ts = parseISO(pr["updated_at"])
			if user, ok := pr["user"].(map[string]any); ok {
				actorID = extractUserIdentity(user)
			}
		}
		entityType = "pull_request"

	case "issues":
		issue, _ := payload["issue"].(map[string]any)
		if issue != nil {
			if n, ok := issue["number"]; ok {
				entityID = jsonString(n)
			}
			ts = parseISO(issue["updated_at"])
			if user, ok := issue["user"].(map[string]any); ok {
				actorID = extractUserIdentity(user)
			}
		}
		entityType = "issue"

	case "issue_comment":
		issue, _ := payload["issue"].(map[string]any)
		comment, _ := payload["comment"].(map[string]any)
		if issue != nil {
			if n, ok := issue["number"]; ok {
				entityID = jsonString(n)
			}
		}
		if comment != nil {
			ts = parseISO(comment["created_at"])
			if user, ok := comment["user"].(map[string]any); ok {
				actorID = extractUserIdentity(user)
			}
		}
		entityType = "issue_comment"

	default:
		entityType = eventType
	}

	var projectID string
	if repo != nil {
		projectID, _ = repo["full_name"].(string)
	}

	ev := Event{
		Timestamp:  ts,
		Source:     SourceCodeHost,
		EventType:  eventType,
		ProjectID:  projectID,
		ActorID:    actorID,
		EntityID:   entityID,
		EntityType: entityType,
		Metadata:   mustMarshal(payload),
	}
	finalize(&ev)
	return ev
}

func extractUserIdentity(user map[string]any) string {
	if user == nil {
		return ""
	}
	if email, ok := user["email"].(string); ok && email != "" {
		return email
	}
	if username, ok := user["username"].(string); ok && username != "" {
		return username
	}
	if login, ok := user["login"].(string); ok && login != "" {
		return login
	}
	if name, ok := user["name"].(string); ok && name != "" {
		return name
	}
	return ""
}

func parseISO(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func jsonString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
