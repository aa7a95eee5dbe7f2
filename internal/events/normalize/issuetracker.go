package normalize

import (
	"time"
)

// NormalizeIssueTracker turns a Jira Cloud webhook payload into the
// canonical Event. Grounded on
// original_source/data-extraction-api/routers/webhooks/jira.py: event type
// comes from the `webhookEvent` field (e.g. "jira:issue_created"), and the
// entity is the issue key (`issue.key`, e.g. "PROJ-123").
func NormalizeIssueTracker(payload map[string]any) Event {
	eventType, _ := payload["webhookEvent"].(string)
	if eventType == "" {
		eventType = "unknown"
	}

	issue, _ := payload["issue"].(map[string]any)
	var entityID, projectID string
	if issue != nil {
		entityID, _ = issue["key"].(string)
		projectID = projectKeyFromIssueKey(entityID)
	}

	var actorID string
	if user, ok := payload["user"].(map[string]any); ok {
		if name, ok := user["displayName"].(string); ok {
			actorID = name
		}
		if email, ok := user["emailAddress"].(string); ok && email != "" {
			actorID = email
		}
	}

	ts := time.Now().UTC()
	if ms, ok := payload["timestamp"].(float64); ok && ms > 0 {
		ts = time.UnixMilli(int64(ms)).UTC()
	}

	ev := Event{
		Timestamp:  ts,
		Source:     SourceIssueTracker,
		EventType:  eventType,
		ProjectID:  projectID,
		ActorID:    actorID,
		EntityID:   entityID,
		EntityType: "issue",
		Metadata:   mustMarshal(payload),
	}
	finalize(&ev)
	return ev
}

// projectKeyFromIssueKey extracts the project key prefix from an issue key
// like "PROJ-123" -> "PROJ".
func projectKeyFromIssueKey(issueKey string) string {
	for i, r := range issueKey {
		if r == '-' {
			return issueKey[:i]
		}
	}
	return ""
}
