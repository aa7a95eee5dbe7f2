package normalize

import "time"

// NormalizeDocs turns a documentation-platform webhook payload (page
// create/update/assign, per spec.md §4.7's external-actions list) into the
// canonical Event. No concrete docs provider payload was present in the
// retrieved reference material, so this reads only payload fields (no
// header): the event type from "event_type", falling back to "type", plus
// the fields spec.md names for docs events: page id, space/project, and the
// acting user.
func NormalizeDocs(payload map[string]any) Event {
	eventType, _ := payload["event_type"].(string)
	if eventType == "" {
		eventType, _ = payload["type"].(string)
	}
	if eventType == "" {
		eventType = "unknown"
	}

	var entityID, projectID, actorID string
	if page, ok := payload["page"].(map[string]any); ok {
		if id, ok := page["id"].(string); ok {
			entityID = id
		}
		if space, ok := page["space"].(string); ok {
			projectID = space
		}
	}
	if user, ok := payload["actor"].(map[string]any); ok {
		actorID = extractUserIdentity(user)
	}

	ts := time.Now().UTC()
	if s, ok := payload["timestamp"].(string); ok {
		if t := parseISO(s); !t.IsZero() {
			ts = t
		}
	}

	ev := Event{
		Timestamp:  ts,
		Source:     SourceDocs,
		EventType:  eventType,
		ProjectID:  projectID,
		ActorID:    actorID,
		EntityID:   entityID,
		EntityType: "page",
		Metadata:   mustMarshal(payload),
	}
	finalize(&ev)
	return ev
}
