package normalize

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveEventID_Deterministic(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	id1 := DeriveEventID(SourceCodeHost, "push", "abc123", ts)
	id2 := DeriveEventID(SourceCodeHost, "push", "abc123", ts)
	require.Equal(t, id1, id2)
}

func TestDeriveEventID_DiffersByNaturalKey(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	id1 := DeriveEventID(SourceCodeHost, "push", "abc123", ts)
	id2 := DeriveEventID(SourceCodeHost, "push", "def456", ts)
	require.NotEqual(t, id1, id2)
}

func TestGitHubEventType_PrefersHeader(t *testing.T) {
	t.Parallel()
	headers := http.Header{}
	headers.Set("X-GitHub-Event", "pull_request")
	got := GitHubEventType(map[string]any{"ref": "refs/heads/main", "commits": []any{}, "pusher": map[string]any{}}, headers)
	require.Equal(t, "pull_request", got)
}

func TestGitHubEventType_StructuralSniffing(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"ref":     "refs/heads/main",
		"commits": []any{},
		"pusher":  map[string]any{"name": "alice"},
	}
	require.Equal(t, "push", GitHubEventType(payload, nil))
}

func TestGitHubEventType_UnknownFallsBackToAction(t *testing.T) {
	t.Parallel()
	payload := map[string]any{"action": "something_weird"}
	require.Equal(t, "unknown_something_weird", GitHubEventType(payload, nil))
}

func TestNormalizeGitHub_Push(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"ref": "refs/heads/main",
		"commits": []any{
			map[string]any{"id": "sha1", "message": "fix bug"},
		},
		"pusher": map[string]any{"name": "alice", "email": "alice@example.com"},
		"head_commit": map[string]any{
			"id":        "sha1",
			"timestamp": "2026-01-15T10:00:00Z",
			"author":    map[string]any{"email": "alice@example.com"},
		},
		"repository": map[string]any{"full_name": "acme/widgets"},
	}
	ev := NormalizeGitHub(payload, nil)
	require.Equal(t, SourceCodeHost, ev.Source)
	require.Equal(t, "push", ev.EventType)
	require.Equal(t, "sha1", ev.EntityID)
	require.Equal(t, "commit", ev.EntityType)
	require.Equal(t, "acme/widgets", ev.ProjectID)
	require.Equal(t, "alice@example.com", ev.ActorID)
	require.NotEmpty(t, ev.EventID)
}

func TestNormalizeIssueTracker_ExtractsProjectFromIssueKey(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"webhookEvent": "jira:issue_created",
		"issue":        map[string]any{"key": "PROJ-123"},
		"user":         map[string]any{"displayName": "John Doe"},
	}
	ev := NormalizeIssueTracker(payload)
	require.Equal(t, SourceIssueTracker, ev.Source)
	require.Equal(t, "jira:issue_created", ev.EventType)
	require.Equal(t, "PROJ-123", ev.EntityID)
	require.Equal(t, "PROJ", ev.ProjectID)
	require.Equal(t, "John Doe", ev.ActorID)
}

func TestNormalizeGitHub_Idempotent(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"ref":     "refs/heads/main",
		"commits": []any{},
		"pusher":  map[string]any{},
		"head_commit": map[string]any{
			"id":        "sha-dup",
			"timestamp": "2026-01-15T10:00:00Z",
		},
		"repository": map[string]any{"full_name": "acme/widgets"},
	}
	ev1 := NormalizeGitHub(payload, nil)
	ev2 := NormalizeGitHub(payload, nil)
	require.Equal(t, ev1.EventID, ev2.EventID)
}
