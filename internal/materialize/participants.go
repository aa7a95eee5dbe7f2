package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/engintel/platform/internal/logging"
)

var issueKeyPattern = regexp.MustCompile(`[A-Z]+-\d+`)

// ParticipantSyncResult extends SyncResult with the added count
// sync_task_participants reports.
type ParticipantSyncResult struct {
	SyncResult
	ParticipantsAdded int `json:"participants_added"`
}

// SyncTaskParticipants links PR reviewers to the task whose issue key
// appears in the PR title or branch name, grounded on
// sync_task_participants (e.g. "feature/PROJ-123-description" → PROJ-123).
func (m *Materializer) SyncTaskParticipants(ctx context.Context, sinceHours int) (ParticipantSyncResult, error) {
	ctx, end := logging.Phase(ctx, "sync_task_participants")
	var err error
	defer end(&err)

	events, qerr := m.events.QueryPRReviewedEvents(ctx, sinceHours)
	if qerr != nil {
		err = qerr
		return ParticipantSyncResult{}, err
	}

	var added int

	for _, ev := range events {
		var meta map[string]any
		if uerr := json.Unmarshal([]byte(ev.Metadata), &meta); uerr != nil {
			continue
		}

		haystack := stringField(meta, "pr_title", "") + " " + stringField(meta, "branch", "")
		issueKey := issueKeyPattern.FindString(haystack)
		if issueKey == "" {
			continue
		}

		taskID, terr := m.rel.TaskIDByExternalKey(ctx, "jira", issueKey)
		if terr != nil || taskID == "" {
			continue
		}

		reviewerID, rerr := m.rel.ResolveEmployeeID(ctx, "github", ev.ActorID)
		if rerr != nil || reviewerID == "" {
			continue
		}

		if werr := m.rel.UpsertTaskParticipant(ctx, taskID, reviewerID, "reviewer"); werr == nil {
			added++
		}
	}

	return ParticipantSyncResult{
		SyncResult:        SyncResult{Success: true, Message: fmt.Sprintf("Added %d task participants", added)},
		ParticipantsAdded: added,
	}, nil
}
