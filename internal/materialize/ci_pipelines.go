package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
)

// CIPipelineSyncResult extends SyncResult with the created/updated counts
// sync_ci_pipelines reports.
type CIPipelineSyncResult struct {
	SyncResult
	PipelinesCreated int `json:"pipelines_created"`
	PipelinesUpdated int `json:"pipelines_updated"`
}

// SyncCIPipelines upserts GitHub workflow_run/deployment events into the
// ci_pipelines table keyed by (project_id, commit_sha), grounded on
// sync_ci_pipelines.
func (m *Materializer) SyncCIPipelines(ctx context.Context, sinceHours int) (CIPipelineSyncResult, error) {
	ctx, end := logging.Phase(ctx, "sync_ci_pipelines")
	var err error
	defer end(&err)

	events, qerr := m.events.QueryCIEvents(ctx, sinceHours)
	if qerr != nil {
		err = qerr
		return CIPipelineSyncResult{}, err
	}

	var created, updated int

	for _, ev := range events {
		var meta map[string]any
		if uerr := json.Unmarshal([]byte(ev.Metadata), &meta); uerr != nil {
			continue
		}

		commitSHA := truncate(firstNonEmpty(stringField(meta, "commit_sha", ""), stringField(meta, "sha", "")), 40)
		status := firstNonEmpty(stringField(meta, "conclusion", ""), stringField(meta, "status", ""), "unknown")
		projectID, _ := m.rel.ResolveProjectID(ctx, ev.ProjectID)
		triggerActor, _ := m.rel.ResolveEmployeeID(ctx, "github", ev.ActorID)

		existingID, _ := m.rel.CiPipelineIDByCommit(ctx, commitSHA, projectID)

		var finishedAt *time.Time
		var errorLog string
		if status == "success" || status == "failure" {
			ts := ev.Timestamp
			finishedAt = &ts
		}
		if status == "failure" {
			errorLog = stringField(meta, "error_message", "")
		}

		pipeline := relational.CiPipeline{
			ProjectID:    projectID,
			CommitSHA:    commitSHA,
			Status:       status,
			StartedAt:    ev.Timestamp,
			FinishedAt:   finishedAt,
			ErrorLog:     errorLog,
			TriggerActor: ptrOrNil(triggerActor),
		}

		if werr := m.rel.UpsertCiPipeline(ctx, pipeline); werr != nil {
			continue
		}
		if existingID != "" {
			updated++
		} else {
			created++
		}
	}

	return CIPipelineSyncResult{
		SyncResult:       SyncResult{Success: true, Message: fmt.Sprintf("Synced %d new, %d updated CI pipelines", created, updated)},
		PipelinesCreated: created,
		PipelinesUpdated: updated,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
