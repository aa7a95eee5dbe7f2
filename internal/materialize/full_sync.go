package materialize

import (
	"context"

	"github.com/engintel/platform/internal/logging"
)

// FullSyncResult is run_full_sync's result shape.
type FullSyncResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Results FullSyncRun `json:"results"`
}

// FullSyncRun groups the per-stage results, run in the Python reference's
// fixed order: tasks before task_events (events reference materialised
// tasks) before participants and CI pipelines.
type FullSyncRun struct {
	Tasks            TaskSyncResult        `json:"tasks"`
	TaskEvents       TaskEventSyncResult   `json:"task_events"`
	TaskParticipants ParticipantSyncResult `json:"task_participants"`
	CIPipelines      CIPipelineSyncResult  `json:"ci_pipelines"`
}

// RunFullSync runs every sync stage in sequence, grounded on run_full_sync.
// A failure in one stage doesn't abort the rest — each stage's own Errors
// list carries its partial failures.
func (m *Materializer) RunFullSync(ctx context.Context, sinceHours int) (FullSyncResult, error) {
	ctx, end := logging.Phase(ctx, "run_full_sync")
	var err error
	defer end(&err)

	tasks, terr := m.SyncTasksFromJira(ctx, sinceHours)
	if terr != nil {
		err = terr
	}
	taskEvents, eerr := m.SyncTaskEvents(ctx, sinceHours)
	if eerr != nil && err == nil {
		err = eerr
	}
	participants, perr := m.SyncTaskParticipants(ctx, sinceHours)
	if perr != nil && err == nil {
		err = perr
	}
	ci, cerr := m.SyncCIPipelines(ctx, sinceHours)
	if cerr != nil && err == nil {
		err = cerr
	}

	return FullSyncResult{
		Success: err == nil,
		Message: "Full sync completed",
		Results: FullSyncRun{
			Tasks:            tasks,
			TaskEvents:       taskEvents,
			TaskParticipants: participants,
			CIPipelines:      ci,
		},
	}, err
}
