package materialize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
)

// TaskEventSyncResult extends SyncResult with the inserted count
// sync_task_events reports.
type TaskEventSyncResult struct {
	SyncResult
	EventsInserted int `json:"events_inserted"`
}

// SyncTaskEvents materialises Jira status-transition events into the
// task_events table, grounded on sync_task_events. Events referencing a
// task that hasn't been materialised yet are skipped, not errored — the
// task sync is expected to run first (run_full_sync's ordering).
func (m *Materializer) SyncTaskEvents(ctx context.Context, sinceHours int) (TaskEventSyncResult, error) {
	ctx, end := logging.Phase(ctx, "sync_task_events")
	var err error
	defer end(&err)

	events, qerr := m.events.QueryJiraStatusChangeEvents(ctx, sinceHours)
	if qerr != nil {
		err = qerr
		return TaskEventSyncResult{}, err
	}

	var inserted int
	var syncErrs []string

	for _, ev := range events {
		var meta map[string]any
		if uerr := json.Unmarshal([]byte(ev.Metadata), &meta); uerr != nil {
			syncErrs = appendError(syncErrs, fmt.Sprintf("%s: %v", ev.EntityID, uerr))
			continue
		}

		taskID, terr := m.rel.TaskIDByExternalKey(ctx, "jira", ev.EntityID)
		if terr != nil || taskID == "" {
			continue
		}

		actorID, _ := m.rel.ResolveEmployeeID(ctx, "jira", ev.ActorID)

		ok, werr := m.rel.InsertTaskEventIfAbsent(ctx, relational.TaskEvent{
			TaskID:          taskID,
			OccurredAt:      ev.Timestamp,
			EventType:       "status_change",
			FromValue:       stringField(meta, "status_from", ""),
			ToValue:         stringField(meta, "status_to", ""),
			ActorEmployeeID: ptrOrNil(actorID),
			Payload:         meta,
		})
		if werr != nil {
			syncErrs = appendError(syncErrs, fmt.Sprintf("%s: %v", ev.EntityID, werr))
			continue
		}
		if ok {
			inserted++
		}
	}

	return TaskEventSyncResult{
		SyncResult:     SyncResult{Success: true, Message: fmt.Sprintf("Synced %d task events", inserted), Errors: syncErrs},
		EventsInserted: inserted,
	}, nil
}
