package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
)

// TaskSyncResult extends SyncResult with the created/updated counts
// sync_tasks_from_jira reports.
type TaskSyncResult struct {
	SyncResult
	TasksCreated int `json:"tasks_created"`
	TasksUpdated int `json:"tasks_updated"`
}

// SyncTasksFromJira upserts every Jira issue_created/issue_updated/
// issue_completed event from the last sinceHours into the tasks table,
// grounded on sync_tasks_from_jira.
func (m *Materializer) SyncTasksFromJira(ctx context.Context, sinceHours int) (TaskSyncResult, error) {
	ctx, end := logging.Phase(ctx, "sync_tasks_from_jira")
	var err error
	defer end(&err)

	events, qerr := m.events.QueryJiraIssueEvents(ctx, sinceHours)
	if qerr != nil {
		err = qerr
		return TaskSyncResult{}, err
	}

	var created, updated int
	var syncErrs []string

	for _, ev := range events {
		var meta map[string]any
		if uerr := json.Unmarshal([]byte(ev.Metadata), &meta); uerr != nil {
			syncErrs = appendError(syncErrs, fmt.Sprintf("%s: %v", ev.EntityID, uerr))
			continue
		}

		externalKey := ev.EntityID
		status := stringField(meta, "status", "To Do")

		assigneeID, _ := m.rel.ResolveEmployeeID(ctx, "jira", ev.ActorID)
		reporterID, _ := m.rel.ResolveEmployeeID(ctx, "jira", stringField(meta, "reporter", ""))
		projectID, _ := m.rel.ResolveProjectID(ctx, ev.ProjectID)

		existingID, _ := m.rel.TaskIDByExternalKey(ctx, "jira", externalKey)

		task := relational.Task{
			Source:             "jira",
			ExternalKey:        externalKey,
			ProjectID:          projectID,
			Title:              firstNonEmpty(stringField(meta, "summary", ""), stringField(meta, "title", "")),
			Description:        stringField(meta, "description", ""),
			Status:             status,
			StatusCategory:     MapJiraStatus(status),
			Priority:           stringField(meta, "priority", "Medium"),
			ReporterEmployeeID: ptrOrNil(reporterID),
			AssigneeEmployeeID: ptrOrNil(assigneeID),
			CreatedAtSource:    ev.Timestamp,
			UpdatedAtSource:    ev.Timestamp,
			Labels:             stringSliceField(meta, "labels"),
		}

		if werr := m.rel.UpsertTask(ctx, task); werr != nil {
			syncErrs = appendError(syncErrs, fmt.Sprintf("%s: %v", ev.EntityID, werr))
			continue
		}
		if existingID != "" {
			updated++
		} else {
			created++
		}
	}

	return TaskSyncResult{
		SyncResult: SyncResult{
			Success: true,
			Message: fmt.Sprintf("Synced %d new, %d updated tasks from Jira", created, updated),
			Errors:  syncErrs,
		},
		TasksCreated: created,
		TasksUpdated: updated,
	}, nil
}

// MapJiraStatus maps a raw Jira status string to the fixed status_category
// taxonomy, grounded on _map_jira_status.
func MapJiraStatus(status string) string {
	switch strings.ToLower(status) {
	case "to do", "open", "backlog", "new":
		return "todo"
	case "in progress", "in development", "in review", "code review":
		return "in_progress"
	case "done", "closed", "resolved", "completed":
		return "done"
	case "blocked", "on hold", "waiting":
		return "blocked"
	default:
		return "todo"
	}
}

func stringField(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
