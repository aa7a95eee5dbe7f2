package materialize

import (
	"context"
	"fmt"
	"time"

	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
)

// MetricsSyncResult is compute_monthly_metrics's result shape.
type MetricsSyncResult struct {
	SyncResult
	Month              string `json:"month"`
	EmployeesProcessed int    `json:"employees_processed"`
}

// ComputeMonthlyMetrics rolls up per-employee activity counts for the given
// month (YYYY-MM; "" defaults to the previous calendar month, as of now),
// grounded on compute_monthly_metrics.
func (m *Materializer) ComputeMonthlyMetrics(ctx context.Context, month string, now time.Time) (MetricsSyncResult, error) {
	ctx, end := logging.Phase(ctx, "compute_monthly_metrics")
	var err error
	defer end(&err)

	if month == "" {
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		lastMonth := firstOfMonth.AddDate(0, 0, -1)
		month = lastMonth.Format("2006-01")
	}

	monthStart, perr := time.Parse("2006-01", month)
	if perr != nil {
		err = perr
		return MetricsSyncResult{}, err
	}
	monthEnd := monthStart.AddDate(0, 1, 0)

	identities, ierr := m.rel.ActiveEmployeesWithIdentities(ctx)
	if ierr != nil {
		err = ierr
		return MetricsSyncResult{}, err
	}

	var processed int
	for employeeID, actorIDs := range identities {
		counts, cerr := m.events.MonthlyActorCounts(ctx, actorIDs, monthStart, monthEnd)
		if cerr != nil {
			continue
		}

		overdue, blocked, oerr := m.rel.OverdueAndBlockedCounts(ctx, employeeID)
		if oerr != nil {
			continue
		}

		werr := m.rel.UpsertMonthlyMetrics(ctx, relational.MonthlyMetrics{
			EmployeeID:     employeeID,
			Month:          monthStart,
			TasksCompleted: counts.TasksCompleted,
			TasksStarted:   counts.TasksStarted,
			OverdueOpen:    overdue,
			BlockedItems:   blocked,
			PRsMergedCount: counts.PRsMerged,
			PRReviewsCount: counts.PRReviews,
		})
		if werr != nil {
			continue
		}
		processed++
	}

	return MetricsSyncResult{
		SyncResult:         SyncResult{Success: true, Message: fmt.Sprintf("Computed metrics for %d employees for %s", processed, month)},
		Month:              month,
		EmployeesProcessed: processed,
	}, nil
}
