package pipelines

import (
	"context"
	"math"
	"time"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/tsdb"
)

// AnomalyZThreshold is the z-score magnitude beyond which a metric is
// flagged, pinned by SPEC_FULL.md's supplement of
// original_source/agents/tools/anomaly_tools.py / datathon-agent's
// anomaly_pipeline.py (undetailed in spec.md itself).
const AnomalyZThreshold = 2.0

// WindowMetricsReader is the subset of *tsdb.Store anomaly detection needs.
type WindowMetricsReader interface {
	WindowMetrics(ctx context.Context, projectID string, from, to time.Time) (tsdb.WindowCounts, error)
}

// Anomaly is one flagged metric.
type Anomaly struct {
	Metric       string  `json:"metric"`
	CurrentValue float64 `json:"current_value"`
	BaselineMean float64 `json:"baseline_mean"`
	ZScore       float64 `json:"z_score"`
}

// AnomalyResult is detect_anomalies's output.
type AnomalyResult struct {
	ProjectID string    `json:"project_id"`
	Anomalies []Anomaly `json:"anomalies"`
	Status    string    `json:"status"`
}

const (
	AnomalyStatusOK      = "ok"
	AnomalyStatusFlagged = "anomalies_detected"
)

// DetectAnomalies compares a current window against a historical baseline
// window per metric (deploy count, failed-deploy count, tasks completed),
// using the baseline's per-day rate as the reference mean and a Poisson-like
// standard deviation (sqrt of the mean) to compute a z-score — a workable
// approximation given the system has no persisted historical series of
// per-day samples to compute a true sample standard deviation from.
func DetectAnomalies(ctx context.Context, store WindowMetricsReader, projectID string, daysCurrent, daysBaseline int, now time.Time) (AnomalyResult, error) {
	if daysCurrent <= 0 {
		daysCurrent = 7
	}
	if daysBaseline <= 0 {
		daysBaseline = 30
	}
	ctx, done := logging.Phase(ctx, "detect_anomalies")
	var err error
	defer done(&err)

	currentFrom := now.Add(-time.Duration(daysCurrent) * 24 * time.Hour)
	baselineFrom := now.Add(-time.Duration(daysBaseline) * 24 * time.Hour)

	current, err := store.WindowMetrics(ctx, projectID, currentFrom, now)
	if err != nil {
		return AnomalyResult{}, err
	}
	baseline, err := store.WindowMetrics(ctx, projectID, baselineFrom, currentFrom)
	if err != nil {
		return AnomalyResult{}, err
	}

	baselineDays := float64(daysBaseline - daysCurrent)
	if baselineDays <= 0 {
		err = errs.New(errs.InvalidInput, "days_baseline must exceed days_current")
		return AnomalyResult{}, err
	}
	currentDays := float64(daysCurrent)

	anomalies := []Anomaly{
		scoreMetric("deployment_count", float64(current.Deployments), float64(baseline.Deployments), currentDays, baselineDays),
		scoreMetric("failed_deployment_count", float64(current.FailedDeployments), float64(baseline.FailedDeployments), currentDays, baselineDays),
		scoreMetric("tasks_completed", float64(current.TasksCompleted), float64(baseline.TasksCompleted), currentDays, baselineDays),
	}

	flagged := make([]Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if math.Abs(a.ZScore) >= AnomalyZThreshold {
			flagged = append(flagged, a)
		}
	}

	status := AnomalyStatusOK
	if len(flagged) > 0 {
		status = AnomalyStatusFlagged
	}
	return AnomalyResult{ProjectID: projectID, Anomalies: flagged, Status: status}, nil
}

// scoreMetric computes a z-score for one metric: the current window's daily
// rate against the baseline window's daily rate, using sqrt(mean) as the
// standard deviation under a Poisson-count assumption (event counts over a
// fixed window are well modeled this way absent a richer historical series).
func scoreMetric(name string, currentCount, baselineCount, currentDays, baselineDays float64) Anomaly {
	currentRate := currentCount / currentDays
	baselineRate := baselineCount / baselineDays
	expectedCount := baselineRate * currentDays

	stddev := math.Sqrt(expectedCount)
	var z float64
	if stddev > 0 {
		z = (currentCount - expectedCount) / stddev
	} else if currentCount > 0 {
		z = AnomalyZThreshold // any activity against a zero baseline is notable
	}

	return Anomaly{Metric: name, CurrentValue: currentRate, BaselineMean: baselineRate, ZScore: z}
}
