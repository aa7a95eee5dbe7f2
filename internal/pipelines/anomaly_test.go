package pipelines

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/store/tsdb"
)

type fakeWindowReader struct {
	current  tsdb.WindowCounts
	baseline tsdb.WindowCounts
	calls    int
}

func (f *fakeWindowReader) WindowMetrics(ctx context.Context, projectID string, from, to time.Time) (tsdb.WindowCounts, error) {
	f.calls++
	if f.calls == 1 {
		return f.current, nil
	}
	return f.baseline, nil
}

func TestDetectAnomalies_FlagsSpike(t *testing.T) {
	t.Parallel()
	reader := &fakeWindowReader{
		current:  tsdb.WindowCounts{FailedDeployments: 20},
		baseline: tsdb.WindowCounts{FailedDeployments: 2},
	}
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	result, err := DetectAnomalies(context.Background(), reader, "proj-1", 7, 30, now)
	require.NoError(t, err)
	require.Equal(t, AnomalyStatusFlagged, result.Status)
	found := false
	for _, a := range result.Anomalies {
		if a.Metric == "failed_deployment_count" {
			found = true
			require.GreaterOrEqual(t, a.ZScore, AnomalyZThreshold)
		}
	}
	require.True(t, found)
}

func TestDetectAnomalies_NoAnomalyWhenStable(t *testing.T) {
	t.Parallel()
	reader := &fakeWindowReader{
		current:  tsdb.WindowCounts{Deployments: 7, FailedDeployments: 1, TasksCompleted: 14},
		baseline: tsdb.WindowCounts{Deployments: 23, FailedDeployments: 3, TasksCompleted: 46},
	}
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	result, err := DetectAnomalies(context.Background(), reader, "proj-1", 7, 30, now)
	require.NoError(t, err)
	require.Equal(t, AnomalyStatusOK, result.Status)
	require.Empty(t, result.Anomalies)
}

func TestDetectAnomalies_InvalidWindow(t *testing.T) {
	t.Parallel()
	reader := &fakeWindowReader{}
	_, err := DetectAnomalies(context.Background(), reader, "", 30, 30, time.Now())
	require.Error(t, err)
}

func TestScoreMetric_ZeroBaselineWithActivity(t *testing.T) {
	t.Parallel()
	a := scoreMetric("x", 5, 0, 7, 23)
	require.GreaterOrEqual(t, a.ZScore, AnomalyZThreshold)
}

func TestScoreMetric_ZeroEverywhere(t *testing.T) {
	t.Parallel()
	a := scoreMetric("x", 0, 0, 7, 23)
	require.Equal(t, 0.0, a.ZScore)
}
