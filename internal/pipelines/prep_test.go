package pipelines

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
)

type fakeEmployeeFinder struct {
	emp      *relational.Employee
	workload *relational.Workload
	blocked  []relational.Task
	recent   []relational.Task
}

func (f *fakeEmployeeFinder) GetEmployee(ctx context.Context, id, email, name string) (*relational.Employee, error) {
	if f.emp == nil {
		return nil, errs.New(errs.NotFound, "developer not found")
	}
	return f.emp, nil
}

func (f *fakeEmployeeFinder) GetDeveloperWorkload(ctx context.Context, employeeID string) (*relational.Workload, error) {
	return f.workload, nil
}

func (f *fakeEmployeeFinder) ListTasksByAssignee(ctx context.Context, employeeID, statusCategory string, limit int) ([]relational.Task, error) {
	if statusCategory == "blocked" {
		return f.blocked, nil
	}
	return f.recent, nil
}

type fakeActivityReader struct {
	activity *tsdb.DeveloperActivity
}

func (f *fakeActivityReader) GetDeveloperActivity(ctx context.Context, actorID string, days int) (*tsdb.DeveloperActivity, error) {
	return f.activity, nil
}

func TestPrepPipeline_PrepareOneOnOne_DeveloperNotFound(t *testing.T) {
	t.Parallel()
	p := NewPrepPipeline(&fakeEmployeeFinder{}, &fakeActivityReader{}, &scriptedLLM{})
	result, err := p.PrepareOneOnOne(context.Background(), "Nobody", "")
	require.NoError(t, err)
	require.Equal(t, PrepStatusDeveloperNotFound, result.Status)
}

func TestPrepPipeline_PrepareOneOnOne_OK(t *testing.T) {
	t.Parallel()
	employees := &fakeEmployeeFinder{
		emp:      &relational.Employee{ID: "emp-1", FullName: "Alice", Title: "Senior Engineer"},
		workload: &relational.Workload{EmployeeID: "emp-1", TotalAllocationPercent: 120, IsOverallocated: true},
		blocked:  []relational.Task{{Title: "Fix outage", Status: "blocked", ProjectID: "proj-1"}},
		recent:   []relational.Task{{Title: "Ship feature", Status: "in_progress", ProjectID: "proj-1"}},
	}
	activity := &fakeActivityReader{activity: &tsdb.DeveloperActivity{ActorID: "emp-1", Commits: 3, PRsMerged: 1, PRReviews: 0, IssuesClosed: 2}}
	model := &scriptedLLM{replies: []string{"Alice is busy but on track."}}

	p := NewPrepPipeline(employees, activity, model)
	result, err := p.PrepareOneOnOne(context.Background(), "Alice", "Discuss promo readiness.")
	require.NoError(t, err)
	require.Equal(t, PrepStatusOK, result.Status)
	require.Len(t, result.BlockedItems, 1)
	require.Len(t, result.RecentActivity, 1)
	require.NotEmpty(t, result.TalkingPoints)
	require.Contains(t, result.Summary, "Alice")

	foundOverallocated := false
	for _, tp := range result.TalkingPoints {
		if strings.Contains(tp, "overallocated") {
			foundOverallocated = true
		}
	}
	require.True(t, foundOverallocated)
}

func TestPrepPipeline_SuggestTalkingPoints(t *testing.T) {
	t.Parallel()
	employees := &fakeEmployeeFinder{
		emp:      &relational.Employee{ID: "emp-1", FullName: "Bob"},
		workload: &relational.Workload{EmployeeID: "emp-1", TotalAllocationPercent: 80},
		blocked:  nil,
	}
	activity := &fakeActivityReader{activity: &tsdb.DeveloperActivity{ActorID: "emp-1", Commits: 0, PRsMerged: 0, PRReviews: 0, IssuesClosed: 0}}
	p := NewPrepPipeline(employees, activity, &scriptedLLM{})
	points, err := p.SuggestTalkingPoints(context.Background(), "Bob")
	require.NoError(t, err)
	require.NotEmpty(t, points)
}

func TestToSummaries(t *testing.T) {
	t.Parallel()
	tasks := []relational.Task{{Title: "a", Status: "open", ProjectID: "p1"}}
	out := toSummaries(tasks)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Title)
}
