package pipelines

import (
	"context"
	"fmt"
	"strings"

	"github.com/engintel/platform/internal/errs"
	"github.com/engintel/platform/internal/llm"
	"github.com/engintel/platform/internal/logging"
	"github.com/engintel/platform/internal/store/relational"
	"github.com/engintel/platform/internal/store/tsdb"
)

// RecentActivityDays and BlockedItemsLimit bound the data the prep pipeline
// pulls in before synthesizing a briefing.
const (
	RecentActivityDays = 14
	BlockedItemsLimit  = 10
)

// TaskSummary is one entry of PrepResult's RecentActivity/BlockedItems.
type TaskSummary struct {
	Title     string `json:"title"`
	Status    string `json:"status"`
	ProjectID string `json:"project_id"`
}

// PrepResult is prepare_one_on_one's output (SPEC_FULL.md's fixed shape:
// {summary, workload, recent_activity[], blocked_items[], talking_points[]}).
type PrepResult struct {
	Status            string                  `json:"status"`
	Summary           string                  `json:"summary"`
	Workload          *relational.Workload    `json:"workload,omitempty"`
	RecentActivity    []TaskSummary           `json:"recent_activity"`
	BlockedItems      []TaskSummary           `json:"blocked_items"`
	TalkingPoints     []string                `json:"talking_points"`
	DeveloperActivity *tsdb.DeveloperActivity `json:"developer_activity,omitempty"`
}

const (
	PrepStatusOK                = "ok"
	PrepStatusDeveloperNotFound = "developer_not_found"
)

// EmployeeFinder is the subset of *relational.Store the prep pipeline uses
// to resolve a developer by name or email.
type EmployeeFinder interface {
	GetEmployee(ctx context.Context, id, email, name string) (*relational.Employee, error)
	GetDeveloperWorkload(ctx context.Context, employeeID string) (*relational.Workload, error)
	ListTasksByAssignee(ctx context.Context, employeeID, statusCategory string, limit int) ([]relational.Task, error)
}

// DeveloperActivityReader is the subset of *tsdb.Store the prep pipeline
// uses for recent commit/PR/review activity.
type DeveloperActivityReader interface {
	GetDeveloperActivity(ctx context.Context, actorID string, days int) (*tsdb.DeveloperActivity, error)
}

// PrepPipeline composes a 1:1 meeting briefing, grounded on
// original_source/agents/tools/prep_tools.py's prepare_one_on_one.
type PrepPipeline struct {
	employees EmployeeFinder
	activity  DeveloperActivityReader
	llm       llm.Client
}

// NewPrepPipeline builds a PrepPipeline.
func NewPrepPipeline(employees EmployeeFinder, activity DeveloperActivityReader, model llm.Client) *PrepPipeline {
	return &PrepPipeline{employees: employees, activity: activity, llm: model}
}

// PrepareOneOnOne runs the 1:1 prep pipeline for developerName (a name or
// email), optionally seeded with free-text managerContext.
func (p *PrepPipeline) PrepareOneOnOne(ctx context.Context, developerName, managerContext string) (PrepResult, error) {
	if strings.TrimSpace(developerName) == "" {
		return PrepResult{}, errs.New(errs.InvalidInput, "developer_name must not be empty")
	}
	ctx, done := logging.Phase(ctx, "prepare_one_on_one")
	var err error
	defer done(&err)

	emp, lookupErr := p.resolveEmployee(ctx, developerName)
	if lookupErr != nil {
		if errs.KindOf(lookupErr) == errs.NotFound {
			return PrepResult{Status: PrepStatusDeveloperNotFound}, nil
		}
		err = lookupErr
		return PrepResult{}, err
	}

	workload, err := p.employees.GetDeveloperWorkload(ctx, emp.ID)
	if err != nil {
		return PrepResult{}, err
	}
	blockedTasks, err := p.employees.ListTasksByAssignee(ctx, emp.ID, "blocked", BlockedItemsLimit)
	if err != nil {
		return PrepResult{}, err
	}
	recentTasks, err := p.employees.ListTasksByAssignee(ctx, emp.ID, "", BlockedItemsLimit)
	if err != nil {
		return PrepResult{}, err
	}
	devActivity, err := p.activity.GetDeveloperActivity(ctx, emp.ID, RecentActivityDays)
	if err != nil {
		return PrepResult{}, err
	}
	err = nil

	recent := toSummaries(recentTasks)
	blocked := toSummaries(blockedTasks)

	summary := p.synthesizeSummary(ctx, emp, workload, devActivity, blocked, managerContext)
	points := p.suggestTalkingPoints(ctx, emp, workload, blocked, devActivity)

	return PrepResult{
		Status:            PrepStatusOK,
		Summary:           summary,
		Workload:          workload,
		RecentActivity:    recent,
		BlockedItems:      blocked,
		TalkingPoints:     points,
		DeveloperActivity: devActivity,
	}, nil
}

// SuggestTalkingPoints derives a short bullet list without a full briefing
// synthesis call, exposed as its own tool per SPEC_FULL.md.
func (p *PrepPipeline) SuggestTalkingPoints(ctx context.Context, developerName string) ([]string, error) {
	emp, err := p.resolveEmployee(ctx, developerName)
	if err != nil {
		return nil, err
	}
	workload, err := p.employees.GetDeveloperWorkload(ctx, emp.ID)
	if err != nil {
		return nil, err
	}
	blocked, err := p.employees.ListTasksByAssignee(ctx, emp.ID, "blocked", BlockedItemsLimit)
	if err != nil {
		return nil, err
	}
	devActivity, err := p.activity.GetDeveloperActivity(ctx, emp.ID, RecentActivityDays)
	if err != nil {
		return nil, err
	}
	return p.suggestTalkingPoints(ctx, emp, workload, blocked, devActivity), nil
}

func (p *PrepPipeline) resolveEmployee(ctx context.Context, developerName string) (*relational.Employee, error) {
	lookup := developerName
	if strings.Contains(lookup, "@") {
		return p.employees.GetEmployee(ctx, "", lookup, "")
	}
	return p.employees.GetEmployee(ctx, "", "", lookup)
}

func (p *PrepPipeline) synthesizeSummary(ctx context.Context, emp *relational.Employee, workload *relational.Workload, activity *tsdb.DeveloperActivity, blocked []TaskSummary, managerContext string) string {
	var blockedList strings.Builder
	for _, b := range blocked {
		fmt.Fprintf(&blockedList, "- %s (%s)\n", b.Title, b.Status)
	}
	prompt := fmt.Sprintf(
		"Prepare a short 1:1 meeting briefing for %s (%s).\n"+
			"Workload: %d%% allocated, overallocated=%v.\n"+
			"Recent activity (last %d days): %d commits, %d PRs merged, %d reviews, %d issues closed.\n"+
			"Blocked items:\n%s\nManager notes: %s\n\n"+
			"Write 2-3 sentences summarizing their current state and anything the manager should be aware of.",
		emp.FullName, emp.Title, workload.TotalAllocationPercent, workload.IsOverallocated,
		RecentActivityDays, activity.Commits, activity.PRsMerged, activity.PRReviews, activity.IssuesClosed,
		blockedList.String(), managerContext)
	resp, err := p.llm.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return fmt.Sprintf("%s is at %d%% allocation with %d blocked item(s).", emp.FullName, workload.TotalAllocationPercent, len(blocked))
	}
	return replyText(resp)
}

func (p *PrepPipeline) suggestTalkingPoints(ctx context.Context, emp *relational.Employee, workload *relational.Workload, blocked []TaskSummary, activity *tsdb.DeveloperActivity) []string {
	points := make([]string, 0, 4)
	if workload.IsOverallocated {
		points = append(points, fmt.Sprintf("%s is overallocated at %d%% — discuss rebalancing.", emp.FullName, workload.TotalAllocationPercent))
	}
	if len(blocked) > 0 {
		points = append(points, fmt.Sprintf("%d blocked item(s) need unblocking, starting with \"%s\".", len(blocked), blocked[0].Title))
	}
	if activity.PRReviews == 0 {
		points = append(points, "No PR reviews in the recent window — check review load balance.")
	}
	if activity.Commits == 0 && activity.PRsMerged == 0 {
		points = append(points, "No commits or merged PRs in the recent window — worth checking in on progress.")
	}
	if len(points) == 0 {
		points = append(points, "No notable flags this period — good opportunity for growth/career conversation.")
	}
	return points
}

func toSummaries(tasks []relational.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{Title: t.Title, Status: t.Status, ProjectID: t.ProjectID})
	}
	return out
}
