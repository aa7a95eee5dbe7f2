package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/engintel/platform/internal/errs"
)

// EmailSender is the subset of pr_merge_agent/emailer.py's Emailer the
// approve_and_merge_pr tool needs, narrowed to an interface so the SMTP
// relay (explicitly out of scope per spec.md §1) can be satisfied by a
// no-op/log sender in this repo.
type EmailSender interface {
	SendHTML(ctx context.Context, to []string, subject, html, text string) error
}

// NoopEmailSender logs the email it would have sent instead of dialing an
// SMTP server — the stand-in for the out-of-scope SMTP relay.
type NoopEmailSender struct{}

func (NoopEmailSender) SendHTML(ctx context.Context, to []string, subject, html, text string) error {
	fmt.Fprintf(os.Stderr, "noop-email: to=%v subject=%q\n", to, subject)
	return nil
}

// mergeAuditRow is one append-only audit log entry for approve_and_merge_pr,
// grounded on the dead-letter sink's append-only JSON-lines pattern
// (internal/events/ingest/pipeline.go).
type mergeAuditRow struct {
	Repo      string    `json:"repo"`
	PRNumber  int       `json:"pr_number"`
	DryRun    bool      `json:"dry_run"`
	Reviewers []string  `json:"reviewers"`
	At        time.Time `json:"at"`
}

type mergeAuditLog struct {
	mu sync.Mutex
	f  *os.File
}

func newMergeAuditLog(path string) (*mergeAuditLog, error) {
	if path == "" {
		return &mergeAuditLog{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "open merge audit log", err)
	}
	return &mergeAuditLog{f: f}, nil
}

func (l *mergeAuditLog) Write(row mergeAuditRow) error {
	if l.f == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := json.Marshal(row)
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal merge audit row", err)
	}
	b = append(b, '\n')
	_, err = l.f.Write(b)
	return err
}

func (l *mergeAuditLog) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}

// RegisterMergeTool adds approve_and_merge_pr (SPEC_FULL.md's supplemented
// PR-merge approval auxiliary tool, grounded on
// original_source/services/pr_merge_agent): compose a review summary,
// notify reviewers by email, write an audit row, then invoke the code-host
// "merge" action through the executor — unless dry_run is set, in which
// case the merge action is skipped and only the summary/notification/audit
// steps run.
func RegisterMergeTool(r *Registry, invoker LambdaInvoker, functionName string, emailer EmailSender, auditLogPath string) error {
	audit, err := newMergeAuditLog(auditLogPath)
	if err != nil {
		return err
	}

	r.MustRegister(Tool{
		Name:        "approve_and_merge_pr",
		Description: "Compose a review summary, notify reviewers, log an audit row, and merge a pull request on the code host (unless dry_run is set).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo": {"type": "string"},
				"pr_number": {"type": "integer"},
				"title": {"type": "string"},
				"reviewer_emails": {"type": "array", "items": {"type": "string"}},
				"dry_run": {"type": "boolean"}
			},
			"required": ["repo", "pr_number", "title"]
		}`),
		Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in struct {
				Repo           string   `json:"repo"`
				PRNumber       int      `json:"pr_number"`
				Title          string   `json:"title"`
				ReviewerEmails []string `json:"reviewer_emails"`
				DryRun         bool     `json:"dry_run"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, errs.Wrap(errs.InvalidInput, "decode approve_and_merge_pr params", err)
			}

			summary := fmt.Sprintf("PR #%d on %s (%q) has passed review and is ready to merge.", in.PRNumber, in.Repo, in.Title)
			if len(in.ReviewerEmails) > 0 {
				if err := emailer.SendHTML(ctx, in.ReviewerEmails, "PR ready to merge: "+in.Title,
					"<p>"+summary+"</p>", summary); err != nil {
					return nil, errs.Wrap(errs.UpstreamUnavailable, "notify reviewers", err)
				}
			}

			if err := audit.Write(mergeAuditRow{
				Repo: in.Repo, PRNumber: in.PRNumber, DryRun: in.DryRun, Reviewers: in.ReviewerEmails, At: time.Now(),
			}); err != nil {
				return nil, err
			}

			if in.DryRun {
				return map[string]any{"dry_run": true, "summary": summary}, nil
			}
			return invokeExecutor(ctx, invoker, functionName, "code_host.merge_pr", map[string]any{
				"repo": in.Repo, "pr_number": in.PRNumber,
			})
		},
	})
	return nil
}
