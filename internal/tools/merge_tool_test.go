package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/stretchr/testify/require"
)

type fakeLambdaInvoker struct {
	lastAction string
	payload    []byte
}

func (f *fakeLambdaInvoker) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.payload = params.Payload
	resp, _ := json.Marshal(executorResponse{Success: true, Message: "merged"})
	return &lambda.InvokeOutput{Payload: resp}, nil
}

type recordingEmailer struct {
	sent bool
}

func (r *recordingEmailer) SendHTML(ctx context.Context, to []string, subject, html, text string) error {
	r.sent = true
	return nil
}

func TestRegisterMergeTool_DryRunSkipsInvoke(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	invoker := &fakeLambdaInvoker{}
	emailer := &recordingEmailer{}
	require.NoError(t, RegisterMergeTool(r, invoker, "fn", emailer, ""))

	params, _ := json.Marshal(map[string]any{
		"repo": "org/repo", "pr_number": 42, "title": "Fix bug",
		"reviewer_emails": []string{"lead@example.com"}, "dry_run": true,
	})
	out, err := r.Call(context.Background(), "approve_and_merge_pr", params)
	require.NoError(t, err)
	require.Nil(t, invoker.payload)
	require.True(t, emailer.sent)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, m["dry_run"])
}

func TestRegisterMergeTool_MergesWhenNotDryRun(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	invoker := &fakeLambdaInvoker{}
	emailer := &recordingEmailer{}
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	require.NoError(t, RegisterMergeTool(r, invoker, "fn", emailer, auditPath))

	params, _ := json.Marshal(map[string]any{"repo": "org/repo", "pr_number": 7, "title": "Ship it"})
	_, err := r.Call(context.Background(), "approve_and_merge_pr", params)
	require.NoError(t, err)
	require.NotNil(t, invoker.payload)

	contents, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "org/repo")
}
