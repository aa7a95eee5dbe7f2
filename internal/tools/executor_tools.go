package tools

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/engintel/platform/internal/errs"
)

// executorRequest is the payload shape sent to the hosted executor Lambda,
// grounded on original_source/agent/tools/executor_tools.py's boto3 Lambda
// invocation of "datathon-executor": a flat {action, params} envelope the
// Lambda dispatches on.
type executorRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

type executorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// LambdaInvoker is the subset of *lambda.Client the executor tools need,
// narrowed for testability.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// RegisterExecutorTools adds the "External actions" group of spec.md §4.7:
// issue-tracker and code-host mutating actions, fired via the hosted
// executor function. Every tool shares the same request/response envelope
// and differs only in the action name and parameter shape.
func RegisterExecutorTools(r *Registry, invoker LambdaInvoker, functionName string) {
	register := func(name, action, description string, schema json.RawMessage) {
		r.MustRegister(Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
			Invoke: func(ctx context.Context, params json.RawMessage) (any, error) {
				var p map[string]any
				if len(params) > 0 {
					if err := json.Unmarshal(params, &p); err != nil {
						return nil, errs.Wrap(errs.InvalidInput, "decode "+name+" params", err)
					}
				}
				return invokeExecutor(ctx, invoker, functionName, action, p)
			},
		})
	}

	register("create_issue", "issue_tracker.create_issue",
		"Create a new issue in the issue tracker.",
		json.RawMessage(`{"type":"object","properties":{"project_key":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"}},"required":["project_key","title"]}`))
	register("update_issue", "issue_tracker.update_issue",
		"Update fields on an existing issue tracker issue.",
		json.RawMessage(`{"type":"object","properties":{"issue_key":{"type":"string"},"fields":{"type":"object"}},"required":["issue_key","fields"]}`))
	register("comment_on_issue", "issue_tracker.comment",
		"Add a comment to an issue tracker issue.",
		json.RawMessage(`{"type":"object","properties":{"issue_key":{"type":"string"},"body":{"type":"string"}},"required":["issue_key","body"]}`))
	register("transition_issue", "issue_tracker.transition",
		"Transition an issue tracker issue to a new status.",
		json.RawMessage(`{"type":"object","properties":{"issue_key":{"type":"string"},"status":{"type":"string"}},"required":["issue_key","status"]}`))

	register("create_code_host_issue", "code_host.create_issue",
		"Create a new issue on the code host.",
		json.RawMessage(`{"type":"object","properties":{"repo":{"type":"string"},"title":{"type":"string"},"body":{"type":"string"}},"required":["repo","title"]}`))
	register("update_code_host_issue", "code_host.update_issue",
		"Update an existing code-host issue.",
		json.RawMessage(`{"type":"object","properties":{"repo":{"type":"string"},"number":{"type":"integer"},"fields":{"type":"object"}},"required":["repo","number"]}`))
	register("close_code_host_issue", "code_host.close_issue",
		"Close a code-host issue.",
		json.RawMessage(`{"type":"object","properties":{"repo":{"type":"string"},"number":{"type":"integer"}},"required":["repo","number"]}`))

	register("create_doc_page", "docs.create_page",
		"Create a new documentation page.",
		json.RawMessage(`{"type":"object","properties":{"space":{"type":"string"},"title":{"type":"string"},"content":{"type":"string"}},"required":["space","title"]}`))
	register("update_doc_page", "docs.update_page",
		"Update an existing documentation page.",
		json.RawMessage(`{"type":"object","properties":{"page_id":{"type":"string"},"content":{"type":"string"}},"required":["page_id","content"]}`))
	register("assign_doc_page", "docs.assign_page",
		"Assign an owner to a documentation page.",
		json.RawMessage(`{"type":"object","properties":{"page_id":{"type":"string"},"assignee":{"type":"string"}},"required":["page_id","assignee"]}`))
}

func invokeExecutor(ctx context.Context, invoker LambdaInvoker, functionName, action string, params map[string]any) (executorResponse, error) {
	payload, err := json.Marshal(executorRequest{Action: action, Params: params})
	if err != nil {
		return executorResponse{}, errs.Wrap(errs.Internal, "marshal executor request", err)
	}

	out, err := invoker.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &functionName,
		Payload:      payload,
	})
	if err != nil {
		return executorResponse{}, errs.Wrap(errs.UpstreamUnavailable, "invoke executor lambda", err)
	}
	if out.FunctionError != nil {
		return executorResponse{Success: false, Message: *out.FunctionError}, nil
	}

	var resp executorResponse
	if err := json.Unmarshal(out.Payload, &resp); err != nil {
		return executorResponse{}, errs.Wrap(errs.Internal, "decode executor response", err)
	}
	return resp, nil
}
