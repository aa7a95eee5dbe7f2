// Package tools implements the C7 tool registry: every callable surface the
// specialist loop (C10) can invoke, grouped the way
// original_source/agent/tools/__init__.py groups its LangChain
// StructuredTools (neo4j/clickhouse/postgres/executor), but registered as a
// single Go registry validated with
// github.com/santhosh-tekuri/jsonschema/v6 the way
// goa-ai/registry/service.go's validatePayloadJSONAgainstSchema does.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/engintel/platform/internal/errs"
)

// Tool is one callable the specialist loop may invoke: a name, a
// human-readable description for the LLM's tool-selection prompt, a JSON
// Schema describing its input, and the function itself.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Invoke      func(ctx context.Context, params json.RawMessage) (any, error)

	schema *jsonschema.Schema
}

// Registry holds every registered Tool by name and validates payloads
// against each tool's compiled schema before invocation.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register compiles t's input schema and adds it to the registry. Returns
// an error if the schema fails to compile or the name is already taken.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name]; exists {
		return errs.New(errs.Internal, fmt.Sprintf("tool %q already registered", t.Name))
	}
	if len(t.InputSchema) > 0 {
		compiled, err := compileSchema(t.Name, t.InputSchema)
		if err != nil {
			return errs.Wrap(errs.Internal, fmt.Sprintf("compile schema for tool %q", t.Name), err)
		}
		t.schema = compiled
	}
	tt := t
	r.tools[t.Name] = &tt
	return nil
}

// MustRegister panics if Register fails — used for the fixed set of
// built-in tools, where a schema compile failure is a programming error,
// never a runtime condition.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Definitions returns the Name/Description/InputSchema of each tool in names
// that is registered, skipping unknown names — the shape the LLM client's
// Request.Tools expects.
func (r *Registry) Definitions(names []string) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return defs
}

// ToolDefinition is the wire shape a tool definition takes when handed to
// an LLM client (mirrors llm.ToolDefinition so callers don't need to import
// both packages just to build a request).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Call validates params against the tool's schema (when it has one) and
// invokes it. A validation failure returns errs.InvalidInput, never panics
// — a malformed tool call from the model is an expected condition, not a
// programming error.
func (r *Registry) Call(ctx context.Context, name string, params json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("unknown tool %q", name))
	}
	if t.schema != nil {
		if err := validate(t.schema, params); err != nil {
			return nil, errs.Wrap(errs.InvalidInput, fmt.Sprintf("invalid arguments for tool %q", name), err)
		}
	}
	result, err := t.Invoke(ctx, params)
	if err != nil {
		return nil, err
	}
	return SanitizeForJSON(result), nil
}

// Has reports whether name is registered. The specialist loop does not call
// it: it limits a specialist to its allowed subset only through the tool
// definitions it sends to the model (Definitions).
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

func compileSchema(name string, schemaBytes json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaBytes, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resourceName := name + ".schema.json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceName)
}

func validate(schema *jsonschema.Schema, params json.RawMessage) error {
	var doc any
	if len(params) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(params, &doc); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}
	return schema.Validate(doc)
}
