// Package tools is the agent's tool registry: schemas exposed to the
// model, and the executors that run when the model calls them. Every
// executor takes an explicit DispatchContext carrying the per-call
// capabilities (summarize, usage tracking) rather than any reflective
// signature inspection.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/llm"
)

// DispatchContext carries the per-call capability flags an executor may
// consult.
type DispatchContext struct {
	Summarize bool
	Usage     *llm.UsageTracker
}

// Executor runs one tool call and returns its JSON-serializable result.
// Executors never return a Go error for ordinary tool-level failures (a
// missing URL, an empty query): those are reported as a result map
// carrying an "error" key, exactly as the registered tool's JSON result.
// A returned error means the executor itself panicked or hit a condition
// dispatch should wrap as "Tool execution failed: ...".
type Executor func(ctx context.Context, args map[string]any, dctx DispatchContext) (map[string]any, error)

// Definition describes one registered tool: its OpenAI function schema
// plus the executor that serves it.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Executor    Executor
}

// Registry holds every tool available to the conversation engine for one
// run, keyed by name.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(def Definition) {
	if r.defs == nil {
		r.defs = make(map[string]Definition)
	}
	r.defs[def.Name] = def
}

// Specs returns the registered tools as OpenAI-compatible function specs,
// in stable (name-sorted) order.
func (r *Registry) Specs() []openai.Tool {
	names := r.sortedNames()
	out := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		def := r.defs[name]
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	return r.sortedNames()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch executes one model-issued tool call and returns its JSON result
// body (never an error): malformed arguments, an unknown tool name, and an
// executor failure are all reported as a JSON object carrying an "error"
// key, matching ToolRegistry.dispatch's contract so the conversation loop
// never has to special-case a failed tool call.
func (r *Registry) Dispatch(ctx context.Context, call openai.ToolCall, dctx DispatchContext) string {
	name := call.Function.Name

	var args map[string]any
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return errorJSON(fmt.Sprintf("Invalid JSON arguments for tool: %s", name))
		}
	} else {
		args = map[string]any{}
	}

	def, ok := r.defs[name]
	if !ok {
		return errorJSON(fmt.Sprintf("Unknown tool: %s", name))
	}

	result, err := safeExecute(ctx, def.Executor, args, dctx)
	if err != nil {
		return errorJSON(fmt.Sprintf("Tool execution failed: %s", err.Error()))
	}
	body, err := json.Marshal(result)
	if err != nil {
		return errorJSON(fmt.Sprintf("Tool execution failed: %s", err.Error()))
	}
	return string(body)
}

// safeExecute recovers a panicking executor into an error, mirroring the
// source's blanket except Exception around dispatch.
func safeExecute(ctx context.Context, exec Executor, args map[string]any, dctx DispatchContext) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return exec(ctx, args, dctx)
}

func errorJSON(message string) string {
	body, _ := json.Marshal(map[string]string{"error": message})
	return string(body)
}
