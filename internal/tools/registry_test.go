package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func call(name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:       "1",
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: name, Arguments: args},
	}
}

func decodeResult(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("dispatch result is not JSON: %v (%q)", err, raw)
	}
	return out
}

func TestDispatch_MalformedArgumentsReturnsErrorObject(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "x", Executor: func(context.Context, map[string]any, DispatchContext) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}})

	out := decodeResult(t, r.Dispatch(context.Background(), call("x", "{"), DispatchContext{}))
	if out["error"] != "Invalid JSON arguments for tool: x" {
		t.Fatalf("unexpected error message: %v", out["error"])
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := NewRegistry()
	out := decodeResult(t, r.Dispatch(context.Background(), call("missing", "{}"), DispatchContext{}))
	if out["error"] != "Unknown tool: missing" {
		t.Fatalf("unexpected error message: %v", out["error"])
	}
}

func TestDispatch_ExecutorErrorIsWrapped(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "boom", Executor: func(context.Context, map[string]any, DispatchContext) (map[string]any, error) {
		return nil, errors.New("db unavailable")
	}})

	out := decodeResult(t, r.Dispatch(context.Background(), call("boom", "{}"), DispatchContext{}))
	msg, _ := out["error"].(string)
	if !strings.HasPrefix(msg, "Tool execution failed: ") || !strings.Contains(msg, "db unavailable") {
		t.Fatalf("unexpected wrapped error: %q", msg)
	}
}

func TestDispatch_ExecutorPanicIsContained(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "panics", Executor: func(context.Context, map[string]any, DispatchContext) (map[string]any, error) {
		panic("executor bug")
	}})

	out := decodeResult(t, r.Dispatch(context.Background(), call("panics", "{}"), DispatchContext{}))
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "Tool execution failed") || !strings.Contains(msg, "executor bug") {
		t.Fatalf("panic must surface as an error object, got %q", msg)
	}
}

func TestDispatch_EmptyArgumentsAreAllowed(t *testing.T) {
	r := NewRegistry()
	var gotArgs map[string]any
	r.Register(Definition{Name: "noargs", Executor: func(_ context.Context, args map[string]any, _ DispatchContext) (map[string]any, error) {
		gotArgs = args
		return map[string]any{"ok": true}, nil
	}})

	out := decodeResult(t, r.Dispatch(context.Background(), call("noargs", ""), DispatchContext{}))
	if out["ok"] != true {
		t.Fatalf("expected success, got %v", out)
	}
	if gotArgs == nil {
		t.Fatalf("executor must receive a non-nil args map")
	}
}

func TestDispatch_ContextReachesExecutor(t *testing.T) {
	r := NewRegistry()
	var got DispatchContext
	r.Register(Definition{Name: "probe", Executor: func(_ context.Context, _ map[string]any, dctx DispatchContext) (map[string]any, error) {
		got = dctx
		return map[string]any{}, nil
	}})

	r.Dispatch(context.Background(), call("probe", "{}"), DispatchContext{Summarize: true})
	if !got.Summarize {
		t.Fatalf("summarize capability flag must reach the executor")
	}
}

func TestSpecs_SortedAndComplete(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(Definition{Name: name, Parameters: json.RawMessage(`{"type":"object"}`)})
	}
	specs := r.Specs()
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, spec := range specs {
		if spec.Function.Name != want[i] {
			t.Fatalf("expected stable name order %v, got %q at %d", want, spec.Function.Name, i)
		}
		if spec.Type != openai.ToolTypeFunction {
			t.Fatalf("expected function tool type")
		}
	}
}
