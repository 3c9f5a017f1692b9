// openai-stub is a local OpenAI-compatible chat endpoint for exercising the
// agent without a real model. Its canned behavior walks one tool round: the
// first request gets a get_date_time tool call, and any request whose
// transcript already carries a tool result gets a final answer. Set
// MODE=textual to emit the textual tool-call form instead of structured
// tool_calls, which exercises the engine's fallback parser.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools []json.RawMessage `json:"tools"`
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	textual := os.Getenv("MODE") == "textual"

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		haveToolResult := false
		lastUser := ""
		for _, m := range req.Messages {
			if m.Role == "tool" {
				haveToolResult = true
			}
			if m.Role == "user" {
				lastUser = m.Content
			}
		}

		var message map[string]any
		switch {
		case haveToolResult:
			message = map[string]any{
				"role":    "assistant",
				"content": "<think>tool results are in</think>Based on the tool output, here is the answer to: " + lastUser,
			}
		case textual:
			message = map[string]any{
				"role":    "assistant",
				"content": `I will check the clock. to=functions.get_date_time {"reason": "need current date"}`,
			}
		default:
			message = map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []map[string]any{{
					"id":   "call_1",
					"type": "function",
					"function": map[string]any{
						"name":      "get_date_time",
						"arguments": "{}",
					},
				}},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "stub-1",
			"object":  "chat.completion",
			"model":   model,
			"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 42, "completion_tokens": 7},
		})
	})

	log.Printf("openai-stub listening on %s (model=%s textual=%v)", addr, model, textual)
	log.Fatal(http.ListenAndServe(addr, mux))
}
