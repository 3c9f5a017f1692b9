// Package conversation runs the agent's multi-turn tool-calling loop:
// send messages, let the model either answer or call tools, execute any
// tool calls and feed their results back, repeat up to a turn budget.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/budget"
	"github.com/hyperifyio/seeker/internal/llm"
	"github.com/hyperifyio/seeker/internal/tools"
)

// ChatClient is the minimal model-invocation surface the engine needs;
// satisfied by *llm.RetryingClient or any other CreateChatCompletion-shaped
// client (a stub in tests, for instance).
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// DefaultMaxTurns bounds the loop when the engine is given no explicit
// turn budget.
const DefaultMaxTurns = 8

// Engine orchestrates one query's conversation against a single model and
// tool registry.
type Engine struct {
	Client      ChatClient
	ModelID     string
	ModelAlias  string
	ContextSize int
	Registry    *tools.Registry
	Summarize   bool
	Usage       *llm.UsageTracker
	MaxTurns    int
}

// Run drives the turn loop starting from messages (which must begin with
// the system prompt set by ConstructSystemPrompt, plus any session
// context and the new user message), returning the model's final
// tool-free answer.
func (e *Engine) Run(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	maxTurns := e.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	contextSize := e.ContextSize
	if contextSize <= 0 {
		contextSize = budget.ModelContextTokens(e.ModelAlias)
	}

	originalSystemPrompt := ""
	if len(messages) > 0 && messages[0].Role == openai.ChatMessageRoleSystem {
		originalSystemPrompt = messages[0].Content
	}

	specs := e.Registry.Specs()

	var finalAnswer string
	turn := 0
	for turn < maxTurns {
		turn++

		totalTokens := countTokens(messages)
		turnsLeft := maxTurns - turn + 1
		statusMsg := fmt.Sprintf(
			"\n\n[SYSTEM UPDATE]:\n- Context Used: %.2f%%- Turns Remaining: %d (out of %d)\nPlease manage your context usage efficiently.",
			float64(totalTokens)/float64(contextSize)*100, turnsLeft, maxTurns,
		)
		if len(messages) > 0 && messages[0].Role == openai.ChatMessageRoleSystem {
			messages[0].Content = originalSystemPrompt + statusMsg
		}

		req := openai.ChatCompletionRequest{
			Model:      e.ModelID,
			Messages:   messages,
			Tools:      specs,
			ToolChoice: "auto",
		}
		resp, err := e.Client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("conversation turn %d: %w", turn, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("conversation turn %d: no choices in response", turn)
		}
		msg := resp.Choices[0].Message

		calls := extractCalls(msg, turn)
		if len(calls) == 0 {
			finalAnswer = stripThinkTags(msg.Content)
			break
		}

		messages = append(messages, msg)
		for _, call := range calls {
			log.Debug().Int("turn", turn).Str("tool", call.Function.Name).Str("id", call.ID).Msg("dispatching tool call")
			result := e.Registry.Dispatch(ctx, call, tools.DispatchContext{Summarize: e.Summarize, Usage: e.Usage})
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	if finalAnswer == "" && turn >= maxTurns {
		log.Warn().Int("max_turns", maxTurns).Msg("turn budget exhausted without a final answer")
	}

	return finalAnswer, nil
}

func countTokens(messages []openai.ChatCompletionMessage) int {
	total := 0
	for _, m := range messages {
		total += budget.EstimateTokens(m.Content)
		if len(m.ToolCalls) > 0 {
			if b, err := json.Marshal(m.ToolCalls); err == nil {
				total += budget.EstimateTokensFromChars(len(b))
			}
		}
	}
	return total
}

var textualToolCallRe = regexp.MustCompile(`to=functions\.([a-zA-Z0-9_]+)`)
var jsonBlobRe = regexp.MustCompile(`(?s)(\{.*\})`)

// extractCalls returns a message's structured tool calls, or falls back to
// parsing the "to=functions.NAME {...}" textual convention some models
// emit instead of structured tool_calls, synthesizing a deterministic id.
func extractCalls(msg openai.ChatCompletionMessage, turn int) []openai.ToolCall {
	if len(msg.ToolCalls) > 0 {
		return msg.ToolCalls
	}
	nameMatch := textualToolCallRe.FindStringSubmatch(msg.Content)
	if nameMatch == nil {
		return nil
	}
	jsonMatch := jsonBlobRe.FindStringSubmatch(msg.Content)
	if jsonMatch == nil {
		return nil
	}
	var probe any
	if err := json.Unmarshal([]byte(jsonMatch[1]), &probe); err != nil {
		return nil
	}
	return []openai.ToolCall{{
		ID:   fmt.Sprintf("textual_call_%d", turn),
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      nameMatch[1],
			Arguments: jsonMatch[1],
		},
	}}
}

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags removes any <think>...</think> reasoning block some
// open-weight models emit ahead of their answer.
func stripThinkTags(content string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(content, ""))
}
