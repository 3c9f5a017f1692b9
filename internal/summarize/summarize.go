// Package summarize provides a single bounded-input LLM call used for two
// distinct purposes: per-URL page summarization (feeding the research
// cache's background workers) and per-turn/per-session compaction
// summaries. Calls are memoized on disk by model+prompt digest, so
// re-summarizing unchanged content costs nothing.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/cache"
)

// ChatClient abstracts the OpenAI-compatible client for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// PageSummaryPrompt condenses fetched page content; AnswerSummaryPrompt
// condenses model answers and user queries for session persistence. Both
// bound the output length inline so the model sees the budget.
const (
	PageSummaryPrompt   = "Summarize the following page content in plain prose, in at most %d characters. Keep only the facts a researcher would want to recall later; omit boilerplate, navigation, and ads.\n\n%s"
	AnswerSummaryPrompt = "Summarize the following answer in plain prose, in at most %d characters, preserving the key facts and conclusions.\n\n%s"
)

// DefaultQuerySummaryMaxChars and DefaultAnswerSummaryMaxChars mirror the
// original's general.query_summary_max_chars / answer_summary_max_chars
// config defaults (40 and 200 respectively).
const (
	DefaultQuerySummaryMaxChars  = 40
	DefaultAnswerSummaryMaxChars = 200
)

// Service performs bounded-input summarization calls, memoized through an
// optional LLMCache.
type Service struct {
	Client ChatClient
	Model  string
	Cache  *cache.LLMCache
}

// Summarize calls the model with promptTemplate applied to content,
// bounded to maxChars, returning trimmed output. Implements
// cache.Summarizer so a Service can back a SummaryWorkerPool directly.
func (s *Service) Summarize(ctx context.Context, promptTemplate string, content string, maxChars int) (string, error) {
	if s == nil || s.Client == nil || strings.TrimSpace(s.Model) == "" {
		return "", errors.New("summarization service not configured")
	}
	if maxChars <= 0 {
		maxChars = DefaultAnswerSummaryMaxChars
	}

	prompt := fmt.Sprintf(promptTemplate, maxChars, content)

	if s.Cache != nil {
		key := cache.KeyFrom(s.Model, prompt)
		if raw, ok, _ := s.Cache.Get(ctx, key); ok {
			var out struct {
				Summary string `json:"summary"`
			}
			if err := json.Unmarshal(raw, &out); err == nil && strings.TrimSpace(out.Summary) != "" {
				return out.Summary, nil
			}
		}
	}

	req := openai.ChatCompletionRequest{
		Model: s.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
		N:           1,
	}
	resp, err := s.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices from summarization model")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("empty summarization output")
	}
	out = truncate(out, maxChars)

	if s.Cache != nil {
		payload, _ := json.Marshal(map[string]string{"summary": out})
		_ = s.Cache.Save(ctx, cache.KeyFrom(s.Model, prompt), payload)
	}
	return out, nil
}

// SummarizePage summarizes fetched page content for the research cache's
// background workers, at the default answer-summary bound.
func (s *Service) SummarizePage(ctx context.Context, content string) (string, error) {
	return s.Summarize(ctx, PageSummaryPrompt, content, DefaultAnswerSummaryMaxChars)
}

// SummarizeAnswer summarizes a model's answer text, for session-message
// persistence and compaction.
func (s *Service) SummarizeAnswer(ctx context.Context, answer string) (string, error) {
	return s.Summarize(ctx, AnswerSummaryPrompt, answer, DefaultAnswerSummaryMaxChars)
}

// SummarizeQuery summarizes a user query, at the tighter query-summary
// bound used for session-message persistence.
func (s *Service) SummarizeQuery(ctx context.Context, query string) (string, error) {
	return s.Summarize(ctx, AnswerSummaryPrompt, query, DefaultQuerySummaryMaxChars)
}

// SummarizeTranscript produces a whole-session summary for the
// "llm_summary" compaction strategy, bounded to maxChars.
func (s *Service) SummarizeTranscript(ctx context.Context, transcript string, maxChars int) (string, error) {
	const prompt = "Summarize the following conversation transcript in plain prose, in at most %d characters, preserving facts, decisions, and open threads a continuation would need.\n\n%s"
	return s.Summarize(ctx, prompt, transcript, maxChars)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len([]rune(s)) <= maxChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxChars])
}
