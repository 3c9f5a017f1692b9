package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/budget"
)

// UsageTracker accumulates total tokens consumed per model alias.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]int
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[string]int)}
}

// Add accumulates tokens against a model alias. A nil tracker is a no-op,
// so callers that don't care about usage can pass one through unconditionally.
func (t *UsageTracker) Add(alias string, tokens int) {
	if t == nil || alias == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.usage == nil {
		t.usage = make(map[string]int)
	}
	t.usage[alias] += tokens
}

// Total returns the accumulated token count for a model alias.
func (t *UsageTracker) Total(alias string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage[alias]
}

// ModelConfig resolves a single model's invocation target: its chat
// endpoint, API key, and the bookkeeping alias/context size used by the
// engine. Hydrated from a [models.*] entry and its [api.*] block by
// internal/app.
type ModelConfig struct {
	ID          string
	Alias       string
	BaseURL     string
	APIKey      string
	APIKeyEnv   string
	ContextSize int
}

// ResolveAPIKey returns the literal API key if set, else looks up
// APIKeyEnv via getenv. Returns "" if neither is configured or the env var
// is unset; a missing key downgrades to an unauthenticated request rather
// than failing the call.
func (m ModelConfig) ResolveAPIKey(getenv func(string) (string, bool)) string {
	if m.APIKey != "" {
		return m.APIKey
	}
	if m.APIKeyEnv != "" {
		if v, ok := getenv(m.APIKeyEnv); ok {
			return v
		}
	}
	return ""
}

// RetryingClient posts chat completions directly over HTTP to an
// OpenAI-compatible endpoint, honouring 429 Retry-After and retrying
// transient network errors with exponential backoff.
type RetryingClient struct {
	Model      ModelConfig
	HTTPClient *http.Client
	UserAgent  string
	Usage      *UsageTracker
	GetEnv     func(string) (string, bool)

	// MaxRetries, InitialBackoff and MaxBackoff default to 10, 2s and 60s
	// respectively when zero.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type rateLimitError struct {
	retryAfter time.Duration
	hasRetry   bool
}

func (e *rateLimitError) Error() string { return "rate limited (429)" }

// CreateChatCompletion implements the minimal llm.Client contract used
// throughout the codebase, so a RetryingClient can back the conversation
// engine, the summarization service, or any other chat-completion caller.
func (c *RetryingClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	backoff := c.InitialBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	maxBackoff := c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}

	tokensSent := estimateRequestTokens(request)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.doOnce(ctx, request)
		if err == nil {
			c.trackUsage(resp, tokensSent)
			return resp, nil
		}
		lastErr = err

		var rl *rateLimitError
		if errors.As(err, &rl) {
			if attempt == maxRetries-1 {
				break
			}
			wait := backoff
			if rl.hasRetry {
				wait = rl.retryAfter
			} else {
				backoff = minDuration(backoff*2, maxBackoff)
			}
			if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
				return openai.ChatCompletionResponse{}, sleepErr
			}
			continue
		}

		if isTransientNetworkError(err) && attempt < maxRetries-1 {
			if sleepErr := sleepCtx(ctx, backoff); sleepErr != nil {
				return openai.ChatCompletionResponse{}, sleepErr
			}
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}
		return openai.ChatCompletionResponse{}, err
	}
	if lastErr != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return openai.ChatCompletionResponse{}, errors.New("max retries exceeded")
}

func (c *RetryingClient) doOnce(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	request.Model = c.Model.ID
	body, err := json.Marshal(request)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Model.BaseURL, bytes.NewReader(body))
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	getenv := c.GetEnv
	if getenv == nil {
		getenv = func(string) (string, bool) { return "", false }
	}
	if key := c.Model.ResolveAPIKey(getenv); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rl := &rateLimitError{}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.ParseFloat(ra, 64); perr == nil {
				rl.retryAfter = time.Duration(secs * float64(time.Second))
				rl.hasRetry = true
			}
		}
		return openai.ChatCompletionResponse{}, rl
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return openai.ChatCompletionResponse{}, fmt.Errorf("chat completion http %d: %s", resp.StatusCode, truncateForError(respBody))
	}

	var out openai.ChatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("chat completion: no choices in response")
	}
	return out, nil
}

// trackUsage records prompt+completion tokens against the model alias,
// estimating completion tokens as len(JSON(message))/4 when the server did
// not report usage.
func (c *RetryingClient) trackUsage(resp openai.ChatCompletionResponse, tokensSent int) {
	if c.Usage == nil || c.Model.Alias == "" {
		return
	}
	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = tokensSent
	}
	completionTokens := resp.Usage.CompletionTokens
	if completionTokens == 0 {
		if b, err := json.Marshal(resp.Choices[0].Message); err == nil {
			completionTokens = budget.EstimateTokensFromChars(len(b))
		}
	}
	c.Usage.Add(c.Model.Alias, promptTokens+completionTokens)
}

func estimateRequestTokens(request openai.ChatCompletionRequest) int {
	total := 0
	for _, m := range request.Messages {
		total += budget.EstimateTokens(m.Content)
		if len(m.ToolCalls) > 0 {
			if b, err := json.Marshal(m.ToolCalls); err == nil {
				total += budget.EstimateTokensFromChars(len(b))
			}
		}
	}
	return total
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransientNetworkError reports whether err looks like a recoverable
// network condition (timeout, connection reset, DNS hiccup) rather than a
// permanent one (malformed request, 4xx other than 429).
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return true
	case strings.Contains(msg, "connection reset"):
		return true
	case strings.Contains(msg, "eof"):
		return true
	case strings.Contains(msg, "no such host"):
		return true
	case strings.Contains(msg, "connection refused"):
		return true
	case strings.Contains(msg, "http 5"):
		return true
	default:
		return false
	}
}

func truncateForError(b []byte) string {
	const max = 400
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
