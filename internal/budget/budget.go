// Package budget estimates token counts for context-window accounting: the
// conversation engine's per-turn status line, the session manager's
// compaction threshold, and the usage tracker's fallback when an endpoint
// reports no usage all price text through the same chars/4 heuristic.
package budget

import "strings"

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	// Keep conservative to avoid overruns: round up.
	return (charCount + 3) / 4
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// ModelContextTokens returns an estimated maximum context window for a given
// model name, for deployments whose [models.*] entry omits context_size.
// Unknown models fall back to a conservative default.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return 8192
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	// Heuristics based on common suffixes present in model names
	if strings.HasSuffix(name, "1m") {
		return 1_000_000
	}
	if strings.HasSuffix(name, "512k") {
		return 512_000
	}
	if strings.HasSuffix(name, "200k") {
		return 200_000
	}
	if strings.HasSuffix(name, "128k") {
		return 128_000
	}
	if strings.Contains(name, "-mini") {
		// Many "mini" models expose large contexts nowadays, assume 128k.
		return 128_000
	}
	// Default conservative context if unknown.
	return 8192
}

// knownModelMax contains rough context sizes for common model identifiers.
// These are best-effort and do not need to be exhaustive: an explicit
// context_size in configuration always wins.
var knownModelMax = map[string]int{
	// OpenAI family (approximate)
	"gpt-4o":             128_000,
	"gpt-4o-mini":        128_000,
	"gpt-4-turbo":        128_000,
	"gpt-4-0125-preview": 128_000,
	"gpt-3.5-turbo":      16_384,

	// Anthropic (approximate)
	"claude-3-5-sonnet": 200_000,
	"claude-3-opus":     200_000,
	"claude-3-sonnet":   200_000,
	"claude-3-haiku":    200_000,

	// Llama and other popular OSS defaults (high variance in practice)
	"llama-3":   8_192,
	"llama-3.1": 128_000,

	// Common OSS OpenAI-compatible backends seen in the wild
	// Default these conservatively to 4096 unless known otherwise.
	"openai/gpt-oss-20b": 4_096,
	"gpt-oss-20b":        4_096,
}
