// Package session implements persistent, shell-sticky conversation
// sessions: sessions never end on their own, a shell attaches to one via a
// PID-keyed lock file rather than any server-side state, and a session's
// transcript is compacted once it grows past a configured fraction of its
// model's context window.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/budget"
	"github.com/hyperifyio/seeker/internal/slug"
	"github.com/hyperifyio/seeker/internal/store"
	"github.com/hyperifyio/seeker/internal/summarize"
)

// DefaultCompactionThresholdPercent: compaction triggers once a session's
// context usage reaches this percentage of its model's context window.
const DefaultCompactionThresholdPercent = 80

// CompactionStrategy selects how CheckAndCompact condenses a transcript.
type CompactionStrategy string

const (
	// StrategySummaries concatenates each message's own short summary
	// (falling back to a truncated content prefix when a message has no
	// summary yet).
	StrategySummaries CompactionStrategy = "summaries"
	// StrategyLLMSummary asks the summarization model to produce one
	// whole-transcript summary.
	StrategyLLMSummary CompactionStrategy = "llm_summary"
)

// LockDir and LockPrefix locate the shell-sticky lock file; overridable for
// tests.
var (
	LockDir    = "/tmp"
	LockPrefix = "seeker_session_"
)

// DuplicateCandidate is one of several sessions sharing a looked-up name,
// surfaced so the caller can ask the user to disambiguate.
type DuplicateCandidate struct {
	ID      int64
	Name    string
	Preview string
}

// DuplicateSessionError reports that a name resolved to more than one
// session. Mapped by the CLI to a distinct non-zero exit code.
type DuplicateSessionError struct {
	Name       string
	Candidates []DuplicateCandidate
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("multiple sessions named %q", e.Name)
}

// Manager orchestrates session resolution, context assembly, turn
// persistence, and compaction.
type Manager struct {
	Store              *store.Store
	Summarizer         *summarize.Service
	ModelAlias         string
	ContextSize        int
	CompactionPercent  int
	CompactionStrategy CompactionStrategy

	current *store.Session
}

// NewManager builds a Manager for one model's sessions. A zero contextSize
// falls back to the model's known context window; CompactionPercent starts
// at DefaultCompactionThresholdPercent.
func NewManager(s *store.Store, summarizer *summarize.Service, modelAlias string, contextSize int) *Manager {
	if contextSize <= 0 {
		contextSize = budget.ModelContextTokens(modelAlias)
	}
	return &Manager{
		Store:              s,
		Summarizer:         summarizer,
		ModelAlias:         modelAlias,
		ContextSize:        contextSize,
		CompactionPercent:  DefaultCompactionThresholdPercent,
		CompactionStrategy: StrategySummaries,
	}
}

// Current returns the resolved session, or nil if StartOrResume has not
// been called yet.
func (m *Manager) Current() *store.Session {
	return m.current
}

// StartOrResume resolves sessionName (possibly empty) to a session,
// following the four-case precedence order: numeric id, legacy "S<digits>"
// prefix or name lookup, shell lock file, or a freshly auto-named session.
func (m *Manager) StartOrResume(ctx context.Context, sessionName, query string) (store.Session, error) {
	if id, ok := parseNumericID(sessionName); ok {
		if sess, err := m.Store.GetSession(ctx, id); err == nil {
			m.current = &sess
			return sess, nil
		}
		// Falls through: an unknown numeric id is treated like any other
		// unmatched name and creates a new session below.
	}

	if sessionName != "" {
		if id, ok := legacySessionID(sessionName); ok {
			if sess, err := m.Store.GetSession(ctx, id); err == nil {
				m.current = &sess
				return sess, nil
			}
		}

		matches, err := m.Store.FindSessionsByName(ctx, sessionName)
		if err != nil {
			return store.Session{}, fmt.Errorf("resolve session by name: %w", err)
		}
		switch len(matches) {
		case 1:
			m.current = &matches[0]
			return matches[0], nil
		default:
			if len(matches) > 1 {
				candidates := make([]DuplicateCandidate, 0, len(matches))
				for _, sess := range matches {
					preview, _ := m.firstMessagePreview(ctx, sess.ID)
					candidates = append(candidates, DuplicateCandidate{ID: sess.ID, Name: sess.Name, Preview: preview})
				}
				return store.Session{}, &DuplicateSessionError{Name: sessionName, Candidates: candidates}
			}
		}
		sess, err := m.Store.CreateSession(ctx, sessionName, m.ModelAlias)
		if err != nil {
			return store.Session{}, fmt.Errorf("create named session: %w", err)
		}
		m.current = &sess
		return sess, nil
	}

	if id, ok := readLockFile(); ok {
		if sess, err := m.Store.GetSession(ctx, id); err == nil {
			m.current = &sess
			return sess, nil
		}
		clearLockFile()
	}

	autoName := ""
	if query != "" {
		autoName = slug.GenerateSessionName(query, 2)
	}
	sess, err := m.Store.CreateSession(ctx, autoName, m.ModelAlias)
	if err != nil {
		return store.Session{}, fmt.Errorf("create auto-named session: %w", err)
	}
	m.current = &sess
	return sess, nil
}

func (m *Manager) firstMessagePreview(ctx context.Context, sessionID int64) (string, error) {
	msgs, err := m.Store.ListSessionMessages(ctx, sessionID)
	if err != nil || len(msgs) == 0 {
		return "", err
	}
	const previewChars = 80
	content := msgs[0].Content
	if len(content) > previewChars {
		content = content[:previewChars] + "..."
	}
	return content, nil
}

// BuildContextMessages assembles the messages representing the current
// session's history: a synthetic user/assistant pair carrying the
// compacted summary (if any), followed by every message saved since.
func (m *Manager) BuildContextMessages(ctx context.Context) ([]openai.ChatCompletionMessage, error) {
	if m.current == nil {
		return nil, nil
	}
	var out []openai.ChatCompletionMessage
	var msgs []store.SessionMessage
	var err error
	if m.current.CompactedSummary != "" {
		out = append(out,
			openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: "Previous conversation summary:\n" + m.current.CompactedSummary,
			},
			openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: "I understand the context. How can I help further?",
			},
		)
		// Messages folded into the summary stay out of the live context.
		msgs, err = m.Store.ListSessionMessagesAfter(ctx, m.current.ID, m.current.CompactionAt.Time)
	} else {
		msgs, err = m.Store.ListSessionMessages(ctx, m.current.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	for _, msg := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return out, nil
}

// SaveTurn persists one user/assistant exchange onto the current session.
func (m *Manager) SaveTurn(ctx context.Context, query, answer, querySummary, answerSummary string) error {
	if m.current == nil {
		return nil
	}
	qTokens := budget.EstimateTokens(query)
	aTokens := budget.EstimateTokens(answer)
	if _, err := m.Store.InsertSessionMessage(ctx, m.current.ID, openai.ChatMessageRoleUser, query, querySummary, qTokens); err != nil {
		return fmt.Errorf("save user turn: %w", err)
	}
	if _, err := m.Store.InsertSessionMessage(ctx, m.current.ID, openai.ChatMessageRoleAssistant, answer, answerSummary, aTokens); err != nil {
		return fmt.Errorf("save assistant turn: %w", err)
	}
	return nil
}

// CheckAndCompact compacts the current session's transcript once its
// estimated token count reaches CompactionPercent of ContextSize, reporting
// whether compaction ran.
func (m *Manager) CheckAndCompact(ctx context.Context) (bool, error) {
	if m.current == nil {
		return false, nil
	}
	messages, err := m.BuildContextMessages(ctx)
	if err != nil {
		return false, err
	}
	var total int
	for _, msg := range messages {
		total += budget.EstimateTokens(msg.Content)
	}
	threshold := m.ContextSize * m.CompactionPercent / 100
	if total < threshold {
		return false, nil
	}
	return true, m.compact(ctx)
}

func (m *Manager) compact(ctx context.Context) error {
	var err error
	if m.CompactionStrategy == StrategyLLMSummary && m.Summarizer != nil {
		err = m.compactWithLLM(ctx)
	} else {
		err = m.compactWithSummaries(ctx)
	}
	if err != nil {
		return err
	}
	// Reload so the new summary and compaction point take effect for the
	// next context assembly.
	sess, err := m.Store.GetSession(ctx, m.current.ID)
	if err != nil {
		return fmt.Errorf("reload compacted session: %w", err)
	}
	m.current = &sess
	return nil
}

// uncompactedMessages returns the messages not yet folded into a previous
// compaction summary.
func (m *Manager) uncompactedMessages(ctx context.Context) ([]store.SessionMessage, error) {
	if m.current.CompactedSummary != "" {
		return m.Store.ListSessionMessagesAfter(ctx, m.current.ID, m.current.CompactionAt.Time)
	}
	return m.Store.ListSessionMessages(ctx, m.current.ID)
}

func (m *Manager) compactWithSummaries(ctx context.Context) error {
	msgs, err := m.uncompactedMessages(ctx)
	if err != nil {
		return fmt.Errorf("compact (summaries): %w", err)
	}
	parts := make([]string, 0, len(msgs)+1)
	if m.current.CompactedSummary != "" {
		parts = append(parts, m.current.CompactedSummary)
	}
	for _, msg := range msgs {
		role := strings.ToUpper(msg.Role[:1]) + msg.Role[1:]
		if msg.Summary != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", role, msg.Summary))
			continue
		}
		content := msg.Content
		const fallbackChars = 100
		if len(content) > fallbackChars {
			content = content[:fallbackChars] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, content))
	}
	return m.Store.UpdateCompactedSummary(ctx, m.current.ID, strings.Join(parts, "\n"))
}

// compactLLMSummaryMaxChars bounds the whole-transcript compaction
// summary.
const compactLLMSummaryMaxChars = 4000

func (m *Manager) compactWithLLM(ctx context.Context) error {
	msgs, err := m.uncompactedMessages(ctx)
	if err != nil {
		return fmt.Errorf("compact (llm): %w", err)
	}
	parts := make([]string, 0, len(msgs)+1)
	if m.current.CompactedSummary != "" {
		parts = append(parts, "Earlier summary: "+m.current.CompactedSummary)
	}
	for _, msg := range msgs {
		role := strings.ToUpper(msg.Role[:1]) + msg.Role[1:]
		parts = append(parts, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	blob := strings.Join(parts, "\n\n")
	summary, err := m.Summarizer.SummarizeTranscript(ctx, blob, compactLLMSummaryMaxChars)
	if err != nil {
		return fmt.Errorf("compact (llm): %w", err)
	}
	return m.Store.UpdateCompactedSummary(ctx, m.current.ID, summary)
}

func parseNumericID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// legacySessionID recognizes the backwards-compatible "S<digits>" session
// reference form, case-insensitively.
func legacySessionID(s string) (int64, bool) {
	if len(s) < 2 {
		return 0, false
	}
	if s[0] != 'S' && s[0] != 's' {
		return 0, false
	}
	return parseNumericID(s[1:])
}

func lockFilePath() string {
	return filepath.Join(LockDir, fmt.Sprintf("%s%d", LockPrefix, os.Getppid()))
}

// readLockFile returns the session id recorded in the current shell's lock
// file, if any. A missing file or non-numeric content is treated as no
// lock: lock file races are benign since the worst case is simply starting
// a fresh session.
func readLockFile() (int64, bool) {
	data, err := os.ReadFile(lockFilePath())
	if err != nil {
		return 0, false
	}
	return parseNumericID(strings.TrimSpace(string(data)))
}

// WriteLockFile records the shell's active session id.
func WriteLockFile(sessionID int64) error {
	return os.WriteFile(lockFilePath(), []byte(strconv.FormatInt(sessionID, 10)), 0o644)
}

func clearLockFile() {
	_ = os.Remove(lockFilePath())
}

// ClearShellSession detaches the current shell from its session, if any.
func ClearShellSession() {
	clearLockFile()
}
