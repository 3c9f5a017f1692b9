package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/seeker/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	LockDir = t.TempDir()
	return NewManager(st, nil, "test-model", 1000), st
}

func TestStartOrResume_NumericIDResumes(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	created, err := st.CreateSession(ctx, "original", "test-model")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sess, err := m.StartOrResume(ctx, "1", "")
	if err != nil {
		t.Fatalf("resume by id: %v", err)
	}
	if sess.ID != created.ID || sess.Name != "original" {
		t.Fatalf("expected to resume session 1, got %+v", sess)
	}
}

func TestStartOrResume_UnknownNumericCreatesNamed(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.StartOrResume(ctx, "42", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Name != "42" {
		t.Fatalf("unknown numeric id should create a session named after it, got %q", sess.Name)
	}
}

func TestStartOrResume_LegacyPrefix(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	created, err := st.CreateSession(ctx, "whatever", "test-model")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, err := m.StartOrResume(ctx, "S1", "")
	if err != nil {
		t.Fatalf("resume by legacy ref: %v", err)
	}
	if sess.ID != created.ID {
		t.Fatalf("expected legacy S1 to resume session 1, got %d", sess.ID)
	}
}

func TestStartOrResume_DuplicateNameRaisesWithCandidates(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sess, err := st.CreateSession(ctx, "research", "test-model")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := st.InsertSessionMessage(ctx, sess.ID, "user", "seed question", "", 3); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	_, err := m.StartOrResume(ctx, "research", "")
	var dup *DuplicateSessionError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateSessionError, got %v", err)
	}
	if dup.Name != "research" || len(dup.Candidates) != 2 {
		t.Fatalf("expected both candidates, got %+v", dup)
	}
	for _, c := range dup.Candidates {
		if c.Preview != "seed question" {
			t.Fatalf("expected first-message preview, got %q", c.Preview)
		}
	}
}

func TestStartOrResume_SingleNameMatchResumes(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	created, err := st.CreateSession(ctx, "solo", "test-model")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, err := m.StartOrResume(ctx, "solo", "")
	if err != nil {
		t.Fatalf("resume by name: %v", err)
	}
	if sess.ID != created.ID {
		t.Fatalf("expected resume of existing session")
	}
}

func TestStartOrResume_LockFileStickiness(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	created, err := st.CreateSession(ctx, "sticky", "test-model")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteLockFile(created.ID); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	sess, err := m.StartOrResume(ctx, "", "new question")
	if err != nil {
		t.Fatalf("resume via lock: %v", err)
	}
	if sess.ID != created.ID {
		t.Fatalf("expected shell lock to resume session %d, got %d", created.ID, sess.ID)
	}
}

func TestStartOrResume_StaleLockClearedAndNewSessionNamed(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := WriteLockFile(9999); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	sess, err := m.StartOrResume(ctx, "", "what is the meaning of life")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID == 9999 {
		t.Fatalf("stale lock must not be resumed")
	}
	if sess.Name == "" {
		t.Fatalf("expected auto-generated session name from the query")
	}
	if _, err := os.Stat(lockFilePath()); !os.IsNotExist(err) {
		t.Fatalf("expected stale lock file to be cleared")
	}
}

func TestStartOrResume_GarbageLockTreatedAsAbsent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := os.WriteFile(lockFilePath(), []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("write garbage lock: %v", err)
	}
	if _, err := m.StartOrResume(ctx, "", "hello there everyone"); err != nil {
		t.Fatalf("garbage lock should not fail resolution: %v", err)
	}
}

func TestBuildContextMessages_SummaryPairThenMessages(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	sess, err := m.StartOrResume(ctx, "ctx-test", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.SaveTurn(ctx, "q1", "a1", "", ""); err != nil {
		t.Fatalf("save turn: %v", err)
	}

	msgs, err := m.BuildContextMessages(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != openai.ChatMessageRoleUser || msgs[1].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("expected plain user/assistant pair, got %+v", msgs)
	}

	if err := st.UpdateCompactedSummary(ctx, sess.ID, "the story so far"); err != nil {
		t.Fatalf("update summary: %v", err)
	}
	reloaded, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	m.current = &reloaded

	msgs, err = m.BuildContextMessages(ctx)
	if err != nil {
		t.Fatalf("build after compaction: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("compacted messages must drop out of context, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "Previous conversation summary") || !strings.Contains(msgs[0].Content, "the story so far") {
		t.Fatalf("expected synthetic summary pair, got %+v", msgs[0])
	}
	if msgs[1].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("expected assistant acknowledgement after summary")
	}
}

func TestCheckAndCompact_ThresholdAndTokenDrop(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	m.ContextSize = 1000
	m.CompactionPercent = 50

	if _, err := m.StartOrResume(ctx, "compact-test", ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Below threshold: no compaction.
	if err := m.SaveTurn(ctx, "short", "answer", "q", "a"); err != nil {
		t.Fatalf("save: %v", err)
	}
	compacted, err := m.CheckAndCompact(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if compacted {
		t.Fatalf("compaction must not trigger below threshold")
	}

	// Push past 50% of 1000 tokens (2500+ chars of content at chars/4).
	long := strings.Repeat("research notes accumulate over many turns. ", 60)
	if err := m.SaveTurn(ctx, long, long, "asked about notes", "summarized the notes"); err != nil {
		t.Fatalf("save long: %v", err)
	}

	before := contextTokens(t, m, ctx)
	compacted, err = m.CheckAndCompact(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !compacted {
		t.Fatalf("expected compaction at %d tokens with threshold 500", before)
	}
	if m.Current().CompactedSummary == "" {
		t.Fatalf("expected non-empty compacted summary")
	}
	after := contextTokens(t, m, ctx)
	if after >= before {
		t.Fatalf("expected token count to drop after compaction: %d -> %d", before, after)
	}

	// The summaries strategy folds per-message summaries in.
	if !strings.Contains(m.Current().CompactedSummary, "summarized the notes") {
		t.Fatalf("expected message summaries in compacted summary: %q", m.Current().CompactedSummary)
	}
}

func TestCompactedSummaryIsMonotonic(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	m.ContextSize = 100
	m.CompactionPercent = 10

	if _, err := m.StartOrResume(ctx, "monotonic", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	long := strings.Repeat("fact ", 30)
	if err := m.SaveTurn(ctx, long, long, "first q", "first a"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := m.CheckAndCompact(ctx); err != nil {
		t.Fatalf("first compact: %v", err)
	}
	first := m.Current().CompactedSummary
	if first == "" {
		t.Fatalf("expected a summary after first compaction")
	}

	if err := m.SaveTurn(ctx, long, long, "second q", "second a"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := m.CheckAndCompact(ctx); err != nil {
		t.Fatalf("second compact: %v", err)
	}
	second := m.Current().CompactedSummary
	if second == "" {
		t.Fatalf("later compaction must never un-set the summary")
	}
	if !strings.Contains(second, "second a") {
		t.Fatalf("second compaction should fold in the newer turn: %q", second)
	}
}

func contextTokens(t *testing.T, m *Manager, ctx context.Context) int {
	t.Helper()
	msgs, err := m.BuildContextMessages(ctx)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	total := 0
	for _, msg := range msgs {
		total += len(msg.Content) / 4
	}
	return total
}
