package store

import (
	"context"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCreateFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess, err := s.CreateSession(ctx, "my session", "gpt-4o")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID == 0 {
		t.Fatalf("expected nonzero session id")
	}

	found, err := s.FindSessionsByName(ctx, "my session")
	if err != nil {
		t.Fatalf("find sessions by name: %v", err)
	}
	if len(found) != 1 || found[0].ID != sess.ID {
		t.Fatalf("unexpected find result: %+v", found)
	}

	if err := s.UpdateCompactedSummary(ctx, sess.ID, "summary text"); err != nil {
		t.Fatalf("update compacted summary: %v", err)
	}
	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CompactedSummary != "summary text" {
		t.Fatalf("expected compacted summary to persist, got %q", got.CompactedSummary)
	}
	if !got.CompactionAt.Valid {
		t.Fatalf("expected compaction_at to be set")
	}
}

func TestSessionMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess, err := s.CreateSession(ctx, "sess", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.InsertSessionMessage(ctx, sess.ID, "user", "hello", "", 2); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if _, err := s.InsertSessionMessage(ctx, sess.ID, "assistant", "hi there", "greeting", 3); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	msgs, err := s.ListSessionMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected message order: %+v", msgs)
	}
	if msgs[1].Summary != "greeting" {
		t.Fatalf("expected summary to persist, got %q", msgs[1].Summary)
	}
}

func TestUpsertURLCacheWinsUntilEvicted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, created, err := s.UpsertURLCache(ctx, "https://example.com/a", "Title A", "content A", []byte(`[]`))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Fatalf("expected first upsert to create a row")
	}
	if first.SummaryStatus != SummaryPending {
		t.Fatalf("expected pending status, got %q", first.SummaryStatus)
	}

	second, created, err := s.UpsertURLCache(ctx, "https://example.com/a", "Title B", "content B", []byte(`[]`))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("expected second upsert to report no new row created")
	}
	if second.ID != first.ID || second.Title != "Title A" || second.Content != "content A" {
		t.Fatalf("expected cache to win, original row returned unchanged: %+v", second)
	}
}

func TestSummaryStatusStateMachine(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	row, _, err := s.UpsertURLCache(ctx, "https://example.com/b", "Title", "content", nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ok, err := s.SetSummaryResult(ctx, row.ID, SummaryCompleted, "too early")
	if err != nil {
		t.Fatalf("set summary result: %v", err)
	}
	if ok {
		t.Fatalf("expected SetSummaryResult to no-op from pending state")
	}

	ok, err = s.MarkSummaryProcessing(ctx, row.ID)
	if err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if !ok {
		t.Fatalf("expected MarkSummaryProcessing to succeed from pending")
	}

	ok, err = s.MarkSummaryProcessing(ctx, row.ID)
	if err != nil {
		t.Fatalf("mark processing again: %v", err)
	}
	if ok {
		t.Fatalf("expected second MarkSummaryProcessing to no-op, already processing")
	}

	ok, err = s.SetSummaryResult(ctx, row.ID, SummaryCompleted, "the summary")
	if err != nil {
		t.Fatalf("set summary result: %v", err)
	}
	if !ok {
		t.Fatalf("expected SetSummaryResult to succeed from processing")
	}

	got, err := s.GetURLCacheByID(ctx, row.ID)
	if err != nil {
		t.Fatalf("get url cache by id: %v", err)
	}
	if got.SummaryStatus != SummaryCompleted || got.Summary != "the summary" {
		t.Fatalf("unexpected final row state: %+v", got)
	}

	ok, err = s.SetSummaryResult(ctx, row.ID, SummaryCompleted, "again")
	if err != nil {
		t.Fatalf("set summary result: %v", err)
	}
	if ok {
		t.Fatalf("expected SetSummaryResult to no-op once already completed")
	}
}

func TestReclaimAbandonedSummaries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, _, err := s.UpsertURLCache(ctx, "https://example.com/c", "", "", nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	b, _, err := s.UpsertURLCache(ctx, "https://example.com/d", "", "", nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.MarkSummaryProcessing(ctx, a.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	n, err := s.ReclaimAbandonedSummaries(ctx)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed row, got %d", n)
	}

	gotA, err := s.GetURLCacheByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if gotA.SummaryStatus != SummaryPending {
		t.Fatalf("expected reclaimed row back to pending, got %q", gotA.SummaryStatus)
	}

	gotB, err := s.GetURLCacheByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if gotB.SummaryStatus != SummaryPending {
		t.Fatalf("expected untouched row to remain pending, got %q", gotB.SummaryStatus)
	}
}

func TestFindingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.InsertFinding(ctx, "finding one", "https://example.com/a", "Title A", []string{"tag1"}); err != nil {
		t.Fatalf("insert finding: %v", err)
	}
	if _, err := s.InsertFinding(ctx, "finding two", "", "", nil); err != nil {
		t.Fatalf("insert finding: %v", err)
	}

	recent, err := s.ListRecentFindings(ctx, 1)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Text != "finding two" {
		t.Fatalf("unexpected recent findings: %+v", recent)
	}

	all, err := s.ListAllFindings(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(all))
	}
	if len(all[0].Tags) != 1 || all[0].Tags[0] != "tag1" {
		t.Fatalf("expected tags to round trip, got %+v", all[0].Tags)
	}
}

func TestEmbeddingsRoundTripAndCascadeDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cache, _, err := s.UpsertURLCache(ctx, "https://example.com/e", "Title", "content", nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	chunkRows := []EmbeddingRow{
		{Ordinal: 0, OriginalText: "chunk zero", Vector: []byte{1, 2, 3, 4}},
		{Ordinal: 1, OriginalText: "chunk one", Vector: []byte{5, 6, 7, 8}},
	}
	if err := s.StoreChunkEmbeddings(ctx, cache.ID, chunkRows); err != nil {
		t.Fatalf("store chunk embeddings: %v", err)
	}

	linkRows := []EmbeddingRow{
		{Ordinal: 0, OriginalText: "a link", Href: "https://example.com/linked", Vector: []byte{9, 9, 9, 9}},
	}
	if err := s.StoreLinkEmbeddings(ctx, cache.ID, linkRows); err != nil {
		t.Fatalf("store link embeddings: %v", err)
	}

	hasChunks, err := s.HasChunkEmbeddings(ctx, cache.ID)
	if err != nil || !hasChunks {
		t.Fatalf("expected chunk embeddings present, err=%v has=%v", err, hasChunks)
	}
	hasLinks, err := s.HasLinkEmbeddings(ctx, cache.ID)
	if err != nil || !hasLinks {
		t.Fatalf("expected link embeddings present, err=%v has=%v", err, hasLinks)
	}

	loadedChunks, err := s.LoadChunkEmbeddings(ctx, cache.ID)
	if err != nil {
		t.Fatalf("load chunk embeddings: %v", err)
	}
	if len(loadedChunks) != 2 || loadedChunks[0].OriginalText != "chunk zero" || loadedChunks[1].OriginalText != "chunk one" {
		t.Fatalf("unexpected loaded chunks: %+v", loadedChunks)
	}

	loadedLinks, err := s.LoadLinkEmbeddings(ctx, cache.ID)
	if err != nil {
		t.Fatalf("load link embeddings: %v", err)
	}
	if len(loadedLinks) != 1 || loadedLinks[0].Href != "https://example.com/linked" {
		t.Fatalf("unexpected loaded links: %+v", loadedLinks)
	}

	finding, err := s.InsertFinding(ctx, "a finding", "", "", nil)
	if err != nil {
		t.Fatalf("insert finding: %v", err)
	}
	if err := s.StoreFindingEmbedding(ctx, finding.ID, EmbeddingRow{Ordinal: 0, OriginalText: "a finding", Vector: []byte{1, 1, 1, 1}}); err != nil {
		t.Fatalf("store finding embedding: %v", err)
	}
	allFindingEmbeddings, err := s.LoadAllFindingEmbeddings(ctx)
	if err != nil {
		t.Fatalf("load all finding embeddings: %v", err)
	}
	if len(allFindingEmbeddings[finding.ID]) != 1 {
		t.Fatalf("expected 1 embedding for finding, got %+v", allFindingEmbeddings)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM url_cache WHERE id = ?`, cache.ID); err != nil {
		t.Fatalf("delete url cache row: %v", err)
	}

	hasChunks, err = s.HasChunkEmbeddings(ctx, cache.ID)
	if err != nil || hasChunks {
		t.Fatalf("expected chunk embeddings cascaded away, err=%v has=%v", err, hasChunks)
	}
	hasLinks, err = s.HasLinkEmbeddings(ctx, cache.ID)
	if err != nil || hasLinks {
		t.Fatalf("expected link embeddings cascaded away, err=%v has=%v", err, hasLinks)
	}
}

func TestHistoryInsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.InsertHistory(ctx, "what is go", "go query", "go is a language", "go answer", "gpt-4o"); err != nil {
		t.Fatalf("insert history: %v", err)
	}
}
