// Package store is the SQLite-backed persistence layer: sessions, session
// messages, the query/answer history log, the content-addressed URL cache,
// findings, and the embedding tables the vector store reads. Built on the
// pure-Go modernc.org/sqlite driver so the module never requires cgo.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SummaryStatus enumerates the url_cache.summary_status state machine.
type SummaryStatus string

const (
	SummaryPending    SummaryStatus = "pending"
	SummaryProcessing SummaryStatus = "processing"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryFailed     SummaryStatus = "failed"
)

// Store wraps a SQLite handle. Writes are serialized through writeMu to
// honor the single-writer guarantee SQLite expects of concurrent callers.
// The connection pool holds a single connection, so reads also run one at
// a time.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema. Pass ":memory:" for an ephemeral store, as tests do.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			model_alias TEXT,
			created_at DATETIME NOT NULL,
			compacted_summary TEXT,
			compaction_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(name)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT,
			summary TEXT,
			tokens INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			query TEXT,
			query_summary TEXT,
			answer TEXT,
			answer_summary TEXT,
			model TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS url_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL UNIQUE,
			title TEXT,
			content TEXT,
			links TEXT NOT NULL DEFAULT '[]',
			summary TEXT,
			summary_status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			finding_text TEXT NOT NULL,
			source_url TEXT,
			source_title TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cache_id INTEGER NOT NULL REFERENCES url_cache(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			original_text TEXT NOT NULL,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_cache ON chunk_embeddings(cache_id)`,
		`CREATE TABLE IF NOT EXISTS link_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cache_id INTEGER NOT NULL REFERENCES url_cache(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			original_text TEXT NOT NULL,
			href TEXT NOT NULL,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_link_embeddings_cache ON link_embeddings(cache_id)`,
		`CREATE TABLE IF NOT EXISTS finding_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			finding_id INTEGER NOT NULL REFERENCES findings(id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			original_text TEXT NOT NULL,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_finding_embeddings_finding ON finding_embeddings(finding_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ---- sessions ----

// Session is the persisted row shape for a conversation thread.
type Session struct {
	ID               int64
	Name             string
	ModelAlias       string
	CreatedAt        time.Time
	CompactedSummary string
	CompactionAt     sql.NullTime
}

func (s *Store) CreateSession(ctx context.Context, name, modelAlias string) (Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO sessions (name, model_alias, created_at) VALUES (?, ?, ?)`, name, modelAlias, now)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{ID: id, Name: name, ModelAlias: modelAlias, CreatedAt: now}, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, model_alias, created_at, compacted_summary, compaction_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *Store) FindSessionsByName(ctx context.Context, name string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, model_alias, created_at, compacted_summary, compaction_at FROM sessions WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("find sessions by name: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCompactedSummary(ctx context.Context, id int64, summary string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET compacted_summary = ?, compaction_at = ? WHERE id = ?`, summary, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update compacted summary: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var modelAlias, compactedSummary sql.NullString
	if err := row.Scan(&sess.ID, &sess.Name, &modelAlias, &sess.CreatedAt, &compactedSummary, &sess.CompactionAt); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.ModelAlias = modelAlias.String
	sess.CompactedSummary = compactedSummary.String
	return sess, nil
}

// ---- session messages ----

// SessionMessage is one persisted turn-half within a session.
type SessionMessage struct {
	ID        int64
	SessionID int64
	Role      string
	Content   string
	Summary   string
	Tokens    int
	CreatedAt time.Time
}

func (s *Store) InsertSessionMessage(ctx context.Context, sessionID int64, role, content, summary string, tokens int) (SessionMessage, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, role, content, summary, tokens, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, role, content, summary, tokens, now)
	if err != nil {
		return SessionMessage{}, fmt.Errorf("insert session message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return SessionMessage{}, fmt.Errorf("insert session message: %w", err)
	}
	return SessionMessage{ID: id, SessionID: sessionID, Role: role, Content: content, Summary: summary, Tokens: tokens, CreatedAt: now}, nil
}

func (s *Store) ListSessionMessages(ctx context.Context, sessionID int64) ([]SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, summary, tokens, created_at FROM session_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	var out []SessionMessage
	for rows.Next() {
		var m SessionMessage
		var content, summary sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &content, &summary, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		m.Content = content.String
		m.Summary = summary.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListSessionMessagesAfter returns the messages inserted strictly after a
// point in time, used to assemble context past a compaction point.
func (s *Store) ListSessionMessagesAfter(ctx context.Context, sessionID int64, after time.Time) ([]SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, summary, tokens, created_at FROM session_messages WHERE session_id = ? AND created_at > ? ORDER BY id`, sessionID, after)
	if err != nil {
		return nil, fmt.Errorf("list session messages after: %w", err)
	}
	defer rows.Close()

	var out []SessionMessage
	for rows.Next() {
		var m SessionMessage
		var content, summary sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &content, &summary, &m.Tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		m.Content = content.String
		m.Summary = summary.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- interaction history ----

func (s *Store) InsertHistory(ctx context.Context, query, querySummary, answer, answerSummary, model string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (timestamp, query, query_summary, answer, answer_summary, model) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), query, querySummary, answer, answerSummary, model)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ---- url cache ----

// URLCacheRow is the persisted shape of one cached page.
type URLCacheRow struct {
	ID            int64
	URL           string
	Title         string
	Content       string
	Links         []byte // JSON array, see adapters.Link / extract link shape
	Summary       string
	SummaryStatus SummaryStatus
	CreatedAt     time.Time
}

// UpsertURLCache inserts a new cache row, or returns the existing row
// unchanged if the URL is already cached ("cache wins until evicted").
func (s *Store) UpsertURLCache(ctx context.Context, url, title, content string, links []byte) (URLCacheRow, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if existing, err := s.getURLCacheLocked(ctx, url); err == nil {
		return existing, false, nil
	}

	if links == nil {
		links = []byte("[]")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO url_cache (url, title, content, links, summary_status, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		url, title, content, string(links), string(SummaryPending), now)
	if err != nil {
		return URLCacheRow{}, false, fmt.Errorf("upsert url cache: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil || affected == 0 {
		existing, err := s.getURLCacheLocked(ctx, url)
		if err != nil {
			return URLCacheRow{}, false, fmt.Errorf("upsert url cache: %w", err)
		}
		return existing, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return URLCacheRow{}, false, fmt.Errorf("upsert url cache: %w", err)
	}
	return URLCacheRow{ID: id, URL: url, Title: title, Content: content, Links: links, SummaryStatus: SummaryPending, CreatedAt: now}, true, nil
}

func (s *Store) GetURLCache(ctx context.Context, url string) (URLCacheRow, error) {
	return s.getURLCacheLocked(ctx, url)
}

func (s *Store) getURLCacheLocked(ctx context.Context, url string) (URLCacheRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, content, links, summary, summary_status, created_at FROM url_cache WHERE url = ?`, url)
	var r URLCacheRow
	var title, content, summary, links sql.NullString
	var status string
	if err := row.Scan(&r.ID, &r.URL, &title, &content, &links, &summary, &status, &r.CreatedAt); err != nil {
		return URLCacheRow{}, fmt.Errorf("get url cache: %w", err)
	}
	r.Title = title.String
	r.Content = content.String
	r.Summary = summary.String
	r.SummaryStatus = SummaryStatus(status)
	r.Links = []byte(links.String)
	return r, nil
}

func (s *Store) GetURLCacheByID(ctx context.Context, id int64) (URLCacheRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, content, links, summary, summary_status, created_at FROM url_cache WHERE id = ?`, id)
	var r URLCacheRow
	var title, content, summary, links sql.NullString
	var status string
	if err := row.Scan(&r.ID, &r.URL, &title, &content, &links, &summary, &status, &r.CreatedAt); err != nil {
		return URLCacheRow{}, fmt.Errorf("get url cache by id: %w", err)
	}
	r.Title = title.String
	r.Content = content.String
	r.Summary = summary.String
	r.SummaryStatus = SummaryStatus(status)
	r.Links = []byte(links.String)
	return r, nil
}

// MarkSummaryProcessing transitions a row from pending to processing. It is
// a no-op (returns false) if the row is not currently pending.
func (s *Store) MarkSummaryProcessing(ctx context.Context, id int64) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE url_cache SET summary_status = ? WHERE id = ? AND summary_status = ?`,
		string(SummaryProcessing), id, string(SummaryPending))
	if err != nil {
		return false, fmt.Errorf("mark summary processing: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetSummaryResult transitions a row from processing to completed/failed,
// storing the summary text. It is a no-op if the row is not currently
// processing, so racing workers cannot clobber each other's rows.
func (s *Store) SetSummaryResult(ctx context.Context, id int64, status SummaryStatus, summary string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE url_cache SET summary_status = ?, summary = ? WHERE id = ? AND summary_status = ?`,
		string(status), summary, id, string(SummaryProcessing))
	if err != nil {
		return false, fmt.Errorf("set summary result: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReclaimAbandonedSummaries resets rows stuck in "processing" back to
// "pending", used on worker-pool shutdown so an interrupted summarization
// intent is retried by a later process instead of being silently lost.
func (s *Store) ReclaimAbandonedSummaries(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE url_cache SET summary_status = ? WHERE summary_status = ?`, string(SummaryPending), string(SummaryProcessing))
	if err != nil {
		return 0, fmt.Errorf("reclaim abandoned summaries: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOlderThan deletes url_cache rows (and their cascaded embeddings)
// created before the cutoff, the same age-based policy the disk HTTP cache
// age-based invalidation to the SQLite-backed research cache.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM url_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge url cache: %w", err)
	}
	return res.RowsAffected()
}

// ---- findings ----

// Finding is a durable, optionally-sourced fact.
type Finding struct {
	ID          int64
	Text        string
	SourceURL   string
	SourceTitle string
	Tags        []string
	CreatedAt   time.Time
}

func (s *Store) InsertFinding(ctx context.Context, text, sourceURL, sourceTitle string, tags []string) (Finding, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return Finding{}, fmt.Errorf("marshal tags: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO findings (finding_text, source_url, source_title, tags, created_at) VALUES (?, ?, ?, ?, ?)`,
		text, sourceURL, sourceTitle, string(tagsJSON), now)
	if err != nil {
		return Finding{}, fmt.Errorf("insert finding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Finding{}, fmt.Errorf("insert finding: %w", err)
	}
	return Finding{ID: id, Text: text, SourceURL: sourceURL, SourceTitle: sourceTitle, Tags: tags, CreatedAt: now}, nil
}

func (s *Store) ListRecentFindings(ctx context.Context, limit int) ([]Finding, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, finding_text, source_url, source_title, tags, created_at FROM findings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent findings: %w", err)
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		var sourceURL, sourceTitle, tagsJSON sql.NullString
		if err := rows.Scan(&f.ID, &f.Text, &sourceURL, &sourceTitle, &tagsJSON, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.SourceURL = sourceURL.String
		f.SourceTitle = sourceTitle.String
		if tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &f.Tags)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) ListAllFindings(ctx context.Context) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, finding_text, source_url, source_title, tags, created_at FROM findings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all findings: %w", err)
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		var sourceURL, sourceTitle, tagsJSON sql.NullString
		if err := rows.Scan(&f.ID, &f.Text, &sourceURL, &sourceTitle, &tagsJSON, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.SourceURL = sourceURL.String
		f.SourceTitle = sourceTitle.String
		if tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &f.Tags)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- embeddings ----

// EmbeddingRow is the common shape of one embedded chunk/link/finding.
type EmbeddingRow struct {
	Ordinal      int
	OriginalText string
	Href         string // link embeddings only
	Vector       []byte
}

func (s *Store) StoreChunkEmbeddings(ctx context.Context, cacheID int64, rows []EmbeddingRow) error {
	return s.storeEmbeddings(ctx, "chunk_embeddings", "cache_id", cacheID, rows, false)
}

func (s *Store) StoreLinkEmbeddings(ctx context.Context, cacheID int64, rows []EmbeddingRow) error {
	return s.storeEmbeddings(ctx, "link_embeddings", "cache_id", cacheID, rows, true)
}

func (s *Store) StoreFindingEmbedding(ctx context.Context, findingID int64, row EmbeddingRow) error {
	return s.storeEmbeddings(ctx, "finding_embeddings", "finding_id", findingID, []EmbeddingRow{row}, false)
}

func (s *Store) storeEmbeddings(ctx context.Context, table, fkColumn string, fkID int64, rows []EmbeddingRow, withHref bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	defer tx.Rollback()

	var stmt *sql.Stmt
	if withHref {
		stmt, err = tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s, ordinal, original_text, href, vector) VALUES (?, ?, ?, ?, ?)`, table, fkColumn))
	} else {
		stmt, err = tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s, ordinal, original_text, vector) VALUES (?, ?, ?, ?)`, table, fkColumn))
	}
	if err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if withHref {
			_, err = stmt.ExecContext(ctx, fkID, r.Ordinal, r.OriginalText, r.Href, r.Vector)
		} else {
			_, err = stmt.ExecContext(ctx, fkID, r.Ordinal, r.OriginalText, r.Vector)
		}
		if err != nil {
			return fmt.Errorf("store embeddings: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) HasChunkEmbeddings(ctx context.Context, cacheID int64) (bool, error) {
	return s.hasEmbeddings(ctx, "chunk_embeddings", "cache_id", cacheID)
}

func (s *Store) HasLinkEmbeddings(ctx context.Context, cacheID int64) (bool, error) {
	return s.hasEmbeddings(ctx, "link_embeddings", "cache_id", cacheID)
}

func (s *Store) hasEmbeddings(ctx context.Context, table, fkColumn string, fkID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, table, fkColumn), fkID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has embeddings: %w", err)
	}
	return count > 0, nil
}

func (s *Store) LoadChunkEmbeddings(ctx context.Context, cacheID int64) ([]EmbeddingRow, error) {
	return s.loadEmbeddings(ctx, "chunk_embeddings", "cache_id", cacheID, false)
}

func (s *Store) LoadLinkEmbeddings(ctx context.Context, cacheID int64) ([]EmbeddingRow, error) {
	return s.loadEmbeddings(ctx, "link_embeddings", "cache_id", cacheID, true)
}

func (s *Store) LoadAllFindingEmbeddings(ctx context.Context) (map[int64][]EmbeddingRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT finding_id, ordinal, original_text, vector FROM finding_embeddings ORDER BY finding_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("load finding embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]EmbeddingRow)
	for rows.Next() {
		var findingID int64
		var r EmbeddingRow
		if err := rows.Scan(&findingID, &r.Ordinal, &r.OriginalText, &r.Vector); err != nil {
			return nil, fmt.Errorf("scan finding embedding: %w", err)
		}
		out[findingID] = append(out[findingID], r)
	}
	return out, rows.Err()
}

func (s *Store) loadEmbeddings(ctx context.Context, table, fkColumn string, fkID int64, withHref bool) ([]EmbeddingRow, error) {
	var query string
	if withHref {
		query = fmt.Sprintf(`SELECT ordinal, original_text, href, vector FROM %s WHERE %s = ? ORDER BY ordinal`, table, fkColumn)
	} else {
		query = fmt.Sprintf(`SELECT ordinal, original_text, vector FROM %s WHERE %s = ? ORDER BY ordinal`, table, fkColumn)
	}
	rows, err := s.db.QueryContext(ctx, query, fkID)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var r EmbeddingRow
		if withHref {
			err = rows.Scan(&r.Ordinal, &r.OriginalText, &r.Href, &r.Vector)
		} else {
			err = rows.Scan(&r.Ordinal, &r.OriginalText, &r.Vector)
		}
		if err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
