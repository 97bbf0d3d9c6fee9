package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxResyncHistory bounds the resync history table.
const maxResyncHistory = 100

// StateStore persists sync state in SQLite: which documents are indexed
// (with content hashes for change detection), resync history, and a
// small key-value table for embedder identity.
type StateStore struct {
	db   *sql.DB
	path string
}

// NewStateStore opens or creates the state database.
// If path is empty, an in-memory database is used (tests).
func NewStateStore(path string) (*StateStore, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite; DSN params are
	// ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &StateStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the state tables if they don't exist.
func (s *StateStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		kind TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resyncs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		reason TEXT NOT NULL,
		full_rebuild INTEGER NOT NULL DEFAULT 0,
		items_indexed INTEGER NOT NULL DEFAULT 0,
		items_skipped INTEGER NOT NULL DEFAULT 0,
		items_removed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_resyncs_started ON resyncs(started_at DESC);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

// SaveDocuments upserts document records in a single transaction.
func (s *StateStore) SaveDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (path, size, mod_time, content_hash, kind, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			content_hash = excluded.content_hash,
			kind = excluded.kind,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx,
			doc.Path, doc.Size, doc.ModTime.UnixNano(), doc.ContentHash,
			string(doc.Kind), doc.ChunkCount, doc.IndexedAt.UnixNano()); err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SaveDocument upserts a single document record.
func (s *StateStore) SaveDocument(ctx context.Context, doc *Document) error {
	return s.SaveDocuments(ctx, []*Document{doc})
}

// GetDocument returns the tracked record for a path, or nil if untracked.
func (s *StateStore) GetDocument(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, size, mod_time, content_hash, kind, chunk_count, indexed_at
		FROM documents WHERE path = ?
	`, path)

	doc, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}
	return doc, nil
}

// AllDocuments returns all tracked documents keyed by path.
// Used by the resync driver to detect deleted and unchanged files.
func (s *StateStore) AllDocuments(ctx context.Context) (map[string]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, size, mod_time, content_hash, kind, chunk_count, indexed_at
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]*Document)
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs[doc.Path] = doc
	}
	return docs, rows.Err()
}

// scanDocument scans one documents row via the given scan func.
func scanDocument(scan func(dest ...any) error) (*Document, error) {
	var doc Document
	var kind string
	var modTime, indexedAt int64

	if err := scan(&doc.Path, &doc.Size, &modTime, &doc.ContentHash,
		&kind, &doc.ChunkCount, &indexedAt); err != nil {
		return nil, err
	}

	doc.Kind = DocKind(kind)
	doc.ModTime = time.Unix(0, modTime)
	doc.IndexedAt = time.Unix(0, indexedAt)
	return &doc, nil
}

// DeleteDocument removes a tracked document record.
func (s *StateStore) DeleteDocument(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	return nil
}

// DeleteAllDocuments removes every tracked document record.
// Called before a full rebuild.
func (s *StateStore) DeleteAllDocuments(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("delete all documents: %w", err)
	}
	return nil
}

// DocumentCount returns the number of tracked documents.
func (s *StateStore) DocumentCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// RecordResync appends a resync history row and prunes old history.
func (s *StateStore) RecordResync(ctx context.Context, rec *ResyncRecord) (int64, error) {
	full := 0
	if rec.Full {
		full = 1
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO resyncs (started_at, finished_at, reason, full_rebuild,
			items_indexed, items_skipped, items_removed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), rec.Reason, full,
		rec.ItemsIndexed, rec.ItemsSkipped, rec.ItemsRemoved, rec.Err)
	if err != nil {
		return 0, fmt.Errorf("record resync: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("resync insert id: %w", err)
	}

	// Circular buffer: keep only the newest rows.
	_, _ = s.db.ExecContext(ctx, `
		DELETE FROM resyncs WHERE id NOT IN (
			SELECT id FROM resyncs ORDER BY started_at DESC LIMIT ?
		)
	`, maxResyncHistory)

	return id, nil
}

// RecentResyncs returns the newest resync records, newest first.
func (s *StateStore) RecentResyncs(ctx context.Context, limit int) ([]*ResyncRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, reason, full_rebuild,
			items_indexed, items_skipped, items_removed, error
		FROM resyncs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list resyncs: %w", err)
	}
	defer rows.Close()

	var records []*ResyncRecord
	for rows.Next() {
		var rec ResyncRecord
		var started, finished int64
		var full int
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Reason, &full,
			&rec.ItemsIndexed, &rec.ItemsSkipped, &rec.ItemsRemoved, &rec.Err); err != nil {
			return nil, fmt.Errorf("scan resync: %w", err)
		}
		rec.StartedAt = time.Unix(0, started)
		rec.FinishedAt = time.Unix(0, finished)
		rec.Full = full == 1
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// GetState returns the value for a state key, or empty string if unset.
func (s *StateStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState upserts a state key.
func (s *StateStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}
