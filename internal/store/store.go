// Package store persists drafts and thread transcript events in SQLite so
// anchors and staged drafts survive a process restart.
//
// The orchestration core depends only on the draft.Store and event sink
// interfaces; this package is the concrete collaborator behind them.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"valet/internal/draft"
	"valet/internal/logging"
	"valet/internal/types"
)

// Store is the SQLite-backed draft and transcript store.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// New opens (or creates) the store at the given path.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		origin_message_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		fields TEXT NOT NULL,
		reply_context TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_thread ON drafts(thread_id);
	CREATE INDEX IF NOT EXISTS idx_drafts_origin ON drafts(thread_id, origin_message_id);

	CREATE TABLE IF NOT EXISTS thread_events (
		thread_id TEXT NOT NULL,
		seq TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (thread_id, seq)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDraft upserts a draft. Implements draft.Store.
func (s *Store) SaveDraft(d *draft.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	var replyJSON sql.NullString
	if d.Reply != nil {
		raw, err := json.Marshal(d.Reply)
		if err != nil {
			return fmt.Errorf("failed to marshal reply context: %w", err)
		}
		replyJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO drafts (id, thread_id, origin_message_id, kind, status, fields, reply_context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fields = excluded.fields,
			reply_context = excluded.reply_context,
			updated_at = excluded.updated_at`,
		d.ID, d.ThreadID, d.OriginMessageID, string(d.Kind), string(d.Status),
		string(fields), replyJSON, d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	logging.StoreDebug("Saved draft %s (status=%s)", d.ID, d.Status)
	return nil
}

// DraftByID loads one draft.
func (s *Store) DraftByID(id string) (*draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, thread_id, origin_message_id, kind, status, fields, reply_context, created_at, updated_at
		FROM drafts WHERE id = ?`, id)
	return scanDraft(row)
}

// DraftByOrigin returns the draft spawned by a prior user turn, if any.
func (s *Store) DraftByOrigin(threadID, messageID string) (*draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, thread_id, origin_message_id, kind, status, fields, reply_context, created_at, updated_at
		FROM drafts WHERE thread_id = ? AND origin_message_id = ?
		ORDER BY created_at DESC LIMIT 1`, threadID, messageID)
	return scanDraft(row)
}

// LiveDrafts returns all non-terminal drafts, for rehydrating the draft
// engine on boot.
func (s *Store) LiveDrafts() ([]*draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, thread_id, origin_message_id, kind, status, fields, reply_context, created_at, updated_at
		FROM drafts WHERE status IN (?, ?) ORDER BY created_at`,
		string(draft.StatusOpen), string(draft.StatusComplete))
	if err != nil {
		return nil, fmt.Errorf("failed to query live drafts: %w", err)
	}
	defer rows.Close()

	var out []*draft.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*draft.Draft, error) {
	var (
		d          draft.Draft
		kind       string
		status     string
		fieldsJSON string
		replyJSON  sql.NullString
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&d.ID, &d.ThreadID, &d.OriginMessageID, &kind, &status, &fieldsJSON, &replyJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan draft: %w", err)
	}

	d.Kind = draft.Kind(kind)
	d.Status = draft.Status(status)
	d.CreatedAt = time.UnixMilli(createdAt)
	d.UpdatedAt = time.UnixMilli(updatedAt)

	d.Fields = make(map[types.FieldName]string)
	if err := json.Unmarshal([]byte(fieldsJSON), &d.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	if replyJSON.Valid {
		var reply draft.ReplyContext
		if err := json.Unmarshal([]byte(replyJSON.String), &reply); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reply context: %w", err)
		}
		d.Reply = &reply
	}

	return &d, nil
}

// AppendEvent writes one transcript event. Implements the orchestrator's
// event sink.
func (s *Store) AppendEvent(ev types.ThreadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO thread_events (thread_id, seq, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ThreadID, ev.Seq, string(ev.Kind), ev.Payload, ev.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Events returns a thread's transcript events in sequence order.
func (s *Store) Events(threadID string) ([]types.ThreadEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT thread_id, seq, kind, payload, created_at
		FROM thread_events WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []types.ThreadEvent
	for rows.Next() {
		var (
			ev        types.ThreadEvent
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&ev.ThreadID, &ev.Seq, &kind, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = types.EventKind(kind)
		ev.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}
