// Package store provides a SQLite-backed chat history store for Luna.
// Each chat session has its own conversation thread keyed by session_id.
// Messages survive server restarts and are served back through
// GET /chat/history/{session_id}.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the CRM user.
	RoleUser Role = "user"
	// RoleAssistant is a reply produced by Luna.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Session summarises one stored conversation thread.
type Session struct {
	ID           string
	MessageCount int
	LastActivity time.Time
}

// ConversationStore persists and retrieves chat history keyed by session
// id. Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists a single message for the given session.
	Append(ctx context.Context, sessionID string, role Role, content string) error
	// AppendTurn persists a user message and the assistant reply together.
	AppendTurn(ctx context.Context, sessionID, user, assistant string) error
	// Recent returns the most recent n messages for the session, ordered
	// oldest-first. If fewer than n messages exist, all are returned.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)
	// Sessions lists stored sessions, most recently active first.
	Sessions(ctx context.Context) ([]Session, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now returns the timestamp recorded for new messages.
	now func() time.Time
}

// DefaultDBPath returns the default path for the chat history database.
// It resolves to ~/.luna/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".luna")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
    ON chat_messages (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const insertMessage = `INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`

// Append persists a single message for the given session.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, role Role, content string) error {
	if sessionID == "" {
		return fmt.Errorf("store: append: session id is required")
	}
	if _, err := s.db.ExecContext(ctx, insertMessage, sessionID, string(role), content, s.now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// AppendTurn persists a user message and the assistant reply in one
// transaction so a session never records a question without its answer.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, user, assistant string) error {
	if sessionID == "" {
		return fmt.Errorf("store: append turn: session id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append turn: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := s.now().Unix()
	if _, err := tx.ExecContext(ctx, insertMessage, sessionID, string(RoleUser), user, ts); err != nil {
		return fmt.Errorf("store: append turn: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertMessage, sessionID, string(RoleAssistant), assistant, ts); err != nil {
		return fmt.Errorf("store: append turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append turn commit: %w", err)
	}
	return nil
}

// Recent returns the most recent n messages for the session, ordered
// oldest-first. Uses a subquery to select the tail then re-order it.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   chat_messages
    WHERE  session_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return msgs, nil
}

// Sessions lists every stored session with its message count, most
// recently active first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]Session, error) {
	const q = `
SELECT session_id, COUNT(*), MAX(created_at)
FROM   chat_messages
GROUP  BY session_id
ORDER  BY MAX(created_at) DESC, session_id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var sess Session
		var ts int64
		if err := rows.Scan(&sess.ID, &sess.MessageCount, &ts); err != nil {
			return nil, fmt.Errorf("store: sessions scan: %w", err)
		}
		sess.LastActivity = time.Unix(ts, 0).UTC()
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sessions rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
