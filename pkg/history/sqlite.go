package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	channel     TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	rule_id     TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, id);
`

// SQLite stores history in a SQLite database through the pure-Go driver.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	return initSQLite(conn, path)
}

// OpenInMemory creates a private in-memory database, mainly for tests.
func OpenInMemory() (*SQLite, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory history database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	conn.SetMaxOpenConns(1)

	return initSQLite(conn, ":memory:")
}

func initSQLite(conn *sql.DB, path string) (*SQLite, error) {
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return &SQLite{conn: conn, path: path}, nil
}

// Path returns the database location.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) FirstContact(ctx context.Context, sessionKey string) (bool, error) {
	var exists int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE session_key = ? LIMIT 1`, sessionKey).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("query session history: %w", err)
	default:
		return false, nil
	}
}

func (s *SQLite) Append(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.SessionKey) == "" {
		return errors.New("session key is required")
	}
	entry = normalize(entry)

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO messages (session_key, channel, role, content, rule_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.SessionKey, entry.Channel, string(entry.Role), entry.Content, entry.RuleID, entry.At.UnixNano())
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}

	return nil
}

func (s *SQLite) List(ctx context.Context, sessionKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT session_key, channel, role, content, rule_id, created_at FROM (
			SELECT id, session_key, channel, role, content, rule_id, created_at
			FROM messages
			WHERE session_key = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			entry Entry
			role  string
			at    int64
		)
		if err := rows.Scan(&entry.SessionKey, &entry.Channel, &role, &entry.Content, &entry.RuleID, &at); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Role = Role(role)
		entry.At = time.Unix(0, at).UTC()
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
