// Package history persists conversation history in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"askbox/internal/domain"
)

// SQLiteStore implements domain.HistoryStore. Each session key owns an
// ordered list of turns; Save replaces the whole list.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath, creating its
// directory if needed, and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A CLI run is one process; a single connection avoids SQLITE_BUSY
	// between our own statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			session_key TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			id          TEXT    NOT NULL,
			role        TEXT    NOT NULL,
			content     TEXT    NOT NULL,
			created_at  TEXT    NOT NULL,
			PRIMARY KEY (session_key, seq)
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the turns stored under key, oldest first. An unknown key
// yields an empty history.
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]domain.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, created_at FROM turns WHERE session_key = ? ORDER BY seq", key,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var created string
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Save replaces the history stored under key with turns.
func (s *SQLiteStore) Save(ctx context.Context, key string, turns []domain.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_key = ?", key); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO turns (session_key, seq, id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range turns {
		if _, err := stmt.ExecContext(ctx, key, i, t.ID, t.Role, t.Content, t.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Clear removes the history stored under key.
func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_key = ?", key); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

// Sessions lists the keys that have stored turns, most recently active first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_key FROM turns GROUP BY session_key ORDER BY MAX(created_at) DESC, session_key",
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
