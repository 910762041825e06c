// SQLite persistence for the command audit trail and question history.
//
// Information Hiding:
// - SQLite connection management hidden behind audit.Sink and TranscriptStorage
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/docqa/audit"
)

// SqliteStorage implements audit.Sink and TranscriptStorage using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return initStorage(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return initStorage(db)
}

func initStorage(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS command_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			command TEXT NOT NULL,
			allowed INTEGER NOT NULL,
			reason TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_attempts_session
		ON command_attempts(session_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS command_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			command TEXT NOT NULL,
			success INTEGER NOT NULL,
			output_size INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_results_session
		ON command_results(session_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			outcome TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_session
		ON exchanges(session_id, id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteAttempt implements audit.Sink.
func (s *SqliteStorage) WriteAttempt(ctx context.Context, a audit.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_attempts (session_id, command, allowed, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.SessionID, a.Command, boolToInt(a.Allowed), a.Reason, a.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// WriteResult implements audit.Sink.
func (s *SqliteStorage) WriteResult(ctx context.Context, r audit.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_results (session_id, command, success, output_size, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.SessionID, r.Command, boolToInt(r.Success), r.OutputSize, r.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempts first. An empty sessionID matches all sessions.
func (s *SqliteStorage) RecentAttempts(ctx context.Context, sessionID string, limit int) ([]audit.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT session_id, command, allowed, reason, created_at
		FROM command_attempts`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []audit.Attempt
	for rows.Next() {
		var (
			a       audit.Attempt
			allowed int
			created int64
		)
		if err := rows.Scan(&a.SessionID, &a.Command, &allowed, &a.Reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Allowed = allowed != 0
		a.Time = time.Unix(0, created)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// SessionStats summarizes the audit trail of one session.
type SessionStats struct {
	Attempts    int
	Denied      int
	Executed    int
	Failed      int
	OutputBytes int64
}

// Stats returns the audit summary for sessionID.
func (s *SqliteStorage) Stats(ctx context.Context, sessionID string) (SessionStats, error) {
	var stats SessionStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN allowed = 0 THEN 1 ELSE 0 END), 0)
		 FROM command_attempts WHERE session_id = ?`, sessionID).
		Scan(&stats.Attempts, &stats.Denied)
	if err != nil {
		return stats, fmt.Errorf("failed to count attempts: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(output_size), 0)
		 FROM command_results WHERE session_id = ?`, sessionID).
		Scan(&stats.Executed, &stats.Failed, &stats.OutputBytes)
	if err != nil {
		return stats, fmt.Errorf("failed to count results: %w", err)
	}
	return stats, nil
}

// Append implements TranscriptStorage.
func (s *SqliteStorage) Append(ctx context.Context, e Exchange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, query, answer, outcome, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Query, e.Answer, e.Outcome, e.DurationMs, e.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// History implements TranscriptStorage.
func (s *SqliteStorage) History(ctx context.Context, sessionID string) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, answer, outcome, duration_ms, created_at
		 FROM exchanges WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []Exchange{}
	for rows.Next() {
		e := Exchange{SessionID: sessionID}
		var created int64
		if err := rows.Scan(&e.Query, &e.Answer, &e.Outcome, &e.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		e.Time = time.Unix(0, created)
		history = append(history, e)
	}
	return history, rows.Err()
}

// Delete implements TranscriptStorage.
func (s *SqliteStorage) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// ListSessions implements TranscriptStorage.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM exchanges GROUP BY session_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ audit.Sink        = (*SqliteStorage)(nil)
	_ TranscriptStorage = (*SqliteStorage)(nil)
)
