// ABOUTME: SQLite audit ledger using modernc.org/sqlite
// ABOUTME: Opens the database with WAL mode and creates the schema on first use

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the audit ledger backed by SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the auditor and readers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite audit ledger initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocation_events (
			event_id       TEXT PRIMARY KEY,
			invocation_id  TEXT NOT NULL,
			event          TEXT NOT NULL,
			tool_name      TEXT NOT NULL,
			status         TEXT NOT NULL,
			arguments_json TEXT NOT NULL,
			response       TEXT,
			cancel_reason  TEXT,
			ts             TEXT NOT NULL,

			CHECK (event IN ('created', 'completed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_invocation_events_invocation
			ON invocation_events(invocation_id);

		CREATE INDEX IF NOT EXISTS idx_invocation_events_ts
			ON invocation_events(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite audit ledger")
	return s.db.Close()
}
