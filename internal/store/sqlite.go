// Package store provides storage backends for CalmBot.
//
// This file implements the SQLite-backed store for mood entries and unknown
// inputs.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/calmhq/calmbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// AddMoodEntry appends one interaction row.
func (s *SQLiteStore) AddMoodEntry(entry models.MoodEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO mood_entries (user_id, timestamp, mood, message) VALUES (?, ?, ?, ?)`,
		entry.UserID, entry.Timestamp, entry.Mood, entry.Message)
	if err != nil {
		slog.Error("SQLiteStore AddMoodEntry failed", "error", err, "user_id", entry.UserID)
		return fmt.Errorf("failed to insert mood entry for user %d: %w", entry.UserID, err)
	}
	slog.Debug("SQLiteStore AddMoodEntry succeeded", "user_id", entry.UserID, "mood", entry.Mood)
	return nil
}

// AddUnknownInput appends one catalog-miss row.
func (s *SQLiteStore) AddUnknownInput(input models.UnknownInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO unknown_inputs (user_id, timestamp, input, is_followup) VALUES (?, ?, ?, ?)`,
		input.UserID, input.Timestamp, input.Input, input.IsFollowup)
	if err != nil {
		slog.Error("SQLiteStore AddUnknownInput failed", "error", err, "user_id", input.UserID)
		return fmt.Errorf("failed to insert unknown input for user %d: %w", input.UserID, err)
	}
	slog.Debug("SQLiteStore AddUnknownInput succeeded", "user_id", input.UserID, "is_followup", input.IsFollowup)
	return nil
}

// ListMoodEntries returns up to limit rows, most recent first.
func (s *SQLiteStore) ListMoodEntries(limit int) ([]models.MoodEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, timestamp, mood, message FROM mood_entries ORDER BY timestamp DESC, id DESC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore ListMoodEntries query failed", "error", err)
		return nil, fmt.Errorf("failed to query mood entries: %w", err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		var e models.MoodEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.Mood, &e.Message); err != nil {
			slog.Error("SQLiteStore ListMoodEntries scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan mood entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListMoodEntries rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate mood entry rows: %w", err)
	}
	slog.Debug("SQLiteStore ListMoodEntries succeeded", "count", len(entries))
	return entries, nil
}

// ListUnknownInputs returns up to limit rows, most recent first.
func (s *SQLiteStore) ListUnknownInputs(limit int) ([]models.UnknownInput, error) {
	rows, err := s.db.Query(`SELECT id, user_id, timestamp, input, is_followup FROM unknown_inputs ORDER BY timestamp DESC, id DESC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore ListUnknownInputs query failed", "error", err)
		return nil, fmt.Errorf("failed to query unknown inputs: %w", err)
	}
	defer rows.Close()

	var inputs []models.UnknownInput
	for rows.Next() {
		var u models.UnknownInput
		if err := rows.Scan(&u.ID, &u.UserID, &u.Timestamp, &u.Input, &u.IsFollowup); err != nil {
			slog.Error("SQLiteStore ListUnknownInputs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan unknown input row: %w", err)
		}
		inputs = append(inputs, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListUnknownInputs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate unknown input rows: %w", err)
	}
	slog.Debug("SQLiteStore ListUnknownInputs succeeded", "count", len(inputs))
	return inputs, nil
}

// Stats reports row counts for both tables.
func (s *SQLiteStore) Stats() (models.StoreStats, error) {
	var stats models.StoreStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM mood_entries`).Scan(&stats.MoodEntries); err != nil {
		slog.Error("SQLiteStore Stats mood count failed", "error", err)
		return stats, fmt.Errorf("failed to count mood entries: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM unknown_inputs`).Scan(&stats.UnknownInputs); err != nil {
		slog.Error("SQLiteStore Stats unknown count failed", "error", err)
		return stats, fmt.Errorf("failed to count unknown inputs: %w", err)
	}
	return stats, nil
}

// ClearMoodEntries deletes all records in the mood_entries table (for tests).
func (s *SQLiteStore) ClearMoodEntries() error {
	_, err := s.db.Exec("DELETE FROM mood_entries")
	if err != nil {
		slog.Error("SQLiteStore ClearMoodEntries failed", "error", err)
		return err
	}
	slog.Debug("SQLiteStore ClearMoodEntries succeeded")
	return nil
}

// ClearUnknownInputs deletes all records in the unknown_inputs table (for tests).
func (s *SQLiteStore) ClearUnknownInputs() error {
	_, err := s.db.Exec("DELETE FROM unknown_inputs")
	if err != nil {
		slog.Error("SQLiteStore ClearUnknownInputs failed", "error", err)
		return err
	}
	slog.Debug("SQLiteStore ClearUnknownInputs succeeded")
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}

var _ Store = (*SQLiteStore)(nil)
