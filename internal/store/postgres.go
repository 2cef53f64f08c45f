// Package store provides storage backends for CalmBot.
//
// This file implements the PostgreSQL-backed store for mood entries and
// unknown inputs.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/calmhq/calmbot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")
	// Run migrations to ensure the log tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// AddMoodEntry appends one interaction row.
func (s *PostgresStore) AddMoodEntry(entry models.MoodEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO mood_entries (user_id, timestamp, mood, message) VALUES ($1, $2, $3, $4)`,
		entry.UserID, entry.Timestamp, entry.Mood, entry.Message)
	if err != nil {
		slog.Error("PostgresStore AddMoodEntry failed", "error", err, "user_id", entry.UserID)
		return fmt.Errorf("failed to insert mood entry for user %d: %w", entry.UserID, err)
	}
	slog.Debug("PostgresStore AddMoodEntry succeeded", "user_id", entry.UserID, "mood", entry.Mood)
	return nil
}

// AddUnknownInput appends one catalog-miss row.
func (s *PostgresStore) AddUnknownInput(input models.UnknownInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO unknown_inputs (user_id, timestamp, input, is_followup) VALUES ($1, $2, $3, $4)`,
		input.UserID, input.Timestamp, input.Input, input.IsFollowup)
	if err != nil {
		slog.Error("PostgresStore AddUnknownInput failed", "error", err, "user_id", input.UserID)
		return fmt.Errorf("failed to insert unknown input for user %d: %w", input.UserID, err)
	}
	slog.Debug("PostgresStore AddUnknownInput succeeded", "user_id", input.UserID, "is_followup", input.IsFollowup)
	return nil
}

// ListMoodEntries returns up to limit rows, most recent first.
func (s *PostgresStore) ListMoodEntries(limit int) ([]models.MoodEntry, error) {
	rows, err := s.db.Query(`SELECT id, user_id, timestamp, mood, message FROM mood_entries ORDER BY timestamp DESC, id DESC LIMIT $1`,
		normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore ListMoodEntries query failed", "error", err)
		return nil, fmt.Errorf("failed to query mood entries: %w", err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		var e models.MoodEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &e.Mood, &e.Message); err != nil {
			slog.Error("PostgresStore ListMoodEntries scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan mood entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListMoodEntries rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate mood entry rows: %w", err)
	}
	slog.Debug("PostgresStore ListMoodEntries succeeded", "count", len(entries))
	return entries, nil
}

// ListUnknownInputs returns up to limit rows, most recent first.
func (s *PostgresStore) ListUnknownInputs(limit int) ([]models.UnknownInput, error) {
	rows, err := s.db.Query(`SELECT id, user_id, timestamp, input, is_followup FROM unknown_inputs ORDER BY timestamp DESC, id DESC LIMIT $1`,
		normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore ListUnknownInputs query failed", "error", err)
		return nil, fmt.Errorf("failed to query unknown inputs: %w", err)
	}
	defer rows.Close()

	var inputs []models.UnknownInput
	for rows.Next() {
		var u models.UnknownInput
		if err := rows.Scan(&u.ID, &u.UserID, &u.Timestamp, &u.Input, &u.IsFollowup); err != nil {
			slog.Error("PostgresStore ListUnknownInputs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan unknown input row: %w", err)
		}
		inputs = append(inputs, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListUnknownInputs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate unknown input rows: %w", err)
	}
	slog.Debug("PostgresStore ListUnknownInputs succeeded", "count", len(inputs))
	return inputs, nil
}

// Stats reports row counts for both tables.
func (s *PostgresStore) Stats() (models.StoreStats, error) {
	var stats models.StoreStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM mood_entries`).Scan(&stats.MoodEntries); err != nil {
		slog.Error("PostgresStore Stats mood count failed", "error", err)
		return stats, fmt.Errorf("failed to count mood entries: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM unknown_inputs`).Scan(&stats.UnknownInputs); err != nil {
		slog.Error("PostgresStore Stats unknown count failed", "error", err)
		return stats, fmt.Errorf("failed to count unknown inputs: %w", err)
	}
	return stats, nil
}

// ClearMoodEntries deletes all records in the mood_entries table (for tests).
func (s *PostgresStore) ClearMoodEntries() error {
	_, err := s.db.Exec("DELETE FROM mood_entries")
	if err != nil {
		slog.Error("PostgresStore ClearMoodEntries failed", "error", err)
		return err
	}
	slog.Debug("PostgresStore ClearMoodEntries succeeded")
	return nil
}

// ClearUnknownInputs deletes all records in the unknown_inputs table (for tests).
func (s *PostgresStore) ClearUnknownInputs() error {
	_, err := s.db.Exec("DELETE FROM unknown_inputs")
	if err != nil {
		slog.Error("PostgresStore ClearUnknownInputs failed", "error", err)
		return err
	}
	slog.Debug("PostgresStore ClearUnknownInputs succeeded")
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	} else {
		slog.Debug("Postgres database connection closed successfully")
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
