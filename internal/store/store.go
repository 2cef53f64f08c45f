// Package store provides storage backends for the CalmBot mood log and
// unknown-input log.
//
// Both logs are append-only from the bot's perspective; the list and stats
// methods exist for the operator endpoints. SQLite is the default backend,
// PostgreSQL is selected by DSN detection, and an in-memory store backs tests.
package store

import (
	"strings"
	"sync"

	"github.com/calmhq/calmbot/internal/models"
)

// DefaultListLimit is the row cap applied when a list call passes limit <= 0.
const DefaultListLimit = 100

// Store defines the persistence contract shared by all backends.
type Store interface {
	// AddMoodEntry appends one interaction row. Failure is fatal to the
	// triggering turn only: the dispatcher catches it and apologizes.
	AddMoodEntry(entry models.MoodEntry) error
	// AddUnknownInput appends one catalog-miss row.
	AddUnknownInput(input models.UnknownInput) error
	// ListMoodEntries returns up to limit rows, most recent first.
	ListMoodEntries(limit int) ([]models.MoodEntry, error)
	// ListUnknownInputs returns up to limit rows, most recent first.
	ListUnknownInputs(limit int) ([]models.UnknownInput, error)
	// Stats reports row counts for the health and stats endpoints.
	Stats() (models.StoreStats, error)
	// Close releases the backend's resources.
	Close() error
}

// Opts holds configuration options for store construction.
type Opts struct {
	// DSN is either a SQLite file path or a PostgreSQL connection string.
	DSN string
}

// Option defines a functional option for store configuration.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-shaped DSNs and "sqlite"
// for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// normalizeLimit applies the default row cap to non-positive limits.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// InMemoryStore is a mutex-guarded in-memory store used by tests and as a
// last-resort backend when no DSN is configured.
type InMemoryStore struct {
	mu            sync.Mutex
	moodEntries   []models.MoodEntry
	unknownInputs []models.UnknownInput
	nextID        int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

// AddMoodEntry appends an interaction row.
func (s *InMemoryStore) AddMoodEntry(entry models.MoodEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextID
	s.nextID++
	s.moodEntries = append(s.moodEntries, entry)
	return nil
}

// AddUnknownInput appends a catalog-miss row.
func (s *InMemoryStore) AddUnknownInput(input models.UnknownInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	input.ID = s.nextID
	s.nextID++
	s.unknownInputs = append(s.unknownInputs, input)
	return nil
}

// ListMoodEntries returns up to limit rows, most recent first.
func (s *InMemoryStore) ListMoodEntries(limit int) ([]models.MoodEntry, error) {
	limit = normalizeLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.moodEntries)
	if limit > n {
		limit = n
	}
	out := make([]models.MoodEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.moodEntries[i])
	}
	return out, nil
}

// ListUnknownInputs returns up to limit rows, most recent first.
func (s *InMemoryStore) ListUnknownInputs(limit int) ([]models.UnknownInput, error) {
	limit = normalizeLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.unknownInputs)
	if limit > n {
		limit = n
	}
	out := make([]models.UnknownInput, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.unknownInputs[i])
	}
	return out, nil
}

// Stats reports row counts.
func (s *InMemoryStore) Stats() (models.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.StoreStats{
		MoodEntries:   int64(len(s.moodEntries)),
		UnknownInputs: int64(len(s.unknownInputs)),
	}, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

var _ Store = (*InMemoryStore)(nil)
