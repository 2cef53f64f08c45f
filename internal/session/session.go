// Package session tracks per-user conversation state between webhook turns.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long an idle session survives before it is evicted.
const DefaultTTL = 24 * time.Hour

// Sweep interval bounds for the in-memory store's eviction loop.
const (
	minSweepInterval = time.Minute
	maxSweepInterval = 10 * time.Minute
)

// State is the conversational state carried for one user across turns.
// The zero value is a fresh session. An empty PrevResponse means the bot
// has not replied to this user yet.
type State struct {
	AwaitingFollowup bool      `json:"awaiting_followup"`
	ChatMode         bool      `json:"chat_mode"`
	History          string    `json:"history"`
	PrevResponse     string    `json:"prev_response"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store defines the interface for session state persistence.
type Store interface {
	// Get returns the state for a user. The second return value reports
	// whether a session exists; a missing session is not an error.
	Get(ctx context.Context, userID int64) (State, bool, error)

	// Put saves the state for a user and refreshes its TTL.
	Put(ctx context.Context, userID int64, state State) error

	// Delete removes the state for a user.
	Delete(ctx context.Context, userID int64) error

	// Close releases resources held by the store.
	Close() error
}

// Opts holds configuration options for session stores.
type Opts struct {
	// TTL is the idle session lifetime. Zero selects DefaultTTL.
	TTL time.Duration
	// RedisURL selects the Redis backend when set.
	RedisURL string
}

// Option configures session store options.
type Option func(*Opts)

// WithTTL sets the idle session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// WithRedisURL sets the Redis connection URL for the Redis-backed store.
func WithRedisURL(url string) Option {
	return func(o *Opts) {
		o.RedisURL = url
	}
}

// sweepInterval derives the eviction loop period from the TTL, clamped so
// short TTLs do not spin and long TTLs still reclaim memory promptly.
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 10
	if interval < minSweepInterval {
		return minSweepInterval
	}
	if interval > maxSweepInterval {
		return maxSweepInterval
	}
	return interval
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// InMemoryStore keeps sessions in a map guarded by a mutex. Expired
// sessions are hidden from Get immediately and reclaimed by a background
// sweep loop.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewInMemoryStore creates an in-memory session store and starts its
// eviction loop.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.sweep()
	slog.Debug("InMemoryStore created", "ttl", ttl)
	return s
}

// Get returns the state for a user, treating expired entries as missing.
func (s *InMemoryStore) Get(ctx context.Context, userID int64) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return State{}, false, nil
	}
	return entry.state, true, nil
}

// Put saves the state for a user and refreshes its expiry.
func (s *InMemoryStore) Put(ctx context.Context, userID int64, state State) error {
	state.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = memoryEntry{state: state, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

// Delete removes the state for a user.
func (s *InMemoryStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// Close stops the eviction loop.
func (s *InMemoryStore) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	return nil
}

// Len reports the number of live sessions. Used by diagnostics and tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval(s.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *InMemoryStore) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, userID)
			slog.Debug("InMemoryStore evicted expired session", "userID", userID)
		}
	}
}

// Ensure InMemoryStore implements the Store interface.
var _ Store = (*InMemoryStore)(nil)
