package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisConnectTimeout bounds the startup connectivity check.
const redisConnectTimeout = 5 * time.Second

// RedisStore keeps sessions in Redis so they survive restarts and can be
// shared by multiple instances. Each session lives under its own key and
// expires server-side after the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis using the configured URL and verifies
// connectivity before returning.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("session.NewRedisStore: Redis URL is required")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("RedisStore failed to parse Redis URL", "error", err)
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("RedisStore failed to connect to Redis", "error", err, "addr", redisOpts.Addr)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	slog.Info("RedisStore connected", "addr", redisOpts.Addr, "ttl", ttl)
	return &RedisStore{client: client, ttl: ttl}, nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("calmbot:session:%d", userID)
}

// Get returns the state for a user. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, userID int64) (State, bool, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		slog.Error("RedisStore Get failed", "error", err, "userID", userID)
		return State{}, false, fmt.Errorf("failed to get session: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Error("RedisStore Get failed to decode session", "error", err, "userID", userID)
		return State{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return state, true, nil
}

// Put saves the state for a user and refreshes its server-side TTL.
func (s *RedisStore) Put(ctx context.Context, userID int64, state State) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		slog.Error("RedisStore Put failed to encode session", "error", err, "userID", userID)
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		slog.Error("RedisStore Put failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("RedisStore Put succeeded", "userID", userID)
	return nil
}

// Delete removes the state for a user.
func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		slog.Error("RedisStore Delete failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements the Store interface.
var _ Store = (*RedisStore)(nil)
