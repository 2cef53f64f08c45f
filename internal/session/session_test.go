package session

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore(WithTTL(time.Hour))
	defer s.Close()
	ctx := context.Background()

	_, found, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no session before Put")
	}

	want := State{
		AwaitingFollowup: true,
		ChatMode:         true,
		History:          "User: hi | Bot: hello ",
		PrevResponse:     "hello",
	}
	if err := s.Put(ctx, 1, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected session after Put")
	}
	if !got.AwaitingFollowup || !got.ChatMode || got.History != want.History || got.PrevResponse != want.PrevResponse {
		t.Errorf("Get returned %+v, want fields from %+v", got, want)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Put should stamp UpdatedAt")
	}

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, found, err = s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected no session after Delete")
	}
}

func TestInMemoryStoreExpiry(t *testing.T) {
	s := NewInMemoryStore(WithTTL(10 * time.Millisecond))
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, 7, State{History: "User: hi | Bot: hello "}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	_, found, err := s.Get(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expired session should be treated as missing")
	}
}

func TestInMemoryStoreIsolatesUsers(t *testing.T) {
	s := NewInMemoryStore(WithTTL(time.Hour))
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, 1, State{History: "User: one | Bot: a "}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, 2, State{History: "User: two | Bot: b "}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || got.History != "User: two | Bot: b " {
		t.Errorf("Get(2) = %+v, found=%v; sessions must not leak across users", got, found)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestSweepInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{time.Second, time.Minute},
		{time.Hour, 6 * time.Minute},
		{24 * time.Hour, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := sweepInterval(tt.ttl); got != tt.want {
			t.Errorf("sweepInterval(%v) = %v, want %v", tt.ttl, got, tt.want)
		}
	}
}

func TestRedisStore(t *testing.T) {
	// This test requires a running Redis instance.
	// Set the SESSION_REDIS_URL environment variable for the connection URL.
	url := getenvOrSkip(t, "SESSION_REDIS_URL")
	s, err := NewRedisStore(WithRedisURL(url), WithTTL(time.Minute))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	userID := int64(987654)
	defer s.Delete(ctx, userID)

	want := State{ChatMode: true, History: "User: hi | Bot: hello ", PrevResponse: "hello"}
	if err := s.Put(ctx, userID, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := s.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || got.History != want.History || !got.ChatMode {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	if err := s.Delete(ctx, userID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, found, err = s.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("expected no session after Delete")
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
