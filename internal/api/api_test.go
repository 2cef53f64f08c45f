package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calmhq/calmbot/internal/catalog"
	"github.com/calmhq/calmbot/internal/dispatch"
	"github.com/calmhq/calmbot/internal/flow"
	"github.com/calmhq/calmbot/internal/genai"
	"github.com/calmhq/calmbot/internal/models"
	"github.com/calmhq/calmbot/internal/session"
	"github.com/calmhq/calmbot/internal/store"
	"github.com/calmhq/calmbot/internal/telegram"
)

const (
	testChatID int64 = 100
	testUserID int64 = 7
)

type fixture struct {
	server  *Server
	sender  *telegram.MockSender
	records *store.InMemoryStore
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	sender := telegram.NewMockSender()
	records := store.NewInMemoryStore()
	sessions := session.NewInMemoryStore()
	t.Cleanup(func() { sessions.Close() })
	cat := catalog.New([]catalog.Entry{{Input: "hello", Output: "Hi there!"}})
	resolver := flow.NewResolver(cat, genai.NewMockClient("Generated reply."), records, flow.DefaultPersona)
	server := &Server{
		dispatcher:     dispatch.NewDispatcher(sender, resolver, sessions, records),
		st:             records,
		webhookURL:     "https://calmbot.example.com/webhook",
		sessionBackend: "memory",
		startedAt:      time.Now().UTC(),
	}
	return &fixture{server: server, sender: sender, records: records}
}

// unreachableStore fails statistics queries to exercise degraded health.
type unreachableStore struct {
	store.Store
}

func (unreachableStore) Stats() (models.StoreStats, error) {
	return models.StoreStats{}, errors.New("store offline")
}

func updateBody(t *testing.T, text string) *bytes.Reader {
	t.Helper()
	raw := tgbotapi.Update{
		UpdateID: 41,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: testUserID},
			Chat:      &tgbotapi.Chat{ID: testChatID},
			Text:      text,
		},
	}
	body, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("failed to marshal update: %v", err)
	}
	return bytes.NewReader(body)
}

func seedMoodEntry(t *testing.T, f *fixture, mood string) {
	t.Helper()
	err := f.records.AddMoodEntry(models.MoodEntry{
		UserID:    testUserID,
		Timestamp: time.Now().UTC(),
		Mood:      mood,
		Message:   mood,
	})
	if err != nil {
		t.Fatalf("failed to seed mood entry: %v", err)
	}
}

func TestWebhook_DeliversUpdateToDispatcher(t *testing.T) {
	f := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.server.dispatcher.Start(ctx)

	req := httptest.NewRequest(http.MethodPost, "/webhook", updateBody(t, "hello"))
	rec := httptest.NewRecorder()
	f.server.webhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := f.sender.LastMessage(); ok {
			if msg.Text != "Hi there!" {
				t.Fatalf("expected catalog reply, got %q", msg.Text)
			}
			if msg.ChatID != testChatID {
				t.Fatalf("expected reply to chat %d, got %d", testChatID, msg.ChatID)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the dispatcher to send the reply")
}

func TestWebhook_RejectsBadSecretToken(t *testing.T) {
	f := newTestServer(t)
	f.server.secret = "s3cret"

	req := httptest.NewRequest(http.MethodPost, "/webhook", updateBody(t, "hello"))
	req.Header.Set(secretTokenHeader, "wrong")
	rec := httptest.NewRecorder()
	f.server.webhookHandler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for bad token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", updateBody(t, "hello"))
	req.Header.Set(secretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	f.server.webhookHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for valid token, got %d", rec.Code)
	}
}

func TestWebhook_SwallowsMalformedJSON(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.server.webhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for malformed payload, got %d", rec.Code)
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	f.server.webhookHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow header POST, got %q", allow)
	}
}

func TestIndex_ServesLivenessMessage(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.server.indexHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != indexMessage {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain content type, got %q", ct)
	}
}

func TestIndex_UnknownPathReturnsNotFound(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	f.server.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestTestWebhook_ReportsRegisteredURL(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/test_webhook", nil)
	rec := httptest.NewRecorder()
	f.server.testWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	want := "Webhook URL: https://calmbot.example.com/webhook. Check logs and Telegram getWebhookInfo."
	if rec.Body.String() != want {
		t.Errorf("expected %q, got %q", want, rec.Body.String())
	}
}

func TestTestWebhook_ReportsWhenUnconfigured(t *testing.T) {
	f := newTestServer(t)
	f.server.webhookURL = ""

	req := httptest.NewRequest(http.MethodGet, "/test_webhook", nil)
	rec := httptest.NewRecorder()
	f.server.testWebhookHandler(rec, req)

	if !strings.Contains(rec.Body.String(), "not configured") {
		t.Errorf("expected unconfigured notice, got %q", rec.Body.String())
	}
}

func TestHealth_ReportsHealthyStore(t *testing.T) {
	f := newTestServer(t)
	seedMoodEntry(t, f, "happiness")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to unmarshal health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}
	if health["session_backend"] != "memory" {
		t.Errorf("expected memory session backend, got %v", health["session_backend"])
	}
	if _, ok := health["store"]; !ok {
		t.Error("expected store statistics in health response")
	}
	if _, ok := health["uptime_seconds"]; !ok {
		t.Error("expected uptime in health response")
	}
}

func TestHealth_DegradesWhenStoreUnreachable(t *testing.T) {
	f := newTestServer(t)
	f.server.st = unreachableStore{Store: f.records}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.healthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to unmarshal health response: %v", err)
	}
	if health["status"] != "degraded" {
		t.Errorf("expected degraded status, got %v", health["status"])
	}
	if _, ok := health["error"]; !ok {
		t.Error("expected error detail in degraded health response")
	}
}

func TestMoods_ListsMostRecentFirstWithLimit(t *testing.T) {
	f := newTestServer(t)
	seedMoodEntry(t, f, "happiness")
	seedMoodEntry(t, f, "sadness")
	seedMoodEntry(t, f, "anxiety")

	req := httptest.NewRequest(http.MethodGet, "/moods?limit=2", nil)
	rec := httptest.NewRecorder()
	f.server.moodsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != string(models.APIStatusOK) {
		t.Fatalf("expected ok status, got %q", resp.Status)
	}
	entries, ok := resp.Result.([]interface{})
	if !ok {
		t.Fatalf("expected result array, got %T", resp.Result)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first, ok := entries[0].(map[string]interface{})
	if !ok {
		t.Fatalf("expected entry object, got %T", entries[0])
	}
	if first["mood"] != "anxiety" {
		t.Errorf("expected most recent entry first, got %v", first["mood"])
	}
}

func TestMoods_InvalidLimitFallsBackToDefault(t *testing.T) {
	f := newTestServer(t)
	seedMoodEntry(t, f, "anger")

	req := httptest.NewRequest(http.MethodGet, "/moods?limit=banana", nil)
	rec := httptest.NewRecorder()
	f.server.moodsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	entries, ok := resp.Result.([]interface{})
	if !ok {
		t.Fatalf("expected result array, got %T", resp.Result)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

func TestUnknownInputs_ListsLoggedInputs(t *testing.T) {
	f := newTestServer(t)
	for _, input := range []string{"first", "second"} {
		err := f.records.AddUnknownInput(models.UnknownInput{
			UserID:    testUserID,
			Timestamp: time.Now().UTC(),
			Input:     input,
		})
		if err != nil {
			t.Fatalf("failed to seed unknown input: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/unknown-inputs", nil)
	rec := httptest.NewRecorder()
	f.server.unknownInputsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	inputs, ok := resp.Result.([]interface{})
	if !ok {
		t.Fatalf("expected result array, got %T", resp.Result)
	}
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(inputs))
	}
	first, ok := inputs[0].(map[string]interface{})
	if !ok {
		t.Fatalf("expected input object, got %T", inputs[0])
	}
	if first["input"] != "second" {
		t.Errorf("expected most recent input first, got %v", first["input"])
	}
}

func TestStats_CountsLoggedInteractions(t *testing.T) {
	f := newTestServer(t)
	seedMoodEntry(t, f, "happiness")
	seedMoodEntry(t, f, "sadness")
	err := f.records.AddUnknownInput(models.UnknownInput{
		UserID:    testUserID,
		Timestamp: time.Now().UTC(),
		Input:     "mysterious",
	})
	if err != nil {
		t.Fatalf("failed to seed unknown input: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	f.server.statsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	stats, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected stats object, got %T", resp.Result)
	}
	if stats["mood_entries"] != float64(2) {
		t.Errorf("expected 2 mood entries, got %v", stats["mood_entries"])
	}
	if stats["unknown_inputs"] != float64(1) {
		t.Errorf("expected 1 unknown input, got %v", stats["unknown_inputs"])
	}
}

func TestStats_StoreFailureReturnsError(t *testing.T) {
	f := newTestServer(t)
	f.server.st = unreachableStore{Store: f.records}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	f.server.statsHandler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != string(models.APIStatusError) {
		t.Errorf("expected error status, got %q", resp.Status)
	}
}

func TestRoutes_WiresAllEndpoints(t *testing.T) {
	f := newTestServer(t)

	paths := []string{"/", "/test_webhook", "/health", "/moods", "/unknown-inputs", "/stats"}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		f.server.routes().ServeHTTP(rec, req)
		if rec.Code == http.StatusNotFound {
			t.Errorf("expected %s to be routed, got 404", path)
		}
	}
}
