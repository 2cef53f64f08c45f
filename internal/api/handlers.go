// Package api provides HTTP handlers for CalmBot endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calmhq/calmbot/internal/models"
	"github.com/calmhq/calmbot/internal/telegram"
)

// secretTokenHeader carries the webhook secret Telegram echoes back on
// every delivery.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// indexMessage is the plain-text liveness response on the root path.
const indexMessage = "CalmBot is running! Use Telegram to interact with the bot."

// webhookHandler receives Telegram update deliveries (POST /webhook). It
// only validates and enqueues; all turn processing happens on the
// dispatcher goroutine. Telegram redelivers on non-200 responses, so every
// authenticated request is answered 200 even when the payload is unusable.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("webhookHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("webhookHandler method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.secret != "" && r.Header.Get(secretTokenHeader) != s.secret {
		slog.Warn("webhookHandler rejected bad secret token", "remoteAddr", r.RemoteAddr)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var raw tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		slog.Warn("webhookHandler failed to decode update", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	update, ok := telegram.FlattenUpdate(raw)
	if !ok {
		slog.Debug("webhookHandler ignoring unsupported update", "updateID", raw.UpdateID)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.dispatcher.Enqueue(update)
	w.WriteHeader(http.StatusOK)
}

// indexHandler serves the plain-text liveness page (GET /).
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, indexMessage)
}

// testWebhookHandler reports the registered webhook URL for manual
// diagnostics (GET /test_webhook).
func (s *Server) testWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.webhookURL == "" {
		fmt.Fprint(w, "Webhook is not configured. Set a webhook host and restart.")
		return
	}
	fmt.Fprintf(w, "Webhook URL: %s. Check logs and Telegram getWebhookInfo.", s.webhookURL)
}

// healthHandler provides a health check endpoint for monitoring and load
// balancing (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"session_backend": s.sessionBackend,
	}

	if stats, err := s.st.Stats(); err != nil {
		slog.Warn("Health check: store unreachable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach interaction store"
	} else {
		healthData["store"] = stats
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}

// moodsHandler returns recent mood entries, most recent first (GET /moods).
func (s *Server) moodsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("moodsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("moodsHandler method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.st.ListMoodEntries(parseLimit(r))
	if err != nil {
		slog.Error("Error fetching mood entries", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch mood entries"))
		return
	}
	slog.Debug("mood entries fetched", "count", len(entries))
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}

// unknownInputsHandler returns recent unrecognized inputs, most recent
// first (GET /unknown-inputs).
func (s *Server) unknownInputsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("unknownInputsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("unknownInputsHandler method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	inputs, err := s.st.ListUnknownInputs(parseLimit(r))
	if err != nil {
		slog.Error("Error fetching unknown inputs", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch unknown inputs"))
		return
	}
	slog.Debug("unknown inputs fetched", "count", len(inputs))
	writeJSONResponse(w, http.StatusOK, models.Success(inputs))
}

// statsHandler returns aggregate counts over the interaction logs
// (GET /stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("statsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("statsHandler method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.st.Stats()
	if err != nil {
		slog.Error("Error computing store statistics", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch statistics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// parseLimit reads the optional limit query parameter. Missing or invalid
// values select the store default.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		slog.Debug("Ignoring invalid limit parameter", "limit", raw)
		return 0
	}
	return limit
}
