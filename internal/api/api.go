// Package api provides the HTTP surface and the main server logic for
// CalmBot.
//
// It exposes the Telegram webhook endpoint, liveness and diagnostic pages,
// and operator read endpoints over the interaction logs. Run is the
// composition root that wires the store, session, catalog, generative,
// Telegram and dispatch modules together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calmhq/calmbot/internal/catalog"
	"github.com/calmhq/calmbot/internal/dispatch"
	"github.com/calmhq/calmbot/internal/flow"
	"github.com/calmhq/calmbot/internal/genai"
	"github.com/calmhq/calmbot/internal/session"
	"github.com/calmhq/calmbot/internal/store"
	"github.com/calmhq/calmbot/internal/telegram"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":10000"

const (
	// shutdownTimeout bounds the graceful HTTP drain on shutdown.
	shutdownTimeout = 10 * time.Second

	// dispatcherGrace bounds the wait for an in-flight turn on shutdown.
	dispatcherGrace = 15 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the HTTP listen address. Empty selects DefaultAddr.
	Addr string
	// WebhookHost is the public hostname Telegram delivers updates to.
	// Empty skips webhook registration.
	WebhookHost string
	// CatalogFile is the phrase-catalog JSON path. A missing or malformed
	// file leaves the catalog empty.
	CatalogFile string
	// PersonaFile overrides the built-in persona text when set.
	PersonaFile string
	// QROutput writes the bot's deep-link QR code at startup: "-" for
	// stdout, anything else a file path. Empty disables it.
	QROutput string
}

// Option defines a functional option for API configuration.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithWebhookHost sets the public hostname used for webhook registration.
func WithWebhookHost(host string) Option {
	return func(o *Opts) {
		o.WebhookHost = host
	}
}

// WithCatalogFile sets the phrase-catalog JSON path.
func WithCatalogFile(path string) Option {
	return func(o *Opts) {
		o.CatalogFile = path
	}
}

// WithPersonaFile sets the persona text file path.
func WithPersonaFile(path string) Option {
	return func(o *Opts) {
		o.PersonaFile = path
	}
}

// WithQROutput sets the destination for the bot deep-link QR code.
func WithQROutput(dest string) Option {
	return func(o *Opts) {
		o.QROutput = dest
	}
}

// Server bundles the HTTP handlers with their collaborators.
type Server struct {
	dispatcher     *dispatch.Dispatcher
	st             store.Store
	secret         string
	webhookURL     string
	sessionBackend string
	startedAt      time.Time
}

// routes builds the HTTP mux for the server.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/test_webhook", s.testWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/moods", s.moodsHandler)
	mux.HandleFunc("/unknown-inputs", s.unknownInputsHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	return mux
}

// Run wires every module together and serves HTTP until the process
// receives SIGINT or SIGTERM. It blocks for the lifetime of the service.
func Run(tgOpts []telegram.Option, storeOpts []store.Option, sessionOpts []session.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("Server failed to close store", "error", closeErr)
		}
	}()

	sessions, sessionBackend, err := buildSessions(sessionOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Warn("Server failed to close session store", "error", closeErr)
		}
	}()

	genaiClient, err := genai.NewClient(ctx, genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize generative client: %w", err)
	}

	cat := catalog.Empty()
	if cfg.CatalogFile != "" {
		loaded, loadErr := catalog.Load(cfg.CatalogFile)
		if loadErr != nil {
			slog.Warn("Server starting with an empty catalog", "error", loadErr)
		} else {
			cat = loaded
		}
	}
	persona := flow.LoadPersona(cfg.PersonaFile)

	tgClient, err := telegram.NewClient(tgOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}

	resolver := flow.NewResolver(cat, genaiClient, st, persona)
	dispatcher := dispatch.NewDispatcher(tgClient, resolver, sessions, st)
	dispatcher.Start(ctx)

	webhookURL := ""
	if cfg.WebhookHost != "" {
		webhookURL = "https://" + cfg.WebhookHost + "/webhook"
		if err := tgClient.RegisterWebhook(ctx, webhookURL); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		if info, infoErr := tgClient.WebhookInfo(); infoErr != nil {
			slog.Warn("Server could not confirm webhook registration", "error", infoErr)
		} else {
			slog.Info("Webhook confirmed by Telegram", "url", info.URL, "pending_updates", info.PendingUpdateCount)
		}
	} else {
		slog.Warn("Server has no webhook host configured; Telegram cannot deliver updates")
	}

	if cfg.QROutput != "" {
		if err := writeBotQR(tgClient, cfg.QROutput); err != nil {
			slog.Warn("Server failed to write bot link QR code", "error", err)
		} else {
			slog.Info("Bot deep link QR code written", "dest", cfg.QROutput, "link", tgClient.BotLink())
		}
	}

	server := &Server{
		dispatcher:     dispatcher,
		st:             st,
		secret:         tgClient.WebhookSecret(),
		webhookURL:     webhookURL,
		sessionBackend: sessionBackend,
		startedAt:      time.Now().UTC(),
	}

	httpServer := &http.Server{Addr: addr, Handler: server.routes()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", addr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case serveErr := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", serveErr)
	case sig := <-sigCh:
		slog.Info("Server shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Server HTTP shutdown incomplete", "error", err)
	}

	// Stop the dispatch loop and let an in-flight turn finish.
	cancel()
	select {
	case <-dispatcher.Done():
	case <-time.After(dispatcherGrace):
		slog.Warn("Server timed out waiting for the in-flight turn")
	}

	slog.Info("Server stopped")
	return nil
}

// buildStore constructs the storage backend from options, detecting the
// backend type from the DSN. No DSN selects the in-memory store.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("Server using in-memory store; logs will not survive restarts")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}

// buildSessions constructs the session backend from options and reports
// its name for the health endpoint.
func buildSessions(opts []session.Option) (session.Store, string, error) {
	var cfg session.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RedisURL != "" {
		s, err := session.NewRedisStore(opts...)
		if err != nil {
			return nil, "", err
		}
		return s, "redis", nil
	}
	return session.NewInMemoryStore(opts...), "memory", nil
}

// writeBotQR renders the bot's t.me deep link as a terminal QR code, to
// stdout for "-" or to the named file.
func writeBotQR(client *telegram.Client, dest string) error {
	if dest == "-" {
		client.WriteLinkQR(os.Stdout)
		return nil
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create QR output file: %w", err)
	}
	defer f.Close()
	client.WriteLinkQR(f)
	return nil
}
