package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calmhq/calmbot/internal/api"
	"github.com/calmhq/calmbot/internal/genai"
	"github.com/calmhq/calmbot/internal/lockfile"
	"github.com/calmhq/calmbot/internal/session"
	"github.com/calmhq/calmbot/internal/store"
	"github.com/calmhq/calmbot/internal/telegram"
	"github.com/calmhq/calmbot/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CalmBot state data
	DefaultStateDir = "/var/lib/calmbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "calmbot.db"
	// DefaultCatalogFile is the default phrase-catalog JSON path
	DefaultCatalogFile = "model_log.json"
)

func main() {
	// Initialize structured logger; flags may raise the level later
	initializeLogger(util.ParseBoolEnv("CALMBOT_DEBUG", false))

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)
	initializeLogger(*flags.debug)

	if *flags.telegramToken == "" {
		slog.Error("No Telegram bot token configured; set TELEGRAM_TOKEN or pass -telegram-token")
		os.Exit(1)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Hold the state directory lock for the lifetime of the process
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}

	// Build module options
	tgOpts := buildTelegramOptions(flags)
	storeOpts := buildStoreOptions(flags)
	sessionOpts := buildSessionOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping CalmBot with configured modules")
	slog.Debug("Module options counts", "telegram", len(tgOpts), "store", len(storeOpts), "session", len(sessionOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "addr", *flags.addr, "webhook_host", *flags.webhookHost)
	runErr := api.Run(tgOpts, storeOpts, sessionOpts, genaiOpts, apiOpts)
	if releaseErr := lock.Release(); releaseErr != nil {
		slog.Warn("Failed to release state directory lock", "error", releaseErr)
	}
	if runErr != nil {
		slog.Error("CalmBot failed to run", "error", runErr)
		os.Exit(1)
	}
	slog.Info("CalmBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken   string
	GoogleAPIKey    string
	OpenAIKey       string
	GenAIProvider   string
	GenAIModel      string
	DatabaseDSN     string
	StateDir        string
	CatalogFile     string
	PersonaFile     string
	WebhookHost     string
	WebhookSecret   string
	Addr            string
	SessionRedisURL string
	SessionTTL      time.Duration
	Debug           bool
}

// Flags holds command line flag values
type Flags struct {
	telegramToken   *string
	googleAPIKey    *string
	openaiKey       *string
	genaiProvider   *string
	genaiModel      *string
	dbDSN           *string
	stateDir        *string
	catalogFile     *string
	personaFile     *string
	webhookHost     *string
	webhookSecret   *string
	addr            *string
	sessionRedisURL *string
	sessionTTL      *time.Duration
	qrOutput        *string
	debug           *bool
}

// initializeLogger sets up structured logging at the requested level
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		TelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		GenAIProvider:   os.Getenv("GENAI_PROVIDER"),
		GenAIModel:      os.Getenv("GENAI_MODEL"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		StateDir:        os.Getenv("CALMBOT_STATE_DIR"),
		CatalogFile:     os.Getenv("CATALOG_FILE"),
		PersonaFile:     os.Getenv("PERSONA_FILE"),
		WebhookHost:     os.Getenv("WEBHOOK_HOST"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		Addr:            os.Getenv("API_ADDR"),
		SessionRedisURL: os.Getenv("SESSION_REDIS_URL"),
		SessionTTL:      util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
		Debug:           util.ParseBoolEnv("CALMBOT_DEBUG", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CALMBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("CALMBOT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// Fall back to DATABASE_URL for platforms that only provide that name
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
		if config.DatabaseDSN != "" {
			slog.Debug("Using DATABASE_URL as DATABASE_DSN", "dsn_set", true)
		}
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	// Render and similar hosts expose the public hostname under their own name
	if config.WebhookHost == "" {
		config.WebhookHost = os.Getenv("RENDER_EXTERNAL_HOSTNAME")
		if config.WebhookHost != "" {
			slog.Debug("Using RENDER_EXTERNAL_HOSTNAME as WEBHOOK_HOST", "webhook_host", config.WebhookHost)
		}
	}

	// Generate a per-boot webhook secret when none is pinned
	if config.WebhookSecret == "" {
		secret, err := util.GenerateWebhookSecret()
		if err != nil {
			slog.Warn("Failed to generate webhook secret; webhook requests will not be authenticated", "error", err)
		} else {
			config.WebhookSecret = secret
			slog.Debug("Generated per-boot webhook secret")
		}
	}

	// Container platforms inject the listen port as PORT
	if config.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.Addr = ":" + port
			slog.Debug("Using PORT as listen address", "addr", config.Addr)
		}
	}

	if config.CatalogFile == "" {
		config.CatalogFile = DefaultCatalogFile
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_TOKEN_SET", config.TelegramToken != "",
		"GOOGLE_API_KEY_SET", config.GoogleAPIKey != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GENAI_PROVIDER", config.GenAIProvider,
		"GENAI_MODEL", config.GenAIModel,
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"CALMBOT_STATE_DIR", config.StateDir,
		"CATALOG_FILE", config.CatalogFile,
		"PERSONA_FILE", config.PersonaFile,
		"WEBHOOK_HOST", config.WebhookHost,
		"WEBHOOK_SECRET_SET", config.WebhookSecret != "",
		"API_ADDR", config.Addr,
		"SESSION_REDIS_URL_SET", config.SessionRedisURL != "",
		"SESSION_TTL", config.SessionTTL.String())

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		telegramToken:   flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_TOKEN)"),
		googleAPIKey:    flag.String("google-api-key", config.GoogleAPIKey, "Gemini API key (overrides $GOOGLE_API_KEY)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		genaiProvider:   flag.String("genai-provider", config.GenAIProvider, "generative backend, gemini or openai (overrides $GENAI_PROVIDER)"),
		genaiModel:      flag.String("genai-model", config.GenAIModel, "generative model name (overrides $GENAI_MODEL)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseDSN, "database DSN for the interaction store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for CalmBot data (overrides $CALMBOT_STATE_DIR)"),
		catalogFile:     flag.String("catalog", config.CatalogFile, "phrase catalog JSON file (overrides $CATALOG_FILE)"),
		personaFile:     flag.String("persona-file", config.PersonaFile, "persona text file, built-in persona if empty (overrides $PERSONA_FILE)"),
		webhookHost:     flag.String("webhook-host", config.WebhookHost, "public hostname for webhook registration (overrides $WEBHOOK_HOST or $RENDER_EXTERNAL_HOSTNAME)"),
		webhookSecret:   flag.String("webhook-secret", config.WebhookSecret, "webhook secret token (overrides $WEBHOOK_SECRET)"),
		addr:            flag.String("addr", config.Addr, "API server address (overrides $API_ADDR or $PORT)"),
		sessionRedisURL: flag.String("session-redis-url", config.SessionRedisURL, "Redis URL for session storage (overrides $SESSION_REDIS_URL)"),
		sessionTTL:      flag.Duration("session-ttl", config.SessionTTL, "session idle expiry (overrides $SESSION_TTL)"),
		qrOutput:        flag.String("qr-output", "", "write the bot deep-link QR code here, - for stdout"),
		debug:           flag.Bool("debug", config.Debug, "enable debug logging (overrides $CALMBOT_DEBUG)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"telegramTokenSet", *flags.telegramToken != "",
		"googleAPIKeySet", *flags.googleAPIKey != "",
		"openaiKeySet", *flags.openaiKey != "",
		"genaiProvider", *flags.genaiProvider,
		"genaiModel", *flags.genaiModel,
		"dbDSN_set", *flags.dbDSN != "",
		"stateDir", *flags.stateDir,
		"catalog", *flags.catalogFile,
		"personaFile", *flags.personaFile,
		"webhookHost", *flags.webhookHost,
		"webhookSecretSet", *flags.webhookSecret != "",
		"addr", *flags.addr,
		"sessionRedisURLSet", *flags.sessionRedisURL != "",
		"sessionTTL", flags.sessionTTL.String(),
		"qrOutput", *flags.qrOutput,
		"debug", *flags.debug)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildTelegramOptions constructs Telegram client configuration options
func buildTelegramOptions(flags Flags) []telegram.Option {
	var tgOpts []telegram.Option
	if *flags.telegramToken != "" {
		tgOpts = append(tgOpts, telegram.WithToken(*flags.telegramToken))
	}
	if *flags.webhookSecret != "" {
		tgOpts = append(tgOpts, telegram.WithWebhookSecret(*flags.webhookSecret))
	}
	return tgOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			// Assume SQLite for file paths
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildSessionOptions constructs session store configuration options
func buildSessionOptions(flags Flags) []session.Option {
	var sessionOpts []session.Option
	if *flags.sessionRedisURL != "" {
		sessionOpts = append(sessionOpts, session.WithRedisURL(*flags.sessionRedisURL))
	}
	if *flags.sessionTTL > 0 {
		sessionOpts = append(sessionOpts, session.WithTTL(*flags.sessionTTL))
	}
	return sessionOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	provider := genai.Provider(strings.ToLower(*flags.genaiProvider))
	if provider != "" {
		genaiOpts = append(genaiOpts, genai.WithProvider(provider))
	}
	// Pass the key matching the selected backend; each backend also falls
	// back to its own environment variable.
	if provider == genai.ProviderOpenAI {
		if *flags.openaiKey != "" {
			genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
		}
	} else if *flags.googleAPIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.googleAPIKey))
	}
	if *flags.genaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.genaiModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.addr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.addr))
	}
	if *flags.webhookHost != "" {
		apiOpts = append(apiOpts, api.WithWebhookHost(*flags.webhookHost))
	}
	if *flags.catalogFile != "" {
		apiOpts = append(apiOpts, api.WithCatalogFile(*flags.catalogFile))
	}
	if *flags.personaFile != "" {
		apiOpts = append(apiOpts, api.WithPersonaFile(*flags.personaFile))
	}
	if *flags.qrOutput != "" {
		apiOpts = append(apiOpts, api.WithQROutput(*flags.qrOutput))
	}
	return apiOpts
}
