// Package telegram wraps the Telegram Bot API client for CalmBot.
//
// It provides message and inline-keyboard sending, webhook registration,
// update flattening, and transport error classification for the dispatch
// retry policy.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mdp/qrterminal/v3"
)

// DefaultHTTPTimeout is the transport timeout for Bot API calls. It is
// generous so a turn that waited on a slow generative reply can still
// deliver its message.
const DefaultHTTPTimeout = 300 * time.Second

// Button is one inline keyboard button: visible text plus callback data.
type Button struct {
	Text string
	Data string
}

// Sender is the outbound surface the dispatcher depends on.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, rows [][]Button) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token         string        // bot token; empty falls back to TELEGRAM_TOKEN
	APIEndpoint   string        // Bot API endpoint override, used by tests
	HTTPTimeout   time.Duration // transport timeout; zero selects DefaultHTTPTimeout
	WebhookSecret string        // secret token sent by Telegram with webhook requests
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithAPIEndpoint overrides the Bot API endpoint.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *Opts) {
		o.APIEndpoint = endpoint
	}
}

// WithHTTPTimeout sets the transport timeout for Bot API calls.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(o *Opts) {
		o.HTTPTimeout = timeout
	}
}

// WithWebhookSecret sets the secret token used for webhook registration
// and request verification.
func WithWebhookSecret(secret string) Option {
	return func(o *Opts) {
		o.WebhookSecret = secret
	}
}

// Client wraps the Bot API client.
type Client struct {
	bot    *tgbotapi.BotAPI
	secret string
}

// NewClient creates a Telegram client, authenticating against the Bot API.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("TELEGRAM_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN not set")
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		slog.Error("Telegram NewClient failed to authenticate", "error", err)
		return nil, fmt.Errorf("failed to create Telegram bot client: %w", err)
	}

	slog.Info("Telegram client connected", "username", bot.Self.UserName, "timeout", timeout)
	return &Client{bot: bot, secret: cfg.WebhookSecret}, nil
}

// SendMessage sends a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, chatID, text, nil)
}

// SendMessageWithKeyboard sends a text message with an inline keyboard.
func (c *Client) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	return c.send(ctx, chatID, text, rows)
}

func (c *Client) send(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if chatID == 0 {
		return fmt.Errorf("chat ID cannot be zero")
	}
	if text == "" {
		return fmt.Errorf("message text cannot be empty")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = inlineKeyboard(rows)
	}

	slog.Debug("Telegram sending message", "chatID", chatID, "text_length", len(text), "keyboard", len(rows) > 0)
	if _, err := c.bot.Send(msg); err != nil {
		slog.Error("Telegram failed to send message", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops showing
// its progress indicator.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if callbackID == "" {
		return fmt.Errorf("callback ID cannot be empty")
	}
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		slog.Error("Telegram failed to answer callback", "error", err, "callbackID", callbackID)
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// RegisterWebhook points the bot's webhook at publicURL, including the
// secret token when one is configured.
func (c *Client) RegisterWebhook(ctx context.Context, publicURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if publicURL == "" {
		return fmt.Errorf("webhook URL cannot be empty")
	}

	params := tgbotapi.Params{"url": publicURL}
	if c.secret != "" {
		params["secret_token"] = c.secret
	}
	if _, err := c.bot.MakeRequest("setWebhook", params); err != nil {
		slog.Error("Telegram failed to register webhook", "error", err, "url", publicURL)
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	slog.Info("Telegram webhook registered", "url", publicURL, "secret_set", c.secret != "")
	return nil
}

// WebhookInfo returns Telegram's view of the current webhook registration.
func (c *Client) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	info, err := c.bot.GetWebhookInfo()
	if err != nil {
		return tgbotapi.WebhookInfo{}, fmt.Errorf("failed to get webhook info: %w", err)
	}
	return info, nil
}

// WebhookSecret returns the configured webhook secret token, empty when
// verification is disabled.
func (c *Client) WebhookSecret() string {
	return c.secret
}

// BotLink returns the bot's t.me deep link.
func (c *Client) BotLink() string {
	return "https://t.me/" + c.bot.Self.UserName
}

// WriteLinkQR writes a terminal QR code of the bot's deep link, so an
// operator can open the bot on a phone during setup.
func (c *Client) WriteLinkQR(w io.Writer) {
	qrterminal.GenerateHalfBlock(c.BotLink(), qrterminal.L, w)
}

func inlineKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		kbRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			kbRow = append(kbRow, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		kbRows = append(kbRows, kbRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}

// Ensure Client implements the Sender interface.
var _ Sender = (*Client)(nil)
