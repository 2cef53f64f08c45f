// Package genai provides generative text completion for CalmBot replies.
//
// Two providers are supported: the Gemini API (default) and the OpenAI
// chat completions API. Both are exposed behind the Client interface so
// the conversation flow can swap in a mock for tests.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	gemini "google.golang.org/genai"
)

// Provider identifies a generative backend.
type Provider string

const (
	// ProviderGemini selects the Gemini API backend.
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI selects the OpenAI chat completions backend.
	ProviderOpenAI Provider = "openai"
)

// Default models per provider.
const (
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOpenAIModel = openai.ChatModelGPT4oMini
)

// Client defines the interface for generating a reply from a composed prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Opts holds configuration options for the generative client.
type Opts struct {
	Provider Provider // backend to use; empty falls back to GENAI_PROVIDER, then Gemini
	APIKey   string   // API key; empty falls back to the provider's environment variable
	Model    string   // model name; empty selects the provider default
}

// Option defines a configuration option for the generative client.
type Option func(*Opts)

// WithProvider selects the generative backend.
func WithProvider(p Provider) Option {
	return func(o *Opts) {
		o.Provider = p
	}
}

// WithAPIKey sets the API key for the selected backend.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the model name for the selected backend.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// NewClient creates a generative client for the configured provider.
func NewClient(ctx context.Context, opts ...Option) (Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = Provider(strings.ToLower(os.Getenv("GENAI_PROVIDER")))
	}
	if provider == "" {
		provider = ProviderGemini
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown generative provider: %s", provider)
	}
}

// GeminiClient generates replies via the Gemini API.
type GeminiClient struct {
	client *gemini.Client
	model  string
}

// NewGeminiClient initializes a Gemini-backed client. The API key falls
// back to the GOOGLE_API_KEY environment variable.
func NewGeminiClient(ctx context.Context, cfg Opts) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	client, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  apiKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		slog.Error("GenAI failed to create Gemini client", "error", err)
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	slog.Debug("GenAI Gemini client created", "model", model)
	return &GeminiClient{client: client, model: model}, nil
}

// Generate produces a completion for the prompt.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, gemini.Text(prompt), nil)
	if err != nil {
		slog.Error("GenAI Gemini generation failed", "error", err, "model", c.model)
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty completion returned")
	}
	slog.Debug("GenAI Gemini generation succeeded", "model", c.model, "response_length", len(text))
	return text, nil
}

// OpenAIClient generates replies via the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient initializes an OpenAI-backed client. The API key falls
// back to the OPENAI_API_KEY environment variable.
func NewOpenAIClient(cfg Opts) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	slog.Debug("GenAI OpenAI client created", "model", model)
	return &OpenAIClient{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

// Generate produces a completion for the prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: c.model,
	})
	if err != nil {
		slog.Error("GenAI OpenAI generation failed", "error", err, "model", c.model)
		return "", fmt.Errorf("openai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion returned")
	}
	slog.Debug("GenAI OpenAI generation succeeded", "model", c.model, "response_length", len(text))
	return text, nil
}

// MockClient implements Client for tests. It records prompts and returns
// a scripted response or error.
type MockClient struct {
	mu       sync.Mutex
	Response string
	Err      error
	Prompts  []string
}

// NewMockClient creates a mock client that returns the given response.
func NewMockClient(response string) *MockClient {
	return &MockClient{Response: response}
}

// Generate records the prompt and returns the scripted result.
func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// LastPrompt returns the most recently recorded prompt, or empty if none.
func (m *MockClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}

// Ensure implementations satisfy the Client interface.
var (
	_ Client = (*GeminiClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MockClient)(nil)
)
