package genai

import (
	"context"
	"errors"
	"testing"
)

func TestNewClientSelectsGeminiByDefault(t *testing.T) {
	t.Setenv("GENAI_PROVIDER", "")
	client, err := NewClient(context.Background(), WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	gc, ok := client.(*GeminiClient)
	if !ok {
		t.Fatalf("expected *GeminiClient, got %T", client)
	}
	if gc.model != DefaultGeminiModel {
		t.Errorf("model = %q, want %q", gc.model, DefaultGeminiModel)
	}
}

func TestNewClientSelectsProviderFromEnv(t *testing.T) {
	t.Setenv("GENAI_PROVIDER", "openai")
	client, err := NewClient(context.Background(), WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	oc, ok := client.(*OpenAIClient)
	if !ok {
		t.Fatalf("expected *OpenAIClient, got %T", client)
	}
	if oc.model != DefaultOpenAIModel {
		t.Errorf("model = %q, want %q", oc.model, DefaultOpenAIModel)
	}
}

func TestNewClientOptionOverridesEnv(t *testing.T) {
	t.Setenv("GENAI_PROVIDER", "openai")
	client, err := NewClient(context.Background(), WithProvider(ProviderGemini), WithAPIKey("test-key"), WithModel("gemini-2.0-flash"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	gc, ok := client.(*GeminiClient)
	if !ok {
		t.Fatalf("expected *GeminiClient, got %T", client)
	}
	if gc.model != "gemini-2.0-flash" {
		t.Errorf("model = %q, want override", gc.model)
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), WithProvider("carrier-pigeon"), WithAPIKey("test-key"))
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	if _, err := NewGeminiClient(context.Background(), Opts{}); err == nil {
		t.Error("expected error when no API key is available")
	}
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIClient(Opts{}); err == nil {
		t.Error("expected error when no API key is available")
	}
}

func TestNewOpenAIClientUsesEnvKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	client, err := NewOpenAIClient(Opts{})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	if client.model != DefaultOpenAIModel {
		t.Errorf("model = %q, want %q", client.model, DefaultOpenAIModel)
	}
}

func TestMockClientRecordsPrompts(t *testing.T) {
	mock := NewMockClient("scripted reply")
	got, err := mock.Generate(context.Background(), "first prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "scripted reply" {
		t.Errorf("Generate = %q, want scripted reply", got)
	}
	if mock.LastPrompt() != "first prompt" {
		t.Errorf("LastPrompt = %q, want first prompt", mock.LastPrompt())
	}
}

func TestMockClientScriptedError(t *testing.T) {
	wantErr := errors.New("backend down")
	mock := &MockClient{Err: wantErr}
	_, err := mock.Generate(context.Background(), "prompt")
	if !errors.Is(err, wantErr) {
		t.Errorf("Generate error = %v, want %v", err, wantErr)
	}
	if len(mock.Prompts) != 1 {
		t.Errorf("prompt should be recorded even on error, got %d", len(mock.Prompts))
	}
}
