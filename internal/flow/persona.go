package flow

import (
	"log/slog"
	"os"
	"strings"
)

// DefaultPersona is the built-in system prompt for the generative model.
// A deployment can override it with a persona file; see LoadPersona.
const DefaultPersona = `You are CalmBot, an AI companion designed to help users heal from emotional distress and unresolved trauma, often rooted in childhood wounds. Your goal is to empower users to recognize, monitor, and heal deep-rooted emotional wounds, guiding them toward inner peace amidst external chaos. For every response:
- Acknowledge the user's emotion empathetically (e.g., happiness, sadness, anger, anxiety).
- Recognize potential trauma (e.g., childhood hurts, neglect) without assuming specifics.
- Use motivational, uplifting language to inspire resilience and hope (e.g., 'You're stronger than the scars you carry').
- Suggest actions like journaling, breathing exercises, or reflecting to find calm.
- Keep responses concise (100-150 words), empathetic, and warm, avoiding clinical tones.
- If the input is vague, ask a gentle follow-up question to clarify their needs.`

// LoadPersona returns the persona text for prompt assembly. When path is
// empty or unreadable the built-in persona is used, so a missing file never
// prevents startup.
func LoadPersona(path string) string {
	if path == "" {
		return DefaultPersona
	}
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("flow.LoadPersona: failed to read persona file, using built-in persona", "file", path, "error", err)
		return DefaultPersona
	}
	persona := strings.TrimSpace(string(content))
	if persona == "" {
		slog.Warn("flow.LoadPersona: persona file is empty, using built-in persona", "file", path)
		return DefaultPersona
	}
	slog.Info("flow.LoadPersona: persona loaded", "file", path, "length", len(persona))
	return persona
}
