package flow

import (
	"fmt"

	"github.com/calmhq/calmbot/internal/models"
)

// TruncateHistory bounds a rolling history to its most recent
// models.MaxHistoryLength characters. Truncation keeps the tail, so the
// newest exchanges survive.
func TruncateHistory(history string) string {
	runes := []rune(history)
	if len(runes) <= models.MaxHistoryLength {
		return history
	}
	return string(runes[len(runes)-models.MaxHistoryLength:])
}

// AppendHistory adds one exchange to the rolling history, applying the
// character bound. Used on chat-mode turns.
func AppendHistory(history, userMessage, botReply string) string {
	return TruncateHistory(history + fmt.Sprintf("User: %s | Bot: %s ", userMessage, botReply))
}

// FreshHistory replaces the rolling history with a single exchange. Used
// on turns outside chat mode.
func FreshHistory(userMessage, botReply string) string {
	return TruncateHistory(fmt.Sprintf("User: %s | Bot: %s ", userMessage, botReply))
}

// MoodSeedHistory starts the rolling history from a mood button selection.
func MoodSeedHistory(mood models.Mood, botReply string) string {
	return TruncateHistory(fmt.Sprintf("User selected mood: %s | Bot: %s ", mood, botReply))
}
