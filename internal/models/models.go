// Package models defines the core data structures for CalmBot.
//
// It includes the mood-log and unknown-input record types and the JSON
// response envelope, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Mood identifies one of the selectable mood categories.
type Mood string

const (
	// MoodHappiness is the mood logged by the "Happy" button.
	MoodHappiness Mood = "happiness"
	// MoodSadness is the mood logged by the "Sad" button.
	MoodSadness Mood = "sadness"
	// MoodAnger is the mood logged by the "Angry" button.
	MoodAnger Mood = "anger"
	// MoodAnxiety is the mood logged by the "Anxious" button.
	MoodAnxiety Mood = "anxiety"
)

// Validation constants for record validation
const (
	// MaxHistoryLength defines the maximum number of characters retained in a
	// session's rolling conversation history. Older context is discarded.
	MaxHistoryLength = 300
	// MaxMoodLabelLength defines the maximum allowed length for a mood label.
	// Text turns log the lower-cased message as the label, so this mirrors
	// the platform's message length cap.
	MaxMoodLabelLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrMissingUserID    = errors.New("user id cannot be zero")
	ErrEmptyMood        = errors.New("mood label cannot be empty")
	ErrMoodLabelTooLong = errors.New("mood label exceeds maximum length")
	ErrEmptyInput       = errors.New("input text cannot be empty")
	ErrZeroTimestamp    = errors.New("timestamp is required")
)

// IsValidMood checks if the given mood is one of the button categories.
func IsValidMood(m Mood) bool {
	switch m {
	case MoodHappiness, MoodSadness, MoodAnger, MoodAnxiety:
		return true
	default:
		return false
	}
}

// MoodEntry represents one logged interaction row: a mood-button press or a
// text turn (where the mood label is the lower-cased message text).
type MoodEntry struct {
	ID        int64     `json:"id,omitempty"`
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Mood      string    `json:"mood"`
	Message   string    `json:"message"`
}

// Validate performs validation on a MoodEntry before it is persisted.
func (e *MoodEntry) Validate() error {
	if e.UserID == 0 {
		return ErrMissingUserID
	}
	if e.Mood == "" {
		return ErrEmptyMood
	}
	if len(e.Mood) > MaxMoodLabelLength {
		return ErrMoodLabelTooLong
	}
	if e.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// UnknownInput represents one input that missed the response catalog, tagged
// with whether it arrived while a follow-up was pending.
type UnknownInput struct {
	ID         int64     `json:"id,omitempty"`
	UserID     int64     `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	IsFollowup bool      `json:"is_followup"`
}

// Validate performs validation on an UnknownInput before it is persisted.
func (u *UnknownInput) Validate() error {
	if u.UserID == 0 {
		return ErrMissingUserID
	}
	if u.Input == "" {
		return ErrEmptyInput
	}
	if u.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// StoreStats summarizes the persisted log tables for the operator endpoints.
type StoreStats struct {
	MoodEntries   int64 `json:"mood_entries"`
	UnknownInputs int64 `json:"unknown_inputs"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
