package telegram

import (
	"context"
	"sync"
)

// SentMessage records one successful send through the MockSender.
type SentMessage struct {
	ChatID   int64
	Text     string
	Keyboard [][]Button
}

// MockSender implements Sender for tests without a real Bot API
// connection. Scripted errors are consumed in order, one per send call;
// once the script is exhausted sends succeed and are recorded.
type MockSender struct {
	mu        sync.Mutex
	Messages  []SentMessage
	Callbacks []string
	Attempts  int

	sendErrs []error
}

// NewMockSender creates an empty mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// ScriptSendErrors queues errors for subsequent send calls to return.
func (m *MockSender) ScriptSendErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErrs = append(m.sendErrs, errs...)
}

// SendMessage records a plain text send.
func (m *MockSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.record(chatID, text, nil)
}

// SendMessageWithKeyboard records a send with an inline keyboard.
func (m *MockSender) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	return m.record(chatID, text, rows)
}

// AnswerCallback records the acknowledged callback ID.
func (m *MockSender) AnswerCallback(ctx context.Context, callbackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Callbacks = append(m.Callbacks, callbackID)
	return nil
}

// LastMessage returns the most recent successful send.
func (m *MockSender) LastMessage() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return SentMessage{}, false
	}
	return m.Messages[len(m.Messages)-1], true
}

func (m *MockSender) record(chatID int64, text string, rows [][]Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts++
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	m.Messages = append(m.Messages, SentMessage{ChatID: chatID, Text: text, Keyboard: rows})
	return nil
}

// Ensure MockSender implements the Sender interface.
var _ Sender = (*MockSender)(nil)
