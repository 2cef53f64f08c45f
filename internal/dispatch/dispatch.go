// Package dispatch routes incoming Telegram updates to command, callback
// and text-turn handlers. A single background goroutine consumes a bounded
// queue so the webhook handler can acknowledge Telegram immediately, and
// the text-turn path owns the send retry policy.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calmhq/calmbot/internal/flow"
	"github.com/calmhq/calmbot/internal/models"
	"github.com/calmhq/calmbot/internal/session"
	"github.com/calmhq/calmbot/internal/store"
	"github.com/calmhq/calmbot/internal/telegram"
)

// Fixed failure copy sent when a turn cannot complete.
const (
	// ConnectionTroubleMessage is sent after transport timeouts exhaust
	// the retries for a text turn.
	ConnectionTroubleMessage = "Sorry, I’m having trouble connecting. Please try again later."

	// GenericErrorMessage is sent when a turn fails for any other reason.
	GenericErrorMessage = "An error occurred. Please try again."
)

// Callback data values for the buttons sent after a mood reply. Mood
// buttons carry the mood label itself as their data.
const (
	callbackChatAfterMood  = "chat_after_mood"
	callbackChangeResponse = "change_response"
)

const (
	// maxSendAttempts bounds how many times a text turn runs when it keeps
	// failing with transport timeouts.
	maxSendAttempts = 3

	// defaultQueueSize is the update queue capacity.
	defaultQueueSize = 128
)

// Opts holds optional dispatcher configuration.
type Opts struct {
	// QueueSize overrides the update queue capacity when positive.
	QueueSize int
}

// Option configures dispatcher options.
type Option func(*Opts)

// WithQueueSize sets the update queue capacity.
func WithQueueSize(n int) Option {
	return func(o *Opts) {
		o.QueueSize = n
	}
}

// Dispatcher consumes updates from a bounded queue and runs one
// conversation turn per update. Turns for a user are serialized by the
// single consumer loop, which keeps session read-modify-write cycles safe.
type Dispatcher struct {
	sender   telegram.Sender
	resolver *flow.Resolver
	sessions session.Store
	store    store.Store
	queue    chan telegram.Update
	done     chan struct{}

	// sleep is replaced by tests that assert on retry delays.
	sleep func(time.Duration)
}

// NewDispatcher creates a dispatcher wired to the given collaborators.
func NewDispatcher(sender telegram.Sender, resolver *flow.Resolver, sessions session.Store, st store.Store, opts ...Option) *Dispatcher {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	slog.Debug("Dispatcher created", "queueSize", size)
	return &Dispatcher{
		sender:   sender,
		resolver: resolver,
		sessions: sessions,
		store:    st,
		queue:    make(chan telegram.Update, size),
		done:     make(chan struct{}),
		sleep:    time.Sleep,
	}
}

// Enqueue hands an update to the dispatch loop without blocking the
// caller. When the queue is full the update is dropped, so the webhook
// can still acknowledge promptly; Telegram does not redeliver
// acknowledged updates.
func (d *Dispatcher) Enqueue(update telegram.Update) bool {
	select {
	case d.queue <- update:
		return true
	default:
		slog.Warn("Dispatcher queue full, dropping update", "updateID", update.UpdateID, "userID", update.UserID)
		return false
	}
}

// Start begins consuming queued updates. It should be called once; the
// loop exits when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher starting update processing")

	go func() {
		defer close(d.done)
		defer slog.Info("Dispatcher stopped update processing")

		for {
			select {
			case update := <-d.queue:
				d.Dispatch(ctx, update)
			case <-ctx.Done():
				slog.Debug("Dispatcher stopping due to context cancellation")
				return
			}
		}
	}()
}

// Done returns a channel that closes when the dispatch loop exits, after
// any in-flight turn has completed. It only closes once Start has been
// called and its context cancelled.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Dispatch runs one conversation turn for a single update.
func (d *Dispatcher) Dispatch(ctx context.Context, update telegram.Update) {
	switch {
	case update.IsCommand():
		d.handleCommand(ctx, update)
	case update.IsCallback():
		d.handleCallback(ctx, update)
	default:
		d.handleText(ctx, update)
	}
}

// handleCommand routes /start, /chat and the unknown-command hint.
// Command turns are not retried.
func (d *Dispatcher) handleCommand(ctx context.Context, update telegram.Update) {
	slog.Debug("Dispatcher handling command", "command", update.Command, "userID", update.UserID)

	switch update.Command {
	case "start":
		// /start resets the session before greeting.
		if err := d.sessions.Put(ctx, update.UserID, session.State{}); err != nil {
			slog.Warn("Dispatcher failed to reset session", "error", err, "userID", update.UserID)
		}
		if err := d.sender.SendMessageWithKeyboard(ctx, update.ChatID, flow.GreetingMessage, moodKeyboard()); err != nil {
			slog.Error("Dispatcher failed to send greeting", "error", err, "userID", update.UserID)
			d.notifyError(ctx, update.ChatID)
		}

	case "chat":
		state, _, err := d.sessions.Get(ctx, update.UserID)
		if err != nil {
			slog.Error("Dispatcher failed to load session", "error", err, "userID", update.UserID)
			d.notifyError(ctx, update.ChatID)
			return
		}
		state.ChatMode = true
		state.AwaitingFollowup = false
		if err := d.sessions.Put(ctx, update.UserID, state); err != nil {
			slog.Warn("Dispatcher failed to save session", "error", err, "userID", update.UserID)
		}
		if err := d.sender.SendMessage(ctx, update.ChatID, flow.ChatIntroMessage); err != nil {
			slog.Error("Dispatcher failed to send chat intro", "error", err, "userID", update.UserID)
			d.notifyError(ctx, update.ChatID)
		}

	default:
		slog.Debug("Dispatcher received unknown command", "command", update.Command, "userID", update.UserID)
		if err := d.sender.SendMessage(ctx, update.ChatID, flow.UnknownCommandMessage); err != nil {
			slog.Error("Dispatcher failed to send unknown-command hint", "error", err, "userID", update.UserID)
		}
	}
}

// handleCallback routes button presses. Unrecognized callback data is
// ignored without acknowledging the callback.
func (d *Dispatcher) handleCallback(ctx context.Context, update telegram.Update) {
	data := update.CallbackData
	slog.Debug("Dispatcher handling callback", "data", data, "userID", update.UserID)

	if mood := models.Mood(data); models.IsValidMood(mood) {
		d.handleMoodSelection(ctx, update, mood)
		return
	}

	switch data {
	case callbackChatAfterMood:
		d.handleChatAfterMood(ctx, update)
	case callbackChangeResponse:
		d.handleChangeResponse(ctx, update)
	default:
		slog.Debug("Dispatcher ignoring unknown callback data", "data", data, "userID", update.UserID)
	}
}

// handleMoodSelection logs the mood, sends the fixed supportive reply with
// the post-mood keyboard, and seeds the session history from the
// selection. Session writes happen only after the reply goes out.
func (d *Dispatcher) handleMoodSelection(ctx context.Context, update telegram.Update, mood models.Mood) {
	state, _, err := d.sessions.Get(ctx, update.UserID)
	if err != nil {
		slog.Error("Dispatcher failed to load session", "error", err, "userID", update.UserID)
		d.notifyError(ctx, update.ChatID)
		return
	}

	d.answerCallback(ctx, update)

	entry := models.MoodEntry{
		UserID:    update.UserID,
		Timestamp: time.Now().UTC(),
		Mood:      string(mood),
		Message:   "Button selection",
	}
	if err := d.store.AddMoodEntry(entry); err != nil {
		slog.Error("Dispatcher failed to record mood selection", "error", err, "userID", update.UserID, "mood", mood)
		d.notifyError(ctx, update.ChatID)
		return
	}

	reply := flow.MoodReply(mood)
	if err := d.sender.SendMessageWithKeyboard(ctx, update.ChatID, reply, postMoodKeyboard()); err != nil {
		slog.Error("Dispatcher failed to send mood reply", "error", err, "userID", update.UserID, "mood", mood)
		d.notifyError(ctx, update.ChatID)
		return
	}

	state.PrevResponse = reply
	state.AwaitingFollowup = false
	state.History = flow.MoodSeedHistory(mood, reply)
	if err := d.sessions.Put(ctx, update.UserID, state); err != nil {
		slog.Warn("Dispatcher failed to save session", "error", err, "userID", update.UserID)
	}
}

// handleChatAfterMood switches the session into chat mode and invites the
// user to keep talking. No keyboard accompanies the invitation.
func (d *Dispatcher) handleChatAfterMood(ctx context.Context, update telegram.Update) {
	state, _, err := d.sessions.Get(ctx, update.UserID)
	if err != nil {
		slog.Error("Dispatcher failed to load session", "error", err, "userID", update.UserID)
		d.notifyError(ctx, update.ChatID)
		return
	}

	d.answerCallback(ctx, update)

	state.ChatMode = true
	state.AwaitingFollowup = false
	if err := d.sessions.Put(ctx, update.UserID, state); err != nil {
		slog.Warn("Dispatcher failed to save session", "error", err, "userID", update.UserID)
	}

	if err := d.sender.SendMessage(ctx, update.ChatID, flow.ChatAfterMoodMessage); err != nil {
		slog.Error("Dispatcher failed to send chat invitation", "error", err, "userID", update.UserID)
		d.notifyError(ctx, update.ChatID)
	}
}

// handleChangeResponse clears the follow-up flag and re-offers the mood
// keyboard. History and the previous reply are left untouched.
func (d *Dispatcher) handleChangeResponse(ctx context.Context, update telegram.Update) {
	state, _, err := d.sessions.Get(ctx, update.UserID)
	if err != nil {
		slog.Error("Dispatcher failed to load session", "error", err, "userID", update.UserID)
		d.notifyError(ctx, update.ChatID)
		return
	}

	d.answerCallback(ctx, update)

	state.AwaitingFollowup = false
	if err := d.sessions.Put(ctx, update.UserID, state); err != nil {
		slog.Warn("Dispatcher failed to save session", "error", err, "userID", update.UserID)
	}

	if err := d.sender.SendMessageWithKeyboard(ctx, update.ChatID, flow.ChangeResponseMessage, moodKeyboard()); err != nil {
		slog.Error("Dispatcher failed to send mood prompt", "error", err, "userID", update.UserID)
		d.notifyError(ctx, update.ChatID)
	}
}

// handleText runs one resolver turn for a plain text message. The whole
// turn is retried when it fails with a transport timeout: up to
// maxSendAttempts runs, sleeping 2^attempt seconds after each failed one.
// A rate-limit signal sleeps for the server-specified delay and retries
// without counting as an attempt. Any other failure aborts the turn.
func (d *Dispatcher) handleText(ctx context.Context, update telegram.Update) {
	attempt := 0
	for {
		err := d.textTurn(ctx, update)
		if err == nil {
			return
		}

		if delay, ok := telegram.RetryDelay(err); ok {
			slog.Warn("Dispatcher rate limited, honoring server delay", "delay", delay, "userID", update.UserID)
			d.sleep(delay)
			continue
		}

		if telegram.IsTimeout(err) {
			slog.Warn("Dispatcher text turn timed out", "error", err, "attempt", attempt+1, "userID", update.UserID)
			d.sleep(time.Duration(1<<attempt) * time.Second)
			attempt++
			if attempt >= maxSendAttempts {
				slog.Error("Dispatcher giving up after repeated timeouts", "attempts", attempt, "userID", update.UserID)
				if sendErr := d.sender.SendMessage(ctx, update.ChatID, ConnectionTroubleMessage); sendErr != nil {
					slog.Error("Dispatcher failed to send connectivity notice", "error", sendErr, "userID", update.UserID)
				}
				return
			}
			continue
		}

		slog.Error("Dispatcher text turn failed", "error", err, "userID", update.UserID)
		d.notifyError(ctx, update.ChatID)
		return
	}
}

// textTurn resolves one text message and sends the reply. Session
// mutations made before a failure are still flushed by the deferred save,
// so a retried turn observes them.
func (d *Dispatcher) textTurn(ctx context.Context, update telegram.Update) error {
	state, _, err := d.sessions.Get(ctx, update.UserID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	defer func() {
		if putErr := d.sessions.Put(ctx, update.UserID, state); putErr != nil {
			slog.Warn("Dispatcher failed to save session", "error", putErr, "userID", update.UserID)
		}
	}()

	reply := d.resolver.Resolve(ctx, update.UserID, update.Text, &state)

	entry := models.MoodEntry{
		UserID:    update.UserID,
		Timestamp: time.Now().UTC(),
		Mood:      strings.ToLower(update.Text),
		Message:   update.Text,
	}
	if err := d.store.AddMoodEntry(entry); err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	if state.ChatMode {
		state.History = flow.AppendHistory(state.History, update.Text, reply)
	} else {
		state.History = flow.FreshHistory(update.Text, reply)
	}
	state.PrevResponse = reply

	if err := d.sender.SendMessage(ctx, update.ChatID, reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// answerCallback acknowledges a callback so the client stops its spinner.
// Failure is cosmetic and never aborts the turn.
func (d *Dispatcher) answerCallback(ctx context.Context, update telegram.Update) {
	if err := d.sender.AnswerCallback(ctx, update.CallbackID); err != nil {
		slog.Warn("Dispatcher failed to answer callback", "error", err, "userID", update.UserID)
	}
}

// notifyError tells the user the turn failed. Failures here are logged
// and dropped; there is nothing further to fall back to.
func (d *Dispatcher) notifyError(ctx context.Context, chatID int64) {
	if err := d.sender.SendMessage(ctx, chatID, GenericErrorMessage); err != nil {
		slog.Error("Dispatcher failed to send error notice", "error", err, "chatID", chatID)
	}
}

// moodKeyboard returns the two-row emotion picker sent with /start and
// the change-response prompt.
func moodKeyboard() [][]telegram.Button {
	return [][]telegram.Button{
		{
			{Text: "😊 Happy", Data: string(models.MoodHappiness)},
			{Text: "😢 Sad", Data: string(models.MoodSadness)},
		},
		{
			{Text: "😡 Angry", Data: string(models.MoodAnger)},
			{Text: "😟 Anxious", Data: string(models.MoodAnxiety)},
		},
	}
}

// postMoodKeyboard returns the follow-up choices sent after a mood reply.
func postMoodKeyboard() [][]telegram.Button {
	return [][]telegram.Button{
		{
			{Text: "Chat with CalmBot", Data: callbackChatAfterMood},
			{Text: "Change Response", Data: callbackChangeResponse},
		},
	}
}
