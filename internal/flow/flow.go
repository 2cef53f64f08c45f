// Package flow implements CalmBot's conversation resolution: catalog
// lookup, the follow-up state machine, generative fallback with a
// sentiment-based last resort, and the rolling-history bookkeeping.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calmhq/calmbot/internal/catalog"
	"github.com/calmhq/calmbot/internal/genai"
	"github.com/calmhq/calmbot/internal/models"
	"github.com/calmhq/calmbot/internal/sentiment"
	"github.com/calmhq/calmbot/internal/session"
	"github.com/calmhq/calmbot/internal/store"
)

// Resolver maps inbound text messages to replies. It owns the resolution
// order and the unknown-input bookkeeping; session history updates and
// mood logging stay with the dispatcher.
type Resolver struct {
	catalog *catalog.Catalog
	genai   genai.Client
	store   store.Store
	persona string
}

// NewResolver creates a resolver over the given catalog, generative
// client, store and persona text.
func NewResolver(cat *catalog.Catalog, client genai.Client, st store.Store, persona string) *Resolver {
	slog.Debug("Resolver created", "catalog_entries", cat.Len(), "persona_length", len(persona))
	return &Resolver{catalog: cat, genai: client, store: st, persona: persona}
}

// Resolve returns the reply for one inbound message and updates the
// follow-up flag on state. It never fails from the caller's point of
// view: catalog lookup cannot error, a generative failure is absorbed
// into the sentiment fallback, and unknown-input logging is advisory.
//
// Resolution order:
//  1. exact catalog match on the normalized message;
//  2. the literal "yes" when a previous reply exists, treated as a
//     confirmation and answered generatively;
//  3. a pending follow-up, logged as such and answered generatively;
//  4. anything else, logged as a fresh unknown input and still answered
//     generatively (the flag changes how the next turn is logged, not
//     whether this one is answered).
func (r *Resolver) Resolve(ctx context.Context, userID int64, message string, state *session.State) string {
	normalized := catalog.Normalize(message)

	if reply, ok := r.catalog.Lookup(normalized); ok {
		state.AwaitingFollowup = false
		slog.Debug("Resolver.Resolve: catalog match", "userID", userID)
		return reply
	}

	if normalized == "yes" && state.PrevResponse != "" {
		state.AwaitingFollowup = false
		slog.Debug("Resolver.Resolve: confirmation, continuing generatively", "userID", userID)
		return r.generate(ctx, normalized, state)
	}

	if state.AwaitingFollowup {
		r.logUnknownInput(userID, normalized, true)
		state.AwaitingFollowup = false
		slog.Debug("Resolver.Resolve: follow-up answer", "userID", userID)
		return r.generate(ctx, normalized, state)
	}

	r.logUnknownInput(userID, normalized, false)
	state.AwaitingFollowup = true
	slog.Debug("Resolver.Resolve: unmatched input", "userID", userID)
	return r.generate(ctx, normalized, state)
}

// generate calls the generative client and falls back to the sentiment
// reply on any failure.
func (r *Resolver) generate(ctx context.Context, message string, state *session.State) string {
	prompt := BuildPrompt(r.persona, state.History, state.PrevResponse, message)
	reply, err := r.genai.Generate(ctx, prompt)
	if err != nil {
		slog.Error("Resolver.generate: generative call failed, using sentiment fallback", "error", err)
		return sentiment.FallbackReply(message)
	}
	return reply
}

func (r *Resolver) logUnknownInput(userID int64, input string, isFollowup bool) {
	entry := models.UnknownInput{
		UserID:     userID,
		Timestamp:  time.Now().UTC(),
		Input:      input,
		IsFollowup: isFollowup,
	}
	if err := r.store.AddUnknownInput(entry); err != nil {
		slog.Warn("Resolver failed to record unknown input", "error", err, "userID", userID)
	}
}

// BuildPrompt composes the generative prompt from the persona, the rolling
// history, the previous bot reply and the new input. An empty previous
// reply is rendered as the sentinel "None".
func BuildPrompt(persona, history, prevResponse, message string) string {
	prev := prevResponse
	if prev == "" {
		prev = "None"
	}
	return fmt.Sprintf("%s\n\nConversation history: %s\n\nPrevious bot response: %s\n\nUser input: %s\n\nRespond appropriately.", persona, history, prev, message)
}
