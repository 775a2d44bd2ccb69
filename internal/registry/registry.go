// Package registry maintains the process-wide table of call legs per
// conversation, built from call-status webhook events.
//
// The table is the shared source of truth for two decisions: which leg a
// speak action should target, and which legs to tear down when a
// conversation completes. Webhook delivery is neither ordered nor
// deduplicated upstream, so the registry appends events verbatim and
// tolerates duplicates; teardown is all-or-nothing for a conversation's leg
// list.
//
// All exported methods are safe for concurrent use.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/beepwatch/pkg/provider/callctl"
)

// LegEvent is one call-status webhook notification. Immutable once created.
type LegEvent struct {
	// LegID is the telephony provider's identifier for the call leg.
	LegID string

	// ConversationID groups all legs of one logical call session.
	ConversationID string

	// From is the originating address of the leg.
	From string

	// To is the destination address of the leg.
	To string

	// Status is the leg status reported by the webhook ("answered",
	// "completed", …).
	Status string

	// ReceivedAt records when the webhook arrived.
	ReceivedAt time.Time
}

// Registry maps conversation identifiers to their recorded answered legs,
// in arrival order.
type Registry struct {
	ctl callctl.Controller

	mu   sync.Mutex
	legs map[string][]LegEvent
}

// New creates a Registry that issues hangup actions through ctl.
func New(ctl callctl.Controller) *Registry {
	return &Registry{
		ctl:  ctl,
		legs: make(map[string][]LegEvent),
	}
}

// RecordAnswered appends the event to its conversation's leg list, creating
// the list if absent. Repeated events append repeatedly; the webhook source
// is the source of truth for ordering, so no deduplication is performed.
func (r *Registry) RecordAnswered(ev LegEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legs[ev.ConversationID] = append(r.legs[ev.ConversationID], ev)
}

// SelectSpeakTarget returns the leg ID of the first recorded leg that
// originates from localAddress and whose destination is not a socket-media
// endpoint — the externally-facing leg rather than the audio-streaming leg.
// Returns ok=false when no such leg exists, which is a normal outcome: the
// leg may not yet be established or may already be torn down.
func (r *Registry) SelectSpeakTarget(conversationID, localAddress string) (legID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range r.legs[conversationID] {
		if ev.From == localAddress && !isSocketEndpoint(ev.To) {
			return ev.LegID, true
		}
	}
	return "", false
}

// HangupAll issues a hangup for every recorded leg of the conversation.
// Individual failures are logged and do not abort the remaining legs; after
// all legs have been attempted the conversation's list is cleared
// unconditionally. An unknown conversation is a benign no-op.
func (r *Registry) HangupAll(ctx context.Context, conversationID string) {
	r.mu.Lock()
	events := r.legs[conversationID]
	delete(r.legs, conversationID)
	r.mu.Unlock()

	for _, ev := range events {
		if err := r.ctl.Hangup(ctx, ev.LegID); err != nil {
			slog.Warn("hangup failed",
				"conversation_id", conversationID,
				"leg_id", ev.LegID,
				"err", err,
			)
		}
	}
}

// Legs returns a snapshot of the conversation's recorded legs in arrival
// order. Intended for tests and debugging.
func (r *Registry) Legs(conversationID string) []LegEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LegEvent, len(r.legs[conversationID]))
	copy(out, r.legs[conversationID])
	return out
}

// Conversations returns the number of conversations with recorded legs.
func (r *Registry) Conversations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.legs)
}

// isSocketEndpoint reports whether addr is a websocket media endpoint
// ("ws://…" or "wss://…") rather than a dialable number.
func isSocketEndpoint(addr string) bool {
	return strings.HasPrefix(addr, "ws")
}
