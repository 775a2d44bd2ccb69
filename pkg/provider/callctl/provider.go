// Package callctl defines the Controller interface for call-control backends.
//
// A controller performs actions against individual call legs of the
// telephony provider: injecting synthesized speech into a live leg, or
// hanging a leg up. Both operations are fire-and-forget from the caller's
// perspective — results are logged, transient failures are not retried
// inline, and no action may crash the coordinating session.
//
// Implementations must be safe for concurrent use.
package callctl

import "context"

// Controller performs call-control actions against the telephony backend.
type Controller interface {
	// Speak injects synthesized speech for text into the live call leg
	// identified by legID.
	Speak(ctx context.Context, legID, text string) error

	// Hangup terminates the call leg identified by legID.
	Hangup(ctx context.Context, legID string) error
}
