// Package mock provides a test double for the callctl package interfaces.
//
// Use Controller to inspect the speak and hangup actions issued by the
// registry and session coordinator, and to inject per-leg failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/beepwatch/pkg/provider/callctl"
)

// SpeakCall records a single invocation of Controller.Speak.
type SpeakCall struct {
	LegID string
	Text  string
}

// Controller is a mock implementation of callctl.Controller.
type Controller struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// HangupErr, if non-nil, is returned by every Hangup call.
	HangupErr error

	// HangupErrs maps individual leg IDs to injected Hangup failures,
	// taking precedence over HangupErr.
	HangupErrs map[string]error

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// HangupCalls records the leg ID of every Hangup call in order.
	HangupCalls []string
}

// Speak records the call and returns SpeakErr.
func (c *Controller) Speak(_ context.Context, legID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SpeakCalls = append(c.SpeakCalls, SpeakCall{LegID: legID, Text: text})
	return c.SpeakErr
}

// Hangup records the call and returns the injected error for the leg, if any.
func (c *Controller) Hangup(_ context.Context, legID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.HangupCalls = append(c.HangupCalls, legID)
	if err, ok := c.HangupErrs[legID]; ok {
		return err
	}
	return c.HangupErr
}

// Speaks returns a snapshot of all recorded Speak calls. Thread-safe.
func (c *Controller) Speaks() []SpeakCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SpeakCall, len(c.SpeakCalls))
	copy(out, c.SpeakCalls)
	return out
}

// Hangups returns a snapshot of all recorded Hangup leg IDs. Thread-safe.
func (c *Controller) Hangups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.HangupCalls))
	copy(out, c.HangupCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SpeakCalls = nil
	c.HangupCalls = nil
}

// Ensure Controller implements callctl.Controller at compile time.
var _ callctl.Controller = (*Controller)(nil)
