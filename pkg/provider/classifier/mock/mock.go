// Package mock provides test doubles for the classifier package interfaces.
//
// Use Engine to script classification results and inspect the clips that
// were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
)

// ClassifyCall records a single invocation of Engine.Classify.
type ClassifyCall struct {
	// Clip is the clip passed to Classify. The payload is copied.
	Clip classifier.Clip
}

// Engine is a mock implementation of classifier.Engine.
type Engine struct {
	mu sync.Mutex

	// LabelResult is returned by every Classify call.
	LabelResult classifier.Label

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// Block, if non-nil, is closed by the test to release Classify calls
	// that should simulate slow inference. When nil, Classify returns
	// immediately.
	Block chan struct{}

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall
}

// Classify records the call and returns LabelResult, ClassifyErr. If Block
// is set, it waits for the channel to close or the context to end first.
func (e *Engine) Classify(ctx context.Context, clip classifier.Clip) (classifier.Label, error) {
	e.mu.Lock()
	block := e.Block
	cp := clip
	cp.Payload = append([]byte(nil), clip.Payload...)
	e.ClassifyCalls = append(e.ClassifyCalls, ClassifyCall{Clip: cp})
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return classifier.LabelOther, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.LabelResult, e.ClassifyErr
}

// Calls returns a snapshot of all recorded Classify calls. Thread-safe.
func (e *Engine) Calls() []ClassifyCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ClassifyCall, len(e.ClassifyCalls))
	copy(out, e.ClassifyCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ClassifyCalls = nil
}

// Ensure Engine implements classifier.Engine at compile time.
var _ classifier.Engine = (*Engine)(nil)
