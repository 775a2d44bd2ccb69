// Package classifier defines the Engine interface for acoustic clip
// classification backends.
//
// A classifier receives a finished utterance clip — a bounded span of speech
// frames cut by the stream segmenter — and assigns it one of a small closed
// set of labels. The session coordinator acts only on positive labels
// (answering-machine beep detected); everything else is discarded.
//
// Classification may be slow (model inference, network round-trip), so
// callers must dispatch it off the stream-processing path. Implementations
// must be safe for concurrent use.
package classifier

import "context"

// Label is the classification result for a clip.
type Label int

const (
	// LabelBeep indicates the target acoustic signature (answering-machine
	// beep) was detected.
	LabelBeep Label = iota

	// LabelSpeech indicates ordinary human speech.
	LabelSpeech

	// LabelOther indicates noise or an unrecognised signal.
	LabelOther
)

// Positive reports whether the label should trigger speech injection.
func (l Label) Positive() bool {
	return l == LabelBeep
}

// String returns a short human-readable label name.
func (l Label) String() string {
	switch l {
	case LabelBeep:
		return "beep"
	case LabelSpeech:
		return "speech"
	default:
		return "other"
	}
}

// Clip is an immutable utterance aggregate handed to the classifier. The
// payload is a snapshot; implementations may retain it.
type Clip struct {
	// Payload is the concatenated raw PCM of all frames in the clip.
	Payload []byte

	// Frames is the number of fixed-duration frames the clip spans.
	Frames int

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// ConversationID identifies the conversation the clip belongs to.
	ConversationID string
}

// Engine classifies finished utterance clips.
type Engine interface {
	// Classify assigns a label to the clip. Errors are treated by callers
	// as "no detection": logged, never propagated to the stream.
	Classify(ctx context.Context, clip Clip) (Label, error)
}
