package segment

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/beepwatch/pkg/provider/vad"
)

// State is the segmenter's position in the utterance state machine.
type State int

const (
	// StateIdle means no utterance is in progress; silence frames are
	// ignored.
	StateIdle State = iota

	// StateAccumulating means speech has been detected and frames are being
	// buffered; the silence countdown is armed.
	StateAccumulating
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segmenter runs voice-activity detection over the frames of one stream and
// drives a Buffer to produce utterance clips.
//
// Transition table:
//
//	Idle         + speech  → Accumulating (countdown reset, frame buffered)
//	Idle         + silence → Idle
//	Accumulating + speech  → Accumulating (countdown reset, frame buffered)
//	Accumulating + silence → countdown−1; at zero ForceFlush → Idle
//
// A VAD failure on a single frame is counted and the frame treated as
// silence; the stream survives.
//
// Not safe for concurrent use; a Segmenter belongs to exactly one stream.
type Segmenter struct {
	detector vad.SessionHandle
	buffer   *Buffer

	silenceTolerance int
	countdown        int
	state            State
	vadErrors        int
}

// NewSegmenter creates a Segmenter that classifies frames with detector,
// buffers speech into buffer, and force-flushes after silenceTolerance
// consecutive silence frames.
func NewSegmenter(detector vad.SessionHandle, buffer *Buffer, silenceTolerance int) (*Segmenter, error) {
	if detector == nil {
		return nil, fmt.Errorf("segment: detector must not be nil")
	}
	if buffer == nil {
		return nil, fmt.Errorf("segment: buffer must not be nil")
	}
	if silenceTolerance <= 0 {
		return nil, fmt.Errorf("segment: silenceTolerance must be positive, got %d", silenceTolerance)
	}
	return &Segmenter{
		detector:         detector,
		buffer:           buffer,
		silenceTolerance: silenceTolerance,
		state:            StateIdle,
	}, nil
}

// ProcessFrame feeds one frame through the state machine and reports the
// voice-activity decision for the frame.
func (s *Segmenter) ProcessFrame(frame []byte) bool {
	speech, err := s.detector.ProcessFrame(frame)
	if err != nil {
		s.vadErrors++
		if s.vadErrors == 1 {
			slog.Warn("vad failure, treating frame as silence", "err", err)
		}
		speech = false
	}

	if speech {
		s.countdown = s.silenceTolerance
		s.state = StateAccumulating
		s.buffer.Append(frame)
		return true
	}

	if s.state != StateAccumulating {
		return false
	}
	s.countdown--
	if s.countdown <= 0 {
		s.buffer.ForceFlush()
		s.state = StateIdle
	}
	return false
}

// Flush force-flushes any utterance in progress, used when the stream ends
// mid-utterance.
func (s *Segmenter) Flush() {
	if s.state == StateAccumulating {
		s.buffer.ForceFlush()
		s.state = StateIdle
	}
}

// State returns the segmenter's current state.
func (s *Segmenter) State() State {
	return s.state
}

// VADErrors returns how many frames failed voice-activity detection.
func (s *Segmenter) VADErrors() int {
	return s.vadErrors
}
