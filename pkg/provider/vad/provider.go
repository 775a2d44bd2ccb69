// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session maintains its own internal state
// (noise-floor estimate, hysteresis counters) so that multiple concurrent
// audio streams can be processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// speech/silence decision, making it suitable for the real-time segmentation
// loop that cuts utterance boundaries.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Sensitivity selects one of a small fixed set of detector aggressiveness
// tiers. Higher tiers filter more aggressively: fewer false speech
// detections at the cost of clipping quiet speech onsets.
type Sensitivity int

const (
	SensitivityLow Sensitivity = iota
	SensitivityModerate
	SensitivityHigh
	SensitivityVeryHigh
)

// IsValid reports whether s is a recognised sensitivity tier.
func (s Sensitivity) IsValid() bool {
	return s >= SensitivityLow && s <= SensitivityVeryHigh
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most
	// detectors operate on fixed frame sizes (10, 20, or 30 ms).
	// ProcessFrame returns an error if the supplied frame does not match.
	FrameSizeMs int

	// Sensitivity is the detector aggressiveness tier.
	Sensitivity Sensitivity
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine. Each session maintains its own detection state;
// Reset clears this state without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and reports whether it
	// contains speech. The frame must be raw little-endian PCM at the
	// SampleRate and FrameSizeMs configured when the session was created.
	// Returns an error if the frame size is wrong or if the engine
	// encounters an internal failure.
	//
	// This method is designed to be called synchronously in the audio
	// stream loop; it must not block.
	ProcessFrame(frame []byte) (bool, error)

	// Reset clears all accumulated detection state (noise floor, hysteresis
	// counters) without closing the session. Use this when the audio stream
	// is interrupted or restarted to avoid stale state from the previous
	// segment affecting subsequent frames.
	Reset()

	// Close releases all resources associated with the session. After
	// Close, ProcessFrame must return an error and Reset must be a no-op.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, frame size, or sensitivity tier) or if the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
