// Package energy provides a pure-Go VAD engine based on RMS energy with
// hysteresis and an adaptive noise floor.
//
// The detector classifies a frame as speech when its RMS level exceeds both
// an absolute threshold (selected by the sensitivity tier) and a multiple of
// the running noise-floor estimate. Hysteresis between separate start and
// end thresholds prevents flickering on marginal frames.
package energy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/beepwatch/pkg/audio"
	"github.com/MrWong99/beepwatch/pkg/provider/vad"
)

// supportedRates lists the sample rates the detector accepts.
var supportedRates = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}

// supportedFrameSizes lists the frame durations (ms) the detector accepts.
var supportedFrameSizes = map[int]bool{10: true, 20: true, 30: true}

// tierThresholds maps each sensitivity tier to its speech-start and
// speech-end RMS thresholds (normalised to full-scale int16). The end
// threshold sits below the start threshold so that a segment in progress
// tolerates a quieter tail before being cut.
var tierThresholds = [...]struct{ start, end float64 }{
	vad.SensitivityLow:      {start: 0.006, end: 0.003},
	vad.SensitivityModerate: {start: 0.010, end: 0.005},
	vad.SensitivityHigh:     {start: 0.015, end: 0.008},
	vad.SensitivityVeryHigh: {start: 0.022, end: 0.012},
}

const (
	// noiseFloorDecay controls how quickly the noise-floor estimate adapts
	// upward toward the observed level. Downward adaptation is immediate.
	noiseFloorDecay = 0.05

	// noiseFloorFactor is the multiple of the noise floor a frame must
	// exceed, in addition to the absolute tier threshold, to count as speech.
	noiseFloorFactor = 2.0

	// initialNoiseFloor seeds the estimate before any frames are observed.
	initialNoiseFloor = 0.002
)

// Engine implements vad.Engine using RMS energy detection. The zero value is
// ready to use.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession validates cfg and returns a fresh detection session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if !supportedRates[cfg.SampleRate] {
		return nil, fmt.Errorf("energy vad: unsupported sample rate %d", cfg.SampleRate)
	}
	if !supportedFrameSizes[cfg.FrameSizeMs] {
		return nil, fmt.Errorf("energy vad: unsupported frame size %dms", cfg.FrameSizeMs)
	}
	if !cfg.Sensitivity.IsValid() {
		return nil, fmt.Errorf("energy vad: invalid sensitivity tier %d", cfg.Sensitivity)
	}

	th := tierThresholds[cfg.Sensitivity]
	return &session{
		frameBytes:     audio.FrameBytes(cfg.SampleRate, cfg.FrameSizeMs),
		startThreshold: th.start,
		endThreshold:   th.end,
		noiseFloor:     initialNoiseFloor,
	}, nil
}

// session holds the per-stream detection state. Methods are safe for
// concurrent use, though a session is normally driven by a single stream
// goroutine.
type session struct {
	mu             sync.Mutex
	frameBytes     int
	startThreshold float64
	endThreshold   float64

	noiseFloor float64
	inSpeech   bool
	closed     bool
}

var _ vad.SessionHandle = (*session)(nil)

var errClosed = errors.New("energy vad: session is closed")

// ProcessFrame classifies a single PCM frame as speech or silence.
func (s *session) ProcessFrame(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("energy vad: frame size %d, want %d", len(frame), s.frameBytes)
	}

	samples, err := audio.DecodeInt16(frame)
	if err != nil {
		return false, fmt.Errorf("energy vad: %w", err)
	}
	level := audio.RMS(samples)

	// Track the noise floor from non-speech levels: drop immediately when
	// the level falls below the estimate, adapt slowly upward otherwise.
	if level < s.noiseFloor {
		s.noiseFloor = level
	} else if !s.inSpeech {
		s.noiseFloor += (level - s.noiseFloor) * noiseFloorDecay
	}

	gate := s.noiseFloor * noiseFloorFactor
	if s.inSpeech {
		if level < s.endThreshold && level <= gate {
			s.inSpeech = false
		}
	} else {
		if level >= s.startThreshold && level >= gate {
			s.inSpeech = true
		}
	}
	return s.inSpeech, nil
}

// Reset clears the noise-floor estimate and hysteresis state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.noiseFloor = initialNoiseFloor
	s.inSpeech = false
}

// Close marks the session closed. Safe to call multiple times.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
