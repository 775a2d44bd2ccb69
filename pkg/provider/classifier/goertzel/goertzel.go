// Package goertzel provides a pure-Go beep classifier based on the Goertzel
// algorithm.
//
// Answering-machine beeps are sustained near-pure tones, typically around
// 1 kHz. The classifier slices the clip into short analysis windows,
// measures the power concentrated at the target frequency with a single-bin
// DFT, and reports a beep when enough consecutive windows are tone-dominated.
// Human speech spreads its energy across the spectrum and never sustains a
// high single-bin ratio for long.
package goertzel

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/beepwatch/pkg/audio"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
)

const (
	// defaultTargetHz is the tone frequency to detect.
	defaultTargetHz = 1000

	// defaultMinToneRatio is the minimum share of a window's energy that
	// must sit in the target bin for the window to count as tonal.
	defaultMinToneRatio = 0.5

	// defaultMinToneMs is the minimum sustained tone duration for a beep.
	defaultMinToneMs = 200

	// windowMs is the analysis window length.
	windowMs = 20

	// silenceRMS is the level below which a window is ignored entirely.
	silenceRMS = 0.004

	// toneBandwidthHz widens detection around the target: the ratio test
	// sums Goertzel power over bins at target and target ± this offset.
	toneBandwidthHz = 40
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithTargetHz sets the tone frequency to detect. Default is 1000 Hz.
func WithTargetHz(hz float64) Option {
	return func(e *Engine) { e.targetHz = hz }
}

// WithMinToneRatio sets the minimum tonal-energy share per window.
// Default is 0.5.
func WithMinToneRatio(r float64) Option {
	return func(e *Engine) { e.minToneRatio = r }
}

// WithMinToneDuration sets the minimum sustained tone duration in
// milliseconds. Default is 200 ms.
func WithMinToneDuration(ms int) Option {
	return func(e *Engine) { e.minToneMs = ms }
}

// Engine implements classifier.Engine using Goertzel tone detection.
// Safe for concurrent use; all state is per-call.
type Engine struct {
	targetHz     float64
	minToneRatio float64
	minToneMs    int
}

var _ classifier.Engine = (*Engine)(nil)

// New returns a Goertzel beep classifier with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{
		targetHz:     defaultTargetHz,
		minToneRatio: defaultMinToneRatio,
		minToneMs:    defaultMinToneMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Classify analyses the clip and returns LabelBeep when a sustained tone at
// the target frequency is present, LabelSpeech when the clip carries broad-
// band energy, and LabelOther for quiet or unclassifiable content.
func (e *Engine) Classify(ctx context.Context, clip classifier.Clip) (classifier.Label, error) {
	if err := ctx.Err(); err != nil {
		return classifier.LabelOther, fmt.Errorf("goertzel: %w", err)
	}
	if clip.SampleRate <= 0 {
		return classifier.LabelOther, fmt.Errorf("goertzel: invalid sample rate %d", clip.SampleRate)
	}

	samples, err := audio.DecodeInt16(clip.Payload)
	if err != nil {
		return classifier.LabelOther, fmt.Errorf("goertzel: %w", err)
	}

	window := clip.SampleRate * windowMs / 1000
	if window == 0 || len(samples) < window {
		return classifier.LabelOther, nil
	}

	neededWindows := e.minToneMs / windowMs
	tonalRun := 0
	longestRun := 0
	voicedWindows := 0

	for off := 0; off+window <= len(samples); off += window {
		w := samples[off : off+window]
		if audio.RMS(w) < silenceRMS {
			tonalRun = 0
			continue
		}
		voicedWindows++

		total := totalPower(w)
		tonal := goertzelPower(w, clip.SampleRate, e.targetHz) +
			goertzelPower(w, clip.SampleRate, e.targetHz-toneBandwidthHz) +
			goertzelPower(w, clip.SampleRate, e.targetHz+toneBandwidthHz)

		if total > 0 && tonal/total >= e.minToneRatio {
			tonalRun++
			if tonalRun > longestRun {
				longestRun = tonalRun
			}
		} else {
			tonalRun = 0
		}
	}

	switch {
	case longestRun >= neededWindows:
		return classifier.LabelBeep, nil
	case voicedWindows > 0:
		return classifier.LabelSpeech, nil
	default:
		return classifier.LabelOther, nil
	}
}

// goertzelPower computes the normalised power of the single DFT bin nearest
// targetHz over the window.
func goertzelPower(samples []int16, sampleRate int, targetHz float64) float64 {
	n := len(samples)
	k := math.Round(float64(n) * targetHz / float64(sampleRate))
	omega := 2 * math.Pi * k / float64(n)
	coeff := 2 * math.Cos(omega)

	var s0, s1, s2 float64
	for _, sample := range samples {
		s0 = float64(sample)/32768.0 + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	return power / float64(n)
}

// totalPower is half the raw energy of the window. The halving folds the
// conjugate DFT bins together (Parseval), putting the result on the same
// scale as a single-sided goertzelPower bin: a pure on-bin tone yields a
// tonal/total ratio of 1.
func totalPower(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return sum / 2
}
