// Package segment turns an unbounded stream of fixed-duration audio frames
// into bounded utterance clips.
//
// The Buffer accumulates speech frames and flushes them to a sink when a
// size cap is reached; the Segmenter drives it with per-frame VAD decisions
// and a silence countdown, cutting utterance boundaries at pauses.
package segment

import "fmt"

// Sink receives a finished clip: the number of frames it spans and an
// immutable snapshot of the concatenated payload. The sink is invoked
// synchronously; by the time it returns the buffer is already empty.
type Sink func(frames int, payload []byte)

// Buffer accumulates raw audio frames into a bounded clip.
//
// Append flushes automatically when the frame count reaches the configured
// maximum. ForceFlush cuts the clip early at a silence boundary, discarding
// it silently when it is below the configured minimum (too short to be
// meaningful).
//
// Not safe for concurrent use; a Buffer belongs to exactly one stream.
type Buffer struct {
	sink      Sink
	maxFrames int
	minFrames int

	count   int
	payload []byte
}

// NewBuffer creates a Buffer that flushes to sink at maxFrames and discards
// forced flushes below minFrames.
func NewBuffer(maxFrames, minFrames int, sink Sink) (*Buffer, error) {
	if maxFrames <= 0 {
		return nil, fmt.Errorf("segment: maxFrames must be positive, got %d", maxFrames)
	}
	if minFrames < 0 || minFrames > maxFrames {
		return nil, fmt.Errorf("segment: minFrames %d out of range [0, %d]", minFrames, maxFrames)
	}
	if sink == nil {
		return nil, fmt.Errorf("segment: sink must not be nil")
	}
	return &Buffer{
		sink:      sink,
		maxFrames: maxFrames,
		minFrames: minFrames,
	}, nil
}

// Append adds one frame to the buffer. When the accumulated frame count
// reaches the maximum, the buffer flushes synchronously and resets.
func (b *Buffer) Append(frame []byte) {
	b.count++
	b.payload = append(b.payload, frame...)
	if b.count >= b.maxFrames {
		b.flush()
	}
}

// ForceFlush flushes the current contents regardless of count, unless the
// count is below the configured minimum, in which case the accumulated
// audio is discarded without invoking the sink. Either way the buffer is
// empty afterwards.
func (b *Buffer) ForceFlush() {
	if b.count == 0 {
		return
	}
	if b.count < b.minFrames {
		b.reset()
		return
	}
	b.flush()
}

// Len returns the number of frames currently accumulated.
func (b *Buffer) Len() int {
	return b.count
}

// flush hands the sink an immutable snapshot, resetting first so the buffer
// is empty by the time the sink call returns even if the sink re-enters.
func (b *Buffer) flush() {
	count := b.count
	snapshot := make([]byte, len(b.payload))
	copy(snapshot, b.payload)
	b.reset()
	b.sink(count, snapshot)
}

func (b *Buffer) reset() {
	b.count = 0
	b.payload = b.payload[:0]
}
