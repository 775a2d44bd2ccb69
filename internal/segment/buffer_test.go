package segment

import (
	"bytes"
	"testing"
)

// recordingSink captures every sink invocation.
type recordingSink struct {
	counts   []int
	payloads [][]byte
}

func (r *recordingSink) sink(frames int, payload []byte) {
	r.counts = append(r.counts, frames)
	r.payloads = append(r.payloads, payload)
}

func frame(b byte) []byte {
	f := make([]byte, 4)
	for i := range f {
		f[i] = b
	}
	return f
}

func TestNewBufferValidation(t *testing.T) {
	t.Parallel()

	nop := func(int, []byte) {}
	if _, err := NewBuffer(0, 0, nop); err == nil {
		t.Fatal("expected error for zero maxFrames")
	}
	if _, err := NewBuffer(10, 11, nop); err == nil {
		t.Fatal("expected error for minFrames > maxFrames")
	}
	if _, err := NewBuffer(10, -1, nop); err == nil {
		t.Fatal("expected error for negative minFrames")
	}
	if _, err := NewBuffer(10, 2, nil); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

func TestAppendFlushesAtMax(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	buf, err := NewBuffer(3, 1, rec.sink)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	buf.Append(frame(1))
	buf.Append(frame(2))
	if len(rec.counts) != 0 {
		t.Fatal("sink invoked before reaching max")
	}
	buf.Append(frame(3))

	if len(rec.counts) != 1 || rec.counts[0] != 3 {
		t.Fatalf("want one flush of 3 frames, got %v", rec.counts)
	}
	want := append(append(frame(1), frame(2)...), frame(3)...)
	if !bytes.Equal(rec.payloads[0], want) {
		t.Fatal("payload is not the concatenation of appended frames")
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not empty after flush: %d frames", buf.Len())
	}
}

func TestAppendContinuesAfterSizeFlush(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	buf, err := NewBuffer(150, 10, rec.sink)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	// 151 consecutive speech frames: one automatic flush at 150, the 151st
	// frame starts a fresh accumulation.
	for i := 0; i < 151; i++ {
		buf.Append(frame(byte(i)))
	}
	if len(rec.counts) != 1 || rec.counts[0] != 150 {
		t.Fatalf("want one flush of 150 frames, got %v", rec.counts)
	}
	if buf.Len() != 1 {
		t.Fatalf("want 1 frame accumulating after flush, got %d", buf.Len())
	}
}

func TestForceFlushBelowMinDiscards(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	buf, err := NewBuffer(150, 10, rec.sink)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	for i := 0; i < 9; i++ {
		buf.Append(frame(0))
	}
	buf.ForceFlush()

	if len(rec.counts) != 0 {
		t.Fatalf("sink invoked for a clip below the minimum: %v", rec.counts)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not empty after discard: %d frames", buf.Len())
	}
}

func TestForceFlushAtOrAboveMinFlushes(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	buf, err := NewBuffer(150, 10, rec.sink)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	for i := 0; i < 10; i++ {
		buf.Append(frame(0))
	}
	buf.ForceFlush()

	if len(rec.counts) != 1 || rec.counts[0] != 10 {
		t.Fatalf("want one flush of 10 frames, got %v", rec.counts)
	}
}

func TestForceFlushEmptyIsNoop(t *testing.T) {
	t.Parallel()

	rec := &recordingSink{}
	buf, err := NewBuffer(150, 10, rec.sink)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	buf.ForceFlush()
	if len(rec.counts) != 0 {
		t.Fatal("sink invoked for an empty buffer")
	}
}

func TestSinkReceivesImmutableSnapshot(t *testing.T) {
	t.Parallel()

	var captured []byte
	buf, err := NewBuffer(2, 0, func(frames int, payload []byte) {
		captured = payload
	})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	buf.Append(frame(1))
	buf.Append(frame(2))
	snapshot := append([]byte(nil), captured...)

	// Further appends must not mutate the delivered payload.
	buf.Append(frame(9))
	if !bytes.Equal(captured, snapshot) {
		t.Fatal("delivered payload mutated by later appends")
	}
}

func TestSinkReentrancySeesEmptyBuffer(t *testing.T) {
	t.Parallel()

	var lenDuringSink int
	var buf *Buffer
	b, err := NewBuffer(2, 0, func(frames int, payload []byte) {
		lenDuringSink = buf.Len()
	})
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	buf = b

	buf.Append(frame(1))
	buf.Append(frame(2))
	if lenDuringSink != 0 {
		t.Fatalf("buffer not empty during sink call: %d frames", lenDuringSink)
	}
}
