package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFrameBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sampleRate int
		frameMs    int
		want       int
	}{
		{16000, 20, 640},
		{16000, 10, 320},
		{8000, 20, 320},
		{48000, 30, 2880},
	}
	for _, tt := range tests {
		if got := FrameBytes(tt.sampleRate, tt.frameMs); got != tt.want {
			t.Errorf("FrameBytes(%d, %d) = %d, want %d", tt.sampleRate, tt.frameMs, got, tt.want)
		}
	}
}

func TestDecodeInt16(t *testing.T) {
	t.Parallel()

	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:], uint16(int16(1000)))
	neg := int16(-1000)
	binary.LittleEndian.PutUint16(data[2:], uint16(neg))
	binary.LittleEndian.PutUint16(data[4:], 0)

	samples, err := DecodeInt16(data)
	if err != nil {
		t.Fatalf("DecodeInt16() error = %v", err)
	}
	want := []int16{1000, -1000, 0}
	for i, s := range samples {
		if s != want[i] {
			t.Errorf("samples[%d] = %d, want %d", i, s, want[i])
		}
	}
}

func TestDecodeInt16_OddLength(t *testing.T) {
	t.Parallel()

	if _, err := DecodeInt16([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeInt16() with odd length expected error, got nil")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	// Full-scale square wave has RMS ~1.0.
	square := make([]int16, 100)
	for i := range square {
		if i%2 == 0 {
			square[i] = 32767
		} else {
			square[i] = -32768
		}
	}
	if got := RMS(square); math.Abs(got-1.0) > 0.001 {
		t.Errorf("RMS(square) = %v, want ~1.0", got)
	}

	silence := make([]int16, 100)
	if got := RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 640)
	wav, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("EncodeWAV() missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate field = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate field = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 2 {
		t.Errorf("block align field = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size field = %d, want %d", got, len(pcm))
	}
}

func TestEncodeWAV_Validation(t *testing.T) {
	t.Parallel()

	if _, err := EncodeWAV(nil, 0, 1); err == nil {
		t.Error("EncodeWAV() with zero sample rate expected error")
	}
	if _, err := EncodeWAV(nil, 16000, 0); err == nil {
		t.Error("EncodeWAV() with zero channels expected error")
	}
	if _, err := EncodeWAV([]byte{1, 2, 3}, 16000, 2); err == nil {
		t.Error("EncodeWAV() with misaligned pcm expected error")
	}
}
