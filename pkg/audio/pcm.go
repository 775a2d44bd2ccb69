// Package audio provides helpers for working with linear PCM audio as it
// arrives on the streaming socket: frame sizing, sample decoding, level
// measurement, and WAV container encoding.
//
// All functions assume signed 16-bit little-endian mono PCM ("audio/l16"),
// the format negotiated for the stream endpoint.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesPerSample is the size of one L16 PCM sample.
const BytesPerSample = 2

// FrameBytes returns the byte length of one audio frame of frameMs
// milliseconds at the given sample rate. At 16000 Hz a 20 ms frame is
// 640 bytes.
func FrameBytes(sampleRate, frameMs int) int {
	return sampleRate * frameMs / 1000 * BytesPerSample
}

// DecodeInt16 interprets raw bytes as little-endian signed 16-bit samples.
// It returns an error when the byte count is odd.
func DecodeInt16(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d, not valid 16-bit PCM", len(data))
	}
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return samples, nil
}

// RMS returns the root-mean-square level of the samples normalised to
// [0, 1], where 1.0 corresponds to a full-scale square wave. Empty input
// yields 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
