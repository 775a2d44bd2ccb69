package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of the canonical 44-byte RIFF/WAVE header with a
// single PCM fmt chunk.
const wavHeaderSize = 44

// EncodeWAV wraps raw 16-bit little-endian PCM in a WAV container so that
// the clip can be posted to external classifiers or stored for later
// playback.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	if len(pcm)%(BytesPerSample*channels) != 0 {
		return nil, fmt.Errorf("audio: pcm length %d not aligned to %d channel frame", len(pcm), channels)
	}

	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	buf := make([]byte, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BytesPerSample*8)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf, nil
}
