// Package audit persists beep detection records for later inspection.
//
// Every positive classification produces a [Detection] carrying the clip
// audio (as a WAV blob) and its conversation context. The default backing
// store is PostgreSQL via [PostgresStore]; deployments without a database
// configured use [NopStore], which discards records.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Detection is one persisted classification result.
type Detection struct {
	// ID uniquely identifies this record.
	ID uuid.UUID

	// ConversationID is the platform conversation the clip was captured in.
	ConversationID string

	// Label is the classifier verdict, e.g. "beep".
	Label string

	// Frames is the clip length in audio frames.
	Frames int

	// SampleRate is the clip sample rate in Hz.
	SampleRate int

	// Audio is the clip encoded as a WAV file. May be nil when audio
	// retention is disabled.
	Audio []byte

	// DetectedAt is when the classifier returned the verdict.
	DetectedAt time.Time
}

// Store persists detection records.
type Store interface {
	// SaveDetection writes one record. The store assigns ID and DetectedAt
	// when they are zero.
	SaveDetection(ctx context.Context, d *Detection) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Detection, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}

// NopStore is a [Store] that discards all records. It is used when no
// database is configured.
type NopStore struct{}

// Compile-time interface check.
var _ Store = NopStore{}

func (NopStore) SaveDetection(context.Context, *Detection) error  { return nil }
func (NopStore) Recent(context.Context, int) ([]Detection, error) { return nil, nil }
func (NopStore) Ping(context.Context) error                       { return nil }
