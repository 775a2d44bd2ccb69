package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the detections table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS detections (
    id              UUID PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    label           TEXT NOT NULL,
    frames          INTEGER NOT NULL,
    sample_rate     INTEGER NOT NULL,
    audio           BYTEA,
    detected_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_detections_conversation ON detections(conversation_id);
CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// detections table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// SaveDetection inserts a detection record. A zero ID is replaced with a
// fresh UUID and a zero DetectedAt with the current time; both are written
// back to d.
func (s *PostgresStore) SaveDetection(ctx context.Context, d *Detection) error {
	if d == nil {
		return fmt.Errorf("audit: save: nil detection")
	}
	if d.ConversationID == "" {
		return fmt.Errorf("audit: save: conversation id is empty")
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO detections (id, conversation_id, label, frames, sample_rate, audio, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := s.db.Exec(ctx, query,
		d.ID, d.ConversationID, d.Label, d.Frames, d.SampleRate, d.Audio, d.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: save detection %s: %w", d.ID, err)
	}
	return nil
}

// Recent returns up to limit detection records, newest first. A limit of 0
// or less defaults to 50.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, conversation_id, label, frames, sample_rate, audio, detected_at
		FROM detections
		ORDER BY detected_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var dets []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(
			&d.ID, &d.ConversationID, &d.Label, &d.Frames, &d.SampleRate, &d.Audio, &d.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: recent scan: %w", err)
		}
		dets = append(dets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return dets, nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("audit: ping: %w", err)
	}
	return nil
}
