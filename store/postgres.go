// Package store persists call sessions, transcripts, usage summaries, and
// patient records, and caches in-flight FlowState across a session's
// lifetime.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
	"github.com/Adam-Behun/optimalbot-portal-sub000/safety"
)

// PostgresConfig configures the Postgres-backed SessionStore.
type PostgresConfig struct {
	// DB is the sql.DB connection to use. Required.
	DB *sql.DB
}

// SessionStore is a Postgres-backed persistence layer for call sessions,
// transcripts, usage summaries, and patient lookups, grounded on the
// teacher's sqlite-backed memory.MessageStore (database/sql, parameterized
// queries, explicit table DDL) rather than an ORM.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore builds a SessionStore over cfg.DB.
func NewSessionStore(cfg PostgresConfig) (*SessionStore, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &SessionStore{db: cfg.DB}, nil
}

// EnsureSchema creates the call_sessions, transcripts, and patients tables
// if they do not already exist.
func (s *SessionStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS call_sessions (
			session_id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_progress',
			transcript_saved BOOLEAN NOT NULL DEFAULT false,
			transcript JSONB,
			usage_summary JSONB,
			recording_deleted BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			patient_id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			phone TEXT NOT NULL,
			date_of_birth TEXT NOT NULL,
			fields JSONB,
			UNIQUE(organization_id, phone)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new in_progress call_sessions row.
func (s *SessionStore) CreateSession(ctx context.Context, sessionID, organizationID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_sessions (session_id, organization_id) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, organizationID)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// UpdateStatus sets a session's status (spec.md §4.6's "update session
// status to failed" on an unhandled exception).
func (s *SessionStore) UpdateStatus(ctx context.Context, sessionID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = $2, updated_at = now() WHERE session_id = $1`,
		sessionID, status)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	return nil
}

// GetStatus returns a session's current status, used by the orchestrator's
// updateStatusIfNotTerminal to avoid overwriting a terminal status (e.g.
// "failed") with a later, stale "completed" from a racing cleanup path.
func (s *SessionStore) GetStatus(ctx context.Context, sessionID string) (string, error) {
	var status string
	row := s.db.QueryRowContext(ctx,
		`SELECT status FROM call_sessions WHERE session_id = $1`, sessionID)
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("store: get status: %w", err)
	}
	return status, nil
}

// SaveTranscript persists entries as the session's transcript, latched so
// a second call is a no-op (spec.md §5's "at-most-once cleanup").
func (s *SessionStore) SaveTranscript(ctx context.Context, sessionID string, entries []safety.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("store: marshal transcript: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET transcript = $2, transcript_saved = true, updated_at = now()
		 WHERE session_id = $1 AND transcript_saved = false`,
		sessionID, payload)
	if err != nil {
		return fmt.Errorf("store: save transcript: %w", err)
	}
	_, err = res.RowsAffected()
	return err
}

// SaveUsageSummary persists summary for the session.
func (s *SessionStore) SaveUsageSummary(ctx context.Context, sessionID string, summary safety.UsageSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("store: marshal usage summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE call_sessions SET usage_summary = $2, updated_at = now() WHERE session_id = $1`,
		sessionID, payload)
	if err != nil {
		return fmt.Errorf("store: save usage summary: %w", err)
	}
	return nil
}

// MarkRecordingDeleted latches recording_deleted, matching the HIPAA
// compliance deletion step in spec.md §4.6's cleanup sequence.
func (s *SessionStore) MarkRecordingDeleted(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET recording_deleted = true, updated_at = now()
		 WHERE session_id = $1 AND recording_deleted = false`,
		sessionID)
	if err != nil {
		return fmt.Errorf("store: mark recording deleted: %w", err)
	}
	return nil
}

// LookupByPhone implements flow.PatientLookup against the patients table.
func (s *SessionStore) LookupByPhone(ctx context.Context, organizationID, phone string) (flow.Patient, bool, error) {
	var patientID, dob string
	var fieldsJSON sql.NullString

	row := s.db.QueryRowContext(ctx,
		`SELECT patient_id, date_of_birth, fields FROM patients WHERE organization_id = $1 AND phone = $2`,
		organizationID, phone)
	if err := row.Scan(&patientID, &dob, &fieldsJSON); err != nil {
		if err == sql.ErrNoRows {
			return flow.Patient{}, false, nil
		}
		return flow.Patient{}, false, fmt.Errorf("store: lookup patient: %w", err)
	}

	fields := map[string]any{}
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &fields); err != nil {
			return flow.Patient{}, false, fmt.Errorf("store: unmarshal patient fields: %w", err)
		}
	}
	return flow.Patient{ID: patientID, DOB: dob, Fields: fields}, true, nil
}

var _ flow.PatientLookup = (*SessionStore)(nil)
