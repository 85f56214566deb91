package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adam-Behun/optimalbot-portal-sub000/safety"
)

func newTestSessionStore(t *testing.T) (*SessionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSessionStore(PostgresConfig{DB: db})
	require.NoError(t, err)
	return store, mock
}

func TestNewSessionStore(t *testing.T) {
	_, err := NewSessionStore(PostgresConfig{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db is required")
}

func TestSessionStoreEnsureSchema(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS call_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS patients").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreCreateSession(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectExec("INSERT INTO call_sessions").
		WithArgs("call-1", "org-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.CreateSession(context.Background(), "call-1", "org-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreUpdateStatus(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectExec("UPDATE call_sessions SET status").
		WithArgs("call-1", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateStatus(context.Background(), "call-1", "failed"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreGetStatus(t *testing.T) {
	store, mock := newTestSessionStore(t)
	rows := sqlmock.NewRows([]string{"status"}).AddRow("failed")
	mock.ExpectQuery("SELECT status FROM call_sessions").
		WithArgs("call-1").
		WillReturnRows(rows)

	status, err := store.GetStatus(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", status)
}

func TestSessionStoreGetStatusNotFound(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectQuery("SELECT status FROM call_sessions").
		WithArgs("call-missing").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	status, err := store.GetStatus(context.Background(), "call-missing")
	require.NoError(t, err)
	assert.Equal(t, "", status)
}

func TestSessionStoreSaveTranscript(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectExec("UPDATE call_sessions SET transcript").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entries := []safety.Entry{{Role: "user", Content: "hello"}}
	require.NoError(t, store.SaveTranscript(context.Background(), "call-1", entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreSaveUsageSummary(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectExec("UPDATE call_sessions SET usage_summary").
		WillReturnResult(sqlmock.NewResult(0, 1))

	summary := safety.UsageSummary{TotalCostUSD: 0.05}
	require.NoError(t, store.SaveUsageSummary(context.Background(), "call-1", summary))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreMarkRecordingDeleted(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectExec("UPDATE call_sessions SET recording_deleted").
		WithArgs("call-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkRecordingDeleted(context.Background(), "call-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreLookupByPhoneFound(t *testing.T) {
	store, mock := newTestSessionStore(t)
	rows := sqlmock.NewRows([]string{"patient_id", "date_of_birth", "fields"}).
		AddRow("patient-1", "1985-03-03", `{"caller_stated_name":"Jordan"}`)
	mock.ExpectQuery("SELECT patient_id, date_of_birth, fields FROM patients").
		WithArgs("org-1", "5551234567").
		WillReturnRows(rows)

	patient, found, err := store.LookupByPhone(context.Background(), "org-1", "5551234567")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "patient-1", patient.ID)
	assert.Equal(t, "1985-03-03", patient.DOB)
	assert.Equal(t, "Jordan", patient.Fields["caller_stated_name"])
}

func TestSessionStoreLookupByPhoneNotFound(t *testing.T) {
	store, mock := newTestSessionStore(t)
	mock.ExpectQuery("SELECT patient_id, date_of_birth, fields FROM patients").
		WithArgs("org-1", "0000000000").
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "date_of_birth", "fields"}))

	_, found, err := store.LookupByPhone(context.Background(), "org-1", "0000000000")
	require.NoError(t, err)
	assert.False(t, found)
}
