// ABOUTME: Tests for the durable session backends and backend selection
// ABOUTME: Covers restart survival for SQLite and on-disk Badger plus corrupt rows

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-voice/internal/config"
	"github.com/2389/coven-voice/internal/state"
)

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "sessions.db")

	s, err := NewSQLiteStore(dbPath, Options{})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

// seedSession creates a session with some discovered facts.
func seedSession(t *testing.T, s Store, callID string) {
	t.Helper()
	ctx := context.Background()

	st, err := s.Create(ctx, callID)
	require.NoError(t, err)
	st.AppendAgent("Hi, this is Maya.")
	st.AppendUser("We run grocery stores and churn is killing us.")
	st.SetCustomerInfo("industry", "Retail")
	st.AddPainPoint("customer churn")
	st.MarkDiscussed(state.ServiceAI)
	st.Stage = state.StagePresentation
	st.TurnCount = 1
	require.NoError(t, s.Save(ctx, st))
}

func assertSeeded(t *testing.T, s Store, callID string) {
	t.Helper()
	st, err := s.Get(context.Background(), callID)
	require.NoError(t, err)
	assert.Equal(t, state.StagePresentation, st.Stage)
	assert.Equal(t, 1, st.TurnCount)
	assert.Len(t, st.History, 2)
	assert.Equal(t, "Retail", st.CustomerInfo["industry"])
	assert.Equal(t, []string{"customer churn"}, st.PainPoints)
	assert.Equal(t, []state.ServiceType{state.ServiceAI}, st.DiscussedServices)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	s, err := NewSQLiteStore(dbPath, Options{})
	require.NoError(t, err)
	seedSession(t, s, "CA-durable")
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	assertSeeded(t, reopened, "CA-durable")
	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_CorruptRow(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), Options{})
	require.NoError(t, err)
	defer s.Close()

	seedSession(t, s, "CA-bad")
	_, err = s.db.Exec(`UPDATE sessions SET state_json = '{not json' WHERE call_id = ?`, "CA-bad")
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "CA-bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ClosedIsUnavailable(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "CA1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBadgerStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	s, err := NewBadgerStore(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	seedSession(t, s, "CA-durable")
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	assertSeeded(t, reopened, "CA-durable")
}

func TestNewBadgerStore_RequiresDir(t *testing.T) {
	_, err := NewBadgerStore(BadgerOptions{})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.SessionsConfig
		want any
	}{
		{"default", config.SessionsConfig{}, &MemoryStore{}},
		{"memory", config.SessionsConfig{Backend: config.BackendMemory}, &MemoryStore{}},
		{"sqlite", config.SessionsConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "s.db")}, &SQLiteStore{}},
		{"badger", config.SessionsConfig{Backend: config.BackendBadger, Path: filepath.Join(dir, "b")}, &BadgerStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}

	_, err := Open(config.SessionsConfig{Backend: "redis"})
	assert.Error(t, err)
}
