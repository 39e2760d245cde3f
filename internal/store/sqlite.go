// ABOUTME: SQLite implementation of the session Store using modernc.org/sqlite
// ABOUTME: Stores each ConversationState as a JSON blob with indexed lifecycle columns

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/2389/coven-voice/internal/state"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "backend", "sqlite")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; lock upgrades inside Create would otherwise fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		opts:   opts,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite session store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			call_id     TEXT PRIMARY KEY,
			stage       TEXT NOT NULL,
			turn_count  INTEGER NOT NULL DEFAULT 0,
			state_json  TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			last_access INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_last_access ON sessions(last_access);
	`
	_, err := s.db.Exec(schema)
	return err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Create starts a new session for callID.
func (s *SQLiteStore) Create(ctx context.Context, callID string) (*state.ConversationState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stage string
	var lastAccess int64
	err = tx.QueryRowContext(ctx, `SELECT stage, last_access FROM sessions WHERE call_id = ?`, callID).Scan(&stage, &lastAccess)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, unavailable("querying session", err)
	default:
		existing := &state.ConversationState{Stage: state.Stage(stage)}
		if !s.opts.replaceable(existing, time.Unix(0, lastAccess)) {
			return nil, ErrAlreadyExists
		}
	}

	now := s.opts.now()
	st := state.New(callID, now)
	if err := s.upsert(ctx, tx, st, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("committing session", err)
	}
	return st, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, db execer, st *state.ConversationState, now time.Time) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	query := `
		INSERT INTO sessions (call_id, stage, turn_count, state_json, created_at, updated_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET
			stage = excluded.stage,
			turn_count = excluded.turn_count,
			state_json = excluded.state_json,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_access = excluded.last_access
	`
	_, err = db.ExecContext(ctx, query,
		st.CallID,
		string(st.Stage),
		st.TurnCount,
		string(blob),
		st.CreatedAt.Format(time.RFC3339),
		now.Format(time.RFC3339),
		now.UnixNano(),
	)
	if err != nil {
		return unavailable("writing session", err)
	}
	return nil
}

// Get retrieves a session and refreshes its last access.
func (s *SQLiteStore) Get(ctx context.Context, callID string) (*state.ConversationState, error) {
	var blob string
	var lastAccess int64
	err := s.db.QueryRowContext(ctx, `SELECT state_json, last_access FROM sessions WHERE call_id = ?`, callID).Scan(&blob, &lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("querying session", err)
	}

	if s.opts.expired(time.Unix(0, lastAccess)) {
		if err := s.Delete(ctx, callID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var st state.ConversationState
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", callID, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_access = ? WHERE call_id = ?`, s.opts.now().UnixNano(), callID); err != nil {
		return nil, unavailable("touching session", err)
	}
	return &st, nil
}

// Save stores st, replacing any previous record.
func (s *SQLiteStore) Save(ctx context.Context, st *state.ConversationState) error {
	now := s.opts.now()
	c := st.Clone()
	c.UpdatedAt = now
	return s.upsert(ctx, s.db, c, now)
}

// Delete removes a session.
func (s *SQLiteStore) Delete(ctx context.Context, callID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE call_id = ?`, callID); err != nil {
		return unavailable("deleting session", err)
	}
	return nil
}

// SweepExpired removes idle sessions.
func (s *SQLiteStore) SweepExpired(ctx context.Context) (int, error) {
	if s.opts.IdleTimeout <= 0 {
		return 0, nil
	}
	cutoff := s.opts.now().Add(-s.opts.IdleTimeout).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_access < ?`, cutoff)
	if err != nil {
		return 0, unavailable("sweeping sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("counting swept sessions", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) liveCutoff() int64 {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}
	return s.opts.now().Add(-s.opts.IdleTimeout).UnixNano()
}

// Count returns the number of live sessions.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE last_access >= ?`, s.liveCutoff()).Scan(&n)
	if err != nil {
		return 0, unavailable("counting sessions", err)
	}
	return n, nil
}

// List returns live sessions ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	query := `
		SELECT call_id, stage, turn_count, created_at, last_access
		FROM sessions
		WHERE last_access >= ?
		ORDER BY created_at ASC, call_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, s.liveCutoff())
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var stage, createdAtStr string
		var lastAccess int64
		if err := rows.Scan(&sum.CallID, &stage, &sum.TurnCount, &createdAtStr, &lastAccess); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.Stage = state.Stage(stage)
		sum.LastAccess = time.Unix(0, lastAccess)
		sum.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating sessions", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
