// ABOUTME: BadgerDB implementation of the session Store with msgpack-encoded records
// ABOUTME: Supports on-disk and in-memory modes and retries transaction conflicts

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/2389/coven-voice/internal/state"
)

const (
	sessionPrefix   = "session/"
	conflictRetries = 3
)

// badgerRecord is the stored value for one session.
type badgerRecord struct {
	State      *state.ConversationState `msgpack:"state"`
	LastAccess int64                    `msgpack:"last_access"`
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	Options
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence.
	InMemory bool
}

// BadgerStore implements the Store interface using BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	opts   Options
	logger *slog.Logger
}

// NewBadgerStore opens a BadgerDB-backed store.
func NewBadgerStore(bopts BadgerOptions) (*BadgerStore, error) {
	if !bopts.InMemory && bopts.Dir == "" {
		return nil, errors.New("badger store: Dir is required for on-disk mode")
	}
	logger := slog.Default().With("component", "store", "backend", "badger")

	dbOpts := badger.DefaultOptions(bopts.Dir).WithLogger(badgerLogger{logger: logger})
	if bopts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{logger: logger})
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	logger.Info("Badger session store initialized", "dir", bopts.Dir, "in_memory", bopts.InMemory)
	return &BadgerStore{db: db, opts: bopts.Options, logger: logger}, nil
}

func sessionKey(callID string) []byte {
	return []byte(sessionPrefix + callID)
}

func encodeRecord(rec *badgerRecord) ([]byte, error) {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*badgerRecord, error) {
	var rec badgerRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &rec, nil
}

// readRecord loads the record for key inside txn. It returns (nil, nil) when absent.
func readRecord(txn *badger.Txn, key []byte) (*badgerRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(val)
}

// update runs fn in a read-write transaction, retrying on conflicts.
// Sentinel errors from fn are returned unchanged; anything else is unavailability.
func (b *BadgerStore) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyExists):
		return err
	default:
		return unavailable(op, err)
	}
}

// Create starts a new session for callID.
func (b *BadgerStore) Create(ctx context.Context, callID string) (*state.ConversationState, error) {
	now := b.opts.now()
	st := state.New(callID, now)

	err := b.update("creating session", func(txn *badger.Txn) error {
		existing, err := readRecord(txn, sessionKey(callID))
		if err != nil {
			return err
		}
		if existing != nil && !b.opts.replaceable(existing.State, time.Unix(0, existing.LastAccess)) {
			return ErrAlreadyExists
		}
		data, err := encodeRecord(&badgerRecord{State: st, LastAccess: now.UnixNano()})
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(callID), data)
	})
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Get retrieves a session and refreshes its last access.
func (b *BadgerStore) Get(ctx context.Context, callID string) (*state.ConversationState, error) {
	var out *state.ConversationState
	err := b.update("reading session", func(txn *badger.Txn) error {
		key := sessionKey(callID)
		rec, err := readRecord(txn, key)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		if b.opts.expired(time.Unix(0, rec.LastAccess)) {
			if err := txn.Delete(key); err != nil {
				return err
			}
			out = nil
			return nil
		}
		rec.LastAccess = b.opts.now().UnixNano()
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		out = rec.State
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// Save stores st, replacing any previous record.
func (b *BadgerStore) Save(ctx context.Context, st *state.ConversationState) error {
	now := b.opts.now()
	c := st.Clone()
	c.UpdatedAt = now
	data, err := encodeRecord(&badgerRecord{State: c, LastAccess: now.UnixNano()})
	if err != nil {
		return err
	}
	return b.update("writing session", func(txn *badger.Txn) error {
		return txn.Set(sessionKey(st.CallID), data)
	})
}

// Delete removes a session.
func (b *BadgerStore) Delete(ctx context.Context, callID string) error {
	return b.update("deleting session", func(txn *badger.Txn) error {
		err := txn.Delete(sessionKey(callID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// scan visits every session record.
func (b *BadgerStore) scan(fn func(key []byte, rec *badgerRecord) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(sessionPrefix)
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(val)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// SweepExpired removes idle sessions.
func (b *BadgerStore) SweepExpired(ctx context.Context) (int, error) {
	var expired [][]byte
	err := b.scan(func(key []byte, rec *badgerRecord) error {
		if b.opts.expired(time.Unix(0, rec.LastAccess)) {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("scanning sessions", err)
	}

	removed := 0
	for _, key := range expired {
		var deleted bool
		err := b.update("sweeping session", func(txn *badger.Txn) error {
			deleted = false
			// Re-check under the write transaction; a turn may have touched it.
			rec, err := readRecord(txn, key)
			if err != nil || rec == nil {
				return err
			}
			if !b.opts.expired(time.Unix(0, rec.LastAccess)) {
				return nil
			}
			deleted = true
			return txn.Delete(key)
		})
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of live sessions.
func (b *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.scan(func(_ []byte, rec *badgerRecord) error {
		if !b.opts.expired(time.Unix(0, rec.LastAccess)) {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("counting sessions", err)
	}
	return n, nil
}

// List returns live sessions ordered by creation time.
func (b *BadgerStore) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := b.scan(func(_ []byte, rec *badgerRecord) error {
		last := time.Unix(0, rec.LastAccess)
		if b.opts.expired(last) {
			return nil
		}
		out = append(out, Summary{
			CallID:     rec.State.CallID,
			Stage:      rec.State.Stage,
			TurnCount:  rec.State.TurnCount,
			CreatedAt:  rec.State.CreatedAt,
			LastAccess: last,
		})
		return nil
	})
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging to slog, demoting its
// chatty info output to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Ensure BadgerStore implements Store
var _ Store = (*BadgerStore)(nil)
