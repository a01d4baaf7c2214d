package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/metrics"
	"github.com/manav03panchal/tabula/internal/undo"
)

// Key prefixes
const (
	PrefixUndo = "undo:"
)

// historyMeta is the cursor record of one scope.
type historyMeta struct {
	Cursor int `json:"cursor"`
	Length int `json:"length"`
}

// MetaKey returns the key of the cursor record of a scope.
func MetaKey(scope undo.Scope) string {
	return PrefixUndo + scope.Key() + ":meta"
}

// EntryKey returns the key of the entry at index i of a scope. The index is
// zero padded so keys iterate in log order.
func EntryKey(scope undo.Scope, i int) string {
	return fmt.Sprintf("%s%s:entry:%010d", PrefixUndo, scope.Key(), i)
}

func entryPrefix(scope undo.Scope) string {
	return PrefixUndo + scope.Key() + ":entry:"
}

// UndoStore persists undo histories in badger. It implements undo.Store.
type UndoStore struct {
	db      *DB
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ undo.Store = (*UndoStore)(nil)

// NewUndoStore creates a store over db. m may be nil.
func NewUndoStore(db *DB, m *metrics.Metrics) *UndoStore {
	return &UndoStore{db: db, metrics: m, locks: make(map[string]*sync.Mutex)}
}

func (s *UndoStore) lock(scope undo.Scope) func() {
	s.mu.Lock()
	l, ok := s.locks[scope.Key()]
	if !ok {
		l = &sync.Mutex{}
		s.locks[scope.Key()] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *UndoStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.update(fn, s.metrics.StoreRetried)
}

func (s *UndoStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.db.View(fn)
}

func readMeta(txn *badger.Txn, scope undo.Scope) (historyMeta, error) {
	var meta historyMeta
	err := getJSON(txn, MetaKey(scope), &meta)
	if IsErrKeyNotFound(err) {
		return historyMeta{}, nil
	}
	if err != nil {
		return historyMeta{}, errors.Wrapf(errors.ErrHistoryCorrupted, "read cursor of %s: %v", scope.Key(), err)
	}
	if meta.Cursor < 0 || meta.Cursor > meta.Length {
		return historyMeta{}, errors.Wrapf(errors.ErrHistoryCorrupted, "cursor %d outside [0, %d] in %s", meta.Cursor, meta.Length, scope.Key())
	}
	return meta, nil
}

func readEntry(txn *badger.Txn, scope undo.Scope, i int) (*undo.Entry, error) {
	var e undo.Entry
	if err := getJSON(txn, EntryKey(scope, i), &e); err != nil {
		return nil, errors.Wrapf(errors.ErrHistoryCorrupted, "read entry %d of %s: %v", i, scope.Key(), err)
	}
	return &e, nil
}

// Append implements undo.Store.
func (s *UndoStore) Append(ctx context.Context, scope undo.Scope, e undo.Entry) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	defer s.lock(scope)()

	return s.update(ctx, func(txn *badger.Txn) error {
		meta, err := readMeta(txn, scope)
		if err != nil {
			return err
		}
		for i := meta.Cursor; i < meta.Length; i++ {
			if err := txn.Delete([]byte(EntryKey(scope, i))); err != nil {
				return err
			}
		}
		if err := setJSON(txn, EntryKey(scope, meta.Cursor), e); err != nil {
			return err
		}
		next := meta.Cursor + 1
		return setJSON(txn, MetaKey(scope), historyMeta{Cursor: next, Length: next})
	})
}

// Undo implements undo.Store.
func (s *UndoStore) Undo(ctx context.Context, scope undo.Scope) (*undo.Entry, error) {
	defer s.lock(scope)()

	var out *undo.Entry
	err := s.update(ctx, func(txn *badger.Txn) error {
		out = nil
		meta, err := readMeta(txn, scope)
		if err != nil || meta.Cursor == 0 {
			return err
		}
		meta.Cursor--
		e, err := readEntry(txn, scope, meta.Cursor)
		if err != nil {
			return err
		}
		if err := setJSON(txn, MetaKey(scope), meta); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// Redo implements undo.Store.
func (s *UndoStore) Redo(ctx context.Context, scope undo.Scope) (*undo.Entry, error) {
	defer s.lock(scope)()

	var out *undo.Entry
	err := s.update(ctx, func(txn *badger.Txn) error {
		out = nil
		meta, err := readMeta(txn, scope)
		if err != nil || meta.Cursor == meta.Length {
			return err
		}
		e, err := readEntry(txn, scope, meta.Cursor)
		if err != nil {
			return err
		}
		meta.Cursor++
		if err := setJSON(txn, MetaKey(scope), meta); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// List implements undo.Store.
func (s *UndoStore) List(ctx context.Context, scope undo.Scope, page undo.Page) ([]undo.Entry, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	defer s.lock(scope)()

	var out []undo.Entry
	err := s.view(ctx, func(txn *badger.Txn) error {
		meta, err := readMeta(txn, scope)
		if err != nil {
			return err
		}
		from, to := page.Bounds(meta.Length)
		out = make([]undo.Entry, 0, to-from)
		for i := from; i < to; i++ {
			e, err := readEntry(txn, scope, i)
			if err != nil {
				return err
			}
			out = append(out, *e)
		}
		return nil
	})
	return out, err
}

// Cursor implements undo.Store.
func (s *UndoStore) Cursor(ctx context.Context, scope undo.Scope) (undo.Position, error) {
	defer s.lock(scope)()

	var pos undo.Position
	err := s.view(ctx, func(txn *badger.Txn) error {
		meta, err := readMeta(txn, scope)
		pos = undo.Position{Cursor: meta.Cursor, Length: meta.Length}
		return err
	})
	return pos, err
}

// Scopes returns the key of every scope with a stored history.
func (s *UndoStore) Scopes() ([]string, error) {
	keys, err := s.db.ListByPrefix(PrefixUndo)
	if err != nil {
		return nil, err
	}
	var scopes []string
	for _, k := range keys {
		if scope, ok := strings.CutSuffix(strings.TrimPrefix(k, PrefixUndo), ":meta"); ok {
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}
