package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/metrics"
	"github.com/manav03panchal/tabula/internal/undo"
)

// Helper to create an in-memory database for testing
func setupTestDB(t *testing.T) *DB {
	db, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var testScope = undo.Scope{
	ActorID:  "usrAAAAAAAAAAAAAAAA",
	TableID:  "tblAAAAAAAAAAAAAAAA",
	WindowID: "winAAAAAAAAAAAAAAAA",
}

func testEntry(id string) undo.Entry {
	before, after := int64(1), int64(2)
	return undo.Entry{
		ID:    id,
		Scope: testScope,
		UndoCommand: undo.CommandData{
			Type:    undo.DataDeleteRecords,
			Version: undo.CurrentVersion,
			Payload: []byte(`{"tableId":"tblAAAAAAAAAAAAAAAA","recordIds":["recAAAAAAAAAAAAAAAA"]}`),
		},
		RedoCommand: undo.CommandData{
			Type:    undo.DataDeleteRecords,
			Version: undo.CurrentVersion,
			Payload: []byte(`{"tableId":"tblAAAAAAAAAAAAAAAA","recordIds":["recAAAAAAAAAAAAAAAA"]}`),
		},
		RecordVersionBefore: &before,
		RecordVersionAfter:  &after,
		CreatedAt:           time.Date(2025, 1, 17, 12, 0, 0, 0, time.UTC),
	}
}

func ids(entries []undo.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// =============================================================================
// DB Tests
// =============================================================================

func TestOpenClose(t *testing.T) {
	t.Run("in_memory", func(t *testing.T) {
		db, err := Open(Options{InMemory: true})
		require.NoError(t, err)
		assert.NotNil(t, db.Badger())
		assert.Equal(t, "", db.Path())
		assert.NoError(t, db.Close())
	})

	t.Run("empty_path_uses_in_memory", func(t *testing.T) {
		db, err := Open(Options{Path: ""})
		require.NoError(t, err)
		assert.Equal(t, "", db.Path())
		db.Close()
	})

	t.Run("on_disk", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "history")
		db, err := Open(Options{Path: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, db.Path())
		assert.NoError(t, db.Close())
		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	assert.Contains(t, path, "tabula")
	assert.Equal(t, "history", filepath.Base(path))
}

func TestCRUD(t *testing.T) {
	db := setupTestDB(t)

	type doc struct {
		Name string `json:"name"`
	}

	require.NoError(t, db.Set("doc:1", doc{Name: "one"}))
	require.NoError(t, db.Set("doc:2", doc{Name: "two"}))
	require.NoError(t, db.Set("other:1", doc{Name: "x"}))

	var got doc
	require.NoError(t, db.Get("doc:1", &got))
	assert.Equal(t, "one", got.Name)

	keys, err := db.ListByPrefix("doc:")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc:1", "doc:2"}, keys)

	require.NoError(t, db.Delete("doc:2"))
	err = db.Get("doc:2", &got)
	assert.True(t, IsErrKeyNotFound(err))
}

func TestUpdateRetriesConflicts(t *testing.T) {
	db, err := Open(Options{InMemory: true, MaxRetries: 2})
	require.NoError(t, err)
	defer db.Close()

	t.Run("gives_up_after_bound", func(t *testing.T) {
		calls, retries := 0, 0
		err := db.update(func(*badger.Txn) error {
			calls++
			return badger.ErrConflict
		}, func() { retries++ })
		assert.ErrorIs(t, err, badger.ErrConflict)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("succeeds_after_conflict", func(t *testing.T) {
		calls := 0
		err := db.update(func(*badger.Txn) error {
			calls++
			if calls == 1 {
				return badger.ErrConflict
			}
			return nil
		}, nil)
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("other_errors_are_not_retried", func(t *testing.T) {
		calls := 0
		err := db.update(func(*badger.Txn) error {
			calls++
			return errors.ErrNoRecords
		}, nil)
		assert.ErrorIs(t, err, errors.ErrNoRecords)
		assert.Equal(t, 1, calls)
	})
}

// =============================================================================
// UndoStore Tests
// =============================================================================

func TestUndoStoreUndoRedo(t *testing.T) {
	ctx := context.Background()
	s := NewUndoStore(setupTestDB(t), nil)

	e, err := s.Undo(ctx, testScope)
	require.NoError(t, err)
	assert.Nil(t, e)

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.Append(ctx, testScope, testEntry(id)))
	}

	e, err = s.Undo(ctx, testScope)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "e3", e.ID)
	assert.Equal(t, testEntry("e3"), *e)

	e, err = s.Undo(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "e2", e.ID)

	e, err = s.Redo(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "e2", e.ID)

	pos, err := s.Cursor(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, undo.Position{Cursor: 2, Length: 3}, pos)

	e, err = s.Redo(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "e3", e.ID)

	e, err = s.Redo(ctx, testScope)
	require.NoError(t, err)
	assert.Nil(t, e, "redo at the end of the log")
}

func TestUndoStoreAppendTruncatesRedoTail(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	s := NewUndoStore(db, nil)

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.Append(ctx, testScope, testEntry(id)))
	}
	_, err := s.Undo(ctx, testScope)
	require.NoError(t, err)
	_, err = s.Undo(ctx, testScope)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, testScope, testEntry("e4")))

	all, err := s.List(ctx, testScope, undo.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e4"}, ids(all))

	pos, err := s.Cursor(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, undo.Position{Cursor: 2, Length: 2}, pos)

	e, err := s.Redo(ctx, testScope)
	require.NoError(t, err)
	assert.Nil(t, e)

	keys, err := db.ListByPrefix(entryPrefix(testScope))
	require.NoError(t, err)
	assert.Len(t, keys, 2, "truncated entries are deleted")
}

func TestUndoStoreList(t *testing.T) {
	ctx := context.Background()
	s := NewUndoStore(setupTestDB(t), nil)
	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		require.NoError(t, s.Append(ctx, testScope, testEntry(id)))
	}

	page, err := s.List(ctx, testScope, undo.Page{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2", "e3"}, ids(page))

	page, err = s.List(ctx, testScope, undo.Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = s.List(ctx, testScope, undo.Page{Offset: -1})
	assert.True(t, errors.IsValidation(err))
}

func TestUndoStoreScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewUndoStore(setupTestDB(t), nil)
	other := testScope
	other.WindowID = "winBBBBBBBBBBBBBBBB"

	require.NoError(t, s.Append(ctx, testScope, testEntry("e1")))
	require.NoError(t, s.Append(ctx, other, testEntry("x1")))
	require.NoError(t, s.Append(ctx, other, testEntry("x2")))

	pos, err := s.Cursor(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, pos.Length)

	pos, err = s.Cursor(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Length)

	scopes, err := s.Scopes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testScope.Key(), other.Key()}, scopes)
}

func TestUndoStoreRejectsInvalidScope(t *testing.T) {
	s := NewUndoStore(setupTestDB(t), nil)
	bad := testScope
	bad.ActorID = "usr1"
	err := s.Append(context.Background(), bad, testEntry("e1"))
	assert.True(t, errors.IsValidation(err))
}

func TestUndoStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewUndoStore(setupTestDB(t), nil)
	assert.ErrorIs(t, s.Append(ctx, testScope, testEntry("e1")), context.Canceled)
	_, err := s.Cursor(ctx, testScope)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUndoStorePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(Options{Path: dir})
	require.NoError(t, err)
	s := NewUndoStore(db, nil)
	require.NoError(t, s.Append(ctx, testScope, testEntry("e1")))
	require.NoError(t, s.Append(ctx, testScope, testEntry("e2")))
	_, err = s.Undo(ctx, testScope)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(Options{Path: dir})
	require.NoError(t, err)
	defer db.Close()
	s = NewUndoStore(db, nil)

	pos, err := s.Cursor(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, undo.Position{Cursor: 1, Length: 2}, pos)

	e, err := s.Redo(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, "e2", e.ID)
}

func TestUndoStoreConcurrentScope(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	s := NewUndoStore(setupTestDB(t), m)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, testScope, testEntry("e")))
		}()
	}
	wg.Wait()

	pos, err := s.Cursor(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, undo.Position{Cursor: 20, Length: 20}, pos)
	assert.True(t, CheckIntegrity(s.db).Healthy)
}

func TestUndoStoreWithService(t *testing.T) {
	ctx := context.Background()
	s := NewUndoStore(setupTestDB(t), nil)
	svc := undo.NewService(s, nil)
	assert.Same(t, undo.Store(s), svc.Store())

	require.NoError(t, s.Append(ctx, testScope, testEntry("e1")))
	pos, err := svc.Store().Cursor(ctx, testScope)
	require.NoError(t, err)
	assert.True(t, pos.CanUndo())
	assert.False(t, pos.CanRedo())
}

// =============================================================================
// Integrity Tests
// =============================================================================

func TestCheckIntegrity(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		db := setupTestDB(t)
		s := NewUndoStore(db, nil)
		require.NoError(t, s.Append(ctx, testScope, testEntry("e1")))
		require.NoError(t, s.Append(ctx, testScope, testEntry("e2")))

		report := CheckIntegrity(db)
		assert.True(t, report.Healthy)
		assert.Equal(t, 1, report.Scopes)
		assert.Equal(t, 2, report.Entries)
		assert.NoError(t, report.Err())
	})

	t.Run("missing_entry", func(t *testing.T) {
		db := setupTestDB(t)
		s := NewUndoStore(db, nil)
		require.NoError(t, s.Append(ctx, testScope, testEntry("e1")))
		require.NoError(t, s.Append(ctx, testScope, testEntry("e2")))
		require.NoError(t, db.Delete(EntryKey(testScope, 0)))

		report := CheckIntegrity(db)
		assert.False(t, report.Healthy)
		assert.Equal(t, 1, report.ErrorCount)
		assert.ErrorIs(t, report.Err(), errors.ErrHistoryCorrupted)
		assert.True(t, IsDatabaseCorrupted(report.Err()))
	})

	t.Run("bad_cursor", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, db.Set(MetaKey(testScope), historyMeta{Cursor: 5, Length: 1}))
		require.NoError(t, db.Set(EntryKey(testScope, 0), testEntry("e1")))

		report := CheckIntegrity(db)
		assert.False(t, report.Healthy)

		_, err := NewUndoStore(db, nil).Undo(ctx, testScope)
		assert.ErrorIs(t, err, errors.ErrHistoryCorrupted)
	})

	t.Run("unreadable_entry", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, db.Set(MetaKey(testScope), historyMeta{Cursor: 1, Length: 1}))
		require.NoError(t, db.Badger().Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(EntryKey(testScope, 0)), []byte("{not json"))
		}))

		report := CheckIntegrity(db)
		assert.False(t, report.Healthy)
		assert.GreaterOrEqual(t, report.ErrorCount, 1)
	})

	t.Run("nil_db", func(t *testing.T) {
		assert.False(t, CheckIntegrity(nil).Healthy)
	})
}

func TestIsDatabaseCorrupted(t *testing.T) {
	assert.False(t, IsDatabaseCorrupted(nil))
	assert.True(t, IsDatabaseCorrupted(errors.New("Checksum mismatch in block")))
	assert.False(t, IsDatabaseCorrupted(errors.New("permission denied")))
}

func TestCreateBackup(t *testing.T) {
	ctx := context.Background()
	_, err := CreateBackup(ctx, "")
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "history")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "MANIFEST"), []byte("x"), 0o644))

	backup, err := CreateBackup(ctx, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(backup, "sub", "MANIFEST"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
