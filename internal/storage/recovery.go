package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/manav03panchal/tabula/internal/errors"
	"github.com/manav03panchal/tabula/internal/logging"
	"github.com/manav03panchal/tabula/internal/undo"
)

// IntegrityReport is the result of a history database health check.
type IntegrityReport struct {
	Healthy    bool      `json:"healthy"`
	LastCheck  time.Time `json:"last_check"`
	Scopes     int       `json:"scopes"`
	Entries    int       `json:"entries"`
	ErrorCount int       `json:"error_count"`
	Errors     []string  `json:"errors,omitempty"`
}

func (r *IntegrityReport) fail(format string, args ...any) {
	r.Healthy = false
	r.ErrorCount++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Err returns ErrHistoryCorrupted with the first problem, or nil when healthy.
func (r *IntegrityReport) Err() error {
	if r.Healthy {
		return nil
	}
	return errors.Wrapf(errors.ErrHistoryCorrupted, "%d problem(s), first: %s", r.ErrorCount, r.Errors[0])
}

// CheckIntegrity walks every stored history and verifies that each cursor
// lies inside its log, that every entry up to the length decodes, and that
// no entry lies past the length.
func CheckIntegrity(db *DB) *IntegrityReport {
	report := &IntegrityReport{LastCheck: time.Now(), Healthy: true}
	if db == nil || db.db == nil {
		report.fail("database not initialized")
		return report
	}

	metas := make(map[string]historyMeta)
	entries := make(map[string][]int)

	err := db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(PrefixUndo)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), PrefixUndo)

			if scope, ok := strings.CutSuffix(key, ":meta"); ok {
				var meta historyMeta
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
					report.fail("unreadable cursor for %s: %v", scope, err)
					continue
				}
				metas[scope] = meta
				continue
			}

			scope, index, ok := strings.Cut(key, ":entry:")
			if !ok {
				report.fail("unexpected key %s", item.Key())
				continue
			}
			var i int
			if _, err := fmt.Sscanf(index, "%d", &i); err != nil {
				report.fail("bad entry index in %s", item.Key())
				continue
			}
			var e undo.Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				report.fail("unreadable entry %d of %s: %v", i, scope, err)
				continue
			}
			entries[scope] = append(entries[scope], i)
			report.Entries++
		}
		return nil
	})
	if err != nil {
		report.fail("iteration error: %v", err)
		return report
	}

	report.Scopes = len(metas)
	for scope, meta := range metas {
		if meta.Cursor < 0 || meta.Cursor > meta.Length {
			report.fail("cursor %d outside [0, %d] in %s", meta.Cursor, meta.Length, scope)
		}
		seen := make(map[int]bool, len(entries[scope]))
		for _, i := range entries[scope] {
			seen[i] = true
			if i >= meta.Length {
				report.fail("entry %d of %s lies past length %d", i, scope, meta.Length)
			}
		}
		for i := 0; i < meta.Length; i++ {
			if !seen[i] {
				report.fail("entry %d of %s is missing", i, scope)
			}
		}
	}
	for scope := range entries {
		if _, ok := metas[scope]; !ok {
			report.fail("entries without cursor in %s", scope)
		}
	}
	return report
}

// CreateBackup copies the database directory next to it and returns the
// path of the copy.
func CreateBackup(ctx context.Context, dbPath string) (string, error) {
	if dbPath == "" {
		return "", fmt.Errorf("database path is empty")
	}

	backupDir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("history-backup-%s", timestamp))

	if err := copyDir(dbPath, backupPath); err != nil {
		return "", fmt.Errorf("failed to copy database: %w", err)
	}

	logging.InfoContext(ctx, "history backup created", logging.KeyOperation, "backup", "path", backupPath)
	return backupPath, nil
}

func copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			err = copyDir(srcPath, dstPath)
		} else {
			err = copyFile(srcPath, dstPath)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, srcInfo.Mode())
}

// IsDatabaseCorrupted checks if the given error indicates database corruption.
func IsDatabaseCorrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errors.ErrHistoryCorrupted) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"checksum mismatch", "corrupt", "unexpected eof", "bad magic", "truncated"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
