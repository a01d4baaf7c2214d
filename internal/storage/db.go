// Package storage provides the durable layer for tabula: a badger database
// holding undo/redo histories.
package storage

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	badger "github.com/dgraph-io/badger/v4"
)

const (
	// AppName is the application name used for data directories.
	AppName = "tabula"

	// DefaultMaxRetries bounds the retries of a transaction that lost a
	// conflict against a concurrent writer.
	DefaultMaxRetries = 3
)

// DB wraps a Badger database connection.
type DB struct {
	db         *badger.DB
	path       string
	maxRetries int
}

// Options configures the database connection.
type Options struct {
	// Path is the database directory path. Empty string uses in-memory mode.
	Path string
	// InMemory forces in-memory mode regardless of Path.
	InMemory bool
	// MaxRetries bounds conflict retries. Zero uses DefaultMaxRetries.
	MaxRetries int
}

// DefaultPath returns the default history database path under the XDG data home.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, AppName, "history")
}

// Open opens or creates a database at the given path.
func Open(opts Options) (*DB, error) {
	var badgerOpts badger.Options
	path := opts.Path

	if opts.InMemory || opts.Path == "" {
		// In-memory mode for testing
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
		path = ""
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, err
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}

	// Reduce logging noise
	badgerOpts = badgerOpts.WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	retries := opts.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	return &DB{db: db, path: path, maxRetries: retries}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the directory of the database, empty when in memory.
func (d *DB) Path() string {
	return d.path
}

// Badger returns the underlying Badger database for advanced operations.
func (d *DB) Badger() *badger.DB {
	return d.db
}
