// Package badger holds the Badger-backed workflow store and the embedded
// catalog store variant.
package badger

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

const (
	// Attempts for a transaction that keeps losing to concurrent writers
	conflictRetries = 10

	conflictBackoff = 2 * time.Millisecond
)

// BadgerDB manages one Badger database directory
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens (creating if needed) the database at path. With
// resetOnStartup the existing directory is removed first.
func NewBadgerDB(logger arbor.ILogger, path string, resetOnStartup bool) (*BadgerDB, error) {
	if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}

	if resetOnStartup {
		if _, err := os.Stat(path); err == nil {
			logger.Debug().Str("path", path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to delete database directory")
			}
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Badger's own logger is replaced by arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("BadgerDB: Failed to open database")
		return nil, fmt.Errorf("failed to open badger database %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Msg("Badger database initialized")

	return &BadgerDB{
		store:  store,
		logger: logger,
		path:   path,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Path returns the database directory
func (b *BadgerDB) Path() string {
	return b.path
}

// Update runs fn in a read-write transaction, retrying the whole
// transaction when Badger reports a write conflict. fn must be safe to run
// more than once.
func (b *BadgerDB) Update(fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = b.store.Badger().Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
		b.logger.Trace().Int("attempt", attempt+1).Str("path", b.path).Msg("Transaction conflict, retrying")
		time.Sleep(conflictBackoff*time.Duration(attempt+1) + time.Duration(rand.Int63n(int64(conflictBackoff))))
	}
	return fmt.Errorf("gave up after %d attempts: %w", conflictRetries, err)
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
