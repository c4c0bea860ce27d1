// Package badger provides a Badger-backed run cache.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
	// InMemory keeps the database off disk; Path is ignored.
	InMemory bool
}

// BadgerStorage implements storage.RunCache using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage opens the database at config.Path.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	path := config.Path
	if config.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithLogger(nil)
	if config.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(config.ValueLogFileSize)
	}
	if config.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(config.NumVersionsToKeep)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

func runKey(key storage.RunKey) []byte {
	return []byte(fmt.Sprintf("run:%s", key))
}

// SaveRun stores run under run:<id>:<attempt>.
func (b *BadgerStorage) SaveRun(ctx context.Context, run *buildtrace.WorkflowRun) error {
	if err := storage.ValidateRun(run); err != nil {
		return err
	}
	data, err := storage.Serialize(run)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(storage.KeyOf(run)), data)
	})
}

// GetRun retrieves one attempt of a run.
func (b *BadgerStorage) GetRun(ctx context.Context, key storage.RunKey) (*buildtrace.WorkflowRun, error) {
	var run buildtrace.WorkflowRun

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.RunNotFound(key)
			}
			return err
		}

		return item.Value(func(val []byte) error {
			return storage.Deserialize(val, &run)
		})
	})

	if err != nil {
		return nil, err
	}

	return &run, nil
}

// DeleteRun removes a run.
func (b *BadgerStorage) DeleteRun(ctx context.Context, key storage.RunKey) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.RunNotFound(key)
			}
			return err
		}
		return txn.Delete(runKey(key))
	})
}

// Close closes the database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}
