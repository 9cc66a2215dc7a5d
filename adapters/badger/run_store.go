// Package badger stores pipeline runs in an embedded BadgerDB so repeated
// benchmark invocations reuse results by fingerprint.
package badger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"isoquant/domain/core"
	"isoquant/domain/run"
	"isoquant/internal"
	"isoquant/internal/errors"
)

var logger = internal.DefaultLogger.WithComponent("badger")

const (
	runPrefix         = "run/"
	fingerprintPrefix = "fp/"
)

// Config holds configuration for the run store
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// InMemoryConfig returns a configuration for tests
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// RunStore implements ports.RunRepository on BadgerDB
type RunStore struct {
	db *badger.DB
}

// Open opens or creates the store
func Open(cfg Config) (*RunStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.ConfigInvalid("badger path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.StorageError("create badger directory "+cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.StorageError("open badger database", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the database
func (s *RunStore) Close() error {
	return s.db.Close()
}

func runKey(id core.RunID) []byte {
	return []byte(runPrefix + id.String())
}

func fingerprintKey(fp core.Hash, id core.RunID) []byte {
	return []byte(fingerprintPrefix + fp.String() + "/" + id.String())
}

// Save stores the run and indexes it by fingerprint
func (s *RunStore) Save(ctx context.Context, r *run.PipelineRun) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.StorageError("encode run "+r.ID.String(), err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(r.ID), data); err != nil {
			return err
		}
		if fp := r.Fingerprint.Fingerprint; !fp.IsEmpty() {
			return txn.Set(fingerprintKey(fp, r.ID), nil)
		}
		return nil
	})
	if err != nil {
		return errors.StorageError("save run "+r.ID.String(), err)
	}
	logger.Trace("saved run %s (%d bytes)", r.ID, len(data))
	return nil
}

// Get loads a run by ID
func (s *RunStore) Get(ctx context.Context, id core.RunID) (*run.PipelineRun, error) {
	var r *run.PipelineRun
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getRun(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func getRun(txn *badger.Txn, id core.RunID) (*run.PipelineRun, error) {
	item, err := txn.Get(runKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, errors.StorageError("read run "+id.String(), err)
	}
	var r run.PipelineRun
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	}); err != nil {
		return nil, errors.StorageError("decode run "+id.String(), err)
	}
	return &r, nil
}

// FindByFingerprint returns the newest completed run with the fingerprint.
// Run IDs are time-ordered, so the index is walked in reverse.
func (s *RunStore) FindByFingerprint(ctx context.Context, fp core.Hash) (*run.PipelineRun, error) {
	prefix := []byte(fingerprintPrefix + fp.String() + "/")
	var found *run.PipelineRun
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := core.RunID(it.Item().Key()[len(prefix):])
			r, err := getRun(txn, id)
			if err != nil {
				if core.IsNotFoundError(err) {
					continue
				}
				return err
			}
			if r.Status == run.StatusCompleted {
				found = r
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, core.NewNotFoundError("run fingerprint", fp.Short())
	}
	return found, nil
}

// List returns up to limit runs, newest first. A limit of zero lists all.
func (s *RunStore) List(ctx context.Context, limit int) ([]*run.PipelineRun, error) {
	prefix := []byte(runPrefix)
	var runs []*run.PipelineRun
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				return nil
			}
			var r run.PipelineRun
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, &r)
		}
		return nil
	})
	if err != nil {
		return nil, errors.StorageError("list runs", err)
	}
	return runs, nil
}
