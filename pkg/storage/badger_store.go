package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-builder/pkg/log"
	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

const (
	fileKeyPrefix = "file:"     // Prefix for output path keys in DB
	stateDBDir    = "file_state" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the FileStateStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetFileCount
}

// NewBadgerStore opens the file-state database for one site under stateDir.
// With reset set, the stored hashes from earlier runs are forgotten so every file is rewritten.
// The paths stay tracked, so files a reset run no longer produces can still be pruned.
func NewBadgerStore(ctx context.Context, stateDir, siteKey string, reset bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(siteKey)+"_"+stateDBDir)

	logger.Infof("Initializing file state database at: %s (Reset: %v)", dbPath, reset)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogger(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1) // Only the latest hash per path matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		logger.Debugf("Loaded existing file state count: %d", count)
	}

	if reset {
		logger.Warnf("Reset requested. Forgetting stored hashes in %s", dbPath)
		if err := store.forgetHashes(); err != nil {
			store.Close()
			return nil, err
		}
	}

	return store, nil
}

// forgetHashes replaces every entry with an empty one, keeping its path tracked
func (s *BadgerStore) forgetHashes() error {
	paths, err := s.ListPaths(s.ctx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := s.UpdateFileState(path, &models.FileStateEntry{}); err != nil {
			return err
		}
	}
	return nil
}

// countKeys performs a one-time full key scan (used only during initialization).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(fileKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent file writes touch disjoint keys, but the key-existence read makes conflicts possible.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// GetFileState implements the FileStateStore interface
func (s *BadgerStore) GetFileState(path string) (*models.FileStateEntry, bool, error) {
	var entry *models.FileStateEntry
	key := []byte(fileKeyPrefix + path)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting file key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.FileStateEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				// An unreadable entry only costs one rewrite
				s.log.Warnf("Failed to unmarshal FileStateEntry for key '%s': %v. Treating as missing.", string(key), errJson)
				return nil
			}
			entry = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetFileState for key '%s': %v", string(key), errView)
		return nil, false, errView
	}
	return entry, entry != nil, nil
}

// UpdateFileState implements the FileStateStore interface
func (s *BadgerStore) UpdateFileState(path string, entry *models.FileStateEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: file state DB not initialized", utils.ErrDatabase)
	}
	key := []byte(fileKeyPrefix + path)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal JSON FileStateEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		isNew = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateFileState: %v", err)
		return fmt.Errorf("%w: failed setting file state for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated file state for '%s' (hash %s)", path, entry.Hash)
	return nil
}

// DeleteFileState implements the FileStateStore interface
func (s *BadgerStore) DeleteFileState(path string) error {
	if s.db == nil {
		return fmt.Errorf("%w: file state DB not initialized", utils.ErrDatabase)
	}
	key := []byte(fileKeyPrefix + path)

	existed := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		existed = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		existed = true
		return txn.Delete(key)
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in DeleteFileState: %v", err)
		return fmt.Errorf("%w: failed deleting file state for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if existed {
		s.keyCount.Add(-1)
	}
	return nil
}

// GetFileCount implements the FileStateStore interface.
// Returns the cached key count (O(1)) maintained by atomic updates on writes and deletes.
func (s *BadgerStore) GetFileCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// ListPaths implements the FileStateStore interface
func (s *BadgerStore) ListPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fileKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			paths = append(paths, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: listing file state keys: %w", utils.ErrDatabase, err)
	}
	return paths, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Debug("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// WriteStateLog implements the FileStateStore interface.
func (s *BadgerStore) WriteStateLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create state log '%s': %v", filePath, err)
		return fmt.Errorf("%w: create state log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var ioErr error
	writtenCount := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(fileKeyPrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := s.ctx.Err(); err != nil {
				s.log.Warnf("WriteStateLog scan interrupted by context cancellation: %v", err)
				return err
			}

			item := it.Item()
			path := string(item.KeyCopy(nil)[len(prefix):])
			hash := ""
			_ = item.Value(func(val []byte) error {
				var entry models.FileStateEntry
				if json.Unmarshal(val, &entry) == nil {
					hash = entry.Hash
				}
				return nil
			})

			if _, writeErr := fmt.Fprintf(writer, "%s\t%s\n", path, hash); writeErr != nil {
				if ioErr == nil {
					ioErr = writeErr
				}
				s.log.Errorf("Error writing '%s' to state log: %v", path, writeErr)
			}
			writtenCount++
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && ioErr == nil {
		ioErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && ioErr == nil {
		ioErr = syncErr
	}

	if iterErr != nil {
		if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
			return iterErr
		}
		return fmt.Errorf("%w: iterating file state: %w", utils.ErrDatabase, iterErr)
	}
	if ioErr != nil {
		s.log.Warnf("Finished writing state log with errors. Wrote ~%d entries to %s", writtenCount, filePath)
		return fmt.Errorf("%w: writing state log '%s': %w", utils.ErrFilesystem, filePath, ioErr)
	}
	s.log.Infof("Wrote %d file state entries to %s", writtenCount, filePath)
	return nil
}

// Close implements the FileStateStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Debug("Closing file state DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing file state DB: %v", err)
			return err
		}
		return nil
	}
	return nil
}
