package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/storage"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

// FileSystem is the only I/O boundary of the sitemap renderer
type FileSystem interface {
	// EnsureDirectory creates path and any missing parents. An existing directory is not an error
	EnsureDirectory(path string) error

	// WriteFile replaces the content of path with data
	WriteFile(path string, data []byte) error
}

// Stats counts what happened during one write pass
type Stats struct {
	Written int
	Skipped int
	Pruned  int
}

// AferoFileSystem implements FileSystem on an afero.Fs.
// With a state store attached it runs incrementally: a file whose content hash matches the stored hash
// and which still exists on disk is left untouched.
type AferoFileSystem struct {
	fs    afero.Fs
	log   *logrus.Entry
	state storage.FileStateStore // nil disables incremental mode
	runID string

	written atomic.Int64
	skipped atomic.Int64
	pruned  atomic.Int64

	mu       sync.Mutex
	produced map[string]models.FileStatus // Paths handed to WriteFile in this run
}

// Option configures an AferoFileSystem
type Option func(*AferoFileSystem)

// WithStateStore enables incremental writes against store, tagging entries with runID
func WithStateStore(store storage.FileStateStore, runID string) Option {
	return func(a *AferoFileSystem) {
		a.state = store
		a.runID = runID
	}
}

// NewAferoFileSystem wraps fs
func NewAferoFileSystem(fs afero.Fs, log *logrus.Entry, opts ...Option) *AferoFileSystem {
	a := &AferoFileSystem{
		fs:       fs,
		log:      log.WithField("component", "output"),
		produced: make(map[string]models.FileStatus),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fs returns the underlying afero filesystem
func (a *AferoFileSystem) Fs() afero.Fs {
	return a.fs
}

// EnsureDirectory implements FileSystem
func (a *AferoFileSystem) EnsureDirectory(path string) error {
	if err := a.fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: creating directory '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

// WriteFile implements FileSystem
func (a *AferoFileSystem) WriteFile(path string, data []byte) error {
	hash := utils.HashBytes(data)
	fileLog := a.log.WithField("path", path)

	if a.unchanged(path, hash, int64(len(data)), fileLog) {
		a.skipped.Add(1)
		a.markProduced(path, models.FileStatusSkipped)
		fileLog.Debug("Content unchanged, skipping write")
		return nil
	}

	if err := afero.WriteFile(a.fs, path, data, 0644); err != nil {
		a.markProduced(path, models.FileStatusFailed)
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, path, err)
	}
	a.written.Add(1)
	a.markProduced(path, models.FileStatusWritten)

	if a.state != nil {
		entry := &models.FileStateEntry{
			Hash:      hash,
			Size:      int64(len(data)),
			WrittenAt: time.Now().UTC(),
			RunID:     a.runID,
		}
		// The file is on disk; a lost state entry only costs a rewrite next run
		if err := a.state.UpdateFileState(path, entry); err != nil {
			fileLog.Warnf("Failed to record file state: %v", err)
		}
	}
	return nil
}

// unchanged reports whether the stored hash matches and the file on disk still has that content
func (a *AferoFileSystem) unchanged(path, hash string, size int64, fileLog *logrus.Entry) bool {
	if a.state == nil {
		return false
	}
	entry, exists, err := a.state.GetFileState(path)
	if err != nil {
		fileLog.Warnf("File state lookup failed, rewriting: %v", err)
		return false
	}
	if !exists || entry.Hash != hash || entry.Size != size {
		return false
	}
	info, err := a.fs.Stat(path)
	if err != nil || info.IsDir() || info.Size() != size {
		return false
	}
	// Catches same-size edits made outside the builder
	onDisk, err := utils.HashFile(a.fs, path)
	if err != nil {
		fileLog.Warnf("Hashing existing file failed, rewriting: %v", err)
		return false
	}
	return onDisk == hash
}

func (a *AferoFileSystem) markProduced(path string, status models.FileStatus) {
	a.mu.Lock()
	a.produced[path] = status
	a.mu.Unlock()
}

// Stats returns the counters for this run
func (a *AferoFileSystem) Stats() Stats {
	return Stats{
		Written: int(a.written.Load()),
		Skipped: int(a.skipped.Load()),
		Pruned:  int(a.pruned.Load()),
	}
}

// Status returns what happened to path in this run
func (a *AferoFileSystem) Status(path string) models.FileStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.produced[path]
}

// Produced returns every path handed to WriteFile in this run, sorted
func (a *AferoFileSystem) Produced() []string {
	a.mu.Lock()
	paths := make([]string, 0, len(a.produced))
	for p := range a.produced {
		paths = append(paths, p)
	}
	a.mu.Unlock()
	slices.Sort(paths)
	return paths
}

// PruneStale removes files recorded by earlier runs that this run did not produce,
// e.g. sitemap_4.xml after a group shrank to three pages. Only paths tracked in the state store are touched.
func (a *AferoFileSystem) PruneStale(ctx context.Context) ([]string, error) {
	if a.state == nil {
		return nil, nil
	}
	tracked, err := a.state.ListPaths(ctx)
	if err != nil {
		return nil, err
	}

	var pruned []string
	var errs []error
	for _, path := range tracked {
		if a.Status(path) != models.FileStatusUnset {
			continue
		}
		if err := a.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.log.WithField("path", path).Errorf("Failed to remove stale file: %v", err)
			errs = append(errs, fmt.Errorf("%w: removing '%s': %w", utils.ErrFilesystem, path, err))
			continue
		}
		if err := a.state.DeleteFileState(path); err != nil {
			errs = append(errs, err)
			continue
		}
		a.pruned.Add(1)
		pruned = append(pruned, path)
		a.log.WithField("path", path).Info("Removed stale sitemap file")
	}
	return pruned, errors.Join(errs...)
}
