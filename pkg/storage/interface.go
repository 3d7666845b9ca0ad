package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
)

// FileStateReader looks up what was last written to an output path
type FileStateReader interface {
	// GetFileState returns the stored entry for path and whether it exists
	GetFileState(path string) (entry *models.FileStateEntry, exists bool, err error)
}

// FileStateWriter records and forgets output paths
type FileStateWriter interface {
	// UpdateFileState stores entry for path, replacing any previous entry
	UpdateFileState(path string, entry *models.FileStateEntry) error

	// DeleteFileState removes path from the store. Deleting a missing path is not an error
	DeleteFileState(path string) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetFileCount returns the number of tracked output paths
	GetFileCount() (int, error)

	// ListPaths returns every tracked output path in key order
	ListPaths(ctx context.Context) ([]string, error)

	// WriteStateLog writes one "path<TAB>hash" line per tracked file to filePath
	WriteStateLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// FileStateStore combines all store interfaces for components that need full access
type FileStateStore interface {
	FileStateReader
	FileStateWriter
	StoreAdmin
}
