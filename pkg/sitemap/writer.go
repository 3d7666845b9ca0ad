package sitemap

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/sitemap-builder/pkg/output"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

// FileResult describes one file of a write pass
type FileResult struct {
	Path     string
	URLCount int   // Zero for the index
	Err      error // Nil when the file was written
}

// WriteResult describes a whole write pass. Files are in generation order; the index is reported separately.
type WriteResult struct {
	Files    []FileResult
	Index    FileResult
	URLCount int // Canonical URLs across all files
}

// FileFailure is one failed file within a WriteError
type FileFailure struct {
	Path string
	Err  error
}

// WriteError reports every file that could not be written, sorted by path. Unaffected files were still written.
type WriteError struct {
	Failures []FileFailure
}

func (e *WriteError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Path, f.Err))
	}
	return fmt.Sprintf("%v: %d file(s) failed: %s", utils.ErrWriteFailure, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes ErrWriteFailure and every underlying cause to errors.Is and errors.As
func (e *WriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, utils.ErrWriteFailure)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// WriteSitemapFiles renders the plan and writes every url-set file followed by the root index.
// Member files are written concurrently; a failed file is logged and recorded without stopping the others.
// The returned error is a *WriteError when any file failed, or the context error when ctx was canceled.
func (s *Sitemap) WriteSitemapFiles(ctx context.Context, fsys output.FileSystem) (*WriteResult, error) {
	files := s.Plan()
	enc := newEncoder(s.opts)

	result := &WriteResult{Files: make([]FileResult, len(files))}
	for i, fd := range files {
		result.Files[i] = FileResult{Path: s.FilePath(fd), URLCount: len(fd.CanonicalURLs)}
		result.URLCount += len(fd.CanonicalURLs)
	}

	var (
		mu       sync.Mutex
		failures []FileFailure
	)
	record := func(p string, err error) {
		s.log.WithField("path", p).Errorf("Failed to write sitemap file: %v", err)
		mu.Lock()
		failures = append(failures, FileFailure{Path: p, Err: err})
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(s.opts.NumWorkers)

	for i, fd := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Members never return errors so one failure cannot cancel siblings
			defer func() {
				if r := recover(); r != nil {
					s.log.WithFields(logrus.Fields{
						"path":        result.Files[i].Path,
						"panic_info":  r,
						"stack_trace": string(debug.Stack()),
					}).Error("PANIC Recovered in sitemap write goroutine")
					err := fmt.Errorf("panic while writing: %v", r)
					result.Files[i].Err = err
					record(result.Files[i].Path, err)
				}
			}()

			p := result.Files[i].Path
			if err := s.writeDocument(fsys, enc, p, urlSetDocument(fd)); err != nil {
				result.Files[i].Err = err
				record(p, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.log.Warnf("Sitemap write canceled: %v", err)
		return result, err
	}

	// The index lists every planned file whether or not its write succeeded
	result.Index = FileResult{Path: s.IndexPath()}
	if err := s.writeDocument(fsys, enc, result.Index.Path, s.indexDocument(files)); err != nil {
		result.Index.Err = err
		record(result.Index.Path, err)
	}

	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b FileFailure) int { return strings.Compare(a.Path, b.Path) })
		return result, &WriteError{Failures: failures}
	}

	s.log.WithFields(logrus.Fields{
		"files": len(files),
		"urls":  result.URLCount,
		"index": result.Index.Path,
	}).Info("Sitemap files written")
	return result, nil
}

// writeDocument encodes doc and writes it to p, creating the parent directory first
func (s *Sitemap) writeDocument(fsys output.FileSystem, enc *encoder, p string, doc any) error {
	data, err := enc.encode(doc)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." && dir != "/" {
		if err := fsys.EnsureDirectory(dir); err != nil {
			return err
		}
	}
	return fsys.WriteFile(p, data)
}
