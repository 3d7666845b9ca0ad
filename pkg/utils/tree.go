package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// WriteTree walks targetDir on fs and writes a text-based directory tree of the generated sitemap files to w.
func WriteTree(fs afero.Fs, targetDir string, w io.Writer, log *logrus.Entry) error {
	info, err := fs.Stat(targetDir)
	if err != nil {
		return fmt.Errorf("%w: checking target directory '%s': %w", ErrFilesystem, targetDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: '%s' is not a directory", ErrFilesystem, targetDir)
	}

	writer := bufio.NewWriter(w)
	defer writer.Flush()

	rootName := filepath.Base(targetDir)
	if _, err := fmt.Fprintf(writer, "%s/\n", rootName); err != nil {
		return err
	}

	log.Debugf("Initiating tree walk from: %s", targetDir)
	if err := walkDirRecursive(fs, writer, targetDir, "", log); err != nil {
		return fmt.Errorf("error generating tree structure for '%s': %w", targetDir, err)
	}
	return nil
}

// walkDirRecursive writes one directory level and recurses into subdirectories
func walkDirRecursive(fs afero.Fs, writer io.Writer, dirPath string, currentIndent string, log *logrus.Entry) error {
	entries, err := afero.ReadDir(fs, dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	// Directories first, then alphabetically by name
	slices.SortFunc(entries, func(a, b os.FileInfo) int {
		if a.IsDir() && !b.IsDir() {
			return -1
		}
		if !a.IsDir() && b.IsDir() {
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range entries {
		isLast := i == len(entries)-1

		connector := entryPrefix
		if isLast {
			connector = lastEntryPrefix
		}

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		if _, err := fmt.Fprintf(writer, "%s%s%s\n", currentIndent, connector, name); err != nil {
			return err
		}

		if entry.IsDir() {
			nextIndent := currentIndent + verticalLine
			if isLast {
				nextIndent = currentIndent + indentPrefix
			}
			if err := walkDirRecursive(fs, writer, filepath.Join(dirPath, entry.Name()), nextIndent, log); err != nil {
				return err
			}
		}
	}
	return nil
}
