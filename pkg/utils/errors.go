package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrPreconditionViolation = errors.New("precondition violation") // Malformed options or route arguments
	ErrWriteFailure          = errors.New("sitemap write failure")  // Wraps a per-file filesystem failure
	ErrFilesystem            = errors.New("filesystem error")       // Wraps afero/os errors
	ErrDatabase              = errors.New("database error")         // Wraps badger errors
	ErrParsing               = errors.New("parsing error")          // Wraps YAML/JSON/XML encoding errors
	ErrConfigValidation      = errors.New("configuration validation error")
	ErrSiteNotFound          = errors.New("site not found in configuration")
)

// WrapErrorf prefixes err with a formatted message, keeping it matchable with errors.Is.
// A nil err stays nil.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CategorizeError maps an error to a predefined category string for logging and run summaries.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrPreconditionViolation):
		errMsg := err.Error()
		if strings.Contains(errMsg, "subFolderPath") {
			return "Precondition_SubFolderPath"
		}
		if strings.Contains(errMsg, "rootFolderPath") {
			return "Precondition_RootFolderPath"
		}
		if strings.Contains(errMsg, "placeholder") {
			return "Precondition_Placeholder"
		}
		return "Precondition_Other"
	case errors.Is(err, ErrWriteFailure):
		// A write failure always wraps the filesystem cause, so inspect that first
		if errors.Is(err, os.ErrPermission) {
			return "Write_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Write_NotExist"
		}
		return "Write_Other"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		if errors.Is(err, os.ErrExist) {
			return "Filesystem_Exist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "YAML") {
			return "Parsing_YAML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Parsing_JSON"
		}
		if strings.Contains(errMsg, "XML") {
			return "Parsing_XML"
		}
		return "Parsing_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrSiteNotFound):
		return "Config_SiteNotFound"
	}

	// --- Fallback checks for common underlying error types ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if errors.Is(err, os.ErrPermission) {
		return "Filesystem_Permission"
	}

	return "Unknown"
}
