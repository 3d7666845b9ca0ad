package models

import "strings"

// ChangeFrequency is the value of a <changefreq> element
type ChangeFrequency string

const (
	ChangeFrequencyUnset   ChangeFrequency = "" // Zero value = use the registry default
	ChangeFrequencyAlways  ChangeFrequency = "always"
	ChangeFrequencyHourly  ChangeFrequency = "hourly"
	ChangeFrequencyDaily   ChangeFrequency = "daily"
	ChangeFrequencyWeekly  ChangeFrequency = "weekly"
	ChangeFrequencyMonthly ChangeFrequency = "monthly"
	ChangeFrequencyYearly  ChangeFrequency = "yearly"
	ChangeFrequencyNever   ChangeFrequency = "never"
)

// String implements fmt.Stringer for logging
func (c ChangeFrequency) String() string {
	if c == "" {
		return "unset"
	}
	return string(c)
}

// IsValid returns true if the value is one of the seven sitemaps.org frequencies
func (c ChangeFrequency) IsValid() bool {
	switch c {
	case ChangeFrequencyAlways, ChangeFrequencyHourly, ChangeFrequencyDaily, ChangeFrequencyWeekly,
		ChangeFrequencyMonthly, ChangeFrequencyYearly, ChangeFrequencyNever:
		return true
	}
	return false
}

// ParseChangeFrequency normalizes case and surrounding space. The result may still be invalid.
func ParseChangeFrequency(s string) ChangeFrequency {
	return ChangeFrequency(strings.ToLower(strings.TrimSpace(s)))
}

// FileStatus records what happened to one output file during a write pass
type FileStatus string

const (
	FileStatusUnset   FileStatus = ""
	FileStatusWritten FileStatus = "written" // Bytes were written to the filesystem
	FileStatusSkipped FileStatus = "skipped" // Incremental mode found identical content already on disk
	FileStatusFailed  FileStatus = "failed"  // Directory creation or write failed
	FileStatusPruned  FileStatus = "pruned"  // Stale file from an earlier run was removed
)

// String implements fmt.Stringer for logging
func (s FileStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// GenerationStatus summarizes one site's generation run
type GenerationStatus string

const (
	GenerationStatusUnset   GenerationStatus = ""
	GenerationStatusSuccess GenerationStatus = "success" // Every file written or skipped
	GenerationStatusPartial GenerationStatus = "partial" // Some files failed, others were written
	GenerationStatusFailure GenerationStatus = "failure" // Nothing usable was produced
)

// String implements fmt.Stringer for logging
func (s GenerationStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known terminal value
func (s GenerationStatus) IsValid() bool {
	switch s {
	case GenerationStatusSuccess, GenerationStatusPartial, GenerationStatusFailure:
		return true
	}
	return false
}
