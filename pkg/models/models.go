package models

import "time"

// FileStateEntry stores what was last written to one output path, keyed by that path in the state store
type FileStateEntry struct {
	Hash      string    `json:"hash"`             // BLAKE3 hex of the bytes written
	Size      int64     `json:"size"`             // Byte length of the bytes written
	WrittenAt time.Time `json:"written_at"`       // Timestamp of the last actual write
	RunID     string    `json:"run_id,omitempty"` // Run that last produced this file (written or skipped)
}

// RunMetadata holds the outcome of a single generation run for a site.
type RunMetadata struct {
	SiteKey       string           `yaml:"site_key"`
	RunID         string           `yaml:"run_id"`
	WebsiteURL    string           `yaml:"website_url"`
	StartTime     time.Time        `yaml:"start_time"`
	EndTime       time.Time        `yaml:"end_time"`
	Status        GenerationStatus `yaml:"status"`
	RouteCount    int              `yaml:"route_count"`
	ExcludedCount int              `yaml:"excluded_count,omitempty"`
	URLCount      int              `yaml:"url_count"` // Distinct canonical URLs across all groups
	Files         []FileMetadata   `yaml:"files"`
}

// FileMetadata holds metadata for a single generated sitemap file.
type FileMetadata struct {
	Path     string     `yaml:"path"` // Relative to the site output dir
	URLCount int        `yaml:"url_count,omitempty"`
	Status   FileStatus `yaml:"status"`
	Error    string     `yaml:"error,omitempty"`
}
