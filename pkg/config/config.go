package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

const (
	DefaultOutputBaseDir          = "./sitemaps"
	DefaultStateDir               = "./sitemap_state"
	DefaultNumWorkers             = 4
	DefaultMaximumURLCountPerFile = 50000
	DefaultCrawlPriority          = 0.5
	DefaultWatchDebounce          = 2 * time.Second
	DefaultMetadataFilename       = "run_metadata.yaml"
)

// RouteConfig describes one route, or a family of routes when languages or parameter_sets are given.
// Exactly one of Pattern and Path may be set; neither means the website root.
type RouteConfig struct {
	Pattern         string           `yaml:"pattern,omitempty"`
	Path            string           `yaml:"path,omitempty"`
	SubFolder       string           `yaml:"sub_folder"`
	Language        string           `yaml:"language,omitempty"`
	Languages       []string         `yaml:"languages,omitempty"`      // One route per language, languageCode injected into parameters
	Parameters      map[string]any   `yaml:"parameters,omitempty"`     // Shared by every parameter set
	ParameterSets   []map[string]any `yaml:"parameter_sets,omitempty"` // One route per set, merged over Parameters
	ChangeFrequency string           `yaml:"change_frequency,omitempty"`
	CrawlPriority   *float64         `yaml:"crawl_priority,omitempty"`
	LastModified    time.Time        `yaml:"last_modified,omitempty"`
}

// SiteConfig holds configuration specific to a single website
type SiteConfig struct {
	WebsiteURL             string        `yaml:"website_url"`
	RootFolderPath         string        `yaml:"root_folder_path,omitempty"`
	ChangeFrequency        string        `yaml:"change_frequency,omitempty"`
	CrawlPriority          *float64      `yaml:"crawl_priority,omitempty"`
	MaximumURLCountPerFile *int          `yaml:"maximum_url_count_per_file,omitempty"`
	Compress               *bool         `yaml:"compress,omitempty"`
	Minify                 *bool         `yaml:"minify,omitempty"`
	Incremental            *bool         `yaml:"incremental,omitempty"`
	ExcludePatterns        []string      `yaml:"exclude_patterns,omitempty"` // Doublestar globs over the route path
	Languages              []string      `yaml:"languages,omitempty"`        // Default languages for patterns containing {languageCode}
	Routes                 []RouteConfig `yaml:"routes"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	OutputBaseDir          string                `yaml:"output_base_dir"`
	StateDir               string                `yaml:"state_dir"`
	NumWorkers             int                   `yaml:"num_workers"`
	Incremental            bool                  `yaml:"incremental,omitempty"`
	Compress               bool                  `yaml:"compress,omitempty"`
	Minify                 bool                  `yaml:"minify,omitempty"`
	DefaultChangeFrequency string                `yaml:"default_change_frequency,omitempty"`
	DefaultCrawlPriority   *float64              `yaml:"default_crawl_priority,omitempty"`
	MaximumURLCountPerFile int                   `yaml:"maximum_url_count_per_file,omitempty"`
	WatchDebounce          time.Duration         `yaml:"watch_debounce,omitempty"`
	EnableMetadataYAML     bool                  `yaml:"enable_metadata_yaml,omitempty"`
	MetadataYAMLFilename   string                `yaml:"metadata_yaml_filename,omitempty"`
	Sites                  map[string]SiteConfig `yaml:"sites"`
}

// LoadConfig reads and parses the YAML file at path. Defaults are not applied; call Validate.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", utils.ErrFilesystem, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into an AppConfig
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", utils.ErrParsing, err)
	}
	return &cfg, nil
}

// Site returns the site config for key
func (c *AppConfig) Site(key string) (SiteConfig, error) {
	site, ok := c.Sites[key]
	if !ok {
		return SiteConfig{}, fmt.Errorf("%w: '%s'", utils.ErrSiteNotFound, key)
	}
	return site, nil
}

// GetEffectiveChangeFrequency returns the site frequency, the global default, or monthly
func GetEffectiveChangeFrequency(siteCfg SiteConfig, appCfg AppConfig) models.ChangeFrequency {
	if siteCfg.ChangeFrequency != "" {
		return models.ParseChangeFrequency(siteCfg.ChangeFrequency)
	}
	if appCfg.DefaultChangeFrequency != "" {
		return models.ParseChangeFrequency(appCfg.DefaultChangeFrequency)
	}
	return models.ChangeFrequencyMonthly
}

// GetEffectiveCrawlPriority returns the site priority, the global default, or 0.5
func GetEffectiveCrawlPriority(siteCfg SiteConfig, appCfg AppConfig) float64 {
	if siteCfg.CrawlPriority != nil {
		return *siteCfg.CrawlPriority
	}
	if appCfg.DefaultCrawlPriority != nil {
		return *appCfg.DefaultCrawlPriority
	}
	return DefaultCrawlPriority
}

// GetEffectiveMaximumURLCount determines the effective page size
func GetEffectiveMaximumURLCount(siteCfg SiteConfig, appCfg AppConfig) int {
	if siteCfg.MaximumURLCountPerFile != nil {
		return *siteCfg.MaximumURLCountPerFile
	}
	if appCfg.MaximumURLCountPerFile > 0 {
		return appCfg.MaximumURLCountPerFile
	}
	return DefaultMaximumURLCountPerFile
}

func GetEffectiveCompress(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.Compress != nil {
		return *siteCfg.Compress
	}
	return appCfg.Compress
}

func GetEffectiveMinify(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.Minify != nil {
		return *siteCfg.Minify
	}
	return appCfg.Minify
}

// GetEffectiveIncremental determines whether unchanged files are skipped for the site
func GetEffectiveIncremental(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.Incremental != nil {
		return *siteCfg.Incremental
	}
	return appCfg.Incremental
}

// GetEffectiveMetadataYAMLFilename determines the filename for the run metadata.
func GetEffectiveMetadataYAMLFilename(appCfg AppConfig) string {
	if appCfg.MetadataYAMLFilename != "" {
		return appCfg.MetadataYAMLFilename
	}
	return DefaultMetadataFilename
}
