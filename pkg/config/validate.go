package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/language"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, fmt.Sprintf("num_workers should be > 0, defaulting to %d", DefaultNumWorkers))
		c.NumWorkers = DefaultNumWorkers
	}

	// OutputBaseDir
	if c.OutputBaseDir == "" {
		warnings = append(warnings, fmt.Sprintf("output_base_dir is empty, defaulting to '%s'", DefaultOutputBaseDir))
		c.OutputBaseDir = DefaultOutputBaseDir
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, fmt.Sprintf("state_dir is empty, defaulting to '%s'", DefaultStateDir))
		c.StateDir = DefaultStateDir
	}

	// MaximumURLCountPerFile
	if c.MaximumURLCountPerFile < 0 {
		warnings = append(warnings, fmt.Sprintf("maximum_url_count_per_file cannot be negative, defaulting to %d", DefaultMaximumURLCountPerFile))
	}
	if c.MaximumURLCountPerFile <= 0 {
		c.MaximumURLCountPerFile = DefaultMaximumURLCountPerFile
	}

	// DefaultChangeFrequency
	if c.DefaultChangeFrequency != "" && !models.ParseChangeFrequency(c.DefaultChangeFrequency).IsValid() {
		warnings = append(warnings, fmt.Sprintf("default_change_frequency '%s' is not a valid frequency, defaulting to 'monthly'", c.DefaultChangeFrequency))
		c.DefaultChangeFrequency = string(models.ChangeFrequencyMonthly)
	}

	// DefaultCrawlPriority
	if p := c.DefaultCrawlPriority; p != nil && !validPriority(*p) {
		warnings = append(warnings, fmt.Sprintf("default_crawl_priority %v must be within [0, 1], defaulting to %v", *p, DefaultCrawlPriority))
		def := DefaultCrawlPriority
		c.DefaultCrawlPriority = &def
	}

	// WatchDebounce
	if c.WatchDebounce < 0 {
		warnings = append(warnings, "watch_debounce cannot be negative, using default")
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = DefaultWatchDebounce
	}

	// Metadata YAML filename
	if c.EnableMetadataYAML && c.MetadataYAMLFilename == "" {
		warnings = append(warnings,
			"Global 'enable_metadata_yaml' is true but 'metadata_yaml_filename' is empty. "+
				"Defaulting to '"+DefaultMetadataFilename+"'")
		c.MetadataYAMLFilename = DefaultMetadataFilename
	}

	if len(c.Sites) == 0 {
		warnings = append(warnings, "no sites configured")
	}

	return warnings, nil // AppConfig validation never fails fatally
}

// Validate checks SiteConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place (website_url gains a trailing '/').
func (c *SiteConfig) Validate() (warnings []string, err error) {
	// Required: WebsiteURL
	if c.WebsiteURL == "" {
		return nil, fmt.Errorf("%w: site needs website_url", utils.ErrConfigValidation)
	}
	u, err := url.Parse(c.WebsiteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: website_url '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, c.WebsiteURL)
	}
	if !strings.HasSuffix(c.WebsiteURL, "/") {
		warnings = append(warnings, fmt.Sprintf("website_url '%s' does not end with '/', appending it", c.WebsiteURL))
		c.WebsiteURL += "/"
	}

	// RootFolderPath
	if c.RootFolderPath != "" && !strings.HasSuffix(c.RootFolderPath, "/") {
		return nil, fmt.Errorf("%w: root_folder_path '%s' must be empty or end with '/'", utils.ErrConfigValidation, c.RootFolderPath)
	}

	if c.ChangeFrequency != "" && !models.ParseChangeFrequency(c.ChangeFrequency).IsValid() {
		return nil, fmt.Errorf("%w: change_frequency '%s' is not a valid frequency", utils.ErrConfigValidation, c.ChangeFrequency)
	}
	if c.CrawlPriority != nil && !validPriority(*c.CrawlPriority) {
		return nil, fmt.Errorf("%w: crawl_priority %v must be within [0, 1]", utils.ErrConfigValidation, *c.CrawlPriority)
	}
	if c.MaximumURLCountPerFile != nil && *c.MaximumURLCountPerFile <= 0 {
		return nil, fmt.Errorf("%w: maximum_url_count_per_file must be > 0, got %d", utils.ErrConfigValidation, *c.MaximumURLCountPerFile)
	}

	for _, pattern := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: exclude pattern '%s' is not a valid glob", utils.ErrConfigValidation, pattern)
		}
	}

	warnings = append(warnings, languageWarnings("site", c.Languages)...)

	if len(c.Routes) == 0 {
		warnings = append(warnings, "site has no routes, only an empty index will be generated")
	}
	for i := range c.Routes {
		routeWarnings, err := c.Routes[i].Validate()
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i+1, err)
		}
		for _, w := range routeWarnings {
			warnings = append(warnings, fmt.Sprintf("route %d: %s", i+1, w))
		}
	}

	return warnings, nil
}

// Validate checks one route entry. Placeholders are resolved when the route is registered.
func (r *RouteConfig) Validate() (warnings []string, err error) {
	if r.Pattern != "" && r.Path != "" {
		return nil, fmt.Errorf("%w: pattern and path are mutually exclusive", utils.ErrConfigValidation)
	}
	if len(r.SubFolder) <= 1 || !strings.HasSuffix(r.SubFolder, "/") {
		return nil, fmt.Errorf("%w: sub_folder '%s' must be longer than one character and end with '/'", utils.ErrConfigValidation, r.SubFolder)
	}
	if r.Language != "" && len(r.Languages) > 0 {
		return nil, fmt.Errorf("%w: language and languages are mutually exclusive", utils.ErrConfigValidation)
	}
	if r.Pattern == "" && (len(r.Languages) > 0 || len(r.ParameterSets) > 0 || len(r.Parameters) > 0) {
		return nil, fmt.Errorf("%w: languages, parameters and parameter_sets need a pattern", utils.ErrConfigValidation)
	}
	if r.ChangeFrequency != "" && !models.ParseChangeFrequency(r.ChangeFrequency).IsValid() {
		return nil, fmt.Errorf("%w: change_frequency '%s' is not a valid frequency", utils.ErrConfigValidation, r.ChangeFrequency)
	}
	if r.CrawlPriority != nil && !validPriority(*r.CrawlPriority) {
		return nil, fmt.Errorf("%w: crawl_priority %v must be within [0, 1]", utils.ErrConfigValidation, *r.CrawlPriority)
	}

	if r.Language != "" {
		warnings = append(warnings, languageWarnings("route", []string{r.Language})...)
	}
	warnings = append(warnings, languageWarnings("route", r.Languages)...)
	return warnings, nil
}

// languageWarnings flags codes that are not BCP 47 tags. They are still used verbatim.
func languageWarnings(scope string, codes []string) []string {
	var warnings []string
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			warnings = append(warnings, fmt.Sprintf("%s language '%s' is listed more than once", scope, code))
			continue
		}
		seen[code] = true
		if _, err := language.Parse(code); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s language '%s' is not a valid BCP 47 tag", scope, code))
		}
	}
	return warnings
}

func validPriority(p float64) bool {
	return p >= 0 && p <= 1
}
