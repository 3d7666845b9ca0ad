package sitemap

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

const (
	DefaultMaximumURLCountPerFile = 50000
	DefaultCrawlPriority          = 0.5
	DefaultNumWorkers             = 4
)

// Options holds the registry-wide defaults and rendering settings.
// New fills an empty ChangeFrequency, a zero MaximumURLCountPerFile and a zero NumWorkers from DefaultOptions.
// CrawlPriority is taken as given, so a zero value means priority 0; start from DefaultOptions to get 0.5.
type Options struct {
	WebsiteURL             string                 // Prefix for every generated link, e.g. "https://cityviews.com/"
	ChangeFrequency        models.ChangeFrequency // Default <changefreq>
	CrawlPriority          float64                // Default <priority>
	RootFolderPath         string                 // Output root, empty or ending in '/'
	MaximumURLCountPerFile int                    // Canonical URLs per file before paginating
	NumWorkers             int                    // Concurrent file writes
	Compress               bool                   // Gzip every file and use .xml.gz names
	Minify                 bool                   // Strip indentation from the XML
	ExcludePatterns        []string               // Doublestar globs matched against the route path
}

// DefaultOptions returns the defaults used when a setting is not configured
func DefaultOptions() Options {
	return Options{
		ChangeFrequency:        models.ChangeFrequencyMonthly,
		CrawlPriority:          DefaultCrawlPriority,
		MaximumURLCountPerFile: DefaultMaximumURLCountPerFile,
		NumWorkers:             DefaultNumWorkers,
	}
}

// Sitemap accumulates routes and renders them into a sitemap index plus paginated url sets.
// Routes are append-only. Add is safe for concurrent use, but routes must not be added while a render is running.
type Sitemap struct {
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	routes   []*Route
	excluded int
}

// New validates opts and returns an empty Sitemap
func New(opts Options, log *logrus.Entry) (*Sitemap, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if opts.RootFolderPath != "" && !strings.HasSuffix(opts.RootFolderPath, "/") {
		return nil, fmt.Errorf("%w: rootFolderPath '%s' must be empty or end with '/'", utils.ErrPreconditionViolation, opts.RootFolderPath)
	}
	if opts.MaximumURLCountPerFile == 0 {
		opts.MaximumURLCountPerFile = DefaultMaximumURLCountPerFile
	}
	if opts.MaximumURLCountPerFile < 0 {
		return nil, fmt.Errorf("%w: maximumUrlCountPerFile must be > 0, got %d", utils.ErrPreconditionViolation, opts.MaximumURLCountPerFile)
	}
	if opts.ChangeFrequency == "" {
		opts.ChangeFrequency = models.ChangeFrequencyMonthly
	}
	opts.ChangeFrequency = models.ParseChangeFrequency(string(opts.ChangeFrequency))
	if !opts.ChangeFrequency.IsValid() {
		return nil, fmt.Errorf("%w: changeFrequency '%s' is not a valid sitemap change frequency", utils.ErrPreconditionViolation, opts.ChangeFrequency)
	}
	if !(opts.CrawlPriority >= 0 && opts.CrawlPriority <= 1) {
		return nil, fmt.Errorf("%w: crawlPriority %s must be within [0, 1]", utils.ErrPreconditionViolation, FormatPriority(opts.CrawlPriority))
	}
	for _, pattern := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: exclude pattern '%s' is not a valid glob", utils.ErrPreconditionViolation, pattern)
		}
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultNumWorkers
	}
	opts.ExcludePatterns = append([]string(nil), opts.ExcludePatterns...)

	return &Sitemap{
		opts: opts,
		log:  log.WithField("component", "sitemap"),
	}, nil
}

// Options returns the validated options the Sitemap was built with
func (s *Sitemap) Options() Options {
	return s.opts
}

// --- Route Registry ---

// Add registers one route. It is the single entry point behind AddRoute and AddPath.
// A route matching an exclude pattern is dropped: Add returns a nil route and a nil error, and ExcludedCount grows.
func (s *Sitemap) Add(spec RouteSpec) (*Route, error) {
	route, err := newRoute(spec, s.opts)
	if err != nil {
		return nil, err
	}

	if pattern, ok := s.matchExclude(route); ok {
		s.log.WithFields(logrus.Fields{"url": route.URL(), "pattern": pattern}).Debug("Route excluded")
		s.mu.Lock()
		s.excluded++
		s.mu.Unlock()
		return nil, nil
	}

	s.mu.Lock()
	s.routes = append(s.routes, route)
	s.mu.Unlock()
	return route, nil
}

// AddRoute registers a route whose pattern contains {name} placeholders filled from parameters.
// The reserved parameters changeFrequency and crawlPriority override the registry defaults.
func (s *Sitemap) AddRoute(pattern string, parameters map[string]any, subFolderPath, languageCode string) (*Route, error) {
	return s.Add(RouteSpec{
		Pattern:       pattern,
		Parameters:    parameters,
		SubFolderPath: subFolderPath,
		LanguageCode:  languageCode,
	})
}

// RouteOption customizes a route registered with AddPath
type RouteOption func(*RouteSpec)

// WithLanguage sets the route's language code
func WithLanguage(code string) RouteOption {
	return func(spec *RouteSpec) { spec.LanguageCode = code }
}

// WithModificationDate sets the route's <lastmod>
func WithModificationDate(t time.Time) RouteOption {
	return func(spec *RouteSpec) { spec.ModificationDate = t }
}

func WithChangeFrequency(freq models.ChangeFrequency) RouteOption {
	return func(spec *RouteSpec) { spec.ChangeFrequency = freq }
}

func WithCrawlPriority(priority float64) RouteOption {
	return func(spec *RouteSpec) { spec.CrawlPriority = &priority }
}

// AddPath registers a route from an already-resolved path such as "fr/city/paris".
func (s *Sitemap) AddPath(path, subFolderPath string, opts ...RouteOption) (*Route, error) {
	spec := RouteSpec{Path: path, SubFolderPath: subFolderPath}
	for _, opt := range opts {
		opt(&spec)
	}
	return s.Add(spec)
}

// Routes returns a snapshot of the registered routes in registration order
func (s *Sitemap) Routes() []*Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Route(nil), s.routes...)
}

// ExcludedCount returns how many routes were dropped by exclude patterns
func (s *Sitemap) ExcludedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.excluded
}

func (s *Sitemap) matchExclude(route *Route) (string, bool) {
	if len(s.opts.ExcludePatterns) == 0 {
		return "", false
	}
	rel := strings.TrimPrefix(route.RelativePath(), "/")
	for _, pattern := range s.opts.ExcludePatterns {
		// Patterns were validated in New, so Match cannot fail here
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return pattern, true
		}
	}
	return "", false
}
