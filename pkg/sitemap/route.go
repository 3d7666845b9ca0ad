package sitemap

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

// Reserved parameter names. They are always present in Route.Parameters and may be overridden per route.
const (
	ParamChangeFrequency = "changeFrequency"
	ParamCrawlPriority   = "crawlPriority"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// RouteSpec is the normalized input for registering a route.
// Pattern and Path are mutually exclusive; leaving both empty registers the website root.
type RouteSpec struct {
	Pattern          string         // Path with {name} placeholders substituted from Parameters
	Path             string         // Already-resolved path, appended verbatim
	Parameters       map[string]any // Placeholder values (string, integer, float, bool or fmt.Stringer)
	SubFolderPath    string         // Output group, e.g. "landmark/"
	LanguageCode     string         // Optional hreflang tag
	ModificationDate time.Time      // Optional <lastmod>
	ChangeFrequency  models.ChangeFrequency
	CrawlPriority    *float64
}

// Route is one URL within one sub-folder group
type Route struct {
	Pattern          string
	Path             string
	Parameters       map[string]string // Formatted values, including the reserved entries
	SubFolderPath    string
	WebsiteURL       string
	LanguageCode     string
	ModificationDate time.Time
	ChangeFrequency  models.ChangeFrequency
	CrawlPriority    float64
}

// URL returns the website URL followed by the route's path, with placeholders percent-encoded.
func (r *Route) URL() string {
	if r.Pattern == "" {
		return r.WebsiteURL + r.Path
	}
	resolved := placeholderPattern.ReplaceAllStringFunc(r.Pattern, func(token string) string {
		value, ok := r.Parameters[token[1:len(token)-1]]
		if !ok {
			return token
		}
		return EncodeComponent(value)
	})
	return r.WebsiteURL + resolved
}

// CanonicalURL returns the URL with the route's language prefix removed.
// Routes for different languages of the same page share a canonical URL.
func (r *Route) CanonicalURL() string {
	u := r.URL()
	if r.LanguageCode == "" {
		return u
	}

	prefix := r.WebsiteURL + r.LanguageCode
	if u == prefix {
		return r.WebsiteURL
	}
	if strings.HasPrefix(u, prefix+"/") {
		return r.WebsiteURL + u[len(prefix)+1:]
	}
	return u
}

// RelativePath returns the resolved URL without the website prefix. Exclude patterns match against it.
func (r *Route) RelativePath() string {
	return strings.TrimPrefix(r.URL(), r.WebsiteURL)
}

// componentUnescaper restores what URI component encoding leaves intact but QueryEscape does not
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes a placeholder value as a URI component.
// Unreserved characters and ! ' ( ) * are kept, everything else is escaped (space becomes %20).
func EncodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// FormatPriority renders a priority the way it appears in <priority>, e.g. "1", "0.7".
func FormatPriority(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// --- Route Construction ---

// newRoute validates spec and resolves it against the registry defaults
func newRoute(spec RouteSpec, opts Options) (*Route, error) {
	if err := validateSubFolderPath(spec.SubFolderPath); err != nil {
		return nil, err
	}
	if spec.Pattern != "" && spec.Path != "" {
		return nil, fmt.Errorf("%w: route has both pattern '%s' and path '%s'", utils.ErrPreconditionViolation, spec.Pattern, spec.Path)
	}

	params := make(map[string]string, len(spec.Parameters)+2)
	for name, raw := range spec.Parameters {
		if name == ParamChangeFrequency || name == ParamCrawlPriority {
			continue
		}
		value, err := formatParameter(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter '%s': %v", utils.ErrPreconditionViolation, name, err)
		}
		params[name] = value
	}

	freq, err := resolveChangeFrequency(spec, opts.ChangeFrequency)
	if err != nil {
		return nil, err
	}
	priority, err := resolveCrawlPriority(spec, opts.CrawlPriority)
	if err != nil {
		return nil, err
	}
	params[ParamChangeFrequency] = string(freq)
	params[ParamCrawlPriority] = FormatPriority(priority)

	for _, match := range placeholderPattern.FindAllStringSubmatch(spec.Pattern, -1) {
		if _, ok := params[match[1]]; !ok {
			return nil, fmt.Errorf("%w: placeholder {%s} in pattern '%s' has no parameter", utils.ErrPreconditionViolation, match[1], spec.Pattern)
		}
	}

	return &Route{
		Pattern:          spec.Pattern,
		Path:             spec.Path,
		Parameters:       params,
		SubFolderPath:    spec.SubFolderPath,
		WebsiteURL:       opts.WebsiteURL,
		LanguageCode:     spec.LanguageCode,
		ModificationDate: spec.ModificationDate,
		ChangeFrequency:  freq,
		CrawlPriority:    priority,
	}, nil
}

func validateSubFolderPath(p string) error {
	if len(p) <= 1 || !strings.HasSuffix(p, "/") {
		return fmt.Errorf("%w: subFolderPath '%s' must be longer than one character and end with '/'", utils.ErrPreconditionViolation, p)
	}
	return nil
}

// resolveChangeFrequency: explicit field, then the reserved parameter, then the default
func resolveChangeFrequency(spec RouteSpec, fallback models.ChangeFrequency) (models.ChangeFrequency, error) {
	freq := models.ParseChangeFrequency(string(spec.ChangeFrequency))
	if freq == models.ChangeFrequencyUnset {
		if raw, ok := spec.Parameters[ParamChangeFrequency]; ok && raw != nil {
			s, err := formatParameter(raw)
			if err != nil {
				return "", fmt.Errorf("%w: parameter '%s': %v", utils.ErrPreconditionViolation, ParamChangeFrequency, err)
			}
			freq = models.ParseChangeFrequency(s)
		}
	}
	if freq == models.ChangeFrequencyUnset {
		freq = fallback
	}
	if !freq.IsValid() {
		return "", fmt.Errorf("%w: changeFrequency '%s' is not a valid sitemap change frequency", utils.ErrPreconditionViolation, freq)
	}
	return freq, nil
}

// resolveCrawlPriority: explicit field, then the reserved parameter, then the default
func resolveCrawlPriority(spec RouteSpec, fallback float64) (float64, error) {
	priority := fallback
	if spec.CrawlPriority != nil {
		priority = *spec.CrawlPriority
	} else if raw, ok := spec.Parameters[ParamCrawlPriority]; ok && raw != nil {
		p, err := priorityFromParameter(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: parameter '%s': %v", utils.ErrPreconditionViolation, ParamCrawlPriority, err)
		}
		priority = p
	}
	if !(priority >= 0 && priority <= 1) {
		return 0, fmt.Errorf("%w: crawlPriority %s must be within [0, 1]", utils.ErrPreconditionViolation, FormatPriority(priority))
	}
	return priority, nil
}

func priorityFromParameter(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return 0, fmt.Errorf("unsupported priority type %T", raw)
}

// formatParameter renders a placeholder value as text
func formatParameter(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case models.ChangeFrequency:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("unsupported value type %T", raw)
}
