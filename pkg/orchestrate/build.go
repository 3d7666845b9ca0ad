package orchestrate

import (
	"fmt"
	"maps"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-builder/pkg/config"
	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/sitemap"
)

// paramLanguageCode is filled with the route's language when a route fans out over languages
const paramLanguageCode = "languageCode"

// PlannedFile is one file of a dry run
type PlannedFile struct {
	Path     string
	URL      string
	URLCount int
}

// SitePlan is what a generation run would write for one site
type SitePlan struct {
	SiteKey       string
	IndexPath     string
	RouteCount    int
	ExcludedCount int
	URLCount      int
	Files         []PlannedFile
}

// SitemapOptions resolves the effective sitemap options for a site
func SitemapOptions(appCfg config.AppConfig, siteCfg config.SiteConfig) sitemap.Options {
	opts := sitemap.DefaultOptions()
	opts.WebsiteURL = siteCfg.WebsiteURL
	opts.RootFolderPath = siteCfg.RootFolderPath
	opts.ChangeFrequency = config.GetEffectiveChangeFrequency(siteCfg, appCfg)
	opts.CrawlPriority = config.GetEffectiveCrawlPriority(siteCfg, appCfg)
	opts.MaximumURLCountPerFile = config.GetEffectiveMaximumURLCount(siteCfg, appCfg)
	opts.Compress = config.GetEffectiveCompress(siteCfg, appCfg)
	opts.Minify = config.GetEffectiveMinify(siteCfg, appCfg)
	opts.ExcludePatterns = siteCfg.ExcludePatterns
	if appCfg.NumWorkers > 0 {
		opts.NumWorkers = appCfg.NumWorkers
	}
	return opts
}

// BuildSitemap creates a Sitemap for siteCfg and registers every configured route.
// siteCfg is expected to have passed Validate.
func BuildSitemap(appCfg config.AppConfig, siteCfg config.SiteConfig, log *logrus.Entry) (*sitemap.Sitemap, error) {
	sm, err := sitemap.New(SitemapOptions(appCfg, siteCfg), log)
	if err != nil {
		return nil, err
	}

	for i, rc := range siteCfg.Routes {
		for _, spec := range ExpandRoute(rc, siteCfg.Languages) {
			if _, err := sm.Add(spec); err != nil {
				return nil, fmt.Errorf("route %d: %w", i+1, err)
			}
		}
	}
	return sm, nil
}

// ExpandRoute fans one configured route out into route specs: one per parameter set, and within
// each set one per language. Site languages apply only to patterns containing {languageCode}
// that name no language of their own.
func ExpandRoute(rc config.RouteConfig, siteLanguages []string) []sitemap.RouteSpec {
	languages := rc.Languages
	switch {
	case rc.Language != "":
		languages = []string{rc.Language}
	case len(languages) == 0 && strings.Contains(rc.Pattern, "{"+paramLanguageCode+"}"):
		languages = siteLanguages
	}
	if len(languages) == 0 {
		languages = []string{""}
	}

	sets := rc.ParameterSets
	if len(sets) == 0 {
		sets = []map[string]any{nil}
	}

	specs := make([]sitemap.RouteSpec, 0, len(sets)*len(languages))
	for _, set := range sets {
		for _, lang := range languages {
			spec := sitemap.RouteSpec{
				Pattern:          rc.Pattern,
				Path:             rc.Path,
				SubFolderPath:    rc.SubFolder,
				LanguageCode:     lang,
				ModificationDate: rc.LastModified,
				ChangeFrequency:  models.ParseChangeFrequency(rc.ChangeFrequency),
				CrawlPriority:    rc.CrawlPriority,
			}
			if rc.Pattern != "" {
				params := make(map[string]any, len(rc.Parameters)+len(set)+1)
				maps.Copy(params, rc.Parameters)
				maps.Copy(params, set)
				if lang != "" {
					params[paramLanguageCode] = lang
				}
				spec.Parameters = params
			}
			specs = append(specs, spec)
		}
	}
	return specs
}

// PlanSite builds the site's sitemap without writing anything
func PlanSite(appCfg config.AppConfig, siteKey string, log *logrus.Entry) (*SitePlan, error) {
	siteCfg, err := appCfg.Site(siteKey)
	if err != nil {
		return nil, err
	}
	if _, err := siteCfg.Validate(); err != nil {
		return nil, err
	}

	sm, err := BuildSitemap(appCfg, siteCfg, log.WithField("site", siteKey))
	if err != nil {
		return nil, err
	}

	plan := &SitePlan{
		SiteKey:       siteKey,
		IndexPath:     sm.IndexPath(),
		RouteCount:    len(sm.Routes()),
		ExcludedCount: sm.ExcludedCount(),
	}
	for _, fd := range sm.Plan() {
		plan.Files = append(plan.Files, PlannedFile{
			Path:     sm.FilePath(fd),
			URL:      sm.FileURL(fd),
			URLCount: len(fd.CanonicalURLs),
		})
		plan.URLCount += len(fd.CanonicalURLs)
	}
	return plan, nil
}
