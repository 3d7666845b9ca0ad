package orchestrate

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemap-builder/pkg/config"
	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func intPtr(i int) *int {
	return &i
}

func testAppConfig(siteKeys ...string) *config.AppConfig {
	sites := make(map[string]config.SiteConfig, len(siteKeys))
	for _, key := range siteKeys {
		sites[key] = config.SiteConfig{WebsiteURL: "https://" + key + ".example.com/"}
	}
	return &config.AppConfig{
		Sites: sites,
	}
}

// cityviewsSite has one main route and three cities in two languages
func cityviewsSite() config.SiteConfig {
	return config.SiteConfig{
		WebsiteURL:             "https://cityviews.com/",
		RootFolderPath:         "sitemap/",
		MaximumURLCountPerFile: intPtr(2),
		Languages:              []string{"en", "fr"},
		Routes: []config.RouteConfig{
			{Path: "cities", SubFolder: "main/"},
			{
				Pattern:   "{languageCode}/city/{city}",
				SubFolder: "city/",
				ParameterSets: []map[string]any{
					{"city": "paris"},
					{"city": "rome"},
					{"city": "oslo"},
				},
			},
		},
	}
}

func newRunConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		OutputBaseDir:      "out",
		StateDir:           t.TempDir(),
		EnableMetadataYAML: true,
		Sites: map[string]config.SiteConfig{
			"cityviews": cityviewsSite(),
		},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func runSites(t *testing.T, cfg *config.AppConfig, fs afero.Fs, keys []string, opts ...Option) []SiteResult {
	t.Helper()
	opts = append([]Option{WithFs(fs)}, opts...)
	return NewOrchestrator(context.Background(), cfg, keys, testLogger(), opts...).Run()
}

// failingFs fails every open whose path ends with suffix
type failingFs struct {
	afero.Fs
	suffix string
}

func (f failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.HasSuffix(name, f.suffix) {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestValidateSiteKeys(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		cfg := testAppConfig("docs", "blog")
		err := ValidateSiteKeys(cfg, []string{"docs", "blog"})
		assert.NoError(t, err)
	})

	t.Run("one invalid", func(t *testing.T) {
		cfg := testAppConfig("docs", "blog")
		err := ValidateSiteKeys(cfg, []string{"docs", "missing"})
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrSiteNotFound)
		assert.Contains(t, err.Error(), "missing")
		assert.Contains(t, err.Error(), "[blog docs]")
	})

	t.Run("empty keys no error", func(t *testing.T) {
		cfg := testAppConfig("docs")
		err := ValidateSiteKeys(cfg, []string{})
		assert.NoError(t, err)
	})

	t.Run("empty config", func(t *testing.T) {
		cfg := testAppConfig()
		err := ValidateSiteKeys(cfg, []string{"anything"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anything")
	})
}

func TestGetAllSiteKeys(t *testing.T) {
	t.Run("multiple sites sorted", func(t *testing.T) {
		cfg := testAppConfig("gamma", "alpha", "beta")
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, GetAllSiteKeys(cfg))
	})

	t.Run("no sites", func(t *testing.T) {
		cfg := testAppConfig()
		assert.Empty(t, GetAllSiteKeys(cfg))
	})
}

func TestExpandRoute(t *testing.T) {
	priority := 0.9
	modified := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	t.Run("literal path", func(t *testing.T) {
		specs := ExpandRoute(config.RouteConfig{
			Path:            "cities",
			SubFolder:       "main/",
			Language:        "en",
			ChangeFrequency: "Daily",
			CrawlPriority:   &priority,
			LastModified:    modified,
		}, []string{"en", "fr"})

		require.Len(t, specs, 1)
		assert.Equal(t, "cities", specs[0].Path)
		assert.Equal(t, "en", specs[0].LanguageCode)
		assert.Equal(t, models.ChangeFrequencyDaily, specs[0].ChangeFrequency)
		assert.Equal(t, &priority, specs[0].CrawlPriority)
		assert.Equal(t, modified, specs[0].ModificationDate)
		assert.Nil(t, specs[0].Parameters)
	})

	t.Run("site languages fill languageCode patterns", func(t *testing.T) {
		specs := ExpandRoute(config.RouteConfig{
			Pattern:    "{languageCode}/about",
			SubFolder:  "main/",
			Parameters: map[string]any{"x": 1},
		}, []string{"en", "fr"})

		require.Len(t, specs, 2)
		assert.Equal(t, "en", specs[0].LanguageCode)
		assert.Equal(t, map[string]any{"x": 1, "languageCode": "en"}, specs[0].Parameters)
		assert.Equal(t, "fr", specs[1].LanguageCode)
		assert.Equal(t, map[string]any{"x": 1, "languageCode": "fr"}, specs[1].Parameters)
	})

	t.Run("site languages ignored without placeholder", func(t *testing.T) {
		specs := ExpandRoute(config.RouteConfig{Pattern: "about", SubFolder: "main/"}, []string{"en", "fr"})
		require.Len(t, specs, 1)
		assert.Empty(t, specs[0].LanguageCode)
	})

	t.Run("parameter sets outer, languages inner", func(t *testing.T) {
		specs := ExpandRoute(config.RouteConfig{
			Pattern:       "{languageCode}/city/{city}",
			SubFolder:     "city/",
			Languages:     []string{"de", "en"},
			Parameters:    map[string]any{"city": "default"},
			ParameterSets: []map[string]any{{"city": "paris"}, {"city": "rome"}},
		}, []string{"fr"})

		require.Len(t, specs, 4)
		var got []string
		for _, s := range specs {
			got = append(got, s.LanguageCode+":"+s.Parameters["city"].(string))
		}
		assert.Equal(t, []string{"de:paris", "en:paris", "de:rome", "en:rome"}, got)
	})
}

func TestBuildSitemap(t *testing.T) {
	appCfg := config.AppConfig{NumWorkers: 3, DefaultChangeFrequency: "weekly", Compress: true}
	siteCfg := cityviewsSite()
	siteCfg.ExcludePatterns = []string{"*/city/rome"}

	sm, err := BuildSitemap(appCfg, siteCfg, testLogger())
	require.NoError(t, err)

	opts := sm.Options()
	assert.Equal(t, "https://cityviews.com/", opts.WebsiteURL)
	assert.Equal(t, 2, opts.MaximumURLCountPerFile)
	assert.Equal(t, 3, opts.NumWorkers)
	assert.Equal(t, models.ChangeFrequencyWeekly, opts.ChangeFrequency)
	assert.True(t, opts.Compress)

	assert.Len(t, sm.Routes(), 5)
	assert.Equal(t, 2, sm.ExcludedCount())
}

func TestBuildSitemap_RouteError(t *testing.T) {
	siteCfg := cityviewsSite()
	siteCfg.Routes = append(siteCfg.Routes, config.RouteConfig{Pattern: "landmark/{name}", SubFolder: "landmark/"})

	_, err := BuildSitemap(config.AppConfig{}, siteCfg, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrPreconditionViolation)
	assert.Contains(t, err.Error(), "route 3")
}

func TestPlanSite(t *testing.T) {
	cfg := newRunConfig(t)

	plan, err := PlanSite(*cfg, "cityviews", testLogger())
	require.NoError(t, err)

	assert.Equal(t, "sitemap/sitemap.xml", plan.IndexPath)
	assert.Equal(t, 7, plan.RouteCount)
	assert.Equal(t, 4, plan.URLCount)
	assert.Equal(t, []PlannedFile{
		{Path: "sitemap/city/sitemap.xml", URL: "https://cityviews.com/sitemap/city/sitemap.xml", URLCount: 2},
		{Path: "sitemap/city/sitemap_2.xml", URL: "https://cityviews.com/sitemap/city/sitemap_2.xml", URLCount: 1},
		{Path: "sitemap/main/sitemap.xml", URL: "https://cityviews.com/sitemap/main/sitemap.xml", URLCount: 1},
	}, plan.Files)

	_, err = PlanSite(*cfg, "missing", testLogger())
	assert.ErrorIs(t, err, utils.ErrSiteNotFound)
}

func TestOrchestrator_Run(t *testing.T) {
	cfg := newRunConfig(t)
	cfg.Sites["broken"] = config.SiteConfig{RootFolderPath: "sitemap/"}
	fs := afero.NewMemMapFs()

	logger, hook := test.NewNullLogger()
	results := NewOrchestrator(context.Background(), cfg, []string{"cityviews", "broken", "missing"}, logrus.NewEntry(logger), WithFs(fs)).Run()
	require.Len(t, results, 3)

	ok := results[0]
	assert.Equal(t, "cityviews", ok.SiteKey)
	assert.True(t, ok.Success)
	assert.NoError(t, ok.Error)
	assert.Equal(t, models.GenerationStatusSuccess, ok.Status)
	assert.NotEmpty(t, ok.RunID)
	assert.Equal(t, 7, ok.RouteCount)
	assert.Equal(t, 4, ok.URLCount)
	assert.Equal(t, 4, ok.FilesWritten)

	for _, p := range []string{"sitemap/sitemap.xml", "sitemap/city/sitemap.xml", "sitemap/city/sitemap_2.xml", "sitemap/main/sitemap.xml"} {
		exists, err := afero.Exists(fs, "out/cityviews/"+p)
		require.NoError(t, err)
		assert.True(t, exists, p)
	}
	index, err := afero.ReadFile(fs, "out/cityviews/sitemap/sitemap.xml")
	require.NoError(t, err)
	assert.Contains(t, string(index), "<loc>https://cityviews.com/sitemap/city/sitemap_2.xml</loc>")

	broken := results[1]
	assert.False(t, broken.Success)
	assert.Equal(t, models.GenerationStatusFailure, broken.Status)
	assert.ErrorIs(t, broken.Error, utils.ErrConfigValidation)

	missing := results[2]
	assert.False(t, missing.Success)
	assert.ErrorIs(t, missing.Error, utils.ErrSiteNotFound)

	var summary bool
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "Total: 3 sites (1 success, 2 failed)") {
			summary = true
		}
	}
	assert.True(t, summary, "summary line logged")

	meta, err := ReadRunMetadata(fs, cfg, "cityviews")
	require.NoError(t, err)
	assert.Equal(t, ok.RunID, meta.RunID)
	assert.Equal(t, models.GenerationStatusSuccess, meta.Status)
	assert.Equal(t, "https://cityviews.com/", meta.WebsiteURL)
	assert.Equal(t, 4, meta.URLCount)
	require.Len(t, meta.Files, 4)
	assert.Equal(t, models.FileMetadata{Path: "sitemap/city/sitemap.xml", URLCount: 2, Status: models.FileStatusWritten}, meta.Files[0])
	assert.Equal(t, "sitemap/sitemap.xml", meta.Files[3].Path)
	assert.False(t, meta.EndTime.Before(meta.StartTime))
}

func TestOrchestrator_Incremental(t *testing.T) {
	cfg := newRunConfig(t)
	cfg.Incremental = true
	fs := afero.NewMemMapFs()

	first := runSites(t, cfg, fs, []string{"cityviews"})[0]
	require.NoError(t, first.Error)
	assert.Equal(t, 4, first.FilesWritten)
	assert.Zero(t, first.FilesSkipped)

	second := runSites(t, cfg, fs, []string{"cityviews"})[0]
	require.NoError(t, second.Error)
	assert.Zero(t, second.FilesWritten)
	assert.Equal(t, 4, second.FilesSkipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	meta, err := ReadRunMetadata(fs, cfg, "cityviews")
	require.NoError(t, err)
	for _, f := range meta.Files {
		assert.Equal(t, models.FileStatusSkipped, f.Status, f.Path)
	}

	// Three cities now fit one file, so city/sitemap_2.xml is stale
	site := cfg.Sites["cityviews"]
	site.MaximumURLCountPerFile = intPtr(3)
	cfg.Sites["cityviews"] = site

	third := runSites(t, cfg, fs, []string{"cityviews"})[0]
	require.NoError(t, third.Error)
	assert.Equal(t, 2, third.FilesWritten, "city page and index changed")
	assert.Equal(t, 1, third.FilesSkipped, "main unchanged")
	assert.Equal(t, 1, third.FilesPruned)

	exists, err := afero.Exists(fs, "out/cityviews/sitemap/city/sitemap_2.xml")
	require.NoError(t, err)
	assert.False(t, exists)

	stateLog, err := os.ReadFile(StateLogPath(cfg, "cityviews"))
	require.NoError(t, err)
	assert.Contains(t, string(stateLog), "sitemap/city/sitemap.xml\t")
	assert.NotContains(t, string(stateLog), "sitemap_2.xml")

	full := runSites(t, cfg, fs, []string{"cityviews"}, WithFullRun(true))[0]
	require.NoError(t, full.Error)
	assert.Equal(t, 3, full.FilesWritten)
	assert.Zero(t, full.FilesSkipped)
}

func TestOrchestrator_FullRunPrunesStaleFiles(t *testing.T) {
	cfg := newRunConfig(t)
	cfg.Incremental = true
	fs := afero.NewMemMapFs()

	first := runSites(t, cfg, fs, []string{"cityviews"})[0]
	require.NoError(t, first.Error)
	exists, err := afero.Exists(fs, "out/cityviews/sitemap/city/sitemap_2.xml")
	require.NoError(t, err)
	require.True(t, exists)

	site := cfg.Sites["cityviews"]
	site.MaximumURLCountPerFile = intPtr(3)
	cfg.Sites["cityviews"] = site

	full := runSites(t, cfg, fs, []string{"cityviews"}, WithFullRun(true))[0]
	require.NoError(t, full.Error)
	assert.Equal(t, 3, full.FilesWritten)
	assert.Zero(t, full.FilesSkipped)
	assert.Equal(t, 1, full.FilesPruned)

	exists, err = afero.Exists(fs, "out/cityviews/sitemap/city/sitemap_2.xml")
	require.NoError(t, err)
	assert.False(t, exists)

	again := runSites(t, cfg, fs, []string{"cityviews"})[0]
	require.NoError(t, again.Error)
	assert.Equal(t, 3, again.FilesSkipped)
	assert.Zero(t, again.FilesPruned)
}

func TestOrchestrator_PartialFailure(t *testing.T) {
	cfg := newRunConfig(t)
	fs := failingFs{Fs: afero.NewMemMapFs(), suffix: "main/sitemap.xml"}

	result := runSites(t, cfg, fs, []string{"cityviews"})[0]

	assert.False(t, result.Success)
	assert.Equal(t, models.GenerationStatusPartial, result.Status)
	assert.ErrorIs(t, result.Error, utils.ErrWriteFailure)
	assert.ErrorIs(t, result.Error, os.ErrPermission)
	assert.Equal(t, 1, result.FilesFailed)
	assert.Equal(t, 3, result.FilesWritten)

	meta, err := ReadRunMetadata(fs, cfg, "cityviews")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusPartial, meta.Status)
	require.Len(t, meta.Files, 4)
	assert.Equal(t, "sitemap/main/sitemap.xml", meta.Files[2].Path)
	assert.Equal(t, models.FileStatusFailed, meta.Files[2].Status)
	assert.NotEmpty(t, meta.Files[2].Error)
}
