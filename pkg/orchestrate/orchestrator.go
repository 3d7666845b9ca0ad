package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/sitemap-builder/pkg/config"
	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/output"
	"github.com/Sriram-PR/sitemap-builder/pkg/sitemap"
	"github.com/Sriram-PR/sitemap-builder/pkg/storage"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

// SiteResult contains the result of generating a single site
type SiteResult struct {
	SiteKey       string
	RunID         string
	Success       bool
	Status        models.GenerationStatus
	Error         error
	RouteCount    int
	ExcludedCount int
	URLCount      int
	FilesWritten  int
	FilesSkipped  int
	FilesFailed   int
	FilesPruned   int
	Duration      time.Duration
}

const stateGCInterval = 5 * time.Minute

// Orchestrator generates sitemaps for multiple sites in parallel
type Orchestrator struct {
	appCfg   *config.AppConfig
	log      *logrus.Entry
	siteKeys []string
	fs       afero.Fs
	fullRun  bool

	// Coordination
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFs sets the filesystem that output_base_dir and state_dir are resolved against
func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fs }
}

// WithFullRun forgets stored hashes so every file is rewritten. Stale files are still pruned
func WithFullRun(full bool) Option {
	return func(o *Orchestrator) { o.fullRun = full }
}

// NewOrchestrator creates a new orchestrator. appCfg is expected to have passed Validate.
func NewOrchestrator(ctx context.Context, appCfg *config.AppConfig, siteKeys []string, log *logrus.Entry, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		appCfg:   appCfg,
		log:      log,
		siteKeys: siteKeys,
		fs:       afero.NewOsFs(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run generates all sites in parallel and waits for completion.
// Results are returned in the order of the site keys.
func (o *Orchestrator) Run() []SiteResult {
	startTime := time.Now()
	o.log.Infof("Starting sitemap generation for %d sites: %v", len(o.siteKeys), o.siteKeys)

	results := make([]SiteResult, len(o.siteKeys))
	g := new(errgroup.Group)
	for i, siteKey := range o.siteKeys {
		g.Go(func() error {
			results[i] = o.generateSite(siteKey)
			return nil
		})
	}
	_ = g.Wait()

	o.logSummary(results, time.Since(startTime))
	return results
}

// Cancel cancels all running generations
func (o *Orchestrator) Cancel() {
	o.log.Info("Cancelling sitemap generation...")
	o.cancel()
}

// SiteOutputDir returns the directory a site's files are written under
func SiteOutputDir(appCfg *config.AppConfig, siteKey string) string {
	return filepath.Join(appCfg.OutputBaseDir, utils.SanitizeFilename(siteKey))
}

// MetadataPath returns where a site's run metadata is stored
func MetadataPath(appCfg *config.AppConfig, siteKey string) string {
	return filepath.Join(appCfg.StateDir, utils.SanitizeFilename(siteKey)+"_"+config.GetEffectiveMetadataYAMLFilename(*appCfg))
}

// StateLogPath returns where the file state of an incremental site is dumped after each run
func StateLogPath(appCfg *config.AppConfig, siteKey string) string {
	return filepath.Join(appCfg.StateDir, utils.SanitizeFilename(siteKey)+"_file_state.tsv")
}

// generateSite builds and writes one site
func (o *Orchestrator) generateSite(siteKey string) SiteResult {
	startTime := time.Now()
	result := SiteResult{
		SiteKey: siteKey,
		RunID:   uuid.NewString(),
		Status:  models.GenerationStatusFailure,
	}
	siteLog := o.log.WithFields(logrus.Fields{"site": siteKey, "run_id": result.RunID})

	fail := func(err error) SiteResult {
		result.Error = err
		result.Duration = time.Since(startTime)
		siteLog.Errorf("Sitemap generation failed: %v", err)
		return result
	}

	siteCfg, err := o.appCfg.Site(siteKey)
	if err != nil {
		return fail(err)
	}
	warnings, err := siteCfg.Validate()
	if err != nil {
		return fail(err)
	}
	for _, w := range warnings {
		siteLog.Warn(w)
	}

	sm, err := BuildSitemap(*o.appCfg, siteCfg, siteLog)
	if err != nil {
		return fail(utils.WrapErrorf(err, "failed to register routes"))
	}
	result.RouteCount = len(sm.Routes())
	result.ExcludedCount = sm.ExcludedCount()

	siteDir := SiteOutputDir(o.appCfg, siteKey)
	if err := o.fs.MkdirAll(siteDir, 0755); err != nil {
		return fail(fmt.Errorf("%w: creating site directory '%s': %w", utils.ErrFilesystem, siteDir, err))
	}

	var fsOpts []output.Option
	var store *storage.BadgerStore
	incremental := config.GetEffectiveIncremental(siteCfg, *o.appCfg)
	if incremental {
		store, err = storage.NewBadgerStore(o.ctx, o.appCfg.StateDir, siteKey, o.fullRun, siteLog)
		if err != nil {
			return fail(utils.WrapErrorf(err, "failed to open state store"))
		}
		defer store.Close()

		gcCtx, stopGC := context.WithCancel(o.ctx)
		gcDone := make(chan struct{})
		go func() {
			defer close(gcDone)
			store.RunGC(gcCtx, stateGCInterval)
		}()
		// GC must be stopped before the store closes
		defer func() {
			stopGC()
			<-gcDone
		}()
		fsOpts = append(fsOpts, output.WithStateStore(store, result.RunID))
	}
	fsys := output.NewAferoFileSystem(afero.NewBasePathFs(o.fs, siteDir), siteLog, fsOpts...)

	siteLog.Infof("Generating sitemap for %s (%d routes, %d excluded)", siteCfg.WebsiteURL, result.RouteCount, result.ExcludedCount)
	writeResult, writeErr := sm.WriteSitemapFiles(o.ctx, fsys)

	stats := fsys.Stats()
	result.FilesWritten = stats.Written
	result.FilesSkipped = stats.Skipped
	if writeResult != nil {
		result.URLCount = writeResult.URLCount
	}

	var writeFailure *sitemap.WriteError
	switch {
	case writeErr == nil:
		result.Success = true
		result.Status = models.GenerationStatusSuccess
		if incremental {
			pruned, err := fsys.PruneStale(o.ctx)
			if err != nil {
				siteLog.Warnf("Failed to prune stale files: %v", err)
			}
			result.FilesPruned = len(pruned)
			o.recordFileState(store, siteKey, siteLog)
		}
	case errors.As(writeErr, &writeFailure):
		result.FilesFailed = len(writeFailure.Failures)
		if stats.Written+stats.Skipped > 0 {
			result.Status = models.GenerationStatusPartial
		}
		result.Error = writeErr
	default:
		result.Error = writeErr
	}
	result.Duration = time.Since(startTime)

	if o.appCfg.EnableMetadataYAML {
		meta := buildRunMetadata(siteKey, siteCfg.WebsiteURL, startTime, result, writeResult, fsys)
		if err := o.writeRunMetadata(siteKey, meta); err != nil {
			siteLog.Warnf("Failed to write run metadata: %v", err)
		}
	}

	if result.Error != nil {
		siteLog.Errorf("Sitemap generation finished with status %s: %v", result.Status, result.Error)
	} else {
		siteLog.Infof("Sitemap generation completed: %d URLs, %d written, %d skipped, %d pruned",
			result.URLCount, result.FilesWritten, result.FilesSkipped, result.FilesPruned)
	}
	return result
}

// recordFileState dumps the state store next to the badger directory for inspection
func (o *Orchestrator) recordFileState(store *storage.BadgerStore, siteKey string, siteLog *logrus.Entry) {
	count, err := store.GetFileCount()
	if err != nil {
		siteLog.Warnf("Failed to count tracked files: %v", err)
	} else {
		siteLog.Debugf("State store tracks %d files", count)
	}
	if err := store.WriteStateLog(StateLogPath(o.appCfg, siteKey)); err != nil {
		siteLog.Warnf("Failed to write state log: %v", err)
	}
}

func buildRunMetadata(siteKey, websiteURL string, startTime time.Time, result SiteResult, writeResult *sitemap.WriteResult, fsys *output.AferoFileSystem) models.RunMetadata {
	meta := models.RunMetadata{
		SiteKey:       siteKey,
		RunID:         result.RunID,
		WebsiteURL:    websiteURL,
		StartTime:     startTime.UTC(),
		EndTime:       startTime.Add(result.Duration).UTC(),
		Status:        result.Status,
		RouteCount:    result.RouteCount,
		ExcludedCount: result.ExcludedCount,
		URLCount:      result.URLCount,
	}
	if writeResult == nil {
		return meta
	}

	files := append(slices.Clone(writeResult.Files), writeResult.Index)
	for _, f := range files {
		if f.Path == "" {
			continue // Index not reached
		}
		fm := models.FileMetadata{Path: f.Path, URLCount: f.URLCount, Status: fsys.Status(f.Path)}
		if f.Err != nil {
			fm.Status = models.FileStatusFailed
			fm.Error = f.Err.Error()
		}
		meta.Files = append(meta.Files, fm)
	}
	return meta
}

func (o *Orchestrator) writeRunMetadata(siteKey string, meta models.RunMetadata) error {
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("%w: marshal run metadata: %w", utils.ErrParsing, err)
	}
	if err := o.fs.MkdirAll(o.appCfg.StateDir, 0755); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	path := MetadataPath(o.appCfg, siteKey)
	if err := afero.WriteFile(o.fs, path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

// ReadRunMetadata loads the metadata written by the last run of siteKey
func ReadRunMetadata(fs afero.Fs, appCfg *config.AppConfig, siteKey string) (*models.RunMetadata, error) {
	path := MetadataPath(appCfg, siteKey)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, path, err)
	}
	var meta models.RunMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: parsing '%s': %w", utils.ErrParsing, path, err)
	}
	return &meta, nil
}

// logSummary logs a summary of all generation results
func (o *Orchestrator) logSummary(results []SiteResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Sitemap generation completed in %v", totalDuration)
	o.log.Info("Site Results:")

	var totalURLs, totalWritten int
	successCount := 0
	failCount := 0

	for _, r := range results {
		if r.Success {
			successCount++
		} else {
			failCount++
		}
		totalURLs += r.URLCount
		totalWritten += r.FilesWritten

		o.log.Infof("  %s: %s - %d URLs, %d written, %d skipped, %d failed in %v",
			r.SiteKey, r.Status, r.URLCount, r.FilesWritten, r.FilesSkipped, r.FilesFailed, r.Duration)
		if r.Error != nil {
			o.log.Infof("    Error [%s]: %v", utils.CategorizeError(r.Error), r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d sites (%d success, %d failed), %d URLs, %d files written",
		len(results), successCount, failCount, totalURLs, totalWritten)
	o.log.Info("============================================")
}

// ValidateSiteKeys checks that all provided site keys exist in the config
func ValidateSiteKeys(appCfg *config.AppConfig, siteKeys []string) error {
	for _, key := range siteKeys {
		if _, exists := appCfg.Sites[key]; !exists {
			return fmt.Errorf("%w: '%s'. Available sites: %v", utils.ErrSiteNotFound, key, GetAllSiteKeys(appCfg))
		}
	}
	return nil
}

// GetAllSiteKeys returns all site keys from the config, sorted
func GetAllSiteKeys(appCfg *config.AppConfig) []string {
	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
