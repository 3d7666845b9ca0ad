package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Sriram-PR/sitemap-builder/pkg/config"
	"github.com/Sriram-PR/sitemap-builder/pkg/orchestrate"
)

// Options configures a Watcher
type Options struct {
	ConfigPath string
	SiteKeys   []string      // Empty means every configured site, re-read on each reload
	Interval   time.Duration // Periodic regeneration; zero regenerates only on config changes
	Debounce   time.Duration // Zero uses the config's watch_debounce
	Fs         afero.Fs      // Output filesystem; defaults to the OS filesystem

	// OnRun is called after every generation pass
	OnRun func([]orchestrate.SiteResult)
}

// Watcher regenerates sitemaps whenever the config file changes
type Watcher struct {
	opts         Options
	configPath   string
	log          *logrus.Entry
	stateManager *StateManager

	mu     sync.RWMutex
	appCfg *config.AppConfig

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher loads the config at opts.ConfigPath. An invalid initial config is an error;
// later invalid edits are logged and the previous config stays in effect.
func NewWatcher(ctx context.Context, opts Options, log *logrus.Entry) (*Watcher, error) {
	configPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	w := &Watcher{
		opts:       opts,
		configPath: configPath,
		log:        log.WithField("component", "watch"),
	}
	appCfg, err := w.loadConfig()
	if err != nil {
		return nil, err
	}
	if len(opts.SiteKeys) > 0 {
		if err := orchestrate.ValidateSiteKeys(appCfg, opts.SiteKeys); err != nil {
			return nil, err
		}
	}
	if w.opts.Debounce <= 0 {
		w.opts.Debounce = appCfg.WatchDebounce
	}

	w.appCfg = appCfg
	w.stateManager = NewStateManager(opts.Fs, appCfg.StateDir)
	w.ctx, w.cancel = context.WithCancel(ctx)
	return w, nil
}

// Run generates every watched site once, then blocks regenerating on config changes until stopped
func (w *Watcher) Run() error {
	if err := w.stateManager.Load(); err != nil {
		w.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.log.Warnf("Failed to close file watcher: %v", err)
		}
	}()
	// Editors often replace the file, so watch its directory
	if err := fsw.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.configPath), err)
	}

	w.log.Infof("Watching %s (debounce %v)", w.configPath, w.opts.Debounce)
	w.logSchedule()
	w.runSites(w.siteKeys())

	var tick <-chan time.Time
	if w.opts.Interval > 0 {
		ticker := time.NewTicker(w.calculateTickInterval())
		defer ticker.Stop()
		tick = ticker.C
	}

	reload := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Watcher shutting down...")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Chmod != 0 || filepath.Clean(event.Name) != w.configPath {
				continue
			}
			w.log.Debugf("Config event: %s", event.Op)
			if debounceTimer != nil {
				debounceTimer.Reset(w.opts.Debounce)
			} else {
				debounceTimer = time.AfterFunc(w.opts.Debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("Watcher error: %v", err)

		case <-reload:
			if w.reloadConfig() {
				w.runSites(w.siteKeys())
			}

		case <-tick:
			w.runDueSites()
		}
	}
}

// Stop stops the watcher and cancels a running generation
func (w *Watcher) Stop() {
	w.log.Info("Stopping watcher...")
	w.cancel()
}

func (w *Watcher) loadConfig() (*config.AppConfig, error) {
	appCfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		return nil, err
	}
	warnings, err := appCfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		w.log.Warn(warning)
	}
	return appCfg, nil
}

// reloadConfig swaps in the edited config. It reports false when the edit is unusable.
func (w *Watcher) reloadConfig() bool {
	appCfg, err := w.loadConfig()
	if err != nil {
		w.log.Errorf("Config reload failed, keeping previous configuration: %v", err)
		return false
	}
	if len(w.opts.SiteKeys) > 0 {
		if err := orchestrate.ValidateSiteKeys(appCfg, w.opts.SiteKeys); err != nil {
			w.log.Errorf("Config reload failed, keeping previous configuration: %v", err)
			return false
		}
	}

	w.mu.Lock()
	w.appCfg = appCfg
	w.mu.Unlock()
	w.log.Info("Configuration reloaded")
	return true
}

func (w *Watcher) config() *config.AppConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.appCfg
}

func (w *Watcher) siteKeys() []string {
	if len(w.opts.SiteKeys) > 0 {
		return w.opts.SiteKeys
	}
	return orchestrate.GetAllSiteKeys(w.config())
}

// runSites regenerates keys and records the results
func (w *Watcher) runSites(keys []string) {
	if len(keys) == 0 {
		w.log.Warn("No sites to generate")
		return
	}
	if w.ctx.Err() != nil {
		return
	}

	orch := orchestrate.NewOrchestrator(w.ctx, w.config(), keys, w.log, orchestrate.WithFs(w.opts.Fs))
	results := orch.Run()

	for _, result := range results {
		w.stateManager.UpdateSiteState(result)
	}
	if err := w.stateManager.Save(); err != nil {
		w.log.Errorf("Failed to save watch state: %v", err)
	}

	if w.opts.OnRun != nil {
		w.opts.OnRun(results)
	}
	if w.opts.Interval > 0 {
		w.logNextRun()
	}
}

// runDueSites regenerates the sites whose interval has elapsed
func (w *Watcher) runDueSites() {
	var due []string
	for _, siteKey := range w.siteKeys() {
		if w.stateManager.ShouldRun(siteKey, w.opts.Interval) {
			due = append(due, siteKey)
		}
	}
	if len(due) == 0 {
		return
	}
	w.log.Infof("Regenerating %d due sites: %v", len(due), due)
	w.runSites(due)
}

// calculateTickInterval returns how often to check for due sites
func (w *Watcher) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := w.opts.Interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the last known state of every watched site
func (w *Watcher) logSchedule() {
	w.log.Info("Watched sites:")
	for _, siteKey := range w.siteKeys() {
		state, exists := w.stateManager.GetSiteState(siteKey)
		if !exists {
			w.log.Infof("  %s: never run, will run immediately", siteKey)
			continue
		}
		w.log.Infof("  %s: last run %v (%s, %d URLs)",
			siteKey, state.LastRunTime.Format(time.RFC3339), state.Status, state.URLCount)
	}
}

// logNextRun logs when the next periodic run will occur
func (w *Watcher) logNextRun() {
	keys := slices.Clone(w.siteKeys())
	if len(keys) == 0 {
		return
	}
	sort.Slice(keys, func(i, j int) bool {
		return w.stateManager.GetNextRunTime(keys[i], w.opts.Interval).Before(w.stateManager.GetNextRunTime(keys[j], w.opts.Interval))
	})

	next := keys[0]
	nextRun := w.stateManager.GetNextRunTime(next, w.opts.Interval)
	until := time.Until(nextRun)
	if until < 0 {
		until = 0
	}
	w.log.Infof("Next regeneration: %s in %v (at %s)", next, until.Round(time.Second), nextRun.Format("15:04:05"))
}

// GetStatus returns the current status of all watched sites
func (w *Watcher) GetStatus() map[string]SiteStatus {
	status := make(map[string]SiteStatus)

	for _, siteKey := range w.siteKeys() {
		state, exists := w.stateManager.GetSiteState(siteKey)
		s := SiteStatus{
			SiteKey:        siteKey,
			LastRunTime:    state.LastRunTime,
			LastRunSuccess: state.LastRunSuccess,
			URLCount:       state.URLCount,
			ErrorMessage:   state.ErrorMessage,
			NeverRun:       !exists,
		}
		if w.opts.Interval > 0 {
			s.NextRunTime = w.stateManager.GetNextRunTime(siteKey, w.opts.Interval)
		}
		status[siteKey] = s
	}

	return status
}

// SiteStatus contains the status of a watched site
type SiteStatus struct {
	SiteKey        string
	LastRunTime    time.Time
	LastRunSuccess bool
	URLCount       int
	ErrorMessage   string
	NextRunTime    time.Time // Zero without periodic regeneration
	NeverRun       bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Check for day suffix
	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
