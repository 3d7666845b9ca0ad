package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/sitemap-builder/pkg/config"
	"github.com/Sriram-PR/sitemap-builder/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
	"github.com/Sriram-PR/sitemap-builder/pkg/watch"
)

const version = "0.4.0"

// errSitesFailed makes the process exit non-zero after the summary was printed
var errSitesFailed = errors.New("one or more sites failed")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// siteSelection holds the flags that choose which sites a command acts on
type siteSelection struct {
	site     string
	sites    string
	allSites bool
}

func (s *siteSelection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.site, "site", "", "Site key from config (single site)")
	cmd.Flags().StringVar(&s.sites, "sites", "", "Comma-separated site keys")
	cmd.Flags().BoolVar(&s.allSites, "all-sites", false, "All configured sites (the default when no site is named)")
}

// explicitKeys returns the named keys, or nil when every site is selected
func (s siteSelection) explicitKeys() []string {
	var keys []string
	switch {
	case s.allSites:
	case s.sites != "":
		for _, k := range strings.Split(s.sites, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	case s.site != "":
		keys = []string{s.site}
	}
	return keys
}

// resolve returns the selected keys, sorted when every site is selected
func (s siteSelection) resolve(appCfg *config.AppConfig) ([]string, error) {
	keys := s.explicitKeys()
	if len(keys) == 0 {
		keys = orchestrate.GetAllSiteKeys(appCfg)
	}
	if err := orchestrate.ValidateSiteKeys(appCfg, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "sitemap-builder",
		Short: "Generate sitemap XML files from configured website routes",
		Long: `sitemap-builder turns the routes configured for each site into a sitemap index
plus paginated, per-folder url sets with hreflang alternates.`,
		SilenceUsage: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		generateCmd(&configPath, &logLevel),
		planCmd(&configPath, &logLevel),
		watchCmd(&configPath, &logLevel),
		&cobra.Command{
			Use:   "validate [site]",
			Short: "Validate the configuration file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				siteKey := ""
				if len(args) == 1 {
					siteKey = args[0]
				}
				if doValidate(configPath, siteKey, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
					return errors.New("configuration invalid")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list-sites",
			Short: "List available site keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if doListSites(configPath, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
					return errors.New("cannot list sites")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the last watch-mode run of every site",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if doStatus(configPath, afero.NewOsFs(), cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
					return errors.New("cannot read status")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version info",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sitemap-builder %s\n", version)
			},
		},
	)
	return cmd
}

func generateCmd(configPath, logLevel *string) *cobra.Command {
	var (
		sel         siteSelection
		incremental bool
		full        bool
		tree        bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sitemaps for one or more sites",
		Example: `  sitemap-builder generate --site cityviews
  sitemap-builder generate --sites cityviews,museums --incremental
  sitemap-builder generate --all-sites --full`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := setupLogger(*logLevel, cmd.ErrOrStderr())
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return doGenerate(ctx, *configPath, sel, generateFlags{incremental: incremental, full: full, tree: tree},
				afero.NewOsFs(), log, cmd.OutOrStdout())
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Skip files whose content is unchanged since the last run")
	cmd.Flags().BoolVar(&full, "full", false, "Discard incremental state and rewrite every file")
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the generated directory tree of each site")
	return cmd
}

type generateFlags struct {
	incremental bool
	full        bool
	tree        bool
}

// doGenerate runs the orchestrator over the selected sites
func doGenerate(ctx context.Context, configPath string, sel siteSelection, flags generateFlags, fs afero.Fs, log *logrus.Logger, stdout io.Writer) error {
	appCfg, err := loadConfig(configPath, log)
	if err != nil {
		return err
	}
	if flags.incremental {
		appCfg.Incremental = true
	}
	siteKeys, err := sel.resolve(appCfg)
	if err != nil {
		return err
	}

	orch := orchestrate.NewOrchestrator(ctx, appCfg, siteKeys, log.WithField("component", "orchestrator"),
		orchestrate.WithFs(fs), orchestrate.WithFullRun(flags.full))
	results := orch.Run()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			continue
		}
		if flags.tree {
			dir := orchestrate.SiteOutputDir(appCfg, r.SiteKey)
			if err := utils.WriteTree(fs, dir, stdout, log.WithField("site", r.SiteKey)); err != nil {
				log.Warnf("Failed to print tree for '%s': %v", r.SiteKey, err)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errSitesFailed, failed, len(results))
	}
	return nil
}

func planCmd(configPath, logLevel *string) *cobra.Command {
	var sel siteSelection
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the files a generation would write, without writing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := setupLogger(*logLevel, cmd.ErrOrStderr())
			if doPlan(*configPath, sel, log, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
				return errors.New("planning failed")
			}
			return nil
		},
	}
	sel.register(cmd)
	return cmd
}

// doPlan prints the planned files per site. Returns exit code (0 = success, 1 = error).
func doPlan(configPath string, sel siteSelection, log *logrus.Logger, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	siteKeys, err := sel.resolve(appCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	exitCode := 0
	for _, key := range siteKeys {
		plan, err := orchestrate.PlanSite(*appCfg, key, log.WithField("component", "plan"))
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			exitCode = 1
			continue
		}
		fmt.Fprintf(stdout, "%s: %d routes, %d excluded, %d URLs in %d files\n",
			key, plan.RouteCount, plan.ExcludedCount, plan.URLCount, len(plan.Files))
		fmt.Fprintf(stdout, "  %s (index)\n", plan.IndexPath)
		for _, f := range plan.Files {
			fmt.Fprintf(stdout, "  %s (%d URLs)\n", f.Path, f.URLCount)
		}
	}
	return exitCode
}

func watchCmd(configPath, logLevel *string) *cobra.Command {
	var (
		sel      siteSelection
		interval string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate sitemaps whenever the config file changes",
		Example: `  sitemap-builder watch --site cityviews
  sitemap-builder watch --all-sites --interval 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := setupLogger(*logLevel, cmd.ErrOrStderr())

			var every time.Duration
			if interval != "" {
				d, err := watch.ParseInterval(interval)
				if err != nil {
					return err
				}
				every = d
				log.Infof("Periodic regeneration every %s", watch.FormatInterval(d))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// No explicit keys lets the watcher follow sites added to the config
			w, err := watch.NewWatcher(ctx, watch.Options{
				ConfigPath: *configPath,
				SiteKeys:   sel.explicitKeys(),
				Interval:   every,
				Debounce:   debounce,
			}, log.WithField("component", "cli"))
			if err != nil {
				return err
			}
			if err := w.Run(); err != nil {
				return err
			}
			status := w.GetStatus()
			for _, key := range slices.Sorted(maps.Keys(status)) {
				s := status[key]
				if s.NeverRun {
					log.Infof("  %s: never run", key)
					continue
				}
				log.Infof("  %s: last run %s, success=%v, %d URLs", key, s.LastRunTime.Format(time.RFC3339), s.LastRunSuccess, s.URLCount)
			}
			log.Info("Watch mode stopped")
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&interval, "interval", "", "Also regenerate periodically (e.g., 30m, 1h, 24h, 7d)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period after a config edit before regenerating (default from config)")
	return cmd
}

// setupLogger creates the logrus logger shared by every command
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// loadConfig loads the config file and applies defaults, logging any warnings
func loadConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	appCfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	warnings, _ := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	return appCfg, nil
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, _ := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	keys := orchestrate.GetAllSiteKeys(appCfg)
	if siteKey != "" {
		if _, err := appCfg.Site(siteKey); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		keys = []string{siteKey}
	}

	hasError := false
	for _, key := range keys {
		siteCfg := appCfg.Sites[key]
		siteWarnings, err := siteCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		// Route placeholders are only checked by registering the routes
		if _, err := orchestrate.BuildSitemap(*appCfg, siteCfg, quietEntry()); err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasError = true
			continue
		}
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}
	if hasError {
		return 1
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// doListSites prints every configured site. Returns exit code (0 = success, 1 = error).
func doListSites(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = appCfg.Validate()

	fmt.Fprintf(stdout, "Sites in %s:\n\n", configPath)
	for _, key := range orchestrate.GetAllSiteKeys(appCfg) {
		site := appCfg.Sites[key]
		_, _ = site.Validate()
		fmt.Fprintf(stdout, "  %s\n", key)
		fmt.Fprintf(stdout, "    Website: %s\n", site.WebsiteURL)
		fmt.Fprintf(stdout, "    Routes: %d\n", len(site.Routes))
		if len(site.Languages) > 0 {
			fmt.Fprintf(stdout, "    Languages: %s\n", strings.Join(site.Languages, ", "))
		}
		if site.RootFolderPath != "" {
			fmt.Fprintf(stdout, "    Root Folder: %s\n", site.RootFolderPath)
		}
		fmt.Fprintln(stdout)
	}
	return 0
}

// doStatus prints the persisted watch state per configured site. Returns exit code (0 = success, 1 = error).
func doStatus(configPath string, fs afero.Fs, stdout, stderr io.Writer) int {
	appCfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = appCfg.Validate()

	sm := watch.NewStateManager(fs, appCfg.StateDir)
	if err := sm.Load(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	states := sm.GetAllSiteStates()

	fmt.Fprintf(stdout, "Status in %s:\n\n", appCfg.StateDir)
	for _, key := range orchestrate.GetAllSiteKeys(appCfg) {
		state, ok := states[key]
		if !ok {
			fmt.Fprintf(stdout, "  %s: never run\n", key)
			continue
		}
		fmt.Fprintf(stdout, "  %s: %s at %s (%d URLs, %d written, %d skipped)\n",
			key, state.Status, state.LastRunTime.Format(time.RFC3339), state.URLCount, state.FilesWritten, state.FilesSkipped)
		if state.ErrorMessage != "" {
			fmt.Fprintf(stdout, "    Error: %s\n", state.ErrorMessage)
		}
	}
	return 0
}

func quietEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
