package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rasff-sync/syncer"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	var dbPath string
	var debug bool
	var push bool
	var initEmpty bool
	var forcePull bool
	var importPath string
	var schedule string
	var timeout time.Duration

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.StringVar(&dbPath, "db", "", "SQLite store path (overrides config.db).")
	flag.BoolVar(&debug, "debug", false, "Enable debug logs.")
	flag.BoolVar(&push, "push", true, "Push the store to GitHub after changes.")
	flag.BoolVar(&initEmpty, "init-empty", false, "Allow starting with a fresh empty store when the remote has none.")
	flag.BoolVar(&forcePull, "force-pull", false, "Overwrite the local store with the remote copy, then exit.")
	flag.StringVar(&importPath, "import", "", "Import a local workbook file instead of fetching periods.")
	flag.StringVar(&schedule, "schedule", "", "Cron spec for scheduled sync (e.g. '0 8 * * MON'). Empty runs once and exits.")
	flag.DurationVar(&timeout, "source-timeout", 0, "Per-request timeout for period downloads (overrides config).")
	flag.Parse()

	visited := map[string]bool{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})

	// .env is optional and never overrides real environment variables.
	_ = godotenv.Load()

	cfg := &syncer.FileConfig{}
	if configPath != "" {
		loaded, err := syncer.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	} else {
		cfg.Source.BaseURL = os.Getenv("RASFF_SOURCE_BASE_URL")
		cfg.ApplyDefaults()
	}
	if visited["db"] {
		cfg.DB = dbPath
	}
	if visited["debug"] {
		cfg.Debug = debug
	}
	if visited["init-empty"] {
		cfg.InitEmpty = initEmpty
	}
	if visited["source-timeout"] {
		cfg.Source.Timeout.Duration = timeout
	}
	finalPush := cfg.PushEnabled()
	if visited["push"] {
		finalPush = push
	}
	logger, err := syncer.NewLogger(cfg.Debug, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if cfg.Source.BaseURL == "" {
		logger.Fatal("missing source base URL (config source.base_url)")
	}

	tax, err := syncer.LoadTaxonomy(cfg.Taxonomy)
	if err != nil {
		logger.Fatal("load taxonomy", zap.Error(err))
	}

	token := os.Getenv("GITHUB_TOKEN")
	if finalPush && token == "" {
		if visited["push"] {
			// Explicitly requested push without credentials aborts before
			// any network call.
			logger.Fatal("push requested but GITHUB_TOKEN is not set")
		}
		logger.Warn("GITHUB_TOKEN not set, push disabled")
		finalPush = false
	}

	var remote syncer.Replica
	if cfg.GitHub.Owner != "" && cfg.GitHub.Repo != "" {
		remote = syncer.NewRemoteStore(syncer.RemoteConfig{
			APIBase: cfg.GitHub.APIBase,
			RawBase: cfg.GitHub.RawBase,
			Owner:   cfg.GitHub.Owner,
			Repo:    cfg.GitHub.Repo,
			Branch:  cfg.GitHub.Branch,
			Path:    cfg.GitHub.Path,
			Token:   token,
			Timeout: cfg.GitHub.Timeout.Duration,
		}, logger)
	} else {
		logger.Warn("no github repository configured, running local-only")
		finalPush = false
	}

	fetcher := syncer.NewFetcher(cfg.Source.BaseURL, cfg.Source.Resource, cfg.Source.Ext, cfg.Source.Timeout.Duration, logger)
	normalizer := syncer.NewNormalizer(tax, logger)

	runner, err := syncer.NewRunner(syncer.RunnerConfig{
		DBPath:    cfg.DB,
		Epoch:     cfg.Epoch(),
		Push:      finalPush,
		InitEmpty: cfg.InitEmpty,
	}, fetcher, normalizer, remote, logger)
	if err != nil {
		logger.Fatal("init runner", zap.Error(err))
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case forcePull:
		if err := runner.ForcePull(); err != nil {
			logger.Fatal("force pull", zap.Error(err))
		}
		logger.Info("local store replaced with remote copy", zap.String("path", cfg.DB))
	case importPath != "":
		inserted, err := runner.ImportFile(importPath)
		if err != nil {
			logger.Fatal("import workbook", zap.Error(err))
		}
		logger.Info("import done", zap.Int("inserted", inserted))
	case schedule != "":
		runScheduled(ctx, runner, schedule, logger)
	default:
		if _, err := runner.RunOnce(ctx); err != nil {
			logger.Fatal("sync", zap.Error(err))
		}
	}
}

// runScheduled runs the sync on a cron cadence until the process is
// signalled. Overlapping triggers are rejected by the runner's own
// single-flight guard.
func runScheduled(ctx context.Context, runner *syncer.Runner, spec string, logger *zap.Logger) {
	engine := cron.New()
	_, err := engine.AddFunc(spec, func() {
		if _, err := runner.RunOnce(ctx); err != nil {
			logger.Error("scheduled sync", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("invalid cron spec", zap.String("spec", spec), zap.Error(err))
	}
	logger.Info("scheduler started", zap.String("spec", spec))
	engine.Start()
	<-ctx.Done()
	stopCtx := engine.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped")
}
