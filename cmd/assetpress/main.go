package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetpress/internal/catalog"
	"git.home.luguber.info/inful/assetpress/internal/config"
	"git.home.luguber.info/inful/assetpress/internal/events"
	"git.home.luguber.info/inful/assetpress/internal/history"
	"git.home.luguber.info/inful/assetpress/internal/logfields"
	"git.home.luguber.info/inful/assetpress/internal/manifest"
	"git.home.luguber.info/inful/assetpress/internal/metrics"
	"git.home.luguber.info/inful/assetpress/internal/pipeline"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"assetpress.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Optimize struct {
		Source string `short:"s" help:"Override source directory"`
		Output string `short:"o" help:"Override output directory"`
	} `cmd:"" help:"Optimize the built site once"`

	Scan struct {
	} `cmd:"" help:"List the assets a run would process without touching anything"`

	Watch struct {
	} `cmd:"" help:"Re-optimize whenever the source tree changes"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		Limit int `help:"Number of runs to show" default:"10"`
	} `cmd:"" help:"Show recent optimization runs"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "optimize":
		cfg := mustLoadConfig()
		if CLI.Optimize.Source != "" {
			cfg.Source.Directory = CLI.Optimize.Source
		}
		if CLI.Optimize.Output != "" {
			cfg.Output.Directory = CLI.Optimize.Output
		}
		if err := runOptimize(cfg); err != nil {
			slog.Error("Optimization failed", logfields.Error(err))
			os.Exit(1)
		}
	case "scan":
		if err := runScan(mustLoadConfig()); err != nil {
			slog.Error("Scan failed", logfields.Error(err))
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(mustLoadConfig()); err != nil {
			slog.Error("Watch failed", logfields.Error(err))
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", logfields.Error(err))
			os.Exit(1)
		}
		fmt.Printf("Created configuration file: %s\n", CLI.Config)
	case "history":
		if err := runHistory(mustLoadConfig(), CLI.History.Limit); err != nil {
			slog.Error("History failed", logfields.Error(err))
			os.Exit(1)
		}
	default:
		slog.Error("Unknown command", slog.String("command", ctx.Command()))
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}
	return cfg
}

// runOptimize executes one run. Per-asset failures are recorded in the
// manifest and do not fail the process; only setup failures do.
func runOptimize(cfg *config.Config) error {
	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	optimizer := pipeline.New(cfg)
	m, err := optimizer.Run(signalContext())
	if m != nil {
		recordRun(store, m)
	}
	if err != nil && !isWarning(err) {
		return err
	}
	return nil
}

func runScan(cfg *config.Config) error {
	for _, class := range []catalog.Class{catalog.ClassRaster, catalog.ClassFont, catalog.ClassText} {
		paths, err := catalog.Scan(cfg.Source.Directory, class)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d):\n", class, len(paths))
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func runHistory(cfg *config.Config, limit int) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("run history is disabled in the configuration")
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "failed"
		if r.Success {
			status = "ok"
		}
		fmt.Printf("%s  %s  %-6s  processed=%d failed=%d\n",
			r.StartedAt.Format(time.RFC3339), r.RunID, status, r.Processed, r.Failed)
	}
	return nil
}

// runWatch keeps re-optimizing: once at startup, on debounced filesystem
// changes, and on an optional fixed schedule.
func runWatch(cfg *config.Config) error {
	ctx := signalContext()

	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		var err error
		publisher, err = events.NewPublisher(cfg.Events)
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	var opts []pipeline.Option
	if cfg.Metrics.Listen != "" {
		reg := prom.NewRegistry()
		opts = append(opts, pipeline.WithRecorder(metrics.NewPrometheusRecorder(reg)))
		go serveMetrics(cfg.Metrics.Listen, reg)
	}

	optimizer := pipeline.New(cfg, opts...)
	trigger := make(chan string, 1)
	requestRun := func(reason string) {
		select {
		case trigger <- reason:
		default: // a run is already pending
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watchRecursive(watcher, cfg.Source.Directory); err != nil {
		return err
	}

	if cfg.Watch.Schedule != "" {
		interval, err := time.ParseDuration(cfg.Watch.Schedule)
		if err != nil {
			return fmt.Errorf("invalid watch schedule: %w", err)
		}
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { requestRun("schedule") }),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule runs: %w", err)
		}
		scheduler.Start()
		defer func() { _ = scheduler.Shutdown() }()
	}

	debounce := time.Duration(cfg.Watch.DebounceSeconds) * time.Second
	var pending *time.Timer
	requestRun("startup")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() { requestRun("change") })
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		case reason := <-trigger:
			slog.Info("Triggering run", slog.String("reason", reason))
			m, runErr := optimizer.Run(ctx)
			if runErr != nil && !isWarning(runErr) {
				if isCanceled(runErr) {
					return nil
				}
				slog.Error("Run failed", logfields.Error(runErr))
			}
			if m != nil {
				recordRun(store, m)
				if publisher != nil {
					if err := publisher.PublishRun(m); err != nil {
						slog.Warn("Run event not published", logfields.Error(err))
					}
				}
			}
		}
	}
}

func serveMetrics(listen string, reg *prom.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	slog.Info("Serving metrics", slog.String("listen", listen))
	if err := http.ListenAndServe(listen, mux); err != nil {
		slog.Error("Metrics server stopped", logfields.Error(err))
	}
}

func openHistory(cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		slog.Warn("Run history unavailable", logfields.Error(err))
		return nil
	}
	return store
}

func recordRun(store *history.Store, m *manifest.RunManifest) {
	if store == nil {
		return
	}
	if err := store.Append(context.Background(), m); err != nil {
		slog.Warn("Run not recorded in history", logfields.Error(err))
	}
}

func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		cancel()
	}()
	return ctx
}

func isWarning(err error) bool {
	var se *pipeline.StageError
	return errors.As(err, &se) && se.Kind == pipeline.StageErrorWarning
}

func isCanceled(err error) bool {
	var se *pipeline.StageError
	return errors.As(err, &se) && se.Kind == pipeline.StageErrorCanceled
}
