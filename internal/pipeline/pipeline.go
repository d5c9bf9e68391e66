// Package pipeline orchestrates the optimization passes over a build snapshot.
//
// A run executes a fixed sequence of stages against a fresh snapshot of the
// source tree. Passes are single-threaded: every asset finishes all of its
// side effects, including rewrites of shared text files, before the next
// asset starts. A per-asset failure is recorded and skipped; only setup
// failures abort the run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetpress/internal/config"
	"git.home.luguber.info/inful/assetpress/internal/font"
	"git.home.luguber.info/inful/assetpress/internal/image"
	"git.home.luguber.info/inful/assetpress/internal/logfields"
	"git.home.luguber.info/inful/assetpress/internal/manifest"
	"git.home.luguber.info/inful/assetpress/internal/metrics"
	"git.home.luguber.info/inful/assetpress/internal/minify"
	"git.home.luguber.info/inful/assetpress/internal/workspace"
)

const manifestFileName = "assetpress-manifest.json"

// Optimizer wires the collaborators for optimization runs. One Optimizer may
// execute many runs (watch mode), but never concurrently.
type Optimizer struct {
	cfg       *config.Config
	workspace *workspace.Manager
	codec     image.Codec
	subsetter *font.Subsetter
	minifier  minify.Minifier
	recorder  metrics.Recorder
}

// Option customizes an Optimizer, mainly for tests.
type Option func(*Optimizer)

// WithCodec replaces the raster codec.
func WithCodec(c image.Codec) Option {
	return func(o *Optimizer) { o.codec = c }
}

// WithFontLibrary replaces the font parsing library.
func WithFontLibrary(lib font.Library) Option {
	return func(o *Optimizer) { o.subsetter = font.NewSubsetter(lib) }
}

// WithMinifier replaces the minifier.
func WithMinifier(m minify.Minifier) Option {
	return func(o *Optimizer) { o.minifier = m }
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Optimizer) { o.recorder = r }
}

// New builds an Optimizer from configuration.
func New(cfg *config.Config, opts ...Option) *Optimizer {
	o := &Optimizer{
		cfg:       cfg,
		workspace: workspace.NewManager(cfg.Source.Directory, cfg.Output.Directory, cfg.Output.Clean),
		codec:     image.NewImagingCodec(cfg.Images.Quality),
		subsetter: font.NewSubsetter(font.NewSFNTLibrary()),
		minifier:  minify.New(),
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one full optimization run and returns its manifest. The
// returned error is non-nil for fatal setup failures and for warning
// outcomes; callers distinguish the two through the StageError kind.
func (o *Optimizer) Run(ctx context.Context) (*manifest.RunManifest, error) {
	start := time.Now()
	rs := &RunState{
		Config:      o.cfg,
		SnapshotDir: o.workspace.SnapshotDir(),
		Manifest:    manifest.New(o.cfg.Source.Directory, o.workspace.SnapshotDir()),
		Recorder:    o.recorder,
	}

	slog.Info("Starting optimization run",
		logfields.RunID(rs.Manifest.RunID),
		logfields.Path(o.cfg.Source.Directory))

	p := NewPipeline().
		Add(StagePrepareSnapshot, o.stagePrepareSnapshot).
		Add(StageCatalogAssets, o.stageCatalogAssets).
		AddIf(o.cfg.Images.Enabled, StageImagePass, o.stageImagePass).
		AddIf(o.cfg.Fonts.Enabled, StageFontPass, o.stageFontPass).
		AddIf(o.cfg.Minify.Scripts || o.cfg.Minify.Styles, StageMinifyPass, o.stageMinifyPass).
		Add(StageWriteManifest, o.stageWriteManifest)

	err := RunStages(ctx, rs, p.Defs)
	dur := time.Since(start)
	o.recorder.ObserveRunDuration(dur)

	outcome := classifyRunOutcome(err)
	o.recorder.IncRunOutcome(outcome)
	if rs.Manifest.FinishedAt.IsZero() {
		rs.Manifest.Finish(outcome != "failed")
	}

	slog.Info("Optimization run finished",
		logfields.RunID(rs.Manifest.RunID),
		slog.String("outcome", outcome),
		logfields.DurationMS(float64(dur.Milliseconds())))
	return rs.Manifest, err
}

func classifyRunOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if se, ok := err.(*StageError); ok && se.Kind == StageErrorWarning {
		return "warning"
	}
	return "failed"
}
