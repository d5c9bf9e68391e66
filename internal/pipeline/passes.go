package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetpress/internal/catalog"
	"git.home.luguber.info/inful/assetpress/internal/errors"
	"git.home.luguber.info/inful/assetpress/internal/font"
	"git.home.luguber.info/inful/assetpress/internal/image"
	"git.home.luguber.info/inful/assetpress/internal/logfields"
	"git.home.luguber.info/inful/assetpress/internal/manifest"
	"git.home.luguber.info/inful/assetpress/internal/pathref"
	"git.home.luguber.info/inful/assetpress/internal/plan"
	"git.home.luguber.info/inful/assetpress/internal/rewrite"
)

func (o *Optimizer) stagePrepareSnapshot(_ context.Context, rs *RunState) error {
	if err := o.workspace.Prepare(); err != nil {
		return NewFatalStageError(StagePrepareSnapshot, err)
	}
	return nil
}

func (o *Optimizer) stageCatalogAssets(_ context.Context, rs *RunState) error {
	var err error
	if rs.Rasters, err = catalog.Scan(rs.SnapshotDir, catalog.ClassRaster); err != nil {
		return NewFatalStageError(StageCatalogAssets, err)
	}
	if rs.Fonts, err = catalog.Scan(rs.SnapshotDir, catalog.ClassFont); err != nil {
		return NewFatalStageError(StageCatalogAssets, err)
	}
	if rs.TextFiles, err = catalog.Scan(rs.SnapshotDir, catalog.ClassText); err != nil {
		return NewFatalStageError(StageCatalogAssets, err)
	}

	// Variant outputs from a prior non-clean run are not originals.
	rs.Rasters = filterVariantOutputs(rs.Rasters)

	rs.Recorder.SetCatalogSize(string(catalog.ClassRaster), len(rs.Rasters))
	rs.Recorder.SetCatalogSize(string(catalog.ClassFont), len(rs.Fonts))
	rs.Recorder.SetCatalogSize(string(catalog.ClassText), len(rs.TextFiles))

	slog.Info("Cataloged assets",
		slog.Int("rasters", len(rs.Rasters)),
		slog.Int("fonts", len(rs.Fonts)),
		slog.Int("text_files", len(rs.TextFiles)))
	return nil
}

// filterVariantOutputs drops rasters living in a bucket directory ("original"
// or an all-digit width bucket).
func filterVariantOutputs(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if !inBucketDir(p) {
			out = append(out, p)
		}
	}
	return out
}

func inBucketDir(p string) bool {
	parent := filepath.Base(filepath.Dir(p))
	if parent == plan.BucketOriginal {
		return true
	}
	if parent == "" {
		return false
	}
	for _, r := range parent {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (o *Optimizer) stageImagePass(ctx context.Context, rs *RunState) error {
	materializer := image.NewMaterializer(o.codec, rs.SnapshotDir)
	failures := 0

	for _, assetPath := range rs.Rasters {
		if err := ctx.Err(); err != nil {
			return NewCanceledStageError(StageImagePass, err)
		}
		if err := o.processRaster(rs, materializer, assetPath); err != nil {
			ref := bestRef(rs.SnapshotDir, assetPath)
			perr := errors.WrapError(err, errors.CategoryImage, "raster left unprocessed").
				WithContext("asset", ref)
			slog.Warn("Raster left unprocessed",
				logfields.Asset(ref),
				logfields.Error(err))
			rs.Manifest.AddFailure(manifest.PassImages, ref, perr)
			rs.Recorder.IncAssetResult(string(manifest.PassImages), false)
			failures++
			continue
		}
		rs.Recorder.IncAssetResult(string(manifest.PassImages), true)
	}

	if failures > 0 {
		return NewWarnStageError(StageImagePass, fmt.Errorf("%d of %d rasters failed", failures, len(rs.Rasters)))
	}
	return nil
}

func (o *Optimizer) processRaster(rs *RunState, materializer *image.Materializer, assetPath string) error {
	origRef, err := pathref.Portable(rs.SnapshotDir, assetPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(assetPath)
	if err != nil {
		return fmt.Errorf("read raster: %w", err)
	}

	p, err := materializer.Plan(assetPath, data)
	if err != nil {
		return err
	}
	variants, err := materializer.Materialize(assetPath, data, p)
	if err != nil {
		return err
	}

	rewritten, err := o.rewriteImageRefs(rs, origRef, variants)
	if err != nil {
		return err
	}

	// All variants exist and every referencing document points at them;
	// only now is the original redundant.
	if err := os.Remove(assetPath); err != nil {
		return fmt.Errorf("remove original raster: %w", err)
	}

	outputs := make([]string, 0, len(variants))
	for _, v := range variants {
		outputs = append(outputs, v.Ref)
	}
	rs.Manifest.AddProcessed(manifest.ProcessedFileRecord{
		Path:      origRef,
		Pass:      manifest.PassImages,
		Outputs:   outputs,
		Rewritten: rewritten,
	})
	slog.Info("Processed raster",
		logfields.Asset(origRef),
		logfields.Count(len(variants)))
	return nil
}

// rewriteImageRefs updates every text document referencing origRef. HTML gets
// the structural img rewrite first, then the same literal substitution as
// stylesheets and scripts, which catches style blocks and inline styles. The
// substitution always uses complete per-document reference forms; two assets
// sharing a file name in different directories never touch each other's refs.
func (o *Optimizer) rewriteImageRefs(rs *RunState, origRef string, variants []image.Variant) (int, error) {
	original, ok := image.Original(variants)
	if !ok {
		return 0, fmt.Errorf("variant set for %s has no original entry", origRef)
	}

	rewritten := 0
	for _, textPath := range rs.TextFiles {
		fileRef, err := pathref.Portable(rs.SnapshotDir, textPath)
		if err != nil {
			return rewritten, err
		}
		src, err := os.ReadFile(textPath)
		if err != nil {
			return rewritten, fmt.Errorf("read %s: %w", fileRef, err)
		}

		out := src
		changed := false
		if pathref.Ext(fileRef) == "html" {
			var outcome rewrite.Outcome
			out, outcome, err = rewrite.RewriteHTML(out, fileRef, origRef, variants)
			if err != nil {
				return rewritten, fmt.Errorf("rewrite %s: %w", fileRef, err)
			}
			changed = outcome == rewrite.OutcomeRewritten
		}
		var literal bool
		out, literal, err = rewrite.RewriteTextAsset(out, fileRef, origRef, original.Ref, false)
		if err != nil {
			return rewritten, fmt.Errorf("rewrite %s: %w", fileRef, err)
		}
		changed = changed || literal

		if !changed {
			continue
		}
		if err := os.WriteFile(textPath, out, 0o640); err != nil {
			return rewritten, fmt.Errorf("write %s: %w", fileRef, err)
		}
		rewritten++
	}
	return rewritten, nil
}

func (o *Optimizer) stageFontPass(ctx context.Context, rs *RunState) error {
	failures := 0
	converted := 0

	for _, assetPath := range rs.Fonts {
		if err := ctx.Err(); err != nil {
			return NewCanceledStageError(StageFontPass, err)
		}
		didConvert, err := o.processFont(rs, assetPath)
		if err != nil {
			ref := bestRef(rs.SnapshotDir, assetPath)
			perr := errors.WrapError(err, errors.CategoryFont, "font left unprocessed").
				WithContext("asset", ref)
			slog.Warn("Font left unprocessed",
				logfields.Asset(ref),
				logfields.Error(err))
			rs.Manifest.AddFailure(manifest.PassFonts, ref, perr)
			rs.Recorder.IncAssetResult(string(manifest.PassFonts), false)
			failures++
			continue
		}
		if didConvert {
			converted++
		}
		rs.Recorder.IncAssetResult(string(manifest.PassFonts), true)
	}

	slog.Info("Font pass complete",
		slog.Int("converted", converted),
		slog.Int("failed", failures))
	if failures > 0 {
		return NewWarnStageError(StageFontPass, fmt.Errorf("%d of %d fonts failed", failures, len(rs.Fonts)))
	}
	return nil
}

func (o *Optimizer) processFont(rs *RunState, assetPath string) (bool, error) {
	origRef, err := pathref.Portable(rs.SnapshotDir, assetPath)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(assetPath)
	if err != nil {
		return false, fmt.Errorf("read font: %w", err)
	}

	out, didConvert, err := o.subsetter.Convert(data, pathref.Ext(origRef))
	if err != nil {
		return false, err
	}
	if !didConvert {
		// Already in the target container; nothing to rewrite.
		rs.Manifest.AddProcessed(manifest.ProcessedFileRecord{
			Path: origRef,
			Pass: manifest.PassFonts,
		})
		return false, nil
	}

	newRef := pathref.SwapExt(origRef, font.TargetFormat)
	newPath := pathref.Absolute(rs.SnapshotDir, newRef)
	if err := os.WriteFile(newPath, out, 0o640); err != nil {
		return false, fmt.Errorf("write converted font: %w", err)
	}

	rewritten, err := o.rewriteFontRefs(rs, origRef, newRef)
	if err != nil {
		return false, err
	}

	// The original is deleted only once the converted file exists and the
	// stylesheets no longer mention it.
	if err := os.Remove(assetPath); err != nil {
		return false, fmt.Errorf("remove original font: %w", err)
	}

	rs.Manifest.AddProcessed(manifest.ProcessedFileRecord{
		Path:      origRef,
		Pass:      manifest.PassFonts,
		Outputs:   []string{newRef},
		Rewritten: rewritten,
	})
	slog.Info("Converted font", logfields.Asset(origRef), logfields.Ref(newRef))
	return true, nil
}

func (o *Optimizer) rewriteFontRefs(rs *RunState, origRef, newRef string) (int, error) {
	rewritten := 0
	for _, textPath := range rs.TextFiles {
		fileRef, err := pathref.Portable(rs.SnapshotDir, textPath)
		if err != nil {
			return rewritten, err
		}
		src, err := os.ReadFile(textPath)
		if err != nil {
			return rewritten, fmt.Errorf("read %s: %w", fileRef, err)
		}
		out, changed, err := rewrite.RewriteTextAsset(src, fileRef, origRef, newRef, true)
		if err != nil {
			return rewritten, fmt.Errorf("rewrite %s: %w", fileRef, err)
		}
		if !changed {
			continue
		}
		if err := os.WriteFile(textPath, out, 0o640); err != nil {
			return rewritten, fmt.Errorf("write %s: %w", fileRef, err)
		}
		rewritten++
	}
	return rewritten, nil
}

func (o *Optimizer) stageMinifyPass(ctx context.Context, rs *RunState) error {
	failures := 0

	for _, textPath := range rs.TextFiles {
		if err := ctx.Err(); err != nil {
			return NewCanceledStageError(StageMinifyPass, err)
		}
		ext := pathref.Ext(textPath)
		if ext == "js" && !rs.Config.Minify.Scripts {
			continue
		}
		if ext == "css" && !rs.Config.Minify.Styles {
			continue
		}
		if ext != "js" && ext != "css" {
			continue
		}

		if err := o.minifyFile(rs, textPath, ext); err != nil {
			ref := bestRef(rs.SnapshotDir, textPath)
			perr := errors.WrapError(err, errors.CategoryMinify, "file left unminified").
				WithContext("file", ref)
			slog.Warn("File left unminified",
				logfields.File(ref),
				logfields.Error(err))
			rs.Manifest.AddFailure(manifest.PassMinify, ref, perr)
			rs.Recorder.IncAssetResult(string(manifest.PassMinify), false)
			failures++
			continue
		}
		rs.Recorder.IncAssetResult(string(manifest.PassMinify), true)
	}

	if failures > 0 {
		return NewWarnStageError(StageMinifyPass, fmt.Errorf("%d files failed to minify", failures))
	}
	return nil
}

func (o *Optimizer) minifyFile(rs *RunState, textPath, ext string) error {
	fileRef, err := pathref.Portable(rs.SnapshotDir, textPath)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(textPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", fileRef, err)
	}

	var out string
	if ext == "js" {
		out, err = o.minifier.MinifyScript(string(src), fileRef)
	} else {
		out, err = o.minifier.MinifyStyle(string(src), fileRef)
	}
	if err != nil {
		return err
	}
	if out == string(src) {
		return nil
	}
	if err := os.WriteFile(textPath, []byte(out), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", fileRef, err)
	}

	rs.Manifest.AddProcessed(manifest.ProcessedFileRecord{
		Path: fileRef,
		Pass: manifest.PassMinify,
	})
	return nil
}

func (o *Optimizer) stageWriteManifest(_ context.Context, rs *RunState) error {
	rs.Manifest.Finish(true)
	path := filepath.Join(rs.SnapshotDir, manifestFileName)
	if err := rs.Manifest.Write(path); err != nil {
		return NewWarnStageError(StageWriteManifest, err)
	}
	slog.Info("Wrote run manifest",
		logfields.Path(path),
		logfields.RunID(rs.Manifest.RunID))
	return nil
}

// bestRef renders an asset path portably for logs, falling back to the raw
// path when it escapes the snapshot.
func bestRef(root, p string) string {
	if ref, err := pathref.Portable(root, p); err == nil {
		return ref
	}
	return strings.TrimPrefix(p, root+string(filepath.Separator))
}
