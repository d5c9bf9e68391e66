package image

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetpress/internal/logfields"
	"git.home.luguber.info/inful/assetpress/internal/pathref"
	"git.home.luguber.info/inful/assetpress/internal/plan"
)

// Variant describes one materialized breakpoint file. Variants are created
// during materialization, immutable afterwards, and consumed by the
// rewriters; this subsystem never deletes them.
type Variant struct {
	OutputPath string    // absolute path inside the snapshot
	Ref        string    // portable reference of the output
	Width      int
	Bucket     string
	Kind       plan.Kind
}

// Materializer produces the variant files for one original raster.
type Materializer struct {
	codec Codec
	root  string // snapshot root
}

// NewMaterializer wires a codec against a snapshot root.
func NewMaterializer(codec Codec, snapshotRoot string) *Materializer {
	return &Materializer{codec: codec, root: snapshotRoot}
}

// Plan measures the original and derives its breakpoint plan.
func (m *Materializer) Plan(assetPath string, data []byte) (plan.Plan, error) {
	width, err := m.codec.ReadWidth(data)
	if err != nil {
		return nil, fmt.Errorf("measure %s: %w", assetPath, err)
	}
	return plan.Compute(assetPath, width)
}

// Materialize writes one encoded file per plan entry, bucketed by size:
// <dir>/<bucket>/<base>-<width>w.<ext>, with the original bucket omitting the
// width suffix. Directories are created on demand. The first failed variant
// aborts the remaining entries for this asset.
func (m *Materializer) Materialize(assetPath string, data []byte, p plan.Plan) ([]Variant, error) {
	dir := filepath.Dir(assetPath)
	base := filepath.Base(assetPath)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	variants := make([]Variant, 0, len(p))
	for _, entry := range p {
		name := fmt.Sprintf("%s-%dw.%s", stem, entry.Width, ext)
		if entry.Kind == plan.KindOriginal {
			name = base
		}
		outPath := filepath.Join(dir, entry.Bucket, name)

		if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
			return nil, fmt.Errorf("create bucket dir for %s: %w", assetPath, err)
		}

		encoded, err := m.codec.ResizeEncode(data, entry.Width, ext)
		if err != nil {
			return nil, fmt.Errorf("variant %dw of %s: %w", entry.Width, assetPath, err)
		}
		if err := os.WriteFile(outPath, encoded, 0o640); err != nil {
			return nil, fmt.Errorf("write variant %s: %w", outPath, err)
		}

		ref, err := pathref.Portable(m.root, outPath)
		if err != nil {
			return nil, err
		}
		variants = append(variants, Variant{
			OutputPath: outPath,
			Ref:        ref,
			Width:      entry.Width,
			Bucket:     entry.Bucket,
			Kind:       entry.Kind,
		})
		slog.Debug("Materialized variant",
			logfields.Asset(assetPath),
			logfields.Width(entry.Width),
			logfields.Bucket(entry.Bucket))
	}
	return variants, nil
}

// Original returns the original-kind variant from a set.
func Original(variants []Variant) (Variant, bool) {
	for _, v := range variants {
		if v.Kind == plan.KindOriginal {
			return v, true
		}
	}
	return Variant{}, false
}

// NonOriginal returns all non-original variants preserving ascending width order.
func NonOriginal(variants []Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.Kind != plan.KindOriginal {
			out = append(out, v)
		}
	}
	return out
}
