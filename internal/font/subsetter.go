// Package font converts site fonts to subsetted, compressed web containers.
//
// The binary parsing and glyph work is delegated to an external library
// collaborator; this package owns the allow-list policy, the one-time
// readiness gate, and the WOFF2 container framing.
package font

import (
	"fmt"
	"sync"

	tdfont "github.com/tdewolff/font"
)

// Library is the external font collaborator.
type Library interface {
	// Init performs the library's one-time shared initialization. The
	// Subsetter awaits it once and caches the result for every conversion.
	Init() error
	// Decode parses a font binary into a glyph table view. formatHint is the
	// source extension ("ttf", "otf").
	Decode(data []byte, formatHint string) (GlyphTable, error)
}

// GlyphTable is a decoded font's glyph and code-point view.
type GlyphTable interface {
	// Filter prunes the table to glyphs whose code point satisfies keep,
	// rebuilding the code-point lookup to exactly the retained set.
	Filter(keep func(rune) bool) (GlyphSubset, error)
}

// GlyphSubset is a pruned glyph set ready for encoding.
type GlyphSubset interface {
	// Encode re-encodes the subset into targetFormat ("woff2" or "ttf").
	Encode(targetFormat string) ([]byte, error)
	// Coverage returns the retained code points in ascending order.
	Coverage() []rune
}

// TargetFormat is the compressed web container every converted font gets.
const TargetFormat = "woff2"

// woff2Magic is the container signature ("wOF2").
var woff2Magic = []byte{'w', 'O', 'F', '2'}

// IsWOFF2 checks whether data already carries the compressed container,
// by magic bytes.
func IsWOFF2(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == woff2Magic[0] && data[1] == woff2Magic[1] &&
		data[2] == woff2Magic[2] && data[3] == woff2Magic[3]
}

// Subsetter drives the library collaborator with the fixed allow-list.
type Subsetter struct {
	lib   Library
	keep  func(rune) bool
	ready func() error // one-time gate, result cached
}

// NewSubsetter constructs a subsetter around a library. The library's
// initialization is not run here; the first conversion awaits it and all
// later conversions reuse the cached result.
func NewSubsetter(lib Library) *Subsetter {
	return &Subsetter{
		lib:   lib,
		keep:  Allowed,
		ready: sync.OnceValue(lib.Init),
	}
}

// Convert subsets data and re-encodes it as WOFF2. An already-compressed
// font is passed through unchanged (converted=false). Any failure is a hard
// per-asset failure; the caller leaves the original in place.
func (s *Subsetter) Convert(data []byte, formatHint string) (out []byte, converted bool, err error) {
	if IsWOFF2(data) || formatHint == TargetFormat {
		return data, false, nil
	}
	if err := s.ready(); err != nil {
		return nil, false, fmt.Errorf("font library initialization: %w", err)
	}

	table, err := s.lib.Decode(data, formatHint)
	if err != nil {
		return nil, false, fmt.Errorf("decode font: %w", err)
	}
	subset, err := table.Filter(s.keep)
	if err != nil {
		return nil, false, fmt.Errorf("filter glyphs: %w", err)
	}
	encoded, err := subset.Encode(TargetFormat)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s: %w", TargetFormat, err)
	}
	return encoded, true, nil
}

// sfntLibrary implements Library on github.com/tdewolff/font.
type sfntLibrary struct{}

// NewSFNTLibrary returns the production library collaborator.
func NewSFNTLibrary() Library {
	return sfntLibrary{}
}

func (sfntLibrary) Init() error { return nil }

func (sfntLibrary) Decode(data []byte, formatHint string) (GlyphTable, error) {
	raw, err := tdfont.ToSFNT(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", formatHint, err)
	}
	sfnt, err := tdfont.ParseSFNT(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("parse %s tables: %w", formatHint, err)
	}
	return &sfntGlyphTable{sfnt: sfnt}, nil
}

// maxScanRune bounds the cmap scan; the allow-list lives entirely in the BMP.
const maxScanRune = 0xFFFF

type sfntGlyphTable struct {
	sfnt *tdfont.SFNT
}

func (t *sfntGlyphTable) Filter(keep func(rune) bool) (GlyphSubset, error) {
	glyphIDs := []uint16{0} // .notdef always survives
	seen := map[uint16]bool{0: true}
	var coverage []rune

	for r := rune(0); r <= maxScanRune; r++ {
		if !keep(r) {
			continue
		}
		gid := t.sfnt.GlyphIndex(r)
		if gid == 0 {
			continue
		}
		coverage = append(coverage, r)
		if !seen[gid] {
			seen[gid] = true
			glyphIDs = append(glyphIDs, gid)
		}
	}
	if len(coverage) == 0 {
		return nil, fmt.Errorf("no allow-listed code points mapped by font")
	}

	// The second return is the old-to-new glyph ID mapping. The re-encoded
	// tables already carry the remapped IDs and nothing downstream addresses
	// glyphs by their pre-subset index, so the mapping is not kept.
	subset, _ := t.sfnt.Subset(glyphIDs, tdfont.SubsetOptions{Tables: tdfont.KeepAllTables})
	return &sfntGlyphSubset{sfnt: subset, coverage: coverage}, nil
}

type sfntGlyphSubset struct {
	sfnt     *tdfont.SFNT
	coverage []rune
}

func (s *sfntGlyphSubset) Coverage() []rune { return s.coverage }

func (s *sfntGlyphSubset) Encode(targetFormat string) ([]byte, error) {
	raw := s.sfnt.Write()
	switch targetFormat {
	case "ttf":
		return raw, nil
	case TargetFormat:
		return encodeWOFF2(raw)
	default:
		return nil, fmt.Errorf("unsupported target format %q", targetFormat)
	}
}
