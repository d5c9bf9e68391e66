package rewrite

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"

	"git.home.luguber.info/inful/assetpress/internal/pathref"
)

// refPair is one textual form of a reference and its rewritten counterpart.
type refPair struct {
	old []byte
	new []byte
}

// refPairs lists the forms under which the document at fileRef may spell a
// reference to oldRef, each paired with the equivalent spelling of newRef:
// relative to the document, root-relative with a leading slash, and the bare
// portable reference. Longer forms are substituted first so a shorter form
// never fires inside a longer one. Bare file names are deliberately not a
// form; assets sharing a name in different directories must stay independent.
func refPairs(fileRef, oldRef, newRef string) []refPair {
	pairs := []refPair{
		{old: []byte(pathref.RelativeTo(fileRef, oldRef)), new: []byte(pathref.RelativeTo(fileRef, newRef))},
		{old: []byte("/" + oldRef), new: []byte("/" + newRef)},
		{old: []byte(oldRef), new: []byte(newRef)},
	}

	seen := map[string]bool{}
	out := pairs[:0]
	for _, p := range pairs {
		if !seen[string(p.old)] {
			seen[string(p.old)] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].old) > len(out[j].old) })
	return out
}

// ReplaceAssetRefs substitutes every textual form of oldRef in the document
// at fileRef with the corresponding form of newRef and reports the total
// substitution count. Purely textual: the caller decides which text assets
// are candidates.
func ReplaceAssetRefs(src []byte, fileRef, oldRef, newRef string) ([]byte, int) {
	if oldRef == newRef {
		return src, 0
	}
	total := 0
	for _, p := range refPairs(fileRef, oldRef, newRef) {
		n := bytes.Count(src, p.old)
		if n == 0 {
			continue
		}
		src = bytes.ReplaceAll(src, p.old, p.new)
		total += n
	}
	return src, total
}

var (
	fontFaceBlockRe = regexp.MustCompile(`@font-face\s*\{[^}]*\}`)
	legacyFormatRe  = regexp.MustCompile(`format\(\s*["']?(?:truetype|opentype|ttf|otf)["']?\s*\)`)
	urlTokenRe      = regexp.MustCompile(`url\(\s*["']?[^"')]+["']?\s*\)`)
)

// compressedFormatHint is the format token for the compressed web container.
const compressedFormatHint = `format("woff2")`

// NormalizeFontFormats rewrites legacy format hints inside every @font-face
// block whose url() mentions the converted font, and appends a hint to blocks
// that reference it without one. Matching is scoped to the enclosing block so
// unrelated rules are never touched. newRef is the portable reference of the
// converted font. Returns the updated content and whether anything changed.
func NormalizeFontFormats(src []byte, newRef string) ([]byte, bool) {
	base := []byte(pathref.Base(newRef))
	changed := false

	out := fontFaceBlockRe.ReplaceAllFunc(src, func(block []byte) []byte {
		if !bytes.Contains(block, base) {
			return block
		}
		updated := legacyFormatRe.ReplaceAll(block, []byte(compressedFormatHint))

		// A block pointing at the new container without any hint gets one
		// appended after its url() token.
		if !bytes.Contains(updated, []byte("format(")) {
			updated = urlTokenRe.ReplaceAllFunc(updated, func(url []byte) []byte {
				if !bytes.Contains(url, base) {
					return url
				}
				return append(append([]byte{}, url...), []byte(" "+compressedFormatHint)...)
			})
		}
		if !bytes.Equal(updated, block) {
			changed = true
		}
		return updated
	})
	return out, changed
}

// RewriteTextAsset applies the literal reference substitution to the text
// document at fileRef and, when the asset is a converted font, normalizes
// format hints. font reports whether the substitution is a font conversion.
func RewriteTextAsset(src []byte, fileRef, oldRef, newRef string, font bool) ([]byte, bool, error) {
	if oldRef == "" || newRef == "" {
		return nil, false, fmt.Errorf("empty reference in rewrite %q -> %q", oldRef, newRef)
	}
	out, n := ReplaceAssetRefs(src, fileRef, oldRef, newRef)
	changed := n > 0
	if font {
		var normalized bool
		out, normalized = NormalizeFontFormats(out, newRef)
		changed = changed || normalized
	}
	return out, changed, nil
}
