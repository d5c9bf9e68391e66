// Package rewrite mutates cross-file references in markup and style text.
// Mutations are expressed as targeted byte-range edits, never whole-document
// re-rendering, so reapplying a rewrite against already-correct content is a
// no-op.
package rewrite

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/assetpress/internal/catalog"
	"git.home.luguber.info/inful/assetpress/internal/image"
	"git.home.luguber.info/inful/assetpress/internal/pathref"
)

// Outcome is the terminal per-file, per-asset rewrite state.
type Outcome string

const (
	OutcomeRewritten Outcome = "rewritten"
	OutcomeUnchanged Outcome = "unchanged"
)

// RewriteHTML locates every img element in doc whose src resolves to the
// asset identified by origRef and rewrites it against the variant set: src
// points at the original-kind variant, srcset lists the non-original variants
// ascending by width. fileRef is the portable reference of the document
// itself; variant paths are rendered relative to it.
//
// An element already carrying the correct values produces no edit, so the
// operation is idempotent. The returned Outcome is OutcomeRewritten only when
// at least one substitution occurred.
func RewriteHTML(doc []byte, fileRef, origRef string, variants []image.Variant) ([]byte, Outcome, error) {
	original, ok := image.Original(variants)
	if !ok {
		return nil, OutcomeUnchanged, fmt.Errorf("variant set for %s has no original entry", origRef)
	}

	candidates := matchCandidates(origRef, original.Ref)
	srcValue := pathref.RelativeTo(fileRef, original.Ref)
	srcsetValue := buildSrcset(fileRef, variants)

	var edits []edit
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		raw := z.Raw()
		start := offset
		offset += len(raw)
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			continue
		}
		src := attrValue(tok, "src")
		if src == "" {
			continue
		}
		resolved := resolveRef(fileRef, src)
		if resolved == "" || !refMatches(resolved, candidates) {
			continue
		}

		rebuilt := buildImgTag(tok, tt == html.SelfClosingTagToken, srcValue, srcsetValue)
		if !bytes.Equal(rebuilt, raw) {
			// Copy raw-derived slices; the tokenizer reuses its buffer.
			edits = append(edits, edit{start: start, end: start + len(raw), text: rebuilt})
		}
	}

	if len(edits) == 0 {
		return doc, OutcomeUnchanged, nil
	}
	out, err := spliceEdits(doc, edits)
	if err != nil {
		return nil, OutcomeUnchanged, err
	}
	return out, OutcomeRewritten, nil
}

// edit is a tag replacement scheduled against offsets in the original
// document.
type edit struct {
	start, end int
	text       []byte
}

// spliceEdits rebuilds doc with every edit applied, copying the untouched
// gaps between them so everything outside the edited ranges survives byte
// for byte. Edits must lie within doc and must not overlap.
func spliceEdits(doc []byte, edits []edit) ([]byte, error) {
	sorted := make([]edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var out bytes.Buffer
	out.Grow(len(doc))
	cursor := 0
	for _, e := range sorted {
		if e.start < cursor || e.end < e.start || e.end > len(doc) {
			return nil, fmt.Errorf("edit range [%d,%d) invalid at offset %d", e.start, e.end, cursor)
		}
		out.Write(doc[cursor:e.start])
		out.Write(e.text)
		cursor = e.end
	}
	out.Write(doc[cursor:])
	return out.Bytes(), nil
}

// matchCandidates returns the portable references that identify the asset,
// most specific first: the canonical reference, the reference under every
// legacy raster extension, and any extra refs such as the relocated
// original. Matching is always against full references; a shared base name
// in another directory is a different asset.
func matchCandidates(origRef string, extra ...string) []string {
	seen := map[string]bool{origRef: true}
	out := []string{origRef}
	for ext := range catalog.RasterExts {
		c := pathref.SwapExt(origRef, ext)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range extra {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

func refMatches(resolved string, candidates []string) bool {
	for _, c := range candidates {
		if resolved == c {
			return true
		}
	}
	return false
}

// resolveRef resolves a src attribute value to a portable reference against
// the containing document. External and data URLs resolve to "".
func resolveRef(fileRef, src string) string {
	if strings.Contains(src, "://") || strings.HasPrefix(src, "//") || strings.HasPrefix(src, "data:") {
		return ""
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "/") {
		return path.Clean(strings.TrimPrefix(src, "/"))
	}
	return path.Clean(path.Join(path.Dir(fileRef), src))
}

func attrValue(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// buildSrcset renders the non-original variants as a comma-joined,
// ascending-width-ordered srcset value relative to fileRef.
func buildSrcset(fileRef string, variants []image.Variant) string {
	nonOrig := image.NonOriginal(variants)
	sort.Slice(nonOrig, func(i, j int) bool { return nonOrig[i].Width < nonOrig[j].Width })
	parts := make([]string, 0, len(nonOrig))
	for _, v := range nonOrig {
		parts = append(parts, fmt.Sprintf("%s %dw", pathref.RelativeTo(fileRef, v.Ref), v.Width))
	}
	return strings.Join(parts, ", ")
}

// buildImgTag re-renders an img start tag with src set and srcset replaced
// in place or injected immediately after src, preserving the order of all
// other attributes.
func buildImgTag(tok html.Token, selfClosing bool, src, srcset string) []byte {
	var b bytes.Buffer
	b.WriteString("<img")

	hasSrcset := attrValue(tok, "srcset") != "" || hasAttr(tok, "srcset")
	for _, a := range tok.Attr {
		val := a.Val
		switch a.Key {
		case "src":
			val = src
		case "srcset":
			val = srcset
		}
		fmt.Fprintf(&b, ` %s="%s"`, a.Key, html.EscapeString(val))
		if a.Key == "src" && !hasSrcset && srcset != "" {
			fmt.Fprintf(&b, ` srcset="%s"`, html.EscapeString(srcset))
		}
	}

	if selfClosing {
		b.WriteString(" />")
	} else {
		b.WriteString(">")
	}
	return b.Bytes()
}

func hasAttr(tok html.Token, key string) bool {
	for _, a := range tok.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
