// Package pathref converts filesystem paths to portable, slash-normalized,
// snapshot-root-relative reference strings. Portable references are the keys
// used by the rewriters for text matching: two asset paths refer to the same
// asset iff their portable references are string-equal, independent of the
// platform path separator.
package pathref

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Portable converts an absolute path inside root to its portable reference.
// The result always uses forward slashes and never starts with "./" or "/".
func Portable(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("relativize %s against %s: %w", abs, root, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s escapes snapshot root %s", abs, root)
	}
	return rel, nil
}

// Absolute resolves a portable reference back to an absolute path under root.
func Absolute(root, ref string) string {
	return filepath.Join(root, filepath.FromSlash(ref))
}

// RelativeTo renders target as a reference relative to the directory that
// contains fromFile. Both arguments are portable references against the same
// root. This is the form written into src attributes and url() tokens.
func RelativeTo(fromFile, target string) string {
	rel, err := filepath.Rel(path.Dir(fromFile), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

// Base returns the final path element of a portable reference.
func Base(ref string) string {
	return path.Base(ref)
}

// Ext returns the extension of a portable reference without the leading dot,
// lowered for case-insensitive comparison.
func Ext(ref string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(ref), "."))
}

// SwapExt returns ref with its extension replaced by ext (without dot).
func SwapExt(ref, ext string) string {
	return strings.TrimSuffix(ref, path.Ext(ref)) + "." + ext
}
