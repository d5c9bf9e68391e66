// Package catalog enumerates optimizable assets in a built site tree.
package catalog

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Class groups recognized extensions by how the pipeline treats them.
type Class string

const (
	ClassRaster Class = "raster" // resized into breakpoint variants
	ClassFont   Class = "font"   // subsetted and re-compressed
	ClassText   Class = "text"   // rewritable and minifiable
)

// Recognized extensions per class (lower-case, without dot).
var (
	RasterExts = map[string]bool{"jpg": true, "jpeg": true, "png": true}
	FontExts   = map[string]bool{"ttf": true, "otf": true, "woff2": true}
	TextExts   = map[string]bool{"html": true, "css": true, "js": true}
)

// skippedDirs are dependency directories never descended into.
var skippedDirs = map[string]bool{
	"node_modules":     true,
	"vendor":           true,
	"bower_components": true,
}

// Classify returns the asset class for a path, or false when the extension
// is not recognized.
func Classify(path string) (Class, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch {
	case RasterExts[ext]:
		return ClassRaster, true
	case FontExts[ext]:
		return ClassFont, true
	case TextExts[ext]:
		return ClassText, true
	}
	return "", false
}

// Scan walks root recursively and returns the absolute paths of all assets
// whose extension matches one of the given classes. Hidden entries (leading
// dot) and dependency directories are skipped. Results are sorted for
// deterministic pass ordering.
func Scan(root string, classes ...Class) ([]string, error) {
	want := make(map[Class]bool, len(classes))
	for _, c := range classes {
		want[c] = true
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if c, ok := Classify(path); ok && want[c] {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)
	return out, nil
}
