package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return p
}

func TestScanFiltersByClass(t *testing.T) {
	root := t.TempDir()
	img := write(t, root, "img/photo.jpg")
	png := write(t, root, "img/icon.PNG")
	font := write(t, root, "fonts/body.ttf")
	html := write(t, root, "index.html")
	write(t, root, "notes.txt") // unrecognized

	rasters, err := Scan(root, ClassRaster)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{img, png}, rasters)

	fonts, err := Scan(root, ClassFont)
	require.NoError(t, err)
	assert.Equal(t, []string{font}, fonts)

	text, err := Scan(root, ClassText)
	require.NoError(t, err)
	assert.Equal(t, []string{html}, text)
}

func TestScanSkipsHiddenAndDependencyDirs(t *testing.T) {
	root := t.TempDir()
	keep := write(t, root, "css/site.css")
	write(t, root, ".cache/stale.css")
	write(t, root, "node_modules/pkg/dist.js")
	write(t, root, "vendor/lib/vendored.js")
	write(t, root, "img/.hidden.jpg")

	got, err := Scan(root, ClassText, ClassRaster)
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, got)
}

func TestScanSortedAndMultiClass(t *testing.T) {
	root := t.TempDir()
	b := write(t, root, "b/page.html")
	a := write(t, root, "a/photo.jpeg")

	got, err := Scan(root, ClassRaster, ClassText)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want Class
		ok   bool
	}{
		{"x/photo.JPG", ClassRaster, true},
		{"x/photo.jpeg", ClassRaster, true},
		{"x/body.otf", ClassFont, true},
		{"x/body.woff2", ClassFont, true},
		{"x/app.js", ClassText, true},
		{"x/site.css", ClassText, true},
		{"x/page.html", ClassText, true},
		{"x/readme.md", "", false},
		{"x/archive.gz", "", false},
	}
	for _, tc := range cases {
		c, ok := Classify(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		assert.Equal(t, tc.want, c, tc.path)
	}
}
