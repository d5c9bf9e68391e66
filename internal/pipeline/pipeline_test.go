package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpress/internal/config"
	"git.home.luguber.info/inful/assetpress/internal/font"
	"git.home.luguber.info/inful/assetpress/internal/manifest"
)

// fakeCodec reads the pixel width from the file content itself ("width:NNN").
type fakeCodec struct{}

func (fakeCodec) ReadWidth(data []byte) (int, error) {
	s := string(data)
	if !strings.HasPrefix(s, "width:") {
		return 0, fmt.Errorf("unreadable raster")
	}
	return strconv.Atoi(strings.TrimPrefix(s, "width:"))
}

func (fakeCodec) ResizeEncode(data []byte, width int, format string) ([]byte, error) {
	return []byte(fmt.Sprintf("resized:%d:%s", width, format)), nil
}

type fakeFontLibrary struct{}

func (fakeFontLibrary) Init() error { return nil }

func (fakeFontLibrary) Decode(data []byte, formatHint string) (font.GlyphTable, error) {
	if string(data) == "corrupt" {
		return nil, fmt.Errorf("no glyph table")
	}
	return fakeGlyphTable{}, nil
}

type fakeGlyphTable struct{}

func (fakeGlyphTable) Filter(keep func(rune) bool) (font.GlyphSubset, error) {
	return fakeGlyphSubset{}, nil
}

type fakeGlyphSubset struct{}

func (fakeGlyphSubset) Encode(targetFormat string) ([]byte, error) {
	return []byte("compressed-font"), nil
}

func (fakeGlyphSubset) Coverage() []rune { return []rune{'a'} }

func seedSite(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(src, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	}

	write("index.html", `<html><body><img src="assets/img/hero.jpg" alt="Hero"></body></html>`)
	write("assets/img/hero.jpg", "width:256")
	write("assets/css/site.css", `@font-face {
  font-family: Body;
  src: url("../fonts/body.ttf") format("truetype");
}
.hero { background: url("../img/hero.jpg"); }
`)
	write("assets/fonts/body.ttf", "ttf-bytes")
	write("assets/js/app.js", "var answer = 40 + 2;\n")
	return src
}

func testConfig(src, out string) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{Directory: src},
		Output: config.OutputConfig{Directory: out, Clean: true},
		Images: config.ImagesConfig{Enabled: true, Quality: 82},
		Fonts:  config.FontsConfig{Enabled: true},
		Minify: config.MinifyConfig{Scripts: true, Styles: true},
	}
}

func newTestOptimizer(cfg *config.Config) *Optimizer {
	return New(cfg,
		WithCodec(fakeCodec{}),
		WithFontLibrary(fakeFontLibrary{}))
}

func TestRunFullPipeline(t *testing.T) {
	src := seedSite(t)
	out := filepath.Join(t.TempDir(), "optimized")
	o := newTestOptimizer(testConfig(src, out))

	m, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Success)
	assert.Empty(t, m.Failures)

	// Raster: 256px wide means buckets 128, 256 and the untouched original.
	for _, rel := range []string{
		"assets/img/128/hero-128w.jpg",
		"assets/img/256/hero-256w.jpg",
		"assets/img/original/hero.jpg",
	} {
		_, statErr := os.Stat(filepath.Join(out, rel))
		assert.NoError(t, statErr, rel)
	}
	_, statErr := os.Stat(filepath.Join(out, "assets/img/hero.jpg"))
	assert.True(t, os.IsNotExist(statErr), "original raster should be deleted")

	html, readErr := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, readErr)
	assert.Contains(t, string(html), `src="assets/img/original/hero.jpg"`)
	assert.Contains(t, string(html), `srcset=`)
	assert.Contains(t, string(html), "hero-128w.jpg 128w")

	// Font converted and stylesheet updated.
	woff2, readErr := os.ReadFile(filepath.Join(out, "assets/fonts/body.woff2"))
	require.NoError(t, readErr)
	assert.Equal(t, "compressed-font", string(woff2))
	_, statErr = os.Stat(filepath.Join(out, "assets/fonts/body.ttf"))
	assert.True(t, os.IsNotExist(statErr), "original font should be deleted")

	css, readErr := os.ReadFile(filepath.Join(out, "assets/css/site.css"))
	require.NoError(t, readErr)
	assert.Contains(t, string(css), "body.woff2")
	assert.NotContains(t, string(css), "body.ttf")
	assert.NotContains(t, string(css), "truetype")
	assert.Contains(t, string(css), "img/original/hero.jpg")

	// Script was minified in place.
	js, readErr := os.ReadFile(filepath.Join(out, "assets/js/app.js"))
	require.NoError(t, readErr)
	assert.Less(t, len(js), len("var answer = 40 + 2;\n"))

	// Manifest written beside the optimized tree.
	loaded, loadErr := manifest.Load(filepath.Join(out, manifestFileName))
	require.NoError(t, loadErr)
	assert.Equal(t, m.RunID, loaded.RunID)
	assert.Len(t, loaded.ByPass(manifest.PassImages), 1)
	assert.Len(t, loaded.ByPass(manifest.PassFonts), 1)

	// Source tree untouched.
	orig, readErr := os.ReadFile(filepath.Join(src, "assets/img/hero.jpg"))
	require.NoError(t, readErr)
	assert.Equal(t, "width:256", string(orig))
}

func TestRunIsolatesAssetFailures(t *testing.T) {
	src := seedSite(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "assets", "img", "broken.png"), []byte("garbage"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "assets", "fonts", "corrupt.otf"), []byte("corrupt"), 0o640))

	out := filepath.Join(t.TempDir(), "optimized")
	o := newTestOptimizer(testConfig(src, out))

	m, err := o.Run(context.Background())
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorWarning, se.Kind)

	// The healthy assets were still processed.
	_, statErr := os.Stat(filepath.Join(out, "assets/img/original/hero.jpg"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(out, "assets/fonts/body.woff2"))
	assert.NoError(t, statErr)

	// The broken ones were left in place and recorded.
	_, statErr = os.Stat(filepath.Join(out, "assets/img/broken.png"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(out, "assets/fonts/corrupt.otf"))
	assert.NoError(t, statErr)

	require.Len(t, m.Failures, 2)
	paths := []string{m.Failures[0].Path, m.Failures[1].Path}
	assert.Contains(t, paths, "assets/img/broken.png")
	assert.Contains(t, paths, "assets/fonts/corrupt.otf")
}

func TestRunSecondPassIsStable(t *testing.T) {
	src := seedSite(t)
	out := filepath.Join(t.TempDir(), "optimized")

	// First run against the source, second run re-optimizes its own output.
	first := newTestOptimizer(testConfig(src, out))
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	html1, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)

	out2 := filepath.Join(t.TempDir(), "optimized2")
	second := newTestOptimizer(testConfig(out, out2))
	_, err = second.Run(context.Background())
	require.NoError(t, err)

	html2, err := os.ReadFile(filepath.Join(out2, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, string(html1), string(html2))

	// Variant outputs were recognized, not re-expanded.
	_, statErr := os.Stat(filepath.Join(out2, "assets/img/original/original/hero.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunRewritesStyleBlocksInHTML(t *testing.T) {
	src := seedSite(t)
	page := `<html><head><style>
.banner { background-image: url("assets/img/hero.jpg"); }
</style></head><body><img src="assets/img/hero.jpg"></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte(page), 0o640))

	out := filepath.Join(t.TempDir(), "optimized")
	o := newTestOptimizer(testConfig(src, out))

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	got := string(html)

	// Both the img element and the style block must follow the relocated
	// original; the source file it pointed at no longer exists.
	assert.Contains(t, got, `src="assets/img/original/hero.jpg"`)
	assert.Contains(t, got, `url("assets/img/original/hero.jpg")`)
	assert.NotContains(t, got, `url("assets/img/hero.jpg")`)
	_, statErr := os.Stat(filepath.Join(out, "assets/img/hero.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunKeepsSameNamedRastersApart(t *testing.T) {
	src := seedSite(t)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "assets", "pics"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "assets", "pics", "hero.jpg"), []byte("width:256"), 0o640))
	css := `.a { background: url("../img/hero.jpg"); }
.b { background: url("../pics/hero.jpg"); }
`
	require.NoError(t, os.WriteFile(filepath.Join(src, "assets", "css", "site.css"), []byte(css), 0o640))

	out := filepath.Join(t.TempDir(), "optimized")
	o := newTestOptimizer(testConfig(src, out))

	m, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.ByPass(manifest.PassImages), 2)

	rewritten, err := os.ReadFile(filepath.Join(out, "assets/css/site.css"))
	require.NoError(t, err)
	got := string(rewritten)

	// Each reference follows its own asset; no substitution may fire inside
	// the other asset's already-rewritten reference.
	assert.Contains(t, got, "../img/original/hero.jpg")
	assert.Contains(t, got, "../pics/original/hero.jpg")
	assert.NotContains(t, got, "original/original")

	for _, rel := range []string{
		"assets/img/original/hero.jpg",
		"assets/pics/original/hero.jpg",
	} {
		_, statErr := os.Stat(filepath.Join(out, rel))
		assert.NoError(t, statErr, rel)
	}
}

func TestRunFatalOnMissingSource(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out"))
	o := newTestOptimizer(cfg)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, StagePrepareSnapshot, se.Stage)
}

func TestRunHonorsCancellation(t *testing.T) {
	src := seedSite(t)
	cfg := testConfig(src, filepath.Join(t.TempDir(), "out"))
	o := newTestOptimizer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx)
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorCanceled, se.Kind)
}

func TestRunDisabledPasses(t *testing.T) {
	src := seedSite(t)
	out := filepath.Join(t.TempDir(), "optimized")
	cfg := testConfig(src, out)
	cfg.Images.Enabled = false
	cfg.Fonts.Enabled = false
	cfg.Minify = config.MinifyConfig{}

	o := newTestOptimizer(cfg)
	m, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m.Processed)

	// Nothing was touched beyond the snapshot copy.
	_, statErr := os.Stat(filepath.Join(out, "assets/img/hero.jpg"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(out, "assets/fonts/body.ttf"))
	assert.NoError(t, statErr)
}
