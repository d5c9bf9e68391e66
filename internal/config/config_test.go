package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "assetpress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  directory: ./dist
images:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./dist", cfg.Source.Directory)
	assert.Equal(t, "./optimized", cfg.Output.Directory)
	assert.Equal(t, 82, cfg.Images.Quality)
	assert.Equal(t, 2, cfg.Watch.DebounceSeconds)
	assert.Equal(t, "assetpress.runs", cfg.Events.Subject)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadRequiresSourceDirectory(t *testing.T) {
	path := writeConfig(t, `
output:
  directory: ./out
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.directory")
}

func TestLoadRejectsBadQuality(t *testing.T) {
	path := writeConfig(t, `
source:
  directory: ./dist
images:
  quality: 140
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quality")
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ASSETPRESS_TEST_SRC", "/srv/site")
	path := writeConfig(t, `
source:
  directory: ${ASSETPRESS_TEST_SRC}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/site", cfg.Source.Directory)
}

func TestLoadEventsRequireURL(t *testing.T) {
	path := writeConfig(t, `
source:
  directory: ./dist
events:
  enabled: true
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.url")
}

func TestHistoryDefaultPathOnlyWhenEnabled(t *testing.T) {
	path := writeConfig(t, `
source:
  directory: ./dist
history:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "assetpress-history.db", cfg.History.Path)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assetpress.yaml")

	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./dist", cfg.Source.Directory)
	assert.True(t, cfg.Images.Enabled)

	err = Init(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, Init(path, true))
}
