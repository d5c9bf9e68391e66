package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSource(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "assets", "img"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<html></html>"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(src, "assets", "img", "hero.jpg"), []byte("jpeg"), 0o640))
	return src
}

func TestPrepareClonesSourceTree(t *testing.T) {
	src := seedSource(t)
	snap := filepath.Join(t.TempDir(), "snapshot")

	m := NewManager(src, snap, false)
	require.NoError(t, m.Prepare())

	data, err := os.ReadFile(filepath.Join(snap, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))

	data, err = os.ReadFile(filepath.Join(snap, "assets", "img", "hero.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestPrepareLeavesSourceUntouched(t *testing.T) {
	src := seedSource(t)
	snap := filepath.Join(t.TempDir(), "snapshot")

	m := NewManager(src, snap, false)
	require.NoError(t, m.Prepare())

	// Mutating the snapshot must not reach the source.
	require.NoError(t, os.Remove(filepath.Join(snap, "index.html")))
	_, err := os.Stat(filepath.Join(src, "index.html"))
	assert.NoError(t, err)
}

func TestPrepareRefusesMissingSource(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "snap"), false)
	err := m.Prepare()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source directory unavailable")
}

func TestPrepareRefusesFileSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o640))

	m := NewManager(src, filepath.Join(t.TempDir(), "snap"), false)
	err := m.Prepare()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestPrepareCleanDiscardsPreviousSnapshot(t *testing.T) {
	src := seedSource(t)
	snap := filepath.Join(t.TempDir(), "snapshot")

	require.NoError(t, os.MkdirAll(snap, 0o750))
	stale := filepath.Join(snap, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o640))

	m := NewManager(src, snap, true)
	require.NoError(t, m.Prepare())

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(snap, "index.html"))
	assert.NoError(t, err)
}

func TestPrepareWithoutCleanKeepsExtraFiles(t *testing.T) {
	src := seedSource(t)
	snap := filepath.Join(t.TempDir(), "snapshot")

	require.NoError(t, os.MkdirAll(snap, 0o750))
	extra := filepath.Join(snap, "extra.txt")
	require.NoError(t, os.WriteFile(extra, []byte("keep"), 0o640))

	m := NewManager(src, snap, false)
	require.NoError(t, m.Prepare())

	_, err := os.Stat(extra)
	assert.NoError(t, err)
}

func TestCleanup(t *testing.T) {
	src := seedSource(t)
	snap := filepath.Join(t.TempDir(), "snapshot")

	m := NewManager(src, snap, false)
	require.NoError(t, m.Prepare())
	require.NoError(t, m.Cleanup())

	_, err := os.Stat(snap)
	assert.True(t, os.IsNotExist(err))
}
