package fsutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestExistingAncestor(t *testing.T) {
	dir := t.TempDir()

	got, err := NearestExistingAncestor(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	got, err = NearestExistingAncestor(filepath.Join(dir, "a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestIsDirEmpty(t *testing.T) {
	dir := t.TempDir()

	empty, err := IsDirEmpty(dir)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))
	empty, err = IsDirEmpty(dir)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestMeasureTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("123"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a"), filepath.Join(dir, "link")))

	stats, err := MeasureTree(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Files, "two regular files plus one symlink")
	assert.EqualValues(t, 8, stats.Bytes, "symlink target size is not counted")
}

func TestMeasureTree_SingleFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(f, []byte("1234"), 0o644))

	stats, err := MeasureTree(f)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Files)
	assert.EqualValues(t, 4, stats.Bytes)
}

func TestBoundaryResolver(t *testing.T) {
	dir := t.TempDir()
	r := NewBoundaryResolver()

	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	boundary, err := r.Resolve(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(canonical, boundary) || boundary == "/",
		"boundary %q should be an ancestor of %q", boundary, canonical)

	// nonexistent paths resolve through the nearest existing ancestor
	deep, err := r.Resolve(filepath.Join(dir, "not", "yet", "created"))
	require.NoError(t, err)
	assert.Equal(t, boundary, deep)
}

func TestDirectoryMaterializer(t *testing.T) {
	dir := t.TempDir()
	m := NewDirectoryMaterializer(false, false)

	target := filepath.Join(dir, "new", "nested", "path")
	require.NoError(t, m.Ensure(target))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	// second ensure hits the cache
	require.NoError(t, m.Ensure(target))
}

func TestDirectoryMaterializer_DryRun(t *testing.T) {
	dir := t.TempDir()
	m := NewDirectoryMaterializer(true, false)

	target := filepath.Join(dir, "preview")
	require.NoError(t, m.Ensure(target))

	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err), "dry run must not create directories")
}

func TestDirectoryMaterializer_FileConflict(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	m := NewDirectoryMaterializer(false, false)
	assert.Error(t, m.Ensure(file))
}

func TestDeviceID_SameFilesystem(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	devA, err := DeviceID(dir)
	require.NoError(t, err)
	devB, err := DeviceID(sub)
	require.NoError(t, err)
	assert.Equal(t, devA, devB)
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestWritable(t *testing.T) {
	assert.True(t, Writable(t.TempDir()))
}
