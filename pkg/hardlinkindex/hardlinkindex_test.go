package hardlinkindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	entries []Entry
	err     error
	calls   int
}

func (s *stubScanner) Scan(_ context.Context, _ string, _ bool) ([]Entry, error) {
	s.calls++
	return s.entries, s.err
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLinkInfo(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")

	writeFile(t, a, "data")
	require.NoError(t, os.Link(a, b))

	idA, nlinkA, err := LinkInfo(a)
	require.NoError(t, err)
	idB, nlinkB, err := LinkInfo(b)
	require.NoError(t, err)

	assert.True(t, idA.Equal(idB))
	assert.EqualValues(t, 2, nlinkA)
	assert.EqualValues(t, 2, nlinkB)
}

func TestLinkInfo_Missing(t *testing.T) {
	_, _, err := LinkInfo(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIndexer_Lookup_SingleLink_NeverBuilds(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	writeFile(t, a, "solo")

	scanner := &stubScanner{err: errors.New("should not be called")}
	idx := NewIndexer(scanner, dir, false, time.Minute)

	paths, err := idx.Lookup(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, paths)
	assert.Zero(t, scanner.calls)
}

func TestIndexer_Lookup_Group(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "sub", "b")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	writeFile(t, a, "shared")
	require.NoError(t, os.Link(a, b))

	idx := NewIndexer(NewNativeScanner(), dir, false, time.Minute)

	paths, err := idx.Lookup(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, b, paths[0], "queried path leads the group")
	assert.Contains(t, paths, a)
	assert.Equal(t, 1, idx.Length())
}

func TestIndexer_Lookup_MissingFromIndex_FallsBack(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "shared")
	require.NoError(t, os.Link(a, b))

	// scan raced: index knows nothing about this inode
	idx := NewIndexer(&stubScanner{}, dir, false, time.Minute)

	paths, err := idx.Lookup(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, paths)
}

func TestIndexer_ScanFailure_IsFatalAndNeverRebuilds(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "shared")
	require.NoError(t, os.Link(a, b))

	scanner := &stubScanner{err: errors.New("scan facility unavailable")}
	idx := NewIndexer(scanner, dir, false, time.Minute)

	_, err := idx.Lookup(context.Background(), a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanFailed)

	_, err = idx.Lookup(context.Background(), b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.Equal(t, 1, scanner.calls, "index is built at most once")
}

func TestIndexer_Lookup_MissingFile(t *testing.T) {
	idx := NewIndexer(&stubScanner{}, t.TempDir(), false, time.Minute)

	missing := filepath.Join(t.TempDir(), "gone")
	paths, err := idx.Lookup(context.Background(), missing)
	require.NoError(t, err)
	assert.Equal(t, []string{missing}, paths)
}

func TestNativeScanner_FindsOnlyMultiplyLinked(t *testing.T) {
	dir := t.TempDir()
	solo := filepath.Join(dir, "solo")
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, solo, "alone")
	writeFile(t, a, "shared")
	require.NoError(t, os.Link(a, b))

	entries, err := NewNativeScanner().Scan(context.Background(), dir, false)
	require.NoError(t, err)

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{a, b}, paths)
}

func TestNativeScanner_IgnoresSymlinks(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	writeFile(t, a, "shared")
	require.NoError(t, os.Link(a, filepath.Join(dir, "b")))
	require.NoError(t, os.Symlink(a, filepath.Join(dir, "sym")))

	entries, err := NewNativeScanner().Scan(context.Background(), dir, false)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, filepath.Join(dir, "sym"), e.Path)
	}
}

func TestFindScanner_Parse(t *testing.T) {
	s := NewFindScanner()

	out := "64769 12345 /mnt/media/file one.mkv\n" +
		"64769 12345 /mnt/media/copies/file one.mkv\n" +
		"64769 67890 /mnt/media/other.mkv\n" +
		"\n" +
		"garbage\n"

	entries, err := s.parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, FileID{Device: 64769, Inode: 12345}, entries[0].ID)
	assert.Equal(t, "/mnt/media/file one.mkv", entries[0].Path)
	assert.Equal(t, "/mnt/media/copies/file one.mkv", entries[1].Path)
	assert.Equal(t, FileID{Device: 64769, Inode: 67890}, entries[2].ID)
}

func TestFindScanner_Parse_BadDevice(t *testing.T) {
	s := NewFindScanner()
	_, err := s.parse([]byte("notanumber 5 /some/path\n"))
	assert.Error(t, err)
}

func TestFileID_String(t *testing.T) {
	id := FileID{Device: 7, Inode: 42}
	assert.Equal(t, "7:42", id.String())
}
