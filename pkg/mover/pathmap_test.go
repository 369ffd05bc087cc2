package mover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoPuccio/smartmove/pkg/fsutils"
)

func newTestMapper() *PathMapper {
	return NewPathMapper(
		"/mnt/ssd/media/movies", "/mnt/hdd/media/movies",
		"/mnt/ssd", "/mnt/hdd",
		fsutils.NewBoundaryResolver(),
	)
}

func TestPathMapper_InScope(t *testing.T) {
	m := newTestMapper()

	dest, err := m.MapDestination("/mnt/ssd/media/movies/film/a.mkv")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/hdd/media/movies/film/a.mkv", dest)
}

func TestPathMapper_SourceRootItself(t *testing.T) {
	m := newTestMapper()

	dest, err := m.MapDestination("/mnt/ssd/media/movies")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/hdd/media/movies", dest)
}

func TestPathMapper_CrossScope_MirrorsBoundaryRelativePosition(t *testing.T) {
	m := newTestMapper()

	// same filesystem, outside the moved subtree
	dest, err := m.MapDestination("/mnt/ssd/seeds/film/a.mkv")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/hdd/seeds/film/a.mkv", dest)
}

func TestRelativeTo(t *testing.T) {
	rel, ok := relativeTo("/a/b/c", "/a/b")
	assert.True(t, ok)
	assert.Equal(t, "c", rel)

	_, ok = relativeTo("/a/x/c", "/a/b")
	assert.False(t, ok)

	rel, ok = relativeTo("/a/b", "/a/b")
	assert.True(t, ok)
	assert.Equal(t, ".", rel)

	// sibling with a shared name prefix is not inside
	_, ok = relativeTo("/a/bc", "/a/b")
	assert.False(t, ok)
}
