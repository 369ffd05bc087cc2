package mover

import (
	"path/filepath"
	"strings"

	"github.com/LeonardoPuccio/smartmove/pkg/fsutils"
)

// PathMapper computes destination paths for hardlink group members. A
// member inside the moved subtree keeps its position relative to the
// source root. A cross-scope member (same filesystem, outside the
// subtree) mirrors its position relative to the filesystem boundary
// instead, since it has no meaningful position relative to the subtree.
type PathMapper struct {
	sourceRoot     string
	destRoot       string
	sourceBoundary string
	destBoundary   string
	boundaries     *fsutils.BoundaryResolver
}

func NewPathMapper(sourceRoot, destRoot, sourceBoundary, destBoundary string, boundaries *fsutils.BoundaryResolver) *PathMapper {
	return &PathMapper{
		sourceRoot:     filepath.Clean(sourceRoot),
		destRoot:       filepath.Clean(destRoot),
		sourceBoundary: filepath.Clean(sourceBoundary),
		destBoundary:   filepath.Clean(destBoundary),
		boundaries:     boundaries,
	}
}

// MapDestination returns the destination path for originalPath.
func (m *PathMapper) MapDestination(originalPath string) (string, error) {
	if rel, ok := relativeTo(originalPath, m.sourceRoot); ok {
		return filepath.Join(m.destRoot, rel), nil
	}

	if rel, ok := relativeTo(originalPath, m.sourceBoundary); ok {
		return filepath.Join(m.destBoundary, rel), nil
	}

	// sibling found through another mount point of the same device;
	// mirror it relative to its own boundary
	boundary, err := m.boundaries.Resolve(originalPath)
	if err != nil {
		return "", err
	}
	rel, _ := relativeTo(originalPath, boundary)
	return filepath.Join(m.destBoundary, rel), nil
}

// relativeTo returns path relative to root and whether path is at or
// below root.
func relativeTo(path, root string) (string, bool) {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
