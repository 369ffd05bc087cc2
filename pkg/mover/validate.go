package mover

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/LeonardoPuccio/smartmove/pkg/fsutils"
)

// validationGate runs the pre-flight checks exactly once, before any
// mutation: source readable, destination ancestor writable and enough
// free space at the destination boundary. Any failure aborts the run
// with nothing touched.
type validationGate struct {
	boundaries      *fsutils.BoundaryResolver
	freeSpaceMargin float64
}

// validate checks sourcePath and destPath and returns the source tree
// stats so callers can reuse them for progress totals.
func (g *validationGate) validate(sourcePath, destPath string) (fsutils.TreeStats, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation, "source not readable: %q: %v", sourcePath, err)
	}
	f.Close()

	destAncestor, err := fsutils.NearestExistingAncestor(destPath)
	if err != nil {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation, "resolve destination ancestor: %q: %v", destPath, err)
	}
	if !fsutils.Writable(destAncestor) {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation, "destination not writable: %q", destAncestor)
	}

	stats, err := fsutils.MeasureTree(sourcePath)
	if err != nil {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation, "measure source: %q: %v", sourcePath, err)
	}

	destBoundary, err := g.boundaries.Resolve(destPath)
	if err != nil {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation, "resolve destination boundary: %q: %v", destPath, err)
	}

	free, err := fsutils.FreeBytes(destBoundary)
	if err != nil {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation, "check free space: %q: %v", destBoundary, err)
	}

	budget := uint64(float64(free) * g.freeSpaceMargin)
	if uint64(stats.Bytes) > budget {
		return fsutils.TreeStats{}, errors.Wrapf(ErrValidation,
			"not enough free space at %q: need %s, usable %s (%s free, %.0f%% margin)",
			destBoundary, humanize.IBytes(uint64(stats.Bytes)), humanize.IBytes(budget),
			humanize.IBytes(free), g.freeSpaceMargin*100)
	}

	return stats, nil
}
