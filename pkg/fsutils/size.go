package fsutils

import (
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
)

// TreeStats holds the result of a recursive size walk.
type TreeStats struct {
	Files int64 // regular files plus symlinks
	Bytes int64 // total size of regular files
}

// MeasureTree walks root and totals the regular file sizes underneath
// it. Symlinks are counted but never followed, matching the move
// engine's symlink policy. A single file (or symlink) is measured
// directly.
func MeasureTree(root string) (TreeStats, error) {
	fi, err := os.Lstat(root)
	if err != nil {
		return TreeStats{}, errors.Wrapf(err, "lstat: %q", root)
	}

	if !fi.IsDir() {
		stats := TreeStats{Files: 1}
		if fi.Mode().IsRegular() {
			stats.Bytes = fi.Size()
		}
		return stats, nil
	}

	var files, bytes atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walk: %q", path)
		}
		if d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			files.Add(1)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "stat: %q", path)
		}

		files.Add(1)
		bytes.Add(info.Size())
		return nil
	})
	if err != nil {
		return TreeStats{}, err
	}

	return TreeStats{Files: files.Load(), Bytes: bytes.Load()}, nil
}
