package fsutils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// NearestExistingAncestor walks up from path until it finds a component
// that exists on disk. The path itself is returned when it exists.
func NearestExistingAncestor(path string) (string, error) {
	p := filepath.Clean(path)
	for {
		if _, err := os.Lstat(p); err == nil {
			return p, nil
		} else if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "stat path: %q", p)
		}

		parent := filepath.Dir(p)
		if parent == p {
			return p, nil
		}
		p = parent
	}
}

// IsDirEmpty reports whether the directory at path contains no entries.
func IsDirEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.Wrapf(err, "open directory: %q", path)
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read directory: %q", path)
	}
	return false, nil
}
