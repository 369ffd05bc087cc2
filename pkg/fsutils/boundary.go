package fsutils

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// BoundaryResolver resolves the mount boundary (root of the containing
// filesystem) for arbitrary paths. Results are cached for the lifetime
// of the resolver; it is not safe for concurrent use.
type BoundaryResolver struct {
	cache map[string]string
	log   *logrus.Entry
}

func NewBoundaryResolver() *BoundaryResolver {
	return &BoundaryResolver{
		cache: make(map[string]string),
		log:   logger.GetLogger("boundary"),
	}
}

// Resolve returns the mount boundary containing path. The path does not
// need to exist; resolution starts from its nearest existing ancestor.
func (r *BoundaryResolver) Resolve(path string) (string, error) {
	if boundary, ok := r.cache[path]; ok {
		return boundary, nil
	}

	existing, err := NearestExistingAncestor(path)
	if err != nil {
		return "", err
	}

	canonical, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", errors.Wrapf(err, "canonicalize path: %q", existing)
	}

	boundary := canonical
	for {
		mount, err := isMountPoint(boundary)
		if err != nil {
			return "", errors.Wrapf(err, "check mount point: %q", boundary)
		}
		if mount {
			break
		}

		parent := filepath.Dir(boundary)
		if parent == boundary {
			break
		}
		boundary = parent
	}

	r.log.Debugf("Resolved mount boundary for %q: %q", path, boundary)
	r.cache[path] = boundary
	return boundary, nil
}
