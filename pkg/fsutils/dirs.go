package fsutils

import (
	"os"

	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// DirectoryMaterializer creates destination directories on demand,
// caching created paths to avoid redundant syscalls. In dry-run mode
// nothing is created but the cache is still populated so repeated
// ensures stay quiet.
type DirectoryMaterializer struct {
	dryRun            bool
	preserveOwnership bool
	created           *strset.Set
	log               *logrus.Entry
}

func NewDirectoryMaterializer(dryRun bool, preserveOwnership bool) *DirectoryMaterializer {
	return &DirectoryMaterializer{
		dryRun:            dryRun,
		preserveOwnership: preserveOwnership,
		created:           strset.New(),
		log:               logger.GetLogger("dirs"),
	}
}

// Ensure makes sure path exists as a directory. Idempotent.
func (m *DirectoryMaterializer) Ensure(path string) error {
	if m.created.Has(path) {
		return nil
	}

	if fi, err := os.Stat(path); err == nil {
		if !fi.IsDir() {
			return errors.Errorf("destination parent exists but is not a directory: %q", path)
		}
		m.created.Add(path)
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "stat directory: %q", path)
	}

	if !m.dryRun {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return errors.Wrapf(err, "create directory: %q", path)
		}
		if m.preserveOwnership {
			if err := chownToInvoker(path); err != nil {
				m.log.Debugf("Could not preserve ownership for %q: %v", path, err)
			}
		}
	}

	m.created.Add(path)
	return nil
}
