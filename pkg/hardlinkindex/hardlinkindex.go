package hardlinkindex

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// ErrScanFailed marks a failed or timed-out hardlink scan. The index is
// the only thing guaranteeing hardlink preservation, so callers must
// treat this as fatal rather than assuming "no hardlinks found".
var ErrScanFailed = errors.New("hardlink index scan failed")

// Indexer builds the inode to paths index at most once, lazily, on the
// first lookup of a multiply linked file. Not safe for concurrent use;
// the move engine is strictly single threaded.
type Indexer struct {
	scanner       Scanner
	scopeRoot     string
	comprehensive bool
	timeout       time.Duration

	// explicit two-state: index untouched until built flips
	built    bool
	buildErr error
	index    map[FileID][]string

	log *logrus.Entry
}

func NewIndexer(scanner Scanner, scopeRoot string, comprehensive bool, timeout time.Duration) *Indexer {
	return &Indexer{
		scanner:       scanner,
		scopeRoot:     scopeRoot,
		comprehensive: comprehensive,
		timeout:       timeout,
		log:           logger.GetLogger("hardlinkindex"),
	}
}

// Lookup returns every known path sharing path's inode, path first.
// Files with link count <= 1 never trigger an index build. A multiply
// linked file absent from an already built index (scan raced a
// concurrent writer) degrades to the file alone instead of failing the
// run.
func (i *Indexer) Lookup(ctx context.Context, path string) ([]string, error) {
	id, nlink, err := LinkInfo(path)
	if err != nil {
		i.log.Debugf("Hardlink detection failed for %q: %v", path, err)
		return []string{path}, nil
	}

	if nlink <= 1 {
		return []string{path}, nil
	}

	if err := i.ensureBuilt(ctx); err != nil {
		return nil, err
	}

	paths, exists := i.index[id]
	if !exists || len(paths) == 0 {
		i.log.Debugf("Inode %s not in index, treating %q as standalone", id, path)
		return []string{path}, nil
	}

	// caller's path always leads the group
	ordered := make([]string, 0, len(paths))
	ordered = append(ordered, path)
	for _, p := range paths {
		if p != path {
			ordered = append(ordered, p)
		}
	}

	if len(ordered) > 1 {
		i.log.Debugf("Found %d hardlinks for inode %s", len(ordered), id)
	}
	return ordered, nil
}

// Length returns the number of indexed hardlink groups. Zero before the
// first build.
func (i *Indexer) Length() int {
	return len(i.index)
}

func (i *Indexer) ensureBuilt(ctx context.Context) error {
	if i.built {
		return i.buildErr
	}
	i.built = true

	i.log.Debugf("Building hardlink index for %q (comprehensive: %t)", i.scopeRoot, i.comprehensive)

	scanCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	entries, err := i.scanner.Scan(scanCtx, i.scopeRoot, i.comprehensive)
	if err != nil {
		i.buildErr = errors.Wrapf(ErrScanFailed, "%v", err)
		return i.buildErr
	}

	i.index = make(map[FileID][]string)
	totalFiles := 0
	for _, entry := range entries {
		paths := i.index[entry.ID]

		found := false
		for _, existing := range paths {
			if existing == entry.Path {
				found = true
				break
			}
		}
		if found {
			continue
		}

		i.index[entry.ID] = append(paths, entry.Path)
		totalFiles++
	}

	// deterministic sibling order regardless of scan mechanism
	for id := range i.index {
		sort.Strings(i.index[id])
	}

	i.log.Debugf("Indexed %d hardlink groups (%d files)", len(i.index), totalFiles)
	return nil
}
