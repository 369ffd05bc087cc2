package mover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/config"
	"github.com/LeonardoPuccio/smartmove/pkg/fsutils"
	"github.com/LeonardoPuccio/smartmove/pkg/hardlinkindex"
	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// ProgressReporter receives one tick per processed file.
type ProgressReporter interface {
	Increment()
}

type noopProgress struct{}

func (noopProgress) Increment() {}

// Result summarizes a completed move run.
type Result struct {
	FilesProcessed  int
	GroupsPreserved int
	Failures        int
	BytesMoved      int64
}

// Mover is the top-level move operation: validation at construction,
// same-filesystem rename fast path, otherwise the hardlink-preserving
// cross-filesystem engine.
type Mover struct {
	sourcePath string
	destPath   string
	cfg        *config.Configuration

	boundaries *fsutils.BoundaryResolver
	dirs       *fsutils.DirectoryMaterializer
	scanner    hardlinkindex.Scanner
	stats      fsutils.TreeStats
	progress   ProgressReporter

	log *logrus.Entry
}

// New validates sourcePath and destPath and returns a ready Mover. Any
// validation failure aborts here, before anything is touched.
func New(sourcePath, destPath string, cfg *config.Configuration) (*Mover, error) {
	source := filepath.Clean(sourcePath)

	// a directory destination receives the source under its own name,
	// mv-style
	destIsDir := strings.HasSuffix(destPath, string(filepath.Separator))
	dest := filepath.Clean(destPath)
	if !destIsDir {
		if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
			destIsDir = true
		}
	}
	if destIsDir {
		dest = filepath.Join(dest, filepath.Base(source))
	}

	if _, err := os.Lstat(source); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrValidation, "source does not exist: %q", sourcePath)
		}
		return nil, errors.Wrapf(err, "inspect source: %q", sourcePath)
	}

	destParent := filepath.Dir(dest)
	if _, err := os.Stat(destParent); os.IsNotExist(err) && !cfg.CreateParents {
		return nil, errors.Wrapf(ErrValidation,
			"destination parent directory does not exist: %q (use --parents to create it)", destParent)
	}

	boundaries := fsutils.NewBoundaryResolver()
	gate := &validationGate{boundaries: boundaries, freeSpaceMargin: cfg.FreeSpaceMargin}

	stats, err := gate.validate(source, dest)
	if err != nil {
		return nil, err
	}

	var scanner hardlinkindex.Scanner
	switch cfg.Scanner {
	case "find":
		scanner = hardlinkindex.NewFindScanner()
	default:
		scanner = hardlinkindex.NewNativeScanner()
	}

	return &Mover{
		sourcePath: source,
		destPath:   dest,
		cfg:        cfg,
		boundaries: boundaries,
		dirs:       fsutils.NewDirectoryMaterializer(cfg.DryRun, cfg.PreserveOwnership),
		scanner:    scanner,
		stats:      stats,
		progress:   noopProgress{},
		log:        logger.GetLogger("mover"),
	}, nil
}

// SetScanner swaps the hardlink scanning mechanism. The engine only
// ever depends on the Scanner interface.
func (m *Mover) SetScanner(s hardlinkindex.Scanner) {
	m.scanner = s
}

// SetProgress installs a progress reporter; nil resets to none.
func (m *Mover) SetProgress(p ProgressReporter) {
	if p == nil {
		m.progress = noopProgress{}
		return
	}
	m.progress = p
}

// Stats returns the source tree stats gathered during validation.
func (m *Mover) Stats() fsutils.TreeStats {
	return m.stats
}

// DestPath returns the effective destination after directory rewriting.
func (m *Mover) DestPath() string {
	return m.destPath
}

// Move executes the operation. Fatal conditions (validation, indexing,
// cancellation) return an error; per-group failures are counted in the
// Result and the run continues.
func (m *Mover) Move(ctx context.Context) (*Result, error) {
	if m.cfg.DryRun {
		m.log.Warn("Dry-run enabled, previewing actions only")
	}

	if m.cfg.CreateParents {
		if err := m.ensureDestParent(); err != nil {
			return nil, err
		}
	}

	same, err := m.sameFilesystem()
	if err != nil {
		return nil, err
	}

	if same {
		m.log.Debug("Source and destination share a filesystem, using rename")
		result, done, err := m.simpleMove()
		if done {
			return result, err
		}
		// rename refused to cross a device boundary after all
		m.log.Debug("Rename crossed a device, entering engine")
	} else {
		m.log.Info("Cross-filesystem operation detected")
	}

	return m.engineMove(ctx)
}

func (m *Mover) ensureDestParent() error {
	parent := filepath.Dir(m.destPath)
	if _, err := os.Stat(parent); err == nil {
		return nil
	}

	if err := m.dirs.Ensure(parent); err != nil {
		return err
	}
	if m.cfg.DryRun {
		m.log.Infof("Would create parent directory: %q", parent)
	} else {
		m.log.Infof("Created parent directory: %q", parent)
	}
	return nil
}

func (m *Mover) sameFilesystem() (bool, error) {
	sourceDev, err := fsutils.DeviceID(m.sourcePath)
	if err != nil {
		return false, errors.Wrapf(err, "detect source device: %q", m.sourcePath)
	}

	destAncestor, err := fsutils.NearestExistingAncestor(m.destPath)
	if err != nil {
		return false, err
	}
	destDev, err := fsutils.DeviceID(destAncestor)
	if err != nil {
		return false, errors.Wrapf(err, "detect destination device: %q", destAncestor)
	}

	m.log.Debugf("Source dev: %d, dest dev: %d", sourceDev, destDev)
	return sourceDev == destDev, nil
}

// simpleMove delegates to rename, which preserves hardlinks by itself.
// done is false when rename hit a device boundary and the engine should
// take over.
func (m *Mover) simpleMove() (*Result, bool, error) {
	result := &Result{FilesProcessed: int(m.stats.Files), BytesMoved: m.stats.Bytes}

	if m.cfg.DryRun {
		m.log.Infof("Would move: %q -> %q", m.sourcePath, m.destPath)
		return result, true, nil
	}

	if err := os.Rename(m.sourcePath, m.destPath); err != nil {
		if isCrossDevice(err) {
			return nil, false, nil
		}
		return nil, true, errors.Wrapf(err, "move: %q -> %q", m.sourcePath, m.destPath)
	}

	m.log.Infof("Moved: %q -> %q", m.sourcePath, m.destPath)
	return result, true, nil
}

func (m *Mover) engineMove(ctx context.Context) (*Result, error) {
	sourceBoundary, err := m.boundaries.Resolve(m.sourcePath)
	if err != nil {
		return nil, err
	}
	destBoundary, err := m.boundaries.Resolve(m.destPath)
	if err != nil {
		return nil, err
	}

	index := hardlinkindex.NewIndexer(m.scanner, sourceBoundary, m.cfg.ComprehensiveScan, m.cfg.ScanTimeout)
	mapper := NewPathMapper(m.sourcePath, m.destPath, sourceBoundary, destBoundary, m.boundaries)
	orch := NewOrchestrator(index, mapper, m.dirs, m.cfg.DryRun, m.cfg.Quiet, m.cfg.PreserveOwnership)

	// uncommitted staging never survives the run, interrupted or not
	defer orch.CleanupTemps()

	fi, err := os.Lstat(m.sourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, "lstat source: %q", m.sourcePath)
	}

	var result *Result
	if fi.IsDir() {
		result, err = m.moveDirectory(ctx, orch)
	} else {
		result, err = m.moveFile(ctx, orch)
	}
	if err != nil {
		return nil, err
	}

	result.GroupsPreserved = orch.GroupsPreserved()
	result.BytesMoved = m.stats.Bytes
	return result, nil
}

func (m *Mover) moveFile(ctx context.Context, orch *Orchestrator) (*Result, error) {
	result := &Result{}

	if err := orch.ProcessFile(ctx, m.sourcePath, m.destPath); err != nil {
		if fatal := asFatal(err); fatal != nil {
			return nil, fatal
		}
		m.log.WithError(err).Errorf("Failed moving: %q", m.sourcePath)
		result.Failures++
	} else {
		result.FilesProcessed++
	}

	m.progress.Increment()
	return result, nil
}

func (m *Mover) moveDirectory(ctx context.Context, orch *Orchestrator) (*Result, error) {
	m.log.Infof("Moving directory: %q -> %q", m.sourcePath, m.destPath)

	result := &Result{}

	err := filepath.WalkDir(m.sourcePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walk: %q", path)
		}
		if d.IsDir() {
			return nil
		}

		// siblings removed as part of an earlier group vanish mid-walk
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return nil
		}

		rel, err := filepath.Rel(m.sourcePath, path)
		if err != nil {
			return errors.Wrapf(err, "relativize: %q", path)
		}
		destFile := filepath.Join(m.destPath, rel)

		if err := orch.ProcessFile(ctx, path, destFile); err != nil {
			if fatal := asFatal(err); fatal != nil {
				return fatal
			}
			m.log.WithError(err).Errorf("Failed moving: %q", path)
			result.Failures++
		} else {
			result.FilesProcessed++
		}

		m.progress.Increment()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.cfg.DryRun {
		m.log.Debug("Dry-run enabled, skipping empty directory cleanup")
	} else {
		m.cleanupEmptyDirs()
	}

	message := "Directory completed"
	if m.cfg.DryRun {
		message = "Preview completed"
	}
	if groups := orch.GroupsPreserved(); groups > 0 {
		m.log.Infof("%s: %d files, %d hardlink groups preserved", message, result.FilesProcessed, groups)
	} else {
		m.log.Infof("%s: %d files processed", message, result.FilesProcessed)
	}
	if result.Failures > 0 {
		m.log.Warnf("%d files failed to move", result.Failures)
	}

	return result, nil
}

// cleanupEmptyDirs removes source directories emptied by the move,
// deepest first so parents empty out as children disappear.
func (m *Mover) cleanupEmptyDirs() {
	var dirs []string

	err := filepath.WalkDir(m.sourcePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		m.log.WithError(err).Debug("Directory cleanup walk issue")
	}

	sort.Slice(dirs, func(i, j int) bool {
		return len(dirs[i]) > len(dirs[j])
	})

	for _, dir := range dirs {
		empty, err := fsutils.IsDirEmpty(dir)
		if err != nil || !empty {
			continue
		}
		if err := os.Remove(dir); err != nil {
			m.log.WithError(err).Debugf("Could not remove directory: %q", dir)
			continue
		}

		if m.cfg.Quiet {
			m.log.Debugf("Removed empty directory: %q", dir)
		} else {
			m.log.Infof("Removed empty directory: %q", dir)
		}
	}
}

// asFatal returns err when it must abort the whole run.
func asFatal(err error) error {
	if errors.Is(err, hardlinkindex.ErrScanFailed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
