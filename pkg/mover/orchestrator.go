package mover

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/fsutils"
	"github.com/LeonardoPuccio/smartmove/pkg/hardlinkindex"
	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// GroupState tracks a hardlink group through the staging protocol.
type GroupState int

const (
	StateDiscovered GroupState = iota
	StateStaged
	StateLinked
	StateCommitted
	StateRemoved
	StateFailed
)

func (s GroupState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateStaged:
		return "staged"
	case StateLinked:
		return "linked"
	case StateCommitted:
		return "committed"
	case StateRemoved:
		return "removed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stagingPair binds a temporary staging path to its final destination.
type stagingPair struct {
	temp  string
	final string
}

// MoveRecord is the per-group bookkeeping for one inode.
type MoveRecord struct {
	ID          hardlinkindex.FileID
	Sources     []string
	PrimaryDest string
	Staged      []stagingPair
	State       GroupState
}

const (
	permRetryAttempts = 3
	permRetryDelay    = 250 * time.Millisecond
)

// Orchestrator executes the atomic per-inode move protocol: stage the
// primary copy under a temporary name, hardlink every sibling off the
// staged copy, rename everything into place, then delete the originals.
// Any failure before the first rename rolls back to untouched sources.
//
// Strictly single threaded; one group at a time.
type Orchestrator struct {
	index  *hardlinkindex.Indexer
	mapper *PathMapper
	dirs   *fsutils.DirectoryMaterializer

	dryRun            bool
	quiet             bool
	preserveOwnership bool

	moved        *strset.Set // inodes in a terminal success state
	trackedTemps *strset.Set // live temp paths, for interrupt cleanup
	linkCounts   map[hardlinkindex.FileID]uint64

	link func(oldname, newname string) error

	log *logrus.Entry
}

func NewOrchestrator(index *hardlinkindex.Indexer, mapper *PathMapper, dirs *fsutils.DirectoryMaterializer,
	dryRun bool, quiet bool, preserveOwnership bool) *Orchestrator {
	return &Orchestrator{
		index:             index,
		mapper:            mapper,
		dirs:              dirs,
		dryRun:            dryRun,
		quiet:             quiet,
		preserveOwnership: preserveOwnership,
		moved:             strset.New(),
		trackedTemps:      strset.New(),
		linkCounts:        make(map[hardlinkindex.FileID]uint64),
		link:              os.Link,
		log:               logger.GetLogger("orchestrator"),
	}
}

// ProcessFile moves sourceFile (and every hardlink sibling discovered
// for its inode) to destFile. Revisits of an already moved inode are
// successful no-ops, so directory walks may feed sibling paths in any
// order.
func (o *Orchestrator) ProcessFile(ctx context.Context, sourceFile, destFile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fi, err := os.Lstat(sourceFile)
	if err != nil {
		return errors.Wrapf(err, "lstat source: %q", sourceFile)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		return o.moveSymlink(sourceFile, destFile)
	}
	if !fi.Mode().IsRegular() {
		o.log.Warnf("Skipping unsupported file type: %q (%s)", sourceFile, fi.Mode())
		return nil
	}

	id, nlink, err := hardlinkindex.LinkInfo(sourceFile)
	if err != nil {
		return errors.Wrapf(err, "identify source: %q", sourceFile)
	}

	if o.moved.Has(id.String()) {
		o.log.Debugf("Skipping already processed inode %s", id)
		return nil
	}
	o.linkCounts[id] = nlink

	siblings, err := o.index.Lookup(ctx, sourceFile)
	if err != nil {
		// indexing failures are fatal for the whole run
		return err
	}

	record := &MoveRecord{
		ID:          id,
		Sources:     siblings,
		PrimaryDest: destFile,
		State:       StateDiscovered,
	}

	if len(siblings) > 1 {
		err = o.moveGroup(ctx, record)
	} else {
		err = o.moveSingle(record)
	}
	if err != nil {
		return err
	}

	o.moved.Add(id.String())
	return nil
}

// GroupsPreserved counts the processed inodes whose link count at
// discovery was above one.
func (o *Orchestrator) GroupsPreserved() int {
	n := 0
	for id, count := range o.linkCounts {
		if count > 1 && o.moved.Has(id.String()) {
			n++
		}
	}
	return n
}

// CleanupTemps removes every tracked-but-uncommitted temporary file.
// Called when the run is interrupted; committed destinations are not
// rolled back.
func (o *Orchestrator) CleanupTemps() {
	o.trackedTemps.Each(func(temp string) bool {
		if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
			o.log.WithError(err).Warnf("Failed removing temporary file: %q", temp)
		}
		return true
	})
	o.trackedTemps.Clear()
}

/* single member */

// moveSingle copies then deletes a file with no hardlink siblings.
// There is no cross-path atomicity to protect, so no staging.
func (o *Orchestrator) moveSingle(record *MoveRecord) error {
	source := record.Sources[0]

	if err := o.createFile(source, record.PrimaryDest); err != nil {
		record.State = StateFailed
		return err
	}

	if err := o.removeSource(source); err != nil {
		record.State = StateFailed
		return err
	}

	record.State = StateRemoved
	return nil
}

/* multi member protocol */

func (o *Orchestrator) moveGroup(ctx context.Context, record *MoveRecord) error {
	if o.dryRun {
		return o.previewGroup(record)
	}

	if err := o.stageGroup(ctx, record); err != nil {
		o.rollback(record)
		record.State = StateFailed
		return err
	}

	if err := o.commitGroup(record); err != nil {
		record.State = StateFailed
		return err
	}

	return o.removeSources(record)
}

// stageGroup copies the primary member to its temp path and hardlinks
// every other member off that staged copy. On return with nil error all
// members are staged and ready to rename.
func (o *Orchestrator) stageGroup(ctx context.Context, record *MoveRecord) error {
	primary := record.Sources[0]
	primaryTemp := o.tempPath(record.PrimaryDest)

	if err := o.dirs.Ensure(filepath.Dir(record.PrimaryDest)); err != nil {
		return err
	}

	if err := o.copyWithRetry(primary, primaryTemp, true); err != nil {
		return errors.Wrapf(err, "stage primary: %q", primary)
	}
	o.trackedTemps.Add(primaryTemp)
	record.Staged = append(record.Staged, stagingPair{temp: primaryTemp, final: record.PrimaryDest})
	record.State = StateStaged
	o.action("Created: %q", record.PrimaryDest)

	for _, member := range record.Sources[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}

		memberDest, err := o.mapper.MapDestination(member)
		if err != nil {
			return err
		}

		if err := o.dirs.Ensure(filepath.Dir(memberDest)); err != nil {
			return err
		}

		memberTemp := o.tempPath(memberDest)
		if err := o.stageLink(primaryTemp, memberTemp, member); err != nil {
			return errors.Wrapf(err, "stage member: %q", member)
		}
		o.trackedTemps.Add(memberTemp)
		record.Staged = append(record.Staged, stagingPair{temp: memberTemp, final: memberDest})
		o.action("Linked: %q", memberDest)
	}

	record.State = StateLinked
	return nil
}

// stageLink hardlinks target off the staged primary copy. A cross
// device link can never succeed, so it falls back to copying the source
// member's content; a permission error falls back the same way once the
// bounded retry is exhausted.
func (o *Orchestrator) stageLink(primaryTemp, memberTemp, sourceMember string) error {
	err := retry.Do(
		func() error { return o.link(primaryTemp, memberTemp) },
		retry.Attempts(permRetryAttempts),
		retry.Delay(permRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isPermission),
	)
	if err == nil {
		return nil
	}

	if isCrossDevice(err) {
		o.log.Debugf("Cross-device hardlink failed, copying instead: %q", memberTemp)
		return o.copyWithRetry(sourceMember, memberTemp, true)
	}
	if isPermission(err) {
		o.log.Debugf("Hardlink permission denied after retries, copying instead: %q", memberTemp)
		return o.copyWithRetry(sourceMember, memberTemp, true)
	}

	return err
}

// commitGroup renames every staged temp to its final destination. Each
// rename is atomic and independent; order is irrelevant. A failure
// after at least one successful rename is a partial commit: committed
// destinations are not undone, remaining temps are cleaned up.
func (o *Orchestrator) commitGroup(record *MoveRecord) error {
	for i, pair := range record.Staged {
		if err := os.Rename(pair.temp, pair.final); err != nil {
			// clean up everything not yet committed, failed pair included
			for _, rest := range record.Staged[i:] {
				o.untrackTemp(rest.temp, true)
			}

			if i > 0 {
				return errors.Wrapf(ErrPartialCommit,
					"%d of %d members committed before rename failed: %q: %v",
					i, len(record.Staged), pair.final, err)
			}
			return errors.Wrapf(err, "commit: %q", pair.final)
		}
		o.untrackTemp(pair.temp, false)
	}

	record.State = StateCommitted
	return nil
}

// removeSources deletes every original path. Runs only after all
// renames succeeded.
func (o *Orchestrator) removeSources(record *MoveRecord) error {
	for _, source := range record.Sources {
		if err := o.removeSource(source); err != nil {
			return err
		}
	}
	record.State = StateRemoved
	return nil
}

// previewGroup logs the would-be actions one-for-one with identical
// path semantics and zero mutation.
func (o *Orchestrator) previewGroup(record *MoveRecord) error {
	o.action("Would create: %q", record.PrimaryDest)

	for _, member := range record.Sources[1:] {
		memberDest, err := o.mapper.MapDestination(member)
		if err != nil {
			return err
		}
		if err := o.dirs.Ensure(filepath.Dir(memberDest)); err != nil {
			return err
		}
		o.action("Would link: %q", memberDest)
	}

	for _, source := range record.Sources {
		o.action("Would remove: %q", source)
	}

	record.State = StateRemoved
	return nil
}

// rollback deletes every staged temp, leaving all sources untouched.
func (o *Orchestrator) rollback(record *MoveRecord) {
	for _, pair := range record.Staged {
		o.untrackTemp(pair.temp, true)
	}
	record.Staged = nil
	o.log.Debugf("Rolled back staging for inode %s", record.ID)
}

func (o *Orchestrator) untrackTemp(temp string, remove bool) {
	if remove {
		if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
			o.log.WithError(err).Warnf("Failed removing temporary file: %q", temp)
		}
	}
	o.trackedTemps.Remove(temp)
}

/* primitives */

// tempPath returns the process-unique staging name for dest, in dest's
// directory so the final rename never crosses a device.
func (o *Orchestrator) tempPath(dest string) string {
	return fmt.Sprintf("%s.smartmove-%d.tmp", dest, os.Getpid())
}

func (o *Orchestrator) moveSymlink(source, dest string) error {
	target, err := os.Readlink(source)
	if err != nil {
		return errors.Wrapf(err, "readlink: %q", source)
	}

	if err := o.dirs.Ensure(filepath.Dir(dest)); err != nil {
		return err
	}

	if !o.dryRun {
		// recreate the link as-is, relative or broken targets included
		if err := os.Symlink(target, dest); err != nil {
			return errors.Wrapf(err, "symlink: %q", dest)
		}
		o.action("Created: %q", dest)
	} else {
		o.action("Would create: %q", dest)
	}

	return o.removeSource(source)
}

// createFile copies source's bytes to dest, preserving permissions and,
// best-effort, ownership.
func (o *Orchestrator) createFile(source, dest string) error {
	if err := o.dirs.Ensure(filepath.Dir(dest)); err != nil {
		return err
	}

	if !o.dryRun {
		if err := o.copyWithRetry(source, dest, false); err != nil {
			return err
		}
		o.action("Created: %q", dest)
	} else {
		o.action("Would create: %q", dest)
	}
	return nil
}

func (o *Orchestrator) removeSource(source string) error {
	if !o.dryRun {
		if err := os.Remove(source); err != nil {
			return errors.Wrapf(err, "remove source: %q", source)
		}
		o.action("Removed: %q", source)
	} else {
		o.action("Would remove: %q", source)
	}
	return nil
}

// copyWithRetry copies source to dest. Permission errors get a bounded
// retry for transient contention; running out of space aborts
// immediately, retrying cannot help. excl refuses to overwrite an
// existing dest; staging paths use it so a stale temp from a crashed
// run surfaces instead of being clobbered.
func (o *Orchestrator) copyWithRetry(source, dest string, excl bool) error {
	return retry.Do(
		func() error { return o.copyFile(source, dest, excl) },
		retry.Attempts(permRetryAttempts),
		retry.Delay(permRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(shouldRetryCopy),
	)
}

func (o *Orchestrator) copyFile(source, dest string, excl bool) error {
	in, err := os.Open(source)
	if err != nil {
		return errors.Wrapf(err, "open source: %q", source)
	}
	defer in.Close()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if excl {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	out, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create destination: %q", dest)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return errors.Wrapf(err, "copy: %q", dest)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return errors.Wrapf(err, "close destination: %q", dest)
	}

	if err := fsutils.CloneAttrs(dest, source); err != nil {
		if o.preserveOwnership {
			o.log.Debugf("Could not preserve attributes for %q: %v", dest, err)
		}
	}
	return nil
}

// action emits a user-facing per-file action line. Quiet mode drops it
// to debug so structured logs still capture the run.
func (o *Orchestrator) action(format string, args ...interface{}) {
	if o.quiet {
		o.log.Debugf(format, args...)
		return
	}
	o.log.Infof(format, args...)
}
