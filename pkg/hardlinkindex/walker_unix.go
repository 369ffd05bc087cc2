//go:build unix

package hardlinkindex

import (
	"context"
	"io/fs"
	"sync"
	"syscall"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// NativeScanner is a recursive stat-based walker that needs no external
// process. Default scanner implementation.
type NativeScanner struct {
	log *logrus.Entry
}

func NewNativeScanner() *NativeScanner {
	return &NativeScanner{log: logger.GetLogger("scanner")}
}

func (s *NativeScanner) Scan(ctx context.Context, root string, comprehensive bool) ([]Entry, error) {
	var rootStat syscall.Stat_t
	if err := syscall.Stat(root, &rootStat); err != nil {
		return nil, errors.Wrapf(err, "stat scan root: %q", root)
	}
	rootDev := uint64(rootStat.Dev)

	var (
		mu      sync.Mutex
		entries []Entry
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees make the index untrustworthy
			return errors.Wrapf(err, "walk: %q", path)
		}

		if cErr := ctx.Err(); cErr != nil {
			return errors.Wrapf(cErr, "hardlink scan timed out: %q", root)
		}

		info, iErr := d.Info()
		if iErr != nil {
			return errors.Wrapf(iErr, "stat: %q", path)
		}

		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return errors.Errorf("unexpected stat type for %q", path)
		}

		if d.IsDir() {
			if !comprehensive && uint64(stat.Dev) != rootDev {
				return fastwalk.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !comprehensive && uint64(stat.Dev) != rootDev {
			return nil
		}
		if uint64(stat.Nlink) <= 1 {
			return nil
		}

		mu.Lock()
		entries = append(entries, Entry{
			ID:   FileID{Device: uint64(stat.Dev), Inode: uint64(stat.Ino)},
			Path: path,
		})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Tracef("Native scan of %q found %d multiply linked files", root, len(entries))
	return entries, nil
}
