//go:build unix

package fsutils

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// isMountPoint reports whether path is the root of a mounted filesystem.
// A path is a mount point when its device differs from its parent's, or
// when path and parent share an inode (the filesystem root).
func isMountPoint(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return false, errors.Wrapf(err, "lstat: %q", path)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		// symlinks are never mount points
		return false, nil
	}

	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, errors.Errorf("unexpected stat type for %q", path)
	}

	parent := filepath.Dir(path)
	parentFi, err := os.Lstat(parent)
	if err != nil {
		return false, errors.Wrapf(err, "lstat: %q", parent)
	}

	parentStat, ok := parentFi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, errors.Errorf("unexpected stat type for %q", parent)
	}

	if uint64(stat.Dev) != uint64(parentStat.Dev) {
		return true, nil
	}
	return stat.Ino == parentStat.Ino, nil
}

// DeviceID returns the device number of the filesystem holding path.
func DeviceID(path string) (uint64, error) {
	var stat syscall.Stat_t
	if err := syscall.Stat(path, &stat); err != nil {
		return 0, errors.Wrapf(err, "stat: %q", path)
	}
	return uint64(stat.Dev), nil
}

// Writable reports whether the current process may write to path.
func Writable(path string) bool {
	const wOK = 0x2
	return syscall.Access(path, wOK) == nil
}

// FreeBytes returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, errors.Wrapf(err, "statfs: %q", path)
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
