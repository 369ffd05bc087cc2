//go:build unix

package hardlinkindex

import (
	"fmt"
	"syscall"
)

// LinkInfo returns the unique file identifier (device + inode) and link
// count for a file. This uses direct syscall.Lstat() instead of
// os.Stat() for better performance, and never follows symlinks.
func LinkInfo(path string) (FileID, uint64, error) {
	var stat syscall.Stat_t
	err := syscall.Lstat(path, &stat)
	if err != nil {
		return FileID{}, 0, fmt.Errorf("lstat file: %w", err)
	}

	return FileID{
		Device: uint64(stat.Dev),
		Inode:  uint64(stat.Ino),
	}, uint64(stat.Nlink), nil
}
