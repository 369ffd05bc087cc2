//go:build unix

package fsutils

import (
	"os"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
)

// chownToInvoker hands ownership of path back to the user that invoked
// the process through sudo. Without SUDO_UID/SUDO_GID the current
// effective ids are kept.
func chownToInvoker(path string) error {
	uid := os.Getuid()
	gid := os.Getgid()

	if v := os.Getenv("SUDO_UID"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parse SUDO_UID")
		}
		uid = parsed
	}
	if v := os.Getenv("SUDO_GID"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parse SUDO_GID")
		}
		gid = parsed
	}

	return os.Chown(path, uid, gid)
}

// CloneAttrs copies permissions and ownership from src onto dst.
// Callers treat ownership failures as best-effort; a permission copy
// failure is returned.
func CloneAttrs(dst, src string) error {
	var stat syscall.Stat_t
	if err := syscall.Stat(src, &stat); err != nil {
		return errors.Wrapf(err, "stat: %q", src)
	}

	if err := os.Chmod(dst, os.FileMode(stat.Mode)&os.ModePerm); err != nil {
		return errors.Wrapf(err, "chmod: %q", dst)
	}

	if err := os.Chown(dst, int(stat.Uid), int(stat.Gid)); err != nil {
		return errors.Wrapf(err, "chown: %q", dst)
	}
	return nil
}
