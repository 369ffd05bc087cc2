package mover

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

var (
	// ErrValidation marks pre-flight failures. Nothing has been mutated.
	ErrValidation = errors.New("validation failed")

	// ErrPartialCommit marks a group where some but not all renames
	// succeeded. Already committed destinations are left in place.
	ErrPartialCommit = errors.New("partial commit")
)

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

func isNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}

func isPermission(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

// shouldRetryCopy reports whether a failed copy is worth another
// attempt. Transient permission contention is; a full filesystem never
// recovers by retrying.
func shouldRetryCopy(err error) bool {
	return isPermission(err) && !isNoSpace(err)
}
