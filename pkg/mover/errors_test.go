package mover

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	linkEXDEV := &os.LinkError{Op: "link", Old: "a", New: "b", Err: syscall.EXDEV}
	writeENOSPC := &os.PathError{Op: "write", Path: "b", Err: syscall.ENOSPC}
	openEACCES := &os.PathError{Op: "open", Path: "b", Err: syscall.EACCES}

	assert.True(t, isCrossDevice(linkEXDEV))
	assert.False(t, isCrossDevice(writeENOSPC))

	assert.True(t, isNoSpace(writeENOSPC))
	assert.False(t, isNoSpace(openEACCES))

	assert.True(t, isPermission(openEACCES))
	assert.True(t, isPermission(&os.LinkError{Op: "link", Old: "a", New: "b", Err: syscall.EPERM}))
	assert.False(t, isPermission(linkEXDEV))
}

func TestShouldRetryCopy(t *testing.T) {
	assert.True(t, shouldRetryCopy(&os.PathError{Op: "open", Path: "b", Err: syscall.EACCES}))
	assert.False(t, shouldRetryCopy(&os.PathError{Op: "write", Path: "b", Err: syscall.ENOSPC}), "a full filesystem never recovers by retrying")
	assert.False(t, shouldRetryCopy(&os.LinkError{Op: "link", Old: "a", New: "b", Err: syscall.EXDEV}))
}
