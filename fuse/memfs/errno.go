//go:build (linux || darwin || freebsd) && !nofuse

package memfs

import (
	"errors"
	"syscall"

	"bazil.org/fuse"

	engine "github.com/poolfs/poolfs/memfs"
)

var errnos = []struct {
	err   error
	errno fuse.Errno
	label string
}{
	{engine.ErrNotFound, fuse.ENOENT, "ENOENT"},
	{engine.ErrNoSpace, fuse.Errno(syscall.ENOSPC), "ENOSPC"},
	{engine.ErrFileTooLarge, fuse.Errno(syscall.EFBIG), "EFBIG"},
	{engine.ErrExist, fuse.EEXIST, "EEXIST"},
	{engine.ErrNameTooLong, fuse.Errno(syscall.ENAMETOOLONG), "ENAMETOOLONG"},
	{engine.ErrInvalid, fuse.Errno(syscall.EINVAL), "EINVAL"},
}

// toErrno maps an engine error to the errno returned to the kernel and a
// short label for metrics. Errors that already carry an errno pass
// through; anything else is EIO.
func toErrno(err error) (error, string) {
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno, e.label
		}
	}

	var errno fuse.Errno
	if errors.As(err, &errno) {
		return errno, errno.ErrnoName()
	}
	return fuse.EIO, "EIO"
}
