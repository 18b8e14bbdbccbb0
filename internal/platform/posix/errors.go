//go:build linux || darwin

package posix

import (
	"golang.org/x/sys/unix"

	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
)

var errnoKinds = map[unix.Errno]fserr.Kind{
	unix.EACCES:       fserr.AccessDenied,
	unix.EAGAIN:       fserr.Again,
	unix.EBADF:        fserr.BadFileDescriptor,
	unix.EBUSY:        fserr.Busy,
	unix.EXDEV:        fserr.CrossDevice,
	unix.EDEADLK:      fserr.Deadlock,
	unix.EDQUOT:       fserr.DiskQuota,
	unix.EEXIST:       fserr.Exists,
	unix.EFBIG:        fserr.FileTooLarge,
	unix.EINTR:        fserr.Interrupted,
	unix.EINVAL:       fserr.InvalidArgument,
	unix.EIO:          fserr.IoError,
	unix.ELOOP:        fserr.Loop,
	unix.EMFILE:       fserr.Mfile,
	unix.ENFILE:       fserr.Nfile,
	unix.ENAMETOOLONG: fserr.NameTooLong,
	unix.ENOLCK:       fserr.NoLocks,
	unix.ENOMEM:       fserr.NoMemory,
	unix.ENOSPC:       fserr.NoSpace,
	unix.ENOTDIR:      fserr.NotDirectory,
	unix.ENOTEMPTY:    fserr.NotEmpty,
	unix.ENOENT:       fserr.NotFound,
	unix.EPERM:        fserr.NotPermitted,
	unix.ENOTSUP:      fserr.NotSupported,
	unix.ENOSYS:       fserr.NotSupported,
	unix.EOVERFLOW:    fserr.Overflow,
	unix.EISDIR:       fserr.PathIsDirectory,
	unix.EROFS:        fserr.ReadOnly,
	unix.ESPIPE:       fserr.SeekOnPipe,
	unix.ETXTBSY:      fserr.TextBusy,
	unix.EMLINK:       fserr.TooManyLinks,
}

// kindOf maps a native error to its portable kind. Errors that are not
// errno values, or errno values without a portable equivalent, are I/O
// errors.
func kindOf(err error) fserr.Kind {
	errno, ok := err.(unix.Errno)
	if !ok {
		return fserr.KindOf(err)
	}
	// EOPNOTSUPP aliases ENOTSUP on Linux but not on Darwin.
	if errno == unix.EOPNOTSUPP {
		return fserr.NotSupported
	}
	if kind, ok := errnoKinds[errno]; ok {
		return kind
	}
	return fserr.IoError
}

func makeError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fserr.New(op, path, kindOf(err), err)
}

// makeLockError reports lock conflicts as Again, fcntl(2) returns either
// EAGAIN or EACCES depending on the system.
func makeLockError(path string, err error) error {
	if err == unix.EACCES {
		return fserr.New("lock", path, fserr.Again, err)
	}
	return makeError("lock", path, err)
}
