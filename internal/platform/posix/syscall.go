//go:build linux || darwin

package posix

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"syscall"

	"golang.org/x/sys/unix"
)

// This function is used to automatically retry syscalls when they return EINTR
// due to having handled a signal instead of executing.
func ignoreEINTR(f func() error) error {
	for {
		if err := f(); err != unix.EINTR {
			return err
		}
	}
}

func ignoreEINTR2[F func() (R, error), R any](f F) (R, error) {
	for {
		v, err := f()
		if err != unix.EINTR {
			return v, err
		}
	}
}

// handleEINTR retries I/O interrupted before any byte was transferred; a
// partial transfer is reported as a success.
func handleEINTR(f func() (int, error)) (int, error) {
	for {
		n, err := f()
		if err == unix.EINTR {
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func dup(oldfd int) (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	newfd, err := ignoreEINTR2(func() (int, error) {
		return unix.Dup(oldfd)
	})
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(newfd)
	return newfd, nil
}

func closeTraceError(fd int) {
	if err := unix.Close(fd); err != nil {
		fmt.Fprintf(os.Stderr, "close(%d) => %s\n", fd, err)
		debug.PrintStack()
	}
}

func fstat(fd int, stat *unix.Stat_t) error {
	return ignoreEINTR(func() error { return unix.Fstat(fd, stat) })
}

func ftruncate(fd int, size int64) error {
	return ignoreEINTR(func() error { return unix.Ftruncate(fd, size) })
}

func fstatat(dirfd int, path string, stat *unix.Stat_t, flags int) error {
	return ignoreEINTR(func() error { return unix.Fstatat(dirfd, path, stat, flags) })
}

func readlinkat(dirfd int, path string) (string, error) {
	buf := make([]byte, PATH_MAX)
	n, err := ignoreEINTR2(func() (int, error) { return unix.Readlinkat(dirfd, path, buf) })
	if err != nil {
		return "", err
	}
	if n == len(buf) {
		return "", unix.ENAMETOOLONG
	}
	return string(buf[:n]), nil
}

func utimensat(dirfd int, path string, ts *[2]unix.Timespec, flags int) error {
	return ignoreEINTR(func() error { return unix.UtimesNanoAt(dirfd, path, ts[:], flags) })
}

func mkdirat(dirfd int, path string, mode uint32) error {
	return ignoreEINTR(func() error { return unix.Mkdirat(dirfd, path, mode) })
}

func linkat(olddirfd int, oldpath string, newdirfd int, newpath string, flags int) error {
	return ignoreEINTR(func() error { return unix.Linkat(olddirfd, oldpath, newdirfd, newpath, flags) })
}

func symlinkat(target string, dirfd int, path string) error {
	return ignoreEINTR(func() error { return unix.Symlinkat(target, dirfd, path) })
}

func unlinkat(dirfd int, path string, flags int) error {
	return ignoreEINTR(func() error { return unix.Unlinkat(dirfd, path, flags) })
}

func renameat(olddirfd int, oldpath string, newdirfd int, newpath string) error {
	return ignoreEINTR(func() error { return unix.Renameat(olddirfd, oldpath, newdirfd, newpath) })
}

func fchmod(fd int, mode uint32) error {
	return ignoreEINTR(func() error { return unix.Fchmod(fd, mode) })
}

func fchmodat(dirfd int, path string, mode uint32, flags int) error {
	return ignoreEINTR(func() error { return unix.Fchmodat(dirfd, path, mode, flags) })
}

func fchown(fd, uid, gid int) error {
	return ignoreEINTR(func() error { return unix.Fchown(fd, uid, gid) })
}

func fchownat(dirfd int, path string, uid, gid, flags int) error {
	return ignoreEINTR(func() error { return unix.Fchownat(dirfd, path, uid, gid, flags) })
}

func faccessat(dirfd int, path string, mode uint32, flags int) error {
	return ignoreEINTR(func() error { return unix.Faccessat(dirfd, path, mode, flags) })
}

func fcntlFlock(fd int, cmd int, lock *unix.Flock_t) error {
	return ignoreEINTR(func() error { return unix.FcntlFlock(uintptr(fd), cmd, lock) })
}

func openat(dirfd int, path string, flags int, mode uint32) (int, error) {
	return ignoreEINTR2(func() (int, error) { return unix.Openat(dirfd, path, flags|unix.O_CLOEXEC, mode) })
}

const dirbufsize = 2 * PATH_MAX // must be greater than sizeOfDirent

// dirbuf reads the native directory entries of a descriptor in batches.
type dirbuf struct {
	buffer *[dirbufsize]byte
	offset int
	length int
	fd     int
}

type rawDirent struct {
	ino  uint64
	off  uint64
	typ  uint8
	name string
}

func (d *dirbuf) reset() {
	d.offset, d.length = 0, 0
}

func (d *dirbuf) next() (rawDirent, error) {
	if d.buffer == nil {
		d.buffer = new([dirbufsize]byte)
	}

	for {
		if (d.length - d.offset) < sizeOfDirent {
			n, err := ignoreEINTR2(func() (int, error) { return unix.ReadDirent(d.fd, d.buffer[:]) })
			if err != nil {
				return rawDirent{}, err
			}
			if n == 0 {
				return rawDirent{}, io.EOF
			}
			d.offset = 0
			d.length = n
		}

		ent, reclen := parseDirent(d.buffer[d.offset:d.length])
		if reclen == 0 || (d.offset+reclen) > d.length {
			d.offset = d.length
			continue
		}
		d.offset += reclen

		if ent.ino == 0 {
			continue // deleted entry
		}
		return ent, nil
	}
}

func direntName(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}
	return string(b)
}
