package posix

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const sizeOfDirent = 19

type dirent struct {
	ino    uint64
	off    uint64
	reclen uint16
	typ    uint8
}

func parseDirent(buf []byte) (rawDirent, int) {
	if len(buf) < sizeOfDirent {
		return rawDirent{}, 0
	}
	d := (*dirent)(unsafe.Pointer(unsafe.SliceData(buf)))
	reclen := int(d.reclen)
	if reclen < sizeOfDirent || reclen > len(buf) {
		return rawDirent{}, reclen
	}
	return rawDirent{
		ino:  d.ino,
		off:  d.off,
		typ:  d.typ,
		name: direntName(buf[sizeOfDirent:reclen]),
	}, reclen
}

const (
	openPathFlags = unix.O_PATH | unix.O_DIRECTORY | unix.O_NOFOLLOW

	PATH_MAX   = 4096
	UTIME_NOW  = unix.UTIME_NOW
	UTIME_OMIT = unix.UTIME_OMIT

	// Open file description locks are owned by the descriptor rather than
	// the process, so two guest descriptors on the same file conflict.
	setLockCmd = unix.F_OFD_SETLK

	// Linux keeps the offset of d_off, the directory listing is resumed by
	// seeking to a cookie.
	seekableDirectories = true
)

func fallocate(fd int, offset, length int64) error {
	return ignoreEINTR(func() error { return unix.Fallocate(fd, 0, offset, length) })
}

func fadvise(fd int, offset, length int64, advice int) error {
	return ignoreEINTR(func() error { return unix.Fadvise(fd, offset, length, advice) })
}

var fadviseFlags = [...]int{
	unix.FADV_NORMAL,
	unix.FADV_SEQUENTIAL,
	unix.FADV_RANDOM,
	unix.FADV_WILLNEED,
	unix.FADV_DONTNEED,
	unix.FADV_NOREUSE,
}

func fsync(fd int) error {
	return ignoreEINTR(func() error { return unix.Fsync(fd) })
}

func fdatasync(fd int) error {
	return ignoreEINTR(func() error { return unix.Fdatasync(fd) })
}

func futimens(fd int, ts *[2]unix.Timespec) error {
	// https://github.com/bminor/glibc/blob/master/sysdeps/unix/sysv/linux/futimens.c
	_, _, err := unix.Syscall6(
		uintptr(unix.SYS_UTIMENSAT),
		uintptr(fd),
		uintptr(0), // path=NULL
		uintptr(unsafe.Pointer(ts)),
		uintptr(0),
		uintptr(0),
		uintptr(0),
	)
	if err != 0 {
		return err
	}
	return nil
}

func lseek(fd int, offset int64, whence int) (int64, error) {
	return ignoreEINTR2(func() (int64, error) { return unix.Seek(fd, offset, whence) })
}

func readv(fd int, iovs [][]byte) (int, error) {
	return handleEINTR(func() (int, error) { return unix.Readv(fd, iovs) })
}

func writev(fd int, iovs [][]byte) (int, error) {
	return handleEINTR(func() (int, error) { return unix.Writev(fd, iovs) })
}

func preadv(fd int, iovs [][]byte, offset int64) (int, error) {
	return handleEINTR(func() (int, error) { return unix.Preadv(fd, iovs, offset) })
}

func pwritev(fd int, iovs [][]byte, offset int64) (int, error) {
	return handleEINTR(func() (int, error) { return unix.Pwritev(fd, iovs, offset) })
}
