package posix

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const sizeOfDirent = 21

type dirent struct {
	ino     uint64
	seekoff uint64
	reclen  uint16
	namlen  uint16
	typ     uint8
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
	end := sizeOfDirent + int(d.namlen)
	if end > reclen {
		end = reclen
	}
	return rawDirent{
		ino:  d.ino,
		off:  d.seekoff,
		typ:  d.typ,
		name: direntName(buf[sizeOfDirent:end]),
	}, reclen
}

const (
	openPathFlags = unix.O_DIRECTORY | unix.O_NOFOLLOW

	PATH_MAX = 1024

	// From <sys/stat.h>, golang.org/x/sys/unix does not define them on
	// darwin.
	UTIME_NOW  = -1
	UTIME_OMIT = -2

	setLockCmd = unix.F_SETLK

	// The offsets reported by getdirentries are not stable across calls,
	// cookies are synthesized from the position of entries instead.
	seekableDirectories = false
)

// Darwin has no fallocate(2); the file is extended with ftruncate when the
// range goes past its end.
func fallocate(fd int, offset, length int64) error {
	var stat unix.Stat_t
	if err := fstat(fd, &stat); err != nil {
		return err
	}
	if size := offset + length; size > stat.Size {
		return ftruncate(fd, size)
	}
	return nil
}

// Darwin has no posix_fadvise(2), the advice is accepted and ignored.
func fadvise(fd int, offset, length int64, advice int) error {
	return nil
}

var fadviseFlags = [...]int{0, 0, 0, 0, 0, 0}

func fsync(fd int) error {
	return ignoreEINTR(func() error { return unix.Fsync(fd) })
}

func fdatasync(fd int) error {
	return fsync(fd)
}

// futimens is emulated with futimes(2), which has neither nanosecond
// precision nor the UTIME_OMIT and UTIME_NOW special values.
func futimens(fd int, ts *[2]unix.Timespec) error {
	var stat unix.Stat_t
	if err := fstat(fd, &stat); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	current := [2]unix.Timespec{stat.Atim, stat.Mtim}
	var tv [2]unix.Timeval
	for i, t := range ts {
		switch t.Nsec {
		case UTIME_OMIT:
			t = current[i]
		case UTIME_NOW:
			t = unix.NsecToTimespec(now)
		}
		tv[i] = unix.NsecToTimeval(unix.TimespecToNsec(t))
	}
	return ignoreEINTR(func() error { return unix.Futimes(fd, tv[:]) })
}

func lseek(fd int, offset int64, whence int) (int64, error) {
	return ignoreEINTR2(func() (int64, error) { return unix.Seek(fd, offset, whence) })
}

func readv(fd int, iovs [][]byte) (int, error) {
	return vectored(iovs, func(b []byte) (int, error) {
		return handleEINTR(func() (int, error) { return unix.Read(fd, b) })
	})
}

func writev(fd int, iovs [][]byte) (int, error) {
	return vectored(iovs, func(b []byte) (int, error) {
		return handleEINTR(func() (int, error) { return unix.Write(fd, b) })
	})
}

func preadv(fd int, iovs [][]byte, offset int64) (int, error) {
	return vectored(iovs, func(b []byte) (int, error) {
		n, err := handleEINTR(func() (int, error) { return unix.Pread(fd, b, offset) })
		offset += int64(n)
		return n, err
	})
}

func pwritev(fd int, iovs [][]byte, offset int64) (int, error) {
	return vectored(iovs, func(b []byte) (int, error) {
		n, err := handleEINTR(func() (int, error) { return unix.Pwrite(fd, b, offset) })
		offset += int64(n)
		return n, err
	})
}

// vectored applies f to each buffer until one of them is transferred
// partially; errors are only reported when nothing was transferred.
func vectored(iovs [][]byte, f func([]byte) (int, error)) (int, error) {
	total := 0
	for _, iov := range iovs {
		if len(iov) == 0 {
			continue
		}
		n, err := f(iov)
		total += n
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		if n < len(iov) {
			break
		}
	}
	return total, nil
}
