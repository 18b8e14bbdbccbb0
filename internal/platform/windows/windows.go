//go:build windows

// Package windows is the platform adapter for Windows. It extends the
// portable adapter with Win32 primitives: file identifiers and link counts
// from GetFileInformationByHandle, byte range locks, nanosecond timestamps,
// directory symbolic links and NT paths.
package windows

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stealthrocket/wasi-go"
	"golang.org/x/sys/windows"

	"github.com/stealthrocket/wasivfs/internal/platform/portable"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// symlinkFlagAllowUnprivileged is SYMBOLIC_LINK_FLAG_ALLOW_UNPRIVILEGED_CREATE,
// which creates links without administrator privileges when the developer
// mode is enabled.
const symlinkFlagAllowUnprivileged uint32 = 0x2

// New returns the Windows adapter.
func New() *portable.FileSystem {
	return portable.NewWithHooks("windows", PathConverter{}, portable.Hooks{
		Kind:     kindOf,
		Stat:     stat,
		StatPath: statPath,
		Lock:     lock,
		SetTimes: setTimes,
		Rename:   rename,
		Symlink:  symlink,
	})
}

var errnoKinds = map[syscall.Errno]fserr.Kind{
	windows.ERROR_ACCESS_DENIED:         fserr.AccessDenied,
	windows.ERROR_ALREADY_EXISTS:        fserr.Exists,
	windows.ERROR_BAD_PATHNAME:          fserr.NotFound,
	windows.ERROR_BUFFER_OVERFLOW:       fserr.NameTooLong,
	windows.ERROR_CANT_RESOLVE_FILENAME: fserr.Loop,
	windows.ERROR_DIRECTORY:             fserr.NotDirectory,
	windows.ERROR_DIR_NOT_EMPTY:         fserr.NotEmpty,
	windows.ERROR_DISK_FULL:             fserr.NoSpace,
	windows.ERROR_FILE_EXISTS:           fserr.Exists,
	windows.ERROR_FILE_NOT_FOUND:        fserr.NotFound,
	windows.ERROR_HANDLE_DISK_FULL:      fserr.NoSpace,
	windows.ERROR_INVALID_HANDLE:        fserr.BadFileDescriptor,
	windows.ERROR_INVALID_NAME:          fserr.NotFound,
	windows.ERROR_INVALID_PARAMETER:     fserr.InvalidArgument,
	windows.ERROR_LOCK_VIOLATION:        fserr.Again,
	windows.ERROR_NEGATIVE_SEEK:         fserr.InvalidArgument,
	windows.ERROR_NOT_ENOUGH_MEMORY:     fserr.NoMemory,
	windows.ERROR_NOT_SAME_DEVICE:       fserr.CrossDevice,
	windows.ERROR_NOT_SUPPORTED:         fserr.NotSupported,
	windows.ERROR_PATH_NOT_FOUND:        fserr.NotFound,
	windows.ERROR_PRIVILEGE_NOT_HELD:    fserr.NotPermitted,
	windows.ERROR_SHARING_VIOLATION:     fserr.Busy,
	windows.ERROR_TOO_MANY_OPEN_FILES:   fserr.Mfile,
	windows.ERROR_WRITE_PROTECT:         fserr.ReadOnly,
}

func kindOf(err error) (fserr.Kind, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		kind, ok := errnoKinds[errno]
		return kind, ok
	}
	return 0, false
}

func makeStructStat(info *windows.ByHandleFileInformation) op.StructStat {
	s := op.StructStat{
		Dev:   uint64(info.VolumeSerialNumber),
		Ino:   uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow),
		Nlink: uint64(info.NumberOfLinks),
		Size:  int64(info.FileSizeHigh)<<32 | int64(info.FileSizeLow),
		Atime: op.Timespec(info.LastAccessTime.Nanoseconds()),
		Mtime: op.Timespec(info.LastWriteTime.Nanoseconds()),
		Ctime: op.Timespec(info.CreationTime.Nanoseconds()),
		Mode:  0666,
	}
	switch {
	case info.FileAttributes&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0:
		s.Type = wasi.SymbolicLinkType
	case info.FileAttributes&windows.FILE_ATTRIBUTE_DIRECTORY != 0:
		s.Type = wasi.DirectoryType
		s.Mode = 0777
	default:
		s.Type = wasi.RegularFileType
	}
	if info.FileAttributes&windows.FILE_ATTRIBUTE_READONLY != 0 {
		s.Mode &^= 0222
	}
	return s
}

func stat(f *os.File) (op.StructStat, error) {
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(windows.Handle(f.Fd()), &info); err != nil {
		return op.StructStat{}, err
	}
	return makeStructStat(&info), nil
}

func statPath(path string, follow bool) (op.StructStat, error) {
	h, err := openPath(path, windows.FILE_READ_ATTRIBUTES, follow)
	if err != nil {
		return op.StructStat{}, err
	}
	defer windows.CloseHandle(h)

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return op.StructStat{}, err
	}
	return makeStructStat(&info), nil
}

func openPath(path string, access uint32, follow bool) (windows.Handle, error) {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return windows.InvalidHandle, err
	}
	attrs := uint32(windows.FILE_ATTRIBUTE_NORMAL | windows.FILE_FLAG_BACKUP_SEMANTICS)
	if !follow {
		attrs |= windows.FILE_FLAG_OPEN_REPARSE_POINT
	}
	return windows.CreateFile(
		p,
		access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		attrs,
		0,
	)
}

// lock maps record locks to LockFileEx. Windows cannot split a locked range:
// unlocking must name exactly a range that was locked.
func lock(f *os.File, typ op.LockType, start, end int64) error {
	h := windows.Handle(f.Fd())
	length := uint64(end - start)
	if end == math.MaxInt64 {
		length = math.MaxUint64
	}
	ol := new(windows.Overlapped)
	ol.Offset = uint32(start)
	ol.OffsetHigh = uint32(start >> 32)
	lo, hi := uint32(length), uint32(length>>32)

	switch typ {
	case op.SharedLock:
		return windows.LockFileEx(h, windows.LOCKFILE_FAIL_IMMEDIATELY, 0, lo, hi, ol)
	case op.ExclusiveLock:
		return windows.LockFileEx(h, windows.LOCKFILE_FAIL_IMMEDIATELY|windows.LOCKFILE_EXCLUSIVE_LOCK, 0, lo, hi, ol)
	case op.Unlock:
		return windows.UnlockFileEx(h, 0, lo, hi, ol)
	default:
		return fserr.InvalidArgument
	}
}

func setTimes(path string, atime, mtime op.TimeUpdate) error {
	h, err := openPath(path, windows.FILE_WRITE_ATTRIBUTES, true)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	now := time.Now().UnixNano()
	return windows.SetFileTime(h, nil, filetime(atime, now), filetime(mtime, now))
}

// filetime returns nil for omitted timestamps, which SetFileTime leaves
// unchanged.
func filetime(t op.TimeUpdate, now int64) *windows.Filetime {
	var ft windows.Filetime
	switch t.Mode {
	case op.TimeNow:
		ft = windows.NsecToFiletime(now)
	case op.TimeSet:
		ft = windows.NsecToFiletime(int64(t.Time))
	default:
		return nil
	}
	return &ft
}

func rename(oldPath, newPath string) error {
	from, err := syscall.UTF16PtrFromString(oldPath)
	if err != nil {
		return err
	}
	to, err := syscall.UTF16PtrFromString(newPath)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING)
}

func symlink(target, path string) error {
	flags := symlinkFlagAllowUnprivileged
	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(path), target)
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		flags |= windows.SYMBOLIC_LINK_FLAG_DIRECTORY
	}
	t, err := syscall.UTF16PtrFromString(target)
	if err != nil {
		return err
	}
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.CreateSymbolicLink(p, t, flags)
}
