//go:build linux || darwin

package posix

import (
	"io"
	"io/fs"

	"github.com/stealthrocket/wasi-go"
	"golang.org/x/sys/unix"

	"github.com/stealthrocket/wasivfs/internal/fspath"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

type file struct {
	fd   int
	name string
}

func (f *file) join(name string) string {
	return fspath.Join(f.name, name)
}

func (f *file) Close() error {
	fd := f.fd
	f.fd = -1
	if fd < 0 {
		return nil
	}
	return makeError("close", f.name, unix.Close(fd))
}

func (f *file) Readv(iovs [][]byte) (int, error) {
	n, err := readv(f.fd, iovs)
	return n, makeError("read", f.name, err)
}

func (f *file) Writev(iovs [][]byte) (int, error) {
	n, err := writev(f.fd, iovs)
	return n, makeError("write", f.name, err)
}

func (f *file) Preadv(iovs [][]byte, offset int64) (int, error) {
	n, err := preadv(f.fd, iovs, offset)
	return n, makeError("pread", f.name, err)
}

func (f *file) Pwritev(iovs [][]byte, offset int64) (int, error) {
	n, err := pwritev(f.fd, iovs, offset)
	return n, makeError("pwrite", f.name, err)
}

func (f *file) Seek(offset int64, whence op.Whence) (int64, error) {
	if whence > op.SeekEnd {
		return 0, fserr.New("seek", f.name, fserr.InvalidArgument, nil)
	}
	seek, err := lseek(f.fd, offset, int(whence))
	return seek, makeError("seek", f.name, err)
}

func (f *file) Stat() (op.StructStat, error) {
	var stat unix.Stat_t
	if err := fstat(f.fd, &stat); err != nil {
		return op.StructStat{}, makeError("stat", f.name, err)
	}
	return makeStructStat(&stat), nil
}

func (f *file) Sync() error {
	return makeError("sync", f.name, fsync(f.fd))
}

func (f *file) Datasync() error {
	return makeError("datasync", f.name, fdatasync(f.fd))
}

func (f *file) Truncate(size int64) error {
	return makeError("truncate", f.name, ftruncate(f.fd, size))
}

func (f *file) Allocate(offset, length int64) error {
	return makeError("allocate", f.name, fallocate(f.fd, offset, length))
}

func (f *file) Advise(offset, length int64, advice op.Advice) error {
	if int(advice) >= len(fadviseFlags) {
		return fserr.New("advise", f.name, fserr.InvalidArgument, nil)
	}
	return makeError("advise", f.name, fadvise(f.fd, offset, length, fadviseFlags[advice]))
}

func (f *file) Flags() (op.FdFlags, error) {
	fl, err := ignoreEINTR2(func() (int, error) { return unix.FcntlInt(uintptr(f.fd), unix.F_GETFL, 0) })
	if err != nil {
		return 0, makeError("fcntl", f.name, err)
	}
	var flags op.FdFlags
	if fl&unix.O_APPEND != 0 {
		flags |= op.FdAppend
	}
	if fl&unix.O_NONBLOCK != 0 {
		flags |= op.FdNonBlock
	}
	if fl&unix.O_SYNC == unix.O_SYNC {
		flags |= op.FdSync
	} else if fl&unix.O_DSYNC != 0 {
		flags |= op.FdDSync
	}
	return flags, nil
}

// SetFlags only changes the append and non-blocking modes, fcntl(2) ignores
// the synchronization flags after a file was opened.
func (f *file) SetFlags(flags op.FdFlags) error {
	fl, err := ignoreEINTR2(func() (int, error) { return unix.FcntlInt(uintptr(f.fd), unix.F_GETFL, 0) })
	if err != nil {
		return makeError("fcntl", f.name, err)
	}
	fl &^= unix.O_APPEND | unix.O_NONBLOCK
	if flags.Has(op.FdAppend) {
		fl |= unix.O_APPEND
	}
	if flags.Has(op.FdNonBlock) {
		fl |= unix.O_NONBLOCK
	}
	_, err = ignoreEINTR2(func() (int, error) { return unix.FcntlInt(uintptr(f.fd), unix.F_SETFL, fl) })
	return makeError("fcntl", f.name, err)
}

func (f *file) Chmod(mode fs.FileMode) error {
	return makeError("chmod", f.name, fchmod(f.fd, uint32(mode.Perm())))
}

func (f *file) Chown(uid, gid int) error {
	return makeError("chown", f.name, fchown(f.fd, uid, gid))
}

func (f *file) SetTimes(atime, mtime op.TimeUpdate) error {
	ts := makeTimespecs(atime, mtime)
	return makeError("chtimes", f.name, futimens(f.fd, &ts))
}

func (f *file) Lock(lock op.AdvisoryLock) error {
	if lock.Whence > op.SeekEnd {
		return fserr.New("lock", f.name, fserr.InvalidArgument, nil)
	}
	lk := unix.Flock_t{
		Whence: int16(lock.Whence),
		Start:  lock.Start,
		Len:    lock.Length,
	}
	switch lock.Type {
	case op.SharedLock:
		lk.Type = unix.F_RDLCK
	case op.ExclusiveLock:
		lk.Type = unix.F_WRLCK
	case op.Unlock:
		lk.Type = unix.F_UNLCK
	default:
		return fserr.New("lock", f.name, fserr.InvalidArgument, nil)
	}
	return makeLockError(f.name, fcntlFlock(f.fd, setLockCmd, &lk))
}

func (f *file) ReadDir(cookie uint64) (op.DirEntrySequence, error) {
	// The listing gets its own open file description so that its offset is
	// independent from the handle.
	fd, err := openat(f.fd, ".", unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, makeError("readdir", f.name, err)
	}

	if seekableDirectories {
		if cookie != 0 {
			if _, err := lseek(fd, int64(cookie), unix.SEEK_SET); err != nil {
				closeTraceError(fd)
				return nil, makeError("readdir", f.name, err)
			}
		}
		return &dirStream{buf: dirbuf{fd: fd}, name: f.name}, nil
	}

	var stat unix.Stat_t
	if err := fstat(fd, &stat); err != nil {
		closeTraceError(fd)
		return nil, makeError("readdir", f.name, err)
	}
	self := op.DirEntry{Inode: uint64(stat.Ino)}
	parent := op.DirEntry{}
	if fstatat(fd, "..", &stat, unix.AT_SYMLINK_NOFOLLOW) == nil {
		parent.Inode = uint64(stat.Ino)
	}

	buf := &dirbuf{fd: fd}
	read := func() (op.DirEntry, error) {
		for {
			ent, err := buf.next()
			if err != nil {
				if err == io.EOF {
					return op.DirEntry{}, io.EOF
				}
				return op.DirEntry{}, makeError("readdir", f.name, err)
			}
			switch ent.name {
			case ".", "..":
				continue
			}
			return op.DirEntry{Name: ent.name, Type: direntType(ent.typ), Inode: ent.ino}, nil
		}
	}
	release := func() error {
		return makeError("close", f.name, unix.Close(fd))
	}
	return platform.NewIndexedDir(self, parent, cookie, read, release), nil
}

// dirStream lists a directory with the native cursor of the kernel: the
// cookie of an entry is its d_off value.
type dirStream struct {
	buf  dirbuf
	name string
}

func (d *dirStream) Next() (op.DirEntry, error) {
	if d.buf.fd < 0 {
		return op.DirEntry{}, io.EOF
	}
	ent, err := d.buf.next()
	if err != nil {
		if err == io.EOF {
			return op.DirEntry{}, io.EOF
		}
		return op.DirEntry{}, makeError("readdir", d.name, err)
	}
	return op.DirEntry{
		Name:   ent.name,
		Type:   direntType(ent.typ),
		Inode:  ent.ino,
		Cookie: ent.off,
	}, nil
}

func (d *dirStream) Close() error {
	fd := d.buf.fd
	d.buf.fd = -1
	d.buf.reset()
	if fd < 0 {
		return nil
	}
	return makeError("close", d.name, unix.Close(fd))
}

func (f *file) OpenAt(name string, options platform.OpenOptions) (platform.Handle, error) {
	fd, err := openat(f.fd, name, makeOpenFlags(options), uint32(options.Mode.Perm()))
	if err != nil {
		return nil, makeError("open", f.join(name), err)
	}
	return &file{fd: fd, name: f.join(name)}, nil
}

func (f *file) StatAt(name string, follow bool) (op.StructStat, error) {
	var stat unix.Stat_t
	if err := fstatat(f.fd, name, &stat, lookupFlags(follow)); err != nil {
		return op.StructStat{}, makeError("stat", f.join(name), err)
	}
	return makeStructStat(&stat), nil
}

func (f *file) MkdirAt(name string, mode fs.FileMode) error {
	return makeError("mkdir", f.join(name), mkdirat(f.fd, name, uint32(mode.Perm())))
}

func (f *file) UnlinkAt(name string, dir bool) error {
	if dir {
		return makeError("rmdir", f.join(name), unlinkat(f.fd, name, unix.AT_REMOVEDIR))
	}
	err := unlinkat(f.fd, name, 0)
	if err == unix.EPERM {
		// darwin reports EPERM when unlinking a directory.
		var stat unix.Stat_t
		if fstatat(f.fd, name, &stat, unix.AT_SYMLINK_NOFOLLOW) == nil && uint32(stat.Mode)&unix.S_IFMT == unix.S_IFDIR {
			err = unix.EISDIR
		}
	}
	return makeError("unlink", f.join(name), err)
}

func (f *file) RenameAt(oldName string, newDir platform.Handle, newName string) error {
	d, ok := newDir.(*file)
	if !ok {
		return fserr.New("rename", f.join(oldName), fserr.CrossDevice, nil)
	}
	return makeError("rename", f.join(oldName), renameat(f.fd, oldName, d.fd, newName))
}

func (f *file) LinkAt(oldName string, newDir platform.Handle, newName string, follow bool) error {
	d, ok := newDir.(*file)
	if !ok {
		return fserr.New("link", f.join(oldName), fserr.CrossDevice, nil)
	}
	flags := 0
	if follow {
		flags |= unix.AT_SYMLINK_FOLLOW
	}
	return makeError("link", f.join(oldName), linkat(f.fd, oldName, d.fd, newName, flags))
}

func (f *file) SymlinkAt(target, name string) error {
	return makeError("symlink", f.join(name), symlinkat(target, f.fd, name))
}

func (f *file) ReadlinkAt(name string) (string, error) {
	link, err := readlinkat(f.fd, name)
	if err != nil {
		return "", makeError("readlink", f.join(name), err)
	}
	return link, nil
}

func (f *file) ChmodAt(name string, mode fs.FileMode, follow bool) error {
	flags := lookupFlags(follow)
	if !follow {
		// Linux rejects AT_SYMLINK_NOFOLLOW in fchmodat(2), the flag is only
		// passed when the entry is a symbolic link.
		var stat unix.Stat_t
		if err := fstatat(f.fd, name, &stat, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return makeError("chmod", f.join(name), err)
		}
		if uint32(stat.Mode)&unix.S_IFMT != unix.S_IFLNK {
			flags = 0
		}
	}
	return makeError("chmod", f.join(name), fchmodat(f.fd, name, uint32(mode.Perm()), flags))
}

func (f *file) ChownAt(name string, uid, gid int, follow bool) error {
	return makeError("chown", f.join(name), fchownat(f.fd, name, uid, gid, lookupFlags(follow)))
}

func (f *file) SetTimesAt(name string, atime, mtime op.TimeUpdate, follow bool) error {
	ts := makeTimespecs(atime, mtime)
	return makeError("chtimes", f.join(name), utimensat(f.fd, name, &ts, lookupFlags(follow)))
}

func (f *file) AccessAt(name string, mode op.AccessMode, effective, follow bool) error {
	var amode uint32
	if mode&op.ReadAccess != 0 {
		amode |= unix.R_OK
	}
	if mode&op.WriteAccess != 0 {
		amode |= unix.W_OK
	}
	if mode&op.ExecuteAccess != 0 {
		amode |= unix.X_OK
	}
	flags := lookupFlags(follow)
	if effective {
		flags |= unix.AT_EACCESS
	}
	return makeError("access", f.join(name), faccessat(f.fd, name, amode, flags))
}

func lookupFlags(follow bool) int {
	if follow {
		return 0
	}
	return unix.AT_SYMLINK_NOFOLLOW
}

func makeOpenFlags(options platform.OpenOptions) int {
	if options.Search {
		flags := openPathFlags
		if !options.NoFollow {
			flags &^= unix.O_NOFOLLOW
		}
		return flags
	}

	var flags int
	switch options.Access {
	case op.WriteOnly:
		flags = unix.O_WRONLY
	case op.ReadWrite:
		flags = unix.O_RDWR
	default:
		flags = unix.O_RDONLY
	}
	if options.Flags.Has(op.OpenCreate) {
		flags |= unix.O_CREAT
	}
	if options.Flags.Has(op.OpenDirectory) {
		flags |= unix.O_DIRECTORY
	}
	if options.Flags.Has(op.OpenExclusive) {
		flags |= unix.O_EXCL
	}
	if options.Flags.Has(op.OpenTruncate) {
		flags |= unix.O_TRUNC
	}
	if options.FdFlags.Has(op.FdAppend) {
		flags |= unix.O_APPEND
	}
	if options.FdFlags.Has(op.FdNonBlock) {
		flags |= unix.O_NONBLOCK
	}
	if options.FdFlags.Has(op.FdDSync) {
		flags |= unix.O_DSYNC
	}
	if options.FdFlags.Has(op.FdSync) || options.FdFlags.Has(op.FdRSync) {
		flags |= unix.O_SYNC
	}
	if options.NoFollow {
		flags |= unix.O_NOFOLLOW
	}
	return flags
}

func makeTimespecs(atime, mtime op.TimeUpdate) [2]unix.Timespec {
	return [2]unix.Timespec{makeTimespec(atime), makeTimespec(mtime)}
}

func makeTimespec(t op.TimeUpdate) unix.Timespec {
	switch t.Mode {
	case op.TimeNow:
		return unix.Timespec{Nsec: UTIME_NOW}
	case op.TimeSet:
		return unix.NsecToTimespec(int64(t.Time))
	default:
		return unix.Timespec{Nsec: UTIME_OMIT}
	}
}

func makeStructStat(stat *unix.Stat_t) op.StructStat {
	s := op.StructStat{
		Dev:     uint64(stat.Dev),
		Ino:     uint64(stat.Ino),
		Mode:    fs.FileMode(stat.Mode & 0777), // perm
		Nlink:   uint64(stat.Nlink),
		Uid:     stat.Uid,
		Gid:     stat.Gid,
		Size:    stat.Size,
		Blksize: int64(stat.Blksize),
		Blocks:  stat.Blocks,
		Atime:   op.Timespec(unix.TimespecToNsec(stat.Atim)),
		Mtime:   op.Timespec(unix.TimespecToNsec(stat.Mtim)),
		Ctime:   op.Timespec(unix.TimespecToNsec(stat.Ctim)),
	}
	switch uint32(stat.Mode) & unix.S_IFMT {
	case unix.S_IFREG:
		s.Type = wasi.RegularFileType
	case unix.S_IFBLK:
		s.Type = wasi.BlockDeviceType
	case unix.S_IFCHR:
		s.Type = wasi.CharacterDeviceType
	case unix.S_IFDIR:
		s.Type = wasi.DirectoryType
	case unix.S_IFLNK:
		s.Type = wasi.SymbolicLinkType
	case unix.S_IFSOCK:
		s.Type = wasi.SocketStreamType
	default:
		s.Type = wasi.UnknownType
	}
	return s
}

func direntType(typ uint8) op.FileType {
	switch typ {
	case unix.DT_REG:
		return wasi.RegularFileType
	case unix.DT_BLK:
		return wasi.BlockDeviceType
	case unix.DT_CHR:
		return wasi.CharacterDeviceType
	case unix.DT_DIR:
		return wasi.DirectoryType
	case unix.DT_LNK:
		return wasi.SymbolicLinkType
	case unix.DT_SOCK:
		return wasi.SocketStreamType
	default: // DT_FIFO, DT_WHT, DT_UNKNOWN
		return wasi.UnknownType
	}
}
