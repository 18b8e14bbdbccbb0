package portable

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// readDirBatch is the number of entries read per call to os.File.ReadDir.
const readDirBatch = 64

type file struct {
	fsys  *FileSystem
	file  *os.File
	path  string
	stdio bool
	// The os package cannot change the mode of an open file, the append
	// flag is emulated by seeking to the end before each write.
	flags op.FdFlags
}

func (f *file) join(name string) string {
	return filepath.Join(f.path, filepath.FromSlash(name))
}

func (f *file) lockID() platform.FileID {
	return platform.FileID{Path: f.path}
}

func (f *file) Close() error {
	f.fsys.locks.UnlockAll(f.lockID(), f)
	if f.stdio {
		return nil
	}
	return f.fsys.makeError("close", f.path, f.file.Close())
}

func (f *file) Readv(iovs [][]byte) (int, error) {
	n, err := vectored(iovs, f.file.Read)
	return n, f.fsys.makeError("read", f.path, err)
}

func (f *file) Writev(iovs [][]byte) (int, error) {
	if f.flags.Has(op.FdAppend) {
		if _, err := f.file.Seek(0, io.SeekEnd); err != nil {
			return 0, f.fsys.makeError("write", f.path, err)
		}
	}
	n, err := vectored(iovs, f.file.Write)
	return n, f.fsys.makeError("write", f.path, err)
}

func (f *file) Preadv(iovs [][]byte, offset int64) (int, error) {
	n, err := vectored(iovs, func(b []byte) (int, error) {
		n, err := f.file.ReadAt(b, offset)
		offset += int64(n)
		if err == io.EOF && n > 0 {
			err = nil
		}
		return n, err
	})
	return n, f.fsys.makeError("pread", f.path, err)
}

func (f *file) Pwritev(iovs [][]byte, offset int64) (int, error) {
	n, err := vectored(iovs, func(b []byte) (int, error) {
		n, err := f.file.WriteAt(b, offset)
		offset += int64(n)
		return n, err
	})
	return n, f.fsys.makeError("pwrite", f.path, err)
}

// vectored applies fn to each buffer until one of them is transferred
// partially. Reaching the end of file is not an error.
func vectored(iovs [][]byte, fn func([]byte) (int, error)) (int, error) {
	total := 0
	for _, iov := range iovs {
		if len(iov) == 0 {
			continue
		}
		n, err := fn(iov)
		total += n
		if err != nil {
			if err == io.EOF || total > 0 {
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

func (f *file) Seek(offset int64, whence op.Whence) (int64, error) {
	if whence > op.SeekEnd {
		return 0, fserr.New("seek", f.path, fserr.InvalidArgument, nil)
	}
	seek, err := f.file.Seek(offset, int(whence))
	return seek, f.fsys.makeError("seek", f.path, err)
}

func (f *file) Stat() (op.StructStat, error) {
	if stat := f.fsys.hooks.Stat; stat != nil {
		s, err := stat(f.file)
		return s, f.fsys.makeError("stat", f.path, err)
	}
	info, err := f.file.Stat()
	if err != nil {
		return op.StructStat{}, f.fsys.makeError("stat", f.path, err)
	}
	return makeStructStat(info), nil
}

func (f *file) Sync() error {
	return f.fsys.makeError("sync", f.path, f.file.Sync())
}

func (f *file) Datasync() error {
	return f.fsys.makeError("datasync", f.path, f.file.Sync())
}

func (f *file) Truncate(size int64) error {
	return f.fsys.makeError("truncate", f.path, f.file.Truncate(size))
}

func (f *file) Allocate(offset, length int64) error {
	info, err := f.file.Stat()
	if err != nil {
		return f.fsys.makeError("allocate", f.path, err)
	}
	if size := offset + length; size > info.Size() {
		return f.fsys.makeError("allocate", f.path, f.file.Truncate(size))
	}
	return nil
}

func (f *file) Advise(offset, length int64, advice op.Advice) error {
	if advice > op.AdviceNoReuse {
		return fserr.New("advise", f.path, fserr.InvalidArgument, nil)
	}
	return nil
}

func (f *file) Flags() (op.FdFlags, error) { return f.flags, nil }

func (f *file) SetFlags(flags op.FdFlags) error {
	const mutable = op.FdAppend | op.FdNonBlock
	f.flags = (f.flags &^ mutable) | (flags & mutable)
	return nil
}

func (f *file) Chmod(mode fs.FileMode) error {
	return f.fsys.makeError("chmod", f.path, f.file.Chmod(mode.Perm()))
}

func (f *file) Chown(uid, gid int) error {
	return f.fsys.makeError("chown", f.path, f.file.Chown(uid, gid))
}

func (f *file) SetTimes(atime, mtime op.TimeUpdate) error {
	return f.setTimes("chtimes", f.path, atime, mtime)
}

func (f *file) setTimes(opName, path string, atime, mtime op.TimeUpdate) error {
	if setTimes := f.fsys.hooks.SetTimes; setTimes != nil {
		return f.fsys.makeError(opName, path, setTimes(path, atime, mtime))
	}
	info, err := os.Stat(path)
	if err != nil {
		return f.fsys.makeError(opName, path, err)
	}
	now := time.Now()
	// The os package only exposes the modification time; it stands in for the
	// access time when the latter is omitted.
	a := resolveTime(atime, info.ModTime(), now)
	m := resolveTime(mtime, info.ModTime(), now)
	return f.fsys.makeError(opName, path, os.Chtimes(path, a, m))
}

func resolveTime(t op.TimeUpdate, current, now time.Time) time.Time {
	switch t.Mode {
	case op.TimeNow:
		return now
	case op.TimeSet:
		return t.Time.Time()
	default:
		return current
	}
}

func (f *file) Lock(lock op.AdvisoryLock) error {
	offset, err := f.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return f.fsys.makeError("lock", f.path, err)
	}
	info, err := f.file.Stat()
	if err != nil {
		return f.fsys.makeError("lock", f.path, err)
	}
	start, end, err := platform.LockRange(lock, offset, info.Size())
	if err != nil {
		return f.fsys.makeError("lock", f.path, err)
	}
	if lockFile := f.fsys.hooks.Lock; lockFile != nil {
		return f.fsys.makeError("lock", f.path, lockFile(f.file, lock.Type, start, end))
	}
	return f.fsys.makeError("lock", f.path, f.fsys.locks.Lock(f.lockID(), f, lock.Type, start, end))
}

func (f *file) ReadDir(cookie uint64) (op.DirEntrySequence, error) {
	d, err := os.Open(f.path)
	if err != nil {
		return nil, f.fsys.makeError("readdir", f.path, err)
	}
	if err := checkDirectory(d); err != nil {
		d.Close()
		return nil, f.fsys.makeError("readdir", f.path, err)
	}
	self := op.DirEntry{}
	parent := op.DirEntry{}
	var batch []fs.DirEntry
	read := func() (op.DirEntry, error) {
		if len(batch) == 0 {
			entries, err := d.ReadDir(readDirBatch)
			if len(entries) == 0 {
				if err == nil || err == io.EOF {
					return op.DirEntry{}, io.EOF
				}
				return op.DirEntry{}, f.fsys.makeError("readdir", f.path, err)
			}
			batch = entries
		}
		e := batch[0]
		batch = batch[1:]
		return op.DirEntry{Name: e.Name(), Type: op.MakeFileType(e.Type())}, nil
	}
	release := func() error {
		return f.fsys.makeError("close", f.path, d.Close())
	}
	return platform.NewIndexedDir(self, parent, cookie, read, release), nil
}

func (f *file) OpenAt(name string, options platform.OpenOptions) (platform.Handle, error) {
	path := f.join(name)
	if options.NoFollow {
		if info, err := os.Lstat(path); err == nil && info.Mode().Type() == fs.ModeSymlink {
			return nil, fserr.New("open", path, fserr.Loop, nil)
		}
	}

	if options.Search {
		d, err := os.Open(path)
		if err != nil {
			return nil, f.fsys.makeError("open", path, err)
		}
		if err := checkDirectory(d); err != nil {
			d.Close()
			return nil, f.fsys.makeError("open", path, err)
		}
		return &file{fsys: f.fsys, file: d, path: path}, nil
	}

	var flags int
	switch options.Access {
	case op.WriteOnly:
		flags = os.O_WRONLY
	case op.ReadWrite:
		flags = os.O_RDWR
	default:
		flags = os.O_RDONLY
	}
	if options.Flags.Has(op.OpenCreate) {
		flags |= os.O_CREATE
	}
	if options.Flags.Has(op.OpenExclusive) {
		flags |= os.O_EXCL
	}
	if options.Flags.Has(op.OpenTruncate) {
		flags |= os.O_TRUNC
	}
	if options.FdFlags.Has(op.FdSync) || options.FdFlags.Has(op.FdDSync) || options.FdFlags.Has(op.FdRSync) {
		flags |= os.O_SYNC
	}

	if options.Access != op.ReadOnly {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return nil, fserr.New("open", path, fserr.PathIsDirectory, nil)
		}
	}

	h, err := os.OpenFile(path, flags, options.Mode.Perm())
	if err != nil {
		return nil, f.fsys.makeError("open", path, err)
	}
	info, err := h.Stat()
	if err != nil {
		h.Close()
		return nil, f.fsys.makeError("open", path, err)
	}
	if options.Flags.Has(op.OpenDirectory) && !info.IsDir() {
		h.Close()
		return nil, fserr.New("open", path, fserr.NotDirectory, nil)
	}
	return &file{
		fsys:  f.fsys,
		file:  h,
		path:  path,
		flags: options.FdFlags,
	}, nil
}

func checkDirectory(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fserr.NotDirectory
	}
	return nil
}

func (f *file) StatAt(name string, follow bool) (op.StructStat, error) {
	path := f.join(name)
	if statPath := f.fsys.hooks.StatPath; statPath != nil {
		s, err := statPath(path, follow)
		return s, f.fsys.makeError("stat", path, err)
	}
	info, err := stat(path, follow)
	if err != nil {
		return op.StructStat{}, f.fsys.makeError("stat", path, err)
	}
	return makeStructStat(info), nil
}

func stat(path string, follow bool) (fs.FileInfo, error) {
	if follow {
		return os.Stat(path)
	}
	return os.Lstat(path)
}

func (f *file) MkdirAt(name string, mode fs.FileMode) error {
	path := f.join(name)
	return f.fsys.makeError("mkdir", path, os.Mkdir(path, mode.Perm()))
}

func (f *file) UnlinkAt(name string, dir bool) error {
	path := f.join(name)
	info, err := os.Lstat(path)
	if err != nil {
		return f.fsys.makeError("unlink", path, err)
	}
	switch {
	case dir && !info.IsDir():
		return fserr.New("rmdir", path, fserr.NotDirectory, nil)
	case !dir && info.IsDir():
		return fserr.New("unlink", path, fserr.PathIsDirectory, nil)
	}
	return f.fsys.makeError("unlink", path, os.Remove(path))
}

func (f *file) RenameAt(oldName string, newDir platform.Handle, newName string) error {
	d, ok := newDir.(*file)
	if !ok {
		return fserr.New("rename", f.join(oldName), fserr.CrossDevice, nil)
	}
	oldPath, newPath := f.join(oldName), d.join(newName)
	rename := os.Rename
	if f.fsys.hooks.Rename != nil {
		rename = f.fsys.hooks.Rename
	}
	return f.fsys.makeError("rename", oldPath, rename(oldPath, newPath))
}

func (f *file) LinkAt(oldName string, newDir platform.Handle, newName string, follow bool) error {
	d, ok := newDir.(*file)
	if !ok {
		return fserr.New("link", f.join(oldName), fserr.CrossDevice, nil)
	}
	oldPath, newPath := f.join(oldName), d.join(newName)
	if follow {
		// Following the link could leave the directory the handle is
		// confined to, only regular entries can be linked.
		if info, err := os.Lstat(oldPath); err == nil && info.Mode().Type() == fs.ModeSymlink {
			return fserr.New("link", oldPath, fserr.NotSupported, nil)
		}
	}
	return f.fsys.makeError("link", oldPath, os.Link(oldPath, newPath))
}

func (f *file) SymlinkAt(target, name string) error {
	path := f.join(name)
	symlink := os.Symlink
	if f.fsys.hooks.Symlink != nil {
		symlink = f.fsys.hooks.Symlink
	}
	return f.fsys.makeError("symlink", path, symlink(filepath.FromSlash(target), path))
}

func (f *file) ReadlinkAt(name string) (string, error) {
	path := f.join(name)
	info, err := os.Lstat(path)
	if err != nil {
		return "", f.fsys.makeError("readlink", path, err)
	}
	if info.Mode().Type() != fs.ModeSymlink {
		return "", fserr.New("readlink", path, fserr.InvalidArgument, nil)
	}
	link, err := os.Readlink(path)
	if err != nil {
		return "", f.fsys.makeError("readlink", path, err)
	}
	return filepath.ToSlash(link), nil
}

func (f *file) ChmodAt(name string, mode fs.FileMode, follow bool) error {
	path := f.join(name)
	if err := f.checkNoFollow("chmod", path, follow); err != nil {
		return err
	}
	return f.fsys.makeError("chmod", path, os.Chmod(path, mode.Perm()))
}

func (f *file) ChownAt(name string, uid, gid int, follow bool) error {
	path := f.join(name)
	if follow {
		return f.fsys.makeError("chown", path, os.Chown(path, uid, gid))
	}
	return f.fsys.makeError("chown", path, os.Lchown(path, uid, gid))
}

func (f *file) SetTimesAt(name string, atime, mtime op.TimeUpdate, follow bool) error {
	path := f.join(name)
	if err := f.checkNoFollow("chtimes", path, follow); err != nil {
		return err
	}
	return f.setTimes("chtimes", path, atime, mtime)
}

// checkNoFollow fails for symbolic links when the operation must not follow
// them, the os package has no way to change them in place.
func (f *file) checkNoFollow(opName, path string, follow bool) error {
	if follow {
		return nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		return f.fsys.makeError(opName, path, err)
	}
	if info.Mode().Type() == fs.ModeSymlink {
		return fserr.New(opName, path, fserr.NotSupported, nil)
	}
	return nil
}

// AccessAt checks the permission bits of any class of users, the os package
// does not expose the identity of the process portably.
func (f *file) AccessAt(name string, mode op.AccessMode, effective, follow bool) error {
	path := f.join(name)
	info, err := stat(path, follow)
	if err != nil {
		return f.fsys.makeError("access", path, err)
	}
	perm := info.Mode().Perm()
	var denied bool
	if mode&op.ReadAccess != 0 && perm&0444 == 0 {
		denied = true
	}
	if mode&op.WriteAccess != 0 && perm&0222 == 0 {
		denied = true
	}
	if mode&op.ExecuteAccess != 0 && perm&0111 == 0 {
		denied = true
	}
	if denied {
		return fserr.New("access", path, fserr.AccessDenied, nil)
	}
	return nil
}

func makeStructStat(info fs.FileInfo) op.StructStat {
	mtime := op.MakeTimespec(info.ModTime())
	return op.StructStat{
		Mode:  info.Mode().Perm(),
		Type:  op.MakeFileType(info.Mode()),
		Nlink: 1,
		Size:  info.Size(),
		Atime: mtime,
		Mtime: mtime,
		Ctime: mtime,
	}
}
