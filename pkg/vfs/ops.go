package vfs

import (
	"context"
	"io/fs"

	"github.com/stealthrocket/wasi-go"
	"go.uber.org/zap"

	"github.com/stealthrocket/wasivfs/internal/fdtable"
	"github.com/stealthrocket/wasivfs/internal/fspath"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/resolve"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

const (
	defaultFileMode fs.FileMode = 0666
	defaultDirMode  fs.FileMode = 0777
)

func init() {
	register(op.Open, (*Engine).open)
	register(op.CloseFd, (*Engine).closeFd)
	register(op.ReadFd, (*Engine).readFd)
	register(op.WriteFd, (*Engine).writeFd)
	register(op.SeekFd, (*Engine).seekFd)
	register(op.Mkdir, (*Engine).mkdir)
	register(op.Chmod, (*Engine).chmod)
	register(op.ChmodFd, (*Engine).chmodFd)
	register(op.Chown, (*Engine).chown)
	register(op.ChownFd, (*Engine).chownFd)
	register(op.Rename, (*Engine).rename)
	register(op.Symlink, (*Engine).symlink)
	register(op.Hardlink, (*Engine).hardlink)
	register(op.ReadLink, (*Engine).readLink)
	register(op.ReadDirFd, (*Engine).readDirFd)
	register(op.Fdrenumber, (*Engine).fdRenumber)
	register(op.FdAttributes, (*Engine).fdAttributes)
	register(op.SetFdFlags, (*Engine).setFdFlags)
	register(op.Fallocate, (*Engine).fallocate)
	register(op.Fadvise, (*Engine).fadvise)
	register(op.Sync, (*Engine).sync)
	register(op.Truncate, (*Engine).truncate)
	register(op.TruncateFd, (*Engine).truncateFd)
	register(op.SetTimestamp, (*Engine).setTimestamp)
	register(op.SetTimestampFd, (*Engine).setTimestampFd)
	register(op.CheckAccess, (*Engine).checkAccess)
	register(op.PrestatFd, (*Engine).prestatFd)
	register(op.AddAdvisoryLockFd, (*Engine).addAdvisoryLockFd)
	register(op.RemoveAdvisoryLockFd, (*Engine).removeAdvisoryLockFd)
	register(op.UnlinkFile, (*Engine).unlinkFile)
	register(op.UnlinkDirectory, (*Engine).unlinkDirectory)
	register(op.Stat, (*Engine).stat)
	register(op.StatFd, (*Engine).statFd)
	register(op.Poll, (*Engine).poll)
	register(op.GetCurrentWorkingDirectory, (*Engine).getCurrentWorkingDirectory)
}

// use calls fn with the handle of the resource bound to fd, holding the
// resource lock.
func (e *Engine) use(fd op.Fd, fn func(*fdtable.Resource, platform.Handle) error) error {
	res, err := e.table.Get(fd)
	if err != nil {
		return err
	}
	err = res.Use(func(h platform.Handle) error { return fn(res, h) })
	return fserr.WithPath(err, res.Path.String())
}

// at resolves a path and calls fn with the directory holding its last
// component. Symbolic links are expanded by the resolver, the native calls
// made by fn must not follow them.
func (e *Engine) at(base op.BaseDirectory, path string, follow bool, fn func(dir platform.Handle, name string) error) error {
	return e.resolver.Resolve(base, path, follow, func(dir platform.Handle, name string, _ *resolve.Location) error {
		return fn(dir, name)
	})
}

func (e *Engine) open(ctx context.Context, in op.OpenInput) (op.Fd, error) {
	if in.Flags.Has(op.OpenCreate | op.OpenDirectory) {
		return -1, fserr.New("open", in.Path, fserr.InvalidArgument, nil)
	}
	if in.Flags.Has(op.OpenDirectory) && in.Access.CanWrite() {
		return -1, fserr.New("open", in.Path, fserr.PathIsDirectory, nil)
	}
	mode := in.Mode
	if mode == 0 {
		mode = defaultFileMode
	}

	var h platform.Handle
	var loc *resolve.Location
	err := e.resolver.Resolve(in.Base, in.Path, in.Follow, func(dir platform.Handle, name string, l *resolve.Location) (err error) {
		h, err = dir.OpenAt(name, platform.OpenOptions{
			Access:   in.Access,
			Flags:    in.Flags,
			FdFlags:  in.FdFlags,
			Mode:     mode,
			NoFollow: true,
		})
		loc = l
		return err
	})
	if err != nil {
		return -1, err
	}

	s, err := h.Stat()
	if err != nil {
		h.Close()
		return -1, err
	}
	kind := fdtable.File
	rights := wasi.FileRights
	inheriting := wasi.Rights(0)
	if s.Type == wasi.DirectoryType {
		kind = fdtable.Directory
		rights = wasi.DirectoryRights
		inheriting = wasi.DirectoryRights | wasi.FileRights
	}
	res := fdtable.NewResource(kind, h)
	res.Path = loc.Path
	res.Root = loc.Root
	res.Rel = loc.Rel
	res.Type = s.Type
	res.Rights = rights
	res.InheritingRights = inheriting

	fd, err := e.table.Allocate(res)
	if err != nil {
		res.Close()
		return -1, err
	}
	return fd, nil
}

func (e *Engine) closeFd(ctx context.Context, in op.CloseFdInput) (op.Unit, error) {
	res, ok, err := e.table.Remove(in.Fd)
	if err != nil {
		return op.Unit{}, err
	}
	if !ok {
		return op.Unit{}, fserr.BadFileDescriptor
	}
	return op.Unit{}, fserr.WithPath(res.Close(), res.Path.String())
}

func (e *Engine) readFd(ctx context.Context, in op.ReadFdInput) (n int, err error) {
	err = e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		switch in.Strategy {
		case op.Positional:
			if in.Offset < 0 {
				return fserr.InvalidArgument
			}
			n, err = h.Preadv(in.Iovecs, in.Offset)
		default:
			n, err = h.Readv(in.Iovecs)
		}
		return err
	})
	return n, err
}

func (e *Engine) writeFd(ctx context.Context, in op.WriteFdInput) (n int, err error) {
	err = e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		switch in.Strategy {
		case op.Positional:
			if in.Offset < 0 {
				return fserr.InvalidArgument
			}
			n, err = h.Pwritev(in.Iovecs, in.Offset)
		default:
			n, err = h.Writev(in.Iovecs)
		}
		return err
	})
	return n, err
}

func (e *Engine) seekFd(ctx context.Context, in op.SeekFdInput) (offset int64, err error) {
	err = e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		switch in.Whence {
		case op.SeekStart, op.SeekCurrent, op.SeekEnd:
		default:
			return fserr.InvalidArgument
		}
		offset, err = h.Seek(in.Offset, in.Whence)
		return err
	})
	return offset, err
}

func (e *Engine) mkdir(ctx context.Context, in op.MkdirInput) (op.Unit, error) {
	mode := in.Mode
	if mode == 0 {
		mode = defaultDirMode
	}
	return op.Unit{}, e.at(in.Base, in.Path, false, func(dir platform.Handle, name string) error {
		err := dir.MkdirAt(name, mode)
		if err != nil && !in.FailIfExists && fserr.KindOf(err) == fserr.Exists {
			if s, serr := dir.StatAt(name, false); serr == nil && s.Type == wasi.DirectoryType {
				return nil
			}
		}
		return err
	})
}

func (e *Engine) chmod(ctx context.Context, in op.ChmodInput) (op.Unit, error) {
	return op.Unit{}, e.at(in.Base, in.Path, in.Follow, func(dir platform.Handle, name string) error {
		return dir.ChmodAt(name, in.Mode, false)
	})
}

func (e *Engine) chmodFd(ctx context.Context, in op.ChmodFdInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		return h.Chmod(in.Mode)
	})
}

func (e *Engine) chown(ctx context.Context, in op.ChownInput) (op.Unit, error) {
	return op.Unit{}, e.at(in.Base, in.Path, in.Follow, func(dir platform.Handle, name string) error {
		return dir.ChownAt(name, in.Uid, in.Gid, false)
	})
}

func (e *Engine) chownFd(ctx context.Context, in op.ChownFdInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		return h.Chown(in.Uid, in.Gid)
	})
}

func (e *Engine) rename(ctx context.Context, in op.RenameInput) (op.Unit, error) {
	return op.Unit{}, e.resolver.Resolve2(in.OldBase, in.OldPath, in.NewBase, in.NewPath, false,
		func(oldDir platform.Handle, oldName string, newDir platform.Handle, newName string) error {
			return oldDir.RenameAt(oldName, newDir, newName)
		},
	)
}

func (e *Engine) symlink(ctx context.Context, in op.SymlinkInput) (op.Unit, error) {
	if err := vpath.Validate(in.OldPath); err != nil {
		return op.Unit{}, err
	}
	if fspath.IsAbs(in.OldPath) && !in.AllowAbsoluteOldPath {
		return op.Unit{}, fserr.New("symlink", in.OldPath, fserr.NotCapable, nil)
	}
	return op.Unit{}, e.at(in.NewBase, in.NewPath, false, func(dir platform.Handle, name string) error {
		return dir.SymlinkAt(in.OldPath, name)
	})
}

func (e *Engine) hardlink(ctx context.Context, in op.HardlinkInput) (op.Unit, error) {
	return op.Unit{}, e.resolver.Resolve2(in.OldBase, in.OldPath, in.NewBase, in.NewPath, in.Follow,
		func(oldDir platform.Handle, oldName string, newDir platform.Handle, newName string) error {
			return oldDir.LinkAt(oldName, newDir, newName, false)
		},
	)
}

func (e *Engine) readLink(ctx context.Context, in op.ReadLinkInput) (link vpath.VirtualPath, err error) {
	err = e.at(in.Base, in.Path, false, func(dir platform.Handle, name string) error {
		s, err := dir.ReadlinkAt(name)
		if err != nil {
			return err
		}
		link, err = vpath.New(s)
		return err
	})
	return link, err
}

func (e *Engine) readDirFd(ctx context.Context, in op.ReadDirFdInput) (dir op.DirEntrySequence, err error) {
	err = e.use(in.Fd, func(res *fdtable.Resource, h platform.Handle) error {
		if !res.Kind().IsDirectory() {
			return fserr.NotDirectory
		}
		d, err := h.ReadDir(in.Cookie)
		if err == nil {
			dir = virtualDir{d, res.Path.String()}
		}
		return err
	})
	return dir, err
}

// virtualDir reports the errors of a directory listing with the virtual path
// of the directory.
type virtualDir struct {
	op.DirEntrySequence
	path string
}

func (d virtualDir) Next() (op.DirEntry, error) {
	entry, err := d.DirEntrySequence.Next()
	return entry, fserr.WithPath(err, d.path)
}

func (d virtualDir) Close() error {
	return fserr.WithPath(d.DirEntrySequence.Close(), d.path)
}

func (e *Engine) fdRenumber(ctx context.Context, in op.FdrenumberInput) (op.Unit, error) {
	prev, err := e.table.Renumber(in.From, in.To)
	if err != nil {
		return op.Unit{}, err
	}
	if prev != nil {
		if err := prev.Close(); err != nil {
			e.logger.Warn("closing renumbered file descriptor",
				zap.Stringer("fd", in.To),
				zap.Stringer("resource", prev),
				zap.Error(err),
			)
		}
	}
	return op.Unit{}, nil
}

func (e *Engine) fdAttributes(ctx context.Context, in op.FdAttributesInput) (attrs op.FdAttributesResult, err error) {
	err = e.use(in.Fd, func(res *fdtable.Resource, h platform.Handle) error {
		flags, err := h.Flags()
		if err != nil {
			return err
		}
		attrs = op.FdAttributesResult{
			Type:             res.Type,
			Flags:            flags,
			Rights:           res.Rights,
			InheritingRights: res.InheritingRights,
		}
		return nil
	})
	return attrs, err
}

func (e *Engine) setFdFlags(ctx context.Context, in op.SetFdFlagsInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		return h.SetFlags(in.Flags)
	})
}

func (e *Engine) fallocate(ctx context.Context, in op.FallocateInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(res *fdtable.Resource, h platform.Handle) error {
		if in.Offset < 0 || in.Length <= 0 {
			return fserr.InvalidArgument
		}
		if res.Kind().IsDirectory() {
			return fserr.PathIsDirectory
		}
		return h.Allocate(in.Offset, in.Length)
	})
}

func (e *Engine) fadvise(ctx context.Context, in op.FadviseInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		if in.Offset < 0 || in.Length < 0 {
			return fserr.InvalidArgument
		}
		return h.Advise(in.Offset, in.Length, in.Advice)
	})
}

func (e *Engine) sync(ctx context.Context, in op.SyncInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		if in.DataOnly {
			return h.Datasync()
		}
		return h.Sync()
	})
}

func (e *Engine) truncate(ctx context.Context, in op.TruncateInput) (op.Unit, error) {
	if in.Length < 0 {
		return op.Unit{}, fserr.New("truncate", in.Path, fserr.InvalidArgument, nil)
	}
	return op.Unit{}, e.at(in.Base, in.Path, true, func(dir platform.Handle, name string) error {
		f, err := dir.OpenAt(name, platform.OpenOptions{Access: op.WriteOnly, NoFollow: true})
		if err != nil {
			return err
		}
		defer f.Close()
		return f.Truncate(in.Length)
	})
}

func (e *Engine) truncateFd(ctx context.Context, in op.TruncateFdInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(res *fdtable.Resource, h platform.Handle) error {
		if in.Length < 0 {
			return fserr.InvalidArgument
		}
		if res.Kind().IsDirectory() {
			return fserr.PathIsDirectory
		}
		return h.Truncate(in.Length)
	})
}

func (e *Engine) setTimestamp(ctx context.Context, in op.SetTimestampInput) (op.Unit, error) {
	return op.Unit{}, e.at(in.Base, in.Path, in.Follow, func(dir platform.Handle, name string) error {
		return dir.SetTimesAt(name, in.Atime, in.Mtime, false)
	})
}

func (e *Engine) setTimestampFd(ctx context.Context, in op.SetTimestampFdInput) (op.Unit, error) {
	return op.Unit{}, e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		return h.SetTimes(in.Atime, in.Mtime)
	})
}

func (e *Engine) checkAccess(ctx context.Context, in op.CheckAccessInput) (op.Unit, error) {
	return op.Unit{}, e.at(in.Base, in.Path, in.Follow, func(dir platform.Handle, name string) error {
		return dir.AccessAt(name, in.Mode, in.UseEffectiveID, false)
	})
}

func (e *Engine) prestatFd(ctx context.Context, in op.PrestatFdInput) (op.PrestatResult, error) {
	res, err := e.table.Get(in.Fd)
	if err != nil {
		return op.PrestatResult{}, err
	}
	if res.Kind() != fdtable.Preopen {
		return op.PrestatResult{}, fserr.BadFileDescriptor
	}
	return op.PrestatResult{Path: res.Path}, nil
}

func (e *Engine) addAdvisoryLockFd(ctx context.Context, in op.AddAdvisoryLockFdInput) (op.Unit, error) {
	switch in.Lock.Type {
	case op.SharedLock, op.ExclusiveLock:
	default:
		return op.Unit{}, fserr.New("lock", "", fserr.InvalidArgument, nil)
	}
	return op.Unit{}, e.lock(in.Fd, in.Lock)
}

func (e *Engine) removeAdvisoryLockFd(ctx context.Context, in op.RemoveAdvisoryLockFdInput) (op.Unit, error) {
	lock := in.Lock
	lock.Type = op.Unlock
	return op.Unit{}, e.lock(in.Fd, lock)
}

func (e *Engine) lock(fd op.Fd, lock op.AdvisoryLock) error {
	return e.use(fd, func(res *fdtable.Resource, h platform.Handle) error {
		if res.Kind() != fdtable.File {
			return fserr.InvalidArgument
		}
		return h.Lock(lock)
	})
}

func (e *Engine) unlinkFile(ctx context.Context, in op.UnlinkFileInput) (op.Unit, error) {
	return op.Unit{}, e.at(in.Base, in.Path, false, func(dir platform.Handle, name string) error {
		return dir.UnlinkAt(name, false)
	})
}

func (e *Engine) unlinkDirectory(ctx context.Context, in op.UnlinkDirectoryInput) (op.Unit, error) {
	return op.Unit{}, e.at(in.Base, in.Path, false, func(dir platform.Handle, name string) error {
		return dir.UnlinkAt(name, true)
	})
}

func (e *Engine) stat(ctx context.Context, in op.StatInput) (s op.StructStat, err error) {
	err = e.at(in.Base, in.Path, in.Follow, func(dir platform.Handle, name string) error {
		s, err = dir.StatAt(name, false)
		return err
	})
	return s, err
}

func (e *Engine) statFd(ctx context.Context, in op.StatFdInput) (s op.StructStat, err error) {
	err = e.use(in.Fd, func(_ *fdtable.Resource, h platform.Handle) error {
		s, err = h.Stat()
		return err
	})
	return s, err
}

func (e *Engine) getCurrentWorkingDirectory(ctx context.Context, in op.GetCurrentWorkingDirectoryInput) (vpath.VirtualPath, error) {
	if e.resolver.Cwd.IsZero() {
		return vpath.VirtualPath{}, fserr.NotCapable
	}
	return e.resolver.Cwd, nil
}
