// Package portable is a platform adapter built only on the os package. It
// runs wherever Go does, at the cost of resolving paths by name instead of
// relative to directory descriptors, and of emulating the features that the
// os package does not expose.
package portable

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// FileSystem is the portable adapter.
type FileSystem struct {
	name  string
	conv  platform.PathConverter
	hooks Hooks
	locks platform.LockManager
}

// Hooks replace primitives of the portable adapter with native
// implementations. Nil hooks fall back to the os package.
type Hooks struct {
	// Kind classifies native errors, it returns false to let the portable
	// mapping apply.
	Kind func(error) (fserr.Kind, bool)
	// Stat and StatPath translate native metadata, including the inode
	// numbers that fs.FileInfo does not carry.
	Stat     func(*os.File) (op.StructStat, error)
	StatPath func(path string, follow bool) (op.StructStat, error)
	// Lock acquires or releases a record lock on [start, end) without
	// waiting. When nil, locks are managed in process.
	Lock     func(f *os.File, typ op.LockType, start, end int64) error
	SetTimes func(path string, atime, mtime op.TimeUpdate) error
	Rename   func(oldPath, newPath string) error
	Symlink  func(target, path string) error
}

// New returns a portable adapter. Advisory locks are only visible to the
// handles of the same adapter.
func New() *FileSystem {
	return &FileSystem{name: "portable", conv: pathConverter{}}
}

// NewWithHooks returns an adapter built on the portable one, with native
// primitives and a native path syntax.
func NewWithHooks(name string, conv platform.PathConverter, hooks Hooks) *FileSystem {
	return &FileSystem{name: name, conv: conv, hooks: hooks}
}

func (fsys *FileSystem) Name() string { return fsys.name }

func (fsys *FileSystem) PathConverter() platform.PathConverter { return fsys.conv }

func (fsys *FileSystem) OpenPreopen(root platform.RealPath) (platform.Handle, error) {
	path, err := filepath.Abs(string(root))
	if err != nil {
		return nil, fsys.makeError("open", string(root), err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fsys.makeError("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fsys.makeError("open", path, err)
	}
	if !info.IsDir() {
		f.Close()
		return nil, fserr.New("open", path, fserr.NotDirectory, nil)
	}
	return &file{fsys: fsys, file: f, path: path}, nil
}

func (fsys *FileSystem) Stdio(fd int, f *os.File) (platform.Handle, error) {
	return &file{fsys: fsys, file: f, path: f.Name(), stdio: true}, nil
}

// Poll reports every request ready: the os package has no readiness
// notification, and reads or writes on files never wait for data.
func (*FileSystem) Poll(ctx context.Context, reqs []platform.PollRequest, timeout time.Duration) (int, error) {
	if len(reqs) > 0 {
		for i := range reqs {
			reqs[i].Ready = true
		}
		return len(reqs), nil
	}
	if timeout < 0 {
		<-ctx.Done()
		return 0, fserr.New("poll", "", fserr.Interrupted, ctx.Err())
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-t.C:
		return 0, nil
	case <-ctx.Done():
		return 0, fserr.New("poll", "", fserr.Interrupted, ctx.Err())
	}
}

type pathConverter struct{}

func (pathConverter) ToReal(p vpath.VirtualPath) (platform.RealPath, error) {
	if p.IsZero() {
		return "", fserr.New("path", "", fserr.EmptyPath, nil)
	}
	return platform.RealPath(filepath.FromSlash(p.String())), nil
}

func (pathConverter) ToVirtual(p platform.RealPath) (vpath.VirtualPath, error) {
	return vpath.New(filepath.ToSlash(string(p)))
}

var errnoKinds = map[syscall.Errno]fserr.Kind{
	syscall.EACCES:       fserr.AccessDenied,
	syscall.EAGAIN:       fserr.Again,
	syscall.EBADF:        fserr.BadFileDescriptor,
	syscall.EBUSY:        fserr.Busy,
	syscall.EXDEV:        fserr.CrossDevice,
	syscall.EDEADLK:      fserr.Deadlock,
	syscall.EDQUOT:       fserr.DiskQuota,
	syscall.EEXIST:       fserr.Exists,
	syscall.EFBIG:        fserr.FileTooLarge,
	syscall.EINTR:        fserr.Interrupted,
	syscall.EINVAL:       fserr.InvalidArgument,
	syscall.EIO:          fserr.IoError,
	syscall.ELOOP:        fserr.Loop,
	syscall.EMFILE:       fserr.Mfile,
	syscall.ENFILE:       fserr.Nfile,
	syscall.ENAMETOOLONG: fserr.NameTooLong,
	syscall.ENOLCK:       fserr.NoLocks,
	syscall.ENOMEM:       fserr.NoMemory,
	syscall.ENOSPC:       fserr.NoSpace,
	syscall.ENOTDIR:      fserr.NotDirectory,
	syscall.ENOTEMPTY:    fserr.NotEmpty,
	syscall.ENOENT:       fserr.NotFound,
	syscall.EPERM:        fserr.NotPermitted,
	syscall.ENOSYS:       fserr.NotSupported,
	syscall.EOVERFLOW:    fserr.Overflow,
	syscall.EISDIR:       fserr.PathIsDirectory,
	syscall.EROFS:        fserr.ReadOnly,
	syscall.ESPIPE:       fserr.SeekOnPipe,
	syscall.ETXTBSY:      fserr.TextBusy,
	syscall.EMLINK:       fserr.TooManyLinks,
}

func kindOf(err error) fserr.Kind {
	var kind fserr.Kind
	if errors.As(err, &kind) {
		return kind
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if errno == syscall.ENOTSUP || errno == syscall.EOPNOTSUPP {
			return fserr.NotSupported
		}
		if kind, ok := errnoKinds[errno]; ok {
			return kind
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fserr.NotFound
	case errors.Is(err, fs.ErrExist):
		return fserr.Exists
	case errors.Is(err, fs.ErrPermission):
		return fserr.AccessDenied
	case errors.Is(err, fs.ErrInvalid):
		return fserr.InvalidArgument
	case errors.Is(err, fs.ErrClosed):
		return fserr.BadFileDescriptor
	default:
		return fserr.IoError
	}
}

func (fsys *FileSystem) makeError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if kind := fsys.hooks.Kind; kind != nil {
		if k, ok := kind(err); ok {
			return fserr.New(op, path, k, err)
		}
	}
	return fserr.New(op, path, kindOf(err), err)
}

var _ platform.FileSystem = (*FileSystem)(nil)
