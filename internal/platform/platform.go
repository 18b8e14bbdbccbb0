// Package platform defines the contract implemented by the native adapters
// that the engine executes operations against.
//
// Every error returned by a FileSystem or a Handle is a *fserr.Error built
// from the adapter's native error table.
package platform

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// RealPath is a path in the native syntax of the host. Values are produced by
// a PathConverter, never directly from guest input.
type RealPath string

func (p RealPath) String() string { return string(p) }

// PathConverter translates between virtual and native paths. The conversion
// is lossless: ToVirtual(ToReal(p)) is equal to p.
type PathConverter interface {
	ToReal(vpath.VirtualPath) (RealPath, error)
	ToVirtual(RealPath) (vpath.VirtualPath, error)
}

// FileSystem is the entry point of an adapter.
type FileSystem interface {
	// Name identifies the adapter in logs.
	Name() string

	PathConverter() PathConverter

	// OpenPreopen opens the directory at root, which becomes the sandbox
	// boundary of a preopened directory.
	OpenPreopen(root RealPath) (Handle, error)

	// Stdio wraps a standard I/O stream. The adapter owns a duplicate of the
	// file: closing the handle does not close f.
	Stdio(fd int, f *os.File) (Handle, error)

	// Poll waits until at least one of the requests is ready, the timeout
	// expires or the context is canceled. A negative timeout waits forever.
	// Ready requests are marked by setting their Ready field.
	Poll(ctx context.Context, reqs []PollRequest, timeout time.Duration) (int, error)
}

// PollRequest is a readiness request passed to FileSystem.Poll.
type PollRequest struct {
	Handle Handle
	Write  bool
	Ready  bool
	Error  error
}

// OpenOptions are the options of Handle.OpenAt.
type OpenOptions struct {
	Access  op.Access
	Flags   op.OpenFlags
	FdFlags op.FdFlags
	Mode    fs.FileMode
	// NoFollow fails with Loop when the last component is a symbolic link.
	NoFollow bool
	// Search opens a directory only to resolve paths relative to it.
	Search bool
}

// Handle is an open file or directory of an adapter.
//
// Methods taking a name operate on the directory entry of that name relative
// to the handle, which must then be a directory. Names never contain a slash,
// except for the trailing slash of directory requests.
type Handle interface {
	Readv(iovs [][]byte) (int, error)
	Writev(iovs [][]byte) (int, error)
	Preadv(iovs [][]byte, offset int64) (int, error)
	Pwritev(iovs [][]byte, offset int64) (int, error)
	Seek(offset int64, whence op.Whence) (int64, error)
	Stat() (op.StructStat, error)
	Sync() error
	Datasync() error
	Truncate(size int64) error
	Allocate(offset, length int64) error
	Advise(offset, length int64, advice op.Advice) error
	Flags() (op.FdFlags, error)
	SetFlags(flags op.FdFlags) error
	Chmod(mode fs.FileMode) error
	Chown(uid, gid int) error
	SetTimes(atime, mtime op.TimeUpdate) error
	// Lock acquires or releases an advisory record lock without waiting.
	Lock(lock op.AdvisoryLock) error
	// ReadDir lists the directory starting at the position of cookie, zero
	// being the start of the directory.
	ReadDir(cookie uint64) (op.DirEntrySequence, error)
	Close() error

	OpenAt(name string, options OpenOptions) (Handle, error)
	StatAt(name string, follow bool) (op.StructStat, error)
	MkdirAt(name string, mode fs.FileMode) error
	UnlinkAt(name string, dir bool) error
	RenameAt(oldName string, newDir Handle, newName string) error
	LinkAt(oldName string, newDir Handle, newName string, follow bool) error
	SymlinkAt(target, name string) error
	ReadlinkAt(name string) (string, error)
	ChmodAt(name string, mode fs.FileMode, follow bool) error
	ChownAt(name string, uid, gid int, follow bool) error
	SetTimesAt(name string, atime, mtime op.TimeUpdate, follow bool) error
	AccessAt(name string, mode op.AccessMode, effective, follow bool) error
}

// MaxFollowSymlink is the maximum number of symbolic links followed while
// resolving a single path.
const MaxFollowSymlink = 40
