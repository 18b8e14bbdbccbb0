// Package op declares the catalog of file system operations.
//
// Each operation is a typed tag binding an input type to a result type, a
// stable name used for logging and interception, and the set of error kinds
// that the operation may produce.
package op

import (
	"io/fs"
	"time"

	"golang.org/x/exp/slices"

	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// Tag is the type-erased view of an operation.
type Tag interface {
	Name() string
	Kinds() fserr.KindSet
}

// Operation is the tag of an operation taking inputs of type I and producing
// results of type R.
//
// Operations are compared by identity: two tags are equal only if they are
// the same catalog entry.
type Operation[I, R any] struct{ *descriptor }

type descriptor struct {
	name  string
	kinds fserr.KindSet
}

func (o Operation[I, R]) Name() string { return o.name }

func (o Operation[I, R]) Kinds() fserr.KindSet { return o.kinds }

func (o Operation[I, R]) String() string { return o.name }

var catalog []Tag

func define[I, R any](name string, kinds fserr.KindSet) Operation[I, R] {
	o := Operation[I, R]{&descriptor{name: name, kinds: kinds}}
	catalog = append(catalog, o)
	return o
}

// Catalog returns the list of all operations, in name order.
func Catalog() []Tag {
	tags := append([]Tag(nil), catalog...)
	slices.SortFunc(tags, func(a, b Tag) bool { return a.Name() < b.Name() })
	return tags
}

// Lookup returns the operation with the given name.
func Lookup(name string) (Tag, bool) {
	for _, o := range catalog {
		if o.Name() == name {
			return o, true
		}
	}
	return nil, false
}

var (
	commonKinds = fserr.MakeKindSet(
		fserr.IoError,
		fserr.Interrupted,
	)

	fdKinds = commonKinds.With(
		fserr.BadFileDescriptor,
	)

	pathKinds = fdKinds.With(
		fserr.AccessDenied,
		fserr.EmptyPath,
		fserr.InvalidArgument,
		fserr.InvalidPathFormat,
		fserr.Loop,
		fserr.NameTooLong,
		fserr.NotCapable,
		fserr.NotDirectory,
		fserr.NotFound,
		fserr.NotPermitted,
	)

	writeKinds = fserr.MakeKindSet(
		fserr.DiskQuota,
		fserr.NoSpace,
		fserr.ReadOnly,
	)
)

type OpenInput struct {
	Base    BaseDirectory
	Path    string
	Access  Access
	Flags   OpenFlags
	FdFlags FdFlags
	Mode    fs.FileMode
	Follow  bool
}

type CloseFdInput struct {
	Fd Fd
}

type ReadFdInput struct {
	Fd       Fd
	Iovecs   [][]byte
	Strategy Strategy
	Offset   int64
}

type WriteFdInput struct {
	Fd       Fd
	Iovecs   [][]byte
	Strategy Strategy
	Offset   int64
}

type SeekFdInput struct {
	Fd     Fd
	Offset int64
	Whence Whence
}

type MkdirInput struct {
	Base BaseDirectory
	Path string
	Mode fs.FileMode
	// FailIfExists makes the operation fail with Exists when the directory
	// is already present; otherwise an existing directory is not an error.
	FailIfExists bool
}

type ChmodInput struct {
	Base   BaseDirectory
	Path   string
	Mode   fs.FileMode
	Follow bool
}

type ChmodFdInput struct {
	Fd   Fd
	Mode fs.FileMode
}

type ChownInput struct {
	Base   BaseDirectory
	Path   string
	Uid    int
	Gid    int
	Follow bool
}

type ChownFdInput struct {
	Fd  Fd
	Uid int
	Gid int
}

type RenameInput struct {
	OldBase BaseDirectory
	OldPath string
	NewBase BaseDirectory
	NewPath string
}

type SymlinkInput struct {
	// OldPath is the content of the link. It is stored verbatim.
	OldPath string
	NewBase BaseDirectory
	NewPath string
	// AllowAbsoluteOldPath permits link targets starting with a slash.
	AllowAbsoluteOldPath bool
}

type HardlinkInput struct {
	OldBase BaseDirectory
	OldPath string
	NewBase BaseDirectory
	NewPath string
	Follow  bool
}

type ReadLinkInput struct {
	Base BaseDirectory
	Path string
}

type ReadDirFdInput struct {
	Fd     Fd
	Cookie uint64
}

type FdrenumberInput struct {
	From Fd
	To   Fd
}

type FdAttributesInput struct {
	Fd Fd
}

type SetFdFlagsInput struct {
	Fd    Fd
	Flags FdFlags
}

type FallocateInput struct {
	Fd     Fd
	Offset int64
	Length int64
}

type FadviseInput struct {
	Fd     Fd
	Offset int64
	Length int64
	Advice Advice
}

type SyncInput struct {
	Fd       Fd
	DataOnly bool
}

type TruncateInput struct {
	Base   BaseDirectory
	Path   string
	Length int64
}

type TruncateFdInput struct {
	Fd     Fd
	Length int64
}

type SetTimestampInput struct {
	Base   BaseDirectory
	Path   string
	Atime  TimeUpdate
	Mtime  TimeUpdate
	Follow bool
}

type SetTimestampFdInput struct {
	Fd    Fd
	Atime TimeUpdate
	Mtime TimeUpdate
}

// AccessMode is a bitset of the permissions checked by check_access. The
// zero value checks that the file exists.
type AccessMode uint8

const (
	ExecuteAccess AccessMode = 1 << iota
	WriteAccess
	ReadAccess
)

type CheckAccessInput struct {
	Base           BaseDirectory
	Path           string
	Mode           AccessMode
	UseEffectiveID bool
	Follow         bool
}

type PrestatFdInput struct {
	Fd Fd
}

type AddAdvisoryLockFdInput struct {
	Fd   Fd
	Lock AdvisoryLock
}

type RemoveAdvisoryLockFdInput struct {
	Fd   Fd
	Lock AdvisoryLock
}

type UnlinkFileInput struct {
	Base BaseDirectory
	Path string
}

type UnlinkDirectoryInput struct {
	Base BaseDirectory
	Path string
}

type StatInput struct {
	Base   BaseDirectory
	Path   string
	Follow bool
}

type StatFdInput struct {
	Fd Fd
}

type PollInput struct {
	Subscriptions []Subscription
	// Timeout bounds the time spent waiting when there are no clock
	// subscriptions. A negative value waits until a subscription is ready.
	Timeout time.Duration
}

type GetCurrentWorkingDirectoryInput struct{}

var (
	Open = define[OpenInput, Fd]("open", pathKinds.Union(writeKinds).With(
		fserr.Again,
		fserr.Busy,
		fserr.Exists,
		fserr.FileTooLarge,
		fserr.Mfile,
		fserr.Nfile,
		fserr.NoMemory,
		fserr.NotSupported,
		fserr.Overflow,
		fserr.PathIsDirectory,
		fserr.TextBusy,
	))

	CloseFd = define[CloseFdInput, Unit]("close_fd", fdKinds.Union(writeKinds).With(
		fserr.NotSupported,
	))

	ReadFd = define[ReadFdInput, int]("read_fd", fdKinds.With(
		fserr.Again,
		fserr.InvalidArgument,
		fserr.NotCapable,
		fserr.Overflow,
		fserr.PathIsDirectory,
		fserr.SeekOnPipe,
	))

	WriteFd = define[WriteFdInput, int]("write_fd", fdKinds.Union(writeKinds).With(
		fserr.Again,
		fserr.FileTooLarge,
		fserr.InvalidArgument,
		fserr.NotCapable,
		fserr.NotPermitted,
		fserr.PathIsDirectory,
		fserr.SeekOnPipe,
	))

	SeekFd = define[SeekFdInput, int64]("seek_fd", fdKinds.With(
		fserr.InvalidArgument,
		fserr.Overflow,
		fserr.SeekOnPipe,
	))

	Mkdir = define[MkdirInput, Unit]("mkdir", pathKinds.Union(writeKinds).With(
		fserr.Exists,
		fserr.TooManyLinks,
	))

	Chmod = define[ChmodInput, Unit]("chmod", pathKinds.With(
		fserr.ReadOnly,
	))

	ChmodFd = define[ChmodFdInput, Unit]("chmod_fd", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NotPermitted,
		fserr.NotSupported,
		fserr.ReadOnly,
	))

	Chown = define[ChownInput, Unit]("chown", pathKinds.With(
		fserr.ReadOnly,
		fserr.NotSupported,
	))

	ChownFd = define[ChownFdInput, Unit]("chown_fd", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NotPermitted,
		fserr.NotSupported,
		fserr.ReadOnly,
	))

	Rename = define[RenameInput, Unit]("rename", pathKinds.Union(writeKinds).With(
		fserr.Busy,
		fserr.CrossDevice,
		fserr.Exists,
		fserr.NotEmpty,
		fserr.PathIsDirectory,
		fserr.TooManyLinks,
	))

	Symlink = define[SymlinkInput, Unit]("symlink", pathKinds.Union(writeKinds).With(
		fserr.Exists,
		fserr.NotSupported,
	))

	Hardlink = define[HardlinkInput, Unit]("hardlink", pathKinds.Union(writeKinds).With(
		fserr.CrossDevice,
		fserr.Exists,
		fserr.NotSupported,
		fserr.TooManyLinks,
	))

	ReadLink = define[ReadLinkInput, vpath.VirtualPath]("read_link", pathKinds)

	ReadDirFd = define[ReadDirFdInput, DirEntrySequence]("read_dir_fd", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NotDirectory,
		fserr.NotFound,
	))

	Fdrenumber = define[FdrenumberInput, Unit]("fd_renumber", fdKinds.With(
		fserr.NotSupported,
	))

	FdAttributes = define[FdAttributesInput, FdAttributesResult]("fd_attributes", fdKinds)

	SetFdFlags = define[SetFdFlagsInput, Unit]("set_fd_flags", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NotSupported,
	))

	Fallocate = define[FallocateInput, Unit]("fallocate", fdKinds.Union(writeKinds).With(
		fserr.FileTooLarge,
		fserr.InvalidArgument,
		fserr.NotSupported,
		fserr.PathIsDirectory,
		fserr.SeekOnPipe,
	))

	Fadvise = define[FadviseInput, Unit]("fadvise", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NotSupported,
		fserr.SeekOnPipe,
	))

	Sync = define[SyncInput, Unit]("sync", fdKinds.Union(writeKinds).With(
		fserr.InvalidArgument,
	))

	Truncate = define[TruncateInput, Unit]("truncate", pathKinds.Union(writeKinds).With(
		fserr.FileTooLarge,
		fserr.PathIsDirectory,
		fserr.TextBusy,
	))

	TruncateFd = define[TruncateFdInput, Unit]("truncate_fd", fdKinds.Union(writeKinds).With(
		fserr.FileTooLarge,
		fserr.InvalidArgument,
		fserr.PathIsDirectory,
	))

	SetTimestamp = define[SetTimestampInput, Unit]("set_timestamp", pathKinds.With(
		fserr.ReadOnly,
	))

	SetTimestampFd = define[SetTimestampFdInput, Unit]("set_timestamp_fd", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NotPermitted,
		fserr.ReadOnly,
	))

	CheckAccess = define[CheckAccessInput, Unit]("check_access", pathKinds.With(
		fserr.ReadOnly,
		fserr.TextBusy,
	))

	PrestatFd = define[PrestatFdInput, PrestatResult]("prestat_fd", fdKinds)

	AddAdvisoryLockFd = define[AddAdvisoryLockFdInput, Unit]("add_advisory_lock_fd", fdKinds.With(
		fserr.Again,
		fserr.Deadlock,
		fserr.InvalidArgument,
		fserr.NoLocks,
		fserr.NotSupported,
		fserr.Overflow,
	))

	RemoveAdvisoryLockFd = define[RemoveAdvisoryLockFdInput, Unit]("remove_advisory_lock_fd", fdKinds.With(
		fserr.InvalidArgument,
		fserr.NoLocks,
		fserr.NotSupported,
		fserr.Overflow,
	))

	UnlinkFile = define[UnlinkFileInput, Unit]("unlink_file", pathKinds.Union(writeKinds).With(
		fserr.Busy,
		fserr.PathIsDirectory,
	))

	UnlinkDirectory = define[UnlinkDirectoryInput, Unit]("unlink_directory", pathKinds.Union(writeKinds).With(
		fserr.Busy,
		fserr.Exists,
		fserr.NotEmpty,
	))

	Stat = define[StatInput, StructStat]("stat", pathKinds.With(
		fserr.Overflow,
	))

	StatFd = define[StatFdInput, StructStat]("stat_fd", fdKinds.With(
		fserr.Overflow,
	))

	Poll = define[PollInput, []Event]("poll", commonKinds.With(
		fserr.InvalidArgument,
		fserr.NoMemory,
		fserr.NotSupported,
	))

	GetCurrentWorkingDirectory = define[GetCurrentWorkingDirectoryInput, vpath.VirtualPath]("get_current_working_directory", commonKinds.With(
		fserr.NotCapable,
	))
)
