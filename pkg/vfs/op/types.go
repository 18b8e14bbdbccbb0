package op

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/stealthrocket/wasi-go"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// Fd is a guest file descriptor number.
type Fd int32

func (fd Fd) String() string { return fmt.Sprintf("fd(%d)", int32(fd)) }

// Unit is the result of operations that produce no value.
type Unit struct{}

// BaseDirectory is the anchor that relative paths are resolved against. The
// zero value is the current working directory.
type BaseDirectory struct {
	fd    Fd
	isDir bool
}

// CurrentWorkingDirectory returns a base resolving paths against the engine's
// current working directory.
func CurrentWorkingDirectory() BaseDirectory { return BaseDirectory{} }

// DirectoryFd returns a base resolving paths against the open directory fd.
func DirectoryFd(fd Fd) BaseDirectory { return BaseDirectory{fd: fd, isDir: true} }

// Fd returns the directory descriptor and true, or false if the base is the
// current working directory.
func (b BaseDirectory) Fd() (Fd, bool) { return b.fd, b.isDir }

func (b BaseDirectory) String() string {
	if b.isDir {
		return b.fd.String()
	}
	return "cwd"
}

// Access is the access mode requested when opening a file.
type Access uint8

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

func (a Access) CanRead() bool  { return a == ReadOnly || a == ReadWrite }
func (a Access) CanWrite() bool { return a == WriteOnly || a == ReadWrite }

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "ReadOnly"
	case WriteOnly:
		return "WriteOnly"
	case ReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// OpenFlags are the open flags of the WASI path_open call.
type OpenFlags uint16

const (
	OpenCreate OpenFlags = 1 << iota
	OpenDirectory
	OpenExclusive
	OpenTruncate
)

func (f OpenFlags) Has(flags OpenFlags) bool { return (f & flags) == flags }

func (f OpenFlags) String() string {
	return formatFlags(uint64(f), []string{"Create", "Directory", "Exclusive", "Truncate"})
}

// FdFlags are the descriptor flags of WASI, with the same bit positions.
type FdFlags uint16

const (
	FdAppend FdFlags = 1 << iota
	FdDSync
	FdNonBlock
	FdRSync
	FdSync
)

func (f FdFlags) Has(flags FdFlags) bool { return (f & flags) == flags }

func (f FdFlags) String() string {
	return formatFlags(uint64(f), []string{"Append", "DSync", "NonBlock", "RSync", "Sync"})
}

func formatFlags(flags uint64, names []string) string {
	var s []string
	for i, name := range names {
		if (flags & (1 << i)) != 0 {
			s = append(s, name)
		}
	}
	if len(s) == 0 {
		return "0"
	}
	return strings.Join(s, "|")
}

// Whence is the reference point of a seek.
type Whence uint8

const (
	SeekStart Whence = iota
	SeekCurrent
	SeekEnd
)

// Advice is the access pattern hint of fadvise.
type Advice uint8

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
	AdviceDontNeed
	AdviceNoReuse
)

// Strategy selects between stream and positional I/O.
type Strategy uint8

const (
	// Stream reads or writes at the current offset and advances it.
	Stream Strategy = iota
	// Positional reads or writes at an explicit offset without moving the
	// current offset.
	Positional
)

// FileType is the WASI file type.
type FileType = wasi.FileType

// Rights is the WASI rights bitset.
type Rights = wasi.Rights

// MakeFileType returns the file type of a file mode.
func MakeFileType(mode fs.FileMode) FileType {
	switch mode.Type() {
	case 0:
		return wasi.RegularFileType
	case fs.ModeDevice:
		return wasi.BlockDeviceType
	case fs.ModeDevice | fs.ModeCharDevice:
		return wasi.CharacterDeviceType
	case fs.ModeDir:
		return wasi.DirectoryType
	case fs.ModeSocket:
		return wasi.SocketStreamType
	case fs.ModeSymlink:
		return wasi.SymbolicLinkType
	default:
		return wasi.UnknownType
	}
}

// Timespec is a point in time in nanoseconds since the Unix epoch.
type Timespec int64

func (t Timespec) Time() time.Time { return time.Unix(0, int64(t)) }

func MakeTimespec(t time.Time) Timespec { return Timespec(t.UnixNano()) }

// StructStat is the portable result of stat calls.
type StructStat struct {
	Dev     uint64
	Ino     uint64
	Mode    fs.FileMode // permission bits
	Type    FileType
	Nlink   uint64
	Uid     uint32
	Gid     uint32
	Size    int64
	Blksize int64
	Blocks  int64
	Atime   Timespec
	Mtime   Timespec
	Ctime   Timespec
}

func (s StructStat) String() string {
	return fmt.Sprintf("%s %v dev=%d ino=%d nlink=%d uid=%d gid=%d size=%d",
		s.Type, s.Mode, s.Dev, s.Ino, s.Nlink, s.Uid, s.Gid, s.Size)
}

// TimeUpdate describes how a timestamp is changed by set_timestamp.
type TimeUpdate struct {
	Time Timespec
	Mode TimeMode
}

type TimeMode uint8

const (
	// TimeOmit leaves the timestamp unchanged.
	TimeOmit TimeMode = iota
	// TimeNow sets the timestamp to the current time.
	TimeNow
	// TimeSet sets the timestamp to Time.
	TimeSet
)

// SetTime returns an update setting the timestamp to t.
func SetTime(t time.Time) TimeUpdate { return TimeUpdate{Time: MakeTimespec(t), Mode: TimeSet} }

// SetNow returns an update setting the timestamp to the current time.
func SetNow() TimeUpdate { return TimeUpdate{Mode: TimeNow} }

// DirEntry is a directory entry.
//
// Cookie is the position of the entry that follows this one: passing it to
// read_dir_fd resumes the listing right after the entry.
type DirEntry struct {
	Name   string
	Type   FileType
	Inode  uint64
	Cookie uint64
}

// DirEntrySequence is a single-use listing of directory entries.
//
// Next returns io.EOF after the last entry. The sequence must be closed to
// release the native directory stream.
type DirEntrySequence interface {
	Next() (DirEntry, error)
	Close() error
}

// LockType is the type of an advisory lock request.
type LockType uint8

const (
	SharedLock LockType = iota
	ExclusiveLock
	Unlock
)

func (t LockType) String() string {
	switch t {
	case SharedLock:
		return "shared"
	case ExclusiveLock:
		return "exclusive"
	case Unlock:
		return "unlock"
	default:
		return fmt.Sprintf("LockType(%d)", uint8(t))
	}
}

// AdvisoryLock describes a record lock with the semantics of fcntl(2). A zero
// length extends the region to the end of the file, whatever its size.
type AdvisoryLock struct {
	Type   LockType
	Whence Whence
	Start  int64
	Length int64
}

// SubscriptionType is the type of a poll subscription.
type SubscriptionType uint8

const (
	ClockEvent SubscriptionType = iota
	FdReadEvent
	FdWriteEvent
)

// Subscription is an event the caller is waiting for in poll.
type Subscription struct {
	UserData uint64
	Type     SubscriptionType
	// Fd is the descriptor watched by FdReadEvent and FdWriteEvent.
	Fd Fd
	// Timeout is the relative deadline of a ClockEvent.
	Timeout time.Duration
}

// Event is a subscription that became ready.
type Event struct {
	UserData uint64
	Type     SubscriptionType
	// Error is set when the subscription failed instead of becoming ready.
	Error error
	// NBytes is the number of bytes available, when known.
	NBytes int64
}

// FdAttributesResult is the result of fd_attributes.
type FdAttributesResult struct {
	Type             FileType
	Flags            FdFlags
	Rights           Rights
	InheritingRights Rights
}

// PrestatResult is the result of prestat_fd.
type PrestatResult struct {
	Path vpath.VirtualPath
}
