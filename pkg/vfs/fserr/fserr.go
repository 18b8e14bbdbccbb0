// Package fserr defines the portable error vocabulary shared by every file
// system operation and every platform adapter.
//
// Adapters translate their native error codes into a Kind before the error
// leaves the adapter. Callers match errors with errors.Is:
//
//	if errors.Is(err, fserr.NotFound) {
//		...
//	}
package fserr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/stealthrocket/wasi-go"
)

// Kind is a portable error kind.
//
// Kind implements the error interface so values can be used as sentinels.
type Kind uint8

const (
	_ Kind = iota
	AccessDenied
	Again
	BadFileDescriptor
	Busy
	CrossDevice
	Deadlock
	DiskQuota
	Exists
	FileTooLarge
	Interrupted
	InvalidArgument
	InvalidPathFormat
	EmptyPath
	IoError
	Loop
	Mfile
	Nfile
	NameTooLong
	NoLocks
	NoMemory
	NoSpace
	NotCapable
	NotDirectory
	NotEmpty
	NotFound
	NotPermitted
	NotSupported
	Overflow
	PathIsDirectory
	ReadOnly
	SeekOnPipe
	TextBusy
	TooManyLinks

	numKinds
)

var kindNames = [numKinds]string{
	AccessDenied:      "access denied",
	Again:             "resource temporarily unavailable",
	BadFileDescriptor: "bad file descriptor",
	Busy:              "device or resource busy",
	CrossDevice:       "cross-device link",
	Deadlock:          "resource deadlock would occur",
	DiskQuota:         "disk quota exceeded",
	Exists:            "file exists",
	FileTooLarge:      "file too large",
	Interrupted:       "interrupted",
	InvalidArgument:   "invalid argument",
	InvalidPathFormat: "invalid path format",
	EmptyPath:         "empty path",
	IoError:           "input/output error",
	Loop:              "too many levels of symbolic links",
	Mfile:             "too many open files",
	Nfile:             "too many open files in system",
	NameTooLong:       "file name too long",
	NoLocks:           "no locks available",
	NoMemory:          "cannot allocate memory",
	NoSpace:           "no space left on device",
	NotCapable:        "capabilities insufficient",
	NotDirectory:      "not a directory",
	NotEmpty:          "directory not empty",
	NotFound:          "no such file or directory",
	NotPermitted:      "operation not permitted",
	NotSupported:      "operation not supported",
	Overflow:          "value too large",
	PathIsDirectory:   "is a directory",
	ReadOnly:          "read-only file system",
	SeekOnPipe:        "illegal seek",
	TextBusy:          "text file busy",
	TooManyLinks:      "too many links",
}

// The wire mapping is part of the guest-visible contract and must not change.
var kindErrnos = [numKinds]wasi.Errno{
	AccessDenied:      wasi.EACCES,
	Again:             wasi.EAGAIN,
	BadFileDescriptor: wasi.EBADF,
	Busy:              wasi.EBUSY,
	CrossDevice:       wasi.EXDEV,
	Deadlock:          wasi.EDEADLK,
	DiskQuota:         wasi.EDQUOT,
	Exists:            wasi.EEXIST,
	FileTooLarge:      wasi.EFBIG,
	Interrupted:       wasi.EINTR,
	InvalidArgument:   wasi.EINVAL,
	InvalidPathFormat: wasi.EINVAL,
	EmptyPath:         wasi.ENOENT,
	IoError:           wasi.EIO,
	Loop:              wasi.ELOOP,
	Mfile:             wasi.EMFILE,
	Nfile:             wasi.ENFILE,
	NameTooLong:       wasi.ENAMETOOLONG,
	NoLocks:           wasi.ENOLCK,
	NoMemory:          wasi.ENOMEM,
	NoSpace:           wasi.ENOSPC,
	NotCapable:        wasi.ENOTCAPABLE,
	NotDirectory:      wasi.ENOTDIR,
	NotEmpty:          wasi.ENOTEMPTY,
	NotFound:          wasi.ENOENT,
	NotPermitted:      wasi.EPERM,
	NotSupported:      wasi.ENOTSUP,
	Overflow:          wasi.EOVERFLOW,
	PathIsDirectory:   wasi.EISDIR,
	ReadOnly:          wasi.EROFS,
	SeekOnPipe:        wasi.ESPIPE,
	TextBusy:          wasi.ETXTBSY,
	TooManyLinks:      wasi.EMLINK,
}

func (k Kind) Error() string { return k.String() }

func (k Kind) String() string {
	if k > 0 && k < numKinds {
		return kindNames[k]
	}
	return "unknown error"
}

// Errno returns the WASI errno that the kind is reported as to the guest.
// Unknown kinds are reported as EIO.
func (k Kind) Errno() wasi.Errno {
	if k > 0 && k < numKinds {
		return kindErrnos[k]
	}
	return wasi.EIO
}

// Kinds returns the list of all known error kinds.
func Kinds() []Kind {
	kinds := make([]Kind, 0, numKinds-1)
	for k := Kind(1); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// KindSet is a set of error kinds, used by operations to declare the errors
// they may produce.
type KindSet uint64

// MakeKindSet constructs a set containing the given kinds.
func MakeKindSet(kinds ...Kind) (set KindSet) {
	for _, k := range kinds {
		set |= 1 << k
	}
	return set
}

func (set KindSet) Has(k Kind) bool { return (set & (1 << k)) != 0 }

func (set KindSet) With(kinds ...Kind) KindSet { return set | MakeKindSet(kinds...) }

func (set KindSet) Union(other KindSet) KindSet { return set | other }

func (set KindSet) String() string {
	var names []string
	for k := Kind(1); k < numKinds; k++ {
		if set.Has(k) {
			names = append(names, k.String())
		}
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Error is the error type returned by every file system operation.
//
// Kind is the portable classification of the error. Err holds the native
// cause when there is one; it is useful for logs but callers should never
// depend on its type.
type Error struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

// New constructs an error of the given kind.
func New(op, path string, kind Kind, cause error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	var s strings.Builder
	s.WriteString(e.Op)
	if e.Path != "" {
		s.WriteString(" ")
		s.WriteString(e.Path)
	}
	s.WriteString(": ")
	s.WriteString(e.Kind.String())
	if e.Err != nil && e.Err.Error() != e.Kind.String() {
		s.WriteString(" (")
		s.WriteString(e.Err.Error())
		s.WriteString(")")
	}
	return s.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WithPath returns a copy of err reporting path instead of the path set by
// the adapter, which is a path of the host. A native cause recording its own
// path is replaced by the error it wraps. Values other than *Error are
// returned unchanged.
func WithPath(err error, path string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	c := *e
	c.Path = path
	switch cause := c.Err.(type) {
	case *fs.PathError:
		c.Err = cause.Err
	case *os.LinkError:
		c.Err = cause.Err
	}
	return &c
}

// Errno returns the WASI errno that the error is reported as to the guest.
func (e *Error) Errno() wasi.Errno { return e.Kind.Errno() }

// KindOf returns the kind of err. The function returns zero when err is nil
// and IoError when err does not carry a kind.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return IoError
}

// Errno returns the WASI errno for err, ESUCCESS when err is nil.
func Errno(err error) wasi.Errno {
	if err == nil {
		return wasi.ESUCCESS
	}
	return KindOf(err).Errno()
}

// Narrow rewrites err so that it only carries a kind from the given set.
//
// Errors with a kind outside of the set become IoError. The original kind is
// kept in the message and the native cause remains reachable through Unwrap.
func Narrow(op, path string, set KindSet, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Op: op, Path: path, Kind: KindOf(err)}
		if err != error(e.Kind) {
			e.Err = err
		}
	}
	narrowed := *e
	narrowed.Op = op
	if path != "" {
		narrowed.Path = path
	}
	if !set.Has(e.Kind) {
		narrowed.Kind = IoError
		if e.Err != nil {
			narrowed.Err = fmt.Errorf("%s: %w", e.Kind, e.Err)
		} else {
			narrowed.Err = errors.New(e.Kind.String())
		}
	}
	return &narrowed
}
