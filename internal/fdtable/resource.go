package fdtable

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// Kind is the type of resource bound to a descriptor.
type Kind uint8

const (
	File Kind = iota
	Directory
	Preopen
	Channel
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	case Preopen:
		return "preopen"
	case Channel:
		return "channel"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsDirectory reports whether paths can be resolved relative to resources of
// this kind.
func (k Kind) IsDirectory() bool { return k == Directory || k == Preopen }

// Resource is an open file, directory, preopened directory or channel.
//
// The resource mutex is held for the duration of native calls on the handle;
// it must never be held while acquiring the table lock. Preopened directories
// are immutable until the table is closed, so calls on them share the lock.
type Resource struct {
	mutex  sync.RWMutex
	id     uint64
	kind   Kind
	handle platform.Handle
	closed bool

	// Path is the absolute virtual path the resource was opened at.
	Path vpath.VirtualPath
	// Root is the preopened directory the resource was resolved under; a
	// preopen is its own root.
	Root *Resource
	// Rel is the cleaned path of the resource relative to its root.
	Rel string

	Type             op.FileType
	Rights           op.Rights
	InheritingRights op.Rights
}

// NewResource constructs a resource owning the handle.
func NewResource(kind Kind, handle platform.Handle) *Resource {
	return &Resource{id: nextID.Add(1), kind: kind, handle: handle}
}

var nextID atomic.Uint64

func (r *Resource) Kind() Kind { return r.kind }

// Use calls fn with the handle while holding the resource lock. The call
// fails with BadFileDescriptor if the resource was closed.
func (r *Resource) Use(fn func(platform.Handle) error) error {
	r.lock()
	defer r.unlock()
	if r.closed {
		return fserr.BadFileDescriptor
	}
	return fn(r.handle)
}

// Use2 is like Resource.Use but locks two resources in creation order, as
// needed by operations spanning two directories.
func Use2(r1, r2 *Resource, fn func(h1, h2 platform.Handle) error) error {
	if r1 == r2 {
		return r1.Use(func(h platform.Handle) error { return fn(h, h) })
	}
	first, second := r1, r2
	if first.id > second.id {
		first, second = second, first
	}
	first.lock()
	defer first.unlock()
	second.lock()
	defer second.unlock()
	if r1.closed || r2.closed {
		return fserr.BadFileDescriptor
	}
	return fn(r1.handle, r2.handle)
}

// Handle returns the handle of a preopened directory. It panics for other
// kinds of resources, whose handle is only accessible through Use.
func (r *Resource) Handle() platform.Handle {
	if r.kind != Preopen {
		panic("fdtable: direct access to the handle of a " + r.kind.String())
	}
	return r.handle
}

// Borrow returns the handle without keeping the resource locked, for calls
// which may block for an unbounded time like poll. The handle may be closed
// while the caller uses it, in which case the native call fails.
func (r *Resource) Borrow() (platform.Handle, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.closed {
		return nil, fserr.BadFileDescriptor
	}
	return r.handle, nil
}

func (r *Resource) lock() {
	if r.kind == Preopen {
		r.mutex.RLock()
	} else {
		r.mutex.Lock()
	}
}

func (r *Resource) unlock() {
	if r.kind == Preopen {
		r.mutex.RUnlock()
	} else {
		r.mutex.Unlock()
	}
}

// Close closes the handle. Calling Close more than once has no effect.
func (r *Resource) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.handle.Close()
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s:%s", r.kind, r.Path)
}
