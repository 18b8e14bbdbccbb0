// Package fdtable implements the descriptor table mapping guest file
// descriptors to open resources.
package fdtable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// DefaultLimit is the default maximum number of open descriptors.
const DefaultLimit = 1024

// Table is a slot arena of resources keyed by file descriptor numbers.
//
// The first slots are reserved for the standard I/O channels and preopened
// directories; they are bound once with Reserve and can neither be closed nor
// renumbered. Other slots are allocated lowest first.
//
// The table lock is only held while the slots are read or mutated, never
// across a native call.
type Table struct {
	mutex    sync.Mutex
	slots    []*Resource
	reserved int
	limit    int
	count    int
}

// New constructs a table holding at most limit descriptors. A limit of zero
// or less selects DefaultLimit.
func New(limit int) *Table {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Table{limit: limit}
}

// Limit returns the maximum number of descriptors of the table.
func (t *Table) Limit() int { return t.limit }

// Len returns the number of descriptors currently bound.
func (t *Table) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.count
}

// Reserve binds res to the next reserved slot. Reservations must all happen
// before the first call to Allocate.
func (t *Table) Reserve(res *Resource) (op.Fd, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.count != t.reserved {
		panic("fdtable: reserving a descriptor after the table started allocating")
	}
	if t.reserved >= t.limit {
		return -1, fserr.Mfile
	}
	fd := t.reserved
	t.grow(fd)
	t.slots[fd] = res
	t.reserved++
	t.count++
	return op.Fd(fd), nil
}

// IsReserved reports whether fd is one of the reserved descriptors.
func (t *Table) IsReserved(fd op.Fd) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return fd >= 0 && int(fd) < t.reserved
}

// Allocate binds res to the lowest free descriptor above the reserved range.
// The call fails with Mfile when the table is full.
func (t *Table) Allocate(res *Resource) (op.Fd, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for fd := t.reserved; fd < len(t.slots); fd++ {
		if t.slots[fd] == nil {
			t.slots[fd] = res
			t.count++
			return op.Fd(fd), nil
		}
	}
	fd := len(t.slots)
	if fd >= t.limit {
		return -1, fserr.Mfile
	}
	t.grow(fd)
	t.slots[fd] = res
	t.count++
	return op.Fd(fd), nil
}

// Add binds res to fd. Binding a descriptor which is not free is a contract
// violation and panics.
func (t *Table) Add(fd op.Fd, res *Resource) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if fd < 0 || int(fd) >= t.limit {
		panic(fmt.Sprintf("fdtable: descriptor out of range: %d", fd))
	}
	if int(fd) < len(t.slots) && t.slots[fd] != nil {
		panic(fmt.Sprintf("fdtable: descriptor already in use: %d", fd))
	}
	t.grow(int(fd))
	t.slots[fd] = res
	t.count++
}

// Get returns the resource bound to fd, or BadFileDescriptor.
func (t *Table) Get(fd op.Fd) (*Resource, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if res := t.lookup(fd); res != nil {
		return res, nil
	}
	return nil, fserr.BadFileDescriptor
}

// Remove unbinds fd and returns the resource it was bound to. The resource is
// not closed. Removing a free descriptor returns false.
//
// Reserved descriptors cannot be removed and fail with NotSupported.
func (t *Table) Remove(fd op.Fd) (*Resource, bool, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	res := t.lookup(fd)
	if res == nil {
		return nil, false, nil
	}
	if int(fd) < t.reserved {
		return nil, false, fserr.NotSupported
	}
	t.slots[fd] = nil
	t.count--
	t.shrink()
	return res, true, nil
}

// Renumber atomically moves the resource bound to from onto to. If to was
// bound, its resource is returned so the caller can close it once the table
// lock was released.
func (t *Table) Renumber(from, to op.Fd) (*Resource, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	res := t.lookup(from)
	if res == nil {
		return nil, fserr.BadFileDescriptor
	}
	if to < 0 || int(to) >= t.limit {
		return nil, fserr.BadFileDescriptor
	}
	if from == to {
		return nil, nil
	}
	if int(from) < t.reserved || int(to) < t.reserved {
		return nil, fserr.NotSupported
	}

	t.grow(int(to))
	prev := t.slots[to]
	t.slots[to] = res
	t.slots[from] = nil
	if prev != nil {
		t.count--
	}
	t.shrink()
	return prev, nil
}

// CloseAll unbinds and closes every resource, reserved ones included. The
// call never stops early: it returns the errors of all the resources that
// failed to close, passing each of them to onError first if it is not nil.
func (t *Table) CloseAll(onError func(op.Fd, *Resource, error)) error {
	t.mutex.Lock()
	slots := t.slots
	t.slots, t.count, t.reserved = nil, 0, 0
	t.mutex.Unlock()

	var errs []error
	for fd, res := range slots {
		if res == nil {
			continue
		}
		if err := res.Close(); err != nil {
			if onError != nil {
				onError(op.Fd(fd), res, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Table) lookup(fd op.Fd) *Resource {
	if fd < 0 || int(fd) >= len(t.slots) {
		return nil
	}
	return t.slots[fd]
}

func (t *Table) grow(fd int) {
	if fd < len(t.slots) {
		return
	}
	if fd < cap(t.slots) {
		t.slots = t.slots[:fd+1]
		return
	}
	slots := make([]*Resource, fd+1, 2*(fd+1))
	copy(slots, t.slots)
	t.slots = slots
}

func (t *Table) shrink() {
	n := len(t.slots)
	for n > t.reserved && t.slots[n-1] == nil {
		n--
	}
	t.slots = t.slots[:n]
}
