package platformtest

import (
	"runtime"
	"testing"
	"time"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var fsTestFile = fsTestSuite{
	"truncating a file changes its size": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "Hello, World!")
		h := f.open(t, "test", op.ReadWrite, 0)

		assert.OK(t, h.Truncate(5))
		assert.Equal(t, readAll(t, h), "Hello")

		assert.OK(t, h.Truncate(8))
		s, err := h.Stat()
		assert.OK(t, err)
		assert.Equal(t, s.Size, int64(8))
	},

	"seeking moves the offset of reads": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "0123456789")
		h := f.open(t, "test", op.ReadOnly, 0)

		offset, err := h.Seek(-4, op.SeekEnd)
		assert.OK(t, err)
		assert.Equal(t, offset, int64(6))

		offset, err = h.Seek(-2, op.SeekCurrent)
		assert.OK(t, err)
		assert.Equal(t, offset, int64(4))
		assert.Equal(t, readAll(t, h), "456789")

		_, err = h.Seek(-1, op.SeekStart)
		assert.Error(t, err, fserr.InvalidArgument)
	},

	"positional reads and writes do not move the offset": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "0123456789")
		h := f.open(t, "test", op.ReadWrite, 0)

		n, err := h.Pwritev([][]byte{[]byte("ab"), []byte("cd")}, 2)
		assert.OK(t, err)
		assert.Equal(t, n, 4)

		buf := make([]byte, 3)
		n, err = h.Preadv([][]byte{buf}, 4)
		assert.OK(t, err)
		assert.Equal(t, string(buf[:n]), "cd6")

		offset, err := h.Seek(0, op.SeekCurrent)
		assert.OK(t, err)
		assert.Equal(t, offset, int64(0))
		assert.Equal(t, readAll(t, h), "01abcd6789")
	},

	"writes to files opened in append mode go to the end": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "Hello")
		h, err := f.root.OpenAt("test", platform.OpenOptions{Access: op.WriteOnly, FdFlags: op.FdAppend})
		assert.OK(t, err)
		defer h.Close()

		_, err = h.Seek(0, op.SeekStart)
		assert.OK(t, err)
		writeString(t, h, ", World!")

		flags, err := h.Flags()
		assert.OK(t, err)
		assert.True(t, flags.Has(op.FdAppend))
		assert.Equal(t, readAll(t, f.open(t, "test", op.ReadOnly, 0)), "Hello, World!")
	},

	"the append mode can be changed after opening a file": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "Hello")
		h := f.open(t, "test", op.WriteOnly, 0)

		assert.OK(t, h.SetFlags(op.FdAppend))
		writeString(t, h, "!")
		assert.OK(t, h.SetFlags(0))

		flags, err := h.Flags()
		assert.OK(t, err)
		assert.Equal(t, flags.Has(op.FdAppend), false)
		assert.Equal(t, readAll(t, f.open(t, "test", op.ReadOnly, 0)), "Hello!")
	},

	"modification times can be set by name": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		mtime := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)

		assert.OK(t, f.root.SetTimesAt("test", op.TimeUpdate{}, op.SetTime(mtime), true))

		s, err := f.root.StatAt("test", true)
		assert.OK(t, err)
		assert.Equal(t, s.Mtime, op.MakeTimespec(mtime))
	},

	"omitted timestamps are left unchanged": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		mtime := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
		h := f.open(t, "test", op.ReadWrite, 0)

		assert.OK(t, h.SetTimes(op.TimeUpdate{}, op.SetTime(mtime)))
		assert.OK(t, h.SetTimes(op.SetNow(), op.TimeUpdate{Mode: op.TimeOmit}))

		s, err := h.Stat()
		assert.OK(t, err)
		assert.Equal(t, s.Mtime, op.MakeTimespec(mtime))
	},

	"permissions can be changed by name": func(t *testing.T, f *fixture) {
		if runtime.GOOS == "windows" {
			t.Skip("permissions are not supported on windows")
		}
		f.writeFile(t, "test", "")

		assert.OK(t, f.root.ChmodAt("test", 0600, true))
		s, err := f.root.StatAt("test", true)
		assert.OK(t, err)
		assert.Equal(t, s.Mode.Perm(), 0600)
	},
}

var fsTestLock = fsTestSuite{
	"exclusive locks conflict across handles": func(t *testing.T, f *fixture) {
		if f.processLocks() {
			t.Skip("record locks are owned by the process")
		}
		f.writeFile(t, "test", "0123456789")
		h1 := f.open(t, "test", op.ReadWrite, 0)
		h2 := f.open(t, "test", op.ReadWrite, 0)

		assert.OK(t, h1.Lock(op.AdvisoryLock{Type: op.ExclusiveLock}))
		assert.Error(t, h2.Lock(op.AdvisoryLock{Type: op.SharedLock}), fserr.Again)

		assert.OK(t, h1.Lock(op.AdvisoryLock{Type: op.Unlock}))
		assert.OK(t, h2.Lock(op.AdvisoryLock{Type: op.SharedLock}))
	},

	"shared locks do not conflict": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "0123456789")
		h1 := f.open(t, "test", op.ReadWrite, 0)
		h2 := f.open(t, "test", op.ReadWrite, 0)

		assert.OK(t, h1.Lock(op.AdvisoryLock{Type: op.SharedLock}))
		assert.OK(t, h2.Lock(op.AdvisoryLock{Type: op.SharedLock}))
	},

	"locks on disjoint regions do not conflict": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "0123456789")
		h1 := f.open(t, "test", op.ReadWrite, 0)
		h2 := f.open(t, "test", op.ReadWrite, 0)

		assert.OK(t, h1.Lock(op.AdvisoryLock{Type: op.ExclusiveLock, Start: 0, Length: 5}))
		assert.OK(t, h2.Lock(op.AdvisoryLock{Type: op.ExclusiveLock, Start: 5, Length: 5}))
	},

	"closing a handle releases its locks": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "0123456789")
		h1, err := f.root.OpenAt("test", platform.OpenOptions{Access: op.ReadWrite})
		assert.OK(t, err)
		h2 := f.open(t, "test", op.ReadWrite, 0)

		assert.OK(t, h1.Lock(op.AdvisoryLock{Type: op.ExclusiveLock}))
		assert.OK(t, h1.Close())
		assert.OK(t, h2.Lock(op.AdvisoryLock{Type: op.ExclusiveLock}))
	},
}
