package fserr_test

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stealthrocket/wasi-go"
	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
)

func TestErrnoWireValues(t *testing.T) {
	tests := []struct {
		kind  fserr.Kind
		errno wasi.Errno
	}{
		{fserr.AccessDenied, 2},
		{fserr.BadFileDescriptor, 8},
		{fserr.DiskQuota, 19},
		{fserr.Interrupted, 27},
		{fserr.InvalidArgument, 28},
		{fserr.IoError, 29},
		{fserr.PathIsDirectory, 31},
		{fserr.Mfile, 33},
		{fserr.NotFound, 44},
		{fserr.NoSpace, 51},
		{fserr.NotCapable, 76},
	}

	for _, test := range tests {
		t.Run(test.kind.String(), func(t *testing.T) {
			assert.Equal(t, test.kind.Errno(), test.errno)
		})
	}
}

func TestEveryKindHasAName(t *testing.T) {
	for _, kind := range fserr.Kinds() {
		assert.True(t, kind.String() != "unknown error")
		assert.True(t, kind.Errno() != wasi.ESUCCESS)
	}
}

func TestErrorMatchesKind(t *testing.T) {
	cause := errors.New("native")
	err := error(fserr.New("open", "/tmp/x", fserr.NotFound, cause))

	assert.Error(t, err, fserr.NotFound)
	assert.Error(t, err, cause)
	assert.Equal(t, fserr.KindOf(err), fserr.NotFound)
	assert.Equal(t, fserr.Errno(err), wasi.ENOENT)
	assert.Equal(t, err.Error(), "open /tmp/x: no such file or directory (native)")

	wrapped := fmt.Errorf("context: %w", err)
	assert.Equal(t, fserr.KindOf(wrapped), fserr.NotFound)
}

func TestWithPath(t *testing.T) {
	cause := &fs.PathError{Op: "open", Path: "/tmp/host/root/file", Err: syscall.ENOENT}
	err := fserr.WithPath(fserr.New("open", "/tmp/host/root/file", fserr.NotFound, cause), "/data/file")

	var e *fserr.Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, e.Path, "/data/file")
	assert.Error(t, err, fserr.NotFound)
	assert.Error(t, err, syscall.ENOENT)
	assert.Equal(t, err.Error(), "open /data/file: no such file or directory")

	assert.Equal(t, fserr.WithPath(nil, "/data/file"), nil)
	assert.Equal(t, fserr.WithPath(fserr.NotFound, "/data/file"), error(fserr.NotFound))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, fserr.KindOf(nil), fserr.Kind(0))
	assert.Equal(t, fserr.KindOf(fserr.Loop), fserr.Loop)
	assert.Equal(t, fserr.KindOf(errors.New("?")), fserr.IoError)
	assert.Equal(t, fserr.Errno(nil), wasi.ESUCCESS)
}

func TestKindSet(t *testing.T) {
	set := fserr.MakeKindSet(fserr.NotFound, fserr.Exists)
	assert.True(t, set.Has(fserr.NotFound))
	assert.True(t, set.Has(fserr.Exists))
	assert.True(t, !set.Has(fserr.Loop))

	set = set.With(fserr.Loop)
	assert.True(t, set.Has(fserr.Loop))
	assert.Equal(t, set.String(), "{file exists, too many levels of symbolic links, no such file or directory}")
}

func TestNarrow(t *testing.T) {
	set := fserr.MakeKindSet(fserr.NotFound)

	t.Run("kind in the set is kept", func(t *testing.T) {
		err := fserr.Narrow("stat", "a", set, fserr.New("fstatat", "", fserr.NotFound, nil))
		assert.Error(t, err, fserr.NotFound)

		var e *fserr.Error
		assert.True(t, errors.As(err, &e))
		assert.Equal(t, e.Op, "stat")
		assert.Equal(t, e.Path, "a")
	})

	t.Run("kind outside of the set becomes an I/O error", func(t *testing.T) {
		err := fserr.Narrow("stat", "a", set, fserr.New("fstatat", "", fserr.Loop, nil))
		assert.Error(t, err, fserr.IoError)
		assert.True(t, !errors.Is(err, fserr.Loop))
	})

	t.Run("bare kinds are wrapped", func(t *testing.T) {
		err := fserr.Narrow("stat", "a", set, fserr.NotFound)
		assert.Equal(t, err.Error(), "stat a: no such file or directory")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.OK(t, fserr.Narrow("stat", "a", set, nil))
	})
}
