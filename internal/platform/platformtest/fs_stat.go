package platformtest

import (
	"testing"

	"github.com/stealthrocket/wasi-go"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var fsTestStat = fsTestSuite{
	"stat of a regular file reports its type and size": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "123456")

		s, err := f.root.StatAt("test", true)
		assert.OK(t, err)
		assert.Equal(t, s.Type, wasi.RegularFileType)
		assert.Equal(t, s.Size, int64(6))
	},

	"stat of an open handle matches the stat of its name": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "123")
		h := f.open(t, "test", op.ReadOnly, 0)

		s1, err := h.Stat()
		assert.OK(t, err)
		s2, err := f.root.StatAt("test", true)
		assert.OK(t, err)
		assert.Equal(t, s1.Type, s2.Type)
		assert.Equal(t, s1.Size, s2.Size)
	},

	"stat follows symbolic links unless asked not to": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		f.symlink(t, "dir", "link")

		s, err := f.root.StatAt("link", true)
		assert.OK(t, err)
		assert.Equal(t, s.Type, wasi.DirectoryType)

		s, err = f.root.StatAt("link", false)
		assert.OK(t, err)
		assert.Equal(t, s.Type, wasi.SymbolicLinkType)
	},

	"stat of a dangling symbolic link errors with NotFound when followed": func(t *testing.T, f *fixture) {
		f.symlink(t, "missing", "link")

		_, err := f.root.StatAt("link", true)
		assert.Error(t, err, fserr.NotFound)

		_, err = f.root.StatAt("link", false)
		assert.OK(t, err)
	},

	"the preopened directory is a directory": func(t *testing.T, f *fixture) {
		s, err := f.root.Stat()
		assert.OK(t, err)
		assert.Equal(t, s.Type, wasi.DirectoryType)
	},
}
