package platformtest

import (
	"testing"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var fsTestOpen = fsTestSuite{
	"files created with OpenAt can be written and read back": func(t *testing.T, f *fixture) {
		w := f.open(t, "test", op.WriteOnly, op.OpenCreate)
		writeString(t, w, "Hello, World!")

		r := f.open(t, "test", op.ReadOnly, 0)
		assert.Equal(t, readAll(t, r), "Hello, World!")
	},

	"opening a file which does not exist errors with NotFound": func(t *testing.T, f *fixture) {
		_, err := f.root.OpenAt("missing", platform.OpenOptions{Access: op.ReadOnly})
		assert.Error(t, err, fserr.NotFound)
	},

	"exclusive creation of a file which exists errors with Exists": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")

		_, err := f.root.OpenAt("test", platform.OpenOptions{
			Access: op.WriteOnly,
			Flags:  op.OpenCreate | op.OpenExclusive,
			Mode:   0666,
		})
		assert.Error(t, err, fserr.Exists)
	},

	"truncating a file on open discards its content": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "content")
		f.open(t, "test", op.WriteOnly, op.OpenTruncate)

		s, err := f.root.StatAt("test", true)
		assert.OK(t, err)
		assert.Equal(t, s.Size, int64(0))
	},

	"opening a directory for writing errors with PathIsDirectory": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")

		_, err := f.root.OpenAt("dir", platform.OpenOptions{Access: op.ReadWrite})
		assert.Error(t, err, fserr.PathIsDirectory)
	},

	"opening a file as a directory errors with NotDirectory": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")

		_, err := f.root.OpenAt("test", platform.OpenOptions{Access: op.ReadOnly, Flags: op.OpenDirectory})
		assert.Error(t, err, fserr.NotDirectory)

		_, err = f.root.OpenAt("test", platform.OpenOptions{Search: true})
		assert.Error(t, err, fserr.NotDirectory)
	},

	"opening a symbolic link without following it errors with Loop": func(t *testing.T, f *fixture) {
		f.writeFile(t, "target", "")
		f.symlink(t, "target", "link")

		_, err := f.root.OpenAt("link", platform.OpenOptions{Access: op.ReadOnly, NoFollow: true})
		assert.Error(t, err, fserr.Loop)
	},

	"directories opened for search resolve names relative to them": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		f.writeFile(t, "dir/test", "nested")

		d, err := f.root.OpenAt("dir", platform.OpenOptions{Search: true})
		assert.OK(t, err)
		defer d.Close()

		h, err := d.OpenAt("test", platform.OpenOptions{Access: op.ReadOnly})
		assert.OK(t, err)
		defer h.Close()
		assert.Equal(t, readAll(t, h), "nested")
	},
}
