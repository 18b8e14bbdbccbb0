package platformtest

import (
	"testing"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var fsTestRename = fsTestSuite{
	"renamed files are found at their new location": func(t *testing.T, f *fixture) {
		f.writeFile(t, "old", "content")
		assert.OK(t, f.root.RenameAt("old", f.root, "new"))

		_, err := f.root.StatAt("old", false)
		assert.Error(t, err, fserr.NotFound)
		assert.Equal(t, readAll(t, f.open(t, "new", op.ReadOnly, 0)), "content")
	},

	"files can be renamed across directories": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		f.writeFile(t, "test", "content")

		d, err := f.root.OpenAt("dir", platform.OpenOptions{Search: true})
		assert.OK(t, err)
		defer d.Close()

		assert.OK(t, f.root.RenameAt("test", d, "moved"))
		assert.Equal(t, readAll(t, f.open(t, "dir/moved", op.ReadOnly, 0)), "content")
	},

	"renaming a file which does not exist errors with NotFound": func(t *testing.T, f *fixture) {
		assert.Error(t, f.root.RenameAt("missing", f.root, "new"), fserr.NotFound)
	},

	"renaming a file over an existing file replaces it": func(t *testing.T, f *fixture) {
		f.writeFile(t, "a", "A")
		f.writeFile(t, "b", "B")
		assert.OK(t, f.root.RenameAt("a", f.root, "b"))
		assert.Equal(t, readAll(t, f.open(t, "b", op.ReadOnly, 0)), "A")
	},
}

var fsTestLink = fsTestSuite{
	"hard links share the content of the file": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "content")
		assert.OK(t, f.root.LinkAt("test", f.root, "link", false))
		assert.Equal(t, readAll(t, f.open(t, "link", op.ReadOnly, 0)), "content")

		w := f.open(t, "test", op.WriteOnly, op.OpenTruncate)
		writeString(t, w, "changed")
		assert.Equal(t, readAll(t, f.open(t, "link", op.ReadOnly, 0)), "changed")
	},

	"hard links to an existing name error with Exists": func(t *testing.T, f *fixture) {
		f.writeFile(t, "a", "")
		f.writeFile(t, "b", "")
		assert.Error(t, f.root.LinkAt("a", f.root, "b", false), fserr.Exists)
	},

	"symbolic links can be read back": func(t *testing.T, f *fixture) {
		f.symlink(t, "dir/target", "link")

		target, err := f.root.ReadlinkAt("link")
		assert.OK(t, err)
		assert.Equal(t, target, "dir/target")
	},

	"symbolic links to an existing name error with Exists": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		f.symlink(t, "target", "link")
		assert.Error(t, f.root.SymlinkAt("target", "test"), fserr.Exists)
	},

	"reading a file as a symbolic link errors with InvalidArgument": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		_, err := f.root.ReadlinkAt("test")
		assert.Error(t, err, fserr.InvalidArgument)
	},
}
