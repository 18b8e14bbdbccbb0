package platformtest

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stealthrocket/wasi-go"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var fsTestMkdir = fsTestSuite{
	"created directories can be opened for search": func(t *testing.T, f *fixture) {
		assert.OK(t, f.root.MkdirAt("dir", 0777))

		s, err := f.root.StatAt("dir", false)
		assert.OK(t, err)
		assert.Equal(t, s.Type, wasi.DirectoryType)
	},

	"creating a directory where a directory exists errors with Exists": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		assert.Error(t, f.root.MkdirAt("dir", 0777), fserr.Exists)
	},

	"creating a directory where a file exists errors with Exists": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		assert.Error(t, f.root.MkdirAt("test", 0777), fserr.Exists)
	},
}

var fsTestUnlink = fsTestSuite{
	"unlinked files cannot be opened anymore": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		assert.OK(t, f.root.UnlinkAt("test", false))

		_, err := f.root.StatAt("test", false)
		assert.Error(t, err, fserr.NotFound)
	},

	"unlinking a file which does not exist errors with NotFound": func(t *testing.T, f *fixture) {
		assert.Error(t, f.root.UnlinkAt("missing", false), fserr.NotFound)
	},

	"unlinking a directory as a file errors with PathIsDirectory": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		assert.Error(t, f.root.UnlinkAt("dir", false), fserr.PathIsDirectory)
	},

	"removing a file as a directory errors with NotDirectory": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		assert.Error(t, f.root.UnlinkAt("test", true), fserr.NotDirectory)
	},

	"removing a directory which is not empty errors with NotEmpty": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		f.writeFile(t, "dir/test", "")
		assert.Error(t, f.root.UnlinkAt("dir", true), fserr.NotEmpty)
	},

	"empty directories can be removed": func(t *testing.T, f *fixture) {
		f.mkdir(t, "dir")
		assert.OK(t, f.root.UnlinkAt("dir", true))

		_, err := f.root.StatAt("dir", false)
		assert.Error(t, err, fserr.NotFound)
	},
}

var fsTestReadDir = fsTestSuite{
	"listing a directory includes the dot entries": func(t *testing.T, f *fixture) {
		f.writeFile(t, "a", "")
		f.writeFile(t, "b", "")
		f.mkdir(t, "c")

		entries := readDir(t, f, 0)
		assert.Diff(t, names(entries), []string{".", "..", "a", "b", "c"},
			cmpopts.SortSlices(func(a, b string) bool { return a < b }))

		for _, e := range entries {
			if e.Name == "c" {
				assert.Equal(t, e.Type, wasi.DirectoryType)
			}
		}
	},

	"listings resume after the entry of a cookie": func(t *testing.T, f *fixture) {
		for _, name := range []string{"a", "b", "c", "d"} {
			f.writeFile(t, name, "")
		}

		entries := readDir(t, f, 0)
		for i, e := range entries {
			assert.Diff(t, names(readDir(t, f, e.Cookie)), names(entries[i+1:]), cmpopts.EquateEmpty())
		}
	},

	"listing a file errors": func(t *testing.T, f *fixture) {
		f.writeFile(t, "test", "")
		h := f.open(t, "test", op.ReadOnly, 0)

		_, err := h.ReadDir(0)
		assert.Error(t, err, fserr.NotDirectory)
	},
}

func readDir(t *testing.T, f *fixture, cookie uint64) []op.DirEntry {
	t.Helper()
	d, err := f.root.ReadDir(cookie)
	assert.OK(t, err)
	defer d.Close()

	var entries []op.DirEntry
	for {
		e, err := d.Next()
		if err == io.EOF {
			return entries
		}
		assert.OK(t, err)
		entries = append(entries, e)
	}
}

func names(entries []op.DirEntry) []string {
	s := make([]string, len(entries))
	for i, e := range entries {
		s[i] = e.Name
	}
	return s
}
