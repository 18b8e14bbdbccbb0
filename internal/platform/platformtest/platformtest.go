// Package platformtest is a conformance suite for platform adapters.
package platformtest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// TestFileSystem runs the conformance suite against the adapters returned by
// makeFS. Each test gets a new adapter and an empty preopened directory.
func TestFileSystem(t *testing.T, makeFS func(*testing.T) platform.FileSystem) {
	t.Run("Open", func(t *testing.T) { fsTestOpen.run(t, makeFS) })
	t.Run("Stat", func(t *testing.T) { fsTestStat.run(t, makeFS) })
	t.Run("Mkdir", func(t *testing.T) { fsTestMkdir.run(t, makeFS) })
	t.Run("Unlink", func(t *testing.T) { fsTestUnlink.run(t, makeFS) })
	t.Run("Rename", func(t *testing.T) { fsTestRename.run(t, makeFS) })
	t.Run("Link", func(t *testing.T) { fsTestLink.run(t, makeFS) })
	t.Run("ReadDir", func(t *testing.T) { fsTestReadDir.run(t, makeFS) })
	t.Run("File", func(t *testing.T) { fsTestFile.run(t, makeFS) })
	t.Run("Lock", func(t *testing.T) { fsTestLock.run(t, makeFS) })
}

type fixture struct {
	fsys platform.FileSystem
	root platform.Handle
	dir  string
}

// path returns the host path of name in the preopened directory.
func (f *fixture) path(name string) string {
	return filepath.Join(f.dir, filepath.FromSlash(name))
}

func (f *fixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	assert.OK(t, os.WriteFile(f.path(name), []byte(content), 0666))
}

func (f *fixture) mkdir(t *testing.T, name string) {
	t.Helper()
	assert.OK(t, os.Mkdir(f.path(name), 0777))
}

func (f *fixture) open(t *testing.T, name string, access op.Access, flags op.OpenFlags) platform.Handle {
	t.Helper()
	h, err := f.root.OpenAt(name, platform.OpenOptions{Access: access, Flags: flags, Mode: 0666})
	assert.OK(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

// symlink creates a symbolic link, skipping the test on hosts where the
// process is not allowed to create links.
func (f *fixture) symlink(t *testing.T, target, name string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symbolic links require elevated privileges on windows")
	}
	assert.OK(t, f.root.SymlinkAt(target, name))
}

// processLocks reports whether the adapter locks records per process, in
// which case two handles of the same process never conflict.
func (f *fixture) processLocks() bool {
	return f.fsys.Name() == "posix" && runtime.GOOS == "darwin"
}

type fsTestSuite map[string]func(*testing.T, *fixture)

func (tests fsTestSuite) run(t *testing.T, makeFS func(*testing.T) platform.FileSystem) {
	names := maps.Keys(tests)
	slices.Sort(names)

	for _, name := range names {
		test := tests[name]
		t.Run(name, func(t *testing.T) {
			fsys := makeFS(t)
			dir := t.TempDir()
			root, err := fsys.OpenPreopen(platform.RealPath(dir))
			assert.OK(t, err)
			defer root.Close()
			test(t, &fixture{fsys: fsys, root: root, dir: dir})
		})
	}
}

func readAll(t *testing.T, h platform.Handle) string {
	t.Helper()
	var data []byte
	buf := make([]byte, 16)
	for {
		n, err := h.Readv([][]byte{buf[:8], buf[8:]})
		assert.OK(t, err)
		if n == 0 {
			return string(data)
		}
		data = append(data, buf[:n]...)
	}
}

func writeString(t *testing.T, h platform.Handle, s string) {
	t.Helper()
	n, err := h.Writev([][]byte{[]byte(s)})
	assert.OK(t, err)
	assert.Equal(t, n, len(s))
}
