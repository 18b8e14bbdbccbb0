package resolve_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stealthrocket/wasi-go"
	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/fdtable"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/platform/portable"
	"github.com/stealthrocket/wasivfs/internal/resolve"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// The layout of the test directory is:
//
//	outside/secret
//	root/file
//	root/sub/file
//	root/escape -> ../../..
//	root/abs -> /data/sub
//	root/absout -> /sub
//	root/cross -> /other/file
//	root/loop -> loop
//	root/sub/up -> ../file
func setup(t *testing.T) (r *resolve.Resolver, preopen op.Fd) {
	t.Helper()
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")

	assert.OK(t, os.MkdirAll(filepath.Join(tmp, "outside"), 0755))
	assert.OK(t, os.WriteFile(filepath.Join(tmp, "outside", "secret"), []byte("secret"), 0644))
	assert.OK(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	assert.OK(t, os.WriteFile(filepath.Join(root, "file"), []byte("file"), 0644))
	assert.OK(t, os.WriteFile(filepath.Join(root, "sub", "file"), []byte("sub/file"), 0644))
	assert.OK(t, os.Symlink("../../..", filepath.Join(root, "escape")))
	assert.OK(t, os.Symlink("/data/sub", filepath.Join(root, "abs")))
	assert.OK(t, os.Symlink("/sub", filepath.Join(root, "absout")))
	assert.OK(t, os.Symlink("/other/file", filepath.Join(root, "cross")))
	assert.OK(t, os.Symlink("loop", filepath.Join(root, "loop")))
	assert.OK(t, os.Symlink("../file", filepath.Join(root, "sub", "up")))

	fsys := portable.New()
	h, err := fsys.OpenPreopen(platform.RealPath(root))
	assert.OK(t, err)

	res := fdtable.NewResource(fdtable.Preopen, h)
	res.Path = vpath.MustNew("/data")
	res.Root = res

	table := fdtable.New(0)
	preopen, err = table.Reserve(res)
	assert.OK(t, err)
	t.Cleanup(func() { table.CloseAll(nil) })

	r = &resolve.Resolver{
		Table:    table,
		Preopens: []*fdtable.Resource{res},
		Cwd:      vpath.MustNew("/data"),
	}
	return r, preopen
}

func stat(r *resolve.Resolver, base op.BaseDirectory, path string, follow bool) (op.StructStat, *resolve.Location, error) {
	var s op.StructStat
	var l *resolve.Location
	err := r.Resolve(base, path, follow, func(dir platform.Handle, name string, loc *resolve.Location) (err error) {
		l = loc
		s, err = dir.StatAt(name, false)
		return err
	})
	return s, l, err
}

func TestResolveSandbox(t *testing.T) {
	r, fd := setup(t)
	base := op.DirectoryFd(fd)

	tests := []struct {
		scenario string
		base     op.BaseDirectory
		path     string
		err      error
	}{
		{scenario: "parent of the root", base: base, path: "..", err: fserr.NotCapable},
		{scenario: "escape through a subdirectory", base: base, path: "sub/../../outside/secret", err: fserr.NotCapable},
		{scenario: "absolute path relative to a directory", base: base, path: "/etc/passwd", err: fserr.NotCapable},
		{scenario: "absolute path outside of preopens", base: op.CurrentWorkingDirectory(), path: "/etc/passwd", err: fserr.NotCapable},
		{scenario: "relative path escaping the working directory", base: op.CurrentWorkingDirectory(), path: "../outside/secret", err: fserr.NotCapable},
		{scenario: "empty path", base: base, path: "", err: fserr.EmptyPath},
		{scenario: "path with a nul byte", base: base, path: "fi\x00le", err: fserr.InvalidPathFormat},
		{scenario: "unknown descriptor", base: op.DirectoryFd(42), path: "file", err: fserr.BadFileDescriptor},
		{scenario: "symbolic link loop", base: base, path: "loop", err: fserr.Loop},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, _, err := stat(r, test.base, test.path, true)
			assert.Error(t, err, test.err)
		})
	}
}

func TestResolveSymlinksStayInRoot(t *testing.T) {
	r, fd := setup(t)
	base := op.DirectoryFd(fd)

	s, loc, err := stat(r, base, "abs/file", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "sub/file")
	assert.Equal(t, loc.Path.String(), "/data/sub/file")
	assert.Equal(t, s.Size, int64(len("sub/file")))

	s, loc, err = stat(r, base, "sub/up", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "file")
	assert.Equal(t, s.Size, int64(len("file")))

	tests := []struct {
		scenario string
		path     string
	}{
		{scenario: "parent references above the root", path: "escape/file"},
		{scenario: "parent references to a host directory", path: "escape/outside/secret"},
		{scenario: "absolute target outside of preopens", path: "absout/file"},
		{scenario: "absolute target in the last component", path: "absout"},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, _, err := stat(r, base, test.path, true)
			assert.Error(t, err, fserr.NotCapable)
		})
	}
}

func TestResolveSymlinkToOtherPreopen(t *testing.T) {
	r, fd := setup(t)
	base := op.DirectoryFd(fd)

	_, _, err := stat(r, base, "cross", true)
	assert.Error(t, err, fserr.NotCapable)

	other := fdtable.NewResource(fdtable.Preopen, r.Preopens[0].Handle())
	other.Path = vpath.MustNew("/other")
	other.Root = other
	r.Preopens = append(r.Preopens, other)

	_, _, err = stat(r, base, "cross", true)
	assert.Error(t, err, fserr.NotCapable)

	_, loc, err := stat(r, base, "cross", false)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "cross")
}

func TestResolveNoFollow(t *testing.T) {
	r, fd := setup(t)

	s, loc, err := stat(r, op.DirectoryFd(fd), "sub/up", false)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "sub/up")
	assert.Equal(t, s.Type, wasi.SymbolicLinkType)
}

func TestResolveAllowRootAccess(t *testing.T) {
	r, fd := setup(t)
	r.AllowRootAccess = true

	_, loc, err := stat(r, op.DirectoryFd(fd), "../../file", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "file")

	_, loc, err = stat(r, op.DirectoryFd(fd), "/data/sub/file", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "sub/file")

	_, loc, err = stat(r, op.DirectoryFd(fd), "escape/file", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Rel, "file")
	assert.Equal(t, loc.Path.String(), "/data/file")
}

func TestResolveWorkingDirectory(t *testing.T) {
	r, _ := setup(t)
	r.Cwd = vpath.MustNew("/data/sub")

	_, loc, err := stat(r, op.CurrentWorkingDirectory(), "file", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Path.String(), "/data/sub/file")

	_, loc, err = stat(r, op.CurrentWorkingDirectory(), "../file", true)
	assert.OK(t, err)
	assert.Equal(t, loc.Path.String(), "/data/file")

	r.Cwd = vpath.VirtualPath{}
	_, _, err = stat(r, op.CurrentWorkingDirectory(), "file", true)
	assert.Error(t, err, fserr.NotCapable)
}

func TestResolveDirectoryItself(t *testing.T) {
	r, fd := setup(t)

	for _, path := range []string{".", "sub/..", "./"} {
		t.Run(path, func(t *testing.T) {
			err := r.Resolve(op.DirectoryFd(fd), path, true, func(dir platform.Handle, name string, loc *resolve.Location) error {
				assert.Equal(t, name, ".")
				assert.Equal(t, loc.Rel, "")
				return nil
			})
			assert.OK(t, err)
		})
	}
}

func TestLocatePrefersLongestPreopen(t *testing.T) {
	r, _ := setup(t)

	nested := fdtable.NewResource(fdtable.Preopen, r.Preopens[0].Handle())
	nested.Path = vpath.MustNew("/data/sub")
	nested.Root = nested
	r.Preopens = append(r.Preopens, nested)

	loc, err := r.Locate(op.CurrentWorkingDirectory(), "/data/sub/file")
	assert.OK(t, err)
	assert.True(t, loc.Root == nested)
	assert.Equal(t, loc.Rel, "file")

	loc, err = r.Locate(op.CurrentWorkingDirectory(), "/data/file")
	assert.OK(t, err)
	assert.True(t, loc.Root == r.Preopens[0])
	assert.Equal(t, loc.Rel, "file")
}
