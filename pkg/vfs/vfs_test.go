package vfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stealthrocket/wasi-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/fdtable"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/platform/portable"
	"github.com/stealthrocket/wasivfs/pkg/vfs/chain"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// preopenFd is the descriptor of the first preopened directory, after the
// standard I/O streams.
const preopenFd op.Fd = 3

var ctx = context.Background()

type platformFunc func() platform.FileSystem

func platforms() map[string]platformFunc {
	return map[string]platformFunc{
		"native":   defaultPlatform,
		"portable": func() platform.FileSystem { return portable.New() },
	}
}

func runPlatforms(t *testing.T, test func(*testing.T, platformFunc)) {
	for name, fsys := range platforms() {
		t.Run(name, func(t *testing.T) { test(t, fsys) })
	}
}

func newEngine(t *testing.T, fsys platformFunc, options ...Option) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	config := NewConfig(append([]Option{WithPreopen("/data", root)}, options...)...)
	config.Platform = fsys()
	e, err := New(config)
	assert.OK(t, err)
	t.Cleanup(func() { e.Close() })
	return e, root
}

// must asserts that the call returning r succeeded. The result is a function
// of the test so that the call can be passed as the only argument.
func must[R any](r R, err error) func(*testing.T) R {
	return func(t *testing.T) R {
		t.Helper()
		assert.OK(t, err)
		return r
	}
}

func at(path string) (op.BaseDirectory, string) {
	return op.DirectoryFd(preopenFd), path
}

func writeFile(t *testing.T, e *Engine, path string, content string) {
	t.Helper()
	fd := must(Execute(ctx, e, op.Open, op.OpenInput{
		Base:   op.DirectoryFd(preopenFd),
		Path:   path,
		Access: op.WriteOnly,
		Flags:  op.OpenCreate | op.OpenTruncate,
	}))(t)
	defer Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: fd})
	n := must(Execute(ctx, e, op.WriteFd, op.WriteFdInput{Fd: fd, Iovecs: [][]byte{[]byte(content)}}))(t)
	assert.Equal(t, n, len(content))
}

func readFile(t *testing.T, e *Engine, path string) string {
	t.Helper()
	fd := must(Execute(ctx, e, op.Open, op.OpenInput{
		Base:   op.DirectoryFd(preopenFd),
		Path:   path,
		Follow: true,
	}))(t)
	defer Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: fd})
	buf := make([]byte, 256)
	n := must(Execute(ctx, e, op.ReadFd, op.ReadFdInput{Fd: fd, Iovecs: [][]byte{buf}}))(t)
	return string(buf[:n])
}

func TestOpenDirectoryForWriting(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, root := newEngine(t, fsys)
		assert.OK(t, os.Mkdir(filepath.Join(root, "dir"), 0755))

		for _, access := range []op.Access{op.ReadWrite, op.WriteOnly} {
			_, err := Execute(ctx, e, op.Open, op.OpenInput{
				Base:   op.DirectoryFd(preopenFd),
				Path:   "dir",
				Access: access,
				Flags:  op.OpenDirectory,
			})
			assert.Error(t, err, fserr.PathIsDirectory)
			assert.Equal(t, fserr.Errno(err), wasi.EISDIR)
		}
	})
}

func TestOpenCreateDirectory(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, root := newEngine(t, fsys)

		_, err := Execute(ctx, e, op.Open, op.OpenInput{
			Base:  op.DirectoryFd(preopenFd),
			Path:  "newdir",
			Flags: op.OpenCreate | op.OpenDirectory,
		})
		assert.Error(t, err, fserr.InvalidArgument)

		_, err = os.Stat(filepath.Join(root, "newdir"))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestInvalidFileDescriptor(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		const fd op.Fd = -327542

		_, err := Execute(ctx, e, op.WriteFd, op.WriteFdInput{Fd: fd, Iovecs: [][]byte{}})
		assert.Error(t, err, fserr.BadFileDescriptor)
		assert.Equal(t, fserr.Errno(err), wasi.Errno(8))

		_, err = Execute(ctx, e, op.ReadFd, op.ReadFdInput{Fd: fd})
		assert.Error(t, err, fserr.BadFileDescriptor)
	})
}

func TestUseAfterClose(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "hello")

		fd := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file"}))(t)
		_, err := Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: fd})
		assert.OK(t, err)

		_, err = Execute(ctx, e, op.ReadFd, op.ReadFdInput{Fd: fd, Iovecs: [][]byte{make([]byte, 8)}})
		assert.Error(t, err, fserr.BadFileDescriptor)
		_, err = Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: fd})
		assert.Error(t, err, fserr.BadFileDescriptor)
		_, err = Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: fd})
		assert.Error(t, err, fserr.BadFileDescriptor)
	})
}

func TestHardlink(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "testfile.txt", "Test content")

		_, err := Execute(ctx, e, op.Hardlink, op.HardlinkInput{
			OldBase: op.DirectoryFd(preopenFd),
			OldPath: "testfile.txt",
			NewBase: op.DirectoryFd(preopenFd),
			NewPath: "newfile.txt",
		})
		assert.OK(t, err)
		assert.Equal(t, readFile(t, e, "newfile.txt"), "Test content")

		s := must(Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: "newfile.txt"}))(t)
		assert.Equal(t, s.Size, int64(len("Test content")))
	})
}

func TestSymlink(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "TEST_FILE", "TEST_CONTENT")

		_, err := Execute(ctx, e, op.Symlink, op.SymlinkInput{
			OldPath: "TEST_FILE",
			NewBase: op.DirectoryFd(preopenFd),
			NewPath: "newfile.txt",
		})
		assert.OK(t, err)
		assert.Equal(t, readFile(t, e, "newfile.txt"), "TEST_CONTENT")

		_, err = Execute(ctx, e, op.Symlink, op.SymlinkInput{
			OldPath: "../target",
			NewBase: op.DirectoryFd(preopenFd),
			NewPath: "testlink",
		})
		assert.OK(t, err)
		link := must(Execute(ctx, e, op.ReadLink, op.ReadLinkInput{Base: op.DirectoryFd(preopenFd), Path: "testlink"}))(t)
		assert.Equal(t, link.String(), "../target")

		s := must(Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: "testlink"}))(t)
		assert.Equal(t, s.Type, wasi.SymbolicLinkType)
	})
}

func TestSymlinkAbsoluteTarget(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "target", "TARGET")

		in := op.SymlinkInput{
			OldPath: "/etc/passwd",
			NewBase: op.DirectoryFd(preopenFd),
			NewPath: "passwd",
		}
		_, err := Execute(ctx, e, op.Symlink, in)
		assert.Error(t, err, fserr.NotCapable)

		in.AllowAbsoluteOldPath = true
		_, err = Execute(ctx, e, op.Symlink, in)
		assert.OK(t, err)

		// Absolute targets are virtual paths, /etc/passwd is outside of
		// every preopened directory.
		_, err = Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: "passwd", Follow: true})
		assert.Error(t, err, fserr.NotCapable)

		_, err = Execute(ctx, e, op.Symlink, op.SymlinkInput{
			OldPath:              "/data/target",
			NewBase:              op.DirectoryFd(preopenFd),
			NewPath:              "link",
			AllowAbsoluteOldPath: true,
		})
		assert.OK(t, err)
		assert.Equal(t, readFile(t, e, "link"), "TARGET")
	})
}

func TestSymlinkEscapingPreopen(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, root := newEngine(t, fsys)
		outside := filepath.Join(filepath.Dir(root), "outside")
		assert.OK(t, os.WriteFile(outside, []byte("secret"), 0644))
		t.Cleanup(func() { os.Remove(outside) })

		_, err := Execute(ctx, e, op.Symlink, op.SymlinkInput{
			OldPath: "../outside",
			NewBase: op.DirectoryFd(preopenFd),
			NewPath: "esc",
		})
		assert.OK(t, err)

		_, err = Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: "esc", Follow: true})
		assert.Error(t, err, fserr.NotCapable)

		_, err = Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "esc", Follow: true})
		assert.Error(t, err, fserr.NotCapable)
	})
}

func TestReadLinkNotSymlink(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "")
		_, err := Execute(ctx, e, op.ReadLink, op.ReadLinkInput{Base: op.DirectoryFd(preopenFd), Path: "file"})
		assert.Error(t, err, fserr.InvalidArgument)
	})
}

func readDir(t *testing.T, e *Engine, fd op.Fd, cookie uint64) []op.DirEntry {
	t.Helper()
	dir := must(Execute(ctx, e, op.ReadDirFd, op.ReadDirFdInput{Fd: fd, Cookie: cookie}))(t)
	defer dir.Close()

	var entries []op.DirEntry
	for {
		entry, err := dir.Next()
		if err == io.EOF {
			return entries
		}
		assert.OK(t, err)
		entries = append(entries, entry)
	}
}

func TestReadDir(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, root := newEngine(t, fsys)
		dir := filepath.Join(root, "test")
		assert.OK(t, os.MkdirAll(filepath.Join(dir, "dir1", "dir12"), 0755))
		assert.OK(t, os.Mkdir(filepath.Join(dir, "dir2"), 0755))
		assert.OK(t, os.WriteFile(filepath.Join(dir, "file1"), nil, 0644))

		fd := must(Execute(ctx, e, op.Open, op.OpenInput{
			Base:  op.DirectoryFd(preopenFd),
			Path:  "test",
			Flags: op.OpenDirectory,
		}))(t)

		type entry struct {
			Name string
			Type wasi.FileType
		}
		entries := readDir(t, e, fd, 0)
		got := make([]entry, len(entries))
		for i, ent := range entries {
			got[i] = entry{ent.Name, ent.Type}
		}
		assert.Diff(t, got, []entry{
			{".", wasi.DirectoryType},
			{"..", wasi.DirectoryType},
			{"dir1", wasi.DirectoryType},
			{"dir2", wasi.DirectoryType},
			{"file1", wasi.RegularFileType},
		}, cmpopts.SortSlices(func(a, b entry) bool { return a.Name < b.Name }))

		for i := range entries {
			tail := readDir(t, e, fd, entries[i].Cookie)
			assert.Diff(t, tail, entries[i+1:], cmpopts.EquateEmpty())
		}
	})
}

func TestReadDirNotDirectory(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "")
		fd := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file"}))(t)
		_, err := Execute(ctx, e, op.ReadDirFd, op.ReadDirFdInput{Fd: fd})
		assert.Error(t, err, fserr.NotDirectory)
	})
}

func TestFdRenumber(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "a", "content of a")
		writeFile(t, e, "b", "content of b")

		fa := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "a"}))(t)
		fb := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "b"}))(t)

		_, err := Execute(ctx, e, op.Fdrenumber, op.FdrenumberInput{From: fa, To: fb})
		assert.OK(t, err)

		_, err = Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: fa})
		assert.Error(t, err, fserr.BadFileDescriptor)

		buf := make([]byte, 32)
		n := must(Execute(ctx, e, op.ReadFd, op.ReadFdInput{Fd: fb, Iovecs: [][]byte{buf}}))(t)
		assert.Equal(t, string(buf[:n]), "content of a")

		_, err = Execute(ctx, e, op.Fdrenumber, op.FdrenumberInput{From: fb, To: preopenFd})
		assert.Error(t, err, fserr.NotSupported)
		_, err = Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: preopenFd})
		assert.Error(t, err, fserr.NotSupported)
	})
}

func TestSandbox(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)

		for _, path := range []string{"..", "../etc/passwd", "a/../../b", "/etc/passwd"} {
			_, err := Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: path})
			assert.Error(t, err, fserr.NotCapable)
		}

		_, err := Execute(ctx, e, op.Stat, op.StatInput{Base: op.CurrentWorkingDirectory(), Path: "../etc"})
		assert.Error(t, err, fserr.NotCapable)
	})
}

func TestMkdir(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		base, path := at("dir")

		_, err := Execute(ctx, e, op.Mkdir, op.MkdirInput{Base: base, Path: path})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.Mkdir, op.MkdirInput{Base: base, Path: path})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.Mkdir, op.MkdirInput{Base: base, Path: path, FailIfExists: true})
		assert.Error(t, err, fserr.Exists)

		_, err = Execute(ctx, e, op.UnlinkFile, op.UnlinkFileInput{Base: base, Path: path})
		assert.True(t, err != nil)
		_, err = Execute(ctx, e, op.UnlinkDirectory, op.UnlinkDirectoryInput{Base: base, Path: path})
		assert.OK(t, err)
	})
}

func TestPrestatAndWorkingDirectory(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)

		prestat := must(Execute(ctx, e, op.PrestatFd, op.PrestatFdInput{Fd: preopenFd}))(t)
		assert.Equal(t, prestat.Path.String(), "/data")
		_, err := Execute(ctx, e, op.PrestatFd, op.PrestatFdInput{Fd: 0})
		assert.Error(t, err, fserr.BadFileDescriptor)

		cwd := must(Execute(ctx, e, op.GetCurrentWorkingDirectory, op.GetCurrentWorkingDirectoryInput{}))(t)
		assert.Equal(t, cwd.String(), "/data")

		inactive, _ := newEngine(t, fsys, WithCwd(InactiveCwd()))
		_, err = Execute(ctx, inactive, op.GetCurrentWorkingDirectory, op.GetCurrentWorkingDirectoryInput{})
		assert.Error(t, err, fserr.NotCapable)
		_, err = Execute(ctx, inactive, op.Stat, op.StatInput{Base: op.CurrentWorkingDirectory(), Path: "."})
		assert.Error(t, err, fserr.NotCapable)
	})
}

func TestCwdAt(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		root := t.TempDir()
		assert.OK(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
		assert.OK(t, os.WriteFile(filepath.Join(root, "sub", "file"), []byte("hello"), 0644))

		config := NewConfig(WithPreopen("/data", root), WithCwd(CwdAt("/data/sub/")))
		config.Platform = fsys()
		e, err := New(config)
		assert.OK(t, err)
		defer e.Close()

		s := must(Execute(ctx, e, op.Stat, op.StatInput{Base: op.CurrentWorkingDirectory(), Path: "file"}))(t)
		assert.Equal(t, s.Size, int64(5))

		config.Cwd = CwdAt("/elsewhere")
		_, err = New(config)
		assert.True(t, err != nil)
	})
}

func TestPreopenParentReference(t *testing.T) {
	config := NewConfig(WithPreopen("/data/../etc", t.TempDir()))
	config.Platform = portable.New()
	_, err := New(config)
	assert.True(t, err != nil)
}

func TestFdAttributes(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "")

		fd := must(Execute(ctx, e, op.Open, op.OpenInput{
			Base:    op.DirectoryFd(preopenFd),
			Path:    "file",
			Access:  op.ReadWrite,
			FdFlags: op.FdAppend,
		}))(t)
		attrs := must(Execute(ctx, e, op.FdAttributes, op.FdAttributesInput{Fd: fd}))(t)
		assert.Equal(t, attrs.Type, wasi.RegularFileType)
		assert.True(t, attrs.Flags.Has(op.FdAppend))

		_, err := Execute(ctx, e, op.SetFdFlags, op.SetFdFlagsInput{Fd: fd})
		assert.OK(t, err)
		attrs = must(Execute(ctx, e, op.FdAttributes, op.FdAttributesInput{Fd: fd}))(t)
		assert.Equal(t, attrs.Flags.Has(op.FdAppend), false)

		dir := must(Execute(ctx, e, op.FdAttributes, op.FdAttributesInput{Fd: preopenFd}))(t)
		assert.Equal(t, dir.Type, wasi.DirectoryType)
	})
}

func TestTruncateAndSeek(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "0123456789")

		_, err := Execute(ctx, e, op.Truncate, op.TruncateInput{Base: op.DirectoryFd(preopenFd), Path: "file", Length: 4})
		assert.OK(t, err)
		assert.Equal(t, readFile(t, e, "file"), "0123")

		fd := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file", Access: op.ReadWrite}))(t)
		offset := must(Execute(ctx, e, op.SeekFd, op.SeekFdInput{Fd: fd, Offset: -1, Whence: op.SeekEnd}))(t)
		assert.Equal(t, offset, int64(3))

		buf := make([]byte, 2)
		n := must(Execute(ctx, e, op.ReadFd, op.ReadFdInput{Fd: fd, Iovecs: [][]byte{buf}, Strategy: op.Positional, Offset: 1}))(t)
		assert.Equal(t, string(buf[:n]), "12")

		_, err = Execute(ctx, e, op.TruncateFd, op.TruncateFdInput{Fd: fd, Length: -1})
		assert.Error(t, err, fserr.InvalidArgument)
		_, err = Execute(ctx, e, op.TruncateFd, op.TruncateFdInput{Fd: preopenFd, Length: 0})
		assert.Error(t, err, fserr.PathIsDirectory)
	})
}

func TestFileMetadata(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "0123456789")
		fd := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file", Access: op.ReadWrite}))(t)

		_, err := Execute(ctx, e, op.Fallocate, op.FallocateInput{Fd: fd, Offset: 0, Length: 16})
		assert.OK(t, err)
		s := must(Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: fd}))(t)
		assert.Equal(t, s.Size, int64(16))

		_, err = Execute(ctx, e, op.Fallocate, op.FallocateInput{Fd: fd, Offset: 0, Length: 0})
		assert.Error(t, err, fserr.InvalidArgument)

		_, err = Execute(ctx, e, op.Fadvise, op.FadviseInput{Fd: fd, Length: 16, Advice: op.AdviceSequential})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.Sync, op.SyncInput{Fd: fd})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.Sync, op.SyncInput{Fd: fd, DataOnly: true})
		assert.OK(t, err)

		mtime := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
		_, err = Execute(ctx, e, op.SetTimestampFd, op.SetTimestampFdInput{Fd: fd, Mtime: op.SetTime(mtime)})
		assert.OK(t, err)
		s = must(Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: fd}))(t)
		assert.Equal(t, s.Mtime, op.MakeTimespec(mtime))

		mtime = mtime.Add(time.Hour)
		_, err = Execute(ctx, e, op.SetTimestamp, op.SetTimestampInput{
			Base:   op.DirectoryFd(preopenFd),
			Path:   "file",
			Mtime:  op.SetTime(mtime),
			Follow: true,
		})
		assert.OK(t, err)
		s = must(Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: "file", Follow: true}))(t)
		assert.Equal(t, s.Mtime, op.MakeTimespec(mtime))

		_, err = Execute(ctx, e, op.CheckAccess, op.CheckAccessInput{Base: op.DirectoryFd(preopenFd), Path: "file", Follow: true})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.CheckAccess, op.CheckAccessInput{Base: op.DirectoryFd(preopenFd), Path: "missing", Follow: true})
		assert.Error(t, err, fserr.NotFound)

		if runtime.GOOS != "windows" {
			_, err = Execute(ctx, e, op.ChmodFd, op.ChmodFdInput{Fd: fd, Mode: 0600})
			assert.OK(t, err)
			s = must(Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: fd}))(t)
			assert.Equal(t, s.Mode.Perm(), 0600)

			_, err = Execute(ctx, e, op.Chmod, op.ChmodInput{Base: op.DirectoryFd(preopenFd), Path: "file", Mode: 0640, Follow: true})
			assert.OK(t, err)
			s = must(Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: fd}))(t)
			assert.Equal(t, s.Mode.Perm(), 0640)

			_, err = Execute(ctx, e, op.ChownFd, op.ChownFdInput{Fd: fd, Uid: os.Getuid(), Gid: os.Getgid()})
			assert.OK(t, err)
			_, err = Execute(ctx, e, op.Chown, op.ChownInput{
				Base:   op.DirectoryFd(preopenFd),
				Path:   "file",
				Uid:    os.Getuid(),
				Gid:    os.Getgid(),
				Follow: true,
			})
			assert.OK(t, err)
		}
	})
}

func TestRename(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, root := newEngine(t, fsys)
		writeFile(t, e, "old", "content")
		assert.OK(t, os.Mkdir(filepath.Join(root, "dir"), 0755))

		dir := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "dir", Flags: op.OpenDirectory}))(t)
		_, err := Execute(ctx, e, op.Rename, op.RenameInput{
			OldBase: op.DirectoryFd(preopenFd),
			OldPath: "old",
			NewBase: op.DirectoryFd(dir),
			NewPath: "new",
		})
		assert.OK(t, err)
		assert.Equal(t, readFile(t, e, "dir/new"), "content")

		_, err = Execute(ctx, e, op.Rename, op.RenameInput{
			OldBase: op.DirectoryFd(dir),
			OldPath: "new",
			NewBase: op.DirectoryFd(dir),
			NewPath: "../../escaped",
		})
		assert.Error(t, err, fserr.NotCapable)
	})
}

func TestAdvisoryLocks(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		if runtime.GOOS == "darwin" && fsys().Name() == "posix" {
			t.Skip("process-associated locks do not conflict within a process")
		}
		e, _ := newEngine(t, fsys)
		writeFile(t, e, "file", "0123456789")

		open := func() op.Fd {
			return must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file", Access: op.ReadWrite}))(t)
		}
		f1, f2 := open(), open()
		lock := op.AdvisoryLock{Type: op.ExclusiveLock, Start: 0, Length: 5}

		_, err := Execute(ctx, e, op.AddAdvisoryLockFd, op.AddAdvisoryLockFdInput{Fd: f1, Lock: lock})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.AddAdvisoryLockFd, op.AddAdvisoryLockFdInput{Fd: f2, Lock: lock})
		assert.Error(t, err, fserr.Again)

		disjoint := op.AdvisoryLock{Type: op.ExclusiveLock, Start: 5, Length: 5}
		_, err = Execute(ctx, e, op.AddAdvisoryLockFd, op.AddAdvisoryLockFdInput{Fd: f2, Lock: disjoint})
		assert.OK(t, err)

		_, err = Execute(ctx, e, op.RemoveAdvisoryLockFd, op.RemoveAdvisoryLockFdInput{Fd: f1, Lock: lock})
		assert.OK(t, err)
		_, err = Execute(ctx, e, op.AddAdvisoryLockFd, op.AddAdvisoryLockFdInput{Fd: f2, Lock: lock})
		assert.OK(t, err)

		_, err = Execute(ctx, e, op.AddAdvisoryLockFd, op.AddAdvisoryLockFdInput{Fd: f1, Lock: op.AdvisoryLock{Type: op.Unlock}})
		assert.Error(t, err, fserr.InvalidArgument)
	})
}

func TestPoll(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, _ := newEngine(t, fsys)

		_, err := Execute(ctx, e, op.Poll, op.PollInput{})
		assert.Error(t, err, fserr.InvalidArgument)

		start := time.Now()
		events := must(Execute(ctx, e, op.Poll, op.PollInput{
			Subscriptions: []op.Subscription{
				{UserData: 1, Type: op.ClockEvent, Timeout: 10 * time.Millisecond},
				{UserData: 2, Type: op.ClockEvent, Timeout: time.Hour},
			},
		}))(t)
		assert.True(t, time.Since(start) >= 10*time.Millisecond)
		assert.Equal(t, len(events), 1)
		assert.Equal(t, events[0].UserData, uint64(1))

		events = must(Execute(ctx, e, op.Poll, op.PollInput{
			Subscriptions: []op.Subscription{
				{UserData: 3, Type: op.FdReadEvent, Fd: 42},
			},
		}))(t)
		assert.Equal(t, len(events), 1)
		assert.Error(t, events[0].Error, fserr.BadFileDescriptor)

		writeFile(t, e, "file", "data")
		fd := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file"}))(t)
		events = must(Execute(ctx, e, op.Poll, op.PollInput{
			Subscriptions: []op.Subscription{
				{UserData: 4, Type: op.FdReadEvent, Fd: fd},
				{UserData: 5, Type: op.ClockEvent, Timeout: time.Hour},
			},
		}))(t)
		assert.Equal(t, len(events), 1)
		assert.Equal(t, events[0].UserData, uint64(4))
	})
}

func TestCanceledContext(t *testing.T) {
	e, _ := newEngine(t, defaultPlatform)
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := Execute(canceled, e, op.StatFd, op.StatFdInput{Fd: preopenFd})
	assert.Error(t, err, fserr.Interrupted)
}

type closeHandle struct {
	platform.Handle
	err    error
	closed *int
}

func (h closeHandle) Close() error {
	*h.closed++
	return h.err
}

func TestCloseContinuesAfterFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	config := NewConfig(WithPreopen("/data", t.TempDir()), WithLogger(zap.New(core)))
	e, err := New(config)
	assert.OK(t, err)

	closed := 0
	failure := errors.New("close failure")
	for _, err := range []error{nil, failure, nil} {
		_, err := e.table.Allocate(fdtable.NewResource(fdtable.File, closeHandle{err: err, closed: &closed}))
		assert.OK(t, err)
	}

	assert.Error(t, e.Close(), failure)
	assert.Equal(t, closed, 3)
	assert.Equal(t, e.table.Len(), 0)
	assert.Equal(t, logs.Len(), 1)
	assert.Equal(t, logs.All()[0].Message, "closing file descriptor")

	assert.OK(t, e.Close())
	_, err = Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: preopenFd})
	assert.Error(t, err, fserr.BadFileDescriptor)
}

func TestErrorsReportVirtualPaths(t *testing.T) {
	runPlatforms(t, func(t *testing.T, fsys platformFunc) {
		e, root := newEngine(t, fsys)
		writeFile(t, e, "file", "content")

		checkPath := func(t *testing.T, err error, path string) {
			t.Helper()
			var fe *fserr.Error
			assert.True(t, errors.As(err, &fe))
			assert.Equal(t, fe.Path, path)
			assert.True(t, !strings.Contains(err.Error(), root))
		}

		_, err := Execute(ctx, e, op.Stat, op.StatInput{Base: op.DirectoryFd(preopenFd), Path: "missing"})
		assert.Error(t, err, fserr.NotFound)
		checkPath(t, err, "/data/missing")

		_, err = Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "sub/missing"})
		assert.Error(t, err, fserr.NotFound)
		checkPath(t, err, "/data/sub/missing")

		fd := must(Execute(ctx, e, op.Open, op.OpenInput{Base: op.DirectoryFd(preopenFd), Path: "file", Access: op.ReadOnly}))(t)
		_, err = Execute(ctx, e, op.WriteFd, op.WriteFdInput{Fd: fd, Iovecs: [][]byte{[]byte("x")}})
		assert.True(t, err != nil)
		checkPath(t, err, "/data/file")
	})
}

func TestNarrowErrorKinds(t *testing.T) {
	e, _ := newEngine(t, defaultPlatform)
	// Interceptors may return any kind, the engine narrows them to the set
	// declared by the operation.
	deny := func(ctx context.Context, call chain.Call, next chain.Next) (any, error) {
		return nil, fserr.NoLocks
	}
	e.handler = chain.Chain{deny}.Then(e.dispatch)

	_, err := Execute(ctx, e, op.StatFd, op.StatFdInput{Fd: preopenFd})
	assert.Error(t, err, fserr.IoError)
	assert.Equal(t, fserr.KindOf(err), fserr.IoError)
}
