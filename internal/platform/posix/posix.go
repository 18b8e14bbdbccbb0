//go:build linux || darwin

// Package posix is the platform adapter for Linux and Darwin, built on the
// *at family of system calls so that every path is resolved relative to an
// open directory descriptor.
package posix

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// FileSystem is the POSIX adapter.
type FileSystem struct{}

// New returns the POSIX adapter.
func New() *FileSystem { return new(FileSystem) }

func (*FileSystem) Name() string { return "posix" }

func (*FileSystem) PathConverter() platform.PathConverter { return pathConverter{} }

func (*FileSystem) OpenPreopen(root platform.RealPath) (platform.Handle, error) {
	fd, err := openat(unix.AT_FDCWD, string(root), unix.O_DIRECTORY|unix.O_RDONLY, 0)
	if err != nil {
		return nil, makeError("open", string(root), err)
	}
	return &file{fd: fd, name: string(root)}, nil
}

func (*FileSystem) Stdio(fd int, f *os.File) (platform.Handle, error) {
	newfd, err := dup(int(f.Fd()))
	if err != nil {
		return nil, makeError("dup", f.Name(), err)
	}
	return &file{fd: newfd, name: f.Name()}, nil
}

// pollSlice bounds each call to poll(2) so that context cancellation is
// observed while waiting forever.
const pollSlice = 100 * time.Millisecond

func (*FileSystem) Poll(ctx context.Context, reqs []platform.PollRequest, timeout time.Duration) (int, error) {
	pollfds := make([]unix.PollFd, len(reqs))
	for i, req := range reqs {
		f, ok := req.Handle.(*file)
		if !ok {
			return 0, fserr.New("poll", "", fserr.BadFileDescriptor, nil)
		}
		pollfds[i] = unix.PollFd{Fd: int32(f.fd), Events: unix.POLLIN}
		if req.Write {
			pollfds[i].Events = unix.POLLOUT
		}
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		wait := pollSlice
		if !deadline.IsZero() {
			if remain := time.Until(deadline); remain < wait {
				wait = remain
			}
			if wait < 0 {
				wait = 0
			}
		}
		if ctx.Done() == nil && deadline.IsZero() {
			wait = -1
		}

		timeoutMillis := -1
		if wait >= 0 {
			timeoutMillis = int(wait.Round(time.Millisecond).Milliseconds())
		}

		n, err := unix.Poll(pollfds, timeoutMillis)
		if err != nil {
			return 0, makeError("poll", "", err)
		}
		if n > 0 {
			ready := 0
			for i := range pollfds {
				revents := pollfds[i].Revents
				if revents == 0 {
					continue
				}
				reqs[i].Ready = true
				if revents&unix.POLLNVAL != 0 {
					reqs[i].Error = fserr.New("poll", "", fserr.BadFileDescriptor, nil)
				}
				ready++
			}
			return ready, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, fserr.New("poll", "", fserr.Interrupted, err)
		}
	}
}

type pathConverter struct{}

func (pathConverter) ToReal(p vpath.VirtualPath) (platform.RealPath, error) {
	if p.IsZero() {
		return "", fserr.New("path", "", fserr.EmptyPath, nil)
	}
	return platform.RealPath(p.String()), nil
}

func (pathConverter) ToVirtual(p platform.RealPath) (vpath.VirtualPath, error) {
	return vpath.New(string(p))
}
