// Package vfs is the engine executing file system operations on behalf of a
// WebAssembly guest.
//
// The engine owns the descriptor table, resolves guest paths against the
// preopened directories, passes each operation through the configured
// interceptors and executes it against the platform adapter of the host.
//
//	e, err := vfs.New(vfs.NewConfig(vfs.WithPreopen("/data", "/srv/data")))
//	if err != nil {
//		...
//	}
//	defer e.Close()
//
//	fd, err := vfs.Execute(ctx, e, op.Open, op.OpenInput{
//		Base: op.CurrentWorkingDirectory(),
//		Path: "hello.txt",
//	})
package vfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/stealthrocket/wasi-go"
	"go.uber.org/zap"

	"github.com/stealthrocket/wasivfs/internal/fdtable"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/resolve"
	"github.com/stealthrocket/wasivfs/pkg/vfs/chain"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// Engine executes file system operations. Engines are safe for concurrent
// use.
type Engine struct {
	fsys     platform.FileSystem
	table    *fdtable.Table
	resolver *resolve.Resolver
	handler  chain.Handler
	logger   *zap.Logger
	devnull  []*os.File
	closed   atomic.Bool
}

// New constructs an engine, opening the standard I/O streams and preopened
// directories of the configuration.
func New(config Config) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		fsys:   config.Platform,
		table:  fdtable.New(config.MaxFileDescriptors),
		logger: config.Logger,
	}
	if e.fsys == nil {
		e.fsys = defaultPlatform()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.resolver = &resolve.Resolver{
		Table:           e.table,
		AllowRootAccess: config.AllowRootAccess,
	}
	e.handler = chain.Chain(config.Interceptors).Then(e.dispatch)

	if err := e.init(&config); err != nil {
		e.Close()
		return nil, err
	}
	e.logger.Info("file system engine created",
		zap.String("platform", e.fsys.Name()),
		zap.Int("preopens", len(e.resolver.Preopens)),
		zap.Stringer("cwd", config.Cwd),
	)
	return e, nil
}

func (e *Engine) init(config *Config) error {
	for i, f := range []*os.File{config.Stdin, config.Stdout, config.Stderr} {
		if err := e.reserveStdio(i, f); err != nil {
			return err
		}
	}

	for _, p := range config.Preopens {
		if err := e.reservePreopen(p); err != nil {
			return err
		}
	}

	switch config.Cwd.mode {
	case cwdDefault:
		if len(e.resolver.Preopens) > 0 {
			e.resolver.Cwd = e.resolver.Preopens[0].Path
		}
	case cwdPath:
		cwd, err := vpath.New(config.Cwd.path)
		if err != nil {
			return fmt.Errorf("invalid working directory: %w", err)
		}
		if !cwd.IsAbs() {
			return fmt.Errorf("invalid working directory %q: path must be absolute", cwd)
		}
		e.resolver.Cwd = cwd
		loc, err := e.resolver.Locate(op.CurrentWorkingDirectory(), ".")
		if err != nil {
			return fmt.Errorf("invalid working directory %q: %w", cwd, err)
		}
		e.resolver.Cwd = loc.Path
	}
	return nil
}

func (e *Engine) reserveStdio(fd int, f *os.File) error {
	if f == nil {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		e.devnull = append(e.devnull, null)
		f = null
	}
	h, err := e.fsys.Stdio(fd, f)
	if err != nil {
		return err
	}
	res := fdtable.NewResource(fdtable.Channel, h)
	if path, err := vpath.New(f.Name()); err == nil {
		res.Path = path
	}
	res.Type = wasi.CharacterDeviceType
	if s, err := h.Stat(); err == nil {
		res.Type = s.Type
	}
	res.Rights = wasi.FileRights
	if res.Type == wasi.CharacterDeviceType {
		res.Rights = wasi.TTYRights
	}
	if _, err := e.table.Reserve(res); err != nil {
		res.Close()
		return err
	}
	return nil
}

func (e *Engine) reservePreopen(p Preopen) error {
	virtual := p.Virtual
	if virtual[0] != '/' {
		virtual = "/" + virtual
	}
	path, err := vpath.New(virtual)
	if err != nil {
		return fmt.Errorf("invalid preopen %q: %w", p.Virtual, err)
	}
	for _, elem := range path.Segments() {
		if elem == ".." {
			return fmt.Errorf("invalid preopen %q: parent directory references are not allowed", p.Virtual)
		}
	}
	h, err := e.fsys.OpenPreopen(platform.RealPath(p.Real))
	if err != nil {
		return fmt.Errorf("invalid preopen %q: %w", p.Virtual, err)
	}
	res := fdtable.NewResource(fdtable.Preopen, h)
	res.Path = path.Clean()
	res.Root = res
	res.Type = wasi.DirectoryType
	res.Rights = wasi.DirectoryRights
	res.InheritingRights = wasi.DirectoryRights | wasi.FileRights
	if _, err := e.table.Reserve(res); err != nil {
		res.Close()
		return err
	}
	e.resolver.Preopens = append(e.resolver.Preopens, res)
	return nil
}

// Close closes every descriptor of the engine. Failures to close individual
// descriptors are logged and do not prevent closing the others; they are
// returned once all descriptors were closed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.table.CloseAll(func(fd op.Fd, res *fdtable.Resource, err error) {
		e.logger.Warn("closing file descriptor",
			zap.Stringer("fd", fd),
			zap.Stringer("resource", res),
			zap.Error(err),
		)
	})
	for _, f := range e.devnull {
		f.Close()
	}
	e.devnull = nil
	return err
}

// Execute executes the operation o with the input in.
//
// The error is always nil or a *fserr.Error whose kind is one of the kinds
// declared by the operation.
func Execute[I, R any](ctx context.Context, e *Engine, o op.Operation[I, R], in I) (R, error) {
	out, err := e.handler(ctx, chain.Call{Op: o, Input: in})
	if err != nil {
		var zero R
		return zero, fserr.Narrow(o.Name(), "", o.Kinds(), err)
	}
	if out == nil {
		var zero R
		return zero, nil
	}
	return out.(R), nil
}

type handler func(e *Engine, ctx context.Context, in any) (any, error)

var handlers = map[string]handler{}

func register[I, R any](o op.Operation[I, R], fn func(*Engine, context.Context, I) (R, error)) {
	handlers[o.Name()] = func(e *Engine, ctx context.Context, in any) (any, error) {
		return fn(e, ctx, in.(I))
	}
}

var errEngineClosed = errors.New("engine closed")

func (e *Engine) dispatch(ctx context.Context, call chain.Call) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fserr.New(call.Op.Name(), "", fserr.Interrupted, err)
	}
	if e.closed.Load() {
		return nil, fserr.New(call.Op.Name(), "", fserr.BadFileDescriptor, errEngineClosed)
	}
	h, ok := handlers[call.Op.Name()]
	if !ok {
		return nil, fserr.New(call.Op.Name(), "", fserr.NotSupported, nil)
	}
	return h(e, ctx, call.Input)
}
