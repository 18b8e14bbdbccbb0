// Package resolve maps guest paths onto the handles of the platform adapter
// while enforcing the sandbox boundary of preopened directories.
//
// Resolution happens in two phases. The lexical phase validates the path,
// looks up the base directory and resolves parent references; it decides
// which resource anchors the path, and rejects paths escaping their preopened
// directory before any native call is made. The walk phase opens every
// intermediate directory relative to the anchor without following symbolic
// links natively, expanding links manually so that their targets are also
// confined to the preopened directory.
package resolve

import (
	"strings"

	"github.com/stealthrocket/wasivfs/internal/fdtable"
	"github.com/stealthrocket/wasivfs/internal/fspath"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

// Resolver resolves paths relative to base directories.
type Resolver struct {
	Table *fdtable.Table
	// Preopens are the resources of the preopened directories. Absolute
	// paths are matched against the longest virtual root.
	Preopens []*fdtable.Resource
	// Cwd is the absolute virtual path of the current working directory, the
	// zero value when the working directory is inactive.
	Cwd vpath.VirtualPath
	// AllowRootAccess lifts the restrictions on absolute paths relative to a
	// directory descriptor, and clamps parent references at the root of the
	// preopened directory instead of failing with NotCapable.
	AllowRootAccess bool
}

// Location is a path after the lexical phase, then the walk phase.
type Location struct {
	// Path is the absolute virtual path of the location.
	Path vpath.VirtualPath
	// Root is the preopened directory the location is below.
	Root *fdtable.Resource
	// Rel is the cleaned path of the location relative to Root.
	Rel string

	anchor     *fdtable.Resource
	base       []string
	residual   []string
	dirRequest bool
}

// Func is called with the directory containing the last component of a
// resolved path and the name of that component. The name is "." when the
// path designates the directory itself, and it keeps a trailing slash when
// the path was a directory request.
type Func func(dir platform.Handle, name string, loc *Location) error

// Locate runs the lexical phase of the resolution of path relative to base.
func (r *Resolver) Locate(base op.BaseDirectory, path string) (*Location, error) {
	p, err := vpath.New(path)
	if err != nil {
		return nil, err
	}

	fd, ok := base.Fd()
	if !ok {
		if r.Cwd.IsZero() {
			return nil, fserr.New("resolve", path, fserr.NotCapable, nil)
		}
		if !p.IsAbs() {
			p = r.Cwd.Join(path)
		}
		return r.locateAbs(p, path)
	}

	res, err := r.Table.Get(fd)
	if err != nil {
		return nil, fserr.New("resolve", path, fserr.KindOf(err), nil)
	}
	if !res.Kind().IsDirectory() {
		return nil, fserr.New("resolve", path, fserr.NotDirectory, nil)
	}
	if p.IsAbs() {
		if !r.AllowRootAccess {
			return nil, fserr.New("resolve", path, fserr.NotCapable, nil)
		}
		return r.locateAbs(p, path)
	}

	root := res.Root
	baseElems, _ := fspath.Resolve(res.Rel)
	elems, escape := fspath.Resolve(path)
	loc := &Location{Root: root, dirRequest: p.IsDirectoryRequest()}
	if escape == 0 {
		loc.anchor = res
		loc.base = baseElems
		loc.residual = elems
	} else {
		elems, escape = fspath.Resolve(fspath.Join(res.Rel, path))
		if escape != 0 && !r.AllowRootAccess {
			return nil, fserr.New("resolve", path, fserr.NotCapable, nil)
		}
		loc.anchor = root
		loc.residual = elems
	}
	loc.update(append(loc.base[:len(loc.base):len(loc.base)], loc.residual...))
	return loc, nil
}

func (r *Resolver) locateAbs(p vpath.VirtualPath, path string) (*Location, error) {
	elems, _ := fspath.Resolve(p.String())
	root, rootLen := r.match(elems)
	if root == nil {
		return nil, fserr.New("resolve", path, fserr.NotCapable, nil)
	}

	loc := &Location{
		Root:       root,
		anchor:     root,
		residual:   elems[rootLen:],
		dirRequest: p.IsDirectoryRequest(),
	}
	loc.update(loc.residual)
	return loc, nil
}

// match returns the preopened directory with the longest virtual path prefixing
// elems, and the length of that prefix.
func (r *Resolver) match(elems []string) (root *fdtable.Resource, n int) {
	for _, preopen := range r.Preopens {
		prefix := preopen.Path.Segments()
		if len(prefix) > len(elems) || (root != nil && len(prefix) <= n) {
			continue
		}
		if hasPrefix(elems, prefix) {
			root, n = preopen, len(prefix)
		}
	}
	return root, n
}

func hasPrefix(elems, prefix []string) bool {
	for i := range prefix {
		if elems[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (loc *Location) update(elems []string) {
	loc.Rel = strings.Join(elems, "/")
	loc.Path = loc.Root.Path.Join(loc.Rel)
}

// Resolve resolves path relative to base and calls fn with the directory
// holding the last component. When follow is true, a symbolic link in the
// last component is expanded. Errors report the virtual path of the location.
//
// The anchor resource is locked for the duration of the call to fn.
func (r *Resolver) Resolve(base op.BaseDirectory, path string, follow bool, fn Func) error {
	loc, err := r.Locate(base, path)
	if err != nil {
		return err
	}
	err = loc.anchor.Use(func(h platform.Handle) error {
		w := r.walker(loc, h)
		defer w.close()
		if err := w.walk(loc.residual, follow); err != nil {
			return err
		}
		return fn(w.dir, w.name, loc)
	})
	return fserr.WithPath(err, loc.Path.String())
}

// Resolve2 resolves two paths, locking both anchors, for operations like
// rename which act on two directories at once.
func (r *Resolver) Resolve2(oldBase op.BaseDirectory, oldPath string, newBase op.BaseDirectory, newPath string, follow bool, fn func(oldDir platform.Handle, oldName string, newDir platform.Handle, newName string) error) error {
	oldLoc, err := r.Locate(oldBase, oldPath)
	if err != nil {
		return err
	}
	newLoc, err := r.Locate(newBase, newPath)
	if err != nil {
		return err
	}
	err = fdtable.Use2(oldLoc.anchor, newLoc.anchor, func(h1, h2 platform.Handle) error {
		w1 := r.walker(oldLoc, h1)
		defer w1.close()
		if err := w1.walk(oldLoc.residual, follow); err != nil {
			return err
		}
		w2 := r.walker(newLoc, h2)
		defer w2.close()
		if err := w2.walk(newLoc.residual, false); err != nil {
			return err
		}
		return fn(w1.dir, w1.name, w2.dir, w2.name)
	})
	return fserr.WithPath(err, oldLoc.Path.String())
}

func (r *Resolver) walker(loc *Location, anchor platform.Handle) *walker {
	w := &walker{
		r:          r,
		loc:        loc,
		root:       loc.Root.Handle(),
		dir:        anchor,
		dirRequest: loc.dirRequest,
	}
	w.elems = append(w.elems, loc.base...)
	return w
}
