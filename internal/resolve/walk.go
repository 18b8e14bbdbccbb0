package resolve

import (
	"errors"

	"github.com/stealthrocket/wasivfs/internal/fspath"
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var searchOptions = platform.OpenOptions{
	Flags:    op.OpenDirectory,
	Search:   true,
	NoFollow: true,
}

// walker opens the intermediate directories of a path one component at a
// time. The position of the current directory below the preopened root is
// tracked in elems; parent references never go above the root.
type walker struct {
	r          *Resolver
	loc        *Location
	root       platform.Handle
	dir        platform.Handle
	owned      bool
	elems      []string
	name       string
	links      int
	dirRequest bool
}

func (w *walker) walk(path []string, follow bool) error {
	// A trailing slash requires a directory, which resolves links.
	follow = follow || w.dirRequest

	for len(path) > 0 {
		elem := path[0]
		path = path[1:]

		switch elem {
		case ".":
			continue
		case "..":
			if len(w.elems) == 0 {
				if !w.r.AllowRootAccess {
					return fserr.New("resolve", w.loc.Path.String(), fserr.NotCapable, nil)
				}
				continue
			}
			d, err := w.dir.OpenAt("..", searchOptions)
			if err != nil {
				return err
			}
			w.setDir(d, true)
			w.elems = w.elems[:len(w.elems)-1]
			continue
		}

		if len(path) == 0 {
			if follow {
				// Any error means that the entry is not a symbolic link or
				// that it does not exist; the operation reports it.
				if link, err := w.dir.ReadlinkAt(elem); err == nil {
					if path, err = w.follow(link); err != nil {
						return err
					}
					continue
				}
			}
			w.name = elem
			break
		}

		d, err := w.dir.OpenAt(elem, searchOptions)
		if err != nil {
			if !errors.Is(err, fserr.NotDirectory) && !errors.Is(err, fserr.Loop) {
				return err
			}
			link, lerr := w.dir.ReadlinkAt(elem)
			if lerr != nil {
				// Not a link: either a file, or the entry was replaced
				// concurrently.
				return err
			}
			next, err := w.follow(link)
			if err != nil {
				return err
			}
			path = append(next, path...)
			continue
		}
		w.setDir(d, true)
		w.elems = append(w.elems, elem)
	}

	elems := append([]string(nil), w.elems...)
	if w.name == "" {
		w.name = "."
	} else {
		elems = append(elems, w.name)
		if w.dirRequest {
			w.name += "/"
		}
	}
	w.loc.update(elems)
	return nil
}

// follow expands the symbolic link target. An absolute target is a virtual
// path: it restarts at the root when it lies below the same preopened
// directory as the location, and is not capable otherwise.
func (w *walker) follow(link string) ([]string, error) {
	if w.links == platform.MaxFollowSymlink {
		return nil, fserr.New("resolve", w.loc.Path.String(), fserr.Loop, nil)
	}
	w.links++
	if link == "" {
		return nil, fserr.New("resolve", w.loc.Path.String(), fserr.NotFound, nil)
	}
	if !fspath.IsAbs(link) {
		return split(link), nil
	}
	elems, _ := fspath.Resolve(link)
	root, n := w.r.match(elems)
	if root != w.loc.Root {
		return nil, fserr.New("resolve", w.loc.Path.String(), fserr.NotCapable, nil)
	}
	w.setDir(w.root, false)
	w.elems = w.elems[:0]
	return elems[n:], nil
}

func (w *walker) setDir(dir platform.Handle, owned bool) {
	if w.owned {
		w.dir.Close()
	}
	w.dir, w.owned = dir, owned
}

func (w *walker) close() {
	if w.owned {
		w.dir.Close()
		w.owned = false
	}
}

func split(path string) (elems []string) {
	for path = fspath.TrimLeadingSlash(path); path != ""; path = fspath.TrimLeadingSlash(path) {
		var elem string
		elem, path = fspath.Walk(path)
		elems = append(elems, elem)
	}
	return elems
}
