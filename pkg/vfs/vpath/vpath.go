// Package vpath implements the guest-visible path model.
//
// A VirtualPath is independent of the host operating system: it always uses
// forward slashes, never contains a NUL byte and is valid UTF-8.
package vpath

import (
	"strings"
	"unicode/utf8"

	"github.com/stealthrocket/wasivfs/internal/fspath"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
)

// VirtualPath is a validated guest path. The zero value is not a valid path;
// use New or FromBytes to construct values.
type VirtualPath struct{ path string }

// Root is the virtual root "/".
var Root = VirtualPath{"/"}

// New validates p and returns it as a VirtualPath.
func New(p string) (VirtualPath, error) {
	if err := Validate(p); err != nil {
		return VirtualPath{}, err
	}
	return VirtualPath{p}, nil
}

// MustNew is like New but panics if p is invalid.
func MustNew(p string) VirtualPath {
	v, err := New(p)
	if err != nil {
		panic(err)
	}
	return v
}

// FromBytes validates a path read from guest memory.
func FromBytes(b []byte) (VirtualPath, error) {
	return New(string(b))
}

// Validate reports whether p is acceptable as a virtual path.
func Validate(p string) error {
	switch {
	case p == "":
		return fserr.New("path", p, fserr.EmptyPath, nil)
	case strings.IndexByte(p, 0) >= 0:
		return fserr.New("path", p, fserr.InvalidPathFormat, nil)
	case !utf8.ValidString(p):
		return fserr.New("path", p, fserr.InvalidPathFormat, nil)
	}
	return nil
}

func (p VirtualPath) String() string { return p.path }

// IsZero reports whether p is the zero value.
func (p VirtualPath) IsZero() bool { return p.path == "" }

func (p VirtualPath) IsAbs() bool { return fspath.IsAbs(p.path) }

// IsDirectoryRequest reports whether the path ends with a slash, which
// requires the last component to be a directory.
func (p VirtualPath) IsDirectoryRequest() bool { return fspath.HasTrailingSlash(p.path) }

// Join appends name to p. An absolute name is appended as if it was relative.
func (p VirtualPath) Join(name string) VirtualPath {
	return VirtualPath{fspath.Join(p.path, name)}
}

// Clean returns the lexically cleaned form of p. Parent references are kept
// since resolving them requires knowing where the path is anchored.
func (p VirtualPath) Clean() VirtualPath {
	return VirtualPath{fspath.Clean(p.path)}
}

// Segments returns the path components with "." elements removed.
func (p VirtualPath) Segments() []string {
	var elems []string
	for name := fspath.TrimLeadingSlash(p.path); name != ""; name = fspath.TrimLeadingSlash(name) {
		var elem string
		elem, name = fspath.Walk(name)
		if elem != "." {
			elems = append(elems, elem)
		}
	}
	return elems
}

func (p VirtualPath) Equal(other VirtualPath) bool { return p.path == other.path }
