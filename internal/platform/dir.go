package platform

import (
	"io"

	"github.com/stealthrocket/wasi-go"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// IndexedDir is a directory listing that synthesizes cookies from the
// position of entries in the listing, for hosts that do not expose a
// seekable directory cursor.
//
// The cookie of an entry is its index plus one. Resuming from a cookie
// restarts the listing from the beginning and skips the entries that were
// already returned, so the resumed tail is only reliable if the directory is
// not modified concurrently.
type IndexedDir struct {
	// Self and Parent are reported as the "." and ".." entries.
	Self   op.DirEntry
	Parent op.DirEntry
	// Read returns the next entry of the native listing, or io.EOF. The
	// native listing must not include "." and "..".
	Read func() (op.DirEntry, error)
	// Release is called by Close.
	Release func() error

	index  uint64
	cookie uint64
	done   bool
}

// NewIndexedDir constructs an IndexedDir resuming at cookie.
func NewIndexedDir(self, parent op.DirEntry, cookie uint64, read func() (op.DirEntry, error), release func() error) *IndexedDir {
	self.Name, self.Type = ".", wasi.DirectoryType
	parent.Name, parent.Type = "..", wasi.DirectoryType
	return &IndexedDir{
		Self:    self,
		Parent:  parent,
		Read:    read,
		Release: release,
		cookie:  cookie,
	}
}

func (d *IndexedDir) Next() (op.DirEntry, error) {
	for {
		if d.done {
			return op.DirEntry{}, io.EOF
		}
		var entry op.DirEntry
		switch d.index {
		case 0:
			entry = d.Self
		case 1:
			entry = d.Parent
		default:
			e, err := d.Read()
			if err != nil {
				if err == io.EOF {
					d.done = true
				}
				return op.DirEntry{}, err
			}
			entry = e
		}
		d.index++
		entry.Cookie = d.index
		if d.index > d.cookie {
			return entry, nil
		}
	}
}

func (d *IndexedDir) Close() error {
	d.done = true
	if release := d.Release; release != nil {
		d.Release = nil
		return release()
	}
	return nil
}
