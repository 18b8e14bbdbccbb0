package windows

import (
	"strings"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/vpath"
)

const (
	// Win32 file namespace prefix, which disables the normalization of
	// paths and lifts the MAX_PATH limit.
	win32Prefix = `\\?\`
	// NT object manager prefix, reported by some native APIs.
	ntPrefix = `\??\`
	uncPrefix = `UNC\`
)

// PathConverter translates virtual paths to Windows paths. Absolute virtual
// paths starting with a drive letter, like /C:/Users, are converted to NT
// paths like \\?\C:\Users; other paths only have their separators replaced.
//
// Virtual paths containing a backslash have no Windows equivalent and are
// rejected.
type PathConverter struct{}

func (PathConverter) ToReal(p vpath.VirtualPath) (platform.RealPath, error) {
	s := p.String()
	if s == "" {
		return "", fserr.New("path", s, fserr.EmptyPath, nil)
	}
	if strings.IndexByte(s, '\\') >= 0 {
		return "", fserr.New("path", s, fserr.InvalidPathFormat, nil)
	}
	if drive, rest, ok := cutDrive(s); ok {
		return platform.RealPath(win32Prefix + drive + toBackslash(rest)), nil
	}
	if strings.HasPrefix(s, "//") {
		return platform.RealPath(win32Prefix + uncPrefix + toBackslash(s[2:])), nil
	}
	return platform.RealPath(toBackslash(s)), nil
}

func (PathConverter) ToVirtual(p platform.RealPath) (vpath.VirtualPath, error) {
	s := string(p)
	switch {
	case strings.HasPrefix(s, win32Prefix):
		s = s[len(win32Prefix):]
	case strings.HasPrefix(s, ntPrefix):
		s = s[len(ntPrefix):]
	default:
		if isDrive(s) {
			return vpath.New("/" + toSlash(s))
		}
		return vpath.New(toSlash(s))
	}
	if strings.HasPrefix(s, uncPrefix) {
		return vpath.New("//" + toSlash(s[len(uncPrefix):]))
	}
	if isDrive(s) {
		return vpath.New("/" + toSlash(s))
	}
	return vpath.New(toSlash(s))
}

// cutDrive splits /C:/rest into C: and /rest.
func cutDrive(s string) (drive, rest string, ok bool) {
	if len(s) < 3 || s[0] != '/' || !isDrive(s[1:]) {
		return "", "", false
	}
	return s[1:3], s[3:], true
}

func isDrive(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	if len(s) > 2 && s[2] != '/' && s[2] != '\\' {
		return false
	}
	c := s[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func toBackslash(s string) string { return strings.ReplaceAll(s, "/", `\`) }

func toSlash(s string) string { return strings.ReplaceAll(s, `\`, "/") }
