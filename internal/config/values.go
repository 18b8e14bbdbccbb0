package config

import (
	"encoding"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Nullable is a value that may be absent from the configuration file.
type Nullable[T any] struct {
	value T
	exist bool
}

func NullableValue[T any](v T) Nullable[T] {
	return Nullable[T]{value: v, exist: true}
}

func (v Nullable[T]) Value() (T, bool) {
	return v.value, v.exist
}

// IsZero reports whether the value is absent, for omitempty.
func (v Nullable[T]) IsZero() bool {
	return !v.exist
}

func (v Nullable[T]) MarshalJSON() ([]byte, error) {
	if !v.exist {
		return []byte("null"), nil
	}
	return json.Marshal(v.value)
}

func (v *Nullable[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		v.exist = false
		return nil
	} else if err := json.Unmarshal(b, &v.value); err != nil {
		v.exist = false
		return err
	} else {
		v.exist = true
		return nil
	}
}

func (v Nullable[T]) MarshalYAML() (any, error) {
	if !v.exist {
		return nil, nil
	}
	return v.value, nil
}

func (v *Nullable[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && (node.Value == "" || node.Value == "~" || node.Value == "null") {
		v.exist = false
		return nil
	} else if err := node.Decode(&v.value); err != nil {
		v.exist = false
		return err
	} else {
		v.exist = true
		return nil
	}
}

// Path is a path on the host file system.
//
// The prefix "~/" is expanded to the home directory of the user that the
// program is running as.
type Path string

func (p Path) String() string {
	return string(p)
}

// Resolve returns the path with the home directory prefix expanded.
func (p Path) Resolve() (string, error) {
	s := string(p)
	if s != "~" && !strings.HasPrefix(s, "~/") {
		return s, nil
	}
	home, ok := os.LookupEnv("HOME")
	if !ok {
		u, err := user.Current()
		if err != nil {
			return "", err
		}
		home = u.HomeDir
	}
	return filepath.Join(home, strings.TrimPrefix(s[1:], "/")), nil
}

func (p *Path) Set(s string) error {
	*p = Path(s)
	return nil
}

func (p *Path) UnmarshalText(b []byte) error {
	return p.Set(string(b))
}

// Rate is a number of operations per second.
//
// The type parses values like:
//
//	200/s
//	1 / minute
//	0.5/ms
//	10
//
// A rate with no unit is per second.
type Rate float64

func ParseRate(s string) (Rate, error) {
	text, unit, _ := strings.Cut(s, "/")
	text = strings.TrimFunc(text, unicode.IsSpace)
	unit = strings.TrimFunc(unit, unicode.IsSpace)

	n, err := strconv.ParseFloat(text, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed rate representation: %q", s)
	}

	var per time.Duration
	switch unit {
	case "", "s", "sec", "second":
		per = time.Second
	case "ms", "millisecond":
		per = time.Millisecond
	case "us", "µs", "microsecond":
		per = time.Microsecond
	case "m", "min", "minute":
		per = time.Minute
	case "h", "hour":
		per = time.Hour
	default:
		return 0, fmt.Errorf("malformed unit representation: %q", s)
	}
	return Rate(n * float64(time.Second) / float64(per)), nil
}

func (r Rate) String() string {
	return strconv.FormatFloat(float64(r), 'f', -1, 64) + "/s"
}

func (r *Rate) Set(s string) error {
	p, err := ParseRate(s)
	if err != nil {
		return err
	}
	*r = p
	return nil
}

func (r Rate) MarshalYAML() (any, error) {
	return r.String(), nil
}

func (r *Rate) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return r.Set(s)
}

// Cwd is the working directory setting: "default", "inactive" or an
// absolute virtual path.
type Cwd string

const (
	DefaultCwd  Cwd = "default"
	InactiveCwd Cwd = "inactive"
)

func (c Cwd) String() string {
	if c == "" {
		return string(DefaultCwd)
	}
	return string(c)
}

func (c *Cwd) Set(s string) error {
	switch s = strings.TrimSpace(s); {
	case s == "", s == string(DefaultCwd), s == string(InactiveCwd), strings.HasPrefix(s, "/"):
		*c = Cwd(s)
		return nil
	default:
		return fmt.Errorf("invalid working directory: %q (not default, inactive or an absolute path)", s)
	}
}

func (c *Cwd) UnmarshalText(b []byte) error {
	return c.Set(string(b))
}

var (
	_ encoding.TextUnmarshaler = (*Path)(nil)
	_ encoding.TextUnmarshaler = (*Cwd)(nil)
	_ flag.Value               = (*Path)(nil)
	_ flag.Value               = (*Rate)(nil)
	_ flag.Value               = (*Cwd)(nil)
	_ yaml.Marshaler           = Rate(0)
	_ yaml.Unmarshaler         = (*Rate)(nil)
)
