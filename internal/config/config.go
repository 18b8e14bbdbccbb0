// Package config loads the YAML configuration of a file system engine.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/wasivfs/pkg/vfs"
	"github.com/stealthrocket/wasivfs/pkg/vfs/chain"
)

const DefaultPath Path = "~/.wasivfs/config.yaml"

// File is the content of a configuration file.
type File struct {
	Preopens           []Preopen           `json:"preopens,omitempty" yaml:"preopens,omitempty"`
	Cwd                Cwd                 `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	AllowRootAccess    bool                `json:"allow-root-access" yaml:"allow-root-access"`
	MaxFileDescriptors Nullable[int]       `json:"max-file-descriptors,omitempty" yaml:"max-file-descriptors,omitempty"`
	GlobalLock         bool                `json:"global-lock" yaml:"global-lock"`
	RateLimit          Nullable[RateLimit] `json:"rate-limit,omitempty" yaml:"rate-limit,omitempty"`
	LogOperations      bool                `json:"log-operations" yaml:"log-operations"`
	TraceOperations    bool                `json:"trace-operations" yaml:"trace-operations"`
}

type Preopen struct {
	Virtual string `json:"virtual" yaml:"virtual"`
	Real    Path   `json:"real" yaml:"real"`
}

// RateLimit bounds the rate of operations, poll excluded.
type RateLimit struct {
	Rate  Rate `json:"rate" yaml:"rate"`
	Burst int  `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// Default returns the default configuration.
func Default() *File {
	return &File{
		Cwd:        DefaultCwd,
		GlobalLock: true,
	}
}

// Open opens the configuration file at path. When the file does not exist,
// the returned reader yields the default configuration.
func Open(path Path) (io.ReadCloser, string, error) {
	p, err := path.Resolve()
	if err != nil {
		return nil, p, err
	}
	f, err := os.Open(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, p, err
		}
		b, _ := yaml.Marshal(Default())
		return io.NopCloser(bytes.NewReader(b)), p, nil
	}
	return f, p, nil
}

// Load opens and reads the configuration file at path.
func Load(path Path) (*File, error) {
	r, p, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	c, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return c, nil
}

// Read reads and parses a configuration. Unknown fields are rejected.
func Read(r io.Reader) (*File, error) {
	c := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *File) validate() error {
	for i, p := range c.Preopens {
		if p.Virtual == "" || p.Real == "" {
			return fmt.Errorf("preopens[%d]: virtual and real paths are required", i)
		}
	}
	if err := new(Cwd).Set(string(c.Cwd)); err != nil {
		return err
	}
	if n, ok := c.MaxFileDescriptors.Value(); ok && n <= 0 {
		return fmt.Errorf("max-file-descriptors: must be positive, got %d", n)
	}
	if r, ok := c.RateLimit.Value(); ok && r.Burst < 0 {
		return fmt.Errorf("rate-limit: negative burst %d", r.Burst)
	}
	return nil
}

// EngineConfig returns the engine configuration described by the file.
//
// Interceptors are installed outermost first: tracing or logging, then rate
// limiting, then the global lock.
func (c *File) EngineConfig(logger *zap.Logger) (vfs.Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := []vfs.Option{
		vfs.WithLogger(logger),
		vfs.WithRootAccess(c.AllowRootAccess),
	}

	for _, p := range c.Preopens {
		real, err := p.Real.Resolve()
		if err != nil {
			return vfs.Config{}, fmt.Errorf("preopen %q: %w", p.Virtual, err)
		}
		options = append(options, vfs.WithPreopen(p.Virtual, real))
	}

	switch c.Cwd {
	case "", DefaultCwd:
		options = append(options, vfs.WithCwd(vfs.DefaultCwd()))
	case InactiveCwd:
		options = append(options, vfs.WithCwd(vfs.InactiveCwd()))
	default:
		options = append(options, vfs.WithCwd(vfs.CwdAt(string(c.Cwd))))
	}

	if n, ok := c.MaxFileDescriptors.Value(); ok {
		options = append(options, vfs.WithMaxFileDescriptors(n))
	}

	var interceptors []chain.Interceptor
	switch {
	case c.TraceOperations:
		interceptors = append(interceptors, chain.Trace(logger))
	case c.LogOperations:
		interceptors = append(interceptors, chain.Logging(logger))
	}
	if r, ok := c.RateLimit.Value(); ok && r.Rate > 0 {
		burst := r.Burst
		if burst == 0 {
			burst = 1
		}
		interceptors = append(interceptors, chain.RateLimit(rate.NewLimiter(rate.Limit(r.Rate), burst)))
	}
	if c.GlobalLock {
		interceptors = append(interceptors, chain.GlobalLock())
	}
	options = append(options, vfs.WithInterceptors(interceptors...))

	return vfs.NewConfig(options...), nil
}
