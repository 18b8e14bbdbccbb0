package vfs

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/chain"
)

// Preopen maps a virtual directory visible to the guest onto a directory of
// the host.
type Preopen struct {
	Virtual string
	Real    string
}

// CwdPolicy configures the current working directory that relative paths
// are resolved against when an operation uses op.CurrentWorkingDirectory.
type CwdPolicy struct {
	mode cwdMode
	path string
}

type cwdMode uint8

const (
	cwdDefault cwdMode = iota
	cwdInactive
	cwdPath
)

// DefaultCwd uses the root of the first preopened directory as working
// directory. It is the zero value of CwdPolicy.
func DefaultCwd() CwdPolicy { return CwdPolicy{} }

// InactiveCwd disables the working directory: operations relative to it fail
// with NotCapable.
func InactiveCwd() CwdPolicy { return CwdPolicy{mode: cwdInactive} }

// CwdAt sets the working directory to an absolute virtual path, which must
// be below one of the preopened directories.
func CwdAt(path string) CwdPolicy { return CwdPolicy{mode: cwdPath, path: path} }

func (p CwdPolicy) String() string {
	switch p.mode {
	case cwdDefault:
		return "default"
	case cwdInactive:
		return "inactive"
	default:
		return p.path
	}
}

// Config is the configuration of an Engine.
type Config struct {
	Preopens []Preopen
	Cwd      CwdPolicy
	// AllowRootAccess permits absolute paths relative to directory
	// descriptors, and clamps parent references at the root of preopened
	// directories instead of rejecting them.
	AllowRootAccess bool
	// Standard I/O streams exposed on descriptors 0, 1 and 2. Nil streams
	// are bound to the null device.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	// Interceptors wrap the execution of every operation, the first one
	// being the outermost.
	Interceptors []chain.Interceptor
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// MaxFileDescriptors bounds the size of the descriptor table. Zero
	// selects the default limit.
	MaxFileDescriptors int
	// Platform is the adapter operations are executed against; nil selects
	// the native adapter of the host.
	Platform platform.FileSystem
}

// Option is a functional option for NewConfig.
type Option func(*Config)

// NewConfig builds a configuration from a list of options.
func NewConfig(options ...Option) Config {
	var c Config
	for _, opt := range options {
		opt(&c)
	}
	return c
}

// WithPreopen adds a preopened directory.
func WithPreopen(virtual, real string) Option {
	return func(c *Config) {
		c.Preopens = append(c.Preopens, Preopen{Virtual: virtual, Real: real})
	}
}

func WithCwd(policy CwdPolicy) Option {
	return func(c *Config) { c.Cwd = policy }
}

func WithRootAccess(allow bool) Option {
	return func(c *Config) { c.AllowRootAccess = allow }
}

func WithStdio(stdin, stdout, stderr *os.File) Option {
	return func(c *Config) { c.Stdin, c.Stdout, c.Stderr = stdin, stdout, stderr }
}

// WithInterceptors appends interceptors to the chain.
func WithInterceptors(interceptors ...chain.Interceptor) Option {
	interceptors = slices.Clone(interceptors)
	return func(c *Config) { c.Interceptors = append(c.Interceptors, interceptors...) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithMaxFileDescriptors(limit int) Option {
	return func(c *Config) { c.MaxFileDescriptors = limit }
}

func (c *Config) validate() error {
	if c.MaxFileDescriptors < 0 {
		return fmt.Errorf("invalid maximum number of file descriptors: %d", c.MaxFileDescriptors)
	}
	for _, p := range c.Preopens {
		if p.Virtual == "" || p.Real == "" {
			return fmt.Errorf("invalid preopen %q:%q: paths cannot be empty", p.Virtual, p.Real)
		}
	}
	return nil
}
