package main

// Notes on program structure
// --------------------------
//
// wasivfs uses subcommands to invoke specific functionalities of the program.
// Each subcommand is implemented by a function named after the command, in a
// file of the same name (e.g. the "ls" command is implemented by the ls
// function in ls.go).
//
// The usage message for each command is declared by a constant starting with
// the command name and followed by the suffix "Usage". For example, the usage
// message for the "ls" command is declared by the constant lsUsage.
//
// The usage message contains a "Usage:	wasivfs <command>" section presenting
// the structure of the command. Note the tabulation separating "Usage:" and
// "wasivfs".

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/slices"

	"github.com/stealthrocket/wasivfs/internal/config"
	"github.com/stealthrocket/wasivfs/pkg/vfs"
)

const rootUsage = `wasivfs - WASI virtual file system

   wasivfs exposes directories of the host to WebAssembly guests through a
   sandboxed virtual file system. The command line gives access to the file
   system the way a guest sees it, which helps verify preopen configurations.

Example:

   $ wasivfs ls --preopen /data:/srv/data /data
   NAME      TYPE       SIZE
   app       directory  4096
   app.wasm  file       7150231

For a list of commands available, run 'wasivfs help'.`

// Output streams of the program, replaced by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// configPath is the path to the configuration file, set by the -c option or
// the WASIVFS_CONFIG environment variable.
var configPath = config.DefaultPath

// root is the wasivfs entrypoint.
func root(ctx context.Context, args ...string) int {
	if path := os.Getenv("WASIVFS_CONFIG"); path != "" {
		configPath = config.Path(path)
	}

	flagSet := newFlagSet("wasivfs", helpUsage)
	if err := flagSet.Parse(args); err != nil {
		return exit("", flagError(flagSet, err))
	}
	if args = flagSet.Args(); len(args) == 0 {
		fmt.Fprintln(stdout, rootUsage)
		return 0
	}

	cmd, args := args[0], args[1:]

	var err error
	switch cmd {
	case "cat":
		err = cat(ctx, args)
	case "config":
		err = showConfig(ctx, args)
	case "help":
		err = help(ctx, args)
	case "ls":
		err = ls(ctx, args)
	case "ops":
		err = ops(ctx, args)
	case "stat":
		err = stat(ctx, args)
	case "version":
		err = version(ctx, args)
	default:
		err = unknown(ctx, cmd)
	}
	return exit(cmd, err)
}

func exit(cmd string, err error) int {
	var code exitCode
	var msg usage
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return int(code)
	case errors.As(err, &msg):
		fmt.Fprintf(stderr, "%s\n", msg)
		return 2
	default:
		fmt.Fprintf(stderr, "ERR: wasivfs %s: %s\n", cmd, err)
		return 1
	}
}

// exitCode is an error type returned from command functions to indicate the
// exit code that should be returned by the program.
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit: %d", e)
}

// usage is an error type returned from command functions to indicate a usage
// error.
//
// Usage errors cause the program to exit with status code 2.
type usage string

func usageError(msg string, args ...any) error {
	return usage(fmt.Sprintf(msg, args...))
}

func (e usage) Error() string {
	return string(e)
}

// preopenList accumulates the values of the repeatable --preopen option.
type preopenList []config.Preopen

func (p preopenList) String() string {
	s := make([]string, len(p))
	for i, preopen := range p {
		s[i] = preopen.Virtual + ":" + string(preopen.Real)
	}
	return strings.Join(s, ",")
}

func (p *preopenList) Set(value string) error {
	virtual, real, ok := strings.Cut(value, ":")
	if !ok || virtual == "" || real == "" {
		return fmt.Errorf("malformed preopen: %q (expected virtual:real)", value)
	}
	*p = append(*p, config.Preopen{Virtual: virtual, Real: config.Path(real)})
	return nil
}

// engineFlags are the options shared by commands that operate on the file
// system.
type engineFlags struct {
	preopens preopenList
	cwd      config.Cwd
	verbose  bool
}

func (f *engineFlags) register(flagSet *flag.FlagSet) {
	customVar(flagSet, &f.preopens, "p", "preopen")
	customVar(flagSet, &f.cwd, "C", "cwd")
	boolVar(flagSet, &f.verbose, "v", "verbose")
}

// loadConfig reads the configuration file and applies the command line
// options on top of it.
func (f *engineFlags) loadConfig() (*config.File, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(f.preopens) > 0 {
		c.Preopens = slices.Clone(f.preopens)
	}
	if f.cwd != "" {
		c.Cwd = f.cwd
	}
	if f.verbose {
		c.LogOperations = true
	}
	return c, nil
}

func (f *engineFlags) newEngine() (*vfs.Engine, error) {
	c, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	if len(c.Preopens) == 0 {
		return nil, usageError("no preopened directories, use --preopen or configure preopens in %s", configPath)
	}

	logger := zap.NewNop()
	if f.verbose {
		encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		logger = zap.New(zapcore.NewCore(encoder, zapcore.AddSync(stderr), zapcore.DebugLevel))
	}

	engineConfig, err := c.EngineConfig(logger)
	if err != nil {
		return nil, err
	}
	return vfs.New(engineConfig)
}

func newFlagSet(cmd, usage string) *flag.FlagSet {
	usage = strings.TrimSpace(usage)
	flagSet := flag.NewFlagSet(cmd, flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.Usage = func() { fmt.Fprintln(stdout, usage) }
	customVar(flagSet, &configPath, "c", "config")
	return flagSet
}

// parseFlags is a greedy parser which consumes all options known to f and
// returns the remaining arguments.
func parseFlags(f *flag.FlagSet, args []string) ([]string, error) {
	var unknownArgs []string
	for {
		if err := f.Parse(args); err != nil {
			return nil, flagError(f, err)
		}
		if args = f.Args(); len(args) == 0 {
			return unknownArgs, nil
		}
		i := slices.IndexFunc(args, func(s string) bool {
			return strings.HasPrefix(s, "-")
		})
		if i < 0 {
			i = len(args)
		} else if args[i] == "-" {
			i++
		}
		if i == 0 {
			return nil, usageError("%s: unexpected argument %q", f.Name(), args[0])
		}
		unknownArgs = append(unknownArgs, args[:i]...)
		args = args[i:]
	}
}

// flagError converts errors of the flag package. The usage message was already
// printed when the help option was passed.
func flagError(f *flag.FlagSet, err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return exitCode(0)
	}
	return usageError("%s: %s", f.Name(), err)
}

func boolVar(f *flag.FlagSet, dst *bool, name string, alias ...string) {
	f.BoolVar(dst, name, *dst, "")
	for _, name := range alias {
		f.BoolVar(dst, name, *dst, "")
	}
}

func customVar(f *flag.FlagSet, dst flag.Value, name string, alias ...string) {
	f.Var(dst, name, "")
	for _, name := range alias {
		f.Var(dst, name, "")
	}
}
