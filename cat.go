package main

import (
	"context"

	"github.com/stealthrocket/wasivfs/pkg/vfs"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

const catUsage = `
Usage:	wasivfs cat [options] <path>...

   Print the content of files of the virtual file system to the standard
   output, in the order they were passed on the command line.

Options:
   -c, --config path    Path to the configuration file (overrides WASIVFS_CONFIG)
   -C, --cwd path       Working directory, one of: default, inactive, or a virtual path
   -h, --help           Show this usage information
   -p, --preopen map    Preopen a host directory, as virtual:real (repeatable)
   -v, --verbose        Log the operations executed on the file system
`

const catBufferSize = 32 * 1024

func cat(ctx context.Context, args []string) error {
	var engine engineFlags

	flagSet := newFlagSet("wasivfs cat", catUsage)
	engine.register(flagSet)

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usageError("wasivfs cat: expected at least one path")
	}

	e, err := engine.newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	buf := make([]byte, catBufferSize)
	for _, path := range args {
		if err := catFile(ctx, e, path, buf); err != nil {
			return err
		}
	}
	return nil
}

func catFile(ctx context.Context, e *vfs.Engine, path string, buf []byte) error {
	fd, err := vfs.Execute(ctx, e, op.Open, op.OpenInput{
		Base:   op.CurrentWorkingDirectory(),
		Path:   path,
		Follow: true,
	})
	if err != nil {
		return err
	}
	defer vfs.Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: fd})

	for {
		n, err := vfs.Execute(ctx, e, op.ReadFd, op.ReadFdInput{
			Fd:     fd,
			Iovecs: [][]byte{buf},
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := stdout.Write(buf[:n]); err != nil {
			return err
		}
	}
}
