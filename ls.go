package main

import (
	"context"
	"errors"
	"io"

	"github.com/stealthrocket/wasi-go"

	"github.com/stealthrocket/wasivfs/internal/print"
	"github.com/stealthrocket/wasivfs/pkg/vfs"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

const lsUsage = `
Usage:	wasivfs ls [options] [path]

   List the entries of a directory of the virtual file system. The path is
   resolved like a guest would resolve it: absolute paths must be below one of
   the preopened directories, relative paths start at the working directory.
   Without a path, the working directory is listed.

Example:

   $ wasivfs ls -p /data:/srv/data /data
   NAME      TYPE       SIZE
   app       directory  4096
   app.wasm  file       7150231

Options:
   -a, --all            Include the "." and ".." entries
   -c, --config path    Path to the configuration file (overrides WASIVFS_CONFIG)
   -C, --cwd path       Working directory, one of: default, inactive, or a virtual path
   -h, --help           Show this usage information
   -o, --output format  Output format, one of: text, json, yaml
   -p, --preopen map    Preopen a host directory, as virtual:real (repeatable)
   -v, --verbose        Log the operations executed on the file system
`

type dirEntry struct {
	Name  string `text:"NAME" json:"name" yaml:"name"`
	Type  string `text:"TYPE" json:"type" yaml:"type"`
	Size  int64  `text:"SIZE" json:"size" yaml:"size"`
	Inode uint64 `text:"-" json:"inode" yaml:"inode"`
}

func ls(ctx context.Context, args []string) error {
	var (
		all    = false
		output = print.Text
		engine engineFlags
	)

	flagSet := newFlagSet("wasivfs ls", lsUsage)
	boolVar(flagSet, &all, "a", "all")
	customVar(flagSet, &output, "o", "output")
	engine.register(flagSet)

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	path := "."
	switch len(args) {
	case 0:
	case 1:
		path = args[0]
	default:
		return usageError("wasivfs ls: expected at most one path, got %d", len(args))
	}

	e, err := engine.newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	fd, err := vfs.Execute(ctx, e, op.Open, op.OpenInput{
		Base:   op.CurrentWorkingDirectory(),
		Path:   path,
		Flags:  op.OpenDirectory,
		Follow: true,
	})
	if err != nil {
		return err
	}
	defer vfs.Execute(ctx, e, op.CloseFd, op.CloseFdInput{Fd: fd})

	dir, err := vfs.Execute(ctx, e, op.ReadDirFd, op.ReadDirFdInput{Fd: fd})
	if err != nil {
		return err
	}
	defer dir.Close()

	w := print.NewWriter(stdout, output, print.OrderBy(func(a, b dirEntry) bool {
		return a.Name < b.Name
	}))

	for {
		entry, err := dir.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return w.Close()
			}
			return err
		}
		if !all && (entry.Name == "." || entry.Name == "..") {
			continue
		}
		row := dirEntry{
			Name:  entry.Name,
			Type:  fileTypeName(entry.Type),
			Inode: entry.Inode,
		}
		s, err := vfs.Execute(ctx, e, op.Stat, op.StatInput{
			Base: op.DirectoryFd(fd),
			Path: entry.Name,
		})
		if err == nil {
			row.Size = s.Size
			row.Inode = s.Ino
			if entry.Type == wasi.UnknownType {
				row.Type = fileTypeName(s.Type)
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
}

func fileTypeName(t op.FileType) string {
	switch t {
	case wasi.RegularFileType:
		return "file"
	case wasi.DirectoryType:
		return "directory"
	case wasi.SymbolicLinkType:
		return "symlink"
	case wasi.CharacterDeviceType:
		return "char-device"
	case wasi.BlockDeviceType:
		return "block-device"
	case wasi.SocketStreamType, wasi.SocketDGramType:
		return "socket"
	default:
		return "unknown"
	}
}
