package main

import (
	"context"
	"time"

	"github.com/stealthrocket/wasivfs/internal/print"
	"github.com/stealthrocket/wasivfs/pkg/vfs"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

const statUsage = `
Usage:	wasivfs stat [options] <path>...

   Show the status of files of the virtual file system. Symbolic links are
   reported as links unless --follow is set.

Example:

   $ wasivfs stat -p /data:/srv/data /data/app.wasm
   PATH            TYPE  MODE        SIZE     LINKS  MODIFIED
   /data/app.wasm  file  -rw-r--r--  7150231  1      2023-07-13T18:37:14Z

Options:
   -c, --config path    Path to the configuration file (overrides WASIVFS_CONFIG)
   -C, --cwd path       Working directory, one of: default, inactive, or a virtual path
   -L, --follow         Follow symbolic links
   -h, --help           Show this usage information
   -o, --output format  Output format, one of: text, json, yaml
   -p, --preopen map    Preopen a host directory, as virtual:real (repeatable)
   -v, --verbose        Log the operations executed on the file system
`

type fileStatus struct {
	Path     string `text:"PATH" json:"path" yaml:"path"`
	Type     string `text:"TYPE" json:"type" yaml:"type"`
	Mode     string `text:"MODE" json:"mode" yaml:"mode"`
	Size     int64  `text:"SIZE" json:"size" yaml:"size"`
	Nlink    uint64 `text:"LINKS" json:"nlink" yaml:"nlink"`
	Modified string `text:"MODIFIED" json:"mtime" yaml:"mtime"`
	Dev      uint64 `text:"-" json:"dev" yaml:"dev"`
	Ino      uint64 `text:"-" json:"ino" yaml:"ino"`
	Uid      uint32 `text:"-" json:"uid" yaml:"uid"`
	Gid      uint32 `text:"-" json:"gid" yaml:"gid"`
	Accessed string `text:"-" json:"atime" yaml:"atime"`
	Changed  string `text:"-" json:"ctime" yaml:"ctime"`
}

func stat(ctx context.Context, args []string) error {
	var (
		follow = false
		output = print.Text
		engine engineFlags
	)

	flagSet := newFlagSet("wasivfs stat", statUsage)
	boolVar(flagSet, &follow, "L", "follow")
	customVar(flagSet, &output, "o", "output")
	engine.register(flagSet)

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return usageError("wasivfs stat: expected at least one path")
	}

	e, err := engine.newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	statuses := make([]fileStatus, 0, len(args))
	for _, path := range args {
		s, err := vfs.Execute(ctx, e, op.Stat, op.StatInput{
			Base:   op.CurrentWorkingDirectory(),
			Path:   path,
			Follow: follow,
		})
		if err != nil {
			return err
		}
		statuses = append(statuses, makeFileStatus(path, s))
	}

	w := print.NewWriter[fileStatus](stdout, output)
	if err := w.Write(statuses...); err != nil {
		return err
	}
	return w.Close()
}

func makeFileStatus(path string, s op.StructStat) fileStatus {
	return fileStatus{
		Path:     path,
		Type:     fileTypeName(s.Type),
		Mode:     s.Mode.Perm().String(),
		Size:     s.Size,
		Nlink:    s.Nlink,
		Modified: formatTime(s.Mtime),
		Dev:      s.Dev,
		Ino:      s.Ino,
		Uid:      s.Uid,
		Gid:      s.Gid,
		Accessed: formatTime(s.Atime),
		Changed:  formatTime(s.Ctime),
	}
}

func formatTime(t op.Timespec) string {
	if t == 0 {
		return "-"
	}
	return t.Time().UTC().Format(time.RFC3339)
}
