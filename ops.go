package main

import (
	"context"

	"github.com/stealthrocket/wasivfs/internal/print"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

const opsUsage = `
Usage:	wasivfs ops [options] [name]...

   List the operations of the file system with the errors they may report,
   and the errno each error is reported as to WebAssembly guests.

Example:

   $ wasivfs ops read_link -o yaml
   name: read_link
   errors:
     - name: access denied
       errno: 2
   ...

Options:
   -h, --help           Show this usage information
   -o, --output format  Output format, one of: text, json, yaml
`

type operation struct {
	Name   string      `text:"OPERATION" json:"name" yaml:"name"`
	Kinds  []string    `text:"ERRORS" json:"-" yaml:"-"`
	Errors []errorKind `text:"-" json:"errors" yaml:"errors"`
}

type errorKind struct {
	Name  string `json:"name" yaml:"name"`
	Errno uint16 `json:"errno" yaml:"errno"`
}

func ops(ctx context.Context, args []string) error {
	output := print.Text

	flagSet := newFlagSet("wasivfs ops", opsUsage)
	customVar(flagSet, &output, "o", "output")

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}

	tags := op.Catalog()
	if len(args) > 0 {
		tags = tags[:0]
		for _, name := range args {
			tag, ok := op.Lookup(name)
			if !ok {
				return usageError("wasivfs ops: unknown operation: %q", name)
			}
			tags = append(tags, tag)
		}
	}

	w := print.NewWriter[operation](stdout, output)
	for _, tag := range tags {
		if err := w.Write(describeOperation(tag)); err != nil {
			return err
		}
	}
	return w.Close()
}

func describeOperation(tag op.Tag) operation {
	o := operation{Name: tag.Name()}
	kinds := tag.Kinds()
	for _, k := range fserr.Kinds() {
		if kinds.Has(k) {
			o.Kinds = append(o.Kinds, k.String())
			o.Errors = append(o.Errors, errorKind{Name: k.String(), Errno: uint16(k.Errno())})
		}
	}
	return o
}
