package main

import (
	"context"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/wasivfs/internal/print"
)

const configUsage = `
Usage:	wasivfs config [options]

   Show the configuration of the file system, after applying the command line
   options to the content of the configuration file. The default configuration
   is shown when the file does not exist.

Options:
   -c, --config path    Path to the configuration file (overrides WASIVFS_CONFIG)
   -C, --cwd path       Working directory, one of: default, inactive, or a virtual path
   -h, --help           Show this usage information
   -o, --output format  Output format, one of: text, json, yaml (text is yaml)
   -p, --preopen map    Preopen a host directory, as virtual:real (repeatable)
   -v, --verbose        Enable logging of file system operations
`

func showConfig(ctx context.Context, args []string) error {
	var (
		output = print.Text
		engine engineFlags
	)

	flagSet := newFlagSet("wasivfs config", configUsage)
	customVar(flagSet, &output, "o", "output")
	engine.register(flagSet)

	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return usageError("wasivfs config: unexpected arguments: %q", args)
	}

	c, err := engine.loadConfig()
	if err != nil {
		return err
	}

	switch output {
	case print.JSON:
		e := json.NewEncoder(stdout)
		e.SetEscapeHTML(false)
		e.SetIndent("", "  ")
		return e.Encode(c)
	default:
		e := yaml.NewEncoder(stdout)
		e.SetIndent(2)
		if err := e.Encode(c); err != nil {
			return err
		}
		return e.Close()
	}
}
