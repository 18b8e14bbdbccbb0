package main

import (
	"context"
	"fmt"
)

const helpUsage = `
Usage:	wasivfs <command> [options]

File System Commands:
   cat      Print the content of files
   ls       List the entries of a directory
   stat     Show the status of files

Other Commands:
   config   Show the configuration of the file system
   help     Show usage information about wasivfs commands
   ops      List the operations of the file system and the errors they report
   version  Show the wasivfs version information

For a description of each command, run 'wasivfs help <command>'.`

func help(ctx context.Context, args []string) error {
	flagSet := newFlagSet("wasivfs help", helpUsage)
	args, err := parseFlags(flagSet, args)
	if err != nil {
		return err
	}

	var cmd string
	var msg string

	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "cat":
		msg = catUsage
	case "config":
		msg = configUsage
	case "help", "":
		msg = helpUsage
	case "ls":
		msg = lsUsage
	case "ops":
		msg = opsUsage
	case "stat":
		msg = statUsage
	case "version":
		msg = versionUsage
	default:
		return usageError("wasivfs help %s: unknown command", cmd)
	}

	fmt.Fprintln(stdout, msg)
	return nil
}
