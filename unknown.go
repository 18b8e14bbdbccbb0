package main

import (
	"context"
)

const unknownCommand = `wasivfs %s: unknown command
For a list of commands available, run 'wasivfs help'.`

func unknown(ctx context.Context, cmd string) error {
	return usageError(unknownCommand, cmd)
}
