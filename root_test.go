package main

import (
	"strings"
	"testing"

	"github.com/stealthrocket/wasivfs/internal/assert"
)

var rootTests = tests{
	"invoking wasivfs without a command prints the introduction message": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t)
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "wasivfs - WASI virtual file system\n")
		assert.Equal(t, stderr, "")
	},

	"show the wasivfs help with the short option": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "-h")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\twasivfs <command> ")
		assert.Equal(t, stderr, "")
	},

	"show the wasivfs help with the long option": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "--help")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\twasivfs <command> ")
		assert.Equal(t, stderr, "")
	},
}

var unknownTests = tests{
	"an error is reported when invoking an unknown command": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "whatever")
		assert.Equal(t, exitCode, 2)
		assert.Equal(t, stdout, "")
		assert.HasPrefix(t, stderr, "wasivfs whatever: unknown command\n")
	},
}

var helpTests = tests{
	"calling help with an unknown command causes an error": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "help", "whatever")
		assert.Equal(t, exitCode, 2)
		assert.Equal(t, stdout, "")
		assert.Equal(t, stderr, "wasivfs help whatever: unknown command\n")
	},

	"passing an unsupported flag to the command causes an error": func(t *testing.T) {
		_, _, exitCode := wasivfs(t, "help", "-_")
		assert.Equal(t, exitCode, 2)
	},

	"show the help command help with the short option": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "help", "-h")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\twasivfs <command> ")
		assert.Equal(t, stderr, "")
	},

	"every command has a usage message": func(t *testing.T) {
		for _, cmd := range []string{"cat", "config", "help", "ls", "ops", "stat", "version"} {
			stdout, stderr, exitCode := wasivfs(t, "help", cmd)
			assert.Equal(t, exitCode, 0)
			assert.True(t, strings.Contains(stdout, "Usage:\twasivfs "))
			assert.Equal(t, stderr, "")
		}
	},
}

var versionTests = tests{
	"show the version command help with the short option": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "version", "-h")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "Usage:\twasivfs version\n")
		assert.Equal(t, stderr, "")
	},

	"the version starts with the prefix wasivfs": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "version")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "wasivfs ")
		assert.Equal(t, stderr, "")

		_, version, _ := strings.Cut(strings.TrimSpace(stdout), " ")
		assert.NotEqual(t, version, "")
	},

	"passing an unsupported flag to the command causes an error": func(t *testing.T) {
		_, _, exitCode := wasivfs(t, "version", "-_")
		assert.Equal(t, exitCode, 2)
	},
}
