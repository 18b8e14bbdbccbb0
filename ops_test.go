package main

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

var opsTests = tests{
	"list all operations": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "ops")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stderr, "")
		assert.HasPrefix(t, stdout, "OPERATION")

		lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
		assert.Equal(t, len(lines), len(op.Catalog())+1)
		assert.HasPrefix(t, lines[1], "add_advisory_lock_fd ")
	},

	"describe an operation in yaml": func(t *testing.T) {
		stdout, _, exitCode := wasivfs(t, "ops", "-o", "yaml", "read_link")
		assert.Equal(t, exitCode, 0)

		var o operation
		assert.OK(t, yaml.Unmarshal([]byte(stdout), &o))
		assert.Equal(t, o.Name, "read_link")
		assert.True(t, len(o.Errors) > 0)

		errnos := map[string]uint16{}
		for _, e := range o.Errors {
			errnos[e.Name] = e.Errno
		}
		assert.Equal(t, errnos["access denied"], 2)
		assert.Equal(t, errnos["capabilities insufficient"], 76)
	},

	"unknown operations are usage errors": func(t *testing.T) {
		_, stderr, exitCode := wasivfs(t, "ops", "format_disk")
		assert.Equal(t, exitCode, 2)
		assert.HasPrefix(t, stderr, `wasivfs ops: unknown operation: "format_disk"`)
	},
}
