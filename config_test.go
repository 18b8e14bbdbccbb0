package main

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/stealthrocket/wasivfs/internal/assert"
	"github.com/stealthrocket/wasivfs/internal/config"
)

var configTests = tests{
	"show the configuration in yaml": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "config")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stderr, "")

		c, err := config.Read(strings.NewReader(stdout))
		assert.OK(t, err)
		assert.DeepEqual(t, c.Preopens, []config.Preopen{
			{Virtual: "/data", Real: config.Path(dataDir(t))},
		})
		assert.True(t, c.GlobalLock)
	},

	"command line options are applied to the configuration": func(t *testing.T) {
		stdout, _, exitCode := wasivfs(t, "config", "-o", "yaml", "-p", "/a:/srv/a", "-p", "/b:/srv/b", "--cwd", "inactive", "-v")
		assert.Equal(t, exitCode, 0)

		var c config.File
		assert.OK(t, yaml.Unmarshal([]byte(stdout), &c))
		assert.DeepEqual(t, c.Preopens, []config.Preopen{
			{Virtual: "/a", Real: "/srv/a"},
			{Virtual: "/b", Real: "/srv/b"},
		})
		assert.Equal(t, c.Cwd, config.InactiveCwd)
		assert.True(t, c.LogOperations)
	},

	"show the configuration in json": func(t *testing.T) {
		stdout, _, exitCode := wasivfs(t, "config", "-o", "json")
		assert.Equal(t, exitCode, 0)

		var c map[string]any
		assert.OK(t, json.Unmarshal([]byte(stdout), &c))
		assert.Equal(t, c["global-lock"], any(true))
		assert.Equal(t, c["cwd"], any("default"))
	},

	"malformed preopens are usage errors": func(t *testing.T) {
		_, _, exitCode := wasivfs(t, "config", "-p", "nocolon")
		assert.Equal(t, exitCode, 2)
	},
}
