package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/stealthrocket/wasivfs/internal/assert"
)

var lsTests = tests{
	"list the files of a directory": func(t *testing.T) {
		writeData(t, "dir/b.txt", "hello")
		writeData(t, "dir/a.txt", "hi")

		stdout, stderr, exitCode := wasivfs(t, "ls", "/data/dir")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, "NAME   TYPE  SIZE\na.txt  file  2\nb.txt  file  5\n")
		assert.Equal(t, stderr, "")
	},

	"relative paths are resolved against the working directory": func(t *testing.T) {
		writeData(t, "dir/a.txt", "hi")

		stdout, _, exitCode := wasivfs(t, "ls", "--cwd", "/data/dir")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, "NAME   TYPE  SIZE\na.txt  file  2\n")

		stdout, _, exitCode = wasivfs(t, "ls", "dir")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, "NAME   TYPE  SIZE\na.txt  file  2\n")
	},

	"list entries as json": func(t *testing.T) {
		writeData(t, "file", "content")

		stdout, _, exitCode := wasivfs(t, "ls", "-a", "-o", "json", "/data")
		assert.Equal(t, exitCode, 0)

		var names []string
		d := json.NewDecoder(strings.NewReader(stdout))
		for d.More() {
			var entry dirEntry
			assert.OK(t, d.Decode(&entry))
			names = append(names, entry.Name)
			if entry.Name == "file" {
				assert.Equal(t, entry.Type, "file")
				assert.Equal(t, entry.Size, int64(7))
			}
		}
		slices.Sort(names)
		assert.EqualAll(t, names, []string{".", "..", "file"})
	},

	"preopens passed on the command line replace the configuration": func(t *testing.T) {
		other := t.TempDir()
		assert.OK(t, os.WriteFile(filepath.Join(other, "x"), nil, 0666))

		stdout, _, exitCode := wasivfs(t, "ls", "-p", "/other:"+other, "/other")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, "NAME  TYPE  SIZE\nx     file  0\n")

		_, stderr, exitCode := wasivfs(t, "ls", "-p", "/other:"+other, "/data")
		assert.Equal(t, exitCode, 1)
		assert.HasPrefix(t, stderr, "ERR: wasivfs ls: ")
	},

	"paths outside of the preopens are not capable": func(t *testing.T) {
		stdout, stderr, exitCode := wasivfs(t, "ls", "/data/..")
		assert.Equal(t, exitCode, 1)
		assert.Equal(t, stdout, "")
		assert.HasPrefix(t, stderr, "ERR: wasivfs ls: ")
		assert.True(t, strings.Contains(stderr, "capabilities insufficient"))
	},

	"listing without preopens is a usage error": func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "config.yaml")
		_, stderr, exitCode := wasivfs(t, "ls", "-c", missing)
		assert.Equal(t, exitCode, 2)
		assert.HasPrefix(t, stderr, "no preopened directories")
	},

	"verbose mode logs file system operations": func(t *testing.T) {
		_, stderr, exitCode := wasivfs(t, "ls", "-v", "/data")
		assert.Equal(t, exitCode, 0)
		assert.True(t, strings.Contains(stderr, "read_dir_fd"))
	},
}
