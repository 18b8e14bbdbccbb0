package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stealthrocket/wasivfs/internal/assert"
)

func statJSON(t *testing.T, args ...string) []fileStatus {
	t.Helper()
	stdout, stderr, exitCode := wasivfs(t, append([]string{"stat", "-o", "json"}, args...)...)
	assert.Equal(t, exitCode, 0)
	assert.Equal(t, stderr, "")

	var statuses []fileStatus
	d := json.NewDecoder(strings.NewReader(stdout))
	for d.More() {
		var s fileStatus
		assert.OK(t, d.Decode(&s))
		statuses = append(statuses, s)
	}
	return statuses
}

var statTests = tests{
	"show the status of files": func(t *testing.T) {
		writeData(t, "file", "12345")

		statuses := statJSON(t, "/data/file", "/data")
		assert.Equal(t, len(statuses), 2)
		assert.Equal(t, statuses[0].Path, "/data/file")
		assert.Equal(t, statuses[0].Type, "file")
		assert.Equal(t, statuses[0].Size, int64(5))
		assert.Equal(t, statuses[1].Type, "directory")
	},

	"symbolic links are followed with the follow option": func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("creating symbolic links requires privileges on windows")
		}
		writeData(t, "file", "12345")
		assert.OK(t, os.Symlink("file", filepath.Join(dataDir(t), "link")))

		statuses := statJSON(t, "link")
		assert.Equal(t, statuses[0].Type, "symlink")

		statuses = statJSON(t, "-L", "link")
		assert.Equal(t, statuses[0].Type, "file")
		assert.Equal(t, statuses[0].Size, int64(5))
	},

	"show the status as a table": func(t *testing.T) {
		writeData(t, "file", "")

		stdout, _, exitCode := wasivfs(t, "stat", "file")
		assert.Equal(t, exitCode, 0)
		assert.HasPrefix(t, stdout, "PATH  TYPE  MODE")
	},

	"stat without arguments is a usage error": func(t *testing.T) {
		_, _, exitCode := wasivfs(t, "stat")
		assert.Equal(t, exitCode, 2)
	},
}
