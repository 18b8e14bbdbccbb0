package main

import (
	"testing"

	"github.com/stealthrocket/wasivfs/internal/assert"
)

var catTests = tests{
	"print the content of files in order": func(t *testing.T) {
		writeData(t, "a.txt", "hello ")
		writeData(t, "dir/b.txt", "world\n")

		stdout, stderr, exitCode := wasivfs(t, "cat", "/data/a.txt", "dir/b.txt")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, "hello world\n")
		assert.Equal(t, stderr, "")
	},

	"files larger than the buffer are printed entirely": func(t *testing.T) {
		content := make([]byte, 3*catBufferSize+1)
		for i := range content {
			content[i] = 'a' + byte(i%26)
		}
		writeData(t, "large", string(content))

		stdout, _, exitCode := wasivfs(t, "cat", "large")
		assert.Equal(t, exitCode, 0)
		assert.Equal(t, stdout, string(content))
	},

	"missing files cause an error": func(t *testing.T) {
		_, stderr, exitCode := wasivfs(t, "cat", "missing")
		assert.Equal(t, exitCode, 1)
		assert.HasPrefix(t, stderr, "ERR: wasivfs cat: ")
	},

	"cat without arguments is a usage error": func(t *testing.T) {
		_, _, exitCode := wasivfs(t, "cat")
		assert.Equal(t, exitCode, 2)
	},
}
