//go:build linux || darwin

package vfs

import (
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/platform/posix"
)

func defaultPlatform() platform.FileSystem { return posix.New() }
