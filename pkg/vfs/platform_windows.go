package vfs

import (
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/platform/windows"
)

func defaultPlatform() platform.FileSystem { return windows.New() }
