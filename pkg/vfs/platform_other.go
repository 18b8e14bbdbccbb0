//go:build !linux && !darwin && !windows

package vfs

import (
	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/internal/platform/portable"
)

func defaultPlatform() platform.FileSystem { return portable.New() }
