// Package commands contains the CLI commands for the application
package commands

import (
	"github.com/rs/zerolog"
)

type Flags struct {
	LogLevel string
}

type Controller struct {
	Flags  *Flags
	Logger zerolog.Logger

	filesystem FileSystem
}

// NewController creates a controller that works on the real filesystem.
func NewController(flags *Flags, logger zerolog.Logger) *Controller {
	return &Controller{
		Flags:      flags,
		Logger:     logger,
		filesystem: &osFileSystem{},
	}
}

func (c *Controller) fs() FileSystem {
	if c.filesystem == nil {
		return &osFileSystem{}
	}
	return c.filesystem
}
