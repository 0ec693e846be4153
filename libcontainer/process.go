package libcontainer

import (
	"io"
	"os"
)

// Process specifies a process to launch inside a container.
type Process struct {
	// Args is the command with arguments to be run, Args[0] being the
	// binary path inside the container.
	Args []string

	// Env is the process environment.
	Env []string

	// Cwd is the working directory of the process, relative to the
	// container's root.
	Cwd string

	// Init indicates whether this process is the container's init. The
	// init process transition moves the container from Created to
	// Running; non-init processes join a Running container.
	Init bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ExtraFiles specifies additional open files to be inherited by the
	// process.
	ExtraFiles []*os.File
}
