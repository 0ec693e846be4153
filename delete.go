package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/vmjail/libcontainer"
)

var deleteCommand = cli.Command{
	Name:  "delete",
	Usage: "delete any resources held by the container often used with detached container",
	ArgsUsage: `<container-id>

Where "<container-id>" is the name for the instance of the container.

EXAMPLE:
For example, if the container id is "ubuntu01" and vmjail list currently shows the
status of "ubuntu01" as "stopped" the following will delete resources held for
"ubuntu01" removing "ubuntu01" from the vmjail list of containers:

       # vmjail delete ubuntu01`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "force, f",
			Usage: "Forcibly deletes the container if it is still running (uses SIGKILL)",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}

		force := context.Bool("force")
		container, err := getContainer(context)
		if err != nil {
			if errors.Is(err, libcontainer.ErrNotExist) && force {
				// Nothing left to delete.
				return nil
			}
			return err
		}

		status, err := container.Status()
		if err != nil {
			return err
		}
		switch status {
		case libcontainer.Stopped, libcontainer.Created:
			return container.Destroy()
		default:
			if !force {
				return fmt.Errorf("cannot delete container %s that is not stopped: %s", container.ID(), status)
			}
			return killContainer(container)
		}
	},
}

// killContainer sends SIGKILL to every process in the container and waits
// for the workload to die before destroying it.
func killContainer(container *libcontainer.Container) error {
	if err := container.Signal(unix.SIGKILL, true); err != nil {
		return err
	}
	for i := 0; i < 100; i++ {
		time.Sleep(100 * time.Millisecond)
		status, err := container.Status()
		if err != nil {
			return err
		}
		if status == libcontainer.Stopped {
			return container.Destroy()
		}
		// SIGKILL is not deliverable to frozen tasks; a paused
		// container must be thawed for the kill to land.
		if status == libcontainer.Paused {
			if err := container.Resume(); err != nil {
				return err
			}
		}
	}
	return errors.New("container init still running")
}
