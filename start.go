package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"

	"github.com/vmjail/libcontainer"
)

var startCommand = cli.Command{
	Name:  "start",
	Usage: "executes the user defined process in a created container",
	ArgsUsage: `<container-id>

Where "<container-id>" is your name for the instance of the container that you
are starting. The name you provide for the container instance must be unique on
your host.`,
	Description: `The start command executes the user defined process in a created container.`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		container, err := getContainer(context)
		if err != nil {
			return err
		}
		status, err := container.Status()
		if err != nil {
			return err
		}
		switch status {
		case libcontainer.Created:
			spec, err := loadBundleSpec(container)
			if err != nil {
				return err
			}
			return container.Start(newProcess(spec.Process, true))
		case libcontainer.Stopped:
			return errors.New("cannot start a container that has stopped")
		case libcontainer.Running:
			return errors.New("cannot start an already running container")
		default:
			return fmt.Errorf("cannot start a container in the %s state", status)
		}
	},
}

// loadBundleSpec re-reads the bundle's specification for a container that
// was created earlier, possibly by another invocation of the agent.
func loadBundleSpec(container *libcontainer.Container) (spec *specs.Spec, err error) {
	state, err := container.OCIState()
	if err != nil {
		return nil, err
	}
	if state.Bundle == "" {
		return nil, errors.New("container state has no bundle path")
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := os.Chdir(cwd); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := os.Chdir(state.Bundle); err != nil {
		return nil, err
	}
	return loadSpec(specConfig)
}
