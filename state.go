package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/urfave/cli"
)

// cState represents the platform agnostic pieces relating to a running
// container's status and state, printed as JSON.
type cState struct {
	// Version is the OCI version for the container
	Version string `json:"ociVersion"`
	// ID is the container ID
	ID string `json:"id"`
	// InitProcessPid is the init process id in the parent namespace
	InitProcessPid int `json:"pid"`
	// Status is the current status of the container, running, paused, ...
	Status string `json:"status"`
	// Bundle is the path on the filesystem to the bundle
	Bundle string `json:"bundle"`
	// Created is the unix timestamp for the creation time of the container in UTC
	Created time.Time `json:"created"`
	// Annotations is the user defined annotations added to the config.
	Annotations map[string]string `json:"annotations,omitempty"`
}

var stateCommand = cli.Command{
	Name:  "state",
	Usage: "output the state of a container",
	ArgsUsage: `<container-id>

Where "<container-id>" is your name for the instance of the container.`,
	Description: `The state command outputs current state information for the
instance of a container.`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		container, err := getContainer(context)
		if err != nil {
			return err
		}
		ociState, err := container.OCIState()
		if err != nil {
			return err
		}
		state := container.State()
		cs := cState{
			Version:        ociState.Version,
			ID:             ociState.ID,
			InitProcessPid: ociState.Pid,
			Status:         string(ociState.Status),
			Bundle:         ociState.Bundle,
			Created:        state.Created,
			Annotations:    ociState.Annotations,
		}
		data, err := json.MarshalIndent(cs, "", "  ")
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	},
}
