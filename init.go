package main

import (
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/vmjail/libcontainer"
)

func init() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		// The init re-exec must not spawn additional OS threads before
		// entering the container's namespaces.
		runtime.GOMAXPROCS(1)
		runtime.LockOSThread()
	}
}

var initCommand = cli.Command{
	Name:   "init",
	Hidden: true,
	Usage:  `initialize the namespaces and launch the process (do not call it outside of vmjail)`,
	Action: func(context *cli.Context) error {
		// Init only returns on error; on success the workload has
		// replaced this process.
		err := libcontainer.Init()
		logrus.Fatalf("init failed: %v", err)
		return nil
	},
}
