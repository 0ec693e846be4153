package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"github.com/vmjail/libcontainer"
	"github.com/vmjail/libcontainer/utils"
)

// containerListing is one row of list output.
type containerListing struct {
	ID      string
	Pid     int
	Status  string
	Bundle  string
	Created time.Time
}

var listCommand = cli.Command{
	Name:  "list",
	Usage: "lists containers started by vmjail with the given root",
	Description: `The list command lists containers. The state root (--root) determines which
containers are visible.`,
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 0, exactArgs); err != nil {
			return err
		}
		items, err := getContainers(context)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
		fmt.Fprint(w, "ID\tPID\tSTATUS\tBUNDLE\tCREATED\n")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
				item.ID,
				item.Pid,
				item.Status,
				item.Bundle,
				item.Created.Format(time.RFC3339Nano))
		}
		return w.Flush()
	},
}

func getContainers(context *cli.Context) ([]containerListing, error) {
	root := context.GlobalString("root")
	list, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			// The root is created lazily on the first create.
			return nil, nil
		}
		return nil, err
	}

	var items []containerListing
	for _, item := range list {
		if !item.IsDir() {
			continue
		}
		container, err := libcontainer.Load(root, item.Name())
		if err != nil {
			fmt.Fprintf(os.Stderr, "load container %s: %v\n", item.Name(), err)
			continue
		}
		status, err := container.Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "status for %s: %v\n", container.ID(), err)
			continue
		}
		state := container.State()
		bundle, _ := utils.Annotations(state.Config.Labels)
		items = append(items, containerListing{
			ID:      container.ID(),
			Pid:     state.InitProcessPid,
			Status:  status.String(),
			Bundle:  bundle,
			Created: state.Created,
		})
	}
	return items, nil
}
