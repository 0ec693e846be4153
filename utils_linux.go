package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencontainers/runc/libcontainer/userns"
	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/vmjail/libcontainer"
	"github.com/vmjail/libcontainer/specconv"
)

var errEmptyID = errors.New("container id cannot be empty")

// fatal prints the error's details exactly once and exits.
func fatal(err error) {
	logrus.Error(err)
	os.Exit(1)
}

// logrusToStderr returns true if logrus' output is set to stderr, meaning
// an error printed there would show up twice.
func logrusToStderr() bool {
	l, ok := logrus.StandardLogger().Out.(*os.File)
	return ok && l.Fd() == os.Stderr.Fd()
}

// shouldHonorXDGRuntimeDir returns whether XDG_RUNTIME_DIR should be used
// as the default state root instead of /run.
func shouldHonorXDGRuntimeDir() bool {
	if os.Getenv("XDG_RUNTIME_DIR") == "" {
		return false
	}
	if os.Geteuid() != 0 {
		return true
	}
	if !userns.RunningInUserNS() {
		// euid == 0 and in the initial user namespace, so we're
		// really root and /run is ours.
		return false
	}
	// Pretend-root inside a user namespace.
	u := os.Getenv("USER")
	return u != "" && u != "root"
}

// reviseRootDir convert the root to absolute path.
func reviseRootDir(context *cli.Context) error {
	if !context.IsSet("root") {
		return nil
	}
	root, err := filepath.Abs(context.GlobalString("root"))
	if err != nil {
		return err
	}
	if root == "/" {
		// This can happen if --root argument is
		//  - "" (i.e. empty);
		//  - "." (and the CWD is /);
		//  - "../../.." (enough to get to /);
		//  - "/" (the actual /).
		return errors.New("option --root argument should not be set to \"/\"")
	}

	return context.GlobalSet("root", root)
}

const (
	exactArgs = iota
	minArgs
	maxArgs
)

func checkArgs(context *cli.Context, expected, checkType int) error {
	var err error
	cmdName := context.Command.Name
	switch checkType {
	case exactArgs:
		if context.NArg() != expected {
			err = fmt.Errorf("%s: %q requires exactly %d argument(s)", os.Args[0], cmdName, expected)
		}
	case minArgs:
		if context.NArg() < expected {
			err = fmt.Errorf("%s: %q requires a minimum of %d argument(s)", os.Args[0], cmdName, expected)
		}
	case maxArgs:
		if context.NArg() > expected {
			err = fmt.Errorf("%s: %q requires a maximum of %d argument(s)", os.Args[0], cmdName, expected)
		}
	}
	if err != nil {
		fmt.Printf("Incorrect Usage.\n\n")
		_ = cli.ShowCommandHelp(context, cmdName)
		return err
	}
	return nil
}

// setupSpec performs initial setup based on the cli.Context for the container
func setupSpec(context *cli.Context) (*specs.Spec, error) {
	bundle := context.String("bundle")
	if bundle != "" {
		if err := os.Chdir(bundle); err != nil {
			return nil, err
		}
	}
	return loadSpec(specConfig)
}

// loadSpec loads the specification from the provided path.
func loadSpec(cPath string) (*specs.Spec, error) {
	cf, err := os.Open(cPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("JSON specification file %s not found", cPath)
		}
		return nil, err
	}
	defer cf.Close()

	var spec specs.Spec
	if err := json.NewDecoder(cf).Decode(&spec); err != nil {
		return nil, err
	}
	if spec.Process == nil {
		return nil, errors.New("config.json: process property must not be empty")
	}
	if spec.Root == nil {
		return nil, errors.New("config.json: root property must not be empty")
	}
	return &spec, nil
}

func createContainer(context *cli.Context, id string, spec *specs.Spec) (*libcontainer.Container, error) {
	config, err := specconv.CreateLibcontainerConfig(&specconv.CreateOpts{
		CgroupName:       id,
		NoNewKeyring:     context.Bool("no-new-keyring"),
		NoPivotRoot:      context.Bool("no-pivot"),
		Spec:             spec,
		UseSystemdCgroup: context.GlobalBool("systemd-cgroup"),
	})
	if err != nil {
		return nil, err
	}
	return libcontainer.Create(context.GlobalString("root"), id, config)
}

// getContainer returns the container object for the ID given as the first
// command line argument, loaded from the state root.
func getContainer(context *cli.Context) (*libcontainer.Container, error) {
	id := context.Args().First()
	if id == "" {
		return nil, errEmptyID
	}
	return libcontainer.Load(context.GlobalString("root"), id)
}

// newProcess converts the spec's process description to a libcontainer one
// wired to the agent's own stdio.
func newProcess(p *specs.Process, init bool) *libcontainer.Process {
	return &libcontainer.Process{
		Args:   p.Args,
		Env:    p.Env,
		Cwd:    p.Cwd,
		Init:   init,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}
