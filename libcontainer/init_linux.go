package libcontainer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// initConfig is the bootstrap payload the parent sends to the init process
// over the init pipe.
type initConfig struct {
	Args         []string `json:"args"`
	Env          []string `json:"env"`
	Cwd          string   `json:"cwd"`
	Hostname     string   `json:"hostname"`
	NoNewKeyring bool     `json:"no_new_keyring"`
}

// Init runs in the re-executed "init" child. It performs the in-container
// setup the parent cannot do from outside, acknowledges over the init
// pipe, and execs the workload. It only returns on error.
func Init() error {
	pipeFd, err := strconv.Atoi(os.Getenv("_LIBCONTAINER_INITPIPE"))
	if err != nil {
		return fmt.Errorf("unable to convert _LIBCONTAINER_INITPIPE: %w", err)
	}
	pipe := os.NewFile(uintptr(pipeFd), "initpipe")
	defer pipe.Close()

	var config initConfig
	if err := json.NewDecoder(pipe).Decode(&config); err != nil {
		return fmt.Errorf("reading bootstrap data: %w", err)
	}

	if len(config.Args) == 0 {
		return errors.New("no process args given")
	}

	if !config.NoNewKeyring {
		// A fresh session keyring keeps the workload from reading keys
		// of the process that spawned it.
		if _, err := unix.KeyctlJoinSessionKeyring(""); err != nil && err != unix.ENOSYS { //nolint:errorlint // unix errors are bare
			return fmt.Errorf("unable to join session keyring: %w", err)
		}
	}

	if config.Hostname != "" {
		if err := unix.Sethostname([]byte(config.Hostname)); err != nil {
			return fmt.Errorf("unable to set hostname: %w", err)
		}
	}

	if config.Cwd != "" {
		if err := unix.Chdir(config.Cwd); err != nil {
			return fmt.Errorf("unable to chdir to %q: %w", config.Cwd, err)
		}
	}

	name, err := exec.LookPath(config.Args[0])
	if err != nil {
		return err
	}

	// Tell the parent setup is done. The parent has already moved us into
	// the container's cgroup, so the exec below is charged correctly.
	if _, err := pipe.Write([]byte{0}); err != nil {
		return fmt.Errorf("unable to signal readiness: %w", err)
	}

	env := config.Env
	if len(env) == 0 {
		env = os.Environ()
	}
	return unix.Exec(name, config.Args, env)
}
