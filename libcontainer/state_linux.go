package libcontainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmjail/libcontainer/configs"
)

const stateFilename = "state.json"

// State represents a running container's state. It is everything the agent
// needs to reattach to a container it did not create in this process:
// a later invocation loads the file, rebuilds the cgroup manager from the
// saved paths, and derives the current status from the kernel.
type State struct {
	// ID is the container ID.
	ID string `json:"id"`

	// InitProcessPid is the init process id in the parent namespace.
	// Zero means the container was created but never started.
	InitProcessPid int `json:"init_process_pid"`

	// InitProcessStartTime is the init process start time in clock ticks
	// since system boot time, used to tell a recycled pid from ours.
	InitProcessStartTime uint64 `json:"init_process_start"`

	// Created is the timestamp when the container was created.
	Created time.Time `json:"created"`

	// Config is the container's configuration.
	Config configs.Config `json:"config"`

	// CgroupPaths are paths to cgroups, keyed by controller name. On the
	// unified hierarchy there is a single path under the "" key.
	CgroupPaths map[string]string `json:"cgroup_paths"`
}

// saveState persists the container's state file. The write goes through a
// temporary file and rename, so a crashed agent never leaves a truncated
// state behind.
func (c *Container) saveState(s *State) (retErr error) {
	tmpFile, err := os.CreateTemp(c.stateDir, "state-")
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
		}
	}()

	if err := json.NewEncoder(tmpFile).Encode(s); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	stateFilePath := filepath.Join(c.stateDir, stateFilename)
	return os.Rename(tmpFile.Name(), stateFilePath)
}

func loadState(stateDir string) (*State, error) {
	stateFilePath := filepath.Join(stateDir, stateFilename)
	f, err := os.Open(stateFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	defer f.Close()

	var state State
	if err := json.NewDecoder(f).Decode(&state); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", stateFilePath, err)
	}
	return &state, nil
}
