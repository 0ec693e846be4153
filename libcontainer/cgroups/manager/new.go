package manager

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/cgroups/fs"
	"github.com/vmjail/libcontainer/cgroups/fs2"
	"github.com/vmjail/libcontainer/cgroups/systemd"
	"github.com/vmjail/libcontainer/configs"
)

// New returns the cgroup manager matching the guest: the hierarchy mode is
// probed once from the running kernel, and config.Systemd selects whether
// transient units or plain cgroupfs directories back the container.
func New(config *configs.Cgroup) (cgroups.Manager, error) {
	return NewWithPaths(config, nil)
}

// NewWithPaths is like New, with an additional (and optional) paths
// argument taken from a previously saved state, so a manager can reattach
// to an existing cgroup instead of computing the paths again.
func NewWithPaths(config *configs.Cgroup, paths map[string]string) (cgroups.Manager, error) {
	if config == nil {
		return nil, errors.New("cgroups/manager.New: config must not be nil")
	}
	if config.Systemd && !systemd.IsRunningSystemd() {
		return nil, errors.New("systemd not running on this host, cannot use systemd cgroups manager")
	}

	// Cgroup v2 aka unified hierarchy.
	if cgroups.IsCgroup2UnifiedMode() {
		path, err := getUnifiedPath(paths)
		if err != nil {
			return nil, fmt.Errorf("manager.NewWithPaths: inconsistent paths: %w", err)
		}
		if config.Systemd {
			return systemd.NewUnifiedManager(config, path)
		}
		return fs2.NewManager(config, path)
	}

	// Cgroup v1.
	if config.Systemd {
		return systemd.NewLegacyManager(config, paths)
	}
	return fs.NewManager(config, paths)
}

// getUnifiedPath is an implementation detail of the container state file.
// The state saves cgroup paths as a per-subsystem map (as returned by
// GetPaths()), but with v2 there is one single unified path, stored under
// the "" key.
//
// This function converts from that map to a string, and also checks that
// the map itself is sane.
func getUnifiedPath(paths map[string]string) (string, error) {
	if len(paths) > 1 {
		return "", fmt.Errorf("expected a single path, got %+v", paths)
	}
	path := paths[""]
	// can be empty
	if path != "" {
		if filepath.Clean(path) != path || !filepath.IsAbs(path) {
			return "", fmt.Errorf("invalid path: %q", path)
		}
	}
	return path, nil
}
