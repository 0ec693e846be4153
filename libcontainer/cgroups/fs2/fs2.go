package fs2

import (
	"fmt"
	"strings"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

// Manager is the unified-hierarchy filesystem backend. All controllers
// share the one directory at dirPath.
type Manager struct {
	config *configs.Cgroup
	// dirPath is like "/sys/fs/cgroup/system.slice/vmjail-ctr.scope"
	dirPath string
	// controllers is content of "cgroup.controllers" file.
	// excludes pseudo-controllers ("devices" and "freezer").
	controllers map[string]struct{}
}

// NewManager creates a manager for cgroup v2 unified hierarchy.
// dirPath is like "/sys/fs/cgroup/system.slice/vmjail-ctr.scope".
// If dirPath is empty, it is automatically set using config.
func NewManager(config *configs.Cgroup, dirPath string) (*Manager, error) {
	if dirPath == "" {
		var err error
		dirPath, err = defaultDirPath(config)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{
		config:  config,
		dirPath: dirPath,
	}, nil
}

func (m *Manager) getControllers() error {
	if m.controllers != nil {
		return nil
	}

	data, err := cgroups.ReadFile(m.dirPath, "cgroup.controllers")
	if err != nil {
		if m.config.Rootless && m.config.Path == "" {
			return nil
		}
		return err
	}
	fields := strings.Fields(data)
	m.controllers = make(map[string]struct{}, len(fields))
	for _, c := range fields {
		m.controllers[c] = struct{}{}
	}

	return nil
}

func (m *Manager) Apply(pid int) error {
	if err := CreateCgroupPath(m.dirPath, m.config); err != nil {
		return err
	}
	if err := cgroups.WriteCgroupProc(m.dirPath, pid); err != nil {
		return err
	}
	return nil
}

func (m *Manager) GetPids() ([]int, error) {
	return cgroups.GetPids(m.dirPath)
}

func (m *Manager) Set(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	if err := m.getControllers(); err != nil {
		return err
	}
	// Each controller is transformed and written in turn; the first
	// failure aborts the rest and names the controller.
	if err := setCpu(m.dirPath, r); err != nil {
		return fmt.Errorf("failed to set cpu limits: %w", err)
	}
	if err := setMemory(m.dirPath, r); err != nil {
		return fmt.Errorf("failed to set memory limits: %w", err)
	}
	if err := setPids(m.dirPath, r); err != nil {
		return fmt.Errorf("failed to set pids limits: %w", err)
	}
	if err := setCpuset(m.dirPath, r); err != nil {
		return fmt.Errorf("failed to set cpuset limits: %w", err)
	}
	if err := setUnified(m.dirPath, r); err != nil {
		return err
	}
	return nil
}

// setUnified writes the raw key-value passthrough map. Keys are written in
// unspecified order; callers needing ordering use the typed fields.
func setUnified(dirPath string, r *configs.Resources) error {
	for k, v := range r.Unified {
		if err := cgroups.WriteFile(dirPath, k, v); err != nil {
			errC := strings.SplitN(k, ".", 2)[0]
			return fmt.Errorf("failed to set unified resource %q on %s controller: %w", k, errC, err)
		}
	}
	return nil
}

func (m *Manager) Freeze(state configs.FreezerState) error {
	return setFreezer(m.dirPath, state)
}

func (m *Manager) GetFreezerState() (configs.FreezerState, error) {
	return getFreezer(m.dirPath)
}

func (m *Manager) Destroy() error {
	if cgroups.PathExists(m.dirPath) {
		pids, err := cgroups.GetPids(m.dirPath)
		if err == nil && len(pids) > 0 {
			return fmt.Errorf("unable to destroy cgroup %s: %d processes still running", m.dirPath, len(pids))
		}
	}
	return cgroups.RemovePath(m.dirPath)
}

// Path for the v2 manager takes the subsystem name for interface
// compatibility only; every controller lives at dirPath.
func (m *Manager) Path(_ string) string {
	return m.dirPath
}

// GetPaths uses the "" key for the single unified path, matching what
// /proc/<pid>/cgroup reports for cgroup v2.
func (m *Manager) GetPaths() map[string]string {
	return map[string]string{"": m.dirPath}
}

func (m *Manager) GetCgroups() (*configs.Cgroup, error) {
	return m.config, nil
}

func (m *Manager) Exists() bool {
	return cgroups.PathExists(m.dirPath)
}
