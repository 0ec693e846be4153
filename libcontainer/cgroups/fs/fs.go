package fs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

var subsystems = []subsystem{
	&CpusetGroup{},
	&MemoryGroup{},
	&CpuGroup{},
	&PidsGroup{},
	&FreezerGroup{},
	&NameGroup{GroupName: "name=systemd", Join: true},
}

func init() {
	// If using cgroups-hybrid mode then add a "" controller indicating
	// it should join the cgroups v2.
	if cgroups.IsCgroup2HybridMode() {
		subsystems = append(subsystems, &NameGroup{GroupName: "", Join: true})
	}
}

type subsystem interface {
	// Name returns the name of the subsystem.
	Name() string
	// Apply creates and joins a cgroup, adding pid into it. Some
	// subsystems use resources to pre-configure the cgroup parents
	// before creating or joining it.
	Apply(path string, r *configs.Resources, pid int) error
	// Set sets the cgroup resources.
	Set(path string, r *configs.Resources) error
}

// Manager is the legacy-hierarchy filesystem backend. One logical cgroup
// maps to one path per mounted controller.
type Manager struct {
	mu      sync.Mutex
	cgroups *configs.Cgroup
	paths   map[string]string
}

func NewManager(cg *configs.Cgroup, paths map[string]string) (*Manager, error) {
	// Some v1 controllers (cpu and cpuset) expect configs.Resources to
	// not be nil in Apply.
	if cg.Resources == nil {
		return nil, errors.New("cgroup v1 manager needs configs.Resources to be set during manager creation")
	}
	if cg.Resources.Unified != nil {
		return nil, cgroups.ErrV1NoUnified
	}

	if paths == nil {
		var err error
		paths, err = initPaths(cg)
		if err != nil {
			return nil, err
		}
	}
	return &Manager{
		cgroups: cg,
		paths:   paths,
	}, nil
}

func (m *Manager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.cgroups

	for _, sys := range subsystems {
		name := sys.Name()
		p, ok := m.paths[name]
		if !ok {
			continue
		}
		if err := sys.Apply(p, c.Resources, pid); err != nil {
			return fmt.Errorf("unable to apply %s cgroup: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) Set(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	if r.Unified != nil {
		return cgroups.ErrV1NoUnified
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sys := range subsystems {
		path, ok := m.paths[sys.Name()]
		if !ok {
			// A controller with no mountpoint in this guest cannot
			// represent the limit; drop it rather than fail.
			logrus.Debugf("cgroup %q not mounted, skipping", sys.Name())
			continue
		}
		if err := sys.Set(path, r); err != nil {
			// Abort the remaining writes; the caller learns which
			// controller failed and decides about rollback.
			return fmt.Errorf("failed to set %s cgroup: %w", sys.Name(), err)
		}
	}
	return nil
}

func (m *Manager) GetPids() ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cgroups.GetPids(m.taskPath())
}

// taskPath picks the path used for membership queries. The freezer
// hierarchy is always provisioned by this manager.
func (m *Manager) taskPath() string {
	if p, ok := m.paths["freezer"]; ok {
		return p
	}
	for _, p := range m.paths {
		return p
	}
	return ""
}

func (m *Manager) Freeze(state configs.FreezerState) error {
	path, ok := m.paths["freezer"]
	if !ok {
		return errors.New("cannot toggle freezer: freezer cgroup not mounted")
	}
	prevState := m.cgroups.Resources.Freezer
	m.cgroups.Resources.Freezer = state
	freezer := &FreezerGroup{}
	if err := freezer.Set(path, m.cgroups.Resources); err != nil {
		m.cgroups.Resources.Freezer = prevState
		return err
	}
	return nil
}

func (m *Manager) GetFreezerState() (configs.FreezerState, error) {
	path, ok := m.paths["freezer"]
	if !ok {
		return configs.Undefined, nil
	}
	freezer := &FreezerGroup{}
	return freezer.GetState(path)
}

func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Destroy never kills: a cgroup with live members is a caller bug.
	if path := m.taskPath(); path != "" && cgroups.PathExists(path) {
		pids, err := cgroups.GetPids(path)
		if err == nil && len(pids) > 0 {
			return fmt.Errorf("unable to destroy cgroup %s: %d processes still running", path, len(pids))
		}
	}
	return cgroups.RemovePaths(m.paths)
}

func (m *Manager) Path(subsys string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths[subsys]
}

func (m *Manager) GetPaths() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths
}

func (m *Manager) GetCgroups() (*configs.Cgroup, error) {
	return m.cgroups, nil
}

func (m *Manager) Exists() bool {
	return cgroups.PathExists(m.taskPath())
}
