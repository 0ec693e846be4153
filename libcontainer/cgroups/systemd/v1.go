package systemd

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/cgroups/fs"
	"github.com/vmjail/libcontainer/configs"
)

// LegacyManager manages a transient unit on the init system's bus, with
// the per-controller cgroupfs work (join, freeze, pids, removal) delegated
// to the legacy filesystem backend operating on the unit's paths.
type LegacyManager struct {
	mu      sync.Mutex
	cgroups *configs.Cgroup
	paths   map[string]string
	dbus    *dbusConnManager
	fsMgr   cgroups.Manager
}

func NewLegacyManager(cg *configs.Cgroup, paths map[string]string) (*LegacyManager, error) {
	if cg.Rootless {
		return nil, errors.New("cannot use rootless systemd cgroups manager on cgroup v1")
	}
	if cg.Resources != nil && cg.Resources.Unified != nil {
		return nil, cgroups.ErrV1NoUnified
	}
	if paths == nil {
		var err error
		paths, err = initPaths(cg)
		if err != nil {
			return nil, err
		}
	}
	fsMgr, err := fs.NewManager(cg, paths)
	if err != nil {
		return nil, err
	}
	return &LegacyManager{
		cgroups: cg,
		paths:   paths,
		dbus:    newDbusConnManager(),
		fsMgr:   fsMgr,
	}, nil
}

// The controllers the legacy backend cares about. Co-mounted hierarchies
// (cpu,cpuacct) resolve to the same path through the mountinfo cache.
var legacySubsystems = []string{
	"cpu",
	"cpuset",
	"memory",
	"pids",
	"freezer",
	"name=systemd",
}

func initPaths(c *configs.Cgroup) (map[string]string, error) {
	paths := make(map[string]string)
	for _, name := range legacySubsystems {
		path, err := getSubsystemPath(c, strings.TrimPrefix(name, "name="))
		if err != nil {
			// Don't fail if a controller is not mounted.
			if cgroups.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		paths[name] = path
	}
	return paths, nil
}

func getSubsystemPath(c *configs.Cgroup, subsystem string) (string, error) {
	mountpoint, err := cgroups.FindCgroupMountpoint(subsystem)
	if err != nil {
		return "", err
	}

	initPath, err := cgroups.GetInitCgroup(subsystem)
	if err != nil {
		return "", err
	}
	// if pid 1 is systemd 226 or later, it will be in init.scope, not the root
	initPath = strings.TrimSuffix(filepath.Clean(initPath), "init.scope")

	slice := "system.slice"
	if c.Parent != "" {
		slice = c.Parent
	}

	slice, err = ExpandSlice(slice)
	if err != nil {
		return "", err
	}

	return filepath.Join(mountpoint, initPath, slice, getUnitName(c)), nil
}

func genV1ResourcesProperties(r *configs.Resources, cm *dbusConnManager) ([]systemdDbus.Property, error) {
	var properties []systemdDbus.Property

	if r.Memory != 0 {
		properties = append(properties,
			newProp("MemoryLimit", uint64(r.Memory)))
	}

	if r.CpuShares != 0 {
		properties = append(properties,
			newProp("CPUShares", r.CpuShares))
	}

	addCpuQuota(cm, &properties, r.CpuQuota, r.CpuPeriod)

	if r.PidsLimit != 0 {
		properties = append(properties,
			newProp("TasksMax", cgroups.PidsLimitToTasksMax(r.PidsLimit)))
	}

	err := addCpuset(cm, &properties, r.CpusetCpus, r.CpusetMems)
	if err != nil {
		return nil, err
	}

	return properties, nil
}

func (m *LegacyManager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.cgroups
	unitName := getUnitName(c)

	// A scope unit needs a member process at creation time; the init
	// system refuses one with no PIDs. For an empty provision only the
	// cgroupfs directories are prepared, and the unit is started when the
	// first real pid arrives.
	if pid == -1 && !strings.HasSuffix(unitName, ".slice") {
		return m.fsMgr.Apply(pid)
	}

	properties := genBaseProperties(c, pid)

	resourcesProperties, err := genV1ResourcesProperties(c.Resources, m.dbus)
	if err != nil {
		return err
	}
	properties = append(properties, resourcesProperties...)
	properties = append(properties, c.SystemdProps...)

	if err := startUnit(m.dbus, unitName, properties); err != nil {
		return err
	}

	// The unit covers only the hierarchies the init system manages; join
	// the rest (freezer, cpuset, ...) through cgroupfs directly.
	return m.fsMgr.Apply(pid)
}

func (m *LegacyManager) Set(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	if r.Unified != nil {
		return cgroups.ErrV1NoUnified
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	properties, err := genV1ResourcesProperties(r, m.dbus)
	if err != nil {
		return err
	}

	if err := setUnitProperties(m.dbus, getUnitName(m.cgroups), properties...); err != nil {
		if !isUnitNotFound(err) {
			return err
		}
		// The unit is not started yet (empty provision). Record the new
		// limits so the transient unit carries them once it starts.
		m.cgroups.Resources = r
	}

	// Reflect the limits into cgroupfs as well: properties the running
	// init system is too old for were only logged above, and the realtime
	// knobs have no unit property at all.
	return m.fsMgr.Set(r)
}

func (m *LegacyManager) GetPids() ([]int, error) {
	return m.fsMgr.GetPids()
}

func (m *LegacyManager) Freeze(state configs.FreezerState) error {
	return m.fsMgr.Freeze(state)
}

func (m *LegacyManager) GetFreezerState() (configs.FreezerState, error) {
	return m.fsMgr.GetFreezerState()
}

func (m *LegacyManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := stopUnit(m.dbus, getUnitName(m.cgroups)); err != nil {
		return err
	}
	if err := m.fsMgr.Destroy(); err != nil {
		return err
	}
	resetFailedUnit(m.dbus, getUnitName(m.cgroups))
	return nil
}

func (m *LegacyManager) Path(subsys string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths[subsys]
}

func (m *LegacyManager) GetPaths() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths
}

func (m *LegacyManager) GetCgroups() (*configs.Cgroup, error) {
	return m.cgroups, nil
}

func (m *LegacyManager) Exists() bool {
	return m.fsMgr.Exists()
}
