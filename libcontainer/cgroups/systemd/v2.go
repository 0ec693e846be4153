package systemd

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/sirupsen/logrus"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/cgroups/fs2"
	"github.com/vmjail/libcontainer/configs"
)

// UnifiedManager manages a transient unit on the unified hierarchy. The
// unit owns the cgroup directory; file-level operations (freeze, pids,
// limits the init system has no property for) go through the v2
// filesystem backend on the same path.
type UnifiedManager struct {
	mu      sync.Mutex
	cgroups *configs.Cgroup
	// path is like "/sys/fs/cgroup/system.slice/vmjail-<id>.scope"
	path  string
	dbus  *dbusConnManager
	fsMgr cgroups.Manager
}

func NewUnifiedManager(config *configs.Cgroup, path string) (*UnifiedManager, error) {
	m := &UnifiedManager{
		cgroups: config,
		path:    path,
		dbus:    newDbusConnManager(),
	}
	if err := m.initPath(); err != nil {
		return nil, err
	}

	fsMgr, err := fs2.NewManager(config, m.path)
	if err != nil {
		return nil, err
	}
	m.fsMgr = fsMgr
	return m, nil
}

// initPath derives the unit's cgroup directory from the parent slice and
// the unit name, unless one was handed in (as happens when reattaching to
// a persisted state).
func (m *UnifiedManager) initPath() error {
	if m.path != "" {
		return nil
	}

	slice := "system.slice"
	if m.cgroups.Parent != "" {
		slice = m.cgroups.Parent
	}

	slicePath, err := ExpandSlice(slice)
	if err != nil {
		return err
	}
	m.path = filepath.Join(fs2.UnifiedMountpoint, slicePath, getUnitName(m.cgroups))
	return nil
}

// unifiedResToSystemdProps translates entries of the Unified passthrough
// map to the matching unit properties, so the init system's view stays
// consistent with what gets written to cgroupfs.
func unifiedResToSystemdProps(cm *dbusConnManager, res map[string]string) (props []systemdDbus.Property, _ error) {
	var err error

	for k, v := range res {
		if strings.Contains(k, "/") {
			return nil, fmt.Errorf("unified resource %q must be a file name (no slashes)", k)
		}
		v = strings.TrimSpace(v)
		// Kernel is quite forgiving to extra whitespace
		// around the value, and so should we.
		switch k {
		case "cpu.max":
			// value: quota [period]
			quota := int64(0) // 0 means "unlimited" for addCpuQuota, if period is set
			period := defCPUQuotaPeriod
			sv := strings.Fields(v)
			if len(sv) < 1 || len(sv) > 2 {
				return nil, fmt.Errorf("unified resource %q value invalid: %q", k, v)
			}
			// quota
			if sv[0] != "max" {
				quota, err = strconv.ParseInt(sv[0], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("unified resource %q period value conversion error: %w", k, err)
				}
			}
			// period
			if len(sv) == 2 {
				period, err = strconv.ParseUint(sv[1], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("unified resource %q quota value conversion error: %w", k, err)
				}
			}
			addCpuQuota(cm, &props, quota, period)

		case "cpu.weight":
			num, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unified resource %q value conversion error: %w", k, err)
			}
			props = append(props,
				newProp("CPUWeight", num))

		case "cpuset.cpus", "cpuset.mems":
			bits, err := cgroups.RangeToBits(v)
			if err != nil {
				return nil, fmt.Errorf("unified resource %q=%q conversion error: %w", k, v, err)
			}
			m := map[string]string{
				"cpuset.cpus": "AllowedCPUs",
				"cpuset.mems": "AllowedMemoryNodes",
			}
			// systemd only supports these properties since v244
			sdVer := systemdVersion(cm)
			if sdVer >= 244 {
				props = append(props,
					newProp(m[k], bits))
			} else {
				logrus.Debugf("systemd v%d is too old to support %s"+
					" (setting will still be applied to cgroupfs)",
					sdVer, m[k])
			}

		case "memory.high", "memory.low", "memory.min", "memory.max", "memory.swap.max":
			num := uint64(math.MaxUint64)
			if v != "max" {
				num, err = strconv.ParseUint(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("unified resource %q value conversion error: %w", k, err)
				}
			}
			m := map[string]string{
				"memory.high":     "MemoryHigh",
				"memory.low":      "MemoryLow",
				"memory.min":      "MemoryMin",
				"memory.max":      "MemoryMax",
				"memory.swap.max": "MemorySwapMax",
			}
			props = append(props,
				newProp(m[k], num))

		case "pids.max":
			num := uint64(math.MaxUint64)
			if v != "max" {
				var err error
				num, err = strconv.ParseUint(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("unified resource %q value conversion error: %w", k, err)
				}
			}
			props = append(props,
				newProp("TasksMax", num))

		default:
			// Ignore the unknown resource here -- will still be
			// applied in Set which calls fs2.Set.
			logrus.Debugf("don't know how to convert unified resource %q=%q to systemd unit property; skipping (will still be applied to cgroupfs)", k, v)
		}
	}

	return props, nil
}

func genV2ResourcesProperties(r *configs.Resources, cm *dbusConnManager) ([]systemdDbus.Property, error) {
	var properties []systemdDbus.Property

	// NOTE: Without the equivalent of the legacy kmem knob on the unified
	// hierarchy, the limit is dropped here with a visible trace so policy
	// layers can tell silence from enforcement.
	if r.KernelMemory != 0 {
		logrus.Warnf("kernel memory limit %d dropped: no equivalent on the unified hierarchy", r.KernelMemory)
	}

	if r.Memory != 0 {
		properties = append(properties,
			newProp("MemoryMax", uint64(r.Memory)))
	}

	swap, err := cgroups.ConvertMemorySwapToCgroupV2Value(r.MemorySwap, r.Memory)
	if err != nil {
		return nil, err
	}
	if swap != 0 {
		properties = append(properties,
			newProp("MemorySwapMax", uint64(swap)))
	}

	if r.MemoryReservation != 0 {
		// systemd only supports MemoryLow since v240
		sdVer := systemdVersion(cm)
		if sdVer >= 240 {
			properties = append(properties,
				newProp("MemoryLow", uint64(r.MemoryReservation)))
		} else {
			logrus.Debugf("systemd v%d is too old to support MemoryLow"+
				" (setting will still be applied to cgroupfs)", sdVer)
		}
	}

	if r.CpuShares != 0 {
		weight := cgroups.ConvertCPUSharesToCgroupV2Value(r.CpuShares)
		properties = append(properties,
			newProp("CPUWeight", weight))
	}

	addCpuQuota(cm, &properties, r.CpuQuota, r.CpuPeriod)

	if r.PidsLimit != 0 {
		properties = append(properties,
			newProp("TasksMax", cgroups.PidsLimitToTasksMax(r.PidsLimit)))
	}

	err = addCpuset(cm, &properties, r.CpusetCpus, r.CpusetMems)
	if err != nil {
		return nil, err
	}

	// convert Resources.Unified map to systemd properties
	if r.Unified != nil {
		unifiedProps, err := unifiedResToSystemdProps(cm, r.Unified)
		if err != nil {
			return nil, err
		}
		properties = append(properties, unifiedProps...)
	}

	return properties, nil
}

func (m *UnifiedManager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.cgroups
	unitName := getUnitName(c)

	// A scope unit needs a member process at creation time; the init
	// system refuses one with no PIDs. For an empty provision only the
	// cgroup directory is prepared, and the unit is started when the
	// first real pid arrives.
	if pid == -1 && !strings.HasSuffix(unitName, ".slice") {
		return m.fsMgr.Apply(pid)
	}

	properties := genBaseProperties(c, pid)

	resourcesProperties, err := genV2ResourcesProperties(c.Resources, m.dbus)
	if err != nil {
		return err
	}
	properties = append(properties, resourcesProperties...)
	properties = append(properties, c.SystemdProps...)

	if err := startUnit(m.dbus, unitName, properties); err != nil {
		return fmt.Errorf("unable to start unit %q (properties %+v): %w", unitName, properties, err)
	}

	// The unit's cgroup directory exists now; let the filesystem backend
	// make sure the controllers the agent writes to are enabled.
	return m.fsMgr.Apply(pid)
}

func (m *UnifiedManager) Set(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	properties, err := genV2ResourcesProperties(r, m.dbus)
	if err != nil {
		return err
	}

	if err := setUnitProperties(m.dbus, getUnitName(m.cgroups), properties...); err != nil {
		if !isUnitNotFound(err) {
			return fmt.Errorf("unable to set unit properties: %w", err)
		}
		// The unit is not started yet (empty provision). Record the new
		// limits so the transient unit carries them once it starts.
		m.cgroups.Resources = r
	}

	// Settings the init system is too old for were only logged above;
	// write them through cgroupfs so the kernel state matches the request.
	return m.fsMgr.Set(r)
}

func (m *UnifiedManager) GetPids() ([]int, error) {
	return m.fsMgr.GetPids()
}

func (m *UnifiedManager) Freeze(state configs.FreezerState) error {
	return m.fsMgr.Freeze(state)
}

func (m *UnifiedManager) GetFreezerState() (configs.FreezerState, error) {
	return m.fsMgr.GetFreezerState()
}

func (m *UnifiedManager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	unitName := getUnitName(m.cgroups)
	if err := stopUnit(m.dbus, unitName); err != nil {
		return err
	}

	// The init system may have removed the directory already; the
	// filesystem backend treats that as success.
	if err := m.fsMgr.Destroy(); err != nil {
		return err
	}

	resetFailedUnit(m.dbus, unitName)
	return nil
}

// Path of the unified hierarchy is the same for all controllers.
func (m *UnifiedManager) Path(_ string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *UnifiedManager) GetPaths() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]string{"": m.path}
}

func (m *UnifiedManager) GetCgroups() (*configs.Cgroup, error) {
	return m.cgroups, nil
}

func (m *UnifiedManager) Exists() bool {
	return cgroups.PathExists(m.path)
}
