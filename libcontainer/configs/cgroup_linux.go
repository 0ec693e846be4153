package configs

import (
	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
)

// FreezerState is the settable freezer state of a cgroup.
type FreezerState string

const (
	Undefined FreezerState = ""
	Frozen    FreezerState = "FROZEN"
	Thawed    FreezerState = "THAWED"
)

type Cgroup struct {
	// Name specifies the name of the cgroup
	Name string `json:"name,omitempty"`

	// Parent specifies the name of parent of cgroup or slice
	Parent string `json:"parent,omitempty"`

	// Path specifies the path to cgroups that are created and/or joined by the container.
	// The path is assumed to be relative to the host system cgroup mountpoint.
	Path string `json:"path"`

	// ScopePrefix describes prefix for the scope name
	ScopePrefix string `json:"scope_prefix"`

	// Resources contains various cgroups settings to apply
	*Resources

	// Systemd tells if systemd should be used to manage cgroups.
	Systemd bool

	// SystemdProps are any additional properties for systemd,
	// derived from org.systemd.property.xxx annotations.
	// Ignored unless systemd is used for managing cgroups.
	SystemdProps []systemdDbus.Property `json:"-"`

	// Rootless tells if rootless cgroups should be used.
	Rootless bool

	// The host UID that should own the cgroup, or nil to accept
	// the default ownership.  This should only be set when the
	// cgroupfs is to be mounted read/write.
	// Not all cgroup manager implementations support changing
	// the ownership.
	OwnerUID *int `json:"owner_uid,omitempty"`
}

// Resources is the declarative resource-limits document a container's cgroup
// is configured from. It is built once by specconv for a given apply and not
// mutated by the transformers.
type Resources struct {
	// Memory limit (in bytes).
	Memory int64 `json:"memory"`

	// Memory soft limit (in bytes).
	MemoryReservation int64 `json:"memory_reservation"`

	// Total memory usage (memory + swap); set `-1` to enable unlimited swap.
	MemorySwap int64 `json:"memory_swap"`

	// Kernel memory limit (in bytes). Only representable on the legacy
	// hierarchy; kernel memory accounting is unconditional on v2, so the
	// field is dropped there instead of failing the apply.
	KernelMemory int64 `json:"kernel_memory"`

	// CPU shares (relative weight vs. other containers).
	CpuShares uint64 `json:"cpu_shares"`

	// CPU hardcap limit (in usecs). Allowed cpu time in a given period.
	CpuQuota int64 `json:"cpu_quota"`

	// CPU period to be used for hardcapping (in usecs).
	CpuPeriod uint64 `json:"cpu_period"`

	// How much time realtime scheduling may use (in usecs).
	// Realtime scheduling only exists on the legacy hierarchy.
	CpuRtRuntime int64 `json:"cpu_rt_quota"`

	// CPU period to be used for realtime scheduling (in usecs).
	CpuRtPeriod uint64 `json:"cpu_rt_period"`

	// CPUs to use within the cpuset, as an inclusive range string ("0-3,7").
	// Empty means inherit from the parent, do not constrain.
	CpusetCpus string `json:"cpuset_cpus"`

	// Memory nodes to use within the cpuset, same format as CpusetCpus.
	CpusetMems string `json:"cpuset_mems"`

	// Process limit; <= 0 means unlimited and is encoded as the backend's
	// "max" sentinel, never a literal zero.
	PidsLimit int64 `json:"pids_limit"`

	// Freezer state to apply. Set by the lifecycle layer only; it is not
	// part of the inbound resource document.
	Freezer FreezerState `json:"freezer"`

	// Unified holds cgroup v2 key-value pairs passed through verbatim to
	// the unified hierarchy, e.g. "memory.high": "1G".
	Unified map[string]string `json:"unified,omitempty"`
}
