package cgroups

import (
	"errors"

	"github.com/vmjail/libcontainer/configs"
)

var (
	// ErrV1NoUnified is returned when a unified resources map is supplied
	// to a cgroup v1 manager.
	ErrV1NoUnified = errors.New("unified resources cannot be applied to cgroup v1")

	// ErrFreezeTimeout is returned when the kernel did not confirm the
	// frozen state within the backend's retry budget. The container is
	// left thawed in that case.
	ErrFreezeTimeout = errors.New("freeze not confirmed by the kernel")
)

// Manager is the single interface both cgroup backends implement. A manager
// owns exactly one cgroup (a v1 per-controller path set, a v2 directory, or a
// systemd unit) and must never touch a path it did not provision.
type Manager interface {
	// Apply provisions the cgroup and, for a valid pid, attaches the
	// process to it. Apply(-1) provisions an empty cgroup without
	// attaching anything.
	Apply(pid int) error

	// GetPids returns the PIDs of the cgroup's member tasks.
	GetPids() ([]int, error)

	// Set writes the resource limits to the cgroup. The first failing
	// controller aborts the remaining writes; the error names the
	// controller that failed.
	Set(r *configs.Resources) error

	// Freeze suspends or resumes all tasks in the cgroup. A transition to
	// Frozen returns only once the kernel reports the frozen state
	// reached, or fails with ErrFreezeTimeout leaving the cgroup thawed.
	Freeze(state configs.FreezerState) error

	// GetFreezerState reads the current freezer state back from the kernel.
	GetFreezerState() (configs.FreezerState, error)

	// Destroy removes the cgroup or stops the unit. It is idempotent: a
	// cgroup or unit that already vanished is a successful no-op.
	// Destroy never kills member tasks; teardown of live processes is the
	// lifecycle layer's job.
	Destroy() error

	// Path returns the absolute cgroup path for the given v1 subsystem.
	// For cgroup v2 the subsystem name is ignored ("" is conventional).
	Path(subsystem string) string

	// GetPaths returns the per-subsystem path map as persisted in the
	// container state, so a restarted supervisor can reattach. For
	// cgroup v2 the map has a single "" key.
	GetPaths() map[string]string

	// GetCgroups returns the cgroup configuration this manager was
	// created from.
	GetCgroups() (*configs.Cgroup, error)

	// Exists reports whether the cgroup is currently provisioned.
	Exists() bool
}
