package libcontainer

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
	"github.com/vmjail/libcontainer/utils"
)

// Status is the status of a container.
type Status int

const (
	// Created is the status that denotes the container exists and its
	// cgroup has been provisioned, but its workload has not been started.
	Created Status = iota
	// Running is the status that denotes the container's workload is
	// executing.
	Running
	// Paused is the status that denotes all processes in the container
	// are confirmed frozen by the kernel.
	Paused
	// Stopped is the status that denotes the container's workload has
	// exited (or was never started and its cgroup is gone).
	Stopped
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Container is a libcontainer container object. Each container is
// thread-safe within the same process; the on-disk state file makes it
// reconstructible across processes via Load.
type Container struct {
	id                   string
	stateDir             string
	config               *configs.Config
	cgroupManager        cgroups.Manager
	initProcessPid       int
	initProcessStartTime uint64
	created              time.Time
	mu                   sync.Mutex
}

// ID returns the container's unique ID.
func (c *Container) ID() string {
	return c.id
}

// Config returns a copy of the container's configuration. The cgroup
// configuration is copied too, so a caller editing the result (the update
// path does) cannot reach the container's own record of the limits that
// are actually applied.
func (c *Container) Config() configs.Config {
	config := *c.config
	if c.config.Cgroups != nil {
		cg := *c.config.Cgroups
		if c.config.Cgroups.Resources != nil {
			res := *c.config.Cgroups.Resources
			cg.Resources = &res
		}
		config.Cgroups = &cg
	}
	return config
}

// Status derives the container's current status from the kernel rather
// than from a cached field: the init process may have exited, or the
// freezer toggled, without this process observing it.
func (c *Container) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStatus()
}

func (c *Container) currentStatus() (Status, error) {
	if c.initProcessPid == 0 {
		if c.cgroupManager.Exists() {
			return Created, nil
		}
		return Stopped, nil
	}
	startTime, err := processStartTime(c.initProcessPid)
	if err != nil || startTime != c.initProcessStartTime {
		// Init is gone. A recycled pid does not make the container alive.
		return Stopped, nil
	}
	fState, err := c.cgroupManager.GetFreezerState()
	if err != nil {
		return Stopped, err
	}
	if fState == configs.Frozen {
		return Paused, nil
	}
	return Running, nil
}

// processStartTime returns the start time (in clock ticks since boot) of
// the given pid, read from /proc. Comparing it against the recorded value
// protects every signal and status decision from pid reuse.
func processStartTime(pid int) (uint64, error) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, err
	}
	// The comm field (2) may contain spaces and parentheses, so count
	// fields from the last ')'. Field 22 is starttime, see proc(5).
	i := strings.LastIndexByte(string(data), ')')
	if i == -1 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(string(data[i+1:]))
	if len(fields) < 20 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	return strconv.ParseUint(fields[19], 10, 64)
}

// State returns the current container's state information.
func (c *Container) State() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentState()
}

func (c *Container) currentState() *State {
	return &State{
		ID:                   c.id,
		InitProcessPid:       c.initProcessPid,
		InitProcessStartTime: c.initProcessStartTime,
		Created:              c.created,
		Config:               *c.config,
		CgroupPaths:          c.cgroupManager.GetPaths(),
	}
}

// OCIState returns the container's state in the runtime-spec wire form, as
// reported to hooks and to callers of the state operation.
func (c *Container) OCIState() (*specs.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.currentStatus()
	if err != nil {
		return nil, err
	}
	bundle, annotations := utils.Annotations(c.config.Labels)
	return &specs.State{
		Version:     specs.Version,
		ID:          c.id,
		Status:      specs.ContainerState(status.String()),
		Pid:         c.initProcessPid,
		Bundle:      bundle,
		Annotations: annotations,
	}, nil
}

// Processes returns the pids of all processes inside the container's
// cgroup, including processes the init process forked.
func (c *Container) Processes() ([]int, error) {
	pids, err := c.cgroupManager.GetPids()
	if err != nil {
		return nil, fmt.Errorf("unable to get container pids: %w", err)
	}
	return pids, nil
}

// Start starts a process inside the container. For the init process this
// moves the container from Created to Running.
func (c *Container) Start(process *Process) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if process.Init {
		status, err := c.currentStatus()
		if err != nil {
			return err
		}
		if status != Created {
			return ErrRunning
		}
	}
	return c.start(process)
}

func (c *Container) start(process *Process) error {
	parent, err := c.newParentProcess(process)
	if err != nil {
		return fmt.Errorf("unable to create new parent process: %w", err)
	}
	if err := parent.start(); err != nil {
		return fmt.Errorf("unable to start container process: %w", err)
	}
	if process.Init {
		c.initProcessPid = parent.pid()
		startTime, err := processStartTime(c.initProcessPid)
		if err != nil {
			return fmt.Errorf("unable to read init start time: %w", err)
		}
		c.initProcessStartTime = startTime
		if err := c.saveState(c.currentState()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) newParentProcess(p *Process) (parentProcess, error) {
	parentInitPipe, childInitPipe, err := utils.NewSockPair("init")
	if err != nil {
		return nil, err
	}
	messageSockPair := filePair{parentInitPipe, childInitPipe}
	cmd, err := c.commandTemplate(p, childInitPipe)
	if err != nil {
		return nil, err
	}
	return c.newInitProcess(p, cmd, messageSockPair)
}

// Pause freezes all processes in the container. The call returns only once
// the kernel confirms the frozen state; on failure (including a freeze
// that never confirmed) the cgroup is thawed back and the container is
// still Running.
func (c *Container) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if status != Running {
		return ErrNotRunning
	}
	return c.cgroupManager.Freeze(configs.Frozen)
}

// Resume thaws all processes in the container. Resuming a container that
// is not paused is an error, not a no-op: the caller's view of the
// lifecycle is stale and it should re-read the status.
func (c *Container) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if status != Paused {
		return ErrNotPaused
	}
	return c.cgroupManager.Freeze(configs.Thawed)
}

// Signal sends the provided signal code to the container's init process,
// or, with all set, to every process in its cgroup.
func (c *Container) Signal(s os.Signal, all bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if all {
		if status == Stopped && !c.cgroupManager.Exists() {
			// An already dead container, no error.
			return nil
		}
		return c.signalAllProcesses(s)
	}
	if status == Stopped || c.initProcessPid == 0 {
		return ErrNotRunning
	}
	sig, ok := s.(unix.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal type %T", s)
	}
	if err := unix.Kill(c.initProcessPid, sig); err != nil {
		if err == unix.ESRCH { //nolint:errorlint // unix errors are bare
			return ErrNotRunning
		}
		return fmt.Errorf("unable to signal init: %w", err)
	}
	return nil
}

// signalAllProcesses freezes the cgroup around the pid listing so a
// forking workload cannot race new children past the kill loop.
func (c *Container) signalAllProcesses(s os.Signal) error {
	sig, ok := s.(unix.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal type %T", s)
	}
	wasPaused := false
	if fState, err := c.cgroupManager.GetFreezerState(); err == nil && fState == configs.Frozen {
		wasPaused = true
	}
	if !wasPaused {
		if err := c.cgroupManager.Freeze(configs.Frozen); err != nil {
			logrus.Warnf("unable to freeze before signaling all: %v", err)
		}
	}
	pids, err := c.cgroupManager.GetPids()
	if err != nil {
		if !wasPaused {
			_ = c.cgroupManager.Freeze(configs.Thawed)
		}
		return fmt.Errorf("unable to get container pids: %w", err)
	}
	for _, pid := range pids {
		err := unix.Kill(pid, sig)
		if err != nil && err != unix.ESRCH { //nolint:errorlint // unix errors are bare
			logrus.Warnf("unable to signal pid %d: %v", pid, err)
		}
	}
	if !wasPaused {
		if err := c.cgroupManager.Freeze(configs.Thawed); err != nil {
			logrus.Warnf("unable to thaw after signaling all: %v", err)
		}
	}
	return nil
}

// Set updates the container's resource limits in place. The previous
// limits are restored if the kernel rejects any of the new ones, so the
// persisted configuration never disagrees with the cgroup.
func (c *Container) Set(config configs.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	if status == Stopped {
		return ErrNotRunning
	}
	// Snapshot the limits currently applied; the incoming config may share
	// pointers with c.config, and rollback must not chase them.
	prev := *c.config.Cgroups.Resources
	if err := c.cgroupManager.Set(config.Cgroups.Resources); err != nil {
		if rerr := c.cgroupManager.Set(&prev); rerr != nil {
			logrus.Warnf("unable to restore previous cgroup configuration: %v", rerr)
		}
		return err
	}
	c.config = &config
	return c.saveState(c.currentState())
}

// Destroy removes the container's cgroup and state directory. Only a
// Stopped container may be destroyed; Destroy never kills anything. It is
// idempotent: destroying remnants of an already removed container (for
// example after an external cgroup cleanup) succeeds.
func (c *Container) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, err := c.currentStatus()
	if err != nil {
		return err
	}
	switch status {
	case Stopped:
		// ok
	case Paused:
		return ErrPaused
	default:
		return ErrRunning
	}
	if err := c.cgroupManager.Destroy(); err != nil {
		return fmt.Errorf("unable to remove container's cgroup: %w", err)
	}
	if err := os.RemoveAll(c.stateDir); err != nil {
		return fmt.Errorf("unable to remove container state dir: %w", err)
	}
	c.initProcessPid = 0
	return nil
}
