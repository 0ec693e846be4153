package libcontainer

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/vmjail/libcontainer/configs"
)

type mockCgroupManager struct {
	pids      []int
	paths     map[string]string
	exists    bool
	frozen    configs.FreezerState
	destroyed bool

	// memoryHistory records the memory limit of every Set call;
	// failSetMemory makes Set reject that exact limit.
	memoryHistory []int64
	failSetMemory int64
}

func (m *mockCgroupManager) Apply(pid int) error {
	m.exists = true
	return nil
}

func (m *mockCgroupManager) GetPids() ([]int, error) {
	return m.pids, nil
}

func (m *mockCgroupManager) Set(r *configs.Resources) error {
	m.memoryHistory = append(m.memoryHistory, r.Memory)
	if m.failSetMemory != 0 && r.Memory == m.failSetMemory {
		return errors.New("device or resource busy")
	}
	return nil
}

func (m *mockCgroupManager) Freeze(state configs.FreezerState) error {
	m.frozen = state
	return nil
}

func (m *mockCgroupManager) GetFreezerState() (configs.FreezerState, error) {
	return m.frozen, nil
}

func (m *mockCgroupManager) Destroy() error {
	m.destroyed = true
	m.exists = false
	return nil
}

func (m *mockCgroupManager) Path(subsystem string) string {
	return m.paths[subsystem]
}

func (m *mockCgroupManager) GetPaths() map[string]string {
	return m.paths
}

func (m *mockCgroupManager) GetCgroups() (*configs.Cgroup, error) {
	return nil, nil
}

func (m *mockCgroupManager) Exists() bool {
	return m.exists
}

func newTestContainer(t *testing.T, m *mockCgroupManager) *Container {
	t.Helper()
	return &Container{
		id:            "myid",
		stateDir:      t.TempDir(),
		config:        &configs.Config{Cgroups: &configs.Cgroup{Resources: &configs.Resources{}}},
		cgroupManager: m,
	}
}

// runningContainer returns a container whose init process is this test
// process itself, so the pid and start time checks see a live init.
func runningContainer(t *testing.T, m *mockCgroupManager) *Container {
	t.Helper()
	c := newTestContainer(t, m)
	c.initProcessPid = os.Getpid()
	st, err := processStartTime(c.initProcessPid)
	if err != nil {
		t.Fatal(err)
	}
	c.initProcessStartTime = st
	return c
}

func TestStatusCreated(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{exists: true})
	status, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != Created {
		t.Errorf("expected created, got %s", status)
	}
}

func TestStatusStoppedNoCgroup(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{})
	status, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != Stopped {
		t.Errorf("expected stopped, got %s", status)
	}
}

func TestStatusStoppedDeadPid(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{exists: true})
	c.initProcessPid = os.Getpid()
	// A wrong start time means the pid was recycled and init is gone.
	c.initProcessStartTime = 1
	status, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != Stopped {
		t.Errorf("expected stopped, got %s", status)
	}
}

func TestStatusRunningAndPaused(t *testing.T) {
	m := &mockCgroupManager{exists: true}
	c := runningContainer(t, m)

	status, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != Running {
		t.Errorf("expected running, got %s", status)
	}

	m.frozen = configs.Frozen
	status, err = c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != Paused {
		t.Errorf("expected paused, got %s", status)
	}
}

func TestPauseResume(t *testing.T) {
	m := &mockCgroupManager{exists: true}
	c := runningContainer(t, m)

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if m.frozen != configs.Frozen {
		t.Error("expected cgroup to be frozen")
	}

	// Pausing a paused container must fail: it is not Running anymore.
	if err := c.Pause(); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}

	if err := c.Resume(); err != nil {
		t.Fatal(err)
	}
	if m.frozen != configs.Thawed {
		t.Error("expected cgroup to be thawed")
	}

	if err := c.Resume(); err != ErrNotPaused {
		t.Errorf("expected ErrNotPaused, got %v", err)
	}
}

func TestResumeNotPaused(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{exists: true})
	if err := c.Resume(); err != ErrNotPaused {
		t.Errorf("expected ErrNotPaused, got %v", err)
	}
}

func TestDestroyGuards(t *testing.T) {
	m := &mockCgroupManager{exists: true}
	c := runningContainer(t, m)

	if err := c.Destroy(); err != ErrRunning {
		t.Errorf("running: expected ErrRunning, got %v", err)
	}

	m.frozen = configs.Frozen
	if err := c.Destroy(); err != ErrPaused {
		t.Errorf("paused: expected ErrPaused, got %v", err)
	}
}

func TestDestroyStopped(t *testing.T) {
	m := &mockCgroupManager{}
	c := newTestContainer(t, m)

	if err := c.Destroy(); err != nil {
		t.Fatal(err)
	}
	if !m.destroyed {
		t.Error("expected cgroup manager destroy")
	}
	if _, err := os.Stat(c.stateDir); !os.IsNotExist(err) {
		t.Error("expected state dir to be removed")
	}

	// Destroying leftovers again is not an error.
	if err := c.Destroy(); err != nil {
		t.Errorf("second destroy: %v", err)
	}
}

func TestSignalStopped(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{})
	if err := c.Signal(unix.SIGKILL, false); err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	// Signaling all processes of an already dead container is a no-op.
	if err := c.Signal(unix.SIGKILL, true); err != nil {
		t.Errorf("signal all: %v", err)
	}
}

func TestSignalAllFreezesAroundKill(t *testing.T) {
	m := &mockCgroupManager{exists: true, pids: []int{-42}}
	c := runningContainer(t, m)

	// The mock records the last freezer transition: after the kill loop
	// the cgroup must be thawed again.
	if err := c.Signal(unix.Signal(0), true); err != nil {
		t.Fatal(err)
	}
	if m.frozen != configs.Thawed {
		t.Errorf("expected thawed after signal all, got %s", m.frozen)
	}
}

// A rejected update must roll back to the limits that were applied before,
// even when the caller derived its config from Config() and edited it in
// place, the way the update command does.
func TestSetRollbackRestoresPreviousResources(t *testing.T) {
	m := &mockCgroupManager{exists: true, failSetMemory: 209715200}
	c := runningContainer(t, m)
	c.config.Cgroups.Resources.Memory = 104857600

	config := c.Config()
	config.Cgroups.Resources = &configs.Resources{Memory: 209715200}

	if err := c.Set(config); err == nil {
		t.Fatal("expected resource application to fail")
	}
	want := []int64{209715200, 104857600}
	if !reflect.DeepEqual(m.memoryHistory, want) {
		t.Errorf("expected limits applied in order %v, got %v", want, m.memoryHistory)
	}
	if got := c.config.Cgroups.Resources.Memory; got != 104857600 {
		t.Errorf("container config changed by failed update: memory %d", got)
	}
}

func TestConfigCopiesResources(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{})
	c.config.Cgroups.Resources.Memory = 104857600

	config := c.Config()
	config.Cgroups.Resources.Memory = 209715200
	config.Cgroups.Resources = &configs.Resources{PidsLimit: 10}

	if got := c.config.Cgroups.Resources.Memory; got != 104857600 {
		t.Errorf("editing the copy reached the container: memory %d", got)
	}
	if c.config.Cgroups.Resources.PidsLimit != 0 {
		t.Error("editing the copy reached the container: pids limit set")
	}
}

func TestSetStopped(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{})
	err := c.Set(configs.Config{Cgroups: &configs.Cgroup{Resources: &configs.Resources{}}})
	if err != ErrNotRunning {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

// Every lifecycle operation refuses states it is not defined for.
func TestLifecycleGuards(t *testing.T) {
	containerIn := map[string]func(t *testing.T) *Container{
		"created": func(t *testing.T) *Container {
			return newTestContainer(t, &mockCgroupManager{exists: true})
		},
		"running": func(t *testing.T) *Container {
			return runningContainer(t, &mockCgroupManager{exists: true})
		},
		"paused": func(t *testing.T) *Container {
			return runningContainer(t, &mockCgroupManager{exists: true, frozen: configs.Frozen})
		},
		"stopped": func(t *testing.T) *Container {
			return newTestContainer(t, &mockCgroupManager{})
		},
	}

	startInit := func(c *Container) error { return c.Start(&Process{Init: true}) }
	setEmpty := func(c *Container) error {
		return c.Set(configs.Config{Cgroups: &configs.Cgroup{Resources: &configs.Resources{}}})
	}
	signalInit := func(c *Container) error { return c.Signal(unix.SIGTERM, false) }

	for _, tc := range []struct {
		name  string
		state string
		op    func(*Container) error
		want  error
	}{
		{"start in running", "running", startInit, ErrRunning},
		{"start in paused", "paused", startInit, ErrRunning},
		{"start in stopped", "stopped", startInit, ErrRunning},
		{"pause in created", "created", (*Container).Pause, ErrNotRunning},
		{"pause in paused", "paused", (*Container).Pause, ErrNotRunning},
		{"pause in stopped", "stopped", (*Container).Pause, ErrNotRunning},
		{"resume in created", "created", (*Container).Resume, ErrNotPaused},
		{"resume in running", "running", (*Container).Resume, ErrNotPaused},
		{"resume in stopped", "stopped", (*Container).Resume, ErrNotPaused},
		{"destroy in created", "created", (*Container).Destroy, ErrRunning},
		{"destroy in running", "running", (*Container).Destroy, ErrRunning},
		{"destroy in paused", "paused", (*Container).Destroy, ErrPaused},
		{"set in stopped", "stopped", setEmpty, ErrNotRunning},
		{"signal in created", "created", signalInit, ErrNotRunning},
		{"signal in stopped", "stopped", signalInit, ErrNotRunning},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := containerIn[tc.state](t)
			if err := tc.op(c); err != tc.want {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestProcessStartTime(t *testing.T) {
	st, err := processStartTime(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if st == 0 {
		t.Error("expected non-zero start time")
	}
}
