package libcontainer

import (
	"errors"
	"testing"
	"time"
)

func TestStateRoundTrip(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{
		paths: map[string]string{"": "/sys/fs/cgroup/vmjail/myid"},
	})
	c.initProcessPid = 42
	c.initProcessStartTime = 12345
	c.created = time.Now().UTC()

	if err := c.saveState(c.currentState()); err != nil {
		t.Fatal(err)
	}

	state, err := loadState(c.stateDir)
	if err != nil {
		t.Fatal(err)
	}
	if state.ID != "myid" {
		t.Errorf("expected id myid, got %q", state.ID)
	}
	if state.InitProcessPid != 42 {
		t.Errorf("expected pid 42, got %d", state.InitProcessPid)
	}
	if state.InitProcessStartTime != 12345 {
		t.Errorf("expected start time 12345, got %d", state.InitProcessStartTime)
	}
	if !state.Created.Equal(c.created) {
		t.Errorf("expected created %v, got %v", c.created, state.Created)
	}
	if state.CgroupPaths[""] != "/sys/fs/cgroup/vmjail/myid" {
		t.Errorf("unexpected cgroup paths: %+v", state.CgroupPaths)
	}
}

func TestLoadStateMissing(t *testing.T) {
	if _, err := loadState(t.TempDir()); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestSaveStateOverwrite(t *testing.T) {
	c := newTestContainer(t, &mockCgroupManager{})
	if err := c.saveState(c.currentState()); err != nil {
		t.Fatal(err)
	}
	c.initProcessPid = 7
	if err := c.saveState(c.currentState()); err != nil {
		t.Fatal(err)
	}
	state, err := loadState(c.stateDir)
	if err != nil {
		t.Fatal(err)
	}
	if state.InitProcessPid != 7 {
		t.Errorf("expected pid 7, got %d", state.InitProcessPid)
	}
}
