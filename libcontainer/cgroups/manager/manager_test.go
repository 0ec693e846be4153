package manager

import (
	"testing"

	"github.com/vmjail/libcontainer/cgroups/systemd"
	"github.com/vmjail/libcontainer/configs"
)

func TestNew(t *testing.T) {
	for _, sd := range []bool{false, true} {
		if sd && !systemd.IsRunningSystemd() {
			continue
		}
		cg := &configs.Cgroup{
			Name:      "test",
			Parent:    "system",
			Resources: &configs.Resources{},
			Systemd:   sd,
		}
		mgr, err := New(cg)
		if err != nil {
			t.Errorf("systemd=%v: %v", sd, err)
			continue
		}
		if mgr == nil {
			t.Errorf("systemd=%v: nil manager", sd)
		}
	}
}

func TestNewNilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
