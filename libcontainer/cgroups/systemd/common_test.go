package systemd

import (
	"testing"

	"github.com/vmjail/libcontainer/configs"
)

func TestIsRunningSystemd(t *testing.T) {
	if !IsRunningSystemd() {
		t.Skip("test requires systemd")
	}
}

func TestSystemdVersionAtoi(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{input: "245", expected: 245},
		{input: "v245.4-1.fc32", expected: 245},
		{input: `"245.4-1ubuntu3"`, expected: 245},
		{input: "250.5", expected: 250},
		{input: "badversion", wantErr: true},
		{input: "", wantErr: true},
	} {
		ver, err := systemdVersionAtoi(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("systemdVersionAtoi(%q) should fail", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("systemdVersionAtoi(%q): %v", tc.input, err)
			continue
		}
		if ver != tc.expected {
			t.Errorf("systemdVersionAtoi(%q): expected %d, got %d", tc.input, tc.expected, ver)
		}
	}
}

func TestExpandSlice(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{input: "-.slice", expected: "/"},
		{input: "system.slice", expected: "/system.slice"},
		{input: "user-1000.slice", expected: "/user.slice/user-1000.slice"},
		{input: "machine-a-b.slice", expected: "/machine.slice/machine-a.slice/machine-a-b.slice"},
		{input: ".slice", wantErr: true},
		{input: "not-a-slice", wantErr: true},
		{input: "machine--a.slice", wantErr: true},
		{input: "-system.slice", wantErr: true},
		{input: "foo/bar.slice", wantErr: true},
	} {
		path, err := ExpandSlice(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ExpandSlice(%q) should fail", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExpandSlice(%q): %v", tc.input, err)
			continue
		}
		if path != tc.expected {
			t.Errorf("ExpandSlice(%q): expected %q, got %q", tc.input, tc.expected, path)
		}
	}
}

func TestGenBaseProperties(t *testing.T) {
	cg := &configs.Cgroup{Name: "abc", ScopePrefix: "vmjail", Parent: "system.slice"}

	hasProp := func(pid int, name string) bool {
		for _, p := range genBaseProperties(cg, pid) {
			if p.Name == name {
				return true
			}
		}
		return false
	}

	// An empty provision carries no PIDs property; the init system would
	// refuse a scope built from it, so nothing may ever start one.
	if hasProp(-1, "PIDs") {
		t.Error("pid -1: unexpected PIDs property")
	}
	if !hasProp(123, "PIDs") {
		t.Error("pid 123: missing PIDs property")
	}
	for _, name := range []string{"Slice", "Delegate", "MemoryAccounting", "TasksAccounting"} {
		if !hasProp(123, name) {
			t.Errorf("missing %s property", name)
		}
	}
}

func TestGetUnitName(t *testing.T) {
	for _, tc := range []struct {
		cg       *configs.Cgroup
		expected string
	}{
		{cg: &configs.Cgroup{Name: "abc", ScopePrefix: "vmjail"}, expected: "vmjail-abc.scope"},
		{cg: &configs.Cgroup{Name: "abc"}, expected: "abc.scope"},
		{cg: &configs.Cgroup{Name: "machine-abc.slice", ScopePrefix: "vmjail"}, expected: "machine-abc.slice"},
	} {
		if got := getUnitName(tc.cg); got != tc.expected {
			t.Errorf("getUnitName(%+v): expected %q, got %q", tc.cg, tc.expected, got)
		}
	}
}
