package cgroups

import (
	"strings"
	"testing"
)

func TestParseCgroups(t *testing.T) {
	cgroups, err := ParseCgroupFile("/proc/self/cgroup")
	if err != nil {
		t.Fatal(err)
	}
	if IsCgroup2UnifiedMode() {
		return
	}
	if _, ok := cgroups["cpu"]; !ok {
		t.Fail()
	}
}

func TestParseCgroupFromReader(t *testing.T) {
	for _, tc := range []struct {
		input    string
		subsys   string
		expected string
	}{
		{
			input:    "10:memory:/user.slice\n9:cpu,cpuacct:/user.slice\n",
			subsys:   "memory",
			expected: "/user.slice",
		},
		{
			input:    "9:cpu,cpuacct:/machine.slice/vm.scope\n",
			subsys:   "cpuacct",
			expected: "/machine.slice/vm.scope",
		},
		{
			input:    "1:name=systemd:/init.scope\n0::/init.scope\n",
			subsys:   "name=systemd",
			expected: "/init.scope",
		},
		{
			input:    "0::/system.slice/guest.scope\n",
			subsys:   "",
			expected: "/system.slice/guest.scope",
		},
	} {
		cgroups, err := parseCgroupFromReader(strings.NewReader(tc.input))
		if err != nil {
			t.Errorf("input %q: unexpected error: %v", tc.input, err)
			continue
		}
		if cgroups[tc.subsys] != tc.expected {
			t.Errorf("input %q: expected %s=%q, got %q", tc.input, tc.subsys, tc.expected, cgroups[tc.subsys])
		}
	}
}

func TestConvertCPUSharesToCgroupV2Value(t *testing.T) {
	cases := map[uint64]uint64{
		0:      0,
		2:      1,
		262144: 10000,
	}
	for i, expected := range cases {
		got := ConvertCPUSharesToCgroupV2Value(i)
		if got != expected {
			t.Errorf("ConvertCPUSharesToCgroupV2Value(%d): got %d, want %d", i, got, expected)
		}
	}
}

func TestConvertMemorySwapToCgroupV2Value(t *testing.T) {
	cases := []struct {
		memswap, memory int64
		expected        int64
		expErr          bool
	}{
		{memswap: 0, memory: 0, expected: 0},
		{memswap: -1, memory: 0, expected: -1},
		{memswap: -1, memory: -1, expected: -1},
		{memswap: -2, memory: 0, expErr: true},
		{memswap: -1, memory: 100, expected: -1},
		{memswap: 100, memory: 100, expected: 0},
		{memswap: 500, memory: 200, expected: 300},
		{memswap: 300, memory: 400, expErr: true},
		{memswap: 300, memory: 0, expErr: true},
		{memswap: 300, memory: -300, expErr: true},
		{memswap: 300, memory: -1, expErr: true},
	}
	for _, c := range cases {
		swap, err := ConvertMemorySwapToCgroupV2Value(c.memswap, c.memory)
		if c.expErr {
			if err == nil {
				t.Errorf("memswap: %d, memory %d, expected error, got %d, nil", c.memswap, c.memory, swap)
			}
			continue
		}
		if err != nil {
			t.Errorf("memswap: %d, memory %d, expected success, got error %s", c.memswap, c.memory, err)
		}
		if swap != c.expected {
			t.Errorf("memswap: %d, memory %d, expected %d, got %d", c.memswap, c.memory, c.expected, swap)
		}
	}
}

// A requested pids limit of zero or below always becomes the kernel's
// "max" sentinel, never a literal zero that would deadlock the cgroup.
func TestPidsLimitSentinels(t *testing.T) {
	for _, limit := range []int64{-2, -1, 0} {
		if s := PidsLimitToString(limit); s != "max" {
			t.Errorf("PidsLimitToString(%d): got %q, want \"max\"", limit, s)
		}
		if v := PidsLimitToTasksMax(limit); v != ^uint64(0) {
			t.Errorf("PidsLimitToTasksMax(%d): got %d, want MaxUint64", limit, v)
		}
	}
	if s := PidsLimitToString(50); s != "50" {
		t.Errorf("PidsLimitToString(50): got %q", s)
	}
	if v := PidsLimitToTasksMax(50); v != 50 {
		t.Errorf("PidsLimitToTasksMax(50): got %d", v)
	}
}
