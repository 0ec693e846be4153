package fs

import (
	"strings"
	"testing"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

func TestPidsSetLimit(t *testing.T) {
	for _, tc := range []struct {
		limit    int64
		expected string
	}{
		{limit: 50, expected: "50"},
		{limit: 1, expected: "1"},
		// Any non-positive limit is "unlimited". The literal "0" must
		// never reach pids.max: the kernel rejects it, and it would
		// forbid every fork in the cgroup if it didn't.
		{limit: -1, expected: "max"},
		{limit: -100, expected: "max"},
	} {
		cgroups.TestMode = true
		dir := t.TempDir()
		pids := &PidsGroup{}
		if err := pids.Set(dir, &configs.Resources{PidsLimit: tc.limit}); err != nil {
			t.Errorf("limit %d: %v", tc.limit, err)
			continue
		}
		val, err := cgroups.ReadFile(dir, "pids.max")
		if err != nil {
			t.Errorf("limit %d: %v", tc.limit, err)
			continue
		}
		if strings.TrimSpace(val) != tc.expected {
			t.Errorf("limit %d: expected %q, got %q", tc.limit, tc.expected, strings.TrimSpace(val))
		}
		cgroups.TestMode = false
	}
}

func TestPidsUnsetLeavesKernelDefault(t *testing.T) {
	cgroups.TestMode = true
	defer func() { cgroups.TestMode = false }()

	dir := t.TempDir()
	pids := &PidsGroup{}
	if err := pids.Set(dir, &configs.Resources{}); err != nil {
		t.Fatal(err)
	}
	if _, err := cgroups.ReadFile(dir, "pids.max"); err == nil {
		t.Error("pids.max was written for an absent limit")
	}
}
