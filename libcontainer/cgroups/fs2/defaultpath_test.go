package fs2

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmjail/libcontainer/configs"
)

func TestParseCgroupFromReader(t *testing.T) {
	cases := map[string]string{
		"0::/user.slice/user-1000.slice/session-1.scope\n":                                  "/user.slice/user-1000.slice/session-1.scope",
		"2:cpuset:/foo\n1:name=systemd:/\n":                                                 "",
		"2:cpuset:/foo\n1:name=systemd:/\n0::/user.slice/user-1000.slice/session-1.scope\n": "/user.slice/user-1000.slice/session-1.scope",
	}
	for s, expected := range cases {
		g, err := parseCgroupFromReader(strings.NewReader(s))
		if expected == "" {
			if err == nil {
				t.Errorf("parseCgroupFromReader(%q) should fail", s)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCgroupFromReader(%q): %v", s, err)
			continue
		}
		if g != expected {
			t.Errorf("parseCgroupFromReader(%q): expected %q, got %q", s, expected, g)
		}
	}
}

func TestDefaultDirPathAbsolute(t *testing.T) {
	dir, err := _defaultDirPath(UnifiedMountpoint, "/foo/bar", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if dir != "/sys/fs/cgroup/foo/bar" {
		t.Errorf("expected /sys/fs/cgroup/foo/bar, got %q", dir)
	}
}

func TestDefaultDirPathRelative(t *testing.T) {
	ownCgroup, err := parseCgroupFile("/proc/self/cgroup")
	if err != nil {
		t.Skipf("not running on a cgroup v2 host: %v", err)
	}

	// A relative path lands next to (not inside) our own cgroup, since
	// our own cgroup has tasks and could not delegate controllers.
	dir, err := _defaultDirPath(UnifiedMountpoint, "foo/bar", "", "")
	if err != nil {
		t.Fatal(err)
	}
	expected := filepath.Join(UnifiedMountpoint, filepath.Dir(ownCgroup), "foo/bar")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestDefaultDirPathPathAndNameConflict(t *testing.T) {
	c := &configs.Cgroup{
		Path: "/foo/bar",
		Name: "also-set",
	}
	if _, err := defaultDirPath(c); err == nil {
		t.Error("expected error when both Path and Name are set")
	}
}
