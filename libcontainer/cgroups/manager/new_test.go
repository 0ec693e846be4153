package manager

import (
	"testing"
)

func TestGetUnifiedPath(t *testing.T) {
	for _, tc := range []struct {
		paths    map[string]string
		expected string
		wantErr  bool
	}{
		{paths: nil, expected: ""},
		{paths: map[string]string{}, expected: ""},
		{paths: map[string]string{"": "/sys/fs/cgroup/foo"}, expected: "/sys/fs/cgroup/foo"},
		// Multiple entries only make sense for v1.
		{paths: map[string]string{"": "/sys/fs/cgroup/foo", "memory": "/x"}, wantErr: true},
		// Must be clean and absolute.
		{paths: map[string]string{"": "foo"}, wantErr: true},
		{paths: map[string]string{"": "/sys/fs/cgroup/foo/../bar"}, wantErr: true},
	} {
		path, err := getUnifiedPath(tc.paths)
		if tc.wantErr {
			if err == nil {
				t.Errorf("getUnifiedPath(%+v) should fail", tc.paths)
			}
			continue
		}
		if err != nil {
			t.Errorf("getUnifiedPath(%+v): %v", tc.paths, err)
			continue
		}
		if path != tc.expected {
			t.Errorf("getUnifiedPath(%+v): expected %q, got %q", tc.paths, tc.expected, path)
		}
	}
}
