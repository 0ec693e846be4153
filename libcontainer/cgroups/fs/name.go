package fs

import "github.com/vmjail/libcontainer/configs"

type NameGroup struct {
	GroupName string
	Join      bool
}

func (s *NameGroup) Name() string {
	return s.GroupName
}

func (s *NameGroup) Apply(path string, _ *configs.Resources, pid int) error {
	if s.Join {
		// Ignore errors if the named cgroup does not exists.
		_ = apply(path, pid)
	}
	return nil
}

func (s *NameGroup) Set(_ string, _ *configs.Resources) error {
	return nil
}
