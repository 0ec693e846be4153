package fs

import (
	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

type PidsGroup struct{}

func (s *PidsGroup) Name() string {
	return "pids"
}

func (s *PidsGroup) Apply(path string, _ *configs.Resources, pid int) error {
	return apply(path, pid)
}

func (s *PidsGroup) Set(path string, r *configs.Resources) error {
	if r.PidsLimit == 0 {
		return nil
	}
	// An explicit "no limit" (negative) is the kernel's "max" sentinel;
	// the literal "0" is rejected by the kernel.
	return cgroups.WriteFile(path, "pids.max", cgroups.PidsLimitToString(r.PidsLimit))
}
