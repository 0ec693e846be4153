package fs2

import (
	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

func isPidsSet(r *configs.Resources) bool {
	return r.PidsLimit != 0
}

func setPids(dirPath string, r *configs.Resources) error {
	if !isPidsSet(r) {
		return nil
	}
	// A non-positive limit is the "max" sentinel; pids.max rejects "0".
	return cgroups.WriteFile(dirPath, "pids.max", cgroups.PidsLimitToString(r.PidsLimit))
}
