package fs2

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

func isCpuSet(r *configs.Resources) bool {
	return r.CpuShares != 0 || r.CpuQuota != 0 || r.CpuPeriod != 0
}

func setCpu(dirPath string, r *configs.Resources) error {
	if r.CpuRtRuntime != 0 || r.CpuRtPeriod != 0 {
		// Realtime bandwidth is a legacy-hierarchy feature with no v2
		// representation; drop it rather than fail the whole apply.
		logrus.Debugf("cpu realtime limits have no cgroup v2 equivalent, dropping")
	}
	if !isCpuSet(r) {
		return nil
	}

	if r.CpuShares != 0 {
		weight := cgroups.ConvertCPUSharesToCgroupV2Value(r.CpuShares)
		if err := cgroups.WriteFile(dirPath, "cpu.weight", strconv.FormatUint(weight, 10)); err != nil {
			return err
		}
	}

	if r.CpuQuota != 0 || r.CpuPeriod != 0 {
		str := "max"
		if r.CpuQuota > 0 {
			str = strconv.FormatInt(r.CpuQuota, 10)
		}
		period := r.CpuPeriod
		if period == 0 {
			// This default value is documented in
			// https://www.kernel.org/doc/html/latest/admin-guide/cgroup-v2.html
			period = 100000
		}
		str += " " + strconv.FormatUint(period, 10)
		if err := cgroups.WriteFile(dirPath, "cpu.max", str); err != nil {
			return err
		}
	}

	return nil
}
