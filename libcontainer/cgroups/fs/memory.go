package fs

import (
	"errors"
	"strconv"
	"strings"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
	"golang.org/x/sys/unix"
)

const (
	cgroupMemoryLimit     = "memory.limit_in_bytes"
	cgroupMemoryUsage     = "memory.usage_in_bytes"
	cgroupMemorySwapLimit = "memory.memsw.limit_in_bytes"
	cgroupMemorySoftLimit = "memory.soft_limit_in_bytes"
	cgroupKernelMemLimit  = "memory.kmem.limit_in_bytes"
)

type MemoryGroup struct{}

func (s *MemoryGroup) Name() string {
	return "memory"
}

func (s *MemoryGroup) Apply(path string, _ *configs.Resources, pid int) error {
	return apply(path, pid)
}

func setMemory(path string, val int64) error {
	if val == 0 {
		return nil
	}

	err := cgroups.WriteFile(path, cgroupMemoryLimit, strconv.FormatInt(val, 10))
	if !errors.Is(err, unix.EBUSY) {
		return err
	}

	// EBUSY means the kernel can't set the limit below the current usage.
	usage := "unknown"
	if v, e := cgroups.ReadFile(path, cgroupMemoryUsage); e == nil {
		usage = strings.TrimSpace(v)
	}
	return errors.New("unable to set memory limit to " + strconv.FormatInt(val, 10) + " (current usage: " + usage + ")")
}

func setSwap(path string, val int64) error {
	if val == 0 {
		return nil
	}
	return cgroups.WriteFile(path, cgroupMemorySwapLimit, strconv.FormatInt(val, 10))
}

func setSoft(path string, val int64) error {
	if val == 0 {
		return nil
	}
	return cgroups.WriteFile(path, cgroupMemorySoftLimit, strconv.FormatInt(val, 10))
}

func setMemoryAndSwap(path string, r *configs.Resources) error {
	// If the memory update is set to -1 and the swap is not explicitly
	// set, we should also set swap to -1, it means unlimited memory.
	swap := r.MemorySwap
	if r.Memory == -1 && swap == 0 {
		// Only set swap if it's enabled in kernel
		if cgroups.PathExists(strings.TrimSuffix(path, "/") + "/" + cgroupMemorySwapLimit) {
			swap = -1
		}
	}

	// The kernel enforces memsw >= memory at every step, so the write
	// order depends on whether the limits grow or shrink relative to the
	// currently applied ones.
	if r.Memory != 0 && swap != 0 {
		curLimit, err := getCgroupParamUint(path, cgroupMemoryLimit)
		if err == nil && (swap == -1 || curLimit < uint64(swap)) {
			// When swap is larger than the current memory limit,
			// raise swap first.
			if err := setSwap(path, swap); err != nil {
				return err
			}
			return setMemory(path, r.Memory)
		}
	}
	if err := setMemory(path, r.Memory); err != nil {
		return err
	}
	return setSwap(path, swap)
}

func (s *MemoryGroup) Set(path string, r *configs.Resources) error {
	// A soft limit must stay below the hard limit at every intermediate
	// step: lower it before shrinking the hard limit, raise it after
	// growing the hard limit.
	hardGrows := r.Memory == -1
	if !hardGrows && r.Memory > 0 {
		if cur, err := getCgroupParamUint(path, cgroupMemoryLimit); err == nil {
			hardGrows = uint64(r.Memory) > cur
		}
	}

	if !hardGrows {
		if err := setSoft(path, r.MemoryReservation); err != nil {
			return err
		}
	}
	if err := setMemoryAndSwap(path, r); err != nil {
		return err
	}
	if hardGrows {
		if err := setSoft(path, r.MemoryReservation); err != nil {
			return err
		}
	}

	// Kernel memory is a legacy-hierarchy knob; the fs2 backend drops it.
	if r.KernelMemory != 0 {
		if err := cgroups.WriteFile(path, cgroupKernelMemLimit, strconv.FormatInt(r.KernelMemory, 10)); err != nil {
			return err
		}
	}
	return nil
}
