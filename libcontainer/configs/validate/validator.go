package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmjail/libcontainer/configs"
)

type check func(config *configs.Config) error

// Validate rejects a malformed config before any kernel or dbus side
// effect. A failure here means no cgroup or unit was ever provisioned.
func Validate(config *configs.Config) error {
	checks := []check{
		rootfs,
		hostname,
		cgroupsCheck,
	}
	for _, c := range checks {
		if err := c(config); err != nil {
			return err
		}
	}
	return nil
}

// rootfs validates if the rootfs is an absolute path and is not a symlink
// to the container's root filesystem.
func rootfs(config *configs.Config) error {
	if _, err := os.Stat(config.Rootfs); err != nil {
		return fmt.Errorf("invalid rootfs: %w", err)
	}
	cleaned, err := filepath.Abs(config.Rootfs)
	if err != nil {
		return fmt.Errorf("invalid rootfs: %w", err)
	}
	if cleaned, err = filepath.EvalSymlinks(cleaned); err != nil {
		return fmt.Errorf("invalid rootfs: %w", err)
	}
	if filepath.Clean(config.Rootfs) != cleaned {
		return errors.New("invalid rootfs: not an absolute path, or a symlink")
	}
	return nil
}

func hostname(config *configs.Config) error {
	if config.Hostname != "" && !config.Namespaces.Contains(configs.NEWUTS) {
		return errors.New("unable to set hostname without a private UTS namespace")
	}
	return nil
}

func cgroupsCheck(config *configs.Config) error {
	c := config.Cgroups
	if c == nil {
		return nil
	}
	if c.Parent != "" && filepath.IsAbs(c.Parent) {
		return errors.New("cgroup parent can't be an absolute path")
	}
	if c.Name != "" && strings.ContainsRune(c.Name, os.PathSeparator) {
		return fmt.Errorf("cgroup name %q can't contain a path separator", c.Name)
	}
	r := c.Resources
	if r == nil {
		return nil
	}
	// Limit ordering is checked here so a bad document never reaches the
	// kernel; the transformers assume it holds.
	if r.Memory > 0 && r.MemoryReservation > r.Memory {
		return fmt.Errorf("memory soft limit %d exceeds hard limit %d", r.MemoryReservation, r.Memory)
	}
	if r.Memory > 0 && r.MemorySwap > 0 && r.MemorySwap < r.Memory {
		return fmt.Errorf("memory+swap limit %d is below memory limit %d", r.MemorySwap, r.Memory)
	}
	if r.CpuQuota > 0 && r.CpuPeriod == 0 {
		return errors.New("cpu quota requires a cpu period")
	}
	if err := cpusetList(r.CpusetCpus); err != nil {
		return fmt.Errorf("invalid cpuset cpus: %w", err)
	}
	if err := cpusetList(r.CpusetMems); err != nil {
		return fmt.Errorf("invalid cpuset mems: %w", err)
	}
	return nil
}

// cpusetList checks an inclusive range list like "0-3,7". An empty list is
// valid and means "inherit".
func cpusetList(list string) error {
	if list == "" {
		return nil
	}
	for _, r := range list {
		if (r < '0' || r > '9') && r != ',' && r != '-' {
			return fmt.Errorf("unexpected character %q in %q", r, list)
		}
	}
	if strings.HasPrefix(list, ",") || strings.HasSuffix(list, ",") ||
		strings.HasPrefix(list, "-") || strings.HasSuffix(list, "-") {
		return fmt.Errorf("malformed range list %q", list)
	}
	return nil
}
