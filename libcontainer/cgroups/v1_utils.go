package cgroups

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/moby/sys/mountinfo"
)

// Code in this source file are specific to cgroup v1,
// and must not be used from any cgroup v2 code.

type NotFoundError struct {
	Subsystem string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mountpoint for %s not found", e.Subsystem)
}

func NewNotFoundError(sub string) error {
	return &NotFoundError{Subsystem: sub}
}

func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

var (
	cgroupMountsOnce sync.Once
	cgroupMounts     map[string]string
	cgroupMountsErr  error
)

// readCgroupMounts parses /proc/self/mountinfo once, building a map from a
// v1 controller name to its mountpoint. A controller co-mounted with others
// (e.g. cpu,cpuacct) gets one entry per name.
func readCgroupMounts() (map[string]string, error) {
	cgroupMountsOnce.Do(func() {
		mounts, err := mountinfo.GetMounts(mountinfo.FSTypeFilter("cgroup"))
		if err != nil {
			cgroupMountsErr = err
			return
		}
		cgroupMounts = make(map[string]string, len(mounts))
		for _, mi := range mounts {
			for _, opt := range strings.Split(mi.VFSOptions, ",") {
				seen := strings.TrimPrefix(opt, "name=")
				cgroupMounts[seen] = mi.Mountpoint
			}
		}
	})
	return cgroupMounts, cgroupMountsErr
}

// FindCgroupMountpoint returns the mountpoint of the given v1 subsystem.
func FindCgroupMountpoint(subsystem string) (string, error) {
	if IsCgroup2UnifiedMode() {
		return "", errors.New("cannot get cgroup v1 mountpoint in cgroup v2 unified mode")
	}
	mounts, err := readCgroupMounts()
	if err != nil {
		return "", err
	}
	if mnt, ok := mounts[strings.TrimPrefix(subsystem, "name=")]; ok {
		return mnt, nil
	}
	return "", NewNotFoundError(subsystem)
}

// GetOwnCgroup returns the relative path to the cgroup docker is running in.
func GetOwnCgroup(subsystem string) (string, error) {
	if IsCgroup2UnifiedMode() {
		return "", errors.New("cannot get cgroup path in cgroup v2 unified mode")
	}
	cgroups, err := ParseCgroupFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	if p, ok := cgroups[subsystem]; ok {
		return p, nil
	}
	// The v1 name= hierarchies appear under their prefixed name.
	if p, ok := cgroups["name="+subsystem]; ok {
		return p, nil
	}
	return "", NewNotFoundError(subsystem)
}

// GetInitCgroup returns the relative path to the init process's cgroup for
// the given subsystem. With systemd 226 or later as pid 1 this is
// "/init.scope", not the root.
func GetInitCgroup(subsystem string) (string, error) {
	if IsCgroup2UnifiedMode() {
		return "", errors.New("cannot get cgroup path in cgroup v2 unified mode")
	}
	cgroups, err := ParseCgroupFile("/proc/1/cgroup")
	if err != nil {
		return "", err
	}
	if p, ok := cgroups[subsystem]; ok {
		return p, nil
	}
	if p, ok := cgroups["name="+subsystem]; ok {
		return p, nil
	}
	return "", NewNotFoundError(subsystem)
}

// GetOwnCgroupPath returns the absolute path of the cgroup the calling
// process is in, for the given subsystem.
func GetOwnCgroupPath(subsystem string) (string, error) {
	cgroup, err := GetOwnCgroup(subsystem)
	if err != nil {
		return "", err
	}
	mnt, err := FindCgroupMountpoint(subsystem)
	if err != nil {
		return "", err
	}
	// Relative cgroup paths from /proc/self/cgroup are absolute-looking;
	// join them safely under the mountpoint.
	joined, err := securejoin.SecureJoin(mnt, cgroup)
	if err != nil {
		return "", err
	}
	return filepath.Clean(joined), nil
}
