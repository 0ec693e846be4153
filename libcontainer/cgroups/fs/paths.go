package fs

import (
	"errors"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
	"github.com/vmjail/libcontainer/utils"
)

func apply(path string, pid int) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return cgroups.WriteCgroupProc(path, pid)
}

// initPaths resolves one absolute path per mounted controller for the
// cgroup described by cg. Controllers without a mountpoint in this guest
// are left out of the map, which downstream code treats as "unsupported,
// drop the limit".
func initPaths(cg *configs.Cgroup) (map[string]string, error) {
	inner, err := innerPath(cg)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]string)
	for _, sys := range subsystems {
		name := sys.Name()
		path, err := subsystemPath(name, inner)
		if err != nil {
			if cgroups.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		paths[name] = path
	}
	return paths, nil
}

func innerPath(cg *configs.Cgroup) (string, error) {
	if (cg.Name != "" || cg.Parent != "") && cg.Path != "" {
		return "", errors.New("cgroup: either Path or Name and Parent should be used")
	}
	if cg.Path != "" {
		return utils.CleanPath(cg.Path), nil
	}
	return utils.CleanPath(filepath.Join(cg.Parent, cg.Name)), nil
}

func subsystemPath(subsystem, inner string) (string, error) {
	mnt, err := cgroups.FindCgroupMountpoint(subsystem)
	if err != nil {
		return "", err
	}
	// An absolute inner path is rooted at the controller mount; a
	// relative one is rooted at the cgroup we are running in.
	if filepath.IsAbs(inner) {
		return securejoin.SecureJoin(mnt, inner)
	}
	parent, err := cgroups.GetOwnCgroupPath(subsystem)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, inner), nil
}
