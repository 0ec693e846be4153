package libcontainer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vmjail/libcontainer/cgroups/manager"
	"github.com/vmjail/libcontainer/configs"
	"github.com/vmjail/libcontainer/configs/validate"
)

var idRegex = regexp.MustCompile(`^[\w+\-\.]+$`)

// Create creates a new container with the given id under the given state
// root: the configuration is validated, the container's cgroup provisioned
// (empty, with the configured limits applied), and the state persisted.
// A second create with the same id fails with ErrExist, whether the clash
// is with a live container or with leftover state.
func Create(root, id string, config *configs.Config) (*Container, error) {
	if root == "" {
		return nil, errors.New("root not set")
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := validate.Validate(config); err != nil {
		return nil, err
	}

	stateDir := filepath.Join(root, id)
	if _, err := os.Stat(stateDir); err == nil {
		return nil, ErrExist
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cm, err := manager.New(config.Cgroups)
	if err != nil {
		return nil, err
	}

	// Check that the cgroup does not exist either. A container whose
	// state file was lost must not silently adopt a foreign cgroup.
	if cm.Exists() {
		return nil, fmt.Errorf("container's cgroup is not empty: %w", ErrExist)
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	if err := os.Mkdir(stateDir, 0o711); err != nil {
		return nil, err
	}

	c := &Container{
		id:            id,
		stateDir:      stateDir,
		config:        config,
		cgroupManager: cm,
	}

	// Provision the cgroup hierarchy with no process in it, then apply
	// the configured limits. Any failure rolls the whole create back so
	// a retry with the same id starts clean.
	if err := cm.Apply(-1); err != nil {
		_ = os.RemoveAll(stateDir)
		return nil, fmt.Errorf("unable to provision container cgroup: %w", err)
	}
	if err := cm.Set(config.Cgroups.Resources); err != nil {
		if derr := cm.Destroy(); derr != nil {
			logrus.Warnf("unable to remove cgroup after failed create: %v", derr)
		}
		_ = os.RemoveAll(stateDir)
		return nil, fmt.Errorf("unable to apply container resources: %w", err)
	}

	c.created = time.Now().UTC()
	if err := c.saveState(c.currentState()); err != nil {
		if derr := cm.Destroy(); derr != nil {
			logrus.Warnf("unable to remove cgroup after failed create: %v", derr)
		}
		_ = os.RemoveAll(stateDir)
		return nil, err
	}
	return c, nil
}

// Load reattaches to a previously created container. The cgroup manager is
// rebuilt from the persisted paths, so a different agent process (or the
// same binary invoked again) can keep managing the container.
func Load(root, id string) (*Container, error) {
	if root == "" {
		return nil, errors.New("root not set")
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	stateDir := filepath.Join(root, id)
	state, err := loadState(stateDir)
	if err != nil {
		return nil, err
	}

	cm, err := manager.NewWithPaths(state.Config.Cgroups, state.CgroupPaths)
	if err != nil {
		return nil, err
	}

	return &Container{
		id:                   id,
		stateDir:             stateDir,
		config:               &state.Config,
		cgroupManager:        cm,
		initProcessPid:       state.InitProcessPid,
		initProcessStartTime: state.InitProcessStartTime,
		created:              state.Created,
	}, nil
}

func validateID(id string) error {
	if len(id) < 1 {
		return ErrInvalidID
	}
	// Allowing the id as a path separator (or "..") would let one
	// container's state escape the state root.
	if !idRegex.MatchString(id) || string(os.PathSeparator)+id != filepath.Join(string(os.PathSeparator), id) {
		return ErrInvalidID
	}
	return nil
}
