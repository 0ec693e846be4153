// Package specconv implements conversion of specifications to libcontainer
// configurations
package specconv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/vmjail/libcontainer/configs"
	"github.com/vmjail/libcontainer/utils"
)

type CreateOpts struct {
	CgroupName       string
	NoNewKeyring     bool
	NoPivotRoot      bool
	Spec             *specs.Spec
	UseSystemdCgroup bool
	RootlessCgroups  bool
}

var namespaceMapping = map[specs.LinuxNamespaceType]configs.NamespaceType{
	specs.PIDNamespace:     configs.NEWPID,
	specs.NetworkNamespace: configs.NEWNET,
	specs.MountNamespace:   configs.NEWNS,
	specs.UserNamespace:    configs.NEWUSER,
	specs.IPCNamespace:     configs.NEWIPC,
	specs.UTSNamespace:     configs.NEWUTS,
	specs.CgroupNamespace:  configs.NEWCGROUP,
}

// getwd is a wrapper similar to os.Getwd, except it always gets
// the value from the kernel, which guarantees the returned value
// to be absolute and clean.
func getwd() (wd string, err error) {
	for {
		wd, err = unix.Getwd()
		//nolint:errorlint // unix errors are bare
		if err != unix.EINTR {
			break
		}
	}
	return wd, os.NewSyscallError("getwd", err)
}

// CreateLibcontainerConfig creates a new libcontainer configuration from a
// given specification and a cgroup name
func CreateLibcontainerConfig(opts *CreateOpts) (*configs.Config, error) {
	// The caller's cwd is always the bundle path, so relative rootfs
	// paths resolve against it.
	cwd, err := getwd()
	if err != nil {
		return nil, err
	}
	spec := opts.Spec
	if spec.Root == nil {
		return nil, errors.New("root must be specified")
	}
	rootfsPath := spec.Root.Path
	if !filepath.IsAbs(rootfsPath) {
		rootfsPath = filepath.Join(cwd, rootfsPath)
	}
	labels := []string{}
	for k, v := range spec.Annotations {
		labels = append(labels, k+"="+v)
	}
	config := &configs.Config{
		Rootfs:       rootfsPath,
		NoPivotRoot:  opts.NoPivotRoot,
		Readonlyfs:   spec.Root.Readonly,
		Hostname:     spec.Hostname,
		Labels:       append(labels, "bundle="+cwd),
		NoNewKeyring: opts.NoNewKeyring,
	}

	if spec.Linux != nil {
		for _, ns := range spec.Linux.Namespaces {
			t, exists := namespaceMapping[ns.Type]
			if !exists {
				return nil, fmt.Errorf("namespace %q does not exist", ns)
			}
			if config.Namespaces.Contains(t) {
				return nil, fmt.Errorf("malformed spec file: duplicated ns %q", ns)
			}
			config.Namespaces = append(config.Namespaces, configs.Namespace{
				Type: t,
				Path: ns.Path,
			})
		}
	}

	c, err := CreateCgroupConfig(opts)
	if err != nil {
		return nil, err
	}
	config.Cgroups = c

	return config, nil
}

// CreateCgroupConfig maps the spec's cgroups path and resource section to
// a cgroup configuration for the selected backend.
func CreateCgroupConfig(opts *CreateOpts) (*configs.Cgroup, error) {
	var (
		myCgroupPath string

		spec             = opts.Spec
		useSystemdCgroup = opts.UseSystemdCgroup
		name             = opts.CgroupName
	)

	c := &configs.Cgroup{
		Systemd:   useSystemdCgroup,
		Rootless:  opts.RootlessCgroups,
		Resources: &configs.Resources{},
	}

	if spec.Linux != nil && spec.Linux.CgroupsPath != "" {
		if useSystemdCgroup {
			myCgroupPath = spec.Linux.CgroupsPath
		} else {
			myCgroupPath = utils.CleanPath(spec.Linux.CgroupsPath)
		}
	}

	if useSystemdCgroup {
		if myCgroupPath == "" {
			// Default for compatibility with the non-systemd layout.
			c.Parent = "system.slice"
			c.ScopePrefix = "vmjail"
			c.Name = name
		} else {
			// Parse the path from "slice:prefix:name".
			parts := strings.Split(myCgroupPath, ":")
			if len(parts) != 3 {
				return nil, fmt.Errorf("expected cgroupsPath to be of format \"slice:prefix:name\" for systemd cgroups, got %q instead", myCgroupPath)
			}
			c.Parent = parts[0]
			c.ScopePrefix = parts[1]
			c.Name = parts[2]
		}

		// Convert any annotation the caller wants forwarded to the unit.
		sp, err := initSystemdProps(spec)
		if err != nil {
			return nil, err
		}
		c.SystemdProps = sp
	} else {
		if myCgroupPath == "" {
			c.Name = name
		}
		c.Path = myCgroupPath
	}

	r := c.Resources
	if spec.Linux != nil {
		if res := spec.Linux.Resources; res != nil {
			if res.Memory != nil {
				if res.Memory.Limit != nil {
					r.Memory = *res.Memory.Limit
				}
				if res.Memory.Reservation != nil {
					r.MemoryReservation = *res.Memory.Reservation
				}
				if res.Memory.Swap != nil {
					r.MemorySwap = *res.Memory.Swap
				}
				if res.Memory.Kernel != nil { //nolint:staticcheck // legacy kmem knob
					r.KernelMemory = *res.Memory.Kernel //nolint:staticcheck // legacy kmem knob
				}
			}
			if res.CPU != nil {
				if res.CPU.Shares != nil {
					r.CpuShares = *res.CPU.Shares
				}
				if res.CPU.Quota != nil {
					r.CpuQuota = *res.CPU.Quota
				}
				if res.CPU.Period != nil {
					r.CpuPeriod = *res.CPU.Period
				}
				if res.CPU.RealtimeRuntime != nil {
					r.CpuRtRuntime = *res.CPU.RealtimeRuntime
				}
				if res.CPU.RealtimePeriod != nil {
					r.CpuRtPeriod = *res.CPU.RealtimePeriod
				}
				r.CpusetCpus = res.CPU.Cpus
				r.CpusetMems = res.CPU.Mems
			}
			if res.Pids != nil {
				// A present pids section with a non-positive limit is an
				// explicit "unlimited"; keep it distinct from an absent
				// section, which leaves the kernel default untouched.
				if res.Pids.Limit <= 0 {
					r.PidsLimit = -1
				} else {
					r.PidsLimit = res.Pids.Limit
				}
			}
			if res.Unified != nil {
				r.Unified = res.Unified
			}
		}
	}

	return c, nil
}

// Systemd property name check: latin letters only, at least 3 of them.
func checkPropertyName(s string) error {
	if len(s) < 3 {
		return errors.New("too short")
	}
	// Check ASCII characters rather than Unicode runes,
	// so we have to use indexes rather than range.
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
			continue
		}
		return errors.New("contains non-alphabetic character")
	}
	return nil
}

// convertSecToUSec converts a duration in seconds (of any numeric bus
// type) to the microsecond form unit properties use.
func convertSecToUSec(value dbus.Variant) (dbus.Variant, error) {
	var sec uint64
	const M = 1000000
	vi := value.Value()
	switch value.Signature().String() {
	case "y":
		sec = uint64(vi.(byte)) * M
	case "n":
		sec = uint64(vi.(int16)) * M
	case "q":
		sec = uint64(vi.(uint16)) * M
	case "i":
		sec = uint64(vi.(int32)) * M
	case "u":
		sec = uint64(vi.(uint32)) * M
	case "x":
		sec = uint64(vi.(int64)) * M
	case "t":
		sec = vi.(uint64) * M
	case "d":
		sec = uint64(vi.(float64) * M)
	default:
		return value, errors.New("not a number")
	}
	return dbus.MakeVariant(sec), nil
}

// initSystemdProps converts "org.systemd.property.XXX" annotations to
// systemd properties, passed verbatim to the transient unit. Properties
// with a "Sec" suffix take human-readable time and are converted to the
// "USec" microsecond form the bus expects.
func initSystemdProps(spec *specs.Spec) ([]systemdDbus.Property, error) {
	const keyPrefix = "org.systemd.property."
	var sp []systemdDbus.Property

	for k, v := range spec.Annotations {
		name := strings.TrimPrefix(k, keyPrefix)
		if name == k {
			// prefix not there
			continue
		}
		if err := checkPropertyName(name); err != nil {
			return nil, fmt.Errorf("annotation %s name incorrect: %w", k, err)
		}
		value, err := dbus.ParseVariant(v, dbus.Signature{})
		if err != nil {
			return nil, fmt.Errorf("annotation %s=%s value parse error: %w", k, v, err)
		}
		// Check for Sec suffix.
		if trimName := strings.TrimSuffix(name, "Sec"); trimName != name {
			// Check for a lowercase ascii a-z just before Sec.
			if ch := trimName[len(trimName)-1]; ch >= 'a' && ch <= 'z' {
				// Convert from Sec to USec.
				name = trimName + "USec"
				value, err = convertSecToUSec(value)
				if err != nil {
					return nil, fmt.Errorf("annotation %s not a number: %w", k, err)
				}
			}
		}
		sp = append(sp, systemdDbus.Property{Name: name, Value: value})
	}

	return sp, nil
}

// Example returns a runtime-spec skeleton with sane defaults for an
// in-guest container, used by tests and by spec generation.
func Example() *specs.Spec {
	return &specs.Spec{
		Version: specs.Version,
		Root: &specs.Root{
			Path:     "rootfs",
			Readonly: true,
		},
		Process: &specs.Process{
			Terminal: true,
			User:     specs.User{},
			Args: []string{
				"sh",
			},
			Env: []string{
				"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
				"TERM=xterm",
			},
			Cwd: "/",
		},
		Hostname: "vmjail",
		Linux: &specs.Linux{
			Resources: &specs.LinuxResources{
				Devices: []specs.LinuxDeviceCgroup{
					{
						Allow:  false,
						Access: "rwm",
					},
				},
			},
			Namespaces: []specs.LinuxNamespace{
				{
					Type: specs.PIDNamespace,
				},
				{
					Type: specs.IPCNamespace,
				},
				{
					Type: specs.UTSNamespace,
				},
				{
					Type: specs.MountNamespace,
				},
			},
		},
	}
}

