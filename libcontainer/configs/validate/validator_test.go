package validate

import (
	"testing"

	"github.com/vmjail/libcontainer/configs"
)

func TestValidate(t *testing.T) {
	config := &configs.Config{
		Rootfs: "/var",
	}
	if err := Validate(config); err != nil {
		t.Errorf("expected error to not occur: %v", err)
	}
}

func TestValidateRootfsMissing(t *testing.T) {
	config := &configs.Config{
		Rootfs: "/this/path/does/not/exist",
	}
	if err := Validate(config); err == nil {
		t.Error("expected error for missing rootfs")
	}
}

func TestValidateHostname(t *testing.T) {
	config := &configs.Config{
		Rootfs:   "/var",
		Hostname: "runc",
		Namespaces: configs.Namespaces(
			[]configs.Namespace{
				{Type: configs.NEWUTS},
			},
		),
	}
	if err := Validate(config); err != nil {
		t.Errorf("expected error to not occur: %v", err)
	}
}

func TestValidateHostnameWithoutUTSNS(t *testing.T) {
	config := &configs.Config{
		Rootfs:   "/var",
		Hostname: "runc",
	}
	if err := Validate(config); err == nil {
		t.Error("expected error for hostname without UTS namespace")
	}
}

func TestValidateCgroups(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cg      *configs.Cgroup
		wantErr bool
	}{
		{
			name: "nil cgroup",
		},
		{
			name: "empty resources",
			cg:   &configs.Cgroup{Name: "foo", Resources: &configs.Resources{}},
		},
		{
			name:    "absolute parent",
			cg:      &configs.Cgroup{Name: "foo", Parent: "/system.slice"},
			wantErr: true,
		},
		{
			name:    "name with separator",
			cg:      &configs.Cgroup{Name: "foo/bar"},
			wantErr: true,
		},
		{
			name: "soft limit exceeds hard limit",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				Memory:            100,
				MemoryReservation: 200,
			}},
			wantErr: true,
		},
		{
			name: "swap below memory",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				Memory:     200,
				MemorySwap: 100,
			}},
			wantErr: true,
		},
		{
			name: "valid memory limits",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				Memory:            200,
				MemoryReservation: 100,
				MemorySwap:        300,
			}},
		},
		{
			name: "quota without period",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				CpuQuota: 50000,
			}},
			wantErr: true,
		},
		{
			name: "quota with period",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				CpuQuota:  50000,
				CpuPeriod: 100000,
			}},
		},
		{
			name: "valid cpuset list",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				CpusetCpus: "0-3,7",
				CpusetMems: "0",
			}},
		},
		{
			name: "cpuset open range",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				CpusetCpus: "1-",
			}},
			wantErr: true,
		},
		{
			name: "cpuset leading comma",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				CpusetCpus: ",1",
			}},
			wantErr: true,
		},
		{
			name: "cpuset non-numeric",
			cg: &configs.Cgroup{Name: "foo", Resources: &configs.Resources{
				CpusetMems: "a",
			}},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			config := &configs.Config{
				Rootfs:  "/var",
				Cgroups: tc.cg,
			}
			err := Validate(config)
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
