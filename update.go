package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli"
)

func i64Ptr(i int64) *int64   { return &i }
func u64Ptr(i uint64) *uint64 { return &i }

// updateResources mirrors the resource section of the runtime spec, so an
// update payload can be fed from the same JSON the bundle carries.
type updateResources struct {
	Memory struct {
		Limit       *int64 `json:"limit"`
		Reservation *int64 `json:"reservation"`
		Swap        *int64 `json:"swap"`
		Kernel      *int64 `json:"kernel"`
	} `json:"memory"`
	CPU struct {
		Shares          *uint64 `json:"shares"`
		Quota           *int64  `json:"quota"`
		Period          *uint64 `json:"period"`
		RealtimeRuntime *int64  `json:"realtimeRuntime"`
		RealtimePeriod  *uint64 `json:"realtimePeriod"`
		Cpus            string  `json:"cpus"`
		Mems            string  `json:"mems"`
	} `json:"cpu"`
	Pids struct {
		Limit *int64 `json:"limit"`
	} `json:"pids"`
}

var updateCommand = cli.Command{
	Name:      "update",
	Usage:     "update container resource constraints",
	ArgsUsage: `<container-id>`,
	Description: `The update command change the resource constraints of a running container
instance. The new limits take effect immediately; on failure the previous
limits stay in place.

The changes may be specified through a JSON file given with -r, whose format
follows the resources section of the runtime specification ("-" reads from
stdin), or through the individual flags below.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "resources, r",
			Value: "",
			Usage: "path to the file containing the resources to update or '-' to read from the standard input",
		},
		cli.StringFlag{
			Name:  "memory",
			Usage: "Memory limit (in bytes)",
		},
		cli.StringFlag{
			Name:  "memory-reservation",
			Usage: "Memory soft limit (in bytes)",
		},
		cli.StringFlag{
			Name:  "memory-swap",
			Usage: "Total memory usage (memory + swap); set '-1' to enable unlimited swap",
		},
		cli.StringFlag{
			Name:  "kernel-memory",
			Usage: "Kernel memory limit (in bytes); ignored on the unified hierarchy",
		},
		cli.IntFlag{
			Name:  "cpu-period",
			Usage: "CPU CFS period to be used for hardcapping (in usecs). 0 to use system default",
		},
		cli.IntFlag{
			Name:  "cpu-quota",
			Usage: "CPU CFS hardcap limit (in usecs). Allowed cpu time in a given period",
		},
		cli.IntFlag{
			Name:  "cpu-share",
			Usage: "CPU shares (relative weight vs. other containers)",
		},
		cli.IntFlag{
			Name:  "cpu-rt-period",
			Usage: "CPU realtime period to be used for hardcapping (in usecs). 0 to use system default",
		},
		cli.IntFlag{
			Name:  "cpu-rt-runtime",
			Usage: "CPU realtime hardcap limit (in usecs). Allowed cpu time in a given period",
		},
		cli.StringFlag{
			Name:  "cpuset-cpus",
			Usage: "CPU(s) to use",
		},
		cli.StringFlag{
			Name:  "cpuset-mems",
			Usage: "Memory node(s) to use",
		},
		cli.IntFlag{
			Name:  "pids-limit",
			Usage: "Maximum number of pids allowed in the container",
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		container, err := getContainer(context)
		if err != nil {
			return err
		}

		r := updateResources{}

		if in := context.String("resources"); in != "" {
			var (
				f   *os.File
				err error
			)
			switch in {
			case "-":
				f = os.Stdin
			default:
				f, err = os.Open(in)
				if err != nil {
					return err
				}
				defer f.Close()
			}
			if err := json.NewDecoder(f).Decode(&r); err != nil {
				return err
			}
		} else {
			if val := context.Int("cpu-period"); context.IsSet("cpu-period") {
				r.CPU.Period = u64Ptr(uint64(val))
			}
			if val := context.Int("cpu-quota"); context.IsSet("cpu-quota") {
				r.CPU.Quota = i64Ptr(int64(val))
			}
			if val := context.Int("cpu-share"); context.IsSet("cpu-share") {
				r.CPU.Shares = u64Ptr(uint64(val))
			}
			if val := context.Int("cpu-rt-period"); context.IsSet("cpu-rt-period") {
				r.CPU.RealtimePeriod = u64Ptr(uint64(val))
			}
			if val := context.Int("cpu-rt-runtime"); context.IsSet("cpu-rt-runtime") {
				r.CPU.RealtimeRuntime = i64Ptr(int64(val))
			}
			r.CPU.Cpus = context.String("cpuset-cpus")
			r.CPU.Mems = context.String("cpuset-mems")
			if context.IsSet("pids-limit") {
				r.Pids.Limit = i64Ptr(int64(context.Int("pids-limit")))
			}

			for _, pair := range []struct {
				opt  string
				dest **int64
			}{
				{"memory", &r.Memory.Limit},
				{"memory-swap", &r.Memory.Swap},
				{"kernel-memory", &r.Memory.Kernel},
				{"memory-reservation", &r.Memory.Reservation},
			} {
				if val := context.String(pair.opt); val != "" {
					v, err := parseMemory(val)
					if err != nil {
						return fmt.Errorf("invalid value for %s: %w", pair.opt, err)
					}
					*pair.dest = i64Ptr(v)
				}
			}
		}

		config := container.Config()
		if config.Cgroups == nil || config.Cgroups.Resources == nil {
			return errors.New("container has no cgroup configuration")
		}
		res := *config.Cgroups.Resources

		if r.Memory.Limit != nil {
			res.Memory = *r.Memory.Limit
		}
		if r.Memory.Reservation != nil {
			res.MemoryReservation = *r.Memory.Reservation
		}
		if r.Memory.Swap != nil {
			res.MemorySwap = *r.Memory.Swap
		}
		if r.Memory.Kernel != nil {
			res.KernelMemory = *r.Memory.Kernel
		}
		if r.CPU.Shares != nil {
			res.CpuShares = *r.CPU.Shares
		}
		if r.CPU.Quota != nil {
			res.CpuQuota = *r.CPU.Quota
		}
		if r.CPU.Period != nil {
			res.CpuPeriod = *r.CPU.Period
		}
		if r.CPU.RealtimeRuntime != nil {
			res.CpuRtRuntime = *r.CPU.RealtimeRuntime
		}
		if r.CPU.RealtimePeriod != nil {
			res.CpuRtPeriod = *r.CPU.RealtimePeriod
		}
		if r.CPU.Cpus != "" {
			res.CpusetCpus = r.CPU.Cpus
		}
		if r.CPU.Mems != "" {
			res.CpusetMems = r.CPU.Mems
		}
		if r.Pids.Limit != nil {
			if *r.Pids.Limit <= 0 {
				res.PidsLimit = -1
			} else {
				res.PidsLimit = *r.Pids.Limit
			}
		}

		config.Cgroups.Resources = &res
		return container.Set(config)
	},
}

// parseMemory accepts a byte count, or -1 for unlimited.
func parseMemory(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < -1 {
		return 0, fmt.Errorf("%d is not a valid memory value", v)
	}
	return v, nil
}
