package fs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmjail/libcontainer/cgroups"
)

// getCgroupParamUint reads a single uint64 cgroup parameter. The kernel's
// "max" sentinel parses as MaxUint64.
func getCgroupParamUint(path, file string) (uint64, error) {
	contents, err := cgroups.ReadFile(path, file)
	if err != nil {
		return 0, err
	}
	contents = strings.TrimSpace(contents)
	if contents == "max" {
		return math.MaxUint64, nil
	}

	res, err := strconv.ParseUint(contents, 10, 64)
	if err != nil {
		return res, fmt.Errorf("unable to parse %q as a uint from cgroup file %q", contents, file)
	}
	return res, nil
}
