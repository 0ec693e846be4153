package fs2

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
	"golang.org/x/sys/unix"
)

func setFreezer(dirPath string, state configs.FreezerState) error {
	var stateStr string
	switch state {
	case configs.Undefined:
		return nil
	case configs.Frozen:
		stateStr = "1"
	case configs.Thawed:
		stateStr = "0"
	default:
		return fmt.Errorf("invalid freezer state %q requested", state)
	}

	fd, err := cgroups.OpenFile(dirPath, "cgroup.freeze", unix.O_RDWR)
	if err != nil {
		// We can ignore this request as long as the user didn't ask us
		// to freeze the container: without the freezer file, thawed is
		// all a cgroup can be.
		if state != configs.Frozen {
			return nil
		}
		return fmt.Errorf("freezer not supported: %w", err)
	}
	defer fd.Close()

	if _, err := fd.WriteString(stateStr); err != nil {
		return err
	}
	if state == configs.Frozen {
		// A write to cgroup.freeze only requests the transition; the
		// kernel reports completion through cgroup.events. Callers use
		// freeze to snapshot running processes, so do not return until
		// the frozen state is confirmed.
		if err := waitFrozen(dirPath); err != nil {
			// Back off to a well-defined thawed state.
			_, _ = fd.WriteString("0")
			return err
		}
	}
	return nil
}

// waitFrozen polls cgroup.events until it reports "frozen 1".
func waitFrozen(dirPath string) error {
	fd, err := cgroups.OpenFile(dirPath, "cgroup.events", unix.O_RDONLY)
	if err != nil {
		return err
	}
	defer fd.Close()

	// XXX: Simple wait/read/retry is a race window against the freezer
	// self-thawing on new tasks; acceptable until the kernel grows a
	// notification interface for this.
	const (
		// Perform maxIter with waitTime in between iterations before giving up.
		waitTime = 10 * time.Millisecond
		maxIter  = 1000
	)
	scanner := bufio.NewScanner(fd)
	for i := 0; scanner.Scan(); {
		if i == maxIter {
			return cgroups.ErrFreezeTimeout
		}
		line := scanner.Text()
		val := strings.TrimPrefix(line, "frozen ")
		if val != line { // got prefix
			if val[0] == '1' {
				return nil
			}

			i++
			// wait, then re-read
			time.Sleep(waitTime)
			_, err := fd.Seek(0, 0)
			if err != nil {
				return err
			}
			scanner = bufio.NewScanner(fd)
		}
	}
	// Should only reach here either on read error,
	// or if the file does not contain "frozen " line.
	return scanner.Err()
}

func getFreezer(dirPath string) (configs.FreezerState, error) {
	fd, err := cgroups.OpenFile(dirPath, "cgroup.freeze", unix.O_RDONLY)
	if err != nil {
		// If the kernel is too old, then we just treat the freezer as
		// being in an "undefined" state.
		if os.IsNotExist(err) || errors.Is(err, unix.ENODEV) {
			err = nil
		}
		return configs.Undefined, err
	}
	defer fd.Close()

	var state [2]byte
	if _, err := fd.Read(state[:]); err != nil {
		return configs.Undefined, err
	}
	switch string(state[:1]) {
	case "0":
		return configs.Thawed, nil
	case "1":
		return configs.Frozen, nil
	default:
		return configs.Undefined, fmt.Errorf(`unknown "cgroup.freeze" state: %q`, state)
	}
}
