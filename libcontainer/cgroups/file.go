package cgroups

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// TestMode is set by tests that write cgroup files into a temporary
// directory rather than a real cgroupfs mount.
var TestMode bool

// OpenFile opens a cgroup file under dir, making sure the resolved path
// stays inside the cgroup mount.
func OpenFile(dir, file string, flags int) (*os.File, error) {
	if dir == "" {
		return nil, fmt.Errorf("no directory specified for %s", file)
	}
	return openFile(dir, file, flags)
}

// ReadFile reads the whole content of a cgroup file in dir.
func ReadFile(dir, file string) (string, error) {
	fd, err := OpenFile(dir, file, unix.O_RDONLY)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(fd)
	return buf.String(), err
}

// WriteFile writes data to a cgroup file in dir.
func WriteFile(dir, file, data string) error {
	fd, err := OpenFile(dir, file, unix.O_WRONLY)
	if err != nil {
		return err
	}
	defer fd.Close()
	if _, err := fd.WriteString(data); err != nil {
		return fmt.Errorf("failed to write %q: %w", data, &os.PathError{Op: "write", Path: path.Join(dir, file), Err: err})
	}
	return nil
}

const cgroupfsDir = "/sys/fs/cgroup"
const cgroupfsPrefix = cgroupfsDir + "/"

var (
	// Set via prepareOpenat2; a nil handle means openat2 is unusable and
	// openFallback is used instead.
	cgroupRootHandle *os.File
	prepOnce         sync.Once
	prepErr          error
	resolveFlags     uint64
)

func prepareOpenat2() error {
	prepOnce.Do(func() {
		fd, err := unix.Openat2(-1, cgroupfsDir, &unix.OpenHow{
			Flags: unix.O_DIRECTORY | unix.O_PATH,
		})
		if err != nil {
			prepErr = &os.PathError{Op: "openat2", Path: cgroupfsDir, Err: err}
			if err != unix.ENOSYS {
				logrus.Warnf("falling back to securejoin: %s", prepErr)
			} else {
				logrus.Debug("openat2 not available, falling back to securejoin")
			}
			return
		}
		cgroupRootHandle = os.NewFile(uintptr(fd), cgroupfsDir)
		resolveFlags = unix.RESOLVE_BENEATH | unix.RESOLVE_NO_MAGICLINKS
		var st unix.Statfs_t
		if err := unix.Fstatfs(int(cgroupRootHandle.Fd()), &st); err == nil {
			if st.Type == unix.CGROUP2_SUPER_MAGIC || st.Type == unix.TMPFS_MAGIC {
				resolveFlags |= unix.RESOLVE_NO_XDEV
			}
		}
	})
	return prepErr
}

func openAndCheck(path string, flags int, mode os.FileMode) (*os.File, error) {
	reltarget := strings.TrimPrefix(path, cgroupfsPrefix)
	if len(reltarget) == len(path) {
		// Not a standard cgroup path; only allowed in tests.
		if TestMode {
			return os.OpenFile(path, flags, mode)
		}
		return nil, fmt.Errorf("invalid cgroup path %s", path)
	}
	clean, err := securejoin.SecureJoin(cgroupfsDir, reltarget)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(clean, flags, mode)
}

// openFallback is replaced by tests that need to exercise the openat2 path.
var openFallback = openAndCheck

func openFile(dir, file string, flags int) (*os.File, error) {
	mode := os.FileMode(0)
	if TestMode && flags&os.O_WRONLY != 0 {
		// Files in a test directory do not pre-exist like cgroupfs ones.
		flags |= os.O_TRUNC | os.O_CREATE
		mode = 0o600
	}
	p := path.Join(dir, path.Clean("/"+file)[1:])
	if prepareOpenat2() != nil {
		return openFallback(p, flags, mode)
	}
	relPath := strings.TrimPrefix(p, cgroupfsPrefix)
	if len(relPath) == len(p) {
		return openFallback(p, flags, mode)
	}

	fd, err := unix.Openat2(int(cgroupRootHandle.Fd()), relPath,
		&unix.OpenHow{
			Resolve: resolveFlags,
			Flags:   uint64(flags) | unix.O_CLOEXEC,
			Mode:    uint64(mode),
		})
	if err != nil {
		return nil, &os.PathError{Op: "openat2", Path: p, Err: err}
	}
	return os.NewFile(uintptr(fd), p), nil
}
