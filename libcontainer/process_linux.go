package libcontainer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/vmjail/libcontainer/cgroups"
)

// Count of stdin, stdout and stderr, which precede any extra files in the
// child's fd table.
const stdioFdCount = 3

type filePair struct {
	parent *os.File
	child  *os.File
}

type parentProcess interface {
	pid() int
	start() error
}

type initProcess struct {
	cmd             *exec.Cmd
	messageSockPair filePair
	manager         cgroups.Manager
	bootstrapData   io.Reader
}

func (p *initProcess) pid() int {
	return p.cmd.Process.Pid
}

func (p *initProcess) start() (retErr error) {
	defer p.messageSockPair.parent.Close()
	err := p.cmd.Start()
	// The child side of the pipe lives in the init process now.
	_ = p.messageSockPair.child.Close()
	if err != nil {
		return fmt.Errorf("unable to start init: %w", err)
	}
	defer func() {
		if retErr != nil {
			// Init never reached its readiness handshake; reap it so a
			// failed start leaves nothing behind in the cgroup.
			_ = p.cmd.Process.Kill()
			_, _ = p.cmd.Process.Wait()
		}
	}()

	waitInit := initWaiter(p.messageSockPair.parent)

	// Move init into the container's cgroup before it starts doing real
	// work, so every byte it allocates is charged to the container.
	if err := p.manager.Apply(p.pid()); err != nil {
		return fmt.Errorf("unable to apply cgroup configuration: %w", err)
	}
	if _, err := io.Copy(p.messageSockPair.parent, p.bootstrapData); err != nil {
		return fmt.Errorf("can't copy bootstrap data to pipe: %w", err)
	}

	if err := <-waitInit; err != nil {
		return err
	}
	return nil
}

// initWaiter returns a channel to wait on for the init process to signal
// that its preliminary setup is done and it is about to exec the workload.
func initWaiter(r io.Reader) chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)

		inited := make([]byte, 1)
		n, err := r.Read(inited)
		if err == nil {
			if n < 1 {
				err = fmt.Errorf("short read")
			} else if inited[0] != 0 {
				err = fmt.Errorf("unexpected %d != 0", inited[0])
			} else {
				ch <- nil
				return
			}
		}
		ch <- fmt.Errorf("waiting for init preliminary setup: %w", err)
	}()
	return ch
}

func (c *Container) commandTemplate(p *Process, childInitPipe *os.File) (*exec.Cmd, error) {
	cmd := exec.Command("/proc/self/exe", "init")
	cmd.Args[0] = os.Args[0]
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.Dir = c.config.Rootfs
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, p.ExtraFiles...)
	cmd.ExtraFiles = append(cmd.ExtraFiles, childInitPipe)
	cmd.Env = append(cmd.Env,
		"_LIBCONTAINER_INITPIPE="+strconv.Itoa(stdioFdCount+len(cmd.ExtraFiles)-1))
	if p.Init {
		cmd.SysProcAttr.Cloneflags = c.config.Namespaces.CloneFlags()
	}
	// Kill init if the agent dies before the handshake completes.
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
	return cmd, nil
}

func (c *Container) newInitProcess(p *Process, cmd *exec.Cmd, messageSockPair filePair) (*initProcess, error) {
	data, err := json.Marshal(&initConfig{
		Args:         p.Args,
		Env:          p.Env,
		Cwd:          p.Cwd,
		Hostname:     c.config.Hostname,
		NoNewKeyring: c.config.NoNewKeyring,
	})
	if err != nil {
		return nil, err
	}
	return &initProcess{
		cmd:             cmd,
		messageSockPair: messageSockPair,
		manager:         c.cgroupManager,
		bootstrapData:   bytes.NewReader(data),
	}, nil
}
