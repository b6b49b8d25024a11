package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type processSpec struct {
	argv  []string
	dir   string
	env   []string
	stdin string
	grace time.Duration
	// discardStdout sends stdout to the null device.
	discardStdout bool
	// afterStart runs once the child exists, before waiting on it.
	afterStart func(pid int) error
}

// runProcess starts argv in its own process group and waits for it. When ctx
// ends the whole group is killed. The group is killed again on return so no
// descendant outlives the call.
func runProcess(ctx context.Context, spec processSpec) (*Result, error) {
	if len(spec.argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, spec.argv[0], spec.argv[1:]...)
	cmd.Dir = spec.dir
	cmd.Env = spec.env
	cmd.Stdin = strings.NewReader(spec.stdin)

	var stdout, stderr lockedBuffer
	if !spec.discardStdout {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	var killed atomic.Bool
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killed.Store(true)
		return killGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = spec.grace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.argv[0], err)
	}
	pid := cmd.Process.Pid
	defer killGroup(pid)

	if spec.afterStart != nil {
		if err := spec.afterStart(pid); err != nil {
			_ = killGroup(pid)
			_ = cmd.Wait()
			return nil, err
		}
	}

	waitErr := cmd.Wait()
	// Descendants that kept the pipes open are gone after this.
	_ = killGroup(pid)

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Killed:   killed.Load(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
	case errors.Is(waitErr, exec.ErrWaitDelay):
	case ctx.Err() != nil:
	default:
		return nil, fmt.Errorf("wait %s: %w", spec.argv[0], waitErr)
	}

	res.ExitCode = exitCode(cmd.ProcessState)
	return res, nil
}

// RunHost runs a build step directly on the host with the caller's
// environment. Stdin is empty and stdout is discarded; only stderr and the
// exit status are reported. The process group handling matches the
// sandboxed backends.
func RunHost(ctx context.Context, dir string, argv []string, grace time.Duration) (*Result, error) {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return runProcess(ctx, processSpec{
		argv:          argv,
		dir:           dir,
		env:           os.Environ(),
		grace:         grace,
		discardStdout: true,
	})
}

func killGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// exitCode follows the shell convention of 128+signal for signalled children.
func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// childEnv is the environment handed to sandboxed programs.
func childEnv(home string) []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + home,
		"LANG=C.UTF-8",
	}
}

// lockedBuffer is written by exec's copy goroutines, which may still be
// running when Wait gives up after WaitDelay.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}
