package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func newLocal() *LocalSandbox {
	logger := zerolog.Nop()
	return NewLocalSandbox(&logger)
}

func TestLocalStdinRoundTrip(t *testing.T) {
	requireTool(t, "cat")

	payload := "first line\nsecond line\n\nno newline"
	res, err := newLocal().Run(context.Background(), RunConfig{
		Dir:     t.TempDir(),
		Command: []string{"cat"},
		Stdin:   payload,
		Grace:   time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	if got := string(res.Stdout); got != payload {
		t.Fatalf("stdout = %q, want %q", got, payload)
	}
}

func TestLocalEmptyStdinIsClosed(t *testing.T) {
	requireTool(t, "cat")

	done := make(chan struct{})
	var res *Result
	var err error
	go func() {
		defer close(done)
		res, err = newLocal().Run(context.Background(), RunConfig{
			Dir:     t.TempDir(),
			Command: []string{"cat"},
			Grace:   time.Second,
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cat did not see end of input")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Stdout) != 0 {
		t.Fatalf("stdout = %q, want empty", res.Stdout)
	}
}

func TestLocalSeparatesStreamsAndExitCode(t *testing.T) {
	requireTool(t, "sh")

	res, err := newLocal().Run(context.Background(), RunConfig{
		Dir:     t.TempDir(),
		Command: []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
		Grace:   time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if string(res.Stdout) != "out\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if string(res.Stderr) != "err\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestLocalRunsInWorkspace(t *testing.T) {
	requireTool(t, "sh")

	dir := t.TempDir()
	res, err := newLocal().Run(context.Background(), RunConfig{
		Dir:     dir,
		Command: []string{"sh", "-c", "pwd -P"},
		Grace:   time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != want {
		t.Fatalf("working dir = %q, want %q", got, want)
	}
}

func TestLocalSignalExitCode(t *testing.T) {
	requireTool(t, "sh")

	res, err := newLocal().Run(context.Background(), RunConfig{
		Dir:     t.TempDir(),
		Command: []string{"sh", "-c", "kill -9 $$"},
		Grace:   time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 128+9 {
		t.Fatalf("exit code = %d, want %d", res.ExitCode, 128+9)
	}
}

func TestLocalMissingProgram(t *testing.T) {
	_, err := newLocal().Run(context.Background(), RunConfig{
		Dir:     t.TempDir(),
		Command: []string{"definitely-not-a-real-binary-4f2a"},
		Grace:   time.Second,
	})
	if err == nil {
		t.Fatal("expected spawn error")
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("err = %v, want exec.ErrNotFound", err)
	}
}

func TestLocalKillsProcessGroupOnCancel(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// The background sleep inherits stdout, so only a group kill lets Run
	// return before the grace period would matter.
	start := time.Now()
	res, err := newLocal().Run(ctx, RunConfig{
		Dir:     t.TempDir(),
		Command: []string{"sh", "-c", "sleep 30 & echo $!; wait"},
		Grace:   500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("run took %v after cancellation", elapsed)
	}
	if !res.Killed {
		t.Fatal("Killed not set after cancellation")
	}

	child, err := strconv.Atoi(strings.TrimSpace(string(res.Stdout)))
	if err != nil {
		t.Fatalf("background pid not reported: %q", res.Stdout)
	}
	deadline := time.Now().Add(2 * time.Second)
	for alive(child) {
		if time.Now().After(deadline) {
			t.Fatalf("background child %d survived the run", child)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestGovernorEarlyExitWithLingeringChild(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "sleep")

	// sh exits at once but the background sleep holds stdout until the
	// grace period closes the pipes, well after the budget.
	gov := Governor{Budget: 200 * time.Millisecond, Grace: 600 * time.Millisecond}
	res, err := gov.Run(context.Background(), newLocal(), RunConfig{
		Dir:     t.TempDir(),
		Command: []string{"sh", "-c", "echo hi; sleep 30 &"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TimedOut || res.Killed {
		t.Fatalf("program that exited by itself reported as timed out: %+v", res)
	}
	if res.ExitCode != 0 || string(res.Stdout) != "hi\n" {
		t.Fatalf("exit code = %d stdout = %q", res.ExitCode, res.Stdout)
	}
}

func TestLocalLimitArgv(t *testing.T) {
	s := &LocalSandbox{prlimit: "/usr/bin/prlimit"}

	got := s.limitArgv(RunConfig{Command: []string{"./main", "-v"}, MemoryLimitKb: 2000000, FileSizeLimitKb: 100})
	want := []string{"/usr/bin/prlimit", "--as=2048000000", "--fsize=102400", "--", "./main", "-v"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("argv = %q, want %q", got, want)
	}

	if got := s.limitArgv(RunConfig{Command: []string{"./main"}}); len(got) != 1 || got[0] != "./main" {
		t.Fatalf("unlimited argv = %q", got)
	}
}

func TestLocalLimitsReachForkedChildren(t *testing.T) {
	requireTool(t, "prlimit")
	requireTool(t, "sh")
	requireTool(t, "cat")
	if _, err := os.Stat("/proc/self/limits"); err != nil {
		t.Skip("/proc not available")
	}

	// cat is forked by sh straight away, so it only sees the ceiling if it
	// was in place before sh was exec'd.
	res, err := newLocal().Run(context.Background(), RunConfig{
		Dir:             t.TempDir(),
		Command:         []string{"sh", "-c", "cat /proc/self/limits"},
		FileSizeLimitKb: 100,
		Grace:           time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if strings.HasPrefix(line, "Max file size") {
			if fields := strings.Fields(line); len(fields) < 5 || fields[3] != "102400" {
				t.Fatalf("file size limit line = %q", line)
			}
			return
		}
	}
	t.Fatalf("no file size limit in %q", res.Stdout)
}

// alive reports whether pid exists and is not a zombie waiting to be reaped.
func alive(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return false
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return !os.IsNotExist(err)
	}
	// The state field follows the parenthesised command name.
	if i := strings.LastIndexByte(string(stat), ')'); i >= 0 && i+2 < len(stat) {
		return stat[i+2] != 'Z'
	}
	return true
}

func TestExitCodeNilState(t *testing.T) {
	if got := exitCode(nil); got != -1 {
		t.Fatalf("exitCode(nil) = %d, want -1", got)
	}
}

func TestKillGroupIgnoresMissingProcess(t *testing.T) {
	if err := killGroup(0); err != nil {
		t.Fatalf("killGroup(0) = %v", err)
	}
}
