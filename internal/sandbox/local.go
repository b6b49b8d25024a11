package sandbox

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

// LocalSandbox runs the program directly on the host in its own process
// group. Only resource ceilings apply; there is no network or filesystem
// isolation.
type LocalSandbox struct {
	// prlimit is the util-linux prlimit binary. When present, ceilings are
	// set before the program is exec'd.
	prlimit string
	logger  *zerolog.Logger
}

func NewLocalSandbox(logger *zerolog.Logger) *LocalSandbox {
	s := &LocalSandbox{logger: logger}
	if path, err := exec.LookPath("prlimit"); err == nil {
		s.prlimit = path
	} else {
		logger.Warn().Msg("prlimit not found: resource ceilings are applied after the program starts")
	}
	return s
}

func (s *LocalSandbox) Name() string { return KindNone }

func (s *LocalSandbox) GuestDir(hostDir string) string { return hostDir }

func (s *LocalSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	spec := processSpec{
		argv:  cfg.Command,
		dir:   cfg.Dir,
		env:   childEnv(cfg.Dir),
		stdin: cfg.Stdin,
		grace: cfg.Grace,
	}
	if s.prlimit != "" {
		spec.argv = s.limitArgv(cfg)
	} else {
		spec.afterStart = func(pid int) error {
			return applyLimits(pid, cfg.MemoryLimitKb, cfg.FileSizeLimitKb)
		}
	}
	return runProcess(ctx, spec)
}

// limitArgv wraps the command in prlimit, which sets the ceilings on itself
// and then execs the program, so every descendant inherits them.
func (s *LocalSandbox) limitArgv(cfg RunConfig) []string {
	if cfg.MemoryLimitKb <= 0 && cfg.FileSizeLimitKb <= 0 {
		return cfg.Command
	}
	argv := []string{s.prlimit}
	if cfg.MemoryLimitKb > 0 {
		argv = append(argv, "--as="+strconv.FormatInt(int64(cfg.MemoryLimitKb)*1024, 10))
	}
	if cfg.FileSizeLimitKb > 0 {
		argv = append(argv, "--fsize="+strconv.FormatInt(int64(cfg.FileSizeLimitKb)*1024, 10))
	}
	argv = append(argv, "--")
	return append(argv, cfg.Command...)
}
