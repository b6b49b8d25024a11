package sandbox

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// FirejailSandbox runs programs under firejail with no network and a private
// home directory that is the workspace itself. Firejail mounts the workspace
// over the invoking user's home, so relative paths resolve inside it.
type FirejailSandbox struct {
	binary string
	home   string
	logger *zerolog.Logger
}

func NewFirejailSandbox(binary string, logger *zerolog.Logger) *FirejailSandbox {
	if binary == "" {
		binary = "firejail"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "/root"
	}
	return &FirejailSandbox{binary: binary, home: home, logger: logger}
}

func (s *FirejailSandbox) Name() string { return KindFirejail }

func (s *FirejailSandbox) GuestDir(string) string { return s.home }

func (s *FirejailSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	argv := s.argv(cfg)
	s.logger.Debug().Strs("argv", argv).Msg("starting firejail")

	return runProcess(ctx, processSpec{
		argv:  argv,
		dir:   cfg.Dir,
		env:   childEnv(s.home),
		stdin: cfg.Stdin,
		grace: cfg.Grace,
	})
}

func (s *FirejailSandbox) argv(cfg RunConfig) []string {
	argv := []string{
		s.binary,
		"--quiet",
		"--net=none",
		"--private=" + cfg.Dir,
		"--private-cwd",
		"--private-opt=none",
		"--private-etc=none",
	}
	if cfg.MemoryLimitKb > 0 {
		argv = append(argv, fmt.Sprintf("--rlimit-as=%d", int64(cfg.MemoryLimitKb)*1024))
	}
	if cfg.FileSizeLimitKb > 0 {
		argv = append(argv, fmt.Sprintf("--rlimit-fsize=%d", int64(cfg.FileSizeLimitKb)*1024))
	}
	argv = append(argv, "--")
	return append(argv, cfg.Command...)
}
