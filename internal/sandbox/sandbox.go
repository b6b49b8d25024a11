package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Result is the raw outcome of one sandboxed process. Interpreting the exit
// code is left to the caller.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
	// Killed is set when the backend killed the program because its context
	// ended. A program that exited by itself is never Killed, even if its
	// output was still draining at the deadline.
	Killed   bool
	Duration time.Duration
}

// Sandbox runs exactly one command per Run call inside an isolation boundary.
type Sandbox interface {
	Run(ctx context.Context, config RunConfig) (*Result, error)
	// GuestDir is the path under which the sandboxed process sees hostDir.
	GuestDir(hostDir string) string
	Name() string
}

// ImageEnsurer is implemented by backends that need images present before
// the first run.
type ImageEnsurer interface {
	EnsureImage(ctx context.Context) error
}

type RunConfig struct {
	Dir             string   // workspace on the host
	Command         []string // rendered argv
	Stdin           string
	MemoryLimitKb   int
	FileSizeLimitKb int
	// Grace bounds how long output pipes are drained after the process is
	// killed or exits.
	Grace time.Duration
}

const (
	KindFirejail = "firejail"
	KindDocker   = "docker"
	KindNone     = "none"
)

type Options struct {
	FirejailBinary  string
	DockerImage     string
	DockerPidsLimit int64
}

// New builds the backend named by kind.
func New(kind string, opts Options, logger *zerolog.Logger) (Sandbox, error) {
	switch kind {
	case KindFirejail, "":
		return NewFirejailSandbox(opts.FirejailBinary, logger), nil
	case KindDocker:
		return NewDockerSandbox(opts.DockerImage, opts.DockerPidsLimit, logger)
	case KindNone:
		logger.Warn().Msg("sandbox \"none\" selected: programs run without network or filesystem isolation")
		return NewLocalSandbox(logger), nil
	default:
		return nil, fmt.Errorf("unknown sandbox %q", kind)
	}
}
