package sandbox

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultBudget = 5 * time.Second
	DefaultGrace  = 500 * time.Millisecond
)

// Governor bounds a sandbox run by a wall-clock budget. The backends kill the
// process tree when the derived context ends, so the child cannot outlive
// Budget+Grace.
type Governor struct {
	Budget time.Duration
	Grace  time.Duration
}

func (g Governor) budget() time.Duration {
	if g.Budget <= 0 {
		return DefaultBudget
	}
	return g.Budget
}

func (g Governor) grace() time.Duration {
	if g.Grace <= 0 {
		return DefaultGrace
	}
	return g.Grace
}

// Run executes cfg on sb. If the budget elapses while the program is still
// running the returned Result has TimedOut set. Cancellation of ctx itself is reported as ctx's error.
func (g Governor) Run(ctx context.Context, sb Sandbox, cfg RunConfig) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.budget())
	defer cancel()

	cfg.Grace = g.grace()
	res, err := sb.Run(runCtx, cfg)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && (res == nil || res.Killed) {
		if res == nil {
			res = &Result{ExitCode: -1, Killed: true}
		}
		res.TimedOut = true
		return res, nil
	}
	return res, err
}
