//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// applyLimits sets RLIMIT_AS and RLIMIT_FSIZE on a running process. It is the
// fallback when prlimit(1) is missing; children forked before the call do not
// inherit the limits.
func applyLimits(pid, memoryKb, fileSizeKb int) error {
	if memoryKb > 0 {
		lim := uint64(memoryKb) * 1024
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: lim, Max: lim}, nil); err != nil {
			return fmt.Errorf("set address space limit: %w", err)
		}
	}
	if fileSizeKb > 0 {
		lim := uint64(fileSizeKb) * 1024
		if err := unix.Prlimit(pid, unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: lim, Max: lim}, nil); err != nil {
			return fmt.Errorf("set file size limit: %w", err)
		}
	}
	return nil
}
