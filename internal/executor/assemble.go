package executor

import (
	"fmt"
	"unicode/utf8"
)

const (
	DefaultMaxOutputChars = 1500

	noOutput    = "(no output)"
	errorPrefix = "An error occurred.\n"

	// MinOutputChars is the smallest budget that fits the error prefix.
	MinOutputChars = len(errorPrefix)
)

// Assemble renders an outcome as the single text shown to the requester,
// truncated to maxChars characters. The error prefix survives truncation
// whenever maxChars is at least MinOutputChars.
func Assemble(o Outcome, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxOutputChars
	}

	switch o := o.(type) {
	case Success:
		if o.Stdout == "" {
			return noOutput
		}
		return truncate(o.Stdout, maxChars)
	case CompileFailure:
		return failure(o.Stderr, maxChars)
	case RuntimeFailure:
		return failure(o.Stderr+o.Stdout, maxChars)
	case TimedOut:
		return failure(o.Stdout, maxChars)
	case InfrastructureError:
		cause := "unknown error"
		if o.Cause != nil {
			cause = o.Cause.Error()
		}
		return failure(cause, maxChars)
	default:
		panic(fmt.Sprintf("executor: unhandled outcome %T", o))
	}
}

func failure(diagnostic string, maxChars int) string {
	if maxChars < MinOutputChars {
		return truncate(errorPrefix, maxChars)
	}
	return errorPrefix + truncate(diagnostic, maxChars-MinOutputChars)
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
