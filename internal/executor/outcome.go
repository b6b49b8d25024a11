package executor

import "time"

type Kind string

const (
	KindSuccess             Kind = "success"
	KindCompileFailure      Kind = "compile_failure"
	KindRuntimeFailure      Kind = "runtime_failure"
	KindTimedOut            Kind = "timed_out"
	KindInfrastructureError Kind = "infrastructure_error"
)

// Outcome is the result of one request. The set of variants is closed: only
// the types in this file implement it.
type Outcome interface {
	Kind() Kind
	outcome()
}

type Success struct {
	Stdout string
}

type CompileFailure struct {
	Stderr string
}

type RuntimeFailure struct {
	Stderr   string
	Stdout   string // empty unless stdout on failure is enabled
	ExitCode int
}

type TimedOut struct {
	Budget time.Duration
	Stdout string // partial output, empty unless preserved
}

type InfrastructureError struct {
	Cause error
}

func (Success) Kind() Kind             { return KindSuccess }
func (CompileFailure) Kind() Kind      { return KindCompileFailure }
func (RuntimeFailure) Kind() Kind      { return KindRuntimeFailure }
func (TimedOut) Kind() Kind            { return KindTimedOut }
func (InfrastructureError) Kind() Kind { return KindInfrastructureError }

func (Success) outcome()             {}
func (CompileFailure) outcome()      {}
func (RuntimeFailure) outcome()      {}
func (TimedOut) outcome()            {}
func (InfrastructureError) outcome() {}
