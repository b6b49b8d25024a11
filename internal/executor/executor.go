package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/metrics"
	"github.com/itstheanurag/snipexec/internal/sandbox"
	"github.com/itstheanurag/snipexec/internal/workspace"
)

// Request is one piece of source to build and run. The language is already
// resolved; see Resolve.
type Request struct {
	Language languages.Language
	Source   string
	Stdin    string
}

type Options struct {
	RunTimeout      time.Duration
	CompileTimeout  time.Duration
	KillGrace       time.Duration
	MemoryLimitKb   int
	FileSizeLimitKb int
	MaxOutputChars  int
	// IncludeStdoutOnFailure appends stdout to stderr in runtime failures.
	IncludeStdoutOnFailure bool
	// PreserveTimeoutOutput keeps whatever the program printed before it was
	// killed.
	PreserveTimeoutOutput bool
}

func DefaultOptions() Options {
	return Options{
		RunTimeout:             sandbox.DefaultBudget,
		CompileTimeout:         DefaultCompileTimeout,
		KillGrace:              sandbox.DefaultGrace,
		MaxOutputChars:         DefaultMaxOutputChars,
		IncludeStdoutOnFailure: true,
	}
}

// Run describes a finished request for the run log. Source code and output
// are never recorded.
type Run struct {
	Language  string
	Outcome   Kind
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder persists finished runs. Failures are logged and never affect the
// outcome.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}

const tracerName = "github.com/itstheanurag/snipexec/internal/executor"

type Executor struct {
	registry   *languages.Registry
	workspaces *workspace.Manager
	sandbox    sandbox.Sandbox
	governor   sandbox.Governor
	opts       Options
	recorder   Recorder
	logger     *zerolog.Logger
	tracer     trace.Tracer
}

func NewExecutor(registry *languages.Registry, workspaces *workspace.Manager, sb sandbox.Sandbox, opts Options, logger *zerolog.Logger) *Executor {
	defaults := DefaultOptions()
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaults.RunTimeout
	}
	if opts.CompileTimeout <= 0 {
		opts.CompileTimeout = defaults.CompileTimeout
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaults.KillGrace
	}
	if opts.MaxOutputChars <= 0 {
		opts.MaxOutputChars = defaults.MaxOutputChars
	}

	return &Executor{
		registry:   registry,
		workspaces: workspaces,
		sandbox:    sb,
		governor:   sandbox.Governor{Budget: opts.RunTimeout, Grace: opts.KillGrace},
		opts:       opts,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}
}

// SetTracerProvider replaces the global tracer provider for this executor's
// spans. It must be called before the executor is shared.
func (e *Executor) SetTracerProvider(tp trace.TracerProvider) {
	e.tracer = tp.Tracer(tracerName)
}

// SetRecorder installs a run log. It must be called before the executor is
// shared.
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

func (e *Executor) Registry() *languages.Registry {
	return e.registry
}

// Resolve looks up a language tag. Unknown tags are counted and returned as
// an error wrapping languages.ErrLanguageNotFound; no work is done for them.
func (e *Executor) Resolve(code string) (languages.Language, error) {
	lang, err := e.registry.Find(code)
	if err != nil {
		metrics.UnknownLanguageTotal.Inc()
		return languages.Language{}, err
	}
	return lang, nil
}

// Run resolves code and executes source. The error is non-nil only for an
// unknown language.
func (e *Executor) Run(ctx context.Context, code, source, stdin string) (Outcome, error) {
	lang, err := e.Resolve(code)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, Request{Language: lang, Source: source, Stdin: stdin}), nil
}

// Assemble renders o with the configured output budget.
func (e *Executor) Assemble(o Outcome) string {
	return Assemble(o, e.opts.MaxOutputChars)
}

// Execute builds and runs one request in a fresh workspace and always
// produces exactly one outcome. The workspace is removed before Execute
// returns.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	start := time.Now()
	code := req.Language.Code

	ctx, span := e.tracer.Start(ctx, "executor.Execute", trace.WithAttributes(attribute.String("language", code)))
	defer span.End()

	outcome, exitCode := e.execute(ctx, req)

	elapsed := time.Since(start)
	kind := outcome.Kind()
	span.SetAttributes(attribute.String("outcome", string(kind)))
	if ie, ok := outcome.(InfrastructureError); ok {
		span.RecordError(ie.Cause)
		span.SetStatus(codes.Error, "infrastructure error")
	}

	metrics.ExecutionsTotal.WithLabelValues(code, string(kind)).Inc()
	metrics.ExecutionDuration.WithLabelValues(code, "total").Observe(float64(elapsed.Milliseconds()))

	event := e.logger.Info()
	if kind == KindInfrastructureError {
		event = e.logger.Error().Err(outcome.(InfrastructureError).Cause)
	}
	event.
		Str("language", code).
		Str("outcome", string(kind)).
		Dur("duration", elapsed).
		Msg("execution finished")

	if e.recorder != nil {
		run := Run{Language: code, Outcome: kind, ExitCode: exitCode, StartedAt: start, Duration: elapsed}
		if err := e.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
			e.logger.Warn().Err(err).Str("language", code).Msg("failed to record run")
		}
	}
	return outcome
}

func (e *Executor) execute(ctx context.Context, req Request) (Outcome, int) {
	ws, err := e.workspaces.Acquire(req.Language)
	if err != nil {
		return InfrastructureError{Cause: err}, -1
	}
	defer func() {
		if err := ws.Release(); err != nil {
			e.logger.Warn().Err(err).Str("workspace", ws.Root).Msg("failed to release workspace")
		}
	}()

	if err := ws.WriteSource(req.Source); err != nil {
		return InfrastructureError{Cause: err}, -1
	}

	if req.Language.Compiled() {
		compileStart := time.Now()
		cctx, span := e.tracer.Start(ctx, "executor.compile", trace.WithAttributes(
			attribute.String("language", req.Language.Code),
			attribute.Int("steps", len(req.Language.CompileSteps)),
		))
		out := e.compile(cctx, req.Language, ws.Root)
		if out != nil {
			span.SetAttributes(attribute.String("outcome", string(out.Kind())))
		}
		span.End()
		metrics.ExecutionDuration.WithLabelValues(req.Language.Code, "compile").Observe(float64(time.Since(compileStart).Milliseconds()))
		if out != nil {
			return out, -1
		}
	}

	rctx, span := e.tracer.Start(ctx, "executor.run", trace.WithAttributes(
		attribute.String("language", req.Language.Code),
		attribute.String("sandbox", e.sandbox.Name()),
	))
	defer span.End()

	res, err := e.governor.Run(rctx, e.sandbox, sandbox.RunConfig{
		Dir:             ws.Root,
		Command:         req.Language.Run.Render(e.sandbox.GuestDir(ws.Root)),
		Stdin:           req.Stdin,
		MemoryLimitKb:   e.opts.MemoryLimitKb,
		FileSizeLimitKb: e.opts.FileSizeLimitKb,
	})
	if err != nil {
		span.RecordError(err)
		return InfrastructureError{Cause: fmt.Errorf("run %s: %w", req.Language.Code, err)}, -1
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode), attribute.Bool("timed_out", res.TimedOut))
	metrics.ExecutionDuration.WithLabelValues(req.Language.Code, "run").Observe(float64(res.Duration.Milliseconds()))

	return e.classify(res), res.ExitCode
}

func (e *Executor) classify(res *sandbox.Result) Outcome {
	switch {
	case res.TimedOut:
		out := TimedOut{Budget: e.opts.RunTimeout}
		if e.opts.PreserveTimeoutOutput {
			out.Stdout = decode(res.Stdout)
		}
		return out
	case res.ExitCode == 0:
		return Success{Stdout: decode(res.Stdout)}
	default:
		out := RuntimeFailure{Stderr: decode(res.Stderr), ExitCode: res.ExitCode}
		if e.opts.IncludeStdoutOnFailure {
			out.Stdout = decode(res.Stdout)
		}
		return out
	}
}
