package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/sandbox"
)

const DefaultCompileTimeout = 30 * time.Second

// compile runs the language's build steps in order inside dir. It returns nil
// when every step exits zero; otherwise the outcome that ends the request.
func (e *Executor) compile(ctx context.Context, lang languages.Language, dir string) Outcome {
	for _, step := range lang.CompileSteps {
		if out := e.compileStep(ctx, step, dir); out != nil {
			return out
		}
	}
	return nil
}

func (e *Executor) compileStep(ctx context.Context, step languages.Command, dir string) Outcome {
	stepCtx, cancel := context.WithTimeout(ctx, e.opts.CompileTimeout)
	defer cancel()

	res, err := sandbox.RunHost(stepCtx, dir, step.Render(dir), e.opts.KillGrace)
	switch {
	case ctx.Err() != nil:
		return InfrastructureError{Cause: fmt.Errorf("compile %s: %w", step.Program, ctx.Err())}
	case err != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded), err == nil && res.Killed:
		return CompileFailure{Stderr: fmt.Sprintf("%s exceeded the %s compile budget\n", step.Program, e.opts.CompileTimeout)}
	case err != nil:
		return InfrastructureError{Cause: fmt.Errorf("compile step %q: %w", step.String(), err)}
	case res.ExitCode != 0:
		return CompileFailure{Stderr: decode(res.Stderr)}
	}
	return nil
}

// decode turns captured bytes into text, replacing invalid UTF-8 sequences
// with U+FFFD.
func decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
