package languages

import "strings"

// WorkspaceToken is replaced with the workspace path when a command is rendered.
const WorkspaceToken = "{workspace}"

// Command is a program invocation expressed as an argument vector. It is
// never interpreted by a shell.
type Command struct {
	Program string
	Args    []string
}

// Render returns the argument vector with WorkspaceToken substituted by dir.
func (c Command) Render(dir string) []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, strings.ReplaceAll(c.Program, WorkspaceToken, dir))
	for _, arg := range c.Args {
		argv = append(argv, strings.ReplaceAll(arg, WorkspaceToken, dir))
	}
	return argv
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

type Language struct {
	Code         string
	Name         string
	Extension    string
	SourceFile   string // overrides main.<Extension> when set
	CompileSteps []Command
	Run          Command
}

// SourceName is the file name the submitted source is written to.
func (l Language) SourceName() string {
	if l.SourceFile != "" {
		return l.SourceFile
	}
	return "main." + l.Extension
}

func (l Language) Compiled() bool {
	return len(l.CompileSteps) > 0
}
