package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itstheanurag/snipexec/internal/executor"
	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a snippet once and print the result",
	Long: `Compile and run a snippet with the configured sandbox and print the
same text the server would return.

Code can be provided via:
  - File argument: snipexec run main.py
  - Inline flag:   snipexec run --lang py -c 'print(1+1)'
  - Stdin:         echo 'print(1+1)' | snipexec run --lang py

The language is taken from --lang, or from the file extension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("lang", "l", "", "Language code (see 'snipexec languages')")
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	runCmd.Flags().String("stdin", "", "Text passed to the program on standard input")
	runCmd.Flags().String("stdin-file", "", "File passed to the program on standard input")
	rootCmd.AddCommand(runCmd)
}

// errOutcome signals a non-success outcome after its text was printed.
var errOutcome = errors.New("execution did not succeed")

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	lang, _ := cmd.Flags().GetString("lang")
	stdin, _ := cmd.Flags().GetString("stdin")
	stdinFile, _ := cmd.Flags().GetString("stdin-file")

	var source, filename string
	switch {
	case code != "":
		source = code
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		source = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		source = string(data)
	}

	if stdinFile != "" {
		data, err := os.ReadFile(stdinFile)
		if err != nil {
			return err
		}
		stdin = string(data)
	}

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	conf, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	exec, _, err := server.NewEngine(conf, logger)
	if err != nil {
		return err
	}

	if lang == "" {
		lang = languageForFile(exec.Registry(), filename)
	}
	outcome, err := exec.Run(cmd.Context(), lang, source, stdin)
	if errors.Is(err, languages.ErrLanguageNotFound) {
		if lang == "" {
			return fmt.Errorf("no language specified\n%s", exec.Registry().Available())
		}
		return fmt.Errorf("%s is not an available language\n%s", lang, exec.Registry().Available())
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSuffix(exec.Assemble(outcome), "\n"))
	if outcome.Kind() != executor.KindSuccess {
		return errOutcome
	}
	return nil
}

// languageForFile maps a file extension to a language code.
func languageForFile(reg *languages.Registry, filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return ""
	}
	for _, l := range reg.List() {
		if l.Extension == ext || l.Code == ext {
			return l.Code
		}
	}
	return ""
}
