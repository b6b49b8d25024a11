package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/itstheanurag/snipexec/internal/languages"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"snipexec", "serve", "run", "languages", "--config"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLILanguages(t *testing.T) {
	output, err := executeCommand(rootCmd, "languages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(output) != "Available languages:\nrs, cpp, hs, c, py, js, sh, go, java" {
		t.Fatalf("output = %q", output)
	}
}

func TestLanguageForFile(t *testing.T) {
	reg := languages.Default()
	tests := map[string]string{
		"main.cc":   "cpp",
		"hello.py":  "py",
		"Main.java": "java",
		"script.sh": "sh",
		"notes.txt": "",
		"Makefile":  "",
	}
	for file, want := range tests {
		if got := languageForFile(reg, file); got != want {
			t.Errorf("languageForFile(%q) = %q, want %q", file, got, want)
		}
	}
}

func TestCLIRunShell(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	t.Chdir(t.TempDir())
	t.Setenv("SNIPEXEC_ENGINE_SANDBOX", "none")
	t.Setenv("SNIPEXEC_ENGINE_WORKSPACE_ROOT", t.TempDir())
	t.Setenv("SNIPEXEC_ENGINE_MEMORY_LIMIT_KB", "0")

	src := filepath.Join(t.TempDir(), "hello.sh")
	if err := os.WriteFile(src, []byte(`read name; echo "hi $name"`), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(rootCmd, "run", "--log-level", "error", "--stdin", "snip", src)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, output)
	}
	if !strings.Contains(output, "hi snip") {
		t.Fatalf("output = %q", output)
	}
}
