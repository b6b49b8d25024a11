package sandbox

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFirejailArgv(t *testing.T) {
	logger := zerolog.Nop()
	sb := NewFirejailSandbox("", &logger)

	got := sb.argv(RunConfig{
		Dir:             "/tmp/ws-abc",
		Command:         []string{"python3", "main.py"},
		MemoryLimitKb:   262144,
		FileSizeLimitKb: 1024,
	})
	want := []string{
		"firejail",
		"--quiet",
		"--net=none",
		"--private=/tmp/ws-abc",
		"--private-cwd",
		"--private-opt=none",
		"--private-etc=none",
		"--rlimit-as=268435456",
		"--rlimit-fsize=1048576",
		"--",
		"python3",
		"main.py",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("argv =\n  %v\nwant\n  %v", got, want)
	}
}

func TestFirejailArgvWithoutLimits(t *testing.T) {
	logger := zerolog.Nop()
	sb := NewFirejailSandbox("/usr/local/bin/firejail", &logger)

	got := sb.argv(RunConfig{Dir: "/w", Command: []string{"./main"}})
	if got[0] != "/usr/local/bin/firejail" {
		t.Fatalf("binary = %q", got[0])
	}
	for _, arg := range got {
		if strings.HasPrefix(arg, "--rlimit") {
			t.Fatalf("unexpected limit flag %q", arg)
		}
	}
	if got[len(got)-2] != "--" || got[len(got)-1] != "./main" {
		t.Fatalf("command not separated: %v", got)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	logger := zerolog.Nop()

	for _, tt := range []struct {
		kind string
		want string
	}{
		{"", KindFirejail},
		{KindFirejail, KindFirejail},
		{KindNone, KindNone},
	} {
		sb, err := New(tt.kind, Options{}, &logger)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.kind, err)
		}
		if sb.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.kind, sb.Name(), tt.want)
		}
	}

	if _, err := New("chroot", Options{}, &logger); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
