package languages

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefaultCodesOrder(t *testing.T) {
	want := []string{"rs", "cpp", "hs", "c", "py", "js", "sh", "go", "java"}
	if got := Default().Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Codes() = %v, want %v", got, want)
	}
}

func TestFindExactMatchOnly(t *testing.T) {
	r := Default()

	lang, err := r.Find("py")
	if err != nil {
		t.Fatalf("Find(py): %v", err)
	}
	if lang.SourceName() != "main.py" {
		t.Fatalf("unexpected source name %q", lang.SourceName())
	}

	for _, code := range []string{"p", "pyt", "PY", " py", "python", ""} {
		if _, err := r.Find(code); !errors.Is(err, ErrLanguageNotFound) {
			t.Fatalf("Find(%q) err = %v, want ErrLanguageNotFound", code, err)
		}
	}
}

func TestNewRegistryRejectsInvalidTables(t *testing.T) {
	run := Command{Program: "./main"}
	cases := map[string][]Language{
		"empty":          nil,
		"missing code":   {{Extension: "x", Run: run}},
		"missing ext":    {{Code: "x", Run: run}},
		"missing run":    {{Code: "x", Extension: "x"}},
		"duplicate code": {{Code: "x", Extension: "x", Run: run}, {Code: "x", Extension: "y", Run: run}},
	}
	for name, langs := range cases {
		if _, err := NewRegistry(langs...); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestListIsACopy(t *testing.T) {
	r := Default()
	list := r.List()
	list[0].Code = "mutated"
	if r.Codes()[0] != "rs" {
		t.Fatalf("registry mutated through List()")
	}
}

func TestAvailable(t *testing.T) {
	r, err := NewRegistry(
		Language{Code: "a", Extension: "a", Run: Command{Program: "a"}},
		Language{Code: "b", Extension: "b", Run: Command{Program: "b"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := r.Available(), "Available languages:\na, b"; got != want {
		t.Fatalf("Available() = %q, want %q", got, want)
	}
}

func TestCommandRender(t *testing.T) {
	c := Command{Program: "{workspace}/main", Args: []string{"-o", "{workspace}/out", "plain"}}
	got := c.Render("/tmp/ws")
	want := []string{"/tmp/ws/main", "-o", "/tmp/ws/out", "plain"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Render() = %v, want %v", got, want)
	}
	if c.Args[1] != "{workspace}/out" {
		t.Fatalf("Render mutated the template")
	}
}

func TestJavaRenamesBeforeCompiling(t *testing.T) {
	java, err := Default().Find("java")
	if err != nil {
		t.Fatal(err)
	}
	if len(java.CompileSteps) != 2 {
		t.Fatalf("expected two compile steps, got %d", len(java.CompileSteps))
	}
	if got := java.CompileSteps[0].String(); got != "mv main.java Main.java" {
		t.Fatalf("first step = %q", got)
	}
	if java.SourceName() != "main.java" {
		t.Fatalf("unexpected source name %q", java.SourceName())
	}
}

func TestInterpretedLanguageHasNoSteps(t *testing.T) {
	js, err := Default().Find("js")
	if err != nil {
		t.Fatal(err)
	}
	if js.Compiled() {
		t.Fatalf("js should have no compile steps")
	}
}
