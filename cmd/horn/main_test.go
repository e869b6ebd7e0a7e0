package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/horn/vm"
)

const hello = `
main :- greeting(G), write(G), nl.
greeting(hello).
fails :- fail.
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunGoal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.pl")
	writeFile(t, path, hello)

	tests := []struct {
		goal   string
		code   int
		stdout string
		stderr string
	}{
		{"main", 0, "hello\n", ""},
		{"main.", 0, "hello\n", ""},
		{"fails", 1, "", "goal fails failed"},
		{"halt(3)", 3, "", ""},
		{"throw(oops)", 1, "", "oops"},
		{"foo(", 1, "", "syntax error"},
	}
	for _, tt := range tests {
		code, stdout, stderr := runArgs(t, "-no-manifest", "-g", tt.goal, path)
		if code != tt.code {
			t.Errorf("-g %s: exit %d, want %d (stderr %q)", tt.goal, code, tt.code, stderr)
		}
		if stdout != tt.stdout {
			t.Errorf("-g %s: stdout %q, want %q", tt.goal, stdout, tt.stdout)
		}
		if !strings.Contains(stderr, tt.stderr) {
			t.Errorf("-g %s: stderr %q, want it to contain %q", tt.goal, stderr, tt.stderr)
		}
	}
}

func TestConsultErrors(t *testing.T) {
	dir := t.TempDir()
	code, _, stderr := runArgs(t, "-no-manifest", "-g", "true", filepath.Join(dir, "missing.pl"))
	if code != 0 || !strings.Contains(stderr, "existence_error") {
		t.Errorf("missing file: exit %d, stderr %q", code, stderr)
	}

	halting := filepath.Join(dir, "halting.pl")
	writeFile(t, halting, ":- halt(4).\n")
	if code, _, _ := runArgs(t, "-no-manifest", halting); code != 4 {
		t.Errorf("halt during consult: exit %d, want 4", code)
	}

	broken := filepath.Join(dir, "broken.pl")
	writeFile(t, broken, "a(.\n")
	if code, _, _ := runArgs(t, "-no-manifest", "-o", filepath.Join(dir, "x.hornimg"), broken); code != 1 {
		t.Errorf("syntax error while building: exit %d, want 1", code)
	}
}

func TestImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.pl")
	img := filepath.Join(dir, "hello.hornimg")
	writeFile(t, src, hello)

	if code, _, stderr := runArgs(t, "-no-manifest", "-o", img, src); code != 0 {
		t.Fatalf("build: exit %d: %s", code, stderr)
	}
	code, stdout, stderr := runArgs(t, "-no-manifest", "-image", img, "-g", "main")
	if code != 0 || stdout != "hello\n" {
		t.Errorf("run image: exit %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	if code, _, _ := runArgs(t, "-no-manifest", "-image", src, "-g", "true"); code != 1 {
		t.Errorf("loading a source file as an image: exit %d, want 1", code)
	}
}

func TestProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "horn.toml"), `
[project]
name = "demo"

[source]
entry = "main"
`)
	writeFile(t, filepath.Join(dir, "src", "main.pl"), hello)

	code, stdout, stderr := runArgs(t, "-project", dir)
	if code != 0 || stdout != "hello\n" {
		t.Fatalf("project entry: exit %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	code, stdout, stderr = runArgs(t, "build", "-project", dir)
	if code != 0 || !strings.Contains(stdout, "Wrote") {
		t.Fatalf("build: exit %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	code, stdout, _ = runArgs(t, "-no-manifest", "-image", filepath.Join(dir, "demo.hornimg"))
	if code != 0 || stdout != "hello\n" {
		t.Errorf("image entry: exit %d, stdout %q", code, stdout)
	}

	code, stdout, _ = runArgs(t, "deps", "-project", dir)
	if code != 0 || !strings.Contains(stdout, "No dependencies") {
		t.Errorf("deps: exit %d, stdout %q", code, stdout)
	}
}

func TestSubcommandsNeedManifest(t *testing.T) {
	dir := t.TempDir()
	for _, cmd := range []string{"deps", "build"} {
		code, _, stderr := runArgs(t, cmd, "-project", dir)
		if code != 1 || !strings.Contains(stderr, "no horn.toml found") {
			t.Errorf("%s: exit %d, stderr %q", cmd, code, stderr)
		}
	}
}

func TestLSPFlags(t *testing.T) {
	code, _, stderr := runArgs(t, "lsp", "-bogus")
	if code != 2 || !strings.Contains(stderr, "flag provided but not defined") {
		t.Errorf("exit %d, stderr %q", code, stderr)
	}
}

func TestDisassemble(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.pl")
	writeFile(t, path, hello)
	code, stdout, stderr := runArgs(t, "-no-manifest", "-disasm", "greeting/1", path)
	if code != 0 || !strings.Contains(stdout, "% greeting/1 clause 1") {
		t.Errorf("exit %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	for _, bad := range []string{"greeting", "greeting/x", "nothing/2", "atom_length/2"} {
		if code, _, _ := runArgs(t, "-no-manifest", "-disasm", bad, path); code != 1 {
			t.Errorf("-disasm %s: exit %d, want 1", bad, code)
		}
	}
}

func TestProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.pl")
	writeFile(t, path, hello)
	code, _, stderr := runArgs(t, "-no-manifest", "-profile", "-g", "main", path)
	if code != 0 || !strings.Contains(stderr, "greeting/1") || !strings.Contains(stderr, "port passes") {
		t.Errorf("exit %d, stderr %q", code, stderr)
	}
}

func TestFormatAnswer(t *testing.T) {
	m := vm.NewMachine(vm.NewRegistry(), vm.Options{})
	tests := []struct {
		query string
		want  string
	}{
		{"X = 1, Y = f(a)", "X = 1,\nY = f(a)"},
		{"true", "true"},
		{"X = 'A b'", "X = 'A b'"},
		{"_Hidden = 1", "true"},
	}
	for _, tt := range tests {
		goal, vars, err := parseGoal(m.Registry(), tt.query)
		if err != nil {
			t.Fatal(err)
		}
		b, ok, err := m.Once(goal)
		if err != nil || !ok {
			t.Fatalf("%s: %v %v", tt.query, ok, err)
		}
		if got := formatAnswer(m.Registry(), vars, b); got != tt.want {
			t.Errorf("%s: %q, want %q", tt.query, got, tt.want)
		}
	}
}
