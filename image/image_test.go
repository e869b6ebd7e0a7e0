package image

import (
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
)

const program = `
:- op(700, xfx, ===>).
:- dynamic(fact/1).
fact(one).
fact("two").
big(123456789012345678901234567890).
rule(a ===> b).
edge(a, b).
edge(b, c).
edge(c, d).
path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
size(L, N) :- length(L, N).
`

func compiled(t *testing.T, opts Options) *Image {
	t.Helper()
	m := vm.NewMachine(vm.NewRegistry(), vm.Options{})
	if err := m.Consult(program); err != nil {
		t.Fatalf("Consult: %v", err)
	}
	img, err := Build(m.Registry(), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return img
}

// reload pushes img through the codec and installs it in a new machine.
func reload(t *testing.T, img *Image) *vm.Machine {
	t.Helper()
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m := vm.NewMachine(vm.NewRegistry(), vm.Options{})
	if err := Install(m.Registry(), back); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return m
}

func once(t *testing.T, m *vm.Machine, src string) map[string]term.Term {
	t.Helper()
	goal, _, err := reader.NewParserWithOps(src+".", m.Registry().Ops()).Next()
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	b, ok, err := m.Once(goal)
	if err != nil {
		t.Fatalf("%s: %v", src, err)
	}
	if !ok {
		t.Fatalf("%s: failed", src)
	}
	return b
}

func TestInstalledProgramRuns(t *testing.T) {
	m := reload(t, compiled(t, Options{}))
	tests := []struct {
		goal string
		name string
		want string
	}{
		{"findall(Z, path(a, Z), L)", "L", "[b,c,d]"},
		{"big(X)", "X", "123456789012345678901234567890"},
		{"findall(X, fact(X), L)", "L", `[one,"two"]`},
		{"rule(R), R = (a ===> B)", "B", "b"},
		{"size([x, y], N)", "N", "2"},
	}
	for _, tt := range tests {
		b := once(t, m, tt.goal)
		if got := term.Format(b[tt.name]); got != tt.want {
			t.Errorf("%s: %s = %s, want %s", tt.goal, tt.name, got, tt.want)
		}
	}
}

func TestInstalledDynamicPredicate(t *testing.T) {
	m := reload(t, compiled(t, Options{}))
	b := once(t, m, "clause(fact(X), Body)")
	if got := term.Format(b["Body"]); got != "true" {
		t.Errorf("Body = %s", got)
	}
	once(t, m, "assertz(fact(three)), retract(fact(one))")
	b = once(t, m, "findall(X, fact(X), L)")
	if got := term.Format(b["L"]); got != `["two",three]` {
		t.Errorf("L = %s", got)
	}
}

func TestBuildSourcePolicy(t *testing.T) {
	sources := func(img *Image) (n int) {
		for _, p := range img.Preds {
			for _, c := range p.Clauses {
				if c.Source != nil {
					n++
				}
			}
		}
		return n
	}
	// only the two fact/1 clauses are dynamic
	if got := sources(compiled(t, Options{})); got != 2 {
		t.Errorf("without IncludeSource: %d clauses kept source, want 2", got)
	}
	if got := sources(compiled(t, Options{IncludeSource: true})); got != 10 {
		t.Errorf("with IncludeSource: %d clauses kept source, want 10", got)
	}
}

func TestBuildRecordsOperators(t *testing.T) {
	img := compiled(t, Options{})
	found := false
	for _, op := range img.Ops {
		if op.Name == "===>" {
			found = op.Priority == 700 && term.OpType(op.Type) == term.XFX
		}
	}
	if !found {
		t.Errorf("Ops = %+v, want ===> as xfx 700", img.Ops)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.hornimg")
	img := compiled(t, Options{Entry: "main"})
	if err := WriteFile(path, img); err != nil {
		t.Fatal(err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Entry != "main" || len(back.Preds) != len(img.Preds) {
		t.Errorf("read back entry %q with %d predicates", back.Entry, len(back.Preds))
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("reading a missing file succeeded")
	}
}

func TestUnmarshalErrors(t *testing.T) {
	if _, err := Unmarshal([]byte("nope")); !errors.Is(err, ErrNotImage) {
		t.Errorf("bad magic: %v", err)
	}
	if _, err := Unmarshal(nil); !errors.Is(err, ErrNotImage) {
		t.Errorf("empty input: %v", err)
	}
	old, err := Marshal(&Image{Version: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(old); err == nil || !strings.Contains(err.Error(), "version 1") {
		t.Errorf("old version: %v", err)
	}
	if _, err := Unmarshal(append(Magic[:], 0xff)); err == nil {
		t.Error("garbage body accepted")
	}
}

func TestInstallRejectsBadHandles(t *testing.T) {
	tests := []struct {
		name string
		img  *Image
	}{
		{"functor name", &Image{Functors: []Functor{{Name: 3, Arity: 1}}}},
		{"procedure module", &Image{Atoms: []string{"f"}, Functors: []Functor{{Name: 0}}, Procs: []Proc{{Module: 9}}}},
		{"predicate", &Image{Preds: []Predicate{{Proc: 0}}}},
	}
	for _, tt := range tests {
		m := vm.NewMachine(vm.NewRegistry(), vm.Options{})
		if err := Install(m.Registry(), tt.img); err == nil {
			t.Errorf("%s: bad handle accepted", tt.name)
		}
	}
}

func TestInstallRejectsBuiltins(t *testing.T) {
	img := &Image{
		Atoms:    []string{"system", "atom_length"},
		Functors: []Functor{{Name: 1, Arity: 2}},
		Procs:    []Proc{{Module: 0, Functor: 0}},
		Preds:    []Predicate{{Proc: 0}},
	}
	m := vm.NewMachine(vm.NewRegistry(), vm.Options{})
	err := Install(m.Registry(), img)
	if err == nil || !strings.Contains(err.Error(), "atom_length/2") {
		t.Errorf("err = %v", err)
	}
}

func TestNodeRoundTrip(t *testing.T) {
	n, _ := new(big.Int).SetString("-98765432109876543210", 10)
	in := term.Comp("f", term.NewBig(n), term.String("s t"), term.Variable("X"), term.Float(1.5), term.List(term.Int(1), term.Atom("a")))
	out, err := DecodeTerm(EncodeTerm(in))
	if err != nil {
		t.Fatal(err)
	}
	if term.Format(out) != term.Format(in) {
		t.Errorf("round trip %s, want %s", term.Format(out), term.Format(in))
	}
	if _, err := DecodeTerm(Node{Kind: NodeBig, Text: "12x"}); err == nil {
		t.Error("bad big integer digits accepted")
	}
}
