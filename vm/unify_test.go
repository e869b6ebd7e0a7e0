package vm

import (
	"testing"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
)

func TestUnifyGroundPairs(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"a", "a"},
		{"a", "b"},
		{"1", "1"},
		{"1", "1.0"},
		{"2.5", "2.5"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
		{"123456789012345678901234567890", "123456789012345678901234567891"},
		{`"abc"`, `"abc"`},
		{`"abc"`, "abc"},
		{"f(a, g(b))", "f(a, g(b))"},
		{"f(a, g(b))", "f(a, g(c))"},
		{"f(a)", "f(a, a)"},
		{"f(a)", "g(a)"},
		{"[1, 2, 3]", "[1, 2, 3]"},
		{"[1, 2, 3]", "[1, 2]"},
		{"[]", "'[]'"},
	}
	m := NewMachine(NewRegistry(), Options{})
	m.pushChoice(ChoiceInert, NoFrame)
	for _, tt := range tests {
		ta, _, err := reader.ParseTerm(tt.a)
		if err != nil {
			t.Fatal(err)
		}
		tb, _, err := reader.ParseTerm(tt.b)
		if err != nil {
			t.Fatal(err)
		}
		a, b := m.Import(ta), m.Import(tb)
		trail := len(m.trail)
		want := term.Equal(ta, tb)
		if got := m.unify(a, b); got != want {
			t.Errorf("unify(%s, %s) = %v, want %v", tt.a, tt.b, got, want)
		}
		if len(m.trail) != trail {
			t.Errorf("unify(%s, %s) left %d trail entries", tt.a, tt.b, len(m.trail)-trail)
		}
	}
}

func TestUnifyBindsAndTrails(t *testing.T) {
	m := NewMachine(NewRegistry(), Options{})
	older := m.Import(term.Comp("f", term.Variable("X"), term.Variable("Y")))
	m.pushChoice(ChoiceInert, NoFrame)
	mark := len(m.trail)
	gmark := len(m.global)
	newer := m.Import(term.Comp("f", term.Atom("a"), term.Variable("Z")))

	if !m.unify(older, newer) {
		t.Fatal("unify failed")
	}
	if x := m.deref(m.arg(m.deref(older), 0)); x != MakeAtom(m.reg.Atom("a")) {
		t.Errorf("X = %s, want a", term.Format(m.Export(x)))
	}
	if len(m.trail) == mark {
		t.Error("binding an older variable should be trailed")
	}

	m.restore(m.choice(m.BFR))
	x := m.deref(m.arg(m.deref(older), 0))
	y := m.deref(m.arg(m.deref(older), 1))
	if !isVar(x) || !isVar(y) {
		t.Errorf("after restore: X = %s, Y = %s, want both unbound", term.Format(m.Export(x)), term.Format(m.Export(y)))
	}
	if len(m.global) != gmark {
		t.Errorf("global top = %d after restore, want %d", len(m.global), gmark)
	}
}

func TestUnifyNewVariableNotTrailed(t *testing.T) {
	m := NewMachine(NewRegistry(), Options{})
	m.pushChoice(ChoiceInert, NoFrame)
	mark := len(m.trail)
	v := m.Import(term.Variable("X"))
	if !m.unify(v, MakeInt(3)) {
		t.Fatal("unify failed")
	}
	if len(m.trail) != mark {
		t.Error("a variable newer than the choice point should not be trailed")
	}
}

func TestBacktrackingRestoresBindings(t *testing.T) {
	m, _ := newTestMachine(t, "")
	mustOnce(t, m, "( X = f(Y), Y = 1, fail ; var(X), var(Y) )")
	got, err := solveAll(t, m, "( X = a ; X = b ; X = c )")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"X=a", "X=b", "X=c"}
	if len(got) != len(want) {
		t.Fatalf("solutions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("solution %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestUnifyStructures(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"f(X, b) = f(a, Y)", "X=a, Y=b"},
		{"[H|T] = [1, 2, 3]", "H=1, T=[2,3]"},
		{"X = Y, Y = z", "X=z, Y=z"},
		{"f(X, X) = f(1, Y)", "X=1, Y=1"},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		if got := formatBindings(mustOnce(t, m, tt.goal)); got != tt.want {
			t.Errorf("%s: %s, want %s", tt.goal, got, tt.want)
		}
	}
	mustFail(t, m, "f(X, X) = f(1, 2)")
	mustFail(t, m, "f(a) = g(a)")
}
