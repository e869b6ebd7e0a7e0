package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/horn/term"
)

const listProgram = `
app([], L, L).
app([H|T], L, [H|R]) :- app(T, L, R).

len([], 0).
len([_|T], N) :- len(T, N0), N is N0 + 1.

classify(X, neg) :- X < 0, !.
classify(0, zero) :- !.
classify(_, pos).

color(red).
color(green).
color(blue).
`

func TestArithmeticPrecedence(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"X is 3 + 4 * 2", "X=11"},
		{"X is (3 + 4) * 2", "X=14"},
		{"X is 2 ** 10", "X=1024"},
		{"X is 2 ^ 100", "X=1267650600228229401496703205376"},
		{"X is 7 // 2", "X=3"},
		{"X is -7 // 2", "X=-3"},
		{"X is 7 mod -2", "X=-1"},
		{"X is 7 rem -2", "X=1"},
		{"X is 6 / 3", "X=2"},
		{"X is 7 / 2", "X=3.5"},
		{"X is max(3, 4.0)", "X=4.0"},
		{"X is abs(-5)", "X=5"},
		{"X is 1 << 4", "X=16"},
		{"X is 9223372036854775807 + 1", "X=9223372036854775808"},
		{"X is truncate(3.7)", "X=3"},
		{"Y = 4, X is Y * Y - 1", "X=15, Y=4"},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		if got := formatBindings(mustOnce(t, m, tt.goal)); got != tt.want {
			t.Errorf("%s: %s, want %s", tt.goal, got, tt.want)
		}
	}
}

func TestArithmeticErrors(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"X is 1 / 0", "error(evaluation_error(zero_divisor),"},
		{"X is foo + 1", "error(type_error(evaluable,foo/0),"},
		{"X is Y + 1", "error(instantiation_error,"},
		{"1 < a", "error(type_error(evaluable,a/0),"},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		ball := uncaught(t, m, tt.goal)
		if got := term.Format(ball); !strings.HasPrefix(got, tt.want) {
			t.Errorf("%s raised %s, want prefix %s", tt.goal, got, tt.want)
		}
	}
}

func TestComparison(t *testing.T) {
	m, _ := newTestMachine(t, "")
	for _, goal := range []string{"1 < 2", "2.0 =:= 2", "3 >= 3", "1 =\\= 2", "X = 5, X > 4"} {
		mustOnce(t, m, goal)
	}
	for _, goal := range []string{"2 < 1", "2 =:= 3", "1.5 > 2"} {
		mustFail(t, m, goal)
	}
}

func TestNaNIsUnordered(t *testing.T) {
	m, _ := newTestMachine(t, "")
	for _, goal := range []string{
		"X is nan, X =\\= 1",
		"X is nan, X =\\= X",
		"X is nan, call(=\\=, X, 1.0)",
	} {
		mustOnce(t, m, goal)
	}
	for _, goal := range []string{
		"X is nan, X =:= 1",
		"X is nan, X =:= X",
		"X is nan, X < 1",
		"X is nan, X >= 1.0",
		"X is nan, call(=:=, X, 1)",
	} {
		mustFail(t, m, goal)
	}
}

func TestAppendIsDeterministic(t *testing.T) {
	m, _ := newTestMachine(t, listProgram)
	q := openFirst(t, m, "app([a, b], T, L)")
	defer q.Close()
	if got := formatBindings(q.Bindings()); !strings.HasPrefix(got, "L=[a,b|") {
		t.Errorf("bindings = %s", got)
	}
	if !q.deterministic() {
		t.Error("app/3 on a proper first argument left a choice point")
	}
	ok, err := q.Next()
	if ok || err != nil {
		t.Errorf("second solution = %v, %v; want none", ok, err)
	}
}

func TestAppendEnumeratesSplits(t *testing.T) {
	m, _ := newTestMachine(t, listProgram)
	got, err := solveAll(t, m, "app(X, Y, [1, 2])")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"X=[], Y=[1,2]", "X=[1], Y=[2]", "X=[1,2], Y=[]"}
	if strings.Join(got, "; ") != strings.Join(want, "; ") {
		t.Errorf("solutions = %v, want %v", got, want)
	}
}

func TestNonTailRecursion(t *testing.T) {
	m, _ := newTestMachine(t, listProgram)
	if got := formatBindings(mustOnce(t, m, "length(L, 500), len(L, N)")); !strings.HasSuffix(got, "N=500") {
		t.Errorf("len: %s", got)
	}
}

func TestCut(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"classify(-3, C)", "C=neg"},
		{"classify(0, C)", "C=zero"},
		{"classify(9, C)", "C=pos"},
	}
	m, _ := newTestMachine(t, listProgram)
	for _, tt := range tests {
		got, err := solveAll(t, m, tt.goal)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("%s: %v, want [%s]", tt.goal, got, tt.want)
		}
	}
}

func TestControlConstructs(t *testing.T) {
	tests := []struct {
		goal string
		want []string
	}{
		{"( color(X), X \\== red -> Y = yes ; Y = no )", []string{"X=green, Y=yes"}},
		{"( fail -> X = a ; X = b )", []string{"X=b"}},
		{"( color(X) *-> true ; X = none )", []string{"X=red", "X=green", "X=blue"}},
		{"( fail *-> X = a ; X = none )", []string{"X=none"}},
		{"\\+ color(black), X = ok", []string{"X=ok"}},
		{"color(X), !", []string{"X=red"}},
		{"once(color(X))", []string{"X=red"}},
		{"G = color(X), call(G)", []string{"G=color(red), X=red", "G=color(green), X=green", "G=color(blue), X=blue"}},
		{"call(app, [1], [2], L)", []string{"L=[1,2]"}},
		{"forall(color(_C), atom(_C))", []string{""}},
		{"ignore(fail)", []string{""}},
		{"( true ; _X = 1 ), !", []string{""}},
		{"not(color(black))", []string{""}},
	}
	m, _ := newTestMachine(t, listProgram)
	for _, tt := range tests {
		got, err := solveAll(t, m, tt.goal)
		if err != nil {
			t.Errorf("%s: %v", tt.goal, err)
			continue
		}
		if strings.Join(got, "; ") != strings.Join(tt.want, "; ") {
			t.Errorf("%s: %v, want %v", tt.goal, got, tt.want)
		}
	}
}

func TestCutInsideCallIsLocal(t *testing.T) {
	m, _ := newTestMachine(t, listProgram)
	got, err := solveAll(t, m, "color(X), call((!, true))")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("cut inside call/1 pruned the caller: %v", got)
	}
}

func TestUnknownProcedure(t *testing.T) {
	m, _ := newTestMachine(t, "")
	ball := uncaught(t, m, "no_such_thing(1)")
	if got := term.Format(ball); !strings.HasPrefix(got, "error(existence_error(procedure,no_such_thing/1)") {
		t.Errorf("ball = %s", got)
	}

	quiet, _ := newTestMachine(t, "", Options{Unknown: UnknownFail})
	mustFail(t, quiet, "no_such_thing(1)")
}

func TestDynamicPredicateWithoutClausesFails(t *testing.T) {
	m, _ := newTestMachine(t, ":- dynamic(counter/1).\n")
	mustFail(t, m, "counter(_)")
}

func TestTypeErrorOnCallingNumber(t *testing.T) {
	m, _ := newTestMachine(t, "")
	ball := uncaught(t, m, "X = 1, call(X)")
	if got := term.Format(ball); !strings.HasPrefix(got, "error(type_error(callable,1)") {
		t.Errorf("ball = %s", got)
	}
	ball = uncaught(t, m, "call(_)")
	if got := term.Format(ball); !strings.HasPrefix(got, "error(instantiation_error") {
		t.Errorf("ball = %s", got)
	}
}

func TestQueryLifecycle(t *testing.T) {
	m, _ := newTestMachine(t, listProgram)
	q := openFirst(t, m, "color(X)")
	if got := formatBindings(q.Bindings()); got != "X=red" {
		t.Errorf("first = %s", got)
	}
	if got := term.Format(q.Instance()); got != "color(red)" {
		t.Errorf("instance = %s", got)
	}
	q.Cut()
	if ok, err := q.Next(); ok || err != nil {
		t.Errorf("after Cut: %v, %v", ok, err)
	}
	q.Close()
	if _, err := q.Next(); !errors.Is(err, ErrQueryClosed) {
		t.Errorf("Next after Close = %v, want ErrQueryClosed", err)
	}

	outer := openFirst(t, m, "color(X)")
	inner := openFirst(t, m, "color(Y)")
	if _, err := outer.Next(); !errors.Is(err, ErrNestedQuery) {
		t.Errorf("advancing the outer query = %v, want ErrNestedQuery", err)
	}
	inner.Close()
	if ok, err := outer.Next(); !ok || err != nil {
		t.Errorf("outer after inner closed: %v, %v", ok, err)
	}
	if got := formatBindings(outer.Bindings()); got != "X=green" {
		t.Errorf("outer second = %s", got)
	}
	outer.Close()
}

func TestTopLevelGoals(t *testing.T) {
	tests := []struct {
		goal string
		want []string
	}{
		{"true", []string{""}},
		{"!", []string{""}},
		{"fail", nil},
		{"X = 1", []string{"X=1"}},
		{"X = 1 ; X = 2", []string{"X=1", "X=2"}},
		{"(fail ; true), X = ok", []string{"X=ok"}},
		{"app(X, Y, [1])", []string{"X=[], Y=[1]", "X=[1], Y=[]"}},
		{"color(C), !", []string{"C=red"}},
	}
	m, _ := newTestMachine(t, listProgram)
	for _, tt := range tests {
		got, err := solveAll(t, m, tt.goal)
		if err != nil {
			t.Errorf("%s: %v", tt.goal, err)
			continue
		}
		if len(got) != len(tt.want) || strings.Join(got, " | ") != strings.Join(tt.want, " | ") {
			t.Errorf("%s = %q, want %q", tt.goal, got, tt.want)
		}
	}
}

func TestBacktrackIntoQueryChoicePoint(t *testing.T) {
	m, out := newTestMachine(t, listProgram)
	b := mustOnce(t, m, "(X = 1 ; X = 2), X > 1, write(X)")
	if got := term.Format(b["X"]); got != "2" {
		t.Errorf("X = %s, want 2", got)
	}
	if got := out.String(); got != "2" {
		t.Errorf("output = %q", got)
	}
	b = mustOnce(t, m, "\\+ color(black), classify(-3, K)")
	if got := term.Format(b["K"]); got != "neg" {
		t.Errorf("K = %s, want neg", got)
	}
}
