package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// catch/3 and throw/1
// ---------------------------------------------------------------------------

func TestCatchBindsCatcher(t *testing.T) {
	m, _ := newTestMachine(t, "")
	q := openFirst(t, m, "catch(throw(my_error(1)), my_error(X), true)")
	defer q.Close()
	if got := formatBindings(q.Bindings()); got != "X=1" {
		t.Errorf("bindings = %s, want X=1", got)
	}
	if !q.deterministic() {
		t.Error("catch/3 left a choice point after recovery")
	}
}

func TestCatchDiscardsChoicePoints(t *testing.T) {
	m, _ := newTestMachine(t, "")
	q := openFirst(t, m, "catch((member(Y, [1, 2, 3]), Y > 1, throw(found(Y))), found(X), true)")
	defer q.Close()
	if got := term.Format(q.Bindings()["X"]); got != "2" {
		t.Errorf("X = %s, want 2", got)
	}
	if !q.deterministic() {
		t.Error("choice points inside the throw's extent survived")
	}
}

func TestCatchUndoesBindings(t *testing.T) {
	m, _ := newTestMachine(t, "")
	b := mustOnce(t, m, "catch((Y = bound, throw(oops)), oops, true), var(Y), Z = ok")
	if got := formatBindings(b); !strings.HasSuffix(got, "Z=ok") {
		t.Errorf("bindings = %s", got)
	}
}

func TestCatchSelectsMatchingCatcher(t *testing.T) {
	tests := []struct {
		goal string
		want string // prefix of the formatted bindings
	}{
		{"catch(catch(throw(b), a, R = inner), b, R = outer)", "R=outer"},
		{"catch(catch(throw(a), a, R = inner), _, R = outer)", "R=inner"},
		{"catch(catch(throw(a), a, throw(c)), c, R = rethrown)", "R=rethrown"},
		{"catch(X is 1 / 0, error(E, _), true)", "E=evaluation_error(zero_divisor), X="},
		{"catch(atom_length(f(x), _), error(type_error(T, _), _), true)", "T="},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		if got := formatBindings(mustOnce(t, m, tt.goal)); !strings.HasPrefix(got, tt.want) {
			t.Errorf("%s: %s, want prefix %s", tt.goal, got, tt.want)
		}
	}
}

func TestCatchIsTransparentToSuccess(t *testing.T) {
	m, _ := newTestMachine(t, "")
	got, err := solveAll(t, m, "catch(member(X, [a, b, c]), _, true)")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, " ") != "X=a X=b X=c" {
		t.Errorf("solutions = %v", got)
	}
}

func TestCatchStaysActiveOnRedo(t *testing.T) {
	m, _ := newTestMachine(t, "")
	b := mustOnce(t, m, "catch((member(X, [1, 2]), X > 1, throw(late(X))), late(Y), true)")
	if got := term.Format(b["Y"]); got != "2" {
		t.Errorf("Y = %s, want 2", got)
	}
}

func TestUncaughtException(t *testing.T) {
	m, _ := newTestMachine(t, "")
	_, _, err := m.Once(parseGoal(t, "throw(boom)"))
	var ue *UncaughtError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UncaughtError", err)
	}
	if got := term.Format(ue.Ball); got != "boom" {
		t.Errorf("ball = %s", got)
	}
	// the machine is usable afterwards
	mustOnce(t, m, "X = 1")
}

func TestThrowUnboundBall(t *testing.T) {
	m, _ := newTestMachine(t, "")
	ball := uncaught(t, m, "throw(_)")
	if got := term.Format(ball); !strings.HasPrefix(got, "error(instantiation_error") {
		t.Errorf("ball = %s", got)
	}
}

// ---------------------------------------------------------------------------
// Cleanup handlers
// ---------------------------------------------------------------------------

const cleanupProgram = `
:- dynamic(event/1).
p(1).
p(2).
two_watched :-
	setup_call_cleanup(true, p(_), assertz(event(first))),
	setup_call_cleanup(true, p(_), assertz(event(second))),
	!.
`

func events(t *testing.T, m *Machine) string {
	t.Helper()
	b := mustOnce(t, m, "findall(E, event(E), L)")
	return term.Format(b["L"])
}

func TestCleanupRunsOnceOnEveryPath(t *testing.T) {
	tests := []struct {
		name string
		goal string
		want string
	}{
		{"exit", "setup_call_catcher_cleanup(true, true, C, assertz(event(C)))", "[exit]"},
		{"fail", "\\+ setup_call_catcher_cleanup(true, fail, C, assertz(event(C)))", "[fail]"},
		{"cut", "setup_call_catcher_cleanup(true, p(_), C, assertz(event(C))), !", "[!]"},
		{"exception", "catch(setup_call_catcher_cleanup(true, throw(oops), C, assertz(event(C))), _, true)", "[exception(oops)]"},
		{"last answer", "\\+ (setup_call_catcher_cleanup(true, p(_), C, assertz(event(C))), fail)", "[exit]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine(t, cleanupProgram)
			mustOnce(t, m, tt.goal)
			if got := events(t, m); got != tt.want {
				t.Errorf("events = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCleanupWaitsForNondeterministicGoal(t *testing.T) {
	m, _ := newTestMachine(t, cleanupProgram)
	q := openFirst(t, m, "setup_call_cleanup(true, p(X), assertz(event(done)))")
	if _, found, err := m.Once(parseGoal(t, "event(_)")); found || err != nil {
		t.Errorf("cleanup ran while the goal still had alternatives (%v)", err)
	}
	q.Close()
	if got := events(t, m); got != "[done]" {
		t.Errorf("events = %s, want [done]", got)
	}
}

func TestCallCleanupOnFailure(t *testing.T) {
	m, out := newTestMachine(t, "")
	mustFail(t, m, "call_cleanup(fail, writeln(done))")
	if got := out.String(); got != "done\n" {
		t.Errorf("output = %q, want one done line", got)
	}
}

func TestCutRunsCleanupsNewestFirst(t *testing.T) {
	m, _ := newTestMachine(t, cleanupProgram)
	mustOnce(t, m, "two_watched")
	if got := events(t, m); got != "[second,first]" {
		t.Errorf("events = %s, want [second,first]", got)
	}
}

func TestCleanupBindingsAreDiscarded(t *testing.T) {
	m, _ := newTestMachine(t, cleanupProgram)
	b := mustOnce(t, m, "setup_call_cleanup(true, true, X = changed), var(X), Y = ok")
	if got := term.Format(b["Y"]); got != "ok" {
		t.Errorf("Y = %s", got)
	}
}

func TestCleanupErrorDoesNotPropagate(t *testing.T) {
	m, _ := newTestMachine(t, cleanupProgram)
	mustOnce(t, m, "setup_call_cleanup(true, true, throw(ignored))")
}

func TestSetupIsOnce(t *testing.T) {
	m, _ := newTestMachine(t, cleanupProgram)
	got, err := solveAll(t, m, "setup_call_cleanup(p(X), true, true)")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "X=1" {
		t.Errorf("solutions = %v, want [X=1]", got)
	}
}

func TestThrowIsCallable(t *testing.T) {
	tests := []string{
		"catch(call(throw(x)), x, true)",
		"G = throw(y), catch(G, y, true)",
		"catch(call(throw, z), z, true)",
		"catch(findall(X, throw(w(X)), _), w(_), true)",
		"catch(maplist(throw, [v]), v, true)",
	}
	m, _ := newTestMachine(t, "")
	for _, goal := range tests {
		mustOnce(t, m, goal)
	}
	ball := uncaught(t, m, "G = throw(loose), call(G)")
	if got := term.Format(ball); got != "loose" {
		t.Errorf("ball = %s, want loose", got)
	}
}
