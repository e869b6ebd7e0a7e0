package vm

import (
	"strings"
	"testing"

	"github.com/chazu/horn/term"
)

const counterProgram = `
:- dynamic(counter/1).
counter(0).
bump :- retract(counter(N)), N1 is N + 1, assertz(counter(N1)).

:- dynamic(c/1).
c(1).
c(2).

greet(X) :- hello(X).
`

func TestAssertOrder(t *testing.T) {
	m, _ := newTestMachine(t, "")
	b := mustOnce(t, m, "assertz(f(1)), assertz(f(2)), asserta(f(0)), findall(X, f(X), L)")
	if got := term.Format(b["L"]); got != "[0,1,2]" {
		t.Errorf("L = %s", got)
	}
	b = mustOnce(t, m, "assertz((sq(X, Y) :- Y is X * X)), sq(3, Z)")
	if got := term.Format(b["Z"]); got != "9" {
		t.Errorf("Z = %s", got)
	}
}

func TestRetract(t *testing.T) {
	m, _ := newTestMachine(t, counterProgram)
	b := mustOnce(t, m, "bump, bump, counter(X)")
	if got := term.Format(b["X"]); got != "2" {
		t.Errorf("counter = %s, want 2", got)
	}
	got, err := solveAll(t, m, "counter(X)")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("counter/1 solutions = %v, want one", got)
	}

	mustOnce(t, m, "assertz(f(1)), assertz(f(2)), assertz(f(3)), retract(f(2))")
	b = mustOnce(t, m, "findall(X, f(X), L)")
	if got := term.Format(b["L"]); got != "[1,3]" {
		t.Errorf("after retract L = %s", got)
	}
	mustOnce(t, m, "retract((greet(_) :- _))")
	mustFail(t, m, "clause(greet(_), _)")
}

func TestLogicalUpdateView(t *testing.T) {
	m, _ := newTestMachine(t, counterProgram)
	b := mustOnce(t, m, "findall(X, (c(X), Y is X + 10, assertz(c(Y))), L)")
	if got := term.Format(b["L"]); got != "[1,2]" {
		t.Errorf("clauses added during iteration were seen: %s", got)
	}

	m, _ = newTestMachine(t, counterProgram)
	b = mustOnce(t, m, "findall(X, (c(X), retractall(c(_))), L)")
	if got := term.Format(b["L"]); got != "[1,2]" {
		t.Errorf("clauses removed during iteration vanished: %s", got)
	}
	mustFail(t, m, "c(_)")
}

func TestClause(t *testing.T) {
	m, _ := newTestMachine(t, counterProgram)
	b := mustOnce(t, m, "clause(greet(a), B)")
	if got := term.Format(b["B"]); got != "hello(a)" {
		t.Errorf("B = %s", got)
	}
	b = mustOnce(t, m, "findall(X-B, clause(c(X), B), L)")
	if got := term.Format(b["L"]); got != "[1-true,2-true]" {
		t.Errorf("L = %s", got)
	}
	mustFail(t, m, "clause(undefined_thing(_), _)")
}

func TestRetractallDeclaresDynamic(t *testing.T) {
	m, _ := newTestMachine(t, "")
	mustOnce(t, m, "retractall(nothing(_))")
	mustFail(t, m, "nothing(_)")
}

func TestAbolish(t *testing.T) {
	m, _ := newTestMachine(t, counterProgram)
	mustOnce(t, m, "abolish(c/1)")
	mustFail(t, m, "c(_)")
	mustOnce(t, m, "abolish(never_defined/3)")
}

func TestDatabasePermissionErrors(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"clause(atom_length(_, _), _)", "error(permission_error(access,private_procedure,atom_length/2)"},
		{"assertz(call(x))", "error(permission_error(modify,static_procedure,call/1)"},
		{"asserta(catch(a, b, c))", "error(permission_error(modify,static_procedure,catch/3)"},
		{"retract(append(_, _, _))", "error(permission_error(modify,static_procedure,append/3)"},
		{"abolish(append/3)", "error(permission_error(modify,static_procedure,append/3)"},
		{"assertz((foo :- 1))", "error(type_error(callable,1)"},
		{"assertz(_)", "error(instantiation_error"},
		{"abolish(foo)", "error(type_error(predicate_indicator,foo)"},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		ball := uncaught(t, m, tt.goal)
		if got := term.Format(ball); !strings.HasPrefix(got, tt.want) {
			t.Errorf("%s raised %s, want prefix %s", tt.goal, got, tt.want)
		}
	}
}

func TestCutDatabaseIteration(t *testing.T) {
	m, _ := newTestMachine(t, counterProgram)
	b := mustOnce(t, m, "clause(c(X), true), !")
	if got := term.Format(b["X"]); got != "1" {
		t.Errorf("X = %s, want 1", got)
	}
	mustOnce(t, m, "once(clause(greet(_), _))")

	b = mustOnce(t, m, "once(retract(c(_))), findall(X, c(X), L)")
	if got := term.Format(b["L"]); got != "[2]" {
		t.Errorf("after once(retract) L = %s, want [2]", got)
	}
	mustOnce(t, m, "assertz(c(3)), assertz(c(4))")
	b = mustOnce(t, m, "retract(c(X)), X > 2, !, findall(Y, c(Y), L)")
	if got := formatBindings(b); got != "L=[4], X=3" {
		t.Errorf("bindings = %s", got)
	}
}
