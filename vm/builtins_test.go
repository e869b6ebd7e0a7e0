package vm

import (
	"strings"
	"testing"

	"github.com/chazu/horn/term"
)

func TestBuiltinBindings(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		// terms
		{"functor(foo(a, b), N, A)", "A=2, N=foo"},
		{"functor(T, pair, 2), T = pair(x, y)", "T=pair(x,y)"},
		{"arg(2, f(a, b, c), X)", "X=b"},
		{"f(a, b) =.. L", "L=[f,a,b]"},
		{"T =.. [g, 1]", "T=g(1)"},
		{"copy_term(f(X0, X0, y), C), C = f(1, Z, _)", "C=f(1,1,y), X0=_, Z=1"},
		{"compare(O, 1, a)", "O=<"},
		{"compare(O, f(b), f(a))", "O=>"},
		{"msort([c, a, b, a], L)", "L=[a,a,b,c]"},
		{"sort([c, a, b, a], L)", "L=[a,b,c]"},
		{"keysort([b-1, a-2, b-0], L)", "L=[a-2,b-1,b-0]"},
		{"term_variables(f(X1, g(Y1), X1), Vs), length(Vs, N)", "N=2, Vs=_, X1=_, Y1=_"},

		// atoms and text
		{"atom_codes(abc, L)", "L=[97,98,99]"},
		{"atom_chars(A, [h, i])", "A=hi"},
		{"atom_length(hello, N)", "N=5"},
		{"atom_number('42', N)", "N=42"},
		{"atom_number(A, 3.5)", "A='3.5'"},
		{"number_codes(N, [45, 49, 55])", "N=-17"},
		{"char_code(C, 65)", "C='A'"},
		{"upcase_atom(mixed, U)", "U='MIXED'"},
		{"atomic_list_concat([a, 1, b], X)", "X=a1b"},
		{"atomic_list_concat(Parts, '-', 'x-y-z')", "Parts=[x,y,z]"},
		{"atomic_list_concat([x, y], ' + ', S)", "S='x + y'"},
		{"atom_string(A, \"txt\")", "A=txt"},
		{"term_to_atom(f(x, [1, 2]), A)", "A='f(x,[1,2])'"},
		{"term_to_atom(T, 'g(1, two)')", "T=g(1,two)"},

		// arithmetic predicates
		{"succ(3, X)", "X=4"},
		{"succ(X, 4)", "X=3"},
		{"plus(2, X, 5)", "X=3"},

		// lists
		{"append(X, [c], [a, b, c])", "X=[a,b]"},
		{"length([a, b, c], N)", "N=3"},
		{"reverse([1, 2, 3], R)", "R=[3,2,1]"},
		{"nth0(1, [a, b, c], E)", "E=b"},
		{"nth1(1, [a, b, c], E)", "E=a"},
		{"last([1, 2, 3], L)", "L=3"},
		{"sum_list([1, 2, 3.5], S)", "S=6.5"},
		{"memberchk(b, [a, b, c]), X = yes", "X=yes"},
		{"maplist(succ, [1, 2, 3], L)", "L=[2,3,4]"},
		{"foldl(plus, [1, 2, 3], 0, S)", "S=6"},

		// solutions
		{"findall(X, member(X, [a, b, c]), L)", "L=[a,b,c]"},
		{"findall(X, fail, L)", "L=[]"},
		{"findall(X, member(X, [1, 2]), L, [3])", "L=[1,2,3]"},
		{"findall(X-Y, member(X-Y, [1-_A, 2-_A]), [_-_P, _-_Q]), _P \\== _Q, R = fresh", "R=fresh"},
		{"aggregate_all(count, member(_, [a, b]), N)", "N=2"},
		{"aggregate_all(sum(X), member(X, [1, 2, 3]), S)", "S=6"},
		{"aggregate_all(max(X), member(X, [1, 7, 3]), M)", "M=7"},
		{"aggregate_all(bag(X), member(X, [c, a]), B)", "B=[c,a]"},
		{"aggregate_all(count, fail, N)", "N=0"},
		{"findall(X, between(1, 3, X), L)", "L=[1,2,3]"},
		{"between(1, inf, X), X > 2, !", "X=3"},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		b := mustOnce(t, m, tt.goal)
		if !bindingsMatch(b, tt.want) {
			t.Errorf("%s:\n got  %s\n want %s", tt.goal, formatBindings(b), tt.want)
		}
	}
}

// bindingsMatch checks the "X=1, Y=a" pairs of want against b. A value of
// _ accepts any binding, and variables want does not name are ignored.
func bindingsMatch(b map[string]term.Term, want string) bool {
	for _, pair := range strings.Split(want, ", ") {
		name, val, _ := strings.Cut(pair, "=")
		got, ok := b[name]
		if !ok {
			return false
		}
		if val != "_" && term.Format(got) != val {
			return false
		}
	}
	return true
}

func TestBuiltinFailures(t *testing.T) {
	m, _ := newTestMachine(t, "")
	for _, goal := range []string{
		"a \\= X, X = 1",
		"atom(1)",
		"var(a)",
		"integer(1.0)",
		"is_list([a|_])",
		"ground(f(_))",
		"between(3, 1, _)",
		"atom_number(abc, _)",
		"succ(X, 0)",
		"memberchk(z, [a, b])",
		"a @> b",
		"nth0(5, [a], _)",
	} {
		mustFail(t, m, goal)
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"functor(_, _, _)", "error(instantiation_error"},
		{"arg(x, f(a), _)", "error(type_error(integer,x)"},
		{"atom_length(X, _)", "error(instantiation_error"},
		{"length(L, -1)", "error(domain_error(not_less_than_zero,-1)"},
		{"length(L, a)", "error(type_error(integer,a)"},
		{"msort(foo, _)", "error(type_error(list,foo)"},
		{"atom_codes(_, [97|_])", "error(instantiation_error"},
		{"aggregate_all(median(X), true, _)", "error(domain_error(aggregate_spec,median("},
		{"compare(foo, 1, 2)", "error(domain_error(order,foo)"},
		{"op(1201, xfx, foo)", "error(domain_error(operator_priority,1201)"},
		{"keysort([a], _)", "error(type_error(pair,a)"},
		{"succ(X, Y)", "error(instantiation_error"},
	}
	m, _ := newTestMachine(t, "")
	for _, tt := range tests {
		ball := uncaught(t, m, tt.goal)
		if got := term.Format(ball); !strings.HasPrefix(got, tt.want) {
			t.Errorf("%s raised %s, want prefix %s", tt.goal, got, tt.want)
		}
	}
}

func TestWriteAndFormat(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"write(f('A b', \"s\", [1, 2]))", "f(A b,s,[1,2])"},
		{"writeq(f('A b', \"s\", [1, 2]))", `f('A b',"s",[1,2])`},
		{"print('X')", "'X'"},
		{"write_canonical(1 + 2)", "+(1,2)"},
		{"write(1 + 2 * 3)", "1+2*3"},
		{"writeln(done)", "done\n"},
		{"nl, tab(3), write(x)", "\n   x"},
		{"format(\"~w and ~q~n\", [a, 'B'])", "a and 'B'\n"},
		{"format(\"~a-~d\", [x, 42])", "x-42"},
		{"format(\"~D\", [1234567])", "1,234,567"},
		{"format(\"~2f|~e\", [3.14159, 1.5])", "3.14|1.500000e+00"},
		{"format(\"~s~c~~\", [[104, 105], 33])", "hi!~"},
		{"format(\"~8r ~16r\", [8, 255])", "10 ff"},
		{"format(\"~i~w\", [skipped, shown])", "shown"},
		{"format(\"no args\")", "no args"},
		{"format(\"~w\", single)", "single"},
	}
	for _, tt := range tests {
		m, out := newTestMachine(t, "")
		mustOnce(t, m, tt.goal)
		if got := out.String(); got != tt.want {
			t.Errorf("%s: output %q, want %q", tt.goal, got, tt.want)
		}
	}
}

func TestFormatErrors(t *testing.T) {
	m, _ := newTestMachine(t, "")
	for _, goal := range []string{
		`format("~w ~w", [one])`,
		`format("~z", [x])`,
		`format("~d", [1.5])`,
	} {
		uncaught(t, m, goal)
	}
}

func TestOpChangesReading(t *testing.T) {
	m, out := newTestMachine(t, `:- op(700, xfx, ===>).
rule(a ===> b).
sides(X, Y) :- rule(R), R =.. [_, X, Y].
`)
	if got := formatBindings(mustOnce(t, m, "sides(X, Y)")); got != "X=a, Y=b" {
		t.Errorf("sides = %s", got)
	}
	mustOnce(t, m, "rule(R), write(R)")
	if got := out.String(); got != "a===>b" {
		t.Errorf("write = %q", got)
	}
}

func TestHalt(t *testing.T) {
	m, _ := newTestMachine(t, "")
	_, _, err := m.Once(parseGoal(t, "halt(3)"))
	h, ok := err.(*HaltError)
	if !ok || h.Code != 3 {
		t.Errorf("err = %v, want halt(3)", err)
	}
	mustOnce(t, m, "true")
}
