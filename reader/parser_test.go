package reader

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/horn/term"
)

func TestParseFormatRoundTrip(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"foo(X, bar, [1,2|T])", "foo(X,bar,[1,2|T])"},
		{"a :- b, c ; d", "a:-b,c;d"},
		{"X is -1 + 2", "X is -1+2"},
		{"- 1", "- 1"},
		{"-(1)", "- 1"},
		{`f(a) :- \+ g`, `f(a):- \+g`},
		{"[a|b]", "[a|b]"},
		{"'hello world'", "'hello world'"},
		{"{a,b}", "{a,b}"},
		{`"str"`, `"str"`},
		{"a = b", "a=b"},
		{"(a | b)", "a;b"},
		{"[]", "[]"},
	}
	for _, tc := range tests {
		got, _, err := ParseTerm(tc.input)
		if err != nil {
			t.Errorf("ParseTerm(%q): %v", tc.input, err)
			continue
		}
		if s := term.Format(got); s != tc.want {
			t.Errorf("ParseTerm(%q) = %s, want %s", tc.input, s, tc.want)
		}
	}
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  term.Term
	}{
		{"42", term.Int(42)},
		{"0'a", term.Int(97)},
		{"0x1F", term.Int(31)},
		{"0b101", term.Int(5)},
		{"1.5e3", term.Float(1500)},
		{"-7", term.Int(-7)},
		{"-2.5", term.Float(-2.5)},
		{"-9223372036854775808", term.Int(math.MinInt64)},
	}
	for _, tc := range tests {
		got, _, err := ParseTerm(tc.input)
		if err != nil {
			t.Errorf("ParseTerm(%q): %v", tc.input, err)
			continue
		}
		if !term.Equal(got, tc.want) {
			t.Errorf("ParseTerm(%q) = %s, want %s", tc.input, term.Format(got), term.Format(tc.want))
		}
	}

	got, _, err := ParseTerm("123456789012345678901234567890")
	if err != nil {
		t.Fatal(err)
	}
	b, ok := got.(term.BigInt)
	if !ok {
		t.Fatalf("expected BigInt, got %T", got)
	}
	if b.V.String() != "123456789012345678901234567890" {
		t.Errorf("BigInt = %s", b.V)
	}
}

func TestParseAssociativity(t *testing.T) {
	got := MustParse("1 - 2 - 3")
	want := term.Comp("-", term.Comp("-", term.Int(1), term.Int(2)), term.Int(3))
	if !term.Equal(got, want) {
		t.Errorf("yfx: got %s", term.Format(got))
	}

	got = MustParse("a, b, c")
	want = term.Comp(",", term.Atom("a"), term.Comp(",", term.Atom("b"), term.Atom("c")))
	if !term.Equal(got, want) {
		t.Errorf("xfy: got %s", term.Format(got))
	}

	got = MustParse("a :- b -> c ; d")
	want = term.Comp(":-", term.Atom("a"),
		term.Comp(";", term.Comp("->", term.Atom("b"), term.Atom("c")), term.Atom("d")))
	if !term.Equal(got, want) {
		t.Errorf("if-then-else: got %s", term.Format(got))
	}
}

func TestParseVariables(t *testing.T) {
	got, vars, err := ParseTerm("f(X, _, Y, _, X)")
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 2 || vars[0].Name != "X" || vars[1].Name != "Y" {
		t.Fatalf("vars = %v", vars)
	}
	c := got.(*term.Compound)
	if !term.Equal(c.Args[0], c.Args[4]) {
		t.Error("repeated X should denote one variable")
	}
	if term.Equal(c.Args[1], c.Args[3]) {
		t.Error("anonymous variables should be distinct")
	}
	if n := len(term.Vars(got)); n != 4 {
		t.Errorf("distinct variables = %d, want 4", n)
	}
}

func TestReadAll(t *testing.T) {
	src := `
% facts
a.
b :- c.   /* block
comment */
d(X) :- X = "s", !.
`
	clauses, err := ReadAll(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(clauses) != 3 {
		t.Fatalf("got %d clauses, want 3", len(clauses))
	}
	if s := term.Format(clauses[2]); s != `d(X):-X="s",!` {
		t.Errorf("clause 3 = %s", s)
	}
}

func TestParserVariableScopePerClause(t *testing.T) {
	p := NewParser("p(X). q(Y, X).")
	_, v1, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	_, v2, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(v1) != 1 || len(v2) != 2 {
		t.Errorf("vars per clause = %d, %d", len(v1), len(v2))
	}
}

func TestSyntaxErrors(t *testing.T) {
	for _, input := range []string{
		"f(a",
		"a :- b :- c",
		"[a,b",
		"'unterminated",
		"f(a,)",
	} {
		_, _, err := ParseTerm(input)
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("ParseTerm(%q): expected SyntaxError, got %v", input, err)
		}
	}
}

func TestParserRecoversAfterError(t *testing.T) {
	p := NewParser("a :- . b.")
	if _, _, err := p.Next(); err == nil {
		t.Fatal("expected error for first clause")
	}
	got, _, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !term.Equal(got, term.Atom("b")) {
		t.Errorf("after recovery got %s", term.Format(got))
	}
}

func TestParserClauseStart(t *testing.T) {
	p := NewParser("% comment\nfirst.\n  second(X) :-\n    X = 1.\n")
	want := []Position{{Offset: 10, Line: 2, Column: 1}, {Offset: 19, Line: 3, Column: 3}}
	for i, w := range want {
		if _, _, err := p.Next(); err != nil {
			t.Fatal(err)
		}
		if got := p.Start(); got != w {
			t.Errorf("clause %d starts at %+v, want %+v", i+1, got, w)
		}
	}
}
