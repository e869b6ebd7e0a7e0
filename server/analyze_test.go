package server

import (
	"testing"
)

func TestAnalyze_Clauses(t *testing.T) {
	doc := analyze(sampleDoc)
	if len(doc.errors) != 0 {
		t.Fatalf("errors: %v", doc.errors)
	}
	if len(doc.clauses) != 7 {
		t.Fatalf("clauses = %d, want 7", len(doc.clauses))
	}
	main := doc.clauses[6]
	if main.head != (indicator{"main", 0}) || main.start.Line != 7 || main.start.Column != 1 {
		t.Errorf("main clause = %+v", main)
	}
	want := []indicator{{"path", 2}, {"writeln", 1}, {"missing", 1}, {"seen", 1}, {"undefined_thing", 0}}
	if len(main.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", main.calls, want)
	}
	for i := range want {
		if main.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, main.calls[i], want[i])
		}
	}
	if !doc.clauses[0].directive || !doc.defines(indicator{"seen", 1}) {
		t.Error("dynamic declaration not recorded")
	}
}

func TestAnalyze_OperatorDirective(t *testing.T) {
	doc := analyze("x :- a ===> b.\n:- op(700, xfx, ===>).\ny :- a ===> b.\n")
	if len(doc.errors) != 1 || doc.errors[0].Pos.Line != 1 {
		t.Errorf("errors = %v, want one on line 1 before the op directive", doc.errors)
	}
	if heads := doc.heads(); len(heads) != 1 || heads[0] != (indicator{"y", 0}) {
		t.Errorf("heads = %v", heads)
	}
}

func TestAnalyze_Declarations(t *testing.T) {
	doc := analyze(":- dynamic a/1, b/2.\n:- dynamic([c/3]).\n:- discontiguous(d/0).\n")
	for _, pi := range []indicator{{"a", 1}, {"b", 2}, {"c", 3}, {"d", 0}} {
		if !doc.declared[pi] {
			t.Errorf("%s not declared", pi)
		}
	}
}

func TestAnalyze_UnterminatedInput(t *testing.T) {
	doc := analyze("ok.\nx :- 'abc")
	if len(doc.errors) == 0 {
		t.Error("no syntax error for an unterminated quoted atom")
	}
	if len(doc.heads()) != 1 {
		t.Errorf("heads = %v", doc.heads())
	}
}

func TestIndicator_String(t *testing.T) {
	if got := (indicator{"hello world", 2}).String(); got != "'hello world'/2" {
		t.Errorf("String = %s", got)
	}
}
