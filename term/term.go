// Package term defines the Go-side representation of Prolog terms.
//
// Terms in this package live outside the abstract machine. The machine
// imports them onto its global stack (clause literals, query goals, foreign
// results) and exports stack terms back into this form (answers, exception
// balls, findall results).
package term

import (
	"math/big"
)

// Term is any Prolog term.
type Term interface {
	isTerm()
}

// Atom is a Prolog atom.
type Atom string

// Int is an integer that fits a machine word.
type Int int64

// Float is a double precision float.
type Float float64

// BigInt is an arbitrary precision integer. Values that fit in an int64
// should be represented as Int; Normalize does that conversion.
type BigInt struct {
	V *big.Int
}

// String is a string object (distinct from an atom and from a code list).
type String string

// Variable is a named logic variable. Two Variable values with the same
// name denote the same variable within one term.
type Variable string

// Compound is a structure Functor(Args...).
type Compound struct {
	Functor Atom
	Args    []Term
}

func (Atom) isTerm()      {}
func (Int) isTerm()       {}
func (Float) isTerm()     {}
func (BigInt) isTerm()    {}
func (String) isTerm()    {}
func (Variable) isTerm()  {}
func (*Compound) isTerm() {}

// Well-known atoms.
const (
	Nil   Atom = "[]"
	True  Atom = "true"
	False Atom = "false"
	Dot   Atom = "."
	Curly Atom = "{}"
)

// Comp builds a compound term. With no arguments it returns the atom.
func Comp(name string, args ...Term) Term {
	if len(args) == 0 {
		return Atom(name)
	}
	return &Compound{Functor: Atom(name), Args: args}
}

// Cons builds the list cell [h|t].
func Cons(h, t Term) Term {
	return &Compound{Functor: Dot, Args: []Term{h, t}}
}

// List builds a proper list.
func List(elems ...Term) Term {
	return ListWithTail(Nil, elems...)
}

// ListWithTail builds a partial list ending in tail.
func ListWithTail(tail Term, elems ...Term) Term {
	t := tail
	for i := len(elems) - 1; i >= 0; i-- {
		t = Cons(elems[i], t)
	}
	return t
}

// NewBig wraps a big integer, narrowing it to Int when it fits.
func NewBig(v *big.Int) Term {
	if v.IsInt64() {
		return Int(v.Int64())
	}
	return BigInt{V: new(big.Int).Set(v)}
}

// Arity returns the arity of a callable term (0 for atoms).
func Arity(t Term) int {
	if c, ok := t.(*Compound); ok {
		return len(c.Args)
	}
	return 0
}

// Name returns the principal functor name of a callable term.
func Name(t Term) (Atom, bool) {
	switch x := t.(type) {
	case Atom:
		return x, true
	case *Compound:
		return x.Functor, true
	}
	return "", false
}

// IsCallable reports whether t is an atom or compound.
func IsCallable(t Term) bool {
	_, ok := Name(t)
	return ok
}

// Slice returns the elements of a proper list.
func Slice(t Term) ([]Term, bool) {
	var out []Term
	for {
		switch x := t.(type) {
		case Atom:
			return out, x == Nil
		case *Compound:
			if x.Functor != Dot || len(x.Args) != 2 {
				return nil, false
			}
			out = append(out, x.Args[0])
			t = x.Args[1]
		default:
			return nil, false
		}
	}
}

// Equal reports structural identity of two terms. Variables are equal when
// their names are.
func Equal(a, b Term) bool {
	switch x := a.(type) {
	case Atom:
		y, ok := b.(Atom)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	case BigInt:
		y, ok := b.(BigInt)
		return ok && x.V.Cmp(y.V) == 0
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Variable:
		y, ok := b.(Variable)
		return ok && x == y
	case *Compound:
		y, ok := b.(*Compound)
		if !ok || x.Functor != y.Functor || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !Equal(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Vars returns the distinct variables of t in depth-first, left-to-right
// order of first occurrence.
func Vars(t Term) []Variable {
	seen := make(map[Variable]bool)
	var out []Variable
	var walk func(Term)
	walk = func(t Term) {
		switch x := t.(type) {
		case Variable:
			if !seen[x] {
				seen[x] = true
				out = append(out, x)
			}
		case *Compound:
			for _, a := range x.Args {
				walk(a)
			}
		}
	}
	walk(t)
	return out
}
