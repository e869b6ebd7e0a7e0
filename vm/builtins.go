package vm

import (
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs every Go predicate of the system module.
func registerBuiltins(r *Registry) {
	registerTermBuiltins(r)
	registerArithBuiltins(r)
	registerAtomBuiltins(r)
	registerControlBuiltins(r)
	registerDatabaseBuiltins(r)
	registerWriteBuiltins(r)
}

// ---------------------------------------------------------------------------
// Argument helpers for foreign predicates
// ---------------------------------------------------------------------------

// IntArg reads an integer argument, raising the ISO errors for unbound and
// non-integer arguments.
func (c *ForeignContext) IntArg(w Word) (int64, error) {
	w = c.m.deref(w)
	if isVar(w) {
		return 0, InstantiationError()
	}
	n, ok := c.m.numberOf(w)
	if !ok || n.Kind == NumFloat {
		return 0, TypeError("integer", c.m.Export(w))
	}
	if n.Kind == NumBig {
		return 0, Throw(representationError("max_integer"))
	}
	return n.I, nil
}

// AtomArg reads an atom argument.
func (c *ForeignContext) AtomArg(w Word) (string, error) {
	w = c.m.deref(w)
	if isVar(w) {
		return "", InstantiationError()
	}
	if w.Tag() != TagAtom {
		return "", TypeError("atom", c.m.Export(w))
	}
	return c.m.reg.AtomName(w.Atom()), nil
}

// TextArg reads an atom, string, number or code list argument.
func (c *ForeignContext) TextArg(w Word) (string, error) {
	w = c.m.deref(w)
	if isVar(w) {
		return "", InstantiationError()
	}
	s, ok := c.m.textOf(w)
	if !ok {
		return "", TypeError("atomic", c.m.Export(w))
	}
	return s, nil
}

// List returns the elements of a proper list.
func (c *ForeignContext) List(w Word) ([]Word, error) { return c.m.listWords(w) }

// MakeList builds a proper list of elems on the global stack.
func (c *ForeignContext) MakeList(elems []Word) (Word, error) {
	l, ok := c.m.makeList(elems, MakeAtom(AtomNil))
	if !ok {
		return 0, c.m.overflowErr()
	}
	return l, nil
}

// NewInt returns the word of integer i, boxing it when it does not fit a
// small integer.
func (c *ForeignContext) NewInt(i int64) (Word, error) {
	w, ok := c.m.numberWord(IntNumber(i))
	if !ok {
		return 0, c.m.overflowErr()
	}
	return w, nil
}

// NewString returns a string object holding s.
func (c *ForeignContext) NewString(s string) (Word, error) {
	if !c.m.require(StackGlobal, stringWords(s)) {
		return 0, c.m.overflowErr()
	}
	return c.m.putString(s), nil
}

func (m *Machine) listWords(w Word) ([]Word, error) {
	var out []Word
	l := m.deref(w)
	for l.Tag() == TagCompound && m.functorOf(l) == FunctorDot {
		out = append(out, m.arg(l, 0))
		l = m.deref(m.arg(l, 1))
	}
	switch {
	case isVar(l):
		return nil, InstantiationError()
	case l != MakeAtom(AtomNil):
		return nil, TypeError("list", m.Export(w))
	}
	return out, nil
}

// makeList conses elems in front of tail. It reports false on overflow.
func (m *Machine) makeList(elems []Word, tail Word) (Word, bool) {
	if !m.require(StackGlobal, 3*len(elems)) {
		return 0, false
	}
	l := tail
	for i := len(elems) - 1; i >= 0; i-- {
		cell := m.allocCompound(FunctorDot, 2)
		m.global[cell.Index()+1] = elems[i]
		m.global[cell.Index()+2] = l
		l = cell
	}
	return l, true
}

// predIndicator reads Name/Arity.
func (c *ForeignContext) predIndicator(w Word) (AtomID, int, error) {
	m := c.m
	w = m.deref(w)
	if isVar(w) {
		return 0, 0, InstantiationError()
	}
	if w.Tag() != TagCompound || m.functorOf(w) != FunctorSlash {
		return 0, 0, TypeError("predicate_indicator", m.Export(w))
	}
	name, err := c.AtomArg(m.arg(w, 0))
	if err != nil {
		return 0, 0, err
	}
	arity, err := c.IntArg(m.arg(w, 1))
	if err != nil {
		return 0, 0, err
	}
	if arity < 0 {
		return 0, 0, DomainError("not_less_than_zero", term.Int(arity))
	}
	return m.reg.Atom(name), int(arity), nil
}

// qualified strips Module: prefixes from w, returning the module they
// name or the caller's module.
func (c *ForeignContext) qualified(w Word) (*Module, Word, error) {
	m := c.m
	mod := c.Module()
	w = m.deref(w)
	for w.Tag() == TagCompound && m.functorOf(w) == FunctorColon {
		name, err := c.AtomArg(m.arg(w, 0))
		if err != nil {
			return nil, 0, err
		}
		mod = m.reg.Module(m.reg.Atom(name))
		w = m.deref(m.arg(w, 1))
	}
	return mod, w, nil
}
