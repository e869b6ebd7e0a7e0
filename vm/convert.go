package vm

import (
	"fmt"
	"math/big"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Moving terms between Go and the global stack
// ---------------------------------------------------------------------------

// exportVars names unbound cells consistently across several exports.
type exportVars struct {
	names map[int]term.Variable
}

func newExportVars() *exportVars {
	return &exportVars{names: make(map[int]term.Variable)}
}

func (v *exportVars) name(idx int) term.Variable {
	if n, ok := v.names[idx]; ok {
		return n
	}
	n := term.Variable(fmt.Sprintf("_G%d", idx))
	v.names[idx] = n
	return n
}

// exportTerm copies the term at w out of the machine.
func (m *Machine) exportTerm(w Word, vars *exportVars) term.Term {
	w = m.deref(w)
	switch w.Tag() {
	case TagRef:
		return vars.name(w.Index())
	case TagInt:
		return term.Int(w.IntValue())
	case TagAtom:
		return term.Atom(m.reg.AtomName(w.Atom()))
	case TagIndirect:
		switch m.indirectHeader(w).indirectKind() {
		case IndFloat:
			return term.Float(m.floatValue(w))
		case IndBig:
			return term.NewBig(m.bigValue(w))
		default:
			return term.String(m.stringValue(w))
		}
	}
	f := m.functorOf(w)
	if f == FunctorDot {
		var elems []term.Term
		for {
			elems = append(elems, m.exportTerm(m.arg(w, 0), vars))
			w = m.deref(m.arg(w, 1))
			if w.Tag() != TagCompound || m.functorOf(w) != FunctorDot {
				break
			}
		}
		return term.ListWithTail(m.exportTerm(w, vars), elems...)
	}
	name, arity := m.reg.FunctorOf(f)
	args := make([]term.Term, arity)
	for i := range args {
		args[i] = m.exportTerm(m.arg(w, i), vars)
	}
	return &term.Compound{Functor: term.Atom(m.reg.AtomName(name)), Args: args}
}

// Export copies the term at w out of the machine, naming unbound
// variables after their cells.
func (m *Machine) Export(w Word) term.Term { return m.exportTerm(w, newExportVars()) }

// termCells returns the number of global cells importTerm needs for t.
func termCells(t term.Term) int {
	n := 0
	for {
		switch x := t.(type) {
		case term.Variable:
			return n + 1
		case term.Int:
			if !FitsSmall(int64(x)) {
				return n + bigWords(big.NewInt(int64(x)))
			}
			return n
		case term.BigInt:
			return n + bigWords(x.V)
		case term.Float:
			return n + 3
		case term.String:
			return n + stringWords(string(x))
		case *term.Compound:
			if len(x.Args) == 0 {
				return n
			}
			n += 1 + len(x.Args)
			last := len(x.Args) - 1
			for _, a := range x.Args[:last] {
				n += termCells(a)
			}
			t = x.Args[last]
			continue
		}
		return n
	}
}

// importTerm builds t on the global stack. Variables with the same name
// share a cell; "_" is always fresh. The caller has reserved
// termCells(t) cells.
func (m *Machine) importTerm(t term.Term, vars map[term.Variable]Word) Word {
	switch x := t.(type) {
	case term.Variable:
		if x != "_" {
			if w, ok := vars[x]; ok {
				return w
			}
		}
		w := m.newVar()
		if x != "_" {
			vars[x] = w
		}
		return w
	case *term.Compound:
		if len(x.Args) == 0 {
			return MakeAtom(m.reg.Atom(string(x.Functor)))
		}
		w := m.allocCompound(m.functorFor(x), len(x.Args))
		m.importArgs(w.Index(), x.Args, vars)
		return w
	}
	return m.importAtomic(t)
}

// importArgs fills the argument cells of the compound at idx. The last
// argument is handled iteratively so long lists do not recurse.
func (m *Machine) importArgs(idx int, args []term.Term, vars map[term.Variable]Word) {
	for {
		n := len(args)
		for i, a := range args[:n-1] {
			cell := idx + 1 + i
			m.global[cell] = m.importArg(cell, a, vars)
		}
		cell := idx + n
		c, ok := args[n-1].(*term.Compound)
		if !ok || len(c.Args) == 0 {
			m.global[cell] = m.importArg(cell, args[n-1], vars)
			return
		}
		w := m.allocCompound(m.functorFor(c), len(c.Args))
		m.global[cell] = w
		idx, args = w.Index(), c.Args
	}
}

func (m *Machine) importArg(cell int, t term.Term, vars map[term.Variable]Word) Word {
	switch x := t.(type) {
	case term.Variable:
		if x == "_" {
			return MakeRef(cell)
		}
		if w, ok := vars[x]; ok {
			return w
		}
		w := MakeRef(cell)
		vars[x] = w
		return w
	case *term.Compound:
		if len(x.Args) == 0 {
			return MakeAtom(m.reg.Atom(string(x.Functor)))
		}
		w := m.allocCompound(m.functorFor(x), len(x.Args))
		m.importArgs(w.Index(), x.Args, vars)
		return w
	}
	return m.importAtomic(t)
}

func (m *Machine) importAtomic(t term.Term) Word {
	switch x := t.(type) {
	case term.Atom:
		return MakeAtom(m.reg.Atom(string(x)))
	case term.Int:
		if FitsSmall(int64(x)) {
			return MakeInt(int64(x))
		}
		return m.putBig(big.NewInt(int64(x)))
	case term.BigInt:
		if x.V.IsInt64() && FitsSmall(x.V.Int64()) {
			return MakeInt(x.V.Int64())
		}
		return m.putBig(x.V)
	case term.Float:
		return m.putFloat(float64(x))
	case term.String:
		return m.putString(string(x))
	}
	panic(fmt.Sprintf("vm: cannot import %T", t))
}

func (m *Machine) functorFor(c *term.Compound) FunctorID {
	return m.reg.Functor(m.reg.Atom(string(c.Functor)), len(c.Args))
}

// Import builds t on the global stack, growing it past the limit if
// needed. Intended for embedders and tests.
func (m *Machine) Import(t term.Term) Word {
	return m.importTerm(t, make(map[term.Variable]Word))
}

// reserveImport checks room for t and imports it. It reports false when a
// stack overflow is pending.
func (m *Machine) reserveImport(t term.Term, vars map[term.Variable]Word) (Word, bool) {
	if !m.require(StackGlobal, termCells(t)) {
		return 0, false
	}
	return m.importTerm(t, vars), true
}
