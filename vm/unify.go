package vm

import (
	"strings"
)

// unify makes a and b equal, binding variables as needed. Bindings made
// before a failure stay in place; the caller backtracks to undo them.
func (m *Machine) unify(a, b Word) bool {
	stack := append(m.ustack[:0], a, b)
	for len(stack) > 0 {
		n := len(stack)
		a, b = m.deref(stack[n-2]), m.deref(stack[n-1])
		stack = stack[:n-2]
		if a == b {
			continue
		}
		if isVar(a) {
			// bind the younger variable to the older one
			if isVar(b) && b.Index() > a.Index() {
				m.bind(b, a)
			} else {
				m.bind(a, b)
			}
			continue
		}
		if isVar(b) {
			m.bind(b, a)
			continue
		}
		switch a.Tag() {
		case TagCompound:
			if b.Tag() != TagCompound {
				m.ustack = stack[:0]
				return false
			}
			ha, hb := m.global[a.Index()], m.global[b.Index()]
			if ha != hb {
				m.ustack = stack[:0]
				return false
			}
			for i := m.arityOf(ha.Functor()) - 1; i >= 0; i-- {
				stack = append(stack, m.arg(a, i), m.arg(b, i))
			}
		case TagIndirect:
			if b.Tag() != TagIndirect || !m.equalIndirect(a, b) {
				m.ustack = stack[:0]
				return false
			}
		default:
			m.ustack = stack[:0]
			return false
		}
	}
	m.ustack = stack
	return true
}

// unifiable tests whether a and b unify without leaving bindings behind.
func (m *Machine) unifiable(a, b Word) bool {
	mark := len(m.trail)
	saved := m.forceTrail
	m.forceTrail = true
	ok := m.unify(a, b)
	m.forceTrail = saved
	m.undo(mark)
	return ok
}

func (m *Machine) arityOf(f FunctorID) int {
	if int(f) >= len(m.arities) {
		m.arities = m.reg.functorArities(m.arities)
	}
	return m.arities[f]
}

// ---------------------------------------------------------------------------
// Standard order of terms
// ---------------------------------------------------------------------------

// Var < Number < Atom < String < Compound
func (m *Machine) orderClass(w Word) int {
	switch w.Tag() {
	case TagRef:
		return 0
	case TagInt:
		return 1
	case TagAtom:
		return 3
	case TagIndirect:
		if m.isString(w) {
			return 4
		}
		return 1
	}
	return 5
}

// compare orders a and b: negative, zero or positive.
func (m *Machine) compare(a, b Word) int {
	for {
		a, b = m.deref(a), m.deref(b)
		if a == b {
			return 0
		}
		ca, cb := m.orderClass(a), m.orderClass(b)
		if ca != cb {
			return ca - cb
		}
		switch ca {
		case 0:
			return a.Index() - b.Index()
		case 1:
			na, _ := m.numberOf(a)
			nb, _ := m.numberOf(b)
			return compareStandard(na, nb)
		case 3:
			return strings.Compare(m.reg.AtomName(a.Atom()), m.reg.AtomName(b.Atom()))
		case 4:
			return strings.Compare(m.stringValue(a), m.stringValue(b))
		}
		fa, fb := m.functorOf(a), m.functorOf(b)
		if fa != fb {
			na, aa := m.reg.FunctorOf(fa)
			nb, ab := m.reg.FunctorOf(fb)
			if aa != ab {
				return aa - ab
			}
			return strings.Compare(m.reg.AtomName(na), m.reg.AtomName(nb))
		}
		n := m.arityOf(fa)
		for i := 0; i < n-1; i++ {
			if c := m.compare(m.arg(a, i), m.arg(b, i)); c != 0 {
				return c
			}
		}
		a, b = m.arg(a, n-1), m.arg(b, n-1)
	}
}

// variant-free structural equality used by ==/2.
func (m *Machine) identical(a, b Word) bool { return m.compare(a, b) == 0 }
