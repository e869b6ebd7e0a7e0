package vm

import (
	"sort"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Unification, comparison, type tests and term construction
// ---------------------------------------------------------------------------

func registerTermBuiltins(r *Registry) {
	r.DefineForeign("=", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.m.unify(a[0], a[1]), nil
	})
	r.DefineForeign("\\=", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return !c.m.unifiable(a[0], a[1]), nil
	})
	r.DefineForeign("==", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.m.identical(a[0], a[1]), nil
	})
	r.DefineForeign("\\==", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return !c.m.identical(a[0], a[1]), nil
	})
	for name, holds := range map[string]func(int) bool{
		"@<":  func(c int) bool { return c < 0 },
		"@>":  func(c int) bool { return c > 0 },
		"@=<": func(c int) bool { return c <= 0 },
		"@>=": func(c int) bool { return c >= 0 },
	} {
		r.DefineForeign(name, 2, func(c *ForeignContext, a []Word) (bool, error) {
			return holds(c.m.compare(a[0], a[1])), nil
		})
	}

	// compare/3 - standard order as <, = or >
	r.DefineForeign("compare", 3, func(c *ForeignContext, a []Word) (bool, error) {
		o := c.m.deref(a[0])
		if !isVar(o) {
			name, err := c.AtomArg(o)
			if err != nil {
				return false, err
			}
			if name != "<" && name != "=" && name != ">" {
				return false, DomainError("order", term.Atom(name))
			}
		}
		var res AtomID
		switch cmp := c.m.compare(a[1], a[2]); {
		case cmp < 0:
			res = AtomLess
		case cmp > 0:
			res = AtomGreater
		default:
			res = AtomEqual
		}
		return c.m.unify(o, MakeAtom(res)), nil
	})

	// type tests
	for name, test := range map[string]func(m *Machine, w Word) bool{
		"var":      func(_ *Machine, w Word) bool { return isVar(w) },
		"nonvar":   func(_ *Machine, w Word) bool { return !isVar(w) },
		"atom":     func(_ *Machine, w Word) bool { return w.Tag() == TagAtom },
		"number":   func(m *Machine, w Word) bool { return m.isNumber(w) },
		"integer":  func(m *Machine, w Word) bool { return m.isInteger(w) },
		"float":    func(m *Machine, w Word) bool { return m.isFloat(w) },
		"string":   func(m *Machine, w Word) bool { return m.isString(w) },
		"atomic":   func(_ *Machine, w Word) bool { return !isVar(w) && w.Tag() != TagCompound },
		"compound": func(_ *Machine, w Word) bool { return w.Tag() == TagCompound },
		"callable": func(m *Machine, w Word) bool { return m.isCallable(w) },
		"is_list":  func(m *Machine, w Word) bool { _, err := m.listWords(w); return err == nil },
		"ground":   func(m *Machine, w Word) bool { return m.ground(w) },
	} {
		r.DefineForeign(name, 1, func(c *ForeignContext, a []Word) (bool, error) {
			return test(c.m, c.m.deref(a[0])), nil
		})
	}

	// functor/3 - decompose or build a term
	r.DefineForeign("functor", 3, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		t := m.deref(a[0])
		switch {
		case t.Tag() == TagCompound:
			name, arity := m.reg.FunctorOf(m.functorOf(t))
			return m.unify(a[1], MakeAtom(name)) && m.unify(a[2], MakeInt(int64(arity))), nil
		case !isVar(t):
			return m.unify(a[1], t) && m.unify(a[2], MakeInt(0)), nil
		}
		n := m.deref(a[1])
		arity, err := c.IntArg(a[2])
		switch {
		case err != nil:
			return false, err
		case isVar(n):
			return false, InstantiationError()
		case arity < 0:
			return false, DomainError("not_less_than_zero", term.Int(arity))
		case arity == 0:
			if n.Tag() == TagCompound {
				return false, TypeError("atomic", m.Export(n))
			}
			return m.unify(t, n), nil
		case n.Tag() != TagAtom:
			if n.Tag() == TagCompound {
				return false, TypeError("atomic", m.Export(n))
			}
			return false, TypeError("atom", m.Export(n))
		}
		if !m.require(StackGlobal, int(arity)+1) {
			return false, m.overflowErr()
		}
		return m.unify(t, m.allocCompound(m.reg.Functor(n.Atom(), int(arity)), int(arity))), nil
	})

	// arg/3 - the Nth argument of a compound
	r.DefineForeign("arg", 3, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		n, err := c.IntArg(a[0])
		if err != nil {
			return false, err
		}
		t := m.deref(a[1])
		switch {
		case isVar(t):
			return false, InstantiationError()
		case t.Tag() != TagCompound:
			return false, TypeError("compound", m.Export(t))
		}
		if n < 1 || int(n) > m.arityOf(m.functorOf(t)) {
			return false, nil
		}
		return m.unify(a[2], m.arg(t, int(n)-1)), nil
	})

	// =../2 - univ
	r.DefineForeign("=..", 2, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		t := m.deref(a[0])
		switch {
		case t.Tag() == TagCompound:
			name, arity := m.reg.FunctorOf(m.functorOf(t))
			elems := make([]Word, arity+1)
			elems[0] = MakeAtom(name)
			for i := 0; i < arity; i++ {
				elems[i+1] = m.arg(t, i)
			}
			l, err := c.MakeList(elems)
			if err != nil {
				return false, err
			}
			return m.unify(a[1], l), nil
		case !isVar(t):
			l, err := c.MakeList([]Word{t})
			if err != nil {
				return false, err
			}
			return m.unify(a[1], l), nil
		}
		elems, err := m.listWords(a[1])
		if err != nil {
			return false, err
		}
		if len(elems) == 0 {
			return false, DomainError("non_empty_list", term.Nil)
		}
		head := m.deref(elems[0])
		switch {
		case isVar(head):
			return false, InstantiationError()
		case len(elems) == 1:
			if head.Tag() == TagCompound {
				return false, TypeError("atomic", m.Export(head))
			}
			return m.unify(t, head), nil
		case head.Tag() != TagAtom:
			return false, TypeError("atom", m.Export(head))
		}
		arity := len(elems) - 1
		if !m.require(StackGlobal, arity+1) {
			return false, m.overflowErr()
		}
		cw := m.allocCompound(m.reg.Functor(head.Atom(), arity), arity)
		copy(m.global[cw.Index()+1:], elems[1:])
		return m.unify(t, cw), nil
	})

	// copy_term/2 - a copy with fresh variables
	r.DefineForeign("copy_term", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.UnifyTerm(a[1], c.Get(a[0]))
	})

	// term_variables/2 - the distinct variables of a term, depth-first
	r.DefineForeign("term_variables", 2, func(c *ForeignContext, a []Word) (bool, error) {
		vars := c.m.termVariables(a[0], nil, make(map[Word]bool))
		l, err := c.MakeList(vars)
		if err != nil {
			return false, err
		}
		return c.m.unify(a[1], l), nil
	})

	// msort/2 - sort in standard order, keeping duplicates
	r.DefineForeign("msort", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.sortList(a[0], a[1], false, func(w Word) Word { return w })
	})

	// sort/2 - sort in standard order, removing duplicates
	r.DefineForeign("sort", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.sortList(a[0], a[1], true, func(w Word) Word { return w })
	})

	// keysort/2 - stable sort of Key-Value pairs by key
	r.DefineForeign("keysort", 2, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		elems, err := m.listWords(a[0])
		if err != nil {
			return false, err
		}
		for _, e := range elems {
			e = m.deref(e)
			switch {
			case isVar(e):
				return false, InstantiationError()
			case e.Tag() != TagCompound || m.functorOf(e) != FunctorMinus2:
				return false, TypeError("pair", m.Export(e))
			}
		}
		return c.sortList(a[0], a[1], false, func(w Word) Word { return m.arg(m.deref(w), 0) })
	})
}

// sortList sorts the list in from by key and unifies the result with to.
func (c *ForeignContext) sortList(from, to Word, dedup bool, key func(Word) Word) (bool, error) {
	m := c.m
	elems, err := m.listWords(from)
	if err != nil {
		return false, err
	}
	sort.SliceStable(elems, func(i, j int) bool {
		return m.compare(key(elems[i]), key(elems[j])) < 0
	})
	if dedup && len(elems) > 1 {
		out := elems[:1]
		for _, e := range elems[1:] {
			if m.compare(out[len(out)-1], e) != 0 {
				out = append(out, e)
			}
		}
		elems = out
	}
	l, err := c.MakeList(elems)
	if err != nil {
		return false, err
	}
	return m.unify(to, l), nil
}

// ground reports whether w contains no unbound variables.
func (m *Machine) ground(w Word) bool {
	for {
		w = m.deref(w)
		switch w.Tag() {
		case TagRef:
			return false
		case TagCompound:
			n := m.arityOf(m.functorOf(w))
			for i := 0; i < n-1; i++ {
				if !m.ground(m.arg(w, i)) {
					return false
				}
			}
			w = m.arg(w, n-1)
			continue
		}
		return true
	}
}

func (m *Machine) termVariables(w Word, acc []Word, seen map[Word]bool) []Word {
	for {
		w = m.deref(w)
		switch w.Tag() {
		case TagRef:
			if !seen[w] {
				seen[w] = true
				acc = append(acc, w)
			}
		case TagCompound:
			n := m.arityOf(m.functorOf(w))
			for i := 0; i < n-1; i++ {
				acc = m.termVariables(m.arg(w, i), acc, seen)
			}
			w = m.arg(w, n-1)
			continue
		}
		return acc
	}
}
