package vm

import (
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// The clause database
// ---------------------------------------------------------------------------

// clauseScan is the resume state of retract/1 and clause/2.
type clauseScan struct {
	next *Clause
	gen  uint64
}

func registerDatabaseBuiltins(r *Registry) {
	// assert/1, assertz/1 and asserta/1
	for name, front := range map[string]bool{"assert": false, "assertz": false, "asserta": true} {
		r.DefineForeign(name, 1, func(c *ForeignContext, a []Word) (bool, error) {
			return true, c.assert(a[0], front)
		})
	}

	// retract/1 - remove the first matching clause; more on backtracking
	r.DefineNondet("retract", 1, func(c *ForeignContext, a []Word) (Retry, error) {
		if c.Control() == Pruned {
			return RetryFail, nil
		}
		m := c.m
		mod, pw, err := c.qualified(a[0])
		if err != nil {
			return RetryFail, err
		}
		if pw.Tag() != TagCompound || m.functorOf(pw) != FunctorNeck {
			if pw, err = c.neck(pw, MakeAtom(AtomTrue)); err != nil {
				return RetryFail, err
			}
		}
		return c.scanClauses(mod, pw, true)
	})

	// clause/2 - enumerate the clauses matching Head :- Body
	r.DefineNondet("clause", 2, func(c *ForeignContext, a []Word) (Retry, error) {
		if c.Control() == Pruned {
			return RetryFail, nil
		}
		m := c.m
		mod, head, err := c.qualified(a[0])
		if err != nil {
			return RetryFail, err
		}
		if b := m.deref(a[1]); !isVar(b) && !m.isCallable(b) {
			return RetryFail, TypeError("callable", m.Export(b))
		}
		pw, err := c.neck(head, a[1])
		if err != nil {
			return RetryFail, err
		}
		return c.scanClauses(mod, pw, false)
	})

	// retractall/1 - remove every clause whose head matches
	r.DefineForeign("retractall", 1, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		mod, head, err := c.qualified(a[0])
		if err != nil {
			return false, err
		}
		f, err := c.callableFunctor(head)
		if err != nil {
			return false, err
		}
		p := m.reg.Lookup(mod, f)
		if p == nil || p.Module != mod && p.Flags()&PredLibrary != 0 {
			p, err = m.reg.modifiable(mod, f)
			if err != nil {
				return false, err
			}
			p.SetFlags(PredDynamic | PredDeclared)
			return true, nil
		}
		if err := m.reg.checkModify(p); err != nil {
			return false, err
		}
		gen := m.reg.Generation()
		for cl := p.FirstClause(); cl != nil; cl = cl.Next() {
			if !cl.Visible(gen) || cl.Source == nil {
				continue
			}
			h, _ := SplitClause(cl.Source)
			w, err := c.Put(h)
			if err != nil {
				return false, err
			}
			if m.unifiable(head, w) {
				m.reg.Retract(cl)
			}
		}
		return true, nil
	})

	// abolish/1 - remove all clauses of Name/Arity
	r.DefineForeign("abolish", 1, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		mod, w, err := c.qualified(a[0])
		if err != nil {
			return false, err
		}
		name, arity, err := c.predIndicator(w)
		if err != nil {
			return false, err
		}
		p := m.reg.Lookup(mod, m.reg.Functor(name, arity))
		if p == nil {
			return true, nil
		}
		if err := c.m.reg.checkModify(p); err != nil {
			return false, err
		}
		c.m.reg.Abolish(p)
		return true, nil
	})

	// dynamic/1 and discontiguous/1 - declarations
	r.DefineForeign("dynamic", 1, func(c *ForeignContext, a []Word) (bool, error) {
		return true, c.declare(a[0], func(p *Predicate) { p.SetFlags(PredDynamic | PredDeclared) })
	})
	r.DefineForeign("discontiguous", 1, func(c *ForeignContext, a []Word) (bool, error) {
		return true, c.declare(a[0], func(*Predicate) {})
	})
}

// assert compiles a clause term and adds it to its predicate.
func (c *ForeignContext) assert(w Word, front bool) error {
	m := c.m
	mod, cw, err := c.qualified(w)
	if err != nil {
		return err
	}
	if isVar(cw) {
		return InstantiationError()
	}
	f, cl, err := m.reg.Compile(c.Get(cw), mod)
	if err != nil {
		return err
	}
	p, err := m.reg.modifiable(mod, f)
	if err != nil {
		return err
	}
	if p.FirstClause() == nil {
		p.SetFlags(PredDynamic | PredDeclared)
	}
	m.reg.AddClause(p, cl, front)
	return nil
}

// scanClauses drives retract/1 (with remove set) and clause/2. pattern
// is Head :- Body.
func (c *ForeignContext) scanClauses(mod *Module, pattern Word, remove bool) (Retry, error) {
	m := c.m
	var st clauseScan
	switch c.Control() {
	case Pruned:
		return RetryFail, nil
	case Redo:
		st = c.Token().(clauseScan)
	default:
		f, err := c.callableFunctor(m.arg(pattern, 0))
		if err != nil {
			return RetryFail, err
		}
		p := m.reg.Lookup(mod, f)
		if p == nil {
			return RetryFail, nil
		}
		switch {
		case p.IsForeign():
			return RetryFail, PermissionError("access", "private_procedure", indicator(m.reg.AtomName(p.Name), p.Arity))
		case remove:
			if err := m.reg.checkModify(p); err != nil {
				return RetryFail, err
			}
		}
		st = clauseScan{next: p.FirstClause(), gen: m.reg.Generation()}
	}
	for cl := st.next; cl != nil; cl = cl.Next() {
		if !cl.Visible(st.gen) || remove && cl.Erased() || cl.Source == nil {
			continue
		}
		h, b := SplitClause(cl.Source)
		cand, err := c.Put(term.Comp(":-", h, b))
		if err != nil {
			return RetryFail, err
		}
		if !m.unifiable(pattern, cand) {
			continue
		}
		if remove && !m.reg.Retract(cl) {
			continue
		}
		m.unify(pattern, cand)
		if cl.Next() == nil {
			return RetryExit, nil
		}
		return RetryWith(clauseScan{next: cl.Next(), gen: st.gen}), nil
	}
	return RetryFail, nil
}

// neck builds Head :- Body on the global stack.
func (c *ForeignContext) neck(head, body Word) (Word, error) {
	m := c.m
	if !m.require(StackGlobal, 3) {
		return 0, m.overflowErr()
	}
	w := m.allocCompound(FunctorNeck, 2)
	m.global[w.Index()+1] = head
	m.global[w.Index()+2] = body
	return w, nil
}

// callableFunctor returns the functor of a callable head.
func (c *ForeignContext) callableFunctor(w Word) (FunctorID, error) {
	m := c.m
	w = m.deref(w)
	switch w.Tag() {
	case TagRef:
		return 0, InstantiationError()
	case TagAtom:
		return m.reg.Functor(w.Atom(), 0), nil
	case TagCompound:
		return m.functorOf(w), nil
	}
	return 0, TypeError("callable", m.Export(w))
}

// declare applies fn to every predicate named by a declaration argument:
// an indicator, a conjunction or a list of them.
func (c *ForeignContext) declare(w Word, fn func(*Predicate)) error {
	m := c.m
	mod, w, err := c.qualified(w)
	if err != nil {
		return err
	}
	if w.Tag() == TagCompound {
		if f := m.functorOf(w); f == FunctorComma || f == FunctorDot {
			if err := c.declare(m.arg(w, 0), fn); err != nil {
				return err
			}
			return c.declare(m.arg(w, 1), fn)
		}
	}
	if w == MakeAtom(AtomNil) {
		return nil
	}
	name, arity, err := c.predIndicator(w)
	if err != nil {
		return err
	}
	p, err := m.reg.modifiable(mod, m.reg.Functor(name, arity))
	if err != nil {
		return err
	}
	fn(p)
	return nil
}

// modifiable returns the predicate f owned by m for a database change. It
// raises permission_error for control constructs and protected system
// predicates.
func (r *Registry) modifiable(m *Module, f FunctorID) (*Predicate, error) {
	name, arity := r.FunctorOf(f)
	if isControl(name, arity) {
		return nil, PermissionError("modify", "static_procedure", indicator(r.AtomName(name), arity))
	}
	if sp := r.Lookup(r.System(), f); sp != nil && (sp.Flags()&PredSystem != 0 || sp.IsForeign()) {
		return nil, PermissionError("modify", "static_procedure", indicator(r.AtomName(name), arity))
	}
	return r.Define(m, f), nil
}

// checkModify rejects changes to the clauses of system predicates.
func (r *Registry) checkModify(p *Predicate) error {
	if p.Flags()&PredSystem != 0 || p.IsForeign() || p.Module.Name == AtomSystem {
		return PermissionError("modify", "static_procedure", indicator(r.AtomName(p.Name), p.Arity))
	}
	return nil
}
