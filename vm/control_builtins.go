package vm

import (
	"errors"
	"math"
	"strconv"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Solutions, enumeration, loading and the engine
// ---------------------------------------------------------------------------

type betweenState struct {
	next, hi int64
}

func registerControlBuiltins(r *Registry) {
	// between/3 - enumerate integers Low..High; High may be inf
	r.DefineNondet("between", 3, func(c *ForeignContext, a []Word) (Retry, error) {
		m := c.m
		var st betweenState
		switch c.Control() {
		case Pruned:
			return RetryFail, nil
		case Redo:
			st = c.Token().(betweenState)
		default:
			lo, err := c.IntArg(a[0])
			if err != nil {
				return RetryFail, err
			}
			st = betweenState{next: lo, hi: math.MaxInt64}
			if h := m.deref(a[1]); h.Tag() != TagAtom || !isInfinite(m.reg.AtomName(h.Atom())) {
				if st.hi, err = c.IntArg(h); err != nil {
					return RetryFail, err
				}
			}
			if x := m.deref(a[2]); !isVar(x) {
				v, err := c.IntArg(x)
				if err != nil || v < lo || v > st.hi {
					return RetryFail, err
				}
				return RetryExit, nil
			}
			if lo > st.hi {
				return RetryFail, nil
			}
		}
		w, err := c.NewInt(st.next)
		if err != nil {
			return RetryFail, err
		}
		if !m.unify(a[2], w) {
			return RetryFail, nil
		}
		if st.next == st.hi {
			return RetryExit, nil
		}
		return RetryWith(betweenState{next: st.next + 1, hi: st.hi}), nil
	})

	// findall/3 and findall/4 - collect every instance of a template
	r.DefineForeign("findall", 3, func(c *ForeignContext, a []Word) (bool, error) {
		return c.findall(a[0], a[1], a[2], MakeAtom(AtomNil))
	})
	r.DefineForeign("findall", 4, func(c *ForeignContext, a []Word) (bool, error) {
		return c.findall(a[0], a[1], a[2], a[3])
	})

	// aggregate_all/3 for count, sum, max, min and bag
	r.DefineForeign("aggregate_all", 3, func(c *ForeignContext, a []Word) (bool, error) {
		return c.aggregateAll(a[0], a[1], a[2])
	})

	// halt/0 and halt/1
	r.DefineForeign("halt", 0, func(*ForeignContext, []Word) (bool, error) {
		return false, &HaltError{}
	})
	r.DefineForeign("halt", 1, func(c *ForeignContext, a []Word) (bool, error) {
		code, err := c.IntArg(a[0])
		if err != nil {
			return false, err
		}
		return false, &HaltError{Code: int(code)}
	})

	// consult/1 - load a file or a list of files
	r.DefineForeign("consult", 1, func(c *ForeignContext, a []Word) (bool, error) {
		files := []Word{a[0]}
		if l := c.m.deref(a[0]); l.Tag() == TagCompound && c.m.functorOf(l) == FunctorDot {
			var err error
			if files, err = c.List(l); err != nil {
				return false, err
			}
		}
		for _, f := range files {
			path, err := c.TextArg(f)
			if err != nil {
				return false, err
			}
			if err := c.m.ConsultFile(path); err != nil {
				return false, err
			}
		}
		return true, nil
	})

	// op/3 - define operators
	r.DefineForeign("op", 3, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		prio, err := c.IntArg(a[0])
		if err != nil {
			return false, err
		}
		if prio < 0 || prio > 1200 {
			return false, DomainError("operator_priority", term.Int(prio))
		}
		spec, err := c.AtomArg(a[1])
		if err != nil {
			return false, err
		}
		typ, ok := opTypes[spec]
		if !ok {
			return false, DomainError("operator_specifier", term.Atom(spec))
		}
		names := []Word{a[2]}
		if l := m.deref(a[2]); l.Tag() == TagCompound && m.functorOf(l) == FunctorDot {
			if names, err = c.List(l); err != nil {
				return false, err
			}
		}
		for _, n := range names {
			name, err := c.AtomArg(n)
			if err != nil {
				return false, err
			}
			if name == "," {
				return false, PermissionError("modify", "operator", term.Atom(name))
			}
			m.reg.Ops().Add(term.Atom(name), int(prio), typ)
		}
		return true, nil
	})

	// trace/0, notrace/0, spy/1 and nospy/1
	r.DefineForeign("trace", 0, func(c *ForeignContext, _ []Word) (bool, error) {
		c.m.opts.Trace = true
		return true, nil
	})
	r.DefineForeign("notrace", 0, func(c *ForeignContext, _ []Word) (bool, error) {
		c.m.opts.Trace = false
		return true, nil
	})
	r.DefineForeign("spy", 1, func(c *ForeignContext, a []Word) (bool, error) {
		p, err := c.indicated(a[0])
		if err != nil {
			return false, err
		}
		c.m.reg.Spy(p)
		return true, nil
	})
	r.DefineForeign("nospy", 1, func(c *ForeignContext, a []Word) (bool, error) {
		p, err := c.indicated(a[0])
		if err != nil {
			return false, err
		}
		c.m.reg.Nospy(p)
		return true, nil
	})
}

var opTypes = map[string]term.OpType{
	"xfx": term.XFX, "xfy": term.XFY, "yfx": term.YFX,
	"fy": term.FY, "fx": term.FX, "xf": term.XF, "yf": term.YF,
}

func isInfinite(name string) bool { return name == "inf" || name == "infinite" }

// indicated resolves a Name/Arity argument to a predicate.
func (c *ForeignContext) indicated(w Word) (*Predicate, error) {
	mod, w, err := c.qualified(w)
	if err != nil {
		return nil, err
	}
	name, arity, err := c.predIndicator(w)
	if err != nil {
		return nil, err
	}
	p := c.m.reg.Lookup(mod, c.m.reg.Functor(name, arity))
	if p == nil {
		return nil, ExistenceError("procedure", indicator(c.m.reg.AtomName(name), arity))
	}
	return p, nil
}

// solutions runs goal in a nested query and calls fn with the instance of
// tmpl for every solution. Variables of separate instances are distinct.
func (c *ForeignContext) solutions(tmpl, goal Word, fn func(term.Term) bool) error {
	m := c.m
	vars := newExportVars()
	t := m.exportTerm(tmpl, vars)
	g := m.exportTerm(goal, vars)
	q, err := m.OpenQuery(g)
	if err != nil {
		return err
	}
	defer q.Close()
	for n := 0; ; n++ {
		ok, err := q.Next()
		if err != nil {
			return nestedError(err)
		}
		if !ok {
			return nil
		}
		inst := renameVars(q.instantiate(t, newExportVars()), "_"+strconv.Itoa(n))
		if !fn(inst) {
			return nil
		}
	}
}

func (c *ForeignContext) findall(tmpl, goal, out, tail Word) (bool, error) {
	var results []term.Term
	err := c.solutions(tmpl, goal, func(t term.Term) bool {
		results = append(results, t)
		return true
	})
	if err != nil {
		return false, err
	}
	l, err := c.Put(term.List(results...))
	if err != nil {
		return false, err
	}
	if tail != MakeAtom(AtomNil) {
		w := c.m.deref(l)
		if w == MakeAtom(AtomNil) {
			return c.m.unify(out, tail), nil
		}
		for {
			next := c.m.deref(c.m.arg(w, 1))
			if next == MakeAtom(AtomNil) {
				c.m.global[w.Index()+2] = tail
				break
			}
			w = next
		}
	}
	return c.m.unify(out, l), nil
}

func (c *ForeignContext) aggregateAll(spec, goal, out Word) (bool, error) {
	m := c.m
	s := m.deref(spec)
	var op string
	tmpl := s
	switch {
	case s.Tag() == TagAtom && m.reg.AtomName(s.Atom()) == "count":
		op, tmpl = "count", MakeAtom(AtomTrue)
	case s.Tag() == TagCompound && m.arityOf(m.functorOf(s)) == 1:
		name, _ := m.reg.FunctorOf(m.functorOf(s))
		op, tmpl = m.reg.AtomName(name), m.arg(s, 0)
	}
	switch op {
	case "count", "bag", "sum", "max", "min":
	case "":
		if isVar(s) {
			return false, InstantiationError()
		}
		fallthrough
	default:
		return false, DomainError("aggregate_spec", m.Export(s))
	}
	var (
		results []term.Term
		acc     Number
		have    bool
		evalErr error
	)
	err := c.solutions(tmpl, goal, func(t term.Term) bool {
		if op == "count" || op == "bag" {
			results = append(results, t)
			return true
		}
		n, ok := literalNumber(t)
		if !ok {
			evalErr = TypeError("evaluable", t)
			return false
		}
		switch {
		case !have:
			acc, have = n, true
		case op == "sum":
			acc, evalErr = numAdd(acc, n)
		case op == "max" && compareValue(n, acc) > 0:
			acc = n
		case op == "min" && compareValue(n, acc) < 0:
			acc = n
		}
		return evalErr == nil
	})
	switch {
	case err != nil:
		return false, err
	case evalErr != nil:
		return false, evalErr
	}
	var res term.Term
	switch op {
	case "count":
		res = term.Int(len(results))
	case "bag":
		res = term.List(results...)
	case "sum":
		if !have {
			acc = IntNumber(0)
		}
		res = acc.Term()
	default:
		if !have {
			return false, nil
		}
		res = acc.Term()
	}
	return c.UnifyTerm(out, res)
}

// nestedError turns the uncaught exception of a nested query into one
// that propagates in the outer query.
func nestedError(err error) error {
	var ue *UncaughtError
	if errors.As(err, &ue) {
		return Throw(ue.Ball)
	}
	return err
}

// renameVars appends suffix to every variable name in t.
func renameVars(t term.Term, suffix string) term.Term {
	switch x := t.(type) {
	case term.Variable:
		return term.Variable(string(x) + suffix)
	case *term.Compound:
		args := make([]term.Term, len(x.Args))
		for i, a := range x.Args {
			args[i] = renameVars(a, suffix)
		}
		return &term.Compound{Functor: x.Functor, Args: args}
	}
	return t
}
