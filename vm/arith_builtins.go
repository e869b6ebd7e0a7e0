package vm

import (
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Arithmetic predicates
// ---------------------------------------------------------------------------

// These back the inline arithmetic instructions when a goal is called
// through call/N or its expression is not known at compile time.
func registerArithBuiltins(r *Registry) {
	// is/2 - evaluate and unify
	r.DefineForeign("is", 2, func(c *ForeignContext, a []Word) (bool, error) {
		n, err := c.m.eval(a[1])
		if err != nil {
			return false, err
		}
		w, ok := c.m.numberWord(n)
		if !ok {
			return false, c.m.overflowErr()
		}
		return c.m.unify(a[0], w), nil
	})

	for name, op := range map[string]Opcode{
		"<": OpALT, "=<": OpALE, ">": OpAGT, ">=": OpAGE, "=:=": OpAEQ, "=\\=": OpANE,
	} {
		r.DefineForeign(name, 2, func(c *ForeignContext, a []Word) (bool, error) {
			x, err := c.m.eval(a[0])
			if err != nil {
				return false, err
			}
			y, err := c.m.eval(a[1])
			if err != nil {
				return false, err
			}
			return arithCompare(op, x, y), nil
		})
	}

	// succ/2 - successor of a natural number, in either direction
	r.DefineForeign("succ", 2, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		if x := m.deref(a[0]); !isVar(x) {
			i, err := c.natural(x)
			if err != nil {
				return false, err
			}
			if y := m.deref(a[1]); !isVar(y) {
				if _, err := c.natural(y); err != nil {
					return false, err
				}
			}
			n, err := numAdd(IntNumber(i), IntNumber(1))
			if err != nil {
				return false, err
			}
			w, ok := m.numberWord(n)
			if !ok {
				return false, m.overflowErr()
			}
			return m.unify(a[1], w), nil
		}
		y := m.deref(a[1])
		if isVar(y) {
			return false, InstantiationError()
		}
		j, err := c.natural(y)
		if err != nil || j == 0 {
			return false, err
		}
		return m.unify(a[0], MakeInt(j-1)), nil
	})

	// plus/3 - X + Y = Z with any two bound
	r.DefineForeign("plus", 3, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		var vals [3]Number
		unbound := -1
		for i, w := range a {
			w = m.deref(w)
			if isVar(w) {
				if unbound >= 0 {
					return false, InstantiationError()
				}
				unbound = i
				continue
			}
			if !m.isInteger(w) {
				return false, TypeError("integer", m.Export(w))
			}
			vals[i], _ = m.numberOf(w)
		}
		var res Number
		var err error
		switch unbound {
		case 0:
			res, err = numSub(vals[2], vals[1])
		case 1:
			res, err = numSub(vals[2], vals[0])
		default:
			res, err = numAdd(vals[0], vals[1])
			if unbound < 0 {
				return err == nil && compareValue(res, vals[2]) == 0, err
			}
		}
		if err != nil {
			return false, err
		}
		w, ok := m.numberWord(res)
		if !ok {
			return false, m.overflowErr()
		}
		return m.unify(a[unbound], w), nil
	})
}

// natural reads a non-negative integer.
func (c *ForeignContext) natural(w Word) (int64, error) {
	i, err := c.IntArg(w)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, TypeError("not_less_than_zero", term.Int(i))
	}
	return i, nil
}
