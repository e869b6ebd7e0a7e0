package vm

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/horn/reader"
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Atoms and text
// ---------------------------------------------------------------------------

func registerAtomBuiltins(r *Registry) {
	// atom_codes/2 and atom_chars/2 - atom to and from code or char lists
	r.DefineForeign("atom_codes", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.textConvert(a[0], a[1], c.codeList, c.atomWord)
	})
	r.DefineForeign("atom_chars", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.textConvert(a[0], a[1], c.charList, c.atomWord)
	})
	r.DefineForeign("number_codes", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.textConvert(a[0], a[1], c.codeList, c.numberFromText)
	})
	r.DefineForeign("number_chars", 2, func(c *ForeignContext, a []Word) (bool, error) {
		return c.textConvert(a[0], a[1], c.charList, c.numberFromText)
	})

	// char_code/2
	r.DefineForeign("char_code", 2, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		if ch := m.deref(a[0]); !isVar(ch) {
			s, err := c.AtomArg(ch)
			if err != nil {
				return false, err
			}
			if utf8.RuneCountInString(s) != 1 {
				return false, TypeError("character", term.Atom(s))
			}
			r, _ := utf8.DecodeRuneInString(s)
			return m.unify(a[1], MakeInt(int64(r))), nil
		}
		code, err := c.IntArg(a[1])
		if err != nil {
			return false, err
		}
		if code < 0 || code > utf8.MaxRune {
			return false, Throw(representationError("character_code"))
		}
		return m.unify(a[0], c.NewAtom(string(rune(code)))), nil
	})

	// atom_length/2
	r.DefineForeign("atom_length", 2, func(c *ForeignContext, a []Word) (bool, error) {
		s, err := c.TextArg(a[0])
		if err != nil {
			return false, err
		}
		if l := c.m.deref(a[1]); !isVar(l) {
			if _, err := c.IntArg(l); err != nil {
				return false, err
			}
		}
		return c.m.unify(a[1], MakeInt(int64(utf8.RuneCountInString(s)))), nil
	})

	// atom_number/2 - fails when the atom is not a number
	r.DefineForeign("atom_number", 2, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		if at := m.deref(a[0]); !isVar(at) {
			s, err := c.AtomArg(at)
			if err != nil {
				return false, err
			}
			n, ok := parseNumber(s)
			if !ok {
				return false, nil
			}
			w, ok := m.numberWord(n)
			if !ok {
				return false, m.overflowErr()
			}
			return m.unify(a[1], w), nil
		}
		n := m.deref(a[1])
		switch {
		case isVar(n):
			return false, InstantiationError()
		case !m.isNumber(n):
			return false, TypeError("number", m.Export(n))
		}
		s, _ := m.textOf(n)
		return m.unify(a[0], c.NewAtom(s)), nil
	})

	// atom_string/2
	r.DefineForeign("atom_string", 2, func(c *ForeignContext, a []Word) (bool, error) {
		if at := c.m.deref(a[0]); !isVar(at) {
			s, err := c.TextArg(at)
			if err != nil {
				return false, err
			}
			w, err := c.NewString(s)
			if err != nil {
				return false, err
			}
			return c.m.unify(a[1], w), nil
		}
		s, err := c.TextArg(a[1])
		if err != nil {
			return false, err
		}
		return c.m.unify(a[0], c.NewAtom(s)), nil
	})

	// upcase_atom/2 and downcase_atom/2
	for name, conv := range map[string]func(string) string{
		"upcase_atom":   strings.ToUpper,
		"downcase_atom": strings.ToLower,
	} {
		r.DefineForeign(name, 2, func(c *ForeignContext, a []Word) (bool, error) {
			s, err := c.TextArg(a[0])
			if err != nil {
				return false, err
			}
			return c.m.unify(a[1], c.NewAtom(conv(s))), nil
		})
	}

	// atomic_list_concat/2
	r.DefineForeign("atomic_list_concat", 2, func(c *ForeignContext, a []Word) (bool, error) {
		parts, err := c.atomicParts(a[0])
		if err != nil {
			return false, err
		}
		return c.m.unify(a[1], c.NewAtom(strings.Join(parts, ""))), nil
	})

	// atomic_list_concat/3 - join with a separator, or split when the list
	// is unbound
	r.DefineForeign("atomic_list_concat", 3, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		sep, err := c.TextArg(a[1])
		if err != nil {
			return false, err
		}
		parts, err := c.atomicParts(a[0])
		if err == nil {
			return m.unify(a[2], c.NewAtom(strings.Join(parts, sep))), nil
		}
		whole := m.deref(a[2])
		if sep == "" || isVar(whole) {
			return false, err
		}
		s, err := c.TextArg(whole)
		if err != nil {
			return false, err
		}
		fields := strings.Split(s, sep)
		elems := make([]Word, len(fields))
		for i, f := range fields {
			elems[i] = c.NewAtom(f)
		}
		l, err := c.MakeList(elems)
		if err != nil {
			return false, err
		}
		return m.unify(a[0], l), nil
	})

	// term_to_atom/2 - write a term to an atom or read it back
	r.DefineForeign("term_to_atom", 2, func(c *ForeignContext, a []Word) (bool, error) {
		m := c.m
		if t := m.deref(a[0]); !isVar(t) || isVar(m.deref(a[1])) {
			text := term.FormatWith(c.Get(t), term.WriteOptions{Quoted: true, Ops: m.reg.Ops()})
			return m.unify(a[1], c.NewAtom(text)), nil
		}
		s, err := c.TextArg(a[1])
		if err != nil {
			return false, err
		}
		t, _, err := reader.NewParserWithOps(s+" .", m.reg.Ops()).Next()
		if err != nil {
			return false, syntaxError(err)
		}
		return c.UnifyTerm(a[0], t)
	})
}

// textConvert relates a text-valued term to its list form. toList renders
// the text of the first argument when it is bound; otherwise fromText
// builds it from the list.
func (c *ForeignContext) textConvert(x, list Word, toList func(string) (Word, error), fromText func(string) (Word, error)) (bool, error) {
	m := c.m
	if xv := m.deref(x); !isVar(xv) {
		if xv.Tag() == TagCompound {
			return false, TypeError("atomic", m.Export(xv))
		}
		s, _ := m.textOf(xv)
		l, err := toList(s)
		if err != nil {
			return false, err
		}
		return m.unify(list, l), nil
	}
	lv := m.deref(list)
	s, ok := "", lv == MakeAtom(AtomNil)
	if lv.Tag() == TagCompound {
		s, ok = m.textOf(lv)
	}
	if !ok {
		if _, err := m.listWords(list); err != nil {
			return false, err
		}
		return false, InstantiationError()
	}
	w, err := fromText(s)
	if err != nil {
		return false, err
	}
	return m.unify(x, w), nil
}

func (c *ForeignContext) codeList(s string) (Word, error) {
	elems := make([]Word, 0, len(s))
	for _, r := range s {
		elems = append(elems, MakeInt(int64(r)))
	}
	return c.MakeList(elems)
}

func (c *ForeignContext) charList(s string) (Word, error) {
	elems := make([]Word, 0, len(s))
	for _, r := range s {
		elems = append(elems, c.NewAtom(string(r)))
	}
	return c.MakeList(elems)
}

func (c *ForeignContext) atomWord(s string) (Word, error) { return c.NewAtom(s), nil }

func (c *ForeignContext) numberFromText(s string) (Word, error) {
	n, ok := parseNumber(s)
	if !ok {
		return 0, Throw(isoError(term.Comp("syntax_error", term.Atom("illegal_number"))))
	}
	w, ok := c.m.numberWord(n)
	if !ok {
		return 0, c.m.overflowErr()
	}
	return w, nil
}

// atomicParts reads a proper list of atomic terms as text.
func (c *ForeignContext) atomicParts(w Word) ([]string, error) {
	elems, err := c.m.listWords(w)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		e = c.m.deref(e)
		switch {
		case isVar(e):
			return nil, InstantiationError()
		case e.Tag() == TagCompound:
			return nil, TypeError("atomic", c.m.Export(e))
		}
		parts[i], _ = c.m.textOf(e)
	}
	return parts, nil
}

// parseNumber reads Prolog number syntax, with an optional leading minus.
func parseNumber(s string) (Number, bool) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	t, _, err := reader.ParseTerm(s)
	if err != nil {
		return Number{}, false
	}
	n, ok := literalNumber(t)
	if !ok {
		return Number{}, false
	}
	if neg {
		n, _ = numNeg(n)
	}
	return n, true
}

// syntaxError converts a reader error into a syntax_error ball.
func syntaxError(err error) error {
	return Throw(isoError(term.Comp("syntax_error", term.String(err.Error()))))
}
