package term

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WriteOptions controls term output.
type WriteOptions struct {
	Quoted    bool     // quote atoms and strings so the output reads back
	IgnoreOps bool     // write operators in canonical f(A,B) form
	Ops       *OpTable // operator table; nil means DefaultOps
}

var defaultOps = DefaultOps()

// Format returns the quoted (writeq) text of t.
func Format(t Term) string {
	return FormatWith(t, WriteOptions{Quoted: true})
}

// Text returns the unquoted (write) text of t.
func Text(t Term) string {
	return FormatWith(t, WriteOptions{})
}

// FormatWith renders t with the given options.
func FormatWith(t Term, opts WriteOptions) string {
	if opts.Ops == nil {
		opts.Ops = defaultOps
	}
	w := &writer{opts: opts}
	w.term(t, 1200)
	return w.sb.String()
}

type writer struct {
	sb   strings.Builder
	opts WriteOptions
}

// emit appends s, inserting a space when two tokens would otherwise glue.
func (w *writer) emit(s string) {
	if s == "" {
		return
	}
	if w.sb.Len() > 0 {
		prev, _ := utf8.DecodeLastRuneInString(w.sb.String())
		next, _ := utf8.DecodeRuneInString(s)
		if glues(prev, next) {
			w.sb.WriteByte(' ')
		}
	}
	w.sb.WriteString(s)
}

func glues(a, b rune) bool {
	if isAlnum(a) && isAlnum(b) {
		return true
	}
	return isSymbolChar(a) && isSymbolChar(b)
}

func (w *writer) term(t Term, max int) {
	switch x := t.(type) {
	case Variable:
		w.emit(string(x))
	case Int:
		w.emit(strconv.FormatInt(int64(x), 10))
	case BigInt:
		w.emit(x.V.String())
	case Float:
		w.emit(FormatFloat(float64(x)))
	case String:
		if w.opts.Quoted {
			w.emit(quote(string(x), '"'))
		} else {
			w.emit(string(x))
		}
	case Atom:
		w.atom(x, max)
	case *Compound:
		w.compound(x, max)
	default:
		w.emit("<?>")
	}
}

func (w *writer) atom(a Atom, max int) {
	s := w.atomText(a)
	if max < 1200 && w.isOp(a) {
		w.emit("(")
		w.sb.WriteString(s)
		w.sb.WriteString(")")
		return
	}
	w.emit(s)
}

func (w *writer) isOp(a Atom) bool {
	_, i := w.opts.Ops.Infix[a]
	_, p := w.opts.Ops.Prefix[a]
	_, q := w.opts.Ops.Postfix[a]
	return i || p || q
}

func (w *writer) atomText(a Atom) string {
	if w.opts.Quoted {
		return QuoteAtom(a)
	}
	return string(a)
}

func (w *writer) compound(c *Compound, max int) {
	if c.Functor == Dot && len(c.Args) == 2 {
		w.list(c)
		return
	}
	if c.Functor == Curly && len(c.Args) == 1 && !w.opts.IgnoreOps {
		w.emit("{")
		w.term(c.Args[0], 1200)
		w.sb.WriteString("}")
		return
	}
	if !w.opts.IgnoreOps {
		if len(c.Args) == 2 {
			if op, ok := w.opts.Ops.Infix[c.Functor]; ok {
				w.infix(c, op, max)
				return
			}
		}
		if len(c.Args) == 1 {
			if op, ok := w.opts.Ops.Prefix[c.Functor]; ok {
				w.prefix(c, op, max)
				return
			}
			if op, ok := w.opts.Ops.Postfix[c.Functor]; ok {
				w.postfix(c, op, max)
				return
			}
		}
	}
	w.emit(w.atomText(c.Functor))
	w.sb.WriteString("(")
	for i, a := range c.Args {
		if i > 0 {
			w.sb.WriteString(",")
		}
		w.term(a, 999)
	}
	w.sb.WriteString(")")
}

func isNumber(t Term) bool {
	switch t.(type) {
	case Int, Float, BigInt:
		return true
	}
	return false
}

func (w *writer) infix(c *Compound, op Op, max int) {
	l, r := op.ArgPriorities()
	open := op.Priority > max
	if open {
		w.emit("(")
	}
	w.term(c.Args[0], l)
	name := w.atomText(c.Functor)
	switch {
	case c.Functor == ",":
		w.sb.WriteString(",")
	case isAlnum(firstRune(name)):
		w.sb.WriteString(" ")
		w.sb.WriteString(name)
		w.sb.WriteString(" ")
	default:
		w.emit(name)
	}
	if isNegative(c.Args[1]) {
		w.sb.WriteString(" ")
	}
	w.term(c.Args[1], r)
	if open {
		w.sb.WriteString(")")
	}
}

func (w *writer) prefix(c *Compound, op Op, max int) {
	_, r := op.ArgPriorities()
	open := op.Priority > max
	if open {
		w.emit("(")
	}
	w.emit(w.atomText(c.Functor))
	arg := c.Args[0]
	if isNumber(arg) || isOpAtom(w, arg) {
		w.sb.WriteString(" ")
	}
	w.term(arg, r)
	if open {
		w.sb.WriteString(")")
	}
}

func isOpAtom(w *writer, t Term) bool {
	a, ok := t.(Atom)
	return ok && w.isOp(a)
}

func (w *writer) postfix(c *Compound, op Op, max int) {
	l, _ := op.ArgPriorities()
	open := op.Priority > max
	if open {
		w.emit("(")
	}
	w.term(c.Args[0], l)
	w.emit(w.atomText(c.Functor))
	if open {
		w.sb.WriteString(")")
	}
}

func (w *writer) list(c *Compound) {
	w.emit("[")
	w.term(c.Args[0], 999)
	t := c.Args[1]
	for {
		if n, ok := t.(*Compound); ok && n.Functor == Dot && len(n.Args) == 2 {
			w.sb.WriteString(",")
			w.term(n.Args[0], 999)
			t = n.Args[1]
			continue
		}
		if a, ok := t.(Atom); ok && a == Nil {
			break
		}
		w.sb.WriteString("|")
		w.term(t, 999)
		break
	}
	w.sb.WriteString("]")
}

func isNegative(t Term) bool {
	switch x := t.(type) {
	case Int:
		return x < 0
	case Float:
		return x < 0
	case BigInt:
		return x.V.Sign() < 0
	}
	return false
}

// FormatFloat renders a float so that it always reads back as a float.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 15, 64)
	if g, err := strconv.ParseFloat(s, 64); err != nil || g != f {
		s = strconv.FormatFloat(f, 'g', -1, 64)
	}
	if strings.ContainsAny(s, ".eEn") {
		if i := strings.IndexAny(s, "eE"); i >= 0 && !strings.Contains(s[:i], ".") {
			s = s[:i] + ".0" + s[i:]
		}
		return s
	}
	return s + ".0"
}

// QuoteAtom returns the atom text, quoted when it would not read back as
// the same atom.
func QuoteAtom(a Atom) string {
	s := string(a)
	if atomNeedsNoQuotes(s) {
		return s
	}
	return quote(s, '\'')
}

func atomNeedsNoQuotes(s string) bool {
	switch s {
	case "[]", "!", ";", "{}", ",", "|":
		return s != "," && s != "|"
	case "":
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	if unicode.IsLower(r) {
		for _, c := range s {
			if !isAlnum(c) {
				return false
			}
		}
		return true
	}
	for _, c := range s {
		if !isSymbolChar(c) {
			return false
		}
	}
	return true
}

func quote(s string, q byte) string {
	var sb strings.Builder
	sb.WriteByte(q)
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r == rune(q) {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(q)
	return sb.String()
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func isAlnum(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsSymbolChar reports whether r is a Prolog symbol character.
func IsSymbolChar(r rune) bool { return isSymbolChar(r) }

func isSymbolChar(r rune) bool {
	return strings.ContainsRune(`+-*/\^<>=~:.?@#&$`, r)
}
