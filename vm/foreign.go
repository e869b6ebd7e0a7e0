package vm

import (
	"io"
	"strings"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Foreign predicates
// ---------------------------------------------------------------------------

// ForeignFunc is a deterministic Go predicate. It returns true on success
// and false on failure. A non-nil error raises an exception: a *ThrowError
// carries its own ball, any other error becomes a system_error.
type ForeignFunc func(ctx *ForeignContext, args []Word) (bool, error)

// NondetFunc is a nondeterministic Go predicate. It is called with control
// FirstCall, then Redo on backtracking, and finally Pruned (with nil args)
// if a cut removes it while alternatives remain.
type NondetFunc func(ctx *ForeignContext, args []Word) (Retry, error)

// Control says why a nondeterministic predicate is being called.
type Control uint8

const (
	FirstCall Control = iota
	Redo
	Pruned
)

type retryKind uint8

const (
	retryFail retryKind = iota
	retryExit
	retryMore
)

// Retry is the answer of a nondeterministic predicate.
type Retry struct {
	kind  retryKind
	token any
}

var (
	// RetryFail reports that no (more) solutions exist.
	RetryFail = Retry{kind: retryFail}
	// RetryExit reports a last solution.
	RetryExit = Retry{kind: retryExit}
)

// RetryWith reports a solution with more to come. token is handed back
// through ForeignContext.Token on redo.
func RetryWith(token any) Retry { return Retry{kind: retryMore, token: token} }

// ForeignContext gives a Go predicate access to the machine running it.
// It is valid only during the call.
type ForeignContext struct {
	m       *Machine
	frame   FrameID
	pred    *Predicate
	control Control
	token   any
}

// Control returns the reason for the call.
func (c *ForeignContext) Control() Control { return c.control }

// Token returns the resume token of a redo or prune.
func (c *ForeignContext) Token() any { return c.token }

// Machine returns the running machine.
func (c *ForeignContext) Machine() *Machine { return c.m }

// Out is where output predicates write.
func (c *ForeignContext) Out() io.Writer { return c.m.Out }

// Module returns the context module of the calling frame.
func (c *ForeignContext) Module() *Module {
	if c.frame == NoFrame {
		return c.m.reg.User()
	}
	return c.m.frame(c.frame).module
}

// Deref follows variable bindings.
func (c *ForeignContext) Deref(w Word) Word { return c.m.deref(w) }

// IsVar reports whether w is an unbound variable.
func (c *ForeignContext) IsVar(w Word) bool { return isVar(c.m.deref(w)) }

// Unify unifies two machine terms.
func (c *ForeignContext) Unify(a, b Word) bool { return c.m.unify(a, b) }

// Unifiable reports whether a and b unify, leaving no bindings.
func (c *ForeignContext) Unifiable(a, b Word) bool { return c.m.unifiable(a, b) }

// Get copies w out of the machine.
func (c *ForeignContext) Get(w Word) term.Term { return c.m.Export(w) }

// Put builds t on the global stack.
func (c *ForeignContext) Put(t term.Term) (Word, error) {
	w, ok := c.m.reserveImport(t, make(map[term.Variable]Word))
	if !ok {
		return 0, c.m.overflowErr()
	}
	return w, nil
}

// UnifyTerm unifies w with the Go term t.
func (c *ForeignContext) UnifyTerm(w Word, t term.Term) (bool, error) {
	v, err := c.Put(t)
	if err != nil {
		return false, err
	}
	return c.m.unify(w, v), nil
}

// Atom returns the name of an atom.
func (c *ForeignContext) Atom(w Word) (string, bool) {
	w = c.m.deref(w)
	if w.Tag() != TagAtom {
		return "", false
	}
	return c.m.reg.AtomName(w.Atom()), true
}

// NewAtom returns the word of atom name.
func (c *ForeignContext) NewAtom(name string) Word { return MakeAtom(c.m.reg.Atom(name)) }

// Int returns the value of an integer that fits an int64.
func (c *ForeignContext) Int(w Word) (int64, bool) {
	n, ok := c.m.numberOf(c.m.deref(w))
	if !ok || n.Kind != NumInt {
		return 0, false
	}
	return n.I, true
}

// Number returns the value of a number.
func (c *ForeignContext) Number(w Word) (Number, bool) { return c.m.numberOf(c.m.deref(w)) }

// Text returns the text of an atom, string, number, or code or character
// list.
func (c *ForeignContext) Text(w Word) (string, bool) { return c.m.textOf(w) }

// Call runs goal as a nested query and returns its first solution. The
// solution's bindings are undone when Call returns; use the returned
// instance of goal to read them.
func (c *ForeignContext) Call(goal term.Term) (term.Term, bool, error) {
	q, err := c.m.OpenQuery(goal)
	if err != nil {
		return nil, false, err
	}
	defer q.Close()
	ok, err := q.Next()
	if err != nil {
		return nil, false, nestedError(err)
	}
	if !ok {
		return nil, false, nil
	}
	return q.Instance(), true, nil
}

// overflowErr converts a failed require into a Go error.
func (m *Machine) overflowErr() error {
	if m.fatal != nil {
		return m.fatal
	}
	return Throw(m.ball)
}

// textOf reads text-like terms.
func (m *Machine) textOf(w Word) (string, bool) {
	w = m.deref(w)
	switch w.Tag() {
	case TagAtom:
		return m.reg.AtomName(w.Atom()), true
	case TagInt:
		return term.Format(term.Int(w.IntValue())), true
	case TagIndirect:
		if m.isString(w) {
			return m.stringValue(w), true
		}
		return term.Format(m.Export(w)), true
	case TagCompound:
		var sb strings.Builder
		for w.Tag() == TagCompound && m.functorOf(w) == FunctorDot {
			e := m.deref(m.arg(w, 0))
			switch {
			case e.Tag() == TagInt && e.IntValue() >= 0 && e.IntValue() <= 0x10FFFF:
				sb.WriteRune(rune(e.IntValue()))
			case e.Tag() == TagAtom:
				name := m.reg.AtomName(e.Atom())
				if len([]rune(name)) != 1 {
					return "", false
				}
				sb.WriteString(name)
			default:
				return "", false
			}
			w = m.deref(m.arg(w, 1))
		}
		if w != MakeAtom(AtomNil) {
			return "", false
		}
		return sb.String(), true
	}
	return "", false
}
