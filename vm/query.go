package vm

import (
	"strings"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

type queryState uint8

const (
	queryFresh queryState = iota
	queryActive
	queryDone
	queryClosed
)

// savedRegs is the register file of the machine around a query.
type savedRegs struct {
	FR          FrameID
	BFR         ChoiceID
	base        int
	pc          int
	code        []byte
	clause      *Clause
	pred        *Predicate
	argp        argPtr
	abase       int
	scratchBase int
	scratch     int
	nums        []Number
	ball        term.Term
	halt        *HaltError
}

// Query is an open goal on a machine. Queries nest: a query opened while
// another is running (from a foreign predicate or a cleanup handler) must
// be closed before the outer one continues.
type Query struct {
	m     *Machine
	goal  term.Term
	vars  map[term.Variable]Word
	top   ChoiceID
	frame FrameID
	state queryState
	outer *Query
	saved savedRegs
}

// OpenQuery starts goal. Variables in goal can be read back with Bindings
// after each solution.
func (m *Machine) OpenQuery(goal term.Term) (*Query, error) {
	q := &Query{m: m, goal: goal, vars: make(map[term.Variable]Word), outer: m.query}
	q.saved = savedRegs{
		FR: m.FR, BFR: m.BFR, base: m.base, pc: m.pc, code: m.code,
		clause: m.clause, pred: m.pred, argp: m.argp, abase: m.abase,
		scratchBase: m.scratchBase, scratch: len(m.scratch),
		nums: append([]Number(nil), m.nums...), ball: m.ball, halt: m.halt,
	}
	m.scratchBase = len(m.scratch)

	if !m.require(StackLocal, 3) {
		err := m.overflowErr()
		q.restoreRegs()
		return nil, err
	}
	q.top = m.pushChoice(ChoiceTop, m.FR)
	g, ok := m.reserveImport(goal, q.vars)
	if !ok {
		err := m.overflowErr()
		q.discard()
		return nil, err
	}
	base := m.slotTop()
	q.frame = m.pushFrame(m.reg.queryPred, base, 1)
	qf := m.frame(q.frame)
	qf.flags |= FlagQuery
	qf.clause = m.reg.queryPred.FirstClause()
	if q.saved.FR == NoFrame {
		qf.module = m.reg.User()
	}
	m.slots[base] = g
	m.setFrame(q.frame)
	m.pc = 0
	m.bodyArgs()
	m.ball = nil
	m.halt = nil
	m.query = q
	return q, nil
}

// Next searches for the next solution. It returns false when there are no
// more. An uncaught exception is returned as *UncaughtError, stack
// exhaustion as *ErrStackExhausted and halt/1 as *HaltError; the query is
// finished in all three cases.
func (q *Query) Next() (bool, error) {
	m := q.m
	switch {
	case q.state == queryClosed:
		return false, ErrQueryClosed
	case q.state == queryDone:
		return false, nil
	case m.query != q:
		return false, ErrNestedQuery
	}
	start := actNext
	if q.state == queryActive {
		start = actFail
	}
	q.state = queryActive
	switch m.run(start) {
	case actExitQuery:
		return true, nil
	case actNoMore:
		q.state = queryDone
		return false, nil
	case actUncaught:
		q.state = queryDone
		return false, &UncaughtError{Ball: m.ball}
	case actHalt:
		q.state = queryDone
		return false, m.halt
	default:
		q.state = queryDone
		err := m.fatal
		if err == nil {
			err = ErrBadBytecode
		}
		return false, err
	}
}

// Cut discards the remaining alternatives of the current solution, keeping
// its bindings.
func (q *Query) Cut() {
	m := q.m
	if q.state != queryActive || m.query != q {
		return
	}
	m.FR = q.frame
	m.cutTo(q.top)
	q.state = queryDone
}

// Close ends the query, discarding its alternatives and undoing its
// bindings, and restores the machine to its state before OpenQuery.
func (q *Query) Close() {
	if q.state == queryClosed {
		return
	}
	q.discard()
	q.state = queryClosed
}

func (q *Query) discard() {
	m := q.m
	top := m.choice(q.top)
	gmark, tmark := top.gmark, top.tmark
	m.FR = q.saved.FR
	m.BFR = q.top
	m.discardAbove(int(q.top)+1, PortCut)
	m.BFR = q.saved.BFR
	m.recs = m.recs[:q.top]
	m.undo(tmark)
	m.global = m.global[:gmark]
	m.fatal = nil
	q.restoreRegs()
	m.relaxMargins()
}

func (q *Query) restoreRegs() {
	m, s := q.m, &q.saved
	m.FR, m.BFR, m.base, m.pc = s.FR, s.BFR, s.base, s.pc
	m.code, m.clause, m.pred = s.code, s.clause, s.pred
	m.argp, m.abase = s.argp, s.abase
	m.scratch = m.scratch[:s.scratch]
	m.scratchBase = s.scratchBase
	m.nums = append(m.nums[:0], s.nums...)
	m.ball, m.halt = s.ball, s.halt
	m.query = q.outer
}

// Bindings returns the values of the goal's named variables. Variables
// whose name starts with an underscore are left out.
func (q *Query) Bindings() map[string]term.Term {
	vars := newExportVars()
	out := make(map[string]term.Term, len(q.vars))
	for name, w := range q.vars {
		if strings.HasPrefix(string(name), "_") {
			continue
		}
		out[string(name)] = q.m.exportTerm(w, vars)
	}
	return out
}

// Instance returns the goal with the current bindings applied.
func (q *Query) Instance() term.Term {
	return q.m.Export(q.m.slots[q.m.frame(q.frame).base])
}

// instantiate replaces the variables of t that occur in the goal with
// their current values.
func (q *Query) instantiate(t term.Term, vars *exportVars) term.Term {
	switch x := t.(type) {
	case term.Variable:
		if w, ok := q.vars[x]; ok {
			return q.m.exportTerm(w, vars)
		}
	case *term.Compound:
		args := make([]term.Term, len(x.Args))
		for i, a := range x.Args {
			args[i] = q.instantiate(a, vars)
		}
		return &term.Compound{Functor: x.Functor, Args: args}
	}
	return t
}

// ---------------------------------------------------------------------------
// Convenience
// ---------------------------------------------------------------------------

// Solve runs goal and calls fn with the bindings of each solution until fn
// returns false or no solutions remain.
func (m *Machine) Solve(goal term.Term, fn func(map[string]term.Term) bool) error {
	q, err := m.OpenQuery(goal)
	if err != nil {
		return err
	}
	defer q.Close()
	for {
		ok, err := q.Next()
		if err != nil || !ok {
			return err
		}
		if !fn(q.Bindings()) {
			return nil
		}
	}
}

// Once returns the bindings of the first solution of goal.
func (m *Machine) Once(goal term.Term) (map[string]term.Term, bool, error) {
	var out map[string]term.Term
	err := m.Solve(goal, func(b map[string]term.Term) bool {
		out = b
		return false
	})
	return out, out != nil, err
}
