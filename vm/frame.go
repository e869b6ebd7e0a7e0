package vm

import (
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Frames and choice points
// ---------------------------------------------------------------------------

// Frames and choice points share one arena. A record's index is its age:
// a parent frame always sits below its children and a choice point always
// sits above the frame it belongs to. FrameID and ChoiceID are indices
// into that arena, so comparing them compares ages.
type (
	FrameID  int
	ChoiceID int
)

const (
	NoFrame  FrameID  = -1
	NoChoice ChoiceID = -1
)

// FrameFlags mark frame state.
type FrameFlags uint16

const (
	FlagTraced   FrameFlags = 1 << iota
	FlagWatched             // a cleanup handler is attached
	FlagCatching            // catch/3 frame whose goal is running
	FlagFinished            // finalization already ran
	FlagQuery               // root frame of a query
)

// ChoiceKind classifies choice points.
type ChoiceKind uint8

const (
	ChoiceClause  ChoiceKind = iota // next clause of the frame's predicate
	ChoiceJump                      // alternative branch inside a clause
	ChoiceForeign                   // redo of a nondeterministic Go predicate
	ChoiceCatch                     // catch/3 or cleanup barrier
	ChoiceDebug                     // tracer fail port
	ChoiceTop                       // bottom of a query
	ChoiceInert                     // disabled by soft-cut; popped on backtracking
)

var choiceKindNames = [...]string{"clause", "jump", "foreign", "catch", "debug", "top", "inert"}

func (k ChoiceKind) String() string { return choiceKindNames[k] }

type frame struct {
	parent FrameID
	pred   *Predicate
	clause *Clause
	pc     int // continuation in the parent's clause
	flags  FrameFlags
	module *Module
	base   int
	nslots int
	gen    uint64
	choice ChoiceID // catch or cleanup barrier owned by this frame
	level  int
}

type choice struct {
	prev    ChoiceID
	frame   FrameID
	kind    ChoiceKind
	gmark   int
	tmark   int
	slotEnd int
	adepth  int
	clause  *Clause // next alternative
	pc      int     // branch target or catch recovery
	token   any     // foreign resume state
}

type recordKind uint8

const (
	recFrame recordKind = iota
	recChoice
)

type record struct {
	kind recordKind
	f    frame
	c    choice
}

func (m *Machine) frame(id FrameID) *frame    { return &m.recs[id].f }
func (m *Machine) choice(id ChoiceID) *choice { return &m.recs[id].c }

// recTop is the index above the newest live record.
func (m *Machine) recTop() int { return max(int(m.FR), int(m.BFR)) + 1 }

func (m *Machine) frameEnd(id FrameID) int {
	if id == NoFrame {
		return 0
	}
	f := m.frame(id)
	return f.base + f.nslots
}

// slotTop is the first slot not owned by a live frame or protected by a
// choice point.
func (m *Machine) slotTop() int {
	top := m.frameEnd(m.FR)
	if m.BFR != NoChoice {
		c := m.choice(m.BFR)
		top = max(top, c.slotEnd, m.frameEnd(c.frame))
	}
	return top
}

func (m *Machine) pushFrame(pred *Predicate, base, nslots int) FrameID {
	id := FrameID(len(m.recs))
	f := frame{
		parent: m.FR,
		pred:   pred,
		pc:     m.pc,
		base:   base,
		nslots: nslots,
		choice: NoChoice,
		module: pred.Module,
	}
	if m.FR != NoFrame {
		p := m.frame(m.FR)
		f.level = p.level + 1
		f.module = p.module
		if pred.Module.Name != AtomSystem {
			f.module = pred.Module
		}
	}
	m.recs = append(m.recs, record{kind: recFrame, f: f})
	m.ensureSlots(base + nslots)
	m.stats.MaxFrames = max(m.stats.MaxFrames, len(m.recs))
	return id
}

func (m *Machine) pushChoice(kind ChoiceKind, fr FrameID) ChoiceID {
	id := ChoiceID(len(m.recs))
	c := choice{
		prev:    m.BFR,
		frame:   fr,
		kind:    kind,
		gmark:   len(m.global),
		tmark:   len(m.trail),
		slotEnd: m.slotTop(),
		adepth:  len(m.scratch),
	}
	m.recs = append(m.recs, record{kind: recChoice, c: c})
	m.BFR = id
	m.stats.MaxFrames = max(m.stats.MaxFrames, len(m.recs))
	return id
}

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

// pendingFinal is work collected while discarding records. It runs after
// the arena is truncated so that cleanup goals execute on a consistent
// stack.
type pendingFinal struct {
	pred    *Predicate
	port    Port
	cleanup term.Term // '$cleanup'(Catcher, Goal) when the frame was watched
	prune   *choice
}

// discardAbove removes every record at index top or above. Frames that
// never finished are finalized with reason: profiler and tracer see the
// port and an attached cleanup handler runs exactly once. Foreign choice
// points are told they are pruned.
func (m *Machine) discardAbove(top int, reason Port) {
	if top >= len(m.recs) {
		return
	}
	var work []pendingFinal
	for i := len(m.recs) - 1; i >= top; i-- {
		r := &m.recs[i]
		switch r.kind {
		case recFrame:
			f := &r.f
			if f.flags&FlagFinished != 0 {
				continue
			}
			f.flags |= FlagFinished
			w := pendingFinal{pred: f.pred, port: reason}
			if f.flags&FlagWatched != 0 {
				w.cleanup = m.cleanupGoal(f, reason)
			}
			work = append(work, w)
		case recChoice:
			if r.c.kind == ChoiceForeign {
				c := r.c
				work = append(work, pendingFinal{pred: m.frame(c.frame).pred, prune: &c})
			}
		}
	}
	m.recs = m.recs[:top]
	for _, w := range work {
		switch {
		case w.prune != nil:
			m.pruneForeign(w.pred, w.prune)
		default:
			if w.port == PortFail {
				m.profile(w.pred, PortFail)
			}
			if w.cleanup != nil {
				m.runCleanup(w.cleanup)
			}
		}
	}
}

// truncate drops records that are no longer reachable from FR or BFR.
func (m *Machine) truncate(reason Port) { m.discardAbove(m.recTop(), reason) }

// cutTo removes every choice point newer than mark.
func (m *Machine) cutTo(mark ChoiceID) {
	for m.BFR > mark {
		m.BFR = m.choice(m.BFR).prev
	}
	m.truncate(PortCut)
}

// cleanupGoal builds the goal run by a watched frame's handler. The frame
// holds Goal, Catcher and Cleanup in its first three slots.
func (m *Machine) cleanupGoal(f *frame, reason Port) term.Term {
	var why term.Term
	switch reason {
	case PortExit:
		why = term.Atom("exit")
	case PortFail:
		why = term.Atom("fail")
	case PortCut:
		why = term.Atom("!")
	case PortException:
		why = term.Comp("exception", m.ballOrUnknown())
	default:
		why = term.Atom("external_exception")
	}
	vars := newExportVars()
	catcher := m.exportTerm(m.slots[f.base+1], vars)
	goal := m.exportTerm(m.slots[f.base+2], vars)
	return term.Comp("$cleanup", catcher, why, goal)
}

func (m *Machine) ballOrUnknown() term.Term {
	if m.ball != nil {
		return m.ball
	}
	return term.Variable("_")
}

// runCleanup runs a handler as an isolated query. Its bindings are
// discarded; failure and errors are logged.
func (m *Machine) runCleanup(t term.Term) {
	c := t.(*term.Compound)
	goal := term.Comp("->", term.Comp("=", c.Args[0], c.Args[1]), c.Args[2])
	goal = term.Comp(";", goal, term.True)
	q, err := m.OpenQuery(goal)
	if err != nil {
		m.log.Errorf("cleanup handler: %s", err)
		return
	}
	defer q.Close()
	ok, err := q.Next()
	switch {
	case err != nil:
		m.log.Warningf("cleanup handler raised: %s", err)
	case !ok:
		m.log.Debugf("cleanup handler failed: %s", term.Format(c.Args[2]))
	}
}

// FrameInfo describes a frame for tracers and debuggers.
type FrameInfo struct {
	ID        FrameID
	Predicate string
	Level     int
	Goal      term.Term
}

func (m *Machine) frameInfo(id FrameID) FrameInfo {
	f := m.frame(id)
	info := FrameInfo{ID: id, Predicate: m.reg.Indicator(f.pred), Level: f.level}
	vars := newExportVars()
	args := make([]term.Term, f.pred.Arity)
	for i := range args {
		args[i] = m.exportTerm(m.slots[f.base+i], vars)
	}
	info.Goal = term.Comp(m.reg.AtomName(f.pred.Name), args...)
	return info
}

// Backtrace lists the active frames from the current one outwards.
func (m *Machine) Backtrace() []FrameInfo {
	var out []FrameInfo
	for id := m.FR; id != NoFrame; id = m.frame(id).parent {
		out = append(out, m.frameInfo(id))
	}
	return out
}
