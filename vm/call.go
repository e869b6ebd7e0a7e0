package vm

import (
	"errors"
	"math"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Call and exit ports
// ---------------------------------------------------------------------------

// call transfers control to p with its arguments at m.abase. With depart
// set the current frame is reused when nothing can backtrack into it.
func (m *Machine) call(p *Predicate, depart bool) action {
	if a := m.poll(); a != actNext {
		return a
	}
	m.stats.Calls++
	if !p.IsDefined() {
		sp := m.reg.Lookup(m.reg.System(), p.Functor)
		if sp == nil || !sp.IsDefined() {
			return m.unknown(p)
		}
		p = sp
	}
	traced := m.traced(p)
	if depart && m.BFR < ChoiceID(m.FR) && !traced && !p.IsForeign() {
		cur := m.frame(m.FR)
		if cur.flags&(FlagTraced|FlagQuery|FlagWatched|FlagCatching) == 0 {
			copy(m.slots[m.base:m.base+p.Arity], m.slots[m.abase:m.abase+p.Arity])
			m.profile(cur.pred, PortExit)
			cur.pred = p
			cur.clause = nil
			cur.flags = 0
			cur.choice = NoChoice
			if p.Module.Name != AtomSystem {
				cur.module = p.Module
			}
			m.stats.Departs++
			return m.enter(m.FR)
		}
	}
	if !m.require(StackLocal, p.Arity+1) {
		return m.overflow()
	}
	id := m.pushFrame(p, m.abase, p.Arity)
	m.FR = id
	m.base = m.abase
	if traced {
		m.frame(id).flags |= FlagTraced
	}
	if p.IsForeign() {
		return m.callForeign(id)
	}
	return m.enter(id)
}

// unknown applies the unknown-procedure policy before any frame exists.
func (m *Machine) unknown(p *Predicate) action {
	switch m.opts.Unknown {
	case UnknownFail:
		return actFail
	case UnknownWarning:
		m.log.Warningf("unknown procedure %s", m.reg.Indicator(p))
		return actFail
	}
	m.ball = existenceError("procedure", indicator(m.reg.AtomName(p.Name), p.Arity))
	return actThrow
}

// enter runs the call port of frame id and selects its first clause.
func (m *Machine) enter(id FrameID) action {
	f := m.frame(id)
	f.gen = m.reg.Generation()
	m.profile(f.pred, PortCall)
	if f.flags&FlagTraced != 0 {
		if !m.require(StackLocal, 1) {
			return m.overflow()
		}
		m.pushChoice(ChoiceDebug, id)
		switch m.port(id, PortCall) {
		case TraceFail:
			return actFail
		case TraceIgnore:
			m.FR = id
			return m.exit()
		}
	}
	return m.selectClause(id, m.frame(id).pred.FirstClause())
}

// selectClause runs the first candidate at or after from, leaving a choice
// point when another candidate remains.
func (m *Machine) selectClause(id FrameID, from *Clause) action {
	f := m.frame(id)
	p := f.pred
	var key Word
	if p.Arity > 0 {
		key = m.indexKey(m.slots[f.base])
	}
	cl, alt := p.Indexer.SelectClause(key, from, f.gen)
	if cl == nil {
		return actFail
	}
	if alt != nil {
		if !m.require(StackLocal, 1) {
			return m.overflow()
		}
		m.choice(m.pushChoice(ChoiceClause, id)).clause = alt
	}
	return m.runClause(id, cl)
}

func (m *Machine) runClause(id FrameID, cl *Clause) action {
	f := m.frame(id)
	n := max(f.pred.Arity, cl.NVars)
	if grow := n - f.nslots; grow > 0 && !m.require(StackLocal, grow) {
		return m.overflow()
	}
	f = m.frame(id)
	f.clause = cl
	f.nslots = n
	m.ensureSlots(f.base + n)
	m.setFrame(id)
	m.pc = 0
	m.headArgs()
	return actNext
}

// exit leaves the current frame and resumes its parent. A frame without
// newer choice points is finalized and popped.
func (m *Machine) exit() action {
	id := m.FR
	f := m.frame(id)
	if f.flags&FlagTraced != 0 {
		switch m.port(id, PortExit) {
		case TraceFail:
			return actFail
		case TraceRetry:
			return m.retryFrame(id)
		}
		f = m.frame(id)
	}
	m.profile(f.pred, PortExit)
	pc := f.pc
	det := m.BFR < ChoiceID(id)
	m.setFrame(f.parent)
	m.pc = pc
	if det {
		m.truncate(PortExit)
	}
	m.bodyArgs()
	return actNext
}

// callGuarded starts the goal in slot 0 of the current frame under a
// catch or cleanup barrier.
func (m *Machine) callGuarded(flag FrameFlags, recovery int) action {
	if !m.require(StackLocal, 1) {
		return m.overflow()
	}
	ch := m.pushChoice(ChoiceCatch, m.FR)
	m.choice(ch).pc = recovery
	f := m.frame(m.FR)
	f.flags |= flag
	f.choice = ch
	m.bodyArgs()
	return m.userCall(m.slot(0), 0)
}

// ---------------------------------------------------------------------------
// Meta-call
// ---------------------------------------------------------------------------

// userCall calls goal, appending the extra arguments found at
// m.abase+1 onwards.
func (m *Machine) userCall(goal Word, extra int) action {
	module := m.frame(m.FR).module
	goal = m.deref(goal)
	for goal.Tag() == TagCompound && m.functorOf(goal) == FunctorColon {
		mod := m.deref(m.arg(goal, 0))
		switch mod.Tag() {
		case TagAtom:
			module = m.reg.Module(mod.Atom())
		case TagRef:
			m.ball = instantiationError()
			return actThrow
		default:
			m.ball = typeError("module", m.Export(mod))
			return actThrow
		}
		goal = m.deref(m.arg(goal, 1))
	}
	var name AtomID
	arity := 0
	switch goal.Tag() {
	case TagRef:
		m.ball = instantiationError()
		return actThrow
	case TagAtom:
		name = goal.Atom()
	case TagCompound:
		name, arity = m.reg.FunctorOf(m.functorOf(goal))
	default:
		m.ball = typeError("callable", m.Export(goal))
		return actThrow
	}
	total := arity + extra
	m.ensureSlots(m.abase + total + 1)
	if extra > 0 {
		copy(m.slots[m.abase+arity:m.abase+total], m.slots[m.abase+1:m.abase+1+extra])
	}
	for i := 0; i < arity; i++ {
		m.slots[m.abase+i] = m.arg(goal, i)
	}
	f := m.reg.Functor(name, total)
	if isControl(name, total) {
		if total > 0 {
			if !m.require(StackGlobal, total+1) {
				return m.overflow()
			}
			goal = m.allocCompound(f, total)
			copy(m.global[goal.Index()+1:], m.slots[m.abase:m.abase+total])
		} else {
			goal = MakeAtom(name)
		}
		return m.callControl(goal, module)
	}
	return m.call(m.reg.Resolve(module, f), false)
}

func isControl(name AtomID, arity int) bool {
	switch arity {
	case 0:
		return name == AtomCut
	case 1:
		return name == AtomNot
	case 2:
		switch name {
		case AtomComma, AtomSemicolon, AtomArrow, AtomSoftArrow, AtomBar:
			return true
		}
	}
	return false
}

// callControl compiles a control construct into a transient clause whose
// head carries the goal's variables, so a cut inside it is local.
func (m *Machine) callControl(goal Word, module *Module) action {
	vars := newExportVars()
	body := m.exportTerm(goal, vars)
	free := term.Vars(body)
	p, err := m.reg.compileTransient(body, free, module)
	if err != nil {
		return m.throwErr(err)
	}
	byName := make(map[term.Variable]Word, len(vars.names))
	for idx, name := range vars.names {
		byName[name] = MakeRef(idx)
	}
	m.ensureSlots(m.abase + len(free))
	for i, v := range free {
		m.slots[m.abase+i] = byName[v]
	}
	return m.call(p, false)
}

// ---------------------------------------------------------------------------
// Foreign predicates
// ---------------------------------------------------------------------------

func (m *Machine) callForeign(id FrameID) action {
	f := m.frame(id)
	p := f.pred
	m.profile(p, PortCall)
	m.stats.Foreign++
	args := m.slots[f.base : f.base+p.Arity]
	ctx := &ForeignContext{m: m, frame: id, pred: p}
	if p.Det != nil {
		ok, err := p.Det(ctx, args)
		switch {
		case err != nil:
			return m.foreignError(err)
		case !ok:
			return actFail
		}
		return m.exit()
	}
	if !m.require(StackLocal, 1) {
		return m.overflow()
	}
	ch := m.pushChoice(ChoiceForeign, id)
	return m.foreignResult(ch, ctx, args)
}

// foreignResult calls a nondeterministic predicate whose choice point ch
// is in place and settles the choice point from its answer.
func (m *Machine) foreignResult(ch ChoiceID, ctx *ForeignContext, args []Word) action {
	r, err := ctx.pred.NonDet(ctx, args)
	c := m.choice(ch)
	if err != nil {
		c.kind = ChoiceInert
		return m.foreignError(err)
	}
	switch r.kind {
	case retryFail:
		c.kind = ChoiceInert
		return actFail
	case retryExit:
		c.kind = ChoiceInert
		m.BFR = c.prev
	default:
		c.token = r.token
	}
	m.FR = ctx.frame
	return m.exit()
}

func (m *Machine) pruneForeign(p *Predicate, c *choice) {
	ctx := &ForeignContext{m: m, frame: NoFrame, pred: p, control: Pruned, token: c.token}
	if _, err := p.NonDet(ctx, nil); err != nil {
		m.log.Warningf("%s: prune: %s", m.reg.Indicator(p), err)
	}
}

func (m *Machine) foreignError(err error) action {
	var h *HaltError
	if errors.As(err, &h) {
		m.halt = h
		return actHalt
	}
	var ex *ErrStackExhausted
	if errors.As(err, &ex) {
		m.fatal = ex
		return actFatal
	}
	m.ball = errorBall(err)
	return actThrow
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

func literalNumber(t term.Term) (Number, bool) {
	switch x := t.(type) {
	case term.Int:
		return IntNumber(int64(x)), true
	case term.BigInt:
		return BigNumber(x.V), true
	case term.Float:
		return FloatNumber(float64(x)), true
	}
	return Number{}, false
}

// matchLiteral compares a dereferenced non-variable with a clause literal.
func (m *Machine) matchLiteral(w Word, lit term.Term) bool {
	switch x := lit.(type) {
	case term.String:
		return m.isString(w) && m.stringValue(w) == string(x)
	case term.Float:
		return m.isFloat(w) && math.Float64bits(m.floatValue(w)) == math.Float64bits(float64(x))
	}
	n, ok := literalNumber(lit)
	if !ok || !m.isInteger(w) {
		return false
	}
	v, _ := m.numberOf(w)
	return compareValue(v, n) == 0
}
