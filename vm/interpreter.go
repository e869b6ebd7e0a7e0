package vm

import (
	"encoding/binary"
	"math"
)

// action tells the run loop what to do after an instruction sequence.
type action uint8

const (
	actNext      action = iota // keep executing at pc
	actFail                    // backtrack to the newest choice point
	actThrow                   // raise m.ball
	actExitQuery               // the query produced an answer
	actNoMore                  // backtracked into the query's top choice
	actUncaught                // no handler unified with the ball
	actFatal                   // unrecoverable stack exhaustion
	actHalt                    // halt/0,1
)

// run drives the machine until the current query answers, fails or stops.
func (m *Machine) run(a action) action {
	for {
		switch a {
		case actNext:
			a = m.step()
		case actFail:
			a = m.backtrack()
		case actThrow:
			a = m.raise()
		default:
			return a
		}
	}
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

func (m *Machine) opU16() int {
	v := binary.LittleEndian.Uint16(m.code[m.pc:])
	m.pc += 2
	return int(v)
}

func (m *Machine) opU32() uint32 {
	v := binary.LittleEndian.Uint32(m.code[m.pc:])
	m.pc += 4
	return v
}

func (m *Machine) opI64() int64 {
	v := binary.LittleEndian.Uint64(m.code[m.pc:])
	m.pc += 8
	return int64(v)
}

func (m *Machine) opF64() float64 {
	return math.Float64frombits(uint64(m.opI64()))
}

func (m *Machine) opJump() int {
	off := int32(m.opU32())
	return m.pc + int(off)
}

func (m *Machine) markOf(v int) ChoiceID { return ChoiceID(m.slot(v).IntValue()) }

// oldestAbove returns the oldest choice point newer than mark, or NoChoice.
func (m *Machine) oldestAbove(mark ChoiceID) ChoiceID {
	c := m.BFR
	if c <= mark {
		return NoChoice
	}
	for {
		p := m.choice(c).prev
		if p <= mark {
			return c
		}
		c = p
	}
}

func (m *Machine) throwErr(err error) action {
	m.ball = errorBall(err)
	return actThrow
}

// ---------------------------------------------------------------------------
// Instruction dispatch
// ---------------------------------------------------------------------------

// step executes instructions until one transfers control to the run loop.
func (m *Machine) step() action {
	for {
		op := Opcode(m.code[m.pc])
		m.pc++
		switch op {

		// head unification

		case OpHAtom:
			if !m.headConst(MakeAtom(AtomID(m.opU32()))) {
				return actFail
			}
		case OpHNil:
			if !m.headConst(MakeAtom(AtomNil)) {
				return actFail
			}
		case OpHSmallInt:
			v := m.opI64()
			if !FitsSmall(v) {
				return m.throwErr(Throw(representationError("tagged_integer")))
			}
			if !m.headConst(MakeInt(v)) {
				return actFail
			}
		case OpHFloat:
			f := m.opF64()
			w := m.deref(m.argWord())
			switch {
			case isVar(w):
				if !m.require(StackGlobal, 3) {
					return m.overflow()
				}
				m.bind(w, m.putFloat(f))
			case !m.isFloat(w) || math.Float64bits(m.floatValue(w)) != math.Float64bits(f):
				return actFail
			}
			m.argp.off++
		case OpHIndirect:
			lit := m.clause.Literals[m.opU16()]
			w := m.deref(m.argWord())
			if isVar(w) {
				v, ok := m.reserveImport(lit, nil)
				if !ok {
					return m.overflow()
				}
				m.bind(w, v)
			} else if !m.matchLiteral(w, lit) {
				return actFail
			}
			m.argp.off++
		case OpHFunctor, OpHRFunctor, OpHList, OpHRList:
			f := FunctorDot
			if op == OpHFunctor || op == OpHRFunctor {
				f = FunctorID(m.opU32())
			}
			w := m.deref(m.argWord())
			switch {
			case w.Tag() == TagCompound && m.global[w.Index()] == MakeFunctorHeader(f):
			case isVar(w):
				n := m.arityOf(f)
				if !m.require(StackGlobal, n+1) {
					return m.overflow()
				}
				c := m.allocCompound(f, n)
				m.bind(w, c)
				w = c
			default:
				return actFail
			}
			if op == OpHFunctor || op == OpHList {
				if !m.pushArgs(w.Index()) {
					return m.overflow()
				}
			} else {
				m.argp = argPtr{global: true, off: w.Index() + 1}
			}
		case OpHVoid:
			m.argp.off++
		case OpHVoidN:
			m.argp.off += m.opU16()
		case OpHVar:
			if !m.unify(m.slot(m.opU16()), m.argWord()) {
				return actFail
			}
			m.argp.off++
		case OpHFirstVar:
			m.setSlot(m.opU16(), m.argWord())
			m.argp.off++
		case OpHPop:
			m.popArgs()

		// body argument construction

		case OpBAtom:
			m.setArg(MakeAtom(AtomID(m.opU32())))
		case OpBNil:
			m.setArg(MakeAtom(AtomNil))
		case OpBSmallInt:
			v := m.opI64()
			if !FitsSmall(v) {
				return m.throwErr(Throw(representationError("tagged_integer")))
			}
			m.setArg(MakeInt(v))
		case OpBFloat:
			f := m.opF64()
			if !m.require(StackGlobal, 3) {
				return m.overflow()
			}
			m.setArg(m.putFloat(f))
		case OpBIndirect:
			v, ok := m.reserveImport(m.clause.Literals[m.opU16()], nil)
			if !ok {
				return m.overflow()
			}
			m.setArg(v)
		case OpBFunctor, OpBRFunctor, OpBList, OpBRList:
			f := FunctorDot
			if op == OpBFunctor || op == OpBRFunctor {
				f = FunctorID(m.opU32())
			}
			n := m.arityOf(f)
			if !m.require(StackGlobal, n+1) {
				return m.overflow()
			}
			c := m.allocCompound(f, n)
			m.putArg(c)
			if op == OpBFunctor || op == OpBList {
				if !m.pushArgs(c.Index()) {
					return m.overflow()
				}
			} else {
				m.argp = argPtr{global: true, off: c.Index() + 1}
			}
		case OpBVoid:
			if m.argp.global {
				m.argp.off++
				break
			}
			if !m.require(StackGlobal, 1) {
				return m.overflow()
			}
			m.setArg(m.newVar())
		case OpBVar:
			m.setArg(m.slot(m.opU16()))
		case OpBFirstVar:
			v := m.opU16()
			if m.argp.global {
				cell := m.argp.off
				m.global[cell] = MakeRef(cell)
				m.setSlot(v, MakeRef(cell))
				m.argp.off++
				break
			}
			if !m.require(StackGlobal, 1) {
				return m.overflow()
			}
			w := m.newVar()
			m.setSlot(v, w)
			m.setArg(w)
		case OpBPop:
			m.popArgs()
		case OpBUnifyVar:
			m.argp = argPtr{off: m.base + m.opU16()}
		case OpBUnifyFirstVar:
			v := m.opU16()
			if !m.require(StackGlobal, 1) {
				return m.overflow()
			}
			m.setSlot(v, m.newVar())
			m.argp = argPtr{off: m.base + v}
		case OpBUnifyExit:
			m.bodyArgs()
		case OpBUnifyVV:
			a, b := m.opU16(), m.opU16()
			if !m.unify(m.slot(a), m.slot(b)) {
				return actFail
			}
		case OpBEqVV:
			a, b := m.opU16(), m.opU16()
			if m.compare(m.slot(a), m.slot(b)) != 0 {
				return actFail
			}
		case OpBNeqVV:
			a, b := m.opU16(), m.opU16()
			if m.compare(m.slot(a), m.slot(b)) == 0 {
				return actFail
			}
		case OpBThrow:
			w := m.deref(m.slots[m.abase])
			if isVar(w) {
				m.ball = instantiationError()
			} else {
				m.ball = m.Export(w)
			}
			return actThrow

		// control

		case OpIEnter:
			m.bodyArgs()
		case OpICall, OpIDepart:
			p := m.proc(ProcID(m.opU32()))
			if a := m.call(p, op == OpIDepart); a != actNext {
				return a
			}
		case OpIExit, OpIExitFact:
			if a := m.exit(); a != actNext {
				return a
			}
		case OpIContext:
			m.frame(m.FR).module = m.reg.Module(AtomID(m.opU32()))
		case OpIUserCall0:
			if a := m.userCall(m.slots[m.abase], 0); a != actNext {
				return a
			}
		case OpIUserCallN:
			n := m.opU16()
			if a := m.userCall(m.slots[m.abase], n); a != actNext {
				return a
			}
		case OpITrue, OpCEnd:
		case OpIFail, OpCFail:
			return actFail
		case OpICut:
			m.cutTo(ChoiceID(m.FR))
			m.bodyArgs()
		case OpICatch:
			recovery := m.opJump()
			if a := m.callGuarded(FlagCatching, recovery); a != actNext {
				return a
			}
		case OpICallCleanup:
			if a := m.callGuarded(FlagWatched, 0); a != actNext {
				return a
			}
		case OpIExitCatch, OpIExitCleanup:
			f := m.frame(m.FR)
			if m.BFR == f.choice {
				m.BFR = m.choice(f.choice).prev
				m.truncate(PortExit)
				m.frame(m.FR).flags &^= FlagCatching
			}
			m.bodyArgs()
		case OpIExitQuery:
			return actExitQuery

		// choice points

		case OpCOr:
			target := m.opJump()
			if !m.require(StackLocal, 1) {
				return m.overflow()
			}
			m.choice(m.pushChoice(ChoiceJump, m.FR)).pc = target
		case OpCJmp:
			m.pc = m.opJump()
		case OpCMark:
			m.setSlot(m.opU16(), MakeInt(int64(m.BFR)))
		case OpCCut:
			m.cutTo(m.markOf(m.opU16()))
			m.bodyArgs()
		case OpCLCut:
			if c := m.oldestAbove(m.markOf(m.opU16())); c != NoChoice {
				m.cutTo(c)
			}
			m.bodyArgs()
		case OpCIfThenElse, OpCNot, OpCSoftIf:
			v := m.opU16()
			target := m.opJump()
			if !m.require(StackLocal, 1) {
				return m.overflow()
			}
			m.setSlot(v, MakeInt(int64(m.BFR)))
			m.choice(m.pushChoice(ChoiceJump, m.FR)).pc = target
		case OpCSoftCut:
			if c := m.oldestAbove(m.markOf(m.opU16())); c != NoChoice {
				m.choice(c).kind = ChoiceInert
			}
		case OpCVar:
			v := m.opU16()
			if !m.require(StackGlobal, 1) {
				return m.overflow()
			}
			m.setSlot(v, m.newVar())

		// arithmetic

		case OpAEnter:
			m.nums = m.nums[:0]
		case OpAInteger:
			if !m.pushNum(IntNumber(m.opI64())) {
				return m.overflow()
			}
		case OpADouble:
			if !m.pushNum(FloatNumber(m.opF64())) {
				return m.overflow()
			}
		case OpAMPZ:
			n, ok := literalNumber(m.clause.Literals[m.opU16()])
			if !ok {
				m.fatal = ErrBadBytecode
				return actFatal
			}
			if !m.pushNum(n) {
				return m.overflow()
			}
		case OpAVar:
			n, err := m.eval(m.slot(m.opU16()))
			if err != nil {
				return m.throwErr(err)
			}
			if !m.pushNum(n) {
				return m.overflow()
			}
		case OpAFunc:
			f := &arithFuncs[m.opU16()]
			top := len(m.nums) - f.arity
			r, err := f.apply(m.nums[top:])
			if err != nil {
				return m.throwErr(err)
			}
			m.nums = append(m.nums[:top], r)
		case OpALT, OpALE, OpAGT, OpAGE, OpAEQ, OpANE:
			b := m.popNum()
			a := m.popNum()
			if !arithCompare(op, a, b) {
				return actFail
			}
		case OpAIs:
			w, ok := m.numberWord(m.popNum())
			if !ok {
				return m.overflow()
			}
			if !m.unify(m.slots[m.abase], w) {
				return actFail
			}
			m.bodyArgs()
		case OpAFirstVarIs:
			v := m.opU16()
			w, ok := m.numberWord(m.popNum())
			if !ok {
				return m.overflow()
			}
			m.setSlot(v, w)

		default:
			m.fatal = ErrBadBytecode
			return actFatal
		}
	}
}

// headConst unifies the current argument with an atomic word.
func (m *Machine) headConst(c Word) bool {
	w := m.deref(m.argWord())
	if w != c {
		if !isVar(w) {
			return false
		}
		m.bind(w, c)
	}
	m.argp.off++
	return true
}

// arithCompare applies an arithmetic comparison. NaN is unordered, so
// only =\= holds when either side is NaN.
func arithCompare(op Opcode, a, b Number) bool {
	if a.isNaN() || b.isNaN() {
		return op == OpANE
	}
	return compareHolds(op, compareValue(a, b))
}

func compareHolds(op Opcode, c int) bool {
	switch op {
	case OpALT:
		return c < 0
	case OpALE:
		return c <= 0
	case OpAGT:
		return c > 0
	case OpAGE:
		return c >= 0
	case OpAEQ:
		return c == 0
	}
	return c != 0
}

func (m *Machine) proc(id ProcID) *Predicate {
	if int(id) >= len(m.procs) {
		m.procs = m.reg.procList(m.procs)
	}
	return m.procs[id]
}
