package vm

import (
	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Exception propagation
// ---------------------------------------------------------------------------

// raise unwinds to the innermost active catch/3 whose catcher unifies with
// m.ball. Frames passed on the way are finalized with the exception port.
// The walk stops at the query's root frame.
func (m *Machine) raise() action {
	id := m.FR
	for id != NoFrame {
		f := m.frame(id)
		if f.flags&FlagTraced != 0 {
			m.port(id, PortException)
			f = m.frame(id)
		}
		if f.flags&FlagQuery != 0 {
			break
		}
		parent := f.parent
		if f.flags&FlagCatching == 0 || !m.chained(f.choice) {
			m.profile(f.pred, PortException)
			id = parent
			continue
		}

		ch := f.choice
		m.FR = id
		m.BFR = ch
		m.discardAbove(int(ch)+1, PortException)
		m.restore(m.choice(ch))
		m.relaxMargins()
		ball, ok := m.reserveImport(m.ball, make(map[term.Variable]Word))
		if !ok {
			return m.overflow()
		}
		f = m.frame(id)
		if m.unify(m.slots[f.base+1], ball) {
			recovery := m.choice(ch).pc
			m.BFR = m.choice(ch).prev
			m.truncate(PortExit)
			m.frame(id).flags &^= FlagCatching
			m.setFrame(id)
			m.pc = recovery
			m.bodyArgs()
			m.ball = nil
			return actNext
		}
		m.restore(m.choice(ch))
		m.BFR = m.choice(ch).prev
		m.recs = m.recs[:ch]
		f.flags &^= FlagCatching
		m.profile(f.pred, PortException)
		id = parent
	}
	if id != NoFrame {
		for m.BFR > ChoiceID(id) {
			m.BFR = m.choice(m.BFR).prev
		}
		m.FR = id
		m.discardAbove(int(id)+1, PortException)
	}
	m.log.Infof("uncaught exception: %s", term.Format(m.ball))
	return actUncaught
}

// chained reports whether ch is on the live choice point chain.
func (m *Machine) chained(ch ChoiceID) bool {
	if ch == NoChoice {
		return false
	}
	for c := m.BFR; c >= ch; c = m.choice(c).prev {
		if c == ch {
			return true
		}
	}
	return false
}
