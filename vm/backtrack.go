package vm

// ---------------------------------------------------------------------------
// Backtracking
// ---------------------------------------------------------------------------

// backtrack resumes the newest choice point. Records above it are
// finalized with the fail port and the bindings made since it was created
// are undone.
func (m *Machine) backtrack() action {
	for {
		if a := m.poll(); a != actNext {
			return a
		}
		chID := m.BFR
		if chID == NoChoice {
			return actNoMore
		}
		m.FR = m.choice(chID).frame
		m.discardAbove(int(chID)+1, PortFail)
		ch := m.choice(chID)
		m.restore(ch)
		m.relaxMargins()

		switch ch.kind {
		case ChoiceTop:
			return actNoMore

		case ChoiceJump:
			pc := ch.pc
			m.BFR = ch.prev
			m.setFrame(ch.frame)
			m.truncate(PortFail)
			m.pc = pc
			m.bodyArgs()
			return actNext

		case ChoiceInert, ChoiceCatch:
			m.BFR = ch.prev

		case ChoiceClause:
			id := ch.frame
			f := m.frame(id)
			var key Word
			if f.pred.Arity > 0 {
				key = m.indexKey(m.slots[f.base])
			}
			cl, alt := f.pred.Indexer.SelectClause(key, ch.clause, f.gen)
			if cl == nil {
				m.BFR = ch.prev
				continue
			}
			if alt == nil {
				m.BFR = ch.prev
				m.truncate(PortFail)
			} else {
				ch.clause = alt
			}
			m.stats.Redos++
			m.profile(f.pred, PortRedo)
			if f.flags&FlagTraced != 0 && m.port(id, PortRedo) == TraceFail {
				continue
			}
			return m.runClause(id, cl)

		case ChoiceForeign:
			id := ch.frame
			m.setFrame(id)
			f := m.frame(id)
			m.stats.Redos++
			m.profile(f.pred, PortRedo)
			ctx := &ForeignContext{m: m, frame: id, pred: f.pred, control: Redo, token: ch.token}
			return m.foreignResult(chID, ctx, m.slots[f.base:f.base+f.pred.Arity])

		case ChoiceDebug:
			id := ch.frame
			m.BFR = ch.prev
			if m.port(id, PortFail) == TraceRetry {
				m.BFR = chID
				return m.retryFrame(id)
			}
		}
	}
}
