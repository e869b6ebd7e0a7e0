package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Stack limits
// ---------------------------------------------------------------------------

// Stack names one of the machine's stacks.
type Stack uint8

const (
	StackGlobal Stack = iota
	StackLocal
	StackTrail
	StackArgument
	numStacks
)

var stackNames = [...]string{"global", "local", "trail", "argument"}

func (s Stack) String() string { return stackNames[s] }

// StorageManager lets an embedder veto or account for stack growth. It is
// consulted whenever a stack would pass its configured limit; returning
// nil allows the growth.
type StorageManager interface {
	RequireCapacity(s Stack, used, want int) error
}

// ErrStackExhausted is returned when a stack overflows again while the
// spare room granted by an earlier overflow is still in use.
type ErrStackExhausted struct {
	Stack Stack
	Used  int
}

func (e *ErrStackExhausted) Error() string {
	return fmt.Sprintf("%s stack exhausted (%d in use)", e.Stack, e.Used)
}

func (m *Machine) usage(s Stack) int {
	switch s {
	case StackGlobal:
		return len(m.global)
	case StackLocal:
		return len(m.recs) + m.slotTop()
	case StackTrail:
		return len(m.trail)
	default:
		return len(m.scratch) + len(m.nums)
	}
}

func (m *Machine) baseLimit(s Stack) int {
	switch s {
	case StackGlobal:
		return m.opts.GlobalLimit
	case StackLocal:
		return m.opts.LocalLimit
	case StackTrail:
		return m.opts.TrailLimit
	default:
		return m.opts.ArgumentLimit
	}
}

func (m *Machine) limit(s Stack) int {
	if m.margins[s] {
		return m.baseLimit(s) + m.opts.Spare
	}
	return m.baseLimit(s)
}

// require checks that n more entries fit on stack s. On the first overflow
// it grants the spare margin and leaves resource_error(s) as the pending
// ball; an overflow inside the margin records a fatal error. Either way the
// caller returns m.overflow().
func (m *Machine) require(s Stack, n int) bool {
	used := m.usage(s)
	if used+n <= m.limit(s) {
		return true
	}
	if m.Storage != nil && !m.margins[s] {
		if err := m.Storage.RequireCapacity(s, used, n); err == nil {
			return true
		}
	}
	if m.margins[s] {
		m.fatal = &ErrStackExhausted{Stack: s, Used: used}
		m.log.Errorf("%s", m.fatal)
		return false
	}
	m.margins[s] = true
	m.ball = resourceError(s.String())
	m.log.Infof("%s stack overflow at %d entries", s, used)
	return false
}

func (m *Machine) overflow() action {
	if m.fatal != nil {
		return actFatal
	}
	return actThrow
}

// relaxMargins withdraws spare room once usage is back under the limit.
func (m *Machine) relaxMargins() {
	for s := Stack(0); s < numStacks; s++ {
		if m.margins[s] && m.usage(s) < m.baseLimit(s) {
			m.margins[s] = false
		}
	}
}

// ---------------------------------------------------------------------------
// Binding and the trail
// ---------------------------------------------------------------------------

// bind assigns value to the unbound cell v. The binding is trailed when
// the cell predates the newest choice point, or unconditionally while
// forceTrail is set.
func (m *Machine) bind(v, value Word) {
	idx := v.Index()
	if debugInvariants {
		m.checkBind(idx, value)
	}
	m.global[idx] = value
	if m.forceTrail || (m.BFR != NoChoice && idx < m.choice(m.BFR).gmark) {
		m.trail = append(m.trail, idx)
	}
}

// undo resets every cell trailed since mark to unbound.
func (m *Machine) undo(mark int) {
	for i := len(m.trail) - 1; i >= mark; i-- {
		idx := m.trail[i]
		m.global[idx] = MakeRef(idx)
	}
	m.trail = m.trail[:mark]
}

// restore undoes bindings and frees global space back to choice c.
func (m *Machine) restore(c *choice) {
	m.undo(c.tmark)
	m.global = m.global[:c.gmark]
	m.scratch = m.scratch[:c.adepth]
	m.nums = m.nums[:0]
}

// ---------------------------------------------------------------------------
// Global allocation
// ---------------------------------------------------------------------------

// allocCompound reserves a compound for f with unbound arguments and
// returns its word. The caller has called require.
func (m *Machine) allocCompound(f FunctorID, arity int) Word {
	idx := len(m.global)
	m.global = append(m.global, MakeFunctorHeader(f))
	for i := 1; i <= arity; i++ {
		m.global = append(m.global, MakeRef(idx+i))
	}
	return MakeCompound(idx)
}
