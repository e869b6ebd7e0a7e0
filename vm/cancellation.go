package vm

import (
	"context"
	"errors"

	"github.com/chazu/horn/term"
)

// pollInterval is how many poll points pass between context checks.
const pollInterval = 256

// Interrupt asks the running query to raise ball at its next call or
// backtrack. It is safe to call from any goroutine.
func (m *Machine) Interrupt(ball term.Term) {
	m.interrupt.Store(&ball)
}

// poll observes pending interrupts, context cancellation and trail
// overflow. It runs at every call and every backtrack. Bindings are
// trailed without a check, so a full trail is noticed here.
func (m *Machine) poll() action {
	if b := m.interrupt.Swap(nil); b != nil {
		m.ball = *b
		return actThrow
	}
	if !m.require(StackTrail, 0) {
		return m.overflow()
	}
	m.polls++
	if m.polls%pollInterval != 0 || !m.cancelled() {
		return actNext
	}
	if errors.Is(m.ctx.Err(), context.DeadlineExceeded) {
		m.ball = term.Atom("time_limit_exceeded")
	} else {
		m.ball = term.Atom("$aborted")
	}
	return actThrow
}

// cancelled reports whether the machine's context is done.
func (m *Machine) cancelled() bool {
	if m.ctx == nil {
		return false
	}
	select {
	case <-m.ctx.Done():
		return true
	default:
		return false
	}
}
