package vm

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Tracing
// ---------------------------------------------------------------------------

// TraceAction is a tracer's answer at a port.
type TraceAction uint8

const (
	TraceProceed TraceAction = iota
	TraceRetry               // restart the frame from its first clause
	TraceFail                // make the frame fail
	TraceIgnore              // treat the call as succeeded
)

// Tracer observes the ports of traced frames. OnPort runs on the machine's
// goroutine and may inspect the frame through info.
type Tracer interface {
	OnPort(info FrameInfo, bfr ChoiceID, port Port, pc int) TraceAction
}

// traced reports whether calls to p get traced frames.
func (m *Machine) traced(p *Predicate) bool {
	if m.Tracer == nil {
		return false
	}
	return m.opts.Trace || p.Flags()&PredSpied != 0
}

func (m *Machine) port(id FrameID, port Port) TraceAction {
	if m.Tracer == nil {
		return TraceProceed
	}
	return m.Tracer.OnPort(m.frameInfo(id), m.BFR, port, m.pc)
}

// debugChoice finds the tracer choice point of frame id.
func (m *Machine) debugChoice(id FrameID) ChoiceID {
	for c := m.BFR; c > ChoiceID(id); c = m.choice(c).prev {
		if ch := m.choice(c); ch.kind == ChoiceDebug && ch.frame == id {
			return c
		}
	}
	return NoChoice
}

// retryFrame undoes the work of frame id and runs it again from its first
// clause.
func (m *Machine) retryFrame(id FrameID) action {
	ch := m.debugChoice(id)
	if ch == NoChoice {
		return actFail
	}
	m.BFR = ch
	m.discardAbove(int(ch)+1, PortFail)
	m.restore(m.choice(ch))
	m.frame(id).flags &^= FlagFinished
	m.setFrame(id)
	m.profile(m.frame(id).pred, PortRedo)
	if m.port(id, PortCall) == TraceFail {
		return actFail
	}
	return m.selectClause(id, m.frame(id).pred.FirstClause())
}

// Spy marks p so that its calls are traced even when tracing is off.
func (r *Registry) Spy(p *Predicate) { p.SetFlags(PredSpied) }

// Nospy clears a spy point.
func (r *Registry) Nospy(p *Predicate) {
	for {
		old := p.flags.Load()
		if p.flags.CompareAndSwap(old, old&^uint32(PredSpied)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// PortWriter: a printing tracer
// ---------------------------------------------------------------------------

// PortWriter prints one line per port and always proceeds. Leashed ports
// can be redirected with Decide.
type PortWriter struct {
	mu  sync.Mutex
	out io.Writer

	// Decide, when set, chooses the action at each port.
	Decide func(info FrameInfo, port Port) TraceAction
}

// NewPortWriter creates a tracer printing to out.
func NewPortWriter(out io.Writer) *PortWriter {
	return &PortWriter{out: out}
}

// OnPort implements Tracer.
func (w *PortWriter) OnPort(info FrameInfo, _ ChoiceID, port Port, _ int) TraceAction {
	w.mu.Lock()
	defer w.mu.Unlock()
	name := port.String()
	fmt.Fprintf(w.out, "%s%s: (%d) %s\n",
		strings.Repeat(" ", min(info.Level, 40)),
		strings.ToUpper(name[:1])+name[1:],
		info.Level, term.Format(info.Goal))
	if w.Decide != nil {
		return w.Decide(info, port)
	}
	return TraceProceed
}
