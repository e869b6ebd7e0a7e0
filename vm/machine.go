package vm

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Machine: one Prolog engine
// ---------------------------------------------------------------------------

// UnknownPolicy decides what a call to an undefined procedure does.
type UnknownPolicy uint8

const (
	UnknownError UnknownPolicy = iota
	UnknownFail
	UnknownWarning
)

// Options configures a Machine. Zero fields take the defaults.
type Options struct {
	GlobalLimit   int // cells
	LocalLimit    int // slots plus frame and choice records
	TrailLimit    int // entries
	ArgumentLimit int // scratch and arithmetic entries

	// Spare is the extra room granted after a stack overflow so the
	// resulting exception can be handled.
	Spare int

	Unknown    UnknownPolicy
	ArithDepth int // maximum expression nesting for is/2
	Trace      bool
}

// Defaults.
const (
	DefaultGlobalLimit   = 16 << 20
	DefaultLocalLimit    = 8 << 20
	DefaultTrailLimit    = 8 << 20
	DefaultArgumentLimit = 1 << 20
	DefaultSpare         = 64 << 10
	DefaultArithDepth    = 10000
)

func (o Options) withDefaults() Options {
	if o.GlobalLimit <= 0 {
		o.GlobalLimit = DefaultGlobalLimit
	}
	if o.LocalLimit <= 0 {
		o.LocalLimit = DefaultLocalLimit
	}
	if o.TrailLimit <= 0 {
		o.TrailLimit = DefaultTrailLimit
	}
	if o.ArgumentLimit <= 0 {
		o.ArgumentLimit = DefaultArgumentLimit
	}
	if o.Spare <= 0 {
		o.Spare = DefaultSpare
	}
	if o.ArithDepth <= 0 {
		o.ArithDepth = DefaultArithDepth
	}
	return o
}

// argPtr addresses the argument being unified or built: a slot or a
// global cell.
type argPtr struct {
	global bool
	off    int
}

// Stats are cumulative engine counters.
type Stats struct {
	Calls     uint64
	Departs   uint64
	Redos     uint64
	Foreign   uint64
	MaxFrames int // high-water mark of live records
	MaxGlobal int
}

// Machine executes compiled clauses. A Machine is not safe for concurrent
// use; Interrupt is the exception and may be called from any goroutine.
// Several machines may share one Registry.
type Machine struct {
	reg  *Registry
	opts Options
	log  commonlog.Logger

	// stacks
	global  []Word
	trail   []int
	recs    []record
	slots   []Word
	scratch []argPtr
	nums    []Number

	// registers
	FR     FrameID
	BFR    ChoiceID
	base   int // slot base of FR
	pc     int
	code   []byte
	clause *Clause
	pred   *Predicate
	argp   argPtr
	abase  int // where the next call's arguments are written

	scratchBase int
	forceTrail  bool
	ustack      []Word
	arities     []int
	procs       []*Predicate

	ball    term.Term
	fatal   error
	halt    *HaltError
	margins [numStacks]bool

	interrupt atomic.Pointer[term.Term]
	ctx       context.Context
	polls     uint32

	query *Query

	// Out receives the output of write/1 and friends.
	Out io.Writer

	// Storage, when set, is asked for permission before a stack grows
	// past its soft limit.
	Storage StorageManager

	Tracer   Tracer
	Profiler *Profiler

	stats Stats
}

// NewMachine creates a machine running against reg.
func NewMachine(reg *Registry, opts Options) *Machine {
	m := &Machine{
		reg:     reg,
		opts:    opts.withDefaults(),
		log:     commonlog.GetLogger("horn.vm"),
		global:  make([]Word, 0, 4096),
		trail:   make([]int, 0, 1024),
		recs:    make([]record, 0, 256),
		slots:   make([]Word, 1024),
		scratch: make([]argPtr, 0, 64),
		nums:    make([]Number, 0, 64),
		FR:      NoFrame,
		BFR:     NoChoice,
		Out:     os.Stdout,
	}
	// Cell 0 holds [] so a zero word dereferences to a valid term.
	m.global = append(m.global, MakeAtom(AtomNil))
	bootSystem(reg)
	return m
}

// Registry returns the registry the machine runs against.
func (m *Machine) Registry() *Registry { return m.reg }

// Options returns the effective options.
func (m *Machine) Options() Options { return m.opts }

// Stats returns a snapshot of the engine counters.
func (m *Machine) Stats() Stats {
	s := m.stats
	s.MaxGlobal = max(s.MaxGlobal, len(m.global))
	return s
}

// SetContext installs a context whose cancellation aborts running queries.
func (m *Machine) SetContext(ctx context.Context) { m.ctx = ctx }

// setFrame makes id the current frame and loads its clause registers.
func (m *Machine) setFrame(id FrameID) {
	m.FR = id
	f := m.frame(id)
	m.base = f.base
	m.pred = f.pred
	m.setClause(f.clause)
}

func (m *Machine) setClause(c *Clause) {
	m.clause = c
	if c != nil {
		m.code = c.Code
	} else {
		m.code = nil
	}
}

// headArgs points the argument register at the current frame's arguments.
func (m *Machine) headArgs() {
	m.argp = argPtr{off: m.base}
	m.scratch = m.scratch[:m.scratchBase]
}

// bodyArgs points the argument register at the first free slot, where the
// next call's arguments are built.
func (m *Machine) bodyArgs() {
	m.abase = m.slotTop()
	m.argp = argPtr{off: m.abase}
	m.scratch = m.scratch[:m.scratchBase]
}

func (m *Machine) argWord() Word {
	if m.argp.global {
		return m.global[m.argp.off]
	}
	return m.slots[m.argp.off]
}

// putArg stores w at the argument register without advancing it.
func (m *Machine) putArg(w Word) {
	if m.argp.global {
		m.global[m.argp.off] = w
	} else {
		m.ensureSlots(m.argp.off + 1)
		m.slots[m.argp.off] = w
	}
}

func (m *Machine) setArg(w Word) {
	m.putArg(w)
	m.argp.off++
}

// pushArgs saves the position after the current argument and enters the
// arguments of the compound whose header is at idx. It reports false when
// the argument stack is full.
func (m *Machine) pushArgs(idx int) bool {
	if !m.require(StackArgument, 1) {
		return false
	}
	m.scratch = append(m.scratch, argPtr{global: m.argp.global, off: m.argp.off + 1})
	m.argp = argPtr{global: true, off: idx + 1}
	return true
}

func (m *Machine) popArgs() {
	n := len(m.scratch) - 1
	m.argp = m.scratch[n]
	m.scratch = m.scratch[:n]
}

func (m *Machine) ensureSlots(n int) {
	if n <= len(m.slots) {
		return
	}
	size := max(2*len(m.slots), n)
	grown := make([]Word, size)
	copy(grown, m.slots)
	m.slots = grown
}

// slot returns variable v of the current frame.
func (m *Machine) slot(v int) Word { return m.slots[m.base+v] }

func (m *Machine) setSlot(v int, w Word) { m.slots[m.base+v] = w }
