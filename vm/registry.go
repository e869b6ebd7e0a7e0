package vm

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/horn/term"
)

// AtomID, FunctorID and ProcID are handles into a Registry.
type (
	AtomID    uint32
	FunctorID uint32
	ProcID    uint32
)

// Atoms interned by every registry, in this order.
const (
	AtomNil AtomID = iota
	AtomTrue
	AtomFalse
	AtomFail
	AtomDot
	AtomCurly
	AtomEmpty
	AtomComma
	AtomSemicolon
	AtomArrow
	AtomSoftArrow
	AtomNot
	AtomCut
	AtomCall
	AtomColon
	AtomSlash
	AtomMinus
	AtomPlus
	AtomError
	AtomEqual
	AtomUser
	AtomSystem
	AtomExit
	AtomException
	AtomLess
	AtomGreater
	AtomBar
	AtomAborted
	AtomEOF
	AtomNeck
)

var wellKnownAtoms = []string{
	"[]", "true", "false", "fail", ".", "{}", "", ",", ";", "->", "*->",
	"\\+", "!", "call", ":", "/", "-", "+", "error", "=", "user", "system",
	"exit", "exception", "<", ">", "|", "$aborted", "end_of_file", ":-",
}

// Functors interned by every registry, in this order.
const (
	FunctorDot FunctorID = iota
	FunctorComma
	FunctorSemicolon
	FunctorArrow
	FunctorSoftArrow
	FunctorNot
	FunctorColon
	FunctorSlash
	FunctorMinus2
	FunctorError
	FunctorCurly
	FunctorCall1
	FunctorBar
	FunctorEqual
	FunctorMinus1
	FunctorNeck
)

type functorKey struct {
	name  AtomID
	arity int
}

var wellKnownFunctors = []functorKey{
	{AtomDot, 2}, {AtomComma, 2}, {AtomSemicolon, 2}, {AtomArrow, 2},
	{AtomSoftArrow, 2}, {AtomNot, 1}, {AtomColon, 2}, {AtomSlash, 2},
	{AtomMinus, 2}, {AtomError, 2}, {AtomCurly, 1}, {AtomCall, 1},
	{AtomBar, 2}, {AtomEqual, 2}, {AtomMinus, 1}, {AtomNeck, 2},
}

// ---------------------------------------------------------------------------
// Registry: atoms, functors, modules and predicates
// ---------------------------------------------------------------------------

// Registry holds the process-wide, read-mostly tables shared by every
// Machine that runs against it.
type Registry struct {
	mu sync.RWMutex

	atomByName map[string]AtomID
	atoms      []string

	functorByKey map[functorKey]FunctorID
	functors     []functorKey

	modules map[AtomID]*Module
	procs   []*Predicate

	generation atomic.Uint64

	// ops is the operator table used for reading and printing.
	ops *term.OpTable

	boot      sync.Once
	queryPred *Predicate
}

// Module is a predicate namespace.
type Module struct {
	Name  AtomID
	preds map[FunctorID]*Predicate
}

// NewRegistry creates a registry with the well-known atoms, functors and
// the user and system modules.
func NewRegistry() *Registry {
	r := &Registry{
		atomByName:   make(map[string]AtomID),
		atoms:        make([]string, 0, 256),
		functorByKey: make(map[functorKey]FunctorID),
		modules:      make(map[AtomID]*Module),
		ops:          term.DefaultOps(),
	}
	for _, name := range wellKnownAtoms {
		r.Atom(name)
	}
	for _, k := range wellKnownFunctors {
		r.Functor(k.name, k.arity)
	}
	r.Module(AtomUser)
	r.Module(AtomSystem)
	r.generation.Store(1)
	return r
}

// Atom interns name.
func (r *Registry) Atom(name string) AtomID {
	r.mu.RLock()
	if id, ok := r.atomByName[name]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.atomByName[name]; ok {
		return id
	}
	id := AtomID(len(r.atoms))
	r.atomByName[name] = id
	r.atoms = append(r.atoms, name)
	return id
}

// AtomName returns the text of atom a.
func (r *Registry) AtomName(a AtomID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(a) >= len(r.atoms) {
		return fmt.Sprintf("<atom %d>", a)
	}
	return r.atoms[a]
}

// Functor interns name/arity.
func (r *Registry) Functor(name AtomID, arity int) FunctorID {
	k := functorKey{name, arity}
	r.mu.RLock()
	if id, ok := r.functorByKey[k]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.functorByKey[k]; ok {
		return id
	}
	id := FunctorID(len(r.functors))
	r.functorByKey[k] = id
	r.functors = append(r.functors, k)
	return id
}

// FunctorOf returns the name and arity of f.
func (r *Registry) FunctorOf(f FunctorID) (AtomID, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := r.functors[f]
	return k.name, k.arity
}

// FunctorArity returns the arity of f.
func (r *Registry) FunctorArity(f FunctorID) int {
	_, n := r.FunctorOf(f)
	return n
}

// functorArities extends dst with the arities of functors interned since
// it was last filled.
func (r *Registry) functorArities(dst []int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.functors[len(dst):] {
		dst = append(dst, k.arity)
	}
	return dst
}

// Module returns the module called name, creating it if needed.
func (r *Registry) Module(name AtomID) *Module {
	r.mu.RLock()
	if m, ok := r.modules[name]; ok {
		r.mu.RUnlock()
		return m
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[name]; ok {
		return m
	}
	m := &Module{Name: name, preds: make(map[FunctorID]*Predicate)}
	r.modules[name] = m
	return m
}

// User returns the user module.
func (r *Registry) User() *Module { return r.Module(AtomUser) }

// System returns the system module.
func (r *Registry) System() *Module { return r.Module(AtomSystem) }

// Ops returns the operator table.
func (r *Registry) Ops() *term.OpTable { return r.ops }

// Generation returns the current database generation.
func (r *Registry) Generation() uint64 { return r.generation.Load() }

func (r *Registry) nextGeneration() uint64 { return r.generation.Add(1) }

// Lookup resolves f in module m, falling back to the system module. It
// returns nil when neither module defines f.
func (r *Registry) Lookup(m *Module, f FunctorID) *Predicate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := m.preds[f]; ok && p.IsDefined() {
		return p
	}
	if m.Name != AtomSystem {
		if p, ok := r.modules[AtomSystem].preds[f]; ok && p.IsDefined() {
			return p
		}
	}
	if p, ok := m.preds[f]; ok {
		return p
	}
	return nil
}

// Resolve returns the predicate f visible from m, creating an undefined
// predicate in m when none exists.
func (r *Registry) Resolve(m *Module, f FunctorID) *Predicate {
	if p := r.Lookup(m, f); p != nil {
		return p
	}
	return r.Define(m, f)
}

// Define returns the predicate f owned by m, creating it if needed.
func (r *Registry) Define(m *Module, f FunctorID) *Predicate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := m.preds[f]; ok {
		return p
	}
	k := r.functors[f]
	p := &Predicate{
		ID:      ProcID(len(r.procs)),
		Functor: f,
		Name:    k.name,
		Arity:   k.arity,
		Module:  m,
		Indexer: FirstArgIndexer{},
	}
	m.preds[f] = p
	r.procs = append(r.procs, p)
	return p
}

// Proc returns the predicate with handle id.
func (r *Registry) Proc(id ProcID) *Predicate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.procs[id]
}

// procList extends dst with the predicates defined since it was last
// filled.
func (r *Registry) procList(dst []*Predicate) []*Predicate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(dst, r.procs[len(dst):]...)
}

// Predicates returns the predicates of m sorted by name and arity.
func (r *Registry) Predicates(m *Module) []*Predicate {
	r.mu.RLock()
	out := make([]*Predicate, 0, len(m.preds))
	for _, p := range m.preds {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		ni, nj := r.AtomName(out[i].Name), r.AtomName(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].Arity < out[j].Arity
	})
	return out
}

// Indicator returns the Name/Arity text of p.
func (r *Registry) Indicator(p *Predicate) string {
	return fmt.Sprintf("%s/%d", term.QuoteAtom(term.Atom(r.AtomName(p.Name))), p.Arity)
}

// ---------------------------------------------------------------------------
// Predicates and clauses
// ---------------------------------------------------------------------------

// PredFlags are predicate properties.
type PredFlags uint32

const (
	PredDynamic PredFlags = 1 << iota
	PredSystem
	PredTraced
	PredSpied
	PredDeclared // owns its name in its module even before clauses exist
	PredLibrary  // system predicate written in Prolog that user code may redefine
)

// Predicate is the clause set or Go routine for a name/arity.
type Predicate struct {
	ID      ProcID
	Functor FunctorID
	Name    AtomID
	Arity   int
	Module  *Module
	Indexer Indexer

	flags atomic.Uint32

	// Go implementations; at most one is set.
	Det    ForeignFunc
	NonDet NondetFunc

	mu    sync.Mutex
	first atomic.Pointer[Clause]
	last  *Clause
}

// Flags returns the predicate flags.
func (p *Predicate) Flags() PredFlags { return PredFlags(p.flags.Load()) }

// SetFlags sets the given flags.
func (p *Predicate) SetFlags(f PredFlags) {
	for {
		old := p.flags.Load()
		if p.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// IsForeign reports whether p is implemented in Go.
func (p *Predicate) IsForeign() bool { return p.Det != nil || p.NonDet != nil }

// IsDynamic reports whether p was declared or created dynamic.
func (p *Predicate) IsDynamic() bool { return p.Flags()&PredDynamic != 0 }

// IsDefined reports whether p has clauses, a Go body or a declaration.
func (p *Predicate) IsDefined() bool {
	return p.IsForeign() || p.Flags()&(PredDynamic|PredDeclared) != 0 || p.first.Load() != nil
}

// FirstClause returns the head of the clause list.
func (p *Predicate) FirstClause() *Clause { return p.first.Load() }

// Clause is one compiled alternative of a predicate.
type Clause struct {
	Code     []byte
	NVars    int         // slot count, arguments included
	Literals []term.Term // bignum and string constants
	Key      Word        // first argument key; 0 matches anything
	Source   term.Term   // the clause term, for clause/2 and retract/1
	Pred     *Predicate

	next atomic.Pointer[Clause]
	born uint64
	died atomic.Uint64
}

// Next returns the following clause of the same predicate.
func (c *Clause) Next() *Clause { return c.next.Load() }

// Visible reports whether c is part of database generation gen.
func (c *Clause) Visible(gen uint64) bool {
	if c.born > gen {
		return false
	}
	d := c.died.Load()
	return d == 0 || gen < d
}

// Erased reports whether c has been retracted.
func (c *Clause) Erased() bool { return c.died.Load() != 0 }

// AddClause appends (or with front set, prepends) c to p and starts a new
// generation.
func (r *Registry) AddClause(p *Predicate, c *Clause, front bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Pred = p
	c.born = r.nextGeneration()
	if front {
		c.next.Store(p.first.Load())
		p.first.Store(c)
		if p.last == nil {
			p.last = c
		}
		return
	}
	if p.last == nil {
		p.first.Store(c)
	} else {
		p.last.next.Store(c)
	}
	p.last = c
}

// Retract marks c as dead from the next generation on. Running queries
// keep seeing it.
func (r *Registry) Retract(c *Clause) bool {
	return c.died.CompareAndSwap(0, r.nextGeneration())
}

// Abolish removes every clause of p.
func (r *Registry) Abolish(p *Predicate) {
	for c := p.FirstClause(); c != nil; c = c.Next() {
		r.Retract(c)
	}
}

// DefineForeign installs a deterministic Go predicate in the system module.
func (r *Registry) DefineForeign(name string, arity int, fn ForeignFunc) *Predicate {
	p := r.Define(r.System(), r.Functor(r.Atom(name), arity))
	p.Det = fn
	p.SetFlags(PredSystem)
	return p
}

// DefineNondet installs a nondeterministic Go predicate in the system module.
func (r *Registry) DefineNondet(name string, arity int, fn NondetFunc) *Predicate {
	p := r.Define(r.System(), r.Functor(r.Atom(name), arity))
	p.NonDet = fn
	p.SetFlags(PredSystem)
	return p
}
