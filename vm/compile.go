package vm

import (
	"math"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Clause compiler
// ---------------------------------------------------------------------------

// compiler translates one clause into bytecode. Every variable that
// occurs more than once gets a slot; a variable that is directly a head
// argument shares that argument's slot. Variables occurring once are void.
type compiler struct {
	reg    *Registry
	module *Module
	b      *BytecodeBuilder

	counts   map[term.Variable]int
	slots    map[term.Variable]int
	seen     map[term.Variable]bool
	nslots   int
	literals []term.Term

	voids int // pending head voids, flushed before the next head instruction
}

// bodyCtx is the compilation context of a body goal.
type bodyCtx struct {
	cutMark int  // slot holding the cut barrier; -1 cuts the clause
	tail    bool // last goal of the clause
}

// SplitClause returns the head and body of a clause term. Facts have body
// true.
func SplitClause(t term.Term) (head, body term.Term) {
	if c, ok := t.(*term.Compound); ok && c.Functor == ":-" && len(c.Args) == 2 {
		return c.Args[0], c.Args[1]
	}
	return t, term.True
}

// Compile translates a clause term for module m. It returns the functor of
// the clause head and the compiled clause, not yet added to any predicate.
func (r *Registry) Compile(clause term.Term, m *Module) (FunctorID, *Clause, error) {
	head, body := SplitClause(clause)
	switch head.(type) {
	case term.Variable:
		return 0, nil, Throw(instantiationError())
	case term.Atom, *term.Compound:
	default:
		return 0, nil, Throw(typeError("callable", head))
	}
	if err := checkBody(body); err != nil {
		return 0, nil, err
	}
	c := &compiler{
		reg:    r,
		module: m,
		b:      NewBytecodeBuilder(),
		counts: make(map[term.Variable]int),
		slots:  make(map[term.Variable]int),
		seen:   make(map[term.Variable]bool),
	}
	c.count(head)
	c.count(body)
	name, _ := term.Name(head)
	f := r.Functor(r.Atom(string(name)), term.Arity(head))
	c.head(head)
	if body == term.True {
		c.b.Emit(OpIExitFact)
	} else {
		c.b.Emit(OpIEnter)
		if err := c.body(body, bodyCtx{cutMark: -1, tail: true}); err != nil {
			return 0, nil, err
		}
		c.b.Emit(OpIExit)
	}
	cl := &Clause{
		Code:     c.b.Bytes(),
		NVars:    c.nslots,
		Literals: c.literals,
		Key:      r.headKey(head),
		Source:   clause,
	}
	return f, cl, nil
}

// checkBody rejects bodies that contain non-callable goals.
func checkBody(t term.Term) error {
	switch x := t.(type) {
	case term.Variable, term.Atom:
		return nil
	case *term.Compound:
		if len(x.Args) == 2 {
			switch x.Functor {
			case ",", ";", "->", "*->", "|":
				if err := checkBody(x.Args[0]); err != nil {
					return err
				}
				return checkBody(x.Args[1])
			}
		}
		return nil
	}
	return Throw(typeError("callable", t))
}

// compileTransient builds an anonymous predicate '$call'(Vars...) :- body
// for a meta-called control construct.
func (r *Registry) compileTransient(body term.Term, vars []term.Variable, m *Module) (*Predicate, error) {
	args := make([]term.Term, len(vars))
	for i, v := range vars {
		args[i] = v
	}
	head := term.Comp("$call", args...)
	f, cl, err := r.Compile(term.Comp(":-", head, body), m)
	if err != nil {
		return nil, err
	}
	name, arity := r.FunctorOf(f)
	p := &Predicate{ID: ^ProcID(0), Functor: f, Name: name, Arity: arity, Module: m, Indexer: FirstArgIndexer{}}
	cl.Pred = p
	p.first.Store(cl)
	p.last = cl
	return p, nil
}

// resolveCall picks the predicate a compiled call binds to. Protected
// system predicates bind directly. Anything else binds to the caller's
// module, which falls back to the system module at run time for as long as
// it has no definition of its own.
func (r *Registry) resolveCall(m *Module, f FunctorID) *Predicate {
	if m.Name != AtomSystem {
		if sp := r.Lookup(r.System(), f); sp != nil && sp.IsDefined() && sp.Flags()&PredLibrary == 0 {
			return sp
		}
	}
	return r.Define(m, f)
}

// headKey is the indexing key of a clause: the first argument's atom,
// small integer or functor header, or 0.
func (r *Registry) headKey(head term.Term) Word {
	c, ok := head.(*term.Compound)
	if !ok {
		return 0
	}
	switch x := c.Args[0].(type) {
	case term.Atom:
		return MakeAtom(r.Atom(string(x)))
	case term.Int:
		if FitsSmall(int64(x)) {
			return MakeInt(int64(x))
		}
	case *term.Compound:
		return MakeFunctorHeader(r.Functor(r.Atom(string(x.Functor)), len(x.Args)))
	}
	return 0
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (c *compiler) count(t term.Term) {
	for {
		switch x := t.(type) {
		case term.Variable:
			c.counts[x]++
			return
		case *term.Compound:
			last := len(x.Args) - 1
			if last < 0 {
				return
			}
			for _, a := range x.Args[:last] {
				c.count(a)
			}
			t = x.Args[last]
			continue
		}
		return
	}
}

func (c *compiler) void(v term.Variable) bool { return c.counts[v] <= 1 }

func (c *compiler) newSlot() int {
	n := c.nslots
	c.nslots++
	return n
}

func (c *compiler) slot(v term.Variable) int {
	if s, ok := c.slots[v]; ok {
		return s
	}
	s := c.newSlot()
	c.slots[v] = s
	return s
}

// preinit gives every unseen variable of a control construct a fresh
// value before the construct runs, so all branches see it initialized.
func (c *compiler) preinit(t term.Term) {
	for _, v := range term.Vars(t) {
		if c.seen[v] || c.void(v) {
			continue
		}
		c.seen[v] = true
		c.b.EmitUint16(OpCVar, uint16(c.slot(v)))
	}
}

func (c *compiler) literal(t term.Term) uint16 {
	c.literals = append(c.literals, t)
	return uint16(len(c.literals) - 1)
}

// ---------------------------------------------------------------------------
// Head
// ---------------------------------------------------------------------------

func (c *compiler) head(h term.Term) {
	hc, ok := h.(*term.Compound)
	if !ok {
		return
	}
	c.nslots = len(hc.Args)
	direct := make([]bool, len(hc.Args))
	for i, a := range hc.Args {
		if v, ok := a.(term.Variable); ok && !c.seen[v] && !c.void(v) {
			c.slots[v] = i
			c.seen[v] = true
			direct[i] = true
		}
	}
	last := len(hc.Args) - 1
	for i, a := range hc.Args {
		if direct[i] {
			c.voids++
			continue
		}
		c.headTerm(a, i == last)
	}
	c.voids = 0
}

func (c *compiler) flushVoids() {
	switch {
	case c.voids == 1:
		c.b.Emit(OpHVoid)
	case c.voids > 1:
		c.b.EmitUint16(OpHVoidN, uint16(c.voids))
	}
	c.voids = 0
}

// headTerm emits instructions unifying t with the term at the argument
// pointer. With last set the term is the final argument of its parent and
// no position needs to be restored after it.
func (c *compiler) headTerm(t term.Term, last bool) {
	if v, ok := t.(term.Variable); ok {
		switch {
		case c.void(v):
			c.voids++
		case c.seen[v]:
			c.flushVoids()
			c.b.EmitUint16(OpHVar, uint16(c.slot(v)))
		default:
			c.flushVoids()
			c.seen[v] = true
			c.b.EmitUint16(OpHFirstVar, uint16(c.slot(v)))
		}
		return
	}
	c.flushVoids()
	switch x := t.(type) {
	case term.Atom:
		if x == term.Nil {
			c.b.Emit(OpHNil)
		} else {
			c.b.EmitUint32(OpHAtom, uint32(c.reg.Atom(string(x))))
		}
	case term.Int:
		if FitsSmall(int64(x)) {
			c.b.EmitInt64(OpHSmallInt, int64(x))
		} else {
			c.b.EmitUint16(OpHIndirect, c.literal(x))
		}
	case term.BigInt, term.String:
		c.b.EmitUint16(OpHIndirect, c.literal(x))
	case term.Float:
		c.b.EmitFloat64(OpHFloat, float64(x))
	case *term.Compound:
		if len(x.Args) == 0 {
			c.b.EmitUint32(OpHAtom, uint32(c.reg.Atom(string(x.Functor))))
			return
		}
		list := x.Functor == term.Dot && len(x.Args) == 2
		switch {
		case list && last:
			c.b.Emit(OpHRList)
		case list:
			c.b.Emit(OpHList)
		case last:
			c.b.EmitUint32(OpHRFunctor, uint32(c.functor(x)))
		default:
			c.b.EmitUint32(OpHFunctor, uint32(c.functor(x)))
		}
		n := len(x.Args) - 1
		for i, a := range x.Args {
			c.headTerm(a, i == n)
		}
		c.voids = 0
		if !last {
			c.b.Emit(OpHPop)
		}
	}
}

func (c *compiler) functor(x *term.Compound) FunctorID {
	return c.reg.Functor(c.reg.Atom(string(x.Functor)), len(x.Args))
}

// ---------------------------------------------------------------------------
// Body
// ---------------------------------------------------------------------------

func (c *compiler) body(g term.Term, ctx bodyCtx) error {
	switch x := g.(type) {
	case term.Variable:
		return c.call(term.Comp("call", x), ctx)
	case term.Atom:
		switch x {
		case term.True:
			return nil
		case "fail", term.False:
			c.b.Emit(OpIFail)
			return nil
		case "!":
			c.cut(ctx)
			return nil
		}
		return c.call(x, ctx)
	case *term.Compound:
		if len(x.Args) == 2 {
			a, b := x.Args[0], x.Args[1]
			switch x.Functor {
			case ",":
				if err := c.body(a, bodyCtx{cutMark: ctx.cutMark}); err != nil {
					return err
				}
				return c.body(b, ctx)
			case ";", "|":
				if ite, ok := a.(*term.Compound); ok && len(ite.Args) == 2 {
					switch ite.Functor {
					case "->":
						return c.ifThenElse(OpCIfThenElse, OpCCut, ite.Args[0], ite.Args[1], b, ctx)
					case "*->":
						return c.ifThenElse(OpCSoftIf, OpCSoftCut, ite.Args[0], ite.Args[1], b, ctx)
					}
				}
				return c.disjunction(a, b, ctx)
			case "->":
				return c.ifThenElse(OpCIfThenElse, OpCCut, a, b, term.Atom("fail"), ctx)
			case "*->":
				return c.ifThenElse(OpCSoftIf, OpCSoftCut, a, b, term.Atom("fail"), ctx)
			}
		}
		if len(x.Args) == 1 && x.Functor == "\\+" {
			return c.negation(x.Args[0])
		}
		return c.call(x, ctx)
	}
	return Throw(typeError("callable", g))
}

func (c *compiler) cut(ctx bodyCtx) {
	if ctx.cutMark < 0 {
		c.b.Emit(OpICut)
		return
	}
	c.b.EmitUint16(OpCLCut, uint16(ctx.cutMark))
}

func (c *compiler) ifThenElse(enter, commit Opcode, cond, then, els term.Term, ctx bodyCtx) error {
	c.preinit(term.Comp(";", cond, then, els))
	mark := c.newSlot()
	elseL, endL := c.b.NewLabel(), c.b.NewLabel()
	c.b.EmitVarJump(enter, uint16(mark), elseL)
	if err := c.body(cond, bodyCtx{cutMark: mark}); err != nil {
		return err
	}
	c.b.EmitUint16(commit, uint16(mark))
	if err := c.body(then, ctx); err != nil {
		return err
	}
	c.b.EmitJump(OpCJmp, endL)
	c.b.Mark(elseL)
	if err := c.body(els, ctx); err != nil {
		return err
	}
	c.b.Mark(endL)
	c.b.Emit(OpCEnd)
	return nil
}

func (c *compiler) disjunction(a, b term.Term, ctx bodyCtx) error {
	c.preinit(term.Comp(";", a, b))
	altL, endL := c.b.NewLabel(), c.b.NewLabel()
	c.b.EmitJump(OpCOr, altL)
	if err := c.body(a, ctx); err != nil {
		return err
	}
	c.b.EmitJump(OpCJmp, endL)
	c.b.Mark(altL)
	if err := c.body(b, ctx); err != nil {
		return err
	}
	c.b.Mark(endL)
	c.b.Emit(OpCEnd)
	return nil
}

func (c *compiler) negation(g term.Term) error {
	c.preinit(g)
	mark := c.newSlot()
	okL := c.b.NewLabel()
	c.b.EmitVarJump(OpCNot, uint16(mark), okL)
	if err := c.body(g, bodyCtx{cutMark: mark}); err != nil {
		return err
	}
	c.b.EmitUint16(OpCCut, uint16(mark))
	c.b.Emit(OpCFail)
	c.b.Mark(okL)
	c.b.Emit(OpCEnd)
	return nil
}

// call compiles a goal that is not a control construct, inlining
// unification, identity, arithmetic and throw/1 where possible.
func (c *compiler) call(g term.Term, ctx bodyCtx) error {
	name, _ := term.Name(g)
	var args []term.Term
	if x, ok := g.(*term.Compound); ok {
		args = x.Args
	}
	switch len(args) {
	case 1:
		if name == "throw" {
			c.bodyArg(args[0], true)
			c.b.Emit(OpBThrow)
			return nil
		}
	case 2:
		switch name {
		case "=":
			if c.inlineUnify(args[0], args[1]) {
				return nil
			}
		case "==", "\\==":
			if c.inlineCompare(name, args[0], args[1]) {
				return nil
			}
		case "is":
			if c.inlineIs(args[0], args[1]) {
				return nil
			}
		case "<", "=<", ">", ">=", "=:=", "=\\=":
			if c.inlineCompareArith(name, args[0], args[1]) {
				return nil
			}
		case ":":
			c.bodyArg(g, true)
			c.b.Emit(OpIUserCall0)
			return nil
		}
	}
	if name == "call" && len(args) >= 1 {
		for i, a := range args {
			c.bodyArg(a, i == len(args)-1)
		}
		if len(args) == 1 {
			c.b.Emit(OpIUserCall0)
		} else {
			c.b.EmitUint16(OpIUserCallN, uint16(len(args)-1))
		}
		return nil
	}
	for i, a := range args {
		c.bodyArg(a, i == len(args)-1)
	}
	p := c.reg.resolveCall(c.module, c.reg.Functor(c.reg.Atom(string(name)), len(args)))
	if ctx.tail {
		c.b.EmitUint32(OpIDepart, uint32(p.ID))
	} else {
		c.b.EmitUint32(OpICall, uint32(p.ID))
	}
	return nil
}

// bodyArg emits instructions writing t at the argument pointer.
func (c *compiler) bodyArg(t term.Term, last bool) {
	switch x := t.(type) {
	case term.Variable:
		switch {
		case c.void(x):
			c.b.Emit(OpBVoid)
		case c.seen[x]:
			c.b.EmitUint16(OpBVar, uint16(c.slot(x)))
		default:
			c.seen[x] = true
			c.b.EmitUint16(OpBFirstVar, uint16(c.slot(x)))
		}
	case term.Atom:
		if x == term.Nil {
			c.b.Emit(OpBNil)
		} else {
			c.b.EmitUint32(OpBAtom, uint32(c.reg.Atom(string(x))))
		}
	case term.Int:
		if FitsSmall(int64(x)) {
			c.b.EmitInt64(OpBSmallInt, int64(x))
		} else {
			c.b.EmitUint16(OpBIndirect, c.literal(x))
		}
	case term.BigInt, term.String:
		c.b.EmitUint16(OpBIndirect, c.literal(x))
	case term.Float:
		c.b.EmitFloat64(OpBFloat, float64(x))
	case *term.Compound:
		if len(x.Args) == 0 {
			c.b.EmitUint32(OpBAtom, uint32(c.reg.Atom(string(x.Functor))))
			return
		}
		list := x.Functor == term.Dot && len(x.Args) == 2
		switch {
		case list && last:
			c.b.Emit(OpBRList)
		case list:
			c.b.Emit(OpBList)
		case last:
			c.b.EmitUint32(OpBRFunctor, uint32(c.functor(x)))
		default:
			c.b.EmitUint32(OpBFunctor, uint32(c.functor(x)))
		}
		n := len(x.Args) - 1
		for i, a := range x.Args {
			c.bodyArg(a, i == n)
		}
		if !last {
			c.b.Emit(OpBPop)
		}
	}
}

// inlineUnify compiles X = T where at least one side is a variable.
func (c *compiler) inlineUnify(a, b term.Term) bool {
	va, aVar := a.(term.Variable)
	vb, bVar := b.(term.Variable)
	if !aVar && !bVar {
		return false
	}
	if aVar && bVar && c.seen[va] && c.seen[vb] && !c.void(va) && !c.void(vb) {
		c.b.EmitUint16x2(OpBUnifyVV, uint16(c.slot(va)), uint16(c.slot(vb)))
		return true
	}
	// put the better anchor on the left: a seen variable, then any variable
	if !aVar || (bVar && !c.seen[va] && c.seen[vb]) {
		a, b = b, a
		va = vb
	}
	switch {
	case c.void(va):
		if v, ok := b.(term.Variable); ok && c.void(v) {
			return true
		}
		c.b.EmitUint16(OpBUnifyFirstVar, uint16(c.newSlot()))
	case c.seen[va]:
		c.b.EmitUint16(OpBUnifyVar, uint16(c.slot(va)))
	default:
		c.seen[va] = true
		c.b.EmitUint16(OpBUnifyFirstVar, uint16(c.slot(va)))
	}
	c.headTerm(b, true)
	c.voids = 0
	c.b.Emit(OpBUnifyExit)
	return true
}

func (c *compiler) inlineCompare(name term.Atom, a, b term.Term) bool {
	va, ok1 := a.(term.Variable)
	vb, ok2 := b.(term.Variable)
	if !ok1 || !ok2 || !c.seen[va] || !c.seen[vb] || c.void(va) || c.void(vb) {
		return false
	}
	op := OpBEqVV
	if name == "\\==" {
		op = OpBNeqVV
	}
	c.b.EmitUint16x2(op, uint16(c.slot(va)), uint16(c.slot(vb)))
	return true
}

// evaluable reports whether e can be compiled to arithmetic instructions.
func (c *compiler) evaluable(e term.Term) bool {
	switch x := e.(type) {
	case term.Int, term.BigInt:
		return true
	case term.Float:
		return !math.IsNaN(float64(x))
	case term.Variable:
		return c.seen[x] && !c.void(x)
	case term.Atom:
		_, ok := LookupArith(string(x), 0)
		return ok
	case *term.Compound:
		if _, ok := LookupArith(string(x.Functor), len(x.Args)); !ok {
			return false
		}
		for _, a := range x.Args {
			if !c.evaluable(a) {
				return false
			}
		}
		return true
	}
	return false
}

func (c *compiler) expr(e term.Term) {
	switch x := e.(type) {
	case term.Int:
		c.b.EmitInt64(OpAInteger, int64(x))
	case term.BigInt:
		c.b.EmitUint16(OpAMPZ, c.literal(x))
	case term.Float:
		c.b.EmitFloat64(OpADouble, float64(x))
	case term.Variable:
		c.b.EmitUint16(OpAVar, uint16(c.slot(x)))
	case term.Atom:
		idx, _ := LookupArith(string(x), 0)
		c.b.EmitUint16(OpAFunc, uint16(idx))
	case *term.Compound:
		for _, a := range x.Args {
			c.expr(a)
		}
		idx, _ := LookupArith(string(x.Functor), len(x.Args))
		c.b.EmitUint16(OpAFunc, uint16(idx))
	}
}

func (c *compiler) inlineIs(lhs, e term.Term) bool {
	if !c.evaluable(e) {
		return false
	}
	if v, ok := lhs.(term.Variable); ok && !c.seen[v] {
		c.b.Emit(OpAEnter)
		c.expr(e)
		slot := c.newSlot()
		if !c.void(v) {
			c.seen[v] = true
			slot = c.slot(v)
		}
		c.b.EmitUint16(OpAFirstVarIs, uint16(slot))
		return true
	}
	c.bodyArg(lhs, true)
	c.b.Emit(OpAEnter)
	c.expr(e)
	c.b.Emit(OpAIs)
	return true
}

var arithCompareOps = map[term.Atom]Opcode{
	"<": OpALT, "=<": OpALE, ">": OpAGT, ">=": OpAGE, "=:=": OpAEQ, "=\\=": OpANE,
}

func (c *compiler) inlineCompareArith(name term.Atom, a, b term.Term) bool {
	if !c.evaluable(a) || !c.evaluable(b) {
		return false
	}
	c.b.Emit(OpAEnter)
	c.expr(a)
	c.expr(b)
	c.b.Emit(arithCompareOps[name])
	return true
}
