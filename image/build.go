package image

import (
	"sort"

	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
)

// Options controls Build.
type Options struct {
	// IncludeSource keeps the clause terms of static predicates, so that
	// clause/2 works on them after loading. Dynamic predicates always
	// keep them.
	IncludeSource bool
	Entry         string
}

// savedFlags are the predicate properties an image preserves.
const savedFlags = vm.PredDynamic | vm.PredDeclared

type builder struct {
	reg      *vm.Registry
	img      *Image
	atoms    map[vm.AtomID]uint32
	functors map[vm.FunctorID]uint32
	procs    map[vm.ProcID]uint32
}

// Build captures the user module of reg: every predicate with clauses or
// a declaration, and the operator table.
func Build(reg *vm.Registry, opts Options) (*Image, error) {
	b := &builder{
		reg:      reg,
		img:      &Image{Version: Version, Entry: opts.Entry},
		atoms:    make(map[vm.AtomID]uint32),
		functors: make(map[vm.FunctorID]uint32),
		procs:    make(map[vm.ProcID]uint32),
	}
	gen := reg.Generation()
	for _, p := range reg.Predicates(reg.User()) {
		if p.IsForeign() {
			continue
		}
		ip := Predicate{Proc: b.proc(p.ID), Flags: uint32(p.Flags() & savedFlags)}
		keepSource := opts.IncludeSource || p.IsDynamic()
		for cl := p.FirstClause(); cl != nil; cl = cl.Next() {
			if !cl.Visible(gen) {
				continue
			}
			c, err := b.clause(cl, keepSource)
			if err != nil {
				return nil, err
			}
			ip.Clauses = append(ip.Clauses, c)
		}
		if len(ip.Clauses) == 0 && ip.Flags == 0 {
			continue
		}
		b.img.Preds = append(b.img.Preds, ip)
	}
	b.img.Ops = changedOps(reg.Ops())
	return b.img, nil
}

func (b *builder) clause(cl *vm.Clause, keepSource bool) (Clause, error) {
	code, err := relocate(cl.Code, b.atomMap, b.functorMap, b.procMap)
	if err != nil {
		return Clause{}, err
	}
	key, err := relocateKey(cl.Key, b.atomMap, b.functorMap)
	if err != nil {
		return Clause{}, err
	}
	c := Clause{Code: code, NVars: cl.NVars, Key: uint64(key)}
	for _, lit := range cl.Literals {
		c.Literals = append(c.Literals, EncodeTerm(lit))
	}
	if keepSource && cl.Source != nil {
		n := EncodeTerm(cl.Source)
		c.Source = &n
	}
	return c, nil
}

func (b *builder) atom(a vm.AtomID) uint32 {
	if i, ok := b.atoms[a]; ok {
		return i
	}
	i := uint32(len(b.img.Atoms))
	b.img.Atoms = append(b.img.Atoms, b.reg.AtomName(a))
	b.atoms[a] = i
	return i
}

func (b *builder) functor(f vm.FunctorID) uint32 {
	if i, ok := b.functors[f]; ok {
		return i
	}
	name, arity := b.reg.FunctorOf(f)
	i := uint32(len(b.img.Functors))
	b.img.Functors = append(b.img.Functors, Functor{Name: b.atom(name), Arity: arity})
	b.functors[f] = i
	return i
}

func (b *builder) proc(id vm.ProcID) uint32 {
	if i, ok := b.procs[id]; ok {
		return i
	}
	p := b.reg.Proc(id)
	i := uint32(len(b.img.Procs))
	b.img.Procs = append(b.img.Procs, Proc{Module: b.atom(p.Module.Name), Functor: b.functor(p.Functor)})
	b.procs[id] = i
	return i
}

func (b *builder) atomMap(h uint32) (uint32, error)    { return b.atom(vm.AtomID(h)), nil }
func (b *builder) functorMap(h uint32) (uint32, error) { return b.functor(vm.FunctorID(h)), nil }
func (b *builder) procMap(h uint32) (uint32, error)    { return b.proc(vm.ProcID(h)), nil }

// changedOps lists the operators of t that differ from the standard table.
func changedOps(t *term.OpTable) []Operator {
	std := term.DefaultOps()
	var out []Operator
	for _, pair := range [][2]map[term.Atom]term.Op{
		{t.Infix, std.Infix},
		{t.Prefix, std.Prefix},
		{t.Postfix, std.Postfix},
	} {
		cur, def := pair[0], pair[1]
		for name, op := range cur {
			if d, ok := def[name]; !ok || d != op {
				out = append(out, Operator{Name: string(name), Priority: op.Priority, Type: int(op.Type)})
			}
		}
		for name, op := range def {
			if _, ok := cur[name]; !ok {
				out = append(out, Operator{Name: string(name), Priority: 0, Type: int(op.Type)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}
