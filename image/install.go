package image

import (
	"fmt"

	"github.com/chazu/horn/term"
	"github.com/chazu/horn/vm"
)

// Install defines the predicates of img in reg, replacing any clauses
// they already have, and applies its operator table.
func Install(reg *vm.Registry, img *Image) error {
	atoms := make([]uint32, len(img.Atoms))
	for i, name := range img.Atoms {
		atoms[i] = uint32(reg.Atom(name))
	}
	atomMap := table("atom", atoms)

	functors := make([]uint32, len(img.Functors))
	for i, f := range img.Functors {
		name, err := atomMap(f.Name)
		if err != nil {
			return fmt.Errorf("image: functor %d: %w", i, err)
		}
		functors[i] = uint32(reg.Functor(vm.AtomID(name), f.Arity))
	}
	functorMap := table("functor", functors)

	procs := make([]uint32, len(img.Procs))
	for i, p := range img.Procs {
		mod, err := atomMap(p.Module)
		if err != nil {
			return fmt.Errorf("image: procedure %d: %w", i, err)
		}
		f, err := functorMap(p.Functor)
		if err != nil {
			return fmt.Errorf("image: procedure %d: %w", i, err)
		}
		procs[i] = uint32(reg.Define(reg.Module(vm.AtomID(mod)), vm.FunctorID(f)).ID)
	}
	procMap := table("procedure", procs)

	for _, ip := range img.Preds {
		id, err := procMap(ip.Proc)
		if err != nil {
			return fmt.Errorf("image: %w", err)
		}
		p := reg.Proc(vm.ProcID(id))
		if p.IsForeign() {
			return fmt.Errorf("image: %s is a builtin", reg.Indicator(p))
		}
		clauses := make([]*vm.Clause, 0, len(ip.Clauses))
		for i, ic := range ip.Clauses {
			cl, err := installClause(ic, atomMap, functorMap, procMap)
			if err != nil {
				return fmt.Errorf("image: %s clause %d: %w", reg.Indicator(p), i+1, err)
			}
			clauses = append(clauses, cl)
		}
		reg.Abolish(p)
		p.SetFlags(vm.PredFlags(ip.Flags) & savedFlags)
		for _, cl := range clauses {
			reg.AddClause(p, cl, false)
		}
		log.Debugf("installed %s (%d clauses)", reg.Indicator(p), len(clauses))
	}

	for _, op := range img.Ops {
		reg.Ops().Add(term.Atom(op.Name), op.Priority, term.OpType(op.Type))
	}
	return nil
}

func installClause(ic Clause, atoms, functors, procs handleMap) (*vm.Clause, error) {
	code, err := relocate(ic.Code, atoms, functors, procs)
	if err != nil {
		return nil, err
	}
	key, err := relocateKey(vm.Word(ic.Key), atoms, functors)
	if err != nil {
		return nil, err
	}
	cl := &vm.Clause{Code: code, NVars: ic.NVars, Key: key}
	for _, n := range ic.Literals {
		t, err := DecodeTerm(n)
		if err != nil {
			return nil, err
		}
		cl.Literals = append(cl.Literals, t)
	}
	if ic.Source != nil {
		if cl.Source, err = DecodeTerm(*ic.Source); err != nil {
			return nil, err
		}
	}
	return cl, nil
}
