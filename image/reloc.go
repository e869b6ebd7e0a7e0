package image

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/horn/vm"
)

// handleMap renumbers one kind of handle.
type handleMap func(uint32) (uint32, error)

// relocate returns a copy of code with every atom, functor and procedure
// operand passed through the matching map.
func relocate(code []byte, atoms, functors, procs handleMap) ([]byte, error) {
	out := make([]byte, len(code))
	copy(out, code)
	err := vm.WalkOperands(out, func(kind vm.OperandKind, pos int) error {
		var m handleMap
		switch kind {
		case vm.OperandAtom:
			m = atoms
		case vm.OperandFunctor:
			m = functors
		case vm.OperandProc:
			m = procs
		default:
			return nil
		}
		h, err := m(binary.LittleEndian.Uint32(out[pos:]))
		if err != nil {
			return fmt.Errorf("operand at %d: %w", pos, err)
		}
		binary.LittleEndian.PutUint32(out[pos:], h)
		return nil
	})
	return out, err
}

// relocateKey renumbers the handle inside a first-argument index key.
func relocateKey(key vm.Word, atoms, functors handleMap) (vm.Word, error) {
	switch key.Tag() {
	case vm.TagAtom:
		a, err := atoms(uint32(key.Atom()))
		if err != nil {
			return 0, err
		}
		return vm.MakeAtom(vm.AtomID(a)), nil
	case vm.TagFunctor:
		f, err := functors(uint32(key.Functor()))
		if err != nil {
			return 0, err
		}
		return vm.MakeFunctorHeader(vm.FunctorID(f)), nil
	}
	return key, nil
}

// table maps image indices back onto registry handles.
func table(name string, ids []uint32) handleMap {
	return func(i uint32) (uint32, error) {
		if int(i) >= len(ids) {
			return 0, fmt.Errorf("%s index %d out of range (%d entries)", name, i, len(ids))
		}
		return ids[i], nil
	}
}
