//go:build !hornvmdebug

package vm

const debugInvariants = false

func (m *Machine) checkBind(int, Word) {}
