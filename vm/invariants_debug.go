//go:build hornvmdebug

package vm

import "fmt"

const debugInvariants = true

// checkBind verifies that a variable is only ever bound to an older cell,
// so that no reference points from an old cell into younger space.
func (m *Machine) checkBind(idx int, value Word) {
	if m.global[idx] != MakeRef(idx) {
		panic(fmt.Sprintf("vm: binding bound cell %d", idx))
	}
	if value.Tag() == TagRef && value.Index() > idx {
		panic(fmt.Sprintf("vm: cell %d bound to younger cell %d", idx, value.Index()))
	}
}
