package vm

import (
	"math"
	"math/big"

	"github.com/chazu/horn/term"
)

// NumKind distinguishes the representations of a Number.
type NumKind uint8

const (
	NumInt NumKind = iota
	NumBig
	NumFloat
)

// Number is an evaluated arithmetic value. Integers that fit an int64 are
// always NumInt; NumBig holds only values outside that range.
type Number struct {
	Kind NumKind
	I    int64
	B    *big.Int
	F    float64
}

func IntNumber(i int64) Number     { return Number{Kind: NumInt, I: i} }
func FloatNumber(f float64) Number { return Number{Kind: NumFloat, F: f} }

// BigNumber normalizes b to NumInt when it fits.
func BigNumber(b *big.Int) Number {
	if b.IsInt64() {
		return IntNumber(b.Int64())
	}
	return Number{Kind: NumBig, B: b}
}

func (n Number) isInt() bool { return n.Kind != NumFloat }

func (n Number) isNaN() bool { return n.Kind == NumFloat && math.IsNaN(n.F) }

func (n Number) toBig() *big.Int {
	if n.Kind == NumBig {
		return n.B
	}
	return big.NewInt(n.I)
}

func (n Number) toFloat() float64 {
	switch n.Kind {
	case NumInt:
		return float64(n.I)
	case NumBig:
		f, _ := new(big.Float).SetInt(n.B).Float64()
		return f
	}
	return n.F
}

func (n Number) sign() int {
	switch n.Kind {
	case NumInt:
		switch {
		case n.I < 0:
			return -1
		case n.I > 0:
			return 1
		}
		return 0
	case NumBig:
		return n.B.Sign()
	}
	switch {
	case n.F < 0:
		return -1
	case n.F > 0:
		return 1
	}
	return 0
}

// Term converts n to its Go term form.
func (n Number) Term() term.Term {
	switch n.Kind {
	case NumInt:
		return term.Int(n.I)
	case NumBig:
		return term.NewBig(n.B)
	}
	return term.Float(n.F)
}

// numberOf reads a dereferenced numeric word.
func (m *Machine) numberOf(w Word) (Number, bool) {
	switch w.Tag() {
	case TagInt:
		return IntNumber(w.IntValue()), true
	case TagIndirect:
		switch m.indirectHeader(w).indirectKind() {
		case IndFloat:
			return FloatNumber(m.floatValue(w)), true
		case IndBig:
			return BigNumber(m.bigValue(w)), true
		}
	}
	return Number{}, false
}

func numberCells(n Number) int {
	switch n.Kind {
	case NumInt:
		if FitsSmall(n.I) {
			return 0
		}
		return bigWords(big.NewInt(n.I))
	case NumBig:
		return bigWords(n.B)
	}
	return 3
}

// numberWord stores n on the global stack. It reports false when the
// global stack overflows.
func (m *Machine) numberWord(n Number) (Word, bool) {
	if !m.require(StackGlobal, numberCells(n)) {
		return 0, false
	}
	switch n.Kind {
	case NumInt:
		if FitsSmall(n.I) {
			return MakeInt(n.I), true
		}
		return m.putBig(big.NewInt(n.I)), true
	case NumBig:
		return m.putBig(n.B), true
	}
	return m.putFloat(n.F), true
}

// compareValue compares numerically, as =:= and < do.
func compareValue(a, b Number) int {
	if a.Kind == NumInt && b.Kind == NumInt {
		switch {
		case a.I < b.I:
			return -1
		case a.I > b.I:
			return 1
		}
		return 0
	}
	if a.isInt() && b.isInt() {
		return a.toBig().Cmp(b.toBig())
	}
	if a.Kind == NumFloat && b.Kind == NumFloat {
		return compareFloat(a.F, b.F)
	}
	// mixed: compare exactly when the float is finite
	var f float64
	var i Number
	sign := 1
	if a.Kind == NumFloat {
		f, i = a.F, b
	} else {
		f, i, sign = b.F, a, -1
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return sign * compareFloat(f, 0)
	}
	bf := new(big.Float).SetFloat64(f)
	return sign * bf.Cmp(new(big.Float).SetInt(i.toBig()))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareStandard orders numbers for the standard order of terms: by
// value, and a float before an integer of equal value.
func compareStandard(a, b Number) int {
	if c := compareValue(a, b); c != 0 {
		return c
	}
	switch {
	case a.Kind == NumFloat && b.Kind != NumFloat:
		return -1
	case a.Kind != NumFloat && b.Kind == NumFloat:
		return 1
	}
	return 0
}
