package vm

import (
	"math"
	"math/big"
	"math/bits"
	"math/rand/v2"
	"time"

	"fortio.org/safecast"
)

// ---------------------------------------------------------------------------
// Arithmetic functions
// ---------------------------------------------------------------------------

type arithFunc struct {
	name  string
	arity int
	fn0   func() (Number, error)
	fn1   func(Number) (Number, error)
	fn2   func(Number, Number) (Number, error)
}

// arithFuncs is indexed by the A_FUNC operand. Entries are only ever
// appended so compiled code stays valid across releases.
var arithFuncs = []arithFunc{
	{name: "+", arity: 2, fn2: numAdd},
	{name: "-", arity: 2, fn2: numSub},
	{name: "*", arity: 2, fn2: numMul},
	{name: "/", arity: 2, fn2: numDiv},
	{name: "//", arity: 2, fn2: numIntDiv},
	{name: "mod", arity: 2, fn2: numMod},
	{name: "rem", arity: 2, fn2: numRem},
	{name: "div", arity: 2, fn2: numFloorDiv},
	{name: "min", arity: 2, fn2: numMin},
	{name: "max", arity: 2, fn2: numMax},
	{name: "**", arity: 2, fn2: numPower},
	{name: "^", arity: 2, fn2: numIntPower},
	{name: ">>", arity: 2, fn2: numShiftRight},
	{name: "<<", arity: 2, fn2: numShiftLeft},
	{name: "/\\", arity: 2, fn2: bitwise(func(a, b int64) int64 { return a & b }, (*big.Int).And)},
	{name: "\\/", arity: 2, fn2: bitwise(func(a, b int64) int64 { return a | b }, (*big.Int).Or)},
	{name: "xor", arity: 2, fn2: bitwise(func(a, b int64) int64 { return a ^ b }, (*big.Int).Xor)},
	{name: "atan", arity: 2, fn2: floatFn2(math.Atan2)},
	{name: "atan2", arity: 2, fn2: floatFn2(math.Atan2)},
	{name: "copysign", arity: 2, fn2: floatFn2(math.Copysign)},
	{name: "log", arity: 2, fn2: numLog2Arg},
	{name: "gcd", arity: 2, fn2: numGCD},
	{name: "truncate", arity: 1, fn1: floatToInt(math.Trunc)},
	{name: "integer", arity: 1, fn1: floatToInt(math.Round)},
	{name: "round", arity: 1, fn1: floatToInt(math.Round)},
	{name: "ceiling", arity: 1, fn1: floatToInt(math.Ceil)},
	{name: "floor", arity: 1, fn1: floatToInt(math.Floor)},
	{name: "-", arity: 1, fn1: numNeg},
	{name: "+", arity: 1, fn1: func(a Number) (Number, error) { return a, nil }},
	{name: "abs", arity: 1, fn1: numAbs},
	{name: "sign", arity: 1, fn1: numSign},
	{name: "sqrt", arity: 1, fn1: floatFn1(math.Sqrt)},
	{name: "sin", arity: 1, fn1: floatFn1(math.Sin)},
	{name: "cos", arity: 1, fn1: floatFn1(math.Cos)},
	{name: "tan", arity: 1, fn1: floatFn1(math.Tan)},
	{name: "asin", arity: 1, fn1: floatFn1(math.Asin)},
	{name: "acos", arity: 1, fn1: floatFn1(math.Acos)},
	{name: "atan", arity: 1, fn1: floatFn1(math.Atan)},
	{name: "exp", arity: 1, fn1: floatFn1(math.Exp)},
	{name: "log", arity: 1, fn1: numLog},
	{name: "log2", arity: 1, fn1: floatFn1(math.Log2)},
	{name: "float", arity: 1, fn1: func(a Number) (Number, error) { return FloatNumber(a.toFloat()), nil }},
	{name: "float_integer_part", arity: 1, fn1: floatFn1(func(f float64) float64 { i, _ := math.Modf(f); return i })},
	{name: "float_fractional_part", arity: 1, fn1: floatFn1(func(f float64) float64 { _, x := math.Modf(f); return x })},
	{name: "\\", arity: 1, fn1: numBitNot},
	{name: "msb", arity: 1, fn1: numMSB},
	{name: "random", arity: 1, fn1: numRandom},
	{name: "pi", fn0: constant(math.Pi)},
	{name: "e", fn0: constant(math.E)},
	{name: "inf", fn0: constant(math.Inf(1))},
	{name: "nan", fn0: constant(math.NaN())},
	{name: "epsilon", fn0: constant(math.Nextafter(1, 2) - 1)},
	{name: "max_tagged_integer", fn0: func() (Number, error) { return IntNumber(MaxSmallInt), nil }},
	{name: "min_tagged_integer", fn0: func() (Number, error) { return IntNumber(MinSmallInt), nil }},
	{name: "random_float", fn0: func() (Number, error) { return FloatNumber(rand.Float64()), nil }},
	{name: "cputime", fn0: func() (Number, error) { return FloatNumber(time.Since(startTime).Seconds()), nil }},
	{name: "realtime", fn0: func() (Number, error) { return IntNumber(time.Now().Unix()), nil }},
}

var startTime = time.Now()

type arithKey struct {
	name  string
	arity int
}

var arithIndex = func() map[arithKey]int {
	idx := make(map[arithKey]int, len(arithFuncs))
	for i, f := range arithFuncs {
		idx[arithKey{f.name, f.arity}] = i
	}
	return idx
}()

// LookupArith returns the function table index of name/arity.
func LookupArith(name string, arity int) (int, bool) {
	i, ok := arithIndex[arithKey{name, arity}]
	return i, ok
}

func (f *arithFunc) apply(args []Number) (Number, error) {
	switch f.arity {
	case 0:
		return f.fn0()
	case 1:
		return f.fn1(args[0])
	}
	return f.fn2(args[0], args[1])
}

// ---------------------------------------------------------------------------
// Evaluation of stack terms
// ---------------------------------------------------------------------------

// eval evaluates the expression at w.
func (m *Machine) eval(w Word) (Number, error) {
	return m.evalDepth(w, 0)
}

func (m *Machine) evalDepth(w Word, depth int) (Number, error) {
	if depth > m.opts.ArithDepth {
		return Number{}, Throw(resourceError("argument"))
	}
	w = m.deref(w)
	switch w.Tag() {
	case TagRef:
		return Number{}, InstantiationError()
	case TagInt:
		return IntNumber(w.IntValue()), nil
	case TagIndirect:
		if n, ok := m.numberOf(w); ok {
			return n, nil
		}
		s := []rune(m.stringValue(w))
		if len(s) == 1 {
			return IntNumber(int64(s[0])), nil
		}
		return Number{}, TypeError("evaluable", m.Export(w))
	case TagAtom:
		name := m.reg.AtomName(w.Atom())
		i, ok := LookupArith(name, 0)
		if !ok {
			return Number{}, TypeError("evaluable", indicator(name, 0))
		}
		return arithFuncs[i].fn0()
	}
	f := m.functorOf(w)
	if f == FunctorDot && m.deref(m.arg(w, 1)) == MakeAtom(AtomNil) {
		return m.evalDepth(m.arg(w, 0), depth+1)
	}
	name, arity := m.reg.FunctorOf(f)
	i, ok := LookupArith(m.reg.AtomName(name), arity)
	if !ok {
		return Number{}, TypeError("evaluable", indicator(m.reg.AtomName(name), arity))
	}
	var args [2]Number
	for j := 0; j < arity; j++ {
		n, err := m.evalDepth(m.arg(w, j), depth+1)
		if err != nil {
			return Number{}, err
		}
		args[j] = n
	}
	return arithFuncs[i].apply(args[:arity])
}

// ---------------------------------------------------------------------------
// Integer helpers
// ---------------------------------------------------------------------------

func mustInt(n Number) error {
	if n.Kind == NumFloat {
		return TypeError("integer", n.Term())
	}
	return nil
}

func checkFloat(f float64) (Number, error) {
	switch {
	case math.IsNaN(f):
		return Number{}, EvaluationError("undefined")
	case math.IsInf(f, 0):
		return Number{}, EvaluationError("float_overflow")
	}
	return FloatNumber(f), nil
}

func bigOp(a, b Number, op func(z, x, y *big.Int) *big.Int) Number {
	return BigNumber(op(new(big.Int), a.toBig(), b.toBig()))
}

func numAdd(a, b Number) (Number, error) {
	if a.Kind == NumInt && b.Kind == NumInt {
		s := a.I + b.I
		if (a.I^s)&(b.I^s) >= 0 {
			return IntNumber(s), nil
		}
	}
	if a.isInt() && b.isInt() {
		return bigOp(a, b, (*big.Int).Add), nil
	}
	return checkFloat(a.toFloat() + b.toFloat())
}

func numSub(a, b Number) (Number, error) {
	if a.Kind == NumInt && b.Kind == NumInt {
		s := a.I - b.I
		if (a.I^b.I)&(a.I^s) >= 0 {
			return IntNumber(s), nil
		}
	}
	if a.isInt() && b.isInt() {
		return bigOp(a, b, (*big.Int).Sub), nil
	}
	return checkFloat(a.toFloat() - b.toFloat())
}

func numMul(a, b Number) (Number, error) {
	if a.Kind == NumInt && b.Kind == NumInt {
		hi, lo := bits.Mul64(uint64(abs64(a.I)), uint64(abs64(b.I)))
		if hi == 0 && lo <= math.MaxInt64 && a.I != math.MinInt64 && b.I != math.MinInt64 {
			p := int64(lo)
			if (a.I < 0) != (b.I < 0) {
				p = -p
			}
			return IntNumber(p), nil
		}
	}
	if a.isInt() && b.isInt() {
		return bigOp(a, b, (*big.Int).Mul), nil
	}
	return checkFloat(a.toFloat() * b.toFloat())
}

func abs64(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}

func numDiv(a, b Number) (Number, error) {
	if a.isInt() && b.isInt() {
		if b.sign() == 0 {
			return Number{}, EvaluationError("zero_divisor")
		}
		q, r := new(big.Int).QuoRem(a.toBig(), b.toBig(), new(big.Int))
		if r.Sign() == 0 {
			return BigNumber(q), nil
		}
	} else if b.toFloat() == 0 {
		return Number{}, EvaluationError("zero_divisor")
	}
	return checkFloat(a.toFloat() / b.toFloat())
}

func intDivision(a, b Number, op func(z, x, y *big.Int) *big.Int) (Number, error) {
	if err := mustInt(a); err != nil {
		return Number{}, err
	}
	if err := mustInt(b); err != nil {
		return Number{}, err
	}
	if b.sign() == 0 {
		return Number{}, EvaluationError("zero_divisor")
	}
	return bigOp(a, b, op), nil
}

// truncating division
func numIntDiv(a, b Number) (Number, error) {
	if a.Kind == NumInt && b.Kind == NumInt && b.I != 0 && !(a.I == math.MinInt64 && b.I == -1) {
		return IntNumber(a.I / b.I), nil
	}
	return intDivision(a, b, (*big.Int).Quo)
}

func numRem(a, b Number) (Number, error) {
	if a.Kind == NumInt && b.Kind == NumInt && b.I != 0 && b.I != -1 {
		return IntNumber(a.I % b.I), nil
	}
	return intDivision(a, b, (*big.Int).Rem)
}

// mod takes the sign of the divisor.
func numMod(a, b Number) (Number, error) {
	r, err := intDivision(a, b, (*big.Int).Rem)
	if err != nil {
		return r, err
	}
	if r.sign() != 0 && r.sign() != b.sign() {
		return numAdd(r, b)
	}
	return r, nil
}

// div rounds toward negative infinity.
func numFloorDiv(a, b Number) (Number, error) {
	m, err := numMod(a, b)
	if err != nil {
		return m, err
	}
	d, err := numSub(a, m)
	if err != nil {
		return d, err
	}
	return intDivision(d, b, (*big.Int).Quo)
}

func numMin(a, b Number) (Number, error) {
	if compareValue(b, a) < 0 {
		return b, nil
	}
	return a, nil
}

func numMax(a, b Number) (Number, error) {
	if compareValue(b, a) > 0 {
		return b, nil
	}
	return a, nil
}

// maxExponentBits bounds integer powers and shifts.
const maxExponentBits = 1 << 26

func bigPow(a, b Number) (Number, error) {
	if b.Kind == NumBig || (a.toBig().BitLen()*int(min(b.I, maxExponentBits)) > maxExponentBits && a.toBig().CmpAbs(big.NewInt(1)) > 0) {
		return Number{}, Throw(resourceError("memory"))
	}
	return BigNumber(new(big.Int).Exp(a.toBig(), b.toBig(), nil)), nil
}

// ** yields an integer for integer operands with a non-negative exponent.
func numPower(a, b Number) (Number, error) {
	if a.isInt() && b.isInt() && b.sign() >= 0 {
		return bigPow(a, b)
	}
	return checkFloat(math.Pow(a.toFloat(), b.toFloat()))
}

func numIntPower(a, b Number) (Number, error) {
	if !a.isInt() || !b.isInt() {
		return checkFloat(math.Pow(a.toFloat(), b.toFloat()))
	}
	if b.sign() >= 0 {
		return bigPow(a, b)
	}
	switch {
	case a.Kind == NumInt && a.I == 1:
		return IntNumber(1), nil
	case a.Kind == NumInt && a.I == -1:
		if b.toBig().Bit(0) == 0 {
			return IntNumber(1), nil
		}
		return IntNumber(-1), nil
	case a.sign() == 0:
		return Number{}, EvaluationError("zero_divisor")
	}
	return Number{}, TypeError("float", a.Term())
}

func shiftCount(b Number) (int64, error) {
	if err := mustInt(b); err != nil {
		return 0, err
	}
	if b.Kind == NumBig {
		return 0, Throw(resourceError("memory"))
	}
	return b.I, nil
}

func shift(a Number, n int64) (Number, error) {
	if err := mustInt(a); err != nil {
		return Number{}, err
	}
	if n < 0 {
		c, err := safecast.Convert[uint](-n)
		if err != nil {
			return Number{}, Throw(resourceError("memory"))
		}
		return BigNumber(new(big.Int).Rsh(a.toBig(), c)), nil
	}
	if n > maxExponentBits {
		return Number{}, Throw(resourceError("memory"))
	}
	c, err := safecast.Convert[uint](n)
	if err != nil {
		return Number{}, Throw(resourceError("memory"))
	}
	return BigNumber(new(big.Int).Lsh(a.toBig(), c)), nil
}

func numShiftLeft(a, b Number) (Number, error) {
	n, err := shiftCount(b)
	if err != nil {
		return Number{}, err
	}
	return shift(a, n)
}

func numShiftRight(a, b Number) (Number, error) {
	n, err := shiftCount(b)
	if err != nil {
		return Number{}, err
	}
	return shift(a, -n)
}

func bitwise(small func(a, b int64) int64, op func(z, x, y *big.Int) *big.Int) func(a, b Number) (Number, error) {
	return func(a, b Number) (Number, error) {
		if err := mustInt(a); err != nil {
			return Number{}, err
		}
		if err := mustInt(b); err != nil {
			return Number{}, err
		}
		if a.Kind == NumInt && b.Kind == NumInt {
			return IntNumber(small(a.I, b.I)), nil
		}
		return bigOp(a, b, op), nil
	}
}

func numBitNot(a Number) (Number, error) {
	if err := mustInt(a); err != nil {
		return Number{}, err
	}
	if a.Kind == NumInt {
		return IntNumber(^a.I), nil
	}
	return BigNumber(new(big.Int).Not(a.B)), nil
}

func numMSB(a Number) (Number, error) {
	if err := mustInt(a); err != nil {
		return Number{}, err
	}
	if a.sign() <= 0 {
		return Number{}, TypeError("positive_integer", a.Term())
	}
	return IntNumber(int64(a.toBig().BitLen() - 1)), nil
}

func numGCD(a, b Number) (Number, error) {
	if err := mustInt(a); err != nil {
		return Number{}, err
	}
	if err := mustInt(b); err != nil {
		return Number{}, err
	}
	x := new(big.Int).Abs(a.toBig())
	y := new(big.Int).Abs(b.toBig())
	return BigNumber(new(big.Int).GCD(nil, nil, x, y)), nil
}

func numNeg(a Number) (Number, error) {
	switch {
	case a.Kind == NumInt && a.I != math.MinInt64:
		return IntNumber(-a.I), nil
	case a.Kind == NumFloat:
		return FloatNumber(-a.F), nil
	}
	return BigNumber(new(big.Int).Neg(a.toBig())), nil
}

func numAbs(a Number) (Number, error) {
	if a.sign() < 0 {
		return numNeg(a)
	}
	return a, nil
}

func numSign(a Number) (Number, error) {
	if a.Kind == NumFloat {
		return FloatNumber(float64(a.sign())), nil
	}
	return IntNumber(int64(a.sign())), nil
}

func numLog(a Number) (Number, error) {
	if a.sign() <= 0 {
		return Number{}, EvaluationError("undefined")
	}
	return checkFloat(math.Log(a.toFloat()))
}

func numLog2Arg(base, x Number) (Number, error) {
	if base.sign() <= 0 || x.sign() <= 0 {
		return Number{}, EvaluationError("undefined")
	}
	return checkFloat(math.Log(x.toFloat()) / math.Log(base.toFloat()))
}

func numRandom(a Number) (Number, error) {
	if err := mustInt(a); err != nil {
		return Number{}, err
	}
	if a.Kind != NumInt || a.I <= 0 {
		return Number{}, DomainError("positive_integer", a.Term())
	}
	return IntNumber(rand.Int64N(a.I)), nil
}

func floatFn1(fn func(float64) float64) func(Number) (Number, error) {
	return func(a Number) (Number, error) { return checkFloat(fn(a.toFloat())) }
}

func floatFn2(fn func(a, b float64) float64) func(Number, Number) (Number, error) {
	return func(a, b Number) (Number, error) { return checkFloat(fn(a.toFloat(), b.toFloat())) }
}

func constant(f float64) func() (Number, error) {
	return func() (Number, error) { return FloatNumber(f), nil }
}

// floatToInt rounds a float with fn and converts it to an integer.
func floatToInt(fn func(float64) float64) func(Number) (Number, error) {
	return func(a Number) (Number, error) {
		if a.isInt() {
			return a, nil
		}
		f := fn(a.F)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Number{}, EvaluationError("undefined")
		}
		if i, err := safecast.Convert[int64](f); err == nil {
			return IntNumber(i), nil
		}
		b, _ := new(big.Float).SetFloat64(f).Int(nil)
		return BigNumber(b), nil
	}
}

// ---------------------------------------------------------------------------
// Interpreter support
// ---------------------------------------------------------------------------

func (m *Machine) pushNum(n Number) bool {
	if !m.require(StackArgument, 1) {
		return false
	}
	m.nums = append(m.nums, n)
	return true
}

func (m *Machine) popNum() Number {
	n := m.nums[len(m.nums)-1]
	m.nums = m.nums[:len(m.nums)-1]
	return n
}
