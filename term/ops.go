package term

// OpType is an ISO operator specifier.
type OpType int

const (
	XFX OpType = iota
	XFY
	YFX
	FY
	FX
	XF
	YF
)

// Op is an operator definition.
type Op struct {
	Priority int
	Type     OpType
}

// IsPrefix reports whether the operator is a prefix operator.
func (o Op) IsPrefix() bool { return o.Type == FY || o.Type == FX }

// IsPostfix reports whether the operator is a postfix operator.
func (o Op) IsPostfix() bool { return o.Type == XF || o.Type == YF }

// ArgPriorities returns the maximum priorities allowed for the left and
// right operands.
func (o Op) ArgPriorities() (left, right int) {
	switch o.Type {
	case XFX:
		return o.Priority - 1, o.Priority - 1
	case XFY:
		return o.Priority - 1, o.Priority
	case YFX:
		return o.Priority, o.Priority - 1
	case FY:
		return 0, o.Priority
	case FX:
		return 0, o.Priority - 1
	case XF:
		return o.Priority - 1, 0
	case YF:
		return o.Priority, 0
	}
	return 0, 0
}

// OpTable holds infix, prefix and postfix operator definitions.
type OpTable struct {
	Infix   map[Atom]Op
	Prefix  map[Atom]Op
	Postfix map[Atom]Op
}

// DefaultOps returns a fresh table holding the standard operators.
func DefaultOps() *OpTable {
	t := &OpTable{
		Infix:   make(map[Atom]Op),
		Prefix:  make(map[Atom]Op),
		Postfix: make(map[Atom]Op),
	}
	for _, d := range []struct {
		p     int
		typ   OpType
		names []Atom
	}{
		{1200, XFX, []Atom{":-", "-->"}},
		{1200, FX, []Atom{":-", "?-"}},
		{1100, XFY, []Atom{";"}},
		{1105, XFY, []Atom{"|"}},
		{1050, XFY, []Atom{"->", "*->"}},
		{1000, XFY, []Atom{","}},
		{1150, FX, []Atom{"dynamic", "discontiguous", "initialization"}},
		{990, XFX, []Atom{":="}},
		{900, FY, []Atom{"\\+"}},
		{700, XFX, []Atom{"=", "\\=", "==", "\\==", "@<", "@>", "@=<", "@>=",
			"=..", "is", "=:=", "=\\=", "<", ">", "=<", ">="}},
		{600, XFY, []Atom{":"}},
		{500, YFX, []Atom{"+", "-", "/\\", "\\/", "xor"}},
		{400, YFX, []Atom{"*", "/", "//", "rem", "mod", "div", "<<", ">>", "divmod"}},
		{200, XFX, []Atom{"**"}},
		{200, XFY, []Atom{"^"}},
		{200, FY, []Atom{"-", "+", "\\"}},
	} {
		for _, n := range d.names {
			t.Add(n, d.p, d.typ)
		}
	}
	return t
}

// Add defines or redefines an operator. Priority 0 removes it.
func (t *OpTable) Add(name Atom, priority int, typ OpType) {
	var m map[Atom]Op
	switch typ {
	case XFX, XFY, YFX:
		m = t.Infix
	case FY, FX:
		m = t.Prefix
	default:
		m = t.Postfix
	}
	if priority == 0 {
		delete(m, name)
		return
	}
	m[name] = Op{Priority: priority, Type: typ}
}
