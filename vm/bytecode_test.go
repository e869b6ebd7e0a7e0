package vm

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/horn/reader"
)

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op    Opcode
		name  string
		bytes int
	}{
		{OpHAtom, "H_ATOM", 4},
		{OpHSmallInt, "H_SMALLINT", 8},
		{OpHNil, "H_NIL", 0},
		{OpBVar, "B_VAR", 2},
		{OpICall, "I_CALL", 4},
		{OpIDepart, "I_DEPART", 4},
		{OpCOr, "C_OR", 4},
		{OpCIfThenElse, "C_IFTHENELSE", 6},
		{OpBUnifyVV, "B_UNIFY_VV", 4},
	}
	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%d: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if got := info.OperandBytes(); got != tt.bytes {
			t.Errorf("%s: OperandBytes = %d, want %d", tt.name, got, tt.bytes)
		}
		if !tt.op.Valid() {
			t.Errorf("%s: not Valid", tt.name)
		}
	}
}

func TestBuilderReaderRoundTrip(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpIEnter)
	b.EmitUint16(OpBVar, 3)
	b.EmitUint16x2(OpBUnifyVV, 1, 2)
	b.EmitUint32(OpICall, 77)
	b.EmitInt64(OpBSmallInt, -12345)
	b.EmitFloat64(OpBFloat, math.Pi)
	b.Emit(OpIExit)

	r := NewBytecodeReader(b.Bytes())
	if op := r.ReadOpcode(); op != OpIEnter {
		t.Fatalf("op = %s", op)
	}
	if op, v := r.ReadOpcode(), r.ReadUint16(); op != OpBVar || v != 3 {
		t.Errorf("B_VAR = %s %d", op, v)
	}
	if op, a, c := r.ReadOpcode(), r.ReadUint16(), r.ReadUint16(); op != OpBUnifyVV || a != 1 || c != 2 {
		t.Errorf("B_UNIFY_VV = %s %d %d", op, a, c)
	}
	if op, v := r.ReadOpcode(), r.ReadUint32(); op != OpICall || v != 77 {
		t.Errorf("I_CALL = %s %d", op, v)
	}
	if op, v := r.ReadOpcode(), r.ReadInt64(); op != OpBSmallInt || v != -12345 {
		t.Errorf("B_SMALLINT = %s %d", op, v)
	}
	if op, v := r.ReadOpcode(), r.ReadFloat64(); op != OpBFloat || v != math.Pi {
		t.Errorf("B_FLOAT = %s %v", op, v)
	}
	if op := r.ReadOpcode(); op != OpIExit {
		t.Errorf("last op = %s", op)
	}
	if r.HasMore() {
		t.Error("reader has trailing bytes")
	}
}

func TestLabelsPatchForwardJumps(t *testing.T) {
	b := NewBytecodeBuilder()
	l := b.NewLabel()
	b.EmitJump(OpCOr, l)
	b.Emit(OpIFail)
	b.Mark(l)
	b.Emit(OpITrue)

	r := NewBytecodeReader(b.Bytes())
	r.ReadOpcode()
	off := int32(r.ReadUint32())
	after := r.Position()
	if target := after + int(off); target != 6 {
		t.Errorf("jump target = %d, want 6", target)
	}
}

func TestWalkOperands(t *testing.T) {
	b := NewBytecodeBuilder()
	b.Emit(OpIEnter)
	b.EmitUint32(OpHAtom, 5)
	b.EmitUint32(OpICall, 9)
	b.Emit(OpIExit)
	var kinds []OperandKind
	var positions []int
	err := WalkOperands(b.Bytes(), func(kind OperandKind, pos int) error {
		kinds = append(kinds, kind)
		positions = append(positions, pos)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 || kinds[0] != OperandAtom || kinds[1] != OperandProc {
		t.Errorf("kinds = %v", kinds)
	}
	if len(positions) != 2 || positions[0] != 2 || positions[1] != 7 {
		t.Errorf("positions = %v, want [2 7]", positions)
	}

	if err := WalkOperands([]byte{byte(OpHAtom), 0}, func(OperandKind, int) error { return nil }); err == nil {
		t.Error("truncated operand accepted")
	}
}

func TestDisassembleCompiledClause(t *testing.T) {
	reg := NewRegistry()
	NewMachine(reg, Options{})
	clause, _, err := reader.ParseTerm("count(N) :- N > 0, N1 is N - 1, count(N1)")
	if err != nil {
		t.Fatal(err)
	}
	_, cl, err := reg.Compile(clause, reg.User())
	if err != nil {
		t.Fatal(err)
	}
	text := Disassemble(cl.Code, reg)
	for _, want := range []string{"I_ENTER", "A_GT", "A_FIRSTVAR_IS", "I_DEPART count/1"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, text)
		}
	}
}

func TestCompileFactAndIndexKey(t *testing.T) {
	reg := NewRegistry()
	NewMachine(reg, Options{})
	fact, _, _ := reader.ParseTerm("colour(red, [x|_])")
	f, cl, err := reg.Compile(fact, reg.User())
	if err != nil {
		t.Fatal(err)
	}
	name, arity := reg.FunctorOf(f)
	if reg.AtomName(name) != "colour" || arity != 2 {
		t.Errorf("functor = %s/%d", reg.AtomName(name), arity)
	}
	text := Disassemble(cl.Code, reg)
	if !strings.Contains(text, "H_ATOM red") || !strings.HasSuffix(text, "I_EXITFACT") {
		t.Errorf("fact code:\n%s", text)
	}
	if cl.Key != MakeAtom(reg.Atom("red")) {
		t.Errorf("index key = %x", cl.Key)
	}
}

func TestCompileRejectsBadClauses(t *testing.T) {
	reg := NewRegistry()
	NewMachine(reg, Options{})
	for _, src := range []string{"foo :- 1", "3 :- true", "foo :- (true, 7)"} {
		clause, _, err := reader.ParseTerm(src)
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := reg.Compile(clause, reg.User()); err == nil {
			t.Errorf("Compile(%s) succeeded", src)
		}
	}
}
