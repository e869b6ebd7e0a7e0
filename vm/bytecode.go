package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Head unification. These match the instruction's constant or structure
// against the term at the argument pointer and advance it.
const (
	OpHAtom     Opcode = 0x10 // match atom (32-bit atom)
	OpHNil      Opcode = 0x11 // match []
	OpHSmallInt Opcode = 0x12 // match integer (64-bit)
	OpHFloat    Opcode = 0x13 // match float (64-bit)
	OpHIndirect Opcode = 0x14 // match bignum or string literal (16-bit literal)
	OpHFunctor  Opcode = 0x15 // enter compound (32-bit functor)
	OpHRFunctor Opcode = 0x16 // enter compound in last argument position
	OpHList     Opcode = 0x17 // enter list cell
	OpHRList    Opcode = 0x18 // enter list cell in last argument position
	OpHVoid     Opcode = 0x19 // skip one argument
	OpHVoidN    Opcode = 0x1A // skip n arguments (16-bit count)
	OpHVar      Opcode = 0x1B // unify with variable slot (16-bit slot)
	OpHFirstVar Opcode = 0x1C // initialize variable slot (16-bit slot)
	OpHPop      Opcode = 0x1D // leave compound
)

// Body argument construction. These write the argument cell at the
// argument pointer and advance it.
const (
	OpBAtom          Opcode = 0x30 // atom (32-bit atom)
	OpBNil           Opcode = 0x31 // []
	OpBSmallInt      Opcode = 0x32 // integer (64-bit)
	OpBFloat         Opcode = 0x33 // float (64-bit)
	OpBIndirect      Opcode = 0x34 // bignum or string literal (16-bit literal)
	OpBFunctor       Opcode = 0x35 // new compound (32-bit functor)
	OpBRFunctor      Opcode = 0x36 // new compound in last argument position
	OpBList          Opcode = 0x37 // new list cell
	OpBRList         Opcode = 0x38 // new list cell in last argument position
	OpBVoid          Opcode = 0x39 // fresh variable
	OpBVar           Opcode = 0x3A // variable slot (16-bit slot)
	OpBFirstVar      Opcode = 0x3B // fresh variable stored in slot (16-bit slot)
	OpBPop           Opcode = 0x3C // leave compound
	OpBUnifyVar      Opcode = 0x3D // start inline unification against slot (16-bit slot)
	OpBUnifyFirstVar Opcode = 0x3E // as B_UNIFY_VAR on a fresh slot
	OpBUnifyExit     Opcode = 0x3F // end inline unification
	OpBUnifyVV       Opcode = 0x40 // unify two slots (16-bit, 16-bit)
	OpBEqVV          Opcode = 0x41 // two slots are identical (16-bit, 16-bit)
	OpBNeqVV         Opcode = 0x42 // two slots are not identical (16-bit, 16-bit)
	OpBThrow         Opcode = 0x43 // throw the first argument
)

// Control
const (
	OpIEnter       Opcode = 0x50 // end of head
	OpICall        Opcode = 0x51 // call predicate (32-bit procedure)
	OpIDepart      Opcode = 0x52 // last call (32-bit procedure)
	OpIExit        Opcode = 0x53 // exit clause
	OpIExitFact    Opcode = 0x54 // exit fact
	OpIContext     Opcode = 0x55 // switch frame context module (32-bit atom)
	OpIUserCall0   Opcode = 0x56 // call the goal in the first argument
	OpIUserCallN   Opcode = 0x57 // call/N with extra arguments (16-bit count)
	OpITrue        Opcode = 0x58 // succeed
	OpIFail        Opcode = 0x59 // fail
	OpICut         Opcode = 0x5A // cut to the frame's entry choice point
	OpICatch       Opcode = 0x5B // catch/3 goal call (32-bit jump to recovery)
	OpIExitCatch   Opcode = 0x5C // catch/3 goal exited
	OpICallCleanup Opcode = 0x5D // call_cleanup/2 goal call
	OpIExitCleanup Opcode = 0x5E // call_cleanup/2 goal exited
	OpIExitQuery   Opcode = 0x5F // query produced an answer
)

// Choice constructs
const (
	OpCOr         Opcode = 0x70 // push alternative (32-bit jump)
	OpCJmp        Opcode = 0x71 // jump (32-bit)
	OpCMark       Opcode = 0x72 // save choice point mark in slot (16-bit slot)
	OpCCut        Opcode = 0x73 // cut to mark (16-bit slot)
	OpCLCut       Opcode = 0x74 // cut in a condition, keeping the else branch (16-bit slot)
	OpCIfThenElse Opcode = 0x75 // mark and push else branch (16-bit slot, 32-bit jump)
	OpCNot        Opcode = 0x76 // mark and push success branch of \+ (16-bit slot, 32-bit jump)
	OpCSoftIf     Opcode = 0x77 // mark and push else branch of *-> (16-bit slot, 32-bit jump)
	OpCSoftCut    Opcode = 0x78 // make the else branch inert (16-bit slot)
	OpCEnd        Opcode = 0x79 // end of a choice construct
	OpCFail       Opcode = 0x7A // fail
	OpCVar        Opcode = 0x7B // fresh variable in slot (16-bit slot)
)

// Arithmetic
const (
	OpAEnter      Opcode = 0x90 // start expression
	OpAInteger    Opcode = 0x91 // push integer (64-bit)
	OpADouble     Opcode = 0x92 // push float (64-bit)
	OpAMPZ        Opcode = 0x93 // push bignum literal (16-bit literal)
	OpAVar        Opcode = 0x94 // push evaluated slot (16-bit slot)
	OpAFunc       Opcode = 0x95 // apply function (16-bit function)
	OpALT         Opcode = 0x96 // <
	OpALE         Opcode = 0x97 // =<
	OpAGT         Opcode = 0x98 // >
	OpAGE         Opcode = 0x99 // >=
	OpAEQ         Opcode = 0x9A // =:=
	OpANE         Opcode = 0x9B // =\=
	OpAIs         Opcode = 0x9C // unify result with the first argument
	OpAFirstVarIs Opcode = 0x9D // store result in a fresh slot (16-bit slot)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes one inline operand.
type OperandKind uint8

const (
	OperandAtom    OperandKind = iota // 32-bit atom handle
	OperandFunctor                    // 32-bit functor handle
	OperandProc                       // 32-bit procedure handle
	OperandInt                        // 64-bit signed integer
	OperandFloat                      // 64-bit IEEE float
	OperandVar                        // 16-bit slot index
	OperandJump                       // 32-bit signed offset from the end of the operand
	OperandLiteral                    // 16-bit clause literal index
	OperandCount                      // 16-bit count
	OperandFunc                       // 16-bit arithmetic function
)

// Size returns the encoded width of the operand.
func (k OperandKind) Size() int {
	switch k {
	case OperandAtom, OperandFunctor, OperandProc, OperandJump:
		return 4
	case OperandInt, OperandFloat:
		return 8
	}
	return 2
}

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string        // human-readable name
	Operands []OperandKind // inline operands in order
}

// OperandBytes returns the total operand width.
func (i OpcodeInfo) OperandBytes() int {
	n := 0
	for _, k := range i.Operands {
		n += k.Size()
	}
	return n
}

var (
	noOperands  = []OperandKind{}
	atomOperand = []OperandKind{OperandAtom}
	intOperand  = []OperandKind{OperandInt}
	fltOperand  = []OperandKind{OperandFloat}
	litOperand  = []OperandKind{OperandLiteral}
	funOperand  = []OperandKind{OperandFunctor}
	varOperand  = []OperandKind{OperandVar}
	vvOperands  = []OperandKind{OperandVar, OperandVar}
	jmpOperand  = []OperandKind{OperandJump}
	vjOperands  = []OperandKind{OperandVar, OperandJump}
	prcOperand  = []OperandKind{OperandProc}
)

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Head
	OpHAtom:     {"H_ATOM", atomOperand},
	OpHNil:      {"H_NIL", noOperands},
	OpHSmallInt: {"H_SMALLINT", intOperand},
	OpHFloat:    {"H_FLOAT", fltOperand},
	OpHIndirect: {"H_INDIRECT", litOperand},
	OpHFunctor:  {"H_FUNCTOR", funOperand},
	OpHRFunctor: {"H_RFUNCTOR", funOperand},
	OpHList:     {"H_LIST", noOperands},
	OpHRList:    {"H_RLIST", noOperands},
	OpHVoid:     {"H_VOID", noOperands},
	OpHVoidN:    {"H_VOIDN", []OperandKind{OperandCount}},
	OpHVar:      {"H_VAR", varOperand},
	OpHFirstVar: {"H_FIRSTVAR", varOperand},
	OpHPop:      {"H_POP", noOperands},

	// Body
	OpBAtom:          {"B_ATOM", atomOperand},
	OpBNil:           {"B_NIL", noOperands},
	OpBSmallInt:      {"B_SMALLINT", intOperand},
	OpBFloat:         {"B_FLOAT", fltOperand},
	OpBIndirect:      {"B_INDIRECT", litOperand},
	OpBFunctor:       {"B_FUNCTOR", funOperand},
	OpBRFunctor:      {"B_RFUNCTOR", funOperand},
	OpBList:          {"B_LIST", noOperands},
	OpBRList:         {"B_RLIST", noOperands},
	OpBVoid:          {"B_VOID", noOperands},
	OpBVar:           {"B_VAR", varOperand},
	OpBFirstVar:      {"B_FIRSTVAR", varOperand},
	OpBPop:           {"B_POP", noOperands},
	OpBUnifyVar:      {"B_UNIFY_VAR", varOperand},
	OpBUnifyFirstVar: {"B_UNIFY_FIRSTVAR", varOperand},
	OpBUnifyExit:     {"B_UNIFY_EXIT", noOperands},
	OpBUnifyVV:       {"B_UNIFY_VV", vvOperands},
	OpBEqVV:          {"B_EQ_VV", vvOperands},
	OpBNeqVV:         {"B_NEQ_VV", vvOperands},
	OpBThrow:         {"B_THROW", noOperands},

	// Control
	OpIEnter:       {"I_ENTER", noOperands},
	OpICall:        {"I_CALL", prcOperand},
	OpIDepart:      {"I_DEPART", prcOperand},
	OpIExit:        {"I_EXIT", noOperands},
	OpIExitFact:    {"I_EXITFACT", noOperands},
	OpIContext:     {"I_CONTEXT", atomOperand},
	OpIUserCall0:   {"I_USERCALL0", noOperands},
	OpIUserCallN:   {"I_USERCALLN", []OperandKind{OperandCount}},
	OpITrue:        {"I_TRUE", noOperands},
	OpIFail:        {"I_FAIL", noOperands},
	OpICut:         {"I_CUT", noOperands},
	OpICatch:       {"I_CATCH", jmpOperand},
	OpIExitCatch:   {"I_EXITCATCH", noOperands},
	OpICallCleanup: {"I_CALLCLEANUP", noOperands},
	OpIExitCleanup: {"I_EXITCLEANUP", noOperands},
	OpIExitQuery:   {"I_EXITQUERY", noOperands},

	// Choice
	OpCOr:         {"C_OR", jmpOperand},
	OpCJmp:        {"C_JMP", jmpOperand},
	OpCMark:       {"C_MARK", varOperand},
	OpCCut:        {"C_CUT", varOperand},
	OpCLCut:       {"C_LCUT", varOperand},
	OpCIfThenElse: {"C_IFTHENELSE", vjOperands},
	OpCNot:        {"C_NOT", vjOperands},
	OpCSoftIf:     {"C_SOFTIF", vjOperands},
	OpCSoftCut:    {"C_SOFTCUT", varOperand},
	OpCEnd:        {"C_END", noOperands},
	OpCFail:       {"C_FAIL", noOperands},
	OpCVar:        {"C_VAR", varOperand},

	// Arithmetic
	OpAEnter:      {"A_ENTER", noOperands},
	OpAInteger:    {"A_INTEGER", intOperand},
	OpADouble:     {"A_DOUBLE", fltOperand},
	OpAMPZ:        {"A_MPZ", litOperand},
	OpAVar:        {"A_VAR", varOperand},
	OpAFunc:       {"A_FUNC", []OperandKind{OperandFunc}},
	OpALT:         {"A_LT", noOperands},
	OpALE:         {"A_LE", noOperands},
	OpAGT:         {"A_GT", noOperands},
	OpAGE:         {"A_GE", noOperands},
	OpAEQ:         {"A_EQ", noOperands},
	OpANE:         {"A_NE", noOperands},
	OpAIs:         {"A_IS", noOperands},
	OpAFirstVarIs: {"A_FIRSTVAR_IS", varOperand},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct clause bytecode.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitUint16 appends an opcode with a 16-bit operand.
func (b *BytecodeBuilder) EmitUint16(op Opcode, v uint16) {
	b.bytes = binary.LittleEndian.AppendUint16(append(b.bytes, byte(op)), v)
}

// EmitUint16x2 appends an opcode with two 16-bit operands.
func (b *BytecodeBuilder) EmitUint16x2(op Opcode, v1, v2 uint16) {
	b.bytes = append(b.bytes, byte(op))
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, v1)
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, v2)
}

// EmitUint32 appends an opcode with a 32-bit handle operand.
func (b *BytecodeBuilder) EmitUint32(op Opcode, v uint32) {
	b.bytes = binary.LittleEndian.AppendUint32(append(b.bytes, byte(op)), v)
}

// EmitInt64 appends an opcode with a 64-bit integer operand.
func (b *BytecodeBuilder) EmitInt64(op Opcode, v int64) {
	b.bytes = binary.LittleEndian.AppendUint64(append(b.bytes, byte(op)), uint64(v))
}

// EmitFloat64 appends an opcode with a 64-bit float operand.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, v float64) {
	b.bytes = binary.LittleEndian.AppendUint64(append(b.bytes, byte(op)), math.Float64bits(v))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be known yet.
type Label struct {
	resolved bool
	position int
	refs     []int // operand positions waiting for the target
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)
	for _, ref := range label.refs {
		offset := int32(label.position - (ref + 4))
		binary.LittleEndian.PutUint32(b.bytes[ref:], uint32(offset))
	}
	label.refs = nil
}

func (b *BytecodeBuilder) jumpOperand(label *Label) {
	if label.resolved {
		offset := int32(label.position - (len(b.bytes) + 4))
		b.bytes = binary.LittleEndian.AppendUint32(b.bytes, uint32(offset))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, 0, 0, 0, 0)
}

// EmitJump emits an instruction whose only operand is a jump to label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	b.jumpOperand(label)
}

// EmitVarJump emits an instruction with a slot operand followed by a jump.
func (b *BytecodeBuilder) EmitVarJump(op Opcode, slot uint16, label *Label) {
	b.bytes = binary.LittleEndian.AppendUint16(append(b.bytes, byte(op)), slot)
	b.jumpOperand(label)
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for disassembly and relocation.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

func (r *BytecodeReader) need(n int) {
	if r.pos+n > len(r.bytes) {
		panic("bytecode underflow")
	}
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *BytecodeReader) ReadUint16() uint16 {
	r.need(2)
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadUint32 reads a 32-bit operand (little-endian).
func (r *BytecodeReader) ReadUint32() uint32 {
	r.need(4)
	v := binary.LittleEndian.Uint32(r.bytes[r.pos:])
	r.pos += 4
	return v
}

// ReadInt64 reads a 64-bit integer operand.
func (r *BytecodeReader) ReadInt64() int64 {
	r.need(8)
	v := binary.LittleEndian.Uint64(r.bytes[r.pos:])
	r.pos += 8
	return int64(v)
}

// ReadFloat64 reads a 64-bit float operand.
func (r *BytecodeReader) ReadFloat64() float64 {
	return math.Float64frombits(uint64(r.ReadInt64()))
}

// ---------------------------------------------------------------------------
// Operand walking
// ---------------------------------------------------------------------------

// ErrBadBytecode reports truncated code or an unknown opcode.
var ErrBadBytecode = errors.New("malformed bytecode")

// WalkOperands calls fn for every operand in code with its kind and byte
// offset. Image loading uses it to relocate handles.
func WalkOperands(code []byte, fn func(kind OperandKind, pos int) error) error {
	pos := 0
	for pos < len(code) {
		op := Opcode(code[pos])
		info, ok := opcodeTable[op]
		if !ok {
			return fmt.Errorf("%w: unknown opcode 0x%02X at %d", ErrBadBytecode, byte(op), pos)
		}
		pos++
		for _, k := range info.Operands {
			if pos+k.Size() > len(code) {
				return fmt.Errorf("%w: truncated %s at %d", ErrBadBytecode, info.Name, pos)
			}
			if err := fn(k, pos); err != nil {
				return err
			}
			pos += k.Size()
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. reg, when not nil, is used to print handles by name.
func DisassembleInstruction(r *BytecodeReader, reg *Registry) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %s", pos, info.Name)
	for _, k := range info.Operands {
		sb.WriteByte(' ')
		switch k {
		case OperandAtom:
			a := AtomID(r.ReadUint32())
			if reg != nil {
				sb.WriteString(reg.AtomName(a))
			} else {
				fmt.Fprintf(&sb, "atom:%d", a)
			}
		case OperandFunctor:
			f := FunctorID(r.ReadUint32())
			if reg != nil {
				name, arity := reg.FunctorOf(f)
				fmt.Fprintf(&sb, "%s/%d", reg.AtomName(name), arity)
			} else {
				fmt.Fprintf(&sb, "functor:%d", f)
			}
		case OperandProc:
			p := ProcID(r.ReadUint32())
			if reg != nil {
				sb.WriteString(reg.Indicator(reg.Proc(p)))
			} else {
				fmt.Fprintf(&sb, "proc:%d", p)
			}
		case OperandInt:
			fmt.Fprintf(&sb, "%d", r.ReadInt64())
		case OperandFloat:
			fmt.Fprintf(&sb, "%g", r.ReadFloat64())
		case OperandVar:
			fmt.Fprintf(&sb, "v%d", r.ReadUint16())
		case OperandJump:
			offset := int32(r.ReadUint32())
			fmt.Fprintf(&sb, "%d (-> %04d)", offset, r.Position()+int(offset))
		case OperandLiteral:
			fmt.Fprintf(&sb, "lit:%d", r.ReadUint16())
		case OperandCount:
			fmt.Fprintf(&sb, "%d", r.ReadUint16())
		case OperandFunc:
			id := int(r.ReadUint16())
			if id < len(arithFuncs) {
				fmt.Fprintf(&sb, "%s/%d", arithFuncs[id].name, arithFuncs[id].arity)
			} else {
				fmt.Fprintf(&sb, "func:%d", id)
			}
		}
	}
	return sb.String()
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte, reg *Registry) string {
	r := NewBytecodeReader(bc)
	var lines []string
	for r.HasMore() {
		lines = append(lines, DisassembleInstruction(r, reg))
	}
	return strings.Join(lines, "\n")
}
