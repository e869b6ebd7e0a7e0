package vm

import (
	"encoding/binary"
	"math"
	"math/big"
)

// ---------------------------------------------------------------------------
// Tagged words
// ---------------------------------------------------------------------------

// Word is a tagged term cell. The low three bits hold the tag; the
// remaining bits hold an immediate value or an index into the global stack.
type Word uint64

// Tag selects the kind of a Word.
type Tag uint8

const (
	TagRef         Tag = 0 // reference to a global cell; a self reference is an unbound variable
	TagInt         Tag = 1 // 61-bit signed immediate integer
	TagAtom        Tag = 2 // atom handle
	TagCompound    Tag = 3 // global index of a functor header
	TagIndirect    Tag = 4 // global index of an indirect header
	TagFunctor     Tag = 5 // functor header (only inside the global stack)
	TagIndirectHdr Tag = 6 // indirect header (only inside the global stack)
)

const (
	tagBits = 3
	tagMask = 1<<tagBits - 1
)

// Small integer range.
const (
	MaxSmallInt = 1<<60 - 1
	MinSmallInt = -(1 << 60)
)

// Tag returns the tag of w.
func (w Word) Tag() Tag { return Tag(w & tagMask) }

// Index returns the global stack index carried by a reference, compound or
// indirect word.
func (w Word) Index() int { return int(w >> tagBits) }

// MakeRef returns a reference to global cell idx.
func MakeRef(idx int) Word { return Word(idx)<<tagBits | Word(TagRef) }

// MakeInt returns an immediate integer. The caller checks FitsSmall.
func MakeInt(i int64) Word { return Word(uint64(i)<<tagBits) | Word(TagInt) }

// IntValue returns the integer held by an immediate integer word.
func (w Word) IntValue() int64 { return int64(w) >> tagBits }

// FitsSmall reports whether i can be stored as an immediate integer.
func FitsSmall(i int64) bool { return i >= MinSmallInt && i <= MaxSmallInt }

// MakeAtom returns the word for atom a.
func MakeAtom(a AtomID) Word { return Word(a)<<tagBits | Word(TagAtom) }

// Atom returns the atom handle of an atom word.
func (w Word) Atom() AtomID { return AtomID(w >> tagBits) }

// MakeCompound returns a compound word pointing at the header at idx.
func MakeCompound(idx int) Word { return Word(idx)<<tagBits | Word(TagCompound) }

// MakeIndirect returns an indirect word pointing at the header at idx.
func MakeIndirect(idx int) Word { return Word(idx)<<tagBits | Word(TagIndirect) }

// MakeFunctorHeader returns the header cell for functor f.
func MakeFunctorHeader(f FunctorID) Word { return Word(f)<<tagBits | Word(TagFunctor) }

// Functor returns the functor of a functor header.
func (w Word) Functor() FunctorID { return FunctorID(w >> tagBits) }

// IsAtomic reports whether w is an atom, integer or indirect.
func (w Word) IsAtomic() bool {
	switch w.Tag() {
	case TagInt, TagAtom, TagIndirect:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Indirects
// ---------------------------------------------------------------------------

// IndirectKind classifies indirect data.
type IndirectKind uint8

const (
	IndFloat IndirectKind = iota
	IndBig
	IndString
)

// An indirect occupies hdr, payload words and a trailing copy of hdr so the
// global stack can be scanned in both directions. The header records the
// kind and the payload size.
func makeIndirectHeader(kind IndirectKind, n int) Word {
	return Word(n)<<(tagBits+2) | Word(kind)<<tagBits | Word(TagIndirectHdr)
}

func (w Word) indirectKind() IndirectKind { return IndirectKind(w>>tagBits) & 3 }

func (w Word) indirectSize() int { return int(w >> (tagBits + 2)) }

// packBytes stores a byte string as a length word followed by packed words.
func packBytes(b []byte) []Word {
	n := (len(b) + 7) / 8
	out := make([]Word, n+1)
	out[0] = Word(len(b))
	var buf [8]byte
	for i := 0; i < n; i++ {
		clear(buf[:])
		copy(buf[:], b[i*8:])
		out[i+1] = Word(binary.LittleEndian.Uint64(buf[:]))
	}
	return out
}

func unpackBytes(ws []Word) []byte {
	size := int(ws[0])
	out := make([]byte, 0, len(ws)*8)
	var buf [8]byte
	for _, w := range ws[1:] {
		binary.LittleEndian.PutUint64(buf[:], uint64(w))
		out = append(out, buf[:]...)
	}
	return out[:size]
}

// ---------------------------------------------------------------------------
// Global stack access
// ---------------------------------------------------------------------------

// deref follows reference chains to an unbound cell or a non-reference.
func (m *Machine) deref(w Word) Word {
	for w.Tag() == TagRef {
		v := m.global[w.Index()]
		if v == w {
			return w
		}
		w = v
	}
	return w
}

// isVar reports whether a dereferenced word is an unbound variable.
func isVar(w Word) bool { return w.Tag() == TagRef }

// newVar allocates an unbound variable on the global stack. The caller has
// reserved the space.
func (m *Machine) newVar() Word {
	idx := len(m.global)
	w := MakeRef(idx)
	m.global = append(m.global, w)
	return w
}

// functorOf returns the functor of a dereferenced compound.
func (m *Machine) functorOf(w Word) FunctorID {
	return m.global[w.Index()].Functor()
}

// arg returns argument i (0-based) of a dereferenced compound.
func (m *Machine) arg(w Word, i int) Word {
	return m.global[w.Index()+1+i]
}

func (m *Machine) indirectHeader(w Word) Word { return m.global[w.Index()] }

func (m *Machine) indirectData(w Word) []Word {
	h := m.global[w.Index()]
	return m.global[w.Index()+1 : w.Index()+1+h.indirectSize()]
}

func (m *Machine) putIndirect(kind IndirectKind, data []Word) Word {
	idx := len(m.global)
	h := makeIndirectHeader(kind, len(data))
	m.global = append(m.global, h)
	m.global = append(m.global, data...)
	m.global = append(m.global, h)
	return MakeIndirect(idx)
}

// putFloat stores f as an indirect. Reserves 3 cells.
func (m *Machine) putFloat(f float64) Word {
	return m.putIndirect(IndFloat, []Word{Word(math.Float64bits(f))})
}

func (m *Machine) putString(s string) Word {
	return m.putIndirect(IndString, packBytes([]byte(s)))
}

// putBig stores b as an indirect. The first payload word carries the sign.
func (m *Machine) putBig(b *big.Int) Word {
	data := packBytes(b.Bytes())
	if b.Sign() < 0 {
		data[0] |= 1 << 63
	}
	return m.putIndirect(IndBig, data)
}

func bigWords(b *big.Int) int { return (len(b.Bytes())+7)/8 + 3 }

func stringWords(s string) int { return (len(s)+7)/8 + 3 }

// isFloat reports whether a dereferenced word is a float.
func (m *Machine) isFloat(w Word) bool {
	return w.Tag() == TagIndirect && m.indirectHeader(w).indirectKind() == IndFloat
}

func (m *Machine) isString(w Word) bool {
	return w.Tag() == TagIndirect && m.indirectHeader(w).indirectKind() == IndString
}

func (m *Machine) isBig(w Word) bool {
	return w.Tag() == TagIndirect && m.indirectHeader(w).indirectKind() == IndBig
}

func (m *Machine) floatValue(w Word) float64 {
	return math.Float64frombits(uint64(m.indirectData(w)[0]))
}

func (m *Machine) stringValue(w Word) string {
	return string(unpackBytes(m.indirectData(w)))
}

func (m *Machine) bigValue(w Word) *big.Int {
	data := m.indirectData(w)
	neg := data[0]&(1<<63) != 0
	tmp := make([]Word, len(data))
	copy(tmp, data)
	tmp[0] &^= 1 << 63
	b := new(big.Int).SetBytes(unpackBytes(tmp))
	if neg {
		b.Neg(b)
	}
	return b
}

// isNumber reports whether a dereferenced word is numeric.
func (m *Machine) isNumber(w Word) bool {
	switch w.Tag() {
	case TagInt:
		return true
	case TagIndirect:
		return m.indirectHeader(w).indirectKind() != IndString
	}
	return false
}

func (m *Machine) isInteger(w Word) bool {
	return w.Tag() == TagInt || m.isBig(w)
}

func (m *Machine) isCallable(w Word) bool {
	return w.Tag() == TagAtom || w.Tag() == TagCompound
}

// equalIndirect compares two indirects by kind and payload.
func (m *Machine) equalIndirect(a, b Word) bool {
	ha, hb := m.indirectHeader(a), m.indirectHeader(b)
	if ha != hb {
		return false
	}
	da, db := m.indirectData(a), m.indirectData(b)
	for i := range da {
		if da[i] != db[i] {
			return false
		}
	}
	return true
}
