package image

import (
	"fmt"
	"math/big"

	"github.com/chazu/horn/term"
)

// NodeKind tags a serialized term.
type NodeKind uint8

const (
	NodeAtom NodeKind = iota
	NodeVar
	NodeInt
	NodeBig
	NodeFloat
	NodeString
	NodeCompound
)

// Node is a term in image form.
type Node struct {
	Kind  NodeKind `cbor:"1,keyasint"`
	Text  string   `cbor:"2,keyasint,omitempty"` // atom, variable, functor, string or big integer digits
	Int   int64    `cbor:"3,keyasint,omitempty"`
	Float float64  `cbor:"4,keyasint,omitempty"`
	Args  []Node   `cbor:"5,keyasint,omitempty"`
}

// EncodeTerm converts t to its image form.
func EncodeTerm(t term.Term) Node {
	switch x := t.(type) {
	case term.Atom:
		return Node{Kind: NodeAtom, Text: string(x)}
	case term.Variable:
		return Node{Kind: NodeVar, Text: string(x)}
	case term.Int:
		return Node{Kind: NodeInt, Int: int64(x)}
	case term.BigInt:
		return Node{Kind: NodeBig, Text: x.V.String()}
	case term.Float:
		return Node{Kind: NodeFloat, Float: float64(x)}
	case term.String:
		return Node{Kind: NodeString, Text: string(x)}
	case *term.Compound:
		args := make([]Node, len(x.Args))
		for i, a := range x.Args {
			args[i] = EncodeTerm(a)
		}
		return Node{Kind: NodeCompound, Text: string(x.Functor), Args: args}
	}
	panic(fmt.Sprintf("image: unexpected term %T", t))
}

// DecodeTerm converts n back to a term.
func DecodeTerm(n Node) (term.Term, error) {
	switch n.Kind {
	case NodeAtom:
		return term.Atom(n.Text), nil
	case NodeVar:
		return term.Variable(n.Text), nil
	case NodeInt:
		return term.Int(n.Int), nil
	case NodeBig:
		v, ok := new(big.Int).SetString(n.Text, 10)
		if !ok {
			return nil, fmt.Errorf("image: bad integer %q", n.Text)
		}
		return term.NewBig(v), nil
	case NodeFloat:
		return term.Float(n.Float), nil
	case NodeString:
		return term.String(n.Text), nil
	case NodeCompound:
		if len(n.Args) == 0 {
			return nil, fmt.Errorf("image: compound %s without arguments", n.Text)
		}
		args := make([]term.Term, len(n.Args))
		for i, a := range n.Args {
			t, err := DecodeTerm(a)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return &term.Compound{Functor: term.Atom(n.Text), Args: args}, nil
	}
	return nil, fmt.Errorf("image: unknown node kind %d", n.Kind)
}
