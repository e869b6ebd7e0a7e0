// Package image saves compiled user programs to disk and installs them
// into a fresh registry without recompiling.
//
// An image is a CBOR document. Clause code refers to atoms, functors and
// predicates by handles that are only meaningful inside the registry that
// compiled it, so the writer renumbers every handle into tables carried
// by the image and the loader maps them back onto the target registry.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

// Magic identifies a horn image.
var Magic = [4]byte{'H', 'O', 'R', 'N'}

// Version is the image format version.
// v1: initial format
// v2: operator table
const Version uint32 = 2

// ErrNotImage is returned for data that does not start with Magic.
var ErrNotImage = errors.New("image: not a horn image")

var log = commonlog.GetLogger("horn.image")

// Image is the serialized form of a program.
type Image struct {
	Version  uint32      `cbor:"1,keyasint"`
	Atoms    []string    `cbor:"2,keyasint"`
	Functors []Functor   `cbor:"3,keyasint"`
	Procs    []Proc      `cbor:"4,keyasint"`
	Preds    []Predicate `cbor:"5,keyasint"`
	Ops      []Operator  `cbor:"6,keyasint,omitempty"`
	Entry    string      `cbor:"7,keyasint,omitempty"` // goal run after loading
}

// Functor is an atom index and an arity.
type Functor struct {
	Name  uint32 `cbor:"1,keyasint"`
	Arity int    `cbor:"2,keyasint"`
}

// Proc names the predicate a call instruction targets.
type Proc struct {
	Module  uint32 `cbor:"1,keyasint"` // atom index
	Functor uint32 `cbor:"2,keyasint"` // functor index
}

// Predicate is a user predicate and its live clauses.
type Predicate struct {
	Proc    uint32   `cbor:"1,keyasint"`
	Flags   uint32   `cbor:"2,keyasint"`
	Clauses []Clause `cbor:"3,keyasint"`
}

// Clause is compiled code with its handles renumbered.
type Clause struct {
	Code     []byte `cbor:"1,keyasint"`
	NVars    int    `cbor:"2,keyasint"`
	Literals []Node `cbor:"3,keyasint,omitempty"`
	Key      uint64 `cbor:"4,keyasint,omitempty"`
	Source   *Node  `cbor:"5,keyasint,omitempty"`
}

// Operator is an operator definition that differs from the standard
// table. Priority 0 records a removed standard operator.
type Operator struct {
	Name     string `cbor:"1,keyasint"`
	Priority int    `cbor:"2,keyasint"`
	Type     int    `cbor:"3,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal serializes img, prefixed with Magic.
func Marshal(img *Image) ([]byte, error) {
	body, err := encMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	return append(Magic[:], body...), nil
}

// Unmarshal deserializes an image produced by Marshal.
func Unmarshal(data []byte) (*Image, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, ErrNotImage
	}
	var img Image
	if err := cbor.Unmarshal(data[len(Magic):], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("image: version %d, want %d", img.Version, Version)
	}
	return &img, nil
}

// Write marshals img to w.
func Write(w io.Writer, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteFile marshals img to the file at path.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	log.Infof("wrote %s (%d predicates, %d bytes)", path, len(img.Preds), len(data))
	return nil
}

// ReadFile reads and unmarshals the image at path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return Unmarshal(data)
}
