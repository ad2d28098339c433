package qao

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectID encodes a 32-bit slot index in the lower bits and a 32-bit generation
// in the upper bits. Generations start at 1, so the zero ObjectID never resolves.
type ObjectID uint64

// NullID is the id of an object that is not registered with any runtime.
const NullID ObjectID = 0

func NewObjectID(index uint32, generation uint32) ObjectID {
	return ObjectID(uint64(generation)<<32 | uint64(index))
}

func (id ObjectID) Index() uint32      { return uint32(id) }
func (id ObjectID) Generation() uint32 { return uint32(id >> 32) }
func (id ObjectID) IsNull() bool       { return id.Generation() == 0 }

func (id ObjectID) String() string {
	if id.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// ParseObjectID parses the "index:generation" form produced by String.
func ParseObjectID(s string) (ObjectID, error) {
	if s == "null" {
		return NullID, nil
	}
	idx, gen, ok := strings.Cut(s, ":")
	if !ok {
		return NullID, fmt.Errorf("parse object id %q: missing ':'", s)
	}
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return NullID, fmt.Errorf("parse object id %q: index: %w", s, err)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil {
		return NullID, fmt.Errorf("parse object id %q: generation: %w", s, err)
	}
	if g == 0 {
		return NullID, fmt.Errorf("parse object id %q: generation must be positive", s)
	}
	return NewObjectID(uint32(i), uint32(g)), nil
}
