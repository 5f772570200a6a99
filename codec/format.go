// Package codec implements the binary object format: a compact,
// little-endian representation of one object that can be read straight out
// of a memory-mapped page without deserialization.
//
// The format is as follows:
//
//	object -> headerLen:16 static... dynamic...
//
//	static -> one slot per property at a fixed offset from the object start:
//	  bool:8 (0 = null, 1 = false, 2 = true)
//	  byte:8
//	  int:32 float:32 (null = MinInt32 / NaN)
//	  long:64 double:64 (null = MinInt64 / NaN)
//	  descriptor:64 for everything else -> offset:32 length:32
//
//	dynamic -> string | json | object | list, each referenced by a descriptor
//	  (offsets are relative to the object start; offset 0 means absent,
//	  non-zero offset with zero length means empty)
//
//	list -> count:32 element... payload...
//	  element -> fixed-width scalar, or ref:48 -> offset:24 length:24
//	  (ref offsets are relative to the first element; 0 means null)
//
// Slots past headerLen read as null, which lets objects written with a
// shorter layout be read with a longer one.
package codec

import (
	"fmt"
	"math"
)

const (
	headerLenSize  = 2
	descriptorSize = 8
	elementRefSize = 6
	listCountSize  = 4

	// MaxHeaderLen is the largest static region (including the length prefix).
	MaxHeaderLen = math.MaxUint16

	// MaxListPayload bounds the element area of a list holding strings,
	// JSON values or objects, since element refs are 24-bit.
	MaxListPayload = 1<<24 - 1
)

const (
	NullBool  byte  = 0
	FalseBool byte  = 1
	TrueBool  byte  = 2
	NullInt   int32 = math.MinInt32
	NullLong  int64 = math.MinInt64
)

var (
	NullFloat  = float32(math.NaN())
	NullDouble = math.NaN()
)

// Slot is the position of one property in the static region.
type Slot struct {
	Offset int
	Type   DataType
}

// Layout describes the static region of objects of one collection.
type Layout struct {
	HeaderLen int
	Slots     []Slot
}

// NewLayout assigns slot offsets in declaration order. Equal inputs always
// produce equal layouts.
func NewLayout(types []DataType) (Layout, error) {
	slots := make([]Slot, len(types))
	off := headerLenSize
	for i, t := range types {
		if !t.IsValid() {
			return Layout{}, fmt.Errorf("slot %d: invalid type %v", i, t)
		}
		slots[i] = Slot{Offset: off, Type: t}
		off += t.SlotSize()
	}
	if off > MaxHeaderLen {
		return Layout{}, fmt.Errorf("static region of %d bytes exceeds %d", off, MaxHeaderLen)
	}
	return Layout{HeaderLen: off, Slots: slots}, nil
}

// IsPrefixOf returns true if every slot of l appears unchanged in other, so
// that objects written with l remain readable with other.
func (l Layout) IsPrefixOf(other Layout) bool {
	if len(l.Slots) > len(other.Slots) {
		return false
	}
	for i, s := range l.Slots {
		if other.Slots[i] != s {
			return false
		}
	}
	return true
}
