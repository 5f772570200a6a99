package codec

import (
	"encoding/binary"
	"math"
	"slices"
)

// grow extends buf by n bytes and returns the offset of the new bytes.
// Their contents are undefined; callers overwrite all of them.
func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	return off, slices.Grow(buf, n)[:off+n]
}

// putNull stores the null sentinel of a fixed-width type (or an absent
// descriptor) into b, which must be exactly t.SlotSize() long.
func putNull(b []byte, t DataType) {
	switch t {
	case Bool, Byte:
		b[0] = 0
	case Int:
		binary.LittleEndian.PutUint32(b, 1<<31) // NullInt
	case Float:
		binary.LittleEndian.PutUint32(b, math.Float32bits(NullFloat))
	case Long:
		binary.LittleEndian.PutUint64(b, 1<<63) // NullLong
	case Double:
		binary.LittleEndian.PutUint64(b, math.Float64bits(NullDouble))
	default:
		clear(b)
	}
}

func boolByte(v bool) byte {
	if v {
		return TrueBool
	}
	return FalseBool
}
