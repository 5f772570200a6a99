package objdb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/andreyvit/objdb/codec"
)

// Index key components sort in the same order as the values they encode.
// Every component starts with a tag byte, so nulls sort before all values:
//
//	null   -> 00
//	value  -> 01 payload
//
// Payloads: bool and byte are one byte; Int and Long are 8-byte big-endian
// with the sign bit flipped; Float and Double are the 8-byte float64 bits
// transformed so that byte order matches numeric order; strings escape 00
// as 00 FF and end with 00 01, which keeps every component self-delimiting.
const (
	keyTagNull  byte = 0x00
	keyTagValue byte = 0x01

	idKeySize = 8
)

// appendIDKey encodes an object id as an order-preserving 8-byte key.
func appendIDKey(buf []byte, id int64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id)^(1<<63))
}

func idKey(id int64) []byte {
	return appendIDKey(make([]byte, 0, idKeySize), id)
}

func decodeIDKey(k []byte) (int64, error) {
	if len(k) < idKeySize {
		return 0, fmt.Errorf("key %x too short for an id", k)
	}
	return int64(binary.BigEndian.Uint64(k[len(k)-idKeySize:]) ^ (1 << 63)), nil
}

func appendNullKey(buf []byte) []byte {
	return append(buf, keyTagNull)
}

func appendBoolKey(buf []byte, v bool) []byte {
	if v {
		return append(buf, keyTagValue, 1)
	}
	return append(buf, keyTagValue, 0)
}

func appendUint8Key(buf []byte, v byte) []byte {
	return append(buf, keyTagValue, v)
}

func appendIntKey(buf []byte, v int64) []byte {
	buf = append(buf, keyTagValue)
	return binary.BigEndian.AppendUint64(buf, uint64(v)^(1<<63))
}

func appendFloatKey(buf []byte, v float64) []byte {
	if v == 0 {
		v = 0 // -0 sorts with +0
	}
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf = append(buf, keyTagValue)
	return binary.BigEndian.AppendUint64(buf, bits)
}

// appendStringKey encodes s; with terminate == false the result is a prefix
// of the keys of all strings starting with s.
func appendStringKey(buf []byte, s string, terminate bool) []byte {
	buf = append(buf, keyTagValue)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0 {
			buf = append(buf, 0, 0xFF)
		} else {
			buf = append(buf, c)
		}
	}
	if terminate {
		buf = append(buf, 0, 1)
	}
	return buf
}

// nextPrefix turns k, in place, into the smallest key that sorts after
// every key starting with k. There is none if k is all 0xFF.
func nextPrefix(k []byte) bool {
	for i := len(k) - 1; i >= 0; i-- {
		k[i]++
		if k[i] != 0 {
			return true
		}
	}
	return false
}

// appendPropertyKey appends the key component of property p of obj.
func appendPropertyKey(buf []byte, p *Property, obj codec.View) ([]byte, bool) {
	off := p.offset
	switch p.typ {
	case codec.Bool:
		v, ok := obj.ReadBool(off)
		if !ok {
			return appendNullKey(buf), true
		}
		return appendBoolKey(buf, v), false
	case codec.Byte:
		return appendUint8Key(buf, obj.ReadUint8(off)), false
	case codec.Int:
		v := obj.ReadInt(off)
		if v == codec.NullInt {
			return appendNullKey(buf), true
		}
		return appendIntKey(buf, int64(v)), false
	case codec.Long:
		v := obj.ReadLong(off)
		if v == codec.NullLong {
			return appendNullKey(buf), true
		}
		return appendIntKey(buf, v), false
	case codec.Float:
		v := obj.ReadFloat(off)
		if math.IsNaN(float64(v)) {
			return appendNullKey(buf), true
		}
		return appendFloatKey(buf, float64(v)), false
	case codec.Double:
		v := obj.ReadDouble(off)
		if math.IsNaN(v) {
			return appendNullKey(buf), true
		}
		return appendFloatKey(buf, v), false
	case codec.String:
		s, ok := obj.ReadString(off)
		if !ok {
			return appendNullKey(buf), true
		}
		return appendStringKey(buf, s, true), false
	default:
		panic(fmt.Errorf("%v: cannot index %v", p, p.typ))
	}
}
