package codec

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"unsafe"
)

// View is a read-only view of one encoded object. It never copies the
// underlying bytes; strings and blobs it returns alias them.
//
// Every accessor is bounds-checked against the buffer: a slot or descriptor
// that falls outside of it reads as null/absent.
type View struct {
	data      []byte
	headerEnd int
}

// Load validates the header of an encoded object.
func Load(data []byte) (View, error) {
	if len(data) < headerLenSize {
		return View{}, dataErrf(data, 0, ErrCorrupted, "object shorter than its header")
	}
	n := int(binary.LittleEndian.Uint16(data))
	if n < headerLenSize || n > len(data) {
		return View{}, dataErrf(data, 0, ErrCorrupted, "invalid header length %d", n)
	}
	return View{data, n}, nil
}

func (o View) Bytes() []byte {
	return o.data
}

func (o View) IsZero() bool {
	return o.data == nil
}

func (o View) HeaderLen() int {
	return o.headerEnd
}

func (o View) slot(off, n int) []byte {
	if off < headerLenSize || off+n > o.headerEnd {
		return nil
	}
	return o.data[off : off+n]
}

func (o View) ReadBool(off int) (v bool, ok bool) {
	return decodeBool(o.slot(off, 1))
}

func (o View) ReadUint8(off int) byte {
	if b := o.slot(off, 1); b != nil {
		return b[0]
	}
	return 0
}

func (o View) ReadInt(off int) int32 {
	return decodeInt(o.slot(off, 4))
}

func (o View) ReadFloat(off int) float32 {
	return decodeFloat(o.slot(off, 4))
}

func (o View) ReadLong(off int) int64 {
	return decodeLong(o.slot(off, 8))
}

func (o View) ReadDouble(off int) float64 {
	return decodeDouble(o.slot(off, 8))
}

// ReadBytes resolves the descriptor at off. The second result is false when
// the field is absent or its descriptor points outside the object.
func (o View) ReadBytes(off int) ([]byte, bool) {
	d := o.slot(off, descriptorSize)
	if d == nil {
		return nil, false
	}
	start := uint64(binary.LittleEndian.Uint32(d))
	n := uint64(binary.LittleEndian.Uint32(d[4:]))
	if start == 0 || start+n > uint64(len(o.data)) {
		return nil, false
	}
	return o.data[start : start+n : start+n], true
}

func (o View) ReadString(off int) (string, bool) {
	b, ok := o.ReadBytes(off)
	if !ok {
		return "", false
	}
	return unsafeString(b), true
}

func (o View) ReadJSON(off int) (any, bool) {
	b, ok := o.ReadBytes(off)
	if !ok {
		return nil, false
	}
	return decodeJSON(b)
}

func (o View) ReadObject(off int) (View, bool) {
	b, ok := o.ReadBytes(off)
	if !ok {
		return View{}, false
	}
	sub, err := Load(b)
	if err != nil {
		return View{}, false
	}
	return sub, true
}

// ReadList resolves a list of the given element type.
func (o View) ReadList(off int, elem DataType) (List, bool) {
	b, ok := o.ReadBytes(off)
	if !ok {
		return List{}, false
	}
	return loadList(b, elem)
}

// List is a read-only view of the element area of a list.
type List struct {
	data  []byte
	count int
	elem  DataType
	width int
}

func loadList(region []byte, elem DataType) (List, bool) {
	if len(region) < listCountSize {
		return List{}, false
	}
	count := uint64(binary.LittleEndian.Uint32(region))
	width := elem.ElementSize()
	data := region[listCountSize:]
	if count*uint64(width) > uint64(len(data)) {
		return List{}, false
	}
	return List{data, int(count), elem, width}, true
}

func (l List) Len() int {
	return l.count
}

func (l List) ElementType() DataType {
	return l.elem
}

func (l List) element(i, n int) []byte {
	if i < 0 || i >= l.count {
		return nil
	}
	off := i * l.width
	if off+n > len(l.data) {
		return nil
	}
	return l.data[off : off+n]
}

// Blob returns the raw elements of a Byte or Bool list.
func (l List) Blob() []byte {
	if l.width != 1 {
		return nil
	}
	return l.data[:l.count:l.count]
}

func (l List) ReadBool(i int) (v bool, ok bool) {
	return decodeBool(l.element(i, 1))
}

func (l List) ReadUint8(i int) byte {
	if b := l.element(i, 1); b != nil {
		return b[0]
	}
	return 0
}

func (l List) ReadInt(i int) int32 {
	return decodeInt(l.element(i, 4))
}

func (l List) ReadFloat(i int) float32 {
	return decodeFloat(l.element(i, 4))
}

func (l List) ReadLong(i int) int64 {
	return decodeLong(l.element(i, 8))
}

func (l List) ReadDouble(i int) float64 {
	return decodeDouble(l.element(i, 8))
}

func (l List) ReadBytes(i int) ([]byte, bool) {
	if l.width != elementRefSize {
		return nil, false
	}
	ref := l.element(i, elementRefSize)
	if ref == nil {
		return nil, false
	}
	start := uint64(getUint24(ref))
	n := uint64(getUint24(ref[3:]))
	if start == 0 || start+n > uint64(len(l.data)) {
		return nil, false
	}
	return l.data[start : start+n : start+n], true
}

func (l List) ReadString(i int) (string, bool) {
	b, ok := l.ReadBytes(i)
	if !ok {
		return "", false
	}
	return unsafeString(b), true
}

func (l List) ReadJSON(i int) (any, bool) {
	b, ok := l.ReadBytes(i)
	if !ok {
		return nil, false
	}
	return decodeJSON(b)
}

func (l List) ReadObject(i int) (View, bool) {
	b, ok := l.ReadBytes(i)
	if !ok {
		return View{}, false
	}
	sub, err := Load(b)
	if err != nil {
		return View{}, false
	}
	return sub, true
}

func decodeBool(b []byte) (bool, bool) {
	if b == nil {
		return false, false
	}
	switch b[0] {
	case FalseBool:
		return false, true
	case TrueBool:
		return true, true
	default:
		return false, false
	}
}

func decodeInt(b []byte) int32 {
	if b == nil {
		return NullInt
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func decodeFloat(b []byte) float32 {
	if b == nil {
		return NullFloat
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func decodeLong(b []byte) int64 {
	if b == nil {
		return NullLong
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func decodeDouble(b []byte) float64 {
	if b == nil {
		return NullDouble
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func decodeJSON(b []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return v, true
}

func getUint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
