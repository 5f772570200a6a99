package objdb

import (
	"fmt"
	"math"

	"github.com/andreyvit/objdb/codec"
)

// Reader gives typed, index-addressed access to one stored object (or to the
// elements of one list). Indexes are property positions for object readers
// and element positions for list readers.
//
// Calling an accessor that does not match the declared type is a programmer
// error and panics, as does ReadID on an embedded object or list reader and
// any nested list access on a list reader.
//
// Strings and blobs alias storage memory: they stay valid only until the
// transaction that produced the reader ends.
type Reader interface {
	ReadID() int64
	IsNull(index int) bool
	ReadBool(index int) (v bool, ok bool)
	ReadUint8(index int) byte
	ReadInt(index int) int32
	ReadFloat(index int) float32
	ReadLong(index int) int64
	ReadDouble(index int) float64
	ReadString(index int) (string, bool)
	ReadBlob(index int) ([]byte, bool)
	ReadJSON(index int) (any, bool)
	ReadObject(index int) (Reader, bool)
	ReadList(index int) (Reader, int, bool)
}

type readerKind uint8

const (
	topLevelReader readerKind = iota
	embeddedReader
	listReaderKind
)

func (k readerKind) String() string {
	switch k {
	case topLevelReader:
		return "top-level"
	case embeddedReader:
		return "embedded object"
	case listReaderKind:
		return "list"
	default:
		return fmt.Sprintf("readerKind(%d)", uint8(k))
	}
}

type objectReader struct {
	coll *Collection
	obj  codec.View
	id   int64
	kind readerKind
}

func newObjectReader(coll *Collection, obj codec.View, id int64) *objectReader {
	return &objectReader{coll: coll, obj: obj, id: id, kind: topLevelReader}
}

func (r *objectReader) Collection() *Collection {
	return r.coll
}

func (r *objectReader) ReadID() int64 {
	if r.kind != topLevelReader {
		panic(fmt.Errorf("%s: ReadID called on an %v reader", r.coll.name, r.kind))
	}
	return r.id
}

func (r *objectReader) typed(index int, want codec.DataType) *Property {
	p := r.coll.prop(index)
	if p.typ != want {
		panic(fmt.Errorf("%v is %v, cannot read as %v", p, p.typ, want))
	}
	return p
}

func (r *objectReader) IsNull(index int) bool {
	p := r.coll.prop(index)
	return isNullAt(r.obj, p.offset, p.typ)
}

func (r *objectReader) ReadBool(index int) (bool, bool) {
	return r.obj.ReadBool(r.typed(index, codec.Bool).offset)
}

func (r *objectReader) ReadUint8(index int) byte {
	return r.obj.ReadUint8(r.typed(index, codec.Byte).offset)
}

func (r *objectReader) ReadInt(index int) int32 {
	return r.obj.ReadInt(r.typed(index, codec.Int).offset)
}

func (r *objectReader) ReadFloat(index int) float32 {
	return r.obj.ReadFloat(r.typed(index, codec.Float).offset)
}

func (r *objectReader) ReadLong(index int) int64 {
	return r.obj.ReadLong(r.typed(index, codec.Long).offset)
}

func (r *objectReader) ReadDouble(index int) float64 {
	return r.obj.ReadDouble(r.typed(index, codec.Double).offset)
}

func (r *objectReader) ReadString(index int) (string, bool) {
	return r.obj.ReadString(r.typed(index, codec.String).offset)
}

func (r *objectReader) ReadBlob(index int) ([]byte, bool) {
	l, ok := r.obj.ReadList(r.typed(index, codec.ByteList).offset, codec.Byte)
	if !ok {
		return nil, false
	}
	return l.Blob(), true
}

func (r *objectReader) ReadJSON(index int) (any, bool) {
	return r.obj.ReadJSON(r.typed(index, codec.Json).offset)
}

func (r *objectReader) ReadObject(index int) (Reader, bool) {
	p := r.typed(index, codec.Object)
	sub, ok := r.obj.ReadObject(p.offset)
	if !ok {
		return nil, false
	}
	return &objectReader{coll: p.target, obj: sub, kind: embeddedReader}, true
}

func (r *objectReader) ReadList(index int) (Reader, int, bool) {
	p := r.coll.prop(index)
	if !p.typ.IsList() {
		panic(fmt.Errorf("%v is %v, cannot read as a list", p, p.typ))
	}
	l, ok := r.obj.ReadList(p.offset, p.elementType())
	if !ok {
		return nil, 0, false
	}
	return &listReader{prop: p, list: l}, l.Len(), true
}

// listReader reads the elements of one list. Elements of object lists are
// read as embedded object readers; lists never nest.
type listReader struct {
	prop *Property
	list codec.List
}

func (r *listReader) ReadID() int64 {
	panic(fmt.Errorf("%v: ReadID called on a list reader", r.prop))
}

func (r *listReader) check(want codec.DataType) {
	if el := r.list.ElementType(); el != want {
		panic(fmt.Errorf("%v holds %v elements, cannot read as %v", r.prop, el, want))
	}
}

func (r *listReader) IsNull(index int) bool {
	switch el := r.list.ElementType(); el {
	case codec.Bool:
		_, ok := r.list.ReadBool(index)
		return !ok
	case codec.Byte:
		return false
	case codec.Int:
		return r.list.ReadInt(index) == codec.NullInt
	case codec.Float:
		return math.IsNaN(float64(r.list.ReadFloat(index)))
	case codec.Long:
		return r.list.ReadLong(index) == codec.NullLong
	case codec.Double:
		return math.IsNaN(r.list.ReadDouble(index))
	default:
		_, ok := r.list.ReadBytes(index)
		return !ok
	}
}

func (r *listReader) ReadBool(index int) (bool, bool) {
	r.check(codec.Bool)
	return r.list.ReadBool(index)
}

func (r *listReader) ReadUint8(index int) byte {
	r.check(codec.Byte)
	return r.list.ReadUint8(index)
}

func (r *listReader) ReadInt(index int) int32 {
	r.check(codec.Int)
	return r.list.ReadInt(index)
}

func (r *listReader) ReadFloat(index int) float32 {
	r.check(codec.Float)
	return r.list.ReadFloat(index)
}

func (r *listReader) ReadLong(index int) int64 {
	r.check(codec.Long)
	return r.list.ReadLong(index)
}

func (r *listReader) ReadDouble(index int) float64 {
	r.check(codec.Double)
	return r.list.ReadDouble(index)
}

func (r *listReader) ReadString(index int) (string, bool) {
	r.check(codec.String)
	return r.list.ReadString(index)
}

func (r *listReader) ReadBlob(index int) ([]byte, bool) {
	panic(fmt.Errorf("%v: nested list access on a list reader", r.prop))
}

func (r *listReader) ReadJSON(index int) (any, bool) {
	r.check(codec.Json)
	return r.list.ReadJSON(index)
}

func (r *listReader) ReadObject(index int) (Reader, bool) {
	r.check(codec.Object)
	sub, ok := r.list.ReadObject(index)
	if !ok {
		return nil, false
	}
	return &objectReader{coll: r.prop.target, obj: sub, kind: embeddedReader}, true
}

func (r *listReader) ReadList(index int) (Reader, int, bool) {
	panic(fmt.Errorf("%v: nested list access on a list reader", r.prop))
}

func isNullAt(obj codec.View, off int, t codec.DataType) bool {
	switch t {
	case codec.Bool:
		_, ok := obj.ReadBool(off)
		return !ok
	case codec.Byte:
		return false
	case codec.Int:
		return obj.ReadInt(off) == codec.NullInt
	case codec.Float:
		return math.IsNaN(float64(obj.ReadFloat(off)))
	case codec.Long:
		return obj.ReadLong(off) == codec.NullLong
	case codec.Double:
		return math.IsNaN(obj.ReadDouble(off))
	default:
		_, ok := obj.ReadBytes(off)
		return !ok
	}
}
