package objdb

import (
	"fmt"

	"github.com/andreyvit/objdb/codec"
)

// Writer builds one object (or the elements of one list) strictly left to
// right: indexes must be written in ascending order, skipped ones stay null,
// and a nested writer must be ended before its parent is written to again.
// Violations panic.
type Writer interface {
	WriteNull(index int)
	WriteBool(index int, v bool)
	WriteUint8(index int, v byte)
	WriteInt(index int, v int32)
	WriteFloat(index int, v float32)
	WriteLong(index int, v int64)
	WriteDouble(index int, v float64)
	WriteString(index int, v string)
	WriteBlob(index int, v []byte)
	WriteJSON(index int, v any)
	BeginObject(index int) Writer
	EndObject(w Writer)
	BeginList(index int, length int) Writer
	EndList(w Writer)
}

type objectWriter struct {
	coll *Collection
	b    *codec.Builder
}

func (w *objectWriter) WriteNull(index int)              { w.b.PutNull(index) }
func (w *objectWriter) WriteBool(index int, v bool)      { w.b.PutBool(index, v) }
func (w *objectWriter) WriteUint8(index int, v byte)     { w.b.PutUint8(index, v) }
func (w *objectWriter) WriteInt(index int, v int32)      { w.b.PutInt(index, v) }
func (w *objectWriter) WriteFloat(index int, v float32)  { w.b.PutFloat(index, v) }
func (w *objectWriter) WriteLong(index int, v int64)     { w.b.PutLong(index, v) }
func (w *objectWriter) WriteDouble(index int, v float64) { w.b.PutDouble(index, v) }
func (w *objectWriter) WriteString(index int, v string)  { w.b.PutString(index, v) }
func (w *objectWriter) WriteBlob(index int, v []byte)    { w.b.PutBlob(index, v) }
func (w *objectWriter) WriteJSON(index int, v any)       { w.b.PutJSON(index, v) }

func (w *objectWriter) BeginObject(index int) Writer {
	p := w.coll.prop(index)
	if p.typ != codec.Object {
		panic(fmt.Errorf("%v is %v, not an object", p, p.typ))
	}
	return &objectWriter{coll: p.target, b: w.b.BeginObject(index, p.target.layout)}
}

func (w *objectWriter) EndObject(child Writer) {
	cw, ok := child.(*objectWriter)
	if !ok {
		panic(fmt.Errorf("EndObject: %T is not an object writer", child))
	}
	w.b.EndObject(cw.b)
}

func (w *objectWriter) BeginList(index int, length int) Writer {
	p := w.coll.prop(index)
	return &listWriter{prop: p, lb: w.b.BeginList(index, length)}
}

func (w *objectWriter) EndList(child Writer) {
	lw, ok := child.(*listWriter)
	if !ok {
		panic(fmt.Errorf("EndList: %T is not a list writer", child))
	}
	w.b.EndList(lw.lb)
}

type listWriter struct {
	prop *Property
	lb   *codec.ListBuilder
}

func (w *listWriter) WriteNull(index int)              { w.lb.PutNull(index) }
func (w *listWriter) WriteBool(index int, v bool)      { w.lb.PutBool(index, v) }
func (w *listWriter) WriteUint8(index int, v byte)     { w.lb.PutUint8(index, v) }
func (w *listWriter) WriteInt(index int, v int32)      { w.lb.PutInt(index, v) }
func (w *listWriter) WriteFloat(index int, v float32)  { w.lb.PutFloat(index, v) }
func (w *listWriter) WriteLong(index int, v int64)     { w.lb.PutLong(index, v) }
func (w *listWriter) WriteDouble(index int, v float64) { w.lb.PutDouble(index, v) }
func (w *listWriter) WriteString(index int, v string)  { w.lb.PutString(index, v) }
func (w *listWriter) WriteJSON(index int, v any)       { w.lb.PutJSON(index, v) }

func (w *listWriter) WriteBlob(index int, v []byte) {
	panic(fmt.Errorf("%v: lists cannot be nested", w.prop))
}

func (w *listWriter) BeginObject(index int) Writer {
	if w.prop.typ != codec.ObjectList {
		panic(fmt.Errorf("%v is %v, not an object list", w.prop, w.prop.typ))
	}
	return &objectWriter{coll: w.prop.target, b: w.lb.BeginObject(index, w.prop.target.layout)}
}

func (w *listWriter) EndObject(child Writer) {
	cw, ok := child.(*objectWriter)
	if !ok {
		panic(fmt.Errorf("EndObject: %T is not an object writer", child))
	}
	w.lb.EndObject(cw.b)
}

func (w *listWriter) BeginList(index int, length int) Writer {
	panic(fmt.Errorf("%v: lists cannot be nested", w.prop))
}

func (w *listWriter) EndList(child Writer) {
	panic(fmt.Errorf("%v: lists cannot be nested", w.prop))
}
