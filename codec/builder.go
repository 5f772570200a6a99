package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

type encoder struct {
	buf []byte
	err error
}

func (enc *encoder) fail(err error) {
	if enc.err == nil {
		enc.err = err
	}
}

func (enc *encoder) beginObject(layout Layout) *Builder {
	start, buf := grow(enc.buf, layout.HeaderLen)
	enc.buf = buf
	binary.LittleEndian.PutUint16(buf[start:], uint16(layout.HeaderLen))
	for _, s := range layout.Slots {
		off := start + s.Offset
		putNull(buf[off:off+s.Type.SlotSize()], s.Type)
	}
	return &Builder{enc: enc, layout: layout, start: start, last: -1}
}

// Builder encodes one object. Slots must be written in ascending order;
// skipped slots stay null. While a nested object or list builder is open,
// the parent accepts no writes until the nested builder is ended.
type Builder struct {
	enc    *encoder
	layout Layout
	start  int
	last   int
	open   any
	done   bool
}

// NewBuilder starts encoding an object into buf (which is truncated first;
// pass nil to allocate).
func NewBuilder(layout Layout, buf []byte) *Builder {
	enc := &encoder{buf: buf[:0]}
	return enc.beginObject(layout)
}

func (b *Builder) Layout() Layout {
	return b.layout
}

func (b *Builder) slot(i int, want DataType) Slot {
	if b.done {
		panic("object builder already finished")
	}
	if b.open != nil {
		panic(fmt.Errorf("slot %d written while a nested builder is open", i))
	}
	if i < 0 || i >= len(b.layout.Slots) {
		panic(fmt.Errorf("slot %d out of range (%d slots)", i, len(b.layout.Slots)))
	}
	if i <= b.last {
		panic(fmt.Errorf("slot %d written out of order (last written %d)", i, b.last))
	}
	s := b.layout.Slots[i]
	if s.Type != want {
		panic(fmt.Errorf("slot %d is %v, cannot write %v", i, s.Type, want))
	}
	b.last = i
	return s
}

func (b *Builder) at(s Slot) []byte {
	off := b.start + s.Offset
	return b.enc.buf[off : off+s.Type.SlotSize()]
}

func (b *Builder) PutNull(i int) {
	if i < 0 || i >= len(b.layout.Slots) {
		panic(fmt.Errorf("slot %d out of range (%d slots)", i, len(b.layout.Slots)))
	}
	b.slot(i, b.layout.Slots[i].Type)
}

func (b *Builder) PutBool(i int, v bool) {
	b.at(b.slot(i, Bool))[0] = boolByte(v)
}

func (b *Builder) PutUint8(i int, v byte) {
	b.at(b.slot(i, Byte))[0] = v
}

func (b *Builder) PutInt(i int, v int32) {
	binary.LittleEndian.PutUint32(b.at(b.slot(i, Int)), uint32(v))
}

func (b *Builder) PutFloat(i int, v float32) {
	binary.LittleEndian.PutUint32(b.at(b.slot(i, Float)), math.Float32bits(v))
}

func (b *Builder) PutLong(i int, v int64) {
	binary.LittleEndian.PutUint64(b.at(b.slot(i, Long)), uint64(v))
}

func (b *Builder) PutDouble(i int, v float64) {
	binary.LittleEndian.PutUint64(b.at(b.slot(i, Double)), math.Float64bits(v))
}

func (b *Builder) PutString(i int, v string) {
	s := b.slot(i, String)
	pos := len(b.enc.buf)
	b.enc.buf = append(b.enc.buf, v...)
	b.setDescriptor(s, pos)
}

// PutBlob stores the contents of a ByteList slot.
func (b *Builder) PutBlob(i int, v []byte) {
	s := b.slot(i, ByteList)
	pos := len(b.enc.buf)
	b.appendCount(len(v))
	b.enc.buf = append(b.enc.buf, v...)
	b.setDescriptor(s, pos)
}

// PutJSON stores v as JSON text.
func (b *Builder) PutJSON(i int, v any) {
	s := b.slot(i, Json)
	raw, err := json.Marshal(v)
	if err != nil {
		b.enc.fail(fmt.Errorf("slot %d: %w", i, err))
		return
	}
	pos := len(b.enc.buf)
	b.enc.buf = append(b.enc.buf, raw...)
	b.setDescriptor(s, pos)
}

func (b *Builder) appendCount(n int) {
	if uint64(n) > math.MaxUint32 {
		b.enc.fail(fmt.Errorf("list of %d elements: %w", n, ErrTooLarge))
	}
	off, buf := grow(b.enc.buf, listCountSize)
	binary.LittleEndian.PutUint32(buf[off:], uint32(n))
	b.enc.buf = buf
}

// setDescriptor points slot s at everything appended since pos.
func (b *Builder) setDescriptor(s Slot, pos int) {
	rel := uint64(pos - b.start)
	n := uint64(len(b.enc.buf) - pos)
	if rel+n > math.MaxUint32 {
		b.enc.fail(fmt.Errorf("object larger than 4 GiB: %w", ErrTooLarge))
		return
	}
	d := b.at(s)
	binary.LittleEndian.PutUint32(d, uint32(rel))
	binary.LittleEndian.PutUint32(d[4:], uint32(n))
}

// BeginObject starts an embedded object in an Object slot.
func (b *Builder) BeginObject(i int, layout Layout) *Builder {
	s := b.slot(i, Object)
	child := b.enc.beginObject(layout)
	b.open = pendingObject{child, s}
	return child
}

type pendingObject struct {
	child *Builder
	slot  Slot
}

func (b *Builder) EndObject(child *Builder) {
	p, ok := b.open.(pendingObject)
	if !ok || p.child != child {
		panic("EndObject called for a builder that is not open")
	}
	child.finish()
	b.open = nil
	b.setDescriptor(p.slot, child.start)
}

// BeginList starts a list with exactly count elements in a list slot.
func (b *Builder) BeginList(i int, count int) *ListBuilder {
	if i < 0 || i >= len(b.layout.Slots) {
		panic(fmt.Errorf("slot %d out of range (%d slots)", i, len(b.layout.Slots)))
	}
	t := b.layout.Slots[i].Type
	if !t.IsList() {
		panic(fmt.Errorf("slot %d is %v, not a list", i, t))
	}
	s := b.slot(i, t)
	if count < 0 {
		panic(fmt.Errorf("negative list length %d", count))
	}
	elem := t.ElementType()
	width := elem.ElementSize()

	regionStart := len(b.enc.buf)
	b.appendCount(count)
	elemStart, buf := grow(b.enc.buf, count*width)
	b.enc.buf = buf
	for k := 0; k < count; k++ {
		off := elemStart + k*width
		putNull(buf[off:off+width], elem)
	}
	lb := &ListBuilder{
		enc:       b.enc,
		elem:      elem,
		width:     width,
		count:     count,
		elemStart: elemStart,
		last:      -1,
	}
	b.open = pendingList{lb, s, regionStart}
	return lb
}

type pendingList struct {
	child       *ListBuilder
	slot        Slot
	regionStart int
}

func (b *Builder) EndList(lb *ListBuilder) {
	p, ok := b.open.(pendingList)
	if !ok || p.child != lb {
		panic("EndList called for a builder that is not open")
	}
	lb.finish()
	b.open = nil
	b.setDescriptor(p.slot, p.regionStart)
}

func (b *Builder) finish() {
	if b.open != nil {
		panic("object finished while a nested builder is open")
	}
	b.done = true
}

// Finish completes the object and returns its encoding. The returned slice
// aliases the buffer passed to NewBuilder.
func (b *Builder) Finish() ([]byte, error) {
	if b.start != 0 {
		panic("Finish called on a nested builder")
	}
	b.finish()
	return b.enc.buf, b.enc.err
}

// ListBuilder encodes the elements of one list, in ascending index order.
type ListBuilder struct {
	enc       *encoder
	elem      DataType
	width     int
	count     int
	elemStart int
	last      int
	open      *Builder
	done      bool
}

func (lb *ListBuilder) Len() int {
	return lb.count
}

func (lb *ListBuilder) ElementType() DataType {
	return lb.elem
}

func (lb *ListBuilder) element(i int, want DataType) []byte {
	if lb.done {
		panic("list builder already finished")
	}
	if lb.open != nil {
		panic(fmt.Errorf("element %d written while a nested builder is open", i))
	}
	if i < 0 || i >= lb.count {
		panic(fmt.Errorf("element %d out of range (length %d)", i, lb.count))
	}
	if i <= lb.last {
		panic(fmt.Errorf("element %d written out of order (last written %d)", i, lb.last))
	}
	if lb.elem != want {
		panic(fmt.Errorf("list of %v cannot hold %v", lb.elem, want))
	}
	lb.last = i
	off := lb.elemStart + i*lb.width
	return lb.enc.buf[off : off+lb.width]
}

func (lb *ListBuilder) PutNull(i int) {
	lb.element(i, lb.elem)
}

func (lb *ListBuilder) PutBool(i int, v bool) {
	lb.element(i, Bool)[0] = boolByte(v)
}

func (lb *ListBuilder) PutUint8(i int, v byte) {
	lb.element(i, Byte)[0] = v
}

func (lb *ListBuilder) PutInt(i int, v int32) {
	binary.LittleEndian.PutUint32(lb.element(i, Int), uint32(v))
}

func (lb *ListBuilder) PutFloat(i int, v float32) {
	binary.LittleEndian.PutUint32(lb.element(i, Float), math.Float32bits(v))
}

func (lb *ListBuilder) PutLong(i int, v int64) {
	binary.LittleEndian.PutUint64(lb.element(i, Long), uint64(v))
}

func (lb *ListBuilder) PutDouble(i int, v float64) {
	binary.LittleEndian.PutUint64(lb.element(i, Double), math.Float64bits(v))
}

func (lb *ListBuilder) PutString(i int, v string) {
	lb.element(i, String)
	pos := len(lb.enc.buf)
	lb.enc.buf = append(lb.enc.buf, v...)
	lb.setRef(i, pos)
}

func (lb *ListBuilder) PutJSON(i int, v any) {
	lb.element(i, Json)
	raw, err := json.Marshal(v)
	if err != nil {
		lb.enc.fail(fmt.Errorf("element %d: %w", i, err))
		return
	}
	pos := len(lb.enc.buf)
	lb.enc.buf = append(lb.enc.buf, raw...)
	lb.setRef(i, pos)
}

func (lb *ListBuilder) setRef(i int, pos int) {
	rel := pos - lb.elemStart
	n := len(lb.enc.buf) - pos
	if rel+n > MaxListPayload {
		lb.enc.fail(fmt.Errorf("list payload exceeds %d bytes: %w", MaxListPayload, ErrTooLarge))
		return
	}
	off := lb.elemStart + i*lb.width
	ref := lb.enc.buf[off : off+elementRefSize]
	putUint24(ref, uint32(rel))
	putUint24(ref[3:], uint32(n))
}

// BeginObject starts an embedded object as element i of an object list.
func (lb *ListBuilder) BeginObject(i int, layout Layout) *Builder {
	lb.element(i, Object)
	child := lb.enc.beginObject(layout)
	lb.open = child
	return child
}

func (lb *ListBuilder) EndObject(child *Builder) {
	if lb.open == nil || lb.open != child {
		panic("EndObject called for a builder that is not open")
	}
	child.finish()
	lb.open = nil
	lb.setRef(lb.last, child.start)
}

func (lb *ListBuilder) finish() {
	if lb.open != nil {
		panic("list finished while a nested builder is open")
	}
	lb.done = true
}
