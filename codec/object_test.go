package codec

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestObject_RoundTripScalars(t *testing.T) {
	layout := mustLayout(t, Bool, Byte, Int, Float, Long, Double, String, Json)

	b := NewBuilder(layout, nil)
	b.PutBool(0, true)
	b.PutUint8(1, 0xAB)
	b.PutInt(2, math.MaxInt32)
	b.PutFloat(3, 1.5)
	b.PutLong(4, math.MaxInt64)
	b.PutDouble(5, -2.25)
	b.PutString(6, "héllo")
	b.PutJSON(7, map[string]any{"a": 1})
	data := must(b.Finish())

	o := must(Load(data))
	v, ok := o.ReadBool(layout.Slots[0].Offset)
	eq(t, v, true)
	eq(t, ok, true)
	eq(t, o.ReadUint8(layout.Slots[1].Offset), byte(0xAB))
	eq(t, o.ReadInt(layout.Slots[2].Offset), int32(math.MaxInt32))
	eq(t, o.ReadFloat(layout.Slots[3].Offset), float32(1.5))
	eq(t, o.ReadLong(layout.Slots[4].Offset), int64(math.MaxInt64))
	eq(t, o.ReadDouble(layout.Slots[5].Offset), -2.25)
	s, ok := o.ReadString(layout.Slots[6].Offset)
	eq(t, s, "héllo")
	eq(t, ok, true)
	j, ok := o.ReadJSON(layout.Slots[7].Offset)
	eq(t, ok, true)
	eq(t, j, any(map[string]any{"a": 1.0}))
}

func TestObject_NullsByDefault(t *testing.T) {
	layout := mustLayout(t, Bool, Byte, Int, Float, Long, Double, String, Object, IntList)
	data := must(NewBuilder(layout, nil).Finish())
	eq(t, len(data), layout.HeaderLen)

	o := must(Load(data))
	_, ok := o.ReadBool(layout.Slots[0].Offset)
	eq(t, ok, false)
	eq(t, o.ReadUint8(layout.Slots[1].Offset), byte(0))
	eq(t, o.ReadInt(layout.Slots[2].Offset), NullInt)
	if f := o.ReadFloat(layout.Slots[3].Offset); !math.IsNaN(float64(f)) {
		t.Fatalf("ReadFloat = %v, wanted NaN", f)
	}
	eq(t, o.ReadLong(layout.Slots[4].Offset), NullLong)
	if f := o.ReadDouble(layout.Slots[5].Offset); !math.IsNaN(f) {
		t.Fatalf("ReadDouble = %v, wanted NaN", f)
	}
	_, ok = o.ReadString(layout.Slots[6].Offset)
	eq(t, ok, false)
	_, ok = o.ReadObject(layout.Slots[7].Offset)
	eq(t, ok, false)
	_, ok = o.ReadList(layout.Slots[8].Offset, Int)
	eq(t, ok, false)
}

func TestPutNull_Sentinels(t *testing.T) {
	b := make([]byte, 8)
	putNull(b[:4], Int)
	eq(t, b[:4], []byte{0, 0, 0, 0x80})
	eq(t, decodeInt(b[:4]), NullInt)

	putNull(b, Long)
	eq(t, b, []byte{0, 0, 0, 0, 0, 0, 0, 0x80})
	eq(t, decodeLong(b), NullLong)

	putNull(b, String)
	eq(t, b, make([]byte, String.SlotSize()))
}

func TestObject_EmptyIsNotAbsent(t *testing.T) {
	layout := mustLayout(t, String, StringList, ByteList)
	b := NewBuilder(layout, nil)
	b.PutString(0, "")
	b.EndList(b.BeginList(1, 0))
	b.PutBlob(2, []byte{})
	o := must(Load(must(b.Finish())))

	s, ok := o.ReadString(layout.Slots[0].Offset)
	eq(t, s, "")
	eq(t, ok, true)

	l, ok := o.ReadList(layout.Slots[1].Offset, String)
	eq(t, ok, true)
	eq(t, l.Len(), 0)

	l, ok = o.ReadList(layout.Slots[2].Offset, Byte)
	eq(t, ok, true)
	eq(t, len(l.Blob()), 0)
}

func TestObject_Lists(t *testing.T) {
	layout := mustLayout(t, BoolList, IntList, DoubleList, StringList, ByteList)
	b := NewBuilder(layout, nil)

	lb := b.BeginList(0, 3)
	lb.PutBool(0, true)
	lb.PutBool(2, false)
	b.EndList(lb)

	lb = b.BeginList(1, 2)
	lb.PutInt(0, -7)
	lb.PutInt(1, 9)
	b.EndList(lb)

	lb = b.BeginList(2, 1)
	lb.PutDouble(0, 3.5)
	b.EndList(lb)

	lb = b.BeginList(3, 3)
	lb.PutString(0, "x")
	lb.PutString(2, "yz")
	b.EndList(lb)

	b.PutBlob(4, []byte{1, 2, 3})
	o := must(Load(must(b.Finish())))

	l, _ := o.ReadList(layout.Slots[0].Offset, Bool)
	eq(t, l.Len(), 3)
	v, ok := l.ReadBool(0)
	eq(t, v && ok, true)
	_, ok = l.ReadBool(1)
	eq(t, ok, false)
	v, ok = l.ReadBool(2)
	eq(t, !v && ok, true)

	l, _ = o.ReadList(layout.Slots[1].Offset, Int)
	eq(t, l.ReadInt(0), int32(-7))
	eq(t, l.ReadInt(1), int32(9))
	eq(t, l.ReadInt(2), NullInt)

	l, _ = o.ReadList(layout.Slots[2].Offset, Double)
	eq(t, l.ReadDouble(0), 3.5)

	l, _ = o.ReadList(layout.Slots[3].Offset, String)
	s, ok := l.ReadString(0)
	eq(t, s, "x")
	eq(t, ok, true)
	_, ok = l.ReadString(1)
	eq(t, ok, false)
	s, _ = l.ReadString(2)
	eq(t, s, "yz")

	l, _ = o.ReadList(layout.Slots[4].Offset, Byte)
	eq(t, l.Blob(), []byte{1, 2, 3})
	eq(t, l.ReadUint8(1), byte(2))
}

func TestObject_Embedded(t *testing.T) {
	inner := mustLayout(t, String, Int)
	outer := mustLayout(t, Long, Object, ObjectList)

	b := NewBuilder(outer, nil)
	b.PutLong(0, 42)
	ob := b.BeginObject(1, inner)
	ob.PutString(0, "first")
	ob.PutInt(1, 1)
	b.EndObject(ob)

	lb := b.BeginList(2, 2)
	ob = lb.BeginObject(0, inner)
	ob.PutString(0, "a")
	lb.EndObject(ob)
	ob = lb.BeginObject(1, inner)
	ob.PutInt(1, 2)
	lb.EndObject(ob)
	b.EndList(lb)

	o := must(Load(must(b.Finish())))
	eq(t, o.ReadLong(outer.Slots[0].Offset), int64(42))

	sub, ok := o.ReadObject(outer.Slots[1].Offset)
	eq(t, ok, true)
	s, _ := sub.ReadString(inner.Slots[0].Offset)
	eq(t, s, "first")
	eq(t, sub.ReadInt(inner.Slots[1].Offset), int32(1))

	l, ok := o.ReadList(outer.Slots[2].Offset, Object)
	eq(t, ok, true)
	eq(t, l.Len(), 2)
	e0, _ := l.ReadObject(0)
	s, _ = e0.ReadString(inner.Slots[0].Offset)
	eq(t, s, "a")
	eq(t, e0.ReadInt(inner.Slots[1].Offset), NullInt)
	e1, _ := l.ReadObject(1)
	_, ok = e1.ReadString(inner.Slots[0].Offset)
	eq(t, ok, false)
	eq(t, e1.ReadInt(inner.Slots[1].Offset), int32(2))
}

func TestObject_TruncatedNeverReadsPastEnd(t *testing.T) {
	layout := mustLayout(t, Long, String, StringList, Object, Int)
	inner := mustLayout(t, Int)
	b := NewBuilder(layout, nil)
	b.PutLong(0, 1)
	b.PutString(1, "some string")
	lb := b.BeginList(2, 2)
	lb.PutString(0, "p")
	lb.PutString(1, "q")
	b.EndList(lb)
	ob := b.BeginObject(3, inner)
	ob.PutInt(0, 5)
	b.EndObject(ob)
	b.PutInt(4, 77)
	data := must(b.Finish())

	for n := 0; n < len(data); n++ {
		o, err := Load(data[:n:n])
		if err != nil {
			if !errors.Is(err, ErrCorrupted) {
				t.Fatalf("Load(%d bytes) err = %v, wanted ErrCorrupted", n, err)
			}
			continue
		}
		o.ReadLong(layout.Slots[0].Offset)
		o.ReadInt(layout.Slots[4].Offset)
		if s, ok := o.ReadString(layout.Slots[1].Offset); ok && s != "some string" {
			t.Fatalf("ReadString on %d bytes = %q", n, s)
		}
		if l, ok := o.ReadList(layout.Slots[2].Offset, String); ok {
			for i := 0; i < l.Len(); i++ {
				l.ReadString(i)
			}
		}
		if sub, ok := o.ReadObject(layout.Slots[3].Offset); ok {
			sub.ReadInt(inner.Slots[0].Offset)
		}
	}

	// a header cut short by an older, shorter layout reads as nulls
	short := must(NewBuilder(mustLayout(t, Long), nil).Finish())
	o := must(Load(short))
	eq(t, o.ReadInt(layout.Slots[4].Offset), NullInt)
	_, ok := o.ReadString(layout.Slots[1].Offset)
	eq(t, ok, false)
}

func TestLoad_RejectsBadHeader(t *testing.T) {
	for _, data := range [][]byte{nil, {1}, {1, 0}, {0xFF, 0}} {
		_, err := Load(data)
		if !errors.Is(err, ErrCorrupted) {
			t.Errorf("Load(%x) err = %v, wanted ErrCorrupted", data, err)
		}
	}
}

func TestBuilder_StrictOrder(t *testing.T) {
	layout := mustLayout(t, Int, Int, StringList, Int)

	expectPanic(t, "out of order", func() {
		b := NewBuilder(layout, nil)
		b.PutInt(1, 1)
		b.PutInt(0, 1)
	})
	expectPanic(t, "nested builder is open", func() {
		b := NewBuilder(layout, nil)
		b.BeginList(2, 1)
		b.PutInt(3, 1)
	})
	expectPanic(t, "cannot write", func() {
		b := NewBuilder(layout, nil)
		b.PutString(0, "x")
	})
	expectPanic(t, "not a list", func() {
		b := NewBuilder(layout, nil)
		b.BeginList(0, 1)
	})
	expectPanic(t, "cannot hold", func() {
		b := NewBuilder(layout, nil)
		lb := b.BeginList(2, 1)
		lb.PutInt(0, 1)
	})
	expectPanic(t, "nested builder is open", func() {
		b := NewBuilder(layout, nil)
		b.BeginList(2, 1)
		b.Finish()
	})
}

func TestBuilder_ListPayloadLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates 16 MiB")
	}
	layout := mustLayout(t, StringList)
	b := NewBuilder(layout, nil)
	lb := b.BeginList(0, 1)
	lb.PutString(0, strings.Repeat("x", MaxListPayload))
	b.EndList(lb)
	_, err := b.Finish()
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Finish err = %v, wanted ErrTooLarge", err)
	}
}

func TestNewLayout_Deterministic(t *testing.T) {
	types := []DataType{Bool, Int, String, Double, ByteList}
	a := must(NewLayout(types))
	b := must(NewLayout(types))
	eq(t, a, b)
	eq(t, a.Slots[0].Offset, 2)
	eq(t, a.Slots[1].Offset, 3)
	eq(t, a.Slots[2].Offset, 7)
	eq(t, a.Slots[3].Offset, 15)
	eq(t, a.Slots[4].Offset, 23)
	eq(t, a.HeaderLen, 31)

	longer := must(NewLayout(append(types, Long)))
	eq(t, a.IsPrefixOf(longer), true)
	eq(t, longer.IsPrefixOf(a), false)
	retyped := must(NewLayout([]DataType{Bool, Long, String, Double, ByteList}))
	eq(t, a.IsPrefixOf(retyped), false)
}

func TestNewLayout_TooLarge(t *testing.T) {
	types := make([]DataType, MaxHeaderLen/8+1)
	for i := range types {
		types[i] = String
	}
	if _, err := NewLayout(types); err == nil {
		t.Fatalf("NewLayout succeeded for a %d-slot layout", len(types))
	}
}

func mustLayout(t testing.TB, types ...DataType) Layout {
	t.Helper()
	l, err := NewLayout(types)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func eq[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Fatalf("** got %v, wanted %v", a, e)
	}
}

func expectPanic(t testing.TB, substr string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		p := recover()
		if p == nil {
			t.Fatalf("expected panic containing %q", substr)
		}
		var msg string
		switch p := p.(type) {
		case error:
			msg = p.Error()
		case string:
			msg = p
		}
		if !strings.Contains(msg, substr) {
			t.Fatalf("panic %q, wanted it to contain %q", msg, substr)
		}
	}()
	f()
}
