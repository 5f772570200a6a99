package codec

import (
	"encoding/json"
	"testing"
)

func TestDataType_ListPartition(t *testing.T) {
	for dt := Bool; dt < dataTypeCount; dt++ {
		if dt.IsList() {
			el := dt.ElementType()
			if el.IsList() {
				t.Errorf("%v.ElementType() = %v, a list", dt, el)
			}
			eq(t, el.ListType(), dt)
		} else {
			eq(t, dt.ElementType(), dt)
		}
	}
	eq(t, StringList.ElementType(), String)
	eq(t, ObjectList.ElementType(), Object)
	eq(t, Json.IsList(), false)
	expectPanic(t, "has no list type", func() { Json.ListType() })
	expectPanic(t, "has no list type", func() { IntList.ListType() })
	expectPanic(t, "cannot be a list element", func() { IntList.ElementSize() })
}

func TestDataType_Sizes(t *testing.T) {
	eq(t, Bool.SlotSize(), 1)
	eq(t, Float.SlotSize(), 4)
	eq(t, Double.SlotSize(), 8)
	eq(t, String.SlotSize(), 8)
	eq(t, ObjectList.SlotSize(), 8)
	eq(t, Byte.ElementSize(), 1)
	eq(t, Int.ElementSize(), 4)
	eq(t, Long.ElementSize(), 8)
	eq(t, String.ElementSize(), 6)
	eq(t, Object.ElementSize(), 6)
}

func TestDataType_JSON(t *testing.T) {
	var types []DataType
	err := json.Unmarshal([]byte(`["Int","StringList","DateTime","DateTimeList"]`), &types)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, types, []DataType{Int, StringList, Long, LongList})

	raw, err := json.Marshal(types)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, string(raw), `["Int","StringList","Long","LongList"]`)

	if _, err := ParseDataType("Decimal"); err == nil {
		t.Fatalf("ParseDataType(Decimal) succeeded")
	}
	eq(t, DataType(200).String(), "DataType(200)")
}
