package codec

import (
	"encoding/json"
	"fmt"
)

// DataType is the storage kind of a property. List kinds are a closed,
// separate set of values: there is no way to express a list of lists.
type DataType uint8

const (
	Bool DataType = iota
	Byte
	Int
	Float
	Long
	Double
	String
	Object
	Json
	BoolList
	ByteList
	IntList
	FloatList
	LongList
	DoubleList
	StringList
	ObjectList

	dataTypeCount
)

var dataTypeNames = [dataTypeCount]string{
	Bool:       "Bool",
	Byte:       "Byte",
	Int:        "Int",
	Float:      "Float",
	Long:       "Long",
	Double:     "Double",
	String:     "String",
	Object:     "Object",
	Json:       "Json",
	BoolList:   "BoolList",
	ByteList:   "ByteList",
	IntList:    "IntList",
	FloatList:  "FloatList",
	LongList:   "LongList",
	DoubleList: "DoubleList",
	StringList: "StringList",
	ObjectList: "ObjectList",
}

var dataTypeAliases = map[string]DataType{
	"DateTime":     Long,
	"DateTimeList": LongList,
}

func (t DataType) IsValid() bool {
	return t < dataTypeCount
}

func (t DataType) String() string {
	if t.IsValid() {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

func (t DataType) IsList() bool {
	return t >= BoolList && t <= ObjectList
}

// IsDynamic returns true for types stored in the trailing region and
// referenced by an offset+length descriptor.
func (t DataType) IsDynamic() bool {
	return t == String || t == Object || t == Json || t.IsList()
}

// ElementType returns the scalar type of a list's elements, or t itself
// for non-list types.
func (t DataType) ElementType() DataType {
	if t.IsList() {
		return t - BoolList
	}
	return t
}

// ListType returns the list counterpart of a scalar type. Panics for Json
// and list types.
func (t DataType) ListType() DataType {
	if t == Json || t.IsList() || !t.IsValid() {
		panic(fmt.Errorf("%v has no list type", t))
	}
	return t + BoolList
}

// SlotSize is the number of bytes a property of this type occupies in the
// static region of an object.
func (t DataType) SlotSize() int {
	switch t {
	case Bool, Byte:
		return 1
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		return descriptorSize
	}
}

// ElementSize is the width of one element of a list of this scalar type.
func (t DataType) ElementSize() int {
	switch t {
	case Bool, Byte:
		return 1
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	case String, Json, Object:
		return elementRefSize
	default:
		panic(fmt.Errorf("%v cannot be a list element", t))
	}
}

func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if name == s {
			return DataType(i), nil
		}
	}
	if t, ok := dataTypeAliases[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

func (t DataType) MarshalJSON() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("cannot marshal %v", t)
	}
	return json.Marshal(t.String())
}

func (t *DataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
