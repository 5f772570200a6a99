package objdb

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/andreyvit/objdb/codec"
)

// Filter is a predicate over the objects of one collection, built from
// Conditions and the combinators And, Or, Not, Object and IDBetween.
//
// Evaluation is two-valued. A null or absent property fails every
// condition except IsNull. A condition on a list property holds if any
// element satisfies it, except IsNull which tests the list itself.
type Filter interface {
	isFilter()
}

// Op is the comparison performed by a Condition.
type Op uint8

const (
	OpIsNull Op = iota
	OpEqual
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpBetween
	OpStartsWith
	OpEndsWith
	OpContains
	OpMatches
)

var opNames = [...]string{
	OpIsNull:         "IsNull",
	OpEqual:          "Equal",
	OpGreater:        "Greater",
	OpGreaterOrEqual: "GreaterOrEqual",
	OpLess:           "Less",
	OpLessOrEqual:    "LessOrEqual",
	OpBetween:        "Between",
	OpStartsWith:     "StartsWith",
	OpEndsWith:       "EndsWith",
	OpContains:       "Contains",
	OpMatches:        "Matches",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

func (op Op) isStringOnly() bool {
	return op >= OpStartsWith
}

type valueKind uint8

const (
	noValue valueKind = iota
	boolValue
	intValue
	floatValue
	stringValue
)

// Value is an operand of a Condition.
type Value struct {
	kind valueKind
	b    bool
	i    int64
	f    float64
	s    string
}

func BoolValue(v bool) Value     { return Value{kind: boolValue, b: v} }
func IntValue(v int64) Value     { return Value{kind: intValue, i: v} }
func FloatValue(v float64) Value { return Value{kind: floatValue, f: v} }
func StringValue(v string) Value { return Value{kind: stringValue, s: v} }

func (v Value) isNumeric() bool {
	return v.kind == intValue || v.kind == floatValue
}

func (v Value) float() float64 {
	if v.kind == intValue {
		return float64(v.i)
	}
	return v.f
}

func (v Value) String() string {
	switch v.kind {
	case boolValue:
		return strconv.FormatBool(v.b)
	case intValue:
		return strconv.FormatInt(v.i, 10)
	case floatValue:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case stringValue:
		return strconv.Quote(v.s)
	default:
		return "<none>"
	}
}

// Condition compares one property (by index) against Value, or against the
// range [Value, Upper] for OpBetween.
type Condition struct {
	Property        int
	Op              Op
	Value           Value
	Upper           Value
	CaseInsensitive bool
}

type AndFilter struct{ Filters []Filter }
type OrFilter struct{ Filters []Filter }
type NotFilter struct{ Filter Filter }

// ObjectFilter applies Filter to the embedded object stored in Property
// (any element, for an object list).
type ObjectFilter struct {
	Property int
	Filter   Filter
}

// IDRange matches top-level objects with Lower <= id <= Upper.
type IDRange struct {
	Lower, Upper int64
}

func (*Condition) isFilter()    {}
func (*AndFilter) isFilter()    {}
func (*OrFilter) isFilter()     {}
func (*NotFilter) isFilter()    {}
func (*ObjectFilter) isFilter() {}
func (*IDRange) isFilter()      {}

func IsNull(prop int) *Condition {
	return &Condition{Property: prop, Op: OpIsNull}
}

func Equal(prop int, v Value) *Condition {
	return &Condition{Property: prop, Op: OpEqual, Value: v}
}

func Greater(prop int, v Value) *Condition {
	return &Condition{Property: prop, Op: OpGreater, Value: v}
}

func GreaterOrEqual(prop int, v Value) *Condition {
	return &Condition{Property: prop, Op: OpGreaterOrEqual, Value: v}
}

func Less(prop int, v Value) *Condition {
	return &Condition{Property: prop, Op: OpLess, Value: v}
}

func LessOrEqual(prop int, v Value) *Condition {
	return &Condition{Property: prop, Op: OpLessOrEqual, Value: v}
}

// Between matches lower <= value <= upper.
func Between(prop int, lower, upper Value) *Condition {
	return &Condition{Property: prop, Op: OpBetween, Value: lower, Upper: upper}
}

func StartsWith(prop int, s string) *Condition {
	return &Condition{Property: prop, Op: OpStartsWith, Value: StringValue(s)}
}

func EndsWith(prop int, s string) *Condition {
	return &Condition{Property: prop, Op: OpEndsWith, Value: StringValue(s)}
}

func Contains(prop int, s string) *Condition {
	return &Condition{Property: prop, Op: OpContains, Value: StringValue(s)}
}

// Matches compares against a wildcard pattern: * matches any run of
// characters, ? matches exactly one.
func Matches(prop int, pattern string) *Condition {
	return &Condition{Property: prop, Op: OpMatches, Value: StringValue(pattern)}
}

// IgnoringCase returns a copy of c that compares strings case-insensitively.
func (c *Condition) IgnoringCase() *Condition {
	c2 := *c
	c2.CaseInsensitive = true
	return &c2
}

// And holds if all filters hold; an empty And always holds.
func And(filters ...Filter) Filter { return &AndFilter{filters} }

// Or holds if any filter holds; an empty Or never holds.
func Or(filters ...Filter) Filter { return &OrFilter{filters} }

func Not(f Filter) Filter { return &NotFilter{f} }

func Object(prop int, f Filter) Filter { return &ObjectFilter{prop, f} }

func IDBetween(lower, upper int64) Filter { return &IDRange{lower, upper} }

// matchFunc evaluates a compiled filter; id is 0 for embedded objects.
type matchFunc func(obj codec.View, id int64) bool

func compileFilter(coll *Collection, f Filter) (matchFunc, error) {
	switch f := f.(type) {
	case *Condition:
		return compileCondition(coll, f)
	case *AndFilter:
		subs, err := compileFilters(coll, f.Filters)
		if err != nil {
			return nil, err
		}
		return func(obj codec.View, id int64) bool {
			for _, m := range subs {
				if !m(obj, id) {
					return false
				}
			}
			return true
		}, nil
	case *OrFilter:
		subs, err := compileFilters(coll, f.Filters)
		if err != nil {
			return nil, err
		}
		return func(obj codec.View, id int64) bool {
			for _, m := range subs {
				if m(obj, id) {
					return true
				}
			}
			return false
		}, nil
	case *NotFilter:
		sub, err := compileFilter(coll, f.Filter)
		if err != nil {
			return nil, err
		}
		return func(obj codec.View, id int64) bool {
			return !sub(obj, id)
		}, nil
	case *ObjectFilter:
		return compileObjectFilter(coll, f)
	case *IDRange:
		if coll.embedded {
			return nil, argErrf(coll.name, "embedded objects have no id to filter on")
		}
		lo, hi := f.Lower, f.Upper
		return func(_ codec.View, id int64) bool {
			return id >= lo && id <= hi
		}, nil
	case nil:
		return nil, argErrf(coll.name, "nil filter")
	default:
		return nil, argErrf(coll.name, "unsupported filter %T", f)
	}
}

func compileFilters(coll *Collection, filters []Filter) ([]matchFunc, error) {
	subs := make([]matchFunc, len(filters))
	for i, f := range filters {
		m, err := compileFilter(coll, f)
		if err != nil {
			return nil, err
		}
		subs[i] = m
	}
	return subs, nil
}

func compileObjectFilter(coll *Collection, f *ObjectFilter) (matchFunc, error) {
	p, err := coll.Property(f.Property)
	if err != nil {
		return nil, err
	}
	if p.typ != codec.Object && p.typ != codec.ObjectList {
		return nil, argErrf(coll.name, "%v is %v, not an object", p, p.typ)
	}
	sub, err := compileFilter(p.target, f.Filter)
	if err != nil {
		return nil, err
	}
	off := p.offset
	if p.typ == codec.Object {
		return func(obj codec.View, _ int64) bool {
			emb, ok := obj.ReadObject(off)
			return ok && sub(emb, 0)
		}, nil
	}
	return func(obj codec.View, _ int64) bool {
		l, ok := obj.ReadList(off, codec.Object)
		if !ok {
			return false
		}
		for i, n := 0, l.Len(); i < n; i++ {
			if emb, ok := l.ReadObject(i); ok && sub(emb, 0) {
				return true
			}
		}
		return false
	}, nil
}

func compileCondition(coll *Collection, c *Condition) (matchFunc, error) {
	p, err := coll.Property(c.Property)
	if err != nil {
		return nil, err
	}
	off, typ := p.offset, p.typ
	if c.Op == OpIsNull {
		return func(obj codec.View, _ int64) bool {
			return isNullAt(obj, off, typ)
		}, nil
	}
	if c.Op > OpMatches {
		return nil, argErrf(coll.name, "invalid operator %v", c.Op)
	}

	elem := typ
	if typ.IsList() {
		elem = typ.ElementType()
	}
	bad := func(format string, args ...any) error {
		return argErrf(coll.name, "%v %v: %s", p, c.Op, fmt.Sprintf(format, args...))
	}

	switch elem {
	case codec.Bool:
		if c.Op != OpEqual || c.Value.kind != boolValue {
			return nil, bad("%v properties only support Equal with a bool value", typ)
		}
		return boolMatcher(p, c.Value.b), nil

	case codec.Byte, codec.Int, codec.Long, codec.Float, codec.Double:
		if c.Op.isStringOnly() {
			return nil, bad("not supported on %v", typ)
		}
		if !c.Value.isNumeric() || (c.Op == OpBetween && !c.Upper.isNumeric()) {
			return nil, bad("%v needs numeric values, got %v", typ, c.Value)
		}
		if math.IsNaN(c.Value.float()) || (c.Op == OpBetween && math.IsNaN(c.Upper.float())) {
			return nil, bad("NaN is not a comparable value")
		}
		isFloat := elem == codec.Float || elem == codec.Double
		if isFloat || c.Value.kind == floatValue || (c.Op == OpBetween && c.Upper.kind == floatValue) {
			lo, hi := c.Value.float(), c.Upper.float()
			if elem == codec.Float {
				// compare at the precision the values were stored with
				lo, hi = float64(float32(lo)), float64(float32(hi))
			}
			return floatMatcher(p, floatTest(c.Op, lo, hi)), nil
		}
		return intMatcher(p, intTest(c.Op, c.Value.i, c.Upper.i)), nil

	case codec.String:
		if c.Value.kind != stringValue || (c.Op == OpBetween && c.Upper.kind != stringValue) {
			return nil, bad("%v needs string values, got %v", typ, c.Value)
		}
		return stringMatcher(p, stringTest(c.Op, c.Value.s, c.Upper.s, c.CaseInsensitive)), nil

	default:
		return nil, bad("%v properties only support IsNull", typ)
	}
}

func boolMatcher(p *Property, want bool) matchFunc {
	off := p.offset
	if p.typ.IsList() {
		return func(obj codec.View, _ int64) bool {
			l, ok := obj.ReadList(off, codec.Bool)
			if !ok {
				return false
			}
			for i, n := 0, l.Len(); i < n; i++ {
				if v, ok := l.ReadBool(i); ok && v == want {
					return true
				}
			}
			return false
		}
	}
	return func(obj codec.View, _ int64) bool {
		v, ok := obj.ReadBool(off)
		return ok && v == want
	}
}

func intTest(op Op, lo, hi int64) func(int64) bool {
	switch op {
	case OpEqual:
		return func(v int64) bool { return v == lo }
	case OpGreater:
		return func(v int64) bool { return v > lo }
	case OpGreaterOrEqual:
		return func(v int64) bool { return v >= lo }
	case OpLess:
		return func(v int64) bool { return v < lo }
	case OpLessOrEqual:
		return func(v int64) bool { return v <= lo }
	case OpBetween:
		return func(v int64) bool { return v >= lo && v <= hi }
	default:
		panic(fmt.Errorf("intTest: unexpected %v", op))
	}
}

func floatTest(op Op, lo, hi float64) func(float64) bool {
	switch op {
	case OpEqual:
		return func(v float64) bool { return v == lo }
	case OpGreater:
		return func(v float64) bool { return v > lo }
	case OpGreaterOrEqual:
		return func(v float64) bool { return v >= lo }
	case OpLess:
		return func(v float64) bool { return v < lo }
	case OpLessOrEqual:
		return func(v float64) bool { return v <= lo }
	case OpBetween:
		return func(v float64) bool { return v >= lo && v <= hi }
	default:
		panic(fmt.Errorf("floatTest: unexpected %v", op))
	}
}

func stringTest(op Op, lo, hi string, caseInsensitive bool) func(string) bool {
	fold := func(s string) string { return s }
	if caseInsensitive {
		fold = strings.ToLower
		lo, hi = fold(lo), fold(hi)
	}
	switch op {
	case OpEqual:
		if caseInsensitive {
			return func(v string) bool { return strings.EqualFold(v, lo) }
		}
		return func(v string) bool { return v == lo }
	case OpGreater:
		return func(v string) bool { return fold(v) > lo }
	case OpGreaterOrEqual:
		return func(v string) bool { return fold(v) >= lo }
	case OpLess:
		return func(v string) bool { return fold(v) < lo }
	case OpLessOrEqual:
		return func(v string) bool { return fold(v) <= lo }
	case OpBetween:
		return func(v string) bool { v = fold(v); return v >= lo && v <= hi }
	case OpStartsWith:
		return func(v string) bool { return strings.HasPrefix(fold(v), lo) }
	case OpEndsWith:
		return func(v string) bool { return strings.HasSuffix(fold(v), lo) }
	case OpContains:
		return func(v string) bool { return strings.Contains(fold(v), lo) }
	case OpMatches:
		return func(v string) bool { return wildcardMatch(lo, fold(v)) }
	default:
		panic(fmt.Errorf("stringTest: unexpected %v", op))
	}
}

func intMatcher(p *Property, test func(int64) bool) matchFunc {
	off, typ := p.offset, p.typ
	if typ.IsList() {
		elem := typ.ElementType()
		return func(obj codec.View, _ int64) bool {
			l, ok := obj.ReadList(off, elem)
			if !ok {
				return false
			}
			for i, n := 0, l.Len(); i < n; i++ {
				if v, ok := listInt(l, elem, i); ok && test(v) {
					return true
				}
			}
			return false
		}
	}
	return func(obj codec.View, _ int64) bool {
		v, ok := readInt(obj, off, typ)
		return ok && test(v)
	}
}

func floatMatcher(p *Property, test func(float64) bool) matchFunc {
	off, typ := p.offset, p.typ
	if typ.IsList() {
		elem := typ.ElementType()
		return func(obj codec.View, _ int64) bool {
			l, ok := obj.ReadList(off, elem)
			if !ok {
				return false
			}
			for i, n := 0, l.Len(); i < n; i++ {
				if v, ok := listFloat(l, elem, i); ok && test(v) {
					return true
				}
			}
			return false
		}
	}
	return func(obj codec.View, _ int64) bool {
		v, ok := readFloat(obj, off, typ)
		return ok && test(v)
	}
}

func stringMatcher(p *Property, test func(string) bool) matchFunc {
	off := p.offset
	if p.typ.IsList() {
		return func(obj codec.View, _ int64) bool {
			l, ok := obj.ReadList(off, codec.String)
			if !ok {
				return false
			}
			for i, n := 0, l.Len(); i < n; i++ {
				if v, ok := l.ReadString(i); ok && test(v) {
					return true
				}
			}
			return false
		}
	}
	return func(obj codec.View, _ int64) bool {
		v, ok := obj.ReadString(off)
		return ok && test(v)
	}
}

// readInt reads an integer-typed slot as int64; ok is false for null.
func readInt(obj codec.View, off int, t codec.DataType) (int64, bool) {
	switch t {
	case codec.Byte:
		return int64(obj.ReadUint8(off)), true
	case codec.Int:
		v := obj.ReadInt(off)
		return int64(v), v != codec.NullInt
	case codec.Long:
		v := obj.ReadLong(off)
		return v, v != codec.NullLong
	default:
		v, ok := readFloat(obj, off, t)
		return int64(v), ok
	}
}

// readFloat reads a numeric slot as float64; ok is false for null.
func readFloat(obj codec.View, off int, t codec.DataType) (float64, bool) {
	switch t {
	case codec.Float:
		v := float64(obj.ReadFloat(off))
		return v, !math.IsNaN(v)
	case codec.Double:
		v := obj.ReadDouble(off)
		return v, !math.IsNaN(v)
	default:
		v, ok := readInt(obj, off, t)
		return float64(v), ok
	}
}

func listInt(l codec.List, elem codec.DataType, i int) (int64, bool) {
	switch elem {
	case codec.Byte:
		return int64(l.ReadUint8(i)), true
	case codec.Int:
		v := l.ReadInt(i)
		return int64(v), v != codec.NullInt
	case codec.Long:
		v := l.ReadLong(i)
		return v, v != codec.NullLong
	default:
		v, ok := listFloat(l, elem, i)
		return int64(v), ok
	}
}

func listFloat(l codec.List, elem codec.DataType, i int) (float64, bool) {
	switch elem {
	case codec.Float:
		v := float64(l.ReadFloat(i))
		return v, !math.IsNaN(v)
	case codec.Double:
		v := l.ReadDouble(i)
		return v, !math.IsNaN(v)
	default:
		v, ok := listInt(l, elem, i)
		return float64(v), ok
	}
}

// wildcardMatch reports whether s matches pattern, where * matches any
// (possibly empty) run of characters and ? matches exactly one character.
func wildcardMatch(pattern, s string) bool {
	px, sx := 0, 0
	starP, starS := -1, -1
	for sx < len(s) {
		if px < len(pattern) {
			switch pattern[px] {
			case '*':
				starP, starS = px, sx
				px++
				continue
			case '?':
				_, n := utf8.DecodeRuneInString(s[sx:])
				px++
				sx += n
				continue
			default:
				if pattern[px] == s[sx] {
					px++
					sx++
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		// let the last star absorb one more character
		_, n := utf8.DecodeRuneInString(s[starS:])
		starS += n
		px, sx = starP+1, starS
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
