package objdb

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/andreyvit/objdb/codec"
)

type SortOrder uint8

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

type sortSpec struct {
	prop          *Property
	order         SortOrder
	caseSensitive bool
}

type distinctSpec struct {
	prop          *Property
	caseSensitive bool
}

// QueryBuilder collects the parts of a query over one collection. Errors
// are reported by Build.
type QueryBuilder struct {
	coll     *Collection
	filter   Filter
	sorts    []sortSpec
	distinct []distinctSpec
	offset   int
	limit    int
	err      error
}

// BuildQuery starts a query over the objects of a collection.
func (inst *Instance) BuildQuery(collectionIndex int) (*QueryBuilder, error) {
	coll, err := inst.storedCollection(collectionIndex)
	if err != nil {
		return nil, err
	}
	return &QueryBuilder{coll: coll, limit: -1}, nil
}

func (qb *QueryBuilder) fail(err error) *QueryBuilder {
	if qb.err == nil {
		qb.err = err
	}
	return qb
}

// SetFilter replaces the filter; nil matches everything.
func (qb *QueryBuilder) SetFilter(f Filter) *QueryBuilder {
	qb.filter = f
	return qb
}

func (qb *QueryBuilder) orderableProperty(index int, what string) (*Property, error) {
	p, err := qb.coll.Property(index)
	if err != nil {
		return nil, err
	}
	if !isIndexable(p.typ) {
		return nil, argErrf(qb.coll.name, "cannot %s by %v of type %v", what, p, p.typ)
	}
	return p, nil
}

// AddSort orders results by a scalar property; earlier sorts take
// precedence. Nulls sort first in ascending order.
func (qb *QueryBuilder) AddSort(property int, order SortOrder, caseSensitive bool) *QueryBuilder {
	p, err := qb.orderableProperty(property, "sort")
	if err != nil {
		return qb.fail(err)
	}
	if order != Ascending && order != Descending {
		return qb.fail(argErrf(qb.coll.name, "invalid sort order %d", order))
	}
	qb.sorts = append(qb.sorts, sortSpec{p, order, caseSensitive})
	return qb
}

// AddDistinct keeps only the first result for each value of the property
// (combined with any earlier distinct properties).
func (qb *QueryBuilder) AddDistinct(property int, caseSensitive bool) *QueryBuilder {
	p, err := qb.orderableProperty(property, "deduplicate")
	if err != nil {
		return qb.fail(err)
	}
	qb.distinct = append(qb.distinct, distinctSpec{p, caseSensitive})
	return qb
}

// SetOffset skips the first n results.
func (qb *QueryBuilder) SetOffset(n int) *QueryBuilder {
	if n < 0 {
		return qb.fail(argErrf(qb.coll.name, "negative offset %d", n))
	}
	qb.offset = n
	return qb
}

// SetLimit caps the number of results; a negative limit means no limit.
func (qb *QueryBuilder) SetLimit(n int) *QueryBuilder {
	if n < 0 {
		n = -1
	}
	qb.limit = n
	return qb
}

// Build validates the query and plans how it will be executed.
func (qb *QueryBuilder) Build() (*Query, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	q := &Query{
		coll:     qb.coll,
		filter:   qb.filter,
		sorts:    append([]sortSpec(nil), qb.sorts...),
		distinct: append([]distinctSpec(nil), qb.distinct...),
		offset:   qb.offset,
		limit:    qb.limit,
	}
	if qb.filter != nil {
		m, err := compileFilter(qb.coll, qb.filter)
		if err != nil {
			return nil, err
		}
		q.match = m
	}
	q.plan = planQuery(qb.coll, qb.filter)
	return q, nil
}

// Query is a compiled, immutable query. It can be run any number of times,
// in any transaction of its instance.
type Query struct {
	coll     *Collection
	filter   Filter
	match    matchFunc
	sorts    []sortSpec
	distinct []distinctSpec
	offset   int
	limit    int
	plan     queryPlan
}

func (q *Query) Collection() *Collection {
	return q.coll
}

func (q *Query) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s via %v", q.coll.name, q.plan)
	for _, s := range q.sorts {
		fmt.Fprintf(&buf, " sort(%s %v)", s.prop.name, s.order)
	}
	for _, d := range q.distinct {
		fmt.Fprintf(&buf, " distinct(%s)", d.prop.name)
	}
	if q.offset > 0 {
		fmt.Fprintf(&buf, " offset(%d)", q.offset)
	}
	if q.limit >= 0 {
		fmt.Fprintf(&buf, " limit(%d)", q.limit)
	}
	return buf.String()
}

// queryPlan is the bucket a query scans and the key range within it. With
// a nil index, the data bucket is scanned. The range only narrows the
// candidates; the filter decides.
type queryPlan struct {
	index *Index
	rang  keyRange
}

func (p queryPlan) String() string {
	if p.index == nil {
		if p.rang.Lower == nil && p.rang.Upper == nil {
			return "full scan"
		}
		return "id range " + p.rang.String()
	}
	return "index " + p.index.name + " " + p.rang.String()
}

const (
	planFull = iota
	planRange
	planPrefix
	planUniqueEqual
	planIDRange
)

func planQuery(coll *Collection, f Filter) queryPlan {
	var best queryPlan
	bestRank := planFull
	consider := func(f Filter) {
		p, rank := planFilter(coll, f)
		if rank > bestRank {
			best, bestRank = p, rank
		}
	}
	if and, ok := f.(*AndFilter); ok {
		for _, sub := range and.Filters {
			consider(sub)
		}
	} else if f != nil {
		consider(f)
	}
	return best
}

func planFilter(coll *Collection, f Filter) (queryPlan, int) {
	switch f := f.(type) {
	case *IDRange:
		if f.Lower > f.Upper {
			// empty; any bounds that match nothing will do
			return queryPlan{rang: keyRange{Lower: idKey(0), Upper: idKey(0), LowerInc: false, UpperInc: false}}, planIDRange
		}
		return queryPlan{rang: keyRange{Lower: idKey(f.Lower), Upper: idKey(f.Upper), LowerInc: true, UpperInc: true}}, planIDRange
	case *Condition:
		if f.CaseInsensitive {
			return queryPlan{}, planFull
		}
		idx := leadingIndex(coll, f.Property, f.Op == OpEqual)
		if idx == nil {
			return queryPlan{}, planFull
		}
		p := idx.props[0]
		switch f.Op {
		case OpIsNull:
			return queryPlan{idx, prefixRange([]byte{keyTagNull})}, planPrefix
		case OpEqual:
			k, ok := conditionKey(p, f.Value)
			if !ok {
				return queryPlan{}, planFull
			}
			if idx.unique && len(idx.props) == 1 {
				return queryPlan{idx, prefixRange(k)}, planUniqueEqual
			}
			return queryPlan{idx, prefixRange(k)}, planPrefix
		case OpStartsWith:
			if p.typ != codec.String || f.Value.kind != stringValue {
				return queryPlan{}, planFull
			}
			return queryPlan{idx, prefixRange(appendStringKey(nil, f.Value.s, false))}, planPrefix
		case OpGreater, OpGreaterOrEqual:
			k, ok := conditionKey(p, f.Value)
			if !ok {
				return queryPlan{}, planFull
			}
			return queryPlan{idx, halfOpenRange(k, nil)}, planRange
		case OpLess, OpLessOrEqual:
			k, ok := conditionKey(p, f.Value)
			if !ok || !nextPrefix(k) {
				return queryPlan{}, planFull
			}
			return queryPlan{idx, halfOpenRange([]byte{keyTagValue}, k)}, planRange
		case OpBetween:
			lo, ok1 := conditionKey(p, f.Value)
			hi, ok2 := conditionKey(p, f.Upper)
			if !ok1 || !ok2 || !nextPrefix(hi) {
				return queryPlan{}, planFull
			}
			if bytes.Compare(lo, hi) >= 0 {
				return queryPlan{}, planFull
			}
			return queryPlan{idx, halfOpenRange(lo, hi)}, planRange
		}
	}
	return queryPlan{}, planFull
}

// leadingIndex picks an index whose first property is prop, preferring
// single-property unique indexes for equality lookups.
func leadingIndex(coll *Collection, prop int, preferUnique bool) *Index {
	var found *Index
	for _, idx := range coll.indexes {
		if idx.props[0].pos != prop {
			continue
		}
		if found == nil {
			found = idx
		}
		if preferUnique && idx.unique && len(idx.props) == 1 {
			return idx
		}
	}
	return found
}

// conditionKey encodes v the way p's values appear in index keys, rounding
// to float32 for Float properties like the filter does. It fails when the
// value has no exact representation in p's type; such conditions fall back
// to a full scan.
func conditionKey(p *Property, v Value) ([]byte, bool) {
	switch p.typ {
	case codec.Bool:
		if v.kind != boolValue {
			return nil, false
		}
		return appendBoolKey(nil, v.b), true
	case codec.Byte:
		if v.kind != intValue || v.i < 0 || v.i > math.MaxUint8 {
			return nil, false
		}
		return appendUint8Key(nil, byte(v.i)), true
	case codec.Int:
		if v.kind != intValue || v.i < math.MinInt32 || v.i > math.MaxInt32 || v.i == int64(codec.NullInt) {
			return nil, false
		}
		return appendIntKey(nil, v.i), true
	case codec.Long:
		if v.kind != intValue || v.i == codec.NullLong {
			return nil, false
		}
		return appendIntKey(nil, v.i), true
	case codec.Float, codec.Double:
		if !v.isNumeric() || math.IsNaN(v.float()) {
			return nil, false
		}
		f := v.float()
		if p.typ == codec.Float {
			f = float64(float32(f))
		}
		return appendFloatKey(nil, f), true
	case codec.String:
		if v.kind != stringValue {
			return nil, false
		}
		return appendStringKey(nil, v.s, true), true
	}
	return nil, false
}
