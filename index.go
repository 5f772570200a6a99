package objdb

import (
	"bytes"
	"strings"

	"github.com/andreyvit/objdb/codec"
)

// Index keeps objects of a collection ordered by one or more scalar
// properties. Each object contributes exactly one entry per index: the
// encoded property values followed by the object's id key, with an empty
// value. Unique indexes additionally reject two objects with equal non-null
// values.
type Index struct {
	coll   *Collection
	pos    int
	name   string
	props  []*Property
	unique bool
	buck   string
}

func makeIndexBucketName(name string) string {
	return "i_" + name
}

func (coll *Collection) buildIndex(is IndexSchema) (*Index, error) {
	switch {
	case is.Name == "":
		return nil, schemaErrf(coll.name, "index with no name")
	case coll.indexesByName[is.Name] != nil:
		return nil, schemaErrf(coll.name, "duplicate index %q", is.Name)
	case len(is.Properties) == 0:
		return nil, schemaErrf(coll.name, "index %q has no properties", is.Name)
	}
	idx := &Index{
		coll:   coll,
		pos:    len(coll.indexes),
		name:   is.Name,
		unique: is.Unique,
		buck:   makeIndexBucketName(is.Name),
	}
	seen := make(map[string]bool, len(is.Properties))
	for _, name := range is.Properties {
		p := coll.propsByName[name]
		if p == nil {
			return nil, schemaErrf(coll.name, "index %q: unknown property %q", is.Name, name)
		}
		if seen[name] {
			return nil, schemaErrf(coll.name, "index %q: property %q listed twice", is.Name, name)
		}
		seen[name] = true
		if !isIndexable(p.typ) {
			return nil, schemaErrf(coll.name, "index %q: property %q of type %v cannot be indexed", is.Name, name, p.typ)
		}
		idx.props = append(idx.props, p)
	}
	return idx, nil
}

func isIndexable(t codec.DataType) bool {
	return !t.IsList() && t != codec.Object && t != codec.Json
}

func (idx *Index) Collection() *Collection { return idx.coll }
func (idx *Index) ShortName() string       { return idx.name }
func (idx *Index) FullName() string        { return idx.coll.name + "." + idx.name }
func (idx *Index) IsUnique() bool          { return idx.unique }

func (idx *Index) Properties() []*Property {
	return append([]*Property(nil), idx.props...)
}

func (idx *Index) String() string {
	return idx.FullName()
}

// definition changes whenever the entries of the index would change, which
// requires a rebuild.
func (idx *Index) definition() string {
	var buf strings.Builder
	for i, p := range idx.props {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(p.name)
		buf.WriteByte(':')
		buf.WriteString(p.typ.String())
	}
	if idx.unique {
		buf.WriteString(";unique")
	}
	return buf.String()
}

// checkUnique fails if an object other than id already has the values of r.
func checkUnique(ib storageBucket, r indexRow, id int64) error {
	prefix := r.valuePrefix()
	c := ib.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		other, err := decodeIDKey(k)
		if err != nil {
			return newErr(StatusEncoding, r.idx.coll.name, err, "index %s", r.idx.name)
		}
		if other != id {
			return newErr(StatusUniqueViolated, r.idx.coll.name, nil, "index %s: object %d already has the same value", r.idx.name, other)
		}
	}
	return nil
}

// indexRow is the single entry an object contributes to an index.
type indexRow struct {
	idx     *Index
	key     []byte
	hasNull bool
}

func (r indexRow) valuePrefix() []byte {
	return r.key[:len(r.key)-idKeySize]
}

type indexRows []indexRow

// appendIndexRows computes the entries of obj for every index of coll, in
// index order. The keys are carved out of buf, which is returned grown.
func appendIndexRows(rows indexRows, buf []byte, coll *Collection, obj codec.View, id int64) (indexRows, []byte) {
	for _, idx := range coll.indexes {
		start := len(buf)
		var hasNull bool
		for _, p := range idx.props {
			var isNull bool
			buf, isNull = appendPropertyKey(buf, p, obj)
			hasNull = hasNull || isNull
		}
		buf = appendIDKey(buf, id)
		rows = append(rows, indexRow{idx, buf[start:len(buf):len(buf)], hasNull})
	}
	return rows, buf
}

// diffIndexRows reports entries of old that are absent in new (removed) and
// entries of new that are absent in old (added). Both slices are in index
// order with one entry per index, or empty.
func diffIndexRows(old, new indexRows, removed, added func(r indexRow) error) error {
	for i, nr := range new {
		if i < len(old) && bytes.Equal(old[i].key, nr.key) {
			continue
		}
		if i < len(old) {
			if err := removed(old[i]); err != nil {
				return err
			}
		}
		if err := added(nr); err != nil {
			return err
		}
	}
	for i := len(new); i < len(old); i++ {
		if err := removed(old[i]); err != nil {
			return err
		}
	}
	return nil
}
