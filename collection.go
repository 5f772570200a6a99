package objdb

import (
	"fmt"

	"github.com/andreyvit/objdb/codec"
)

const (
	dataBucket = "data"

	// idPropertyName is reserved: the id is not a regular property.
	idPropertyName = "id"
)

// Collection describes one object type: its ordered properties, their
// layout, and its indexes. Embedded collections describe objects nested
// inside other objects; they have no storage and no ids.
type Collection struct {
	schema        *Schema
	pos           int
	name          string
	embedded      bool
	props         []*Property
	propsByName   map[string]*Property
	indexes       []*Index
	indexesByName map[string]*Index
	layout        codec.Layout
}

// Property is one field of a collection. Its index (position in the
// collection) is what Reader and Writer methods accept.
type Property struct {
	coll   *Collection
	pos    int
	name   string
	typ    codec.DataType
	offset int
	target *Collection
}

func (coll *Collection) Index() int           { return coll.pos }
func (coll *Collection) Name() string         { return coll.name }
func (coll *Collection) IsEmbedded() bool     { return coll.embedded }
func (coll *Collection) Layout() codec.Layout { return coll.layout }
func (coll *Collection) Schema() *Schema      { return coll.schema }

func (coll *Collection) Properties() []*Property {
	return append([]*Property(nil), coll.props...)
}

func (coll *Collection) Property(index int) (*Property, error) {
	if index < 0 || index >= len(coll.props) {
		return nil, argErrf(coll.name, "no property with index %d", index)
	}
	return coll.props[index], nil
}

func (coll *Collection) PropertyNamed(name string) *Property {
	return coll.propsByName[name]
}

func (coll *Collection) Indexes() []*Index {
	return append([]*Index(nil), coll.indexes...)
}

func (coll *Collection) IndexNamed(name string) *Index {
	return coll.indexesByName[name]
}

func (coll *Collection) String() string {
	return coll.name
}

// prop resolves a property index for a reader or writer. Bad indexes are a
// programmer error.
func (coll *Collection) prop(index int) *Property {
	if index < 0 || index >= len(coll.props) {
		panic(fmt.Errorf("%s: no property with index %d", coll.name, index))
	}
	return coll.props[index]
}

func (coll *Collection) build(cs CollectionSchema) error {
	coll.propsByName = make(map[string]*Property, len(cs.Properties))
	coll.indexesByName = make(map[string]*Index, len(cs.Indexes))

	types := make([]codec.DataType, len(cs.Properties))
	for i, ps := range cs.Properties {
		switch {
		case ps.Name == "":
			return schemaErrf(coll.name, "property %d has no name", i)
		case ps.Name == idPropertyName:
			return schemaErrf(coll.name, "property name %q is reserved", ps.Name)
		case coll.propsByName[ps.Name] != nil:
			return schemaErrf(coll.name, "duplicate property %q", ps.Name)
		case !ps.Type.IsValid():
			return schemaErrf(coll.name, "property %q has invalid type %v", ps.Name, ps.Type)
		}

		p := &Property{
			coll: coll,
			pos:  i,
			name: ps.Name,
			typ:  ps.Type,
		}
		isObj := ps.Type == codec.Object || ps.Type == codec.ObjectList
		if isObj {
			if coll.embedded {
				return schemaErrf(coll.name, "property %q: embedded objects cannot contain objects", ps.Name)
			}
			if ps.Target == "" {
				return schemaErrf(coll.name, "property %q of type %v needs a target collection", ps.Name, ps.Type)
			}
			target := coll.schema.byName[ps.Target]
			if target == nil {
				return schemaErrf(coll.name, "property %q targets unknown collection %q", ps.Name, ps.Target)
			}
			if !target.embedded {
				return schemaErrf(coll.name, "property %q targets %q, which is not embedded", ps.Name, ps.Target)
			}
			p.target = target
		} else if ps.Target != "" {
			return schemaErrf(coll.name, "property %q of type %v cannot have a target", ps.Name, ps.Type)
		}

		coll.props = append(coll.props, p)
		coll.propsByName[p.name] = p
		types[i] = ps.Type
	}

	layout, err := codec.NewLayout(types)
	if err != nil {
		return newErr(StatusSchema, coll.name, err, "invalid layout")
	}
	coll.layout = layout
	for i, p := range coll.props {
		p.offset = layout.Slots[i].Offset
	}

	if coll.embedded && len(cs.Indexes) > 0 {
		return schemaErrf(coll.name, "embedded collections cannot have indexes")
	}
	for _, is := range cs.Indexes {
		idx, err := coll.buildIndex(is)
		if err != nil {
			return err
		}
		coll.indexes = append(coll.indexes, idx)
		coll.indexesByName[idx.name] = idx
	}
	return nil
}

func (p *Property) Index() int                  { return p.pos }
func (p *Property) Name() string                { return p.name }
func (p *Property) Type() codec.DataType        { return p.typ }
func (p *Property) Offset() int                 { return p.offset }
func (p *Property) Collection() *Collection     { return p.coll }
func (p *Property) Target() *Collection         { return p.target }
func (p *Property) FullName() string            { return p.coll.name + "." + p.name }
func (p *Property) String() string              { return p.FullName() }
func (p *Property) elementType() codec.DataType { return p.typ.ElementType() }
