package objdb

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/objdb/codec"
)

// CollectionSchema is the declarative description of one collection, in
// the form persisted alongside the data and compared on every open.
type CollectionSchema struct {
	Name       string           `json:"name"`
	Embedded   bool             `json:"embedded,omitempty"`
	Properties []PropertySchema `json:"properties"`
	Indexes    []IndexSchema    `json:"indexes,omitempty"`
}

type PropertySchema struct {
	Name string         `json:"name"`
	Type codec.DataType `json:"type"`
	// Target names the embedded collection of an Object or ObjectList property.
	Target string `json:"target,omitempty"`
}

type IndexSchema struct {
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
	Unique     bool     `json:"unique,omitempty"`
}

// Schema is the validated, immutable set of collections of an Instance.
type Schema struct {
	collections []*Collection
	byName      map[string]*Collection
	decl        []CollectionSchema
	json        []byte
	hash        uint64
}

// ParseSchema reads the JSON form of a schema (an array of collections).
func ParseSchema(data []byte) (*Schema, error) {
	var decl []CollectionSchema
	if err := json.Unmarshal(data, &decl); err != nil {
		return nil, newErr(StatusSchema, "", err, "invalid schema JSON")
	}
	return NewSchema(decl)
}

// NewSchema validates the declaration and assigns property offsets.
// Identical declarations always produce identical layouts.
func NewSchema(decl []CollectionSchema) (*Schema, error) {
	if len(decl) == 0 {
		return nil, schemaErrf("", "no collections")
	}
	scm := &Schema{
		byName: make(map[string]*Collection, len(decl)),
	}
	for i, cs := range decl {
		if cs.Name == "" {
			return nil, schemaErrf("", "collection %d has no name", i)
		}
		if strings.HasPrefix(cs.Name, "_") {
			return nil, schemaErrf(cs.Name, "collection names starting with _ are reserved")
		}
		if scm.byName[cs.Name] != nil {
			return nil, schemaErrf(cs.Name, "duplicate collection name")
		}
		coll := &Collection{
			schema:   scm,
			pos:      i,
			name:     cs.Name,
			embedded: cs.Embedded,
		}
		scm.collections = append(scm.collections, coll)
		scm.byName[cs.Name] = coll
	}
	for i, cs := range decl {
		if err := scm.collections[i].build(cs); err != nil {
			return nil, err
		}
	}

	scm.decl = cloneDecl(decl)
	raw, err := json.Marshal(scm.decl)
	if err != nil {
		return nil, newErr(StatusSchema, "", err, "cannot marshal schema")
	}
	scm.json = raw
	scm.hash = xxhash.Sum64(raw)
	return scm, nil
}

func (scm *Schema) Collections() []*Collection {
	return append([]*Collection(nil), scm.collections...)
}

// Collection returns the collection with the given stable numeric index.
func (scm *Schema) Collection(index int) (*Collection, error) {
	if index < 0 || index >= len(scm.collections) {
		return nil, newErr(StatusNotFound, "", nil, "no collection with index %d", index)
	}
	return scm.collections[index], nil
}

func (scm *Schema) CollectionNamed(name string) *Collection {
	return scm.byName[name]
}

// JSON returns the canonical textual form of the schema.
func (scm *Schema) JSON() []byte {
	return scm.json
}

// Hash is the xxhash64 fingerprint of JSON().
func (scm *Schema) Hash() uint64 {
	return scm.hash
}

func (scm *Schema) Decl() []CollectionSchema {
	return cloneDecl(scm.decl)
}

func (scm *Schema) String() string {
	return fmt.Sprintf("schema(%d collections, %016x)", len(scm.collections), scm.hash)
}

func cloneDecl(decl []CollectionSchema) []CollectionSchema {
	out := make([]CollectionSchema, len(decl))
	for i, cs := range decl {
		cs.Properties = append([]PropertySchema(nil), cs.Properties...)
		idxs := make([]IndexSchema, len(cs.Indexes))
		for j, is := range cs.Indexes {
			is.Properties = append([]string(nil), is.Properties...)
			idxs[j] = is
		}
		if len(idxs) == 0 {
			idxs = nil
		}
		cs.Indexes = idxs
		out[i] = cs
	}
	return out
}
