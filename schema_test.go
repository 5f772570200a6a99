package objdb

import (
	"testing"

	"github.com/andreyvit/objdb/codec"
)

func TestSchemaValidation(t *testing.T) {
	prop := func(name string, typ codec.DataType) PropertySchema {
		return PropertySchema{Name: name, Type: typ}
	}
	coll := func(name string, props ...PropertySchema) CollectionSchema {
		return CollectionSchema{Name: name, Properties: props}
	}
	emb := func(name string, props ...PropertySchema) CollectionSchema {
		return CollectionSchema{Name: name, Embedded: true, Properties: props}
	}
	withIndex := func(cs CollectionSchema, is ...IndexSchema) CollectionSchema {
		cs.Indexes = is
		return cs
	}

	tests := []struct {
		name string
		decl []CollectionSchema
	}{
		{"no collections", nil},
		{"no name", []CollectionSchema{coll("")}},
		{"reserved name", []CollectionSchema{coll("_meta")}},
		{"duplicate collection", []CollectionSchema{coll("A"), coll("A")}},
		{"reserved property", []CollectionSchema{coll("A", prop("id", codec.Long))}},
		{"empty property name", []CollectionSchema{coll("A", prop("", codec.Long))}},
		{"duplicate property", []CollectionSchema{coll("A", prop("a", codec.Long), prop("a", codec.Int))}},
		{"invalid type", []CollectionSchema{coll("A", prop("a", codec.DataType(200)))}},
		{"object without target", []CollectionSchema{coll("A", prop("o", codec.Object))}},
		{"unknown target", []CollectionSchema{coll("A", PropertySchema{Name: "o", Type: codec.Object, Target: "B"})}},
		{"target not embedded", []CollectionSchema{coll("A", PropertySchema{Name: "o", Type: codec.Object, Target: "B"}), coll("B")}},
		{"scalar with target", []CollectionSchema{coll("A", PropertySchema{Name: "o", Type: codec.Int, Target: "B"}), emb("B")}},
		{"doubly nested", []CollectionSchema{
			coll("A", PropertySchema{Name: "o", Type: codec.Object, Target: "B"}),
			emb("B", PropertySchema{Name: "o", Type: codec.ObjectList, Target: "C"}),
			emb("C"),
		}},
		{"index without name", []CollectionSchema{withIndex(coll("A", prop("a", codec.Int)), IndexSchema{Properties: []string{"a"}})}},
		{"index without properties", []CollectionSchema{withIndex(coll("A", prop("a", codec.Int)), IndexSchema{Name: "i"})}},
		{"index unknown property", []CollectionSchema{withIndex(coll("A", prop("a", codec.Int)), IndexSchema{Name: "i", Properties: []string{"b"}})}},
		{"index repeats property", []CollectionSchema{withIndex(coll("A", prop("a", codec.Int)), IndexSchema{Name: "i", Properties: []string{"a", "a"}})}},
		{"index on list", []CollectionSchema{withIndex(coll("A", prop("a", codec.IntList)), IndexSchema{Name: "i", Properties: []string{"a"}})}},
		{"index on json", []CollectionSchema{withIndex(coll("A", prop("a", codec.Json)), IndexSchema{Name: "i", Properties: []string{"a"}})}},
		{"duplicate index", []CollectionSchema{withIndex(coll("A", prop("a", codec.Int)), IndexSchema{Name: "i", Properties: []string{"a"}}, IndexSchema{Name: "i", Properties: []string{"a"}})}},
		{"index on embedded", []CollectionSchema{withIndex(emb("A", prop("a", codec.Int)), IndexSchema{Name: "i", Properties: []string{"a"}})}},
	}
	for _, tt := range tests {
		_, err := NewSchema(tt.decl)
		if err == nil {
			t.Errorf("** %s: NewSchema succeeded, wanted an error", tt.name)
			continue
		}
		hasStatus(t, err, StatusSchema)
	}
}

func TestSchemaTooManyProperties(t *testing.T) {
	var props []PropertySchema
	for i := 0; i < 9000; i++ {
		props = append(props, PropertySchema{Name: "p" + string(rune('a'+i%26)) + string(rune('a'+i/26%26)) + string(rune('a'+i/676)), Type: codec.Long})
	}
	_, err := NewSchema([]CollectionSchema{{Name: "A", Properties: props}})
	hasStatus(t, err, StatusSchema)
}

func TestParseSchema(t *testing.T) {
	scm := must(ParseSchema([]byte(`[
		{"name": "Event", "properties": [
			{"name": "at", "type": "DateTime"},
			{"name": "tags", "type": "StringList"},
			{"name": "where", "type": "Object", "target": "Place"}
		], "indexes": [{"name": "by_at", "properties": ["at"]}]},
		{"name": "Place", "embedded": true, "properties": [{"name": "lat", "type": "Double"}]}
	]`)))
	coll := must(scm.Collection(0))
	deepEqual(t, coll.Name(), "Event")
	deepEqual(t, coll.PropertyNamed("at").Type(), codec.Long)
	deepEqual(t, coll.PropertyNamed("where").Target().Name(), "Place")
	deepEqual(t, coll.IndexNamed("by_at").Properties()[0].Name(), "at")
	deepEqual(t, must(scm.Collection(1)).IsEmbedded(), true)

	again := must(ParseSchema(scm.JSON()))
	deepEqual(t, again.Hash(), scm.Hash())
	deepEqual(t, string(again.JSON()), string(scm.JSON()))

	_, err := scm.Collection(2)
	hasStatus(t, err, StatusNotFound)

	_, err = ParseSchema([]byte(`{"name": "x"}`))
	hasStatus(t, err, StatusSchema)
	_, err = ParseSchema([]byte(`[{"name": "A", "properties": [{"name": "a", "type": "Decimal"}]}]`))
	hasStatus(t, err, StatusSchema)
}

func TestSchemaLayoutIsDeterministic(t *testing.T) {
	a := must(NewSchema(itemsDecl))
	b := must(NewSchema(itemsDecl))
	deepEqual(t, a.Hash(), b.Hash())
	deepEqual(t, must(a.Collection(0)).Layout(), must(b.Collection(0)).Layout())

	price := must(a.Collection(0)).PropertyNamed("price")
	deepEqual(t, price.Index(), itemPrice)
	// header length, name, tags (descriptors), then price
	deepEqual(t, price.Offset(), 2+8+8)
}

func openAt(t testing.TB, dir string, decl []CollectionSchema) (*Instance, error) {
	t.Helper()
	inst, err := Open(Options{InstanceID: lastInstanceID.Add(1), Schema: must(NewSchema(decl)), Dir: dir})
	if inst != nil {
		t.Cleanup(func() { inst.Close(false) })
	}
	return inst, err
}

func TestMigration(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a file")
	}
	dir := t.TempDir()

	v1 := []CollectionSchema{
		{Name: "Note", Properties: []PropertySchema{{Name: "title", Type: codec.String}}},
		{Name: "Scratch", Properties: []PropertySchema{{Name: "v", Type: codec.Int}}},
	}
	inst := must(openAt(t, dir, v1))
	ensure(inst.Write(func(txn *Txn) error {
		ins := must(inst.Insert(txn, 0, 2))
		ins.WriteString(0, "first")
		must(ins.Save(AutoIncrement))
		ins.WriteString(0, "first")
		must(ins.Save(AutoIncrement))
		return ins.Finish()
	}))
	deepEqual(t, inst.Close(false), true)

	// incompatible changes fail and leave the file alone
	bad := map[string][]CollectionSchema{
		"retyped": {
			{Name: "Note", Properties: []PropertySchema{{Name: "title", Type: codec.Int}}},
			v1[1],
		},
		"removed property": {
			{Name: "Note", Properties: []PropertySchema{{Name: "body", Type: codec.String}, {Name: "title", Type: codec.String}}},
			v1[1],
		},
		"renamed property": {
			{Name: "Note", Properties: []PropertySchema{{Name: "name", Type: codec.String}}},
			v1[1],
		},
		"removed non-empty collection": {
			v1[1],
		},
		"now embedded": {
			{Name: "Note", Embedded: true, Properties: []PropertySchema{{Name: "title", Type: codec.String}}},
			v1[1],
		},
		"duplicate values in new unique index": {
			{Name: "Note", Properties: []PropertySchema{{Name: "title", Type: codec.String}}, Indexes: []IndexSchema{{Name: "by_title", Properties: []string{"title"}, Unique: true}}},
			v1[1],
		},
	}
	for name, decl := range bad {
		_, err := openAt(t, dir, decl)
		if err == nil {
			t.Fatalf("** %s: Open succeeded, wanted an error", name)
		}
		if s := StatusOf(err); s != StatusSchema && s != StatusUniqueViolated {
			t.Errorf("** %s: status %v (%v)", name, s, err)
		}
	}

	// appended property, new index, dropped empty collection
	v2 := []CollectionSchema{
		{
			Name: "Note",
			Properties: []PropertySchema{
				{Name: "title", Type: codec.String},
				{Name: "stars", Type: codec.Int},
			},
			Indexes: []IndexSchema{{Name: "by_title", Properties: []string{"title"}}},
		},
	}
	inst = must(openAt(t, dir, v2))
	ensure(inst.Write(func(txn *Txn) error {
		ins := must(inst.Insert(txn, 0, 1))
		ins.WriteString(0, "second")
		ins.WriteInt(1, 5)
		must(ins.Save(AutoIncrement))
		return ins.Finish()
	}))
	ensure(inst.Read(func(txn *Txn) error {
		old := must(inst.Get(txn, 0, 1))
		deepEqual(t, old.IsNull(1), true)
		deepEqual(t, old.ReadInt(1), codec.NullInt)
		title, _ := old.ReadString(0)
		deepEqual(t, title, "first")

		q := must(must(inst.BuildQuery(0)).SetFilter(Equal(0, StringValue("first"))).Build())
		deepEqual(t, planName(q), "by_title")
		deepEqual(t, must(inst.Count(txn, q)), uint32(2))

		n := must(inst.Get(txn, 0, 3))
		deepEqual(t, n.ReadInt(1), int32(5))
		deepEqual(t, txn.stx.Bucket("Scratch", ""), storageBucket(nil))
		return nil
	}))
	deepEqual(t, inst.Close(false), true)

	// dropping the index is fine
	v3 := []CollectionSchema{{Name: "Note", Properties: v2[0].Properties}}
	inst = must(openAt(t, dir, v3))
	ensure(inst.Read(func(txn *Txn) error {
		deepEqual(t, txn.stx.Bucket("Note", makeIndexBucketName("by_title")), storageBucket(nil))
		deepEqual(t, must(txn.CollectionStats(0)).Objects, 3)
		return nil
	}))
}

func TestMigrationKeepsEmbeddedTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a file")
	}
	dir := t.TempDir()

	label := []PropertySchema{{Name: "label", Type: codec.String}}
	decl := func(target string) []CollectionSchema {
		return []CollectionSchema{
			{Name: "Note", Properties: []PropertySchema{
				{Name: "title", Type: codec.String},
				{Name: "place", Type: codec.Object, Target: target},
			}},
			{Name: "Place", Embedded: true, Properties: label},
			{Name: "Venue", Embedded: true, Properties: label},
		}
	}
	inst := must(openAt(t, dir, decl("Place")))
	ensure(inst.Write(func(txn *Txn) error {
		ins := must(inst.Insert(txn, 0, 1))
		ins.WriteString(0, "first")
		w := ins.BeginObject(1)
		w.WriteString(0, "home")
		ins.EndObject(w)
		must(ins.Save(AutoIncrement))
		return ins.Finish()
	}))
	deepEqual(t, inst.Close(false), true)

	_, err := openAt(t, dir, decl("Venue"))
	hasStatus(t, err, StatusSchema)

	inst = must(openAt(t, dir, decl("Place")))
	ensure(inst.Read(func(txn *Txn) error {
		r := must(inst.Get(txn, 0, 1))
		title, _ := r.ReadString(0)
		deepEqual(t, title, "first")
		place, ok := r.ReadObject(1)
		deepEqual(t, ok, true)
		s, _ := place.ReadString(0)
		deepEqual(t, s, "home")
		return nil
	}))
}
