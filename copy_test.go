package objdb

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/andreyvit/objdb/backup"
)

func TestCopyToAndRestore(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a file")
	}
	for _, c := range []backup.Compression{backup.None, backup.Snappy, backup.Zstd, backup.LZ4} {
		t.Run(c.String(), func(t *testing.T) {
			inst := setup(t, itemsSchema)
			putItems(t, inst, &item{Name: "a", SKU: "A", Tags: []string{"x"}}, &item{Name: "b", Meta: &meta{Label: "m", N: 1}})

			var buf bytes.Buffer
			n := must(inst.CopyTo(&buf, c))
			deepEqual(t, n, int64(buf.Len()))

			// writes after the copy are not in it
			putItems(t, inst, &item{Name: "c"})

			dir := t.TempDir()
			must(backup.Restore(&buf, filepath.Join(dir, "default"+fileSuffix)))
			restored := setupWith(t, Options{Schema: itemsSchema, Dir: dir})
			items := queryItems(t, restored, must(must(restored.BuildQuery(0)).Build()))
			deepEqual(t, itemNames(items), "a b")
			deepEqual(t, items[1].Meta, &meta{Label: "m", N: 1})

			q := must(must(restored.BuildQuery(0)).SetFilter(Equal(itemSKU, StringValue("A"))).Build())
			deepEqual(t, planName(q), "by_sku")
			deepEqual(t, itemNames(queryItems(t, restored, q)), "a")
		})
	}
}

func TestCopyToFile(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a file")
	}
	inst := setup(t, itemsSchema)
	putItems(t, inst, &item{Name: "a"})

	tmp := t.TempDir()
	bak := filepath.Join(tmp, "items.bak")
	must(inst.CopyToFile(bak, backup.Zstd))

	must(backup.RestoreFile(bak, filepath.Join(tmp, "items"+fileSuffix)))
	restored := setupWith(t, Options{Schema: itemsSchema, Dir: tmp, Name: "items"})
	deepEqual(t, itemNames(queryItems(t, restored, must(must(restored.BuildQuery(0)).Build()))), "a")
}

func TestCopyToErrors(t *testing.T) {
	mem := setupWith(t, Options{Schema: itemsSchema, InMemory: true})
	var buf bytes.Buffer
	_, err := mem.CopyTo(&buf, backup.None)
	hasStatus(t, err, StatusInvalidArgument)

	_, err = mem.CopyTo(&buf, backup.Compression(99))
	hasStatus(t, err, StatusInvalidArgument)
}
