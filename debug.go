package objdb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andreyvit/objdb/codec"
)

type DumpFlags uint64

const (
	DumpCollectionHeaders = DumpFlags(1 << iota)
	DumpObjects
	DumpStats
	DumpIndexes
	DumpIndexEntries

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the contents of every stored collection for debugging and
// tests. Objects are shown as JSON.
func (txn *Txn) Dump(f DumpFlags) string {
	var buf strings.Builder
	if err := txn.check(false); err != nil {
		fmt.Fprintf(&buf, "** ERROR: %v\n", err)
		return buf.String()
	}
	for _, coll := range txn.inst.schema.collections {
		if coll.embedded {
			continue
		}
		txn.dumpCollection(&buf, f, coll)
	}
	return buf.String()
}

func (txn *Txn) dumpCollection(w *strings.Builder, f DumpFlags, coll *Collection) {
	prefix := coll.name
	s := txn.collectionStats(coll)
	cs := txn.inst.collectionState(coll)

	if f.Contains(DumpCollectionHeaders) {
		fmt.Fprintln(w, rpad(fmt.Sprintf("== %s (%d objects) ", prefix, s.Objects), 80, '='))
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_entries = %d, data_size = %d, data_alloc = %d, index_size = %d, index_alloc = %d, total_alloc = %d\n", prefix, s.IndexEntries, s.DataSize, s.DataAlloc, s.IndexSize, s.IndexAlloc, s.TotalAlloc())
	}

	if f.Contains(DumpObjects) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep)
		}
		c := txn.bucket(coll, dataBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			dumpObject(w, prefix, coll, k, v)
		}
	}

	if f.Contains(DumpIndexes) {
		for _, idx := range coll.indexes {
			fmt.Fprintln(w, dumpSep)
			iprefix := prefix + ".i." + idx.name
			if is := cs.indexStates[idx.pos]; is != nil {
				fmt.Fprintf(w, "%s (0x%x) %s\n", iprefix, is.IndexOrdinal, is.Definition)
			}
			if f.Contains(DumpIndexEntries) {
				c := txn.bucket(coll, idx.buck).Cursor()
				for k, _ := c.First(); k != nil; k, _ = c.Next() {
					id, err := decodeIDKey(k)
					if err != nil {
						fmt.Fprintf(w, "%s: %x ** ERROR: %v\n", iprefix, k, err)
						continue
					}
					fmt.Fprintf(w, "%s: %x => %d\n", iprefix, k[:len(k)-idKeySize], id)
				}
			}
		}
	}
}

func dumpObject(w *strings.Builder, prefix string, coll *Collection, k, v []byte) {
	id, err := decodeIDKey(k)
	if err != nil {
		fmt.Fprintf(w, "%s.%x ** ERROR: %v\n", prefix, k, err)
		return
	}
	obj, err := codec.Load(v)
	if err != nil {
		fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", prefix, id, err)
		return
	}
	raw, err := json.Marshal(objectToMap(coll, obj))
	if err != nil {
		fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", prefix, id, err)
		return
	}
	fmt.Fprintf(w, "%s.%d = %s\n", prefix, id, raw)
}

func rpad(s string, n int, pad rune) string {
	if rem := n - len(s); rem > 0 {
		return s + strings.Repeat(string(pad), rem)
	}
	return s
}

func hexstr(b []byte) string {
	switch {
	case b == nil:
		return "<nil>"
	case len(b) == 0:
		return "<empty>"
	default:
		return hex.EncodeToString(b)
	}
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexstr(b))
}

// objectToMap converts an object into plain Go values keyed by property
// name; nulls become nil.
func objectToMap(coll *Collection, obj codec.View) map[string]any {
	m := make(map[string]any, len(coll.props))
	for _, p := range coll.props {
		m[p.name] = propertyValue(p, obj)
	}
	return m
}

func propertyValue(p *Property, obj codec.View) any {
	off := p.offset
	if isNullAt(obj, off, p.typ) {
		return nil
	}
	switch p.typ {
	case codec.Bool:
		v, _ := obj.ReadBool(off)
		return v
	case codec.Byte:
		return obj.ReadUint8(off)
	case codec.Int, codec.Long:
		v, _ := readInt(obj, off, p.typ)
		return v
	case codec.Float, codec.Double:
		v, _ := readFloat(obj, off, p.typ)
		return v
	case codec.String:
		v, _ := obj.ReadString(off)
		return strings.Clone(v)
	case codec.Json:
		v, _ := obj.ReadJSON(off)
		return v
	case codec.Object:
		emb, ok := obj.ReadObject(off)
		if !ok {
			return nil
		}
		return objectToMap(p.target, emb)
	}

	elem := p.typ.ElementType()
	l, ok := obj.ReadList(off, elem)
	if !ok {
		return nil
	}
	out := make([]any, l.Len())
	for i := range out {
		out[i] = elementValue(p, l, elem, i)
	}
	return out
}

func elementValue(p *Property, l codec.List, elem codec.DataType, i int) any {
	switch elem {
	case codec.Bool:
		if v, ok := l.ReadBool(i); ok {
			return v
		}
	case codec.Byte:
		return l.ReadUint8(i)
	case codec.Int, codec.Long:
		if v, ok := listInt(l, elem, i); ok {
			return v
		}
	case codec.Float, codec.Double:
		if v, ok := listFloat(l, elem, i); ok {
			return v
		}
	case codec.String:
		if v, ok := l.ReadString(i); ok {
			return strings.Clone(v)
		}
	case codec.Json:
		if v, ok := l.ReadJSON(i); ok {
			return v
		}
	case codec.Object:
		if emb, ok := l.ReadObject(i); ok {
			return objectToMap(p.target, emb)
		}
	}
	return nil
}
