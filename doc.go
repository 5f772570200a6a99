/*
Package objdb implements an embeddable object database with a declared
schema, on top of a key-value store (Bolt, or process memory).

We implement:

 1. Collections of objects stored in a compact binary format (package codec),
    addressed by int64 ids, read through Reader and written through Writer.

2. Embedded collections, describing objects nested inside other objects.

3. Indexes over one or more scalar properties, optionally unique.

 4. Queries: filters, sorting, distinct, offset and limit, run through a
    Cursor, counted or deleted in bulk.

# Technical Details

**Buckets.**
Each stored collection has a root bucket named after it. The objects live in
its "data" sub-bucket under their id keys; each index has its own "i_<name>"
sub-bucket. The "_meta" bucket holds the canonical JSON of the schema the
file was last opened with; collection names starting with "_" are reserved.

**Collection state.**
The root bucket of a collection also holds a msgpack document under "_state":
the last id handed out, and one record per index with its ordinal, its
definition and whether it has been built. Ordinals are never reused. An index
whose definition changes is dropped and rebuilt on the next open.

**Ids.**
Object ids are int64. Keys are the 8 big-endian bytes of id^(1<<63), so keys
sort in id order. Auto-increment ids continue after the largest id ever
stored, even if that object was deleted.

**Index keys.**
An index entry is the concatenated key components of the indexed properties
followed by the id key, with an empty value. Components are order-preserving
and prefix-free; see indexkey.go.

**Schema changes.**
Properties can only be appended, since existing objects keep their layout.
Collections can be added, and removed while empty. Indexes can be added,
removed and changed freely.
*/
package objdb
