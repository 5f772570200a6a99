package objdb

import "sync"

// slicePool recycles slices of one element type. Slices come out empty
// with at least the pool's initial capacity.
type slicePool[T any] struct {
	p sync.Pool
	// maxCap bounds the capacity of slices taken back, so that one huge
	// object does not pin its buffer forever.
	maxCap int
}

func newSlicePool[T any](initialCap, maxCap int) *slicePool[T] {
	sp := &slicePool[T]{maxCap: maxCap}
	sp.p.New = func() any { return make([]T, 0, initialCap) }
	return sp
}

func (sp *slicePool[T]) get() []T {
	return sp.p.Get().([]T)
}

// put takes s back; elements are zeroed so pooled slices hold no references.
func (sp *slicePool[T]) put(s []T) {
	if cap(s) > sp.maxCap {
		return
	}
	clear(s)
	sp.p.Put(s[:0])
}

var (
	indexRowsPool = newSlicePool[indexRow](16, 1024)

	// keyBytesPool holds scratch space for index keys; bbolt copies keys on Put.
	keyBytesPool = newSlicePool[byte](4096, 65536)

	// valueBytesPool holds encoded objects, which must stay alive until
	// their transaction ends (see Txn.retain).
	valueBytesPool = newSlicePool[byte](4096, 4*65536)
	valueListPool  = newSlicePool[[]byte](64, 4096)
)

// emptyIndexValue is the value of every index entry; the key says it all.
var emptyIndexValue = []byte{}
